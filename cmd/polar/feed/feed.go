// Package feedcmder provides the feed command for requesting balanced feed
// items from a running polar server.
package feedcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/polar/api"
	"github.com/papercomputeco/polar/cmd/polar/apiclient"
	"github.com/papercomputeco/polar/cmd/polar/clientcfg"
	"github.com/papercomputeco/polar/pkg/cliui"
	"github.com/papercomputeco/polar/pkg/utils"
)

const maxTitleLen = 72

const feedLongDesc string = `Request feed items from a running Polar API server.

Use subcommands to walk or reset a user's feed:
  polar feed next --user <id>     Serve the next item
  polar feed reset --user <id>    Forget what the user has seen

Examples:
  polar feed next --user alice
  polar feed next --user alice --count 5
  polar feed reset --user alice --api-target http://localhost:8081`

const feedShortDesc string = "Request feed items"

func NewFeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: feedShortDesc,
		Long:  feedLongDesc,
	}

	cmd.AddCommand(newNextCmd())
	cmd.AddCommand(newResetCmd())

	return cmd
}

func newNextCmd() *cobra.Command {
	var (
		user, apiTarget string
		count           int
	)

	cmd := &cobra.Command{
		Use:   "next",
		Short: "Serve the next item for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}
			client, err := clientcfg.NewClient(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out)
			for i := range count {
				resp, err := client.Next(cmd.Context(), user)
				if apiclient.Kind(err) == api.KindNoUnvisited {
					fmt.Fprintf(out, "  %s\n\n", cliui.DimStyle.Render("No unvisited items left. Run polar feed reset to start over."))
					return nil
				}
				if err != nil {
					return err
				}
				printItem(cmd, i+1, resp)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "User id")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of items to serve")
	_ = cmd.MarkFlagRequired("user")
	clientcfg.AddFlags(cmd, &apiTarget)

	return cmd
}

func newResetCmd() *cobra.Command {
	var user, apiTarget string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget every item served to a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := clientcfg.NewClient(cmd)
			if err != nil {
				return err
			}
			if err := client.Reset(cmd.Context(), user); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n  %s Reset feed for %s\n\n", cliui.SuccessMark, cliui.KeyStyle.Render(user))
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "User id")
	_ = cmd.MarkFlagRequired("user")
	clientcfg.AddFlags(cmd, &apiTarget)

	return cmd
}

func printItem(cmd *cobra.Command, rank int, resp *api.FeedResponse) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "  %s  %s  %s\n",
		cliui.RankStyle.Render(fmt.Sprintf("#%d", rank)),
		cliui.KeyStyle.Render(resp.ItemID),
		cliui.StepStyle.Render(fmt.Sprintf("bias %+.3f", resp.BiasScore)),
	)
	if resp.Title != "" {
		fmt.Fprintf(out, "      %s\n", cliui.ValueStyle.Render(utils.Truncate(resp.Title, maxTitleLen)))
	}
	fmt.Fprintf(out, "      %s\n\n", cliui.DimStyle.Render(fmt.Sprintf(
		"user bias %+.3f after %d items, chosen from %d candidates",
		resp.UserBias, resp.PoleCount, resp.PoolSize,
	)))
}
