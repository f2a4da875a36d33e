// Package similarcmder provides the similar command for nearest-item lookups.
package similarcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/polar/api"
	"github.com/papercomputeco/polar/cmd/polar/clientcfg"
	"github.com/papercomputeco/polar/pkg/cliui"
)

const similarLongDesc string = `List the items most similar to a catalog item.

Requires a running Polar API server with a built similarity index. The item
itself is never part of the answer.

Examples:
  polar similar v123
  polar similar v123 -k 10
  polar similar v123 --quiet`

const similarShortDesc string = "List items similar to an item"

func NewSimilarCmd() *cobra.Command {
	var (
		k         int
		quiet     bool
		apiTarget string
	)

	cmd := &cobra.Command{
		Use:   "similar <item-id>",
		Short: similarShortDesc,
		Long:  similarLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientcfg.NewClient(cmd)
			if err != nil {
				return err
			}
			resp, err := client.Similar(cmd.Context(), args[0], k)
			if err != nil {
				return err
			}
			PrintResults(cmd.OutOrStdout(), "Items similar to", args[0], resp, quiet)
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "top", "k", 5, "Number of results to return")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Output only item ids, one per line (for piping)")
	clientcfg.AddFlags(cmd, &apiTarget)

	return cmd
}

// PrintResults renders ranked similarity results.
func PrintResults(w io.Writer, header, subject string, resp *api.SearchResponse, quiet bool) {
	if quiet {
		for _, r := range resp.Results {
			fmt.Fprintln(w, r.ID)
		}
		return
	}

	if resp.Count == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "\n%s %s\n\n",
		cliui.HeaderStyle.Render(header),
		cliui.KeyStyle.Render(fmt.Sprintf("%q", subject)),
	)
	for i, r := range resp.Results {
		fmt.Fprintf(w, "  %s  %s  %s\n",
			cliui.RankStyle.Render(fmt.Sprintf("#%d", i+1)),
			cliui.KeyStyle.Render(r.ID),
			cliui.StepStyle.Render(fmt.Sprintf("distance: %.4f", r.Distance)),
		)
	}
	fmt.Fprintln(w)
}
