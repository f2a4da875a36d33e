// Package searchcmder provides the search command for free-text similarity
// search over the catalog.
package searchcmder

import (
	"github.com/spf13/cobra"

	"github.com/papercomputeco/polar/cmd/polar/clientcfg"
	similarcmder "github.com/papercomputeco/polar/cmd/polar/similar"
)

const searchLongDesc string = `Search the catalog by text via the Polar API.

The server embeds the query with its configured embedding provider and
returns the nearest items. Requires a running Polar API server with both a
similarity index and an embedder.

Examples:
  polar search "local election coverage"
  polar search "climate policy" --top 10
  polar search "climate policy" --quiet`

const searchShortDesc string = "Search the catalog by text"

func NewSearchCmd() *cobra.Command {
	var (
		topK      int
		quiet     bool
		apiTarget string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientcfg.NewClient(cmd)
			if err != nil {
				return err
			}
			resp, err := client.Search(cmd.Context(), args[0], topK)
			if err != nil {
				return err
			}
			similarcmder.PrintResults(cmd.OutOrStdout(), "Search Results for:", args[0], resp, quiet)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top", "k", 5, "Number of results to return")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Output only item ids, one per line (for piping)")
	clientcfg.AddFlags(cmd, &apiTarget)

	return cmd
}
