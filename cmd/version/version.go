// Package versioncmder prints the build metadata of the polar binary.
package versioncmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/polar/pkg/cliui"
	"github.com/papercomputeco/polar/pkg/utils"
)

func NewVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the polar version",
		Long:  "Print the version, commit and build time this polar binary was built from.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if short {
				_, err := fmt.Fprintln(out, utils.Version)
				return err
			}
			for _, kv := range [][2]string{
				{"version", utils.Version},
				{"commit", utils.Sha},
				{"built", utils.Buildtime},
			} {
				if _, err := fmt.Fprintln(out, cliui.KeyValue(kv[0], kv[1])); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print only the version string")

	return cmd
}
