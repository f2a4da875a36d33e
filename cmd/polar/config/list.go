package configcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/polar/pkg/cliui"
	"github.com/papercomputeco/polar/pkg/config"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every configuration value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfger, err := openConfiger(cmd)
			if err != nil {
				return err
			}
			cfg, err := cfger.LoadConfig()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			printSource(w, cfger)
			for _, key := range config.ValidConfigKeys() {
				value, err := config.Lookup(cfg, key)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, cliui.KeyValue(key, value))
			}
			fmt.Fprintln(w)
			return nil
		},
	}
}
