package configcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/polar/pkg/cliui"
)

func newGetCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print one configuration value",
		Long: `Print the effective value of one key, falling back to the built-in
default when config.toml does not set it. --raw prints only the value.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeKey,
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if err := checkKey(key); err != nil {
				return err
			}
			cfger, err := openConfiger(cmd)
			if err != nil {
				return err
			}
			value, err := cfger.GetConfigValue(key)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if raw {
				_, err = fmt.Fprintln(w, value)
				return err
			}
			printSource(w, cfger)
			fmt.Fprintf(w, "%s\n\n", cliui.KeyValue(key, value))
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Print only the value")

	return cmd
}
