// Package configcmder implements "polar config", which reads and edits
// config.toml in the .polar/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/polar/pkg/cliui"
	"github.com/papercomputeco/polar/pkg/config"
)

const configLongDesc string = `Manage persistent polar configuration.

Values in config.toml become the defaults for every polar command. Flags and
POLAR_* environment variables still override them at run time.

Keys use dotted section.name notation, e.g. feed.pool_size or
vector_store.metric. Run "polar config list" to see them all.

Examples:
  polar config set storage.driver postgres
  polar config set vector_store.metric cosine
  polar config get feed.pool_size --raw
  polar config list`

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage persistent polar configuration",
		Long:  configLongDesc,
	}
	cmd.AddCommand(newSetCmd(), newGetCmd(), newListCmd())
	return cmd
}

// openConfiger resolves config.toml from the inherited --config-dir flag.
func openConfiger(cmd *cobra.Command) (*config.Configer, error) {
	dir, _ := cmd.Flags().GetString("config-dir")
	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfger, nil
}

func checkKey(key string) error {
	if config.IsValidConfigKey(key) {
		return nil
	}
	return fmt.Errorf("unknown config key: %q\n\nValid keys: %s", key, strings.Join(config.ValidConfigKeys(), ", "))
}

// completeKey offers config keys for the first positional argument.
func completeKey(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
}

func printSource(w io.Writer, cfger *config.Configer) {
	if path := cfger.GetTarget(); path != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n", cliui.KeyStyle.Render("Config file:"), cliui.DimStyle.Render(path))
		return
	}
	fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}
