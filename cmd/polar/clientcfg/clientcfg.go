// Package clientcfg resolves the API target for commands that talk to a
// running polar server.
package clientcfg

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/polar/cmd/polar/apiclient"
	"github.com/papercomputeco/polar/pkg/config"
)

// AddFlags registers --api-target on cmd and binds it to target.
func AddFlags(cmd *cobra.Command, target *string) {
	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPITarget, target)
}

// NewClient returns a client for the --api-target flag, falling back to
// POLAR_CLIENT_API_TARGET, then client.api_target in config.toml.
func NewClient(cmd *cobra.Command) (*apiclient.Client, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, config.ClientFlags, []string{config.FlagAPITarget})

	return apiclient.New(v.GetString("client.api_target"))
}
