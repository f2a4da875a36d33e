// Package polarcmder
package polarcmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/polar/cmd/polar/config"
	feedcmder "github.com/papercomputeco/polar/cmd/polar/feed"
	ingestcmder "github.com/papercomputeco/polar/cmd/polar/ingest"
	initcmder "github.com/papercomputeco/polar/cmd/polar/init"
	searchcmder "github.com/papercomputeco/polar/cmd/polar/search"
	servecmder "github.com/papercomputeco/polar/cmd/polar/serve"
	similarcmder "github.com/papercomputeco/polar/cmd/polar/similar"
	versioncmder "github.com/papercomputeco/polar/cmd/version"
)

const polarLongDesc string = `Polar serves depolarizing video feeds and similar-video lookups.

Each user is served one unseen video at a time, picked so that their running
bias score moves as close to neutral as possible. A similarity index answers
"videos like this one" queries over the same catalog.

Run services using:
  polar serve              Run the API server
  polar ingest items.jsonl Load catalog items

Talk to a running server using:
  polar feed next --user <id>
  polar similar <item-id>
  polar search "<text>"`

const polarShortDesc string = "Polar - balanced video feeds"

func NewPolarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "polar",
		Short:        polarShortDesc,
		Long:         polarLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to the .polar/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(ingestcmder.NewIngestCmd())
	cmd.AddCommand(feedcmder.NewFeedCmd())
	cmd.AddCommand(similarcmder.NewSimilarCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
