// Package ingestcmder provides the ingest command for loading catalog items
// from JSON Lines files.
package ingestcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	servecmder "github.com/papercomputeco/polar/cmd/polar/serve"
	"github.com/papercomputeco/polar/pkg/cliui"
	"github.com/papercomputeco/polar/pkg/config"
	"github.com/papercomputeco/polar/pkg/ingest"
	"github.com/papercomputeco/polar/pkg/logger"
)

var ingestFlagKeys = []string{
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
	config.FlagIngestWorkers,
}

type ingestCommander struct {
	flags struct {
		storage, sqlitePath, postgresDSN                   string
		embeddingProvider, embeddingTarget, embeddingModel string
		embeddingDims, ingestWorkers                       uint
	}

	path      string
	configDir string
	debug     bool
	viper     *viper.Viper
}

const ingestLongDesc string = `Load catalog items from a JSON Lines file.

Each line is one item:
  {"item_id":"v1","bias_score":-0.4,"embedding":[0.1,0.2],"title":"..."}

Items without an embedding are embedded from their "transcript" field using
the configured embedding provider. Items that are re-ingested replace the
stored metadata and embedding. Use "-" to read from stdin.

A running server picks the new items up on its next index rebuild.

Examples:
  polar ingest catalog.jsonl
  polar ingest catalog.jsonl --storage postgres --postgres postgres://...
  cat catalog.jsonl | polar ingest -`

const ingestShortDesc string = "Load catalog items from JSON Lines"

func NewIngestCmd() *cobra.Command {
	cmder := &ingestCommander{}

	cmd := &cobra.Command{
		Use:   "ingest <file.jsonl>",
		Short: ingestShortDesc,
		Long:  ingestLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			cmder.viper, err = config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(cmder.viper, cmd, config.ServeFlags, ingestFlagKeys)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.path = args[0]

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	f := &cmder.flags
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagStorageDriver, &f.storage)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagSQLite, &f.sqlitePath)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagPostgres, &f.postgresDSN)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingProv, &f.embeddingProvider)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingTgt, &f.embeddingTarget)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingModel, &f.embeddingModel)
	config.AddUintFlag(cmd, config.ServeFlags, config.FlagEmbeddingDims, &f.embeddingDims)
	config.AddUintFlag(cmd, config.ServeFlags, config.FlagIngestWorkers, &f.ingestWorkers)

	return cmd
}

func (c *ingestCommander) run(ctx context.Context, stdin io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.New(logger.WithDebug(c.debug), logger.WithPretty(true), logger.WithWriter(os.Stderr))

	in := stdin
	if c.path != "-" {
		f, err := os.Open(c.path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", c.path, err)
		}
		defer f.Close()
		in = f
	}

	driver, err := servecmder.NewStorageDriver(ctx, c.viper, c.configDir, log)
	if err != nil {
		return err
	}
	defer driver.Close()

	embedder, err := servecmder.NewEmbedder(c.viper, log)
	if err != nil {
		return err
	}
	if embedder != nil {
		defer embedder.Close()
	}

	dims, err := servecmder.ResolveDimensions(c.viper, driver)
	if err != nil {
		return err
	}

	pool, err := ingest.NewPool(&ingest.Config{
		Items:      driver,
		Embedder:   embedder,
		Dimensions: dims,
		NumWorkers: c.viper.GetUint("ingest.workers"),
		QueueSize:  c.viper.GetUint("ingest.queue_size"),
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("creating ingest pool: %w", err)
	}

	var read int
	err = cliui.Step(out, "Ingesting "+c.path, func() error {
		readErr := ingest.ReadJobs(in, func(job ingest.Job) error {
			read++
			return pool.Submit(ctx, job)
		})
		pool.Close()
		if readErr != nil {
			return readErr
		}
		if failed := pool.Stats().Failed; failed > 0 {
			return fmt.Errorf("%d of %d items failed", failed, read)
		}
		return nil
	})

	stats := pool.Stats()
	fmt.Fprintf(out, "\n  %s\n  %s\n\n",
		cliui.KeyValue("stored", fmt.Sprint(stats.Stored)),
		cliui.KeyValue("failed", fmt.Sprint(stats.Failed)),
	)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
