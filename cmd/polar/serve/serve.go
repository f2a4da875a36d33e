// Package servecmder provides the serve command that runs the polar API server.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/polar/api"
	"github.com/papercomputeco/polar/pkg/config"
	"github.com/papercomputeco/polar/pkg/dotdir"
	"github.com/papercomputeco/polar/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/polar/pkg/embeddings/utils"
	eventstreamutils "github.com/papercomputeco/polar/pkg/eventstream/utils"
	"github.com/papercomputeco/polar/pkg/feed"
	"github.com/papercomputeco/polar/pkg/ingest"
	"github.com/papercomputeco/polar/pkg/logger"
	"github.com/papercomputeco/polar/pkg/storage"
	storageutils "github.com/papercomputeco/polar/pkg/storage/utils"
	"github.com/papercomputeco/polar/pkg/vector"
	vectorutils "github.com/papercomputeco/polar/pkg/vector/utils"
)

const vecDBFile = "polar-vec.sqlite"

// serveFlagKeys lists every registry key "polar serve" binds.
var serveFlagKeys = []string{
	config.FlagAPIListen,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagPoolSize,
	config.FlagRequestTimeout,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagVectorMetric,
	config.FlagVectorDims,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
	config.FlagEventStreamProv,
	config.FlagEventBrokers,
	config.FlagIngestWorkers,
}

type ServeCommander struct {
	flags struct {
		listen, storage, sqlitePath, postgresDSN, requestTimeout string
		vectorProvider, vectorTarget, vectorMetric               string
		embeddingProvider, embeddingTarget, embeddingModel       string
		eventProvider, eventBrokers                              string
		poolSize, vectorDims, embeddingDims, ingestWorkers       uint
	}

	configDir string
	logFile   string
	debug     bool
	viper     *viper.Viper
	logger    *slog.Logger
}

const serveLongDesc string = `Run the Polar API server.

The server serves feeds, similarity lookups and catalog writes over HTTP:
  GET  /v1/feed/next?user=<id>     Next balanced item for a user
  POST /v1/feed/reset?user=<id>    Forget what a user has seen
  GET  /v1/similar/<item-id>?k=5   Nearest items to an item
  GET  /v1/search?query=<text>     Nearest items to free text
  PUT  /v1/items/<item-id>         Queue an item for ingestion
  POST /v1/index/rebuild           Rebuild the similarity index
  GET  /metrics                    Prometheus metrics

Settings come from flags, POLAR_* environment variables, config.toml in the
.polar/ directory and built-in defaults, in that order.`

const serveShortDesc string = "Run the Polar API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			cmder.viper, err = config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(cmder.viper, cmd, config.ServeFlags, serveFlagKeys)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd.Context())
		},
	}

	f := &cmder.flags
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagAPIListen, &f.listen)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagStorageDriver, &f.storage)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagSQLite, &f.sqlitePath)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagPostgres, &f.postgresDSN)
	config.AddUintFlag(cmd, config.ServeFlags, config.FlagPoolSize, &f.poolSize)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagRequestTimeout, &f.requestTimeout)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagVectorStoreProv, &f.vectorProvider)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagVectorStoreTgt, &f.vectorTarget)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagVectorMetric, &f.vectorMetric)
	config.AddUintFlag(cmd, config.ServeFlags, config.FlagVectorDims, &f.vectorDims)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingProv, &f.embeddingProvider)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingTgt, &f.embeddingTarget)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingModel, &f.embeddingModel)
	config.AddUintFlag(cmd, config.ServeFlags, config.FlagEmbeddingDims, &f.embeddingDims)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEventStreamProv, &f.eventProvider)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEventBrokers, &f.eventBrokers)
	config.AddUintFlag(cmd, config.ServeFlags, config.FlagIngestWorkers, &f.ingestWorkers)
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")

	return cmd
}

func (c *ServeCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	closeLog, err := c.setupLogger()
	if err != nil {
		return err
	}
	defer closeLog()
	v := c.viper

	driver, err := NewStorageDriver(ctx, v, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer driver.Close()

	publisher, err := eventstreamutils.NewPublisher(&eventstreamutils.NewPublisherOpts{
		ProviderType: v.GetString("eventstream.provider"),
		Brokers:      v.GetString("eventstream.brokers"),
		Topic:        v.GetString("eventstream.topic"),
		Logger:       c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating event publisher: %w", err)
	}
	defer publisher.Close()

	selector, err := feed.NewSelector(feed.Config{
		Items:     driver,
		Users:     driver,
		Visited:   driver,
		Publisher: publisher,
		Logger:    c.logger,
		PoolSize:  v.GetInt("feed.pool_size"),
	})
	if err != nil {
		return fmt.Errorf("creating feed selector: %w", err)
	}

	embedder, err := NewEmbedder(v, c.logger)
	if err != nil {
		return err
	}
	if embedder != nil {
		defer embedder.Close()
	}

	dims, err := ResolveDimensions(v, driver)
	if err != nil {
		return err
	}
	factory, err := c.newVectorFactory(dims)
	if err != nil {
		return err
	}
	index, err := vector.NewManager(vector.ManagerConfig{
		Items:   driver,
		Factory: factory,
		Logger:  c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating similarity index: %w", err)
	}
	defer index.Close()

	// The server starts even without an index; the refresher retries.
	if _, err := index.Rebuild(ctx); err != nil {
		c.logger.Warn("initial index build failed", "error", err)
		index.MarkDirty(1)
	}

	interval, err := config.VectorStoreConfig{RebuildInterval: v.GetString("vector_store.rebuild_interval")}.Interval()
	if err != nil {
		return err
	}
	refresher := vector.NewRefresher(vector.RefresherConfig{
		Manager:   index,
		Interval:  interval,
		Threshold: v.GetInt64("vector_store.rebuild_threshold"),
		Logger:    c.logger,
	})
	refresher.Start(ctx)
	defer refresher.Stop()

	pool, err := ingest.NewPool(&ingest.Config{
		Items:      driver,
		Embedder:   embedder,
		Dimensions: dims,
		OnStored:   func(string) { index.MarkDirty(1) },
		NumWorkers: v.GetUint("ingest.workers"),
		QueueSize:  v.GetUint("ingest.queue_size"),
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating ingest pool: %w", err)
	}
	defer pool.Close()

	timeout, err := config.FeedConfig{RequestTimeout: v.GetString("feed.request_timeout")}.Timeout()
	if err != nil {
		return err
	}

	server, err := api.NewServer(api.Config{
		ListenAddr:     v.GetString("api.listen"),
		RequestTimeout: timeout,
		Selector:       selector,
		Index:          index,
		Embedder:       embedder,
		Ingest:         pool,
	}, driver, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		c.logger.Info("received signal, shutting down")
	}

	if err := server.Shutdown(); err != nil {
		c.logger.Error("API server shutdown failed", "error", err)
	}
	return nil
}

// setupLogger builds the console logger and, with --log-file, tees records
// into a JSON file as well.
func (c *ServeCommander) setupLogger() (func(), error) {
	console := logger.New(logger.WithDebug(c.debug), logger.WithPretty(true))
	if c.logFile == "" {
		c.logger = console
		return func() {}, nil
	}

	file, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	c.logger = logger.Multi(console, logger.New(
		logger.WithWriter(file),
		logger.WithJSON(true),
		logger.WithDebug(c.debug),
		logger.WithSource(c.debug),
	))
	return func() { _ = file.Close() }, nil
}

func (c *ServeCommander) newVectorFactory(dims uint) (vector.Factory, error) {
	v := c.viper
	provider := v.GetString("vector_store.provider")
	target := v.GetString("vector_store.target")

	if target == "" {
		switch provider {
		case vectorutils.ProviderSQLiteVec:
			dir, err := dotdir.NewManager().Target(c.configDir)
			if err != nil {
				return nil, fmt.Errorf("resolving polar directory: %w", err)
			}
			target = filepath.Join(dir, vecDBFile)
		case vectorutils.ProviderPgvector:
			target = v.GetString("storage.postgres_dsn")
		}
	}

	factory, err := vectorutils.NewFactory(&vectorutils.NewFactoryOpts{
		ProviderType: provider,
		Target:       target,
		Collection:   v.GetString("vector_store.collection"),
		Metric:       v.GetString("vector_store.metric"),
		Dimensions:   dims,
		Logger:       c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}
	c.logger.Info("using vector store", "provider", provider, "dimensions", dims)
	return factory, nil
}

// ResolveDimensions returns vector_store.dimensions, or the dimension of the
// first embedded item when unset. Zero leaves the index to learn it from its
// first build and lets ingestion accept any length.
func ResolveDimensions(v *viper.Viper, items storage.ItemStore) (uint, error) {
	if dims := v.GetUint("vector_store.dimensions"); dims != 0 {
		return dims, nil
	}

	embedded, err := items.Embedded(context.Background())
	if err != nil {
		return 0, fmt.Errorf("inferring embedding dimensions: %w", err)
	}
	if len(embedded) == 0 {
		return 0, nil
	}
	return uint(len(embedded[0].Embedding)), nil
}

// NewStorageDriver opens the storage backend selected by the storage.* keys.
// The sqlite database defaults to polar.sqlite in the .polar/ directory.
func NewStorageDriver(ctx context.Context, v *viper.Viper, configDir string, log *slog.Logger) (storage.Driver, error) {
	opts := &storageutils.NewDriverOpts{
		DriverType:  v.GetString("storage.driver"),
		SQLitePath:  v.GetString("storage.sqlite_path"),
		PostgresDSN: v.GetString("storage.postgres_dsn"),
	}

	if opts.DriverType == storageutils.DriverSQLite && opts.SQLitePath == "" {
		dir, err := dotdir.NewManager().Target(configDir)
		if err != nil {
			return nil, fmt.Errorf("resolving polar directory: %w", err)
		}
		opts.SQLitePath = dotdir.SQLitePath("", dir)
	}

	driver, err := storageutils.NewDriver(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("creating storage driver: %w", err)
	}

	switch opts.DriverType {
	case storageutils.DriverSQLite:
		log.Info("using SQLite storage", "path", opts.SQLitePath)
	case storageutils.DriverPostgres:
		log.Info("using PostgreSQL storage")
	default:
		log.Info("using in-memory storage")
	}
	return driver, nil
}

// NewEmbedder builds the embedder selected by the embedding.* keys. It
// returns nil when the provider is "none".
func NewEmbedder(v *viper.Viper, log *slog.Logger) (embeddings.Embedder, error) {
	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: v.GetString("embedding.provider"),
		TargetURL:    v.GetString("embedding.target"),
		Model:        v.GetString("embedding.model"),
		Dimensions:   v.GetUint("embedding.dimensions"),
		KeepAlive:    v.GetString("embedding.keep_alive"),
		Logger:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	if embedder == nil {
		log.Info("embedding disabled; text search and transcript ingestion are unavailable")
	}
	return embedder, nil
}
