package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag describes one CLI flag and the config key it feeds. Commands look
// flags up by registry key so a flag shared by several commands, such as
// --api-target, has one name, shorthand and help text everywhere.
type Flag struct {
	Name        string
	Shorthand   string
	ViperKey    string
	Description string
}

// FlagSet maps registry keys to flag definitions.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagAPIListen       = "api-listen"
	FlagAPITarget       = "api-target"
	FlagStorageDriver   = "storage-driver"
	FlagSQLite          = "sqlite"
	FlagPostgres        = "postgres"
	FlagPoolSize        = "pool-size"
	FlagRequestTimeout  = "request-timeout"
	FlagVectorStoreProv = "vector-store-provider"
	FlagVectorStoreTgt  = "vector-store-target"
	FlagVectorMetric    = "vector-metric"
	FlagVectorDims      = "vector-dimensions"
	FlagEmbeddingProv   = "embedding-provider"
	FlagEmbeddingTgt    = "embedding-target"
	FlagEmbeddingModel  = "embedding-model"
	FlagEmbeddingDims   = "embedding-dimensions"
	FlagEventStreamProv = "eventstream-provider"
	FlagEventBrokers    = "eventstream-brokers"
	FlagIngestWorkers   = "ingest-workers"
)

// ServeFlags is the registry used by "polar serve".
var ServeFlags = FlagSet{
	FlagAPIListen:       {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for the API server to listen on"},
	FlagStorageDriver:   {Name: "storage", ViperKey: "storage.driver", Description: "Storage driver (inmemory, sqlite, postgres)"},
	FlagSQLite:          {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to SQLite database"},
	FlagPostgres:        {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string"},
	FlagPoolSize:        {Name: "pool-size", ViperKey: "feed.pool_size", Description: "Number of candidates drawn per feed selection"},
	FlagRequestTimeout:  {Name: "request-timeout", ViperKey: "feed.request_timeout", Description: "Deadline applied to feed and similarity requests"},
	FlagVectorStoreProv: {Name: "vector-store-provider", ViperKey: "vector_store.provider", Description: "Similarity index provider (flat, sqlite-vec, qdrant, pgvector)"},
	FlagVectorStoreTgt:  {Name: "vector-store-target", ViperKey: "vector_store.target", Description: "Similarity index target (path, host:port or DSN)"},
	FlagVectorMetric:    {Name: "vector-metric", ViperKey: "vector_store.metric", Description: "Similarity metric (l2, cosine)"},
	FlagVectorDims:      {Name: "vector-dimensions", ViperKey: "vector_store.dimensions", Description: "Embedding dimension enforced by the index (0 infers)"},
	FlagEmbeddingProv:   {Name: "embedding-provider", ViperKey: "embedding.provider", Description: "Embedding provider for transcripts and search queries"},
	FlagEmbeddingTgt:    {Name: "embedding-target", ViperKey: "embedding.target", Description: "Embedding provider URL"},
	FlagEmbeddingModel:  {Name: "embedding-model", ViperKey: "embedding.model", Description: "Embedding model name"},
	FlagEmbeddingDims:   {Name: "embedding-dimensions", ViperKey: "embedding.dimensions", Description: "Embedding dimensions"},
	FlagEventStreamProv: {Name: "eventstream-provider", ViperKey: "eventstream.provider", Description: "Feed event publisher (nop, kafka)"},
	FlagEventBrokers:    {Name: "eventstream-brokers", ViperKey: "eventstream.brokers", Description: "Comma separated Kafka brokers"},
	FlagIngestWorkers:   {Name: "ingest-workers", ViperKey: "ingest.workers", Description: "Number of ingestion workers"},
}

// ClientFlags is the registry used by commands that talk to a running API server.
var ClientFlags = FlagSet{
	FlagAPITarget: {Name: "api-target", Shorthand: "a", ViperKey: "client.api_target", Description: "Polar API server URL"},
}

// AddStringFlag registers the string flag for key on cmd. The default is the
// built-in config value for the flag's viper key.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	if def, ok := fs[key]; ok {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaults().GetString(def.ViperKey), def.Description)
	}
}

// AddUintFlag registers the uint flag for key on cmd.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, key string, target *uint) {
	if def, ok := fs[key]; ok {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaults().GetUint(def.ViperKey), def.Description)
	}
}

// BindRegisteredFlags connects flags already registered on cmd to their
// viper keys so an explicitly set flag wins over env, file and defaults.
// Unknown keys and unregistered flags are ignored.
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, keys []string) {
	for _, key := range keys {
		def, ok := fs[key]
		if !ok {
			continue
		}
		if f := cmd.Flags().Lookup(def.Name); f != nil {
			_ = v.BindPFlag(def.ViperKey, f)
		}
	}
}

func defaults() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
}
