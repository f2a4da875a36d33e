package config

const (
	defaultStorageDriver   = "sqlite"
	defaultAPIListen       = ":8081"
	defaultClientAPITarget = "http://localhost:8081"

	defaultFeedPoolSize       = 10
	defaultFeedRequestTimeout = "5s"

	defaultVectorProvider         = "flat"
	defaultVectorCollection       = "polar_items"
	defaultVectorMetric           = "l2"
	defaultVectorRebuildInterval  = "30s"
	defaultVectorRebuildThreshold = 1

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingDimensions = 768

	defaultEventStreamProvider = "nop"
	defaultEventStreamTopic    = "polar.feed.served"

	defaultIngestWorkers   = 3
	defaultIngestQueueSize = 256
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		Feed: FeedConfig{
			PoolSize:       defaultFeedPoolSize,
			RequestTimeout: defaultFeedRequestTimeout,
		},
		VectorStore: VectorStoreConfig{
			Provider:         defaultVectorProvider,
			Collection:       defaultVectorCollection,
			Metric:           defaultVectorMetric,
			RebuildInterval:  defaultVectorRebuildInterval,
			RebuildThreshold: defaultVectorRebuildThreshold,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
		Ingest: IngestConfig{
			Workers:   defaultIngestWorkers,
			QueueSize: defaultIngestQueueSize,
		},
	}
}
