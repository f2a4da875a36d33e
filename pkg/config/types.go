package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent polar configuration stored as config.toml
// in the .polar/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	Feed        FeedConfig        `toml:"feed"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Ingest      IngestConfig      `toml:"ingest"`
}

// StorageConfig selects the catalog, user and visited-set backend.
type StorageConfig struct {
	// Driver is one of "inmemory", "sqlite" or "postgres".
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// API server (e.g. polar feed next, polar similar).
// Values are full URLs (scheme + host + port).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// FeedConfig holds feed selection settings.
type FeedConfig struct {
	PoolSize uint `toml:"pool_size,omitempty"`

	// RequestTimeout is a Go duration string applied to every feed and
	// similarity request served by the API.
	RequestTimeout string `toml:"request_timeout,omitempty"`
}

// Timeout parses RequestTimeout.
func (f FeedConfig) Timeout() (time.Duration, error) {
	return parseDuration("feed.request_timeout", f.RequestTimeout)
}

// VectorStoreConfig holds similarity index settings.
type VectorStoreConfig struct {
	// Provider is one of "flat", "sqlite-vec", "qdrant" or "pgvector".
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Collection string `toml:"collection,omitempty"`

	// Metric is "l2" or "cosine". It is fixed for the lifetime of a deployment.
	Metric string `toml:"metric,omitempty"`

	// Dimensions pins the embedding dimension. Zero infers it from the catalog.
	Dimensions uint `toml:"dimensions,omitempty"`

	RebuildInterval  string `toml:"rebuild_interval,omitempty"`
	RebuildThreshold uint   `toml:"rebuild_threshold,omitempty"`
}

// Interval parses RebuildInterval.
func (v VectorStoreConfig) Interval() (time.Duration, error) {
	return parseDuration("vector_store.rebuild_interval", v.RebuildInterval)
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`

	// KeepAlive asks the provider to keep the model loaded, e.g. "10m".
	KeepAlive string `toml:"keep_alive,omitempty"`
}

// EventStreamConfig holds feed event publishing settings.
type EventStreamConfig struct {
	// Provider is "nop" or "kafka".
	Provider string `toml:"provider,omitempty"`

	// Brokers is a comma separated list of host:port pairs.
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic,omitempty"`
}

// IngestConfig holds ingestion worker pool settings.
type IngestConfig struct {
	Workers   uint `toml:"workers,omitempty"`
	QueueSize uint `toml:"queue_size,omitempty"`
}

func parseDuration(key, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return d, nil
}

// configKey is one user-facing dotted key bound to a field of Config.
// value exposes the typed field for viper defaults.
type configKey struct {
	name  string
	get   func(c *Config) string
	set   func(c *Config, v string) error
	value func(c *Config) any
}

func stringKey(name string, field func(c *Config) *string) configKey {
	return configKey{
		name:  name,
		get:   func(c *Config) string { return *field(c) },
		set:   func(c *Config, v string) error { *field(c) = v; return nil },
		value: func(c *Config) any { return *field(c) },
	}
}

func oneOfKey(name string, field func(c *Config) *string, allowed ...string) configKey {
	k := stringKey(name, field)
	k.set = func(c *Config, v string) error {
		if !slices.Contains(allowed, v) {
			return fmt.Errorf("invalid value for %s: %q (expected %s)", name, v, strings.Join(allowed, " or "))
		}
		*field(c) = v
		return nil
	}
	return k
}

func durationKey(name string, field func(c *Config) *string) configKey {
	k := stringKey(name, field)
	k.set = func(c *Config, v string) error {
		if _, err := parseDuration(name, v); err != nil {
			return err
		}
		*field(c) = v
		return nil
	}
	return k
}

func uintKey(name string, field func(c *Config) *uint) configKey {
	return configKey{
		name: name,
		get: func(c *Config) string {
			if n := *field(c); n != 0 {
				return strconv.FormatUint(uint64(n), 10)
			}
			return ""
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
		value: func(c *Config) any { return *field(c) },
	}
}

// configKeys lists every supported key in the order of the TOML sections.
var configKeys = []configKey{
	oneOfKey("storage.driver", func(c *Config) *string { return &c.Storage.Driver }, "inmemory", "sqlite", "postgres"),
	stringKey("storage.sqlite_path", func(c *Config) *string { return &c.Storage.SQLitePath }),
	stringKey("storage.postgres_dsn", func(c *Config) *string { return &c.Storage.PostgresDSN }),
	stringKey("api.listen", func(c *Config) *string { return &c.API.Listen }),
	stringKey("client.api_target", func(c *Config) *string { return &c.Client.APITarget }),
	uintKey("feed.pool_size", func(c *Config) *uint { return &c.Feed.PoolSize }),
	durationKey("feed.request_timeout", func(c *Config) *string { return &c.Feed.RequestTimeout }),

	oneOfKey("vector_store.provider", func(c *Config) *string { return &c.VectorStore.Provider }, "flat", "sqlite-vec", "qdrant", "pgvector"),
	stringKey("vector_store.target", func(c *Config) *string { return &c.VectorStore.Target }),
	stringKey("vector_store.collection", func(c *Config) *string { return &c.VectorStore.Collection }),
	oneOfKey("vector_store.metric", func(c *Config) *string { return &c.VectorStore.Metric }, "l2", "cosine"),
	uintKey("vector_store.dimensions", func(c *Config) *uint { return &c.VectorStore.Dimensions }),
	durationKey("vector_store.rebuild_interval", func(c *Config) *string { return &c.VectorStore.RebuildInterval }),
	uintKey("vector_store.rebuild_threshold", func(c *Config) *uint { return &c.VectorStore.RebuildThreshold }),

	stringKey("embedding.provider", func(c *Config) *string { return &c.Embedding.Provider }),
	stringKey("embedding.target", func(c *Config) *string { return &c.Embedding.Target }),
	stringKey("embedding.model", func(c *Config) *string { return &c.Embedding.Model }),
	uintKey("embedding.dimensions", func(c *Config) *uint { return &c.Embedding.Dimensions }),
	stringKey("embedding.keep_alive", func(c *Config) *string { return &c.Embedding.KeepAlive }),

	oneOfKey("eventstream.provider", func(c *Config) *string { return &c.EventStream.Provider }, "nop", "kafka"),
	stringKey("eventstream.brokers", func(c *Config) *string { return &c.EventStream.Brokers }),
	stringKey("eventstream.topic", func(c *Config) *string { return &c.EventStream.Topic }),

	uintKey("ingest.workers", func(c *Config) *uint { return &c.Ingest.Workers }),
	uintKey("ingest.queue_size", func(c *Config) *uint { return &c.Ingest.QueueSize }),
}

func lookupKey(name string) (configKey, bool) {
	for _, k := range configKeys {
		if k.name == name {
			return k, true
		}
	}
	return configKey{}, false
}
