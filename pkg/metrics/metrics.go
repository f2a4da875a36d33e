// Package metrics holds the Prometheus collectors for feed selection,
// similarity search, index rebuilds and ingestion.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Feed selection outcomes used as the "outcome" label.
const (
	OutcomeSelected     = "selected"
	OutcomeExhausted    = "exhausted"
	OutcomeNoCandidates = "no_candidates"
	OutcomeConflict     = "conflict"
	OutcomeError        = "error"
)

var (
	// FeedSelections counts SelectNext calls by outcome.
	FeedSelections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polar_feed_selections_total",
		Help: "Total number of feed selections by outcome",
	}, []string{"outcome"})

	// FeedSelectionLatency measures SelectNext latency including the commit.
	FeedSelectionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polar_feed_selection_latency_seconds",
		Help:    "Feed selection latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// FeedPoolSize observes the number of candidates drawn per selection.
	FeedPoolSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polar_feed_pool_size",
		Help:    "Number of candidates drawn per feed selection",
		Buckets: []float64{1, 2, 3, 5, 8, 10, 20, 50},
	})

	// EventPublishFailures counts feed events that could not be published.
	EventPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polar_event_publish_failures_total",
		Help: "Total number of feed events that failed to publish",
	})

	// SimilaritySearches counts index searches by result ("ok" or "error").
	SimilaritySearches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polar_similarity_searches_total",
		Help: "Total number of similarity searches by result",
	}, []string{"result"})

	// SimilaritySearchLatency measures index search latency.
	SimilaritySearchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polar_similarity_search_latency_seconds",
		Help:    "Similarity search latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// IndexRebuilds counts index rebuilds by result ("ok" or "error").
	IndexRebuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polar_index_rebuilds_total",
		Help: "Total number of similarity index rebuilds by result",
	}, []string{"result"})

	// IndexSize is the number of documents in the active index generation.
	IndexSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polar_index_documents",
		Help: "Number of documents in the active similarity index",
	})

	// IndexGeneration is the generation number of the active index.
	IndexGeneration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polar_index_generation",
		Help: "Generation number of the active similarity index",
	})

	// IngestJobs counts ingestion jobs by result ("ok", "error" or "dropped").
	IngestJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polar_ingest_jobs_total",
		Help: "Total number of ingestion jobs by result",
	}, []string{"result"})

	// EmbedderBreakerState is 1 while the embedder circuit breaker is open.
	EmbedderBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polar_embedder_breaker_open",
		Help: "Whether the embedding circuit breaker is open (1) or not (0)",
	})
)
