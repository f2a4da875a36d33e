// Package api provides the HTTP API for feeds, similarity search and catalog
// administration.
package api

import (
	"time"

	"github.com/papercomputeco/polar/pkg/embeddings"
	"github.com/papercomputeco/polar/pkg/feed"
	"github.com/papercomputeco/polar/pkg/ingest"
	"github.com/papercomputeco/polar/pkg/vector"
)

// DefaultRequestTimeout bounds each request when Config.RequestTimeout is zero.
const DefaultRequestTimeout = 5 * time.Second

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// RequestTimeout is the deadline given to feed and search operations.
	RequestTimeout time.Duration

	// Selector serves feeds. Required.
	Selector *feed.Selector

	// Index answers similarity queries. Similarity and index routes return
	// 503 without it.
	Index *vector.Manager

	// Embedder turns search text into a query vector. Text search returns
	// 503 without it.
	Embedder embeddings.Embedder

	// Ingest accepts catalog writes. Item writes return 503 without it.
	Ingest *ingest.Pool
}
