// Package vector provides nearest-neighbor indexes over item embeddings.
package vector

import "context"

// Document is an item embedding to index. Insertion order breaks distance
// ties at search time.
type Document struct {
	ID        string
	Embedding []float32
}

// QueryResult is a search hit. Distance is smaller for closer documents and
// is expressed in the index's Metric.
type QueryResult struct {
	ID       string  `json:"item_id"`
	Distance float64 `json:"distance"`
}

// Index is a nearest-neighbor structure over fixed-dimension vectors.
// Implementations are safe for concurrent Search calls once Build returns.
type Index interface {
	// Build replaces the indexed documents. Every embedding must share one
	// dimension, else ErrDimensionMismatch.
	Build(ctx context.Context, docs []Document) error

	// Search returns up to k documents nearest to query ordered by distance
	// ascending, ties broken by insertion order.
	Search(ctx context.Context, query []float32, k int, opts ...SearchOption) ([]QueryResult, error)

	// Len returns the number of indexed documents.
	Len() int

	// Close releases any resources held by the index.
	Close() error
}

// Factory creates an empty index for the given generation. Backends that
// keep state outside the process namespace it by generation so that an
// index being built never touches the one being searched.
type Factory func(ctx context.Context, generation uint64) (Index, error)
