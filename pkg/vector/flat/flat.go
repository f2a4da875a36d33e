// Package flat provides an exact, in-process vector index that scans every
// document on each search.
package flat

import (
	"context"
	"slices"
	"sync"

	"github.com/papercomputeco/polar/pkg/vector"
)

// ctxCheckEvery is how many documents are scored between context checks.
const ctxCheckEvery = 1024

// Config holds configuration for a flat index.
type Config struct {
	Metric vector.Metric

	// Dimensions pins the vector length when non-zero. Otherwise it is taken
	// from the first document of each build.
	Dimensions int
}

// Index implements vector.Index with a brute-force scan.
type Index struct {
	metric vector.Metric
	want   int

	mu   sync.RWMutex
	docs []vector.Document
	dims int
}

// New creates an empty flat index.
func New(c Config) *Index {
	metric := c.Metric
	if metric == "" {
		metric = vector.MetricL2
	}
	return &Index{metric: metric, want: c.Dimensions, dims: c.Dimensions}
}

// NewFactory returns a vector.Factory producing flat indexes.
func NewFactory(c Config) vector.Factory {
	return func(context.Context, uint64) (vector.Index, error) {
		return New(c), nil
	}
}

// Build replaces the indexed documents.
func (x *Index) Build(_ context.Context, docs []vector.Document) error {
	dims, err := vector.ValidateDocuments(docs, x.want)
	if err != nil {
		return err
	}

	stored := make([]vector.Document, len(docs))
	for i, d := range docs {
		stored[i] = vector.Document{ID: d.ID, Embedding: slices.Clone(d.Embedding)}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.docs = stored
	x.dims = dims
	return nil
}

// Search scans every document.
func (x *Index) Search(ctx context.Context, query []float32, k int, opts ...vector.SearchOption) ([]vector.QueryResult, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if err := vector.ValidateQuery(query, k, x.dims); err != nil {
		return nil, err
	}
	o := vector.ApplySearchOptions(opts...)

	hits := make([]vector.Ranked, 0, len(x.docs))
	for i, d := range x.docs {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if o.Excluded(d.ID) {
			continue
		}
		hits = append(hits, vector.Ranked{
			QueryResult: vector.QueryResult{ID: d.ID, Distance: x.metric.Distance(query, d.Embedding)},
			Seq:         int64(i),
		})
	}
	return vector.Rank(hits, k, o), nil
}

// Len returns the number of indexed documents.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.docs)
}

// Close drops the indexed documents.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.docs = nil
	return nil
}
