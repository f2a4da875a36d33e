// Package qdrant provides a vector index backed by a Qdrant collection.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/polar/pkg/logger"
	"github.com/papercomputeco/polar/pkg/vector"
)

const (
	// DefaultCollection is the collection name prefix used when none is
	// configured.
	DefaultCollection = "polar_items"

	upsertBatchSize = 256
	docIDField      = "doc_id"
)

// Config holds configuration for a Qdrant index.
type Config struct {
	// Target is the gRPC endpoint as host:port.
	Target string
	APIKey string
	UseTLS bool

	// Collection prefixes the per-generation collections.
	Collection string

	Metric     vector.Metric
	Dimensions int

	Logger *slog.Logger
}

// Index implements vector.Index on one Qdrant collection per generation.
// Point ids are 1-based insertion positions.
type Index struct {
	client     *qdrant.Client
	logger     *slog.Logger
	metric     vector.Metric
	want       int
	collection string

	mu      sync.RWMutex
	dims    int
	count   int
	created bool
}

// New connects to Qdrant. The collection is created by Build.
func New(c Config, generation uint64) (*Index, error) {
	host, port, err := splitTarget(c.Target)
	if err != nil {
		return nil, err
	}
	prefix := c.Collection
	if prefix == "" {
		prefix = DefaultCollection
	}
	metric := c.Metric
	if metric == "" {
		metric = vector.MetricL2
	}
	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	return &Index{
		client:     client,
		logger:     log,
		metric:     metric,
		want:       c.Dimensions,
		dims:       c.Dimensions,
		collection: fmt.Sprintf("%s_g%d", prefix, generation),
	}, nil
}

// NewFactory returns a vector.Factory producing Qdrant indexes.
func NewFactory(c Config) vector.Factory {
	return func(_ context.Context, generation uint64) (vector.Index, error) {
		return New(c, generation)
	}
}

// Build recreates the generation's collection and upserts docs in batches.
func (x *Index) Build(ctx context.Context, docs []vector.Document) error {
	dims, err := vector.ValidateDocuments(docs, x.want)
	if err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.dropCollection(ctx); err != nil {
		return err
	}

	if dims > 0 {
		distance := qdrant.Distance_Euclid
		if x.metric == vector.MetricCosine {
			distance = qdrant.Distance_Cosine
		}
		if err := x.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: x.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dims),
				Distance: distance,
			}),
		}); err != nil {
			return fmt.Errorf("creating collection %s: %w", x.collection, err)
		}
		x.created = true

		wait := true
		for start := 0; start < len(docs); start += upsertBatchSize {
			end := min(start+upsertBatchSize, len(docs))
			points := make([]*qdrant.PointStruct, 0, end-start)
			for i := start; i < end; i++ {
				points = append(points, &qdrant.PointStruct{
					Id:      qdrant.NewIDNum(uint64(i + 1)),
					Vectors: qdrant.NewVectors(docs[i].Embedding...),
					Payload: qdrant.NewValueMap(map[string]any{docIDField: docs[i].ID}),
				})
			}
			if _, err := x.client.Upsert(ctx, &qdrant.UpsertPoints{
				CollectionName: x.collection,
				Wait:           &wait,
				Points:         points,
			}); err != nil {
				return fmt.Errorf("upserting points into %s: %w", x.collection, err)
			}
		}
	}

	x.dims = dims
	x.count = len(docs)

	x.logger.Debug("built qdrant index", "collection", x.collection, "count", len(docs), "dimensions", dims)
	return nil
}

// Search queries the collection and ranks the hits locally.
func (x *Index) Search(ctx context.Context, query []float32, k int, opts ...vector.SearchOption) ([]vector.QueryResult, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if err := vector.ValidateQuery(query, k, x.dims); err != nil {
		return nil, err
	}
	if !x.created || x.count == 0 {
		return []vector.QueryResult{}, nil
	}
	o := vector.ApplySearchOptions(opts...)

	limit := uint64(k + o.ExcludedCount())
	points, err := x.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: x.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", x.collection, err)
	}

	hits := make([]vector.Ranked, 0, len(points))
	for _, p := range points {
		score := float64(p.GetScore())
		distance := vector.FromEuclidean(score)
		if x.metric == vector.MetricCosine {
			distance = vector.FromCosineSimilarity(score)
		}
		hits = append(hits, vector.Ranked{
			QueryResult: vector.QueryResult{
				ID:       p.GetPayload()[docIDField].GetStringValue(),
				Distance: distance,
			},
			Seq: int64(p.GetId().GetNum()),
		})
	}
	return vector.Rank(hits, k, o), nil
}

// Len returns the number of indexed documents.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.count
}

// Close deletes the generation's collection and closes the connection.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	err := x.dropCollection(context.Background())
	x.count = 0
	return errors.Join(err, x.client.Close())
}

func (x *Index) dropCollection(ctx context.Context) error {
	exists, err := x.client.CollectionExists(ctx, x.collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", x.collection, err)
	}
	if !exists {
		return nil
	}
	if err := x.client.DeleteCollection(ctx, x.collection); err != nil {
		return fmt.Errorf("deleting collection %s: %w", x.collection, err)
	}
	x.created = false
	return nil
}

func splitTarget(target string) (string, int, error) {
	if target == "" {
		return "", 0, errors.New("qdrant target is required")
	}
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return "", 0, fmt.Errorf("invalid qdrant target %q: %w", target, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid qdrant port %q: %w", portStr, err)
	}
	return host, port, nil
}
