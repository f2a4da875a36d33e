package vector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/polar/pkg/logger"
	"github.com/papercomputeco/polar/pkg/metrics"
	"github.com/papercomputeco/polar/pkg/storage"
)

// ManagerConfig is the configuration for a Manager.
type ManagerConfig struct {
	// Items supplies the embedded catalog on each rebuild.
	Items storage.ItemStore

	// Factory creates the empty index for each generation.
	Factory Factory

	Logger *slog.Logger
}

// Stats describes the active index.
type Stats struct {
	Size       int       `json:"size"`
	Generation uint64    `json:"generation"`
	BuiltAt    time.Time `json:"built_at,omitzero"`
	Dirty      int64     `json:"dirty_changes"`
}

// generation is one immutable built index. refs starts at one for the
// manager's own reference; the index is closed when it drops to zero.
type generation struct {
	index   Index
	number  uint64
	builtAt time.Time
	refs    atomic.Int64
}

func (g *generation) tryRef() bool {
	for {
		n := g.refs.Load()
		if n <= 0 {
			return false
		}
		if g.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (g *generation) unref(log *slog.Logger) {
	if g.refs.Add(-1) == 0 {
		if err := g.index.Close(); err != nil {
			log.Warn("failed to close retired index", "generation", g.number, "error", err)
		}
	}
}

// Manager owns the active index. Searches run against an immutable
// generation; Rebuild builds a new generation and swaps it in, and the
// retired one is closed once its in-flight searches finish.
type Manager struct {
	items   storage.ItemStore
	factory Factory
	logger  *slog.Logger

	active atomic.Pointer[generation]
	dirty  atomic.Int64

	// rebuildMu serializes rebuilds.
	rebuildMu sync.Mutex
	next      uint64
	closed    bool
}

// NewManager creates a Manager with no active index.
func NewManager(c ManagerConfig) (*Manager, error) {
	if c.Items == nil || c.Factory == nil {
		return nil, errors.New("index manager requires an item store and an index factory")
	}
	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{items: c.Items, factory: c.Factory, logger: log}, nil
}

// Rebuild indexes every embedded item and makes the result active.
func (m *Manager) Rebuild(ctx context.Context) (Stats, error) {
	stats, err := m.rebuild(ctx)
	if err != nil {
		metrics.IndexRebuilds.WithLabelValues("error").Inc()
		return Stats{}, err
	}
	metrics.IndexRebuilds.WithLabelValues("ok").Inc()
	return stats, nil
}

func (m *Manager) rebuild(ctx context.Context) (Stats, error) {
	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()

	if m.closed {
		return Stats{}, ErrClosed
	}

	// Changes arriving during the build count toward the next one.
	pending := m.dirty.Load()

	items, err := m.items.Embedded(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("listing embedded items: %w", err)
	}
	docs := make([]Document, len(items))
	for i, it := range items {
		docs[i] = Document{ID: it.ID, Embedding: it.Embedding}
	}

	m.next++
	number := m.next
	idx, err := m.factory(ctx, number)
	if err != nil {
		return Stats{}, fmt.Errorf("creating index generation %d: %w", number, err)
	}
	if err := idx.Build(ctx, docs); err != nil {
		idx.Close()
		return Stats{}, fmt.Errorf("building index generation %d: %w", number, err)
	}

	g := &generation{index: idx, number: number, builtAt: time.Now().UTC()}
	g.refs.Store(1)
	if old := m.active.Swap(g); old != nil {
		old.unref(m.logger)
	}
	m.dirty.Add(-pending)

	metrics.IndexSize.Set(float64(idx.Len()))
	metrics.IndexGeneration.Set(float64(number))
	m.logger.Info("similarity index rebuilt", "generation", number, "size", idx.Len())

	return m.statsOf(g), nil
}

// acquire pins the active generation. The caller must unref it.
func (m *Manager) acquire() (*generation, error) {
	for {
		g := m.active.Load()
		if g == nil {
			return nil, ErrNotBuilt
		}
		if g.tryRef() {
			return g, nil
		}
		// g was retired between Load and tryRef; the swap already
		// published its replacement.
	}
}

// Search runs a nearest-neighbor query against the active generation.
func (m *Manager) Search(ctx context.Context, query []float32, k int, opts ...SearchOption) ([]QueryResult, error) {
	start := time.Now()
	results, err := m.search(ctx, query, k, opts...)
	metrics.SimilaritySearchLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SimilaritySearches.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.SimilaritySearches.WithLabelValues("ok").Inc()
	return results, nil
}

func (m *Manager) search(ctx context.Context, query []float32, k int, opts ...SearchOption) ([]QueryResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, k)
	}
	g, err := m.acquire()
	if err != nil {
		return nil, err
	}
	defer g.unref(m.logger)

	return g.index.Search(ctx, query, k, opts...)
}

// SimilarTo returns the k items nearest to the given catalog item, never
// including the item itself. Items missing from the catalog, or present
// without an embedding, yield storage.ErrNotFound.
func (m *Manager) SimilarTo(ctx context.Context, itemID string, k int) ([]QueryResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, k)
	}
	item, err := m.items.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !item.Embedded() {
		return nil, storage.NotFoundError{ID: itemID}
	}

	results, err := m.Search(ctx, item.Embedding, k, Exclude(itemID))
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNoOtherItems
	}
	return results, nil
}

// MarkDirty records n catalog changes since the last rebuild.
func (m *Manager) MarkDirty(n int) {
	m.dirty.Add(int64(n))
}

// Dirty returns the number of catalog changes since the last rebuild.
func (m *Manager) Dirty() int64 {
	return m.dirty.Load()
}

// Stats describes the active index. Before the first build it reports a
// zero generation.
func (m *Manager) Stats() Stats {
	g, err := m.acquire()
	if err != nil {
		return Stats{Dirty: m.dirty.Load()}
	}
	defer g.unref(m.logger)
	return m.statsOf(g)
}

func (m *Manager) statsOf(g *generation) Stats {
	return Stats{
		Size:       g.index.Len(),
		Generation: g.number,
		BuiltAt:    g.builtAt,
		Dirty:      m.dirty.Load(),
	}
}

// Close retires the active generation. In-flight searches finish first.
func (m *Manager) Close() error {
	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()

	m.closed = true
	if old := m.active.Swap(nil); old != nil {
		old.unref(m.logger)
	}
	return nil
}
