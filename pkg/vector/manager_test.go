package vector_test

import (
	"context"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/polar/pkg/storage"
	"github.com/papercomputeco/polar/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/polar/pkg/utils/test"
	"github.com/papercomputeco/polar/pkg/vector"
	"github.com/papercomputeco/polar/pkg/vector/flat"
)

// trackedIndex wraps a flat index, records Close, and can hold searches
// until released.
type trackedIndex struct {
	*flat.Index
	closed  atomic.Bool
	gate    chan struct{}
	entered chan struct{}
}

func (t *trackedIndex) Search(ctx context.Context, q []float32, k int, opts ...vector.SearchOption) ([]vector.QueryResult, error) {
	if t.gate != nil {
		close(t.entered)
		<-t.gate
	}
	return t.Index.Search(ctx, q, k, opts...)
}

func (t *trackedIndex) Close() error {
	t.closed.Store(true)
	return t.Index.Close()
}

var _ = Describe("Manager", func() {
	var (
		ctx     context.Context
		items   *inmemory.Driver
		manager *vector.Manager
		built   []*trackedIndex
		mu      sync.Mutex
		gateNew bool
	)

	factory := func(context.Context, uint64) (vector.Index, error) {
		mu.Lock()
		defer mu.Unlock()
		t := &trackedIndex{Index: flat.New(flat.Config{})}
		if gateNew {
			t.gate = make(chan struct{})
			t.entered = make(chan struct{})
		}
		built = append(built, t)
		return t, nil
	}

	seed := func(its ...*storage.Item) {
		for _, it := range its {
			Expect(items.Upsert(ctx, it)).To(Succeed())
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		items = inmemory.NewDriver()
		built = nil
		gateNew = false

		var err error
		manager, err = vector.NewManager(vector.ManagerConfig{Items: items, Factory: factory})
		Expect(err).NotTo(HaveOccurred())

		seed(
			testutils.NewTestItem("A", 0.1, 0, 0),
			testutils.NewTestItem("B", 0.2, 1, 0),
			testutils.NewTestItem("C", 0.3, 5, 5),
		)
	})

	It("requires an item store and a factory", func() {
		_, err := vector.NewManager(vector.ManagerConfig{})
		Expect(err).To(HaveOccurred())
	})

	It("reports ErrNotBuilt before the first rebuild", func() {
		_, err := manager.Search(ctx, []float32{0, 0}, 1)
		Expect(err).To(MatchError(vector.ErrNotBuilt))
		Expect(manager.Stats().Generation).To(BeZero())
	})

	It("indexes only embedded items", func() {
		seed(testutils.NewTestItem("pending", 0))

		stats, err := manager.Rebuild(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.Size).To(Equal(3))
		Expect(stats.Generation).To(Equal(uint64(1)))
		Expect(stats.BuiltAt).NotTo(BeZero())
	})

	Describe("SimilarTo", func() {
		BeforeEach(func() {
			_, err := manager.Rebuild(ctx)
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns the nearest other items", func() {
			results, err := manager.SimilarTo(ctx, "A", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(Equal([]vector.QueryResult{
				{ID: "B", Distance: 1},
				{ID: "C", Distance: 50},
			}))
		})

		It("returns storage.ErrNotFound for unknown items", func() {
			_, err := manager.SimilarTo(ctx, "missing", 2)
			Expect(err).To(MatchError(storage.ErrNotFound))
		})

		It("returns storage.ErrNotFound for items without an embedding", func() {
			seed(testutils.NewTestItem("pending", 0))
			_, err := manager.SimilarTo(ctx, "pending", 2)
			Expect(err).To(MatchError(storage.ErrNotFound))
		})

		It("rejects a non-positive k", func() {
			_, err := manager.SimilarTo(ctx, "A", 0)
			Expect(err).To(MatchError(vector.ErrInvalidArgument))
		})

		It("reports ErrNoOtherItems for a single-item catalog", func() {
			lonely := inmemory.NewDriver()
			Expect(lonely.Upsert(ctx, testutils.NewTestItem("solo", 0, 1, 1))).To(Succeed())
			m, err := vector.NewManager(vector.ManagerConfig{Items: lonely, Factory: flat.NewFactory(flat.Config{})})
			Expect(err).NotTo(HaveOccurred())
			_, err = m.Rebuild(ctx)
			Expect(err).NotTo(HaveOccurred())

			_, err = m.SimilarTo(ctx, "solo", 3)
			Expect(err).To(MatchError(vector.ErrNoOtherItems))
		})
	})

	It("closes the retired generation after a rebuild", func() {
		_, err := manager.Rebuild(ctx)
		Expect(err).NotTo(HaveOccurred())
		_, err = manager.Rebuild(ctx)
		Expect(err).NotTo(HaveOccurred())

		Expect(built).To(HaveLen(2))
		Expect(built[0].closed.Load()).To(BeTrue())
		Expect(built[1].closed.Load()).To(BeFalse())
		Expect(manager.Stats().Generation).To(Equal(uint64(2)))
	})

	It("keeps a retired generation open until its searches finish", func() {
		gateNew = true
		_, err := manager.Rebuild(ctx)
		Expect(err).NotTo(HaveOccurred())
		gateNew = false
		first := built[0]

		done := make(chan []vector.QueryResult)
		go func() {
			defer GinkgoRecover()
			results, err := manager.Search(ctx, []float32{0, 0}, 1)
			Expect(err).NotTo(HaveOccurred())
			done <- results
		}()
		Eventually(first.entered).Should(BeClosed())

		_, err = manager.Rebuild(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(first.closed.Load()).To(BeFalse())

		close(first.gate)
		var results []vector.QueryResult
		Eventually(done).Should(Receive(&results))
		Expect(results[0].ID).To(Equal("A"))
		Eventually(first.closed.Load).Should(BeTrue())
	})

	It("keeps the active generation when a build fails", func() {
		_, err := manager.Rebuild(ctx)
		Expect(err).NotTo(HaveOccurred())

		seed(testutils.NewTestItem("wide", 0, 1, 2, 3))
		_, err = manager.Rebuild(ctx)
		Expect(err).To(MatchError(vector.ErrDimensionMismatch))
		Expect(built[1].closed.Load()).To(BeTrue())

		results, err := manager.Search(ctx, []float32{0, 0}, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(results[0].ID).To(Equal("A"))
		Expect(manager.Stats().Generation).To(Equal(uint64(1)))
	})

	It("clears the dirty count on rebuild", func() {
		manager.MarkDirty(3)
		Expect(manager.Dirty()).To(Equal(int64(3)))

		stats, err := manager.Rebuild(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.Dirty).To(BeZero())
	})

	It("serves concurrent searches across rebuilds", func() {
		_, err := manager.Rebuild(ctx)
		Expect(err).NotTo(HaveOccurred())

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				for range 50 {
					results, err := manager.Search(ctx, []float32{0, 0}, 3)
					Expect(err).NotTo(HaveOccurred())
					Expect(results).To(HaveLen(3))
				}
			}()
		}
		for range 5 {
			_, err := manager.Rebuild(ctx)
			Expect(err).NotTo(HaveOccurred())
		}
		wg.Wait()
	})

	It("stops serving after Close", func() {
		_, err := manager.Rebuild(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(manager.Close()).To(Succeed())

		_, err = manager.Search(ctx, []float32{0, 0}, 1)
		Expect(err).To(MatchError(vector.ErrNotBuilt))
		_, err = manager.Rebuild(ctx)
		Expect(err).To(MatchError(vector.ErrClosed))
		Expect(built[0].closed.Load()).To(BeTrue())
	})
})
