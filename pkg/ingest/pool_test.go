package ingest_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/polar/pkg/embeddings"
	"github.com/papercomputeco/polar/pkg/ingest"
	"github.com/papercomputeco/polar/pkg/storage"
	"github.com/papercomputeco/polar/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/polar/pkg/utils/test"
	"github.com/papercomputeco/polar/pkg/vector"
)

var _ = Describe("Pool", func() {
	var (
		ctx      context.Context
		driver   *inmemory.Driver
		embedder *testutils.MockEmbedder
		mu       sync.Mutex
		stored   []string
	)

	newPool := func(e embeddings.Embedder) *ingest.Pool {
		pool, err := ingest.NewPool(&ingest.Config{
			Items:    driver,
			Embedder: e,
			OnStored: func(id string) {
				mu.Lock()
				defer mu.Unlock()
				stored = append(stored, id)
			},
		})
		Expect(err).NotTo(HaveOccurred())
		return pool
	}

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		embedder = testutils.NewMockEmbedder()
		stored = nil
	})

	It("requires an item store", func() {
		_, err := ingest.NewPool(&ingest.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("stores items that already carry an embedding", func() {
		pool := newPool(embedder)
		Expect(pool.Enqueue(ingest.Job{Item: *testutils.NewTestItem("a", 0.4, 1, 2)})).To(BeTrue())
		pool.Close()

		got, err := driver.Get(ctx, "a")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Embedding).To(Equal([]float32{1, 2}))
		Expect(stored).To(ConsistOf("a"))
		Expect(pool.Stats()).To(Equal(ingest.Stats{Stored: 1}))
	})

	It("embeds the transcript when the item has no embedding", func() {
		embedder.Embeddings["cats on skateboards"] = []float32{0.9, 0.1}
		pool := newPool(embedder)

		pool.Enqueue(ingest.Job{
			Item:       storage.Item{ID: "cats"},
			Transcript: "cats on skateboards",
		})
		pool.Close()

		got, err := driver.Get(ctx, "cats")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Embedding).To(Equal([]float32{0.9, 0.1}))
		Expect(got.BiasScore).To(BeZero())
	})

	It("stores the item unembedded without an embedder", func() {
		pool := newPool(nil)
		pool.Enqueue(ingest.Job{Item: storage.Item{ID: "raw"}, Transcript: "hello"})
		pool.Close()

		got, err := driver.Get(ctx, "raw")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Embedded()).To(BeFalse())

		n, err := driver.Count(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeZero())
	})

	It("counts embedding failures and stores nothing", func() {
		embedder.FailOn = "bad transcript"
		pool := newPool(embedder)
		pool.Enqueue(ingest.Job{Item: storage.Item{ID: "bad"}, Transcript: "bad transcript"})
		pool.Close()

		_, err := driver.Get(ctx, "bad")
		Expect(err).To(MatchError(storage.ErrNotFound))
		Expect(pool.Stats().Failed).To(Equal(uint64(1)))
		Expect(embedder.Calls()).To(Equal(1))
		Expect(stored).To(BeEmpty())
	})

	It("rejects jobs without an item id", func() {
		pool := newPool(nil)
		defer pool.Close()

		err := pool.Process(ctx, ingest.Job{})
		Expect(err).To(MatchError(ingest.ErrInvalidJob))
	})

	Context("with pinned dimensions", func() {
		var pool *ingest.Pool

		BeforeEach(func() {
			var err error
			pool, err = ingest.NewPool(&ingest.Config{Items: driver, Embedder: embedder, Dimensions: 3})
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(pool.Close)
		})

		It("stores matching embeddings and rejects the rest", func() {
			Expect(pool.Process(ctx, ingest.Job{Item: *testutils.NewTestItem("a", 0.1, 1, 0, 0)})).To(Succeed())
			Expect(pool.Process(ctx, ingest.Job{Item: *testutils.NewTestItem("b", -0.1, 0, 1, 0)})).To(Succeed())

			err := pool.Process(ctx, ingest.Job{Item: *testutils.NewTestItem("bad", 0, 1, 2)})
			Expect(err).To(MatchError(ingest.ErrInvalidJob))
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))

			_, err = driver.Get(ctx, "bad")
			Expect(err).To(MatchError(storage.ErrNotFound))
			n, err := driver.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))
		})

		It("rejects embedder output of the wrong length", func() {
			embedder.Embeddings["short"] = []float32{0.5, 0.5}

			err := pool.Process(ctx, ingest.Job{Item: storage.Item{ID: "s"}, Transcript: "short"})
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))

			Expect(pool.Process(ctx, ingest.Job{Item: storage.Item{ID: "ok"}, Transcript: "anything"})).To(Succeed())
		})

		It("validates without storing", func() {
			Expect(pool.Validate(ingest.Job{Item: storage.Item{ID: "bare"}})).To(Succeed())
			Expect(pool.Validate(ingest.Job{Item: *testutils.NewTestItem("bad", 0, 1)})).To(MatchError(ingest.ErrInvalidJob))
			Expect(pool.Stats()).To(Equal(ingest.Stats{}))
		})
	})

	It("drops jobs after Close", func() {
		pool := newPool(nil)
		pool.Close()

		Expect(pool.Enqueue(ingest.Job{Item: storage.Item{ID: "late"}})).To(BeFalse())
		Expect(pool.Submit(ctx, ingest.Job{Item: storage.Item{ID: "late"}})).To(MatchError(ingest.ErrPoolClosed))
		Expect(pool.Stats().Dropped).To(Equal(uint64(1)))
		pool.Close()
	})

	It("drains submitted jobs on Close", func() {
		pool := newPool(nil)
		for i := range 50 {
			Expect(pool.Submit(ctx, ingest.Job{Item: *testutils.NewTestItem(string(rune('A'+i)), 0, 1)})).To(Succeed())
		}
		pool.Close()

		n, err := driver.Count(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(50))
		Expect(stored).To(HaveLen(50))
	})
})
