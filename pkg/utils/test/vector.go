package testutils

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/polar/pkg/vector"
)

// IndexFactory builds a fresh, empty index. A non-zero dims pins the
// index's vector length.
type IndexFactory func(dims int) vector.Index

// ItBehavesLikeAVectorIndex registers the behavior every vector.Index must
// share for the given metric. Call it from inside a Describe.
func ItBehavesLikeAVectorIndex(metric vector.Metric, newIndex IndexFactory) {
	var (
		ctx context.Context
		idx vector.Index
	)

	open := func(dims int) vector.Index {
		idx = newIndex(dims)
		return idx
	}

	ids := func(results []vector.QueryResult) []string {
		out := make([]string, len(results))
		for i, r := range results {
			out[i] = r.ID
		}
		return out
	}

	// catalog is three points where the first is nearest to query, then the
	// second, then the third, under either metric.
	catalog := func() ([]vector.Document, []float32) {
		if metric == vector.MetricCosine {
			return []vector.Document{
				{ID: "A", Embedding: []float32{1, 0}},
				{ID: "B", Embedding: []float32{1, 1}},
				{ID: "C", Embedding: []float32{0, 1}},
			}, []float32{1, 0}
		}
		return []vector.Document{
			{ID: "A", Embedding: []float32{0, 0}},
			{ID: "B", Embedding: []float32{1, 0}},
			{ID: "C", Embedding: []float32{5, 5}},
		}, []float32{0, 0}
	}

	BeforeEach(func() {
		ctx = context.Background()
		idx = nil
	})

	AfterEach(func() {
		if idx != nil {
			Expect(idx.Close()).To(Succeed())
		}
	})

	It("orders results nearest first and excludes the query item", func() {
		docs, query := catalog()
		Expect(open(0).Build(ctx, docs)).To(Succeed())

		results, err := idx.Search(ctx, query, 2, vector.Exclude("A"))
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(results)).To(Equal([]string{"B", "C"}))
		Expect(results[0].Distance).To(BeNumerically("<=", results[1].Distance))

		if metric == vector.MetricL2 {
			Expect(results[0].Distance).To(BeNumerically("~", 1, 1e-4))
			Expect(results[1].Distance).To(BeNumerically("~", 50, 1e-3))
		} else {
			Expect(results[0].Distance).To(BeNumerically("~", 0.29289, 1e-3))
			Expect(results[1].Distance).To(BeNumerically("~", 1, 1e-3))
		}
	})

	It("includes the query item unless excluded", func() {
		docs, query := catalog()
		Expect(open(0).Build(ctx, docs)).To(Succeed())

		results, err := idx.Search(ctx, query, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(results)).To(Equal([]string{"A"}))
		Expect(results[0].Distance).To(BeNumerically("~", 0, 1e-4))
	})

	It("returns every eligible document when k exceeds the population", func() {
		docs, query := catalog()
		Expect(open(0).Build(ctx, docs)).To(Succeed())
		Expect(idx.Len()).To(Equal(3))

		results, err := idx.Search(ctx, query, 10, vector.Exclude("A"))
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(results)).To(Equal([]string{"B", "C"}))
	})

	It("breaks distance ties by insertion order", func() {
		Expect(open(0).Build(ctx, []vector.Document{
			{ID: "t3", Embedding: []float32{1, 1}},
			{ID: "t1", Embedding: []float32{1, 1}},
			{ID: "t2", Embedding: []float32{1, 1}},
		})).To(Succeed())

		results, err := idx.Search(ctx, []float32{1, 1}, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(results)).To(Equal([]string{"t3", "t1", "t2"}))
	})

	It("replaces the documents on rebuild", func() {
		docs, query := catalog()
		Expect(open(0).Build(ctx, docs)).To(Succeed())
		Expect(idx.Build(ctx, docs[2:])).To(Succeed())
		Expect(idx.Len()).To(Equal(1))

		results, err := idx.Search(ctx, query, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(results)).To(Equal([]string{"C"}))
	})

	It("returns nothing from an empty build", func() {
		Expect(open(2).Build(ctx, nil)).To(Succeed())
		Expect(idx.Len()).To(BeZero())

		results, err := idx.Search(ctx, []float32{1, 0}, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(BeEmpty())
	})

	It("rejects mixed dimensions at build time", func() {
		err := open(0).Build(ctx, []vector.Document{
			{ID: "a", Embedding: []float32{1, 0}},
			{ID: "b", Embedding: []float32{1, 0, 0}},
		})
		Expect(err).To(MatchError(vector.ErrDimensionMismatch))
	})

	It("rejects documents that do not match the pinned dimension", func() {
		err := open(3).Build(ctx, []vector.Document{{ID: "a", Embedding: []float32{1, 0}}})
		Expect(err).To(MatchError(vector.ErrDimensionMismatch))
	})

	It("rejects documents without an embedding", func() {
		err := open(0).Build(ctx, []vector.Document{{ID: "a"}})
		Expect(err).To(MatchError(vector.ErrDimensionMismatch))
	})

	It("rejects a non-positive k", func() {
		docs, query := catalog()
		Expect(open(0).Build(ctx, docs)).To(Succeed())

		_, err := idx.Search(ctx, query, 0)
		Expect(err).To(MatchError(vector.ErrInvalidArgument))
	})

	It("rejects a query of the wrong dimension", func() {
		docs, _ := catalog()
		Expect(open(0).Build(ctx, docs)).To(Succeed())

		_, err := idx.Search(ctx, []float32{1, 0, 0}, 1)
		Expect(err).To(MatchError(vector.ErrDimensionMismatch))
	})
}
