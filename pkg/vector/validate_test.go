package vector_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/polar/pkg/vector"
)

var _ = Describe("ValidateDocuments", func() {
	It("returns the shared dimension", func() {
		dims, err := vector.ValidateDocuments([]vector.Document{
			{ID: "a", Embedding: []float32{1, 2, 3}},
			{ID: "b", Embedding: []float32{4, 5, 6}},
		}, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(dims).To(Equal(3))
	})

	It("returns the pinned dimension for an empty set", func() {
		dims, err := vector.ValidateDocuments(nil, 8)
		Expect(err).NotTo(HaveOccurred())
		Expect(dims).To(Equal(8))
	})

	It("rejects duplicate ids", func() {
		_, err := vector.ValidateDocuments([]vector.Document{
			{ID: "a", Embedding: []float32{1}},
			{ID: "a", Embedding: []float32{2}},
		}, 0)
		Expect(err).To(MatchError(vector.ErrInvalidArgument))
	})

	It("rejects missing ids", func() {
		_, err := vector.ValidateDocuments([]vector.Document{{Embedding: []float32{1}}}, 0)
		Expect(err).To(MatchError(vector.ErrInvalidArgument))
	})
})

var _ = Describe("Rank", func() {
	It("sorts by distance then insertion and applies exclusions and k", func() {
		hits := []vector.Ranked{
			{QueryResult: vector.QueryResult{ID: "late-tie", Distance: 1}, Seq: 5},
			{QueryResult: vector.QueryResult{ID: "far", Distance: 9}, Seq: 1},
			{QueryResult: vector.QueryResult{ID: "self", Distance: 0}, Seq: 2},
			{QueryResult: vector.QueryResult{ID: "early-tie", Distance: 1}, Seq: 3},
		}

		out := vector.Rank(hits, 2, vector.ApplySearchOptions(vector.Exclude("self")))
		Expect(out).To(Equal([]vector.QueryResult{
			{ID: "early-tie", Distance: 1},
			{ID: "late-tie", Distance: 1},
		}))
	})
})

var _ = Describe("SearchOptions", func() {
	It("accumulates exclusions", func() {
		o := vector.ApplySearchOptions(vector.Exclude("a"), vector.Exclude("b", "c"))
		Expect(o.ExcludedCount()).To(Equal(3))
		Expect(o.Excluded("b")).To(BeTrue())
		Expect(o.Excluded("z")).To(BeFalse())
		Expect(o.ExcludedIDs()).To(ConsistOf("a", "b", "c"))
	})
})
