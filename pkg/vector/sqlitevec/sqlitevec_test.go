package sqlitevec_test

import (
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	testutils "github.com/papercomputeco/polar/pkg/utils/test"
	"github.com/papercomputeco/polar/pkg/vector"
	"github.com/papercomputeco/polar/pkg/vector/sqlitevec"
)

var _ = Describe("Index", func() {
	newIndex := func(metric vector.Metric) testutils.IndexFactory {
		return func(dims int) vector.Index {
			idx, err := sqlitevec.New(context.Background(), sqlitevec.Config{
				DBPath:     ":memory:",
				Metric:     metric,
				Dimensions: dims,
			}, 1)
			Expect(err).NotTo(HaveOccurred())
			return idx
		}
	}

	Context("with the l2 metric", func() {
		testutils.ItBehavesLikeAVectorIndex(vector.MetricL2, newIndex(vector.MetricL2))
	})

	Context("with the cosine metric", func() {
		testutils.ItBehavesLikeAVectorIndex(vector.MetricCosine, newIndex(vector.MetricCosine))
	})

	Describe("New", func() {
		It("returns an error when DBPath is empty", func() {
			_, err := sqlitevec.New(context.Background(), sqlitevec.Config{}, 1)
			Expect(err).To(MatchError(ContainSubstring("database path is required")))
		})

		It("rejects unsafe table names", func() {
			_, err := sqlitevec.New(context.Background(), sqlitevec.Config{
				DBPath: ":memory:",
				Table:  "items; DROP TABLE users",
			}, 1)
			Expect(err).To(MatchError(ContainSubstring("invalid table name")))
		})
	})

	It("keeps generations in one database file apart", func() {
		ctx := context.Background()
		path := filepath.Join(GinkgoT().TempDir(), "vec.sqlite")
		factory := sqlitevec.NewFactory(sqlitevec.Config{DBPath: path})

		first, err := factory(ctx, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Build(ctx, []vector.Document{{ID: "old", Embedding: []float32{0, 0}}})).To(Succeed())

		second, err := factory(ctx, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Build(ctx, []vector.Document{{ID: "new", Embedding: []float32{0, 0}}})).To(Succeed())

		Expect(first.Close()).To(Succeed())

		results, err := second.Search(ctx, []float32{0, 0}, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].ID).To(Equal("new"))
		Expect(second.Close()).To(Succeed())
	})
})
