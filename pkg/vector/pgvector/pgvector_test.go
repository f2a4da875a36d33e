package pgvector_test

import (
	"context"
	"os"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	testutils "github.com/papercomputeco/polar/pkg/utils/test"
	"github.com/papercomputeco/polar/pkg/vector"
	"github.com/papercomputeco/polar/pkg/vector/pgvector"
)

var _ = Describe("Index", func() {
	Describe("New", func() {
		It("requires a connection string", func() {
			_, err := pgvector.New(context.Background(), pgvector.Config{}, 1)
			Expect(err).To(MatchError(ContainSubstring("connection string is required")))
		})

		It("rejects unsafe table names", func() {
			_, err := pgvector.New(context.Background(), pgvector.Config{
				DSN:   "postgres://localhost/none",
				Table: "x; DROP TABLE users",
			}, 1)
			Expect(err).To(MatchError(ContainSubstring("invalid table name")))
		})
	})

	Context("against a live server", func() {
		var generation atomic.Uint64

		newIndex := func(metric vector.Metric) testutils.IndexFactory {
			return func(dims int) vector.Index {
				dsn := os.Getenv("POLAR_TEST_POSTGRES_DSN")
				if dsn == "" {
					Skip("POLAR_TEST_POSTGRES_DSN not set")
				}
				idx, err := pgvector.New(context.Background(), pgvector.Config{
					DSN:        dsn,
					Table:      "polar_vec_test",
					Metric:     metric,
					Dimensions: dims,
				}, generation.Add(1))
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
	})
})
