package qdrant_test

import (
	"os"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	testutils "github.com/papercomputeco/polar/pkg/utils/test"
	"github.com/papercomputeco/polar/pkg/vector"
	"github.com/papercomputeco/polar/pkg/vector/qdrant"
)

var _ = Describe("Index", func() {
	Describe("New", func() {
		It("requires a target", func() {
			_, err := qdrant.New(qdrant.Config{}, 1)
			Expect(err).To(MatchError(ContainSubstring("target is required")))
		})

		It("rejects a target without a port", func() {
			_, err := qdrant.New(qdrant.Config{Target: "localhost"}, 1)
			Expect(err).To(MatchError(ContainSubstring("invalid qdrant target")))
		})
	})

	Context("against a live server", func() {
		var generation atomic.Uint64

		newIndex := func(metric vector.Metric) testutils.IndexFactory {
			return func(dims int) vector.Index {
				target := os.Getenv("POLAR_TEST_QDRANT_TARGET")
				if target == "" {
					Skip("POLAR_TEST_QDRANT_TARGET not set")
				}
				idx, err := qdrant.New(qdrant.Config{
					Target:     target,
					Collection: "polar_test",
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
