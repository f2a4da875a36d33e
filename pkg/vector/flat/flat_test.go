package flat_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	testutils "github.com/papercomputeco/polar/pkg/utils/test"
	"github.com/papercomputeco/polar/pkg/vector"
	"github.com/papercomputeco/polar/pkg/vector/flat"
)

var _ = Describe("Index", func() {
	Context("with the l2 metric", func() {
		testutils.ItBehavesLikeAVectorIndex(vector.MetricL2, func(dims int) vector.Index {
			return flat.New(flat.Config{Metric: vector.MetricL2, Dimensions: dims})
		})
	})

	Context("with the cosine metric", func() {
		testutils.ItBehavesLikeAVectorIndex(vector.MetricCosine, func(dims int) vector.Index {
			return flat.New(flat.Config{Metric: vector.MetricCosine, Dimensions: dims})
		})
	})

	It("builds through its factory", func() {
		idx, err := flat.NewFactory(flat.Config{})(context.Background(), 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(idx.Len()).To(BeZero())
		Expect(idx.Close()).To(Succeed())
	})
})
