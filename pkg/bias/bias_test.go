package bias_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/polar/pkg/bias"
)

var _ = Describe("UpdateBias", func() {
	It("takes the incoming bias outright for a new user", func() {
		Expect(bias.UpdateBias(0.9, -0.3, 0)).To(BeNumerically("~", -0.3, 1e-12))
	})

	It("weights the incoming bias by one over pole count plus one", func() {
		Expect(bias.UpdateBias(0.2, -0.4, 1)).To(BeNumerically("~", -0.1, 1e-12))
		Expect(bias.UpdateBias(-0.1, 0.6, 2)).To(BeNumerically("~", 0.1333333333, 1e-9))
	})

	It("treats negative pole counts as zero", func() {
		Expect(bias.UpdateBias(0.5, 0.1, -4)).To(BeNumerically("~", 0.1, 1e-12))
	})

	It("stays between current and incoming", func() {
		for poles := 0; poles < 20; poles++ {
			got := bias.UpdateBias(-0.7, 0.4, poles)
			Expect(got).To(BeNumerically(">=", -0.7))
			Expect(got).To(BeNumerically("<=", 0.4))
		}
	})
})

var _ = Describe("Replay", func() {
	It("converges to the arithmetic mean", func() {
		current, poles := bias.Replay([]float64{0.2, -0.4, 0.6})
		Expect(current).To(BeNumerically("~", 0.4/3, 1e-9))
		Expect(poles).To(Equal(3))
	})

	It("is neutral for an empty history", func() {
		current, poles := bias.Replay(nil)
		Expect(current).To(BeZero())
		Expect(poles).To(BeZero())
	})

	It("matches sequential UpdateBias calls", func() {
		history := []float64{1, -1, 0.5, 0.25, -0.75}
		current, poles := 0.0, 0
		for _, b := range history {
			current = bias.UpdateBias(current, b, poles)
			poles++
		}

		replayed, replayedPoles := bias.Replay(history)
		Expect(replayed).To(Equal(current))
		Expect(replayedPoles).To(Equal(poles))
	})
})

var _ = Describe("SelectClosestToNeutral", func() {
	It("picks the smallest absolute predicted bias", func() {
		got, err := bias.SelectClosestToNeutral([]bias.Candidate{
			{ItemID: "a", PredictedBias: 0.5},
			{ItemID: "b", PredictedBias: -0.1},
			{ItemID: "c", PredictedBias: 0.3},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ItemID).To(Equal("b"))
	})

	It("breaks ties by candidate order", func() {
		got, err := bias.SelectClosestToNeutral([]bias.Candidate{
			{ItemID: "a", PredictedBias: 0.4},
			{ItemID: "b", PredictedBias: -0.2},
			{ItemID: "c", PredictedBias: 0.2},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ItemID).To(Equal("b"))
	})

	It("returns ErrNoCandidates for an empty pool", func() {
		_, err := bias.SelectClosestToNeutral(nil)
		Expect(errors.Is(err, bias.ErrNoCandidates)).To(BeTrue())
	})
})
