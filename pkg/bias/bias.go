// Package bias implements the running bias estimate that feed selection
// steers toward neutral.
package bias

import (
	"errors"
	"math"
)

// ErrNoCandidates is returned by SelectClosestToNeutral for an empty pool.
var ErrNoCandidates = errors.New("no candidates")

// Candidate is an item under evaluation together with the user bias that
// serving it would produce.
type Candidate struct {
	ItemID        string
	ItemBias      float64
	PredictedBias float64
}

// UpdateBias folds one more observation into a running mean of pole count
// observations. The result is always a convex combination of current and
// incoming. Negative pole counts are treated as zero.
func UpdateBias(current, incoming float64, poleCount int) float64 {
	if poleCount < 0 {
		poleCount = 0
	}
	alpha := 1.0 / float64(poleCount+1)
	return (1-alpha)*current + alpha*incoming
}

// SelectClosestToNeutral returns the candidate whose predicted bias has the
// smallest magnitude. Ties go to the earliest candidate.
func SelectClosestToNeutral(candidates []Candidate) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, ErrNoCandidates
	}

	best := 0
	bestAbs := math.Abs(candidates[0].PredictedBias)
	for i := 1; i < len(candidates); i++ {
		if a := math.Abs(candidates[i].PredictedBias); a < bestAbs {
			best, bestAbs = i, a
		}
	}
	return candidates[best], nil
}

// Replay recomputes a user's state from the biases of the items they were
// served, in serve order, starting from a neutral user.
func Replay(biases []float64) (current float64, poleCount int) {
	for _, b := range biases {
		current = UpdateBias(current, b, poleCount)
		poleCount++
	}
	return current, poleCount
}
