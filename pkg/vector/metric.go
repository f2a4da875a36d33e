package vector

import (
	"fmt"
	"math"
)

// Metric is the distance function of a deployment.
type Metric string

const (
	// MetricL2 is squared Euclidean distance.
	MetricL2 Metric = "l2"

	// MetricCosine is one minus cosine similarity.
	MetricCosine Metric = "cosine"
)

// ParseMetric parses a configured metric name. The empty string is MetricL2.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case "", MetricL2:
		return MetricL2, nil
	case MetricCosine:
		return MetricCosine, nil
	default:
		return "", fmt.Errorf("%w: unknown metric %q", ErrInvalidArgument, s)
	}
}

// Distance computes the distance between two vectors of equal length.
func (m Metric) Distance(a, b []float32) float64 {
	if m == MetricCosine {
		return cosineDistance(a, b)
	}
	return squaredL2(a, b)
}

// FromEuclidean converts a plain Euclidean distance reported by a backend
// into squared Euclidean distance.
func FromEuclidean(d float64) float64 {
	return d * d
}

// FromCosineSimilarity converts a cosine similarity score into a distance.
func FromCosineSimilarity(s float64) float64 {
	return 1 - s
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// cosineDistance treats a zero vector as orthogonal to everything.
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
