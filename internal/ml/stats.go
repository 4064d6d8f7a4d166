// Package ml holds the small estimators the insight stages need: a standard
// scaler, an isolation forest and k-means. All of them are seeded so a batch
// run is reproducible.
package ml

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Quantile returns the q-th quantile (0..1) of values using linear
// interpolation between the closest ranks. gonum's stat.Quantile offers only
// empirical and step interpolation, which shift the thresholds on the small
// samples this package sees.
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Median returns the 0.5 quantile
func Median(values []float64) float64 {
	return Quantile(values, 0.5)
}

// Mean is a thin wrapper over gonum returning 0 for empty input
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// SampleStdDev returns the unbiased standard deviation, 0 for fewer than two values
func SampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}

// PopulationStdDev returns the standard deviation with denominator n
func PopulationStdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	_, variance := stat.PopMeanVariance(values, nil)
	return math.Sqrt(variance)
}

// DistinctCount returns the number of distinct values
func DistinctCount(values []float64) int {
	seen := make(map[float64]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}
