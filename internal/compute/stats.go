package compute

import (
	"math"
	"sort"
)

// sum adds xs in ascending order so the result does not depend on the
// order the values arrived in.
func sum(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	var total float64
	for _, x := range sorted {
		total += x
	}
	return total
}

// mean returns NaN for an empty slice.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return sum(xs) / float64(len(xs))
}

// stdDev is the sample standard deviation (n−1). Fewer than two values
// yield NaN.
func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	m := mean(xs)
	sq := make([]float64, len(xs))
	for i, x := range xs {
		d := x - m
		sq[i] = d * d
	}
	return math.Sqrt(sum(sq) / float64(len(xs)-1))
}

// median returns NaN for an empty slice.
func median(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// minMax returns NaN, NaN for an empty slice.
func minMax(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return math.NaN(), math.NaN()
	}
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return lo, hi
}

// nullable maps NaN and ±Inf to nil so JSON encodes them as null.
func nullable(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
