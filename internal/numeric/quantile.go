// Package numeric holds the small order-statistic helpers shared by the
// estimators: a linear-interpolation quantile, tie-averaged ranks and
// non-finite stripping.
package numeric

import (
	"math"
	"sort"
)

// Quantile returns the p-quantile of an ascending-sorted slice using linear
// interpolation between order statistics at h = (N-1)p (Hyndman-Fan type 7).
// p is clamped to [0, 1]. An empty slice yields NaN.
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	h := p * float64(n-1)
	lower := int(math.Floor(h))
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	weight := h - float64(lower)
	return sorted[lower] + weight*(sorted[upper]-sorted[lower])
}

// SortedCopy returns an ascending copy of data
func SortedCopy(data []float64) []float64 {
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)
	return sorted
}

// Finite returns the finite entries of data in order, plus how many were dropped
func Finite(data []float64) ([]float64, int) {
	out := make([]float64, 0, len(data))
	dropped := 0
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			dropped++
			continue
		}
		out = append(out, v)
	}
	return out, dropped
}

// Ranks converts values to 1-based ranks, averaging the ranks of ties
func Ranks(data []float64) []float64 {
	n := len(data)
	if n == 0 {
		return []float64{}
	}

	type pair struct {
		value float64
		index int
	}

	pairs := make([]pair, n)
	for i, val := range data {
		pairs[i] = pair{value: val, index: i}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].value < pairs[j].value
	})

	ranks := make([]float64, n)
	i := 0
	for i < n {
		j := i
		for j+1 < n && pairs[j+1].value == pairs[i].value {
			j++
		}
		// positions i..j share the mean of ranks i+1..j+1
		avg := float64(i+j)/2.0 + 1.0
		for k := i; k <= j; k++ {
			ranks[pairs[k].index] = avg
		}
		i = j + 1
	}
	return ranks
}
