// Package stats provides the small set of order statistics the engine needs:
// quartiles, IQR outlier bounds, and central-tendency measures used by
// fill-null strategies.
package stats

import "sort"

// Quartiles computes Q1 and Q3 over the values using index-based selection on
// the sorted slice: Q1 = sorted[floor(0.25*n)], Q3 = sorted[floor(0.75*n)].
//
// This selection rule matters: the outlier filter and the quality analyzer
// must derive identical bounds from identical inputs, so both go through this
// function. ok is false when values is empty.
func Quartiles(values []float64) (q1, q3 float64, ok bool) {
	n := len(values)
	if n == 0 {
		return 0, 0, false
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	q1 = sorted[n/4]
	q3 = sorted[(n*3)/4]
	return q1, q3, true
}

// OutlierBounds returns the inclusive [lower, upper] IQR fence:
// [Q1 - 1.5*IQR, Q3 + 1.5*IQR]. ok is false when values is empty.
func OutlierBounds(values []float64) (lower, upper float64, ok bool) {
	q1, q3, ok := Quartiles(values)
	if !ok {
		return 0, 0, false
	}
	iqr := q3 - q1
	return q1 - 1.5*iqr, q3 + 1.5*iqr, true
}

// Mean returns the arithmetic mean. ok is false when values is empty.
func Mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

// Median returns the middle value of the sorted input, averaging the two
// middle values for even lengths. ok is false when values is empty.
func Median(values []float64) (float64, bool) {
	n := len(values)
	if n == 0 {
		return 0, false
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2], true
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2, true
}

// Mode returns the most frequent string among candidates.
//
// Ties are broken by the lexicographically smallest candidate, not by input
// order. ok is false when candidates is empty.
func Mode(candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	counts := make(map[string]int, len(candidates))
	for _, c := range candidates {
		counts[c]++
	}

	best := ""
	bestN := -1
	for v, n := range counts {
		if n > bestN || (n == bestN && v < best) {
			best = v
			bestN = n
		}
	}
	return best, true
}
