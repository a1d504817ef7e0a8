// SPDX-License-Identifier: MIT

package gs

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Pearson returns the correlation of x and y, or 0 when it is undefined
// (fewer than two pairs, unequal lengths or a constant vector). The result
// is clamped to [-1, 1].
func Pearson(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return 0
	}
	if !(stat.StdDev(x, nil) > 0) || !(stat.StdDev(y, nil) > 0) {
		return 0
	}
	r := stat.Correlation(x, y, nil)
	switch {
	case math.IsNaN(r):
		return 0
	case r > 1:
		return 1
	case r < -1:
		return -1
	}

	return r
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}

	return out
}
