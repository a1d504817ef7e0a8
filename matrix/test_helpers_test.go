// SPDX-License-Identifier: MIT
// Package matrix_test contains test helpers
//
// Purpose:
//   • Provide small, deterministic test fixtures for kernels.
//   • Keep all data finite and well-formed to avoid numeric-policy interference.

package matrix_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/katalvlaran/qgen/matrix"
	"github.com/stretchr/testify/require"
)

// hide wraps any Matrix to hide its concrete type from type assertions,
// forcing kernels through the interface (non-*Dense) path.
type hide struct{ matrix.Matrix }

// MustDense allocates an r×c *Dense or fails the test.
func MustDense(t testing.TB, r, c int) *matrix.Dense {
	t.Helper()
	m, err := matrix.NewDense(r, c)
	require.NoError(t, err)

	return m
}

// FromRows builds a *Dense from literal rows or fails the test.
func FromRows(t testing.TB, rows [][]float64) *matrix.Dense {
	t.Helper()
	m, err := matrix.NewDenseFrom(rows)
	require.NoError(t, err)

	return m
}

// RandomSPD returns B·Bᵀ + n·I for a seeded random n×n B.
func RandomSPD(t testing.TB, n int, seed int64) *matrix.Dense {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	b := MustDense(t, n, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			require.NoError(t, b.Set(i, j, rng.NormFloat64()))
		}
	}
	g, err := matrix.Gram(b)
	require.NoError(t, err)
	spd, err := matrix.AddDiagonal(g, float64(n))
	require.NoError(t, err)

	return spd
}

// RequireAllClose compares two matrices element-wise within tol.
func RequireAllClose(t testing.TB, want, got matrix.Matrix, tol float64) {
	t.Helper()
	require.Equal(t, want.Rows(), got.Rows(), "rows")
	require.Equal(t, want.Cols(), got.Cols(), "cols")
	for i := 0; i < want.Rows(); i++ {
		for j := 0; j < want.Cols(); j++ {
			w, err := want.At(i, j)
			require.NoError(t, err)
			g, err := got.At(i, j)
			require.NoError(t, err)
			require.LessOrEqualf(t, math.Abs(w-g), tol, "(%d,%d): want %g got %g", i, j, w, g)
		}
	}
}
