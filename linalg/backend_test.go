package linalg_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/katalvlaran/qgen/linalg"
	"github.com/katalvlaran/qgen/matrix"
	"github.com/stretchr/testify/require"
)

func backends() []linalg.Backend {
	return []linalg.Backend{linalg.Native(), linalg.Gonum()}
}

func randomSPD(t *testing.T, n int, seed int64) *matrix.Dense {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, n)
		for j := range rows[i] {
			rows[i][j] = rng.NormFloat64()
		}
	}
	b, err := matrix.NewDenseFrom(rows)
	require.NoError(t, err)
	g, err := matrix.Gram(b)
	require.NoError(t, err)
	spd, err := matrix.AddDiagonal(g, 0.5)
	require.NoError(t, err)

	return spd
}

func requireClose(t *testing.T, want, got *matrix.Dense, tol float64) {
	t.Helper()
	require.Equal(t, want.Rows(), got.Rows())
	require.Equal(t, want.Cols(), got.Cols())
	w, g := want.Data(), got.Data()
	for k := range w {
		require.InDeltaf(t, w[k], g[k], tol, "entry %d", k)
	}
}

func TestByName(t *testing.T) {
	t.Parallel()
	for _, name := range linalg.Names() {
		b, err := linalg.ByName(name)
		require.NoError(t, err)
		require.Equal(t, name, b.Name())
	}
	_, err := linalg.ByName("cuda")
	require.ErrorIs(t, err, linalg.ErrUnsupportedBackend)
	require.Equal(t, linalg.NameGonum, linalg.Default().Name())
}

func TestBackendParity(t *testing.T) {
	t.Parallel()
	a := randomSPD(t, 7, 21)
	rhs := []float64{1, -2, 3, 0, 1, 2, -1}

	native, gonum := linalg.Native(), linalg.Gonum()

	fn, err := native.Cholesky(a)
	require.NoError(t, err)
	fg, err := gonum.Cholesky(a)
	require.NoError(t, err)
	require.InDelta(t, fn.LogDet(), fg.LogDet(), 1e-9)

	xn, err := fn.Solve(rhs)
	require.NoError(t, err)
	xg, err := fg.Solve(rhs)
	require.NoError(t, err)
	require.InDeltaSlice(t, xn, xg, 1e-9)

	in, err := fn.Inverse()
	require.NoError(t, err)
	ig, err := fg.Inverse()
	require.NoError(t, err)
	requireClose(t, in, ig, 1e-9)

	sn, err := fn.SolveMatrix(a)
	require.NoError(t, err)
	id, _ := matrix.Identity(7)
	requireClose(t, id, sn, 1e-9)

	gi, err := gonum.Inverse(a)
	require.NoError(t, err)
	ni, err := native.Inverse(a)
	require.NoError(t, err)
	requireClose(t, ni, gi, 1e-9)

	vn, _, err := native.SymEigen(a)
	require.NoError(t, err)
	vg, _, err := gonum.SymEigen(a)
	require.NoError(t, err)
	require.InDeltaSlice(t, vn, vg, 1e-8)

	gn, err := native.Gram(a)
	require.NoError(t, err)
	gg, err := gonum.Gram(a)
	require.NoError(t, err)
	requireClose(t, gn, gg, 1e-9)
}

func TestPseudoInverseRankDeficient(t *testing.T) {
	t.Parallel()
	// rank-1 symmetric: [1 1; 1 1]⁺ = [1 1; 1 1]/4
	a, err := matrix.NewDenseFrom([][]float64{{1, 1}, {1, 1}})
	require.NoError(t, err)
	want, _ := matrix.NewDenseFrom([][]float64{{0.25, 0.25}, {0.25, 0.25}})

	for _, b := range backends() {
		b := b
		t.Run(b.Name(), func(t *testing.T) {
			t.Parallel()
			_, err := b.Cholesky(a)
			require.ErrorIs(t, err, matrix.ErrSingular)

			p, err := b.PseudoInverse(a)
			require.NoError(t, err)
			requireClose(t, want, p, 1e-9)
		})
	}
}

func TestPseudoInverseRectangular(t *testing.T) {
	t.Parallel()
	a, err := matrix.NewDenseFrom([][]float64{{1, 0}, {0, 2}, {0, 0}})
	require.NoError(t, err)
	want, _ := matrix.NewDenseFrom([][]float64{{1, 0, 0}, {0, 0.5, 0}})
	for _, b := range backends() {
		p, err := b.PseudoInverse(a)
		require.NoError(t, err, b.Name())
		requireClose(t, want, p, 1e-9)
	}
}

func TestCholeskyRidge(t *testing.T) {
	t.Parallel()
	singular, err := matrix.NewDenseFrom([][]float64{{1, 1}, {1, 1}})
	require.NoError(t, err)

	for _, b := range backends() {
		b := b
		t.Run(b.Name(), func(t *testing.T) {
			t.Parallel()
			res, err := linalg.CholeskyRidge(b, singular)
			require.NoError(t, err)
			require.True(t, res.Regularized())
			require.InDelta(t, linalg.RidgeSchedule[0], res.Ridge, 1e-15)
			require.False(t, math.IsNaN(res.Factor.LogDet()))

			spd := randomSPD(t, 4, 5)
			res, err = linalg.CholeskyRidge(b, spd)
			require.NoError(t, err)
			require.False(t, res.Regularized())

			neg, _ := matrix.NewDenseFrom([][]float64{{-1, 0}, {0, -1}})
			_, err = linalg.CholeskyRidge(b, neg)
			require.ErrorIs(t, err, matrix.ErrSingular)

			asym, _ := matrix.NewDenseFrom([][]float64{{1, 2}, {0, 1}})
			_, err = linalg.CholeskyRidge(b, asym)
			require.ErrorIs(t, err, matrix.ErrAsymmetry)
		})
	}
}
