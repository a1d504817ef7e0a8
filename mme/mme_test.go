package mme_test

import (
	"math"
	"strings"
	"testing"

	"github.com/katalvlaran/qgen/linalg"
	"github.com/katalvlaran/qgen/matrix"
	"github.com/katalvlaran/qgen/metrics"
	"github.com/katalvlaran/qgen/mme"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// choleskyless reports every matrix as singular to force the pseudo-inverse path.
type choleskyless struct{ linalg.Backend }

func (choleskyless) Cholesky(matrix.Matrix) (linalg.Factor, error) {
	return nil, matrix.ErrNotPositiveDefinite
}

func mustDense(t testing.TB, rows [][]float64) *matrix.Dense {
	t.Helper()
	m, err := matrix.NewDenseFrom(rows)
	require.NoError(t, err)

	return m
}

func regression(t testing.TB) ([]float64, *matrix.Dense) {
	t.Helper()
	y := []float64{1, 3, 2, 5, 4}
	x := mustDense(t, [][]float64{{1, 1}, {1, 2}, {1, 3}, {1, 4}, {1, 5}})

	return y, x
}

// anova returns the balanced one-way layout: four groups of three records.
func anova(t testing.TB) ([]float64, *matrix.Dense, *matrix.Dense) {
	t.Helper()
	y := []float64{10, 12, 11, 14, 15, 16, 9, 8, 10, 13, 12, 14}
	x, err := matrix.NewDense(12, 1)
	require.NoError(t, err)
	z, err := matrix.NewDense(12, 4)
	require.NoError(t, err)
	for i := range y {
		require.NoError(t, x.Set(i, 0, 1))
		require.NoError(t, z.Set(i, i/3, 1))
	}

	return y, x, z
}

func TestWithoutRandomEffectsIsOLS(t *testing.T) {
	t.Parallel()
	y, x := regression(t)
	sol, err := mme.Solve(y, x, nil, nil, 0, 1)
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{0.6, 0.8}, sol.FixedEffects, 1e-12)
	require.NotNil(t, sol.RandomEffects)
	require.Empty(t, sol.RandomEffects)
	require.True(t, sol.Converged)
	require.Zero(t, sol.Iterations)
	require.True(t, math.IsInf(sol.Lambda, 1))
	require.InDelta(t, math.Sqrt(0.1), sol.FixedSE[1], 1e-12) // σ²_e/Sxx
	for i := range y {
		require.InDelta(t, y[i], sol.Fitted[i]+sol.Residuals[i], 1e-12)
	}
	require.InDelta(t, 0, sol.Residuals[0]+sol.Residuals[1]+sol.Residuals[2]+sol.Residuals[3]+sol.Residuals[4], 1e-12)
}

func TestBalancedShrinkage(t *testing.T) {
	t.Parallel()
	y, x, z := anova(t)
	// λ = 3/19, r = 3 → û_g = r/(r+λ)·(ȳ_g − ȳ) = 0.95·(ȳ_g − 12)
	for _, b := range []linalg.Backend{linalg.Native(), linalg.Gonum()} {
		sol, err := mme.Solve(y, x, z, nil, 19.0/3, 1, mme.WithBackend(b))
		require.NoError(t, err)
		require.InDeltaSlice(t, []float64{12}, sol.FixedEffects, 1e-10, b.Name())
		require.InDeltaSlice(t, []float64{-0.95, 2.85, -2.85, 0.95}, sol.RandomEffects, 1e-10, b.Name())
		require.InDelta(t, 3.0/19, sol.Lambda, 1e-12)
		require.False(t, sol.UsedPseudoInverse)
		require.Zero(t, sol.Ridge)
		for j := range sol.RandomEffects {
			require.Greater(t, sol.PEV[j], 0.0)
			require.InDelta(t, math.Sqrt(sol.PEV[j]), sol.RandomSE[j], 1e-12)
			require.Greater(t, sol.Reliability[j], 0.0)
			require.Less(t, sol.Reliability[j], 1.0)
		}
	}
}

func TestIdentityInverseMatchesNil(t *testing.T) {
	t.Parallel()
	y, x, z := anova(t)
	id, err := matrix.Identity(4)
	require.NoError(t, err)
	a, err := mme.Solve(y, x, z, nil, 2, 1)
	require.NoError(t, err)
	b, err := mme.Solve(y, x, z, id, 2, 1)
	require.NoError(t, err)
	require.InDeltaSlice(t, a.RandomEffects, b.RandomEffects, 1e-12)
	require.InDeltaSlice(t, a.Reliability, b.Reliability, 1e-12)

	c, err := mme.Solve(y, x, z, id, 2, 1, mme.WithRelationshipDiagonal([]float64{1, 1, 1, 1}))
	require.NoError(t, err)
	require.InDeltaSlice(t, a.Reliability, c.Reliability, 1e-12)
}

func TestRelationshipShrinksTogether(t *testing.T) {
	t.Parallel()
	y, x, z := anova(t)
	// groups 0 and 1 are related, so their BLUPs borrow from each other
	k := mustDense(t, [][]float64{
		{1, 0.5, 0, 0},
		{0.5, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	})
	kinv, err := linalg.Gonum().Inverse(k)
	require.NoError(t, err)
	related, err := mme.Solve(y, x, z, kinv, 2, 1)
	require.NoError(t, err)
	plain, err := mme.Solve(y, x, z, nil, 2, 1)
	require.NoError(t, err)
	require.Greater(t, related.RandomEffects[0], plain.RandomEffects[0])
	require.Greater(t, related.Reliability[0], plain.Reliability[0])
}

func TestRankDeficientDesignIsRegularised(t *testing.T) {
	t.Parallel()
	y := []float64{1, 3, 2, 5, 4}
	x := mustDense(t, [][]float64{{1, 1}, {1, 1}, {1, 1}, {1, 1}, {1, 1}})
	sol, err := mme.Solve(y, x, nil, nil, 0, 1)
	require.NoError(t, err)
	require.Greater(t, sol.Ridge, 0.0)
	require.InDelta(t, 3, sol.Fitted[0], 1e-4)
}

func TestPseudoInverseFallback(t *testing.T) {
	t.Parallel()
	y, x, z := anova(t)
	reg := prometheus.NewRegistry()
	core, logs := observer.New(zap.WarnLevel)

	sol, err := mme.Solve(y, x, z, nil, 19.0/3, 1,
		mme.WithBackend(choleskyless{linalg.Native()}),
		mme.WithLogger(zap.New(core)),
		mme.WithMetrics(metrics.MustNew(reg)),
	)
	require.NoError(t, err)
	require.True(t, sol.UsedPseudoInverse)
	require.InDeltaSlice(t, []float64{-0.95, 2.85, -2.85, 0.95}, sol.RandomEffects, 1e-8)
	require.Equal(t, 1, logs.FilterMessageSnippet("pseudo-inverse").Len())

	want := `
# HELP qgen_solver_fallbacks_total Numerical fallbacks taken by the solvers.
# TYPE qgen_solver_fallbacks_total counter
qgen_solver_fallbacks_total{kind="pseudo_inverse"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(want), "qgen_solver_fallbacks_total"))
}

func TestSolveErrors(t *testing.T) {
	t.Parallel()
	y, x, z := anova(t)
	k3, _ := matrix.Identity(3)
	z3, err := z.Induced([]int{0, 1, 2}, []int{0, 1, 2, 3})
	require.NoError(t, err)
	tests := []struct {
		name       string
		y          []float64
		x, z, kinv matrix.Matrix
		varA, varE float64
		want       error
	}{
		{"short y", y[:4], x, z, nil, 1, 1, matrix.ErrDimensionMismatch},
		{"z rows", y, x, z3, nil, 1, 1, matrix.ErrDimensionMismatch},
		{"kinv shape", y, x, z, k3, 1, 1, matrix.ErrDimensionMismatch},
		{"zero varA", y, x, z, nil, 0, 1, mme.ErrInvalidVariance},
		{"negative varE", y, x, z, nil, 1, -1, mme.ErrInvalidVariance},
		{"inf varA", y, x, z, nil, math.Inf(1), 1, mme.ErrInvalidVariance},
		{"nil x", y, nil, z, nil, 1, 1, matrix.ErrNilMatrix},
		{"nan y", append([]float64{math.NaN()}, y[1:]...), x, z, nil, 1, 1, matrix.ErrNaNInf},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := mme.Solve(tc.y, tc.x, tc.z, tc.kinv, tc.varA, tc.varE)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestOptionPanics(t *testing.T) {
	t.Parallel()
	require.Panics(t, func() { mme.WithBackend(nil) })
	require.Panics(t, func() { mme.WithLogger(nil) })
	require.NotPanics(t, func() { mme.WithMetrics(nil) })
}
