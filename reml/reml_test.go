package reml_test

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/katalvlaran/qgen/linalg"
	"github.com/katalvlaran/qgen/matrix"
	"github.com/katalvlaran/qgen/metrics"
	"github.com/katalvlaran/qgen/reml"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// oneWay returns an intercept column and the incidence matrix of groups
// listed record by record.
func oneWay(t testing.TB, groups []int, q int) (*matrix.Dense, *matrix.Dense) {
	t.Helper()
	n := len(groups)
	x, err := matrix.NewDense(n, 1)
	require.NoError(t, err)
	z, err := matrix.NewDense(n, q)
	require.NoError(t, err)
	for i, g := range groups {
		require.NoError(t, x.Set(i, 0, 1))
		require.NoError(t, z.Set(i, g, 1))
	}

	return x, z
}

func balanced(q, r int) []int {
	out := make([]int, 0, q*r)
	for g := 0; g < q; g++ {
		for k := 0; k < r; k++ {
			out = append(out, g)
		}
	}

	return out
}

// simulateOneWay draws y = μ + u_g + e with σ²_a = σ²_e = 1.
func simulateOneWay(q, r int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	u := make([]float64, q)
	for g := range u {
		u[g] = rng.NormFloat64()
	}
	y := make([]float64, 0, q*r)
	for g := 0; g < q; g++ {
		for k := 0; k < r; k++ {
			y = append(y, 10+u[g]+rng.NormFloat64())
		}
	}

	return y
}

// Balanced one-way data: REML equals the ANOVA estimator when it is positive.
// MSB = 20, MSW = 1, r = 3 → σ²_e = 1, σ²_a = 19/3.
var anovaY = []float64{10, 12, 11, 14, 15, 16, 9, 8, 10, 13, 12, 14}

func TestBalancedOneWayMatchesANOVA(t *testing.T) {
	t.Parallel()
	x, z := oneWay(t, balanced(4, 3), 4)
	for _, m := range []reml.Method{reml.AI, reml.EM} {
		for _, b := range []linalg.Backend{linalg.Native(), linalg.Gonum()} {
			vc, err := reml.Estimate(anovaY, x, z, nil,
				reml.WithMethod(m), reml.WithBackend(b), reml.WithMaxIter(5000))
			require.NoError(t, err)
			require.True(t, vc.Converged, "%s/%s", m, b.Name())
			require.InDelta(t, 19.0/3, vc.VarAdditive, 1e-4, "%s/%s", m, b.Name())
			require.InDelta(t, 1.0, vc.VarResidual, 1e-5, "%s/%s", m, b.Name())
			require.InDelta(t, (19.0/3)/(19.0/3+1), vc.Heritability, 1e-5)
			require.InDelta(t, 3.0/19, vc.Lambda, 1e-5)
			require.Equal(t, m, vc.Method)
		}
	}
}

func TestAIConvergesFasterThanEM(t *testing.T) {
	t.Parallel()
	x, z := oneWay(t, balanced(4, 3), 4)
	ai, err := reml.Estimate(anovaY, x, z, nil)
	require.NoError(t, err)
	em, err := reml.Estimate(anovaY, x, z, nil, reml.WithMethod(reml.EM), reml.WithMaxIter(5000))
	require.NoError(t, err)
	require.Less(t, ai.Iterations, em.Iterations)
	require.InDelta(t, ai.LogLikelihood, em.LogLikelihood, 1e-6)
	require.Less(t, ai.LogLikelihood, 0.0)
	require.InDelta(t, -2*ai.LogLikelihood+4, ai.AIC, 1e-9)
	require.InDelta(t, -2*ai.LogLikelihood+2*math.Log(11), ai.BIC, 1e-9)
}

func TestSimulatedHeritabilityWithinTolerance(t *testing.T) {
	t.Parallel()
	// intra-class correlation of the simulation is ½
	x, z := oneWay(t, balanced(40, 5), 40)
	for seed := int64(1); seed <= 3; seed++ {
		y := simulateOneWay(40, 5, seed)
		vc, err := reml.Estimate(y, x, z, nil)
		require.NoError(t, err)
		require.True(t, vc.Converged)
		require.GreaterOrEqual(t, vc.VarAdditive, 0.0)
		require.GreaterOrEqual(t, vc.VarResidual, 0.0)
		require.GreaterOrEqual(t, vc.Heritability, 0.2, "seed %d", seed)
		require.LessOrEqual(t, vc.Heritability, 0.8, "seed %d", seed)
	}
}

func TestRelationshipMatrixIsUsed(t *testing.T) {
	t.Parallel()
	x, z := oneWay(t, balanced(4, 3), 4)
	id, err := matrix.Identity(4)
	require.NoError(t, err)
	explicit, err := reml.Estimate(anovaY, x, z, id)
	require.NoError(t, err)
	implicit, err := reml.Estimate(anovaY, x, z, nil)
	require.NoError(t, err)
	require.InDelta(t, implicit.VarAdditive, explicit.VarAdditive, 1e-8)

	// K = 2I halves σ²_a and leaves σ²_e alone
	twice, err := matrix.Scale(id, 2)
	require.NoError(t, err)
	scaled, err := reml.Estimate(anovaY, x, z, twice)
	require.NoError(t, err)
	require.InDelta(t, implicit.VarAdditive/2, scaled.VarAdditive, 1e-5)
	require.InDelta(t, implicit.VarResidual, scaled.VarResidual, 1e-5)
}

func TestBoundaryEstimate(t *testing.T) {
	t.Parallel()
	// every group has the same mean: σ²_a belongs on the boundary
	y := []float64{1, 2, 3, 3, 2, 1, 2, 1, 3}
	x, z := oneWay(t, balanced(3, 3), 3)
	vc, err := reml.Estimate(y, x, z, nil)
	require.NoError(t, err)
	require.True(t, vc.Converged)
	require.True(t, vc.HasWarning(reml.WarnBoundary))
	require.InDelta(t, 0, vc.Heritability, 1e-8)
	require.InDelta(t, 0.75, vc.VarResidual, 1e-6) // (SSB + SSW)/(n−1) = 6/8
}

func TestNoRandomEffectsIsOLS(t *testing.T) {
	t.Parallel()
	x, _ := oneWay(t, balanced(4, 3), 4)
	vc, err := reml.Estimate(anovaY, x, nil, nil)
	require.NoError(t, err)
	require.Zero(t, vc.VarAdditive)
	require.InDelta(t, 68.0/11, vc.VarResidual, 1e-12)
	require.Zero(t, vc.Heritability)
	require.True(t, math.IsInf(vc.Lambda, 1))
	require.True(t, vc.Converged)
	require.Zero(t, vc.Iterations)

	var typedNil *matrix.Dense
	vc2, err := reml.Estimate(anovaY, x, typedNil, nil)
	require.NoError(t, err)
	require.Equal(t, vc.VarResidual, vc2.VarResidual)
}

func TestRegularizesRelationshipMatrix(t *testing.T) {
	t.Parallel()
	x, z := oneWay(t, balanced(4, 3), 4)
	ones, err := matrix.NewDense(4, 4)
	require.NoError(t, err)
	require.NoError(t, ones.Apply(func(_, _ int, _ float64) float64 { return 1 }))

	core, logs := observer.New(zap.WarnLevel)
	vc, err := reml.Estimate(anovaY, x, z, ones, reml.WithLogger(zap.New(core)))
	require.NoError(t, err)
	require.True(t, vc.HasWarning(reml.WarnRegularized))
	require.Greater(t, vc.Ridge, 0.0)
	require.NotZero(t, logs.FilterMessageSnippet("regularised").Len())
}

func TestNonConvergenceIsAWarning(t *testing.T) {
	t.Parallel()
	x, z := oneWay(t, balanced(4, 3), 4)
	vc, err := reml.Estimate(anovaY, x, z, nil, reml.WithMethod(reml.EM), reml.WithMaxIter(2))
	require.NoError(t, err)
	require.False(t, vc.Converged)
	require.Equal(t, 2, vc.Iterations)
	require.True(t, vc.HasWarning(reml.WarnNonConvergence))
	require.GreaterOrEqual(t, vc.Heritability, 0.0)
	require.LessOrEqual(t, vc.Heritability, 1.0)
}

func TestEstimateErrors(t *testing.T) {
	t.Parallel()
	x, z := oneWay(t, balanced(4, 3), 4)
	x3, z3 := oneWay(t, balanced(3, 1), 3)
	k5, _ := matrix.Identity(5)
	wide, _ := matrix.NewDense(3, 3)
	x2, z2 := oneWay(t, balanced(2, 3), 2)
	indefinite, _ := matrix.NewDenseFrom([][]float64{{1, 0}, {0, -1}})
	tests := []struct {
		name    string
		y       []float64
		x, z, k matrix.Matrix
		want    error
	}{
		{"short y", anovaY[:5], x, z, nil, matrix.ErrDimensionMismatch},
		{"z rows", anovaY, x, z3, nil, matrix.ErrDimensionMismatch},
		{"k shape", anovaY, x, z, k5, matrix.ErrDimensionMismatch},
		{"n <= p", []float64{1, 2, 3}, wide, z3, nil, reml.ErrInsufficientData},
		{"constant y", []float64{2, 2, 2}, x3, z3, nil, reml.ErrInsufficientData},
		{"nan y", []float64{1, math.NaN(), 3}, x3, z3, nil, matrix.ErrNaNInf},
		{"nil x", anovaY, nil, z, nil, matrix.ErrNilMatrix},
		{"indefinite k", anovaY[:6], x2, z2, indefinite, matrix.ErrSingular},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := reml.Estimate(tc.y, tc.x, tc.z, tc.k)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestContextCancellation(t *testing.T) {
	t.Parallel()
	x, z := oneWay(t, balanced(4, 3), 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := reml.EstimateContext(ctx, anovaY, x, z, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestMetricsRecorded(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	rec := metrics.MustNew(reg)
	x, z := oneWay(t, balanced(4, 3), 4)
	_, err := reml.Estimate(anovaY, x, z, nil, reml.WithMetrics(rec))
	require.NoError(t, err)
	_, err = reml.Estimate(anovaY, x, z, nil, reml.WithMetrics(rec), reml.WithMethod(reml.EM), reml.WithMaxIter(1))
	require.NoError(t, err)

	want := `
# HELP qgen_reml_fits_total REML fits by method and convergence.
# TYPE qgen_reml_fits_total counter
qgen_reml_fits_total{converged="false",method="em"} 1
qgen_reml_fits_total{converged="true",method="ai"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(want), "qgen_reml_fits_total"))
}

func TestOptionPanics(t *testing.T) {
	t.Parallel()
	require.Panics(t, func() { reml.WithMethod("newton") })
	require.Panics(t, func() { reml.WithTolerance(0) })
	require.Panics(t, func() { reml.WithTolerance(math.Inf(1)) })
	require.Panics(t, func() { reml.WithMaxIter(0) })
	require.Panics(t, func() { reml.WithInitialHeritability(1) })
	require.Panics(t, func() { reml.WithBackend(nil) })
	require.Panics(t, func() { reml.WithLogger(nil) })

	m, err := reml.ParseMethod("em")
	require.NoError(t, err)
	require.Equal(t, reml.EM, m)
	_, err = reml.ParseMethod("bayes")
	require.ErrorIs(t, err, reml.ErrUnsupportedMethod)
}
