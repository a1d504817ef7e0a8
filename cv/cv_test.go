package cv_test

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/katalvlaran/qgen/cv"
	"github.com/katalvlaran/qgen/grm"
	"github.com/katalvlaran/qgen/gs"
	"github.com/katalvlaran/qgen/matrix"
	"github.com/katalvlaran/qgen/metrics"
	"github.com/katalvlaran/qgen/simulate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func population(t testing.TB, n, m int, h2 float64, seed int64) ([][]float64, []float64) {
	t.Helper()
	pop, err := simulate.Genotypes(n, m, simulate.WithSeed(seed))
	require.NoError(t, err)
	ph, err := pop.Phenotypes(10, h2, simulate.WithSeed(seed+1))
	require.NoError(t, err)

	return pop.Dosages, ph.Y
}

func TestAssign(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		n, k  int
		sizes []int
	}{
		{"even", 10, 5, []int{2, 2, 2, 2, 2}},
		{"uneven", 11, 3, []int{4, 4, 3}},
		{"leave one out", 4, 4, []int{1, 1, 1, 1}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			folds := cv.Assign(tc.n, tc.k, 7)
			require.Len(t, folds, tc.k)
			seen := make([]int, tc.n)
			for f, fold := range folds {
				require.Len(t, fold, tc.sizes[f])
				for _, i := range fold {
					seen[i]++
				}
			}
			for i, c := range seen {
				require.Equal(t, 1, c, "index %d", i)
			}
			require.Equal(t, folds, cv.Assign(tc.n, tc.k, 7))
		})
	}
	require.NotEqual(t, cv.Assign(30, 3, 1), cv.Assign(30, 3, 2))
}

func TestDeterministicAcrossWorkers(t *testing.T) {
	t.Parallel()
	geno, y := population(t, 60, 80, 0.6, 3)
	run := func(workers int) *cv.Summary {
		s, err := cv.CrossValidate(context.Background(), cv.Input{Genotypes: geno}, y,
			cv.WithFolds(5),
			cv.WithRepeats(2),
			cv.WithSeed(11),
			cv.WithWorkers(workers),
			cv.WithModel(gs.WithHeritability(0.5)),
		)
		require.NoError(t, err)

		return s
	}
	serial := run(1)
	if diff := cmp.Diff(serial, run(4), cmpopts.EquateNaNs()); diff != "" {
		t.Fatalf("summary depends on workers (-serial +parallel):\n%s", diff)
	}
	require.Len(t, serial.Accuracies, 10)
}

func TestSummaryBounds(t *testing.T) {
	t.Parallel()
	geno, y := population(t, 80, 150, 0.8, 5)
	for _, method := range []cv.Method{cv.GBLUP, cv.RRBLUP} {
		method := method
		t.Run(string(method), func(t *testing.T) {
			t.Parallel()
			s, err := cv.CrossValidate(context.Background(), cv.Input{Genotypes: geno}, y,
				cv.WithMethod(method),
				cv.WithFolds(4),
				cv.WithRepeats(2),
			)
			require.NoError(t, err)
			require.Equal(t, method, s.Method)
			require.Equal(t, 80, s.NIndividuals)
			require.Equal(t, 150, s.NMarkers)
			require.Len(t, s.Results, 8)
			for _, r := range s.Results {
				require.Empty(t, r.Err)
				require.GreaterOrEqual(t, r.Correlation, -1.0)
				require.LessOrEqual(t, r.Correlation, 1.0)
				require.Len(t, r.Predicted, len(r.Indices))
			}
			require.LessOrEqual(t, s.CILower, s.Mean)
			require.LessOrEqual(t, s.Mean, s.CIUpper)
			require.Greater(t, s.Mean, 0.0)

			sd := 0.0
			for _, a := range s.Accuracies {
				sd += (a - s.Mean) * (a - s.Mean)
			}
			sd = math.Sqrt(sd / 8)
			require.InDelta(t, sd/math.Sqrt(8), s.SE, 1e-12)
			require.InDelta(t, 1.959964*s.SE, s.CIUpper-s.Mean, 1e-6)
		})
	}
}

func TestRelationshipInputMatchesGenotypes(t *testing.T) {
	t.Parallel()
	geno, y := population(t, 40, 60, 0.6, 8)
	g, err := grm.Build(geno)
	require.NoError(t, err)

	opts := []cv.Option{cv.WithFolds(4), cv.WithSeed(3), cv.WithModel(gs.WithHeritability(0.4))}
	fromGeno, err := cv.CrossValidate(context.Background(), cv.Input{Genotypes: geno}, y, opts...)
	require.NoError(t, err)
	fromG, err := cv.CrossValidate(context.Background(), cv.Input{Relationship: g.G}, y, opts...)
	require.NoError(t, err)

	require.Zero(t, fromG.NMarkers)
	require.InDeltaSlice(t, fromGeno.Accuracies, fromG.Accuracies, 1e-9)
}

func TestMissingPhenotypesAreSkipped(t *testing.T) {
	t.Parallel()
	geno, y := population(t, 50, 60, 0.6, 9)
	y[0], y[7], y[21] = math.NaN(), math.NaN(), math.NaN()
	s, err := cv.CrossValidate(context.Background(), cv.Input{Genotypes: geno}, y,
		cv.WithMethod(cv.RRBLUP),
		cv.WithModel(gs.WithHeritability(0.5)),
	)
	require.NoError(t, err)
	scored := 0
	for _, r := range s.Results {
		require.Empty(t, r.Err)
		scored += len(r.Observed)
		for _, v := range r.Observed {
			require.False(t, math.IsNaN(v))
		}
	}
	require.Equal(t, 47, scored)
}

func TestFailedFoldScoresZero(t *testing.T) {
	t.Parallel()
	id, err := matrix.Identity(6)
	require.NoError(t, err)
	nan := math.NaN()
	y := []float64{1, 2, nan, nan, nan, nan}

	reg := prometheus.NewRegistry()
	core, logs := observer.New(zap.WarnLevel)
	s, err := cv.CrossValidate(context.Background(), cv.Input{Relationship: id}, y,
		cv.WithFolds(2),
		cv.WithLogger(zap.New(core)),
		cv.WithMetrics(metrics.MustNew(reg)),
	)
	require.NoError(t, err)
	require.Equal(t, []float64{0, 0}, s.Accuracies)
	for _, r := range s.Results {
		require.Contains(t, r.Err, "phenotyped")
	}
	require.Equal(t, 2, logs.FilterMessage("cv: fold failed").Len())

	want := `
# HELP qgen_solver_fallbacks_total Numerical fallbacks taken by the solvers.
# TYPE qgen_solver_fallbacks_total counter
qgen_solver_fallbacks_total{kind="fold_failed"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(want), "qgen_solver_fallbacks_total"))
}

func TestConfigurationErrors(t *testing.T) {
	t.Parallel()
	geno, y := population(t, 12, 20, 0.5, 1)
	id, err := matrix.Identity(12)
	require.NoError(t, err)
	cases := []struct {
		name string
		in   cv.Input
		y    []float64
		opts []cv.Option
		want error
	}{
		{"one fold", cv.Input{Genotypes: geno}, y, []cv.Option{cv.WithFolds(1)}, cv.ErrConfiguration},
		{"no repeats", cv.Input{Genotypes: geno}, y, []cv.Option{cv.WithRepeats(0)}, cv.ErrConfiguration},
		{"more folds than individuals", cv.Input{Genotypes: geno}, y, []cv.Option{cv.WithFolds(13)}, cv.ErrConfiguration},
		{"confidence", cv.Input{Genotypes: geno}, y, []cv.Option{cv.WithConfidence(1)}, cv.ErrConfiguration},
		{"unknown method", cv.Input{Genotypes: geno}, y, []cv.Option{cv.WithMethod("bayesb")}, cv.ErrConfiguration},
		{"rrblup without genotypes", cv.Input{Relationship: id}, y, []cv.Option{cv.WithMethod(cv.RRBLUP)}, cv.ErrConfiguration},
		{"no predictors", cv.Input{}, y, nil, cv.ErrConfiguration},
		{"genotype rows", cv.Input{Genotypes: geno[:10]}, y, nil, matrix.ErrDimensionMismatch},
		{"relationship shape", cv.Input{Relationship: id}, y[:10], []cv.Option{cv.WithFolds(2)}, matrix.ErrDimensionMismatch},
		{"infinite phenotype", cv.Input{Genotypes: geno}, append([]float64{math.Inf(1)}, y[1:]...), nil, matrix.ErrNaNInf},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := cv.CrossValidate(context.Background(), tc.in, tc.y, tc.opts...)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCancelled(t *testing.T) {
	t.Parallel()
	geno, y := population(t, 30, 40, 0.5, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cv.CrossValidate(ctx, cv.Input{Genotypes: geno}, y, cv.WithWorkers(2))
	require.ErrorIs(t, err, context.Canceled)
}

func TestOptions(t *testing.T) {
	t.Parallel()
	require.Panics(t, func() { cv.WithBackend(nil) })
	require.Panics(t, func() { cv.WithLogger(nil) })
	require.Panics(t, func() { cv.WithPloidy(0) })

	m, err := cv.ParseMethod("rrblup")
	require.NoError(t, err)
	require.Equal(t, cv.RRBLUP, m)
	_, err = cv.ParseMethod("lasso")
	require.ErrorIs(t, err, cv.ErrConfiguration)
}

func BenchmarkCrossValidateGBLUP(b *testing.B) {
	geno, y := population(b, 100, 200, 0.5, 1)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cv.CrossValidate(context.Background(), cv.Input{Genotypes: geno}, y,
			cv.WithModel(gs.WithHeritability(0.5))); err != nil {
			b.Fatal(err)
		}
	}
}
