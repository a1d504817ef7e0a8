package gs_test

import (
	"context"
	"math"
	"testing"

	"github.com/katalvlaran/qgen/grm"
	"github.com/katalvlaran/qgen/gs"
	"github.com/katalvlaran/qgen/matrix"
	"github.com/katalvlaran/qgen/reml"
	"github.com/katalvlaran/qgen/simulate"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

// scenario simulates n individuals at m markers with nCausal causal markers
// and h² = 0.5.
func scenario(t testing.TB, n, m, nCausal int, seed int64) (*simulate.Population, *simulate.Phenotypes) {
	t.Helper()
	pop, err := simulate.Genotypes(n, m, simulate.WithSeed(seed))
	require.NoError(t, err)
	ph, err := pop.Phenotypes(nCausal, 0.5, simulate.WithSeed(seed+1000))
	require.NoError(t, err)

	return pop, ph
}

// families is two unrelated half-sib families of four.
func families(t testing.TB) *matrix.Dense {
	t.Helper()
	g, err := matrix.NewDense(8, 8)
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			switch {
			case i == j:
				require.NoError(t, g.Set(i, j, 1))
			case i/4 == j/4:
				require.NoError(t, g.Set(i, j, 0.5))
			}
		}
	}

	return g
}

func TestEndToEndMarkerEffects(t *testing.T) {
	t.Parallel()
	// causal markers should stand out from null ones in most replicates
	wins := 0
	for seed := int64(1); seed <= 5; seed++ {
		pop, ph := scenario(t, 50, 100, 5, seed)
		res, err := gs.RunRRBLUP(pop.Dosages, ph.Y)
		require.NoError(t, err)
		require.Len(t, res.MarkerEffects, 100)
		require.Len(t, res.GEBV, 50)
		require.Greater(t, res.Accuracy, 0.0)
		require.Greater(t, gs.Pearson(res.GEBV, ph.TrueBV), 0.0)

		causal := make(map[int]bool, len(ph.Causal))
		for _, j := range ph.Causal {
			causal[j] = true
		}
		var sumC, sumN float64
		for j, a := range res.MarkerEffects {
			if causal[j] {
				sumC += math.Abs(a)
			} else {
				sumN += math.Abs(a)
			}
		}
		if sumC/5 > sumN/95 {
			wins++
		}
	}
	require.GreaterOrEqual(t, wins, 4)
}

func TestRRBLUPOutputs(t *testing.T) {
	t.Parallel()
	pop, ph := scenario(t, 60, 80, 4, 11)
	res, err := gs.RunRRBLUP(pop.Dosages, ph.Y)
	require.NoError(t, err)
	require.NotNil(t, res.REML)
	require.Equal(t, 60, res.NIndividuals)
	require.Equal(t, 80, res.NMarkers)

	v := res.Variance
	require.GreaterOrEqual(t, v.Heritability, 0.0)
	require.LessOrEqual(t, v.Heritability, 1.0)
	require.InEpsilon(t, v.VarResidual/v.VarMarker, v.Lambda, 1e-9)
	scale := 0.0
	for _, p := range res.Frequencies {
		scale += 2 * p * (1 - p)
	}
	require.InEpsilon(t, v.VarMarker*scale, v.VarGenetic, 1e-9)

	require.GreaterOrEqual(t, res.EffectiveDF, 0.0)
	require.LessOrEqual(t, res.EffectiveDF, 80.0)
	require.GreaterOrEqual(t, res.ResidualDF, 1.0)
	significant := 0
	for j := range res.MarkerEffects {
		require.GreaterOrEqual(t, res.PValues[j], 0.0)
		require.LessOrEqual(t, res.PValues[j], 1.0)
		require.GreaterOrEqual(t, res.PVE[j], 0.0)
		require.Greater(t, res.SE[j], 0.0)
		if res.PValues[j] < 0.05 {
			significant++
		}
	}
	require.Equal(t, significant, res.NSignificant)
	require.InDelta(t, stat.Mean(ph.Y, nil), res.Mean, 1e-8)

	// predicting the training set reproduces the fitted GEBVs
	pred, err := res.Predict(pop.Dosages)
	require.NoError(t, err)
	require.InDeltaSlice(t, res.GEBV, pred, 1e-9)
}

func TestGBLUPAndRRBLUPAreDual(t *testing.T) {
	t.Parallel()
	pop, ph := scenario(t, 80, 150, 10, 21)
	rr, err := gs.RunRRBLUP(pop.Dosages, ph.Y)
	require.NoError(t, err)
	gb, err := gs.GBLUPFromGenotypes(context.Background(), pop.Dosages, ph.Y)
	require.NoError(t, err)
	require.NotNil(t, gb.GRM)
	require.Greater(t, gs.Pearson(rr.GEBV, gb.GEBV), 0.9)

	// with the heritability fixed the two are the same estimator
	rrH, err := gs.RunRRBLUP(pop.Dosages, ph.Y, gs.WithHeritability(0.5))
	require.NoError(t, err)
	gbH, err := gs.GBLUPFromGenotypes(context.Background(), pop.Dosages, ph.Y, gs.WithHeritability(0.5))
	require.NoError(t, err)
	require.Nil(t, rrH.REML)
	require.Nil(t, gbH.Variance)
	require.Greater(t, gs.Pearson(rrH.GEBV, gbH.GEBV), 0.99)
}

func TestGBLUPFixedHeritabilityClosedForm(t *testing.T) {
	t.Parallel()
	// G = I and h² = ½: λ = 1, μ̂ = ȳ and û = (y − ȳ)/2
	y := []float64{4, 6, 5, 9, 1}
	id, err := matrix.Identity(5)
	require.NoError(t, err)
	res, err := gs.RunGBLUP(id, y, gs.WithHeritability(0.5))
	require.NoError(t, err)
	require.InDelta(t, 5, res.Mean, 1e-10)
	require.InDeltaSlice(t, []float64{-0.5, 0.5, 0, 2, -2}, res.GEBV, 1e-10)
	require.InDelta(t, 0.5, res.Heritability, 1e-12)
	require.InDelta(t, 1, res.Accuracy, 1e-12)
	for _, r := range res.Reliability {
		require.Greater(t, r, 0.0)
		require.Less(t, r, 1.0)
	}
	require.Equal(t, []int{0, 1, 2, 3, 4}, res.Observed)
}

func TestGBLUPPredictsMaskedRelatives(t *testing.T) {
	t.Parallel()
	g := families(t)
	nan := math.NaN()
	y := []float64{nan, 13, 12, 13, nan, 7, 8, 7}
	res, err := gs.RunGBLUP(g, y, gs.WithHeritability(0.5))
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 5, 6, 7}, res.Observed)
	require.Len(t, res.GEBV, 8)
	require.Greater(t, res.GEBV[0], 0.0)
	require.Less(t, res.GEBV[4], 0.0)
	require.Less(t, res.Reliability[0], res.Reliability[1])

	// relationships to the fitted individuals reproduce their GEBVs
	pred, err := res.PredictNew(g)
	require.NoError(t, err)
	require.InDeltaSlice(t, res.GEBV, pred, 1e-8)

	_, err = res.PredictGenotypes([][]float64{{0, 1}})
	require.ErrorIs(t, err, gs.ErrNoGenotypes)
	wrong, _ := matrix.NewDense(2, 3)
	_, err = res.PredictNew(wrong)
	require.ErrorIs(t, err, matrix.ErrDimensionMismatch)
}

func TestGBLUPWithREML(t *testing.T) {
	t.Parallel()
	pop, ph := scenario(t, 60, 120, 6, 31)
	res, err := gs.GBLUPFromGenotypes(context.Background(), pop.Dosages, ph.Y,
		gs.WithREML(reml.WithMethod(reml.AI)),
		gs.WithGRM(grm.WithMinMAF(0.01)),
	)
	require.NoError(t, err)
	require.NotNil(t, res.Variance)
	require.GreaterOrEqual(t, res.Heritability, 0.0)
	require.LessOrEqual(t, res.Heritability, 1.0)
	require.Greater(t, res.Accuracy, 0.0)

	pred, err := res.PredictGenotypes(pop.Dosages[:5])
	require.NoError(t, err)
	require.InDeltaSlice(t, res.GEBV[:5], pred, 1e-3)
}

func TestErrors(t *testing.T) {
	t.Parallel()
	_, err := gs.RunRRBLUP([][]float64{{0, 1}, {1, 2}}, []float64{1, 2})
	require.ErrorIs(t, err, gs.ErrTooFewIndividuals)
	_, err = gs.RunRRBLUP([][]float64{{0, 1}, {1, 2}, {2, 0}}, []float64{1, 2})
	require.ErrorIs(t, err, matrix.ErrDimensionMismatch)
	_, err = gs.RunRRBLUP([][]float64{{0, 1}, {1, 2}, {2, 0}}, []float64{1, math.NaN(), 3})
	require.ErrorIs(t, err, matrix.ErrNaNInf)
	_, err = gs.RunRRBLUP([][]float64{{0, 1}, {1, 5}, {2, 0}}, []float64{1, 2, 3})
	require.ErrorIs(t, err, grm.ErrInvalidDosage)

	g := families(t)
	_, err = gs.RunGBLUP(g, []float64{1, 2, 3})
	require.ErrorIs(t, err, matrix.ErrDimensionMismatch)
	nan := math.NaN()
	_, err = gs.RunGBLUP(g, []float64{1, 2, nan, nan, nan, nan, nan, nan})
	require.ErrorIs(t, err, gs.ErrTooFewIndividuals)
	_, err = gs.RunGBLUP(g, []float64{1, 2, 3, 4, 5, 6, 7, math.Inf(1)})
	require.ErrorIs(t, err, matrix.ErrNaNInf)
	_, err = gs.RunGBLUP(nil, nil)
	require.ErrorIs(t, err, matrix.ErrNilMatrix)
}

func TestSelection(t *testing.T) {
	t.Parallel()
	tests := []struct {
		p, want float64
	}{
		{0.01, 2.665},
		{0.05, 2.063},
		{0.10, 1.755},
		{0.20, 1.400},
		{0.50, 0.798},
	}
	for _, tc := range tests {
		i, err := gs.SelectionIntensity(tc.p)
		require.NoError(t, err)
		require.InDelta(t, tc.want, i, 1e-3, "p=%g", tc.p)
	}
	for _, bad := range []float64{0, 1, -0.2, math.NaN()} {
		_, err := gs.SelectionIntensity(bad)
		require.ErrorIs(t, err, gs.ErrInvalidProportion)
	}

	require.InDelta(t, 1.755*0.6*1.5, gs.SelectionResponse(1.755, 0.6, 1.5), 1e-12)
	r, err := gs.ExpectedResponse(0.1, 0.6, 2.25, 5)
	require.NoError(t, err)
	require.InDelta(t, 1.5, r.GeneticSD, 1e-12)
	require.InDelta(t, 1.58, r.Response, 1e-3)
	require.InDelta(t, 31.6, r.Relative, 0.1)
}

func TestPearson(t *testing.T) {
	t.Parallel()
	require.InDelta(t, 1, gs.Pearson([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-12)
	require.InDelta(t, -1, gs.Pearson([]float64{1, 2, 3}, []float64{3, 2, 1}), 1e-12)
	require.Zero(t, gs.Pearson([]float64{1, 1, 1}, []float64{1, 2, 3}))
	require.Zero(t, gs.Pearson([]float64{1}, []float64{1}))
	require.Zero(t, gs.Pearson([]float64{1, 2}, []float64{1, 2, 3}))
}

func TestOptionPanics(t *testing.T) {
	t.Parallel()
	require.Panics(t, func() { gs.WithPloidy(0) })
	require.Panics(t, func() { gs.WithHeritability(0) })
	require.Panics(t, func() { gs.WithHeritability(1) })
	require.Panics(t, func() { gs.WithSignificance(0) })
	require.Panics(t, func() { gs.WithBackend(nil) })
	require.Panics(t, func() { gs.WithLogger(nil) })
}
