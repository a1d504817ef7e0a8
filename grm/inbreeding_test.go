package grm_test

import (
	"testing"

	"github.com/katalvlaran/qgen/grm"
	"github.com/katalvlaran/qgen/matrix"
	"github.com/stretchr/testify/require"
)

func TestInbreedingSummary(t *testing.T) {
	t.Parallel()
	k, err := matrix.NewDenseFrom([][]float64{
		{1.2, 0.5, 0.1},
		{0.5, 0.9, 0.3},
		{0.1, 0.3, 1.0},
	})
	require.NoError(t, err)

	s, err := grm.Inbreeding(k)
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{0.2, -0.1, 0}, s.Coefficients, 1e-12)
	require.InDeltaSlice(t, []float64{0.3, 0.4, 0.2}, s.AverageKinship, 1e-12)
	require.InDelta(t, 0.1/3, s.MeanF, 1e-12)
	require.InDelta(t, 0.2, s.MaxF, 1e-12)
	require.InDelta(t, -0.1, s.MinF, 1e-12)
	require.Equal(t, 1, s.NInbred)
	require.Equal(t, 1, s.NOutcrossed)
	require.InDelta(t, 0.3, s.PopulationKinship, 1e-12)
	require.True(t, s.HasEffectiveSize())
	require.InDelta(t, 15.0, s.EffectiveSize, 1e-9)
}

func TestInbreedingDegenerate(t *testing.T) {
	t.Parallel()
	id, err := matrix.Identity(1)
	require.NoError(t, err)
	s, err := grm.Inbreeding(id)
	require.NoError(t, err)
	require.False(t, s.HasEffectiveSize())
	require.Equal(t, 0.0, s.PopulationKinship)

	rect, err := matrix.NewDense(2, 3)
	require.NoError(t, err)
	_, err = grm.Inbreeding(rect)
	require.ErrorIs(t, err, matrix.ErrNonSquare)
}
