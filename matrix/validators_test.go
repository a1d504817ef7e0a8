package matrix_test

import (
	"math"
	"testing"

	"github.com/katalvlaran/qgen/matrix"
	"github.com/stretchr/testify/require"
)

func TestValidators(t *testing.T) {
	t.Parallel()
	sq := FromRows(t, [][]float64{{1, 2}, {2, 1}})
	rect := MustDense(t, 2, 3)

	require.NoError(t, matrix.ValidateSquare(sq))
	require.ErrorIs(t, matrix.ValidateSquare(rect), matrix.ErrNonSquare)
	require.ErrorIs(t, matrix.ValidateSquare(nil), matrix.ErrNilMatrix)

	require.NoError(t, matrix.ValidateSquareOf(sq, 2))
	require.ErrorIs(t, matrix.ValidateSquareOf(sq, 3), matrix.ErrDimensionMismatch)
	require.ErrorIs(t, matrix.ValidateRows(rect, 3), matrix.ErrDimensionMismatch)

	require.NoError(t, matrix.ValidateSymmetric(sq, 0))
	require.NoError(t, matrix.ValidateSymmetric(hide{sq}, 0))
	require.ErrorIs(t, matrix.ValidateSymmetric(FromRows(t, [][]float64{{1, 2}, {2.1, 1}}), 0.01), matrix.ErrAsymmetry)
	require.ErrorIs(t, matrix.ValidateSymmetric(sq, math.NaN()), matrix.ErrNaNInf)

	require.NoError(t, matrix.ValidateMulCompatible(sq, rect.Clone()))
	require.ErrorIs(t, matrix.ValidateMulCompatible(rect, sq), matrix.ErrDimensionMismatch)

	nanTable, err := matrix.NewDenseFrom([][]float64{{1, math.NaN()}}, matrix.WithNoValidateNaNInf())
	require.NoError(t, err)
	require.ErrorIs(t, matrix.ValidateFinite(nanTable), matrix.ErrNaNInf)
	require.NoError(t, matrix.ValidateFinite(sq))
}

func TestOptionsPanicOnNonsense(t *testing.T) {
	t.Parallel()
	require.Panics(t, func() { matrix.WithEpsilon(-1) })
	require.Panics(t, func() { matrix.WithEigenTolerance(0) })
	require.Panics(t, func() { matrix.WithEigenMaxSweeps(0) })
}
