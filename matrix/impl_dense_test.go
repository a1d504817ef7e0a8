// Package matrix_test contains unit tests for the Dense implementation
// of the Matrix interface in the matrix package.
package matrix_test

import (
	"math"
	"testing"

	"github.com/katalvlaran/qgen/matrix"
	"github.com/stretchr/testify/require"
)

// TestNewDenseInvalidDimensions ensures that NewDense rejects non-positive dimensions.
func TestNewDenseInvalidDimensions(t *testing.T) {
	t.Parallel()
	_, err := matrix.NewDense(0, 5)
	require.ErrorIs(t, err, matrix.ErrInvalidDimensions)

	_, err = matrix.NewDense(5, 0)
	require.ErrorIs(t, err, matrix.ErrInvalidDimensions)
}

// TestAtSetOutOfBounds ensures At() and Set() return ErrOutOfRange on invalid access.
func TestAtSetOutOfBounds(t *testing.T) {
	t.Parallel()
	m := MustDense(t, 2, 2)

	_, err := m.At(-1, 0)
	require.ErrorIs(t, err, matrix.ErrOutOfRange)
	_, err = m.At(0, 2)
	require.ErrorIs(t, err, matrix.ErrOutOfRange)
	require.ErrorIs(t, m.Set(2, 0, 1.23), matrix.ErrOutOfRange)
	require.ErrorIs(t, m.Set(0, -1, 4.56), matrix.ErrOutOfRange)
}

// TestSetRejectsNaN checks the default finite-only policy.
func TestSetRejectsNaN(t *testing.T) {
	t.Parallel()
	m := MustDense(t, 1, 1)
	require.ErrorIs(t, m.Set(0, 0, math.NaN()), matrix.ErrNaNInf)
	require.ErrorIs(t, m.Set(0, 0, math.Inf(1)), matrix.ErrNaNInf)
}

func TestNewDenseFrom(t *testing.T) {
	t.Parallel()

	m := FromRows(t, [][]float64{{1, 2, 3}, {4, 5, 6}})
	r, c := m.Shape()
	require.Equal(t, 2, r)
	require.Equal(t, 3, c)
	require.Equal(t, []float64{4, 5, 6}, m.Row(1))
	require.Equal(t, []float64{3, 6}, m.Col(2))
	require.Equal(t, "[1, 2, 3]\n[4, 5, 6]\n", m.String())

	_, err := matrix.NewDenseFrom([][]float64{{1, 2}, {3}})
	require.ErrorIs(t, err, matrix.ErrDimensionMismatch)

	_, err = matrix.NewDenseFrom(nil)
	require.ErrorIs(t, err, matrix.ErrInvalidDimensions)

	_, err = matrix.NewDenseFrom([][]float64{{math.NaN()}})
	require.ErrorIs(t, err, matrix.ErrNaNInf)

	g, err := matrix.NewDenseFrom([][]float64{{math.NaN(), 1}}, matrix.WithNoValidateNaNInf())
	require.NoError(t, err)
	v, _ := g.At(0, 0)
	require.True(t, math.IsNaN(v))
}

// TestCloneIndependence ensures Clone() returns a deep copy that does not share storage.
func TestCloneIndependence(t *testing.T) {
	t.Parallel()
	m := FromRows(t, [][]float64{{1, 0}, {0, 2}})
	clone := m.Clone()
	require.NoError(t, clone.Set(0, 0, 3.0))

	orig, err := m.At(0, 0)
	require.NoError(t, err)
	require.Equal(t, 1.0, orig)
}

func TestIdentityDiagonalTrace(t *testing.T) {
	t.Parallel()
	id, err := matrix.Identity(3)
	require.NoError(t, err)
	require.Equal(t, 3.0, id.Trace())

	d, err := matrix.Diagonal([]float64{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, []float64{1, 2, 3}, d.Diag())
	require.Equal(t, 6.0, d.Trace())
}

func TestInduced(t *testing.T) {
	t.Parallel()
	m := FromRows(t, [][]float64{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}})

	sub, err := m.Induced([]int{0, 2}, []int{0, 2})
	require.NoError(t, err)
	require.Equal(t, [][]float64{{1, 3}, {7, 9}}, sub.ToRows())

	_, err = m.Induced([]int{3}, []int{0})
	require.ErrorIs(t, err, matrix.ErrOutOfRange)

	_, err = m.Induced(nil, []int{0})
	require.ErrorIs(t, err, matrix.ErrInvalidDimensions)
}

func TestApplyDo(t *testing.T) {
	t.Parallel()
	m := FromRows(t, [][]float64{{1, 2}, {3, 4}})
	require.NoError(t, m.Apply(func(_, _ int, v float64) float64 { return 2 * v }))
	require.Equal(t, [][]float64{{2, 4}, {6, 8}}, m.ToRows())

	var visited int
	m.Do(func(_, _ int, _ float64) bool {
		visited++
		return visited < 3
	})
	require.Equal(t, 3, visited)

	err := m.Apply(func(_, _ int, _ float64) float64 { return math.NaN() })
	require.ErrorIs(t, err, matrix.ErrNaNInf)
}

func TestAsDenseFallback(t *testing.T) {
	t.Parallel()
	m := FromRows(t, [][]float64{{1, 2}, {3, 4}})
	d, err := matrix.AsDense(m)
	require.NoError(t, err)
	require.Same(t, m, d)

	cp, err := matrix.AsDense(hide{m})
	require.NoError(t, err)
	require.NotSame(t, m, cp)
	require.Equal(t, m.ToRows(), cp.ToRows())

	var nilDense *matrix.Dense
	_, err = matrix.AsDense(nilDense)
	require.ErrorIs(t, err, matrix.ErrNilMatrix)
}
