// SPDX-License-Identifier: MIT

package matrix

import (
	"fmt"
	"math"
)

const opCholesky = "Cholesky"

// cholRelPivot is the relative pivot floor: a pivot below
// cholRelPivot·max|diag| is treated as numerically zero.
const cholRelPivot = 1e-13

// CholeskyFactor holds the lower-triangular factor L of A = L·Lᵀ.
type CholeskyFactor struct {
	n int
	l *Dense
}

// Cholesky factors a symmetric positive-definite matrix as A = L·Lᵀ.
//
// Implementation:
//   - Stage 1: ValidateSymmetric(m, eps) with eps from options (DefaultEpsilon).
//   - Stage 2: column-by-column Cholesky–Banachiewicz on the lower triangle.
//
// Behavior highlights:
//   - A pivot that is NaN, ≤ ZeroPivot, or below cholRelPivot·max|diag| fails
//     with ErrNotPositiveDefinite (which also matches ErrSingular).
//   - Callers wanting a ridge retry use linalg.CholeskyRidge.
//
// Errors:
//   - ErrNilMatrix, ErrNonSquare, ErrAsymmetry, ErrNotPositiveDefinite.
//
// Complexity:
//   - Time O(n³/3), Space O(n²).
func Cholesky(m Matrix, opts ...Option) (*CholeskyFactor, error) {
	o := gatherOptions(opts...)
	if err := ValidateSymmetric(m, o.eps); err != nil {
		return nil, matrixErrorf(opCholesky, err)
	}
	a, err := asDense(m)
	if err != nil {
		return nil, matrixErrorf(opCholesky, err)
	}
	n := a.r
	l, err := NewDense(n, n)
	if err != nil {
		return nil, matrixErrorf(opCholesky, err)
	}

	maxDiag := 0.0
	for i := 0; i < n; i++ {
		if v := math.Abs(a.data[i*n+i]); v > maxDiag {
			maxDiag = v
		}
	}
	floor := cholRelPivot * maxDiag

	var (
		i, j, k int
		s, ljj  float64
	)
	for j = 0; j < n; j++ {
		s = a.data[j*n+j]
		lj := l.data[j*n : j*n+j]
		for k = 0; k < j; k++ {
			s -= lj[k] * lj[k]
		}
		if math.IsNaN(s) || s <= ZeroPivot || s <= floor {
			return nil, matrixErrorf(opCholesky, fmt.Errorf("pivot %d = %g: %w", j, s, ErrNotPositiveDefinite))
		}
		ljj = math.Sqrt(s)
		l.data[j*n+j] = ljj
		for i = j + 1; i < n; i++ {
			s = a.data[i*n+j]
			li := l.data[i*n : i*n+j]
			for k = 0; k < j; k++ {
				s -= li[k] * lj[k]
			}
			l.data[i*n+j] = s / ljj
		}
	}

	return &CholeskyFactor{n: n, l: l}, nil
}

// L returns a copy of the lower-triangular factor.
func (f *CholeskyFactor) L() *Dense { return f.l.Copy() }

// Size returns n.
func (f *CholeskyFactor) Size() int { return f.n }

// LogDet returns log|A| = 2·Σ log L_ii.
func (f *CholeskyFactor) LogDet() float64 {
	s := ZeroSum
	for i := 0; i < f.n; i++ {
		s += math.Log(f.l.data[i*f.n+i])
	}

	return 2 * s
}

// Solve returns x with A·x = b by forward then backward substitution.
func (f *CholeskyFactor) Solve(b []float64) ([]float64, error) {
	if err := ValidateVecLen(b, f.n); err != nil {
		return nil, matrixErrorf(opCholesky, err)
	}
	x := make([]float64, f.n)
	copy(x, b)
	f.solveInPlace(x)

	return x, nil
}

func (f *CholeskyFactor) solveInPlace(x []float64) {
	n, d := f.n, f.l.data
	var (
		i, k int
		s    float64
	)
	// L·y = b
	for i = 0; i < n; i++ {
		s = x[i]
		row := d[i*n : i*n+i]
		for k = 0; k < i; k++ {
			s -= row[k] * x[k]
		}
		x[i] = s / d[i*n+i]
	}
	// Lᵀ·x = y
	for i = n - 1; i >= 0; i-- {
		s = x[i]
		for k = i + 1; k < n; k++ {
			s -= d[k*n+i] * x[k]
		}
		x[i] = s / d[i*n+i]
	}
}

// SolveMatrix returns X with A·X = B, column by column.
func (f *CholeskyFactor) SolveMatrix(b Matrix) (*Dense, error) {
	if err := ValidateRows(b, f.n); err != nil {
		return nil, matrixErrorf(opCholesky, err)
	}
	db, err := asDense(b)
	if err != nil {
		return nil, matrixErrorf(opCholesky, err)
	}
	res, err := NewDense(db.r, db.c)
	if err != nil {
		return nil, matrixErrorf(opCholesky, err)
	}
	col := make([]float64, f.n)
	var i, j int
	for j = 0; j < db.c; j++ {
		for i = 0; i < f.n; i++ {
			col[i] = db.data[i*db.c+j]
		}
		f.solveInPlace(col)
		for i = 0; i < f.n; i++ {
			res.data[i*db.c+j] = col[i]
		}
	}

	return res, nil
}

// Inverse returns A⁻¹, symmetrised to remove rounding asymmetry.
func (f *CholeskyFactor) Inverse() (*Dense, error) {
	id, err := Identity(f.n)
	if err != nil {
		return nil, matrixErrorf(opCholesky, err)
	}
	inv, err := f.SolveMatrix(id)
	if err != nil {
		return nil, err
	}
	if err = Symmetrize(inv); err != nil {
		return nil, matrixErrorf(opCholesky, err)
	}

	return inv, nil
}
