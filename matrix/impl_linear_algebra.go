// SPDX-License-Identifier: MIT
// Package matrix provides universal operations on any Matrix implementation:
// element-wise addition and subtraction, scaling, products (A·B, Aᵀ·B, A·Aᵀ,
// Aᵀ·A), transpose, matrix-vector products and diagonal shifts. All functions
// perform strict fail-fast validation and return clear errors on dimension
// mismatches. Results are always freshly allocated *Dense values; operands are
// never mutated.
//
// Notes:
//   - Factorizations live in impl_cholesky.go, impl_lu.go and impl_eigen.go.
//   - Every kernel converts its operands with asDense, which is zero-copy for *Dense.

package matrix

import (
	"fmt"
)

// ZeroSum is the initial sum value for dot products and substitution.
const ZeroSum = 0.0

// ZeroPivot is the lower bound a pivot must exceed in LU/Cholesky.
const ZeroPivot = 0.0

const (
	opAdd        = "Add"
	opSub        = "Sub"
	opMul        = "Mul"
	opMulTransA  = "MulTransA"
	opTranspose  = "Transpose"
	opScale      = "Scale"
	opMatVec     = "MatVec"
	opMatTVec    = "MatTVec"
	opGram       = "Gram"
	opCrossProd  = "CrossProd"
	opAddDiag    = "AddDiagonal"
	opSymmetrize = "Symmetrize"
)

// matrixErrorf wraps err with an operation tag, preserving the original error via %w.
// Use only when err != nil.
func matrixErrorf(tag string, err error) error {
	return fmt.Errorf("%s: %w", tag, err)
}

// addSub computes out = a + sign*b for sign ∈ {+1, -1}.
func addSub(a, b Matrix, sign float64, opTag string) (*Dense, error) {
	if err := ValidateBinarySameShape(a, b); err != nil {
		return nil, matrixErrorf(opTag, err)
	}
	da, err := asDense(a)
	if err != nil {
		return nil, matrixErrorf(opTag, err)
	}
	db, err := asDense(b)
	if err != nil {
		return nil, matrixErrorf(opTag, err)
	}
	res, err := NewDense(da.r, da.c)
	if err != nil {
		return nil, matrixErrorf(opTag, err)
	}
	for k := range res.data {
		res.data[k] = da.data[k] + sign*db.data[k]
	}

	return res, nil
}

// Add returns a + b.
//
// Errors: ErrNilMatrix, ErrDimensionMismatch (wrapped with "Add").
// Complexity: O(r*c).
func Add(a, b Matrix) (*Dense, error) { return addSub(a, b, +1, opAdd) }

// Sub returns a - b.
func Sub(a, b Matrix) (*Dense, error) { return addSub(a, b, -1, opSub) }

// Scale returns alpha·m.
func Scale(m Matrix, alpha float64) (*Dense, error) {
	if err := ValidateNotNil(m); err != nil {
		return nil, matrixErrorf(opScale, err)
	}
	d, err := asDense(m)
	if err != nil {
		return nil, matrixErrorf(opScale, err)
	}
	res := d.Copy()
	for k := range res.data {
		res.data[k] *= alpha
	}

	return res, nil
}

// Mul returns the product a·b.
//
// Implementation:
//   - Stage 1: ValidateMulCompatible(a, b).
//   - Stage 2: i-k-j loop over flat buffers; zero entries of a are skipped,
//     which pays off for incidence matrices (design X and Z are mostly zeros).
//
// Errors: ErrNilMatrix, ErrDimensionMismatch.
// Complexity: O(r·k·c) worst case.
func Mul(a, b Matrix) (*Dense, error) {
	if err := ValidateMulCompatible(a, b); err != nil {
		return nil, matrixErrorf(opMul, err)
	}
	da, err := asDense(a)
	if err != nil {
		return nil, matrixErrorf(opMul, err)
	}
	db, err := asDense(b)
	if err != nil {
		return nil, matrixErrorf(opMul, err)
	}
	aRows, aCols, bCols := da.r, da.c, db.c
	res, err := NewDense(aRows, bCols)
	if err != nil {
		return nil, matrixErrorf(opMul, err)
	}
	var (
		i, j, k                          int
		av                               float64
		rowOffsetA, rowOffsetB, rowOffsR int
	)
	for i = 0; i < aRows; i++ {
		rowOffsetA = i * aCols
		rowOffsR = i * bCols
		for k = 0; k < aCols; k++ {
			av = da.data[rowOffsetA+k]
			if av == 0 {
				continue
			}
			rowOffsetB = k * bCols
			for j = 0; j < bCols; j++ {
				res.data[rowOffsR+j] += av * db.data[rowOffsetB+j]
			}
		}
	}

	return res, nil
}

// MulTransA returns aᵀ·b without materialising aᵀ.
// Requires a.Rows == b.Rows.
func MulTransA(a, b Matrix) (*Dense, error) {
	if err := ValidateNotNil(a); err != nil {
		return nil, matrixErrorf(opMulTransA, err)
	}
	if err := ValidateNotNil(b); err != nil {
		return nil, matrixErrorf(opMulTransA, err)
	}
	if a.Rows() != b.Rows() {
		return nil, matrixErrorf(opMulTransA, ErrDimensionMismatch)
	}
	da, err := asDense(a)
	if err != nil {
		return nil, matrixErrorf(opMulTransA, err)
	}
	db, err := asDense(b)
	if err != nil {
		return nil, matrixErrorf(opMulTransA, err)
	}
	n, p, q := da.r, da.c, db.c
	res, err := NewDense(p, q)
	if err != nil {
		return nil, matrixErrorf(opMulTransA, err)
	}
	var (
		r, i, j int
		av      float64
	)
	for r = 0; r < n; r++ {
		arow := da.data[r*p : (r+1)*p]
		brow := db.data[r*q : (r+1)*q]
		for i = 0; i < p; i++ {
			av = arow[i]
			if av == 0 {
				continue
			}
			out := res.data[i*q : (i+1)*q]
			for j = 0; j < q; j++ {
				out[j] += av * brow[j]
			}
		}
	}

	return res, nil
}

// CrossProd returns aᵀ·a (symmetric p×p).
func CrossProd(a Matrix) (*Dense, error) {
	res, err := MulTransA(a, a)
	if err != nil {
		return nil, matrixErrorf(opCrossProd, err)
	}

	return res, nil
}

// Gram returns a·aᵀ (symmetric r×r), computing the upper triangle only and
// mirroring it, so the result is exactly symmetric.
//
// Complexity: O(r²·c/2).
func Gram(a Matrix) (*Dense, error) {
	if err := ValidateNotNil(a); err != nil {
		return nil, matrixErrorf(opGram, err)
	}
	da, err := asDense(a)
	if err != nil {
		return nil, matrixErrorf(opGram, err)
	}
	n, c := da.r, da.c
	res, err := NewDense(n, n)
	if err != nil {
		return nil, matrixErrorf(opGram, err)
	}
	var (
		i, j, k int
		acc     float64
	)
	for i = 0; i < n; i++ {
		ri := da.data[i*c : (i+1)*c]
		for j = i; j < n; j++ {
			rj := da.data[j*c : (j+1)*c]
			acc = ZeroSum
			for k = 0; k < c; k++ {
				acc += ri[k] * rj[k]
			}
			res.data[i*n+j] = acc
			res.data[j*n+i] = acc
		}
	}

	return res, nil
}

// Transpose returns a new matrix with rows and columns swapped (mᵀ).
func Transpose(m Matrix) (*Dense, error) {
	if err := ValidateNotNil(m); err != nil {
		return nil, matrixErrorf(opTranspose, err)
	}
	d, err := asDense(m)
	if err != nil {
		return nil, matrixErrorf(opTranspose, err)
	}
	res, err := NewDense(d.c, d.r)
	if err != nil {
		return nil, matrixErrorf(opTranspose, err)
	}
	var i, j int
	for i = 0; i < d.r; i++ {
		for j = 0; j < d.c; j++ {
			res.data[j*d.r+i] = d.data[i*d.c+j]
		}
	}

	return res, nil
}

// MatVec computes y = m·x.
//
// Errors: ErrNilMatrix (nil m or x), ErrDimensionMismatch (len(x) != Cols).
// Complexity: O(r*c).
func MatVec(m Matrix, x []float64) ([]float64, error) {
	if err := ValidateNotNil(m); err != nil {
		return nil, matrixErrorf(opMatVec, err)
	}
	if err := ValidateVecLen(x, m.Cols()); err != nil {
		return nil, matrixErrorf(opMatVec, err)
	}
	d, err := asDense(m)
	if err != nil {
		return nil, matrixErrorf(opMatVec, err)
	}
	y := make([]float64, d.r)
	var (
		i, j, base int
		acc, xv    float64
	)
	for i = 0; i < d.r; i++ {
		acc = ZeroSum
		base = i * d.c
		for j = 0; j < d.c; j++ {
			xv = x[j]
			if xv != 0 {
				acc += d.data[base+j] * xv
			}
		}
		y[i] = acc
	}

	return y, nil
}

// MatTVec computes y = mᵀ·x without materialising mᵀ.
func MatTVec(m Matrix, x []float64) ([]float64, error) {
	if err := ValidateNotNil(m); err != nil {
		return nil, matrixErrorf(opMatTVec, err)
	}
	if err := ValidateVecLen(x, m.Rows()); err != nil {
		return nil, matrixErrorf(opMatTVec, err)
	}
	d, err := asDense(m)
	if err != nil {
		return nil, matrixErrorf(opMatTVec, err)
	}
	y := make([]float64, d.c)
	var (
		i, j int
		xv   float64
	)
	for i = 0; i < d.r; i++ {
		xv = x[i]
		if xv == 0 {
			continue
		}
		row := d.data[i*d.c : (i+1)*d.c]
		for j = 0; j < d.c; j++ {
			y[j] += row[j] * xv
		}
	}

	return y, nil
}

// AddDiagonal returns m + alpha·I for a square m.
func AddDiagonal(m Matrix, alpha float64) (*Dense, error) {
	if err := ValidateSquare(m); err != nil {
		return nil, matrixErrorf(opAddDiag, err)
	}
	d, err := asDense(m)
	if err != nil {
		return nil, matrixErrorf(opAddDiag, err)
	}
	res := d.Copy()
	n := res.r
	for i := 0; i < n; i++ {
		res.data[i*n+i] += alpha
	}

	return res, nil
}

// Symmetrize overwrites a square *Dense with (m + mᵀ)/2 in place.
// Used to remove rounding asymmetry after products such as V⁻¹·X·...·V⁻¹.
func Symmetrize(m *Dense) error {
	if err := ValidateSquare(m); err != nil {
		return matrixErrorf(opSymmetrize, err)
	}
	n := m.r
	var (
		i, j int
		avg  float64
	)
	for i = 0; i < n; i++ {
		for j = i + 1; j < n; j++ {
			avg = 0.5 * (m.data[i*n+j] + m.data[j*n+i])
			m.data[i*n+j] = avg
			m.data[j*n+i] = avg
		}
	}

	return nil
}

// Dot returns Σ x_i·y_i over the common prefix of x and y.
// Callers validate lengths; Dot itself never fails.
func Dot(x, y []float64) float64 {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	s := ZeroSum
	for i := 0; i < n; i++ {
		s += x[i] * y[i]
	}

	return s
}

// TraceProduct returns tr(a·b) = Σ_ij a_ij·b_ji without forming the product.
func TraceProduct(a, b *Dense) (float64, error) {
	if err := ValidateMulCompatible(a, b); err != nil {
		return 0, matrixErrorf("TraceProduct", err)
	}
	if a.r != b.c {
		return 0, matrixErrorf("TraceProduct", ErrDimensionMismatch)
	}
	s := ZeroSum
	var i, j int
	for i = 0; i < a.r; i++ {
		for j = 0; j < a.c; j++ {
			s += a.data[i*a.c+j] * b.data[j*b.c+i]
		}
	}

	return s, nil
}
