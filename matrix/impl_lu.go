// SPDX-License-Identifier: MIT

package matrix

import (
	"fmt"
	"math"
)

const (
	opLU      = "LU"
	opInverse = "Inverse"
)

// luRelPivot is the relative pivot floor used by LU.
const luRelPivot = 1e-14

// LUFactor is a row-pivoted Doolittle factorization P·A = L·U stored in
// place: the strict lower triangle holds L (unit diagonal implied), the upper
// triangle holds U.
type LUFactor struct {
	n    int
	lu   *Dense
	piv  []int
	sign float64
}

// LU computes P·A = L·U with partial pivoting.
//
// Implementation:
//   - Stage 1: ValidateSquare(m); copy into a working buffer.
//   - Stage 2: for each column k pick the row with the largest |a_ik|
//     (first index wins on ties), swap, eliminate below the pivot.
//
// Errors:
//   - ErrNilMatrix, ErrNonSquare.
//   - ErrSingular when a pivot falls below luRelPivot·max|a|.
//
// Determinism:
//   - Fixed scan order; ties resolved by the lowest row index.
//
// Complexity:
//   - Time O(2n³/3), Space O(n²).
func LU(m Matrix) (*LUFactor, error) {
	if err := ValidateSquare(m); err != nil {
		return nil, matrixErrorf(opLU, err)
	}
	src, err := asDense(m)
	if err != nil {
		return nil, matrixErrorf(opLU, err)
	}
	a := src.Copy()
	n := a.r
	piv := make([]int, n)
	for i := range piv {
		piv[i] = i
	}
	scale := 0.0
	for _, v := range a.data {
		if av := math.Abs(v); av > scale {
			scale = av
		}
	}
	floor := luRelPivot * scale
	sign := 1.0

	var (
		i, j, k, p int
		maxAbs, f  float64
	)
	for k = 0; k < n; k++ {
		p, maxAbs = k, math.Abs(a.data[k*n+k])
		for i = k + 1; i < n; i++ {
			if v := math.Abs(a.data[i*n+k]); v > maxAbs {
				p, maxAbs = i, v
			}
		}
		if maxAbs <= ZeroPivot || maxAbs <= floor || math.IsNaN(maxAbs) {
			return nil, matrixErrorf(opLU, fmt.Errorf("pivot %d: %w", k, ErrSingular))
		}
		if p != k {
			rk := a.data[k*n : (k+1)*n]
			rp := a.data[p*n : (p+1)*n]
			for j = 0; j < n; j++ {
				rk[j], rp[j] = rp[j], rk[j]
			}
			piv[k], piv[p] = piv[p], piv[k]
			sign = -sign
		}
		pivot := a.data[k*n+k]
		for i = k + 1; i < n; i++ {
			f = a.data[i*n+k] / pivot
			a.data[i*n+k] = f
			if f == 0 {
				continue
			}
			for j = k + 1; j < n; j++ {
				a.data[i*n+j] -= f * a.data[k*n+j]
			}
		}
	}

	return &LUFactor{n: n, lu: a, piv: piv, sign: sign}, nil
}

// Det returns det(A).
func (f *LUFactor) Det() float64 {
	d := f.sign
	for i := 0; i < f.n; i++ {
		d *= f.lu.data[i*f.n+i]
	}

	return d
}

// Solve returns x with A·x = b.
func (f *LUFactor) Solve(b []float64) ([]float64, error) {
	if err := ValidateVecLen(b, f.n); err != nil {
		return nil, matrixErrorf(opLU, err)
	}
	n, d := f.n, f.lu.data
	x := make([]float64, n)
	var (
		i, k int
		s    float64
	)
	for i = 0; i < n; i++ {
		x[i] = b[f.piv[i]]
	}
	for i = 0; i < n; i++ {
		s = x[i]
		for k = 0; k < i; k++ {
			s -= d[i*n+k] * x[k]
		}
		x[i] = s
	}
	for i = n - 1; i >= 0; i-- {
		s = x[i]
		for k = i + 1; k < n; k++ {
			s -= d[i*n+k] * x[k]
		}
		x[i] = s / d[i*n+i]
	}

	return x, nil
}

// Inverse computes m⁻¹ through a pivoted LU factorization.
//
// Errors:
//   - ErrNilMatrix, ErrNonSquare, ErrSingular (all wrapped with "Inverse").
//
// Complexity:
//   - Time O(n³), Space O(n²).
func Inverse(m Matrix) (*Dense, error) {
	f, err := LU(m)
	if err != nil {
		return nil, matrixErrorf(opInverse, err)
	}
	n := f.n
	inv, err := NewDense(n, n)
	if err != nil {
		return nil, matrixErrorf(opInverse, err)
	}
	e := make([]float64, n)
	var i, col int
	for col = 0; col < n; col++ {
		for i = range e {
			e[i] = 0
		}
		e[col] = 1
		x, serr := f.Solve(e)
		if serr != nil {
			return nil, matrixErrorf(opInverse, serr)
		}
		for i = 0; i < n; i++ {
			inv.data[i*n+col] = x[i]
		}
	}

	return inv, nil
}
