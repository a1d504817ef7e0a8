// SPDX-License-Identifier: MIT
// Package: matrix
//
// Purpose:
//  - Provide a single, canonical source of truth for common validation checks.
//  - Keep kernels minimal by delegating shape/nil/symmetry checks here.
//
// Determinism & Performance:
//  - All checks are pure, deterministic and allocate nothing.
//  - Symmetry check runs O(n²) on the upper triangle only.
//
// AI-Hints:
//  - Use ValidateSymmetric before spectral methods (Jacobi) and Cholesky to fail fast.
//  - Use ValidateVecLen for any MatVec-like operation to avoid ad hoc length code.
//  - Higher layers call ValidateRows/ValidateSquareOf before allocating anything.

package matrix

import (
	"fmt"
	"math"
)

func validatorErrorf(tag string, err error) error {
	return fmt.Errorf("%s: %w", tag, err)
}

// ValidateNotNil ensures the matrix reference is non-nil, including a typed
// nil *Dense stored in the interface.
func ValidateNotNil(m Matrix) error {
	if m == nil {
		return validatorErrorf("ValidateNotNil", ErrNilMatrix)
	}
	if d, ok := m.(*Dense); ok && d == nil {
		return validatorErrorf("ValidateNotNil", ErrNilMatrix)
	}

	return nil
}

// ValidateSameShape ensures a and b have equal dimensions. Assumes non-nil.
func ValidateSameShape(a, b Matrix) error {
	if a.Rows() != b.Rows() {
		return validatorErrorf("ValidateSameShape: Rows", ErrDimensionMismatch)
	}
	if a.Cols() != b.Cols() {
		return validatorErrorf("ValidateSameShape: Columns", ErrDimensionMismatch)
	}

	return nil
}

// ValidateBinarySameShape is ValidateNotNil on both operands followed by ValidateSameShape.
func ValidateBinarySameShape(a, b Matrix) error {
	if err := ValidateNotNil(a); err != nil {
		return err
	}
	if err := ValidateNotNil(b); err != nil {
		return err
	}

	return ValidateSameShape(a, b)
}

// ValidateSquare checks that a non-nil m is square.
func ValidateSquare(m Matrix) error {
	if err := ValidateNotNil(m); err != nil {
		return err
	}
	if m.Rows() != m.Cols() {
		return validatorErrorf("ValidateSquare", ErrNonSquare)
	}

	return nil
}

// ValidateSquareOf checks that m is n×n.
func ValidateSquareOf(m Matrix, n int) error {
	if err := ValidateSquare(m); err != nil {
		return err
	}
	if m.Rows() != n {
		return validatorErrorf(fmt.Sprintf("ValidateSquareOf(%d): got %d", n, m.Rows()), ErrDimensionMismatch)
	}

	return nil
}

// ValidateRows checks that m has exactly n rows.
func ValidateRows(m Matrix, n int) error {
	if err := ValidateNotNil(m); err != nil {
		return err
	}
	if m.Rows() != n {
		return validatorErrorf(fmt.Sprintf("ValidateRows(%d): got %d", n, m.Rows()), ErrDimensionMismatch)
	}

	return nil
}

// ValidateVecLen ensures the vector length matches the required size n.
func ValidateVecLen(x []float64, n int) error {
	if x == nil {
		return validatorErrorf("ValidateVecLen", ErrNilMatrix)
	}
	if len(x) != n {
		return validatorErrorf(fmt.Sprintf("ValidateVecLen(%d): got %d", n, len(x)), ErrDimensionMismatch)
	}

	return nil
}

// ValidateMulCompatible checks non-nil operands with a.Cols == b.Rows.
func ValidateMulCompatible(a, b Matrix) error {
	if err := ValidateNotNil(a); err != nil {
		return err
	}
	if err := ValidateNotNil(b); err != nil {
		return err
	}
	if a.Cols() != b.Rows() {
		return validatorErrorf("ValidateMulCompatible", ErrDimensionMismatch)
	}

	return nil
}

// ValidateFinite scans m for NaN/Inf.
// Complexity: O(r*c).
func ValidateFinite(m Matrix) error {
	if err := ValidateNotNil(m); err != nil {
		return err
	}
	d, err := asDense(m)
	if err != nil {
		return err
	}
	for k, v := range d.data {
		if isNonFinite(v) {
			return denseErrorf("ValidateFinite", k/d.c, k%d.c, ErrNaNInf)
		}
	}

	return nil
}

// ValidateSymmetric checks |A[i,j]-A[j,i]| ≤ tol over the strict upper triangle.
//
// Errors:
//   - ErrNilMatrix, ErrNonSquare on structural issues.
//   - ErrNaNInf if tol itself is not finite.
//   - ErrAsymmetry on violation.
//
// Complexity: O(n²), Space O(1).
func ValidateSymmetric(m Matrix, tol float64) error {
	if err := ValidateSquare(m); err != nil {
		return validatorErrorf("ValidateSymmetric", err)
	}
	if isNonFinite(tol) {
		return validatorErrorf("ValidateSymmetric", ErrNaNInf)
	}
	tol = math.Abs(tol)

	n := m.Rows()
	if n <= 1 {
		return nil
	}
	var (
		i, j     int
		aij, aji float64
	)
	if d, ok := m.(*Dense); ok {
		for i = 0; i < n; i++ {
			for j = i + 1; j < n; j++ {
				if math.Abs(d.data[i*n+j]-d.data[j*n+i]) > tol {
					return validatorErrorf(fmt.Sprintf("ValidateSymmetric(%d,%d)", i, j), ErrAsymmetry)
				}
			}
		}

		return nil
	}
	for i = 0; i < n; i++ {
		for j = i + 1; j < n; j++ {
			aij, _ = m.At(i, j)
			aji, _ = m.At(j, i)
			if math.Abs(aij-aji) > tol {
				return validatorErrorf(fmt.Sprintf("ValidateSymmetric(%d,%d)", i, j), ErrAsymmetry)
			}
		}
	}

	return nil
}
