// SPDX-License-Identifier: MIT
// Package matrix: sentinel error set.
// This file defines ONLY package-level sentinel errors used across the matrix
// package and by every numeric package layered on top of it (grm, pedigree,
// reml, mme, gs). Algorithms return these sentinels, wrapped with operation
// context via %w, and callers match them with errors.Is. No algorithm panics
// on user-triggered error conditions.

package matrix

import "errors"

// NOTE ON NAMING & PREFIXING
// --------------------------
// Every message is prefixed with "matrix: ..." for easy grepping across logs.
// Wrap with fmt.Errorf("ctx: %w", ErrX) at the outer boundary; callers still
// use errors.Is to match.
//
// ERROR PRIORITY (enforced in tests):
// nil -> shape/index -> NaN/Inf -> dimension mismatch -> structural violations
// (asymmetry, non-SPD) -> numerical failure (singular, eigen).

var (
	// ErrInvalidDimensions indicates that requested matrix dimensions are non-positive.
	ErrInvalidDimensions = errors.New("matrix: dimensions must be > 0")

	// ErrOutOfRange indicates that an index (row or column) is outside valid bounds.
	// Public indexers (At/Set) return this, never panic.
	ErrOutOfRange = errors.New("matrix: index out of range")

	// ErrDimensionMismatch indicates incompatible dimensions between operands,
	// e.g. Mul where a.Cols != b.Rows, or a vector whose length disagrees
	// with the matrix it is paired with. Higher layers reuse it for
	// inconsistent row counts across y, X, Z and genotype tables.
	ErrDimensionMismatch = errors.New("matrix: dimension mismatch")

	// ErrNonSquare signals that a square matrix was required but the input wasn't.
	ErrNonSquare = errors.New("matrix: matrix is not square")

	// ErrAsymmetry signals that a matrix expected to be symmetric violated symmetry
	// within the configured tolerance.
	ErrAsymmetry = errors.New("matrix: matrix is not symmetric within eps")

	// ErrNaNInf signals a NaN or ±Inf value where finite values are required.
	ErrNaNInf = errors.New("matrix: NaN or Inf encountered")

	// ErrNilMatrix indicates that a nil Matrix (receiver or argument) was used.
	ErrNilMatrix = errors.New("matrix: nil receiver")

	// ErrEigenFailed indicates that the Jacobi eigen routine failed to converge
	// under the given tolerance/iterations.
	ErrEigenFailed = errors.New("matrix: eigen decomposition failed")

	// ErrSingular is returned when a matrix cannot be inverted or factorised,
	// including after any bounded ridge regularisation applied by callers.
	ErrSingular = errors.New("matrix: singular matrix")

	// ErrNotPositiveDefinite is returned by Cholesky when a non-positive pivot
	// is met. It wraps ErrSingular so callers that only care about
	// invertibility can match the broader sentinel.
	ErrNotPositiveDefinite = &wrapErr{msg: "matrix: matrix is not positive definite", base: ErrSingular}
)

// wrapErr is a sentinel that also matches a broader parent sentinel.
type wrapErr struct {
	msg  string
	base error
}

func (e *wrapErr) Error() string { return e.msg }
func (e *wrapErr) Unwrap() error { return e.base }
