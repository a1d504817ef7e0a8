// SPDX-License-Identifier: MIT

// Package matrix is the dense numeric core of qgen.
//
// The matrix package provides:
//
//   - Dense, a row-major float64 matrix with checked accessors and a
//     finite-only numeric policy.
//   - Products tuned for design matrices: Mul, MulTransA (Aᵀ·B), Gram (A·Aᵀ),
//     CrossProd (Aᵀ·A), MatVec and MatTVec.
//   - Factorizations: Cholesky (SPD), pivoted LU, Jacobi eigen decomposition.
//   - Column statistics used to center genotype tables.
//
// Every kernel accepts the Matrix interface and returns a fresh *Dense.
// Errors are the sentinels in errors.go, wrapped with the operation name;
// match them with errors.Is.
//
// The linalg package builds a pluggable backend on top of these kernels.
package matrix
