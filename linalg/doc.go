// SPDX-License-Identifier: MIT

// Package linalg defines Backend, the linear-algebra capability interface the
// estimation packages (reml, mme, grm, gs) run on, and its two bundled
// implementations:
//
//	Native(): pure qgen/matrix kernels (Cholesky, pivoted LU, Jacobi eigen).
//	Gonum():  gonum.org/v1/gonum/mat (Cholesky, LU, SVD, EigenSym).
//
// Backends are selected by value (WithBackend options on the callers) or by
// name through ByName; an unknown name yields ErrUnsupportedBackend instead of
// a runtime failure. Default returns the gonum backend.
//
// CholeskyRidge wraps a backend with the bounded ridge-regularisation policy
// shared by REML and MME: try the matrix as is, then add eps·mean(diag) to the
// diagonal for eps in RidgeSchedule, and report the ridge actually applied.
package linalg
