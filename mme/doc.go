// SPDX-License-Identifier: MIT

// Package mme solves Henderson's mixed model equations
//
//	[ XᵀX   XᵀZ        ] [β̂]   [Xᵀy]
//	[ ZᵀX   ZᵀZ + λK⁻¹ ] [û ] = [Zᵀy],   λ = σ²_e/σ²_a,
//
// for given variance components, returning BLUEs of the fixed effects, BLUPs
// of the random effects and, from the inverse coefficient matrix, their
// standard errors, prediction error variances and reliabilities.
//
// The coefficient matrix is factored with the backend's Cholesky. A
// singular system is first ridge-regularised (linalg.CholeskyRidge) and,
// when that fails too, solved through the pseudo-inverse; both fallbacks are
// logged at Warn and flagged on the Solution.
//
// Complexity: O((p+q)³) for the factorization plus O(n(p+q)²) to assemble.
package mme
