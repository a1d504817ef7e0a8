// SPDX-License-Identifier: MIT

// Package reml estimates the two variance components of
//
//	y = Xβ + Zu + e,   u ~ N(0, σ²_a·K),   e ~ N(0, σ²_e·I)
//
// by restricted maximum likelihood.
//
// The estimator works on the marginal covariance V = σ²_a·ZKZᵀ + σ²_e·I and
// the REML projection P = V⁻¹ − V⁻¹X(XᵀV⁻¹X)⁻¹XᵀV⁻¹. Two update rules share
// that machinery:
//
//	AI  (default)  Newton-type step with the average-information matrix
//	               AI_kl = ½·yᵀP·V_k·P·V_l·P·y
//	EM             σ²_k ← σ²_k + σ⁴_k/r_k·(yᵀP·V_k·P·y − tr(P·V_k))
//
// AI proposals below the variance floor are projected onto it. A step that
// lowers the likelihood, or comes from a singular AI matrix, is replaced by an
// EM step, which cannot go negative. Iteration stops when the
// relative change of λ = σ²_e/σ²_a drops below the tolerance; hitting the
// iteration cap returns the last estimate with Converged=false and a
// WarnNonConvergence warning instead of an error.
//
// K is checked with a Cholesky factorization; when it is not positive
// definite the diagonal is ridged by 1e-6, 1e-4 and 1e-2 times its mean before
// giving up with matrix.ErrSingular.
//
// Complexity: each iteration factors the n×n matrix V, O(n³).
package reml
