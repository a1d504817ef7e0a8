// SPDX-License-Identifier: MIT

// Package grm builds genomic relationship matrices from allele-dosage tables.
//
// Input is an n×m table (rows = individuals, columns = markers) of dosage
// calls in {0, 1, ..., ploidy}; Missing (NaN) marks a missing call. Missing
// calls are always mean-imputed per marker before anything else, because the
// downstream REML and MME solvers need a complete matrix.
//
// Methods:
//
//	VanRaden1  G = Z·Zᵀ / (ploidy·Σ p_j(1−p_j)),  Z = M − ploidy·p   (default)
//	VanRaden2  G = (1/m)·Σ_j z_j·z_jᵀ / (ploidy·p_j(1−p_j))
//	Yang       VanRaden2 off-diagonals with the GCTA diagonal correction (diploid only)
//
// Monomorphic markers carry no information and are skipped; WithMinMAF drops
// rare markers as well. Inbreeding summarises a relationship matrix as
// genomic inbreeding coefficients and population kinship statistics.
package grm
