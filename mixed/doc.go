// SPDX-License-Identifier: MIT

// Package mixed fits linear mixed models end to end: a formula is compiled
// against a table, the variance components are estimated by REML and the
// mixed model equations are solved with them.
//
//	res, err := mixed.Fit(ctx, "yield ~ genotype + (1|block)", table)
//	res.Variance.Heritability // REML estimate
//	res.Solution.RandomEffects // block BLUPs, named by res.Design.ZNames
//
// RCBD and AlphaLattice wrap Fit with the usual field-trial formulas.
package mixed
