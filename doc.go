// SPDX-License-Identifier: MIT

// Package qgen is a quantitative genetics estimation engine: a
// formula-driven linear mixed model solver with the relationship matrices,
// genomic prediction models and validation tools built around it.
//
// The module is organised bottom-up:
//
//	matrix/   dense matrices, validators and the numeric kernels
//	linalg/   Backend capability interface (gonum, native) and ridge helpers
//	grm/      genomic relationship matrices (VanRaden 1 and 2, Yang), imputation
//	pedigree/ pedigree validation, numerator relationship matrix A and A⁻¹
//	formula/  "y ~ x + (1|g)" parser and design-matrix compiler
//	reml/     variance components by AI-REML or EM-REML
//	mme/      Henderson's mixed model equations, BLUEs, BLUPs and PEV
//	mixed/    formula → REML → MME, plus RCBD and alpha-lattice presets
//	gs/       GBLUP, rrBLUP and the breeder's equation
//	cv/       repeated k-fold cross-validation of prediction accuracy
//	simulate/ seeded genotypes, phenotypes, pedigrees and field trials
//	metrics/  optional Prometheus collectors
//	config/   layered configuration for the qgen command
//
// A typical fit:
//
//	res, err := mixed.Fit(ctx, "yield ~ genotype + (1|block)", table)
//	if err != nil {
//		return err
//	}
//	fmt.Println(res.Variance.Heritability, res.RandomEffects())
//
// All estimators are pure functions of their inputs. Logging goes through an
// injected *zap.Logger and metrics through an optional *metrics.Recorder;
// nothing is global.
package qgen
