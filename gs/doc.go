// SPDX-License-Identifier: MIT

// Package gs implements genomic selection on top of reml and mme.
//
// Two dual formulations are offered:
//
//   - GBLUP (RunGBLUP) models breeding values directly, u ~ N(0, σ²_a·G),
//     with G a genomic relationship matrix. Missing phenotypes (NaN) are
//     predicted from their relatives, which is how held-out individuals are
//     scored during cross-validation.
//   - rrBLUP (RunRRBLUP) models marker effects, α ~ N(0, σ²_α·I), on the
//     centered genotypes Z = M − ploidy·p, so that GEBV = Zα̂. With G built
//     by VanRaden's first method the two give the same GEBVs up to the
//     scale link σ²_a = σ²_α·ploidy·Σp(1−p).
//
// Variance components are estimated by REML unless a heritability is fixed
// with WithHeritability. SelectionIntensity and ExpectedResponse turn an
// accuracy into the breeder's equation R = i·r·σ_g.
package gs
