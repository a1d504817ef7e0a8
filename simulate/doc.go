// SPDX-License-Identifier: MIT

// Package simulate draws reproducible synthetic breeding data: genotype
// calls under Hardy–Weinberg equilibrium, phenotypes from a few causal
// markers at a target heritability, random-mating pedigrees, crosses with
// recombination and RCBD field trials.
//
// Every generator is deterministic given WithSeed (or an explicit WithRand);
// without either a fixed default seed is used, so two calls with the same
// arguments always agree.
package simulate
