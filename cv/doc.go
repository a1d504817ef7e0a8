// SPDX-License-Identifier: MIT

// Package cv estimates genomic prediction accuracy by repeated k-fold
// cross-validation.
//
// For every repeat r the n individuals are shuffled with a generator seeded
// by seed+r and cut into k folds, the first n mod k folds one individual
// larger. Each fold is held out in turn: the model is fitted on the others
// and the accuracy of the fold is the Pearson correlation of predicted and
// observed phenotypes of its members.
//
// Fold assignment is computed before any worker starts and results are
// stored by index, so a Summary depends only on the inputs and the seed,
// never on the number of workers.
//
// Two models are supported:
//
//   - GBLUP masks the held-out phenotypes and predicts them from their
//     relatives through G (or any relationship matrix passed in Input).
//   - RRBLUP fits marker effects on the training genotypes and scores the
//     held-out genotypes with the training allele frequencies.
package cv
