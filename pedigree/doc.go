// SPDX-License-Identifier: MIT

// Package pedigree derives additive relationships from (id, sire, dam) triples.
//
// New validates the records, adds referenced-but-unlisted parents as founders,
// numbers generations with a White/Gray/Black depth-first walk (a Gray hit is
// an individual that is its own ancestor, reported as ErrCycle) and fills the
// numerator relationship matrix A with the tabular method:
//
//	founder:      A(i,i) = 1
//	non-founder:  F_i = ½·A(s,d),  A(i,i) = 1 + F_i
//	              A(i,j) = ½·(A(s,j) + A(d,j))  for every j processed before i
//
// Individuals are processed in (generation, ID) order, so the matrix does not
// depend on the order records are supplied. An unknown parent contributes 0;
// it is never imputed as related.
//
// Derived values are computed once in New. Editing a pedigree means building
// a new one from the edited records.
//
// Complexity:
//   - New: O(n + e) for generations, O(n²) time and memory for A.
//   - AInverse: one backend Cholesky, O(n³). AInverseDirect: O(n) updates on an n×n buffer.
package pedigree
