// SPDX-License-Identifier: MIT

// Package formula compiles model formulas over a column table into the
// design matrices of a linear mixed model.
//
// Grammar (whitespace is insignificant):
//
//	formula  = response "~" term { "+" term }
//	term     = "1" | "0" | column | "(" "1" "|" column ")"
//
// "1" keeps the intercept (present by default) and "0" removes it. A numeric
// column enters X verbatim; a categorical column is treatment coded with
// levels in sorted order and the first level as reference. The reference is
// dropped only when the model has an intercept; without one, the first
// categorical term keeps every level. "(1|g)" adds one Z column per level of g,
// none dropped.
//
// Interactions (":" and "*"), function terms such as log(x) and random slopes
// (x|g) are rejected with an UnsupportedTerm error rather than approximated.
// Nested grouping is expressed by building a combined key with Table.Concat.
//
// Every failure is a *Error carrying a Kind; errors.Is matches it against the
// ErrMissingResponse, ErrUnknownColumn, ErrMalformed and ErrUnsupportedTerm
// sentinels.
package formula
