// SPDX-License-Identifier: MIT

package grm

import "errors"

var (
	// ErrInvalidDosage indicates a genotype call outside [0, ploidy] or a
	// non-finite value other than the Missing marker.
	ErrInvalidDosage = errors.New("grm: dosage out of range")

	// ErrMonomorphic indicates that no marker survived filtering, so the
	// scaling denominator is zero.
	ErrMonomorphic = errors.New("grm: no polymorphic markers")

	// ErrUnsupportedMethod indicates a method/ploidy combination that is not
	// defined (Yang on non-diploids).
	ErrUnsupportedMethod = errors.New("grm: unsupported method")
)
