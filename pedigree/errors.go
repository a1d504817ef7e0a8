// SPDX-License-Identifier: MIT

package pedigree

import "errors"

var (
	// ErrCycle indicates an individual that is its own ancestor, including
	// an individual listed as its own parent.
	ErrCycle = errors.New("pedigree: cycle detected")

	// ErrDuplicate indicates two records with the same ID.
	ErrDuplicate = errors.New("pedigree: duplicate individual")

	// ErrEmptyID indicates a record without an ID.
	ErrEmptyID = errors.New("pedigree: empty individual id")

	// ErrUnknownIndividual is returned by lookups for IDs not in the pedigree.
	ErrUnknownIndividual = errors.New("pedigree: unknown individual")

	// ErrEmpty indicates a pedigree with no records.
	ErrEmpty = errors.New("pedigree: no individuals")
)
