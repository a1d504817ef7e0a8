// SPDX-License-Identifier: MIT

package gs

import "errors"

var (
	// ErrTooFewIndividuals is returned when fewer than three individuals
	// carry a phenotype.
	ErrTooFewIndividuals = errors.New("gs: need at least 3 phenotyped individuals")

	// ErrInvalidProportion is returned for a selected proportion outside (0,1).
	ErrInvalidProportion = errors.New("gs: selected proportion must be in (0,1)")

	// ErrNoGenotypes is returned when a genotype-based prediction is asked of
	// a model that was fitted on a relationship matrix alone.
	ErrNoGenotypes = errors.New("gs: model was not fitted on genotypes")
)
