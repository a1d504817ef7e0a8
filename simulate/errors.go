// SPDX-License-Identifier: MIT

package simulate

import "errors"

var (
	// ErrInvalidSize is returned for non-positive counts.
	ErrInvalidSize = errors.New("simulate: sizes must be positive")

	// ErrInvalidParameter is returned for out-of-range rates, heritabilities
	// or causal-marker counts.
	ErrInvalidParameter = errors.New("simulate: parameter out of range")
)
