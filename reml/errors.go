// SPDX-License-Identifier: MIT

package reml

import "errors"

var (
	// ErrInsufficientData indicates n ≤ p or a response without variance.
	ErrInsufficientData = errors.New("reml: insufficient data")

	// ErrUnsupportedMethod indicates an unknown method name.
	ErrUnsupportedMethod = errors.New("reml: unsupported method")
)

// Warning flags a degraded but usable estimate.
type Warning string

// Warnings attached to VarianceComponents.
const (
	// WarnNonConvergence: the iteration cap was reached.
	WarnNonConvergence Warning = "non-convergence"
	// WarnRegularized: K or XᵀV⁻¹X needed a diagonal ridge.
	WarnRegularized Warning = "regularized"
	// WarnBoundary: a variance component ended on its floor.
	WarnBoundary Warning = "boundary"
	// WarnEMFallback: at least one AI step was replaced by an EM step.
	WarnEMFallback Warning = "em-fallback"
)
