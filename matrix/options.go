// SPDX-License-Identifier: MIT

// Package matrix: functional configuration for numeric policy.
// This file defines:
//   - Default* constants (single source of truth for zero-value behavior).
//   - Option / Options and the WithX constructors.
//   - gatherOptions, the only place where user options are resolved.
//
// Notes:
//   - Option constructors panic on nonsensical values (programmer error).
//     Kernels never panic.
package matrix

import "math"

// Numeric policy.
const (
	// DefaultEpsilon is the absolute tolerance used by structural checks
	// (symmetry in Cholesky and Eigen).
	DefaultEpsilon = 1e-9

	// DefaultValidateNaNInf toggles strict finite-value validation on ingestion and Set.
	DefaultValidateNaNInf = true

	// DefaultEigenTolerance is the Jacobi convergence threshold on the largest
	// off-diagonal magnitude.
	DefaultEigenTolerance = 1e-10

	// DefaultEigenMaxSweeps bounds the number of Jacobi sweeps; each sweep
	// visits every off-diagonal pair once.
	DefaultEigenMaxSweeps = 100
)

const (
	panicEpsilonInvalid   = "matrix: WithEpsilon: eps must be finite, non-negative"
	panicEigenTolInvalid  = "matrix: WithEigenTolerance: tol must be finite, > 0"
	panicEigenIterInvalid = "matrix: WithEigenMaxSweeps: sweeps must be > 0"
)

// Option mutates internal options. Safe to apply repeatedly (last writer wins).
type Option func(*Options)

// Options stores the effective configuration after applying Option setters.
type Options struct {
	eps            float64
	validateNaNInf bool
	eigenTol       float64
	eigenSweeps    int
}

// WithEpsilon sets the tolerance used by symmetry checks.
// Panics if eps is negative or not finite.
func WithEpsilon(eps float64) Option {
	if math.IsNaN(eps) || math.IsInf(eps, 0) || eps < 0 {
		panic(panicEpsilonInvalid)
	}

	return func(o *Options) { o.eps = eps }
}

// WithNoValidateNaNInf disables finite-value validation for NewDenseFrom and
// the Set calls on the resulting matrix.
func WithNoValidateNaNInf() Option {
	return func(o *Options) { o.validateNaNInf = false }
}

// WithEigenTolerance sets the Jacobi convergence threshold.
func WithEigenTolerance(tol float64) Option {
	if math.IsNaN(tol) || math.IsInf(tol, 0) || tol <= 0 {
		panic(panicEigenTolInvalid)
	}

	return func(o *Options) { o.eigenTol = tol }
}

// WithEigenMaxSweeps sets the Jacobi sweep cap.
func WithEigenMaxSweeps(sweeps int) Option {
	if sweeps <= 0 {
		panic(panicEigenIterInvalid)
	}

	return func(o *Options) { o.eigenSweeps = sweeps }
}

func gatherOptions(user ...Option) Options {
	o := Options{
		eps:            DefaultEpsilon,
		validateNaNInf: DefaultValidateNaNInf,
		eigenTol:       DefaultEigenTolerance,
		eigenSweeps:    DefaultEigenMaxSweeps,
	}
	for _, set := range user {
		set(&o)
	}

	return o
}
