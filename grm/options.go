// SPDX-License-Identifier: MIT

package grm

import (
	"fmt"

	"github.com/katalvlaran/qgen/linalg"
	"go.uber.org/zap"
)

// Method selects the relationship estimator.
type Method string

// Supported methods.
const (
	VanRaden1 Method = "vanraden1"
	VanRaden2 Method = "vanraden2"
	Yang      Method = "yang"
)

// Defaults.
const (
	DefaultPloidy = 2
	DefaultMethod = VanRaden1
	DefaultMinMAF = 0.0
)

// denominatorFloor is the smallest acceptable scaling denominator.
const denominatorFloor = 1e-10

// ParseMethod maps a method name onto a Method.
func ParseMethod(name string) (Method, error) {
	switch m := Method(name); m {
	case VanRaden1, VanRaden2, Yang:
		return m, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnsupportedMethod, name)
}

// Option customises Build and Impute.
type Option func(*options)

type options struct {
	ploidy  int
	method  Method
	minMAF  float64
	backend linalg.Backend
	logger  *zap.Logger
}

func gatherOptions(opts ...Option) options {
	o := options{
		ploidy:  DefaultPloidy,
		method:  DefaultMethod,
		minMAF:  DefaultMinMAF,
		backend: linalg.Default(),
		logger:  zap.NewNop(),
	}
	for _, set := range opts {
		set(&o)
	}

	return o
}

// WithPloidy sets the maximum dosage. Panics if p < 1.
func WithPloidy(p int) Option {
	if p < 1 {
		panic("grm: WithPloidy: ploidy must be >= 1")
	}

	return func(o *options) { o.ploidy = p }
}

// WithMethod selects the estimator. Panics on an unknown method.
func WithMethod(m Method) Option {
	if _, err := ParseMethod(string(m)); err != nil {
		panic("grm: WithMethod: " + err.Error())
	}

	return func(o *options) { o.method = m }
}

// WithMinMAF drops markers whose minor allele frequency is below maf.
// Panics unless 0 <= maf < 0.5.
func WithMinMAF(maf float64) Option {
	if maf < 0 || maf >= 0.5 || maf != maf {
		panic("grm: WithMinMAF: maf must be in [0, 0.5)")
	}

	return func(o *options) { o.minMAF = maf }
}

// WithBackend sets the backend used for the Z·Zᵀ product. Panics on nil.
func WithBackend(b linalg.Backend) Option {
	if b == nil {
		panic("grm: WithBackend(nil)")
	}

	return func(o *options) { o.backend = b }
}

// WithLogger attaches a logger. Panics on nil.
func WithLogger(l *zap.Logger) Option {
	if l == nil {
		panic("grm: WithLogger(nil)")
	}

	return func(o *options) { o.logger = l }
}
