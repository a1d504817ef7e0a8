// SPDX-License-Identifier: MIT

package reml

import (
	"fmt"
	"math"

	"github.com/katalvlaran/qgen/linalg"
	"github.com/katalvlaran/qgen/metrics"
	"go.uber.org/zap"
)

// Method selects the update rule.
type Method string

// Methods.
const (
	AI Method = "ai"
	EM Method = "em"
)

// ParseMethod maps a name onto a Method.
func ParseMethod(name string) (Method, error) {
	switch m := Method(name); m {
	case AI, EM:
		return m, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnsupportedMethod, name)
}

// Defaults.
const (
	DefaultMethod              = AI
	DefaultTolerance           = 1e-8
	DefaultMaxIter             = 100
	DefaultInitialHeritability = 0.5
)

// varianceFloorFactor scales var(y) into the lower bound of each component.
const varianceFloorFactor = 1e-10

// Option customises Estimate.
type Option func(*options)

type options struct {
	method  Method
	tol     float64
	maxIter int
	h2      float64
	backend linalg.Backend
	logger  *zap.Logger
	metrics *metrics.Recorder
}

func gatherOptions(opts ...Option) options {
	o := options{
		method:  DefaultMethod,
		tol:     DefaultTolerance,
		maxIter: DefaultMaxIter,
		h2:      DefaultInitialHeritability,
		backend: linalg.Default(),
		logger:  zap.NewNop(),
	}
	for _, set := range opts {
		set(&o)
	}

	return o
}

// WithMethod selects AI or EM. Panics on an unknown method.
func WithMethod(m Method) Option {
	if _, err := ParseMethod(string(m)); err != nil {
		panic("reml: WithMethod: " + err.Error())
	}

	return func(o *options) { o.method = m }
}

// WithTolerance sets the relative λ change that stops iteration.
// Panics unless tol > 0.
func WithTolerance(tol float64) Option {
	if !(tol > 0) || math.IsInf(tol, 0) {
		panic("reml: WithTolerance: tolerance must be finite and > 0")
	}

	return func(o *options) { o.tol = tol }
}

// WithMaxIter caps the number of iterations. Panics if n < 1.
func WithMaxIter(n int) Option {
	if n < 1 {
		panic("reml: WithMaxIter: need at least one iteration")
	}

	return func(o *options) { o.maxIter = n }
}

// WithInitialHeritability sets the split of the OLS residual variance used
// as the starting point. Panics unless 0 < h2 < 1.
func WithInitialHeritability(h2 float64) Option {
	if !(h2 > 0 && h2 < 1) {
		panic("reml: WithInitialHeritability: h2 must be in (0,1)")
	}

	return func(o *options) { o.h2 = h2 }
}

// WithBackend sets the linear-algebra backend. Panics on nil.
func WithBackend(b linalg.Backend) Option {
	if b == nil {
		panic("reml: WithBackend(nil)")
	}

	return func(o *options) { o.backend = b }
}

// WithLogger attaches a logger. Panics on nil.
func WithLogger(l *zap.Logger) Option {
	if l == nil {
		panic("reml: WithLogger(nil)")
	}

	return func(o *options) { o.logger = l }
}

// WithMetrics records fits, iterations and fallbacks. A nil recorder is allowed.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *options) { o.metrics = r }
}
