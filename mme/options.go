// SPDX-License-Identifier: MIT

package mme

import (
	"github.com/katalvlaran/qgen/linalg"
	"github.com/katalvlaran/qgen/metrics"
	"go.uber.org/zap"
)

// Option customises Solve.
type Option func(*options)

type options struct {
	backend linalg.Backend
	logger  *zap.Logger
	metrics *metrics.Recorder
	kdiag   []float64
}

func gatherOptions(opts ...Option) options {
	o := options{backend: linalg.Default(), logger: zap.NewNop()}
	for _, set := range opts {
		set(&o)
	}

	return o
}

// WithBackend sets the linear-algebra backend. Panics on nil.
func WithBackend(b linalg.Backend) Option {
	if b == nil {
		panic("mme: WithBackend(nil)")
	}

	return func(o *options) { o.backend = b }
}

// WithLogger attaches a logger. Panics on nil.
func WithLogger(l *zap.Logger) Option {
	if l == nil {
		panic("mme: WithLogger(nil)")
	}

	return func(o *options) { o.logger = l }
}

// WithMetrics counts solver fallbacks. A nil recorder is allowed.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *options) { o.metrics = r }
}

// WithRelationshipDiagonal supplies diag(K) for the reliabilities, saving
// the inversion of K⁻¹. The slice is not copied.
func WithRelationshipDiagonal(d []float64) Option {
	return func(o *options) { o.kdiag = d }
}
