// SPDX-License-Identifier: MIT

package gs

import (
	"math"

	"github.com/katalvlaran/qgen/grm"
	"github.com/katalvlaran/qgen/linalg"
	"github.com/katalvlaran/qgen/metrics"
	"github.com/katalvlaran/qgen/reml"
	"go.uber.org/zap"
)

// Defaults.
const (
	DefaultPloidy       = 2
	DefaultSignificance = 0.05
)

// Option customises the genomic selection runs.
type Option func(*options)

type options struct {
	ploidy   int
	h2       float64 // 0: estimate by REML
	alpha    float64
	remlOpts []reml.Option
	grmOpts  []grm.Option
	backend  linalg.Backend
	logger   *zap.Logger
	metrics  *metrics.Recorder
}

func gatherOptions(opts ...Option) options {
	o := options{
		ploidy:  DefaultPloidy,
		alpha:   DefaultSignificance,
		backend: linalg.Default(),
		logger:  zap.NewNop(),
	}
	for _, set := range opts {
		set(&o)
	}

	return o
}

func (o options) remlOptions() []reml.Option {
	return append([]reml.Option{
		reml.WithBackend(o.backend),
		reml.WithLogger(o.logger),
		reml.WithMetrics(o.metrics),
	}, o.remlOpts...)
}

func (o options) grmOptions() []grm.Option {
	return append([]grm.Option{
		grm.WithPloidy(o.ploidy),
		grm.WithBackend(o.backend),
		grm.WithLogger(o.logger),
	}, o.grmOpts...)
}

// WithPloidy sets the maximum dosage of the genotype calls. Panics if p < 1.
func WithPloidy(p int) Option {
	if p < 1 {
		panic("gs: WithPloidy: ploidy must be >= 1")
	}

	return func(o *options) { o.ploidy = p }
}

// WithHeritability skips REML and splits the phenotypic variance with a
// known heritability. Panics unless 0 < h2 < 1.
func WithHeritability(h2 float64) Option {
	if !(h2 > 0 && h2 < 1) {
		panic("gs: WithHeritability: h2 must be in (0,1)")
	}

	return func(o *options) { o.h2 = h2 }
}

// WithSignificance sets the level at which rrBLUP counts significant
// markers. Panics unless 0 < alpha < 1.
func WithSignificance(alpha float64) Option {
	if !(alpha > 0 && alpha < 1) || math.IsNaN(alpha) {
		panic("gs: WithSignificance: alpha must be in (0,1)")
	}

	return func(o *options) { o.alpha = alpha }
}

// WithREML forwards options to the variance-component fit.
func WithREML(opts ...reml.Option) Option {
	return func(o *options) { o.remlOpts = append(o.remlOpts, opts...) }
}

// WithGRM forwards options to the relationship builder used by
// GBLUPFromGenotypes. Ploidy, backend and logger are forwarded automatically.
func WithGRM(opts ...grm.Option) Option {
	return func(o *options) { o.grmOpts = append(o.grmOpts, opts...) }
}

// WithBackend sets the linear-algebra backend. Panics on nil.
func WithBackend(b linalg.Backend) Option {
	if b == nil {
		panic("gs: WithBackend(nil)")
	}

	return func(o *options) { o.backend = b }
}

// WithLogger attaches a logger. Panics on nil.
func WithLogger(l *zap.Logger) Option {
	if l == nil {
		panic("gs: WithLogger(nil)")
	}

	return func(o *options) { o.logger = l }
}

// WithMetrics records REML fits and solver fallbacks. A nil recorder is allowed.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *options) { o.metrics = r }
}
