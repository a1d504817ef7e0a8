// SPDX-License-Identifier: MIT

package cv

import (
	"fmt"
	"runtime"

	"github.com/katalvlaran/qgen/grm"
	"github.com/katalvlaran/qgen/gs"
	"github.com/katalvlaran/qgen/linalg"
	"github.com/katalvlaran/qgen/metrics"
	"go.uber.org/zap"
)

// Method is the prediction model under test.
type Method string

// Methods.
const (
	GBLUP  Method = "gblup"
	RRBLUP Method = "rrblup"
)

// ParseMethod maps a name onto a Method.
func ParseMethod(name string) (Method, error) {
	switch m := Method(name); m {
	case GBLUP, RRBLUP:
		return m, nil
	}

	return "", fmt.Errorf("%w: unknown method %q", ErrConfiguration, name)
}

// Defaults.
const (
	DefaultMethod     = GBLUP
	DefaultFolds      = 5
	DefaultRepeats    = 1
	DefaultSeed       = 42
	DefaultConfidence = 0.95
	DefaultPloidy     = 2
)

// Option customises CrossValidate. Fold counts, repeats and the confidence
// level come from user input and are checked by CrossValidate, not here.
type Option func(*options)

type options struct {
	method     Method
	folds      int
	repeats    int
	seed       int64
	workers    int
	confidence float64
	ploidy     int
	gsOpts     []gs.Option
	grmOpts    []grm.Option
	backend    linalg.Backend
	logger     *zap.Logger
	metrics    *metrics.Recorder
}

func gatherOptions(opts ...Option) options {
	o := options{
		method:     DefaultMethod,
		folds:      DefaultFolds,
		repeats:    DefaultRepeats,
		seed:       DefaultSeed,
		workers:    runtime.GOMAXPROCS(0),
		confidence: DefaultConfidence,
		ploidy:     DefaultPloidy,
		backend:    linalg.Default(),
		logger:     zap.NewNop(),
	}
	for _, set := range opts {
		set(&o)
	}

	return o
}

func (o options) validate(n int) error {
	switch {
	case o.method != GBLUP && o.method != RRBLUP:
		return fmt.Errorf("%w: unknown method %q", ErrConfiguration, o.method)
	case o.folds < 2:
		return fmt.Errorf("%w: %d folds, need at least 2", ErrConfiguration, o.folds)
	case o.repeats < 1:
		return fmt.Errorf("%w: %d repeats, need at least 1", ErrConfiguration, o.repeats)
	case !(o.confidence > 0 && o.confidence < 1):
		return fmt.Errorf("%w: confidence %g outside (0,1)", ErrConfiguration, o.confidence)
	case n < o.folds:
		return fmt.Errorf("%w: %d individuals for %d folds", ErrConfiguration, n, o.folds)
	}

	return nil
}

// modelOptions returns the per-fold model options, caller options last.
func (o options) modelOptions() []gs.Option {
	return append([]gs.Option{
		gs.WithPloidy(o.ploidy),
		gs.WithBackend(o.backend),
		gs.WithLogger(o.logger),
		gs.WithMetrics(o.metrics),
	}, o.gsOpts...)
}

// WithMethod selects GBLUP or RRBLUP.
func WithMethod(m Method) Option { return func(o *options) { o.method = m } }

// WithFolds sets k.
func WithFolds(k int) Option { return func(o *options) { o.folds = k } }

// WithRepeats sets the number of reshuffled repetitions.
func WithRepeats(r int) Option { return func(o *options) { o.repeats = r } }

// WithSeed sets the base seed; repeat r shuffles with seed+r.
func WithSeed(seed int64) Option { return func(o *options) { o.seed = seed } }

// WithWorkers bounds the number of folds fitted at once. Values below 1
// fall back to GOMAXPROCS.
func WithWorkers(w int) Option {
	return func(o *options) {
		if w < 1 {
			w = runtime.GOMAXPROCS(0)
		}
		o.workers = w
	}
}

// WithConfidence sets the level of the normal confidence interval.
func WithConfidence(c float64) Option { return func(o *options) { o.confidence = c } }

// WithPloidy sets the ploidy used to build G and center genotypes. Panics
// if p < 1.
func WithPloidy(p int) Option {
	if p < 1 {
		panic("cv: WithPloidy: ploidy must be ≥ 1")
	}

	return func(o *options) { o.ploidy = p }
}

// WithModel passes options to every fold's gs.RunGBLUP or gs.RunRRBLUP, for
// instance gs.WithHeritability to skip REML inside the folds.
func WithModel(opts ...gs.Option) Option {
	return func(o *options) { o.gsOpts = append(o.gsOpts, opts...) }
}

// WithGRM passes options to the grm.Build call that turns Input.Genotypes
// into G for GBLUP.
func WithGRM(opts ...grm.Option) Option {
	return func(o *options) { o.grmOpts = append(o.grmOpts, opts...) }
}

// WithBackend sets the linear-algebra backend. Panics on nil.
func WithBackend(b linalg.Backend) Option {
	if b == nil {
		panic("cv: WithBackend(nil)")
	}

	return func(o *options) { o.backend = b }
}

// WithLogger sets the logger. Panics on nil.
func WithLogger(l *zap.Logger) Option {
	if l == nil {
		panic("cv: WithLogger(nil)")
	}

	return func(o *options) { o.logger = l }
}

// WithMetrics records fold durations and failed folds on r.
func WithMetrics(r *metrics.Recorder) Option { return func(o *options) { o.metrics = r } }
