// SPDX-License-Identifier: MIT

package mixed

import (
	"github.com/katalvlaran/qgen/linalg"
	"github.com/katalvlaran/qgen/matrix"
	"github.com/katalvlaran/qgen/metrics"
	"github.com/katalvlaran/qgen/pedigree"
	"github.com/katalvlaran/qgen/reml"
	"go.uber.org/zap"
)

// Option customises Fit.
type Option func(*options)

type options struct {
	k           *matrix.Dense
	ped         *pedigree.Pedigree
	pedGroup    string
	remlOpts    []reml.Option
	backend     linalg.Backend
	logger      *zap.Logger
	metrics     *metrics.Recorder
	dropMissing bool
}

func gatherOptions(opts ...Option) options {
	o := options{backend: linalg.Default(), logger: zap.NewNop()}
	for _, set := range opts {
		set(&o)
	}

	return o
}

// WithRelationship sets the covariance structure K of the random effects,
// ordered like the Z columns. Without it K is the identity.
func WithRelationship(k *matrix.Dense) Option {
	return func(o *options) { o.k, o.ped = k, nil }
}

// WithPedigree fits an animal model: K is the block of A whose rows are the
// levels of the grouping column group, in Z column order. The formula must
// have group as its only random term; levels are matched to pedigree IDs as
// strings, so numeric IDs need a categorical column. Panics on a nil
// pedigree.
func WithPedigree(p *pedigree.Pedigree, group string) Option {
	if p == nil {
		panic("mixed: WithPedigree(nil)")
	}

	return func(o *options) { o.ped, o.pedGroup, o.k = p, group, nil }
}

// WithREML forwards options to the variance-component fit. Backend, logger
// and metrics are forwarded automatically.
func WithREML(opts ...reml.Option) Option {
	return func(o *options) { o.remlOpts = append(o.remlOpts, opts...) }
}

// WithBackend sets the linear-algebra backend. Panics on nil.
func WithBackend(b linalg.Backend) Option {
	if b == nil {
		panic("mixed: WithBackend(nil)")
	}

	return func(o *options) { o.backend = b }
}

// WithLogger attaches a logger. Panics on nil.
func WithLogger(l *zap.Logger) Option {
	if l == nil {
		panic("mixed: WithLogger(nil)")
	}

	return func(o *options) { o.logger = l }
}

// WithMetrics records solver activity. A nil recorder is allowed.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *options) { o.metrics = r }
}

// WithDropMissing removes records with a missing value in any column the
// formula references before compiling.
func WithDropMissing() Option {
	return func(o *options) { o.dropMissing = true }
}
