// SPDX-License-Identifier: MIT

package pedigree

import (
	"context"

	"go.uber.org/zap"
)

// Option configures New.
type Option func(*options)

type options struct {
	ctx    context.Context
	logger *zap.Logger
}

func gatherOptions(opts ...Option) options {
	o := options{ctx: context.Background(), logger: zap.NewNop()}
	for _, set := range opts {
		set(&o)
	}

	return o
}

// WithCancelContext lets a caller abandon generation numbering on large
// pedigrees. Passing a nil context has no effect.
func WithCancelContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.ctx = ctx
		}
	}
}

// WithLogger attaches a logger. Panics on nil.
func WithLogger(l *zap.Logger) Option {
	if l == nil {
		panic("pedigree: WithLogger(nil)")
	}

	return func(o *options) { o.logger = l }
}
