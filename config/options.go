// SPDX-License-Identifier: MIT

package config

import (
	"github.com/katalvlaran/qgen/cv"
	"github.com/katalvlaran/qgen/grm"
	"github.com/katalvlaran/qgen/gs"
	"github.com/katalvlaran/qgen/linalg"
	"github.com/katalvlaran/qgen/reml"
)

// The helpers below translate a validated Config into package options.
// Called on an invalid Config they may panic through the option
// constructors; Load always validates.

// LinalgBackend returns the configured backend, or the default one when
// the name is unknown.
func (c *Config) LinalgBackend() linalg.Backend {
	b, err := linalg.ByName(c.Backend)
	if err != nil {
		return linalg.Default()
	}

	return b
}

// REMLOptions returns the estimator settings.
func (c *Config) REMLOptions() []reml.Option {
	return []reml.Option{
		reml.WithMethod(reml.Method(c.REML.Method)),
		reml.WithTolerance(c.REML.Tolerance),
		reml.WithMaxIter(c.REML.MaxIter),
		reml.WithInitialHeritability(c.REML.InitialHeritability),
		reml.WithBackend(c.LinalgBackend()),
	}
}

// GRMOptions returns the relationship-matrix settings.
func (c *Config) GRMOptions() []grm.Option {
	return []grm.Option{
		grm.WithPloidy(c.Ploidy),
		grm.WithMethod(grm.Method(c.GRM.Method)),
		grm.WithMinMAF(c.GRM.MinMAF),
		grm.WithBackend(c.LinalgBackend()),
	}
}

// GSOptions returns the GBLUP and rrBLUP settings, REML and GRM included.
func (c *Config) GSOptions() []gs.Option {
	opts := []gs.Option{
		gs.WithPloidy(c.Ploidy),
		gs.WithSignificance(c.GS.Significance),
		gs.WithBackend(c.LinalgBackend()),
		gs.WithREML(c.REMLOptions()...),
		gs.WithGRM(grm.WithMethod(grm.Method(c.GRM.Method)), grm.WithMinMAF(c.GRM.MinMAF)),
	}
	if c.GS.Heritability > 0 {
		opts = append(opts, gs.WithHeritability(c.GS.Heritability))
	}

	return opts
}

// CVOptions returns the cross-validation settings; fold models receive
// GSOptions.
func (c *Config) CVOptions() []cv.Option {
	return []cv.Option{
		cv.WithMethod(cv.Method(c.CV.Method)),
		cv.WithFolds(c.CV.Folds),
		cv.WithRepeats(c.CV.Repeats),
		cv.WithSeed(c.CV.Seed),
		cv.WithWorkers(c.CV.Workers),
		cv.WithConfidence(c.CV.Confidence),
		cv.WithPloidy(c.Ploidy),
		cv.WithBackend(c.LinalgBackend()),
		cv.WithGRM(c.GRMOptions()...),
		cv.WithModel(c.GSOptions()...),
	}
}
