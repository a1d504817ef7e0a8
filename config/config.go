// SPDX-License-Identifier: MIT

// Package config holds the engine settings shared by the qgen commands.
//
// Values are layered by Load, highest priority first: explicitly set
// command-line flags, QGEN_* environment variables (QGEN_REML_MAX_ITER for
// reml.max_iter), an optional YAML file, and Default.
package config

import (
	"errors"
	"fmt"
	"io"

	"github.com/katalvlaran/qgen/cv"
	"github.com/katalvlaran/qgen/grm"
	"github.com/katalvlaran/qgen/gs"
	"github.com/katalvlaran/qgen/linalg"
	"github.com/katalvlaran/qgen/reml"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the full engine configuration.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	Backend  string `mapstructure:"backend" yaml:"backend"`
	Ploidy   int    `mapstructure:"ploidy" yaml:"ploidy"`

	REML REML `mapstructure:"reml" yaml:"reml"`
	GRM  GRM  `mapstructure:"grm" yaml:"grm"`
	GS   GS   `mapstructure:"gs" yaml:"gs"`
	CV   CV   `mapstructure:"cv" yaml:"cv"`
}

// REML configures variance-component estimation.
type REML struct {
	Method              string  `mapstructure:"method" yaml:"method"`
	Tolerance           float64 `mapstructure:"tolerance" yaml:"tolerance"`
	MaxIter             int     `mapstructure:"max_iter" yaml:"max_iter"`
	InitialHeritability float64 `mapstructure:"initial_heritability" yaml:"initial_heritability"`
}

// GRM configures genomic relationship matrices.
type GRM struct {
	Method string  `mapstructure:"method" yaml:"method"`
	MinMAF float64 `mapstructure:"min_maf" yaml:"min_maf"`
}

// GS configures GBLUP and rrBLUP. Heritability 0 means estimate by REML.
type GS struct {
	Heritability float64 `mapstructure:"heritability" yaml:"heritability"`
	Significance float64 `mapstructure:"significance" yaml:"significance"`
}

// CV configures cross-validation.
type CV struct {
	Method     string  `mapstructure:"method" yaml:"method"`
	Folds      int     `mapstructure:"folds" yaml:"folds"`
	Repeats    int     `mapstructure:"repeats" yaml:"repeats"`
	Seed       int64   `mapstructure:"seed" yaml:"seed"`
	Workers    int     `mapstructure:"workers" yaml:"workers"` // 0: GOMAXPROCS
	Confidence float64 `mapstructure:"confidence" yaml:"confidence"`
}

// Default returns the library defaults.
func Default() Config {
	return Config{
		LogLevel: "info",
		Backend:  linalg.NameGonum,
		Ploidy:   grm.DefaultPloidy,
		REML: REML{
			Method:              string(reml.DefaultMethod),
			Tolerance:           reml.DefaultTolerance,
			MaxIter:             reml.DefaultMaxIter,
			InitialHeritability: reml.DefaultInitialHeritability,
		},
		GRM: GRM{
			Method: string(grm.DefaultMethod),
			MinMAF: grm.DefaultMinMAF,
		},
		GS: GS{
			Significance: gs.DefaultSignificance,
		},
		CV: CV{
			Method:     string(cv.DefaultMethod),
			Folds:      cv.DefaultFolds,
			Repeats:    cv.DefaultRepeats,
			Seed:       cv.DefaultSeed,
			Confidence: cv.DefaultConfidence,
		},
	}
}

// Validate reports every problem at once; the result wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		add("log_level: %v", err)
	}
	if _, err := linalg.ByName(c.Backend); err != nil {
		add("backend: %v", err)
	}
	if c.Ploidy < 1 {
		add("ploidy: %d, must be ≥ 1", c.Ploidy)
	}

	if _, err := reml.ParseMethod(c.REML.Method); err != nil {
		add("reml.method: %v", err)
	}
	if !(c.REML.Tolerance > 0) {
		add("reml.tolerance: %g, must be > 0", c.REML.Tolerance)
	}
	if c.REML.MaxIter < 1 {
		add("reml.max_iter: %d, must be ≥ 1", c.REML.MaxIter)
	}
	if !(c.REML.InitialHeritability > 0 && c.REML.InitialHeritability < 1) {
		add("reml.initial_heritability: %g, must be in (0,1)", c.REML.InitialHeritability)
	}

	if _, err := grm.ParseMethod(c.GRM.Method); err != nil {
		add("grm.method: %v", err)
	}
	if !(c.GRM.MinMAF >= 0 && c.GRM.MinMAF < 0.5) {
		add("grm.min_maf: %g, must be in [0,0.5)", c.GRM.MinMAF)
	}

	if !(c.GS.Heritability >= 0 && c.GS.Heritability < 1) {
		add("gs.heritability: %g, must be 0 (estimate) or in (0,1)", c.GS.Heritability)
	}
	if !(c.GS.Significance > 0 && c.GS.Significance < 1) {
		add("gs.significance: %g, must be in (0,1)", c.GS.Significance)
	}

	if _, err := cv.ParseMethod(c.CV.Method); err != nil {
		add("cv.method: %v", err)
	}
	if c.CV.Folds < 2 {
		add("cv.folds: %d, must be ≥ 2", c.CV.Folds)
	}
	if c.CV.Repeats < 1 {
		add("cv.repeats: %d, must be ≥ 1", c.CV.Repeats)
	}
	if c.CV.Workers < 0 {
		add("cv.workers: %d, must be ≥ 0", c.CV.Workers)
	}
	if !(c.CV.Confidence > 0 && c.CV.Confidence < 1) {
		add("cv.confidence: %g, must be in (0,1)", c.CV.Confidence)
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// Encode writes c as YAML.
func (c *Config) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}

	return enc.Close()
}

// Decode reads YAML over Default. Unknown keys are rejected.
func Decode(r io.Reader) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	return &c, nil
}
