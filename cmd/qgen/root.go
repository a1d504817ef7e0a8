// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/katalvlaran/qgen/config"
	"github.com/katalvlaran/qgen/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// app is the state shared by every command of one invocation.
type app struct {
	out io.Writer

	cfgPath     string
	verbose     bool
	format      string
	metricsPath string

	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Recorder
}

// rootKeys binds the persistent flags onto configuration keys.
var rootKeys = map[string]string{
	"backend":   "backend",
	"ploidy":    "ploidy",
	"log-level": "log_level",
}

// commandKeys binds each command's own flags.
var commandKeys = map[string]map[string]string{
	"grm": {
		"method":  "grm.method",
		"min-maf": "grm.min_maf",
	},
	"fit": {
		"reml-method": "reml.method",
		"tolerance":   "reml.tolerance",
		"max-iter":    "reml.max_iter",
	},
	"rrblup": {
		"h2":           "gs.heritability",
		"significance": "gs.significance",
		"reml-method":  "reml.method",
	},
	"gblup": {
		"h2":          "gs.heritability",
		"reml-method": "reml.method",
		"min-maf":     "grm.min_maf",
	},
	"cv": {
		"method":     "cv.method",
		"folds":      "cv.folds",
		"repeats":    "cv.repeats",
		"seed":       "cv.seed",
		"workers":    "cv.workers",
		"confidence": "cv.confidence",
		"h2":         "gs.heritability",
	},
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}
	root := &cobra.Command{
		Use:           "qgen",
		Short:         "Quantitative genetics estimation engine",
		Long:          "qgen estimates variance components, BLUEs and BLUPs, builds genomic and\npedigree relationship matrices and assesses genomic prediction accuracy.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return a.teardown()
		},
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "YAML configuration file")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "log at debug level")
	pf.StringVarP(&a.format, "output", "o", formatJSON, "output format: json or yaml")
	pf.StringVar(&a.metricsPath, "metrics-file", "", "write Prometheus metrics of the run to this file")
	pf.String("backend", "gonum", "linear-algebra backend: gonum or native")
	pf.Int("ploidy", 2, "ploidy of the genotype calls")
	pf.String("log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(
		a.grmCmd(),
		a.amatrixCmd(),
		a.fitCmd(),
		a.rrblupCmd(),
		a.gblupCmd(),
		a.cvCmd(),
		a.simulateCmd(),
	)

	return root
}

// setup loads the configuration and builds the logger and metrics.
func (a *app) setup(cmd *cobra.Command) error {
	if a.format != formatJSON && a.format != formatYAML {
		return fmt.Errorf("unknown output format %q", a.format)
	}
	keys := make(map[string]string, len(rootKeys))
	for k, v := range rootKeys {
		keys[k] = v
	}
	for k, v := range commandKeys[cmd.Name()] {
		keys[k] = v
	}
	cfg, err := config.Load(a.cfgPath, cmd.Flags(), keys)
	if err != nil {
		return err
	}
	a.cfg = cfg

	zc := zap.NewProductionConfig()
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	if a.verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if a.logger, err = zc.Build(); err != nil {
		return fmt.Errorf("logger: %w", err)
	}

	a.registry = prometheus.NewRegistry()
	if a.metrics, err = metrics.New(a.registry); err != nil {
		return err
	}
	a.logger.Debug("configuration loaded",
		zap.String("command", cmd.Name()),
		zap.String("backend", cfg.Backend),
		zap.Int("ploidy", cfg.Ploidy),
	)

	return nil
}

func (a *app) teardown() error {
	if a.metricsPath != "" {
		if err := prometheus.WriteToTextfile(a.metricsPath, a.registry); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}
	_ = a.logger.Sync()

	return nil
}

// emit writes v in the selected output format.
func (a *app) emit(v any) error {
	switch a.format {
	case formatYAML:
		enc := yaml.NewEncoder(a.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}

		return enc.Close()
	default:
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")

		return enc.Encode(v)
	}
}
