// SPDX-License-Identifier: MIT

package main

import (
	"errors"
	"fmt"

	"github.com/katalvlaran/qgen/mixed"
	"github.com/katalvlaran/qgen/pedigree"
	"github.com/katalvlaran/qgen/reml"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Field designs accepted by --design.
const (
	designRCBD         = "rcbd"
	designAlphaLattice = "alpha-lattice"
)

type effect struct {
	Name        string   `json:"name" yaml:"name"`
	Estimate    float64  `json:"estimate" yaml:"estimate"`
	SE          float64  `json:"se" yaml:"se"`
	Reliability *float64 `json:"reliability,omitempty" yaml:"reliability,omitempty"`
}

type fitReport struct {
	Formula   string                   `json:"formula" yaml:"formula"`
	N         int                      `json:"n" yaml:"n"`
	Dropped   int                      `json:"dropped,omitempty" yaml:"dropped,omitempty"`
	Variance  *reml.VarianceComponents `json:"variance" yaml:"variance"`
	Fixed     []effect                 `json:"fixed" yaml:"fixed"`
	Random    []effect                 `json:"random" yaml:"random"`
	Converged bool                     `json:"converged" yaml:"converged"`
}

func (a *app) fitCmd() *cobra.Command {
	var (
		path, f, design, trait string
		pedPath, pedCol        string
		categorical            []string
		cols                   mixed.Columns
		dropMissing            bool
	)
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit a linear mixed model by REML and solve the mixed model equations",
		Long: "Fit y = Xβ + Zu + e from a formula such as \"yield ~ genotype + (1|block)\",\n" +
			"or from a field design preset (--design rcbd|alpha-lattice --trait yield).\n" +
			"With --pedigree, the random term (1|<pedigree-col>) is given the covariance A\n" +
			"of the listed individuals, as in \"weight ~ (1|id)\".",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := readTable(path, categorical)
			if err != nil {
				return err
			}
			opts := []mixed.Option{
				mixed.WithREML(a.cfg.REMLOptions()...),
				mixed.WithBackend(a.cfg.LinalgBackend()),
				mixed.WithLogger(a.logger),
				mixed.WithMetrics(a.metrics),
			}
			if dropMissing {
				opts = append(opts, mixed.WithDropMissing())
			}
			if pedPath != "" {
				recs, err := readPedigree(pedPath)
				if err != nil {
					return err
				}
				p, err := pedigree.New(recs,
					pedigree.WithCancelContext(cmd.Context()),
					pedigree.WithLogger(a.logger),
				)
				if err != nil {
					return err
				}
				opts = append(opts, mixed.WithPedigree(p, pedCol))
			}

			var res *mixed.Result
			switch {
			case f != "" && design != "":
				return errors.New("--formula and --design are exclusive")
			case f != "":
				res, err = mixed.Fit(cmd.Context(), f, data, opts...)
			case design == designRCBD:
				res, err = mixed.RCBD(cmd.Context(), data, trait, cols, opts...)
			case design == designAlphaLattice:
				res, err = mixed.AlphaLattice(cmd.Context(), data, trait, cols, opts...)
			case design != "":
				return fmt.Errorf("unknown design %q", design)
			default:
				return errors.New("one of --formula or --design is required")
			}
			if err != nil {
				return err
			}

			rep := newFitReport(res, data.Len())
			a.logger.Info("model fitted",
				zap.String("formula", rep.Formula),
				zap.Int("n", rep.N),
				zap.Float64("heritability", res.Variance.Heritability),
				zap.Bool("converged", rep.Converged),
			)

			return a.emit(rep)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&path, "data", "", "CSV with a header row")
	fl.StringVar(&f, "formula", "", `model formula, e.g. "yield ~ genotype + (1|block)"`)
	fl.StringSliceVar(&categorical, "categorical", nil, "columns to treat as factors even when numeric")
	fl.BoolVar(&dropMissing, "drop-missing", false, "drop records with a missing value in a model column")
	fl.StringVar(&design, "design", "", "field design preset: rcbd or alpha-lattice")
	fl.StringVar(&trait, "trait", "", "response column of a design preset")
	fl.StringVar(&cols.Genotype, "genotype-col", "genotype", "genotype column of a design preset")
	fl.StringVar(&cols.Rep, "rep-col", "rep", "replicate column of the alpha-lattice preset")
	fl.StringVar(&cols.Block, "block-col", "block", "block column of a design preset")
	fl.StringVar(&pedPath, "pedigree", "", "pedigree CSV giving the random term its relationship matrix")
	fl.StringVar(&pedCol, "pedigree-col", "id", "grouping column holding pedigree IDs")
	fl.String("reml-method", string(reml.DefaultMethod), "ai or em")
	fl.Float64("tolerance", reml.DefaultTolerance, "REML convergence tolerance")
	fl.Int("max-iter", reml.DefaultMaxIter, "REML iteration cap")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func newFitReport(res *mixed.Result, nRows int) fitReport {
	d, sol := res.Design, res.Solution
	rep := fitReport{
		Formula:   d.Spec.String(),
		N:         d.N(),
		Dropped:   nRows - d.N(),
		Variance:  res.Variance,
		Converged: sol.Converged,
		Fixed:     make([]effect, len(d.XNames)),
		Random:    make([]effect, len(d.ZNames)),
	}
	for j, name := range d.XNames {
		rep.Fixed[j] = effect{Name: name, Estimate: sol.FixedEffects[j], SE: sol.FixedSE[j]}
	}
	for j, name := range d.ZNames {
		rep.Random[j] = effect{
			Name:        name,
			Estimate:    sol.RandomEffects[j],
			SE:          sol.RandomSE[j],
			Reliability: finite(sol.Reliability[j]),
		}
	}

	return rep
}
