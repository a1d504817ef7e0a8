// SPDX-License-Identifier: MIT

package main

import (
	"github.com/katalvlaran/qgen/grm"
	"github.com/katalvlaran/qgen/pedigree"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type inbreedingReport struct {
	MeanF             float64  `json:"mean_f" yaml:"mean_f"`
	MinF              float64  `json:"min_f" yaml:"min_f"`
	MaxF              float64  `json:"max_f" yaml:"max_f"`
	SDF               float64  `json:"sd_f" yaml:"sd_f"`
	NInbred           int      `json:"n_inbred" yaml:"n_inbred"`
	NOutcrossed       int      `json:"n_outcrossed" yaml:"n_outcrossed"`
	PopulationKinship float64  `json:"population_kinship" yaml:"population_kinship"`
	EffectiveSize     *float64 `json:"effective_size,omitempty" yaml:"effective_size,omitempty"`
}

type grmReport struct {
	Method       grm.Method        `json:"method" yaml:"method"`
	IDs          []string          `json:"ids" yaml:"ids"`
	NMarkers     int               `json:"n_markers" yaml:"n_markers"`
	NMarkersUsed int               `json:"n_markers_used" yaml:"n_markers_used"`
	NMissing     int               `json:"n_missing" yaml:"n_missing"`
	Denominator  float64           `json:"denominator" yaml:"denominator"`
	MeanDiagonal float64           `json:"mean_diagonal" yaml:"mean_diagonal"`
	Inbreeding   *inbreedingReport `json:"inbreeding" yaml:"inbreeding"`
	Matrix       [][]float64       `json:"matrix,omitempty" yaml:"matrix,omitempty"`
}

func (a *app) grmCmd() *cobra.Command {
	var (
		path     string
		noMatrix bool
	)
	cmd := &cobra.Command{
		Use:   "grm",
		Short: "Build a genomic relationship matrix from genotype calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			geno, err := readGenotypes(path)
			if err != nil {
				return err
			}
			opts := append(a.cfg.GRMOptions(), grm.WithLogger(a.logger))
			res, err := grm.Build(geno.Dosages, opts...)
			if err != nil {
				return err
			}
			inb, err := grm.Inbreeding(res.G)
			if err != nil {
				return err
			}
			a.logger.Info("grm built",
				zap.Int("individuals", len(geno.IDs)),
				zap.Int("markers_used", res.NMarkersUsed()),
				zap.Float64("mean_diagonal", res.MeanDiagonal),
			)
			rep := grmReport{
				Method:       res.Method,
				IDs:          geno.IDs,
				NMarkers:     res.NMarkers,
				NMarkersUsed: res.NMarkersUsed(),
				NMissing:     res.NMissing,
				Denominator:  res.Denominator,
				MeanDiagonal: res.MeanDiagonal,
				Inbreeding:   newInbreedingReport(inb),
			}
			if !noMatrix {
				rep.Matrix = res.G.ToRows()
			}

			return a.emit(rep)
		},
	}
	cmd.Flags().StringVar(&path, "genotypes", "", "genotype CSV: id column, then one dosage column per marker")
	cmd.Flags().String("method", string(grm.DefaultMethod), "vanraden1, vanraden2 or yang")
	cmd.Flags().Float64("min-maf", grm.DefaultMinMAF, "drop markers with a lower minor allele frequency")
	cmd.Flags().BoolVar(&noMatrix, "no-matrix", false, "print the summary only")
	_ = cmd.MarkFlagRequired("genotypes")

	return cmd
}

func newInbreedingReport(s *grm.InbreedingSummary) *inbreedingReport {
	return &inbreedingReport{
		MeanF:             s.MeanF,
		MinF:              s.MinF,
		MaxF:              s.MaxF,
		SDF:               s.SDF,
		NInbred:           s.NInbred,
		NOutcrossed:       s.NOutcrossed,
		PopulationKinship: s.PopulationKinship,
		EffectiveSize:     finite(s.EffectiveSize),
	}
}

type amatrixReport struct {
	IDs         []string          `json:"ids" yaml:"ids"`
	Stats       pedigree.Stats    `json:"stats" yaml:"stats"`
	Individuals []pedigree.Record `json:"individuals" yaml:"individuals"`
	Matrix      [][]float64       `json:"matrix,omitempty" yaml:"matrix,omitempty"`
	Inverse     [][]float64       `json:"inverse,omitempty" yaml:"inverse,omitempty"`
}

func (a *app) amatrixCmd() *cobra.Command {
	var (
		path     string
		inverse  bool
		noMatrix bool
	)
	cmd := &cobra.Command{
		Use:   "amatrix",
		Short: "Build the numerator relationship matrix of a pedigree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recs, err := readPedigree(path)
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
			rep := amatrixReport{
				IDs:         p.IDs(),
				Stats:       p.Stats(),
				Individuals: p.Individuals(),
			}
			if !noMatrix {
				rep.Matrix = p.AMatrix().ToRows()
			}
			if inverse {
				inv, err := p.AInverseDirect()
				if err != nil {
					return err
				}
				rep.Inverse = inv.ToRows()
			}
			a.logger.Info("pedigree processed",
				zap.Int("individuals", rep.Stats.NIndividuals),
				zap.Int("generations", rep.Stats.NGenerations),
				zap.Float64("mean_inbreeding", rep.Stats.MeanInbreeding),
			)

			return a.emit(rep)
		},
	}
	cmd.Flags().StringVar(&path, "pedigree", "", "pedigree CSV: id, sire, dam (unknown parents empty, 0 or NA)")
	cmd.Flags().BoolVar(&inverse, "inverse", false, "also print A⁻¹ from Henderson's rules")
	cmd.Flags().BoolVar(&noMatrix, "no-matrix", false, "omit A")
	_ = cmd.MarkFlagRequired("pedigree")

	return cmd
}
