// SPDX-License-Identifier: MIT

package main

import (
	"errors"
	"fmt"
	"math"

	"github.com/katalvlaran/qgen/cv"
	"github.com/katalvlaran/qgen/gs"
	"github.com/katalvlaran/qgen/matrix"
	"github.com/katalvlaran/qgen/pedigree"
	"github.com/katalvlaran/qgen/reml"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// phenotyped holds genotypes with phenotypes aligned to them.
type phenotyped struct {
	geno  *genotypeFile
	trait string
	y     []float64 // NaN where an individual has no record
}

func loadPhenotyped(genoPath, phenoPath, trait string) (*phenotyped, error) {
	geno, err := readGenotypes(genoPath)
	if err != nil {
		return nil, err
	}
	ids, values, name, err := readPhenotypes(phenoPath, trait)
	if err != nil {
		return nil, err
	}
	y, err := align(geno.IDs, ids, values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", phenoPath, err)
	}

	return &phenotyped{geno: geno, trait: name, y: y}, nil
}

// observed returns the rows with a phenotype.
func (p *phenotyped) observed() ([][]float64, []float64) {
	var (
		g [][]float64
		y []float64
	)
	for i, v := range p.y {
		if !math.IsNaN(v) {
			g = append(g, p.geno.Dosages[i])
			y = append(y, v)
		}
	}

	return g, y
}

type markerReport struct {
	Marker string  `json:"marker" yaml:"marker"`
	Effect float64 `json:"effect" yaml:"effect"`
	SE     float64 `json:"se" yaml:"se"`
	PValue float64 `json:"p_value" yaml:"p_value"`
	PVE    float64 `json:"pve" yaml:"pve"`
}

type rrblupReport struct {
	Trait        string                   `json:"trait" yaml:"trait"`
	NIndividuals int                      `json:"n_individuals" yaml:"n_individuals"`
	NMarkers     int                      `json:"n_markers" yaml:"n_markers"`
	Mean         float64                  `json:"mean" yaml:"mean"`
	Accuracy     float64                  `json:"accuracy" yaml:"accuracy"`
	Variance     gs.MarkerVariance        `json:"variance_components" yaml:"variance_components"`
	REML         *reml.VarianceComponents `json:"reml,omitempty" yaml:"reml,omitempty"`
	EffectiveDF  float64                  `json:"effective_df" yaml:"effective_df"`
	ResidualDF   float64                  `json:"residual_df" yaml:"residual_df"`
	NSignificant int                      `json:"n_significant_markers" yaml:"n_significant_markers"`
	Markers      []markerReport           `json:"markers" yaml:"markers"`
	GEBV         map[string]float64       `json:"gebv" yaml:"gebv"`
}

func (a *app) rrblupCmd() *cobra.Command {
	var genoPath, phenoPath, trait string
	cmd := &cobra.Command{
		Use:   "rrblup",
		Short: "Estimate marker effects by ridge-regression BLUP",
		Long: "Fit marker effects on the phenotyped individuals and predict GEBVs of every\n" +
			"genotyped individual with the training allele frequencies.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := loadPhenotyped(genoPath, phenoPath, trait)
			if err != nil {
				return err
			}
			g, y := data.observed()
			opts := append(a.cfg.GSOptions(), gs.WithLogger(a.logger), gs.WithMetrics(a.metrics))
			res, err := gs.RunRRBLUPContext(cmd.Context(), g, y, opts...)
			if err != nil {
				return err
			}
			gebv, err := res.Predict(data.geno.Dosages)
			if err != nil {
				return err
			}

			rep := rrblupReport{
				Trait:        data.trait,
				NIndividuals: res.NIndividuals,
				NMarkers:     res.NMarkers,
				Mean:         res.Mean,
				Accuracy:     res.Accuracy,
				Variance:     res.Variance,
				REML:         res.REML,
				EffectiveDF:  res.EffectiveDF,
				ResidualDF:   res.ResidualDF,
				NSignificant: res.NSignificant,
				Markers:      make([]markerReport, res.NMarkers),
				GEBV:         make(map[string]float64, len(gebv)),
			}
			for j, name := range data.geno.Markers {
				rep.Markers[j] = markerReport{
					Marker: name,
					Effect: res.MarkerEffects[j],
					SE:     res.SE[j],
					PValue: res.PValues[j],
					PVE:    res.PVE[j],
				}
			}
			for i, id := range data.geno.IDs {
				rep.GEBV[id] = gebv[i]
			}
			a.logger.Info("rrBLUP fitted",
				zap.Int("individuals", res.NIndividuals),
				zap.Int("markers", res.NMarkers),
				zap.Float64("heritability", res.Variance.Heritability),
				zap.Int("significant", res.NSignificant),
			)

			return a.emit(rep)
		},
	}
	genomicFlags(cmd, &genoPath, &phenoPath, &trait)
	cmd.Flags().Float64("significance", gs.DefaultSignificance, "level of the marker t-tests")

	return cmd
}

type gblupIndividual struct {
	ID          string   `json:"id" yaml:"id"`
	GEBV        float64  `json:"gebv" yaml:"gebv"`
	Reliability float64  `json:"reliability" yaml:"reliability"`
	Phenotype   *float64 `json:"phenotype,omitempty" yaml:"phenotype,omitempty"`
}

type gblupReport struct {
	Trait        string                   `json:"trait" yaml:"trait"`
	Mean         float64                  `json:"mean" yaml:"mean"`
	VarAdditive  float64                  `json:"var_additive" yaml:"var_additive"`
	VarResidual  float64                  `json:"var_residual" yaml:"var_residual"`
	Heritability float64                  `json:"heritability" yaml:"heritability"`
	Accuracy     float64                  `json:"accuracy" yaml:"accuracy"`
	REML         *reml.VarianceComponents `json:"reml,omitempty" yaml:"reml,omitempty"`
	Response     *gs.Response             `json:"selection_response,omitempty" yaml:"selection_response,omitempty"`
	Individuals  []gblupIndividual        `json:"individuals" yaml:"individuals"`
}

func (a *app) gblupCmd() *cobra.Command {
	var (
		genoPath, phenoPath, trait string
		selected                   float64
	)
	cmd := &cobra.Command{
		Use:   "gblup",
		Short: "Predict genomic breeding values by GBLUP",
		Long: "Fit GBLUP on a VanRaden relationship matrix. Genotyped individuals without a\n" +
			"phenotype are predicted from their relatives. With --selected, the expected\n" +
			"response to truncation selection of that proportion is reported too.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := loadPhenotyped(genoPath, phenoPath, trait)
			if err != nil {
				return err
			}
			opts := append(a.cfg.GSOptions(), gs.WithLogger(a.logger), gs.WithMetrics(a.metrics))
			res, err := gs.GBLUPFromGenotypes(cmd.Context(), data.geno.Dosages, data.y, opts...)
			if err != nil {
				return err
			}
			rep := gblupReport{
				Trait:        data.trait,
				Mean:         res.Mean,
				VarAdditive:  res.VarAdditive,
				VarResidual:  res.VarResidual,
				Heritability: res.Heritability,
				Accuracy:     res.Accuracy,
				REML:         res.Variance,
				Individuals:  make([]gblupIndividual, len(res.GEBV)),
			}
			for i, id := range data.geno.IDs {
				rep.Individuals[i] = gblupIndividual{
					ID:          id,
					GEBV:        res.GEBV[i],
					Reliability: res.Reliability[i],
					Phenotype:   finite(data.y[i]),
				}
			}
			if selected > 0 {
				r, err := gs.ExpectedResponse(selected, meanAccuracy(res.Reliability), res.VarAdditive, res.Mean)
				if err != nil {
					return err
				}
				rep.Response = r
			}
			a.logger.Info("GBLUP fitted",
				zap.Int("individuals", len(res.GEBV)),
				zap.Int("phenotyped", len(res.Observed)),
				zap.Float64("heritability", res.Heritability),
			)

			return a.emit(rep)
		},
	}
	genomicFlags(cmd, &genoPath, &phenoPath, &trait)
	cmd.Flags().Float64("min-maf", 0, "drop markers with a lower minor allele frequency from G")
	cmd.Flags().Float64Var(&selected, "selected", 0, "proportion selected, in (0,1)")

	return cmd
}

// meanAccuracy is the mean of √reliability over all individuals.
func meanAccuracy(rel []float64) float64 {
	if len(rel) == 0 {
		return 0
	}
	s := 0.0
	for _, r := range rel {
		s += math.Sqrt(math.Max(r, 0))
	}

	return s / float64(len(rel))
}

func (a *app) cvCmd() *cobra.Command {
	var genoPath, pedPath, phenoPath, trait string
	cmd := &cobra.Command{
		Use:   "cv",
		Short: "Estimate prediction accuracy by repeated k-fold cross-validation",
		Long: "Cross-validate GBLUP or rrBLUP on genotypes, or GBLUP on the pedigree\n" +
			"relationship matrix of the phenotyped individuals (--pedigree).",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				in cv.Input
				y  []float64
			)
			switch {
			case genoPath != "" && pedPath != "":
				return errors.New("--genotypes and --pedigree are exclusive")
			case genoPath != "":
				data, err := loadPhenotyped(genoPath, phenoPath, trait)
				if err != nil {
					return err
				}
				in.Genotypes, y = data.geno.Dosages, data.y
			case pedPath != "":
				ids, values, _, err := readPhenotypes(phenoPath, trait)
				if err != nil {
					return err
				}
				rel, err := pedigreeRelationship(cmd, pedPath, ids)
				if err != nil {
					return err
				}
				in.Relationship, y = rel, values
			default:
				return errors.New("one of --genotypes or --pedigree is required")
			}

			opts := append(a.cfg.CVOptions(), cv.WithLogger(a.logger), cv.WithMetrics(a.metrics))
			s, err := cv.CrossValidate(cmd.Context(), in, y, opts...)
			if err != nil {
				return err
			}

			return a.emit(s)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&genoPath, "genotypes", "", "genotype CSV: id column, then one dosage column per marker")
	fl.StringVar(&pedPath, "pedigree", "", "pedigree CSV: id, sire, dam")
	fl.StringVar(&phenoPath, "phenotypes", "", "phenotype CSV: id column, then trait columns")
	fl.StringVar(&trait, "trait", "", "trait column (default: the first one)")
	fl.String("method", string(cv.DefaultMethod), "gblup or rrblup")
	fl.Int("folds", cv.DefaultFolds, "number of folds")
	fl.Int("repeats", cv.DefaultRepeats, "number of reshuffled repeats")
	fl.Int64("seed", cv.DefaultSeed, "base seed of the fold assignment")
	fl.Int("workers", 0, "folds fitted at once (0: GOMAXPROCS)")
	fl.Float64("confidence", cv.DefaultConfidence, "confidence level of the accuracy interval")
	fl.Float64("h2", 0, "fixed heritability in (0,1); 0 estimates it by REML in every fold")
	_ = cmd.MarkFlagRequired("phenotypes")

	return cmd
}

// pedigreeRelationship returns the A submatrix of ids.
func pedigreeRelationship(cmd *cobra.Command, path string, ids []string) (*matrix.Dense, error) {
	recs, err := readPedigree(path)
	if err != nil {
		return nil, err
	}
	p, err := pedigree.New(recs, pedigree.WithCancelContext(cmd.Context()))
	if err != nil {
		return nil, err
	}

	return p.Submatrix(ids)
}

func genomicFlags(cmd *cobra.Command, genoPath, phenoPath, trait *string) {
	fl := cmd.Flags()
	fl.StringVar(genoPath, "genotypes", "", "genotype CSV: id column, then one dosage column per marker")
	fl.StringVar(phenoPath, "phenotypes", "", "phenotype CSV: id column, then trait columns")
	fl.StringVar(trait, "trait", "", "trait column (default: the first one)")
	fl.Float64("h2", 0, "fixed heritability in (0,1); 0 estimates it by REML")
	fl.String("reml-method", string(reml.DefaultMethod), "ai or em")
	_ = cmd.MarkFlagRequired("genotypes")
	_ = cmd.MarkFlagRequired("phenotypes")
}
