// SPDX-License-Identifier: MIT

package gs

import (
	"context"
	"fmt"
	"math"

	"github.com/katalvlaran/qgen/grm"
	"github.com/katalvlaran/qgen/matrix"
	"github.com/katalvlaran/qgen/mme"
	"github.com/katalvlaran/qgen/reml"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// MarkerVariance holds the rrBLUP variance components.
type MarkerVariance struct {
	VarMarker    float64 `json:"var_marker" yaml:"var_marker"`
	VarGenetic   float64 `json:"var_genetic" yaml:"var_genetic"` // σ²_α·ploidy·Σp(1−p)
	VarResidual  float64 `json:"var_residual" yaml:"var_residual"`
	Heritability float64 `json:"heritability" yaml:"heritability"`
	Lambda       float64 `json:"lambda" yaml:"lambda"` // σ²_e/σ²_α
}

// RRBLUPResult holds marker effects, their tests and the implied GEBVs.
type RRBLUPResult struct {
	MarkerEffects []float64 `json:"marker_effects" yaml:"marker_effects"`
	SE            []float64 `json:"se_effects" yaml:"se_effects"`
	PValues       []float64 `json:"p_values" yaml:"p_values"`
	PVE           []float64 `json:"pve" yaml:"pve"` // share of phenotypic variance per marker
	GEBV          []float64 `json:"gebv" yaml:"gebv"`
	Mean          float64   `json:"mean" yaml:"mean"`
	Accuracy      float64   `json:"accuracy" yaml:"accuracy"`

	Variance MarkerVariance `json:"variance_components" yaml:"variance_components"`
	// REML is the underlying fit; nil when the heritability was fixed.
	REML *reml.VarianceComponents `json:"reml,omitempty" yaml:"reml,omitempty"`

	EffectiveDF  float64 `json:"effective_df" yaml:"effective_df"`
	ResidualDF   float64 `json:"residual_df" yaml:"residual_df"`
	NSignificant int     `json:"n_significant_markers" yaml:"n_significant_markers"`
	NIndividuals int     `json:"n_individuals" yaml:"n_individuals"`
	NMarkers     int     `json:"n_markers" yaml:"n_markers"`

	// Frequencies are the training allele frequencies used for centering.
	Frequencies []float64 `json:"-" yaml:"-"`
	Ploidy      int       `json:"-" yaml:"-"`
}

// RunRRBLUP is RunRRBLUPContext with a background context.
func RunRRBLUP(genotypes [][]float64, phenotypes []float64, opts ...Option) (*RRBLUPResult, error) {
	return RunRRBLUPContext(context.Background(), genotypes, phenotypes, opts...)
}

// RunRRBLUPContext estimates marker effects by ridge regression BLUP,
// y = 1μ + Zα + e with α ~ N(0, σ²_α·I) and Z the mean-imputed genotypes
// centered on ploidy·p.
//
// Implementation:
//   - Stage 1: impute and center the genotypes.
//   - Stage 2: σ²_α, σ²_e by REML (K = I) or from WithHeritability.
//   - Stage 3: MME with λ = σ²_e/σ²_α gives μ̂ and α̂; GEBV = Zα̂.
//   - Stage 4: t tests of α̂ with df = max(1, n−1−edf), where the effective
//     degrees of freedom edf = tr(Z(ZᵀZ+λI)⁻¹Zᵀ) = m − λ·tr(C_αα).
//
// Errors:
//   - matrix.ErrDimensionMismatch when len(phenotypes) differs from the
//     number of genotype rows, or for ragged genotypes.
//   - matrix.ErrNaNInf for a missing or infinite phenotype.
//   - ErrTooFewIndividuals when n < 3.
//   - grm.ErrInvalidDosage for calls outside [0, ploidy].
func RunRRBLUPContext(ctx context.Context, genotypes [][]float64, phenotypes []float64, opts ...Option) (*RRBLUPResult, error) {
	o := gatherOptions(opts...)
	n := len(genotypes)
	if len(phenotypes) != n {
		return nil, fmt.Errorf("gs: %d genotype rows, %d phenotypes: %w", n, len(phenotypes), matrix.ErrDimensionMismatch)
	}
	if n < 3 {
		return nil, fmt.Errorf("gs: %d individuals: %w", n, ErrTooFewIndividuals)
	}
	for i, v := range phenotypes {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("gs: phenotype %d: %w", i, matrix.ErrNaNInf)
		}
	}

	// 1. Genotypes.
	geno, err := grm.Impute(genotypes, grm.WithPloidy(o.ploidy), grm.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	z, err := geno.Centered(nil)
	if err != nil {
		return nil, err
	}
	m := z.Cols()
	x, err := matrix.NewDenseData(n, 1, ones(n))
	if err != nil {
		return nil, fmt.Errorf("gs: %w", err)
	}
	sumPQ := 0.0
	for _, p := range geno.Frequencies {
		sumPQ += p * (1 - p)
	}
	scale := float64(o.ploidy) * sumPQ

	res := &RRBLUPResult{
		NIndividuals: n,
		NMarkers:     m,
		Frequencies:  geno.Frequencies,
		Ploidy:       o.ploidy,
	}

	// 2. Variance components.
	v := &res.Variance
	if o.h2 > 0 {
		varY := stat.Variance(phenotypes, nil)
		if !(varY > 0) {
			return nil, fmt.Errorf("gs: phenotypes have zero variance: %w", reml.ErrInsufficientData)
		}
		if !(scale > 0) {
			return nil, fmt.Errorf("gs: %w", grm.ErrMonomorphic)
		}
		v.VarGenetic, v.VarResidual = o.h2*varY, (1-o.h2)*varY
		v.VarMarker = v.VarGenetic / scale
	} else {
		vc, verr := reml.EstimateContext(ctx, phenotypes, x, z, nil, o.remlOptions()...)
		if verr != nil {
			return nil, verr
		}
		res.REML = vc
		v.VarMarker, v.VarResidual = vc.VarAdditive, vc.VarResidual
		v.VarGenetic = v.VarMarker * scale
	}
	v.Lambda = v.VarResidual / v.VarMarker
	v.Heritability = v.VarGenetic / (v.VarGenetic + v.VarResidual)

	// 3. Marker effects.
	sol, err := mme.Solve(phenotypes, x, z, nil, v.VarMarker, v.VarResidual,
		mme.WithBackend(o.backend),
		mme.WithLogger(o.logger),
		mme.WithMetrics(o.metrics),
	)
	if err != nil {
		return nil, err
	}
	res.MarkerEffects = sol.RandomEffects
	res.SE = sol.RandomSE
	res.Mean = sol.FixedEffects[0]
	if res.GEBV, err = matrix.MatVec(z, res.MarkerEffects); err != nil {
		return nil, fmt.Errorf("gs: %w", err)
	}
	res.Accuracy = Pearson(res.GEBV, phenotypes)

	// 4. Marker tests.
	trC := 0.0
	for _, pev := range sol.PEV {
		trC += pev / v.VarResidual
	}
	res.EffectiveDF = math.Max(0, float64(m)-v.Lambda*trC)
	res.ResidualDF = math.Max(1, float64(n-1)-res.EffectiveDF)
	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: res.ResidualDF}
	varP := stat.PopVariance(phenotypes, nil)
	res.PValues = make([]float64, m)
	res.PVE = make([]float64, m)
	for j, a := range res.MarkerEffects {
		t := a / math.Max(res.SE[j], 1e-10)
		res.PValues[j] = 2 * tdist.Survival(math.Abs(t))
		if res.PValues[j] < o.alpha {
			res.NSignificant++
		}
		p := geno.Frequencies[j]
		res.PVE[j] = float64(o.ploidy) * p * (1 - p) * a * a / math.Max(varP, 1e-10)
	}

	o.logger.Debug("gs: rrBLUP fitted",
		zap.Int("individuals", n),
		zap.Int("markers", m),
		zap.Float64("lambda", v.Lambda),
		zap.Float64("effective_df", res.EffectiveDF),
		zap.Int("significant", res.NSignificant),
	)

	return res, nil
}

// Predict returns GEBVs of new individuals, imputed and centered with the
// training allele frequencies. Add Mean for predicted phenotypes.
func (r *RRBLUPResult) Predict(genotypes [][]float64) ([]float64, error) {
	geno, err := grm.ImputeWithFrequencies(genotypes, r.Frequencies, grm.WithPloidy(r.Ploidy))
	if err != nil {
		return nil, err
	}
	z, err := geno.Centered(r.Frequencies)
	if err != nil {
		return nil, err
	}
	out, err := matrix.MatVec(z, r.MarkerEffects)
	if err != nil {
		return nil, fmt.Errorf("gs: predict: %w", err)
	}

	return out, nil
}
