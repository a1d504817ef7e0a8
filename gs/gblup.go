// SPDX-License-Identifier: MIT

package gs

import (
	"context"
	"fmt"
	"math"

	"github.com/katalvlaran/qgen/grm"
	"github.com/katalvlaran/qgen/linalg"
	"github.com/katalvlaran/qgen/matrix"
	"github.com/katalvlaran/qgen/mme"
	"github.com/katalvlaran/qgen/reml"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// GBLUPResult holds genomic breeding values for every individual of G.
type GBLUPResult struct {
	GEBV        []float64 `json:"gebv" yaml:"gebv"`
	Reliability []float64 `json:"reliability" yaml:"reliability"`
	Mean        float64   `json:"mean" yaml:"mean"`

	VarAdditive  float64 `json:"var_additive" yaml:"var_additive"`
	VarResidual  float64 `json:"var_residual" yaml:"var_residual"`
	Heritability float64 `json:"heritability" yaml:"heritability"`
	// Variance is the REML fit; nil when the heritability was fixed.
	Variance *reml.VarianceComponents `json:"variance,omitempty" yaml:"variance,omitempty"`

	// Accuracy is the correlation of GEBV and phenotype over Observed.
	Accuracy float64 `json:"accuracy" yaml:"accuracy"`
	Observed []int   `json:"observed" yaml:"observed"`
	// GRM is set by GBLUPFromGenotypes.
	GRM *grm.Result `json:"-" yaml:"-"`

	weights []float64 // G⁻¹û
	train   *grm.Genotypes
	grmOpts []grm.Option
}

// RunGBLUP is RunGBLUPContext with a background context.
func RunGBLUP(G matrix.Matrix, phenotypes []float64, opts ...Option) (*GBLUPResult, error) {
	return RunGBLUPContext(context.Background(), G, phenotypes, opts...)
}

// RunGBLUPContext fits y = 1μ + Zu + e with u ~ N(0, σ²_a·G) over the n
// individuals of G. NaN phenotypes are missing: those individuals are left
// out of the fit and receive a GEBV predicted from their relatives.
//
// Implementation:
//   - Stage 1: keep the phenotyped rows; Z maps them onto the n individuals.
//   - Stage 2: σ²_a, σ²_e by REML with K = G, or from WithHeritability.
//   - Stage 3: MME with K⁻¹ = G⁻¹ (ridge-regularised when needed).
//
// Errors:
//   - matrix.ErrDimensionMismatch unless G is n×n.
//   - matrix.ErrNaNInf for an infinite phenotype.
//   - ErrTooFewIndividuals with fewer than three phenotypes.
//   - reml and mme errors unchanged.
func RunGBLUPContext(ctx context.Context, G matrix.Matrix, phenotypes []float64, opts ...Option) (*GBLUPResult, error) {
	o := gatherOptions(opts...)

	// 1. Observations.
	g, err := matrix.AsDense(G)
	if err != nil {
		return nil, fmt.Errorf("gs: G: %w", err)
	}
	n := len(phenotypes)
	if g.Rows() != n || g.Cols() != n {
		return nil, fmt.Errorf("gs: G is %dx%d for %d phenotypes: %w", g.Rows(), g.Cols(), n, matrix.ErrDimensionMismatch)
	}
	res := &GBLUPResult{Observed: make([]int, 0, n)}
	y := make([]float64, 0, n)
	for i, v := range phenotypes {
		switch {
		case math.IsInf(v, 0):
			return nil, fmt.Errorf("gs: phenotype %d: %w", i, matrix.ErrNaNInf)
		case !math.IsNaN(v):
			res.Observed = append(res.Observed, i)
			y = append(y, v)
		}
	}
	nObs := len(y)
	if nObs < 3 {
		return nil, fmt.Errorf("gs: %d phenotypes: %w", nObs, ErrTooFewIndividuals)
	}
	x, err := matrix.NewDenseData(nObs, 1, ones(nObs))
	if err != nil {
		return nil, fmt.Errorf("gs: %w", err)
	}
	z, err := matrix.NewDense(nObs, n)
	if err != nil {
		return nil, fmt.Errorf("gs: %w", err)
	}
	for r, i := range res.Observed {
		z.RawRow(r)[i] = 1
	}

	// 2. Variance components.
	if o.h2 > 0 {
		varY := stat.Variance(y, nil)
		if !(varY > 0) {
			return nil, fmt.Errorf("gs: phenotypes have zero variance: %w", reml.ErrInsufficientData)
		}
		res.VarAdditive, res.VarResidual = o.h2*varY, (1-o.h2)*varY
	} else {
		vc, verr := reml.EstimateContext(ctx, y, x, z, g, o.remlOptions()...)
		if verr != nil {
			return nil, verr
		}
		res.Variance = vc
		res.VarAdditive, res.VarResidual = vc.VarAdditive, vc.VarResidual
	}
	res.Heritability = res.VarAdditive / (res.VarAdditive + res.VarResidual)

	// 3. Mixed model equations.
	rr, err := linalg.CholeskyRidge(o.backend, g)
	if err != nil {
		return nil, fmt.Errorf("gs: G: %w", err)
	}
	if rr.Regularized() && res.Variance == nil {
		o.logger.Warn("gs: relationship matrix regularised", zap.Float64("ridge", rr.Ridge))
	}
	ginv, err := rr.Factor.Inverse()
	if err != nil {
		return nil, fmt.Errorf("gs: G: %w", err)
	}
	sol, err := mme.Solve(y, x, z, ginv, res.VarAdditive, res.VarResidual,
		mme.WithBackend(o.backend),
		mme.WithLogger(o.logger),
		mme.WithMetrics(o.metrics),
		mme.WithRelationshipDiagonal(g.Diag()),
	)
	if err != nil {
		return nil, err
	}
	res.GEBV = sol.RandomEffects
	res.Reliability = sol.Reliability
	res.Mean = sol.FixedEffects[0]
	if res.weights, err = matrix.MatVec(ginv, res.GEBV); err != nil {
		return nil, fmt.Errorf("gs: %w", err)
	}

	fitted := make([]float64, nObs)
	for r, i := range res.Observed {
		fitted[r] = res.GEBV[i]
	}
	res.Accuracy = Pearson(fitted, y)

	o.logger.Debug("gs: GBLUP fitted",
		zap.Int("individuals", n),
		zap.Int("phenotyped", nObs),
		zap.Float64("heritability", res.Heritability),
		zap.Float64("accuracy", res.Accuracy),
	)

	return res, nil
}

// PredictNew returns GEBVs of individuals outside the fit from their
// relationships to the fitted ones: ĝ = G_new,fit · G⁻¹ · û. cross has one
// row per new individual and one column per fitted individual.
func (r *GBLUPResult) PredictNew(cross matrix.Matrix) ([]float64, error) {
	if err := matrix.ValidateNotNil(cross); err != nil {
		return nil, fmt.Errorf("gs: predict: %w", err)
	}
	if cross.Cols() != len(r.weights) {
		return nil, fmt.Errorf("gs: predict: %d columns for %d fitted individuals: %w",
			cross.Cols(), len(r.weights), matrix.ErrDimensionMismatch)
	}
	out, err := matrix.MatVec(cross, r.weights)
	if err != nil {
		return nil, fmt.Errorf("gs: predict: %w", err)
	}

	return out, nil
}

// PredictGenotypes predicts new individuals from their genotype calls, on
// the coding and allele frequencies of the training set. Only results of
// GBLUPFromGenotypes carry genotypes.
func (r *GBLUPResult) PredictGenotypes(genotypes [][]float64) ([]float64, error) {
	if r.train == nil {
		return nil, ErrNoGenotypes
	}
	test, err := grm.ImputeWithFrequencies(genotypes, r.train.Frequencies, grm.WithPloidy(r.train.Ploidy))
	if err != nil {
		return nil, err
	}
	cross, err := grm.Cross(r.train, test, r.grmOpts...)
	if err != nil {
		return nil, err
	}

	return r.PredictNew(cross)
}

// GBLUPFromGenotypes builds G from genotype calls (VanRaden 1 unless
// WithGRM says otherwise) and runs GBLUP on it.
func GBLUPFromGenotypes(ctx context.Context, genotypes [][]float64, phenotypes []float64, opts ...Option) (*GBLUPResult, error) {
	o := gatherOptions(opts...)
	gopts := o.grmOptions()
	geno, err := grm.Impute(genotypes, gopts...)
	if err != nil {
		return nil, err
	}
	built, err := grm.BuildFrom(geno, gopts...)
	if err != nil {
		return nil, err
	}
	res, err := RunGBLUPContext(ctx, built.G, phenotypes, opts...)
	if err != nil {
		return nil, err
	}
	res.GRM = built
	res.train = geno
	res.grmOpts = gopts

	return res, nil
}
