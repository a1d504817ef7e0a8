// SPDX-License-Identifier: MIT

package mixed

import (
	"context"
	"fmt"

	"github.com/katalvlaran/qgen/formula"
	"github.com/katalvlaran/qgen/linalg"
	"github.com/katalvlaran/qgen/matrix"
	"github.com/katalvlaran/qgen/mme"
	"github.com/katalvlaran/qgen/pedigree"
	"github.com/katalvlaran/qgen/reml"
	"go.uber.org/zap"
)

// Result bundles the three stages of a fit.
type Result struct {
	Design   *formula.Design
	Variance *reml.VarianceComponents
	Solution *mme.Solution
	// Rows maps design rows back to table rows; nil unless missing records
	// were dropped.
	Rows []int
}

// FixedEffect returns the BLUE of the named X column.
func (r *Result) FixedEffect(name string) (float64, bool) {
	return lookup(r.Design.XNames, r.Solution.FixedEffects, name)
}

// RandomEffect returns the BLUP of the named Z column, e.g. "block[B2]".
func (r *Result) RandomEffect(name string) (float64, bool) {
	return lookup(r.Design.ZNames, r.Solution.RandomEffects, name)
}

// FixedEffects returns the BLUEs keyed by X column name.
func (r *Result) FixedEffects() map[string]float64 {
	return named(r.Design.XNames, r.Solution.FixedEffects)
}

// RandomEffects returns the BLUPs keyed by Z column name.
func (r *Result) RandomEffects() map[string]float64 {
	return named(r.Design.ZNames, r.Solution.RandomEffects)
}

func lookup(names []string, vals []float64, name string) (float64, bool) {
	for i, n := range names {
		if n == name {
			return vals[i], true
		}
	}

	return 0, false
}

func named(names []string, vals []float64) map[string]float64 {
	out := make(map[string]float64, len(names))
	for i, n := range names {
		out[n] = vals[i]
	}

	return out
}

// Fit compiles f against data, estimates σ²_a and σ²_e by REML and solves
// the mixed model equations with them. The solution reports REML's
// convergence and iteration count.
//
// Errors: *formula.Error from compilation; reml and mme errors unchanged;
// matrix.ErrDimensionMismatch when the relationship does not match Z or the
// pedigree group is not the only random term; pedigree.ErrUnknownIndividual
// for a level missing from the pedigree.
func Fit(ctx context.Context, f string, data *formula.Table, opts ...Option) (*Result, error) {
	o := gatherOptions(opts...)

	spec, err := formula.Parse(f)
	if err != nil {
		return nil, err
	}
	res := &Result{}
	if o.dropMissing && data != nil {
		cols := append([]string{spec.Response}, spec.Fixed...)
		cols = append(cols, spec.Random...)
		n0 := data.Len()
		if data, res.Rows, err = data.DropMissing(cols...); err != nil {
			return nil, err
		}
		if dropped := n0 - data.Len(); dropped > 0 {
			o.logger.Debug("mixed: dropped incomplete records",
				zap.Int("dropped", dropped), zap.Int("kept", data.Len()))
		}
	}
	if res.Design, err = formula.CompileSpec(spec, data, f); err != nil {
		return nil, err
	}
	d := res.Design
	if o.ped != nil {
		if o.k, err = pedigreeRelationship(o.ped, o.pedGroup, d); err != nil {
			return nil, err
		}
	}

	var k matrix.Matrix
	if o.k != nil {
		if o.k.Rows() != d.Q() || o.k.Cols() != d.Q() {
			return nil, fmt.Errorf("mixed: relationship is %dx%d, design has %d random levels: %w",
				o.k.Rows(), o.k.Cols(), d.Q(), matrix.ErrDimensionMismatch)
		}
		k = o.k
	}
	var z matrix.Matrix
	if d.Z != nil {
		z = d.Z
	}

	ropts := append([]reml.Option{
		reml.WithBackend(o.backend),
		reml.WithLogger(o.logger),
		reml.WithMetrics(o.metrics),
	}, o.remlOpts...)
	if res.Variance, err = reml.EstimateContext(ctx, d.Y, d.X, z, k, ropts...); err != nil {
		return nil, err
	}

	mopts := []mme.Option{
		mme.WithBackend(o.backend),
		mme.WithLogger(o.logger),
		mme.WithMetrics(o.metrics),
	}
	var kinv matrix.Matrix
	if o.k != nil {
		inv, ierr := invertRelationship(o.backend, o.k)
		if ierr != nil {
			return nil, ierr
		}
		kinv = inv
		mopts = append(mopts, mme.WithRelationshipDiagonal(o.k.Diag()))
	}
	vc := res.Variance
	if res.Solution, err = mme.Solve(d.Y, d.X, z, kinv, vc.VarAdditive, vc.VarResidual, mopts...); err != nil {
		return nil, err
	}
	res.Solution.Converged = vc.Converged
	res.Solution.Iterations = vc.Iterations

	o.logger.Debug("mixed: fit complete",
		zap.String("formula", spec.String()),
		zap.Int("n", d.N()), zap.Int("p", d.P()), zap.Int("q", d.Q()),
		zap.Float64("heritability", vc.Heritability),
		zap.Bool("converged", vc.Converged),
	)

	return res, nil
}

// invertRelationship returns K⁻¹, ridge-regularised like REML does.
func invertRelationship(b linalg.Backend, k *matrix.Dense) (*matrix.Dense, error) {
	rr, err := linalg.CholeskyRidge(b, k)
	if err != nil {
		return nil, fmt.Errorf("mixed: relationship: %w", err)
	}
	inv, err := rr.Factor.Inverse()
	if err != nil {
		return nil, fmt.Errorf("mixed: relationship: %w", err)
	}

	return inv, nil
}

// pedigreeRelationship aligns A with the levels of the single random group.
func pedigreeRelationship(p *pedigree.Pedigree, group string, d *formula.Design) (*matrix.Dense, error) {
	if len(d.Random) != 1 || d.Random[0].Name != group {
		return nil, fmt.Errorf("mixed: pedigree group %q must be the only random term, have %d: %w",
			group, len(d.Random), matrix.ErrDimensionMismatch)
	}
	k, err := p.Submatrix(d.Random[0].Levels)
	if err != nil {
		return nil, fmt.Errorf("mixed: pedigree group %q: %w", group, err)
	}

	return k, nil
}
