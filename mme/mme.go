// SPDX-License-Identifier: MIT

package mme

import (
	"errors"
	"fmt"
	"math"

	"github.com/katalvlaran/qgen/linalg"
	"github.com/katalvlaran/qgen/matrix"
	"github.com/katalvlaran/qgen/metrics"
	"go.uber.org/zap"
)

// Solution holds the solved mixed model equations.
type Solution struct {
	FixedEffects  []float64 `json:"fixed_effects" yaml:"fixed_effects"`   // β̂, one per column of X
	RandomEffects []float64 `json:"random_effects" yaml:"random_effects"` // û, one per column of Z; empty without Z
	Fitted        []float64 `json:"fitted" yaml:"fitted"`
	Residuals     []float64 `json:"residuals" yaml:"residuals"`

	// Converged and Iterations describe the variance-component fit that fed
	// the solve; a direct solve reports true and 0.
	Converged  bool `json:"converged" yaml:"converged"`
	Iterations int  `json:"iterations" yaml:"iterations"`

	FixedSE     []float64 `json:"fixed_se" yaml:"fixed_se"`
	RandomSE    []float64 `json:"random_se" yaml:"random_se"`
	PEV         []float64 `json:"pev" yaml:"pev"` // prediction error variance of û
	Reliability []float64 `json:"reliability" yaml:"reliability"`

	Lambda            float64 `json:"-" yaml:"-"`
	Ridge             float64 `json:"ridge,omitempty" yaml:"ridge,omitempty"`
	UsedPseudoInverse bool    `json:"used_pseudo_inverse" yaml:"used_pseudo_inverse"`
}

// Solve builds and solves the mixed model equations for known variance
// components. Z may be nil (ordinary least squares, empty RandomEffects);
// KInv may be nil, meaning the identity.
//
// Implementation:
//   - Stage 1: validate shapes and variances.
//   - Stage 2: assemble the (p+q)×(p+q) coefficient matrix and right-hand side.
//   - Stage 3: factor with Cholesky (ridge on failure), else pseudo-inverse.
//   - Stage 4: β̂, û, fitted values, residuals and the C⁻¹-based accuracies.
//
// Errors:
//   - matrix.ErrDimensionMismatch for inconsistent shapes.
//   - matrix.ErrNaNInf for a non-finite response.
//   - ErrInvalidVariance for σ²_e ≤ 0, or σ²_a ≤ 0 when Z has columns.
func Solve(y []float64, X, Z, KInv matrix.Matrix, varA, varE float64, opts ...Option) (*Solution, error) {
	o := gatherOptions(opts...)

	// 1. Validation.
	xd, err := matrix.AsDense(X)
	if err != nil {
		return nil, fmt.Errorf("mme: X: %w", err)
	}
	n, p := xd.Rows(), xd.Cols()
	if len(y) != n {
		return nil, fmt.Errorf("mme: len(y)=%d, rows(X)=%d: %w", len(y), n, matrix.ErrDimensionMismatch)
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("mme: y[%d]: %w", i, matrix.ErrNaNInf)
		}
	}
	var zd *matrix.Dense
	q := 0
	if present(Z) {
		if zd, err = matrix.AsDense(Z); err != nil {
			return nil, fmt.Errorf("mme: Z: %w", err)
		}
		if zd.Rows() != n {
			return nil, fmt.Errorf("mme: rows(Z)=%d, n=%d: %w", zd.Rows(), n, matrix.ErrDimensionMismatch)
		}
		q = zd.Cols()
	}
	var kinv *matrix.Dense
	if q > 0 && present(KInv) {
		if kinv, err = matrix.AsDense(KInv); err != nil {
			return nil, fmt.Errorf("mme: K⁻¹: %w", err)
		}
		if kinv.Rows() != q || kinv.Cols() != q {
			return nil, fmt.Errorf("mme: K⁻¹ is %dx%d, Z has %d columns: %w", kinv.Rows(), kinv.Cols(), q, matrix.ErrDimensionMismatch)
		}
	}
	if !(varE > 0) || math.IsInf(varE, 0) {
		return nil, fmt.Errorf("mme: σ²_e=%g: %w", varE, ErrInvalidVariance)
	}
	if q > 0 && (!(varA > 0) || math.IsInf(varA, 0)) {
		return nil, fmt.Errorf("mme: σ²_a=%g: %w", varA, ErrInvalidVariance)
	}

	sol := &Solution{Converged: true, RandomEffects: []float64{}, Lambda: math.Inf(1)}
	if q > 0 {
		sol.Lambda = varE / varA
	}

	// 2. Coefficient matrix and right-hand side.
	c, rhs, err := assemble(y, xd, zd, kinv, sol.Lambda)
	if err != nil {
		return nil, err
	}

	// 3. Solve.
	theta, cinv, err := solveSystem(o, c, rhs, sol)
	if err != nil {
		return nil, err
	}

	// 4. Effects and accuracies.
	sol.FixedEffects = append([]float64(nil), theta[:p]...)
	if q > 0 {
		sol.RandomEffects = append([]float64(nil), theta[p:]...)
	}
	if sol.Fitted, err = matrix.MatVec(xd, sol.FixedEffects); err != nil {
		return nil, fmt.Errorf("mme: %w", err)
	}
	if q > 0 {
		zu, zerr := matrix.MatVec(zd, sol.RandomEffects)
		if zerr != nil {
			return nil, fmt.Errorf("mme: %w", zerr)
		}
		for i := range sol.Fitted {
			sol.Fitted[i] += zu[i]
		}
	}
	sol.Residuals = make([]float64, n)
	for i, v := range y {
		sol.Residuals[i] = v - sol.Fitted[i]
	}

	sol.FixedSE = make([]float64, p)
	for i := 0; i < p; i++ {
		sol.FixedSE[i] = math.Sqrt(math.Max(cinv.RawRow(i)[i], 0) * varE)
	}
	sol.PEV = make([]float64, q)
	sol.RandomSE = make([]float64, q)
	sol.Reliability = make([]float64, q)
	if q == 0 {
		return sol, nil
	}
	kdiag, err := relationshipDiagonal(o, kinv, q)
	if err != nil {
		return nil, err
	}
	for j := 0; j < q; j++ {
		pev := math.Max(cinv.RawRow(p + j)[p+j], 0) * varE
		sol.PEV[j] = pev
		sol.RandomSE[j] = math.Sqrt(pev)
		if prior := varA * kdiag[j]; prior > 0 {
			sol.Reliability[j] = clamp01(1 - pev/prior)
		}
	}

	return sol, nil
}

func present(m matrix.Matrix) bool { return m != nil && matrix.ValidateNotNil(m) == nil }

// assemble returns C and the right-hand side [Xᵀy; Zᵀy].
func assemble(y []float64, x, z, kinv *matrix.Dense, lambda float64) (*matrix.Dense, []float64, error) {
	p := x.Cols()
	q := 0
	if z != nil {
		q = z.Cols()
	}
	c, err := matrix.NewDense(p+q, p+q)
	if err != nil {
		return nil, nil, fmt.Errorf("mme: %w", err)
	}
	xtx, err := matrix.CrossProd(x)
	if err != nil {
		return nil, nil, fmt.Errorf("mme: %w", err)
	}
	place(c, xtx, 0, 0)
	rhs, err := matrix.MatTVec(x, y)
	if err != nil {
		return nil, nil, fmt.Errorf("mme: %w", err)
	}
	if q == 0 {
		return c, rhs, nil
	}

	xtz, err := matrix.MulTransA(x, z)
	if err != nil {
		return nil, nil, fmt.Errorf("mme: %w", err)
	}
	ztz, err := matrix.CrossProd(z)
	if err != nil {
		return nil, nil, fmt.Errorf("mme: %w", err)
	}
	if kinv == nil {
		ztz, err = matrix.AddDiagonal(ztz, lambda)
	} else {
		var lk *matrix.Dense
		if lk, err = matrix.Scale(kinv, lambda); err == nil {
			ztz, err = matrix.Add(ztz, lk)
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("mme: %w", err)
	}
	place(c, xtz, 0, p)
	zx, err := matrix.Transpose(xtz)
	if err != nil {
		return nil, nil, fmt.Errorf("mme: %w", err)
	}
	place(c, zx, p, 0)
	place(c, ztz, p, p)
	if err = matrix.Symmetrize(c); err != nil {
		return nil, nil, fmt.Errorf("mme: %w", err)
	}
	zty, err := matrix.MatTVec(z, y)
	if err != nil {
		return nil, nil, fmt.Errorf("mme: %w", err)
	}

	return c, append(rhs, zty...), nil
}

// place copies block into dst with its top-left corner at (r0, c0).
func place(dst, block *matrix.Dense, r0, c0 int) {
	for i := 0; i < block.Rows(); i++ {
		copy(dst.RawRow(r0 + i)[c0:], block.RawRow(i))
	}
}

// solveSystem returns C⁻¹·rhs and C⁻¹, recording fallbacks on sol.
func solveSystem(o options, c *matrix.Dense, rhs []float64, sol *Solution) ([]float64, *matrix.Dense, error) {
	rr, err := linalg.CholeskyRidge(o.backend, c)
	if err == nil {
		if rr.Regularized() {
			sol.Ridge = rr.Ridge
			o.metrics.SolverFallback(metrics.FallbackRidge)
			o.logger.Warn("mme: coefficient matrix regularised", zap.Float64("ridge", rr.Ridge))
		}
		theta, serr := rr.Factor.Solve(rhs)
		if serr != nil {
			return nil, nil, fmt.Errorf("mme: %w", serr)
		}
		cinv, ierr := rr.Factor.Inverse()
		if ierr != nil {
			return nil, nil, fmt.Errorf("mme: %w", ierr)
		}
		return theta, cinv, nil
	}
	if !errors.Is(err, matrix.ErrSingular) {
		return nil, nil, fmt.Errorf("mme: %w", err)
	}

	o.logger.Warn("mme: coefficient matrix singular, using pseudo-inverse",
		zap.Int("size", c.Rows()), zap.String("backend", o.backend.Name()))
	o.metrics.SolverFallback(metrics.FallbackPseudoInverse)
	sol.UsedPseudoInverse = true
	cinv, err := o.backend.PseudoInverse(c)
	if err != nil {
		return nil, nil, fmt.Errorf("mme: pseudo-inverse: %w", err)
	}
	theta, err := matrix.MatVec(cinv, rhs)
	if err != nil {
		return nil, nil, fmt.Errorf("mme: %w", err)
	}

	return theta, cinv, nil
}

// relationshipDiagonal returns diag(K): from the option, from inverting
// K⁻¹, or all ones when K⁻¹ is absent.
func relationshipDiagonal(o options, kinv *matrix.Dense, q int) ([]float64, error) {
	if len(o.kdiag) == q {
		return o.kdiag, nil
	}
	if kinv == nil {
		out := make([]float64, q)
		for i := range out {
			out[i] = 1
		}
		return out, nil
	}
	var k *matrix.Dense
	rr, err := linalg.CholeskyRidge(o.backend, kinv)
	if err == nil {
		k, err = rr.Factor.Inverse()
	}
	if err != nil {
		if k, err = o.backend.PseudoInverse(kinv); err != nil {
			return nil, fmt.Errorf("mme: diag(K): %w", err)
		}
	}

	return k.Diag(), nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
