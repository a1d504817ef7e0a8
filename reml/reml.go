// SPDX-License-Identifier: MIT

package reml

import (
	"context"
	"fmt"
	"math"

	"github.com/katalvlaran/qgen/linalg"
	"github.com/katalvlaran/qgen/matrix"
	"github.com/katalvlaran/qgen/metrics"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// likelihoodSlack is the relative log-likelihood drop tolerated before an AI
// step is rejected.
const likelihoodSlack = 1e-10

// log2Pi is log(2π).
var log2Pi = math.Log(2 * math.Pi)

// VarianceComponents is the result of one REML fit.
type VarianceComponents struct {
	VarAdditive  float64 `json:"var_additive" yaml:"var_additive"`
	VarResidual  float64 `json:"var_residual" yaml:"var_residual"`
	Heritability float64 `json:"heritability" yaml:"heritability"`
	// Lambda is σ²_e/σ²_a; +Inf for a model without random effects.
	Lambda float64 `json:"-" yaml:"-"`

	LogLikelihood float64 `json:"log_likelihood" yaml:"log_likelihood"`
	AIC           float64 `json:"aic" yaml:"aic"`
	BIC           float64 `json:"bic" yaml:"bic"`

	Converged  bool      `json:"converged" yaml:"converged"`
	Iterations int       `json:"iterations" yaml:"iterations"`
	Method     Method    `json:"method" yaml:"method"`
	Ridge      float64   `json:"ridge,omitempty" yaml:"ridge,omitempty"` // absolute ridge added to K
	Warnings   []Warning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// HasWarning reports whether w was raised.
func (vc *VarianceComponents) HasWarning(w Warning) bool {
	for _, x := range vc.Warnings {
		if x == w {
			return true
		}
	}

	return false
}

func (vc *VarianceComponents) warn(w Warning) {
	if !vc.HasWarning(w) {
		vc.Warnings = append(vc.Warnings, w)
	}
}

// Estimate is EstimateContext with a background context.
func Estimate(y []float64, X, Z, K matrix.Matrix, opts ...Option) (*VarianceComponents, error) {
	return EstimateContext(context.Background(), y, X, Z, K, opts...)
}

// EstimateContext fits σ²_a and σ²_e for y = Xβ + Zu + e with u ~ N(0, σ²_a·K).
//
// Z may be nil (no random effects: σ²_a = 0, σ²_e from OLS, λ = +Inf,
// Converged = true). K may be nil, meaning the identity over Z's columns.
//
// Implementation:
//   - Stage 1: validate shapes and data before any allocation.
//   - Stage 2: OLS fit for the starting residual variance s², split by the
//     initial heritability; σ²_a is scaled by the mean diagonal of ZKZᵀ.
//   - Stage 3: iterate AI (or EM) updates, flooring both components at
//     1e-10·var(y), until the relative λ change is below the tolerance.
//
// Errors:
//   - matrix.ErrDimensionMismatch for inconsistent shapes.
//   - matrix.ErrNaNInf for a non-finite response.
//   - ErrInsufficientData when n ≤ p or y is constant.
//   - matrix.ErrSingular when K or XᵀX cannot be factored even with a ridge.
//   - ctx.Err() when the context is cancelled between iterations.
func EstimateContext(ctx context.Context, y []float64, X, Z, K matrix.Matrix, opts ...Option) (*VarianceComponents, error) {
	o := gatherOptions(opts...)

	// 1. Shapes first.
	if err := matrix.ValidateNotNil(X); err != nil {
		return nil, fmt.Errorf("reml: X: %w", err)
	}
	n, p := X.Rows(), X.Cols()
	if len(y) != n {
		return nil, fmt.Errorf("reml: len(y)=%d, rows(X)=%d: %w", len(y), n, matrix.ErrDimensionMismatch)
	}
	hasZ, hasK := present(Z), present(K)
	q := 0
	if hasZ {
		if Z.Rows() != n {
			return nil, fmt.Errorf("reml: rows(Z)=%d, n=%d: %w", Z.Rows(), n, matrix.ErrDimensionMismatch)
		}
		q = Z.Cols()
	}
	if hasK && (K.Rows() != q || K.Cols() != q) {
		return nil, fmt.Errorf("reml: K is %dx%d, Z has %d columns: %w", K.Rows(), K.Cols(), q, matrix.ErrDimensionMismatch)
	}
	if n <= p {
		return nil, fmt.Errorf("reml: n=%d observations for p=%d fixed effects: %w", n, p, ErrInsufficientData)
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("reml: y[%d]: %w", i, matrix.ErrNaNInf)
		}
	}
	varY := stat.Variance(y, nil)
	if !(varY > 0) {
		return nil, fmt.Errorf("reml: response has zero variance: %w", ErrInsufficientData)
	}

	vc := &VarianceComponents{Method: o.method}
	xd, err := matrix.AsDense(X)
	if err != nil {
		return nil, fmt.Errorf("reml: %w", err)
	}

	// 2. OLS start.
	ols, err := fitOLS(o.backend, y, xd)
	if err != nil {
		return nil, err
	}
	if ols.ridge > 0 {
		vc.warn(WarnRegularized)
		o.metrics.SolverFallback(metrics.FallbackRidge)
	}
	s2 := ols.rss / float64(n-p)
	if q == 0 {
		return degenerate(vc, o, ols, n, p, s2), nil
	}

	floor := varianceFloorFactor * varY
	if s2 <= floor {
		s2 = varY
	}
	gz, ridge, err := buildKernel(o, xd.Rows(), Z, K, hasK)
	if err != nil {
		return nil, err
	}
	if ridge > 0 {
		vc.Ridge = ridge
		vc.warn(WarnRegularized)
		o.metrics.SolverFallback(metrics.FallbackRidge)
		o.logger.Warn("reml: relationship matrix regularised", zap.Float64("ridge", ridge))
	}
	scale := meanDiag(gz)
	if !(scale > 0) {
		scale = 1
	}

	e := &estimator{o: o, y: y, x: xd, gz: gz, n: n, p: p, q: q, floor: floor, vc: vc}
	cur, err := e.evaluate(e.clamp(o.h2*s2/scale, (1-o.h2)*s2))
	if err != nil {
		return nil, err
	}

	// 3. Iterate.
	for it := 1; it <= o.maxIter; it++ {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		next, usedEM, serr := e.step(cur)
		if serr != nil {
			o.logger.Warn("reml: iteration failed, keeping last estimate",
				zap.Int("iteration", it), zap.Error(serr))
			vc.Iterations = it
			break
		}
		if usedEM {
			if !vc.HasWarning(WarnEMFallback) {
				o.logger.Warn("reml: AI step rejected, EM step taken", zap.Int("iteration", it))
			}
			vc.warn(WarnEMFallback)
			o.metrics.SolverFallback(metrics.FallbackEMStep)
		}
		change := relativeChange(cur.lambda(), next.lambda())
		o.logger.Debug("reml: iteration",
			zap.Int("iteration", it),
			zap.Float64("var_additive", next.sa),
			zap.Float64("var_residual", next.se),
			zap.Float64("log_likelihood", next.logL),
			zap.Float64("lambda_change", change),
		)
		cur = next
		vc.Iterations = it
		if change < o.tol {
			vc.Converged = true
			break
		}
	}

	e.finish(cur)

	return vc, nil
}

func present(m matrix.Matrix) bool { return m != nil && matrix.ValidateNotNil(m) == nil }

type olsFit struct {
	rss       float64
	logDetXtX float64
	ridge     float64
}

func fitOLS(b linalg.Backend, y []float64, x *matrix.Dense) (olsFit, error) {
	xtx, err := matrix.CrossProd(x)
	if err != nil {
		return olsFit{}, fmt.Errorf("reml: %w", err)
	}
	rr, err := linalg.CholeskyRidge(b, xtx)
	if err != nil {
		return olsFit{}, fmt.Errorf("reml: XᵀX: %w", err)
	}
	xty, err := matrix.MatTVec(x, y)
	if err != nil {
		return olsFit{}, fmt.Errorf("reml: %w", err)
	}
	beta, err := rr.Factor.Solve(xty)
	if err != nil {
		return olsFit{}, fmt.Errorf("reml: %w", err)
	}
	fitted, err := matrix.MatVec(x, beta)
	if err != nil {
		return olsFit{}, fmt.Errorf("reml: %w", err)
	}
	rss := 0.0
	for i, v := range y {
		r := v - fitted[i]
		rss += r * r
	}

	return olsFit{rss: rss, logDetXtX: rr.Factor.LogDet(), ridge: rr.Ridge}, nil
}

// degenerate handles q = 0: the REML likelihood of V = s²·I.
func degenerate(vc *VarianceComponents, o options, ols olsFit, n, p int, s2 float64) *VarianceComponents {
	dfe := float64(n - p)
	vc.VarResidual = s2
	vc.Lambda = math.Inf(1)
	vc.Converged = true
	if s2 > 0 {
		vc.LogLikelihood = -0.5 * (dfe*(math.Log(s2)+1+log2Pi) + ols.logDetXtX)
	}
	vc.AIC = -2*vc.LogLikelihood + 2
	vc.BIC = -2*vc.LogLikelihood + math.Log(dfe)
	o.metrics.ObserveREML(string(vc.Method), true, 0)

	return vc
}

// buildKernel returns ZKZᵀ (ZZᵀ when K is absent) and the ridge applied to K.
func buildKernel(o options, n int, Z, K matrix.Matrix, hasK bool) (*matrix.Dense, float64, error) {
	zd, err := matrix.AsDense(Z)
	if err != nil {
		return nil, 0, fmt.Errorf("reml: %w", err)
	}
	if !hasK {
		gz, gerr := o.backend.Gram(zd)
		if gerr != nil {
			return nil, 0, fmt.Errorf("reml: %w", gerr)
		}
		return gz, 0, nil
	}

	rr, err := linalg.CholeskyRidge(o.backend, K)
	if err != nil {
		return nil, 0, fmt.Errorf("reml: relationship matrix: %w", err)
	}
	zk, err := matrix.Mul(zd, rr.Matrix)
	if err != nil {
		return nil, 0, fmt.Errorf("reml: %w", err)
	}
	zt, err := matrix.Transpose(zd)
	if err != nil {
		return nil, 0, fmt.Errorf("reml: %w", err)
	}
	gz, err := matrix.Mul(zk, zt)
	if err != nil {
		return nil, 0, fmt.Errorf("reml: %w", err)
	}
	if gz.Rows() != n {
		return nil, 0, fmt.Errorf("reml: ZKZᵀ has %d rows, want %d: %w", gz.Rows(), n, matrix.ErrDimensionMismatch)
	}
	if err = matrix.Symmetrize(gz); err != nil {
		return nil, 0, fmt.Errorf("reml: %w", err)
	}

	return gz, rr.Ridge, nil
}

func meanDiag(m *matrix.Dense) float64 {
	d := m.Diag()
	s := 0.0
	for _, v := range d {
		s += v
	}

	return s / float64(len(d))
}

func relativeChange(old, cur float64) float64 {
	den := math.Abs(old)
	if den < math.SmallestNonzeroFloat64 {
		den = 1
	}

	return math.Abs(cur-old) / den
}

// estimator carries the fixed inputs of one fit.
type estimator struct {
	o       options
	y       []float64
	x       *matrix.Dense
	gz      *matrix.Dense
	n, p, q int
	floor   float64
	vc      *VarianceComponents
}

// evaluation holds everything derived from one (σ²_a, σ²_e) pair.
type evaluation struct {
	sa, se float64
	logL   float64

	trPGz, trP   float64 // tr(P·ZKZᵀ), tr(P)
	pyGzPy, pyPy float64 // (Py)ᵀZKZᵀ(Py), (Py)ᵀ(Py)
	aiAA, aiAE   float64
	aiEE         float64
}

func (ev *evaluation) lambda() float64 { return ev.se / ev.sa }

func (e *estimator) clamp(sa, se float64) (float64, float64) {
	return math.Max(sa, e.floor), math.Max(se, e.floor)
}

// evaluate computes P, the REML log-likelihood, its gradient pieces and the
// average-information matrix at (sa, se).
func (e *estimator) evaluate(sa, se float64) (*evaluation, error) {
	b := e.o.backend
	v, err := matrix.Scale(e.gz, sa)
	if err != nil {
		return nil, fmt.Errorf("reml: %w", err)
	}
	if v, err = matrix.AddDiagonal(v, se); err != nil {
		return nil, fmt.Errorf("reml: %w", err)
	}
	fv, err := b.Cholesky(v)
	if err != nil {
		return nil, fmt.Errorf("reml: V: %w", err)
	}
	vi, err := fv.Inverse()
	if err != nil {
		return nil, fmt.Errorf("reml: V: %w", err)
	}
	vix, err := matrix.Mul(vi, e.x)
	if err != nil {
		return nil, fmt.Errorf("reml: %w", err)
	}
	xtvix, err := matrix.MulTransA(e.x, vix)
	if err != nil {
		return nil, fmt.Errorf("reml: %w", err)
	}
	if err = matrix.Symmetrize(xtvix); err != nil {
		return nil, fmt.Errorf("reml: %w", err)
	}
	rr, err := linalg.CholeskyRidge(b, xtvix)
	if err != nil {
		return nil, fmt.Errorf("reml: XᵀV⁻¹X: %w", err)
	}
	if rr.Regularized() && !e.vc.HasWarning(WarnRegularized) {
		e.vc.warn(WarnRegularized)
		e.o.metrics.SolverFallback(metrics.FallbackRidge)
		e.o.logger.Warn("reml: XᵀV⁻¹X regularised", zap.Float64("ridge", rr.Ridge))
	}
	c, err := rr.Factor.Inverse()
	if err != nil {
		return nil, fmt.Errorf("reml: %w", err)
	}

	// P = V⁻¹ − V⁻¹X·C·XᵀV⁻¹
	vixc, err := matrix.Mul(vix, c)
	if err != nil {
		return nil, fmt.Errorf("reml: %w", err)
	}
	xtvi, err := matrix.Transpose(vix)
	if err != nil {
		return nil, fmt.Errorf("reml: %w", err)
	}
	corr, err := matrix.Mul(vixc, xtvi)
	if err != nil {
		return nil, fmt.Errorf("reml: %w", err)
	}
	pm, err := matrix.Sub(vi, corr)
	if err != nil {
		return nil, fmt.Errorf("reml: %w", err)
	}
	if err = matrix.Symmetrize(pm); err != nil {
		return nil, fmt.Errorf("reml: %w", err)
	}

	py, err := matrix.MatVec(pm, e.y)
	if err != nil {
		return nil, fmt.Errorf("reml: %w", err)
	}
	gzpy, err := matrix.MatVec(e.gz, py)
	if err != nil {
		return nil, fmt.Errorf("reml: %w", err)
	}
	pgzpy, err := matrix.MatVec(pm, gzpy)
	if err != nil {
		return nil, fmt.Errorf("reml: %w", err)
	}
	ppy, err := matrix.MatVec(pm, py)
	if err != nil {
		return nil, fmt.Errorf("reml: %w", err)
	}
	trPGz, err := matrix.TraceProduct(pm, e.gz)
	if err != nil {
		return nil, fmt.Errorf("reml: %w", err)
	}

	ev := &evaluation{
		sa:     sa,
		se:     se,
		trPGz:  trPGz,
		trP:    pm.Trace(),
		pyGzPy: matrix.Dot(py, gzpy),
		pyPy:   matrix.Dot(py, py),
		aiAA:   0.5 * matrix.Dot(gzpy, pgzpy),
		aiAE:   0.5 * matrix.Dot(gzpy, ppy),
		aiEE:   0.5 * matrix.Dot(py, ppy),
	}
	yPy := matrix.Dot(e.y, py)
	ev.logL = -0.5 * (fv.LogDet() + rr.Factor.LogDet() + yPy + float64(e.n-e.p)*log2Pi)

	return ev, nil
}

// aiProposal is θ + AI⁻¹·score; ok is false when AI is not positive
// definite or the step is not finite. Negative components are left to the
// caller's floor.
func (ev *evaluation) aiProposal() (sa, se float64, ok bool) {
	sA := -0.5 * (ev.trPGz - ev.pyGzPy)
	sE := -0.5 * (ev.trP - ev.pyPy)
	det := ev.aiAA*ev.aiEE - ev.aiAE*ev.aiAE
	if !(det > 0) || math.IsInf(det, 0) {
		return 0, 0, false
	}
	sa = ev.sa + (ev.aiEE*sA-ev.aiAE*sE)/det
	se = ev.se + (ev.aiAA*sE-ev.aiAE*sA)/det
	ok = finite(sa) && finite(se)

	return sa, se, ok
}

// emProposal is the EM-REML update; it never leaves [0, ∞).
func (ev *evaluation) emProposal(q, n int) (sa, se float64) {
	sa = ev.sa + ev.sa*ev.sa/float64(q)*(ev.pyGzPy-ev.trPGz)
	se = ev.se + ev.se*ev.se/float64(n)*(ev.pyPy-ev.trP)

	return sa, se
}

// step advances one iteration. usedEM reports an AI step replaced by EM.
func (e *estimator) step(cur *evaluation) (next *evaluation, usedEM bool, err error) {
	if e.o.method == AI {
		if sa, se, ok := cur.aiProposal(); ok {
			next, err = e.evaluate(e.clamp(sa, se))
			if err == nil && next.logL >= cur.logL-likelihoodSlack*(1+math.Abs(cur.logL)) {
				return next, false, nil
			}
		}
		usedEM = true
	}
	next, err = e.evaluate(e.clamp(cur.emProposal(e.q, e.n)))

	return next, usedEM, err
}

// finish copies the final estimate into vc and attaches the remaining
// warnings, model-fit criteria and metrics.
func (e *estimator) finish(ev *evaluation) {
	vc := e.vc
	vc.VarAdditive, vc.VarResidual = ev.sa, ev.se
	vc.Lambda = ev.lambda()
	vc.Heritability = clamp01(ev.sa / (ev.sa + ev.se))
	vc.LogLikelihood = ev.logL
	const k = 2
	vc.AIC = -2*ev.logL + 2*k
	vc.BIC = -2*ev.logL + k*math.Log(float64(e.n-e.p))

	if ev.sa <= e.floor || ev.se <= e.floor {
		vc.warn(WarnBoundary)
	}
	if !vc.Converged {
		vc.warn(WarnNonConvergence)
		e.o.logger.Warn("reml: iteration cap reached",
			zap.Int("iterations", vc.Iterations),
			zap.Float64("var_additive", ev.sa),
			zap.Float64("var_residual", ev.se),
		)
	}
	e.o.metrics.ObserveREML(string(vc.Method), vc.Converged, vc.Iterations)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

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
