// SPDX-License-Identifier: MIT

package cv

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/katalvlaran/qgen/grm"
	"github.com/katalvlaran/qgen/gs"
	"github.com/katalvlaran/qgen/matrix"
	"github.com/katalvlaran/qgen/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Input carries the predictors. GBLUP uses Relationship when set and
// otherwise builds a VanRaden G from Genotypes; RRBLUP needs Genotypes.
type Input struct {
	Genotypes    [][]float64   // n×m dosages, NaN for missing calls
	Relationship matrix.Matrix // n×n, e.g. a pedigree A or a prebuilt G
}

// FoldResult is the outcome of one held-out fold.
type FoldResult struct {
	Repeat      int       `json:"repeat" yaml:"repeat"`
	Fold        int       `json:"fold" yaml:"fold"`
	Indices     []int     `json:"indices" yaml:"indices"`
	Predicted   []float64 `json:"predicted" yaml:"predicted"`
	Observed    []float64 `json:"observed" yaml:"observed"`
	Correlation float64   `json:"correlation" yaml:"correlation"`
	// Err is set when the fold could not be fitted; Correlation is then 0.
	Err string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Summary aggregates all folds of all repeats.
type Summary struct {
	Method       Method       `json:"method" yaml:"method"`
	Folds        int          `json:"folds" yaml:"folds"`
	Repeats      int          `json:"repeats" yaml:"repeats"`
	Accuracies   []float64    `json:"accuracies" yaml:"accuracies"`
	Mean         float64      `json:"mean" yaml:"mean"`
	SE           float64      `json:"se" yaml:"se"`
	CILower      float64      `json:"ci_lower" yaml:"ci_lower"`
	CIUpper      float64      `json:"ci_upper" yaml:"ci_upper"`
	Confidence   float64      `json:"confidence" yaml:"confidence"`
	NIndividuals int          `json:"n_individuals" yaml:"n_individuals"`
	NMarkers     int          `json:"n_markers" yaml:"n_markers"`
	Results      []FoldResult `json:"results" yaml:"results"`
}

// CrossValidate runs repeated k-fold cross-validation of the chosen model.
//
// Implementation:
//   - Stage 1: validate the layout and build G once when GBLUP runs on
//     genotypes.
//   - Stage 2: assign folds of every repeat serially.
//   - Stage 3: fit the folds on an errgroup bounded by WithWorkers; each
//     result is written to its own slot.
//   - Stage 4: mean, SE = σ/√N with the population σ, and a normal interval.
//
// A fold whose fit fails numerically scores 0 and is logged at Warn; NaN
// phenotypes are left out of training and scoring.
//
// Errors:
//   - ErrConfiguration for folds < 2, repeats < 1, n < folds, a confidence
//     outside (0,1), no predictors, or RRBLUP without genotypes.
//   - matrix.ErrDimensionMismatch when the inputs disagree on n.
//   - matrix.ErrNaNInf for an infinite phenotype.
//   - the context error when ctx is cancelled.
func CrossValidate(ctx context.Context, in Input, phenotypes []float64, opts ...Option) (*Summary, error) {
	o := gatherOptions(opts...)
	n := len(phenotypes)

	// 1. Configuration.
	if err := o.validate(n); err != nil {
		return nil, err
	}
	for i, v := range phenotypes {
		if math.IsInf(v, 0) {
			return nil, fmt.Errorf("cv: phenotype %d: %w", i, matrix.ErrNaNInf)
		}
	}
	f, err := newFitter(in, n, o)
	if err != nil {
		return nil, err
	}

	// 2. Folds.
	type job struct {
		repeat, fold int
		held         []int
	}
	jobs := make([]job, 0, o.repeats*o.folds)
	for r := 0; r < o.repeats; r++ {
		for k, held := range Assign(n, o.folds, o.seed+int64(r)) {
			jobs = append(jobs, job{repeat: r, fold: k, held: held})
		}
	}

	// 3. Fits.
	results := make([]FoldResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for idx, j := range jobs {
		idx, j := idx, j
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			res, err := f.fold(gctx, j.held, phenotypes)
			o.metrics.ObserveFold(string(o.method), time.Since(start))
			if err != nil {
				if cerr := gctx.Err(); cerr != nil {
					return cerr
				}
				o.metrics.SolverFallback(metrics.FallbackFoldFailed)
				o.logger.Warn("cv: fold failed",
					zap.Int("repeat", j.repeat),
					zap.Int("fold", j.fold),
					zap.Error(err),
				)
				res.Err = err.Error()
			}
			res.Repeat, res.Fold = j.repeat, j.fold
			results[idx] = res

			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}

	// 4. Aggregation.
	s := &Summary{
		Method:       o.method,
		Folds:        o.folds,
		Repeats:      o.repeats,
		Confidence:   o.confidence,
		NIndividuals: n,
		NMarkers:     f.nMarkers(),
		Results:      results,
		Accuracies:   make([]float64, len(results)),
	}
	for i := range results {
		s.Accuracies[i] = results[i].Correlation
	}
	s.Mean = stat.Mean(s.Accuracies, nil)
	s.SE = math.Sqrt(stat.PopVariance(s.Accuracies, nil)) / math.Sqrt(float64(len(s.Accuracies)))
	z := distuv.UnitNormal.Quantile((1 + o.confidence) / 2)
	s.CILower, s.CIUpper = s.Mean-z*s.SE, s.Mean+z*s.SE

	o.logger.Info("cv: done",
		zap.String("method", string(o.method)),
		zap.Int("folds", o.folds),
		zap.Int("repeats", o.repeats),
		zap.Float64("mean", s.Mean),
		zap.Float64("se", s.SE),
	)

	return s, nil
}

// fitter holds what every fold shares.
type fitter struct {
	method    Method
	genotypes [][]float64
	k         *matrix.Dense // GBLUP relationship
	opts      []gs.Option
}

func newFitter(in Input, n int, o options) (*fitter, error) {
	f := &fitter{method: o.method, genotypes: in.Genotypes, opts: o.modelOptions()}
	if in.Genotypes != nil && len(in.Genotypes) != n {
		return nil, fmt.Errorf("cv: %d genotype rows for %d phenotypes: %w", len(in.Genotypes), n, matrix.ErrDimensionMismatch)
	}
	switch o.method {
	case RRBLUP:
		if in.Genotypes == nil {
			return nil, fmt.Errorf("%w: rrBLUP needs genotypes", ErrConfiguration)
		}
	case GBLUP:
		switch {
		case in.Relationship != nil:
			k, err := matrix.AsDense(in.Relationship)
			if err != nil {
				return nil, fmt.Errorf("cv: relationship: %w", err)
			}
			if k.Rows() != n || k.Cols() != n {
				return nil, fmt.Errorf("cv: relationship is %dx%d for %d phenotypes: %w", k.Rows(), k.Cols(), n, matrix.ErrDimensionMismatch)
			}
			f.k = k
		case in.Genotypes != nil:
			gr, err := grm.Build(in.Genotypes, append([]grm.Option{
				grm.WithPloidy(o.ploidy),
				grm.WithBackend(o.backend),
				grm.WithLogger(o.logger),
			}, o.grmOpts...)...)
			if err != nil {
				return nil, err
			}
			f.k = gr.G
		default:
			return nil, fmt.Errorf("%w: GBLUP needs genotypes or a relationship matrix", ErrConfiguration)
		}
	}

	return f, nil
}

func (f *fitter) nMarkers() int {
	if len(f.genotypes) == 0 {
		return 0
	}

	return len(f.genotypes[0])
}

// fold fits on every individual outside held and scores the held ones.
func (f *fitter) fold(ctx context.Context, held []int, phenotypes []float64) (FoldResult, error) {
	res := FoldResult{Indices: append([]int(nil), held...)}
	var (
		pred []float64
		err  error
	)
	switch f.method {
	case GBLUP:
		pred, err = f.gblup(ctx, held, phenotypes)
	case RRBLUP:
		pred, err = f.rrblup(ctx, held, phenotypes)
	}
	if err != nil {
		return res, err
	}

	// Score observed members only.
	for k, i := range held {
		if y := phenotypes[i]; !math.IsNaN(y) {
			res.Predicted = append(res.Predicted, pred[k])
			res.Observed = append(res.Observed, y)
		}
	}
	res.Correlation = gs.Pearson(res.Predicted, res.Observed)

	return res, nil
}

// gblup masks the held-out phenotypes and predicts them from relatives.
func (f *fitter) gblup(ctx context.Context, held []int, phenotypes []float64) ([]float64, error) {
	masked := append([]float64(nil), phenotypes...)
	for _, i := range held {
		masked[i] = math.NaN()
	}
	r, err := gs.RunGBLUPContext(ctx, f.k, masked, f.opts...)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(held))
	for k, i := range held {
		out[k] = r.Mean + r.GEBV[i]
	}

	return out, nil
}

// rrblup fits marker effects on the phenotyped training rows.
func (f *fitter) rrblup(ctx context.Context, held []int, phenotypes []float64) ([]float64, error) {
	n := len(phenotypes)
	var (
		trainG [][]float64
		trainY []float64
	)
	for _, i := range complement(n, held) {
		if !math.IsNaN(phenotypes[i]) {
			trainG = append(trainG, f.genotypes[i])
			trainY = append(trainY, phenotypes[i])
		}
	}
	r, err := gs.RunRRBLUPContext(ctx, trainG, trainY, f.opts...)
	if err != nil {
		return nil, err
	}
	testG := make([][]float64, len(held))
	for k, i := range held {
		testG[k] = f.genotypes[i]
	}
	gebv, err := r.Predict(testG)
	if err != nil {
		return nil, err
	}
	for k := range gebv {
		gebv[k] += r.Mean
	}

	return gebv, nil
}
