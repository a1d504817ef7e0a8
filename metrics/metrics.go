// SPDX-License-Identifier: MIT

// Package metrics exposes optional Prometheus collectors for the estimators.
//
// A *Recorder is injected through the WithMetrics options of reml, mme and
// cv. Every method is a no-op on a nil *Recorder, so instrumented code never
// checks for one.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every collector name.
const Namespace = "qgen"

// Fallback kinds recorded by SolverFallback.
const (
	FallbackRidge         = "ridge"
	FallbackPseudoInverse = "pseudo_inverse"
	FallbackEMStep        = "em_step"
	FallbackFoldFailed    = "fold_failed"
)

// Recorder groups the collectors of one engine instance.
type Recorder struct {
	remlFits       *prometheus.CounterVec
	remlIterations prometheus.Histogram
	fallbacks      *prometheus.CounterVec
	foldSeconds    *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
//
// Errors: the registration error of the first collector that fails, e.g.
// prometheus.AlreadyRegisteredError when two recorders share a registry.
func New(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		remlFits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "reml",
			Name:      "fits_total",
			Help:      "REML fits by method and convergence.",
		}, []string{"method", "converged"}),
		remlIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "reml",
			Name:      "iterations",
			Help:      "Iterations used per REML fit.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34, 55, 100},
		}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "solver",
			Name:      "fallbacks_total",
			Help:      "Numerical fallbacks taken by the solvers.",
		}, []string{"kind"}),
		foldSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "cv",
			Name:      "fold_seconds",
			Help:      "Wall time of one cross-validation fold.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"method"}),
	}
	for _, c := range []prometheus.Collector{r.remlFits, r.remlIterations, r.fallbacks, r.foldSeconds} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// MustNew is New that panics on a registration error.
func MustNew(reg prometheus.Registerer) *Recorder {
	r, err := New(reg)
	if err != nil {
		panic(err)
	}

	return r
}

// ObserveREML records one finished REML fit.
func (r *Recorder) ObserveREML(method string, converged bool, iterations int) {
	if r == nil {
		return
	}
	r.remlFits.WithLabelValues(method, strconv.FormatBool(converged)).Inc()
	r.remlIterations.Observe(float64(iterations))
}

// SolverFallback counts one fallback of the given kind.
func (r *Recorder) SolverFallback(kind string) {
	if r == nil {
		return
	}
	r.fallbacks.WithLabelValues(kind).Inc()
}

// ObserveFold records the duration of one cross-validation fold.
func (r *Recorder) ObserveFold(method string, d time.Duration) {
	if r == nil {
		return
	}
	r.foldSeconds.WithLabelValues(method).Observe(d.Seconds())
}
