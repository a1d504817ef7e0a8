// SPDX-License-Identifier: MIT

package grm

import (
	"fmt"
	"math"

	"github.com/katalvlaran/qgen/matrix"
	"go.uber.org/zap"
)

// Result is a genomic relationship matrix with the statistics used to build it.
type Result struct {
	// G is the n×n relationship matrix.
	G *matrix.Dense
	// Frequencies holds p_j for every input marker.
	Frequencies []float64
	// Used lists the marker indices that contributed to G.
	Used []int
	// Denominator is the scaling constant (ploidy·Σp(1−p) for VanRaden1,
	// the number of used markers otherwise).
	Denominator float64
	// MeanDiagonal is mean(diag(G)), close to 1+F̄.
	MeanDiagonal float64
	Method       Method
	Ploidy       int
	NMarkers     int
	NMissing     int
}

// NMarkersUsed returns len(Used).
func (r *Result) NMarkersUsed() int { return len(r.Used) }

// Build imputes genotypes and returns their relationship matrix.
//
// Errors:
//   - matrix.ErrDimensionMismatch for an empty or ragged table.
//   - ErrInvalidDosage for calls outside [0, ploidy].
//   - ErrMonomorphic when no marker survives filtering.
//   - ErrUnsupportedMethod for Yang with ploidy != 2.
func Build(genotypes [][]float64, opts ...Option) (*Result, error) {
	g, err := Impute(genotypes, opts...)
	if err != nil {
		return nil, err
	}

	return BuildFrom(g, opts...)
}

// BuildFrom builds the relationship matrix from already-imputed genotypes.
func BuildFrom(g *Genotypes, opts ...Option) (*Result, error) {
	o := gatherOptions(opts...)
	o.ploidy = g.Ploidy
	if o.method == Yang && o.ploidy != 2 {
		return nil, fmt.Errorf("%w: yang requires ploidy 2, got %d", ErrUnsupportedMethod, o.ploidy)
	}

	used := selectMarkers(g.Frequencies, o.minMAF)
	if dropped := g.NMarkers() - len(used); dropped > 0 {
		o.logger.Debug("skipped uninformative markers",
			zap.Int("dropped", dropped),
			zap.Float64("min_maf", o.minMAF))
	}
	if len(used) == 0 {
		return nil, fmt.Errorf("grm: %d markers, none polymorphic: %w", g.NMarkers(), ErrMonomorphic)
	}

	z, err := centeredSubset(g, used)
	if err != nil {
		return nil, err
	}
	ploidy := float64(o.ploidy)

	var denom float64
	switch o.method {
	case VanRaden1:
		for _, j := range used {
			p := g.Frequencies[j]
			denom += p * (1 - p)
		}
		denom *= ploidy
	default:
		// VanRaden2 and Yang: per-marker standardisation, then average.
		k := len(used)
		err = z.Apply(func(_, c int, v float64) float64 {
			p := g.Frequencies[used[c]]
			return v / math.Sqrt(ploidy*p*(1-p))
		})
		if err != nil {
			return nil, fmt.Errorf("grm: standardise: %w", err)
		}
		denom = float64(k)
	}
	if denom < denominatorFloor {
		return nil, fmt.Errorf("grm: denominator %g: %w", denom, ErrMonomorphic)
	}

	gram, err := o.backend.Gram(z)
	if err != nil {
		return nil, fmt.Errorf("grm: gram: %w", err)
	}
	G, err := matrix.Scale(gram, 1/denom)
	if err != nil {
		return nil, fmt.Errorf("grm: scale: %w", err)
	}
	if err = matrix.Symmetrize(G); err != nil {
		return nil, fmt.Errorf("grm: %w", err)
	}
	if o.method == Yang {
		if err = yangDiagonal(G, g, used); err != nil {
			return nil, err
		}
	}

	res := &Result{
		G:            G,
		Frequencies:  append([]float64(nil), g.Frequencies...),
		Used:         used,
		Denominator:  denom,
		MeanDiagonal: G.Trace() / float64(G.Rows()),
		Method:       o.method,
		Ploidy:       o.ploidy,
		NMarkers:     g.NMarkers(),
		NMissing:     g.NMissing,
	}
	o.logger.Debug("built genomic relationship matrix",
		zap.String("method", string(o.method)),
		zap.Int("individuals", G.Rows()),
		zap.Int("markers_used", len(used)),
		zap.Float64("mean_diagonal", res.MeanDiagonal))

	return res, nil
}

// Cross returns the VanRaden1 relationship between the rows of test and train
// on the training scale: G_tt' = Z_test·Z_trainᵀ / (ploidy·Σp(1−p)), with p
// the training frequencies. Used to predict individuals outside a GBLUP fit.
func Cross(train, test *Genotypes, opts ...Option) (*matrix.Dense, error) {
	o := gatherOptions(opts...)
	if train.NMarkers() != test.NMarkers() {
		return nil, fmt.Errorf("grm: cross: %d vs %d markers: %w", train.NMarkers(), test.NMarkers(), matrix.ErrDimensionMismatch)
	}
	used := selectMarkers(train.Frequencies, o.minMAF)
	if len(used) == 0 {
		return nil, fmt.Errorf("grm: cross: %w", ErrMonomorphic)
	}
	zTrain, err := centeredSubsetWith(train, used, train.Frequencies)
	if err != nil {
		return nil, err
	}
	zTest, err := centeredSubsetWith(test, used, train.Frequencies)
	if err != nil {
		return nil, err
	}
	var denom float64
	for _, j := range used {
		p := train.Frequencies[j]
		denom += p * (1 - p)
	}
	denom *= float64(train.Ploidy)

	zt, err := matrix.Transpose(zTrain)
	if err != nil {
		return nil, fmt.Errorf("grm: cross: %w", err)
	}
	prod, err := matrix.Mul(zTest, zt)
	if err != nil {
		return nil, fmt.Errorf("grm: cross: %w", err)
	}

	return matrix.Scale(prod, 1/denom)
}

// Regularize returns G + eps·I.
func Regularize(g matrix.Matrix, eps float64) (*matrix.Dense, error) {
	return matrix.AddDiagonal(g, eps)
}

// selectMarkers keeps polymorphic markers with MAF >= minMAF, in input order.
func selectMarkers(freqs []float64, minMAF float64) []int {
	used := make([]int, 0, len(freqs))
	for j, p := range freqs {
		if p*(1-p) <= denominatorFloor {
			continue
		}
		if math.Min(p, 1-p) < minMAF {
			continue
		}
		used = append(used, j)
	}

	return used
}

func centeredSubset(g *Genotypes, used []int) (*matrix.Dense, error) {
	return centeredSubsetWith(g, used, g.Frequencies)
}

func centeredSubsetWith(g *Genotypes, used []int, freqs []float64) (*matrix.Dense, error) {
	z, err := g.Centered(freqs)
	if err != nil {
		return nil, err
	}
	if len(used) == g.NMarkers() {
		return z, nil
	}
	rows := make([]int, z.Rows())
	for i := range rows {
		rows[i] = i
	}
	sub, err := z.Induced(rows, used)
	if err != nil {
		return nil, fmt.Errorf("grm: %w", err)
	}

	return sub, nil
}

// yangDiagonal replaces diag(G) with 1 + (1/k)·Σ_j (x² − (1+2p)x + 2p²)/(2p(1−p)).
func yangDiagonal(G *matrix.Dense, g *Genotypes, used []int) error {
	k := float64(len(used))
	for i := 0; i < G.Rows(); i++ {
		row := g.M.RawRow(i)
		s := 0.0
		for _, j := range used {
			p, x := g.Frequencies[j], row[j]
			s += (x*x - (1+2*p)*x + 2*p*p) / (2 * p * (1 - p))
		}
		if err := G.Set(i, i, 1+s/k); err != nil {
			return fmt.Errorf("grm: yang diagonal: %w", err)
		}
	}

	return nil
}
