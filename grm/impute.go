// SPDX-License-Identifier: MIT

package grm

import (
	"fmt"
	"math"

	"github.com/katalvlaran/qgen/matrix"
	"go.uber.org/zap"
)

// Missing marks a missing genotype call. Compare with IsMissing, never ==.
var Missing = math.NaN()

// IsMissing reports whether v is the missing-call marker.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// Genotypes is a complete (imputed) dosage table together with the allele
// frequencies it was imputed with.
type Genotypes struct {
	// M holds n×m dosages with every missing call replaced.
	M *matrix.Dense
	// Frequencies holds p_j = mean dosage / ploidy for each marker.
	Frequencies []float64
	// Ploidy is the maximum dosage.
	Ploidy int
	// NMissing counts the calls that were imputed.
	NMissing int
}

// N returns the number of individuals.
func (g *Genotypes) N() int { return g.M.Rows() }

// NMarkers returns the number of markers.
func (g *Genotypes) NMarkers() int { return g.M.Cols() }

// Impute validates a dosage table and replaces every missing call with the
// observed mean dosage of its marker. A marker with no observed calls is
// imputed as 0 and has frequency 0, so it is treated as monomorphic.
//
// Errors:
//   - matrix.ErrDimensionMismatch for an empty or ragged table.
//   - ErrInvalidDosage for ±Inf or a value outside [0, ploidy].
func Impute(genotypes [][]float64, opts ...Option) (*Genotypes, error) {
	o := gatherOptions(opts...)
	n, m, err := validate(genotypes, o.ploidy)
	if err != nil {
		return nil, err
	}
	sums := make([]float64, m)
	counts := make([]int, m)
	for i := 0; i < n; i++ {
		for j, v := range genotypes[i] {
			if IsMissing(v) {
				continue
			}
			sums[j] += v
			counts[j]++
		}
	}
	freqs := make([]float64, m)
	for j := range freqs {
		if counts[j] > 0 {
			freqs[j] = sums[j] / float64(counts[j]) / float64(o.ploidy)
		}
	}

	return fill(genotypes, freqs, o)
}

// ImputeWithFrequencies fills missing calls with ploidy·freqs[j] and keeps
// freqs as the table's frequencies. It is used to bring prediction sets onto
// the training-set coding.
func ImputeWithFrequencies(genotypes [][]float64, freqs []float64, opts ...Option) (*Genotypes, error) {
	o := gatherOptions(opts...)
	_, m, err := validate(genotypes, o.ploidy)
	if err != nil {
		return nil, err
	}
	if len(freqs) != m {
		return nil, fmt.Errorf("grm: %d frequencies for %d markers: %w", len(freqs), m, matrix.ErrDimensionMismatch)
	}

	return fill(genotypes, append([]float64(nil), freqs...), o)
}

// Centered returns Z = M − ploidy·p using freqs (nil means the table's own
// frequencies). Passing training frequencies codes a prediction set on the
// training scale.
func (g *Genotypes) Centered(freqs []float64) (*matrix.Dense, error) {
	if freqs == nil {
		freqs = g.Frequencies
	}
	offsets := make([]float64, len(freqs))
	for j, p := range freqs {
		offsets[j] = float64(g.Ploidy) * p
	}
	z, _, err := matrix.CenterColumns(g.M, offsets)
	if err != nil {
		return nil, fmt.Errorf("grm: center: %w", err)
	}

	return z, nil
}

// Subset returns the genotypes of the given rows, keeping the parent
// frequencies.
func (g *Genotypes) Subset(rows []int) (*Genotypes, error) {
	cols := make([]int, g.NMarkers())
	for j := range cols {
		cols[j] = j
	}
	sub, err := g.M.Induced(rows, cols)
	if err != nil {
		return nil, fmt.Errorf("grm: subset: %w", err)
	}

	return &Genotypes{M: sub, Frequencies: append([]float64(nil), g.Frequencies...), Ploidy: g.Ploidy}, nil
}

func validate(genotypes [][]float64, ploidy int) (n, m int, err error) {
	n = len(genotypes)
	if n == 0 || len(genotypes[0]) == 0 {
		return 0, 0, fmt.Errorf("grm: empty genotype table: %w", matrix.ErrDimensionMismatch)
	}
	m = len(genotypes[0])
	maxDose := float64(ploidy)
	for i, row := range genotypes {
		if len(row) != m {
			return 0, 0, fmt.Errorf("grm: row %d has %d markers, want %d: %w", i, len(row), m, matrix.ErrDimensionMismatch)
		}
		for j, v := range row {
			if IsMissing(v) {
				continue
			}
			if math.IsInf(v, 0) || v < 0 || v > maxDose {
				return 0, 0, fmt.Errorf("grm: call (%d,%d) = %g not in [0,%d]: %w", i, j, v, ploidy, ErrInvalidDosage)
			}
		}
	}

	return n, m, nil
}

func fill(genotypes [][]float64, freqs []float64, o options) (*Genotypes, error) {
	n, m := len(genotypes), len(freqs)
	buf := make([]float64, n*m)
	missing := 0
	for i, row := range genotypes {
		for j, v := range row {
			if IsMissing(v) {
				v = float64(o.ploidy) * freqs[j]
				missing++
			}
			buf[i*m+j] = v
		}
	}
	dense, err := matrix.NewDenseData(n, m, buf)
	if err != nil {
		return nil, fmt.Errorf("grm: %w", err)
	}
	if missing > 0 {
		o.logger.Debug("imputed missing genotype calls",
			zap.Int("missing", missing),
			zap.Int("individuals", n),
			zap.Int("markers", m))
	}

	return &Genotypes{M: dense, Frequencies: freqs, Ploidy: o.ploidy, NMissing: missing}, nil
}
