// SPDX-License-Identifier: MIT

package grm

import (
	"fmt"
	"math"

	"github.com/katalvlaran/qgen/matrix"
	"gonum.org/v1/gonum/stat"
)

// neFloor is the |F̄| below which no effective population size is reported.
const neFloor = 1e-6

// InbreedingSummary describes a population through its relationship matrix.
type InbreedingSummary struct {
	// Coefficients holds F_i = K_ii − 1.
	Coefficients []float64
	// AverageKinship holds, per individual, the mean off-diagonal entry of its row.
	AverageKinship []float64

	MeanF, MaxF, MinF, SDF float64
	NInbred, NOutcrossed   int

	PopulationKinship   float64
	PopulationKinshipSD float64

	// EffectiveSize is the 1/(2|F̄|) approximation; NaN when |F̄| < 1e-6.
	EffectiveSize float64
}

// HasEffectiveSize reports whether EffectiveSize is defined.
func (s *InbreedingSummary) HasEffectiveSize() bool { return !math.IsNaN(s.EffectiveSize) }

// Inbreeding summarises a square relationship matrix. Standard deviations
// are population (divide-by-n) statistics.
func Inbreeding(k matrix.Matrix) (*InbreedingSummary, error) {
	if err := matrix.ValidateSquare(k); err != nil {
		return nil, fmt.Errorf("grm: inbreeding: %w", err)
	}
	d, err := matrix.AsDense(k)
	if err != nil {
		return nil, err
	}
	n := d.Rows()
	F := d.Diag()
	for i := range F {
		F[i]--
	}

	s := &InbreedingSummary{
		Coefficients:   F,
		AverageKinship: make([]float64, n),
		MaxF:           math.Inf(-1),
		MinF:           math.Inf(1),
		EffectiveSize:  math.NaN(),
	}
	for _, f := range F {
		s.MaxF = math.Max(s.MaxF, f)
		s.MinF = math.Min(s.MinF, f)
		switch {
		case f > 0:
			s.NInbred++
		case f < 0:
			s.NOutcrossed++
		}
	}
	s.MeanF, s.SDF = stat.PopMeanStdDev(F, nil)

	if n > 1 {
		off := make([]float64, 0, n*(n-1))
		for i := 0; i < n; i++ {
			row := d.RawRow(i)
			sum := 0.0
			for j, v := range row {
				if j == i {
					continue
				}
				sum += v
				off = append(off, v)
			}
			s.AverageKinship[i] = sum / float64(n-1)
		}
		s.PopulationKinship, s.PopulationKinshipSD = stat.PopMeanStdDev(off, nil)
	}
	if math.Abs(s.MeanF) > neFloor {
		s.EffectiveSize = 1 / (2 * math.Abs(s.MeanF))
	}

	return s, nil
}
