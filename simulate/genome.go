// SPDX-License-Identifier: MIT

package simulate

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Population is a simulated dosage table.
type Population struct {
	// Dosages is n×m; NaN marks a blanked call.
	Dosages [][]float64
	// Frequencies are the allele frequencies the calls were drawn from.
	Frequencies []float64
	Ploidy      int
}

// Genotypes draws n individuals at m unlinked markers in Hardy–Weinberg
// equilibrium. Each marker gets a frequency from the configured range and
// each call is the sum of ploidy Bernoulli(p) draws.
func Genotypes(n, m int, opts ...Option) (*Population, error) {
	if n < 1 || m < 1 {
		return nil, fmt.Errorf("%w: n=%d, m=%d", ErrInvalidSize, n, m)
	}
	c := newConfig(opts...)
	pop := &Population{
		Dosages:     make([][]float64, n),
		Frequencies: make([]float64, m),
		Ploidy:      c.ploidy,
	}
	for j := range pop.Frequencies {
		pop.Frequencies[j] = c.minFreq + (c.maxFreq-c.minFreq)*c.rng.Float64()
	}
	for i := range pop.Dosages {
		row := make([]float64, m)
		for j, p := range pop.Frequencies {
			d := 0
			for k := 0; k < c.ploidy; k++ {
				if c.rng.Float64() < p {
					d++
				}
			}
			row[j] = float64(d)
			if c.missing > 0 && c.rng.Float64() < c.missing {
				row[j] = math.NaN()
			}
		}
		pop.Dosages[i] = row
	}

	return pop, nil
}

// Phenotypes are simulated records with the truth they were drawn from.
type Phenotypes struct {
	Y []float64
	// TrueBV is dosage·Effects for every individual.
	TrueBV []float64
	// Causal lists the causal marker indices in ascending order.
	Causal []int
	// Effects has one entry per marker, zero for non-causal ones.
	Effects []float64
	// VarGenetic and VarResidual are the realised genetic variance and the
	// residual variance used for the noise.
	VarGenetic  float64
	VarResidual float64
}

// Phenotypes draws nCausal markers with N(0,1) effects and adds normal
// noise so that var(TrueBV)/(var(TrueBV)+σ²_e) equals h2. Missing calls
// count as the marker mean. A population without genetic variance gets
// σ²_e = 1.
func (p *Population) Phenotypes(nCausal int, h2 float64, opts ...Option) (*Phenotypes, error) {
	n := len(p.Dosages)
	m := len(p.Frequencies)
	switch {
	case nCausal < 1 || nCausal > m:
		return nil, fmt.Errorf("%w: %d causal markers of %d", ErrInvalidParameter, nCausal, m)
	case !(h2 > 0 && h2 <= 1):
		return nil, fmt.Errorf("%w: h2=%g", ErrInvalidParameter, h2)
	}
	c := newConfig(opts...)

	out := &Phenotypes{
		Y:       make([]float64, n),
		TrueBV:  make([]float64, n),
		Causal:  append([]int(nil), c.rng.Perm(m)[:nCausal]...),
		Effects: make([]float64, m),
	}
	sort.Ints(out.Causal)
	for _, j := range out.Causal {
		out.Effects[j] = c.rng.NormFloat64()
	}
	for i, row := range p.Dosages {
		for _, j := range out.Causal {
			d := row[j]
			if math.IsNaN(d) {
				d = float64(p.Ploidy) * p.Frequencies[j]
			}
			out.TrueBV[i] += d * out.Effects[j]
		}
	}
	out.VarGenetic = stat.PopVariance(out.TrueBV, nil)
	out.VarResidual = 1
	if out.VarGenetic > 0 {
		out.VarResidual = out.VarGenetic * (1/h2 - 1)
	}
	sd := math.Sqrt(out.VarResidual)
	for i, bv := range out.TrueBV {
		out.Y[i] = c.mean + bv + sd*c.rng.NormFloat64()
	}

	return out, nil
}

// Cross mates two diploid parents given as dosage vectors and returns
// nProgeny offspring dosages. Heterozygous loci are phased at random; each
// gamete switches parental chromosome between adjacent markers with the
// configured recombination rate.
func Cross(a, b []float64, nProgeny int, opts ...Option) ([][]float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return nil, fmt.Errorf("%w: parents have %d and %d markers", ErrInvalidSize, len(a), len(b))
	}
	if nProgeny < 1 {
		return nil, fmt.Errorf("%w: %d progeny", ErrInvalidSize, nProgeny)
	}
	c := newConfig(opts...)
	ha, err := phase(a, c)
	if err != nil {
		return nil, err
	}
	hb, err := phase(b, c)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, nProgeny)
	for k := range out {
		ga, gb := gamete(ha, c), gamete(hb, c)
		child := make([]float64, len(a))
		floats.Add(child, ga)
		floats.Add(child, gb)
		out[k] = child
	}

	return out, nil
}

// phase splits 0/1/2 dosages into two haplotypes.
func phase(dosage []float64, c *config) ([2][]float64, error) {
	var h [2][]float64
	h[0] = make([]float64, len(dosage))
	h[1] = make([]float64, len(dosage))
	for j, d := range dosage {
		switch d {
		case 0:
		case 2:
			h[0][j], h[1][j] = 1, 1
		case 1:
			h[c.rng.Intn(2)][j] = 1
		default:
			return h, fmt.Errorf("%w: dosage %g at marker %d is not 0, 1 or 2", ErrInvalidParameter, d, j)
		}
	}

	return h, nil
}

func gamete(h [2][]float64, c *config) []float64 {
	out := make([]float64, len(h[0]))
	chrom := c.rng.Intn(2)
	for j := range out {
		if j > 0 && c.rng.Float64() < c.recombination {
			chrom ^= 1
		}
		out[j] = h[chrom][j]
	}

	return out
}
