// SPDX-License-Identifier: MIT

package simulate

import (
	"math"
	"math/rand"
)

// Defaults.
const (
	DefaultSeed          = 1
	DefaultPloidy        = 2
	DefaultMinFrequency  = 0.05
	DefaultMaxFrequency  = 0.5
	DefaultMean          = 10.0
	DefaultRecombination = 0.5
)

// Option customises the generators.
type Option func(*config)

type config struct {
	rng           *rand.Rand
	ploidy        int
	minFreq       float64
	maxFreq       float64
	missing       float64
	mean          float64
	recombination float64
	blockSD       float64
}

func newConfig(opts ...Option) *config {
	c := &config{
		ploidy:        DefaultPloidy,
		minFreq:       DefaultMinFrequency,
		maxFreq:       DefaultMaxFrequency,
		mean:          DefaultMean,
		recombination: DefaultRecombination,
		blockSD:       0.5,
	}
	for _, set := range opts {
		set(c)
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewSource(DefaultSeed))
	}

	return c
}

// WithSeed seeds a private generator.
func WithSeed(seed int64) Option {
	return func(c *config) { c.rng = rand.New(rand.NewSource(seed)) }
}

// WithRand draws from r, which the caller must not share across goroutines.
// Panics on nil.
func WithRand(r *rand.Rand) Option {
	if r == nil {
		panic("simulate: WithRand(nil)")
	}

	return func(c *config) { c.rng = r }
}

// WithPloidy sets the maximum dosage. Panics if p < 1.
func WithPloidy(p int) Option {
	if p < 1 {
		panic("simulate: WithPloidy: ploidy must be >= 1")
	}

	return func(c *config) { c.ploidy = p }
}

// WithFrequencyRange draws allele frequencies uniformly from [lo, hi].
// Panics unless 0 < lo <= hi < 1.
func WithFrequencyRange(lo, hi float64) Option {
	if !(lo > 0 && lo <= hi && hi < 1) {
		panic("simulate: WithFrequencyRange: need 0 < lo <= hi < 1")
	}

	return func(c *config) { c.minFreq, c.maxFreq = lo, hi }
}

// WithMissingRate blanks each genotype call with probability r.
// Panics unless 0 <= r < 1.
func WithMissingRate(r float64) Option {
	if !(r >= 0 && r < 1) {
		panic("simulate: WithMissingRate: rate must be in [0,1)")
	}

	return func(c *config) { c.missing = r }
}

// WithMean sets the population mean of simulated phenotypes.
// Panics on a non-finite value.
func WithMean(mu float64) Option {
	if math.IsNaN(mu) || math.IsInf(mu, 0) {
		panic("simulate: WithMean: mean must be finite")
	}

	return func(c *config) { c.mean = mu }
}

// WithRecombination sets the crossover probability between adjacent markers;
// 0.5 means unlinked. Panics unless 0 <= r <= 0.5.
func WithRecombination(r float64) Option {
	if !(r >= 0 && r <= 0.5) {
		panic("simulate: WithRecombination: rate must be in [0,0.5]")
	}

	return func(c *config) { c.recombination = r }
}

// WithBlockSD sets the standard deviation of block effects in Trial.
// Panics if sd < 0.
func WithBlockSD(sd float64) Option {
	if !(sd >= 0) {
		panic("simulate: WithBlockSD: sd must be >= 0")
	}

	return func(c *config) { c.blockSD = sd }
}
