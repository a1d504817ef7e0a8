// SPDX-License-Identifier: MIT

package simulate

import (
	"fmt"

	"github.com/katalvlaran/qgen/formula"
	"github.com/katalvlaran/qgen/pedigree"
)

// Pedigree builds a random-mating pedigree: founders unrelated individuals
// "F0-001"…, then generations of familySize full-sib families, one per
// founder slot, each from a random sire×dam pair of the previous
// generation. IDs are "G<g>-<nnn>".
func Pedigree(founders, generations, familySize int, opts ...Option) ([]pedigree.Individual, error) {
	switch {
	case founders < 2:
		return nil, fmt.Errorf("%w: need at least 2 founders, got %d", ErrInvalidSize, founders)
	case generations < 0 || familySize < 1:
		return nil, fmt.Errorf("%w: generations=%d, family size=%d", ErrInvalidSize, generations, familySize)
	}
	c := newConfig(opts...)

	out := make([]pedigree.Individual, 0, founders*(1+generations*familySize))
	prev := make([]string, founders)
	for i := range prev {
		prev[i] = fmt.Sprintf("F0-%03d", i+1)
		out = append(out, pedigree.Individual{ID: prev[i]})
	}
	for g := 1; g <= generations; g++ {
		cur := make([]string, 0, founders*familySize)
		for f := 0; f < founders; f++ {
			pick := c.rng.Perm(len(prev))
			sire, dam := prev[pick[0]], prev[pick[1]]
			for k := 0; k < familySize; k++ {
				id := fmt.Sprintf("G%d-%03d", g, len(cur)+1)
				cur = append(cur, id)
				out = append(out, pedigree.Individual{ID: id, Sire: sire, Dam: dam})
			}
		}
		prev = cur
	}

	return out, nil
}

// Trial is a simulated randomised complete block design.
type Trial struct {
	// Table has the columns genotype ("G01"…), block ("B1"…) and yield.
	Table *formula.Table
	// GenotypeEffects and BlockEffects are the true effects by label.
	GenotypeEffects map[string]float64
	BlockEffects    map[string]float64
}

// RCBD lays nGenotypes entries out in nBlocks complete blocks. Yield is the
// mean plus N(0,1) genotype effects, N(0, blockSD²) block effects and N(0,1)
// plot noise; plots are listed block by block.
func RCBD(nGenotypes, nBlocks int, opts ...Option) (*Trial, error) {
	if nGenotypes < 2 || nBlocks < 1 {
		return nil, fmt.Errorf("%w: %d genotypes, %d blocks", ErrInvalidSize, nGenotypes, nBlocks)
	}
	c := newConfig(opts...)
	tr := &Trial{
		GenotypeEffects: make(map[string]float64, nGenotypes),
		BlockEffects:    make(map[string]float64, nBlocks),
	}
	genos := make([]string, nGenotypes)
	for i := range genos {
		genos[i] = fmt.Sprintf("G%02d", i+1)
		tr.GenotypeEffects[genos[i]] = c.rng.NormFloat64()
	}

	n := nGenotypes * nBlocks
	var (
		gcol = make([]string, 0, n)
		bcol = make([]string, 0, n)
		ycol = make([]float64, 0, n)
	)
	for b := 1; b <= nBlocks; b++ {
		block := fmt.Sprintf("B%d", b)
		be := c.blockSD * c.rng.NormFloat64()
		tr.BlockEffects[block] = be
		for _, k := range c.rng.Perm(nGenotypes) {
			g := genos[k]
			gcol = append(gcol, g)
			bcol = append(bcol, block)
			ycol = append(ycol, c.mean+tr.GenotypeEffects[g]+be+c.rng.NormFloat64())
		}
	}

	tr.Table = formula.NewTable(n)
	if err := tr.Table.AddCategorical("genotype", gcol); err != nil {
		return nil, err
	}
	if err := tr.Table.AddCategorical("block", bcol); err != nil {
		return nil, err
	}
	if err := tr.Table.AddNumeric("yield", ycol); err != nil {
		return nil, err
	}

	return tr, nil
}
