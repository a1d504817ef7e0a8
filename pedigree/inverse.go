// SPDX-License-Identifier: MIT

package pedigree

import (
	"fmt"

	"github.com/katalvlaran/qgen/linalg"
	"github.com/katalvlaran/qgen/matrix"
)

// AInverse inverts A through the backend's Cholesky factorization.
// A from a valid pedigree is positive definite; a failure here means
// clones listed as distinct individuals and is returned unregularised.
func (p *Pedigree) AInverse(b linalg.Backend) (*matrix.Dense, error) {
	if b == nil {
		b = linalg.Default()
	}
	f, err := b.Cholesky(p.a)
	if err != nil {
		return nil, fmt.Errorf("pedigree: A inverse: %w", err)
	}
	inv, err := f.Inverse()
	if err != nil {
		return nil, fmt.Errorf("pedigree: A inverse: %w", err)
	}

	return inv, nil
}

// AInverseDirect builds A⁻¹ from the parent list with Henderson's rules,
// using the inbreeding of the parents for the Mendelian sampling variance:
//
//	both parents known:  d_i = ½ − ¼(F_s + F_d)
//	one parent known:    d_i = ¾ − ¼F_p
//	founder:             d_i = 1
//
// Each individual adds α = 1/d_i to (i,i), −α/2 to (i,parent) and α/4 to
// every (parent, parent) pair. Selfing (s = d) needs no special case.
func (p *Pedigree) AInverseDirect() (*matrix.Dense, error) {
	n := len(p.ids)
	out, err := matrix.NewDense(n, n)
	if err != nil {
		return nil, fmt.Errorf("pedigree: A inverse: %w", err)
	}

	parents := make([]int, 0, 2)
	for i := 0; i < n; i++ {
		parents = parents[:0]
		d := 1.0
		for _, par := range [2]int{p.sire[i], p.dam[i]} {
			if par != noParent {
				parents = append(parents, par)
			}
		}
		switch len(parents) {
		case 2:
			d = 0.5 - 0.25*(p.inbreeding[parents[0]]+p.inbreeding[parents[1]])
		case 1:
			d = 0.75 - 0.25*p.inbreeding[parents[0]]
		}
		alpha := 1 / d

		out.RawRow(i)[i] += alpha
		for _, a := range parents {
			out.RawRow(i)[a] -= alpha / 2
			out.RawRow(a)[i] -= alpha / 2
			for _, b := range parents {
				out.RawRow(a)[b] += alpha / 4
			}
		}
	}

	return out, nil
}
