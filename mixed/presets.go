// SPDX-License-Identifier: MIT

package mixed

import (
	"context"
	"fmt"

	"github.com/katalvlaran/qgen/formula"
)

// NestedBlockColumn is the key column AlphaLattice adds for blocks within
// replicates; its labels are "<rep>_<block>".
const NestedBlockColumn = "_nested_block"

// Columns names the design columns of a field trial. Empty fields fall back
// to "genotype", "rep" and "block".
type Columns struct {
	Genotype string
	Rep      string
	Block    string
}

func (c Columns) withDefaults() Columns {
	if c.Genotype == "" {
		c.Genotype = "genotype"
	}
	if c.Rep == "" {
		c.Rep = "rep"
	}
	if c.Block == "" {
		c.Block = "block"
	}

	return c
}

// RCBD fits a randomised complete block design, genotypes fixed and blocks
// random: trait ~ genotype + (1|block).
func RCBD(ctx context.Context, data *formula.Table, trait string, cols Columns, opts ...Option) (*Result, error) {
	cols = cols.withDefaults()
	f := fmt.Sprintf("%s ~ %s + (1|%s)", trait, cols.Genotype, cols.Block)

	return Fit(ctx, f, data, opts...)
}

// AlphaLattice fits an alpha-lattice with incomplete blocks nested within
// replicates: trait ~ genotype + rep + (1|rep:block). The nested key is
// added to a copy of data; the caller's table is left untouched.
func AlphaLattice(ctx context.Context, data *formula.Table, trait string, cols Columns, opts ...Option) (*Result, error) {
	cols = cols.withDefaults()
	if data == nil {
		return Fit(ctx, trait+" ~ 1", data, opts...)
	}
	rows := make([]int, data.Len())
	for i := range rows {
		rows[i] = i
	}
	cp, err := data.Subset(rows)
	if err != nil {
		return nil, err
	}
	if err = cp.Concat(NestedBlockColumn, cols.Rep, cols.Block, "_"); err != nil {
		return nil, err
	}
	f := fmt.Sprintf("%s ~ %s + %s + (1|%s)", trait, cols.Genotype, cols.Rep, NestedBlockColumn)

	return Fit(ctx, f, cp, opts...)
}
