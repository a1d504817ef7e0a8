// SPDX-License-Identifier: MIT

package formula

import (
	"fmt"
	"math"

	"github.com/katalvlaran/qgen/matrix"
)

// InterceptName labels the intercept column of X.
const InterceptName = "Intercept"

// RandomGroup locates one random term inside Z.
type RandomGroup struct {
	Name   string   // grouping column
	Levels []string // sorted levels, one Z column each
	Offset int      // first Z column of this group
}

// Design holds the compiled model y = Xβ + Zu + e.
type Design struct {
	Spec   *Spec
	Y      []float64
	X      *matrix.Dense
	Z      *matrix.Dense // nil when the formula has no random terms
	XNames []string
	ZNames []string
	Random []RandomGroup
}

// N returns the number of observations.
func (d *Design) N() int { return len(d.Y) }

// P returns the number of fixed-effect columns.
func (d *Design) P() int { return d.X.Cols() }

// Q returns the number of random-effect columns (0 without random terms).
func (d *Design) Q() int {
	if d.Z == nil {
		return 0
	}

	return d.Z.Cols()
}

// Compile parses formula and builds y, X and Z from data.
func Compile(formula string, data *Table) (*Design, error) {
	s, err := Parse(formula)
	if err != nil {
		return nil, err
	}

	return CompileSpec(s, data, formula)
}

// CompileSpec builds the design of an already parsed formula. src is only
// used in error messages and may be empty.
//
// Implementation:
//   - Stage 1: resolve every referenced column (response, fixed, random)
//     and reject missing values; nothing is allocated before this passes.
//   - Stage 2: X = [Intercept | numeric copies | treatment dummies].
//   - Stage 3: Z = indicator columns of every random group, side by side.
//
// A model needs at least one fixed column: "y ~ 0 + (1|g)" is Malformed.
//
// Errors (all *Error): MissingResponse for an absent, categorical or
// incomplete response; UnknownColumn; Malformed for an empty table, missing
// predictor values or a model without fixed effects.
func CompileSpec(s *Spec, data *Table, src string) (*Design, error) {
	if data == nil || data.Len() == 0 {
		return nil, newError(Malformed, src, "", "empty table")
	}
	n := data.Len()

	// 1. Resolution.
	yc, ok := data.Column(s.Response)
	switch {
	case !ok:
		return nil, newError(MissingResponse, src, s.Response, "column not found")
	case yc.Kind != Numeric:
		return nil, newError(MissingResponse, src, s.Response, "response must be numeric")
	}
	for i, v := range yc.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, newError(MissingResponse, src, s.Response, fmt.Sprintf("row %d has no value; drop incomplete records first", i))
		}
	}
	fixed, err := resolve(s.Fixed, data, src, false)
	if err != nil {
		return nil, err
	}
	random, err := resolve(s.Random, data, src, true)
	if err != nil {
		return nil, err
	}
	if !s.Intercept && len(fixed) == 0 {
		return nil, newError(Malformed, src, "", "model has no fixed effects")
	}

	// 2. Fixed effects, column by column.
	var (
		xcols  [][]float64
		xnames []string
	)
	if s.Intercept {
		xcols = append(xcols, constant(n, 1))
		xnames = append(xnames, InterceptName)
	}
	fullCoding := !s.Intercept
	for _, r := range fixed {
		if r.levels == nil {
			xcols = append(xcols, append([]float64(nil), r.col.Values...))
			xnames = append(xnames, r.col.Name)
			continue
		}
		levels := r.levels
		if !fullCoding {
			levels = levels[1:]
		}
		fullCoding = false
		cols, names := indicators(r.col, levels)
		xcols = append(xcols, cols...)
		xnames = append(xnames, names...)
	}
	x, err := fromColumns(n, xcols)
	if err != nil {
		return nil, err
	}

	d := &Design{Spec: s, Y: append([]float64(nil), yc.Values...), X: x, XNames: xnames}

	// 3. Random intercepts.
	var zcols [][]float64
	for _, r := range random {
		cols, names := indicators(r.col, r.levels)
		d.Random = append(d.Random, RandomGroup{Name: r.col.Name, Levels: r.levels, Offset: len(zcols)})
		zcols = append(zcols, cols...)
		d.ZNames = append(d.ZNames, names...)
	}
	if len(zcols) > 0 {
		if d.Z, err = fromColumns(n, zcols); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// resolved is a checked model column; levels is nil for a numeric
// covariate.
type resolved struct {
	col    *Column
	levels []string
}

// resolve looks up names and rejects missing values. Grouping columns and
// categorical columns are turned into levels.
func resolve(names []string, data *Table, src string, grouping bool) ([]resolved, error) {
	out := make([]resolved, 0, len(names))
	for _, name := range names {
		c, ok := data.Column(name)
		if !ok {
			return nil, newError(UnknownColumn, src, name, "")
		}
		if c.Kind == Numeric && !grouping {
			for i, v := range c.Values {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return nil, newError(Malformed, src, name, fmt.Sprintf("row %d has no value", i))
				}
			}
			out = append(out, resolved{col: c})
			continue
		}
		levels, err := checkedLevels(c, src)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved{col: c, levels: levels})
	}

	return out, nil
}

func checkedLevels(c *Column, src string) ([]string, error) {
	n := len(c.Labels)
	if c.Kind == Numeric {
		n = len(c.Values)
	}
	for i := 0; i < n; i++ {
		if _, ok := c.label(i); !ok {
			return nil, newError(Malformed, src, c.Name, fmt.Sprintf("row %d has no value", i))
		}
	}

	return c.levels(), nil
}

// indicators returns one 0/1 column per level, named "<column>[<level>]".
func indicators(c *Column, levels []string) ([][]float64, []string) {
	pos := make(map[string]int, len(levels))
	cols := make([][]float64, len(levels))
	names := make([]string, len(levels))
	n := len(c.Labels)
	if c.Kind == Numeric {
		n = len(c.Values)
	}
	for k, l := range levels {
		pos[l] = k
		cols[k] = make([]float64, n)
		names[k] = c.Name + "[" + l + "]"
	}
	for i := 0; i < n; i++ {
		l, _ := c.label(i)
		if k, ok := pos[l]; ok {
			cols[k][i] = 1
		}
	}

	return cols, names
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}

	return out
}

func fromColumns(n int, cols [][]float64) (*matrix.Dense, error) {
	m, err := matrix.NewDense(n, len(cols))
	if err != nil {
		return nil, fmt.Errorf("formula: %w", err)
	}
	for i := 0; i < n; i++ {
		row := m.RawRow(i)
		for j, c := range cols {
			row[j] = c[i]
		}
	}

	return m, nil
}
