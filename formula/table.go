// SPDX-License-Identifier: MIT

package formula

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
)

// ColumnKind tells numeric and categorical columns apart.
type ColumnKind int

// Column kinds.
const (
	Numeric ColumnKind = iota
	Categorical
)

func (k ColumnKind) String() string {
	if k == Categorical {
		return "categorical"
	}

	return "numeric"
}

// Column is one named, typed column. Exactly one of Values/Labels is set.
// NaN marks a missing numeric value and "" a missing label.
type Column struct {
	Name   string
	Kind   ColumnKind
	Values []float64
	Labels []string
}

// levels returns the distinct non-missing levels: labels sorted as strings,
// numeric values sorted numerically and rendered with strconv 'g'.
func (c *Column) levels() []string {
	if c.Kind == Categorical {
		seen := make(map[string]struct{}, 8)
		for _, l := range c.Labels {
			if l != "" {
				seen[l] = struct{}{}
			}
		}
		out := make([]string, 0, len(seen))
		for l := range seen {
			out = append(out, l)
		}
		sort.Strings(out)

		return out
	}

	seen := make(map[float64]struct{}, 8)
	for _, v := range c.Values {
		if !math.IsNaN(v) {
			seen[v] = struct{}{}
		}
	}
	vals := make([]float64, 0, len(seen))
	for v := range seen {
		vals = append(vals, v)
	}
	sort.Float64s(vals)
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = formatLevel(v)
	}

	return out
}

// label returns row i as a level string and whether it is present.
func (c *Column) label(i int) (string, bool) {
	if c.Kind == Categorical {
		return c.Labels[i], c.Labels[i] != ""
	}
	v := c.Values[i]
	if math.IsNaN(v) {
		return "", false
	}

	return formatLevel(v), true
}

func formatLevel(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

var columnName = regexp.MustCompile(`^[A-Za-z_.][A-Za-z0-9_.]*$`)

// ValidName reports whether name can be referenced from a formula.
func ValidName(name string) bool { return columnName.MatchString(name) }

// Table is an ordered set of equally long columns.
type Table struct {
	n     int
	order []string
	cols  map[string]*Column
}

// NewTable returns an empty table of n rows. Panics if n < 0.
func NewTable(n int) *Table {
	if n < 0 {
		panic("formula: NewTable: negative row count")
	}

	return &Table{n: n, cols: make(map[string]*Column)}
}

// Len returns the number of rows.
func (t *Table) Len() int { return t.n }

// Names returns column names in insertion order.
func (t *Table) Names() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)

	return out
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	c, ok := t.cols[name]

	return c, ok
}

func (t *Table) add(c *Column, length int) error {
	if !ValidName(c.Name) {
		return fmt.Errorf("%w: %q", ErrColumnName, c.Name)
	}
	if _, dup := t.cols[c.Name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateColumn, c.Name)
	}
	if length != t.n {
		return fmt.Errorf("%w: %q has %d rows, table has %d", ErrColumnLength, c.Name, length, t.n)
	}
	t.cols[c.Name] = c
	t.order = append(t.order, c.Name)

	return nil
}

// AddNumeric adds a copy of values as a numeric column.
func (t *Table) AddNumeric(name string, values []float64) error {
	cp := make([]float64, len(values))
	copy(cp, values)

	return t.add(&Column{Name: name, Kind: Numeric, Values: cp}, len(values))
}

// AddCategorical adds a copy of labels as a categorical column.
func (t *Table) AddCategorical(name string, labels []string) error {
	cp := make([]string, len(labels))
	copy(cp, labels)

	return t.add(&Column{Name: name, Kind: Categorical, Labels: cp}, len(labels))
}

// Concat adds a categorical column whose labels join columns a and b with
// sep, the usual way to key blocks nested within replicates. A row missing
// either part is missing in the result.
func (t *Table) Concat(name, a, b, sep string) error {
	ca, ok := t.cols[a]
	if !ok {
		return newError(UnknownColumn, "", a, "")
	}
	cb, ok := t.cols[b]
	if !ok {
		return newError(UnknownColumn, "", b, "")
	}
	labels := make([]string, t.n)
	for i := range labels {
		la, okA := ca.label(i)
		lb, okB := cb.label(i)
		if okA && okB {
			labels[i] = la + sep + lb
		}
	}

	return t.AddCategorical(name, labels)
}

// Subset returns a new table holding rows in the given order.
func (t *Table) Subset(rows []int) (*Table, error) {
	out := NewTable(len(rows))
	for _, r := range rows {
		if r < 0 || r >= t.n {
			return nil, fmt.Errorf("formula: subset row %d out of range [0,%d)", r, t.n)
		}
	}
	for _, name := range t.order {
		c := t.cols[name]
		nc := &Column{Name: name, Kind: c.Kind}
		if c.Kind == Categorical {
			nc.Labels = make([]string, len(rows))
			for i, r := range rows {
				nc.Labels[i] = c.Labels[r]
			}
		} else {
			nc.Values = make([]float64, len(rows))
			for i, r := range rows {
				nc.Values[i] = c.Values[r]
			}
		}
		out.cols[name] = nc
		out.order = append(out.order, name)
	}

	return out, nil
}

// DropMissing returns the rows whose listed columns are all present, plus
// the kept row indices into t.
func (t *Table) DropMissing(columns ...string) (*Table, []int, error) {
	cs := make([]*Column, len(columns))
	for k, name := range columns {
		c, ok := t.cols[name]
		if !ok {
			return nil, nil, newError(UnknownColumn, "", name, "")
		}
		cs[k] = c
	}
	keep := make([]int, 0, t.n)
rows:
	for i := 0; i < t.n; i++ {
		for _, c := range cs {
			if _, ok := c.label(i); !ok {
				continue rows
			}
		}
		keep = append(keep, i)
	}
	sub, err := t.Subset(keep)
	if err != nil {
		return nil, nil, err
	}

	return sub, keep, nil
}

// FromRecords builds a table from row maps. A column is numeric when every
// non-nil value is a Go number; anything else makes it categorical, with
// values rendered by fmt. Absent or nil cells become missing. Columns are
// ordered by name.
func FromRecords(records []map[string]any) (*Table, error) {
	names := make(map[string]struct{})
	for _, r := range records {
		for k := range r {
			names[k] = struct{}{}
		}
	}
	ordered := make([]string, 0, len(names))
	for k := range names {
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)

	t := NewTable(len(records))
	for _, name := range ordered {
		numeric := true
		for _, r := range records {
			if v, ok := r[name]; ok && v != nil {
				if _, isNum := toFloat(v); !isNum {
					numeric = false
					break
				}
			}
		}
		var err error
		if numeric {
			vals := make([]float64, len(records))
			for i, r := range records {
				vals[i] = math.NaN()
				if v, ok := r[name]; ok && v != nil {
					vals[i], _ = toFloat(v)
				}
			}
			err = t.AddNumeric(name, vals)
		} else {
			labels := make([]string, len(records))
			for i, r := range records {
				if v, ok := r[name]; ok && v != nil {
					labels[i] = fmt.Sprint(v)
				}
			}
			err = t.AddCategorical(name, labels)
		}
		if err != nil {
			return nil, err
		}
	}

	return t, nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}
