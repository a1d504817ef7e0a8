// SPDX-License-Identifier: MIT

package pedigree

import (
	"fmt"
	"sort"

	"github.com/katalvlaran/qgen/matrix"
	"go.uber.org/zap"
)

// Visitation states of the generation walk.
const (
	White = iota // not visited yet
	Gray         // on the current ancestry path
	Black        // generation known
)

// noParent marks an unknown sire or dam in index form.
const noParent = -1

// Individual is one pedigree record. An empty or "0" Sire/Dam is unknown.
type Individual struct {
	ID   string `json:"id" yaml:"id"`
	Sire string `json:"sire,omitempty" yaml:"sire,omitempty"`
	Dam  string `json:"dam,omitempty" yaml:"dam,omitempty"`
}

// Record is an Individual with its derived attributes.
type Record struct {
	Individual `yaml:",inline"`
	Generation int     `json:"generation" yaml:"generation"`
	Inbreeding float64 `json:"inbreeding" yaml:"inbreeding"`
}

// IsFounder reports whether both parents are unknown.
func (r Record) IsFounder() bool { return r.Sire == "" && r.Dam == "" }

// Pedigree is an immutable, validated pedigree with its relationship matrix.
type Pedigree struct {
	ids        []string // processing order: generation asc, then ID asc
	index      map[string]int
	sire, dam  []int
	generation []int
	inbreeding []float64
	children   [][]int
	a          *matrix.Dense
}

// IsUnknownParent reports whether a parent field means "not known".
func IsUnknownParent(id string) bool { return id == "" || id == "0" }

// New validates records, numbers generations and builds A.
//
// Implementation:
//   - Stage 1: reject empty IDs and duplicates; add unlisted parents as founders.
//   - Stage 2: depth-first generation numbering; a Gray parent is a cycle.
//   - Stage 3: sort by (generation, ID) and fill A with the tabular method.
//
// Errors:
//   - ErrEmpty, ErrEmptyID, ErrDuplicate, ErrCycle.
//   - context errors from WithCancelContext.
func New(records []Individual, opts ...Option) (*Pedigree, error) {
	o := gatherOptions(opts...)
	if len(records) == 0 {
		return nil, ErrEmpty
	}

	// 1. Collect listed individuals, then parents nobody listed.
	raw := make(map[string]Individual, len(records))
	for i, r := range records {
		if r.ID == "" {
			return nil, fmt.Errorf("record %d: %w", i, ErrEmptyID)
		}
		if _, dup := raw[r.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicate, r.ID)
		}
		if IsUnknownParent(r.Sire) {
			r.Sire = ""
		}
		if IsUnknownParent(r.Dam) {
			r.Dam = ""
		}
		raw[r.ID] = r
	}
	var added []string
	for _, r := range records {
		for _, p := range [2]string{raw[r.ID].Sire, raw[r.ID].Dam} {
			if p == "" {
				continue
			}
			if _, ok := raw[p]; !ok {
				raw[p] = Individual{ID: p}
				added = append(added, p)
			}
		}
	}
	if len(added) > 0 {
		o.logger.Debug("pedigree: parents added as founders", zap.Int("count", len(added)))
	}

	// 2. Generations.
	gens, err := numberGenerations(raw, o)
	if err != nil {
		return nil, err
	}

	// 3. Processing order and index form.
	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if gens[ids[i]] != gens[ids[j]] {
			return gens[ids[i]] < gens[ids[j]]
		}
		return ids[i] < ids[j]
	})

	n := len(ids)
	p := &Pedigree{
		ids:        ids,
		index:      make(map[string]int, n),
		sire:       make([]int, n),
		dam:        make([]int, n),
		generation: make([]int, n),
		children:   make([][]int, n),
	}
	for i, id := range ids {
		p.index[id] = i
		p.generation[i] = gens[id]
	}
	for i, id := range ids {
		r := raw[id]
		p.sire[i], p.dam[i] = p.lookup(r.Sire), p.lookup(r.Dam)
		if p.sire[i] != noParent {
			p.children[p.sire[i]] = append(p.children[p.sire[i]], i)
		}
		// selfing lists the same parent twice; count the child once
		if p.dam[i] != noParent && p.dam[i] != p.sire[i] {
			p.children[p.dam[i]] = append(p.children[p.dam[i]], i)
		}
	}

	if err = p.fillTabular(); err != nil {
		return nil, err
	}
	o.logger.Debug("pedigree: loaded",
		zap.Int("individuals", n),
		zap.Int("generations", p.NGenerations()),
	)

	return p, nil
}

func (p *Pedigree) lookup(id string) int {
	if id == "" {
		return noParent
	}

	return p.index[id]
}

// genWalker carries the state of one generation-numbering pass.
type genWalker struct {
	raw   map[string]Individual
	opts  options
	state map[string]int
	gen   map[string]int
}

// numberGenerations assigns founders 0 and everybody else
// 1 + max(parent generations).
func numberGenerations(raw map[string]Individual, o options) (map[string]int, error) {
	w := &genWalker{
		raw:   raw,
		opts:  o,
		state: make(map[string]int, len(raw)),
		gen:   make(map[string]int, len(raw)),
	}
	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if w.state[id] == White {
			if err := w.visit(id); err != nil {
				return nil, err
			}
		}
	}

	return w.gen, nil
}

func (w *genWalker) visit(id string) error {
	// 1. Cancellation check at entry
	select {
	case <-w.opts.ctx.Done():
		return w.opts.ctx.Err()
	default:
	}
	// 2. A Gray individual is reached again through its own descendants.
	switch w.state[id] {
	case Gray:
		return fmt.Errorf("%w: %q is its own ancestor", ErrCycle, id)
	case Black:
		return nil
	}
	w.state[id] = Gray

	// 3. Parents first; generation follows the deepest one.
	r := w.raw[id]
	g := 0
	for _, parent := range [2]string{r.Sire, r.Dam} {
		if parent == "" {
			continue
		}
		if err := w.visit(parent); err != nil {
			return err
		}
		if pg := w.gen[parent] + 1; pg > g {
			g = pg
		}
	}

	w.gen[id] = g
	w.state[id] = Black

	return nil
}

// fillTabular builds A in processing order. Parents always precede their
// offspring because their generation is strictly smaller.
func (p *Pedigree) fillTabular() error {
	n := len(p.ids)
	a, err := matrix.NewDense(n, n)
	if err != nil {
		return fmt.Errorf("pedigree: %w", err)
	}
	p.inbreeding = make([]float64, n)

	var (
		i, j, s, d int
		v          float64
	)
	for i = 0; i < n; i++ {
		s, d = p.sire[i], p.dam[i]
		rowI := a.RawRow(i)
		for j = 0; j < i; j++ {
			v = 0
			if s != noParent {
				v += a.RawRow(s)[j]
			}
			if d != noParent {
				v += a.RawRow(d)[j]
			}
			v *= 0.5
			rowI[j] = v
			a.RawRow(j)[i] = v
		}
		if s != noParent && d != noParent {
			p.inbreeding[i] = 0.5 * a.RawRow(s)[d]
		}
		rowI[i] = 1 + p.inbreeding[i]
	}
	p.a = a

	return nil
}

// Len returns the number of individuals, including added founders.
func (p *Pedigree) Len() int { return len(p.ids) }

// IDs returns individual IDs in processing order; row i of AMatrix is IDs()[i].
func (p *Pedigree) IDs() []string {
	out := make([]string, len(p.ids))
	copy(out, p.ids)

	return out
}

// Index returns the row of id in AMatrix.
func (p *Pedigree) Index(id string) (int, error) {
	i, ok := p.index[id]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownIndividual, id)
	}

	return i, nil
}

// NGenerations returns 1 + the largest generation number.
func (p *Pedigree) NGenerations() int {
	return p.generation[len(p.generation)-1] + 1
}

// AMatrix returns a copy of the additive relationship matrix in IDs() order.
func (p *Pedigree) AMatrix() *matrix.Dense { return p.a.Copy() }

// Submatrix returns A restricted to ids, in the order given.
func (p *Pedigree) Submatrix(ids []string) (*matrix.Dense, error) {
	idx := make([]int, len(ids))
	var err error
	for k, id := range ids {
		if idx[k], err = p.Index(id); err != nil {
			return nil, err
		}
	}

	return p.a.Induced(idx, idx)
}

// Relationship returns A(a, b).
func (p *Pedigree) Relationship(a, b string) (float64, error) {
	i, err := p.Index(a)
	if err != nil {
		return 0, err
	}
	j, err := p.Index(b)
	if err != nil {
		return 0, err
	}

	return p.a.RawRow(i)[j], nil
}

// Inbreeding returns F for id.
func (p *Pedigree) Inbreeding(id string) (float64, error) {
	i, err := p.Index(id)
	if err != nil {
		return 0, err
	}

	return p.inbreeding[i], nil
}

// InbreedingCoefficients returns F in IDs() order.
func (p *Pedigree) InbreedingCoefficients() []float64 {
	out := make([]float64, len(p.inbreeding))
	copy(out, p.inbreeding)

	return out
}

func (p *Pedigree) record(i int) Record {
	r := Record{
		Individual: Individual{ID: p.ids[i]},
		Generation: p.generation[i],
		Inbreeding: p.inbreeding[i],
	}
	if p.sire[i] != noParent {
		r.Sire = p.ids[p.sire[i]]
	}
	if p.dam[i] != noParent {
		r.Dam = p.ids[p.dam[i]]
	}

	return r
}

// Individual returns the record for id.
func (p *Pedigree) Individual(id string) (Record, error) {
	i, err := p.Index(id)
	if err != nil {
		return Record{}, err
	}

	return p.record(i), nil
}

// Individuals lists every record sorted by (generation, ID).
func (p *Pedigree) Individuals() []Record {
	out := make([]Record, len(p.ids))
	for i := range p.ids {
		out[i] = p.record(i)
	}

	return out
}

// Generation lists the records of generation g, sorted by ID.
func (p *Pedigree) Generation(g int) []Record {
	var out []Record
	for i, gi := range p.generation {
		if gi == g {
			out = append(out, p.record(i))
		}
	}

	return out
}

// Records returns the pedigree as plain triples, added founders included.
func (p *Pedigree) Records() []Individual {
	out := make([]Individual, len(p.ids))
	for i := range p.ids {
		out[i] = p.record(i).Individual
	}

	return out
}
