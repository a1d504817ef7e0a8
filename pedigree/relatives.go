// SPDX-License-Identifier: MIT

package pedigree

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Interpretation is a coarse reading of an additive relationship.
type Interpretation string

// Relationship bands, checked from the top.
const (
	SameOrClone      Interpretation = "same individual or identical twin" // A ≥ 0.99
	FullSibOrParent  Interpretation = "full siblings or parent-offspring" // A ≥ 0.49
	HalfSibOrGrand   Interpretation = "half siblings or grandparent-grandchild"
	FirstCousins     Interpretation = "first cousins"
	SecondCousins    Interpretation = "second cousins"
	DistantRelatives Interpretation = "distant relatives"
	Unrelated        Interpretation = "unrelated"
)

// Interpret maps an additive relationship onto a band.
func Interpret(a float64) Interpretation {
	switch {
	case a >= 0.99:
		return SameOrClone
	case a >= 0.49:
		return FullSibOrParent
	case a >= 0.24:
		return HalfSibOrGrand
	case a >= 0.12:
		return FirstCousins
	case a >= 0.06:
		return SecondCousins
	case a > 0:
		return DistantRelatives
	default:
		return Unrelated
	}
}

// Coancestry describes a pair of individuals.
type Coancestry struct {
	A              string         `json:"a" yaml:"a"`
	B              string         `json:"b" yaml:"b"`
	Relationship   float64        `json:"relationship" yaml:"relationship"` // A(a,b)
	Coancestry     float64        `json:"coancestry" yaml:"coancestry"`     // ½·A(a,b)
	Interpretation Interpretation `json:"interpretation" yaml:"interpretation"`
}

// ExpectedOffspringInbreeding is F of a progeny of a×b, equal to the coancestry.
func (c Coancestry) ExpectedOffspringInbreeding() float64 { return c.Coancestry }

// Coancestry returns the coefficient of coancestry ½·A(a,b).
func (p *Pedigree) Coancestry(a, b string) (Coancestry, error) {
	rel, err := p.Relationship(a, b)
	if err != nil {
		return Coancestry{}, err
	}

	return Coancestry{
		A:              a,
		B:              b,
		Relationship:   rel,
		Coancestry:     0.5 * rel,
		Interpretation: Interpret(rel),
	}, nil
}

// Completeness is the mean share of known parents over non-founders, in
// percent. A pedigree of founders only is 100% complete.
func (p *Pedigree) Completeness() float64 {
	total, nonFounders := 0.0, 0
	for i := range p.ids {
		known := 0
		if p.sire[i] != noParent {
			known++
		}
		if p.dam[i] != noParent {
			known++
		}
		if known == 0 {
			continue
		}
		nonFounders++
		total += float64(known) / 2
	}
	if nonFounders == 0 {
		return 100
	}

	return 100 * total / float64(nonFounders)
}

// Stats summarises a pedigree.
type Stats struct {
	NIndividuals   int     `json:"n_individuals" yaml:"n_individuals"`
	NFounders      int     `json:"n_founders" yaml:"n_founders"`
	NGenerations   int     `json:"n_generations" yaml:"n_generations"`
	MeanInbreeding float64 `json:"mean_inbreeding" yaml:"mean_inbreeding"`
	MaxInbreeding  float64 `json:"max_inbreeding" yaml:"max_inbreeding"`
	Completeness   float64 `json:"completeness" yaml:"completeness"`
}

// Stats returns counts, inbreeding summary and completeness.
func (p *Pedigree) Stats() Stats {
	s := Stats{
		NIndividuals: len(p.ids),
		NGenerations: p.NGenerations(),
		Completeness: p.Completeness(),
	}
	for i := range p.ids {
		if p.sire[i] == noParent && p.dam[i] == noParent {
			s.NFounders++
		}
	}
	s.MeanInbreeding = floats.Sum(p.inbreeding) / float64(len(p.inbreeding))
	s.MaxInbreeding = floats.Max(p.inbreeding)

	return s
}

// AncestorNode is one node of an ancestry tree. Depth 0 is the queried
// individual, 1 its parents and so on.
type AncestorNode struct {
	ID         string        `json:"id" yaml:"id"`
	Depth      int           `json:"depth" yaml:"depth"`
	Inbreeding float64       `json:"inbreeding" yaml:"inbreeding"`
	Sire       *AncestorNode `json:"sire,omitempty" yaml:"sire,omitempty"`
	Dam        *AncestorNode `json:"dam,omitempty" yaml:"dam,omitempty"`
}

// Count returns the number of nodes in the tree, repeated ancestors counted
// once per path.
func (n *AncestorNode) Count() int {
	if n == nil {
		return 0
	}

	return 1 + n.Sire.Count() + n.Dam.Count()
}

// Ancestors traces the ancestry of id up to maxDepth generations back.
// Panics if maxDepth < 0.
func (p *Pedigree) Ancestors(id string, maxDepth int) (*AncestorNode, error) {
	if maxDepth < 0 {
		panic("pedigree: Ancestors: maxDepth must be >= 0")
	}
	i, err := p.Index(id)
	if err != nil {
		return nil, err
	}

	return p.trace(i, 0, maxDepth), nil
}

func (p *Pedigree) trace(i, depth, maxDepth int) *AncestorNode {
	node := &AncestorNode{ID: p.ids[i], Depth: depth, Inbreeding: p.inbreeding[i]}
	if depth == maxDepth {
		return node
	}
	if s := p.sire[i]; s != noParent {
		node.Sire = p.trace(s, depth+1, maxDepth)
	}
	if d := p.dam[i]; d != noParent {
		node.Dam = p.trace(d, depth+1, maxDepth)
	}

	return node
}

// Descendants lists offspring of id by generation distance.
type Descendants struct {
	ID string `json:"id" yaml:"id"`
	// ByGeneration[k] holds descendants k+1 generations below ID, sorted by
	// processing order. Empty trailing generations are omitted.
	ByGeneration [][]string `json:"by_generation" yaml:"by_generation"`
}

// Total returns the number of distinct descendants found.
func (d Descendants) Total() int {
	n := 0
	for _, g := range d.ByGeneration {
		n += len(g)
	}

	return n
}

// Descendants walks offspring breadth-first up to maxDepth generations.
// Each descendant appears once, at its shortest distance. Panics if maxDepth < 0.
func (p *Pedigree) Descendants(id string, maxDepth int) (Descendants, error) {
	if maxDepth < 0 {
		panic("pedigree: Descendants: maxDepth must be >= 0")
	}
	i, err := p.Index(id)
	if err != nil {
		return Descendants{}, err
	}

	out := Descendants{ID: id}
	seen := map[int]bool{i: true}
	frontier := []int{i}
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []int
		for _, parent := range frontier {
			for _, c := range p.children[parent] {
				if !seen[c] {
					seen[c] = true
					next = append(next, c)
				}
			}
		}
		if len(next) == 0 {
			break
		}
		sort.Ints(next)
		names := make([]string, len(next))
		for k, c := range next {
			names[k] = p.ids[c]
		}
		out.ByGeneration = append(out.ByGeneration, names)
		frontier = next
	}

	return out, nil
}

// String renders the pair as "a×b: A=…, f=… (band)".
func (c Coancestry) String() string {
	return fmt.Sprintf("%s×%s: A=%.4f, f=%.4f (%s)", c.A, c.B, c.Relationship, c.Coancestry, c.Interpretation)
}
