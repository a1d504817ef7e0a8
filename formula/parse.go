// SPDX-License-Identifier: MIT

package formula

import (
	"strings"
)

// Spec is a parsed formula.
type Spec struct {
	Response  string
	Intercept bool
	Fixed     []string // fixed columns in formula order, duplicates removed
	Random    []string // random-intercept grouping columns, duplicates removed
}

// String renders the canonical form, e.g. "y ~ 0 + g + (1|block)".
func (s *Spec) String() string {
	var b strings.Builder
	b.WriteString(s.Response)
	b.WriteString(" ~ ")
	if s.Intercept {
		b.WriteString("1")
	} else {
		b.WriteString("0")
	}
	for _, f := range s.Fixed {
		b.WriteString(" + ")
		b.WriteString(f)
	}
	for _, r := range s.Random {
		b.WriteString(" + (1|")
		b.WriteString(r)
		b.WriteString(")")
	}

	return b.String()
}

// Parse checks the grammar and splits a formula into its terms. Column
// existence is checked later by Compile, which also requires at least one
// fixed column: "y ~ 0 + (1|g)" parses but does not compile.
//
// Errors (all *Error):
//   - MissingResponse: empty left-hand side.
//   - Malformed: not exactly one "~", empty right-hand side or term,
//     unbalanced parentheses, whitespace inside a name ("gen otype").
//   - UnsupportedTerm: interactions, functions, random slopes, or any token
//     that is neither a column name nor one of the recognised forms.
func Parse(formula string) (*Spec, error) {
	if n := strings.Count(formula, "~"); n != 1 {
		return nil, newError(Malformed, formula, "", "want exactly one '~'")
	}
	lhs, rhs, _ := strings.Cut(formula, "~")
	lhs = squeeze(lhs)
	switch {
	case lhs == "":
		return nil, newError(MissingResponse, formula, "", "empty left-hand side")
	case strings.Contains(lhs, " "):
		return nil, newError(Malformed, formula, lhs, "whitespace inside a name")
	case !ValidName(lhs):
		return nil, newError(UnsupportedTerm, formula, lhs, "response must be a column name")
	}

	terms, err := splitTerms(formula, rhs)
	if err != nil {
		return nil, err
	}

	s := &Spec{Response: lhs, Intercept: true}
	seen := make(map[string]bool)
	for _, term := range terms {
		switch {
		case strings.Contains(term, " "):
			return nil, newError(Malformed, formula, term, "whitespace inside a name")
		case term == "1":
			s.Intercept = true
		case term == "0":
			s.Intercept = false
		case strings.HasPrefix(term, "("):
			g, err := parseRandom(formula, term)
			if err != nil {
				return nil, err
			}
			if key := "|" + g; !seen[key] {
				seen[key] = true
				s.Random = append(s.Random, g)
			}
		case strings.ContainsAny(term, ":*"):
			return nil, newError(UnsupportedTerm, formula, term, "interactions are not supported")
		case strings.Contains(term, "("):
			return nil, newError(UnsupportedTerm, formula, term, "function terms are not supported")
		case ValidName(term):
			if !seen[term] {
				seen[term] = true
				s.Fixed = append(s.Fixed, term)
			}
		default:
			return nil, newError(UnsupportedTerm, formula, term, "")
		}
	}

	return s, nil
}

// splitTerms splits on '+' at parenthesis depth 0 and squeezes each term.
func splitTerms(formula, rhs string) ([]string, error) {
	var (
		terms []string
		cur   strings.Builder
		depth int
	)
	flush := func() error {
		term := squeeze(cur.String())
		cur.Reset()
		if term == "" {
			return newError(Malformed, formula, "", "empty term")
		}
		terms = append(terms, term)

		return nil
	}
	for _, r := range rhs {
		switch {
		case r == '(':
			depth++
		case r == ')':
			depth--
			if depth < 0 {
				return nil, newError(Malformed, formula, "", "unbalanced ')'")
			}
		case r == '+' && depth == 0:
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		cur.WriteRune(r)
	}
	if depth != 0 {
		return nil, newError(Malformed, formula, "", "unbalanced '('")
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return terms, nil
}

// parseRandom accepts a squeezed "(1|name)".
func parseRandom(formula, term string) (string, error) {
	if !strings.HasSuffix(term, ")") {
		return "", newError(Malformed, formula, term, "")
	}
	inner := term[1 : len(term)-1]
	lhs, group, ok := strings.Cut(inner, "|")
	switch {
	case !ok:
		return "", newError(UnsupportedTerm, formula, term, "parenthesised fixed terms are not supported")
	case lhs != "1":
		return "", newError(UnsupportedTerm, formula, term, "random slopes are not supported")
	case !ValidName(group):
		return "", newError(UnsupportedTerm, formula, term, "grouping must be a single column")
	}

	return group, nil
}

// squeeze drops whitespace at the ends of a term and next to operators,
// leaving one space wherever whitespace separates two name characters.
func squeeze(term string) string {
	fields := strings.Fields(term)
	var b strings.Builder
	for i, f := range fields {
		if i > 0 && !isOperator(fields[i-1][len(fields[i-1])-1]) && !isOperator(f[0]) {
			b.WriteByte(' ')
		}
		b.WriteString(f)
	}

	return b.String()
}

func isOperator(c byte) bool { return strings.IndexByte("()|:*-/^", c) >= 0 }
