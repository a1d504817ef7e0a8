// SPDX-License-Identifier: MIT

package formula

import (
	"errors"
	"fmt"
)

// Kind classifies formula errors.
type Kind int

// Error kinds.
const (
	MissingResponse Kind = iota + 1
	UnknownColumn
	Malformed
	UnsupportedTerm
)

func (k Kind) String() string {
	switch k {
	case MissingResponse:
		return "missing response"
	case UnknownColumn:
		return "unknown column"
	case Malformed:
		return "malformed"
	case UnsupportedTerm:
		return "unsupported term"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is returned for every caller-fixable formula or data problem.
type Error struct {
	Kind    Kind
	Formula string
	Term    string // offending term or column; may be empty
	Msg     string
}

func (e *Error) Error() string {
	s := "formula: " + e.Kind.String()
	if e.Term != "" {
		s += fmt.Sprintf(" %q", e.Term)
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Formula != "" {
		s += fmt.Sprintf(" in %q", e.Formula)
	}

	return s
}

// Is matches any *Error of the same Kind, so the Err* sentinels work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)

	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrMissingResponse = &Error{Kind: MissingResponse}
	ErrUnknownColumn   = &Error{Kind: UnknownColumn}
	ErrMalformed       = &Error{Kind: Malformed}
	ErrUnsupportedTerm = &Error{Kind: UnsupportedTerm}
)

// Table construction errors. These are programmer-side problems with the
// data container, not with a formula.
var (
	ErrColumnLength    = errors.New("formula: column length does not match table")
	ErrDuplicateColumn = errors.New("formula: duplicate column")
	ErrColumnName      = errors.New("formula: invalid column name")
)

func newError(kind Kind, formula, term, msg string) *Error {
	return &Error{Kind: kind, Formula: formula, Term: term, Msg: msg}
}
