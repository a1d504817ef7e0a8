// SPDX-License-Identifier: MIT

package linalg

import (
	"fmt"
	"sort"

	"github.com/katalvlaran/qgen/matrix"
)

// Backend is the dense linear-algebra capability set used by the estimators.
// Implementations must be safe for concurrent use; both bundled backends are
// stateless.
type Backend interface {
	// Name identifies the backend ("native", "gonum").
	Name() string

	// Cholesky factors a symmetric positive-definite matrix. Failure wraps
	// matrix.ErrNotPositiveDefinite (and therefore matrix.ErrSingular).
	Cholesky(a matrix.Matrix) (Factor, error)

	// Inverse inverts a general square matrix; failure wraps matrix.ErrSingular.
	Inverse(a matrix.Matrix) (*matrix.Dense, error)

	// PseudoInverse returns the Moore–Penrose inverse; it never fails on
	// rank deficiency.
	PseudoInverse(a matrix.Matrix) (*matrix.Dense, error)

	// SymEigen returns ascending eigenvalues and matching column eigenvectors
	// of a symmetric matrix.
	SymEigen(a matrix.Matrix) ([]float64, *matrix.Dense, error)

	// Gram returns a·aᵀ.
	Gram(a matrix.Matrix) (*matrix.Dense, error)
}

// Factor is a reusable SPD factorization.
type Factor interface {
	Solve(b []float64) ([]float64, error)
	SolveMatrix(b matrix.Matrix) (*matrix.Dense, error)
	Inverse() (*matrix.Dense, error)
	LogDet() float64
}

// Backend names accepted by ByName.
const (
	NameNative = "native"
	NameGonum  = "gonum"
)

var registry = map[string]func() Backend{
	NameNative: Native,
	NameGonum:  Gonum,
}

// ByName resolves a backend by name.
func ByName(name string) (Backend, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnsupportedBackend, name, Names())
	}

	return ctor(), nil
}

// Names lists the registered backend names in sorted order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)

	return out
}

// Default returns the gonum backend.
func Default() Backend { return Gonum() }
