// SPDX-License-Identifier: MIT

package linalg

import (
	"fmt"
	"math"

	"github.com/katalvlaran/qgen/matrix"
)

type nativeBackend struct{}

// Native returns the backend built on qgen/matrix kernels only.
func Native() Backend { return nativeBackend{} }

func (nativeBackend) Name() string { return NameNative }

func (nativeBackend) Cholesky(a matrix.Matrix) (Factor, error) {
	f, err := matrix.Cholesky(a, matrix.WithEpsilon(symmetryTol(a)))
	if err != nil {
		return nil, err
	}

	return f, nil
}

func (nativeBackend) Inverse(a matrix.Matrix) (*matrix.Dense, error) {
	return matrix.Inverse(a)
}

func (nativeBackend) Gram(a matrix.Matrix) (*matrix.Dense, error) {
	return matrix.Gram(a)
}

func (nativeBackend) SymEigen(a matrix.Matrix) ([]float64, *matrix.Dense, error) {
	return matrix.Eigen(a, matrix.WithEpsilon(symmetryTol(a)))
}

// PseudoInverse uses the spectral decomposition: for symmetric a,
// a⁺ = Q·diag(1/λ for |λ| > cut)·Qᵀ; otherwise a⁺ = (aᵀa)⁺·aᵀ.
func (b nativeBackend) PseudoInverse(a matrix.Matrix) (*matrix.Dense, error) {
	if err := matrix.ValidateNotNil(a); err != nil {
		return nil, err
	}
	if a.Rows() == a.Cols() && matrix.ValidateSymmetric(a, symmetryTol(a)) == nil {
		return b.symPinv(a)
	}
	ata, err := matrix.CrossProd(a)
	if err != nil {
		return nil, err
	}
	pinv, err := b.symPinv(ata)
	if err != nil {
		return nil, err
	}
	at, err := matrix.Transpose(a)
	if err != nil {
		return nil, err
	}

	return matrix.Mul(pinv, at)
}

func (b nativeBackend) symPinv(a matrix.Matrix) (*matrix.Dense, error) {
	vals, vecs, err := b.SymEigen(a)
	if err != nil {
		return nil, fmt.Errorf("PseudoInverse: %w", err)
	}
	n := len(vals)
	cut := pinvCutoff(vals, n)
	q := vecs.Data()
	res := make([]float64, n*n)
	for k, l := range vals {
		if math.Abs(l) <= cut {
			continue
		}
		inv := 1 / l
		for i := 0; i < n; i++ {
			qi := q[i*n+k] * inv
			if qi == 0 {
				continue
			}
			for j := 0; j < n; j++ {
				res[i*n+j] += qi * q[j*n+k]
			}
		}
	}
	out, err := matrix.NewDenseData(n, n, res)
	if err != nil {
		return nil, err
	}
	if err = matrix.Symmetrize(out); err != nil {
		return nil, err
	}

	return out, nil
}

// pinvCutoff is the singular-value floor max|λ|·n·1e-12.
func pinvCutoff(vals []float64, n int) float64 {
	maxAbs := 0.0
	for _, v := range vals {
		if a := math.Abs(v); a > maxAbs {
			maxAbs = a
		}
	}

	return maxAbs * float64(n) * 1e-12
}

// symmetryTol scales the symmetry tolerance with the magnitude of a, so that
// products such as Z·Zᵀ with rounding noise still pass.
func symmetryTol(a matrix.Matrix) float64 {
	d, err := matrix.AsDense(a)
	if err != nil {
		return matrix.DefaultEpsilon
	}
	maxAbs := 0.0
	for _, v := range d.Diag() {
		if av := math.Abs(v); av > maxAbs {
			maxAbs = av
		}
	}
	if maxAbs < 1 {
		maxAbs = 1
	}

	return matrix.DefaultEpsilon * maxAbs
}
