// SPDX-License-Identifier: MIT

package linalg

import (
	"fmt"

	"github.com/katalvlaran/qgen/matrix"
	"gonum.org/v1/gonum/mat"
)

const (
	// svdRankTol is the relative singular-value cutoff used by PseudoInverse.
	svdRankTol = 1e-12
	// cholCondLimit rejects factorizations that succeed only through
	// rounding, in line with the native backend's relative pivot floor.
	cholCondLimit = 1e13
)

type gonumBackend struct{}

// Gonum returns the backend built on gonum.org/v1/gonum/mat.
func Gonum() Backend { return gonumBackend{} }

func (gonumBackend) Name() string { return NameGonum }

func (gonumBackend) Cholesky(a matrix.Matrix) (Factor, error) {
	if err := matrix.ValidateSymmetric(a, symmetryTol(a)); err != nil {
		return nil, fmt.Errorf("gonum.Cholesky: %w", err)
	}
	sym, err := toSym(a)
	if err != nil {
		return nil, err
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, fmt.Errorf("gonum.Cholesky: %w", matrix.ErrNotPositiveDefinite)
	}
	if c := chol.Cond(); c > cholCondLimit {
		return nil, fmt.Errorf("gonum.Cholesky: condition %.3g: %w", c, matrix.ErrNotPositiveDefinite)
	}

	return &gonumFactor{n: a.Rows(), chol: &chol}, nil
}

func (gonumBackend) Inverse(a matrix.Matrix) (*matrix.Dense, error) {
	if err := matrix.ValidateSquare(a); err != nil {
		return nil, fmt.Errorf("gonum.Inverse: %w", err)
	}
	src, err := toGonum(a)
	if err != nil {
		return nil, err
	}
	var inv mat.Dense
	if err = inv.Inverse(src); err != nil {
		return nil, fmt.Errorf("gonum.Inverse: %v: %w", err, matrix.ErrSingular)
	}

	return fromGonum(&inv)
}

func (gonumBackend) PseudoInverse(a matrix.Matrix) (*matrix.Dense, error) {
	src, err := toGonum(a)
	if err != nil {
		return nil, err
	}
	r, c := src.Dims()
	var svd mat.SVD
	if ok := svd.Factorize(src, mat.SVDFullU|mat.SVDFullV); !ok {
		return nil, fmt.Errorf("gonum.PseudoInverse: SVD failed: %w", matrix.ErrSingular)
	}
	rank := svd.Rank(svdRankTol)
	if rank == 0 {
		zero, zerr := matrix.NewDense(c, r)
		if zerr != nil {
			return nil, zerr
		}

		return zero, nil
	}
	id := mat.NewDiagDense(r, ones(r))
	var pinv mat.Dense
	svd.SolveTo(&pinv, id, rank)

	return fromGonum(&pinv)
}

func (gonumBackend) SymEigen(a matrix.Matrix) ([]float64, *matrix.Dense, error) {
	if err := matrix.ValidateSymmetric(a, symmetryTol(a)); err != nil {
		return nil, nil, fmt.Errorf("gonum.SymEigen: %w", err)
	}
	sym, err := toSym(a)
	if err != nil {
		return nil, nil, err
	}
	var es mat.EigenSym
	if ok := es.Factorize(sym, true); !ok {
		return nil, nil, fmt.Errorf("gonum.SymEigen: %w", matrix.ErrEigenFailed)
	}
	var vecs mat.Dense
	es.VectorsTo(&vecs)
	out, err := fromGonum(&vecs)
	if err != nil {
		return nil, nil, err
	}

	return es.Values(nil), out, nil
}

func (gonumBackend) Gram(a matrix.Matrix) (*matrix.Dense, error) {
	src, err := toGonum(a)
	if err != nil {
		return nil, err
	}
	r, _ := src.Dims()
	g := mat.NewSymDense(r, nil)
	g.SymOuterK(1, src)

	return fromGonum(g)
}

type gonumFactor struct {
	n    int
	chol *mat.Cholesky
}

func (f *gonumFactor) Solve(b []float64) ([]float64, error) {
	if err := matrix.ValidateVecLen(b, f.n); err != nil {
		return nil, fmt.Errorf("gonum.Solve: %w", err)
	}
	var x mat.VecDense
	if err := f.chol.SolveVecTo(&x, mat.NewVecDense(f.n, append([]float64(nil), b...))); err != nil {
		return nil, fmt.Errorf("gonum.Solve: %v: %w", err, matrix.ErrSingular)
	}
	out := make([]float64, f.n)
	for i := range out {
		out[i] = x.AtVec(i)
	}

	return out, nil
}

func (f *gonumFactor) SolveMatrix(b matrix.Matrix) (*matrix.Dense, error) {
	if err := matrix.ValidateRows(b, f.n); err != nil {
		return nil, fmt.Errorf("gonum.SolveMatrix: %w", err)
	}
	rhs, err := toGonum(b)
	if err != nil {
		return nil, err
	}
	var x mat.Dense
	if err = f.chol.SolveTo(&x, rhs); err != nil {
		return nil, fmt.Errorf("gonum.SolveMatrix: %v: %w", err, matrix.ErrSingular)
	}

	return fromGonum(&x)
}

func (f *gonumFactor) Inverse() (*matrix.Dense, error) {
	var inv mat.SymDense
	if err := f.chol.InverseTo(&inv); err != nil {
		return nil, fmt.Errorf("gonum.Inverse: %v: %w", err, matrix.ErrSingular)
	}

	return fromGonum(&inv)
}

func (f *gonumFactor) LogDet() float64 { return f.chol.LogDet() }

func toGonum(a matrix.Matrix) (*mat.Dense, error) {
	d, err := matrix.AsDense(a)
	if err != nil {
		return nil, err
	}
	r, c := d.Shape()

	return mat.NewDense(r, c, d.Data()), nil
}

func toSym(a matrix.Matrix) (*mat.SymDense, error) {
	d, err := matrix.AsDense(a)
	if err != nil {
		return nil, err
	}

	return mat.NewSymDense(d.Rows(), d.Data()), nil
}

func fromGonum(m mat.Matrix) (*matrix.Dense, error) {
	r, c := m.Dims()
	buf := make([]float64, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			buf[i*c+j] = m.At(i, j)
		}
	}

	return matrix.NewDenseData(r, c, buf)
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}

	return out
}
