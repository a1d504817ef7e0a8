// SPDX-License-Identifier: MIT

package matrix

import (
	"math"
	"sort"
)

const opEigen = "Eigen"

// Eigen computes eigenvalues and eigenvectors of a symmetric matrix via cyclic
// Jacobi sweeps.
//
// Implementation:
//   - Stage 1: ValidateSymmetric within eps (WithEpsilon, DefaultEpsilon).
//   - Stage 2: sweep every pair p<q in i→j order and apply a rotation that
//     zeroes A[p,q]; accumulate the rotations into Q.
//   - Stage 3: stop once max|A[p,q]| < tol·max(1, max|A[i,i]|), then sort
//     eigenpairs by ascending eigenvalue.
//
// Returns:
//   - []float64: eigenvalues ascending.
//   - *Dense: Q whose columns are the matching unit eigenvectors.
//
// Errors:
//   - ErrNilMatrix, ErrNonSquare, ErrAsymmetry.
//   - ErrEigenFailed when the sweep cap is reached before convergence.
//
// Determinism:
//   - Fixed sweep order; stable sort keeps ties in their original order.
//
// Complexity:
//   - Time O(sweeps·n³), Space O(n²).
//
// AI-Hints:
//   - Used as the native pseudo-inverse engine; the gonum backend uses mat.EigenSym.
func Eigen(m Matrix, opts ...Option) ([]float64, *Dense, error) {
	o := gatherOptions(opts...)
	if err := ValidateSymmetric(m, o.eps); err != nil {
		return nil, nil, matrixErrorf(opEigen, err)
	}
	src, err := asDense(m)
	if err != nil {
		return nil, nil, matrixErrorf(opEigen, err)
	}
	a := src.Copy()
	n := a.r
	q, err := Identity(n)
	if err != nil {
		return nil, nil, matrixErrorf(opEigen, err)
	}

	var (
		sweep, i, p, r             int
		app, aqq, apq, theta, t, c float64
		s, akp, akq                float64
		converged                  bool
	)
	for sweep = 0; sweep < o.eigenSweeps; sweep++ {
		if offDiagonalMax(a) < o.eigenTol*diagonalScale(a) {
			converged = true
			break
		}
		for p = 0; p < n-1; p++ {
			for r = p + 1; r < n; r++ {
				apq = a.data[p*n+r]
				if apq == 0 {
					continue
				}
				app = a.data[p*n+p]
				aqq = a.data[r*n+r]
				theta = (aqq - app) / (2 * apq)
				t = math.Copysign(1.0/(math.Abs(theta)+math.Hypot(theta, 1)), theta)
				c = 1.0 / math.Sqrt(t*t+1)
				s = t * c

				for i = 0; i < n; i++ {
					akp = a.data[i*n+p]
					akq = a.data[i*n+r]
					a.data[i*n+p] = c*akp - s*akq
					a.data[i*n+r] = s*akp + c*akq
				}
				for i = 0; i < n; i++ {
					akp = a.data[p*n+i]
					akq = a.data[r*n+i]
					a.data[p*n+i] = c*akp - s*akq
					a.data[r*n+i] = s*akp + c*akq
				}
				a.data[p*n+r], a.data[r*n+p] = 0, 0

				for i = 0; i < n; i++ {
					akp = q.data[i*n+p]
					akq = q.data[i*n+r]
					q.data[i*n+p] = c*akp - s*akq
					q.data[i*n+r] = s*akp + c*akq
				}
			}
		}
	}
	if !converged && offDiagonalMax(a) >= o.eigenTol*diagonalScale(a) {
		return nil, nil, matrixErrorf(opEigen, ErrEigenFailed)
	}

	order := make([]int, n)
	for i = range order {
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool {
		return a.data[order[x]*n+order[x]] < a.data[order[y]*n+order[y]]
	})
	vals := make([]float64, n)
	vecs, err := NewDense(n, n)
	if err != nil {
		return nil, nil, matrixErrorf(opEigen, err)
	}
	for r = 0; r < n; r++ {
		src := order[r]
		vals[r] = a.data[src*n+src]
		for i = 0; i < n; i++ {
			vecs.data[i*n+r] = q.data[i*n+src]
		}
	}

	return vals, vecs, nil
}

func offDiagonalMax(a *Dense) float64 {
	n := a.r
	m := 0.0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if v := math.Abs(a.data[i*n+j]); v > m {
				m = v
			}
		}
	}

	return m
}

func diagonalScale(a *Dense) float64 {
	s := 1.0
	for _, v := range a.Diag() {
		if av := math.Abs(v); av > s {
			s = av
		}
	}

	return s
}
