// SPDX-License-Identifier: MIT

package linalg

import (
	"errors"
	"fmt"
	"math"

	"github.com/katalvlaran/qgen/matrix"
)

// RidgeSchedule is the bounded sequence of relative ridge factors tried after a
// plain factorization fails. Each is multiplied by the mean absolute diagonal.
var RidgeSchedule = []float64{1e-6, 1e-4, 1e-2}

// RidgeResult reports how an SPD factorization succeeded.
type RidgeResult struct {
	Factor Factor
	// Ridge is the absolute value added to the diagonal (0 when none was needed).
	Ridge float64
	// Matrix is the matrix actually factored (a copy when Ridge > 0).
	Matrix *matrix.Dense
}

// Regularized reports whether a ridge was applied.
func (r RidgeResult) Regularized() bool { return r.Ridge > 0 }

// CholeskyRidge factors a with b, escalating through RidgeSchedule on failure.
//
// Errors:
//   - validation errors from the backend (nil, non-square, asymmetric) are
//     returned immediately, no ridge is attempted.
//   - matrix.ErrSingular when every ridge level fails.
func CholeskyRidge(b Backend, a matrix.Matrix) (RidgeResult, error) {
	d, err := matrix.AsDense(a)
	if err != nil {
		return RidgeResult{}, err
	}
	f, err := b.Cholesky(d)
	if err == nil {
		return RidgeResult{Factor: f, Matrix: d}, nil
	}
	if !errors.Is(err, matrix.ErrSingular) {
		return RidgeResult{}, err
	}
	scale := meanAbsDiag(d)
	if scale == 0 {
		scale = 1
	}
	for _, eps := range RidgeSchedule {
		ridge := eps * scale
		shifted, serr := matrix.AddDiagonal(d, ridge)
		if serr != nil {
			return RidgeResult{}, serr
		}
		if f, err = b.Cholesky(shifted); err == nil {
			return RidgeResult{Factor: f, Ridge: ridge, Matrix: shifted}, nil
		}
	}

	return RidgeResult{}, fmt.Errorf("CholeskyRidge(%s): ridge up to %g·mean|diag|: %w",
		b.Name(), RidgeSchedule[len(RidgeSchedule)-1], matrix.ErrSingular)
}

func meanAbsDiag(d *matrix.Dense) float64 {
	diag := d.Diag()
	if len(diag) == 0 {
		return 0
	}
	s := 0.0
	for _, v := range diag {
		s += math.Abs(v)
	}

	return s / float64(len(diag))
}
