// SPDX-License-Identifier: MIT

// Package matrix - column statistics used by genotype preprocessing.
//
// Purpose:
//   - Column means and centering for n×m marker tables (rows = individuals).
//   - Deterministic accumulation order (row-major), no hidden parallelism.

package matrix

const (
	opColumnMeans   = "ColumnMeans"
	opCenterColumns = "CenterColumns"
)

// ColumnMeans returns the arithmetic mean of each column.
//
// Errors: ErrNilMatrix.
// Complexity: O(r*c).
func ColumnMeans(x Matrix) ([]float64, error) {
	if err := ValidateNotNil(x); err != nil {
		return nil, matrixErrorf(opColumnMeans, err)
	}
	d, err := asDense(x)
	if err != nil {
		return nil, matrixErrorf(opColumnMeans, err)
	}
	means := make([]float64, d.c)
	var i, j int
	for i = 0; i < d.r; i++ {
		row := d.data[i*d.c : (i+1)*d.c]
		for j = 0; j < d.c; j++ {
			means[j] += row[j]
		}
	}
	inv := 1.0 / float64(d.r)
	for j = range means {
		means[j] *= inv
	}

	return means, nil
}

// CenterColumns returns X - 1·centersᵀ. When centers is nil the column means
// of X are used; otherwise centers must have one entry per column, which lets
// callers center a prediction set with training-set offsets.
//
// Returns the centered copy and the offsets actually subtracted.
//
// Errors: ErrNilMatrix, ErrDimensionMismatch.
// Complexity: O(r*c).
func CenterColumns(x Matrix, centers []float64) (*Dense, []float64, error) {
	if err := ValidateNotNil(x); err != nil {
		return nil, nil, matrixErrorf(opCenterColumns, err)
	}
	var err error
	if centers == nil {
		if centers, err = ColumnMeans(x); err != nil {
			return nil, nil, matrixErrorf(opCenterColumns, err)
		}
	} else if err = ValidateVecLen(centers, x.Cols()); err != nil {
		return nil, nil, matrixErrorf(opCenterColumns, err)
	}
	d, err := asDense(x)
	if err != nil {
		return nil, nil, matrixErrorf(opCenterColumns, err)
	}
	res := d.Copy()
	var i, j int
	for i = 0; i < res.r; i++ {
		row := res.data[i*res.c : (i+1)*res.c]
		for j = 0; j < res.c; j++ {
			row[j] -= centers[j]
		}
	}
	out := make([]float64, len(centers))
	copy(out, centers)

	return res, out, nil
}
