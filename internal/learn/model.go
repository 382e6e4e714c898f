// Package learn implements the small set of supervised learners used by the
// forecaster and the storm risk model: histogram regression trees, gradient
// boosting, random forests and single-predictor linear regression.
package learn

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrEmptyData   = errors.New("learn: no training rows")
	ErrShape       = errors.New("learn: inconsistent feature matrix")
	ErrNonFinite   = errors.New("learn: non-finite value in training data")
	ErrSingleClass = errors.New("learn: training labels contain a single class")
)

// Regressor is a fitted model producing one output per feature row.
type Regressor interface {
	Predict(x []float64) float64
}

// Trainer fits a Regressor to a feature matrix and target.
type Trainer interface {
	Fit(X [][]float64, y []float64) (Regressor, error)
}

// PredictAll applies m to every row of X.
func PredictAll(m Regressor, X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		out[i] = m.Predict(x)
	}
	return out
}

// Columns projects X onto the given column indexes.
func Columns(X [][]float64, cols ...int) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		r := make([]float64, len(cols))
		for j, c := range cols {
			r[j] = row[c]
		}
		out[i] = r
	}
	return out
}

// Subset selects rows of X and y by index.
func Subset(X [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	xs := make([][]float64, len(idx))
	ys := make([]float64, len(idx))
	for i, j := range idx {
		xs[i] = X[j]
		ys[i] = y[j]
	}
	return xs, ys
}

func validate(X [][]float64, y []float64) (int, error) {
	if len(X) == 0 {
		return 0, ErrEmptyData
	}
	if len(X) != len(y) {
		return 0, fmt.Errorf("%w: %d rows, %d targets", ErrShape, len(X), len(y))
	}
	width := len(X[0])
	if width == 0 {
		return 0, fmt.Errorf("%w: no features", ErrShape)
	}
	for i, row := range X {
		if len(row) != width {
			return 0, fmt.Errorf("%w: row %d has %d features, want %d", ErrShape, i, len(row), width)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, fmt.Errorf("%w: row %d", ErrNonFinite, i)
			}
		}
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return 0, fmt.Errorf("%w: target %d", ErrNonFinite, i)
		}
	}
	return width, nil
}
