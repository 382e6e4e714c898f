package learn

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Linear is ordinary least squares on a single predictor column.
type Linear struct{}

// LinearModel is y = Intercept + Slope*x[0].
type LinearModel struct {
	Intercept float64 `json:"intercept"`
	Slope     float64 `json:"slope"`
}

// Predict implements Regressor.
func (m *LinearModel) Predict(x []float64) float64 {
	return m.Intercept + m.Slope*x[0]
}

// Fit implements Trainer. X must have exactly one column.
func (Linear) Fit(X [][]float64, y []float64) (Regressor, error) {
	width, err := validate(X, y)
	if err != nil {
		return nil, err
	}
	if width != 1 {
		return nil, fmt.Errorf("%w: linear model takes 1 predictor, got %d", ErrShape, width)
	}

	xs := make([]float64, len(X))
	for i, row := range X {
		xs[i] = row[0]
	}
	if len(xs) < 2 || stat.Variance(xs, nil) == 0 {
		return &LinearModel{Intercept: stat.Mean(y, nil)}, nil
	}
	alpha, beta := stat.LinearRegression(xs, y, nil, false)
	return &LinearModel{Intercept: alpha, Slope: beta}, nil
}
