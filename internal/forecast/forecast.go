// Package forecast fits short-horizon AC power models to a canonical frame
// and reports holdout accuracy.
package forecast

import (
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/lox/solixa/internal/learn"
	"github.com/lox/solixa/internal/metrics"
	"github.com/lox/solixa/internal/telemetry"
)

const (
	// MinPoints is the smallest cleaned series Run will fit.
	MinPoints = 50
	testFrac  = 0.2
	maxFolds  = 5
)

var ErrInsufficientData = fmt.Errorf("need at least %d data points for forecasting", MinPoints)

// Metrics summarises holdout and cross-validation accuracy.
type Metrics struct {
	MSE           float64 `json:"mse"`
	RMSE          float64 `json:"rmse"`
	MAE           float64 `json:"mae"`
	R2            float64 `json:"r2"`
	TrainR2       float64 `json:"train_r2"`
	CVMean        float64 `json:"cv_mean"`
	CVStd         float64 `json:"cv_std"`
	MAPE          float64 `json:"mape"`
	MeanActual    float64 `json:"mean_actual"`
	MeanPredicted float64 `json:"mean_predicted"`
	ModelType     string  `json:"model_type"`
	TestPoints    int     `json:"test_points"`
	TrainPoints   int     `json:"train_points"`
	CVFolds       int     `json:"cv_folds"`
}

// Row is one holdout prediction.
type Row struct {
	Index        int       `json:"index"`
	Timestamp    time.Time `json:"timestamp"`
	Actual       float64   `json:"actual"`
	Predicted    float64   `json:"predicted"`
	Error        float64   `json:"error"`
	PercentError *float64  `json:"percent_error"`
}

type Result struct {
	Rows    []Row   `json:"rows"`
	Metrics Metrics `json:"metrics"`
}

// Run fits modelType on the first 80% of the cleaned series and evaluates
// it on the remaining points. An empty modelType selects gradient boosting.
func Run(frame *telemetry.Frame, modelType string) (result *Result, err error) {
	tag, sp, err := lookup(modelType)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("forecast: %s panicked: %v", tag, r)
			result, err = nil, fmt.Errorf("forecast %s: %v", tag, r)
		}
		status := "ok"
		switch {
		case errors.Is(err, ErrInsufficientData):
			status = "insufficient"
		case err != nil:
			status = "error"
		}
		metrics.ForecastRunsTotal.WithLabelValues(tag, status).Inc()
		metrics.ForecastDuration.WithLabelValues(tag).Observe(time.Since(start).Seconds())
	}()

	s := cleanSeries(frame)
	n := len(s.values)
	if n < MinPoints {
		return nil, fmt.Errorf("%w: got %d", ErrInsufficientData, n)
	}

	X := buildFeatures(s)
	if sp.columns != nil {
		X = learn.Columns(X, sp.columns...)
	}
	y := s.values

	nTrain := learn.ChronoSplit(n, testFrac)
	xTrain, yTrain := X[:nTrain], y[:nTrain]
	xTest, yTest := X[nTrain:], y[nTrain:]

	model, err := sp.trainer.Fit(xTrain, yTrain)
	if err != nil {
		return nil, fmt.Errorf("fit %s: %w", tag, err)
	}
	pred := learn.PredictAll(model, xTest)
	trainPred := learn.PredictAll(model, xTrain)

	m := Metrics{
		MSE:           learn.MSE(yTest, pred),
		MAE:           learn.MAE(yTest, pred),
		R2:            learn.R2(yTest, pred),
		TrainR2:       learn.R2(yTrain, trainPred),
		MAPE:          learn.MAPE(yTest, pred),
		MeanActual:    stat.Mean(yTest, nil),
		MeanPredicted: stat.Mean(pred, nil),
		ModelType:     tag,
		TestPoints:    len(yTest),
		TrainPoints:   nTrain,
	}
	m.RMSE = math.Sqrt(m.MSE)

	if k := min(maxFolds, nTrain/10); k >= 2 {
		scores, err := learn.CrossValR2(sp.trainer, xTrain, yTrain, k)
		if err != nil {
			return nil, fmt.Errorf("cross-validate %s: %w", tag, err)
		}
		m.CVMean, m.CVStd = stat.PopMeanStdDev(scores, nil)
		m.CVFolds = k
	}

	rows := make([]Row, len(yTest))
	for i := range yTest {
		idx := nTrain + i
		row := Row{
			Index:     idx,
			Timestamp: s.times[idx],
			Actual:    yTest[i],
			Predicted: pred[i],
			Error:     math.Abs(yTest[i] - pred[i]),
		}
		if yTest[i] != 0 {
			pct := math.Abs((yTest[i]-pred[i])/yTest[i]) * 100
			row.PercentError = &pct
		}
		rows[i] = row
	}

	return &Result{Rows: rows, Metrics: m}, nil
}
