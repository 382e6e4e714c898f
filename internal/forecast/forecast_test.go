package forecast

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/solixa/internal/telemetry"
)

// Monday.
var base = time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

func trendFrame(n int, value func(i int) float64) *telemetry.Frame {
	f := &telemetry.Frame{}
	for i := 0; i < n; i++ {
		v := value(i)
		f.Readings = append(f.Readings, telemetry.Reading{
			Timestamp:    base.Add(time.Duration(i) * time.Hour),
			SourceID:     telemetry.DefaultSource,
			Value:        v,
			ACPowerFixed: v,
			TimeIndex:    i,
		})
	}
	return f
}

func linearTrend(i int) float64 { return 100 + 2*float64(i) }

func TestRunNeedsFiftyPoints(t *testing.T) {
	_, err := Run(trendFrame(49, linearTrend), ModelLinear)
	assert.ErrorIs(t, err, ErrInsufficientData)

	res, err := Run(trendFrame(50, linearTrend), ModelLinear)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Metrics.TestPoints)
	assert.Equal(t, 40, res.Metrics.TrainPoints)
	assert.Len(t, res.Rows, 10)
	assert.False(t, math.IsNaN(res.Metrics.R2))
	assert.False(t, math.IsNaN(res.Metrics.RMSE))
	assert.False(t, math.IsNaN(res.Metrics.MAE))
	assert.False(t, math.IsNaN(res.Metrics.MAPE))
}

func TestRunLinearOnTrend(t *testing.T) {
	res, err := Run(trendFrame(100, linearTrend), ModelLinear)
	require.NoError(t, err)

	m := res.Metrics
	assert.InDelta(t, 1.0, m.R2, 1e-9)
	assert.InDelta(t, 0.0, m.MAPE, 1e-6)
	assert.Equal(t, 5, m.CVFolds)
	assert.InDelta(t, 1.0, m.CVMean, 1e-9)
	assert.Equal(t, ModelLinear, m.ModelType)

	first := res.Rows[0]
	assert.Equal(t, 80, first.Index)
	assert.Equal(t, base.Add(80*time.Hour), first.Timestamp)
	require.NotNil(t, first.PercentError)
	assert.InDelta(t, 0.0, *first.PercentError, 1e-6)
}

func TestRunDropsMissingPower(t *testing.T) {
	f := trendFrame(55, linearTrend)
	for i := 0; i < 10; i++ {
		f.Readings[i*5].ACPowerFixed = math.NaN()
	}
	_, err := Run(f, ModelLinear)
	assert.ErrorIs(t, err, ErrInsufficientData, "45 usable points remain")
}

func TestRunTreeModels(t *testing.T) {
	daily := func(i int) float64 {
		h := float64(i % 24)
		return math.Max(0, 500*math.Sin((h-6)/12*math.Pi))
	}
	for _, tag := range []string{ModelGradientBoosting, ModelRandomForest, ""} {
		res, err := Run(trendFrame(24*5, daily), tag)
		require.NoError(t, err, tag)
		assert.Equal(t, 24, res.Metrics.TestPoints)
		assert.Greater(t, res.Metrics.TrainR2, 0.9, tag)
		assert.LessOrEqual(t, res.Metrics.MAPE, 999.9)
	}
}

func TestRunZeroActualsHaveNoPercentError(t *testing.T) {
	res, err := Run(trendFrame(60, func(i int) float64 { return 0 }), ModelLinear)
	require.NoError(t, err)
	for _, r := range res.Rows {
		assert.Nil(t, r.PercentError)
	}
	assert.LessOrEqual(t, res.Metrics.MAPE, 999.9)
}

func TestRunUnknownModel(t *testing.T) {
	_, err := Run(trendFrame(60, linearTrend), "prophet")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestMetricsJSONKeys(t *testing.T) {
	res, err := Run(trendFrame(60, linearTrend), ModelLinear)
	require.NoError(t, err)
	raw, err := json.Marshal(res.Metrics)
	require.NoError(t, err)

	var keys map[string]any
	require.NoError(t, json.Unmarshal(raw, &keys))
	for _, k := range []string{"mse", "rmse", "mae", "r2", "train_r2", "cv_mean", "cv_std", "mape", "mean_actual", "mean_predicted", "model_type", "test_points"} {
		assert.Contains(t, keys, k)
	}
}

func TestBuildFeatures(t *testing.T) {
	s := series{
		times:  []time.Time{base, base.Add(time.Hour), base.Add(5*24*time.Hour + 2*time.Hour)},
		values: []float64{1, 2, 3},
	}
	X := buildFeatures(s)
	require.Len(t, X, 3)
	require.Len(t, X[0], len(FeatureColumns))

	assert.Equal(t, []float64{0, 0, 0, 5, 127, 0, 1, 0, 1, 2, 2}, X[0])
	assert.InDelta(t, math.Sqrt(0.5), X[1][7], 1e-12)
	assert.Equal(t, 1.0, X[1][9])
	assert.Equal(t, 2.0, X[1][10], "lag_2 falls back to the series mean")

	// Saturday.
	assert.Equal(t, 5.0, X[2][2])
	assert.Equal(t, 1.0, X[2][5])
	assert.Equal(t, 2.0, X[2][6])
}

func TestModels(t *testing.T) {
	assert.Equal(t, []string{ModelGradientBoosting, ModelLinear, ModelRandomForest}, Models())
}
