package forecast

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/lox/solixa/internal/telemetry"
)

// FeatureColumns lists the engineered predictors in matrix order.
var FeatureColumns = []string{
	"time_index",
	"hour",
	"day_of_week",
	"month",
	"day_of_year",
	"is_weekend",
	"rolling_mean_3",
	"rolling_std_3",
	"rolling_mean_7",
	"lag_1",
	"lag_2",
}

type series struct {
	times  []time.Time
	values []float64
}

// cleanSeries keeps readings with a defined AC power, in frame order.
func cleanSeries(f *telemetry.Frame) series {
	var s series
	if f == nil {
		return s
	}
	for _, r := range f.Readings {
		if math.IsNaN(r.ACPowerFixed) || math.IsInf(r.ACPowerFixed, 0) {
			continue
		}
		s.times = append(s.times, r.Timestamp)
		s.values = append(s.values, r.ACPowerFixed)
	}
	return s
}

// buildFeatures returns one feature row per point of s. Lags reaching
// before the first point are filled with the series mean.
func buildFeatures(s series) [][]float64 {
	n := len(s.values)
	mean := stat.Mean(s.values, nil)
	X := make([][]float64, n)
	for i := 0; i < n; i++ {
		t := s.times[i]
		dow := (int(t.Weekday()) + 6) % 7
		weekend := 0.0
		if dow >= 5 {
			weekend = 1
		}

		w3 := s.values[max(0, i-2) : i+1]
		w7 := s.values[max(0, i-6) : i+1]
		std3 := 0.0
		if len(w3) > 1 {
			std3 = stat.StdDev(w3, nil)
		}

		lag1, lag2 := mean, mean
		if i >= 1 {
			lag1 = s.values[i-1]
		}
		if i >= 2 {
			lag2 = s.values[i-2]
		}

		X[i] = []float64{
			float64(i),
			float64(t.Hour()),
			float64(dow),
			float64(t.Month()),
			float64(t.YearDay()),
			weekend,
			stat.Mean(w3, nil),
			std3,
			stat.Mean(w7, nil),
			lag1,
			lag2,
		}
	}
	return X
}
