// Package anomaly flags unusual telemetry readings with an isolation forest.
package anomaly

import (
	"errors"
	"fmt"
	"math"

	"github.com/lox/solixa/internal/metrics"
	"github.com/lox/solixa/internal/telemetry"
)

const (
	// DefaultContamination is the expected share of anomalous readings.
	DefaultContamination = 0.02

	DatasetMinRows = 10
	RequestMinRows = 25
)

var (
	ErrNumerical            = errors.New("anomaly detection failed")
	ErrInvalidContamination = errors.New("contamination must be in (0, 0.5]")
	ErrNoEfficiencyData     = errors.New("no valid efficiency data")
)

// Detector scores a canonical frame. Frames shorter than MinRows are
// returned unflagged without error.
type Detector struct {
	MinRows int
	Params  ForestParams
	mode    string
}

// NewDatasetDetector returns the detector used for whole-dataset analysis.
func NewDatasetDetector() *Detector {
	return &Detector{MinRows: DatasetMinRows, Params: DefaultForestParams, mode: "dataset"}
}

// NewRequestDetector returns the stricter detector used by the scoring API.
func NewRequestDetector() *Detector {
	return &Detector{MinRows: RequestMinRows, Params: DefaultForestParams, mode: "request"}
}

// ValidContamination reports whether c is a usable contamination fraction.
func ValidContamination(c float64) bool {
	return c > 0 && c <= 0.5
}

// features builds the per-reading feature rows: value, hour/24 and
// weekday/7 with Monday as 0.
func features(f *telemetry.Frame) [][]float64 {
	X := make([][]float64, len(f.Readings))
	for i, r := range f.Readings {
		weekday := (int(r.Timestamp.Weekday()) + 6) % 7
		X[i] = []float64{r.Value, float64(r.Timestamp.Hour()) / 24, float64(weekday) / 7}
	}
	return X
}

func finite(X [][]float64) bool {
	for _, row := range X {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// Detect returns a copy of frame with Anomaly and AnomalyScore set. Frames
// shorter than MinRows come back unflagged without checking contamination.
// On error the returned frame is still usable, with every reading unflagged.
func (d *Detector) Detect(frame *telemetry.Frame, contamination float64) (*telemetry.Frame, error) {
	if frame == nil {
		frame = &telemetry.Frame{}
	}
	out := frame.Clone()
	reset(out)

	if out.Len() < d.MinRows {
		return out, nil
	}
	if !ValidContamination(contamination) {
		return out, fmt.Errorf("%w: got %g", ErrInvalidContamination, contamination)
	}

	X := features(out)
	if !finite(X) {
		return out, fmt.Errorf("%w: readings contain non-finite values", ErrNumerical)
	}

	scaled := FitScaler(X).Transform(X)
	forest, err := FitForest(scaled, contamination, d.Params)
	if err != nil {
		return out, fmt.Errorf("fit isolation forest: %w", err)
	}

	flagged := 0
	for i := range out.Readings {
		score := forest.Score(scaled[i])
		out.Readings[i].AnomalyScore = score
		if forest.IsAnomaly(score) {
			out.Readings[i].Anomaly = true
			flagged++
		}
	}
	metrics.AnomaliesFlagged.WithLabelValues(d.mode).Add(float64(flagged))
	return out, nil
}

func reset(f *telemetry.Frame) {
	for i := range f.Readings {
		f.Readings[i].Anomaly = false
		f.Readings[i].AnomalyScore = 0
	}
}

// Density returns the fraction of readings flagged anomalous, 0 for an
// empty frame.
func Density(frame *telemetry.Frame) float64 {
	if frame.Len() == 0 {
		return 0
	}
	return float64(frame.AnomalyCount()) / float64(frame.Len())
}
