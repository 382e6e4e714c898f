package anomaly

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/lox/solixa/internal/metrics"
	"github.com/lox/solixa/internal/telemetry"
)

// GridInterval is the slot width of the per-inverter efficiency grid.
const GridInterval = 15 * time.Minute

// EfficiencyPoint is one grid slot for one inverter. Efficiency is NaN when
// the inverter has no reading in the slot.
type EfficiencyPoint struct {
	Timestamp  time.Time `json:"timestamp"`
	SourceID   string    `json:"source_id"`
	Efficiency float64   `json:"efficiency_pct"`
	Anomaly    bool      `json:"anomaly"`
}

// minEfficiencyPoints is the number of positive slots an inverter needs
// before a forest is fitted to it.
const minEfficiencyPoints = 10

// DetectEfficiency reindexes each inverter onto a shared 15-minute grid and
// flags unusual conversion efficiency per inverter. Readings outside
// [0.1, 100] percent are ignored.
func (d *Detector) DetectEfficiency(frame *telemetry.Frame, contamination float64) ([]EfficiencyPoint, error) {
	if !ValidContamination(contamination) {
		return nil, fmt.Errorf("%w: got %g", ErrInvalidContamination, contamination)
	}

	if frame == nil {
		return nil, ErrNoEfficiencyData
	}

	bySource := make(map[string]map[int64]float64)
	var first, last time.Time
	for _, r := range frame.Readings {
		e := r.EfficiencyPct
		if math.IsNaN(e) || e < 0.1 || e > 100 {
			continue
		}
		if first.IsZero() || r.Timestamp.Before(first) {
			first = r.Timestamp
		}
		if r.Timestamp.After(last) {
			last = r.Timestamp
		}
		slots, ok := bySource[r.SourceID]
		if !ok {
			slots = make(map[int64]float64)
			bySource[r.SourceID] = slots
		}
		slots[r.Timestamp.UnixNano()] = e
	}
	if len(bySource) == 0 {
		return nil, ErrNoEfficiencyData
	}

	var grid []time.Time
	for t := first; !t.After(last); t = t.Add(GridInterval) {
		grid = append(grid, t)
	}

	ids := make([]string, 0, len(bySource))
	for id := range bySource {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []EfficiencyPoint
	flagged := 0
	for _, id := range ids {
		slots := bySource[id]
		points := make([]EfficiencyPoint, len(grid))
		var X [][]float64
		var rows []int
		for i, t := range grid {
			e, ok := slots[t.UnixNano()]
			if !ok {
				e = math.NaN()
			}
			points[i] = EfficiencyPoint{Timestamp: t, SourceID: id, Efficiency: e}
			if e > 0 {
				X = append(X, []float64{e})
				rows = append(rows, i)
			}
		}

		if len(X) > minEfficiencyPoints {
			forest, err := FitForest(X, contamination, d.Params)
			if err != nil {
				return nil, fmt.Errorf("fit efficiency forest for %s: %w", id, err)
			}
			for j, x := range X {
				if forest.IsAnomaly(forest.Score(x)) {
					points[rows[j]].Anomaly = true
					flagged++
				}
			}
		}
		out = append(out, points...)
	}
	metrics.AnomaliesFlagged.WithLabelValues("efficiency").Add(float64(flagged))
	return out, nil
}
