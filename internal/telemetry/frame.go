package telemetry

import (
	"math"
	"time"
)

// DefaultSource labels readings when the dataset has no source column.
const DefaultSource = "Main System"

// Reading is one row of the canonical frame.
type Reading struct {
	Timestamp      time.Time `json:"timestamp"`
	SourceID       string    `json:"source_id"`
	SourceIDNumber int       `json:"source_id_number"`
	Value          float64   `json:"value"`
	ACPowerFixed   float64   `json:"ac_power_fixed"`
	DCPowerInput   float64   `json:"dc_power_input"`
	EfficiencyPct  float64   `json:"efficiency_pct"`
	TimeIndex      int       `json:"time_index"`
	Anomaly        bool      `json:"anomaly"`
	AnomalyScore   float64   `json:"anomaly_score"`
}

// Frame is the canonical, schema-unified telemetry dataset. Readings are
// sorted by timestamp and TimeIndex runs 0..n-1.
type Frame struct {
	Readings []Reading
	// Columns holds the raw headers detected in the input.
	Columns []string
	Mapping Mapping
	// Inverter reports whether the inverter-specific layout was used.
	Inverter bool
	// Quality counts data-quality flags raised during normalization.
	Quality map[string]int
}

// Len returns the number of readings.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Readings)
}

// Clone returns a deep copy of the frame's readings and metadata.
func (f *Frame) Clone() *Frame {
	out := &Frame{
		Readings: make([]Reading, len(f.Readings)),
		Columns:  append([]string(nil), f.Columns...),
		Mapping:  make(Mapping, len(f.Mapping)),
		Inverter: f.Inverter,
		Quality:  make(map[string]int, len(f.Quality)),
	}
	copy(out.Readings, f.Readings)
	for k, v := range f.Mapping {
		out.Mapping[k] = v
	}
	for k, v := range f.Quality {
		out.Quality[k] = v
	}
	return out
}

// Sources returns the distinct source ids in first-seen order.
func (f *Frame) Sources() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range f.Readings {
		if !seen[r.SourceID] {
			seen[r.SourceID] = true
			out = append(out, r.SourceID)
		}
	}
	return out
}

// AnomalyCount returns the number of readings flagged anomalous.
func (f *Frame) AnomalyCount() int {
	n := 0
	for _, r := range f.Readings {
		if r.Anomaly {
			n++
		}
	}
	return n
}

// HasEfficiency reports whether any reading carries a defined efficiency.
func (f *Frame) HasEfficiency() bool {
	for _, r := range f.Readings {
		if !math.IsNaN(r.EfficiencyPct) {
			return true
		}
	}
	return false
}

func emptyFrame(columns []string) *Frame {
	return &Frame{Columns: columns, Mapping: Mapping{}, Quality: map[string]int{}}
}
