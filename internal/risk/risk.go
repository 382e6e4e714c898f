// Package risk blends weather, outage history, telemetry anomalies and the
// storm model into one blackout risk score.
package risk

import (
	"math"
	"strings"

	"github.com/lox/solixa/internal/outage"
	"github.com/lox/solixa/internal/weather"
)

const (
	weatherWeight = 0.35
	outageWeight  = 0.30
	anomalyWeight = 0.20
	mlWeight      = 0.15
)

// DefaultSensitivity is applied by callers when none is supplied.
const DefaultSensitivity = 1.0

type Inputs struct {
	Weather        weather.Summary
	Outage         outage.Summary
	AnomalyDensity float64
	MLRisk         float64
	FacilityType   string
	// Sensitivity multiplies the score. Zero or less yields a zero score.
	Sensitivity float64
}

type Components struct {
	Weather        float64 `json:"weather_risk"`
	Outage         float64 `json:"outage_risk"`
	Anomaly        float64 `json:"anomaly_risk"`
	ML             float64 `json:"ml_risk"`
	FacilityWeight float64 `json:"facility_weight"`
	Sensitivity    float64 `json:"sensitivity"`
}

type Assessment struct {
	Score      float64    `json:"blackout_risk"`
	Level      string     `json:"level"`
	Components Components `json:"components"`
}

// FacilityWeight returns the multiplier for a facility type. Critical care
// sites are weighted up.
func FacilityWeight(facility string) float64 {
	switch strings.ToLower(strings.TrimSpace(facility)) {
	case "hospital", "ems", "emergency":
		return 1.1
	case "school", "shelter":
		return 1.05
	}
	return 1.0
}

// Combine computes the blended score, clamped to [0, 1].
func Combine(in Inputs) Assessment {
	c := Components{
		Weather:        clamp01(in.Weather.Risk),
		Outage:         clamp01(in.Outage.Risk),
		Anomaly:        clamp01(in.AnomalyDensity),
		ML:             clamp01(in.MLRisk),
		FacilityWeight: FacilityWeight(in.FacilityType),
		Sensitivity:    in.Sensitivity,
	}
	if math.IsNaN(c.Sensitivity) || c.Sensitivity < 0 {
		c.Sensitivity = 0
	}

	x := weatherWeight*c.Weather + outageWeight*c.Outage + anomalyWeight*c.Anomaly + mlWeight*c.ML
	x *= c.FacilityWeight * c.Sensitivity
	score := math.Max(math.Min(math.Round(x*1e4)/1e4, 1), 0)
	return Assessment{Score: score, Level: Level(score), Components: c}
}

// Level buckets a score for alert text.
func Level(score float64) string {
	switch {
	case score >= 0.75:
		return "severe"
	case score >= 0.5:
		return "high"
	case score >= 0.25:
		return "moderate"
	}
	return "low"
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(v, 1)
}
