package models

import (
	"database/sql"
	"time"
)

// CountyRisk is one row of the county blackout-risk table.
type CountyRisk struct {
	FIPS      string  `json:"fips"`
	County    string  `json:"county"`
	StateName string  `json:"state_name"`
	StateAbbr string  `json:"state_abbr"`
	SVI       float64 `json:"svi"`
	SVIScored bool    `json:"svi_scored"`
	MLRisk    float64 `json:"ml_risk"`
	Events    int     `json:"events"`
	Risk      float64 `json:"risk"`
}

// ModelRun records one storm-model training run.
type ModelRun struct {
	ID         int64
	FeatureSet string
	Events     int
	Positives  int
	AUC        sql.NullFloat64
	Accuracy   float64
	Counties   int
	DurationMS int64
	TrainedAt  time.Time
}

// AnalysisRun records one telemetry upload analysis. Uploaded data itself is
// never stored.
type AnalysisRun struct {
	ID            string
	Filename      string
	Rows          int
	Sources       int
	Anomalies     int
	Contamination float64
	Model         string
	R2            sql.NullFloat64
	MAPE          sql.NullFloat64
	QualityJSON   string
	CreatedAt     time.Time
}

// Subscription is an SMS alert registration for a location.
type Subscription struct {
	ID          string
	Phone       string
	FIPS        string
	State       string
	Lat         float64
	Lon         float64
	Facility    string
	Sensitivity float64
	Threshold   float64
	Active      bool
	CreatedAt   time.Time
	LastSentAt  sql.NullTime
}
