package stormrisk

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lox/solixa/internal/learn"
)

// Artifact names in the repository.
const (
	ModelArtifact   = "risk_model.json"
	MetricsArtifact = "risk_model_metrics.json"
)

// Bundle is the persisted classifier together with the column layout it was
// trained on.
type Bundle struct {
	FeatureSet FeatureSet             `json:"feature_set"`
	Columns    []string               `json:"columns"`
	Model      *learn.ClassifierModel `json:"model"`
	TrainedAt  time.Time              `json:"trained_at"`
}

// Probability scores one event.
func (b *Bundle) Probability(e Event, svi SVITable) float64 {
	return b.Model.Proba(FeatureRow(b.Columns, e, svi))
}

// Probabilities scores many events.
func (b *Bundle) Probabilities(events []Event, svi SVITable) []float64 {
	out := make([]float64, len(events))
	for i, e := range events {
		out[i] = b.Probability(e, svi)
	}
	return out
}

func (b *Bundle) Marshal() ([]byte, error) {
	return json.Marshal(b)
}

func UnmarshalBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode model bundle: %w", err)
	}
	if b.Model == nil || len(b.Columns) == 0 {
		return nil, fmt.Errorf("decode model bundle: empty model")
	}
	return &b, nil
}

// ROCCurve holds the ROC points of the test split.
type ROCCurve struct {
	FPR []float64 `json:"fpr"`
	TPR []float64 `json:"tpr"`
}

// CalibrationCurve holds the reliability diagram of the test split.
type CalibrationCurve struct {
	Predicted []float64 `json:"predicted"`
	Observed  []float64 `json:"observed"`
}

// YearStability compares mean predicted probability with the observed
// outage rate for one year.
type YearStability struct {
	Year       int     `json:"year"`
	MeanPred   float64 `json:"mean_pred"`
	MeanActual float64 `json:"mean_actual"`
	Events     int     `json:"events"`
}

// Temporal is the leakage-free evaluation trained on early years and tested
// on later ones. AUC is nil when the test years hold a single class.
type Temporal struct {
	TrainYears []int    `json:"train_years"`
	TestYears  []int    `json:"test_years"`
	AUC        *float64 `json:"auc"`
	Accuracy   float64  `json:"accuracy"`
	TrainRows  int      `json:"train_rows"`
	TestRows   int      `json:"test_rows"`
	Skipped    string   `json:"skipped,omitempty"`
}

// Metrics is the persisted evaluation of a training run.
type Metrics struct {
	FeatureSet  FeatureSet       `json:"feature_set"`
	AUC         *float64         `json:"auc"`
	Accuracy    float64          `json:"accuracy"`
	Brier       float64          `json:"brier"`
	TrainRows   int              `json:"train_rows"`
	TestRows    int              `json:"test_rows"`
	Positives   int              `json:"positives"`
	ROC         ROCCurve         `json:"roc_curve"`
	Calibration CalibrationCurve `json:"calibration"`
	Stability   []YearStability  `json:"stability"`
	Temporal    *Temporal        `json:"temporal,omitempty"`
	TrainedAt   time.Time        `json:"trained_at"`
}

// Evaluation is the chart-oriented subset of Metrics.
type Evaluation struct {
	FeatureSet  FeatureSet       `json:"feature_set"`
	ROC         ROCCurve         `json:"roc_curve"`
	Calibration CalibrationCurve `json:"calibration"`
	Stability   []YearStability  `json:"stability"`
	Temporal    *Temporal        `json:"temporal,omitempty"`
}

// Evaluation extracts the evaluation view.
func (m *Metrics) Evaluation() *Evaluation {
	return &Evaluation{
		FeatureSet:  m.FeatureSet,
		ROC:         m.ROC,
		Calibration: m.Calibration,
		Stability:   m.Stability,
		Temporal:    m.Temporal,
	}
}
