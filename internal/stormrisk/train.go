package stormrisk

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/lox/solixa/internal/learn"
)

const (
	testFraction    = 0.2
	splitSeed       = 42
	calibrationBins = 10
)

// Classifier is the boosting configuration used for the outage model.
var Classifier = learn.GradientBoosting{
	NEstimators:     100,
	LearningRate:    0.1,
	MaxDepth:        3,
	MinSamplesSplit: 2,
	MinSamplesLeaf:  1,
}

// ErrUntrainable marks event history that loads but cannot fit a model,
// such as a single label class or too few events for a test split.
var ErrUntrainable = errors.New("storm history cannot train a model")

// Untrainable reports whether err means the history itself cannot produce a
// model, as opposed to an I/O or storage failure.
func Untrainable(err error) bool {
	return errors.Is(err, ErrNoEvents) || errors.Is(err, ErrUntrainable)
}

// TrainResult is the output of one training run.
type TrainResult struct {
	Bundle   *Bundle
	Metrics  *Metrics
	Counties []CountyRisk
}

// Train fits the outage classifier on events, evaluates it and builds the
// county table.
func Train(events []Event, svi SVITable, fs FeatureSet) (*TrainResult, error) {
	if len(events) == 0 {
		return nil, ErrNoEvents
	}
	start := time.Now()
	ds := Prepare(events, svi, fs)

	train, test := learn.StratifiedSplit(ds.Y, testFraction, splitSeed)
	if len(test) == 0 {
		return nil, fmt.Errorf("train storm model: %w: %d events too few to hold out a test split", ErrUntrainable, len(events))
	}
	Xtr, ytr := learn.Subset(ds.X, ds.Y, train)
	Xte, yte := learn.Subset(ds.X, ds.Y, test)

	model, err := Classifier.FitClassifier(Xtr, ytr)
	if errors.Is(err, learn.ErrSingleClass) || errors.Is(err, learn.ErrEmptyData) {
		return nil, fmt.Errorf("train storm model: %w: %w", ErrUntrainable, err)
	}
	if err != nil {
		return nil, fmt.Errorf("train storm model: %w", err)
	}
	bundle := &Bundle{
		FeatureSet: fs,
		Columns:    ds.Columns,
		Model:      model,
		TrainedAt:  time.Now().UTC(),
	}

	probs := learn.PredictAll(model, Xte)
	classes := make([]int, len(Xte))
	for i, x := range Xte {
		classes[i] = model.Class(x)
	}

	m := &Metrics{
		FeatureSet: fs,
		Accuracy:   learn.Accuracy(yte, classes),
		Brier:      brier(probs, yte),
		TrainRows:  len(train),
		TestRows:   len(test),
		Positives:  int(floats.Sum(ds.Y)),
		TrainedAt:  bundle.TrainedAt,
	}
	if fpr, tpr, err := learn.ROC(probs, yte); err == nil {
		m.ROC = ROCCurve{FPR: fpr, TPR: tpr}
		auc, _ := learn.AUC(probs, yte)
		m.AUC = &auc
	} else {
		log.Printf("stormrisk: test split has a single class, AUC undefined")
	}
	for _, b := range learn.Calibration(probs, yte, calibrationBins) {
		m.Calibration.Predicted = append(m.Calibration.Predicted, b.Predicted)
		m.Calibration.Observed = append(m.Calibration.Observed, b.Observed)
	}

	all := learn.PredictAll(model, ds.X)
	m.Stability = stability(events, all, ds.Y)
	m.Temporal = temporal(events, svi)

	counties := BuildCountyTable(events, all, svi)

	log.Printf("stormrisk: trained %s model on %d events (%d positive) in %s",
		fs, len(events), m.Positives, time.Since(start).Round(time.Millisecond))
	return &TrainResult{Bundle: bundle, Metrics: m, Counties: counties}, nil
}

// temporal trains a leakage-free model on the first 80% of years and tests
// on the remainder.
func temporal(events []Event, svi SVITable) *Temporal {
	years := distinctYears(events)
	t := &Temporal{}
	if len(years) < 2 {
		t.Skipped = "need at least two years of events"
		return t
	}
	split := max(1, int(float64(len(years))*(1-testFraction)))
	t.TrainYears = years[:split]
	t.TestYears = years[split:]
	cutoff := years[split]

	var trainEv, testEv []Event
	for _, e := range events {
		if e.Year < cutoff {
			trainEv = append(trainEv, e)
		} else {
			testEv = append(testEv, e)
		}
	}
	t.TrainRows, t.TestRows = len(trainEv), len(testEv)

	cols := Columns(FeaturesLeakageFree, nil)
	Xtr, ytr := matrix(cols, trainEv, svi)
	Xte, yte := matrix(cols, testEv, svi)

	model, err := Classifier.FitClassifier(Xtr, ytr)
	if errors.Is(err, learn.ErrSingleClass) {
		t.Skipped = "training years contain a single class"
		return t
	}
	if err != nil {
		t.Skipped = err.Error()
		return t
	}

	probs := learn.PredictAll(model, Xte)
	classes := make([]int, len(Xte))
	for i, x := range Xte {
		classes[i] = model.Class(x)
	}
	t.Accuracy = learn.Accuracy(yte, classes)
	if auc, err := learn.AUC(probs, yte); err == nil {
		t.AUC = &auc
	}
	return t
}

func matrix(cols []string, events []Event, svi SVITable) ([][]float64, []float64) {
	X := make([][]float64, len(events))
	y := make([]float64, len(events))
	for i, e := range events {
		X[i] = FeatureRow(cols, e, svi)
		y[i] = Label(e)
	}
	return X, y
}

func stability(events []Event, probs, labels []float64) []YearStability {
	byYear := make(map[int][]int)
	for i, e := range events {
		byYear[e.Year] = append(byYear[e.Year], i)
	}
	var out []YearStability
	for _, y := range distinctYears(events) {
		idx := byYear[y]
		p := make([]float64, len(idx))
		l := make([]float64, len(idx))
		for j, i := range idx {
			p[j] = probs[i]
			l[j] = labels[i]
		}
		out = append(out, YearStability{
			Year:       y,
			MeanPred:   round4(stat.Mean(p, nil)),
			MeanActual: round4(stat.Mean(l, nil)),
			Events:     len(idx),
		})
	}
	return out
}

func distinctYears(events []Event) []int {
	seen := make(map[int]bool)
	var years []int
	for _, e := range events {
		if !seen[e.Year] {
			seen[e.Year] = true
			years = append(years, e.Year)
		}
	}
	sort.Ints(years)
	return years
}

func brier(probs, labels []float64) float64 {
	if len(probs) == 0 {
		return 0
	}
	s := 0.0
	for i, p := range probs {
		d := p - labels[i]
		s += d * d
	}
	return s / float64(len(probs))
}
