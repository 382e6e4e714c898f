package learn

import (
	"fmt"
	"math"
)

// GradientBoosting fits an additive ensemble of regression trees to squared
// error, each stage fitting the current residuals.
type GradientBoosting struct {
	NEstimators     int
	LearningRate    float64
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxBins         int
}

// BoostedModel is a fitted boosting ensemble. Raw output is
// Init + LearningRate * sum(tree outputs).
type BoostedModel struct {
	Init         float64 `json:"init"`
	LearningRate float64 `json:"learning_rate"`
	Trees        []*Tree `json:"trees"`
}

// Raw returns the additive model output before any link function.
func (m *BoostedModel) Raw(x []float64) float64 {
	sum := 0.0
	for _, t := range m.Trees {
		sum += t.Predict(x)
	}
	return m.Init + m.LearningRate*sum
}

// Predict returns the regression output.
func (m *BoostedModel) Predict(x []float64) float64 {
	return m.Raw(x)
}

func (gb GradientBoosting) params() treeParams {
	return treeParams{
		maxDepth:        gb.MaxDepth,
		minSamplesSplit: gb.MinSamplesSplit,
		minSamplesLeaf:  gb.MinSamplesLeaf,
	}
}

func (gb GradientBoosting) stages() (int, float64) {
	n, lr := gb.NEstimators, gb.LearningRate
	if n <= 0 {
		n = 100
	}
	if lr <= 0 {
		lr = 0.1
	}
	return n, lr
}

// Fit implements Trainer.
func (gb GradientBoosting) Fit(X [][]float64, y []float64) (Regressor, error) {
	return gb.FitRegressor(X, y)
}

// FitRegressor fits a squared-error boosting model.
func (gb GradientBoosting) FitRegressor(X [][]float64, y []float64) (*BoostedModel, error) {
	if _, err := validate(X, y); err != nil {
		return nil, err
	}
	nStages, lr := gb.stages()
	n := len(y)
	data := binFeatures(X, gb.MaxBins)

	init := 0.0
	for _, v := range y {
		init += v
	}
	init /= float64(n)

	model := &BoostedModel{Init: init, LearningRate: lr}
	pred := make([]float64, n)
	for i := range pred {
		pred[i] = init
	}

	idx := allIndexes(n)
	stats := gradStats{g: make([]float64, n), h: ones(n), c: ones(n)}
	for s := 0; s < nStages; s++ {
		for i := range y {
			stats.g[i] = pred[i] - y[i]
		}
		tree := buildTree(data, idx, stats, gb.params())
		model.Trees = append(model.Trees, tree)
		for i := range pred {
			pred[i] += lr * tree.Predict(X[i])
		}
	}
	return model, nil
}

// ClassifierModel is a fitted binary boosting classifier on the log-odds
// scale.
type ClassifierModel struct {
	BoostedModel
}

// Proba returns the probability of the positive class.
func (m *ClassifierModel) Proba(x []float64) float64 {
	return sigmoid(m.Raw(x))
}

// Predict returns the probability of the positive class, so the classifier
// can serve wherever a Regressor is expected.
func (m *ClassifierModel) Predict(x []float64) float64 {
	return m.Proba(x)
}

// Class returns 1 when the positive class is more likely than not.
func (m *ClassifierModel) Class(x []float64) int {
	if m.Proba(x) > 0.5 {
		return 1
	}
	return 0
}

// FitClassifier fits binary log-loss boosting with Newton leaf values.
// Labels must be 0 or 1.
func (gb GradientBoosting) FitClassifier(X [][]float64, y []float64) (*ClassifierModel, error) {
	if _, err := validate(X, y); err != nil {
		return nil, err
	}
	n := len(y)
	pos := 0.0
	for i, v := range y {
		if v != 0 && v != 1 {
			return nil, fmt.Errorf("learn: label %d is %g, want 0 or 1", i, v)
		}
		pos += v
	}
	if pos == 0 || pos == float64(n) {
		return nil, ErrSingleClass
	}

	nStages, lr := gb.stages()
	data := binFeatures(X, gb.MaxBins)
	prior := pos / float64(n)
	model := &ClassifierModel{BoostedModel{Init: math.Log(prior / (1 - prior)), LearningRate: lr}}

	raw := make([]float64, n)
	for i := range raw {
		raw[i] = model.Init
	}

	idx := allIndexes(n)
	stats := gradStats{g: make([]float64, n), h: make([]float64, n), c: ones(n)}
	for s := 0; s < nStages; s++ {
		for i := range y {
			p := sigmoid(raw[i])
			stats.g[i] = p - y[i]
			stats.h[i] = math.Max(p*(1-p), 1e-16)
		}
		tree := buildTree(data, idx, stats, gb.params())
		model.Trees = append(model.Trees, tree)
		for i := range raw {
			raw[i] += lr * tree.Predict(X[i])
		}
	}
	return model, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func allIndexes(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}
