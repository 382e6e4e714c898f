package forecast

import (
	"errors"
	"fmt"
	"sort"

	"github.com/lox/solixa/internal/learn"
)

const (
	ModelLinear           = "linear_regression"
	ModelGradientBoosting = "gradient_boosting"
	ModelRandomForest     = "random_forest"

	DefaultModel = ModelGradientBoosting
)

var ErrUnknownModel = errors.New("unknown model type")

// recipe describes how one model tag is trained: the trainer and the feature
// columns it sees (nil means all).
type recipe struct {
	trainer learn.Trainer
	columns []int
}

var registry = map[string]recipe{
	ModelLinear: {
		trainer: learn.Linear{},
		columns: []int{0},
	},
	ModelGradientBoosting: {
		trainer: learn.GradientBoosting{
			NEstimators:     100,
			LearningRate:    0.1,
			MaxDepth:        5,
			MinSamplesSplit: 5,
			MinSamplesLeaf:  2,
		},
	},
	ModelRandomForest: {
		trainer: learn.RandomForest{
			NEstimators:     100,
			MaxDepth:        10,
			MinSamplesSplit: 5,
			MinSamplesLeaf:  2,
			Seed:            42,
		},
	},
}

// Models returns the registered model tags, sorted.
func Models() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func lookup(modelType string) (string, recipe, error) {
	if modelType == "" {
		modelType = DefaultModel
	}
	s, ok := registry[modelType]
	if !ok {
		return modelType, recipe{}, fmt.Errorf("%w: %q", ErrUnknownModel, modelType)
	}
	return modelType, s, nil
}
