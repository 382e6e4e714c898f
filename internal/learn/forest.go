package learn

import (
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// RandomForest averages regression trees, each fitted to a bootstrap sample
// of the training rows. Every tree draws from its own seeded stream so the
// result does not depend on scheduling.
type RandomForest struct {
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxBins         int
	Seed            uint64
}

// ForestModel is a fitted random forest.
type ForestModel struct {
	Trees []*Tree `json:"trees"`
}

// Predict returns the mean tree output.
func (m *ForestModel) Predict(x []float64) float64 {
	if len(m.Trees) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range m.Trees {
		sum += t.Predict(x)
	}
	return sum / float64(len(m.Trees))
}

// Fit implements Trainer.
func (rf RandomForest) Fit(X [][]float64, y []float64) (Regressor, error) {
	if _, err := validate(X, y); err != nil {
		return nil, err
	}
	nTrees := rf.NEstimators
	if nTrees <= 0 {
		nTrees = 100
	}
	n := len(y)
	data := binFeatures(X, rf.MaxBins)
	params := treeParams{
		maxDepth:        rf.MaxDepth,
		minSamplesSplit: rf.MinSamplesSplit,
		minSamplesLeaf:  rf.MinSamplesLeaf,
	}

	trees := make([]*Tree, nTrees)
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for t := 0; t < nTrees; t++ {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(rf.Seed, uint64(t)))
			w := make([]float64, n)
			for i := 0; i < n; i++ {
				w[rng.IntN(n)]++
			}

			stats := gradStats{g: make([]float64, n), h: w, c: w}
			idx := make([]int, 0, n)
			for i, wi := range w {
				if wi > 0 {
					stats.g[i] = -y[i] * wi
					idx = append(idx, i)
				}
			}
			trees[t] = buildTree(data, idx, stats, params)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &ForestModel{Trees: trees}, nil
}
