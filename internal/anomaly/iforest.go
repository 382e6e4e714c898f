package anomaly

import (
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/lox/solixa/internal/learn"
)

const eulerGamma = 0.5772156649015329

// ForestParams configures an isolation forest.
type ForestParams struct {
	NEstimators int
	MaxSamples  int
	Seed        uint64
}

// DefaultForestParams mirrors the production configuration: 200 trees, up to
// 256 samples per tree, seed 42.
var DefaultForestParams = ForestParams{NEstimators: 200, MaxSamples: 256, Seed: 42}

type iNode struct {
	feature   int
	threshold float64
	left      int
	right     int
	size      int
}

func (n iNode) leaf() bool { return n.left < 0 }

type iTree struct {
	nodes []iNode
}

// Forest is a fitted isolation forest. Scores follow the usual convention:
// more negative means more anomalous.
type Forest struct {
	trees  []iTree
	psi    int
	offset float64
}

// pathNorm returns the average path length of an unsuccessful search in a
// binary search tree of n points.
func pathNorm(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		f := float64(n)
		return 2*(math.Log(f-1)+eulerGamma) - 2*(f-1)/f
	}
}

// FitForest grows the trees on X and sets the decision offset at the
// contamination percentile of the training scores.
func FitForest(X [][]float64, contamination float64, p ForestParams) (*Forest, error) {
	n := len(X)
	if n == 0 {
		return nil, ErrNumerical
	}
	if p.NEstimators <= 0 {
		p.NEstimators = DefaultForestParams.NEstimators
	}
	psi := p.MaxSamples
	if psi <= 0 || psi > n {
		psi = n
	}
	limit := int(math.Ceil(math.Log2(float64(max(psi, 2)))))

	trees := make([]iTree, p.NEstimators)
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for t := range trees {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(p.Seed, uint64(t)))
			sample := rng.Perm(n)[:psi]
			tree := iTree{}
			tree.grow(X, sample, 0, limit, rng)
			trees[t] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	f := &Forest{trees: trees, psi: psi}
	scores := f.ScoreAll(X)
	f.offset = learn.Percentile(scores, 100*contamination)
	return f, nil
}

// grow appends the subtree for idx and returns its node index.
func (t *iTree) grow(X [][]float64, idx []int, depth, limit int, rng *rand.Rand) int {
	pos := len(t.nodes)
	t.nodes = append(t.nodes, iNode{left: -1, right: -1, size: len(idx)})
	if depth >= limit || len(idx) <= 1 {
		return pos
	}

	width := len(X[idx[0]])
	lo := make([]float64, width)
	hi := make([]float64, width)
	for f := 0; f < width; f++ {
		lo[f], hi[f] = math.Inf(1), math.Inf(-1)
		for _, i := range idx {
			lo[f] = math.Min(lo[f], X[i][f])
			hi[f] = math.Max(hi[f], X[i][f])
		}
	}
	var usable []int
	for f := 0; f < width; f++ {
		if hi[f] > lo[f] {
			usable = append(usable, f)
		}
	}
	if len(usable) == 0 {
		return pos
	}

	feature := usable[rng.IntN(len(usable))]
	threshold := lo[feature] + rng.Float64()*(hi[feature]-lo[feature])
	if threshold >= hi[feature] {
		threshold = lo[feature]
	}

	var left, right []int
	for _, i := range idx {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := t.grow(X, left, depth+1, limit, rng)
	r := t.grow(X, right, depth+1, limit, rng)
	t.nodes[pos].feature = feature
	t.nodes[pos].threshold = threshold
	t.nodes[pos].left = l
	t.nodes[pos].right = r
	return pos
}

func (t *iTree) pathLength(x []float64) float64 {
	i, depth := 0, 0
	for !t.nodes[i].leaf() {
		n := t.nodes[i]
		if x[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
		depth++
	}
	return float64(depth) + pathNorm(t.nodes[i].size)
}

// Score returns the anomaly score of x, in [-1, 0).
func (f *Forest) Score(x []float64) float64 {
	sum := 0.0
	for i := range f.trees {
		sum += f.trees[i].pathLength(x)
	}
	mean := sum / float64(len(f.trees))
	norm := pathNorm(f.psi)
	if norm == 0 {
		return -1
	}
	return -math.Pow(2, -mean/norm)
}

// ScoreAll scores every row of X.
func (f *Forest) ScoreAll(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		out[i] = f.Score(x)
	}
	return out
}

// IsAnomaly reports whether score falls below the fitted threshold.
func (f *Forest) IsAnomaly(score float64) bool { return score < f.offset }
