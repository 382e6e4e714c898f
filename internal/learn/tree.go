package learn

// Node is one node of a fitted tree. Samples with x[Feature] <= Threshold
// descend to Left.
type Node struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Feature   int     `json:"f,omitempty"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v,omitempty"`
}

// Tree is a fitted binary regression tree stored as a flat node list.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict walks x to its leaf.
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Depth returns the number of split levels on the deepest path.
func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.Leaf {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}

type treeParams struct {
	maxDepth        int // <= 0 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
}

// gradStats carries per-sample first and second order statistics plus a
// sample count weight. Leaves take the Newton step -G/H, which is the mean
// target for squared error with g = -y*w and h = w.
type gradStats struct {
	g, h, c []float64
}

type treeBuilder struct {
	data   *binnedData
	stats  gradStats
	params treeParams
	nodes  []Node

	histG, histH, histC []float64
}

func buildTree(data *binnedData, idx []int, stats gradStats, params treeParams) *Tree {
	if params.minSamplesSplit < 2 {
		params.minSamplesSplit = 2
	}
	if params.minSamplesLeaf < 1 {
		params.minSamplesLeaf = 1
	}
	maxBins := 1
	for _, th := range data.thresholds {
		maxBins = max(maxBins, len(th)+1)
	}
	b := &treeBuilder{
		data:   data,
		stats:  stats,
		params: params,
		histG:  make([]float64, maxBins),
		histH:  make([]float64, maxBins),
		histC:  make([]float64, maxBins),
	}
	b.grow(idx, 0)
	return &Tree{Nodes: b.nodes}
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	var G, H, C float64
	for _, i := range idx {
		G += b.stats.g[i]
		H += b.stats.h[i]
		C += b.stats.c[i]
	}

	self := len(b.nodes)
	b.nodes = append(b.nodes, Node{Leaf: true, Value: leafValue(G, H)})

	p := b.params
	if (p.maxDepth > 0 && depth >= p.maxDepth) ||
		C < float64(p.minSamplesSplit) ||
		C < 2*float64(p.minSamplesLeaf) {
		return self
	}

	feature, split, ok := b.bestSplit(idx, G, H, C)
	if !ok {
		return self
	}

	bins := b.data.bins[feature]
	var left, right []int
	for _, i := range idx {
		if int(bins[i]) <= split {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[self] = Node{
		Feature:   feature,
		Threshold: b.data.thresholds[feature][split],
		Left:      l,
		Right:     r,
	}
	return self
}

func (b *treeBuilder) bestSplit(idx []int, G, H, C float64) (int, int, bool) {
	const minGain = 1e-12
	const minHess = 1e-12

	parent := score(G, H)
	bestGain := minGain
	bestFeature, bestSplit := -1, -1
	minLeaf := float64(b.params.minSamplesLeaf)

	for f, th := range b.data.thresholds {
		nb := len(th) + 1
		if nb < 2 {
			continue
		}
		hg, hh, hc := b.histG[:nb], b.histH[:nb], b.histC[:nb]
		clear(hg)
		clear(hh)
		clear(hc)

		bins := b.data.bins[f]
		for _, i := range idx {
			k := bins[i]
			hg[k] += b.stats.g[i]
			hh[k] += b.stats.h[i]
			hc[k] += b.stats.c[i]
		}

		var gl, hl, cl float64
		for k := 0; k < nb-1; k++ {
			gl += hg[k]
			hl += hh[k]
			cl += hc[k]
			if hc[k] == 0 {
				continue
			}
			cr := C - cl
			if cl < minLeaf || cr < minLeaf {
				continue
			}
			hr := H - hl
			if hl < minHess || hr < minHess {
				continue
			}
			gain := score(gl, hl) + score(G-gl, hr) - parent
			if gain > bestGain {
				bestGain = gain
				bestFeature, bestSplit = f, k
			}
		}
	}
	return bestFeature, bestSplit, bestFeature >= 0
}

func score(g, h float64) float64 {
	if h <= 0 {
		return 0
	}
	return g * g / h
}

func leafValue(g, h float64) float64 {
	if h <= 0 {
		return 0
	}
	return -g / h
}
