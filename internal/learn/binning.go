package learn

import (
	"sort"
)

// DefaultMaxBins bounds the candidate split points per feature. Features with
// fewer distinct values are split exactly at midpoints.
const DefaultMaxBins = 255

// binnedData holds a column-major bin index per sample and the split
// thresholds that separate consecutive bins.
type binnedData struct {
	n          int
	bins       [][]uint16  // [feature][sample]
	thresholds [][]float64 // [feature][bin]; sample goes left of split k iff bin <= k
}

func binFeatures(X [][]float64, maxBins int) *binnedData {
	if maxBins <= 1 || maxBins > 65535 {
		maxBins = DefaultMaxBins
	}
	n, width := len(X), len(X[0])
	bd := &binnedData{
		n:          n,
		bins:       make([][]uint16, width),
		thresholds: make([][]float64, width),
	}

	col := make([]float64, n)
	for f := 0; f < width; f++ {
		for i := range X {
			col[i] = X[i][f]
		}
		th := thresholdsFor(col, maxBins)
		bd.thresholds[f] = th

		b := make([]uint16, n)
		for i, v := range col {
			b[i] = uint16(sort.SearchFloat64s(th, v))
		}
		bd.bins[f] = b
	}
	return bd
}

// thresholdsFor returns ascending split thresholds for one feature column.
func thresholdsFor(col []float64, maxBins int) []float64 {
	sorted := append([]float64(nil), col...)
	sort.Float64s(sorted)

	uniq := sorted[:0:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			uniq = append(uniq, v)
		}
	}
	if len(uniq) <= 1 {
		return nil
	}

	if len(uniq) <= maxBins {
		th := make([]float64, len(uniq)-1)
		for i := range th {
			th[i] = uniq[i] + (uniq[i+1]-uniq[i])/2
		}
		return th
	}

	// Quantile cut points over the sorted sample, deduplicated.
	th := make([]float64, 0, maxBins-1)
	for k := 1; k < maxBins; k++ {
		pos := k * len(sorted) / maxBins
		lo, hi := sorted[pos-1], sorted[pos]
		if lo == hi {
			continue
		}
		cut := lo + (hi-lo)/2
		if len(th) == 0 || cut > th[len(th)-1] {
			th = append(th, cut)
		}
	}
	return th
}
