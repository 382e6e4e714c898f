package learn

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// Fold is one train/test partition of row indexes.
type Fold struct {
	Train []int
	Test  []int
}

// KFold partitions 0..n-1 into k contiguous, unshuffled folds. The first
// n%k folds hold one extra row.
func KFold(n, k int) ([]Fold, error) {
	if k < 2 || k > n {
		return nil, fmt.Errorf("learn: cannot split %d rows into %d folds", n, k)
	}
	folds := make([]Fold, 0, k)
	start := 0
	for f := 0; f < k; f++ {
		size := n / k
		if f < n%k {
			size++
		}
		end := start + size
		var fold Fold
		for i := 0; i < n; i++ {
			if i >= start && i < end {
				fold.Test = append(fold.Test, i)
			} else {
				fold.Train = append(fold.Train, i)
			}
		}
		folds = append(folds, fold)
		start = end
	}
	return folds, nil
}

// CrossValR2 fits tr on each fold's training rows and scores R² on the
// held-out rows.
func CrossValR2(tr Trainer, X [][]float64, y []float64, k int) ([]float64, error) {
	folds, err := KFold(len(y), k)
	if err != nil {
		return nil, err
	}
	scores := make([]float64, 0, k)
	for i, f := range folds {
		xtr, ytr := Subset(X, y, f.Train)
		xte, yte := Subset(X, y, f.Test)
		m, err := tr.Fit(xtr, ytr)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", i, err)
		}
		scores = append(scores, R2(yte, PredictAll(m, xte)))
	}
	return scores, nil
}

// ChronoSplit returns the number of leading rows kept for training when the
// last ceil(testFrac*n) rows are held out.
func ChronoSplit(n int, testFrac float64) int {
	nTest := int(math.Ceil(testFrac * float64(n)))
	if nTest >= n {
		nTest = n - 1
	}
	return n - nTest
}

// StratifiedSplit holds out roughly testFrac of each label class, chosen by a
// seeded shuffle. Both index lists are returned sorted.
func StratifiedSplit(labels []float64, testFrac float64, seed uint64) (train, test []int) {
	byClass := make(map[float64][]int)
	var classes []float64
	for i, l := range labels {
		if _, ok := byClass[l]; !ok {
			classes = append(classes, l)
		}
		byClass[l] = append(byClass[l], i)
	}
	sort.Float64s(classes)

	rng := rand.New(rand.NewPCG(seed, 0))
	for _, c := range classes {
		idx := byClass[c]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		nTest := int(math.Round(testFrac * float64(len(idx))))
		if nTest >= len(idx) && len(idx) > 1 {
			nTest = len(idx) - 1
		}
		test = append(test, idx[:nTest]...)
		train = append(train, idx[nTest:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test
}
