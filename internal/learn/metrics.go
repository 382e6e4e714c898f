package learn

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// MAPECap bounds the mean absolute percentage error for display.
const MAPECap = 999.9

// MSE returns the mean squared error.
func MSE(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	sum := 0.0
	for i := range actual {
		d := actual[i] - predicted[i]
		sum += d * d
	}
	return sum / float64(len(actual))
}

// MAE returns the mean absolute error.
func MAE(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	sum := 0.0
	for i := range actual {
		sum += math.Abs(actual[i] - predicted[i])
	}
	return sum / float64(len(actual))
}

// R2 returns the coefficient of determination. A constant target scores 1
// when predicted exactly and 0 otherwise.
func R2(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	mean := stat.Mean(actual, nil)
	var ssRes, ssTot float64
	for i := range actual {
		d := actual[i] - predicted[i]
		ssRes += d * d
		m := actual[i] - mean
		ssTot += m * m
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

// MAPE returns the mean absolute percentage error. Zero actuals divide by one
// instead of zero, non-finite terms are dropped, and the result is capped at
// MAPECap (which is also returned when no term survives).
func MAPE(actual, predicted []float64) float64 {
	sum, n := 0.0, 0
	for i := range actual {
		den := actual[i]
		if den == 0 {
			den = 1
		}
		term := math.Abs((actual[i] - predicted[i]) / den)
		if math.IsNaN(term) || math.IsInf(term, 0) {
			continue
		}
		sum += term
		n++
	}
	if n == 0 {
		return MAPECap
	}
	return math.Min(sum/float64(n)*100, MAPECap)
}

// Accuracy returns the fraction of predicted classes equal to the labels.
func Accuracy(labels []float64, classes []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	hits := 0
	for i, l := range labels {
		if int(l) == classes[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(labels))
}

var ErrUndefinedROC = errors.New("learn: ROC needs both classes present")

// ROC returns the false and true positive rates over all score cutoffs, in
// ascending false positive order.
func ROC(scores, labels []float64) (fpr, tpr []float64, err error) {
	y := append([]float64(nil), scores...)
	classes := make([]bool, len(labels))
	pos := 0
	for i, l := range labels {
		classes[i] = l == 1
		if classes[i] {
			pos++
		}
	}
	if pos == 0 || pos == len(labels) {
		return nil, nil, ErrUndefinedROC
	}
	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ = stat.ROC(nil, y, classes, nil)
	return fpr, tpr, nil
}

// AUC returns the area under the ROC curve.
func AUC(scores, labels []float64) (float64, error) {
	fpr, tpr, err := ROC(scores, labels)
	if err != nil {
		return 0, err
	}
	return integrate.Trapezoidal(fpr, tpr), nil
}

// CalibrationBin is one non-empty reliability bin.
type CalibrationBin struct {
	Predicted float64 `json:"predicted"`
	Observed  float64 `json:"observed"`
	Count     int     `json:"count"`
}

// Calibration groups probabilities into nBins uniform bins over [0, 1] and
// returns mean predicted probability against observed positive rate for each
// non-empty bin. A probability on a bin edge belongs to the lower bin.
func Calibration(probs, labels []float64, nBins int) []CalibrationBin {
	if nBins <= 0 {
		nBins = 10
	}
	sumP := make([]float64, nBins)
	sumY := make([]float64, nBins)
	count := make([]int, nBins)
	for i, p := range probs {
		b := int(math.Ceil(p*float64(nBins))) - 1
		b = min(max(b, 0), nBins-1)
		sumP[b] += p
		sumY[b] += labels[i]
		count[b]++
	}

	var out []CalibrationBin
	for b := range count {
		if count[b] == 0 {
			continue
		}
		n := float64(count[b])
		out = append(out, CalibrationBin{Predicted: sumP[b] / n, Observed: sumY[b] / n, Count: count[b]})
	}
	return out
}
