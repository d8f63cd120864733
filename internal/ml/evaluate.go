package ml

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

// EvalMetrics are the holdout metrics reported for each candidate.
type EvalMetrics struct {
	Accuracy        float64   `json:"accuracy"`
	AUC             float64   `json:"auc"`
	Precision       float64   `json:"precision"`
	Recall          float64   `json:"recall"`
	ConfusionMatrix [2][2]int `json:"confusion_matrix"` // [actual][predicted]
}

// Evaluate scores a classifier on a labeled holdout set. Hard predictions
// use the 0.5 boundary; precision and recall are class-weighted.
func Evaluate(clf Classifier, x [][]float64, y []int) (EvalMetrics, error) {
	if len(x) == 0 || len(x) != len(y) {
		return EvalMetrics{}, errors.New("ml: empty or mismatched evaluation data")
	}

	scores := make([]float64, len(x))
	var m EvalMetrics
	correct := 0
	for i, row := range x {
		p, err := clf.PredictProba(row)
		if err != nil {
			return EvalMetrics{}, err
		}
		scores[i] = p[1]
		pred := 0
		if p[1] >= 0.5 {
			pred = 1
		}
		m.ConfusionMatrix[y[i]][pred]++
		if pred == y[i] {
			correct++
		}
	}

	m.Accuracy = float64(correct) / float64(len(y))
	m.AUC = rocAUC(scores, y)
	m.Precision, m.Recall = weightedPrecisionRecall(m.ConfusionMatrix, len(y))
	return m, nil
}

// rocAUC computes the area under the ROC curve via the Mann-Whitney
// statistic with average ranks for ties. Returns 0.5 when either class
// is absent.
func rocAUC(scores []float64, y []int) float64 {
	pos := 0
	for _, c := range y {
		pos += c
	}
	neg := len(y) - pos
	if pos == 0 || neg == 0 {
		return 0.5
	}

	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	ranks := make([]float64, len(scores))
	for i := 0; i < len(idx); {
		j := i
		for j < len(idx) && scores[idx[j]] == scores[idx[i]] {
			j++
		}
		avg := float64(i+j+1) / 2 // ranks are 1-based
		for k := i; k < j; k++ {
			ranks[idx[k]] = avg
		}
		i = j
	}

	var rankSum float64
	for i, c := range y {
		if c == 1 {
			rankSum += ranks[i]
		}
	}
	return (rankSum - float64(pos)*float64(pos+1)/2) / (float64(pos) * float64(neg))
}

func weightedPrecisionRecall(cm [2][2]int, n int) (precision, recall float64) {
	for class := 0; class < 2; class++ {
		tp := float64(cm[class][class])
		predicted := float64(cm[0][class] + cm[1][class])
		actual := float64(cm[class][0] + cm[class][1])

		var p, r float64
		if predicted > 0 {
			p = tp / predicted
		}
		if actual > 0 {
			r = tp / actual
		}
		weight := actual / float64(n)
		precision += weight * p
		recall += weight * r
	}
	return precision, recall
}

// CrossValidate runs k-fold cross-validation with a caller-supplied
// training function and returns the mean and standard deviation of the
// per-fold accuracy.
func CrossValidate(trainFn func(x [][]float64, y []int) (Classifier, error), x [][]float64, y []int, k int, seed int64) (mean, std float64, err error) {
	if k < 2 || len(x) < k {
		return 0, 0, errors.New("ml: not enough data for cross-validation")
	}

	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(len(x))

	accs := make([]float64, 0, k)
	foldSize := len(x) / k

	for fold := 0; fold < k; fold++ {
		lo := fold * foldSize
		hi := lo + foldSize
		if fold == k-1 {
			hi = len(x)
		}

		var trainX, testX [][]float64
		var trainY, testY []int
		for i, p := range perm {
			if i >= lo && i < hi {
				testX = append(testX, x[p])
				testY = append(testY, y[p])
			} else {
				trainX = append(trainX, x[p])
				trainY = append(trainY, y[p])
			}
		}

		clf, ferr := trainFn(trainX, trainY)
		if ferr != nil {
			return 0, 0, ferr
		}
		metrics, ferr := Evaluate(clf, testX, testY)
		if ferr != nil {
			return 0, 0, ferr
		}
		accs = append(accs, metrics.Accuracy)
	}

	for _, a := range accs {
		mean += a
	}
	mean /= float64(len(accs))
	for _, a := range accs {
		std += (a - mean) * (a - mean)
	}
	std = math.Sqrt(std / float64(len(accs)))
	return mean, std, nil
}
