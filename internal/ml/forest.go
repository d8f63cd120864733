package ml

import (
	"errors"
	"math"
	"math/rand"
)

// RandomForestParams mirror the hyperparameters the platform has always
// trained with: 100 bagged trees, depth 15, balanced class weights,
// sqrt-feature subsampling, seed 42.
type RandomForestParams struct {
	Trees           int   `json:"trees" yaml:"trees"`
	MaxDepth        int   `json:"max_depth" yaml:"maxDepth"`
	MinSamplesSplit int   `json:"min_samples_split" yaml:"minSamplesSplit"`
	MinSamplesLeaf  int   `json:"min_samples_leaf" yaml:"minSamplesLeaf"`
	Seed            int64 `json:"seed" yaml:"seed"`
}

// DefaultRandomForestParams returns the production defaults.
func DefaultRandomForestParams() RandomForestParams {
	return RandomForestParams{
		Trees:           100,
		MaxDepth:        15,
		MinSamplesSplit: 5,
		MinSamplesLeaf:  2,
		Seed:            42,
	}
}

// RandomForest is a bagged ensemble of classification trees. The class-1
// probability is the mean of the per-tree leaf probabilities.
type RandomForest struct {
	Params RandomForestParams `json:"params"`
	Trees  []*Tree            `json:"trees"`
	NumFea int                `json:"num_features"`
}

// TrainRandomForest fits the forest on rows in canonical feature order.
// Class weighting is "balanced": each class contributes equally regardless
// of its share of the data. Training is deterministic for a fixed seed.
func TrainRandomForest(x [][]float64, y []int, p RandomForestParams) (*RandomForest, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, errors.New("ml: empty or mismatched training data")
	}
	if p.Trees <= 0 {
		return nil, errors.New("ml: forest needs at least one tree")
	}

	nFeatures := len(x[0])
	classWeights := balancedWeights(y)
	maxFeatures := int(math.Max(1, math.Round(math.Sqrt(float64(nFeatures)))))

	rng := rand.New(rand.NewSource(p.Seed))
	trees := make([]*Tree, 0, p.Trees)

	for i := 0; i < p.Trees; i++ {
		treeRng := rand.New(rand.NewSource(rng.Int63()))

		// Bootstrap sample.
		bx := make([][]float64, len(x))
		bt := make([]float64, len(x))
		bw := make([]float64, len(x))
		for j := range x {
			k := treeRng.Intn(len(x))
			bx[j] = x[k]
			bt[j] = float64(y[k])
			bw[j] = classWeights[y[k]]
		}

		tree := growTree(bx, bt, bw, treeParams{
			maxDepth:        p.MaxDepth,
			minSamplesSplit: p.MinSamplesSplit,
			minSamplesLeaf:  p.MinSamplesLeaf,
			maxFeatures:     maxFeatures,
		}, treeRng)
		trees = append(trees, tree)
	}

	return &RandomForest{Params: p, Trees: trees, NumFea: nFeatures}, nil
}

// PredictProba averages leaf probabilities across trees.
func (rf *RandomForest) PredictProba(row []float64) ([2]float64, error) {
	if len(row) != rf.NumFea {
		return [2]float64{}, dimErr(len(row), rf.NumFea)
	}

	var sum float64
	for _, t := range rf.Trees {
		p, err := t.Predict(row)
		if err != nil {
			return [2]float64{}, err
		}
		sum += p
	}
	p1 := clampProb(sum / float64(len(rf.Trees)))
	return [2]float64{1 - p1, p1}, nil
}

// Family reports the forest as a tree ensemble, which binds it to the
// exact path-attribution explainer.
func (rf *RandomForest) Family() Family { return FamilyTreeEnsemble }

// Contributions averages per-tree path contributions, yielding an exact
// decomposition of the forest's class-1 probability.
func (rf *RandomForest) Contributions(row []float64) (float64, []float64, error) {
	if len(row) != rf.NumFea {
		return 0, nil, dimErr(len(row), rf.NumFea)
	}

	bias := 0.0
	total := make([]float64, rf.NumFea)
	for _, t := range rf.Trees {
		b, c, err := t.Contributions(row)
		if err != nil {
			return 0, nil, err
		}
		bias += b
		for i, v := range c {
			total[i] += v
		}
	}

	n := float64(len(rf.Trees))
	for i := range total {
		total[i] /= n
	}
	return bias / n, total, nil
}

// balancedWeights computes sklearn-style balanced class weights:
// n / (numClasses * count(class)).
func balancedWeights(y []int) map[int]float64 {
	counts := map[int]int{}
	for _, c := range y {
		counts[c]++
	}
	weights := make(map[int]float64, len(counts))
	for c, n := range counts {
		weights[c] = float64(len(y)) / (float64(len(counts)) * float64(n))
	}
	return weights
}

func clampProb(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
