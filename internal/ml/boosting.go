package ml

import (
	"errors"
	"math"
	"math/rand"
)

// GradientBoostingParams are the boosted-ensemble hyperparameters:
// 100 shallow trees at learning rate 0.1, seed 42.
type GradientBoostingParams struct {
	Rounds          int     `json:"rounds" yaml:"rounds"`
	LearningRate    float64 `json:"learning_rate" yaml:"learningRate"`
	MaxDepth        int     `json:"max_depth" yaml:"maxDepth"`
	MinSamplesSplit int     `json:"min_samples_split" yaml:"minSamplesSplit"`
	MinSamplesLeaf  int     `json:"min_samples_leaf" yaml:"minSamplesLeaf"`
	Subsample       float64 `json:"subsample" yaml:"subsample"`
	Seed            int64   `json:"seed" yaml:"seed"`
}

// DefaultGradientBoostingParams returns the production defaults.
func DefaultGradientBoostingParams() GradientBoostingParams {
	return GradientBoostingParams{
		Rounds:          100,
		LearningRate:    0.1,
		MaxDepth:        5,
		MinSamplesSplit: 5,
		MinSamplesLeaf:  2,
		Subsample:       1.0,
		Seed:            42,
	}
}

// GradientBoosting is binary logistic gradient boosting: regression trees
// fit to the negative gradient of the log loss, with Newton leaf steps.
// The raw model output is a log-odds margin; PredictProba applies the
// sigmoid.
type GradientBoosting struct {
	Params   GradientBoostingParams `json:"params"`
	BasePred float64                `json:"base_prediction"` // initial log-odds
	Trees    []*Tree                `json:"trees"`
	NumFea   int                    `json:"num_features"`
}

// TrainGradientBoosting fits the boosted ensemble. Deterministic for a
// fixed seed.
func TrainGradientBoosting(x [][]float64, y []int, p GradientBoostingParams) (*GradientBoosting, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, errors.New("ml: empty or mismatched training data")
	}
	if p.Rounds <= 0 || p.LearningRate <= 0 {
		return nil, errors.New("ml: boosting needs positive rounds and learning rate")
	}

	n := len(x)
	pos := 0
	for _, c := range y {
		pos += c
	}
	if pos == 0 || pos == n {
		return nil, errors.New("ml: boosting needs both classes in the training data")
	}

	base := math.Log(float64(pos) / float64(n-pos))
	margin := make([]float64, n)
	for i := range margin {
		margin[i] = base
	}

	rng := rand.New(rand.NewSource(p.Seed))
	uniform := make([]float64, n)
	for i := range uniform {
		uniform[i] = 1
	}

	gb := &GradientBoosting{Params: p, BasePred: base, NumFea: len(x[0])}

	for round := 0; round < p.Rounds; round++ {
		// Negative gradient of the log loss: residual = y - p.
		residual := make([]float64, n)
		for i := range x {
			residual[i] = float64(y[i]) - sigmoid(margin[i])
		}

		sx, st, sw, idx := x, residual, uniform, allIndices(n)
		if p.Subsample > 0 && p.Subsample < 1 {
			sx, st, sw, idx = subsample(x, residual, uniform, p.Subsample, rng)
		}

		tree := growTree(sx, st, sw, treeParams{
			maxDepth:        p.MaxDepth,
			minSamplesSplit: p.MinSamplesSplit,
			minSamplesLeaf:  p.MinSamplesLeaf,
			regression:      true,
		}, rng)

		// Newton step per leaf: sum(residual) / sum(p*(1-p)).
		newtonizeLeaves(tree, sx, st, margin, idx)

		gb.Trees = append(gb.Trees, tree)
		for i, row := range x {
			step, err := tree.Predict(row)
			if err != nil {
				return nil, err
			}
			margin[i] += p.LearningRate * step
		}
	}

	return gb, nil
}

// newtonizeLeaves replaces each leaf's mean-residual value with the
// one-step Newton estimate for the logistic loss.
func newtonizeLeaves(t *Tree, x [][]float64, residual []float64, margin []float64, idx []int) {
	leafNum := make(map[int]float64)
	leafDen := make(map[int]float64)

	for i, row := range x {
		leaf := leafIndex(t, row)
		if leaf < 0 {
			continue
		}
		p := sigmoid(margin[idx[i]])
		leafNum[leaf] += residual[i]
		leafDen[leaf] += p * (1 - p)
	}

	for leaf, num := range leafNum {
		den := leafDen[leaf]
		if den < 1e-9 {
			den = 1e-9
		}
		t.Nodes[leaf].Value = num / den
	}
}

func leafIndex(t *Tree, row []float64) int {
	idx := 0
	for {
		node := t.Nodes[idx]
		if node.Leaf {
			return idx
		}
		if node.Feature < 0 || node.Feature >= len(row) {
			return -1
		}
		if row[node.Feature] <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
		if idx <= 0 || idx >= len(t.Nodes) {
			return -1
		}
	}
}

// PredictProba returns sigmoid(base + lr * sum(tree steps)).
func (gb *GradientBoosting) PredictProba(row []float64) ([2]float64, error) {
	margin, err := gb.Margin(row)
	if err != nil {
		return [2]float64{}, err
	}
	p1 := sigmoid(margin)
	return [2]float64{1 - p1, p1}, nil
}

// Margin returns the raw log-odds output.
func (gb *GradientBoosting) Margin(row []float64) (float64, error) {
	if len(row) != gb.NumFea {
		return 0, dimErr(len(row), gb.NumFea)
	}
	m := gb.BasePred
	for _, t := range gb.Trees {
		step, err := t.Predict(row)
		if err != nil {
			return 0, err
		}
		m += gb.Params.LearningRate * step
	}
	return m, nil
}

// Family reports the boosted ensemble as a tree ensemble.
func (gb *GradientBoosting) Family() Family { return FamilyTreeEnsemble }

// Contributions decomposes the log-odds margin along tree paths. The bias
// is the base prediction plus per-tree root expectations; contributions
// are in log-odds units.
func (gb *GradientBoosting) Contributions(row []float64) (float64, []float64, error) {
	if len(row) != gb.NumFea {
		return 0, nil, dimErr(len(row), gb.NumFea)
	}

	bias := gb.BasePred
	total := make([]float64, gb.NumFea)
	for _, t := range gb.Trees {
		b, c, err := t.Contributions(row)
		if err != nil {
			return 0, nil, err
		}
		bias += gb.Params.LearningRate * b
		for i, v := range c {
			total[i] += gb.Params.LearningRate * v
		}
	}
	return bias, total, nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func allIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func subsample(x [][]float64, t, w []float64, frac float64, rng *rand.Rand) ([][]float64, []float64, []float64, []int) {
	n := len(x)
	k := int(float64(n) * frac)
	if k < 1 {
		k = 1
	}
	perm := rng.Perm(n)[:k]

	sx := make([][]float64, k)
	st := make([]float64, k)
	sw := make([]float64, k)
	for i, p := range perm {
		sx[i] = x[p]
		st[i] = t[p]
		sw[i] = w[p]
	}
	return sx, st, sw, perm
}
