package ml

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

// Tree is a CART tree stored as a flat node array. It serves double duty:
// classification trees (leaf Value = class-1 probability) inside the random
// forest, and regression trees (leaf Value = boosting step) inside gradient
// boosting. Value is kept on internal nodes too so path attribution can
// read the expectation at every step of a decision path.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

// TreeNode is one node of the flattened tree. Leaf nodes have Feature -1.
type TreeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
	Leaf      bool    `json:"leaf"`
}

var errEmptyTree = errors.New("ml: tree has no nodes")

// Predict walks the tree and returns the value at the reached leaf.
func (t *Tree) Predict(row []float64) (float64, error) {
	if len(t.Nodes) == 0 {
		return 0, errEmptyTree
	}

	idx := 0
	for {
		node := t.Nodes[idx]
		if node.Leaf {
			return node.Value, nil
		}
		if node.Feature < 0 || node.Feature >= len(row) {
			return 0, dimErr(len(row), node.Feature+1)
		}
		if row[node.Feature] <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
		if idx <= 0 || idx >= len(t.Nodes) {
			return 0, errors.New("ml: corrupt tree structure")
		}
	}
}

// Contributions decomposes a single tree's prediction along the decision
// path: each split credits the change in node expectation to the feature
// split on. bias is the root expectation; bias + sum(contrib) equals the
// leaf value.
func (t *Tree) Contributions(row []float64) (float64, []float64, error) {
	if len(t.Nodes) == 0 {
		return 0, nil, errEmptyTree
	}

	contrib := make([]float64, len(row))
	idx := 0
	bias := t.Nodes[0].Value

	for {
		node := t.Nodes[idx]
		if node.Leaf {
			return bias, contrib, nil
		}
		if node.Feature < 0 || node.Feature >= len(row) {
			return 0, nil, dimErr(len(row), node.Feature+1)
		}

		next := node.Left
		if row[node.Feature] > node.Threshold {
			next = node.Right
		}
		if next <= 0 || next >= len(t.Nodes) {
			return 0, nil, errors.New("ml: corrupt tree structure")
		}

		contrib[node.Feature] += t.Nodes[next].Value - node.Value
		idx = next
	}
}

// treeParams controls CART growth.
type treeParams struct {
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // 0 = all features
	regression      bool
}

// growTree builds a CART tree. For classification, targets are 0/1 labels
// and weights carry the class weighting; leaf values are weighted class-1
// probabilities. For regression, targets holds the responses.
func growTree(x [][]float64, targets []float64, weights []float64, p treeParams, rng *rand.Rand) *Tree {
	t := &Tree{}
	t.Nodes = buildNodes(x, targets, weights, 0, p, rng)
	return t
}

func buildNodes(x [][]float64, targets, weights []float64, depth int, p treeParams, rng *rand.Rand) []TreeNode {
	value := weightedMean(targets, weights)

	leaf := func() []TreeNode {
		return []TreeNode{{Feature: -1, Left: -1, Right: -1, Value: value, Leaf: true}}
	}

	if depth >= p.maxDepth || len(x) < p.minSamplesSplit || isConstant(targets) {
		return leaf()
	}

	feature, threshold, ok := bestSplit(x, targets, weights, p, rng)
	if !ok {
		return leaf()
	}

	var lx, rx [][]float64
	var lt, rt, lw, rw []float64
	for i, row := range x {
		if row[feature] <= threshold {
			lx = append(lx, row)
			lt = append(lt, targets[i])
			lw = append(lw, weights[i])
		} else {
			rx = append(rx, row)
			rt = append(rt, targets[i])
			rw = append(rw, weights[i])
		}
	}
	if len(lx) < p.minSamplesLeaf || len(rx) < p.minSamplesLeaf {
		return leaf()
	}

	left := buildNodes(lx, lt, lw, depth+1, p, rng)
	right := buildNodes(rx, rt, rw, depth+1, p, rng)

	nodes := make([]TreeNode, 0, 1+len(left)+len(right))
	nodes = append(nodes, TreeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      1,
		Right:     1 + len(left),
		Value:     value,
	})
	// Child indices are relative to this subtree; shift them into place.
	offsetNodes(left, 1)
	offsetNodes(right, 1+len(left))
	nodes = append(nodes, left...)
	nodes = append(nodes, right...)
	return nodes
}

func offsetNodes(nodes []TreeNode, offset int) {
	for i := range nodes {
		if !nodes[i].Leaf {
			nodes[i].Left += offset
			nodes[i].Right += offset
		}
	}
}

// bestSplit scans candidate thresholds (midpoints between distinct sorted
// values) for the feature subset and picks the split with the best
// impurity reduction: weighted gini for classification, weighted variance
// for regression.
func bestSplit(x [][]float64, targets, weights []float64, p treeParams, rng *rand.Rand) (int, float64, bool) {
	nFeatures := len(x[0])
	candidates := featureSubset(nFeatures, p.maxFeatures, rng)

	bestFeature, bestThreshold := -1, 0.0
	bestScore := math.Inf(1)

	for _, f := range candidates {
		values := make([]float64, len(x))
		for i, row := range x {
			values[i] = row[f]
		}
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)

		for i := 1; i < len(sorted); i++ {
			if sorted[i] == sorted[i-1] {
				continue
			}
			threshold := (sorted[i] + sorted[i-1]) / 2

			score, ok := splitScore(values, targets, weights, threshold, p.regression)
			if ok && score < bestScore {
				bestScore = score
				bestFeature = f
				bestThreshold = threshold
			}
		}
	}

	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func splitScore(values, targets, weights []float64, threshold float64, regression bool) (float64, bool) {
	var lSum, lSq, lW, rSum, rSq, rW float64
	for i, v := range values {
		w := weights[i]
		t := targets[i]
		if v <= threshold {
			lSum += w * t
			lSq += w * t * t
			lW += w
		} else {
			rSum += w * t
			rSq += w * t * t
			rW += w
		}
	}
	if lW == 0 || rW == 0 {
		return 0, false
	}

	if regression {
		// Weighted within-node variance.
		lVar := lSq/lW - (lSum/lW)*(lSum/lW)
		rVar := rSq/rW - (rSum/rW)*(rSum/rW)
		return (lW*lVar + rW*rVar) / (lW + rW), true
	}

	// Binary gini from the weighted class-1 share.
	lp := lSum / lW
	rp := rSum / rW
	lGini := 2 * lp * (1 - lp)
	rGini := 2 * rp * (1 - rp)
	return (lW*lGini + rW*rGini) / (lW + rW), true
}

func featureSubset(n, max int, rng *rand.Rand) []int {
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	if max <= 0 || max >= n || rng == nil {
		return all
	}
	rng.Shuffle(n, func(i, j int) { all[i], all[j] = all[j], all[i] })
	subset := all[:max]
	sort.Ints(subset)
	return subset
}

func weightedMean(targets, weights []float64) float64 {
	var sum, w float64
	for i, t := range targets {
		sum += weights[i] * t
		w += weights[i]
	}
	if w == 0 {
		return 0
	}
	return sum / w
}

func isConstant(targets []float64) bool {
	if len(targets) == 0 {
		return true
	}
	for _, t := range targets[1:] {
		if t != targets[0] {
			return false
		}
	}
	return true
}
