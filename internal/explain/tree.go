package explain

import (
	"edurisk/internal/features"
	"edurisk/internal/ml"
)

// TreeExplainer attributes a tree-ensemble prediction exactly, by
// crediting each split on the decision path with the change in node
// expectation. Deterministic and cheap: one tree walk per tree, no
// background data and no sampling.
type TreeExplainer struct {
	model ml.ContributionModel
	topK  int
}

// NewTreeExplainer wraps a model that exposes path contributions.
func NewTreeExplainer(m ml.ContributionModel, topK int) *TreeExplainer {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &TreeExplainer{model: m, topK: topK}
}

// Explain decomposes the prediction along the model's decision paths.
// Baseline plus the full contribution set recovers the model output.
func (e *TreeExplainer) Explain(row []float64) (*Explanation, error) {
	if len(row) != features.Count {
		return nil, features.DimensionError(len(row))
	}

	bias, contrib, err := e.model.Contributions(row)
	if err != nil {
		return nil, err
	}

	prediction := bias
	for _, c := range contrib {
		prediction += c
	}

	return &Explanation{
		Method:     MethodTreePath,
		Baseline:   bias,
		Prediction: prediction,
		Top:        topAttributions(row, contrib, e.topK),
	}, nil
}
