// Package explain produces per-feature attributions for individual risk
// scores. Tree ensembles get exact path attribution; every other model
// family goes through a sampling-based model-agnostic explainer. A
// LIME-style local surrogate is available as an independent second
// opinion and is reported side by side, never merged with the primary
// attribution list.
package explain

import (
	"fmt"
	"math"
	"sort"

	"edurisk/internal/features"
)

// Explanation method identifiers, surfaced in API responses.
const (
	MethodTreePath   = "tree_path"
	MethodKernelSHAP = "kernel_shap"
	MethodSurrogate  = "lime_surrogate"
)

// DefaultTopK is the number of features reported per explanation.
const DefaultTopK = 3

// Attribution is one feature's share of a prediction. Value is the raw
// input value, not the scaled or perturbed one.
type Attribution struct {
	Feature     string  `json:"feature"`
	DisplayName string  `json:"display_name"`
	Value       float64 `json:"value"`
	Attribution float64 `json:"attribution"`
	Description string  `json:"description,omitempty"`
}

// Explanation is the ranked attribution list for a single prediction.
type Explanation struct {
	Method     string        `json:"method"`
	Baseline   float64       `json:"baseline"`
	Prediction float64       `json:"prediction"`
	Top        []Attribution `json:"top_features"`
}

// Explainer explains one prediction for a feature row in canonical
// contract order.
type Explainer interface {
	Explain(row []float64) (*Explanation, error)
}

// topAttributions ranks the contributions by absolute magnitude and keeps
// the k largest, attaching display names and original input values.
func topAttributions(row, contrib []float64, k int) []Attribution {
	names := features.Names()

	idx := make([]int, len(contrib))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return math.Abs(contrib[idx[a]]) > math.Abs(contrib[idx[b]])
	})

	if k <= 0 {
		k = DefaultTopK
	}
	if k > len(idx) {
		k = len(idx)
	}

	out := make([]Attribution, 0, k)
	for _, i := range idx[:k] {
		out = append(out, Attribution{
			Feature:     names[i],
			DisplayName: features.DisplayName(names[i]),
			Value:       row[i],
			Attribution: contrib[i],
		})
	}
	return out
}

// describe summarizes the local direction of a surrogate coefficient.
func describe(name string, coef float64) string {
	display := features.DisplayName(name)
	switch {
	case coef > 0:
		return fmt.Sprintf("%s is pushing the risk up for this student", display)
	case coef < 0:
		return fmt.Sprintf("%s is pulling the risk down for this student", display)
	default:
		return fmt.Sprintf("%s has no local effect on this prediction", display)
	}
}
