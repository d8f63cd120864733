package explain

import (
	"errors"
	"math/rand"

	"edurisk/internal/features"
	"edurisk/internal/ml"
)

// Sampling budgets for the model-agnostic explainer. Both are hard caps:
// explanation latency stays bounded regardless of configuration.
const (
	MaxBackgroundRows = 50
	MaxKernelSamples  = 50
)

// KernelExplainer approximates SHAP values by sampling feature
// coalitions against a background dataset. It only needs PredictProba,
// so it serves the neural network and the voting ensemble, where exact
// path attribution is unavailable.
type KernelExplainer struct {
	clf        ml.Classifier
	background [][]float64
	samples    int
	seed       int64
	topK       int

	baseline float64
}

// NewKernelExplainer builds the explainer and precomputes the baseline
// (mean model output over the background sample). The background is
// capped at MaxBackgroundRows.
func NewKernelExplainer(clf ml.Classifier, background [][]float64, samples int, seed int64, topK int) (*KernelExplainer, error) {
	if len(background) == 0 {
		return nil, errors.New("explain: background data is empty")
	}
	if len(background) > MaxBackgroundRows {
		background = background[:MaxBackgroundRows]
	}
	if samples <= 0 || samples > MaxKernelSamples {
		samples = MaxKernelSamples
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	var sum float64
	for _, row := range background {
		p, err := clf.PredictProba(row)
		if err != nil {
			return nil, err
		}
		sum += p[1]
	}

	return &KernelExplainer{
		clf:        clf,
		background: background,
		samples:    samples,
		seed:       seed,
		topK:       topK,
		baseline:   sum / float64(len(background)),
	}, nil
}

// Explain estimates each feature's SHAP value by sampling coalitions:
// for every sample a random background row and a random subset of the
// other features are mixed with the query row, and the feature's
// marginal effect is the model delta between including and excluding it.
// The raw estimates are then shifted so they sum exactly to
// prediction - baseline. Deterministic per seed.
func (e *KernelExplainer) Explain(row []float64) (*Explanation, error) {
	if len(row) != features.Count {
		return nil, features.DimensionError(len(row))
	}

	p, err := e.clf.PredictProba(row)
	if err != nil {
		return nil, err
	}
	prediction := p[1]

	rng := rand.New(rand.NewSource(e.seed))
	contrib := make([]float64, features.Count)
	mixed := make([]float64, features.Count)

	for j := 0; j < features.Count; j++ {
		var total float64
		for s := 0; s < e.samples; s++ {
			bg := e.background[rng.Intn(len(e.background))]

			for i := range mixed {
				if i == j || rng.Intn(2) == 0 {
					mixed[i] = row[i]
				} else {
					mixed[i] = bg[i]
				}
			}

			with, err := e.clf.PredictProba(mixed)
			if err != nil {
				return nil, err
			}

			mixed[j] = bg[j]
			without, err := e.clf.PredictProba(mixed)
			if err != nil {
				return nil, err
			}

			total += with[1] - without[1]
		}
		contrib[j] = total / float64(e.samples)
	}

	// Additivity correction: distribute the residual evenly so the
	// attributions reconstruct the prediction.
	var sum float64
	for _, c := range contrib {
		sum += c
	}
	residual := (prediction - e.baseline - sum) / float64(features.Count)
	for i := range contrib {
		contrib[i] += residual
	}

	return &Explanation{
		Method:     MethodKernelSHAP,
		Baseline:   e.baseline,
		Prediction: prediction,
		Top:        topAttributions(row, contrib, e.topK),
	}, nil
}
