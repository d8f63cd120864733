package explain

import (
	"errors"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"edurisk/internal/features"
	"edurisk/internal/ml"
)

// Surrogate sampling defaults. The perturbation cloud is local: feature
// noise is scaled to the background spread and samples are weighted by
// proximity to the query point.
const (
	surrogateSamples = 200
	kernelWidth      = 0.75
)

// SurrogateExplainer fits a weighted linear model to the classifier's
// behavior in a small neighborhood of the query point. The linear
// coefficients are the attributions. It is a second, independent reading
// of the same prediction and is never merged with the primary method.
type SurrogateExplainer struct {
	clf   ml.Classifier
	scale []float64
	seed  int64
	topK  int
}

// NewSurrogateExplainer derives per-feature perturbation scales from the
// background sample's standard deviation.
func NewSurrogateExplainer(clf ml.Classifier, background [][]float64, seed int64, topK int) (*SurrogateExplainer, error) {
	if len(background) == 0 {
		return nil, errors.New("explain: background data is empty")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	scale := make([]float64, features.Count)
	for j := 0; j < features.Count; j++ {
		var sum float64
		for _, row := range background {
			sum += row[j]
		}
		mean := sum / float64(len(background))

		var sq float64
		for _, row := range background {
			d := row[j] - mean
			sq += d * d
		}
		scale[j] = math.Sqrt(sq / float64(len(background)))
		if scale[j] < 1e-9 {
			scale[j] = 1
		}
	}

	return &SurrogateExplainer{clf: clf, scale: scale, seed: seed, topK: topK}, nil
}

// Explain perturbs the query point with Gaussian noise, scores the
// perturbations, and solves a proximity-weighted least squares fit
// around the point. Coefficients are scaled back to one background
// standard deviation per feature so they are comparable across features.
func (e *SurrogateExplainer) Explain(row []float64) (*Explanation, error) {
	if len(row) != features.Count {
		return nil, features.DimensionError(len(row))
	}

	rng := rand.New(rand.NewSource(e.seed))
	d := features.Count

	// Design matrix: intercept + standardized offsets, each sample row
	// pre-multiplied by sqrt(weight) so plain least squares solves the
	// weighted problem.
	a := mat.NewDense(surrogateSamples, d+1, nil)
	b := mat.NewVecDense(surrogateSamples, nil)
	perturbed := make([]float64, d)

	for s := 0; s < surrogateSamples; s++ {
		var dist2 float64
		for j := 0; j < d; j++ {
			offset := rng.NormFloat64()
			perturbed[j] = row[j] + offset*e.scale[j]
			dist2 += offset * offset
		}

		p, err := e.clf.PredictProba(perturbed)
		if err != nil {
			return nil, err
		}

		w := math.Sqrt(math.Exp(-dist2 / (2 * kernelWidth * kernelWidth * float64(d))))
		a.Set(s, 0, w)
		for j := 0; j < d; j++ {
			a.Set(s, j+1, w*(perturbed[j]-row[j])/e.scale[j])
		}
		b.SetVec(s, w*p[1])
	}

	var coef mat.VecDense
	if err := coef.SolveVec(a, b); err != nil {
		return nil, errors.New("explain: surrogate fit is singular")
	}

	contrib := make([]float64, d)
	for j := 0; j < d; j++ {
		contrib[j] = coef.AtVec(j + 1)
	}

	p, err := e.clf.PredictProba(row)
	if err != nil {
		return nil, err
	}

	ex := &Explanation{
		Method:     MethodSurrogate,
		Baseline:   coef.AtVec(0),
		Prediction: p[1],
		Top:        topAttributions(row, contrib, e.topK),
	}
	for i := range ex.Top {
		ex.Top[i].Description = describe(ex.Top[i].Feature, ex.Top[i].Attribution)
	}
	return ex, nil
}
