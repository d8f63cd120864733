// Package ml implements the dropout-risk models: training, evaluation,
// persistence and inference. All classifiers are pure Go and share one
// probability interface so the predictor never needs to know which
// algorithm is behind the current model.
package ml

import "fmt"

// Family identifies the broad model type. It is decided once, when an
// artifact is loaded, and binds the explanation strategy: tree ensembles
// get exact path attribution, neural and voting models go through the
// model-agnostic explainer.
type Family string

const (
	FamilyTreeEnsemble Family = "tree_ensemble"
	FamilyNeural       Family = "neural"
	FamilyVoting       Family = "voting"
)

// Classifier is a trained binary classifier. PredictProba returns
// [P(class 0), P(class 1)] for a feature row in canonical contract order.
// Implementations are read-only after training and safe for concurrent
// inference.
type Classifier interface {
	PredictProba(row []float64) ([2]float64, error)
	Family() Family
}

// ContributionModel is implemented by classifiers that can attribute a
// prediction to individual features directly from their own structure.
// Contributions returns the baseline (expected value over the training
// distribution) and one signed contribution per feature; baseline plus the
// sum of contributions recovers the model output for the row.
type ContributionModel interface {
	Contributions(row []float64) (bias float64, contrib []float64, err error)
}

// Candidate algorithm names, used for artifact files and the comparison
// report. They mirror the registry layout: one serialized file per name
// plus current.json for the selected model.
const (
	NameRandomForest     = "random_forest"
	NameGradientBoosting = "gradient_boosting"
	NameNeuralNetwork    = "neural_network"
	NameEnsemble         = "ensemble"
)

func dimErr(got, want int) error {
	return fmt.Errorf("ml: feature row has %d values, want %d", got, want)
}
