package ml

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog/log"

	"edurisk/internal/features"
	"edurisk/internal/risk"
)

// LoadState tracks whether the predictor has a usable model. A failed
// load is permanent for the life of the predictor; a fresh predictor is
// built after retraining.
type LoadState int

const (
	StateUnloaded LoadState = iota
	StateLoaded
	StateLoadFailed
)

func (s LoadState) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateLoadFailed:
		return "load_failed"
	default:
		return "unloaded"
	}
}

// ErrModelNotLoaded reports a prediction attempt without a usable model.
var ErrModelNotLoaded = errors.New("ml: model not loaded")

// PredictionResult is a scored student.
type PredictionResult struct {
	RiskScore          float64       `json:"risk_score"`
	RiskCategory       risk.Category `json:"risk_category"`
	DropoutProbability float64       `json:"dropout_probability"`
	Confidence         float64       `json:"confidence"`
}

// Predictor serves predictions from the active model. Safe for
// concurrent use.
type Predictor struct {
	mu         sync.RWMutex
	state      LoadState
	loadErr    error
	clf        Classifier
	artifact   *Artifact
	thresholds risk.Thresholds
}

// NewPredictor loads the active model from modelDir. A missing or
// corrupt artifact leaves the predictor in the load-failed state rather
// than returning an error: the service starts and reports the condition
// per request.
func NewPredictor(modelDir string, t risk.Thresholds) *Predictor {
	p := &Predictor{thresholds: t}

	art, clf, err := LoadArtifact(CurrentPath(modelDir))
	if err != nil {
		p.state = StateLoadFailed
		p.loadErr = err
		log.Warn().Err(err).Str("dir", modelDir).Msg("model load failed, predictor degraded")
		return p
	}

	p.state = StateLoaded
	p.clf = clf
	p.artifact = art
	log.Info().
		Str("model", art.Name).
		Str("version", art.Version).
		Str("family", string(art.Family)).
		Msg("model loaded")
	return p
}

// NewPredictorFromClassifier wraps an in-memory model, used right after
// training and in tests.
func NewPredictorFromClassifier(name string, clf Classifier, t risk.Thresholds) *Predictor {
	art := &Artifact{Name: name, Family: clf.Family()}
	return &Predictor{state: StateLoaded, clf: clf, artifact: art, thresholds: t}
}

// State reports the current load state.
func (p *Predictor) State() LoadState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Model returns the loaded classifier and its artifact metadata.
func (p *Predictor) Model() (Classifier, *Artifact, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.state != StateLoaded {
		return nil, nil, p.notLoadedErr()
	}
	return p.clf, p.artifact, nil
}

// Predict validates the input against the feature contract, scores it,
// and maps the dropout probability to a 0-100 risk score and category.
// Input validation happens before the model is touched, so a contract
// violation yields the same error whether or not a model is loaded.
func (p *Predictor) Predict(v features.Vector) (*PredictionResult, error) {
	row, err := features.Row(v)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.state != StateLoaded {
		return nil, p.notLoadedErr()
	}

	proba, err := p.clf.PredictProba(row)
	if err != nil {
		return nil, err
	}

	score := math.Round(proba[1]*10000) / 100
	return &PredictionResult{
		RiskScore:          score,
		RiskCategory:       risk.Categorize(score, p.thresholds),
		DropoutProbability: proba[1],
		Confidence:         math.Max(proba[0], proba[1]),
	}, nil
}

func (p *Predictor) notLoadedErr() error {
	if p.loadErr != nil {
		return fmt.Errorf("%w: %v", ErrModelNotLoaded, p.loadErr)
	}
	return ErrModelNotLoaded
}
