package explain

import (
	"sync"

	"github.com/rs/zerolog/log"

	"edurisk/internal/dataset"
	"edurisk/internal/ml"
)

// Config tunes the engine. Zero values fall back to the package
// defaults.
type Config struct {
	BackgroundPath string
	KernelSamples  int
	Seed           int64
	TopK           int
}

// Engine picks and caches the explainers for one loaded model. The
// primary method is decided by the model family: tree ensembles get
// exact path attribution, everything else the sampling explainer. The
// surrogate is always the LIME-style local fit. Explainers are built on
// first use behind a sync guard; a construction failure is remembered
// and surfaces as an error on every call, never as a panic or a block.
type Engine struct {
	clf ml.Classifier
	cfg Config

	primaryOnce sync.Once
	primary     Explainer
	primaryErr  error

	surrogateOnce sync.Once
	surrogate     Explainer
	surrogateErr  error
}

// NewEngine binds an engine to a loaded classifier. Construction is
// deferred: a missing background file only matters if a non-tree model
// actually needs it.
func NewEngine(clf ml.Classifier, cfg Config) *Engine {
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &Engine{clf: clf, cfg: cfg}
}

// Primary explains a prediction with the family-appropriate method.
func (e *Engine) Primary(row []float64) (*Explanation, error) {
	e.primaryOnce.Do(e.buildPrimary)
	if e.primaryErr != nil {
		return nil, e.primaryErr
	}
	return e.primary.Explain(row)
}

// Surrogate explains a prediction with the local linear fit.
func (e *Engine) Surrogate(row []float64) (*Explanation, error) {
	e.surrogateOnce.Do(e.buildSurrogate)
	if e.surrogateErr != nil {
		return nil, e.surrogateErr
	}
	return e.surrogate.Explain(row)
}

func (e *Engine) buildPrimary() {
	if cm, ok := e.clf.(ml.ContributionModel); ok && e.clf.Family() == ml.FamilyTreeEnsemble {
		e.primary = NewTreeExplainer(cm, e.cfg.TopK)
		log.Debug().Str("method", MethodTreePath).Msg("primary explainer ready")
		return
	}

	background, err := dataset.ReadBackground(e.cfg.BackgroundPath)
	if err != nil {
		e.primaryErr = err
		log.Warn().Err(err).Msg("kernel explainer unavailable")
		return
	}

	e.primary, e.primaryErr = NewKernelExplainer(e.clf, background, e.cfg.KernelSamples, e.cfg.Seed, e.cfg.TopK)
	if e.primaryErr != nil {
		log.Warn().Err(e.primaryErr).Msg("kernel explainer unavailable")
		return
	}
	log.Debug().Str("method", MethodKernelSHAP).Int("background", len(background)).Msg("primary explainer ready")
}

func (e *Engine) buildSurrogate() {
	background, err := dataset.ReadBackground(e.cfg.BackgroundPath)
	if err != nil {
		e.surrogateErr = err
		log.Warn().Err(err).Msg("surrogate explainer unavailable")
		return
	}

	e.surrogate, e.surrogateErr = NewSurrogateExplainer(e.clf, background, e.cfg.Seed, e.cfg.TopK)
	if e.surrogateErr != nil {
		log.Warn().Err(e.surrogateErr).Msg("surrogate explainer unavailable")
	}
}
