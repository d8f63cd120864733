package ml

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// TrainerConfig selects which candidates a run trains and how they are
// cross-validated.
type TrainerConfig struct {
	Forest         RandomForestParams     `yaml:"forest"`
	Boosting       GradientBoostingParams `yaml:"boosting"`
	Network        MLPParams              `yaml:"network"`
	EnableNetwork  bool                   `yaml:"enableNetwork"`
	EnableEnsemble bool                   `yaml:"enableEnsemble"`
	CVFolds        int                    `yaml:"cvFolds"`
}

// DefaultTrainerConfig trains every candidate with 3-fold CV.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		Forest:         DefaultRandomForestParams(),
		Boosting:       DefaultGradientBoostingParams(),
		Network:        DefaultMLPParams(),
		EnableNetwork:  true,
		EnableEnsemble: true,
		CVFolds:        3,
	}
}

// CandidateStatus records one candidate's outcome in the comparison
// report. A failed candidate keeps its error string and never blocks the
// run.
type CandidateStatus struct {
	Name    string      `json:"name"`
	Trained bool        `json:"trained"`
	Error   string      `json:"error,omitempty"`
	Metrics EvalMetrics `json:"metrics"`
	CVMean  float64     `json:"cv_mean_accuracy"`
	CVStd   float64     `json:"cv_std_accuracy"`
}

// RunResult is the outcome of a full training run.
type RunResult struct {
	Candidates []CandidateStatus
	Best       string

	models map[string]Classifier
}

// Model returns a trained candidate by name.
func (r *RunResult) Model(name string) (Classifier, bool) {
	clf, ok := r.models[name]
	return clf, ok
}

// ErrNoCandidates reports a run in which every candidate failed.
var ErrNoCandidates = errors.New("ml: no candidate trained successfully")

// Trainer orchestrates a multi-candidate training run.
type Trainer struct {
	cfg TrainerConfig
}

func NewTrainer(cfg TrainerConfig) *Trainer {
	if cfg.CVFolds < 2 {
		cfg.CVFolds = 3
	}
	return &Trainer{cfg: cfg}
}

type candidateSpec struct {
	name    string
	train   func() (Classifier, error)
	cvTrain func(x [][]float64, y []int) (Classifier, error)
}

// Run trains every enabled candidate, evaluates each on the holdout set,
// and selects the best by accuracy (ties broken by AUC). A candidate
// failure is recorded and skipped; the run fails only when nothing
// trains.
func (t *Trainer) Run(trainX [][]float64, trainY []int, testX [][]float64, testY []int) (*RunResult, error) {
	specs := []candidateSpec{
		{
			name:  NameRandomForest,
			train: func() (Classifier, error) { return TrainRandomForest(trainX, trainY, t.cfg.Forest) },
			cvTrain: func(x [][]float64, y []int) (Classifier, error) {
				return TrainRandomForest(x, y, t.cfg.Forest)
			},
		},
		{
			name:  NameGradientBoosting,
			train: func() (Classifier, error) { return TrainGradientBoosting(trainX, trainY, t.cfg.Boosting) },
			cvTrain: func(x [][]float64, y []int) (Classifier, error) {
				return TrainGradientBoosting(x, y, t.cfg.Boosting)
			},
		},
	}
	if t.cfg.EnableNetwork {
		specs = append(specs, candidateSpec{
			name:  NameNeuralNetwork,
			train: func() (Classifier, error) { return TrainMLP(trainX, trainY, t.cfg.Network) },
			cvTrain: func(x [][]float64, y []int) (Classifier, error) {
				return TrainMLP(x, y, t.cfg.Network)
			},
		})
	}

	result := &RunResult{models: map[string]Classifier{}}

	for _, spec := range specs {
		status := t.runCandidate(spec, testX, testY, trainX, trainY, result.models)
		result.Candidates = append(result.Candidates, status)
	}

	if t.cfg.EnableEnsemble {
		result.Candidates = append(result.Candidates, t.runEnsemble(result.models, testX, testY))
	}

	best, err := selectBest(result.Candidates)
	if err != nil {
		return nil, err
	}
	result.Best = best

	log.Info().
		Str("best", best).
		Int("candidates", len(result.Candidates)).
		Msg("training run complete")

	return result, nil
}

func (t *Trainer) runCandidate(spec candidateSpec, testX [][]float64, testY []int, trainX [][]float64, trainY []int, models map[string]Classifier) CandidateStatus {
	status := CandidateStatus{Name: spec.name}
	start := time.Now()

	clf, err := spec.train()
	if err != nil {
		status.Error = err.Error()
		log.Warn().Err(err).Str("candidate", spec.name).Msg("candidate training failed")
		return status
	}

	metrics, err := Evaluate(clf, testX, testY)
	if err != nil {
		status.Error = fmt.Sprintf("evaluation: %v", err)
		log.Warn().Err(err).Str("candidate", spec.name).Msg("candidate evaluation failed")
		return status
	}

	cvMean, cvStd, err := CrossValidate(spec.cvTrain, trainX, trainY, t.cfg.CVFolds, t.cfg.Forest.Seed)
	if err != nil {
		log.Warn().Err(err).Str("candidate", spec.name).Msg("cross-validation skipped")
	}

	status.Trained = true
	status.Metrics = metrics
	status.CVMean = cvMean
	status.CVStd = cvStd
	models[spec.name] = clf

	log.Info().
		Str("candidate", spec.name).
		Float64("accuracy", metrics.Accuracy).
		Float64("auc", metrics.AUC).
		Dur("elapsed", time.Since(start)).
		Msg("candidate trained")
	return status
}

func (t *Trainer) runEnsemble(models map[string]Classifier, testX [][]float64, testY []int) CandidateStatus {
	status := CandidateStatus{Name: NameEnsemble}

	var names []string
	var members []Classifier
	for _, name := range []string{NameRandomForest, NameGradientBoosting, NameNeuralNetwork} {
		if clf, ok := models[name]; ok {
			names = append(names, name)
			members = append(members, clf)
		}
	}

	ve, err := NewVotingEnsemble(names, members)
	if err != nil {
		status.Error = err.Error()
		log.Warn().Err(err).Str("candidate", NameEnsemble).Msg("ensemble skipped")
		return status
	}

	metrics, err := Evaluate(ve, testX, testY)
	if err != nil {
		status.Error = fmt.Sprintf("evaluation: %v", err)
		return status
	}

	status.Trained = true
	status.Metrics = metrics
	models[NameEnsemble] = ve

	log.Info().
		Str("candidate", NameEnsemble).
		Strs("members", names).
		Float64("accuracy", metrics.Accuracy).
		Msg("candidate trained")
	return status
}

// selectBest picks the highest holdout accuracy, breaking ties by AUC.
func selectBest(candidates []CandidateStatus) (string, error) {
	best := ""
	bestAcc, bestAUC := -1.0, -1.0
	for _, c := range candidates {
		if !c.Trained {
			continue
		}
		if c.Metrics.Accuracy > bestAcc ||
			(c.Metrics.Accuracy == bestAcc && c.Metrics.AUC > bestAUC) {
			best = c.Name
			bestAcc = c.Metrics.Accuracy
			bestAUC = c.Metrics.AUC
		}
	}
	if best == "" {
		return "", ErrNoCandidates
	}
	return best, nil
}

// Persist writes every trained candidate artifact plus the active-model
// copy and the comparison report into dir.
func (r *RunResult) Persist(dir string) error {
	now := time.Now()

	for name, clf := range r.models {
		art, err := NewArtifact(name, clf, now)
		if err != nil {
			return err
		}
		if err := SaveArtifact(art, ArtifactPath(dir, name)); err != nil {
			return err
		}
	}

	bestClf, ok := r.models[r.Best]
	if !ok {
		return ErrNoCandidates
	}
	bestArt, err := NewArtifact(r.Best, bestClf, now)
	if err != nil {
		return err
	}
	if err := SaveArtifact(bestArt, CurrentPath(dir)); err != nil {
		return err
	}

	report := ComparisonReport{}
	for _, c := range r.Candidates {
		report[c.Name] = c
	}
	return writeReport(report, ReportPath(dir))
}
