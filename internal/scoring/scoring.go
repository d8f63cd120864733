// Package scoring composes the predictor, the explainers, persistence
// and the live feed into the single entry point the API serves. A score
// is always returned when the model can produce one; explanations and
// persistence degrade independently and never fail the request.
package scoring

import (
	"time"

	"github.com/rs/zerolog/log"

	"edurisk/internal/explain"
	"edurisk/internal/features"
	"edurisk/internal/metrics"
	"edurisk/internal/ml"
	"edurisk/internal/risk"
	"edurisk/internal/storage"
)

// ExplainerStatus reports, per method, whether the attribution list is
// real or degraded to empty.
type ExplainerStatus struct {
	Primary   string `json:"primary"`
	Surrogate string `json:"surrogate"`
}

const statusOK = "ok"

// Result is a fully scored and explained prediction.
type Result struct {
	ID                 string                `json:"id"`
	StudentID          string                `json:"student_id"`
	Timestamp          time.Time             `json:"timestamp"`
	RiskScore          float64               `json:"risk_score"`
	RiskCategory       risk.Category         `json:"risk_category"`
	DropoutProbability float64               `json:"dropout_probability"`
	Confidence         float64               `json:"confidence"`
	TopFeatures        []explain.Attribution `json:"top_features"`
	SurrogateFeatures  []explain.Attribution `json:"surrogate_features"`
	ExplainerStatus    ExplainerStatus       `json:"explainer_status"`
	ModelName          string                `json:"model_name"`
	ModelVersion       string                `json:"model_version"`
}

// Broadcaster pushes a stored prediction to live subscribers. The
// WebSocket hub implements it; tests use a capture stub.
type Broadcaster interface {
	Broadcast(storage.Record)
}

// Service scores students. Store, broadcaster and metrics are optional:
// a nil store skips persistence, a nil broadcaster skips the feed.
type Service struct {
	predictor *ml.Predictor
	engine    *explain.Engine
	store     *storage.Store
	feed      Broadcaster
	metrics   *metrics.Metrics
}

// New wires the scoring service.
func New(predictor *ml.Predictor, engine *explain.Engine, store *storage.Store, feed Broadcaster, m *metrics.Metrics) *Service {
	return &Service{predictor: predictor, engine: engine, store: store, feed: feed, metrics: m}
}

// Score validates, predicts, explains, persists and broadcasts one
// student. Prediction errors fail the call; everything downstream of
// the score degrades gracefully.
func (s *Service) Score(studentID string, v features.Vector) (*Result, error) {
	start := time.Now()

	pred, err := s.predictor.Predict(v)
	if err != nil {
		if s.metrics != nil {
			s.metrics.PredictionErrors.Inc()
		}
		return nil, err
	}

	result := &Result{
		StudentID:          studentID,
		Timestamp:          time.Now().UTC(),
		RiskScore:          pred.RiskScore,
		RiskCategory:       pred.RiskCategory,
		DropoutProbability: pred.DropoutProbability,
		Confidence:         pred.Confidence,
		TopFeatures:        []explain.Attribution{},
		SurrogateFeatures:  []explain.Attribution{},
		ExplainerStatus:    ExplainerStatus{Primary: statusOK, Surrogate: statusOK},
	}

	if _, artifact, err := s.predictor.Model(); err == nil {
		result.ModelName = artifact.Name
		result.ModelVersion = artifact.Version
	}

	// The vector passed the contract check inside Predict.
	row, _ := features.Row(v)
	s.explainInto(result, row)

	s.persistAndBroadcast(result, v)
	s.observe(result, time.Since(start))

	return result, nil
}

func (s *Service) explainInto(result *Result, row []float64) {
	if s.engine == nil {
		result.ExplainerStatus = ExplainerStatus{Primary: "disabled", Surrogate: "disabled"}
		return
	}

	if primary, err := s.engine.Primary(row); err != nil {
		result.ExplainerStatus.Primary = "degraded: " + err.Error()
		if s.metrics != nil {
			s.metrics.ExplanationFailures.Inc()
		}
		log.Warn().Err(err).Str("student", result.StudentID).Msg("primary explanation degraded")
	} else {
		result.TopFeatures = primary.Top
	}

	if surrogate, err := s.engine.Surrogate(row); err != nil {
		result.ExplainerStatus.Surrogate = "degraded: " + err.Error()
		if s.metrics != nil {
			s.metrics.ExplanationFailures.Inc()
		}
		log.Warn().Err(err).Str("student", result.StudentID).Msg("surrogate explanation degraded")
	} else {
		result.SurrogateFeatures = surrogate.Top
	}
}

func (s *Service) persistAndBroadcast(result *Result, v features.Vector) {
	if s.store == nil {
		return
	}

	record := storage.Record{
		StudentID:          result.StudentID,
		Timestamp:          result.Timestamp,
		Features:           v,
		RiskScore:          result.RiskScore,
		RiskCategory:       result.RiskCategory,
		DropoutProbability: result.DropoutProbability,
		Confidence:         result.Confidence,
		TopFeatures:        result.TopFeatures,
		ModelName:          result.ModelName,
		ModelVersion:       result.ModelVersion,
	}

	stored, err := s.store.Put(record)
	if err != nil {
		log.Error().Err(err).Str("student", result.StudentID).Msg("failed to persist prediction")
		if s.metrics != nil {
			s.metrics.ErrorsTotal.Inc()
		}
		return
	}
	result.ID = stored.ID

	if s.feed != nil {
		s.feed.Broadcast(stored)
	}
}

func (s *Service) observe(result *Result, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.Predictions.Inc()
	s.metrics.PredictionLatency.Observe(elapsed.Seconds())
	s.metrics.RiskScores.Observe(result.RiskScore)
	if result.RiskCategory == risk.High {
		s.metrics.HighRiskTotal.Inc()
	}
}

// Predictor exposes the underlying predictor for health checks.
func (s *Service) Predictor() *ml.Predictor { return s.predictor }
