// Package metrics provides Prometheus metrics for the risk scoring
// service: prediction throughput and latency, score distribution,
// explainer health and model freshness, exposed on the /metrics
// endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the scoring service.
type Metrics struct {
	// Scoring metrics
	Predictions       prometheus.Counter   // Total number of predictions served
	PredictionErrors  prometheus.Counter   // Total number of failed prediction requests
	PredictionLatency prometheus.Histogram // End-to-end scoring latency in seconds
	RiskScores        prometheus.Histogram // Distribution of served risk scores (0-100)
	HighRiskTotal     prometheus.Counter   // Predictions that landed in the High band

	// Explainability metrics
	ExplanationFailures prometheus.Counter // Explanations that degraded to an empty list

	// Model lifecycle metrics
	ModelAge prometheus.Gauge // Age of the active model in seconds

	// Feed metrics
	WSSubscribers prometheus.Gauge // Connected prediction-feed subscribers

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for
// testing, where the global registry would collide across cases).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of predictions served",
		}),
		PredictionErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_errors_total",
			Help: "Total number of failed prediction requests",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "End-to-end scoring latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		RiskScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_scores",
			Help:    "Distribution of served risk scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		HighRiskTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "high_risk_predictions_total",
			Help: "Predictions that landed in the High risk band",
		}),
		ExplanationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "explanation_failures_total",
			Help: "Explanations that degraded to an empty attribution list",
		}),
		ModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_age_seconds",
			Help: "Age of the active model in seconds",
		}),
		WSSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ws_subscribers",
			Help: "Connected prediction-feed subscribers",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}
