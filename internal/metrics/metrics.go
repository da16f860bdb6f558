package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ModelEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perfeval_model_evaluations_total",
			Help: "Total number of model evaluations by scoring method and outcome",
		},
		[]string{"scoring_method", "outcome"},
	)

	UnscoredIndicators = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "perfeval_unscored_indicators_total",
			Help: "Total number of indicators left unscored during model evaluation",
		},
	)

	EvaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "perfeval_evaluation_duration_seconds",
			Help:    "Duration of model evaluations and evaluation runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		},
		[]string{"kind"},
	)

	EvaluationRunsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "perfeval_evaluation_runs_active",
			Help: "Number of evaluation runs in progress",
		},
	)

	ChannelTests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perfeval_channel_tests_total",
			Help: "Total number of data channel connection tests by result",
		},
		[]string{"connection_type", "result"},
	)

	ChannelSyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perfeval_channel_syncs_total",
			Help: "Total number of data channel syncs by result",
		},
		[]string{"result"},
	)

	ModelCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perfeval_model_cache_lookups_total",
			Help: "Model cache lookups by result",
		},
		[]string{"result"},
	)
)

// Outcome labels
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeHit     = "hit"
	OutcomeMiss    = "miss"
)
