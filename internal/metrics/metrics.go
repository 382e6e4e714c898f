package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NormalizeRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solixa_normalize_runs_total",
			Help: "Total telemetry normalization runs by outcome",
		},
		[]string{"status"},
	)

	ReadingsNormalized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "solixa_readings_normalized_total",
			Help: "Total canonical readings produced by normalization",
		},
	)

	AnomaliesFlagged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solixa_anomalies_flagged_total",
			Help: "Total readings flagged anomalous",
		},
		[]string{"mode"},
	)

	ForecastRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solixa_forecast_runs_total",
			Help: "Total forecast runs by model and outcome",
		},
		[]string{"model", "status"},
	)

	ForecastDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solixa_forecast_duration_seconds",
			Help:    "Forecast fit and evaluation time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	ModelTrainingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "solixa_storm_model_training_seconds",
			Help:    "Storm risk model training time in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	ModelTrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solixa_storm_model_training_runs_total",
			Help: "Total storm risk model training runs by outcome",
		},
		[]string{"status"},
	)

	UpstreamCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solixa_upstream_calls_total",
			Help: "Total calls to external services",
		},
		[]string{"service", "status"},
	)

	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solixa_upstream_latency_seconds",
			Help:    "External service call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	AlertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solixa_alerts_sent_total",
			Help: "Total SMS alerts sent by outcome",
		},
		[]string{"status"},
	)
)
