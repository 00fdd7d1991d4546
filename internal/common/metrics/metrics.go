// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_turns_total",
			Help: "Total number of chat turns by outcome",
		},
		[]string{"outcome"},
	)

	Refusals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_refusals_total",
			Help: "Total number of refused turns by safety category",
		},
		[]string{"category"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	StageFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_fallbacks_total",
			Help: "Number of times a stage degraded to its fallback",
		},
		[]string{"stage", "reason"},
	)

	Tokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_tokens_total",
			Help: "Tokens consumed by generation",
		},
		[]string{"direction"},
	)

	CostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_cost_usd_total",
			Help: "Estimated generation cost in USD",
		},
		[]string{"model"},
	)

	TurnsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_turns_active",
			Help: "Number of turns currently in flight",
		},
	)
)
