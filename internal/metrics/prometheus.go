package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "infosage_pipeline_stage_duration_seconds",
			Help:    "Duration of each analysis pipeline stage in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 90},
		},
		[]string{"stage"},
	)

	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infosage_analyses_total",
			Help: "Total analysis runs by outcome",
		},
		[]string{"outcome"},
	)

	VerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infosage_verdicts_total",
			Help: "Verdicts produced, by synthesizer stage and verdict",
		},
		[]string{"stage", "verdict"},
	)

	FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infosage_ai_fallbacks_total",
			Help: "Times a component substituted a local fallback for an AI result",
		},
		[]string{"component"},
	)

	LLMCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infosage_llm_calls_total",
			Help: "Total LLM provider calls",
		},
		[]string{"kind", "status"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infosage_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	LLMGateInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "infosage_llm_gate_in_flight",
			Help: "AI calls currently holding a gate slot",
		},
	)

	RiskScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "infosage_risk_score",
			Help:    "Distribution of computed risk scores",
			Buckets: []float64{0.1, 0.2, 0.33, 0.4, 0.5, 0.66, 0.75, 0.9, 1.0},
		},
	)

	EscalationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infosage_escalations_total",
			Help: "Claims escalated for human review",
		},
		[]string{"mode"},
	)

	ReclusterDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "infosage_recluster_duration_seconds",
			Help:    "Batch clustering duration in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30},
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infosage_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infosage_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	ClaimsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infosage_claims_created_total",
			Help: "Claims accepted, by source type",
		},
		[]string{"source_type"},
	)

	TaskQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "infosage_task_queue_depth",
			Help: "Analysis tasks waiting for a worker",
		},
	)
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Safe to call
// more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			PipelineStageDuration,
			AnalysesTotal,
			VerdictsTotal,
			FallbacksTotal,
			LLMCallsTotal,
			LLMTokensUsed,
			LLMGateInFlight,
			RiskScore,
			EscalationsTotal,
			ReclusterDuration,
			CacheHits,
			CacheMisses,
			ClaimsCreated,
			TaskQueueDepth,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
