package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Analysis metrics
	AnalysesStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "factlens_analyses_started_total",
			Help: "Total number of analyses started",
		},
	)

	AnalysesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factlens_analyses_completed_total",
			Help: "Total number of analyses completed by final status",
		},
		[]string{"status"},
	)

	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "factlens_phase_duration_seconds",
			Help:    "Pipeline phase duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"phase"},
	)

	ResearchRounds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factlens_research_rounds_total",
			Help: "Research rounds by outcome (completed, denied, abandoned, failed)",
		},
		[]string{"outcome"},
	)

	BudgetExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factlens_budget_exhausted_total",
			Help: "Budget exhaustion events by limit",
		},
		[]string{"limit"},
	)

	// LLM metrics
	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factlens_llm_calls_total",
			Help: "Model calls by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	LLMTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factlens_llm_tokens_total",
			Help: "Tokens consumed by provider",
		},
		[]string{"provider"},
	)

	LLMLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "factlens_llm_latency_seconds",
			Help:    "Model call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// Evidence metrics
	EvidenceAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "factlens_evidence_accepted_total",
			Help: "Evidence items accepted by the quality filter",
		},
	)

	EvidenceRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factlens_evidence_rejected_total",
			Help: "Evidence items rejected by the quality filter, by reason",
		},
		[]string{"reason"},
	)

	FetchResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factlens_fetch_results_total",
			Help: "Source fetches by outcome",
		},
		[]string{"outcome"},
	)

	SearchQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factlens_search_queries_total",
			Help: "Search queries by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factlens_cache_hits_total",
			Help: "Cache hits by cache name",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factlens_cache_misses_total",
			Help: "Cache misses by cache name",
		},
		[]string{"cache"},
	)

	// Source reliability metrics
	SourceEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factlens_source_evaluations_total",
			Help: "Source reliability evaluations by outcome (cached, evaluated, skipped, rate_limited, failed)",
		},
		[]string{"outcome"},
	)
)
