package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	queryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybot_query_attempts_total",
			Help: "Total number of natural-language query attempts by outcome.",
		},
		[]string{"outcome"},
	)
	queryAttemptLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querybot_query_attempt_latency_ms",
			Help:    "End-to-end query attempt latency in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
	)
	policyViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybot_policy_violations_total",
			Help: "Total number of generated statements rejected by the SQL guard.",
		},
		[]string{"check"},
	)
	generationFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querybot_generation_fallbacks_total",
			Help: "Total number of attempts that used the deterministic fallback SQL.",
		},
	)
	guardSubstitutionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querybot_guard_substitutions_total",
			Help: "Total number of SELECT * statements rewritten by the ranking guard.",
		},
	)
	degradedSummariesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querybot_degraded_summaries_total",
			Help: "Total number of attempts that succeeded without a summary.",
		},
	)
	historyWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querybot_history_write_failures_total",
			Help: "Total number of swallowed history sink failures.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		queryAttemptsTotal,
		queryAttemptLatencyMs,
		policyViolationsTotal,
		generationFallbacksTotal,
		guardSubstitutionsTotal,
		degradedSummariesTotal,
		historyWriteFailuresTotal,
	)
}

// Attempt outcomes recorded by ObserveQueryAttempt.
const (
	OutcomeSuccess         = "success"
	OutcomeNoDataset       = "no_dataset"
	OutcomeUnauthorized    = "unauthorized_table"
	OutcomePolicyViolation = "policy_violation"
	OutcomeExecutionFailed = "execution_failed"
)

func ObserveQueryAttempt(outcome string, elapsed time.Duration) {
	queryAttemptsTotal.WithLabelValues(outcome).Inc()
	queryAttemptLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func IncrementPolicyViolation(check string) {
	policyViolationsTotal.WithLabelValues(check).Inc()
}

func IncrementGenerationFallback() {
	generationFallbacksTotal.Inc()
}

func IncrementGuardSubstitution() {
	guardSubstitutionsTotal.Inc()
}

func IncrementDegradedSummary() {
	degradedSummariesTotal.Inc()
}

func IncrementHistoryWriteFailure() {
	historyWriteFailuresTotal.Inc()
}
