// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "groundtruth"

var (
	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_calls_total",
		Help:      "LLM and vision calls by operation and outcome.",
	}, []string{"op", "status"})

	LLMLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "llm_call_seconds",
		Help:      "LLM call latency including retries.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"op"})

	GroundingScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "grounding_score",
		Help:      "Final overall grounding score per run.",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
	})

	Corrections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "corrections_total",
		Help:      "Self-correction edits applied, by action.",
	}, []string{"action"})

	Runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Workflow runs by terminal status.",
	}, []string{"status"})

	FigureCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "figure_cache_total",
		Help:      "Figure description cache lookups by result.",
	}, []string{"result"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
