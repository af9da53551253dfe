// Package metrics holds the Prometheus collectors of the assistant and the
// registry they are served from.
//
// Scraping /metrics yields series like:
//
//	campus_llm_calls_total{outcome="ok"} 42
//	campus_summary_compression_rounds_bucket{le="1"} 3
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "campus"

// Registry is the registry every collector below is registered on
var Registry = prometheus.NewRegistry()

var (
	LLMCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_calls_total",
		Help:      "Language model completions by outcome (ok, empty, failed).",
	}, []string{"outcome"})

	LLMRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_retries_total",
		Help:      "Language model retries by reason (model, rate).",
	}, []string{"reason"})

	LLMDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "llm_call_duration_seconds",
		Help:      "Duration of a gateway completion including retries.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	ChatAnswers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chat_answers_total",
		Help:      "Answered questions by outcome (ok, fallback, degraded).",
	}, []string{"outcome"})

	RetrievalFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retrieval_bruteforce_total",
		Help:      "Similarity queries answered by brute-force ranking after a store failure.",
	})

	CompressionRounds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "summary_compression_rounds",
		Help:      "Compression rounds performed per summary.",
		Buckets:   []float64{0, 1, 2, 3, 5, 8},
	})

	SummaryBatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "summary_batches_total",
		Help:      "Map-phase batches by result (ok, empty).",
	}, []string{"result"})

	QuizParses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quiz_parses_total",
		Help:      "Quiz output parses by outcome (ok, degraded).",
	}, []string{"outcome"})

	IngestedChunks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingested_chunks_total",
		Help:      "Chunks written to the store.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		LLMCalls,
		LLMRetries,
		LLMDuration,
		ChatAnswers,
		RetrievalFallbacks,
		CompressionRounds,
		SummaryBatches,
		QuizParses,
		IngestedChunks,
	)
}

// ObserveSince records the time elapsed since start on h
func ObserveSince(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Handler serves the registry for scraping
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
