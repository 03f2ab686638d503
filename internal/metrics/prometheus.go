package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AnswerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reqanswer_answer_duration_seconds",
			Help:    "Answer generation duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"mode"},
	)

	AnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqanswer_answers_total",
			Help: "Answers generated, by outcome",
		},
		[]string{"mode", "outcome"},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reqanswer_confidence_score",
			Help:    "Confidence of generated answers",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	SourcesRetrieved = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reqanswer_sources_retrieved",
			Help:    "Number of historical pairs used per answer",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 10},
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqanswer_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqanswer_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqanswer_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	DocumentsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqanswer_documents_processed_total",
			Help: "Ingested documents, by status",
		},
		[]string{"status"},
	)

	PairsIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reqanswer_pairs_indexed_total",
			Help: "Question/answer pairs written to the index",
		},
	)

	GraphWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqanswer_graph_writes_total",
			Help: "Provenance graph writes, by status",
		},
		[]string{"status"},
	)
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			AnswerDuration,
			AnswersTotal,
			ConfidenceScore,
			SourcesRetrieved,
			LLMTokensUsed,
			CacheHits,
			CacheMisses,
			DocumentsProcessed,
			PairsIndexed,
			GraphWrites,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
