// Package metrics registers the Prometheus instruments shared by the
// ingestion pipeline and the retrieval engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Search path label values.
const (
	PathVector  = "vector"
	PathLexical = "lexical"
)

type Metrics struct {
	registry *prometheus.Registry

	// IngestDocumentsTotal counts documents that reached a terminal state,
	// partitioned by outcome: "ok" (READY) or "error" (FAILED).
	IngestDocumentsTotal *prometheus.CounterVec

	// IngestChunksTotal counts chunks written to storage.
	IngestChunksTotal prometheus.Counter

	// IngestDurationSeconds records the pipeline duration from the moment a
	// worker picks a document up until its terminal state is committed.
	IngestDurationSeconds *prometheus.HistogramVec

	// SearchRequestsTotal counts search executions, partitioned by mode and
	// outcome.
	SearchRequestsTotal *prometheus.CounterVec

	// SearchPathFailuresTotal counts individual path failures inside a hybrid
	// search that still produced degraded results.
	SearchPathFailuresTotal *prometheus.CounterVec

	// SearchDurationSeconds records end-to-end search latency.
	SearchDurationSeconds *prometheus.HistogramVec

	// RerankFallbacksTotal counts queries where the reranker failed and the
	// fused ranking was served instead.
	RerankFallbacksTotal prometheus.Counter

	// RAGRequestsTotal counts answer generations, partitioned by outcome.
	RAGRequestsTotal *prometheus.CounterVec

	// EmbeddingCacheTotal counts embedding lookups, partitioned by result:
	// "hit_memory", "hit_db" or "miss".
	EmbeddingCacheTotal *prometheus.CounterVec
}

// New registers every instrument against a fresh registry. Tests construct
// their own instance so they never pollute the default registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		IngestDocumentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragkb",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Documents that reached a terminal state, partitioned by outcome.",
		}, []string{"outcome"}),
		IngestChunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ragkb",
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Chunks written to storage.",
		}),
		IngestDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragkb",
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Pipeline duration from pickup to terminal state.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"outcome"}),
		SearchRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragkb",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Search executions, partitioned by mode and outcome.",
		}, []string{"mode", "outcome"}),
		SearchPathFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragkb",
			Subsystem: "search",
			Name:      "path_failures_total",
			Help:      "Individual retrieval path failures inside hybrid searches.",
		}, []string{"path"}),
		SearchDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragkb",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "End-to-end search latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		RerankFallbacksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ragkb",
			Subsystem: "rag",
			Name:      "rerank_fallbacks_total",
			Help:      "Queries where reranking failed and fused ranking was served.",
		}),
		RAGRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragkb",
			Subsystem: "rag",
			Name:      "requests_total",
			Help:      "Answer generations, partitioned by outcome.",
		}, []string{"outcome"}),
		EmbeddingCacheTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragkb",
			Subsystem: "embedding",
			Name:      "cache_total",
			Help:      "Embedding lookups, partitioned by result.",
		}, []string{"result"}),
	}
}

// Handler serves the /metrics scrape endpoint for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
