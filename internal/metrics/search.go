package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Degradation reasons for SearchDegraded.
const (
	ReasonEmbeddingTimeout = "embedding_timeout"
	ReasonBackendError     = "backend_error"
	ReasonCircuitOpen      = "circuit_open"
	ReasonLexicalError     = "lexical_error"
)

var (
	searchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Hybrid search latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	searchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Total number of searches by outcome",
		},
		[]string{"status"},
	)

	searchDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_degraded_total",
			Help:      "Searches answered with one ranker missing",
		},
		[]string{"reason"},
	)

	indexLoadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_loads_total",
			Help:      "Number of times index artifacts were loaded",
		},
	)

	indexDocuments = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_documents",
			Help:      "Documents in the loaded index, per ranker",
		},
		[]string{"ranker"},
	)

	embeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_total",
			Help:      "Query embedding cache hits and misses",
		},
		[]string{"result"},
	)
)

// ObserveSearch records one search. status is "ok" or "error".
func ObserveSearch(status string, elapsed time.Duration) {
	searchRequestsTotal.WithLabelValues(status).Inc()
	if status == "ok" {
		searchDuration.Observe(elapsed.Seconds())
	}
}

// SearchDegraded counts a search that lost one ranker.
func SearchDegraded(reason string) {
	searchDegradedTotal.WithLabelValues(reason).Inc()
}

// IndexLoaded records a completed artifact load.
func IndexLoaded(lexicalDocs, denseDocs int) {
	indexLoadsTotal.Inc()
	indexDocuments.WithLabelValues("bm25").Set(float64(lexicalDocs))
	indexDocuments.WithLabelValues("faiss").Set(float64(denseDocs))
}

// EmbeddingCache records a query embedding cache lookup.
func EmbeddingCache(hit bool) {
	if hit {
		embeddingCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	embeddingCacheTotal.WithLabelValues("miss").Inc()
}
