// Package metrics defines Prometheus metrics for graphrouter.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphrouter_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphrouter_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphrouter_errors_total",
			Help: "Total errors by type",
		},
		[]string{"type"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphrouter_operation_duration_seconds",
			Help:    "Graph operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "backend"},
	)

	OperationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphrouter_operation_errors_total",
			Help: "Failed graph operations",
		},
		[]string{"operation", "backend"},
	)

	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "graphrouter_cache_hits_total",
			Help: "Query cache hits",
		},
	)

	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "graphrouter_cache_misses_total",
			Help: "Query cache misses, including evicted unusable entries",
		},
	)

	PoolWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graphrouter_pool_acquire_wait_seconds",
			Help:    "Time spent waiting for a pooled backend handle",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	PoolInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "graphrouter_pool_in_use",
			Help: "Backend handles currently checked out",
		},
	)

	PoolEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "graphrouter_pool_evictions_total",
			Help: "Backend handles evicted after a failed health probe",
		},
	)

	DedupDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphrouter_dedup_decisions_total",
			Help: "Write-time deduplication outcomes",
		},
		[]string{"outcome", "rule"},
	)

	SimilarityEdges = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "graphrouter_similarity_edges_total",
			Help: "Similarity relationships persisted by merge-on-query",
		},
	)

	ProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphrouter_llm_calls_total",
			Help: "Calls to the LLM capability by purpose and result",
		},
		[]string{"purpose", "result"},
	)

	EmbedQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "graphrouter_embed_queue_depth",
			Help: "Nodes waiting for a generated embedding",
		},
	)

	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "graphrouter_websocket_connections",
			Help: "Active WebSocket connections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestDuration, RequestsTotal, ErrorsTotal,
		OperationDuration, OperationErrors,
		CacheHits, CacheMisses,
		PoolWait, PoolInUse, PoolEvictions,
		DedupDecisions, SimilarityEdges, ProviderCalls,
		EmbedQueueDepth, WSConnections,
	)
}
