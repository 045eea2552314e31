package metrics

import "github.com/prometheus/client_golang/prometheus"

// Embedding and backend Prometheus metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "filedex",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "filedex",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"model"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "filedex",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	BackendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "filedex",
			Name:      "backend_requests_total",
			Help:      "Total number of vector backend requests",
		},
		[]string{"op", "status"},
	)

	QueryTopKClampedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "filedex",
			Name:      "query_top_k_clamped_total",
			Help:      "Queries whose top_k was clamped to the configured maximum",
		},
	)
)

var metricsRegistered bool

// Register registers service metrics. Must be called once from main (no init()).
func Register() {
	if metricsRegistered {
		return
	}
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(BackendRequestsTotal)
	prometheus.MustRegister(QueryTopKClampedTotal)
	metricsRegistered = true
}
