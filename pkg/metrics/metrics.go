package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "coconut", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "coconut", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	DocumentSaves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "coconut", Name: "document_saves_total", Help: "Document saves by type and outcome (insert, update, noop, error)."},
		[]string{"type", "outcome"},
	)
	DiffPaths = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "coconut", Name: "diff_paths", Help: "Number of set and unset paths written per update.", Buckets: prometheus.ExponentialBuckets(1, 2, 10)},
		[]string{"type"},
	)
	StoreOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "coconut", Name: "store_operations_total", Help: "Store calls by operation."},
		[]string{"op"},
	)
	CacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "coconut", Name: "cache_requests_total", Help: "Document cache lookups by result (hit, miss)."},
		[]string{"result"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(DocumentSaves)
	reg.MustRegister(DiffPaths)
	reg.MustRegister(StoreOperations)
	reg.MustRegister(CacheRequests)
}
