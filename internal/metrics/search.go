package metrics

import "github.com/prometheus/client_golang/prometheus"

// Query engine metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docindex",
			Name:      "search_requests_total",
			Help:      "Searches by query shape and status",
		},
		[]string{"shape", "status"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docindex",
			Name:      "search_duration_seconds",
			Help:      "Search duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"shape"},
	)

	NameQueryCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docindex",
			Name:      "name_query_cache_total",
			Help:      "Parsed partial-name query cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	QueryParseFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docindex",
			Name:      "query_parse_fallback_total",
			Help:      "Partial-name queries that needed a fallback parse",
		},
		[]string{"stage"}, // "escaped" / "match"
	)
)

func init() {
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(NameQueryCacheTotal)
	prometheus.MustRegister(QueryParseFallbackTotal)
}
