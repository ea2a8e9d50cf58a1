package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for fetch operations.
var (
	fetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiki_requests_total",
		Help: "Total catalog API requests by response status",
	}, []string{"status"})

	fetchRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tiki_request_duration_seconds",
		Help:    "Catalog API request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})

	fetchOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiki_fetch_outcomes_total",
		Help: "Terminal fetch outcomes by result",
	}, []string{"result"})

	fetchRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiki_fetch_retries_total",
		Help: "Retry attempts by cause",
	}, []string{"cause"})

	fetchCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tiki_fetch_cache_hits_total",
		Help: "Fetches satisfied from the product cache without a request",
	})
)
