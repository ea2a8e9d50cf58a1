package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tiki_cache_hits_total",
			Help: "Total number of product cache hits by tier",
		},
		[]string{"layer"}, // "memory", "redis"
	)

	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tiki_cache_misses_total",
			Help: "Total number of product cache misses",
		},
	)

	cacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tiki_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set"
	)
)
