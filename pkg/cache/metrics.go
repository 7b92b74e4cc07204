package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks gene-set cache hits
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "enrich_cache_hits_total",
			Help: "Total number of gene set cache hits",
		},
	)

	// CacheMisses tracks absent or expired entries
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "enrich_cache_misses_total",
			Help: "Total number of gene set cache misses",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrich_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
