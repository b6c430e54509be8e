package shaping

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookupsTotal counts cache lookups by namespace and result (hit, miss, evicted).
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shaping_cache_lookups_total",
			Help: "Total number of cache lookups by result",
		},
		[]string{"namespace", "result"},
	)

	// RateLimitedTotal counts denied calls by namespace and client tier.
	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shaping_rate_limited_total",
			Help: "Total number of calls denied by the rate limiter",
		},
		[]string{"namespace", "tier"},
	)

	// FetchFailuresTotal counts adapter or validation failures.
	FetchFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shaping_fetch_failures_total",
			Help: "Total number of failed upstream fetches, including results that failed validation",
		},
		[]string{"namespace", "method"},
	)
)
