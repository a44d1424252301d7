package logquery

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "log_query_duration_seconds",
			Help:    "Duration of log queries by result source",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"source"},
	)

	storageErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "log_storage_errors_total",
			Help: "Total number of failed log storage operations",
		},
		[]string{"operation"},
	)

	cacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "log_page_cache_requests_total",
			Help: "Total number of log page cache lookups by outcome",
		},
		[]string{"outcome"},
	)
)

func observeQuery(source string, start time.Time) {
	queryDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
}
