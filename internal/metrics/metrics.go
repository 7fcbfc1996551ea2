// Package metrics holds the Prometheus collectors for tree operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationsTotal counts tree operations.
	// Labels: strategy, operation, result ("ok", "validation", "not_found", "integrity", "error")
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orgtree_operations_total",
		Help: "Total tree operations by strategy, operation and result",
	}, []string{"strategy", "operation", "result"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orgtree_operation_duration_seconds",
		Help:    "Tree operation duration",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"strategy", "operation"})

	rowsShifted = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orgtree_nested_set_rows_shifted",
		Help:    "Rows touched by each nested set renumbering statement",
		Buckets: []float64{0, 1, 10, 100, 1000, 10000, 100000},
	}, []string{"step"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orgtree_cache_lookups_total",
		Help: "Tree cache lookups by outcome",
	}, []string{"outcome"})
)

// ObserveOperation records one finished operation
func ObserveOperation(strategy, operation, result string, elapsed time.Duration) {
	operationsTotal.WithLabelValues(strategy, operation, result).Inc()
	operationDuration.WithLabelValues(strategy, operation).Observe(elapsed.Seconds())
}

// ObserveShift records the row count of one renumbering statement
func ObserveShift(step string, rows int64) {
	rowsShifted.WithLabelValues(step).Observe(float64(rows))
}

// CacheHit and CacheMiss count tree cache lookups
func CacheHit()  { cacheLookups.WithLabelValues("hit").Inc() }
func CacheMiss() { cacheLookups.WithLabelValues("miss").Inc() }
