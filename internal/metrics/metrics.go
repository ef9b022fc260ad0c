// Package metrics declares the Prometheus collectors the CRUD façade
// reports against, following the same package-level-vars-plus-MustRegister
// shape the rest of this codebase's metrics package uses.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// OpsTotal counts façade operations by kind and collection.
	OpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doclite_ops_total",
			Help: "Total number of CRUD façade operations.",
		},
		[]string{"op", "collection"},
	)

	// OpDuration tracks façade operation latency by kind.
	OpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "doclite_op_duration_seconds",
			Help:    "CRUD façade operation duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// CursorPoolHits counts read-transaction pool reuse.
	CursorPoolHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "doclite_cursor_pool_hits_total",
			Help: "Auto-commit reads served by the pooled reader.",
		},
	)

	// CursorPoolMisses counts read-transaction pool misses.
	CursorPoolMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "doclite_cursor_pool_misses_total",
			Help: "Auto-commit reads that had to begin a fresh reader.",
		},
	)
)

func init() {
	prometheus.MustRegister(OpsTotal, OpDuration, CursorPoolHits, CursorPoolMisses)
}
