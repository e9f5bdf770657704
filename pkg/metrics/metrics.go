// Package metrics exposes Prometheus counters/gauges/histograms for the
// repository engine, grounded on the teacher's pkg/metrics/metrics.go: same
// package-level var block of metric objects plus an init() registering them
// and a Timer helper, generalized from cluster/container metrics to
// commit/merge/GC/fn-dispatch/index-lifecycle ones.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dml_commits_total",
			Help: "Total number of commits created",
		},
	)

	MergesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dml_merges_total",
			Help: "Total number of merges by outcome (fast_forward, merged, conflict)",
		},
		[]string{"outcome"},
	)

	RebasesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dml_rebases_total",
			Help: "Total number of rebase operations",
		},
	)

	IndexesOpenedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dml_indexes_opened_total",
			Help: "Total number of builder indexes opened (begin)",
		},
	)

	IndexesOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dml_indexes_open",
			Help: "Number of currently open (uncommitted) indexes",
		},
	)

	FnDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dml_fn_dispatch_total",
			Help: "Total number of function dispatches by kind (builtin, adapter) and outcome (ok, error, cached)",
		},
		[]string{"kind", "outcome"},
	)

	FnDispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dml_fn_dispatch_duration_seconds",
			Help:    "Function dispatch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	GCRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dml_gc_runs_total",
			Help: "Total number of GC passes run",
		},
	)

	GCObjectsDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dml_gc_objects_deleted_total",
			Help: "Total number of objects deleted by GC, by type",
		},
		[]string{"type"},
	)

	ObjectsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dml_objects_total",
			Help: "Current number of stored objects by type",
		},
		[]string{"type"},
	)

	RemoteSyncTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dml_remote_sync_total",
			Help: "Total number of remote sync operations by verb (clone, fetch, pull, push) and outcome",
		},
		[]string{"verb", "outcome"},
	)

	MapGrowthsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dml_kvstore_map_growths_total",
			Help: "Total number of times the kvstore grew its mmap size",
		},
	)
)

func init() {
	prometheus.MustRegister(CommitsTotal)
	prometheus.MustRegister(MergesTotal)
	prometheus.MustRegister(RebasesTotal)
	prometheus.MustRegister(IndexesOpenedTotal)
	prometheus.MustRegister(IndexesOpen)
	prometheus.MustRegister(FnDispatchTotal)
	prometheus.MustRegister(FnDispatchDuration)
	prometheus.MustRegister(GCRunsTotal)
	prometheus.MustRegister(GCObjectsDeletedTotal)
	prometheus.MustRegister(ObjectsTotal)
	prometheus.MustRegister(RemoteSyncTotal)
	prometheus.MustRegister(MapGrowthsTotal)
}

// Handler returns the Prometheus HTTP handler for these metrics; no dml
// command serves it.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
