// Package metrics exposes Prometheus metrics for capture cycles.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Capture outcomes.
const (
	ResultSaved   = "saved"
	ResultEmpty   = "empty"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

var (
	capturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nogit_captures_total",
		Help: "Capture cycles by result",
	}, []string{"result"})

	filesCopied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nogit_files_copied_total",
		Help: "Files copied into snapshots",
	})

	copyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nogit_copy_failures_total",
		Help: "Files that could not be copied into a snapshot",
	})

	pruneRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nogit_prune_removed_total",
		Help: "Snapshots removed by retention",
	})

	pruneFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nogit_prune_failures_total",
		Help: "Snapshots that could not be removed",
	})

	dirtyPaths = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nogit_dirty_paths",
		Help: "Paths changed since the last capture",
	})

	captureDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nogit_capture_duration_seconds",
		Help:    "Capture cycle duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	})
)

// ObserveCapture records one capture cycle.
func ObserveCapture(result string, copied, failed int, elapsed time.Duration) {
	capturesTotal.WithLabelValues(result).Inc()
	filesCopied.Add(float64(copied))
	copyFailures.Add(float64(failed))
	captureDuration.Observe(elapsed.Seconds())
}

// ObservePrune records the outcome of a prune.
func ObservePrune(removed, failed int) {
	pruneRemoved.Add(float64(removed))
	pruneFailures.Add(float64(failed))
}

// SetDirty sets the current dirty-set size.
func SetDirty(n int) {
	dirtyPaths.Set(float64(n))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
