// Package metrics provides Prometheus metrics for the verfs filesystem.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	snapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verfs_snapshots_total",
			Help: "Total number of snapshot attempts by result",
		},
		[]string{"result"},
	)

	interceptedOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verfs_intercepted_operations_total",
			Help: "Mutating filesystem operations that triggered a snapshot",
		},
		[]string{"op"},
	)

	sweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verfs_sweeps_total",
			Help: "Total number of retention sweeps by result",
		},
		[]string{"result"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "verfs_sweep_duration_seconds",
			Help:    "Wall time of a full retention sweep",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		},
	)

	snapshotsReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "verfs_snapshots_reclaimed_total",
			Help: "Snapshots deleted by the retention sweep",
		},
	)

	corruptNames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "verfs_corrupt_snapshot_names_total",
			Help: "Collection entries skipped because their name did not parse",
		},
	)

	collectionsSeen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "verfs_snapshot_collections",
			Help: "Snapshot collections found by the most recent sweep",
		},
	)
)

// RecordSnapshot counts one snapshot attempt.
func RecordSnapshot(err error) {
	if err != nil {
		snapshotsTotal.WithLabelValues("failed").Inc()
		return
	}
	snapshotsTotal.WithLabelValues("created").Inc()
}

// RecordIntercept counts a mutating operation by name (write, truncate, unlink).
func RecordIntercept(op string) {
	interceptedOpsTotal.WithLabelValues(op).Inc()
}

// RecordSweep records the outcome of one sweep.
func RecordSweep(d time.Duration, collections, reclaimed, corrupt int, err error) {
	sweepDuration.Observe(d.Seconds())
	collectionsSeen.Set(float64(collections))
	snapshotsReclaimed.Add(float64(reclaimed))
	corruptNames.Add(float64(corrupt))
	if err != nil {
		sweepsTotal.WithLabelValues("partial").Inc()
		return
	}
	sweepsTotal.WithLabelValues("ok").Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until the server fails. It is meant to be
// run in its own goroutine.
func Serve(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server stopped", zap.Error(err))
	}
}
