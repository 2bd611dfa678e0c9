// Package metrics provides Prometheus metrics for radarsync.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jamesainslie/radarsync/pkg/radar/prune"
	"github.com/jamesainslie/radarsync/pkg/radar/syncer"
)

var (
	// Sync metrics
	syncPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radarsync_sync_passes_total",
			Help: "Total sync passes by outcome",
		},
		[]string{"result"},
	)

	syncPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "radarsync_sync_pass_duration_seconds",
			Help:    "Sync pass duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	framesDownloadedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radarsync_frames_downloaded_total",
			Help: "Total frames downloaded",
		},
		[]string{"level"},
	)

	bytesDownloadedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "radarsync_bytes_downloaded_total",
			Help: "Total frame bytes downloaded",
		},
	)

	lastSuccessTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "radarsync_last_download_timestamp_seconds",
			Help: "Unix time of the last pass that downloaded at least one frame",
		},
	)

	// Retention metrics
	framesPrunedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radarsync_frames_pruned_total",
			Help: "Total frames removed by retention",
		},
		[]string{"level"},
	)

	pruneErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "radarsync_prune_errors_total",
			Help: "Total retention passes that failed for at least one level",
		},
	)

	// Archive metrics
	archiveFrames = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "radarsync_archive_frames",
			Help: "Frames currently held per level and state",
		},
		[]string{"level", "state"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// passResult classifies a sync error for the result label.
func passResult(res syncer.Result, err error) string {
	switch {
	case errors.Is(err, syncer.ErrLocal):
		return "local_error"
	case err != nil:
		return "remote_error"
	case res.Changed():
		return "downloaded"
	default:
		return "empty"
	}
}

// RecordSyncPass records the outcome of a sync pass. Frames written before a
// failure are counted too.
func RecordSyncPass(res syncer.Result, err error) {
	syncPassesTotal.WithLabelValues(passResult(res, err)).Inc()
	if !res.Started.IsZero() && !res.Finished.IsZero() {
		syncPassDuration.Observe(res.Finished.Sub(res.Started).Seconds())
	}
	for level, names := range res.Downloaded {
		framesDownloadedTotal.WithLabelValues(level).Add(float64(len(names)))
	}
	bytesDownloadedTotal.Add(float64(res.Bytes))
	if res.Changed() {
		lastSuccessTimestamp.Set(float64(time.Now().Unix()))
	}
}

// RecordPrune records a retention pass.
func RecordPrune(report prune.Report, err error) {
	for level, frames := range report.Removed {
		framesPrunedTotal.WithLabelValues(level).Add(float64(len(frames)))
	}
	if err != nil {
		pruneErrorsTotal.Inc()
	}
}

// SetArchiveFrames sets the number of frames held for a level in a state.
func SetArchiveFrames(level, state string, count int) {
	archiveFrames.WithLabelValues(level, state).Set(float64(count))
}
