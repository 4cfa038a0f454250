package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connection metrics
	ConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vaultsync_connections_active",
			Help: "Number of sync connections currently authenticated and joined to a vault",
		},
	)

	ConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultsync_connections_total",
			Help: "Total number of sync connections by terminal outcome",
		},
		[]string{"outcome"}, // ok, auth_missing, auth_denied, not_found, invalid_key, internal
	)

	VaultsJoined = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vaultsync_vault_channels_active",
			Help: "Number of vault channels with at least one joined connection",
		},
	)

	// Revision log metrics
	RecordsInsertedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultsync_records_inserted_total",
			Help: "Total number of document records committed to the revision log",
		},
	)

	BroadcastsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultsync_broadcasts_total",
			Help: "Total number of push frames fanned out to joined connections",
		},
	)

	CatchupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vaultsync_catchup_duration_seconds",
			Help:    "Time taken for a connection's catch-up task to drain and reach ready",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Blob transfer metrics
	BlobBytesUploaded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultsync_blob_bytes_uploaded_total",
			Help: "Total bytes received from clients for push uploads",
		},
	)

	BlobBytesDownloaded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultsync_blob_bytes_downloaded_total",
			Help: "Total bytes streamed to clients for pull downloads",
		},
	)

	HashDedupTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultsync_hash_dedup_total",
			Help: "Total number of pushes that skipped blob transfer because the hash already existed in the vault",
		},
	)

	// Purger metrics
	PurgeRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultsync_purge_runs_total",
			Help: "Total number of purger passes completed",
		},
	)

	PurgeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vaultsync_purge_duration_seconds",
			Help:    "Time taken for a single purger pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	VaultsPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultsync_vaults_purged_total",
			Help: "Total number of soft-deleted vaults hard-deleted by the purger",
		},
	)

	PendingFilesPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultsync_pending_files_purged_total",
			Help: "Total number of stale pending-upload rows reclaimed by the purger",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ConnectionsActive,
		ConnectionsTotal,
		VaultsJoined,
		RecordsInsertedTotal,
		BroadcastsTotal,
		CatchupDuration,
		BlobBytesUploaded,
		BlobBytesDownloaded,
		HashDedupTotal,
		PurgeRunsTotal,
		PurgeDuration,
		VaultsPurgedTotal,
		PendingFilesPurgedTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
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
