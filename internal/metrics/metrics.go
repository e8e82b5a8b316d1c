// Package metrics exposes Prometheus collectors for transfers and batches.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"filedownloader/internal/apperr"
)

const namespace = "filedownloader"

// Metrics groups the collectors of one process.
type Metrics struct {
	downloadsTotal  *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	durationSeconds prometheus.Histogram
	downloadedBytes prometheus.Histogram
	inProgress      prometheus.Gauge
	batchesTotal    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// It panics on duplicate registration, like prometheus.MustRegister.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		downloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Finished transfers by status.",
		}, []string{"status"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failed transfers by error kind.",
		}, []string{"kind"}),
		durationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Wall-clock duration of transfers.",
			Buckets:   prometheus.DefBuckets,
		}),
		// 1KB .. 1GB
		downloadedBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes",
			Help:      "Size of successfully stored files.",
			Buckets:   prometheus.ExponentialBuckets(1024, 10, 7),
		}),
		inProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transfers_in_progress",
			Help:      "Transfers currently streaming.",
		}),
		batchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Finished batches by aggregate status.",
		}, []string{"status"}),
	}
	reg.MustRegister(
		m.downloadsTotal,
		m.errorsTotal,
		m.durationSeconds,
		m.downloadedBytes,
		m.inProgress,
		m.batchesTotal,
	)
	return m
}

// TransferStarted marks one transfer as in flight.
func (m *Metrics) TransferStarted() {
	if m == nil {
		return
	}
	m.inProgress.Inc()
}

// TransferFinished records the outcome of a transfer started with TransferStarted.
func (m *Metrics) TransferFinished(elapsed time.Duration, bytes int64, err error) {
	if m == nil {
		return
	}
	m.inProgress.Dec()
	m.durationSeconds.Observe(elapsed.Seconds())
	if err != nil {
		m.downloadsTotal.WithLabelValues("failed").Inc()
		m.errorsTotal.WithLabelValues(string(apperr.KindOf(err))).Inc()
		return
	}
	m.downloadsTotal.WithLabelValues("success").Inc()
	m.downloadedBytes.Observe(float64(bytes))
}

// Rejected counts a request refused before any transfer started.
func (m *Metrics) Rejected(err error) {
	if m == nil {
		return
	}
	m.downloadsTotal.WithLabelValues("rejected").Inc()
	m.errorsTotal.WithLabelValues(string(apperr.KindOf(err))).Inc()
}

// BatchFinished counts a batch by its aggregate status.
func (m *Metrics) BatchFinished(status string) {
	if m == nil {
		return
	}
	m.batchesTotal.WithLabelValues(status).Inc()
}
