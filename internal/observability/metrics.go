// Package observability exposes the process's Prometheus metrics and its
// HTTP diagnostics endpoint.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every instrument the snapshot engine records against. The zero value is not usable; construct with NewMetrics.
type Metrics struct {
	registry *prometheus.Registry

	snapshotsTotal         prometheus.Counter
	snapshotDurationSecs   prometheus.Histogram
	bytesArchivedTotal     *prometheus.CounterVec
	deltaRecordsTotal      *prometheus.CounterVec
	pipelineQueueDepth     prometheus.Gauge
}

// NewMetrics registers every instrument against a private registry, so
// multiple Metrics instances (as in tests) never collide on global state.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		snapshotsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jbackup_snapshots_total",
			Help: "Total snapshots successfully committed.",
		}),
		snapshotDurationSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "jbackup_snapshot_duration_seconds",
			Help:    "Wall-clock duration of the snapshot operation.",
			Buckets: prometheus.DefBuckets,
		}),
		bytesArchivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jbackup_bytes_archived_total",
			Help: "Bytes written to the temporary archive during ingestion, by transform state.",
		}, []string{"transformed"}),
		deltaRecordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jbackup_delta_records_total",
			Help: "Delta-list records emitted during snapshot generation, by operation.",
		}, []string{"op"}),
		pipelineQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jbackup_pipeline_queue_depth",
			Help: "Outputs buffered in the worker pipeline awaiting in-order delivery to the sink.",
		}),
	}

	registry.MustRegister(
		m.snapshotsTotal,
		m.snapshotDurationSecs,
		m.bytesArchivedTotal,
		m.deltaRecordsTotal,
		m.pipelineQueueDepth,
	)

	return m
}

// RecordSnapshot records one completed snapshot's duration. Safe to call on
// a nil receiver (no-op), so callers that run without a metrics server
// configured don't need to branch.
func (m *Metrics) RecordSnapshot(d time.Duration) {
	if m == nil {
		return
	}

	m.snapshotsTotal.Inc()
	m.snapshotDurationSecs.Observe(d.Seconds())
}

// RecordArchivedBytes records one entry's payload size, labeled by whether
// the configured transformer chain altered it.
func (m *Metrics) RecordArchivedBytes(n int, transformed bool) {
	if m == nil {
		return
	}

	m.bytesArchivedTotal.WithLabelValues(boolLabel(transformed)).Add(float64(n))
}

// RecordDeltaOp records one delta-list record, labeled by its operation
// name ("added", "modified", "deleted").
func (m *Metrics) RecordDeltaOp(op string) {
	if m == nil {
		return
	}

	m.deltaRecordsTotal.WithLabelValues(op).Inc()
}

// SetPipelineQueueDepth reports the number of outputs currently buffered
// ahead of the pipeline's next-in-order sink call.
func (m *Metrics) SetPipelineQueueDepth(n int) {
	if m == nil {
		return
	}

	m.pipelineQueueDepth.Set(float64(n))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}

	return "false"
}
