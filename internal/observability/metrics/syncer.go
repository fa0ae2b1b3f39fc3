package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics contains Prometheus metrics for offline queue replay.
type SyncMetrics struct {
	passesTotal  *prometheus.CounterVec
	passDuration *prometheus.HistogramVec

	actionsReplayedTotal *prometheus.CounterVec
	batchAbortsTotal     *prometheus.CounterVec
	queueDepthGauge      *prometheus.GaugeVec
}

// NewSyncMetrics creates and registers new sync metrics.
func NewSyncMetrics(registry *prometheus.Registry) (*SyncMetrics, error) {
	m := &SyncMetrics{
		passesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campusync_sync_passes_total",
				Help: "Sync passes by job and outcome (success, partial, aborted, error)",
			},
			[]string{"job", "outcome"},
		),
		passDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "campusync_sync_pass_duration_seconds",
				Help:    "Duration of sync passes",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"job"},
		),
		actionsReplayedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campusync_sync_actions_replayed_total",
				Help: "Queued actions replayed by job and result (confirmed, rejected, deferred)",
			},
			[]string{"job", "result"},
		),
		batchAbortsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campusync_sync_batch_aborts_total",
				Help: "Batches aborted early on a transport failure",
			},
			[]string{"job"},
		),
		queueDepthGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "campusync_sync_queue_depth",
				Help: "Queued actions remaining after the last pass",
			},
			[]string{"job"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.passesTotal, m.passDuration, m.actionsReplayedTotal,
		m.batchAbortsTotal, m.queueDepthGauge,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordPass records one completed sync pass. Nil-safe.
func (m *SyncMetrics) RecordPass(job, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.passesTotal.WithLabelValues(job, outcome).Inc()
	m.passDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// RecordActionReplayed records the result of replaying one queued action. Nil-safe.
func (m *SyncMetrics) RecordActionReplayed(job, result string) {
	if m == nil {
		return
	}
	m.actionsReplayedTotal.WithLabelValues(job, result).Inc()
}

// RecordBatchAbort records a batch aborted on a transport failure. Nil-safe.
func (m *SyncMetrics) RecordBatchAbort(job string) {
	if m == nil {
		return
	}
	m.batchAbortsTotal.WithLabelValues(job).Inc()
}

// SetQueueDepth records the queue depth after a pass. Nil-safe.
func (m *SyncMetrics) SetQueueDepth(job string, depth int64) {
	if m == nil {
		return
	}
	m.queueDepthGauge.WithLabelValues(job).Set(float64(depth))
}
