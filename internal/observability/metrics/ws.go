// Package metrics provides Prometheus collectors for the client subsystems.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WSMetrics contains Prometheus metrics for remote web-service calls.
type WSMetrics struct {
	callsTotal      *prometheus.CounterVec
	callDuration    *prometheus.HistogramVec
	callErrorsTotal *prometheus.CounterVec

	cacheOperationsTotal *prometheus.CounterVec
	staleServedTotal     prometheus.Counter
}

// NewWSMetrics creates and registers new web-service metrics.
func NewWSMetrics(registry *prometheus.Registry) (*WSMetrics, error) {
	m := &WSMetrics{
		callsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campusync_ws_calls_total",
				Help: "Total number of remote web-service calls by function",
			},
			[]string{"function"},
		),
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "campusync_ws_call_duration_seconds",
				Help:    "Duration of remote web-service calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"function"},
		),
		callErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campusync_ws_call_errors_total",
				Help: "Web-service call failures by function and error category",
			},
			[]string{"function", "category"},
		),
		cacheOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campusync_ws_cache_operations_total",
				Help: "Response cache operations by result (hit, miss, invalidate)",
			},
			[]string{"result"},
		),
		staleServedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "campusync_ws_stale_served_total",
				Help: "Expired cache entries served because the live call failed",
			},
		),
	}

	for _, c := range []prometheus.Collector{
		m.callsTotal, m.callDuration, m.callErrorsTotal,
		m.cacheOperationsTotal, m.staleServedTotal,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordCall records one completed call attempt. Nil-safe.
func (m *WSMetrics) RecordCall(function string, duration time.Duration) {
	if m == nil {
		return
	}
	m.callsTotal.WithLabelValues(function).Inc()
	m.callDuration.WithLabelValues(function).Observe(duration.Seconds())
}

// RecordCallError records a failed call by error category. Nil-safe.
func (m *WSMetrics) RecordCallError(function, category string) {
	if m == nil {
		return
	}
	m.callErrorsTotal.WithLabelValues(function, category).Inc()
}

// RecordCacheOperation records a response cache hit, miss or invalidate. Nil-safe.
func (m *WSMetrics) RecordCacheOperation(result string) {
	if m == nil {
		return
	}
	m.cacheOperationsTotal.WithLabelValues(result).Inc()
}

// RecordStaleServed records an emergency cache hit. Nil-safe.
func (m *WSMetrics) RecordStaleServed() {
	if m == nil {
		return
	}
	m.staleServedTotal.Inc()
}
