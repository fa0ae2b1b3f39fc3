// Package observability provides the Prometheus registry and telemetry
// endpoint for the client.
package observability

import (
	"fmt"

	"github.com/msaario/campusync/internal/observability/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	WS       *metrics.WSMetrics
	Sync     *metrics.SyncMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric
// collectors. It returns an error if any collector fails to register.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	wsMetrics, err := metrics.NewWSMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create ws metrics: %w", err)
	}

	syncMetrics, err := metrics.NewSyncMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}

	// Standard process and Go runtime collectors
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register Go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	return &Metrics{
		registry: registry,
		WS:       wsMetrics,
		Sync:     syncMetrics,
	}, nil
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WSMetrics returns the web-service collectors. Safe on a nil receiver,
// which disables recording.
func (m *Metrics) WSMetrics() *metrics.WSMetrics {
	if m == nil {
		return nil
	}
	return m.WS
}

// SyncMetrics returns the sync collectors. Safe on a nil receiver.
func (m *Metrics) SyncMetrics() *metrics.SyncMetrics {
	if m == nil {
		return nil
	}
	return m.Sync
}
