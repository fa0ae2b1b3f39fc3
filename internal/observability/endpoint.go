package observability

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/msaario/campusync/internal/conf"
	"github.com/msaario/campusync/internal/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Endpoint serves the Prometheus-compatible telemetry endpoint.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	metrics       *Metrics
	log           *slog.Logger
}

// NewEndpoint creates a telemetry endpoint from settings and an initialized
// Metrics instance. Returns an error if telemetry is disabled.
func NewEndpoint(settings *conf.Settings, metrics *Metrics) (*Endpoint, error) {
	if !settings.Telemetry.Enabled {
		return nil, errors.New("telemetry not enabled in settings")
	}

	return &Endpoint{
		listenAddress: settings.Telemetry.Listen,
		metrics:       metrics,
		log:           logging.ForService("observability"),
	}, nil
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func (e *Endpoint) Start(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.metrics.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	e.server = &http.Server{
		Addr:         e.listenAddress,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		e.log.Info("telemetry endpoint listening", "address", e.listenAddress)
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Error("telemetry endpoint failed", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.server.Shutdown(shutdownCtx); err != nil {
			e.log.Error("telemetry endpoint shutdown failed", "error", err)
		}
	}()
}
