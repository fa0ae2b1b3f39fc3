// Package app assembles the campusync runtime: local store, site client,
// metrics, feature registration and the sync engine. Commands build an App
// and pick the pieces they need.
package app

import (
	"github.com/msaario/campusync/internal/conf"
	"github.com/msaario/campusync/internal/courses"
	"github.com/msaario/campusync/internal/errors"
	"github.com/msaario/campusync/internal/logging"
	"github.com/msaario/campusync/internal/notes"
	"github.com/msaario/campusync/internal/observability"
	"github.com/msaario/campusync/internal/store"
	"github.com/msaario/campusync/internal/syncer"
	"github.com/msaario/campusync/internal/ws"
)

// App is the assembled runtime for one site.
type App struct {
	Settings  *conf.Settings
	Metrics   *observability.Metrics
	Store     *store.Store
	WS        *ws.Client
	Notes     *notes.Provider
	Courses   *courses.Delegate
	Engine    *syncer.Engine
	Scheduler *syncer.Scheduler
}

// New wires the runtime from settings: opens the store, builds the site
// client, registers every feature's sync job and course option handler.
func New(settings *conf.Settings) (*App, error) {
	var m *observability.Metrics
	if settings.Telemetry.Enabled {
		var err error
		if m, err = observability.NewMetrics(); err != nil {
			return nil, errors.Newf("initializing metrics: %w", err).
				Category(errors.CategoryConfiguration).
				Component("observability").
				Build()
		}
	}

	st, err := store.Open(settings)
	if err != nil {
		return nil, err
	}

	client, err := ws.NewClient(settings, m.WSMetrics())
	if err != nil {
		if closeErr := st.Close(); closeErr != nil {
			logging.Warn("closing store after failed startup", "error", closeErr)
		}
		return nil, err
	}

	provider := notes.NewProvider(client, st)

	engine := syncer.NewEngine(m.SyncMetrics())
	engine.Register(notes.NewSyncJob(provider, &settings.Sync, m.SyncMetrics()))

	courseOptions := courses.NewDelegate()
	courseOptions.Register(notes.NewOptionHandler(provider))

	return &App{
		Settings:  settings,
		Metrics:   m,
		Store:     st,
		WS:        client,
		Notes:     provider,
		Courses:   courseOptions,
		Engine:    engine,
		Scheduler: syncer.NewScheduler(engine, &settings.Sync),
	}, nil
}

// Close releases the runtime's resources in reverse dependency order.
func (a *App) Close() {
	a.Scheduler.Stop()
	a.WS.Close()
	if err := a.Store.Close(); err != nil {
		logging.Warn("closing store", "error", err)
	}
	syncer.CloseLogger()
}
