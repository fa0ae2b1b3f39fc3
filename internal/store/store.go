// Package store implements the per-site local relational store backing the
// offline queue. Features register named schemas; opening the store migrates
// every registered schema and records applied versions.
package store

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/msaario/campusync/internal/conf"
	"github.com/msaario/campusync/internal/errors"
	"github.com/msaario/campusync/internal/logging"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// slowQueryThreshold marks queries worth flagging in logs. Batch migration
// queries can take most of a second, so anything shorter is noise.
const slowQueryThreshold = time.Second

// Schema is a named, versioned set of models owned by one feature.
type Schema struct {
	Name    string
	Version int
	Models  []any
}

var (
	schemaMu sync.Mutex
	schemas  = map[string]Schema{}
)

// RegisterSchema records a feature schema for migration at Open time.
// Registration is idempotent; a higher version replaces a lower one and a
// repeat registration of the same version is a no-op.
func RegisterSchema(s Schema) {
	schemaMu.Lock()
	defer schemaMu.Unlock()

	if existing, ok := schemas[s.Name]; ok && existing.Version >= s.Version {
		return
	}
	schemas[s.Name] = s
}

// registeredSchemas returns a snapshot of the schema registry.
func registeredSchemas() []Schema {
	schemaMu.Lock()
	defer schemaMu.Unlock()

	out := make([]Schema, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, s)
	}
	return out
}

// Store is a per-site handle on the local database. All queue rows it
// touches are scoped by the site ID it was opened with.
type Store struct {
	db     *gorm.DB
	siteID string
	log    *slog.Logger
}

func init() {
	// The queue tables are a schema like any feature's.
	RegisterSchema(Schema{
		Name:    "core_queue",
		Version: 1,
		Models:  []any{&SchemaVersion{}, &QueuedAction{}, &DeletedMarker{}},
	})
}

// Open opens the SQLite database at the configured path, migrates every
// registered schema and returns a store scoped to the configured site.
func Open(settings *conf.Settings) (*Store, error) {
	if !settings.Store.SQLite.Enabled {
		return nil, errors.Newf("SQLite store is disabled in configuration").
			Category(errors.CategoryConfiguration).
			Component("store").
			Build()
	}

	logLevel := gormlogger.Warn
	if settings.Debug {
		logLevel = gormlogger.Info
	}
	gormLog := gormlogger.New(
		slogWriter{logging.ForService("store")},
		gormlogger.Config{
			SlowThreshold:             slowQueryThreshold,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(sqlite.Open(settings.Store.SQLite.Path), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, errors.Newf("failed to open SQLite database: %w", err).
			Category(errors.CategoryDatabase).
			Component("store").
			Context("path", settings.Store.SQLite.Path).
			Build()
	}

	s := &Store{
		db:     db,
		siteID: settings.Site.ID,
		log:    logging.ForService("store").With("site", settings.Site.ID),
	}

	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenPath opens a store at an explicit path without consulting global
// settings. Used by tests and one-shot commands.
func OpenPath(path, siteID string) (*Store, error) {
	settings := &conf.Settings{}
	settings.Store.SQLite.Enabled = true
	settings.Store.SQLite.Path = path
	settings.Site.ID = siteID
	return Open(settings)
}

// migrate auto-migrates all registered schemas and records their versions.
func (s *Store) migrate() error {
	for _, schema := range registeredSchemas() {
		if err := s.db.AutoMigrate(schema.Models...); err != nil {
			return errors.Newf("migrating schema %s: %w", schema.Name, err).
				Category(errors.CategoryDatabase).
				Component("store").
				Context("schema", schema.Name).
				Context("version", schema.Version).
				Build()
		}

		var current SchemaVersion
		err := s.db.Where("name = ?", schema.Name).First(&current).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			current = SchemaVersion{Name: schema.Name, Version: schema.Version}
			if err := s.db.Create(&current).Error; err != nil {
				return dbError("recording schema version", err)
			}
		case err != nil:
			return dbError("reading schema version", err)
		case current.Version < schema.Version:
			current.Version = schema.Version
			if err := s.db.Save(&current).Error; err != nil {
				return dbError("updating schema version", err)
			}
		}

		s.log.Debug("schema migrated", "schema", schema.Name, "version", schema.Version)
	}
	return nil
}

// SchemaVersionFor returns the applied version of a named schema, 0 if the
// schema is unknown.
func (s *Store) SchemaVersionFor(name string) (int, error) {
	var current SchemaVersion
	err := s.db.Where("name = ?", name).First(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, dbError("reading schema version", err)
	}
	return current.Version, nil
}

// SiteID returns the site this store is scoped to.
func (s *Store) SiteID() string {
	return s.siteID
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return dbError("fetching sql.DB for close", err)
	}
	return sqlDB.Close()
}

func dbError(op string, err error) error {
	return errors.Newf("%s: %w", op, err).
		Category(errors.CategoryDatabase).
		Component("store").
		Build()
}

// slogWriter adapts a slog.Logger to gorm's logger writer interface.
type slogWriter struct {
	log *slog.Logger
}

func (w slogWriter) Printf(format string, args ...any) {
	w.log.Debug(fmt.Sprintf(format, args...))
}
