package syncer

import (
	"context"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/msaario/campusync/internal/errors"
	"github.com/msaario/campusync/internal/logging"
	"github.com/msaario/campusync/internal/observability/metrics"
	"github.com/msaario/campusync/internal/store"
)

// Package-level logger specific to the sync service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "sync.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "syncer", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize sync file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "syncer")
		closeLogger = func() error { return nil }
	}
}

// Job is a registered sync job for one feature's offline queue.
type Job interface {
	// Name identifies the job, also used as the queue component name.
	Name() string
	// Run replays the feature's queued actions and reports the outcome.
	Run(ctx context.Context, passID string) (*Report, error)
}

// IntervalHinter is an optional Job hook: a job may suggest its own sync
// cadence. Configuration overrides the hint.
type IntervalHinter interface {
	Interval() time.Duration
}

// Engine holds the registered sync jobs and runs them with per-job
// serialization: a manual pass racing a scheduled pass for the same job
// waits rather than replaying the same queue concurrently.
type Engine struct {
	metrics *metrics.SyncMetrics

	mu    sync.Mutex
	jobs  []Job
	index map[string]int
	locks map[string]*sync.Mutex
}

// NewEngine creates an engine. The metrics argument may be nil.
func NewEngine(m *metrics.SyncMetrics) *Engine {
	return &Engine{
		metrics: m,
		index:   make(map[string]int),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Register adds a sync job. Re-registering a name replaces the previous job.
func (e *Engine) Register(job Job) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if idx, ok := e.index[job.Name()]; ok {
		e.jobs[idx] = job
		return
	}
	e.index[job.Name()] = len(e.jobs)
	e.jobs = append(e.jobs, job)
	e.locks[job.Name()] = &sync.Mutex{}
	logger.Debug("sync job registered", "job", job.Name())
}

// Lookup returns the registered job with the given name.
func (e *Engine) Lookup(name string) (Job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, ok := e.index[name]
	if !ok {
		return nil, false
	}
	return e.jobs[idx], true
}

// Jobs returns the registered jobs in registration order.
func (e *Engine) Jobs() []Job {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Job, len(e.jobs))
	copy(out, e.jobs)
	return out
}

// SyncJob runs one named job and returns its report.
func (e *Engine) SyncJob(ctx context.Context, name string) (*Report, error) {
	e.mu.Lock()
	idx, ok := e.index[name]
	if !ok {
		e.mu.Unlock()
		return nil, errors.Newf("unknown sync job %q", name).
			Category(errors.CategorySync).
			Component("syncer").
			Build()
	}
	job := e.jobs[idx]
	lock := e.locks[name]
	e.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	passID := uuid.NewString()
	started := time.Now()
	logger.Info("sync pass starting", "job", name, "pass", passID)

	report, err := job.Run(ctx, passID)
	duration := time.Since(started)
	if err != nil {
		e.metrics.RecordPass(name, "error", duration)
		logger.Error("sync pass failed", "job", name, "pass", passID, "error", err)
		return nil, err
	}

	report.PassID = passID
	report.Job = name
	report.Started = started
	report.Finished = time.Now()

	e.metrics.RecordPass(name, report.Outcome(), duration)
	logger.Info("sync pass finished",
		"job", name,
		"pass", passID,
		"outcome", report.Outcome(),
		"confirmed", report.Confirmed,
		"rejected", len(report.Rejected),
		"deferred", report.Deferred,
		"duration_ms", duration.Milliseconds())

	return report, nil
}

// SyncAll runs every registered job in registration order. A job error stops
// the run and returns the reports collected so far alongside the error.
func (e *Engine) SyncAll(ctx context.Context) ([]*Report, error) {
	var reports []*Report
	for _, job := range e.Jobs() {
		if ctx.Err() != nil {
			return reports, ctx.Err()
		}
		report, err := e.SyncJob(ctx, job.Name())
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// ReplayOptions parameterizes the generic queue replay loop shared by all
// sync jobs.
type ReplayOptions struct {
	// Job names the owning sync job, for logs and metrics.
	Job string
	// Actions is the batch to replay, in enqueue order.
	Actions []store.QueuedAction
	// Apply performs the online write for one action.
	Apply func(ctx context.Context, action *store.QueuedAction) error
	// Remove deletes the action from the queue after a confirmed replay.
	Remove func(action *store.QueuedAction) error
	// OnConfirmed runs after a confirmed replay, e.g. cache invalidation.
	// Optional.
	OnConfirmed func(action *store.QueuedAction)
	// AbortOnTransport stops the batch on the first connectivity failure,
	// assuming the whole device is offline.
	AbortOnTransport bool
	// Metrics may be nil.
	Metrics *metrics.SyncMetrics
}

// Replay runs the queue replay loop: every action is applied in order;
// confirmed actions leave the queue, web-service rejections stay queued and
// are reported, and a transport failure either defers the remaining batch
// (AbortOnTransport) or defers just the failing action.
//
// A local-storage failure while removing a confirmed action is fatal to the
// pass: continuing could replay the action twice.
func Replay(ctx context.Context, opts ReplayOptions) (*Report, error) {
	report := &Report{Job: opts.Job}

	for i := range opts.Actions {
		action := &opts.Actions[i]

		if err := ctx.Err(); err != nil {
			remaining := len(opts.Actions) - i
			report.Deferred += remaining
			report.Aborted = true
			for j := 0; j < remaining; j++ {
				opts.Metrics.RecordActionReplayed(opts.Job, "deferred")
			}
			return report, nil
		}

		err := opts.Apply(ctx, action)
		switch {
		case err == nil:
			if rmErr := opts.Remove(action); rmErr != nil {
				return nil, errors.Newf("removing confirmed action %s: %w", action.ItemKey, rmErr).
					Category(errors.CategoryDatabase).
					Component("syncer").
					Context("job", opts.Job).
					Build()
			}
			if opts.OnConfirmed != nil {
				opts.OnConfirmed(action)
			}
			report.Confirmed++
			opts.Metrics.RecordActionReplayed(opts.Job, "confirmed")

		case errors.IsTransport(err):
			if opts.AbortOnTransport {
				// Assume the whole device is offline and spare the rest of
				// the batch the same failure.
				remaining := len(opts.Actions) - i
				report.Deferred += remaining
				report.Aborted = true
				opts.Metrics.RecordBatchAbort(opts.Job)
				for j := 0; j < remaining; j++ {
					opts.Metrics.RecordActionReplayed(opts.Job, "deferred")
				}
				logger.Warn("sync batch aborted on transport failure",
					"job", opts.Job, "key", action.ItemKey, "remaining", report.Deferred)
				return report, nil
			}
			report.Deferred++
			opts.Metrics.RecordActionReplayed(opts.Job, "deferred")
			logger.Warn("action deferred on transport failure",
				"job", opts.Job, "key", action.ItemKey, "error", err)

		default:
			// Functional rejection or unexpected failure: surface it, keep
			// the action queued for manual retry or deletion.
			report.Rejected = append(report.Rejected, Rejection{
				ItemKey: action.ItemKey,
				Message: err.Error(),
			})
			opts.Metrics.RecordActionReplayed(opts.Job, "rejected")
			logger.Warn("action rejected by server",
				"job", opts.Job, "key", action.ItemKey, "error", err)
		}
	}

	return report, nil
}

// CloseLogger flushes and closes the sync service log file.
func CloseLogger() {
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing sync logger: %v", err)
		}
	}
}
