package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/msaario/campusync/internal/conf"
)

// Scheduler drives periodic sync passes for every registered job. Each job
// runs at the global interval unless the configuration overrides it per job.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	perJob   map[string]time.Duration

	mu        sync.Mutex
	nextRun   map[string]time.Time
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewScheduler creates a scheduler over the engine using the sync settings.
func NewScheduler(engine *Engine, settings *conf.SyncSettings) *Scheduler {
	interval := settings.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		engine:   engine,
		interval: interval,
		perJob:   settings.PerJobInterval,
		nextRun:  make(map[string]time.Time),
	}
}

// intervalFor returns the effective interval for a job: configuration
// override first, then the job's own hint, then the global interval.
func (s *Scheduler) intervalFor(job string) time.Duration {
	if iv, ok := s.perJob[job]; ok && iv > 0 {
		return iv
	}
	if j, ok := s.engine.Lookup(job); ok {
		if h, ok := j.(IntervalHinter); ok {
			if iv := h.Interval(); iv > 0 {
				return iv
			}
		}
	}
	return s.interval
}

// Start begins the scheduling loop. It returns immediately; passes run on a
// background goroutine until Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.isRunning = true
	s.done = make(chan struct{})

	now := time.Now()
	for _, job := range s.engine.Jobs() {
		s.nextRun[job.Name()] = now.Add(s.intervalFor(job.Name()))
	}

	go s.run(ctx)
	logger.Info("sync scheduler started", "interval", s.interval, "jobs", len(s.nextRun))
}

// Stop halts the scheduling loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
	logger.Info("sync scheduler stopped")
}

// run is the scheduling loop: sleep until the soonest due job, run every due
// job, reschedule.
func (s *Scheduler) run(ctx context.Context) {
	// Clear the running flag before signalling done, so a Start issued
	// after the parent context is cancelled brings the loop back up.
	defer func() {
		s.mu.Lock()
		s.isRunning = false
		close(s.done)
		s.mu.Unlock()
	}()

	for {
		wait := s.untilNextDue()
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		for _, name := range s.dueJobs() {
			if ctx.Err() != nil {
				return
			}
			if _, err := s.engine.SyncJob(ctx, name); err != nil {
				logger.Error("scheduled sync pass failed", "job", name, "error", err)
			}
			s.reschedule(name)
		}
	}
}

// untilNextDue returns how long to sleep before the soonest scheduled job.
func (s *Scheduler) untilNextDue() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	// New jobs may have been registered since Start.
	now := time.Now()
	for _, job := range s.engine.Jobs() {
		if _, ok := s.nextRun[job.Name()]; !ok {
			s.nextRun[job.Name()] = now.Add(s.intervalFor(job.Name()))
		}
	}

	soonest := time.Duration(-1)
	for _, at := range s.nextRun {
		d := time.Until(at)
		if d < 0 {
			d = 0
		}
		if soonest < 0 || d < soonest {
			soonest = d
		}
	}
	if soonest < 0 {
		// No jobs yet: poll for registrations at the global interval.
		soonest = s.interval
	}
	return soonest
}

// dueJobs returns the names of jobs whose next run time has passed.
func (s *Scheduler) dueJobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var due []string
	for name, at := range s.nextRun {
		if !at.After(now) {
			due = append(due, name)
		}
	}
	return due
}

// reschedule pushes a job's next run one interval into the future.
func (s *Scheduler) reschedule(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRun[name] = time.Now().Add(s.intervalFor(name))
}
