package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/msaario/campusync/internal/conf"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// Rotating log writers keep a mill goroutine alive for the process.
		goleak.IgnoreTopFunction("gopkg.in/natefinch/lumberjack%2ev2.(*Logger).millRun"),
	)
}

func TestSchedulerRunsDueJobs(t *testing.T) {
	job := &fakeJob{name: "notes"}
	e := NewEngine(nil)
	e.Register(job)

	s := NewScheduler(e, &conf.SyncSettings{Interval: 20 * time.Millisecond})
	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool { return job.runs.Load() >= 2 },
		2*time.Second, 5*time.Millisecond, "job should run repeatedly at the interval")
}

func TestSchedulerPerJobIntervalOverride(t *testing.T) {
	fast := &fakeJob{name: "notes"}
	slow := &fakeJob{name: "comments"}
	e := NewEngine(nil)
	e.Register(fast)
	e.Register(slow)

	s := NewScheduler(e, &conf.SyncSettings{
		Interval: time.Hour,
		PerJobInterval: map[string]time.Duration{
			"notes": 15 * time.Millisecond,
		},
	})
	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool { return fast.runs.Load() >= 1 },
		2*time.Second, 5*time.Millisecond)
	assert.Zero(t, slow.runs.Load(), "hourly job must not fire during the test")
}

func TestSchedulerPicksUpJobsRegisteredAfterStart(t *testing.T) {
	e := NewEngine(nil)
	s := NewScheduler(e, &conf.SyncSettings{Interval: 15 * time.Millisecond})
	s.Start(context.Background())
	defer s.Stop()

	job := &fakeJob{name: "notes"}
	e.Register(job)

	assert.Eventually(t, func() bool { return job.runs.Load() >= 1 },
		2*time.Second, 5*time.Millisecond)
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	e := NewEngine(nil)
	e.Register(&fakeJob{name: "notes"})

	s := NewScheduler(e, &conf.SyncSettings{Interval: 10 * time.Millisecond})
	s.Start(context.Background())
	s.Stop()
	s.Stop()
}

func TestSchedulerStartTwiceKeepsOneLoop(t *testing.T) {
	e := NewEngine(nil)
	s := NewScheduler(e, &conf.SyncSettings{Interval: 10 * time.Millisecond})

	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx)
	s.Stop()
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	job := &fakeJob{name: "notes"}
	e := NewEngine(nil)
	e.Register(job)

	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(e, &conf.SyncSettings{Interval: 10 * time.Millisecond})
	s.Start(ctx)

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case <-s.done:
			return true
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond, "loop should exit when the context is cancelled")

	s.Stop()
}

func TestSchedulerRestartsAfterContextCancel(t *testing.T) {
	job := &fakeJob{name: "notes"}
	e := NewEngine(nil)
	e.Register(job)

	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(e, &conf.SyncSettings{Interval: 10 * time.Millisecond})
	s.Start(ctx)

	cancel()
	<-s.done

	runsAtRestart := job.runs.Load()
	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool { return job.runs.Load() > runsAtRestart },
		2*time.Second, 5*time.Millisecond, "a fresh Start after cancellation should resume passes")
}

type hintedJob struct {
	fakeJob
	hint time.Duration
}

func (h *hintedJob) Interval() time.Duration { return h.hint }

func TestSchedulerIntervalPrecedence(t *testing.T) {
	job := &hintedJob{fakeJob: fakeJob{name: "notes"}, hint: 20 * time.Millisecond}
	e := NewEngine(nil)
	e.Register(job)

	s := NewScheduler(e, &conf.SyncSettings{Interval: time.Hour})
	assert.Equal(t, 20*time.Millisecond, s.intervalFor("notes"), "job hint beats the global interval")

	s = NewScheduler(e, &conf.SyncSettings{
		Interval:       time.Hour,
		PerJobInterval: map[string]time.Duration{"notes": time.Minute},
	})
	assert.Equal(t, time.Minute, s.intervalFor("notes"), "configuration beats the job hint")
}

func TestSchedulerDefaultInterval(t *testing.T) {
	s := NewScheduler(NewEngine(nil), &conf.SyncSettings{})
	assert.Equal(t, 5*time.Minute, s.interval)
}
