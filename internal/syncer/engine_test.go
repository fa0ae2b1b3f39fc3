package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msaario/campusync/internal/errors"
	"github.com/msaario/campusync/internal/observability/metrics"
	"github.com/msaario/campusync/internal/store"
)

func transportErr() error {
	return errors.Newf("dial tcp: connection refused").
		Category(errors.CategoryTransport).Build()
}

func businessErr(code string) error {
	return errors.Newf("server rejected: %s", code).
		Category(errors.CategoryWebService).Build()
}

func makeActions(keys ...string) []store.QueuedAction {
	actions := make([]store.QueuedAction, len(keys))
	for i, k := range keys {
		actions[i] = store.QueuedAction{Component: "notes", UserID: 5, ItemKey: k}
	}
	return actions
}

func TestReplayConfirmsAndRemovesInOrder(t *testing.T) {
	t.Parallel()

	var applied, removed, invalidated []string
	report, err := Replay(context.Background(), ReplayOptions{
		Job:     "notes",
		Actions: makeActions("a", "b", "c"),
		Apply: func(_ context.Context, a *store.QueuedAction) error {
			applied = append(applied, a.ItemKey)
			return nil
		},
		Remove: func(a *store.QueuedAction) error {
			removed = append(removed, a.ItemKey)
			return nil
		},
		OnConfirmed: func(a *store.QueuedAction) {
			invalidated = append(invalidated, a.ItemKey)
		},
		AbortOnTransport: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, applied, "enqueue order preserved")
	assert.Equal(t, applied, removed)
	assert.Equal(t, applied, invalidated)
	assert.Equal(t, 3, report.Confirmed)
	assert.Equal(t, "success", report.Outcome())
	assert.False(t, report.Pending())
}

func TestReplayBusinessErrorKeepsQueuedAndContinues(t *testing.T) {
	t.Parallel()

	var removed []string
	report, err := Replay(context.Background(), ReplayOptions{
		Job:     "notes",
		Actions: makeActions("good", "bad", "alsogood"),
		Apply: func(_ context.Context, a *store.QueuedAction) error {
			if a.ItemKey == "bad" {
				return businessErr("invalidparameter")
			}
			return nil
		},
		Remove: func(a *store.QueuedAction) error {
			removed = append(removed, a.ItemKey)
			return nil
		},
		AbortOnTransport: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"good", "alsogood"}, removed)
	assert.Equal(t, 2, report.Confirmed)
	require.Len(t, report.Rejected, 1)
	assert.Equal(t, "bad", report.Rejected[0].ItemKey)
	assert.Equal(t, "partial", report.Outcome())
	assert.True(t, report.Pending())
}

func TestReplayTransportErrorAbortsBatch(t *testing.T) {
	t.Parallel()

	var attempts int
	report, err := Replay(context.Background(), ReplayOptions{
		Job:     "notes",
		Actions: makeActions("first", "offline", "never", "neverever"),
		Apply: func(_ context.Context, a *store.QueuedAction) error {
			attempts++
			if a.ItemKey == "offline" {
				return transportErr()
			}
			return nil
		},
		Remove:           func(*store.QueuedAction) error { return nil },
		AbortOnTransport: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, attempts, "remaining batch must not be attempted")
	assert.Equal(t, 1, report.Confirmed)
	assert.Equal(t, 3, report.Deferred)
	assert.True(t, report.Aborted)
	assert.Equal(t, "aborted", report.Outcome())
}

func TestReplayAbortCountsEveryDeferredAction(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := metrics.NewSyncMetrics(registry)
	require.NoError(t, err)

	report, err := Replay(context.Background(), ReplayOptions{
		Job:     "notes",
		Actions: makeActions("first", "offline", "never", "neverever"),
		Apply: func(_ context.Context, a *store.QueuedAction) error {
			if a.ItemKey == "offline" {
				return transportErr()
			}
			return nil
		},
		Remove:           func(*store.QueuedAction) error { return nil },
		AbortOnTransport: true,
		Metrics:          m,
	})
	require.NoError(t, err)
	require.Equal(t, 3, report.Deferred)

	assert.Equal(t, float64(report.Deferred),
		gatherCounter(t, registry, "campusync_sync_actions_replayed_total", "deferred"),
		"deferred counter must match the report")
}

// gatherCounter reads one labelled counter value from the registry.
func gatherCounter(t *testing.T, registry *prometheus.Registry, name, result string) float64 {
	t.Helper()

	families, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "result" && l.GetValue() == result {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestReplayTransportErrorContinuesWhenAbortDisabled(t *testing.T) {
	t.Parallel()

	var attempts int
	report, err := Replay(context.Background(), ReplayOptions{
		Job:     "notes",
		Actions: makeActions("first", "flaky", "second"),
		Apply: func(_ context.Context, a *store.QueuedAction) error {
			attempts++
			if a.ItemKey == "flaky" {
				return transportErr()
			}
			return nil
		},
		Remove:           func(*store.QueuedAction) error { return nil },
		AbortOnTransport: false,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, attempts)
	assert.Equal(t, 2, report.Confirmed)
	assert.Equal(t, 1, report.Deferred)
	assert.False(t, report.Aborted)
}

func TestReplayRemoveFailureIsFatal(t *testing.T) {
	t.Parallel()

	_, err := Replay(context.Background(), ReplayOptions{
		Job:     "notes",
		Actions: makeActions("a"),
		Apply:   func(context.Context, *store.QueuedAction) error { return nil },
		Remove: func(*store.QueuedAction) error {
			return errors.Newf("disk full").Category(errors.CategoryDatabase).Build()
		},
	})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDatabase))
}

func TestReplayEmptyQueueIsNetworkNoop(t *testing.T) {
	t.Parallel()

	var applied int
	for i := 0; i < 2; i++ {
		report, err := Replay(context.Background(), ReplayOptions{
			Job:     "notes",
			Actions: nil,
			Apply: func(context.Context, *store.QueuedAction) error {
				applied++
				return nil
			},
			Remove: func(*store.QueuedAction) error { return nil },
		})
		require.NoError(t, err)
		assert.Zero(t, report.Confirmed)
	}
	assert.Zero(t, applied, "no queued actions means no network calls")
}

// fakeJob implements Job with a programmable Run.
type fakeJob struct {
	name string
	run  func(ctx context.Context, passID string) (*Report, error)
	runs atomic.Int32
}

func (f *fakeJob) Name() string { return f.name }

func (f *fakeJob) Run(ctx context.Context, passID string) (*Report, error) {
	f.runs.Add(1)
	if f.run == nil {
		return &Report{}, nil
	}
	return f.run(ctx, passID)
}

func TestEngineSyncJobFillsReportMetadata(t *testing.T) {
	t.Parallel()

	e := NewEngine(nil)
	e.Register(&fakeJob{name: "notes"})

	report, err := e.SyncJob(context.Background(), "notes")
	require.NoError(t, err)
	assert.Equal(t, "notes", report.Job)
	assert.NotEmpty(t, report.PassID)
	assert.False(t, report.Started.IsZero())
	assert.False(t, report.Finished.Before(report.Started))
}

func TestEngineUnknownJob(t *testing.T) {
	t.Parallel()

	e := NewEngine(nil)
	_, err := e.SyncJob(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategorySync))
}

func TestEngineSerializesPassesPerJob(t *testing.T) {
	t.Parallel()

	var inFlight atomic.Int32
	var overlapped atomic.Bool
	job := &fakeJob{name: "notes",
		run: func(context.Context, string) (*Report, error) {
			if inFlight.Add(1) > 1 {
				overlapped.Store(true)
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
			return &Report{}, nil
		}}

	e := NewEngine(nil)
	e.Register(job)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.SyncJob(context.Background(), "notes")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.False(t, overlapped.Load(), "overlapping passes for one job must serialize")
	assert.Equal(t, int32(4), job.runs.Load())
}

func TestEngineSyncAllRunsInRegistrationOrder(t *testing.T) {
	t.Parallel()

	var order []string
	var mu sync.Mutex
	mk := func(name string) *fakeJob {
		return &fakeJob{name: name, run: func(context.Context, string) (*Report, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return &Report{}, nil
		}}
	}

	e := NewEngine(nil)
	e.Register(mk("notes"))
	e.Register(mk("comments"))

	reports, err := e.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, reports, 2)
	assert.Equal(t, []string{"notes", "comments"}, order)
}

func TestEngineLastRegistrationWins(t *testing.T) {
	t.Parallel()

	first := &fakeJob{name: "notes"}
	second := &fakeJob{name: "notes"}

	e := NewEngine(nil)
	e.Register(first)
	e.Register(second)

	_, err := e.SyncJob(context.Background(), "notes")
	require.NoError(t, err)
	assert.Zero(t, first.runs.Load())
	assert.Equal(t, int32(1), second.runs.Load())
}
