package delegate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHandler implements Handler with a programmable predicate.
type fakeHandler struct {
	name     string
	priority int
	enabled  func(ctx context.Context, key string, access Access) (bool, error)
	calls    atomic.Int32
}

func (f *fakeHandler) Name() string  { return f.name }
func (f *fakeHandler) Priority() int { return f.priority }

func (f *fakeHandler) Enabled(ctx context.Context, key string, access Access) (bool, error) {
	f.calls.Add(1)
	if f.enabled == nil {
		return true, nil
	}
	return f.enabled(ctx, key, access)
}

func (f *fakeHandler) DisplayData(ctx context.Context, key string) (DisplayData, error) {
	return DisplayData{Title: f.name}, nil
}

func alwaysEnabled(name string, priority int) *fakeHandler {
	return &fakeHandler{name: name, priority: priority}
}

func neverEnabled(name string, priority int) *fakeHandler {
	return &fakeHandler{name: name, priority: priority,
		enabled: func(context.Context, string, Access) (bool, error) { return false, nil }}
}

func names(hs []*fakeHandler) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.Name()
	}
	return out
}

func TestResolveSortsByPriorityStable(t *testing.T) {
	t.Parallel()

	// A (priority 10, enabled), B (priority 20, disabled), C (priority 20,
	// enabled), registered in order A,B,C: resolved list must be [C, A].
	d := New[*fakeHandler]("courseoptions")
	d.Register(alwaysEnabled("a", 10))
	d.Register(neverEnabled("b", 20))
	d.Register(alwaysEnabled("c", 20))

	list, err := d.ResolveForContext(context.Background(), "course:7", false, Access{})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, names(list))
}

func TestResolveStableOnEqualPriority(t *testing.T) {
	t.Parallel()

	d := New[*fakeHandler]("courseoptions")
	for _, n := range []string{"first", "second", "third"} {
		d.Register(alwaysEnabled(n, 5))
	}

	list, err := d.ResolveForContext(context.Background(), "course:1", false, Access{})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, names(list))
}

func TestFailingPredicateExcludesOnlyThatHandler(t *testing.T) {
	t.Parallel()

	d := New[*fakeHandler]("courseoptions")
	d.Register(alwaysEnabled("ok", 10))
	d.Register(&fakeHandler{name: "broken", priority: 50,
		enabled: func(context.Context, string, Access) (bool, error) {
			return false, fmt.Errorf("backend exploded")
		}})
	d.Register(alwaysEnabled("alsook", 20))

	list, err := d.ResolveForContext(context.Background(), "course:2", false, Access{})
	require.NoError(t, err)
	assert.Equal(t, []string{"alsook", "ok"}, names(list))
}

func TestLastRegistrationWins(t *testing.T) {
	t.Parallel()

	d := New[*fakeHandler]("courseoptions")
	d.Register(neverEnabled("notes", 10))
	d.Register(alwaysEnabled("notes", 30))

	list, err := d.ResolveForContext(context.Background(), "course:3", false, Access{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 30, list[0].Priority())

	got, ok := d.Lookup("notes")
	require.True(t, ok)
	assert.Equal(t, 30, got.Priority())
}

func TestResolveMemoizesPerContext(t *testing.T) {
	t.Parallel()

	h := alwaysEnabled("cached", 1)
	d := New[*fakeHandler]("courseoptions")
	d.Register(h)

	_, err := d.ResolveForContext(context.Background(), "course:4", false, Access{})
	require.NoError(t, err)
	_, err = d.ResolveForContext(context.Background(), "course:4", false, Access{})
	require.NoError(t, err)

	assert.Equal(t, int32(1), h.calls.Load(), "second resolve must reuse the committed list")

	d.Invalidate("course:4")
	_, err = d.ResolveForContext(context.Background(), "course:4", false, Access{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), h.calls.Load())
}

func TestConcurrentCallersShareInFlightResolution(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h := &fakeHandler{name: "slow", priority: 1,
		enabled: func(ctx context.Context, _ string, _ Access) (bool, error) {
			once.Do(func() { close(started) })
			<-release
			return true, nil
		}}
	d := New[*fakeHandler]("courseoptions")
	d.Register(h)

	var wg sync.WaitGroup
	results := make([][]*fakeHandler, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			list, err := d.ResolveForContext(context.Background(), "course:5", false, Access{})
			assert.NoError(t, err)
			results[i] = list
		}()
		if i == 0 {
			<-started // second caller must join the in-flight resolution
		}
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), h.calls.Load(), "callers must share one computation")
	assert.Len(t, results[0], 1)
	assert.Len(t, results[1], 1)
}

func TestNewerResolutionWinsOverStale(t *testing.T) {
	t.Parallel()

	// Two refreshes for the same context: the first started blocks until the
	// second finished; only the second's result may be committed.
	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	var attempt atomic.Int32
	h := &fakeHandler{name: "racy", priority: 1,
		enabled: func(ctx context.Context, _ string, _ Access) (bool, error) {
			if attempt.Add(1) == 1 {
				close(firstStarted)
				<-releaseFirst
				return true, nil // stale computation says enabled
			}
			return false, nil // newest computation says disabled
		}}
	d := New[*fakeHandler]("courseoptions")
	d.Register(h)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := d.ResolveForContext(context.Background(), "course:7", true, Access{})
		assert.NoError(t, err)
	}()
	<-firstStarted

	list, err := d.ResolveForContext(context.Background(), "course:7", true, Access{})
	require.NoError(t, err)
	assert.Empty(t, list)

	close(releaseFirst)
	wg.Wait()

	// The stale computation finished after the newer one: the committed
	// cached list must still be the newer (empty) one.
	cached, err := d.ResolveForContext(context.Background(), "course:7", false, Access{})
	require.NoError(t, err)
	assert.Empty(t, cached)
	assert.Equal(t, int32(2), attempt.Load(), "cached read must not recompute")
}

func TestInvalidateAllDropsEveryContext(t *testing.T) {
	t.Parallel()

	h := alwaysEnabled("x", 1)
	d := New[*fakeHandler]("profileactions")
	d.Register(h)

	for _, key := range []string{"user:1", "user:2"} {
		_, err := d.ResolveForContext(context.Background(), key, false, Access{})
		require.NoError(t, err)
	}
	d.InvalidateAll()
	for _, key := range []string{"user:1", "user:2"} {
		_, err := d.ResolveForContext(context.Background(), key, false, Access{})
		require.NoError(t, err)
	}

	assert.Equal(t, int32(4), h.calls.Load())
}

func TestOptionalHooksDefaultToNeutral(t *testing.T) {
	t.Parallel()

	h := alwaysEnabled("plain", 1)

	assert.NoError(t, Prefetch(context.Background(), h, "course:1"))
	assert.NoError(t, InvalidateEnabledCache(h, "course:1"))

	size, err := PendingSize(context.Background(), h, "course:1")
	require.NoError(t, err)
	assert.Zero(t, size)
}
