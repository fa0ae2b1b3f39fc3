package delegate

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/msaario/campusync/internal/logging"
)

// resolution is one in-flight recomputation of a context's enabled handlers.
// Callers arriving while it runs await done and share its outcome.
type resolution[H Handler] struct {
	generation uint64
	done       chan struct{}
	list       []H
	err        error
}

// contextEntry tracks resolution state for one context key.
type contextEntry[H Handler] struct {
	generation uint64 // newest started generation for this context
	loaded     bool
	enabled    []H // last committed list
	pending    *resolution[H]
}

// Delegate is a registry of handlers for one extension point. It resolves
// which handlers are enabled for a context, ranks them by priority and
// memoizes the result per context key.
//
// Resolution races follow a newest-wins rule: when recomputations overlap,
// only the most recently started one commits its result; an older
// computation finishing late returns its list to its own callers but is not
// cached.
type Delegate[H Handler] struct {
	name string
	log  *slog.Logger

	mu       sync.Mutex
	handlers []H            // insertion order preserved for stable ties
	byName   map[string]int // handler index by name, last registration wins
	contexts map[string]*contextEntry[H]
}

// New creates a delegate for the named extension point.
func New[H Handler](name string) *Delegate[H] {
	return &Delegate[H]{
		name:     name,
		log:      logging.ForService("delegate").With("point", name),
		byName:   make(map[string]int),
		contexts: make(map[string]*contextEntry[H]),
	}
}

// Register adds a handler. A handler re-registering an existing name
// replaces the previous one in place, keeping its original rank among
// equal priorities.
func (d *Delegate[H]) Register(h H) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if idx, ok := d.byName[h.Name()]; ok {
		d.handlers[idx] = h
		d.log.Debug("handler replaced", "handler", h.Name())
		return
	}
	d.byName[h.Name()] = len(d.handlers)
	d.handlers = append(d.handlers, h)
	d.log.Debug("handler registered", "handler", h.Name(), "priority", h.Priority())
}

// Lookup returns the registered handler with the given name.
func (d *Delegate[H]) Lookup(name string) (H, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var zero H
	idx, ok := d.byName[name]
	if !ok {
		return zero, false
	}
	return d.handlers[idx], true
}

// Handlers returns all registered handlers in registration order.
func (d *Delegate[H]) Handlers() []H {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]H, len(d.handlers))
	copy(out, d.handlers)
	return out
}

// ResolveForContext returns the handlers enabled for the given context,
// sorted by descending priority, stable on ties.
//
// With refresh=false a previously committed list is reused; if a
// recomputation is already in flight its result is awaited and shared.
// refresh=true always starts a new recomputation; see the newest-wins rule
// on Delegate.
func (d *Delegate[H]) ResolveForContext(ctx context.Context, contextKey string, refresh bool, access Access) ([]H, error) {
	d.mu.Lock()

	entry, ok := d.contexts[contextKey]
	if !ok {
		entry = &contextEntry[H]{}
		d.contexts[contextKey] = entry
	}

	if !refresh {
		if entry.pending != nil {
			p := entry.pending
			d.mu.Unlock()
			return awaitResolution(ctx, p)
		}
		if entry.loaded {
			list := copyList(entry.enabled)
			d.mu.Unlock()
			return list, nil
		}
	}

	entry.generation++
	res := &resolution[H]{
		generation: entry.generation,
		done:       make(chan struct{}),
	}
	entry.pending = res
	snapshot := make([]H, len(d.handlers))
	copy(snapshot, d.handlers)
	d.mu.Unlock()

	go d.resolve(ctx, contextKey, entry, res, snapshot, access)

	return awaitResolution(ctx, res)
}

// resolve runs the enablement predicates and commits the result unless a
// newer recomputation has started meanwhile.
func (d *Delegate[H]) resolve(ctx context.Context, contextKey string, entry *contextEntry[H], res *resolution[H], snapshot []H, access Access) {
	var enabled []H
	for _, h := range snapshot {
		if ctx.Err() != nil {
			// The initiating caller went away; do not commit a list computed
			// against a cancelled context.
			res.err = ctx.Err()
			d.mu.Lock()
			if entry.pending == res {
				entry.pending = nil
			}
			d.mu.Unlock()
			close(res.done)
			return
		}
		ok, err := h.Enabled(ctx, contextKey, access)
		if err != nil {
			// A failing predicate never aborts resolution for the others.
			d.log.Warn("handler enablement check failed, excluding handler",
				"handler", h.Name(), "context", contextKey, "error", err)
			continue
		}
		if ok {
			enabled = append(enabled, h)
		}
	}

	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].Priority() > enabled[j].Priority()
	})

	res.list = enabled

	d.mu.Lock()
	if entry.generation == res.generation {
		entry.enabled = enabled
		entry.loaded = true
		entry.pending = nil
	} else {
		d.log.Debug("discarding stale resolution",
			"context", contextKey, "generation", res.generation, "newest", entry.generation)
		if entry.pending == res {
			entry.pending = nil
		}
	}
	d.mu.Unlock()

	close(res.done)
}

func awaitResolution[H Handler](ctx context.Context, res *resolution[H]) ([]H, error) {
	select {
	case <-res.done:
		return copyList(res.list), res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops the committed resolution for one context. The next
// non-refresh resolve recomputes it.
func (d *Delegate[H]) Invalidate(contextKey string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.contexts, contextKey)
}

// InvalidateAll drops every committed resolution, e.g. on logout.
func (d *Delegate[H]) InvalidateAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contexts = make(map[string]*contextEntry[H])
}

func copyList[H Handler](in []H) []H {
	if in == nil {
		return nil
	}
	out := make([]H, len(in))
	copy(out, in)
	return out
}
