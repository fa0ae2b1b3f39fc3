// Package delegate implements the generic plugin registry used by extension
// points: feature handlers register against a delegate, which resolves the
// enabled set for a given context and ranks it by priority.
package delegate

import "context"

// Access describes how the current user reaches a context (for example a
// course): the resolved access type plus free-form data the enablement
// predicates may need.
type Access struct {
	Type string
	Data map[string]any
}

// DisplayData is what a handler contributes to the UI layer for one
// extension point entry.
type DisplayData struct {
	Title   string // translated title key
	Class   string // visual class hint
	Content string // content reference rendered when the entry is opened
}

// Handler is the minimum contract a feature implements to plug into an
// extension point.
//
// Enabled may block on network or storage and must honor ctx. An error from
// Enabled excludes only this handler from resolution.
type Handler interface {
	// Name uniquely identifies the handler within its delegate.
	Name() string
	// Priority ranks the handler in resolved lists, higher first.
	Priority() int
	// Enabled reports whether the handler applies to the given context.
	Enabled(ctx context.Context, contextKey string, access Access) (bool, error)
	// DisplayData produces the entry shown for this handler.
	DisplayData(ctx context.Context, contextKey string) (DisplayData, error)
}

// Optional handler hooks. Callers probe for these with type assertions and
// fall back to a neutral result when a handler does not implement them.

// Prefetcher is implemented by handlers that can warm their data for
// offline use.
type Prefetcher interface {
	Prefetch(ctx context.Context, contextKey string) error
}

// Invalidator is implemented by handlers that cache enablement state of
// their own and need to be told when it goes stale.
type Invalidator interface {
	InvalidateEnabledCache(contextKey string) error
}

// Sizer is implemented by handlers that can estimate the size of data
// pending upload for a context.
type Sizer interface {
	PendingSize(ctx context.Context, contextKey string) (int64, error)
}

// Prefetch invokes the handler's Prefetch hook if present, no-op otherwise.
func Prefetch(ctx context.Context, h Handler, contextKey string) error {
	if p, ok := h.(Prefetcher); ok {
		return p.Prefetch(ctx, contextKey)
	}
	return nil
}

// InvalidateEnabledCache invokes the handler's Invalidator hook if present.
func InvalidateEnabledCache(h Handler, contextKey string) error {
	if i, ok := h.(Invalidator); ok {
		return i.InvalidateEnabledCache(contextKey)
	}
	return nil
}

// PendingSize invokes the handler's Sizer hook if present, zero otherwise.
func PendingSize(ctx context.Context, h Handler, contextKey string) (int64, error) {
	if s, ok := h.(Sizer); ok {
		return s.PendingSize(ctx, contextKey)
	}
	return 0, nil
}
