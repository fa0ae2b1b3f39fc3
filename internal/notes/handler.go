package notes

import (
	"context"
	"strconv"

	"github.com/msaario/campusync/internal/courses"
	"github.com/msaario/campusync/internal/delegate"
)

// OptionHandler surfaces the notes feature as a course menu entry. It is
// enabled when the course has unsynced note activity (offline-first) or
// when the site answers the notes read, including from stale cache.
type OptionHandler struct {
	provider *Provider
}

// NewOptionHandler creates the course option handler for notes.
func NewOptionHandler(p *Provider) *OptionHandler {
	return &OptionHandler{provider: p}
}

func (h *OptionHandler) Name() string { return Component }

func (h *OptionHandler) Priority() int { return 200 }

func (h *OptionHandler) Placement() courses.Placement { return courses.PlacementMenu }

func (h *OptionHandler) Enabled(ctx context.Context, contextKey string, _ delegate.Access) (bool, error) {
	courseID, err := courseFromKey(contextKey)
	if err != nil {
		return false, err
	}

	if has, err := h.provider.HasNotesForCourse(courseID); err == nil && has {
		return true, nil
	}

	if _, err := h.provider.CourseNotes(ctx, courseID, 0); err != nil {
		return false, err
	}
	return true, nil
}

func (h *OptionHandler) DisplayData(context.Context, string) (delegate.DisplayData, error) {
	return delegate.DisplayData{
		Title:   "notes.coursenotes",
		Class:   "notes-course-option",
		Content: Component,
	}, nil
}

// Prefetch warms the course notes cache for offline use.
func (h *OptionHandler) Prefetch(ctx context.Context, contextKey string) error {
	courseID, err := courseFromKey(contextKey)
	if err != nil {
		return err
	}
	_, err = h.provider.CourseNotes(ctx, courseID, 0)
	return err
}

// InvalidateEnabledCache drops the cached notes responses for the course.
func (h *OptionHandler) InvalidateEnabledCache(contextKey string) error {
	courseID, err := courseFromKey(contextKey)
	if err != nil {
		return err
	}
	h.provider.InvalidateCourseNotes(courseID)
	return nil
}

// PendingSize estimates the bytes of note payloads awaiting upload for the
// course.
func (h *OptionHandler) PendingSize(_ context.Context, contextKey string) (int64, error) {
	courseID, err := courseFromKey(contextKey)
	if err != nil {
		return 0, err
	}
	return h.provider.store.PendingSizeBytes(Component, courseID)
}

func courseFromKey(contextKey string) (int64, error) {
	return strconv.ParseInt(contextKey, 10, 64)
}
