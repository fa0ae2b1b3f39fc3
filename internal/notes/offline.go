package notes

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/msaario/campusync/internal/errors"
	"github.com/msaario/campusync/internal/store"
)

// offlinePayload is the queued JSON body of one offline note save.
type offlinePayload struct {
	CourseID     int64        `json:"courseid"`
	PublishState PublishState `json:"publishstate"`
	Content      string       `json:"content"`
	Format       int          `json:"format"`
	Created      int64        `json:"created"`
}

// itemKey derives the queue natural key from what makes a note logically
// distinct besides its author: the content and the creation time. Saving
// the identical note twice in the same instant overwrites rather than
// duplicates.
func itemKey(content string, created time.Time) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%d:%x", created.Unix(), sum[:8])
}

// SaveNote writes a note online, falling back to the offline queue when the
// site is unreachable. It returns true when the note was queued instead of
// confirmed. A functional rejection by the site is returned as-is and
// nothing is queued.
func (p *Provider) SaveNote(ctx context.Context, userID, courseID int64, state PublishState, content string) (queued bool, err error) {
	_, err = p.createNoteOnline(ctx, userID, courseID, state, content)
	switch {
	case err == nil:
		p.InvalidateCourseNotes(courseID)
		return false, nil
	case errors.IsTransport(err):
		p.log.Info("site unreachable, queueing note",
			"user", userID, "course", courseID, "state", state)
		if qErr := p.queueNote(userID, courseID, state, content, time.Now()); qErr != nil {
			return false, qErr
		}
		return true, nil
	default:
		return false, err
	}
}

func (p *Provider) queueNote(userID, courseID int64, state PublishState, content string, created time.Time) error {
	payload, err := json.Marshal(offlinePayload{
		CourseID:     courseID,
		PublishState: state,
		Content:      content,
		Format:       1,
		Created:      created.Unix(),
	})
	if err != nil {
		return errors.Newf("encoding note payload: %w", err).
			Category(errors.CategoryParsing).
			Component(Component).
			Build()
	}

	return p.store.EnqueueAction(&store.QueuedAction{
		Component: Component,
		UserID:    userID,
		ItemKey:   itemKey(content, created),
		CourseID:  courseID,
		Payload:   string(payload),
		Created:   created,
	})
}

// DeleteNote deletes a note online, recording an offline delete marker when
// the site is unreachable. It returns true when the delete was deferred.
func (p *Provider) DeleteNote(ctx context.Context, noteID, courseID int64) (queued bool, err error) {
	err = p.deleteNotesOnline(ctx, noteID)
	switch {
	case err == nil:
		p.InvalidateCourseNotes(courseID)
		return false, nil
	case errors.IsTransport(err):
		p.log.Info("site unreachable, deferring note delete",
			"note", noteID, "course", courseID)
		if mErr := p.store.AddDeletedMarker(&store.DeletedMarker{
			Component: Component,
			TargetID:  noteID,
			CourseID:  courseID,
		}); mErr != nil {
			return false, mErr
		}
		return true, nil
	default:
		return false, err
	}
}

// UndoDeleteNote discards a pending offline delete before it syncs.
func (p *Provider) UndoDeleteNote(noteID int64) error {
	return p.store.RemoveDeletedMarker(Component, noteID)
}

// OfflineNote is one queued note save, decoded for display.
type OfflineNote struct {
	UserID       int64
	CourseID     int64
	PublishState PublishState
	Content      string
	Created      time.Time
}

// PendingNotes returns the queued note saves in enqueue order.
func (p *Provider) PendingNotes() ([]OfflineNote, error) {
	actions, err := p.store.PendingActions(Component)
	if err != nil {
		return nil, err
	}

	out := make([]OfflineNote, 0, len(actions))
	for i := range actions {
		note, err := decodeOffline(&actions[i])
		if err != nil {
			return nil, err
		}
		out = append(out, note)
	}
	return out, nil
}

func decodeOffline(a *store.QueuedAction) (OfflineNote, error) {
	var body offlinePayload
	if err := json.Unmarshal([]byte(a.Payload), &body); err != nil {
		return OfflineNote{}, errors.Newf("decoding queued note %s: %w", a.ItemKey, err).
			Category(errors.CategoryParsing).
			Component(Component).
			Build()
	}
	return OfflineNote{
		UserID:       a.UserID,
		CourseID:     body.CourseID,
		PublishState: body.PublishState,
		Content:      body.Content,
		Created:      time.Unix(body.Created, 0),
	}, nil
}

// HasNotesForCourse reports whether a course has unsynced note activity:
// queued saves or deferred deletes.
func (p *Provider) HasNotesForCourse(courseID int64) (bool, error) {
	pending, err := p.store.HasPendingForCourse(Component, courseID)
	if err != nil || pending {
		return pending, err
	}

	markers, err := p.store.DeletedMarkers(Component)
	if err != nil {
		return false, err
	}
	for _, m := range markers {
		if m.CourseID == courseID {
			return true, nil
		}
	}
	return false, nil
}
