// Package notes implements the course notes feature end to end: the online
// provider over the notes web services, the offline queue for saves and
// deletes made without connectivity, the sync job that replays them, and the
// course option handler that surfaces the feature.
package notes

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/msaario/campusync/internal/errors"
	"github.com/msaario/campusync/internal/logging"
	"github.com/msaario/campusync/internal/store"
	"github.com/msaario/campusync/internal/ws"
)

// Component is the feature name used for queue scoping, sync job
// registration and course option registration.
const Component = "notes"

const (
	fnGetCourseNotes = "notes_get_course_notes"
	fnCreateNotes    = "notes_create_notes"
	fnDeleteNotes    = "notes_delete_notes"
)

// PublishState controls who can see a note.
type PublishState string

const (
	StatePersonal PublishState = "personal"
	StateCourse   PublishState = "course"
	StateSite     PublishState = "site"
)

// Note is one note as returned by the site.
type Note struct {
	ID           int64        `json:"id"`
	UserID       int64        `json:"userid"`
	CourseID     int64        `json:"courseid"`
	Content      string       `json:"content"`
	Format       int          `json:"format"`
	Created      int64        `json:"created"`
	LastModified int64        `json:"lastmodified"`
	PublishState PublishState `json:"publishstate"`
}

// CourseNotes is the notes_get_course_notes response: the notes visible to
// the requesting user in a course, grouped by publish state.
type CourseNotes struct {
	SiteNotes            []Note `json:"sitenotes"`
	CourseNotes          []Note `json:"coursenotes"`
	PersonalNotes        []Note `json:"personalnotes"`
	CanManageCourseNotes bool   `json:"canmanagecoursenotes"`
}

// Provider is the notes feature façade: online reads and writes with
// response caching, falling back to the offline queue when the site is
// unreachable.
type Provider struct {
	ws    *ws.Client
	store *store.Store
	log   *slog.Logger
}

// NewProvider creates the notes provider over a site client and its local
// store.
func NewProvider(client *ws.Client, st *store.Store) *Provider {
	return &Provider{ws: client, store: st, log: logging.ForService(Component)}
}

func courseNotesKey(courseID, userID int64) string {
	return fmt.Sprintf("notes:course:%d:user:%d", courseID, userID)
}

// CourseNotes fetches the notes visible to a user in a course. Responses are
// cached per course and user; an expired entry is served when the site is
// unreachable. userID zero requests the caller's own view.
func (p *Provider) CourseNotes(ctx context.Context, courseID, userID int64) (*CourseNotes, error) {
	params := ws.Params{"courseid": strconv.FormatInt(courseID, 10)}
	if userID > 0 {
		params["userid"] = strconv.FormatInt(userID, 10)
	}

	var out CourseNotes
	err := p.ws.Call(ctx, fnGetCourseNotes, params, &ws.Preset{
		CacheKey:          courseNotesKey(courseID, userID),
		ServeStaleOnError: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// createResult is one entry of the notes_create_notes response. The endpoint
// reports per-note failures inside a successful response: noteid is negative
// and errormessage is set.
type createResult struct {
	ClientNoteID string `json:"clientnoteid"`
	NoteID       int64  `json:"noteid"`
	ErrorMessage string `json:"errormessage"`
}

func (p *Provider) createNoteOnline(ctx context.Context, userID, courseID int64, state PublishState, content string) (int64, error) {
	params := ws.Params{
		"notes[0][userid]":       strconv.FormatInt(userID, 10),
		"notes[0][courseid]":     strconv.FormatInt(courseID, 10),
		"notes[0][publishstate]": string(state),
		"notes[0][text]":         content,
		"notes[0][format]":       "1",
	}

	var results []createResult
	if err := p.ws.Call(ctx, fnCreateNotes, params, nil, &results); err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, errors.Newf("%s returned no result entries", fnCreateNotes).
			Category(errors.CategoryWebService).
			Component(Component).
			Build()
	}
	if r := results[0]; r.NoteID < 0 {
		return 0, errors.Newf("note rejected by site: %s", r.ErrorMessage).
			Category(errors.CategoryWebService).
			Component(Component).
			Context("course_id", courseID).
			Build()
	}
	return results[0].NoteID, nil
}

func (p *Provider) deleteNotesOnline(ctx context.Context, ids ...int64) error {
	params := ws.Params{}
	for i, id := range ids {
		params[fmt.Sprintf("notes[%d]", i)] = strconv.FormatInt(id, 10)
	}
	return p.ws.Call(ctx, fnDeleteNotes, params, nil, nil)
}

// InvalidateCourseNotes drops every cached notes response for a course, for
// all user views.
func (p *Provider) InvalidateCourseNotes(courseID int64) {
	p.ws.InvalidatePrefix(fmt.Sprintf("notes:course:%d:", courseID))
}
