package notes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/msaario/campusync/internal/conf"
	"github.com/msaario/campusync/internal/errors"
	"github.com/msaario/campusync/internal/observability/metrics"
	"github.com/msaario/campusync/internal/store"
	"github.com/msaario/campusync/internal/syncer"
)

// SyncJob replays the notes offline queue: queued saves first, then
// deferred deletes. Outcomes follow the shared replay policy.
type SyncJob struct {
	provider         *Provider
	abortOnTransport bool
	metrics          *metrics.SyncMetrics
}

// NewSyncJob creates the notes sync job. The metrics argument may be nil.
func NewSyncJob(p *Provider, settings *conf.SyncSettings, m *metrics.SyncMetrics) *SyncJob {
	return &SyncJob{
		provider:         p,
		abortOnTransport: settings.AbortOnTransportError,
		metrics:          m,
	}
}

// Name implements syncer.Job.
func (j *SyncJob) Name() string { return Component }

// Run implements syncer.Job.
func (j *SyncJob) Run(ctx context.Context, passID string) (*syncer.Report, error) {
	actions, err := j.provider.store.PendingActions(Component)
	if err != nil {
		return nil, err
	}

	report, err := syncer.Replay(ctx, syncer.ReplayOptions{
		Job:     Component,
		Actions: actions,
		Apply:   j.applySave,
		Remove: func(a *store.QueuedAction) error {
			return j.provider.store.RemoveAction(Component, a.UserID, a.ItemKey)
		},
		OnConfirmed: func(a *store.QueuedAction) {
			j.provider.InvalidateCourseNotes(a.CourseID)
		},
		AbortOnTransport: j.abortOnTransport,
		Metrics:          j.metrics,
	})
	if err != nil {
		return nil, err
	}
	if report.Aborted {
		// The site is presumed unreachable; spare the deletes the same
		// failure and let the next pass retry everything.
		return report, nil
	}

	deletes, err := j.replayDeletes(ctx)
	if err != nil {
		return nil, err
	}
	merge(report, deletes)

	if depth, err := j.provider.store.CountPending(Component); err == nil {
		j.metrics.SetQueueDepth(Component, depth)
	}

	if report.Pending() {
		j.provider.log.Warn("notes sync pass left work queued",
			"pass", passID,
			"rejected", len(report.Rejected),
			"deferred", report.Deferred)
	}
	return report, nil
}

// applySave replays one queued note save through the online create path.
func (j *SyncJob) applySave(ctx context.Context, a *store.QueuedAction) error {
	var body offlinePayload
	if err := json.Unmarshal([]byte(a.Payload), &body); err != nil {
		return errors.Newf("decoding queued note %s: %w", a.ItemKey, err).
			Category(errors.CategoryParsing).
			Component(Component).
			Build()
	}
	_, err := j.provider.createNoteOnline(ctx, a.UserID, body.CourseID, body.PublishState, body.Content)
	return err
}

// replayDeletes runs deferred note deletes through the same replay loop,
// carrying the note id in the action's instance field.
func (j *SyncJob) replayDeletes(ctx context.Context) (*syncer.Report, error) {
	markers, err := j.provider.store.DeletedMarkers(Component)
	if err != nil {
		return nil, err
	}

	pseudo := make([]store.QueuedAction, len(markers))
	for i, m := range markers {
		pseudo[i] = store.QueuedAction{
			Component:  Component,
			ItemKey:    fmt.Sprintf("delete:%d", m.TargetID),
			CourseID:   m.CourseID,
			InstanceID: m.TargetID,
		}
	}

	return syncer.Replay(ctx, syncer.ReplayOptions{
		Job:     Component,
		Actions: pseudo,
		Apply: func(ctx context.Context, a *store.QueuedAction) error {
			return j.provider.deleteNotesOnline(ctx, a.InstanceID)
		},
		Remove: func(a *store.QueuedAction) error {
			return j.provider.store.RemoveDeletedMarker(Component, a.InstanceID)
		},
		OnConfirmed: func(a *store.QueuedAction) {
			j.provider.InvalidateCourseNotes(a.CourseID)
		},
		AbortOnTransport: j.abortOnTransport,
		Metrics:          j.metrics,
	})
}

func merge(into, from *syncer.Report) {
	into.Confirmed += from.Confirmed
	into.Rejected = append(into.Rejected, from.Rejected...)
	into.Deferred += from.Deferred
	into.Aborted = into.Aborted || from.Aborted
}
