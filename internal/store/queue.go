package store

import (
	"time"

	"gorm.io/gorm/clause"
)

// EnqueueAction persists a pending action. When a record with the same
// natural key already exists the new payload overwrites it (last-write-wins:
// the key already disambiguates logically distinct actions).
func (s *Store) EnqueueAction(a *QueuedAction) error {
	a.SiteID = s.siteID
	if a.Created.IsZero() {
		a.Created = time.Now()
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "site_id"}, {Name: "component"}, {Name: "user_id"}, {Name: "item_key"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"course_id", "instance_id", "payload", "created", "updated_at",
		}),
	}).Create(a).Error
	if err != nil {
		return dbError("enqueueing action", err)
	}

	s.log.Debug("action queued",
		"component", a.Component, "user", a.UserID, "key", a.ItemKey, "course", a.CourseID)
	return nil
}

// PendingActions returns the queued actions for a component in enqueue
// order. An empty component returns the whole site queue.
func (s *Store) PendingActions(component string) ([]QueuedAction, error) {
	q := s.db.Where("site_id = ?", s.siteID)
	if component != "" {
		q = q.Where("component = ?", component)
	}

	var actions []QueuedAction
	if err := q.Order("created ASC, id ASC").Find(&actions).Error; err != nil {
		return nil, dbError("listing pending actions", err)
	}
	return actions, nil
}

// PendingActionsForUser returns a user's queued actions for a component in
// enqueue order.
func (s *Store) PendingActionsForUser(component string, userID int64) ([]QueuedAction, error) {
	var actions []QueuedAction
	err := s.db.
		Where("site_id = ? AND component = ? AND user_id = ?", s.siteID, component, userID).
		Order("created ASC, id ASC").
		Find(&actions).Error
	if err != nil {
		return nil, dbError("listing pending actions for user", err)
	}
	return actions, nil
}

// RemoveAction deletes one queued action by natural key. Removal is atomic
// per key: a concurrent sync pass observing the queue after removal sees no
// record for the key.
func (s *Store) RemoveAction(component string, userID int64, itemKey string) error {
	err := s.db.
		Where("site_id = ? AND component = ? AND user_id = ? AND item_key = ?",
			s.siteID, component, userID, itemKey).
		Delete(&QueuedAction{}).Error
	if err != nil {
		return dbError("removing queued action", err)
	}
	return nil
}

// HasPendingForCourse reports whether a component has queued actions for a
// course.
func (s *Store) HasPendingForCourse(component string, courseID int64) (bool, error) {
	var count int64
	err := s.db.Model(&QueuedAction{}).
		Where("site_id = ? AND component = ? AND course_id = ?", s.siteID, component, courseID).
		Count(&count).Error
	if err != nil {
		return false, dbError("counting pending actions", err)
	}
	return count > 0, nil
}

// CountPending returns the number of queued actions for a component; empty
// component counts the whole site queue.
func (s *Store) CountPending(component string) (int64, error) {
	q := s.db.Model(&QueuedAction{}).Where("site_id = ?", s.siteID)
	if component != "" {
		q = q.Where("component = ?", component)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, dbError("counting pending actions", err)
	}
	return count, nil
}

// PendingSizeBytes estimates the bytes awaiting upload for a component and
// course, used by the Sizer handler hook.
func (s *Store) PendingSizeBytes(component string, courseID int64) (int64, error) {
	var size *int64
	err := s.db.Model(&QueuedAction{}).
		Select("SUM(LENGTH(payload))").
		Where("site_id = ? AND component = ? AND course_id = ?", s.siteID, component, courseID).
		Scan(&size).Error
	if err != nil {
		return 0, dbError("summing pending payload size", err)
	}
	if size == nil {
		return 0, nil
	}
	return *size, nil
}

// AddDeletedMarker records a delete requested offline. Re-requesting the
// same delete refreshes the timestamp.
func (s *Store) AddDeletedMarker(m *DeletedMarker) error {
	m.SiteID = s.siteID
	if m.Deleted.IsZero() {
		m.Deleted = time.Now()
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "site_id"}, {Name: "component"}, {Name: "target_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"course_id", "deleted"}),
	}).Create(m).Error
	if err != nil {
		return dbError("adding deleted marker", err)
	}
	return nil
}

// DeletedMarkers returns a component's pending delete markers, oldest first.
func (s *Store) DeletedMarkers(component string) ([]DeletedMarker, error) {
	var markers []DeletedMarker
	err := s.db.
		Where("site_id = ? AND component = ?", s.siteID, component).
		Order("deleted ASC, id ASC").
		Find(&markers).Error
	if err != nil {
		return nil, dbError("listing deleted markers", err)
	}
	return markers, nil
}

// RemoveDeletedMarker consumes a delete marker after a successful replay or
// a user undo.
func (s *Store) RemoveDeletedMarker(component string, targetID int64) error {
	err := s.db.
		Where("site_id = ? AND component = ? AND target_id = ?", s.siteID, component, targetID).
		Delete(&DeletedMarker{}).Error
	if err != nil {
		return dbError("removing deleted marker", err)
	}
	return nil
}

// ClearPending discards queued actions without replaying them, for users
// abandoning their offline edits. An empty component clears the whole site
// queue. Returns the number of records removed.
func (s *Store) ClearPending(component string) (int64, error) {
	q := s.db.Where("site_id = ?", s.siteID)
	if component != "" {
		q = q.Where("component = ?", component)
	}

	res := q.Delete(&QueuedAction{})
	if res.Error != nil {
		return 0, dbError("clearing pending actions", res.Error)
	}
	s.log.Info("pending actions discarded", "component", component, "count", res.RowsAffected)
	return res.RowsAffected, nil
}
