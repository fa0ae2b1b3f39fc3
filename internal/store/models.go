package store

import "time"

// SchemaVersion records the version applied for each registered feature
// schema. Registration is additive: auto-migration never drops columns.
type SchemaVersion struct {
	ID        uint   `gorm:"primarykey"`
	Name      string `gorm:"size:64;uniqueIndex"`
	Version   int
	UpdatedAt time.Time
}

// QueuedAction is one pending user action awaiting replay. Its natural key
// (site, component, user, item key) carries the idempotency guarantee: a
// second enqueue for the same key overwrites the first.
type QueuedAction struct {
	ID        uint   `gorm:"primarykey"`
	SiteID    string `gorm:"size:64;uniqueIndex:idx_queued_natural,priority:1"`
	Component string `gorm:"size:64;uniqueIndex:idx_queued_natural,priority:2"`
	UserID    int64  `gorm:"uniqueIndex:idx_queued_natural,priority:3"`
	ItemKey   string `gorm:"size:191;uniqueIndex:idx_queued_natural,priority:4"`

	CourseID   int64 `gorm:"index"`
	InstanceID int64
	Payload    string // feature-specific JSON body
	Created    time.Time
	UpdatedAt  time.Time
}

// DeletedMarker records a delete requested while offline. It is consumed
// when the replay succeeds or when the user undoes the deletion before sync.
type DeletedMarker struct {
	ID        uint   `gorm:"primarykey"`
	SiteID    string `gorm:"size:64;uniqueIndex:idx_marker_natural,priority:1"`
	Component string `gorm:"size:64;uniqueIndex:idx_marker_natural,priority:2"`
	TargetID  int64  `gorm:"uniqueIndex:idx_marker_natural,priority:3"`
	CourseID  int64  `gorm:"index"`
	Deleted   time.Time
}
