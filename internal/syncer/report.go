// Package syncer drives offline queue replay: features register sync jobs,
// the engine runs them serialized per job, and the scheduler triggers them
// periodically.
package syncer

import "time"

// Rejection records one queued action the server functionally refused. The
// action stays queued for manual retry or deletion and is reported to the
// user.
type Rejection struct {
	ItemKey string
	Message string
}

// Report describes the outcome of one sync pass for one job.
type Report struct {
	PassID   string
	Job      string
	Started  time.Time
	Finished time.Time

	// Confirmed actions were replayed and removed from the queue.
	Confirmed int
	// Rejected actions hit a web-service business error and stay queued.
	Rejected []Rejection
	// Deferred actions were not attempted because the batch aborted.
	Deferred int
	// Aborted is true when a transport failure stopped the batch early.
	Aborted bool
}

// Outcome summarizes the pass for metrics labels.
func (r *Report) Outcome() string {
	switch {
	case r.Aborted:
		return "aborted"
	case len(r.Rejected) > 0:
		return "partial"
	default:
		return "success"
	}
}

// Pending reports whether the pass left work behind.
func (r *Report) Pending() bool {
	return r.Aborted || len(r.Rejected) > 0 || r.Deferred > 0
}
