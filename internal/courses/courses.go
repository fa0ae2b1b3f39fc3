// Package courses hosts the course options extension point. Features
// register option handlers that contribute tabs or menu entries to a
// course; the delegate resolves which apply to a given course.
package courses

import (
	"context"
	"strconv"

	"github.com/msaario/campusync/internal/delegate"
)

// Placement says where a course option surfaces.
type Placement string

const (
	PlacementTab  Placement = "tab"
	PlacementMenu Placement = "menu"
)

// OptionHandler extends the base handler contract with a placement.
type OptionHandler interface {
	delegate.Handler
	Placement() Placement
}

// Options are the resolved options for one course, partitioned by
// placement. Both lists keep the delegate's priority order.
type Options struct {
	Tabs []OptionHandler
	Menu []OptionHandler
}

// Delegate resolves which option handlers apply to a course.
type Delegate struct {
	*delegate.Delegate[OptionHandler]
}

// NewDelegate creates the course options registry.
func NewDelegate() *Delegate {
	return &Delegate{delegate.New[OptionHandler]("course-options")}
}

// ContextKey is the delegate context key for a course.
func ContextKey(courseID int) string {
	return strconv.Itoa(courseID)
}

// OptionsForCourse resolves the enabled handlers for a course and
// partitions them into tabs and menu entries. refresh forces a
// recomputation instead of reusing a memoized list.
func (d *Delegate) OptionsForCourse(ctx context.Context, courseID int, refresh bool, access delegate.Access) (Options, error) {
	handlers, err := d.ResolveForContext(ctx, ContextKey(courseID), refresh, access)
	if err != nil {
		return Options{}, err
	}

	var opts Options
	for _, h := range handlers {
		if h.Placement() == PlacementMenu {
			opts.Menu = append(opts.Menu, h)
		} else {
			opts.Tabs = append(opts.Tabs, h)
		}
	}
	return opts, nil
}

// InvalidateCourse drops the memoized resolution for one course.
func (d *Delegate) InvalidateCourse(courseID int) {
	d.Invalidate(ContextKey(courseID))
}
