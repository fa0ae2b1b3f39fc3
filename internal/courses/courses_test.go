package courses

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msaario/campusync/internal/delegate"
)

type fakeOption struct {
	name      string
	priority  int
	placement Placement
	enabled   bool
}

func (f *fakeOption) Name() string         { return f.name }
func (f *fakeOption) Priority() int        { return f.priority }
func (f *fakeOption) Placement() Placement { return f.placement }

func (f *fakeOption) Enabled(context.Context, string, delegate.Access) (bool, error) {
	return f.enabled, nil
}

func (f *fakeOption) DisplayData(context.Context, string) (delegate.DisplayData, error) {
	return delegate.DisplayData{Title: f.name}, nil
}

func names(handlers []OptionHandler) []string {
	out := make([]string, len(handlers))
	for i, h := range handlers {
		out[i] = h.Name()
	}
	return out
}

func TestOptionsForCoursePartitionsByPlacement(t *testing.T) {
	t.Parallel()

	d := NewDelegate()
	d.Register(&fakeOption{name: "participants", priority: 60, placement: PlacementTab, enabled: true})
	d.Register(&fakeOption{name: "grades", priority: 90, placement: PlacementTab, enabled: true})
	d.Register(&fakeOption{name: "notes", priority: 40, placement: PlacementMenu, enabled: true})
	d.Register(&fakeOption{name: "badges", priority: 50, placement: PlacementMenu, enabled: true})

	opts, err := d.OptionsForCourse(context.Background(), 42, false, delegate.Access{})
	require.NoError(t, err)

	assert.Equal(t, []string{"grades", "participants"}, names(opts.Tabs))
	assert.Equal(t, []string{"badges", "notes"}, names(opts.Menu))
}

func TestOptionsForCourseExcludesDisabled(t *testing.T) {
	t.Parallel()

	d := NewDelegate()
	d.Register(&fakeOption{name: "grades", priority: 90, placement: PlacementTab, enabled: true})
	d.Register(&fakeOption{name: "competencies", priority: 80, placement: PlacementTab, enabled: false})

	opts, err := d.OptionsForCourse(context.Background(), 7, false, delegate.Access{})
	require.NoError(t, err)

	assert.Equal(t, []string{"grades"}, names(opts.Tabs))
	assert.Empty(t, opts.Menu)
}

func TestInvalidateCourseForcesRecompute(t *testing.T) {
	t.Parallel()

	d := NewDelegate()
	h := &fakeOption{name: "notes", priority: 40, placement: PlacementMenu, enabled: true}
	d.Register(h)

	opts, err := d.OptionsForCourse(context.Background(), 7, false, delegate.Access{})
	require.NoError(t, err)
	require.Len(t, opts.Menu, 1)

	h.enabled = false
	opts, err = d.OptionsForCourse(context.Background(), 7, false, delegate.Access{})
	require.NoError(t, err)
	assert.Len(t, opts.Menu, 1, "memoized list is reused until invalidated")

	d.InvalidateCourse(7)
	opts, err = d.OptionsForCourse(context.Background(), 7, false, delegate.Access{})
	require.NoError(t, err)
	assert.Empty(t, opts.Menu)
}
