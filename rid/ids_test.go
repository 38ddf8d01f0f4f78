package rid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowIdStrictlyIncreasing(t *testing.T) {
	var prev RowId
	for i := 0; i < 1000; i++ {
		next := NewRowId()
		if i > 0 {
			assert.True(t, prev.Less(next), "row id %v should be less than %v", prev, next)
		}
		prev = next
	}
}

func TestEntityPathHierarchy(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		ancestor   string
		descendant bool
	}{
		{"direct child", "world/camera", "world", true},
		{"grandchild", "world/camera/lens", "world", true},
		{"sibling", "world/camera", "world/lidar", false},
		{"self", "world", "world", false},
		{"root is ancestor of everything", "world/camera", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewEntityPath(tt.path)
			a := NewEntityPath(tt.ancestor)
			assert.Equal(t, tt.descendant, p.IsDescendantOf(a))
			assert.Equal(t, tt.descendant, a.IsAncestorOf(p))
		})
	}
}

func TestEntityPathParent(t *testing.T) {
	p := NewEntityPath("world/camera/lens")
	parent, ok := p.Parent()
	require.True(t, ok)
	assert.Equal(t, "/world/camera", parent.String())

	root := Root()
	_, ok = root.Parent()
	assert.False(t, ok)
}

func TestTimePointWithOverridesInjectedTimeline(t *testing.T) {
	tp := NewTimePoint().With(TimelineName("frame_nr"), Sequence(10))
	tp2 := tp.With(TimelineLogTime, Timestamp(123))

	assert.Equal(t, Sequence(10), tp2[TimelineName("frame_nr")])
	assert.Equal(t, Timestamp(123), tp2[TimelineLogTime])
	// original must not be mutated
	_, hasLogTime := tp[TimelineLogTime]
	assert.False(t, hasLogTime)
}

func TestStaticCellDominatesOrdering(t *testing.T) {
	s := StaticCell()
	assert.True(t, s.IsStatic())
	assert.True(t, NewTimePoint().IsStatic())
	assert.False(t, NewTimePoint().With("t", Sequence(1)).IsStatic())
}
