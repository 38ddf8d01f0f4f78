package chunk

import (
	"testing"

	"github.com/rerun-go/rerun/rid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var frameNr = rid.TimelineName("frame_nr")

func TestBuildFromRowsSortsOnSharedTimeline(t *testing.T) {
	pointDesc := rid.ComponentDescriptor{ComponentName: "MyPoint"}
	rows := []PendingRow{
		rowAt(t, 30, pointDesc, "c"),
		rowAt(t, 10, pointDesc, "a"),
		rowAt(t, 20, pointDesc, "b"),
	}

	c, err := BuildFromRows(rid.NewEntityPath("points"), rows, frameNr)
	require.NoError(t, err)
	assert.True(t, c.IsSortedOn(frameNr))

	tc, ok := c.Timeline(frameNr)
	require.True(t, ok)
	assert.Equal(t, []int64{10, 20, 30}, tc.TimesRaw())

	col, ok := c.Component(pointDesc)
	require.True(t, ok)
	assert.Equal(t, "a", col.At(0)[0])
	assert.Equal(t, "b", col.At(1)[0])
	assert.Equal(t, "c", col.At(2)[0])
}

func rowAt(t *testing.T, frame int64, desc rid.ComponentDescriptor, value string) PendingRow {
	t.Helper()
	tp := rid.NewTimePoint().With(frameNr, rid.Sequence(frame))
	return NewPendingRow(tp, map[rid.ComponentDescriptor][]any{desc: {value}})
}

func TestBuildFromRowsNullPadsMissingComponents(t *testing.T) {
	a := rid.ComponentDescriptor{ComponentName: "A"}
	b := rid.ComponentDescriptor{ComponentName: "B"}

	row1 := NewPendingRow(rid.NewTimePoint().With(frameNr, rid.Sequence(1)), map[rid.ComponentDescriptor][]any{a: {1}})
	row2 := NewPendingRow(rid.NewTimePoint().With(frameNr, rid.Sequence(2)), map[rid.ComponentDescriptor][]any{a: {2}, b: {"x"}})

	c, err := BuildFromRows(rid.NewEntityPath("e"), []PendingRow{row1, row2}, frameNr)
	require.NoError(t, err)

	bCol, ok := c.Component(b)
	require.True(t, ok)
	assert.True(t, bCol.IsNull(0))
	assert.False(t, bCol.IsNull(1))
}

func TestBuildFromRowsUnsortedWhenTimelinesDiverge(t *testing.T) {
	a := rid.ComponentDescriptor{ComponentName: "A"}
	row1 := NewPendingRow(rid.NewTimePoint().With(frameNr, rid.Sequence(1)), map[rid.ComponentDescriptor][]any{a: {1}})
	row2 := NewPendingRow(rid.NewTimePoint(), map[rid.ComponentDescriptor][]any{a: {2}}) // no frame_nr

	c, err := BuildFromRows(rid.NewEntityPath("e"), []PendingRow{row1, row2}, frameNr)
	require.NoError(t, err)
	assert.False(t, c.IsSortedOn(frameNr))
}

func TestNewRejectsMismatchedColumnLengths(t *testing.T) {
	entity := rid.NewEntityPath("e")
	rowIds := []rid.RowId{rid.NewRowId(), rid.NewRowId()}
	timelines := map[rid.TimelineName]*TimeColumn{
		frameNr: NewTimeColumn(frameNr, []int64{1}), // wrong length
	}
	_, err := New(NewChunkId(), entity, rowIds, timelines, nil)
	require.Error(t, err)
}

func TestDensifiedDropsNullRows(t *testing.T) {
	desc := rid.ComponentDescriptor{ComponentName: "A"}
	row1 := NewPendingRow(rid.NewTimePoint().With(frameNr, rid.Sequence(1)), map[rid.ComponentDescriptor][]any{desc: {1}})
	row2 := NewPendingRow(rid.NewTimePoint().With(frameNr, rid.Sequence(2)), nil)
	row3 := NewPendingRow(rid.NewTimePoint().With(frameNr, rid.Sequence(3)), map[rid.ComponentDescriptor][]any{desc: {3}})

	c, err := BuildFromRows(rid.NewEntityPath("e"), []PendingRow{row1, row2, row3}, frameNr)
	require.NoError(t, err)

	d := c.Densified(desc)
	assert.Equal(t, 2, d.NumRows())
}
