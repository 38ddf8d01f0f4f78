package query

import (
	"testing"

	"github.com/rerun-go/rerun/chunk"
	"github.com/rerun-go/rerun/rid"
	"github.com/rerun-go/rerun/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var frameNr = rid.TimelineName("frame_nr")

func position() rid.ComponentDescriptor {
	return rid.ComponentDescriptor{ArchetypeName: "Points3D", ComponentName: "Position3D"}
}

func color() rid.ComponentDescriptor {
	return rid.ComponentDescriptor{ArchetypeName: "Points3D", ComponentName: "Color"}
}

func path() rid.EntityPath { return rid.NewEntityPath("world/points") }

func insertTemporal(t *testing.T, s *store.Store, seq int64, val float64) {
	t.Helper()
	tp := rid.NewTimePoint().With(frameNr, rid.Sequence(seq))
	row := chunk.NewPendingRow(tp, map[rid.ComponentDescriptor][]any{position(): {val}})
	c, err := chunk.BuildFromRows(path(), []chunk.PendingRow{row}, frameNr)
	require.NoError(t, err)
	s.InsertChunk(c)
}

func insertStatic(t *testing.T, s *store.Store, desc rid.ComponentDescriptor, val any) {
	t.Helper()
	row := chunk.NewPendingRow(rid.NewTimePoint(), map[rid.ComponentDescriptor][]any{desc: {val}})
	c, err := chunk.BuildFromRows(path(), []chunk.PendingRow{row}, frameNr)
	require.NoError(t, err)
	s.InsertChunk(c)
}

func insertTemporalAt(t *testing.T, s *store.Store, p rid.EntityPath, seq int64, val float64) {
	t.Helper()
	tp := rid.NewTimePoint().With(frameNr, rid.Sequence(seq))
	row := chunk.NewPendingRow(tp, map[rid.ComponentDescriptor][]any{position(): {val}})
	c, err := chunk.BuildFromRows(p, []chunk.PendingRow{row}, frameNr)
	require.NoError(t, err)
	s.InsertChunk(c)
}

func insertClear(t *testing.T, s *store.Store, p rid.EntityPath, seq int64, recursive bool) {
	t.Helper()
	tp := rid.NewTimePoint().With(frameNr, rid.Sequence(seq))
	row := chunk.NewPendingRow(tp, map[rid.ComponentDescriptor][]any{clearComponent: {recursive}})
	c, err := chunk.BuildFromRows(p, []chunk.PendingRow{row}, frameNr)
	require.NoError(t, err)
	s.InsertChunk(c)
}

func TestNextRowJoinsLatestOnIndex(t *testing.T) {
	s := store.New(nil)
	insertTemporal(t, s, 1, 1.0)
	insertTemporal(t, s, 2, 2.0)

	h := NewHandle(s, Expression{
		ViewContents: map[rid.EntityPath][]rid.ComponentDescriptor{path(): {position()}},
		FilteredIndex: frameNr,
	})

	require.Equal(t, 2, h.NumRows())

	row1, ok := h.NextRow()
	require.True(t, ok)
	assert.Equal(t, int64(1), row1.IndexValue)
	assert.Equal(t, 1.0, row1.Cells[ColumnSelector{EntityPath: path(), Component: position()}])

	row2, ok := h.NextRow()
	require.True(t, ok)
	assert.Equal(t, int64(2), row2.IndexValue)
	assert.Equal(t, 2.0, row2.Cells[ColumnSelector{EntityPath: path(), Component: position()}])

	_, ok = h.NextRow()
	assert.False(t, ok)
}

func TestStaticOverlayWinsWhenNoTemporalHit(t *testing.T) {
	s := store.New(nil)
	insertTemporal(t, s, 1, 1.0)
	insertStatic(t, s, color(), "red")

	h := NewHandle(s, Expression{
		ViewContents: map[rid.EntityPath][]rid.ComponentDescriptor{path(): {position(), color()}},
		FilteredIndex: frameNr,
	})

	row, ok := h.NextRow()
	require.True(t, ok)
	assert.Equal(t, "red", row.Cells[ColumnSelector{EntityPath: path(), Component: color()}])
}

func TestSparseFillLatestAtGlobalFillsHoles(t *testing.T) {
	s := store.New(nil)
	insertTemporal(t, s, 1, 1.0)
	insertTemporal(t, s, 5, 5.0)

	h := NewHandle(s, Expression{
		ViewContents:       map[rid.EntityPath][]rid.ComponentDescriptor{path(): {position()}},
		FilteredIndex:      frameNr,
		UsingIndexValues:   []int64{1, 2, 3, 4, 5},
		SparseFillStrategy: SparseFillLatestAtGlobal,
	})

	var seen []any
	for {
		row, ok := h.NextRow()
		if !ok {
			break
		}
		seen = append(seen, row.Cells[ColumnSelector{EntityPath: path(), Component: position()}])
	}

	require.Len(t, seen, 5)
	assert.Equal(t, 1.0, seen[0])
	assert.Equal(t, 1.0, seen[1]) // filled from frame 1
	assert.Equal(t, 1.0, seen[2])
	assert.Equal(t, 1.0, seen[3])
	assert.Equal(t, 5.0, seen[4])
}

func TestSparseFillNoneLeavesHolesNil(t *testing.T) {
	s := store.New(nil)
	insertTemporal(t, s, 1, 1.0)

	h := NewHandle(s, Expression{
		ViewContents:     map[rid.EntityPath][]rid.ComponentDescriptor{path(): {position()}},
		FilteredIndex:    frameNr,
		UsingIndexValues: []int64{1, 2},
	})

	_, ok := h.NextRow()
	require.True(t, ok)
	row2, ok := h.NextRow()
	require.True(t, ok)
	assert.Nil(t, row2.Cells[ColumnSelector{EntityPath: path(), Component: position()}])
}

func TestFilteredIsNotNullRestrictsIndexValuesToPovColumn(t *testing.T) {
	s := store.New(nil)
	insertTemporal(t, s, 1, 1.0)
	insertTemporal(t, s, 2, 2.0)
	insertTemporal(t, s, 3, 3.0)

	pov := ColumnSelector{EntityPath: path(), Component: position()}
	h := NewHandle(s, Expression{
		ViewContents:      map[rid.EntityPath][]rid.ComponentDescriptor{path(): {position()}},
		FilteredIndex:     frameNr,
		FilteredIsNotNull: &pov,
	})

	assert.Equal(t, 3, h.NumRows())
}

func TestSeekToRowRepositionsCursor(t *testing.T) {
	s := store.New(nil)
	insertTemporal(t, s, 1, 1.0)
	insertTemporal(t, s, 2, 2.0)
	insertTemporal(t, s, 3, 3.0)

	h := NewHandle(s, Expression{
		ViewContents: map[rid.EntityPath][]rid.ComponentDescriptor{path(): {position()}},
		FilteredIndex: frameNr,
	})

	h.SeekToRow(2)
	row, ok := h.NextRow()
	require.True(t, ok)
	assert.Equal(t, int64(3), row.IndexValue)

	h.SeekToRow(100) // clamps to len
	_, ok = h.NextRow()
	assert.False(t, ok)
}

func TestSecondaryTimesTracksOtherTimelines(t *testing.T) {
	s := store.New(nil)
	logTime := rid.TimelineName("log_time")
	tp := rid.NewTimePoint().With(frameNr, rid.Sequence(1)).With(logTime, rid.Timestamp(1000))
	row := chunk.NewPendingRow(tp, map[rid.ComponentDescriptor][]any{position(): {1.0}})
	c, err := chunk.BuildFromRows(path(), []chunk.PendingRow{row}, frameNr)
	require.NoError(t, err)
	s.InsertChunk(c)

	h := NewHandle(s, Expression{
		ViewContents: map[rid.EntityPath][]rid.ComponentDescriptor{path(): {position()}},
		FilteredIndex: frameNr,
	})

	got, ok := h.NextRow()
	require.True(t, ok)
	assert.Equal(t, int64(1), got.SecondaryTimes[frameNr])
	assert.Equal(t, int64(1000), got.SecondaryTimes[logTime])
}

func TestStaticOnlyQueryProducesSingleRow(t *testing.T) {
	s := store.New(nil)
	insertStatic(t, s, color(), "blue")

	h := NewHandle(s, Expression{
		ViewContents: map[rid.EntityPath][]rid.ComponentDescriptor{path(): {color()}},
	})

	require.Equal(t, 1, h.NumRows())
	row, ok := h.NextRow()
	require.True(t, ok)
	assert.Equal(t, "blue", row.Cells[ColumnSelector{EntityPath: path(), Component: color()}])
	_, ok = h.NextRow()
	assert.False(t, ok)
}

func TestNextRowBatchCollectsUpToBatchSize(t *testing.T) {
	s := store.New(nil)
	insertTemporal(t, s, 1, 1.0)
	insertTemporal(t, s, 2, 2.0)
	insertTemporal(t, s, 3, 3.0)

	h := NewHandle(s, Expression{
		ViewContents:  map[rid.EntityPath][]rid.ComponentDescriptor{path(): {position()}},
		FilteredIndex: frameNr,
	})

	batch, ok := h.NextRowBatch(2)
	require.True(t, ok)
	require.Len(t, batch, 2)
	assert.Equal(t, int64(1), batch[0].IndexValue)
	assert.Equal(t, int64(2), batch[1].IndexValue)

	batch, ok = h.NextRowBatch(2)
	require.True(t, ok)
	require.Len(t, batch, 1)
	assert.Equal(t, int64(3), batch[0].IndexValue)

	_, ok = h.NextRowBatch(2)
	assert.False(t, ok)
}

func TestIterStopsWhenCallbackReturnsFalse(t *testing.T) {
	s := store.New(nil)
	insertTemporal(t, s, 1, 1.0)
	insertTemporal(t, s, 2, 2.0)
	insertTemporal(t, s, 3, 3.0)

	h := NewHandle(s, Expression{
		ViewContents:  map[rid.EntityPath][]rid.ComponentDescriptor{path(): {position()}},
		FilteredIndex: frameNr,
	})

	var seen []int64
	h.Iter(1, func(batch []*Row) bool {
		seen = append(seen, batch[0].IndexValue)
		return batch[0].IndexValue < 2
	})
	assert.Equal(t, []int64{1, 2}, seen)
}

func TestClearOnEntityItselfShadowsRegardlessOfRecursiveFlag(t *testing.T) {
	s := store.New(nil)
	insertTemporal(t, s, 1, 1.0)
	insertClear(t, s, path(), 2, false) // non-recursive: still clears the entity's own components

	h := NewHandle(s, Expression{
		ViewContents:  map[rid.EntityPath][]rid.ComponentDescriptor{path(): {position()}},
		FilteredIndex: frameNr,
	})

	require.Equal(t, 2, h.NumRows())

	row1, ok := h.NextRow()
	require.True(t, ok)
	assert.Equal(t, int64(1), row1.IndexValue)
	assert.Equal(t, 1.0, row1.Cells[ColumnSelector{EntityPath: path(), Component: position()}])

	row2, ok := h.NextRow()
	require.True(t, ok)
	assert.Equal(t, int64(2), row2.IndexValue)
	assert.Nil(t, row2.Cells[ColumnSelector{EntityPath: path(), Component: position()}])
}

func TestRecursiveClearOnAncestorShadowsDescendantAtClearTime(t *testing.T) {
	s := store.New(nil)
	insertTemporalAt(t, s, path(), 1, 1.0)
	insertClear(t, s, rid.NewEntityPath("world"), 2, true)

	h := NewHandle(s, Expression{
		ViewContents:  map[rid.EntityPath][]rid.ComponentDescriptor{path(): {position()}},
		FilteredIndex: frameNr,
	})

	require.Equal(t, 2, h.NumRows())

	row1, ok := h.NextRow()
	require.True(t, ok)
	assert.Equal(t, int64(1), row1.IndexValue)
	assert.Equal(t, 1.0, row1.Cells[ColumnSelector{EntityPath: path(), Component: position()}])

	row2, ok := h.NextRow()
	require.True(t, ok)
	assert.Equal(t, int64(2), row2.IndexValue)
	assert.Nil(t, row2.Cells[ColumnSelector{EntityPath: path(), Component: position()}])
}

func TestNonRecursiveClearOnAncestorDoesNotShadowDescendant(t *testing.T) {
	s := store.New(nil)
	insertTemporalAt(t, s, path(), 1, 1.0)
	insertClear(t, s, rid.NewEntityPath("world"), 2, false)

	h := NewHandle(s, Expression{
		ViewContents:  map[rid.EntityPath][]rid.ComponentDescriptor{path(): {position()}},
		FilteredIndex: frameNr,
	})

	// The ancestor's own non-recursive clear never touches "world/points",
	// so only the original data row survives.
	require.Equal(t, 1, h.NumRows())

	row1, ok := h.NextRow()
	require.True(t, ok)
	assert.Equal(t, int64(1), row1.IndexValue)
	assert.Equal(t, 1.0, row1.Cells[ColumnSelector{EntityPath: path(), Component: position()}])
}

func TestIterVisitsEveryRowWhenNotStopped(t *testing.T) {
	s := store.New(nil)
	insertTemporal(t, s, 1, 1.0)
	insertTemporal(t, s, 2, 2.0)

	h := NewHandle(s, Expression{
		ViewContents:  map[rid.EntityPath][]rid.ComponentDescriptor{path(): {position()}},
		FilteredIndex: frameNr,
	})

	var total int
	h.Iter(10, func(batch []*Row) bool {
		total += len(batch)
		return true
	})
	assert.Equal(t, 2, total)
}
