package store

import (
	"testing"
	"time"

	"github.com/rerun-go/rerun/chunk"
	"github.com/rerun-go/rerun/rid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var frameNr = rid.TimelineName("frame_nr")

func position() rid.ComponentDescriptor {
	return rid.ComponentDescriptor{ArchetypeName: "Points3D", ComponentName: "Position3D"}
}

func buildChunk(t *testing.T, path rid.EntityPath, seq int64, static bool) *chunk.Chunk {
	t.Helper()
	tp := rid.NewTimePoint()
	if !static {
		tp = tp.With(frameNr, rid.Sequence(seq))
	}
	row := chunk.NewPendingRow(tp, map[rid.ComponentDescriptor][]any{position(): {float64(seq)}})
	c, err := chunk.BuildFromRows(path, []chunk.PendingRow{row}, frameNr)
	require.NoError(t, err)
	return c
}

type recordingSubscriber struct {
	events []Event
}

func (r *recordingSubscriber) OnEvents(events []Event) {
	r.events = append(r.events, events...)
}

func TestInsertChunkNotifiesSubscribers(t *testing.T) {
	s := New(nil)
	sub := &recordingSubscriber{}
	s.Subscribe(sub)

	c := buildChunk(t, rid.NewEntityPath("world/points"), 1, false)
	s.InsertChunk(c)

	require.Len(t, sub.events, 1)
	assert.Equal(t, EventAdd, sub.events[0].Kind)
	assert.Equal(t, c.Id(), sub.events[0].Chunk.Id())
}

func TestInsertChunkIdempotentOnChunkId(t *testing.T) {
	s := New(nil)
	sub := &recordingSubscriber{}
	s.Subscribe(sub)

	c := buildChunk(t, rid.NewEntityPath("world/points"), 1, false)
	s.InsertChunk(c)
	s.InsertChunk(c)

	assert.Len(t, sub.events, 1)
	assert.Equal(t, 1, s.NumChunks())
}

func TestChunksForEntityOnlyReturnsThatEntity(t *testing.T) {
	s := New(nil)
	a := buildChunk(t, rid.NewEntityPath("world/a"), 1, false)
	b := buildChunk(t, rid.NewEntityPath("world/b"), 1, false)
	s.InsertChunk(a)
	s.InsertChunk(b)

	got := s.ChunksForEntity(rid.NewEntityPath("world/a"))
	require.Len(t, got, 1)
	assert.Equal(t, a.Id(), got[0].Id())
}

func TestGCRetainsStaticChunksPreferentially(t *testing.T) {
	s := New(nil)
	static := buildChunk(t, rid.NewEntityPath("world/static"), 0, true)
	temporal := buildChunk(t, rid.NewEntityPath("world/temporal"), 1, false)
	s.InsertChunk(static)
	s.InsertChunk(temporal)

	removed := s.GC(GcOptions{MaxAge: time.Nanosecond})

	require.Len(t, removed, 1)
	assert.Equal(t, temporal.Id(), removed[0].Id())
	assert.Equal(t, 1, s.NumChunks())

	remaining := s.ChunksForEntity(rid.NewEntityPath("world/static"))
	require.Len(t, remaining, 1)
	assert.Equal(t, static.Id(), remaining[0].Id())
}

func TestGCNotifiesDeletionEvents(t *testing.T) {
	s := New(nil)
	sub := &recordingSubscriber{}
	s.Subscribe(sub)

	c := buildChunk(t, rid.NewEntityPath("world/points"), 1, false)
	s.InsertChunk(c)
	s.GC(GcOptions{MaxAge: time.Nanosecond})

	require.Len(t, sub.events, 2)
	assert.Equal(t, EventDeletion, sub.events[1].Kind)
}

func TestSchemaForQueryReturnsIndexedComponents(t *testing.T) {
	s := New(nil)
	c := buildChunk(t, rid.NewEntityPath("world/points"), 1, false)
	s.InsertChunk(c)

	path := rid.NewEntityPath("world/points")
	schema := s.SchemaForQuery(map[rid.EntityPath][]rid.ComponentDescriptor{path: nil})

	require.Len(t, schema, 1)
	assert.Equal(t, position(), schema[0].Component)
}
