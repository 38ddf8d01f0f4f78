package transform

import (
	"testing"
	"time"

	"github.com/rerun-go/rerun/chunk"
	"github.com/rerun-go/rerun/rid"
	"github.com/rerun-go/rerun/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var frameNr = rid.TimelineName("frame_nr")

func insertTranslation(t *testing.T, s *store.Store, path rid.EntityPath, seq int64, x, y, z float64) *chunk.Chunk {
	t.Helper()
	tp := rid.NewTimePoint().With(frameNr, rid.Sequence(seq))
	row := chunk.NewPendingRow(tp, map[rid.ComponentDescriptor][]any{
		Translation3D: {x, y, z},
	})
	c, err := chunk.BuildFromRows(path, []chunk.PendingRow{row}, frameNr)
	require.NoError(t, err)
	s.InsertChunk(c)
	return c
}

func insertClear(t *testing.T, s *store.Store, path rid.EntityPath, seq int64) *chunk.Chunk {
	t.Helper()
	tp := rid.NewTimePoint().With(frameNr, rid.Sequence(seq))
	row := chunk.NewPendingRow(tp, map[rid.ComponentDescriptor][]any{
		ClearIsRecursive: {true},
	})
	c, err := chunk.BuildFromRows(path, []chunk.PendingRow{row}, frameNr)
	require.NoError(t, err)
	s.InsertChunk(c)
	return c
}

func TestLatestAtFrameTransformResolvesTranslation(t *testing.T) {
	s := store.New(nil)
	cache := NewCache(s)
	s.Subscribe(cache)

	path := rid.NewEntityPath("world/box")
	insertTranslation(t, s, path, 1, 1, 2, 3)
	insertTranslation(t, s, path, 5, 10, 20, 30)

	frame := FrameForEntity(path)

	m, ok := cache.LatestAtFrameTransform(frameNr, frame, 3)
	require.True(t, ok)
	assert.Equal(t, 1.0, m[3])
	assert.Equal(t, 2.0, m[7])
	assert.Equal(t, 3.0, m[11])

	m2, ok := cache.LatestAtFrameTransform(frameNr, frame, 5)
	require.True(t, ok)
	assert.Equal(t, 10.0, m2[3])
	assert.Equal(t, 20.0, m2[7])
	assert.Equal(t, 30.0, m2[11])

	_, ok = cache.LatestAtFrameTransform(frameNr, frame, 0)
	assert.False(t, ok, "before any logged transform")
}

func TestLatestAtFrameTransformCachesResidentEntry(t *testing.T) {
	s := store.New(nil)
	cache := NewCache(s)
	s.Subscribe(cache)

	path := rid.NewEntityPath("world/box")
	insertTranslation(t, s, path, 1, 1, 2, 3)
	frame := FrameForEntity(path)

	_, ok := cache.LatestAtFrameTransform(frameNr, frame, 1)
	require.True(t, ok)

	sf := cache.perTimeline[frameNr].perSourceFrame[frame]
	_, e, found := sf.frame.LatestAtOrBefore(1)
	require.True(t, found)
	assert.Equal(t, Resident, e.State)
}

func TestRemoveChunkDropsContributedEntries(t *testing.T) {
	s := store.New(nil)
	cache := NewCache(s)
	s.Subscribe(cache)

	path := rid.NewEntityPath("world/box")
	insertTranslation(t, s, path, 1, 1, 2, 3)
	frame := FrameForEntity(path)

	_, ok := cache.LatestAtFrameTransform(frameNr, frame, 1)
	require.True(t, ok)

	s.GC(store.GcOptions{MaxAge: time.Nanosecond})

	_, stillThere := cache.perTimeline[frameNr]
	assert.False(t, stillThere, "timeline index should be dropped once its only source frame empties")
}

func TestRecursiveClearShadowsDescendantAfterClearTime(t *testing.T) {
	s := store.New(nil)
	cache := NewCache(s)
	s.Subscribe(cache)

	boxPath := rid.NewEntityPath("world/box")
	insertTranslation(t, s, boxPath, 1, 1, 2, 3)
	frame := FrameForEntity(boxPath)

	_, ok := cache.LatestAtFrameTransform(frameNr, frame, 2)
	require.True(t, ok, "resolves before the clear")

	insertClear(t, s, rid.NewEntityPath("world"), 5)

	_, ok = cache.LatestAtFrameTransform(frameNr, frame, 2)
	assert.True(t, ok, "still resolves before the clear time")

	_, ok = cache.LatestAtFrameTransform(frameNr, frame, 10)
	assert.False(t, ok, "cleared at and after the recursive clear time")
}

func TestMat4InvertRoundTrips(t *testing.T) {
	m := Mat4FromMat3Translation(Scale3x3(Vec3{X: 2, Y: 2, Z: 2}), Vec3{X: 1, Y: 2, Z: 3})
	inv, ok := m.Invert()
	require.True(t, ok)
	round := m.Mul(inv)
	identity := Mat4Identity()
	for i := range round {
		assert.InDelta(t, identity[i], round[i], 1e-9)
	}
}
