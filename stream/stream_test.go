package stream

import (
	"testing"
	"time"

	"github.com/rerun-go/rerun/arrowshim"
	"github.com/rerun-go/rerun/batcher"
	"github.com/rerun-go/rerun/logmsg"
	"github.com/rerun-go/rerun/rid"
	"github.com/rerun-go/rerun/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func position() rid.ComponentDescriptor {
	return rid.ComponentDescriptor{ArchetypeName: "Points3D", ComponentName: "Position3D"}
}

func entity() rid.EntityPath { return rid.NewEntityPath("world/points") }

func newTestStream(s sink.Sink) *RecordingStream {
	return NewBuilder("test_app").BatcherConfig(batcher.AlwaysConfig()).Build(s)
}

func arrowMsgs(msgs []logmsg.LogMsg) []logmsg.LogMsg {
	var out []logmsg.LogMsg
	for _, m := range msgs {
		if m.Kind == logmsg.KindArrowMsg {
			out = append(out, m)
		}
	}
	return out
}

// TestLogAppendRoundTrip exercises spec.md §8 property 1: a row logged
// and flushed arrives at the sink as an ArrowMsg for the same entity,
// preceded by the SetStoreInfo every sink receives first.
func TestLogAppendRoundTrip(t *testing.T) {
	mem := sink.NewMemorySink()
	rs := newTestStream(mem)
	defer rs.Close()

	require.NoError(t, rs.Log(entity(), map[rid.ComponentDescriptor][]any{position(): {1.0, 2.0, 3.0}}))
	require.NoError(t, rs.FlushBlocking(time.Second))

	snap := mem.Storage().Snapshot()
	require.NotEmpty(t, snap)
	assert.Equal(t, logmsg.KindSetStoreInfo, snap[0].Kind)

	arrows := arrowMsgs(snap)
	require.Len(t, arrows, 1)
	assert.Equal(t, entity().String(), arrows[0].Chunk.EntityPath().String())
}

// TestSinkSwapPreservesOrder exercises spec.md §8 property 2: a row
// logged before SetSink is replayed into the new sink ahead of a row
// logged after it, so order survives the swap.
func TestSinkSwapPreservesOrder(t *testing.T) {
	first := sink.NewMemorySink()
	rs := newTestStream(first)
	defer rs.Close()

	require.NoError(t, rs.Log(entity(), map[rid.ComponentDescriptor][]any{position(): {1.0}}))
	require.NoError(t, rs.FlushBlocking(time.Second))

	second := sink.NewMemorySink()
	require.NoError(t, rs.SetSink(second))

	require.NoError(t, rs.Log(entity(), map[rid.ComponentDescriptor][]any{position(): {2.0}}))
	require.NoError(t, rs.FlushBlocking(time.Second))

	arrows := arrowMsgs(second.Storage().Snapshot())
	require.Len(t, arrows, 2)
	firstVals, ok := arrows[0].Chunk.Component(position())
	require.True(t, ok)
	secondVals, ok := arrows[1].Chunk.Component(position())
	require.True(t, ok)
	assert.Equal(t, []any{1.0}, firstVals.At(0))
	assert.Equal(t, []any{2.0}, secondVals.At(0))
}

func TestLogStaticProducesAStaticChunk(t *testing.T) {
	mem := sink.NewMemorySink()
	rs := newTestStream(mem)
	defer rs.Close()

	require.NoError(t, rs.LogStatic(entity(), map[rid.ComponentDescriptor][]any{position(): {1.0}}))
	require.NoError(t, rs.FlushBlocking(time.Second))

	arrows := arrowMsgs(mem.Storage().Snapshot())
	require.Len(t, arrows, 1)
	assert.True(t, arrows[0].Chunk.IsStatic())
}

func TestSendColumnsBypassesTimeContext(t *testing.T) {
	mem := sink.NewMemorySink()
	rs := newTestStream(mem)
	defer rs.Close()

	frameNr := rid.TimelineName("frame_nr")
	rs.SetTime(frameNr, rid.Sequence(42))

	err := rs.SendColumns(entity(),
		map[rid.TimelineName][]int64{frameNr: {10, 11, 12}},
		map[rid.ComponentDescriptor]*arrowshim.ListArray{
			position(): arrowshim.NewListArray([][]any{{1.0}, {2.0}, {3.0}}),
		},
	)
	require.NoError(t, err)
	require.NoError(t, rs.FlushBlocking(time.Second))

	arrows := arrowMsgs(mem.Storage().Snapshot())
	require.Len(t, arrows, 1)
	c := arrows[0].Chunk
	_, hasLogTick := c.Timeline(rid.TimelineLogTick)
	assert.False(t, hasLogTick, "send_columns must not inject log_tick")
	tc, ok := c.Timeline(frameNr)
	require.True(t, ok)
	assert.Equal(t, []int64{10, 11, 12}, tc.TimesRaw())
}

func TestDisabledStreamNoOps(t *testing.T) {
	rs := Disabled()
	assert.True(t, rs.IsDisabled())
	assert.NoError(t, rs.Log(entity(), nil))
	assert.NoError(t, rs.LogStatic(entity(), nil))
	assert.NoError(t, rs.FlushBlocking(time.Second))
	assert.NoError(t, rs.SetSink(sink.NewMemorySink()))
	rs.Close() // must not panic
}

func TestBlueprintActivationDroppedUntilChunksSeen(t *testing.T) {
	mem := sink.NewMemorySink()
	rs := NewBuilder("test_app").Blueprint().BatcherConfig(batcher.AlwaysConfig()).Build(mem)
	defer rs.Close()

	otherBlueprint := rid.NewStoreId("never_logged", rid.StoreKindBlueprint)
	rs.ActivateBlueprint(otherBlueprint, true, false)
	require.NoError(t, rs.FlushBlocking(time.Second))
	for _, msg := range mem.Storage().Snapshot() {
		assert.NotEqual(t, logmsg.KindBlueprintActivation, msg.Kind, "activation for an unseen store must be dropped")
	}

	require.NoError(t, rs.Log(entity(), map[rid.ComponentDescriptor][]any{position(): {1.0}}))
	require.NoError(t, rs.FlushBlocking(time.Second))
	rs.ActivateBlueprint(rs.StoreId(), true, false)
	require.NoError(t, rs.FlushBlocking(time.Second))

	var found bool
	for _, msg := range mem.Storage().Snapshot() {
		if msg.Kind == logmsg.KindBlueprintActivation && msg.BlueprintId == rs.StoreId() {
			found = true
		}
	}
	assert.True(t, found, "activation for a store with observed chunks must be forwarded")
}

func TestRefCountingAndWeakUpgrade(t *testing.T) {
	rs := newTestStream(sink.NewMemorySink())
	assert.EqualValues(t, 1, rs.RefCount())

	clone := rs.Clone()
	assert.EqualValues(t, 2, rs.RefCount())

	weak := rs.CloneWeak()
	upgraded, ok := weak.Upgrade()
	require.True(t, ok)
	assert.EqualValues(t, 3, rs.RefCount())
	upgraded.Close()
	assert.EqualValues(t, 2, rs.RefCount())

	clone.Close()
	assert.EqualValues(t, 1, rs.RefCount())

	rs.Close()
	assert.EqualValues(t, 0, rs.RefCount())

	_, ok = weak.Upgrade()
	assert.False(t, ok, "no strong handle survives the last Close")
}

func TestSendRecordingNameUpdatesFutureSetStoreInfo(t *testing.T) {
	first := sink.NewMemorySink()
	rs := newTestStream(first)
	defer rs.Close()

	require.NoError(t, rs.SendRecordingName("demo"))
	require.NoError(t, rs.SendRecordingStartTime(time.Unix(0, 1_000_000)))
	require.NoError(t, rs.FlushBlocking(time.Second))

	second := sink.NewMemorySink()
	require.NoError(t, rs.SetSink(second))

	var sawName bool
	for _, msg := range second.Storage().Snapshot() {
		if msg.Kind == logmsg.KindSetStoreInfo && msg.Info.RecordingName == "demo" {
			sawName = true
		}
	}
	assert.True(t, sawName, "the fresh SetStoreInfo sent on swap must carry the name set by SendRecordingName")
}
