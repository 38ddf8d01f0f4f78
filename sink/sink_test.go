package sink

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rerun-go/rerun/batcher"
	"github.com/rerun-go/rerun/chunk"
	"github.com/rerun-go/rerun/logmsg"
	"github.com/rerun-go/rerun/rid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var frameNr = rid.TimelineName("frame_nr")

func position() rid.ComponentDescriptor {
	return rid.ComponentDescriptor{ArchetypeName: "Points3D", ComponentName: "Position3D"}
}

func entity() rid.EntityPath { return rid.NewEntityPath("world/points") }

func sampleChunk(t *testing.T, seq int64, v float64) *chunk.Chunk {
	t.Helper()
	tp := rid.NewTimePoint().With(frameNr, rid.Sequence(seq))
	row := chunk.NewPendingRow(tp, map[rid.ComponentDescriptor][]any{position(): {v}})
	c, err := chunk.BuildFromRows(entity(), []chunk.PendingRow{row}, frameNr)
	require.NoError(t, err)
	return c
}

func storeInfo() logmsg.StoreInfo {
	return logmsg.StoreInfo{
		StoreId:       rid.NewStoreId("my_app", rid.StoreKindRecording),
		StoreSource:   "go_sdk",
		RecordingName: "test recording",
	}
}

func TestBufferedSinkAppendRoundTripAndDrainClears(t *testing.T) {
	s := NewBufferedSink()
	m1 := logmsg.NewSetStoreInfo(storeInfo())
	m2 := logmsg.NewArrowMsg(m1.Info.StoreId, sampleChunk(t, 1, 1.0))
	s.Send(m1)
	s.Send(m2)

	require.NoError(t, s.FlushBlocking(time.Second))

	backlog := s.DrainBacklog()
	require.Len(t, backlog, 2)
	assert.Equal(t, logmsg.KindSetStoreInfo, backlog[0].Kind)
	assert.Equal(t, logmsg.KindArrowMsg, backlog[1].Kind)

	assert.Empty(t, s.DrainBacklog(), "a second drain finds nothing left")
}

func TestBufferedSinkDefaultConfigIsInfrequent(t *testing.T) {
	s := NewBufferedSink()
	cfg := s.DefaultBatcherConfig()
	assert.Greater(t, cfg.FlushNumBytes, uint64(1024*1024), "should buffer more before flushing than the interactive default")
}

func TestMemorySinkSnapshotDoesNotClearStorage(t *testing.T) {
	s := NewMemorySink()
	s.Send(logmsg.NewSetStoreInfo(storeInfo()))

	snap := s.Storage().Snapshot()
	require.Len(t, snap, 1)

	snap2 := s.Storage().Snapshot()
	assert.Len(t, snap2, 1, "Snapshot must not drain")

	drained := s.DrainBacklog()
	assert.Len(t, drained, 1)
	assert.Empty(t, s.Storage().Snapshot(), "DrainBacklog does clear storage")
}

func TestFileSinkWritesOneJSONLinePerMessage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.rrd")

	s, err := NewFileSink(path)
	require.NoError(t, err)

	info := storeInfo()
	s.Send(logmsg.NewSetStoreInfo(info))
	s.Send(logmsg.NewArrowMsg(info.StoreId, sampleChunk(t, 1, 1.0)))

	require.NoError(t, s.FlushBlocking(time.Second))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimRight(data, "\n"), []byte("\n"))
	require.Len(t, lines, 2)

	var first envelope
	require.NoError(t, json.Unmarshal(lines[0], &first))
	assert.Equal(t, logmsg.KindSetStoreInfo, first.Kind)
	assert.Equal(t, info.RecordingName, first.RecordingName)

	var second envelope
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, logmsg.KindArrowMsg, second.Kind)
	require.NotNil(t, second.Chunk)
	assert.Equal(t, entity().String(), second.Chunk.EntityPath)
}

func TestFileSinkDrainBacklogIsAlwaysNil(t *testing.T) {
	s := NewStdoutFileSink()
	s.Send(logmsg.NewSetStoreInfo(storeInfo()))
	assert.Nil(t, s.DrainBacklog())
}

func TestEnvelopeRoundTripsSetStoreInfoAndBlueprintActivation(t *testing.T) {
	var buf bytes.Buffer
	info := storeInfo()
	original := logmsg.NewSetStoreInfo(info)
	require.NoError(t, encodeLogMsg(&buf, original))

	blueprintId := rid.NewStoreId("my_app", rid.StoreKindBlueprint)
	activation := logmsg.NewBlueprintActivation(blueprintId, true, false)
	require.NoError(t, encodeLogMsg(&buf, activation))

	dec := json.NewDecoder(&buf)

	got1, err := decodeLogMsg(dec)
	require.NoError(t, err)
	assert.Equal(t, logmsg.KindSetStoreInfo, got1.Kind)
	assert.Equal(t, info.RecordingName, got1.Info.RecordingName)
	assert.Equal(t, info.StoreId, got1.Info.StoreId)

	got2, err := decodeLogMsg(dec)
	require.NoError(t, err)
	assert.Equal(t, logmsg.KindBlueprintActivation, got2.Kind)
	assert.Equal(t, blueprintId, got2.BlueprintId)
	assert.True(t, got2.MakeActive)
	assert.False(t, got2.MakeDefault)
}

func TestMultiSinkFansOutToEveryMember(t *testing.T) {
	a := NewMemorySink()
	b := NewMemorySink()
	multi := NewMultiSink(a, b)

	multi.Send(logmsg.NewSetStoreInfo(storeInfo()))
	require.NoError(t, multi.FlushBlocking(time.Second))

	assert.Len(t, a.Storage().Snapshot(), 1)
	assert.Len(t, b.Storage().Snapshot(), 1)
}

func TestMultiSinkFlushBlockingReturnsFirstError(t *testing.T) {
	ok := NewMemorySink()
	failing := &failingSink{}
	multi := NewMultiSink(ok, failing)

	err := multi.FlushBlocking(time.Second)
	require.Error(t, err)
	assert.True(t, failing.flushed, "later members still get a flush attempt")
}

// failingSink is a minimal Sink whose FlushBlocking always errors, used
// to exercise MultiSink's first-error propagation.
type failingSink struct {
	flushed bool
}

func (f *failingSink) Send(logmsg.LogMsg) {}
func (f *failingSink) FlushBlocking(time.Duration) error {
	f.flushed = true
	return assertErr
}
func (f *failingSink) DrainBacklog() []logmsg.LogMsg         { return nil }
func (f *failingSink) DefaultBatcherConfig() batcher.Config { return batcher.DefaultConfig() }

var assertErr = errDummy{}

type errDummy struct{}

func (errDummy) Error() string { return "dummy flush failure" }
