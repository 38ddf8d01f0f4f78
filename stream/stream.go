package stream

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rerun-go/rerun/arrowshim"
	"github.com/rerun-go/rerun/batcher"
	"github.com/rerun-go/rerun/chunk"
	"github.com/rerun-go/rerun/config"
	"github.com/rerun-go/rerun/grpcproxy"
	"github.com/rerun-go/rerun/logging"
	"github.com/rerun-go/rerun/logmsg"
	"github.com/rerun-go/rerun/rerunerr"
	"github.com/rerun-go/rerun/rid"
	"github.com/rerun-go/rerun/sink"
)

// forever stands in for spec.md §5's "best-effort flush with
// Duration::MAX timeout" on the last strong handle's drop.
const forever = time.Duration(1<<63 - 1)

// recordingStreamInner is the refcounted state shared by every strong
// and weak handle to one recording (spec.md §3 "Ownership lifecycle").
// Exactly one forwarding-thread goroutine owns the active sink; no other
// goroutine touches it directly.
type recordingStreamInner struct {
	storeId rid.StoreId
	tick    uint64 // atomic: per-stream log_tick counter

	batcher *batcher.Batcher
	cmds    chan command
	done    chan struct{}

	pid int // process id at construction, for fork-safety (spec.md §5)

	refCount     int32 // atomic: strong handle count
	shutdownOnce sync.Once

	log    *logging.ContextLogger
	dedupe *logging.Deduper

	nameMu sync.Mutex
	name   string

	forcedSinkMu sync.Mutex
	forcedSink   sink.Sink
}

// forceSink returns the single sink that _RERUN_TEST_FORCE_SAVE redirects
// every SetSink call to (spec.md §6), creating it lazily on first use so
// repeated swaps keep writing to the same file. Returns (nil, nil) when
// the env var isn't set.
func (inner *recordingStreamInner) forceSink() (sink.Sink, error) {
	path, set := config.ForceSavePath()
	if !set {
		return nil, nil
	}
	inner.forcedSinkMu.Lock()
	defer inner.forcedSinkMu.Unlock()
	if inner.forcedSink == nil {
		s, err := sink.NewFileSink(path)
		if err != nil {
			return nil, err
		}
		inner.forcedSink = s
	}
	return inner.forcedSink, nil
}

func (inner *recordingStreamInner) recordingName() string {
	inner.nameMu.Lock()
	defer inner.nameMu.Unlock()
	return inner.name
}

func (inner *recordingStreamInner) setRecordingName(name string) {
	inner.nameMu.Lock()
	inner.name = name
	inner.nameMu.Unlock()
}

func (inner *recordingStreamInner) storeInfo() logmsg.StoreInfo {
	return logmsg.StoreInfo{
		StoreId:       inner.storeId,
		StoreSource:   "go_sdk",
		RecordingName: inner.recordingName(),
	}
}

// forward is the forwarding thread (spec.md §4.3): it owns the active
// sink and is the only goroutine that ever calls a method on it. It
// drains every chunk the batcher has already flushed before considering
// the next command, so SwapSink/FlushBlocking never act on a stale
// backlog.
func (inner *recordingStreamInner) forward(initialSink sink.Sink) {
	defer close(inner.done)

	active := initialSink
	seen := logmsg.NewSeenStores()
	flushed := inner.batcher.Flushed()

	sendMsg := func(msg logmsg.LogMsg) {
		seen.Observe(msg)
		active.Send(msg)
	}
	sendMsg(logmsg.NewSetStoreInfo(inner.storeInfo()))

	drainChunks := func() {
		for {
			select {
			case c, ok := <-flushed:
				if !ok {
					flushed = nil
					return
				}
				sendMsg(logmsg.NewArrowMsg(inner.storeId, c))
			default:
				return
			}
		}
	}

	for {
		drainChunks()

		select {
		case c, ok := <-flushed:
			if !ok {
				flushed = nil
				continue
			}
			sendMsg(logmsg.NewArrowMsg(inner.storeId, c))

		case cmd := <-inner.cmds:
			// A chunk push and this command may have raced the select
			// above; re-drain before acting so the command always sees
			// every chunk submitted before it. This makes the explicit
			// PopPendingChunks command below a redundant but harmless
			// no-op under this implementation (spec.md §4.3).
			drainChunks()

			switch cmd.kind {
			case cmdRecord:
				if cmd.msg.Kind == logmsg.KindBlueprintActivation && !seen.HasSeenChunksFor(cmd.msg.BlueprintId) {
					if inner.log != nil {
						inner.dedupe.Once(inner.log, "blueprint_activation_unseen",
							fmt.Sprintf("dropping blueprint activation for store %s with no observed chunks", cmd.msg.BlueprintId))
					}
					break
				}
				sendMsg(cmd.msg)

			case cmdFlush:
				cmd.reply <- active.FlushBlocking(cmd.timeout)

			case cmdSwapSink:
				backlog := active.DrainBacklog()
				if flushErr := active.FlushBlocking(cmd.timeout); flushErr != nil && inner.log != nil {
					inner.dedupe.Once(inner.log, "swap_sink_flush_failed", flushErr.Error())
				}
				cmd.newSink.Send(logmsg.NewSetStoreInfo(inner.storeInfo()))
				for _, msg := range backlog {
					cmd.newSink.Send(msg)
				}
				active = cmd.newSink
				seen = logmsg.NewSeenStores()
				cmd.reply <- nil

			case cmdInspectSink:
				cmd.inspect(active)

			case cmdPopPendingChunks:
				// already drained above; nothing left to do.

			case cmdShutdown:
				return
			}
		}
	}
}

// RecordingStream is a strong, refcounted handle to a recording
// (spec.md §4.1). The zero value is not usable; use NewBuilder or
// Disabled().
type RecordingStream struct {
	inner *recordingStreamInner
}

// WeakRecordingStream observes a recording without keeping it alive
// (spec.md §3): it shares the same underlying state but never
// increments refCount, so it alone cannot prevent the last strong
// handle's Close from tearing the forwarding thread down.
type WeakRecordingStream struct {
	inner *recordingStreamInner
}

// RecordingStreamBuilder constructs a RecordingStream (spec.md §4.1).
type RecordingStreamBuilder struct {
	appName string
	name    string
	kind    rid.StoreKind
	cfg     batcher.Config
	log     *logging.ContextLogger
}

// NewBuilder starts a builder for an application's recording.
func NewBuilder(applicationId string) *RecordingStreamBuilder {
	return &RecordingStreamBuilder{
		appName: applicationId,
		kind:    rid.StoreKindRecording,
		cfg:     batcher.DefaultConfig(),
	}
}

// Blueprint marks the built stream as a blueprint recording (spec.md
// §4.8) rather than a data recording.
func (b *RecordingStreamBuilder) Blueprint() *RecordingStreamBuilder {
	b.kind = rid.StoreKindBlueprint
	return b
}

// RecordingName sets the human-readable name carried in every
// SetStoreInfo message.
func (b *RecordingStreamBuilder) RecordingName(name string) *RecordingStreamBuilder {
	b.name = name
	return b
}

// BatcherConfig overrides the default batcher config.
func (b *RecordingStreamBuilder) BatcherConfig(cfg batcher.Config) *RecordingStreamBuilder {
	b.cfg = cfg
	return b
}

// Logger attaches a logger for batcher/forwarding diagnostics.
func (b *RecordingStreamBuilder) Logger(l *logging.ContextLogger) *RecordingStreamBuilder {
	b.log = l
	return b
}

// Build constructs the stream against initialSink. If the RERUN
// environment variable is set to a falsy value, Build returns a
// Disabled() stream instead (spec.md §6).
func (b *RecordingStreamBuilder) Build(initialSink sink.Sink) *RecordingStream {
	if enabled, set := config.ForceEnabled(); set && !enabled {
		return Disabled()
	}
	inner := &recordingStreamInner{
		storeId:  rid.NewStoreId(b.appName, b.kind),
		name:     b.name,
		batcher:  batcher.New(b.cfg, b.log),
		cmds:     make(chan command, 256),
		done:     make(chan struct{}),
		pid:      os.Getpid(),
		refCount: 1,
		log:      b.log,
		dedupe:   logging.NewDeduper(10 * time.Second),
	}
	go inner.forward(initialSink)
	return &RecordingStream{inner: inner}
}

// Disabled returns a no-op stream: every operation silently succeeds
// and drops its data (spec.md §4.1).
func Disabled() *RecordingStream { return &RecordingStream{} }

// IsDisabled reports whether rs is the no-op handle.
func (rs *RecordingStream) IsDisabled() bool { return rs == nil || rs.inner == nil }

// StoreId returns the recording's identity. Returns the zero value on a
// disabled stream.
func (rs *RecordingStream) StoreId() rid.StoreId {
	if rs.IsDisabled() {
		return rid.StoreId{}
	}
	return rs.inner.storeId
}

// Clone returns a new strong handle sharing this recording's state.
func (rs *RecordingStream) Clone() *RecordingStream {
	if rs.IsDisabled() {
		return Disabled()
	}
	atomic.AddInt32(&rs.inner.refCount, 1)
	return &RecordingStream{inner: rs.inner}
}

// CloneWeak returns a handle that observes this recording without
// keeping it alive.
func (rs *RecordingStream) CloneWeak() WeakRecordingStream {
	return WeakRecordingStream{inner: rs.inner}
}

// Upgrade returns a new strong handle, or ok=false if every strong
// handle has already been closed.
func (w WeakRecordingStream) Upgrade() (*RecordingStream, bool) {
	if w.inner == nil {
		return Disabled(), true
	}
	for {
		n := atomic.LoadInt32(&w.inner.refCount)
		if n == 0 {
			return nil, false
		}
		if atomic.CompareAndSwapInt32(&w.inner.refCount, n, n+1) {
			return &RecordingStream{inner: w.inner}, true
		}
	}
}

// RefCount returns the number of live strong handles.
func (rs *RecordingStream) RefCount() int32 {
	if rs.IsDisabled() {
		return 0
	}
	return atomic.LoadInt32(&rs.inner.refCount)
}

// Log appends a row stamped with the calling thread's time context plus
// injected log_time/log_tick (spec.md §4.1).
func (rs *RecordingStream) Log(entityPath rid.EntityPath, components map[rid.ComponentDescriptor][]any) error {
	if rs.IsDisabled() {
		return nil
	}
	storeId := rs.inner.storeId
	tp := effectiveTimePoint(storeId)
	if !isDisabled(storeId, rid.TimelineLogTime) {
		tp = tp.With(rid.TimelineLogTime, rid.Timestamp(time.Now().UnixNano()))
	}
	if !isDisabled(storeId, rid.TimelineLogTick) {
		tick := atomic.AddUint64(&rs.inner.tick, 1)
		tp = tp.With(rid.TimelineLogTick, rid.Sequence(int64(tick)))
	}
	row := chunk.NewPendingRow(tp, components)
	return rs.pushRow(entityPath, row)
}

// LogStatic appends a row with an empty time point: no log_time/log_tick
// is injected, and the row becomes static (spec.md §4.1).
func (rs *RecordingStream) LogStatic(entityPath rid.EntityPath, components map[rid.ComponentDescriptor][]any) error {
	if rs.IsDisabled() {
		return nil
	}
	row := chunk.NewPendingRow(rid.NewTimePoint(), components)
	return rs.pushRow(entityPath, row)
}

func (rs *RecordingStream) pushRow(entityPath rid.EntityPath, row chunk.PendingRow) error {
	err := rs.inner.batcher.PushRow(entityPath, rid.TimelineLogTime, row)
	if err != nil && rs.inner.log != nil {
		rs.inner.dedupe.Once(rs.inner.log, "push_row_failed", fmt.Sprintf("log: %v", err))
	}
	return err
}

// SendColumns ingests already-columnar data directly: it does not
// inject log_time/log_tick and does not consult the thread-local time
// context (spec.md §4.1).
func (rs *RecordingStream) SendColumns(
	entityPath rid.EntityPath,
	indexes map[rid.TimelineName][]int64,
	columns map[rid.ComponentDescriptor]*arrowshim.ListArray,
) error {
	if rs.IsDisabled() {
		return nil
	}
	n := 0
	for _, times := range indexes {
		n = len(times)
		break
	}
	if n == 0 {
		for _, col := range columns {
			n = col.Len()
			break
		}
	}
	rowIds := make([]rid.RowId, n)
	for i := range rowIds {
		rowIds[i] = rid.NewRowId()
	}
	timelines := make(map[rid.TimelineName]*chunk.TimeColumn, len(indexes))
	for name, times := range indexes {
		timelines[name] = chunk.NewTimeColumn(name, times)
	}
	c, err := chunk.New(rid.NewChunkId(), entityPath, rowIds, timelines, columns)
	if err != nil {
		return rerunerr.Wrap(rerunerr.KindChunk, "send_columns", err)
	}
	return rs.sendChunkInternal(c)
}

// LogChunk injects log_time/log_tick (one shared value for the whole
// chunk) before sending it (spec.md §4.1).
func (rs *RecordingStream) LogChunk(c *chunk.Chunk) error {
	if rs.IsDisabled() {
		return nil
	}
	n := c.NumRows()
	timelines := make(map[rid.TimelineName]*chunk.TimeColumn, len(c.Timelines())+2)
	for name, tc := range c.Timelines() {
		timelines[name] = tc
	}
	storeId := rs.inner.storeId
	if !isDisabled(storeId, rid.TimelineLogTime) {
		now := time.Now().UnixNano()
		times := make([]int64, n)
		for i := range times {
			times[i] = now
		}
		timelines[rid.TimelineLogTime] = chunk.NewTimeColumn(rid.TimelineLogTime, times)
	}
	if !isDisabled(storeId, rid.TimelineLogTick) {
		tick := int64(atomic.AddUint64(&rs.inner.tick, 1))
		times := make([]int64, n)
		for i := range times {
			times[i] = tick
		}
		timelines[rid.TimelineLogTick] = chunk.NewTimeColumn(rid.TimelineLogTick, times)
	}
	stamped, err := chunk.New(c.Id(), c.EntityPath(), c.RowIds(), timelines, c.Components())
	if err != nil {
		return rerunerr.Wrap(rerunerr.KindChunk, "log_chunk", err)
	}
	return rs.sendChunkInternal(stamped)
}

// SendChunk sends c to the batcher without injecting any timelines.
func (rs *RecordingStream) SendChunk(c *chunk.Chunk) error {
	if rs.IsDisabled() {
		return nil
	}
	return rs.sendChunkInternal(c)
}

func (rs *RecordingStream) sendChunkInternal(c *chunk.Chunk) error {
	err := rs.inner.batcher.PushChunk(c)
	if err != nil && rs.inner.log != nil {
		rs.inner.dedupe.Once(rs.inner.log, "push_chunk_failed", fmt.Sprintf("send_chunk: %v", err))
	}
	return err
}

// SetTime sets timeline in the calling thread's time context.
func (rs *RecordingStream) SetTime(timeline rid.TimelineName, cell rid.TimeCell) {
	if rs.IsDisabled() {
		return
	}
	SetTime(rs.inner.storeId, timeline, cell)
}

// SetTimePoint replaces the calling thread's entire time context.
func (rs *RecordingStream) SetTimePoint(tp rid.TimePoint) {
	if rs.IsDisabled() {
		return
	}
	SetTimePoint(rs.inner.storeId, tp)
}

// DisableTimeline excludes timeline from every subsequent log call on
// the calling thread.
func (rs *RecordingStream) DisableTimeline(timeline rid.TimelineName) {
	if rs.IsDisabled() {
		return
	}
	DisableTimeline(rs.inner.storeId, timeline)
}

// ResetTime clears the calling thread's time context entirely.
func (rs *RecordingStream) ResetTime() {
	if rs.IsDisabled() {
		return
	}
	ResetTime(rs.inner.storeId)
}

// FlushBlocking ensures every row/chunk already submitted to this
// stream is recorded by the active sink (spec.md §4.1/§5).
func (rs *RecordingStream) FlushBlocking(timeout time.Duration) error {
	if rs.IsDisabled() {
		return nil
	}
	rs.inner.batcher.FlushBlocking()
	reply := make(chan error, 1)
	rs.inner.cmds <- command{kind: cmdFlush, timeout: timeout, reply: reply}
	return <-reply
}

// SetSink hot-swaps the active sink per the sequence in spec.md §4.1/
// §4.3: drain+flush the old sink, forward a fresh SetStoreInfo plus the
// old sink's backlog to the new sink, then install it. When
// _RERUN_TEST_FORCE_SAVE is set, every swap is silently redirected to the
// single forced file sink instead of newSink (spec.md §6).
func (rs *RecordingStream) SetSink(newSink sink.Sink) error {
	if rs.IsDisabled() {
		return nil
	}
	if forced, err := rs.inner.forceSink(); err != nil {
		return err
	} else if forced != nil {
		newSink = forced
	}
	rs.inner.batcher.FlushBlocking()
	reply := make(chan error, 1)
	rs.inner.cmds <- command{kind: cmdSwapSink, newSink: newSink, timeout: 10 * time.Second, reply: reply}
	return <-reply
}

// Buffered swaps in a fresh BufferedSink.
func (rs *RecordingStream) Buffered() (*sink.BufferedSink, error) {
	s := sink.NewBufferedSink()
	return s, rs.SetSink(s)
}

// Memory swaps in a fresh MemorySink and returns its sharable storage.
func (rs *RecordingStream) Memory() (*sink.MemorySinkStorage, error) {
	s := sink.NewMemorySink()
	if err := rs.SetSink(s); err != nil {
		return nil, err
	}
	return s.Storage(), nil
}

// Save swaps in a FileSink writing to path.
func (rs *RecordingStream) Save(path string) error {
	s, err := sink.NewFileSink(path)
	if err != nil {
		return err
	}
	return rs.SetSink(s)
}

// Stdout swaps in a FileSink writing to stdout.
func (rs *RecordingStream) Stdout() error {
	return rs.SetSink(sink.NewStdoutFileSink())
}

// ConnectGrpc swaps in a GrpcSink streaming to a remote grpcproxy
// server at addr (spec.md §6's connect_grpc).
func (rs *RecordingStream) ConnectGrpc(addr string) error {
	s, err := sink.NewGrpcSink(addr, rs.inner.log)
	if err != nil {
		return err
	}
	return rs.SetSink(s)
}

// ServeGrpc starts a local grpcproxy server bound to addr and swaps in
// a GrpcServerSink publishing to it, so a viewer process can
// connect_grpc and watch this recording live (spec.md §6's serve_grpc).
// catalog may be nil for a pure ephemeral server with no recording
// listing.
func (rs *RecordingStream) ServeGrpc(addr string, catalog grpcproxy.Catalog) error {
	s, err := sink.NewGrpcServerSink(addr, catalog)
	if err != nil {
		return err
	}
	return rs.SetSink(s)
}

// Close decrements the strong-handle refcount; when it reaches zero, it
// performs a best-effort flush and shuts the forwarding thread down
// (spec.md §3/§5). Safe to call more than once.
func (rs *RecordingStream) Close() {
	if rs.IsDisabled() {
		return
	}
	if atomic.AddInt32(&rs.inner.refCount, -1) > 0 {
		return
	}
	rs.inner.shutdownOnce.Do(func() {
		if os.Getpid() != rs.inner.pid {
			if rs.inner.log != nil {
				rs.inner.log.Error("recording stream dropped after fork; skipping flush")
			}
			return
		}
		rs.inner.batcher.Close()
		reply := make(chan error, 1)
		rs.inner.cmds <- command{kind: cmdFlush, timeout: forever, reply: reply}
		<-reply
		rs.inner.cmds <- command{kind: cmdShutdown}
		<-rs.inner.done
	})
}
