package batcher

import (
	"sync"
	"time"

	"github.com/rerun-go/rerun/chunk"
	"github.com/rerun-go/rerun/logging"
	"github.com/rerun-go/rerun/rerunerr"
	"github.com/rerun-go/rerun/rid"
)

// accumulator holds one entity's pending rows between flushes.
type accumulator struct {
	path              rid.EntityPath
	rows              []chunk.PendingRow
	bytes             uint64
	preferredTimeline rid.TimelineName
}

// Batcher coalesces PendingRows into Chunks per spec.md §4.2: rows
// submitted via PushRow accumulate per entity path until a time, byte
// or row-count threshold trips, at which point the accumulator is
// drained into one chunk.BuildFromRows call and handed to Flushed.
// Complete chunks submitted via PushChunk bypass accumulation but still
// count against MaxBytesInFlight.
type Batcher struct {
	mu        sync.Mutex
	spaceCond *sync.Cond
	cfg       Config
	accs      map[string]*accumulator
	closed    bool

	inFlight uint64 // bytes emitted but not yet Released by the consumer

	out    chan *chunk.Chunk
	ticker *time.Ticker
	stop   chan struct{}
	done   chan struct{}

	log *logging.ContextLogger
}

// New starts a Batcher with the given config; its flush-destination
// channel holds up to 64 chunks. The caller must range over Flushed() until it
// closes (which happens after Close() once every pending accumulator
// has been drained).
func New(cfg Config, logger *logging.ContextLogger) *Batcher {
	b := &Batcher{
		cfg:  cfg,
		accs: make(map[string]*accumulator),
		out:  make(chan *chunk.Chunk, 64),
		stop: make(chan struct{}),
		done: make(chan struct{}),
		log:  logger,
	}
	b.spaceCond = sync.NewCond(&b.mu)
	if cfg.FlushTick > 0 {
		b.ticker = time.NewTicker(cfg.FlushTick)
	}
	go b.run()
	return b
}

// Release tells the batcher that numBytes worth of previously emitted
// chunks have been durably handed off (e.g. a sink finished its send),
// freeing that much of the MaxBytesInFlight quota and waking any
// PushRow/PushChunk call blocked on it.
func (b *Batcher) Release(numBytes uint64) {
	b.mu.Lock()
	if numBytes > b.inFlight {
		b.inFlight = 0
	} else {
		b.inFlight -= numBytes
	}
	b.spaceCond.Broadcast()
	b.mu.Unlock()
}

// waitForSpaceLocked blocks, releasing mu while waiting, until emitting
// size more bytes would not exceed MaxBytesInFlight, or nothing is in
// flight (so a single chunk larger than the quota still goes through),
// or the batcher is closed. Must be called with b.mu held.
func (b *Batcher) waitForSpaceLocked(size uint64) {
	for !b.closed && b.inFlight > 0 && b.inFlight+size > b.cfg.MaxBytesInFlight {
		b.spaceCond.Wait()
	}
	b.inFlight += size
}

// Flushed is the channel of chunks this batcher emits. Closed once the
// batcher has fully shut down after Close().
func (b *Batcher) Flushed() <-chan *chunk.Chunk { return b.out }

func (b *Batcher) run() {
	defer close(b.done)
	var tickC <-chan time.Time
	if b.ticker != nil {
		tickC = b.ticker.C
	}
	for {
		select {
		case <-tickC:
			b.flushAll("tick")
		case <-b.stop:
			if b.ticker != nil {
				b.ticker.Stop()
			}
			b.flushAll("close")
			close(b.out)
			return
		}
	}
}

// entityKey stands in for a full component-descriptor-aware accumulator
// key: one accumulator per entity path, matching spec.md §4.2 (a chunk
// never spans more than one entity).
func entityKey(path rid.EntityPath) string { return path.String() }

// PushRow appends row to path's accumulator under preferredTimeline,
// flushing immediately if any threshold is now exceeded. preferredTimeline
// is the timeline BuildFromRows will sort on if every accumulated row
// carries it (spec.md §4.2).
func (b *Batcher) PushRow(path rid.EntityPath, preferredTimeline rid.TimelineName, row chunk.PendingRow) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return rerunerr.New(rerunerr.KindBatcherClosed, "batcher is closed")
	}
	key := entityKey(path)
	acc, ok := b.accs[key]
	if !ok {
		acc = &accumulator{path: path, preferredTimeline: preferredTimeline}
		b.accs[key] = acc
	}
	acc.rows = append(acc.rows, row)
	acc.bytes += row.HeapSize()

	flush := uint64(len(acc.rows)) >= b.cfg.FlushNumRows || acc.bytes >= b.cfg.FlushNumBytes
	var out *chunk.Chunk
	var err error
	if flush {
		out, err = b.drainLocked(path, key, acc)
	}
	b.mu.Unlock()

	if flush && err == nil && out != nil {
		b.emit(out)
	}
	return err
}

// PushChunk enqueues an already-built chunk for delivery, bypassing
// accumulation. Used when a caller (RecordingStream.SendChunk) already
// has a complete columnar batch.
func (b *Batcher) PushChunk(c *chunk.Chunk) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return rerunerr.New(rerunerr.KindBatcherClosed, "batcher is closed")
	}
	b.mu.Unlock()
	b.emit(c)
	return nil
}

// emit hands a built chunk to the output channel, applying the
// MaxBytesInFlight quota as backpressure: PushRow/PushChunk block here
// if the consumer has not yet Release()'d enough in-flight bytes,
// matching spec.md §4.2's requirement that a stalled sink eventually
// back-pressures the logging API.
func (b *Batcher) emit(c *chunk.Chunk) {
	size := c.ApproxByteSize()
	b.mu.Lock()
	b.waitForSpaceLocked(size)
	b.mu.Unlock()

	b.out <- c
	if b.cfg.OnRelease != nil {
		b.cfg.OnRelease(c.Id().String())
	}
}

// drainLocked must be called with b.mu held. It removes acc from the
// accumulator map and builds its chunk; the caller is responsible for
// emitting the result after releasing the lock.
func (b *Batcher) drainLocked(path rid.EntityPath, key string, acc *accumulator) (*chunk.Chunk, error) {
	delete(b.accs, key)
	if len(acc.rows) == 0 {
		return nil, nil
	}
	c, err := chunk.BuildFromRows(path, acc.rows, acc.preferredTimeline)
	if err != nil {
		if b.log != nil {
			b.log.WithError(err).WithField("entity_path", path.String()).Error("batcher: failed to build chunk")
		}
		return nil, rerunerr.Wrap(rerunerr.KindChunk, "failed to build chunk on flush", err)
	}
	if !c.IsSortedOn(acc.preferredTimeline) && uint64(c.NumRows()) > b.cfg.MaxChunkRowsIfUnsorted {
		if b.log != nil {
			b.log.WithField("entity_path", path.String()).WithField("num_rows", c.NumRows()).
				Warn("batcher: unsorted chunk exceeds max_chunk_rows_if_unsorted")
		}
	}
	return c, nil
}

func (b *Batcher) flushAll(reason string) {
	b.mu.Lock()
	var built []*chunk.Chunk
	for key, acc := range b.accs {
		if len(acc.rows) == 0 {
			delete(b.accs, key)
			continue
		}
		c, err := b.drainLocked(acc.path, key, acc)
		if err == nil && c != nil {
			built = append(built, c)
		}
	}
	b.mu.Unlock()

	for _, c := range built {
		b.emit(c)
	}
	if b.log != nil && len(built) > 0 {
		b.log.WithField("reason", reason).WithField("num_chunks", len(built)).Debug("batcher: flushed")
	}
}

// UpdateConfig installs a new Config without disturbing any currently
// pending accumulators (spec.md §4.2): only future PushRow calls see the
// new thresholds.
func (b *Batcher) UpdateConfig(cfg Config) {
	b.mu.Lock()
	old := b.cfg
	b.cfg = cfg
	if old.FlushTick != cfg.FlushTick {
		if b.ticker != nil {
			b.ticker.Stop()
		}
		if cfg.FlushTick > 0 {
			b.ticker = time.NewTicker(cfg.FlushTick)
		} else {
			b.ticker = nil
		}
	}
	b.mu.Unlock()
	if cfg.OnConfigChange != nil {
		cfg.OnConfigChange(cfg)
	}
}

// FlushBlocking synchronously drains every pending accumulator,
// returning only after all resulting chunks have been placed on the
// output channel.
func (b *Batcher) FlushBlocking() {
	b.flushAll("explicit")
}

// Close stops accepting new rows, flushes every pending accumulator and
// closes Flushed() once drained. Close blocks until shutdown completes.
func (b *Batcher) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.spaceCond.Broadcast()
	b.mu.Unlock()
	close(b.stop)
	<-b.done
}
