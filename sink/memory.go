package sink

import (
	"sync"
	"time"

	"github.com/rerun-go/rerun/batcher"
	"github.com/rerun-go/rerun/logmsg"
)

// MemorySinkStorage is the sharable handle behind a MemorySink: callers
// that did not create the sink (a test, the viewer embedded in the same
// process) can still snapshot what has been logged so far without
// racing the sink's own Send calls.
type MemorySinkStorage struct {
	mu  sync.Mutex
	msgs []logmsg.LogMsg
}

// Snapshot returns a copy of everything recorded so far. Unlike
// DrainBacklog this never clears the storage: a MemorySink is meant to
// be inspected repeatedly, not consumed once.
func (s *MemorySinkStorage) Snapshot() []logmsg.LogMsg {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]logmsg.LogMsg, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *MemorySinkStorage) append(msg logmsg.LogMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *MemorySinkStorage) drain() []logmsg.LogMsg {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.msgs
	s.msgs = nil
	return out
}

// MemorySink behaves like BufferedSink but exposes its storage as a
// MemorySinkStorage handle that can be shared and snapshotted by a test
// or an in-process viewer (spec.md §4.7).
type MemorySink struct {
	storage *MemorySinkStorage
}

// NewMemorySink builds a MemorySink with its own fresh storage.
func NewMemorySink() *MemorySink {
	return &MemorySink{storage: &MemorySinkStorage{}}
}

// Storage returns the sharable handle backing this sink.
func (s *MemorySink) Storage() *MemorySinkStorage { return s.storage }

func (s *MemorySink) Send(msg logmsg.LogMsg) { s.storage.append(msg) }

func (s *MemorySink) FlushBlocking(timeout time.Duration) error { return nil }

func (s *MemorySink) DrainBacklog() []logmsg.LogMsg { return s.storage.drain() }

func (s *MemorySink) DefaultBatcherConfig() batcher.Config {
	return batcher.InfrequentConfig()
}
