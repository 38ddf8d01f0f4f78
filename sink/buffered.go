package sink

import (
	"sync"
	"time"

	"github.com/rerun-go/rerun/batcher"
	"github.com/rerun-go/rerun/logmsg"
)

// BufferedSink accumulates every LogMsg it is sent in memory and never
// discards any of it until drained (spec.md §4.7). It is the backlog
// kind every other sink falls back to when a SwapSink needs to replay
// what came before: a mutex-guarded slice, the same guarded-struct shape
// the teacher uses for its own in-memory queue services rather than a
// channel-driven actor.
type BufferedSink struct {
	mu      sync.Mutex
	backlog []logmsg.LogMsg
}

func NewBufferedSink() *BufferedSink {
	return &BufferedSink{}
}

func (s *BufferedSink) Send(msg logmsg.LogMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backlog = append(s.backlog, msg)
}

// FlushBlocking is a no-op beyond acquiring the lock: everything sent to
// a BufferedSink is already durably held in its backlog slice the
// instant Send returns.
func (s *BufferedSink) FlushBlocking(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return nil
}

func (s *BufferedSink) DrainBacklog() []logmsg.LogMsg {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.backlog
	s.backlog = nil
	return out
}

// DefaultBatcherConfig is deliberately infrequent: a BufferedSink exists
// to be replayed later, so minimizing chunk count beats minimizing
// latency (spec.md §4.7).
func (s *BufferedSink) DefaultBatcherConfig() batcher.Config {
	return batcher.InfrequentConfig()
}
