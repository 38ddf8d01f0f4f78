package sink

import (
	"time"

	"github.com/rerun-go/rerun/batcher"
	"github.com/rerun-go/rerun/logmsg"
)

// MultiSink fans a single stream of LogMsgs out to an ordered set of
// sinks (spec.md §4.7). Send forwards to every member in order;
// FlushBlocking flushes them in the same order and its own backpressure
// is therefore whatever the slowest member's FlushBlocking takes.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Send(msg logmsg.LogMsg) {
	for _, s := range m.sinks {
		s.Send(msg)
	}
}

// FlushBlocking flushes each member sink in order, each against the
// same overall timeout budget, and returns the first failure
// encountered. A Timeout from any member is reported as a Timeout for
// the whole MultiSink; remaining members are still flushed so a single
// slow sink does not starve the others of their flush attempt.
func (m *MultiSink) FlushBlocking(timeout time.Duration) error {
	var first error
	for _, s := range m.sinks {
		deadline := timeout
		start := time.Now()
		if err := s.FlushBlocking(deadline); err != nil && first == nil {
			first = err
		}
		if timeout > 0 {
			timeout -= time.Since(start)
			if timeout < 0 {
				timeout = 0
			}
		}
	}
	return first
}

// DrainBacklog returns the first non-nil backlog among the member
// sinks: a SwapSink only needs one faithful replay source, and member
// sinks agree on what has been sent since Send fans out identically to
// all of them.
func (m *MultiSink) DrainBacklog() []logmsg.LogMsg {
	for _, s := range m.sinks {
		if backlog := s.DrainBacklog(); backlog != nil {
			return backlog
		}
	}
	return nil
}

// DefaultBatcherConfig is undefined for a fan-out of heterogeneous
// sinks with potentially conflicting preferences; MultiSink falls back
// to the interactive default rather than guessing which member matters
// most.
func (m *MultiSink) DefaultBatcherConfig() batcher.Config {
	return batcher.DefaultConfig()
}
