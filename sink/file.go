package sink

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rerun-go/rerun/batcher"
	"github.com/rerun-go/rerun/logmsg"
	"github.com/rerun-go/rerun/rerunerr"
)

// FileSink streams an RRD envelope (one JSON-encoded LogMsg per line) to
// disk or stdout (spec.md §4.7). It never buffers in memory beyond the
// encoder's own line buffer, so DrainBacklog returns nil: its backlog is
// whatever the destination file already holds, not something this
// process can hand back for replay into another sink.
type FileSink struct {
	mu     sync.Mutex
	w      io.Writer
	syncer func() error // fsync, nil for stdout/non-*os.File writers
	closed bool
}

// NewFileSink opens path for writing (truncating any existing file) and
// streams every sent message to it.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, rerunerr.Wrap(rerunerr.KindSinkFlushFailed, "open rrd file "+path, err)
	}
	return &FileSink{w: f, syncer: f.Sync}, nil
}

// NewStdoutFileSink streams to os.Stdout; flush confirmation is
// best-effort since stdout may be a pipe with no fsync semantics.
func NewStdoutFileSink() *FileSink {
	return &FileSink{w: os.Stdout}
}

func (s *FileSink) Send(msg logmsg.LogMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	// Errors on an individual write are reported to the caller only via
	// FlushBlocking, the same way the teacher's queue services surface
	// publish failures on the next operation rather than from Send
	// itself, since Send has no error return in the Sink interface.
	_ = encodeLogMsg(s.w, msg)
}

// FlushBlocking confirms every write so far has reached the OS within
// timeout, via fsync when the destination is a real file.
func (s *FileSink) FlushBlocking(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncer == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- s.syncer() }()
	if timeout <= 0 {
		err := <-done
		return wrapSyncErr(err)
	}
	select {
	case err := <-done:
		return wrapSyncErr(err)
	case <-time.After(timeout):
		return rerunerr.New(rerunerr.KindSinkFlushTimeout, fmt.Sprintf("rrd file sync exceeded %s", timeout))
	}
}

func wrapSyncErr(err error) error {
	if err == nil {
		return nil
	}
	return rerunerr.Wrap(rerunerr.KindSinkFlushFailed, "rrd file sync", err)
}

func (s *FileSink) DrainBacklog() []logmsg.LogMsg { return nil }

// DefaultBatcherConfig matches BufferedSink's: a file sink exists for
// later replay, not interactive latency.
func (s *FileSink) DefaultBatcherConfig() batcher.Config {
	return batcher.InfrequentConfig()
}

// Close closes the underlying file, if any. Safe to call once.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if c, ok := s.w.(io.Closer); ok && s.w != os.Stdout {
		return c.Close()
	}
	return nil
}
