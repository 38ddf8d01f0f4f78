package sink

import (
	"context"
	"sync"
	"time"

	"github.com/rerun-go/rerun/batcher"
	"github.com/rerun-go/rerun/grpcproxy"
	"github.com/rerun-go/rerun/logging"
	"github.com/rerun-go/rerun/logmsg"
	"github.com/rerun-go/rerun/rerunerr"
	"google.golang.org/grpc"
)

// GrpcSink streams every sent LogMsg to a remote grpcproxy server
// (spec.md §6's connect_grpc), the client-side counterpart to
// GrpcServerSink. It mirrors FileSink's mutex-guarded-writer shape:
// Send has no error return, so write failures surface later from
// FlushBlocking instead.
type GrpcSink struct {
	mu     sync.Mutex
	cc     *grpc.ClientConn
	client *grpcproxy.Client
	stream *grpcproxy.LogStream
	err    error
	closed bool
	log    *logging.ContextLogger
}

// NewGrpcSink dials addr and opens a StreamLogMsgs stream to it. A
// background goroutine drains the server's acknowledgements so the
// stream's receive buffer never backs up; any error it observes
// (including the stream ending) is surfaced on the next FlushBlocking.
func NewGrpcSink(addr string, logger *logging.ContextLogger) (*GrpcSink, error) {
	cc, err := grpcproxy.Dial(addr)
	if err != nil {
		return nil, rerunerr.Wrap(rerunerr.KindSinkFlushFailed, "dial grpc sink "+addr, err)
	}
	client := grpcproxy.NewClient(cc)
	stream, err := client.StreamLogMsgs(context.Background())
	if err != nil {
		cc.Close()
		return nil, rerunerr.Wrap(rerunerr.KindSinkFlushFailed, "open StreamLogMsgs to "+addr, err)
	}
	s := &GrpcSink{cc: cc, client: client, stream: stream, log: logger}
	go s.drainAcks()
	return s, nil
}

func (s *GrpcSink) drainAcks() {
	for {
		_, err := s.stream.Recv()
		if err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			if s.log != nil {
				s.log.WithError(err).Warn("grpc sink stream ended")
			}
			return
		}
	}
}

func (s *GrpcSink) Send(msg logmsg.LogMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if err := s.stream.Send(msg); err != nil {
		s.err = err
		if s.log != nil {
			s.log.WithError(err).Warn("grpc sink send failed")
		}
	}
}

// FlushBlocking reports the first send/stream error observed so far, if
// any; a live gRPC stream has no local buffer to fsync, so there is
// otherwise nothing to wait on.
func (s *GrpcSink) FlushBlocking(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return rerunerr.Wrap(rerunerr.KindSinkFlushFailed, "grpc sink", s.err)
	}
	return nil
}

// DrainBacklog returns nil: a GrpcSink talks to a live peer and keeps
// no replay-capable backlog of its own, matching FileSink's position.
func (s *GrpcSink) DrainBacklog() []logmsg.LogMsg { return nil }

func (s *GrpcSink) DefaultBatcherConfig() batcher.Config {
	return batcher.DefaultConfig()
}

// Close half-closes the send side and tears down the underlying
// connection. Safe to call once.
func (s *GrpcSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.stream.CloseSend()
	return s.cc.Close()
}

// GrpcServerSink runs a local grpcproxy server and publishes every sent
// LogMsg to its Broadcaster, so an external process (the viewer
// spec.md §5 assumes is spawned, not rendered, by this module) can
// connect_grpc to it and watch the recording live via
// SubscribeLogMsgs. The Broadcaster keeps a byte-budgeted ring of
// published messages (oldest non-static entries evicted first) and
// replays it to each new subscriber, so a viewer that connects late
// still receives the retained tail. That ring is not exposed through
// DrainBacklog.
type GrpcServerSink struct {
	gs  *grpc.Server
	bus *grpcproxy.Broadcaster
}

// NewGrpcServerSink starts serving on addr with catalog (which may be
// nil) answering ListRecordings/OpenRecording, and returns a sink that
// feeds every subsequent Send to any viewer that subscribes.
func NewGrpcServerSink(addr string, catalog grpcproxy.Catalog) (*GrpcServerSink, error) {
	bus := grpcproxy.NewBroadcaster()
	impl := &grpcproxy.Server{Catalog: catalog, Broadcaster: bus}
	gs, err := grpcproxy.Serve(addr, impl)
	if err != nil {
		return nil, rerunerr.Wrap(rerunerr.KindSinkFlushFailed, "serve grpc sink "+addr, err)
	}
	return &GrpcServerSink{gs: gs, bus: bus}, nil
}

func (s *GrpcServerSink) Send(msg logmsg.LogMsg) { s.bus.Publish(msg) }

// FlushBlocking always succeeds: publishing to subscribers is
// fire-and-forget, there is nothing in-flight to wait on.
func (s *GrpcServerSink) FlushBlocking(timeout time.Duration) error { return nil }

func (s *GrpcServerSink) DrainBacklog() []logmsg.LogMsg { return nil }

func (s *GrpcServerSink) DefaultBatcherConfig() batcher.Config {
	return batcher.DefaultConfig()
}

// Close stops accepting new viewer connections and, through
// grpc.Server.GracefulStop, waits for every in-flight RPC (including
// open SubscribeLogMsgs streams) to finish before returning.
func (s *GrpcServerSink) Close() error {
	s.gs.GracefulStop()
	return nil
}
