// Package sink implements the uniform Sink interface (spec.md §4.7) that
// every RecordingStream forwards LogMsgs to: BufferedSink, MemorySink,
// FileSink, GrpcSink, GrpcServerSink and MultiSink all satisfy it, so a
// stream can be built against any one of them (or swapped between them
// at runtime) without caring which.
package sink

import (
	"time"

	"github.com/rerun-go/rerun/batcher"
	"github.com/rerun-go/rerun/logmsg"
)

// Sink is the capability set every sink implements (spec.md §4.7):
// accept messages, flush with a bound on how long the caller waits,
// optionally hand back whatever it has buffered so far, and advertise
// the batcher config that suits its own backlog semantics best.
type Sink interface {
	// Send hands msg to the sink. Sinks that buffer do so losslessly;
	// sinks that stream do so in submission order.
	Send(msg logmsg.LogMsg)

	// FlushBlocking ensures every message already sent to this sink is
	// durably recorded (buffered sinks: committed to their backing
	// slice; FileSink: confirmed written to the OS) before returning.
	// GrpcSink does not wait on the peer: it reports only an error
	// already observed on the stream; GrpcServerSink always returns nil.
	// A zero timeout means wait indefinitely.
	FlushBlocking(timeout time.Duration) error

	// DrainBacklog moves out and returns everything this sink has
	// recorded so far, for replay into a newly swapped-in sink. Sinks
	// that cannot reconstruct a backlog (a live gRPC peer, for example)
	// return nil.
	DrainBacklog() []logmsg.LogMsg

	// DefaultBatcherConfig is the batcher.Config a RecordingStream
	// should default to when this is its only sink, chosen for this
	// sink's own latency/throughput tradeoff.
	DefaultBatcherConfig() batcher.Config
}
