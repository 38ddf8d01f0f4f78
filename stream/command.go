package stream

import (
	"time"

	"github.com/rerun-go/rerun/logmsg"
	"github.com/rerun-go/rerun/sink"
)

// commandKind tags a Command sent on a RecordingStreamInner's cmds
// channel (spec.md §4.3).
type commandKind int

const (
	cmdRecord commandKind = iota
	cmdSwapSink
	cmdInspectSink
	cmdFlush
	cmdPopPendingChunks
	cmdShutdown
)

// command is one unit on the forwarding thread's command channel.
// Exactly the fields relevant to Kind are populated.
type command struct {
	kind commandKind

	// cmdRecord
	msg logmsg.LogMsg

	// cmdSwapSink
	newSink sink.Sink
	timeout time.Duration

	// cmdFlush / cmdSwapSink: reply/ack channel, sent on once the
	// forwarding thread has processed the command. cmdInspectSink does
	// not use it.
	reply chan error

	// cmdInspectSink
	inspect func(sink.Sink)
}
