// Package batcher implements ChunkBatcher (spec.md §4.2): coalescing
// PendingRows into Chunks under time, size and row-count pressure.
package batcher

import "time"

// Config configures a ChunkBatcher's flush thresholds (spec.md §4.2).
type Config struct {
	FlushTick              time.Duration
	FlushNumBytes          uint64
	FlushNumRows           uint64
	MaxChunkRowsIfUnsorted uint64
	MaxBytesInFlight       uint64

	// OnRelease is invoked with a chunk's id as soon as the batcher has
	// placed that chunk on its Flushed channel (spec.md §4.2 hooks). The
	// batcher does not track when a sink stops referencing the chunk, so
	// the call does not wait for that.
	OnRelease func(chunkId string)
	// OnConfigChange is invoked after UpdateConfig installs a new
	// config (spec.md §4.2 hooks).
	OnConfigChange func(Config)
}

// DefaultConfig is the DEFAULT sentinel config from spec.md §4.2: a
// balance of latency and throughput suitable for interactive logging.
func DefaultConfig() Config {
	return Config{
		FlushTick:              200 * time.Millisecond,
		FlushNumBytes:          1024 * 1024,
		FlushNumRows:           1 << 62,
		MaxChunkRowsIfUnsorted: 1024,
		MaxBytesInFlight:       5 * 1024 * 1024 * 1024,
	}
}

// NeverConfig is the NEVER sentinel: only explicit flushes ever publish
// a chunk.
func NeverConfig() Config {
	return Config{
		FlushTick:              0, // 0 disables the ticker
		FlushNumBytes:          1 << 62,
		FlushNumRows:           1 << 62,
		MaxChunkRowsIfUnsorted: 1 << 62,
		MaxBytesInFlight:       1 << 62,
	}
}

// AlwaysConfig is the ALWAYS sentinel: every row is flushed as its own
// chunk immediately.
func AlwaysConfig() Config {
	return Config{
		FlushTick:              0,
		FlushNumBytes:          0,
		FlushNumRows:           1,
		MaxChunkRowsIfUnsorted: 1,
		MaxBytesInFlight:       1 << 62,
	}
}

// InfrequentConfig favors few, large chunks over low latency: the
// default a sink chooses when it buffers data purely for later replay
// rather than for interactive viewing (spec.md §4.7, BufferedSink's
// default_batcher_config).
func InfrequentConfig() Config {
	return Config{
		FlushTick:              2 * time.Second,
		FlushNumBytes:          16 * 1024 * 1024,
		FlushNumRows:           1 << 62,
		MaxChunkRowsIfUnsorted: 1 << 20,
		MaxBytesInFlight:       5 * 1024 * 1024 * 1024,
	}
}
