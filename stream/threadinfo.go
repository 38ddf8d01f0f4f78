// Package stream implements RecordingStream (spec.md §4.1/§4.3/§5): the
// public logging façade, its thread-local time context, and the
// forwarding-thread goroutine that drains the batcher and multiplexes
// commands to a swappable sink.
package stream

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"

	"github.com/rerun-go/rerun/rid"
)

// goroutineID approximates the "current thread" spec.md §4.1 keys its
// time context on. Go has no stable goroutine-local-storage API and no
// pack example needs one, so this parses the goroutine id out of a
// runtime.Stack trace the way the handful of well-known Go libraries
// that need real goroutine identity do (e.g. petermattis/goid) — kept
// in-house here rather than adding a dependency no example imports.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	field := bytes.Fields(buf[:n])[1]
	id, _ := strconv.ParseInt(string(field), 10, 64)
	return id
}

type threadKey struct {
	goroutine int64
	store     rid.StoreId
}

// threadState is the per-(thread, recording) mutable time context
// spec.md §4.1 describes: a TimePoint plus the set of timelines this
// thread has disabled. Only the owning goroutine ever mutates its own
// entry; the mutex exists only to guard against a caller sharing a
// RecordingStream handle across goroutines that still share the "same"
// logical time context by construction error.
type threadState struct {
	mu       sync.Mutex
	tp       rid.TimePoint
	disabled map[rid.TimelineName]bool
}

var threadStates sync.Map // threadKey -> *threadState

func stateFor(store rid.StoreId) *threadState {
	key := threadKey{goroutine: goroutineID(), store: store}
	if v, ok := threadStates.Load(key); ok {
		return v.(*threadState)
	}
	v, _ := threadStates.LoadOrStore(key, &threadState{
		tp:       rid.NewTimePoint(),
		disabled: make(map[rid.TimelineName]bool),
	})
	return v.(*threadState)
}

// SetTime sets timeline to cell in the calling thread's time context for
// store.
func SetTime(store rid.StoreId, timeline rid.TimelineName, cell rid.TimeCell) {
	s := stateFor(store)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled[timeline] {
		return
	}
	s.tp = s.tp.With(timeline, cell)
}

// SetTimePoint replaces the calling thread's entire time context for
// store.
func SetTimePoint(store rid.StoreId, tp rid.TimePoint) {
	s := stateFor(store)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tp = tp.Clone()
}

// DisableTimeline excludes timeline from every subsequent log call on
// the calling thread for store, until ResetTime or the process exits.
func DisableTimeline(store rid.StoreId, timeline rid.TimelineName) {
	s := stateFor(store)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled[timeline] = true
	delete(s.tp, timeline)
}

// ResetTime clears the calling thread's entire time context for store,
// including disabled timelines.
func ResetTime(store rid.StoreId) {
	s := stateFor(store)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tp = rid.NewTimePoint()
	s.disabled = make(map[rid.TimelineName]bool)
}

// isDisabled reports whether the calling thread has disabled timeline
// for store.
func isDisabled(store rid.StoreId, timeline rid.TimelineName) bool {
	s := stateFor(store)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled[timeline]
}

// effectiveTimePoint returns a copy of the calling thread's time context
// for store, with disabled timelines stripped — the base a log call
// injects log_time/log_tick into (spec.md §4.1).
func effectiveTimePoint(store rid.StoreId) rid.TimePoint {
	s := stateFor(store)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.tp.Clone()
	for timeline := range s.disabled {
		delete(out, timeline)
	}
	return out
}
