package grpcproxy

import (
	"sync"

	"github.com/rerun-go/rerun/logmsg"
)

// defaultRingBudget bounds a Broadcaster's backlog of non-static
// messages (spec.md §4.5's "buffers messages in a ring with a
// memory-limit policy (drop oldest, never drop static)").
const defaultRingBudget = 64 * 1024 * 1024

// Broadcaster is the server-push half of a served recording
// (spec.md §4.5's GrpcServerSink): a RecordingStream publishes every
// LogMsg it sends here, and every viewer connected via
// SubscribeLogMsgs receives the same sequence — both the backlog
// accumulated before it joined (a "coherent tail": every SetStoreInfo/
// BlueprintActivationCommand and static chunk ever published, plus as
// much of the time-varying tail as fits the memory budget) and
// everything published afterward.
type Broadcaster struct {
	mu     sync.Mutex
	ring   []logmsg.LogMsg
	bytes  uint64
	budget uint64
	subs   map[int]chan logmsg.LogMsg
	next   int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan logmsg.LogMsg), budget: defaultRingBudget}
}

// NewBroadcasterWithBudget is NewBroadcaster with an explicit ring
// memory budget in bytes, for callers (and tests) that need a tighter
// bound than the default.
func NewBroadcasterWithBudget(budget uint64) *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan logmsg.LogMsg), budget: budget}
}

func approxByteSize(msg logmsg.LogMsg) uint64 {
	if msg.Kind == logmsg.KindArrowMsg && msg.Chunk != nil {
		return msg.Chunk.ApproxByteSize()
	}
	return 64
}

func isStatic(msg logmsg.LogMsg) bool {
	return msg.Kind != logmsg.KindArrowMsg || msg.Chunk == nil || msg.Chunk.IsStatic()
}

// Publish appends msg to the ring (evicting the oldest non-static
// entries first if that pushes the ring over budget) and enqueues it
// to every current subscriber. A subscriber whose channel is already
// full has its single oldest buffered message dropped to make room
// rather than blocking the publisher: a slow viewer falls behind
// instead of stalling logging.
func (b *Broadcaster) Publish(msg logmsg.LogMsg) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ring = append(b.ring, msg)
	b.bytes += approxByteSize(msg)
	b.evictLocked()

	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- msg:
			default:
			}
		}
	}
}

// evictLocked drops the oldest non-static ring entries until the ring
// fits its byte budget, or until only static entries remain (which are
// never dropped, per spec.md §4.5).
func (b *Broadcaster) evictLocked() {
	for b.bytes > b.budget {
		idx := -1
		for i, m := range b.ring {
			if !isStatic(m) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return
		}
		b.bytes -= approxByteSize(b.ring[idx])
		b.ring = append(b.ring[:idx], b.ring[idx+1:]...)
	}
}

// subscribe registers a new subscriber and returns the current ring
// snapshot (the coherent tail) alongside the channel that will carry
// everything published from this point on. Both are produced under the
// same lock as Publish, so no message can be missed or duplicated
// across the snapshot/registration boundary.
func (b *Broadcaster) subscribe() (int, []logmsg.LogMsg, chan logmsg.LogMsg) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan logmsg.LogMsg, 256)
	b.subs[id] = ch
	snapshot := make([]logmsg.LogMsg, len(b.ring))
	copy(snapshot, b.ring)
	return id, snapshot, ch
}

func (b *Broadcaster) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// NumSubscribers reports the current subscriber count, for tests and
// introspection.
func (b *Broadcaster) NumSubscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
