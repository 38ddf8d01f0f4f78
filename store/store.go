// Package store implements ChunkStore (spec.md §4.4): an in-memory
// index of chunks keyed by ChunkId, with synchronous subscriber
// fan-out and a size/age-budgeted garbage collector, grounded on the
// teacher's statemanager.Manager (a mutex-guarded map with capacity-
// driven eviction and an echo introspection surface).
package store

import (
	"sync"
	"time"

	"github.com/rerun-go/rerun/chunk"
	"github.com/rerun-go/rerun/logging"
	"github.com/rerun-go/rerun/rid"
)

// EventKind tags a ChunkStoreEvent (spec.md §3 GLOSSARY).
type EventKind int

const (
	EventAdd EventKind = iota
	EventDeletion
)

func (k EventKind) String() string {
	if k == EventDeletion {
		return "Deletion"
	}
	return "Add"
}

// Event is the {kind, diff{chunk, kind}} notification ChunkStore
// dispatches to subscribers on insert and gc.
type Event struct {
	Kind  EventKind
	Chunk *chunk.Chunk
}

// Subscriber receives batched store events. Implementations must be
// cheap on the hot path (spec.md §4.4): heavy work belongs in a
// separate process_store_events pass, not inside OnEvents itself.
type Subscriber interface {
	OnEvents(events []Event)
}

// GcOptions bounds a single GC pass (spec.md §4.4: "trims chunks
// subject to a size/time budget").
type GcOptions struct {
	MaxBytes uint64
	MaxAge   time.Duration
}

// entry pairs a chunk with its insertion time, needed for MaxAge-based
// GC since Chunk itself carries no wall-clock metadata.
type entry struct {
	chunk      *chunk.Chunk
	insertedAt time.Time
}

// Store is the durable-in-memory chunk index for one recording.
type Store struct {
	mu          sync.RWMutex
	chunks      map[rid.ChunkId]*entry
	byEntity    map[string][]rid.ChunkId
	subscribers []Subscriber

	log *logging.ContextLogger
}

// New builds an empty Store.
func New(logger *logging.ContextLogger) *Store {
	return &Store{
		chunks:   make(map[rid.ChunkId]*entry),
		byEntity: make(map[string][]rid.ChunkId),
		log:      logger,
	}
}

// Subscribe registers sub to receive future events. Subscriptions are
// not retroactive: sub sees nothing about chunks already in the store.
func (s *Store) Subscribe(sub Subscriber) {
	s.mu.Lock()
	s.subscribers = append(s.subscribers, sub)
	s.mu.Unlock()
}

// InsertChunk adds c to the index and synchronously notifies every
// subscriber with {Add, c}. Idempotent on ChunkId: re-inserting a chunk
// already present is a no-op and does not re-notify.
func (s *Store) InsertChunk(c *chunk.Chunk) {
	s.mu.Lock()
	if _, exists := s.chunks[c.Id()]; exists {
		s.mu.Unlock()
		return
	}
	s.chunks[c.Id()] = &entry{chunk: c, insertedAt: time.Now()}
	key := c.EntityPath().String()
	s.byEntity[key] = append(s.byEntity[key], c.Id())
	subs := append([]Subscriber(nil), s.subscribers...)
	s.mu.Unlock()

	notify(subs, []Event{{Kind: EventAdd, Chunk: c}})
}

// GC trims chunks subject to opts, preferring to retain static chunks
// (spec.md §4.4: "static chunks are retained preferentially"), and
// synchronously notifies subscribers of every {Deletion, chunk} event.
// Returns the chunks removed.
func (s *Store) GC(opts GcOptions) []*chunk.Chunk {
	s.mu.Lock()
	victims := s.selectVictimsLocked(opts)
	var events []Event
	for _, id := range victims {
		e := s.chunks[id]
		delete(s.chunks, id)
		s.removeFromEntityIndexLocked(e.chunk)
		events = append(events, Event{Kind: EventDeletion, Chunk: e.chunk})
	}
	subs := append([]Subscriber(nil), s.subscribers...)
	s.mu.Unlock()

	if len(events) == 0 {
		return nil
	}
	notify(subs, events)
	if s.log != nil {
		s.log.WithField("num_removed", len(events)).Debug("store: gc pass complete")
	}
	removed := make([]*chunk.Chunk, len(events))
	for i, ev := range events {
		removed[i] = ev.Chunk
	}
	return removed
}

// selectVictimsLocked must be called with s.mu held. It orders temporal
// chunks oldest-first (static chunks are never selected) and returns
// however many are needed to bring the store back under opts' budget.
func (s *Store) selectVictimsLocked(opts GcOptions) []rid.ChunkId {
	var candidates []gcCandidate
	var totalBytes uint64
	now := time.Now()
	for id, e := range s.chunks {
		totalBytes += e.chunk.ApproxByteSize()
		if e.chunk.IsStatic() {
			continue
		}
		candidates = append(candidates, gcCandidate{id: id, insertedAt: e.insertedAt, bytes: e.chunk.ApproxByteSize()})
	}

	var victims []rid.ChunkId

	// Age budget: anything older than MaxAge is always evicted.
	if opts.MaxAge > 0 {
		for _, c := range candidates {
			if now.Sub(c.insertedAt) > opts.MaxAge {
				victims = append(victims, c.id)
			}
		}
	}
	evicted := make(map[rid.ChunkId]bool, len(victims))
	for _, id := range victims {
		evicted[id] = true
		totalBytes -= s.chunks[id].chunk.ApproxByteSize()
	}

	// Size budget: evict oldest-first temporal chunks until under budget.
	if opts.MaxBytes > 0 && totalBytes > opts.MaxBytes {
		insertionSort(candidates)
		for _, c := range candidates {
			if totalBytes <= opts.MaxBytes {
				break
			}
			if evicted[c.id] {
				continue
			}
			victims = append(victims, c.id)
			evicted[c.id] = true
			totalBytes -= c.bytes
		}
	}
	return victims
}

// gcCandidate is a temporal chunk eligible for GC: its age and
// approximate byte footprint, enough to apply both budget rules.
type gcCandidate struct {
	id         rid.ChunkId
	insertedAt time.Time
	bytes      uint64
}

func insertionSort(c []gcCandidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].insertedAt.Before(c[j-1].insertedAt); j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

func (s *Store) removeFromEntityIndexLocked(c *chunk.Chunk) {
	key := c.EntityPath().String()
	ids := s.byEntity[key]
	for i, id := range ids {
		if id == c.Id() {
			s.byEntity[key] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(s.byEntity[key]) == 0 {
		delete(s.byEntity, key)
	}
}

func notify(subs []Subscriber, events []Event) {
	for _, sub := range subs {
		sub.OnEvents(events)
	}
}

// ChunksForEntity returns every chunk currently indexed for path, in no
// particular order. Used by the query engine to build per-column chunk
// cursors (spec.md §4.5).
func (s *Store) ChunksForEntity(path rid.EntityPath) []*chunk.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byEntity[path.String()]
	out := make([]*chunk.Chunk, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.chunks[id]; ok {
			out = append(out, e.chunk)
		}
	}
	return out
}

// Entities returns every entity path with at least one indexed chunk.
func (s *Store) Entities() []rid.EntityPath {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rid.EntityPath, 0, len(s.byEntity))
	for _, ids := range s.byEntity {
		if len(ids) == 0 {
			continue
		}
		out = append(out, s.chunks[ids[0]].chunk.EntityPath())
	}
	return out
}

// NumChunks reports the current index size.
func (s *Store) NumChunks() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// ColumnDescriptor names one column of a query's output schema
// (spec.md §4.4 schema_for_query / §4.5 selection).
type ColumnDescriptor struct {
	EntityPath rid.EntityPath
	Component  rid.ComponentDescriptor
}

// SchemaForQuery returns the ordered columns visible under viewContents
// — the (entity, component) cells actually present in the store for
// each entity in viewContents, matching spec.md §4.4's
// schema_for_query. A nil component set for an entity means "every
// component currently indexed for that entity".
func (s *Store) SchemaForQuery(viewContents map[rid.EntityPath][]rid.ComponentDescriptor) []ColumnDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ColumnDescriptor
	for path, wanted := range viewContents {
		ids := s.byEntity[path.String()]
		seen := make(map[rid.ComponentDescriptor]bool)
		for _, id := range ids {
			e, ok := s.chunks[id]
			if !ok {
				continue
			}
			for desc := range e.chunk.Components() {
				if len(wanted) > 0 && !containsDescriptor(wanted, desc) {
					continue
				}
				if seen[desc] {
					continue
				}
				seen[desc] = true
				out = append(out, ColumnDescriptor{EntityPath: path, Component: desc})
			}
		}
	}
	return out
}

func containsDescriptor(set []rid.ComponentDescriptor, d rid.ComponentDescriptor) bool {
	for _, x := range set {
		if x == d {
			return true
		}
	}
	return false
}
