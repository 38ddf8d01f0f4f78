// Package logmsg defines the LogMsg envelope (spec.md §4.8) that every
// sink in package sink consumes and every forwarding thread in package
// stream produces.
package logmsg

import (
	"fmt"

	"github.com/rerun-go/rerun/chunk"
	"github.com/rerun-go/rerun/rid"
)

// Kind tags which variant a LogMsg holds.
type Kind int

const (
	KindSetStoreInfo Kind = iota
	KindArrowMsg
	KindBlueprintActivation
)

// StoreInfo describes one recording or blueprint: its id (which holds
// the application id), the source that produced it, and its
// human-readable recording name.
type StoreInfo struct {
	StoreId       rid.StoreId
	StoreSource   string
	RecordingName string
}

// LogMsg is the envelope every sink sends and receives: either
// SetStoreInfo, ArrowMsg, or BlueprintActivationCommand (spec.md §4.8).
// Exactly one of the three payload fields is meaningful, selected by
// Kind.
type LogMsg struct {
	Kind Kind

	// SetStoreInfo payload.
	RowId rid.RowId
	Info  StoreInfo

	// ArrowMsg payload.
	StoreId rid.StoreId
	Chunk   *chunk.Chunk

	// BlueprintActivationCommand payload.
	BlueprintId rid.StoreId
	MakeActive  bool
	MakeDefault bool
}

// NewSetStoreInfo builds the idempotent SetStoreInfo message sent
// before any ArrowMsg for a store, and re-sent on every sink swap
// (spec.md §4.8).
func NewSetStoreInfo(info StoreInfo) LogMsg {
	return LogMsg{Kind: KindSetStoreInfo, RowId: rid.NewRowId(), Info: info}
}

// NewArrowMsg wraps one published Chunk for storeId.
func NewArrowMsg(storeId rid.StoreId, c *chunk.Chunk) LogMsg {
	return LogMsg{Kind: KindArrowMsg, StoreId: storeId, Chunk: c}
}

// NewBlueprintActivation builds a BlueprintActivationCommand. Per
// spec.md §4.8, this may only be sent after blueprintId's chunks have
// been sent; the forwarding goroutine in package stream enforces that
// through SeenStores.HasSeenChunksFor.
func NewBlueprintActivation(blueprintId rid.StoreId, makeActive, makeDefault bool) LogMsg {
	return LogMsg{Kind: KindBlueprintActivation, BlueprintId: blueprintId, MakeActive: makeActive, MakeDefault: makeDefault}
}

func (m LogMsg) String() string {
	switch m.Kind {
	case KindSetStoreInfo:
		return fmt.Sprintf("SetStoreInfo{%s}", m.Info.StoreId)
	case KindArrowMsg:
		return fmt.Sprintf("ArrowMsg{%s, chunk=%s}", m.StoreId, m.Chunk.Id())
	default:
		return fmt.Sprintf("BlueprintActivationCommand{%s, active=%v, default=%v}", m.BlueprintId, m.MakeActive, m.MakeDefault)
	}
}

// SeenStores tracks which StoreIds have had at least one chunk sent
// through a sink, so a BlueprintActivationCommand for a store that
// never sent any chunks can be dropped with a warning per spec.md §4.8.
type SeenStores struct {
	seen map[rid.StoreId]struct{}
}

func NewSeenStores() *SeenStores { return &SeenStores{seen: make(map[rid.StoreId]struct{})} }

// Observe records msg's effect on the seen-store set: an ArrowMsg marks
// its store as seen.
func (s *SeenStores) Observe(msg LogMsg) {
	if msg.Kind == KindArrowMsg {
		s.seen[msg.StoreId] = struct{}{}
	}
}

// HasSeenChunksFor reports whether storeId has had at least one
// ArrowMsg observed.
func (s *SeenStores) HasSeenChunksFor(storeId rid.StoreId) bool {
	_, ok := s.seen[storeId]
	return ok
}
