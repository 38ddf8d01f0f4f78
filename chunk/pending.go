package chunk

import (
	"github.com/rerun-go/rerun/rid"
)

// PendingRow is the batcher's input unit (spec.md §3): one row, not yet
// columnar, destined for an entity's accumulator.
type PendingRow struct {
	RowId     rid.RowId
	TimePoint rid.TimePoint
	// Components maps a component name to its serialized payload for
	// this row. A list value (len > 1) represents an array-typed
	// (fixed-size-list) component.
	Components map[rid.ComponentDescriptor][]any
}

// NewPendingRow builds a PendingRow with a freshly minted RowId.
func NewPendingRow(tp rid.TimePoint, components map[rid.ComponentDescriptor][]any) PendingRow {
	return PendingRow{RowId: rid.NewRowId(), TimePoint: tp, Components: components}
}

// HeapSize estimates the pending row's contribution to an accumulator's
// byte budget, used by the batcher's flush_num_bytes threshold. This is
// necessarily an approximation (we don't know the wire encoding yet);
// it counts the RowId, one int64 per timeline cell, and a conservative
// per-scalar estimate per component value.
func (r PendingRow) HeapSize() uint64 {
	size := uint64(16) // RowId
	size += uint64(len(r.TimePoint)) * 16
	for _, values := range r.Components {
		size += uint64(len(values)) * 32
	}
	return size
}
