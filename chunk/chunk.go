// Package chunk implements the columnar, append-only, immutable-after-
// publication record batch described in spec.md §3: one Chunk is scoped
// to a single entity and (optionally) a single id-space, carrying one
// RowId and one TimeCell per timeline per row plus one component cell
// per row.
package chunk

import (
	"fmt"
	"sort"

	"github.com/rerun-go/rerun/arrowshim"
	"github.com/rerun-go/rerun/rid"
)

// Chunk is immutable once constructed via New or a Builder; callers
// must not mutate the slices/maps they pass in afterwards.
type Chunk struct {
	id         rid.ChunkId
	entityPath rid.EntityPath
	rowIds     []rid.RowId
	timelines  map[rid.TimelineName]*TimeColumn
	components map[rid.ComponentDescriptor]*arrowshim.ListArray
}

// New validates and constructs a Chunk, enforcing spec.md §3 invariant 1
// (every column has length N).
func New(
	id rid.ChunkId,
	entityPath rid.EntityPath,
	rowIds []rid.RowId,
	timelines map[rid.TimelineName]*TimeColumn,
	components map[rid.ComponentDescriptor]*arrowshim.ListArray,
) (*Chunk, error) {
	n := len(rowIds)
	for name, tc := range timelines {
		if tc.Len() != n {
			return nil, fmt.Errorf("chunk %s: timeline %s has %d rows, want %d: %w", id, name, tc.Len(), n, ErrInvariant)
		}
	}
	for desc, col := range components {
		if col.Len() != n {
			return nil, fmt.Errorf("chunk %s: component %s has %d rows, want %d: %w", id, desc, col.Len(), n, ErrInvariant)
		}
	}
	return &Chunk{
		id:         id,
		entityPath: entityPath,
		rowIds:     append([]rid.RowId(nil), rowIds...),
		timelines:  timelines,
		components: components,
	}, nil
}

// ErrInvariant marks a structural Chunk invariant violation — the
// "Chunk" error kind from spec.md §7, a programmer error that should
// surface immediately rather than being retried.
var ErrInvariant = fmt.Errorf("chunk invariant violated")

func (c *Chunk) Id() rid.ChunkId            { return c.id }
func (c *Chunk) EntityPath() rid.EntityPath { return c.entityPath }
func (c *Chunk) NumRows() int                { return len(c.rowIds) }
func (c *Chunk) RowIds() []rid.RowId         { return c.rowIds }

// ApproxByteSize estimates this chunk's footprint, the same way
// PendingRow.HeapSize approximates a pending row's: 16 bytes per
// RowId/timeline cell, 32 bytes per component value. Used by the
// batcher's in-flight quota and the store's GC budget; neither needs an
// exact wire-encoded size since Arrow/IPC serialization is out of
// scope.
func (c *Chunk) ApproxByteSize() uint64 {
	n := uint64(len(c.rowIds))
	size := n * 16
	size += uint64(len(c.timelines)) * n * 16
	for _, col := range c.components {
		for i := 0; i < col.Len(); i++ {
			size += uint64(len(col.At(i))) * 32
		}
	}
	return size
}

// IsStatic reports whether this chunk carries no timelines at all
// (spec.md §3 invariant 3).
func (c *Chunk) IsStatic() bool { return len(c.timelines) == 0 }

func (c *Chunk) Timelines() map[rid.TimelineName]*TimeColumn { return c.timelines }

func (c *Chunk) Components() map[rid.ComponentDescriptor]*arrowshim.ListArray {
	return c.components
}

// Timeline returns this chunk's column for the named timeline, if any.
func (c *Chunk) Timeline(name rid.TimelineName) (*TimeColumn, bool) {
	tc, ok := c.timelines[name]
	return tc, ok
}

// Component returns this chunk's column for the named component, if
// any.
func (c *Chunk) Component(desc rid.ComponentDescriptor) (*arrowshim.ListArray, bool) {
	col, ok := c.components[desc]
	return col, ok
}

// IsSorted reports whether row_ids is strictly monotonic — spec.md §3
// invariant 2 ties this to is_sorted() being true.
func (c *Chunk) IsSorted() bool {
	for i := 1; i < len(c.rowIds); i++ {
		if !c.rowIds[i-1].Less(c.rowIds[i]) {
			return false
		}
	}
	return true
}

// IsSortedOn reports whether this chunk's column for timeline is
// present and sorted, which the batcher guarantees whenever all rows in
// an accumulator shared a dominant timeline (spec.md §4.2).
func (c *Chunk) IsSortedOn(timeline rid.TimelineName) bool {
	tc, ok := c.timelines[timeline]
	return ok && tc.IsSorted()
}

// MinTime returns the smallest time value this chunk carries on
// timeline, and true, or (0, false) if the chunk has no column for it.
func (c *Chunk) MinTime(timeline rid.TimelineName) (int64, bool) {
	tc, ok := c.timelines[timeline]
	if !ok || tc.Len() == 0 {
		return 0, false
	}
	min := tc.At(0)
	for i := 1; i < tc.Len(); i++ {
		if tc.At(i) < min {
			min = tc.At(i)
		}
	}
	return min, true
}

// MaxTime is the MinTime counterpart.
func (c *Chunk) MaxTime(timeline rid.TimelineName) (int64, bool) {
	tc, ok := c.timelines[timeline]
	if !ok || tc.Len() == 0 {
		return 0, false
	}
	max := tc.At(0)
	for i := 1; i < tc.Len(); i++ {
		if tc.At(i) > max {
			max = tc.At(i)
		}
	}
	return max, true
}

// SortedByRowId returns a new Chunk with every column permuted into
// RowId order. Chunks need not be sorted (spec.md §3 invariant 2 permits
// unsorted chunks), but several consumers (the transform cache's
// min_time scan, densification) want a sorted view.
func (c *Chunk) SortedByRowId() *Chunk {
	if c.IsSorted() {
		return c
	}
	order := make([]int, len(c.rowIds))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return c.rowIds[order[i]].Less(c.rowIds[order[j]]) })
	return c.permuted(order)
}

// SortedByTimeline returns a new Chunk with every column permuted into
// ascending order on timeline, ties broken by RowId. If the chunk
// carries no column for timeline, or is already sorted on it, c is
// returned unchanged. Query cursors rely on this: TimeColumn.SearchGE
// is only meaningful over an ascending column.
func (c *Chunk) SortedByTimeline(timeline rid.TimelineName) *Chunk {
	tc, ok := c.timelines[timeline]
	if !ok || tc.IsSorted() {
		return c
	}
	order := make([]int, tc.Len())
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := tc.At(order[i]), tc.At(order[j])
		if a != b {
			return a < b
		}
		return c.rowIds[order[i]].Less(c.rowIds[order[j]])
	})
	return c.permuted(order)
}

// permuted returns a new Chunk with every column reindexed by order
// (order[i] is the source row that becomes row i).
func (c *Chunk) permuted(order []int) *Chunk {
	newRowIds := make([]rid.RowId, len(order))
	for i, idx := range order {
		newRowIds[i] = c.rowIds[idx]
	}
	newTimelines := make(map[rid.TimelineName]*TimeColumn, len(c.timelines))
	for name, tc := range c.timelines {
		times := make([]int64, len(order))
		for i, idx := range order {
			times[i] = tc.At(idx)
		}
		newTimelines[name] = NewTimeColumn(name, times)
	}
	newComponents := make(map[rid.ComponentDescriptor]*arrowshim.ListArray, len(c.components))
	for desc, col := range c.components {
		rows := make([][]any, len(order))
		for i, idx := range order {
			rows[i] = col.At(idx)
		}
		newComponents[desc] = arrowshim.NewListArray(rows)
	}
	return &Chunk{id: c.id, entityPath: c.entityPath, rowIds: newRowIds, timelines: newTimelines, components: newComponents}
}

// Densified returns a new chunk containing only the rows where
// component is non-null (spec.md §3 invariant 5, GLOSSARY
// "Densification").
func (c *Chunk) Densified(component rid.ComponentDescriptor) *Chunk {
	col, ok := c.components[component]
	if !ok {
		return &Chunk{id: c.id, entityPath: c.entityPath}
	}
	var keep []int
	for i := 0; i < col.Len(); i++ {
		if !col.IsNull(i) {
			keep = append(keep, i)
		}
	}
	if len(keep) == col.Len() {
		return c
	}
	return c.subset(keep)
}

func (c *Chunk) subset(keep []int) *Chunk {
	return c.permuted(keep)
}
