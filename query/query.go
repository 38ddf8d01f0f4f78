// Package query implements the streaming-join query engine from
// spec.md §4.5: a QueryExpression evaluated against a store.Store
// produces a lazy sequence of rows over a fixed output schema, with
// static-value overlay, sparse-fill, point-of-view filtering and
// cursor-based pagination.
package query

import (
	"sort"

	"github.com/rerun-go/rerun/chunk"
	"github.com/rerun-go/rerun/rid"
	"github.com/rerun-go/rerun/store"
)

// ColumnSelector names one output column: an entity path plus the
// component descriptor to project from it.
type ColumnSelector struct {
	EntityPath rid.EntityPath
	Component  rid.ComponentDescriptor
}

// SparseFillStrategy controls how holes in the joined row are handled
// (spec.md §4.5).
type SparseFillStrategy int

const (
	SparseFillNone SparseFillStrategy = iota
	SparseFillLatestAtGlobal
)

// Expression is QueryExpression from spec.md §4.5.
type Expression struct {
	ViewContents        map[rid.EntityPath][]rid.ComponentDescriptor
	FilteredIndex       rid.TimelineName // empty means "the single static row"
	FilteredIndexRange  *[2]int64
	FilteredIndexValues map[int64]struct{}
	UsingIndexValues    []int64 // if non-nil, exactly these index values are emitted
	FilteredIsNotNull   *ColumnSelector
	SparseFillStrategy  SparseFillStrategy
	Selection           []ColumnSelector // nil means every column in ViewContents
}

// clearComponent is the archetype/component pair a Clear command is
// logged under (spec.md §4.5 step 3 / §4.6 step 4's AspectClear). It
// duplicates transform.ClearIsRecursive's literal rather than importing
// transform, since transform.resolve.go already imports query and a
// cycle isn't an option.
var clearComponent = rid.ComponentDescriptor{ArchetypeName: "Clear", ComponentName: "IsRecursive"}

// clearEvent is one Clear command that can shadow a column's value at a
// given index time: a clear chunk logged directly on the column's own
// entity (recursive or not), or a recursive clear logged on one of its
// ancestors.
type clearEvent struct {
	time  int64
	rowId rid.RowId
}

// column holds one selected column's source chunks, split into
// temporal (sorted by MinTime on FilteredIndex) and a cached static
// overlay value computed once at Init, plus every Clear command that
// can shadow this column (spec.md §4.5 step 3).
type column struct {
	sel      ColumnSelector
	temporal []*chunk.Chunk // each sorted on FilteredIndex
	static   any            // nil if no static value was found
	hasValue bool
	clears   []clearEvent
}

// Handle is QueryHandle: a lazily-initialized cursor over one
// Expression's result rows.
type Handle struct {
	store *store.Store
	expr  Expression

	initialized bool
	columns     []column
	povIndex    int // index into columns for FilteredIsNotNull, or -1

	uniqueIndexValues []int64
	curRow            int
}

// NewHandle builds an uninitialized Handle; the first call to NextRow
// or SeekToRow performs the (lazy, once) Init step from spec.md §4.5.
func NewHandle(s *store.Store, expr Expression) *Handle {
	return &Handle{store: s, expr: expr, povIndex: -1}
}

// Row is one produced row: the index value this row is keyed on, a
// per-selected-column cell (nil if still null after sparse-fill), and
// the maximum value observed on every other timeline joined into this
// row (spec.md §4.5's secondary-timeline max-value rule).
type Row struct {
	IndexValue     int64
	Cells          map[ColumnSelector]any
	SecondaryTimes map[rid.TimelineName]int64
}

func (h *Handle) init() {
	if h.initialized {
		return
	}
	h.initialized = true

	selection := h.expr.Selection
	if selection == nil {
		for path, comps := range h.expr.ViewContents {
			if len(comps) == 0 {
				for _, cd := range h.store.SchemaForQuery(map[rid.EntityPath][]rid.ComponentDescriptor{path: nil}) {
					selection = append(selection, ColumnSelector{EntityPath: path, Component: cd.Component})
				}
				continue
			}
			for _, c := range comps {
				selection = append(selection, ColumnSelector{EntityPath: path, Component: c})
			}
		}
	}

	h.columns = make([]column, len(selection))
	for i, sel := range selection {
		h.columns[i] = h.buildColumn(sel)
		if h.expr.FilteredIsNotNull != nil && sel == *h.expr.FilteredIsNotNull {
			h.povIndex = i
		}
	}

	h.uniqueIndexValues = h.computeUniqueIndexValues()
}

func (h *Handle) buildColumn(sel ColumnSelector) column {
	col := column{sel: sel}
	chunks := h.store.ChunksForEntity(sel.EntityPath)
	var staticCandidate *chunk.Chunk
	for _, c := range chunks {
		if _, ok := c.Component(sel.Component); !ok {
			continue
		}
		if c.IsStatic() {
			if staticCandidate == nil || newerStatic(c, staticCandidate) {
				staticCandidate = c
			}
			continue
		}
		if h.expr.FilteredIndex == "" {
			continue
		}
		if _, ok := c.Timeline(h.expr.FilteredIndex); !ok {
			continue
		}
		col.temporal = append(col.temporal, c.Densified(sel.Component).SortedByTimeline(h.expr.FilteredIndex))
	}
	sort.Slice(col.temporal, func(i, j int) bool {
		mi, _ := col.temporal[i].MinTime(h.expr.FilteredIndex)
		mj, _ := col.temporal[j].MinTime(h.expr.FilteredIndex)
		return mi < mj
	})
	if staticCandidate != nil {
		arr, _ := staticCandidate.Component(sel.Component)
		if arr.Len() > 0 && !arr.IsNull(arr.Len()-1) {
			col.static = arr.At(arr.Len() - 1)
			col.hasValue = true
		}
	}
	col.clears = h.collectClears(sel.EntityPath)
	return col
}

// collectClears unions every Clear command that can shadow target
// (spec.md §4.5 step 3): a clear chunk logged directly on target
// (recursive or not), and a recursive clear chunk logged on any
// ancestor of target — a non-recursive clear on an ancestor clears only
// that ancestor's own components, never target's.
func (h *Handle) collectClears(target rid.EntityPath) []clearEvent {
	var out []clearEvent
	for _, path := range h.store.Entities() {
		onTarget := path.Equal(target)
		if !onTarget && !path.IsAncestorOf(target) {
			continue
		}
		for _, c := range h.store.ChunksForEntity(path) {
			arr, ok := c.Component(clearComponent)
			if !ok {
				continue
			}
			tc, hasTimeline := c.Timeline(h.expr.FilteredIndex)
			for i := 0; i < arr.Len(); i++ {
				if arr.IsNull(i) {
					continue
				}
				row := arr.At(i)
				recursive := len(row) > 0 && row[0] == true
				if !onTarget && !recursive {
					continue
				}
				t := rid.StaticSentinelValue()
				if hasTimeline {
					t = tc.At(i)
				}
				out = append(out, clearEvent{time: t, rowId: c.RowIds()[i]})
			}
		}
	}
	return out
}

// newerStatic breaks ties between two static chunks for the same
// column by max RowId, approximating "LatestAt(STATIC)" (spec.md §4.5
// step 5) since static chunks carry no timeline to order by.
func newerStatic(a, b *chunk.Chunk) bool {
	as, bs := a.RowIds(), b.RowIds()
	if len(as) == 0 {
		return false
	}
	if len(bs) == 0 {
		return true
	}
	return bs[len(bs)-1].Less(as[len(as)-1])
}

func (h *Handle) computeUniqueIndexValues() []int64 {
	if h.expr.UsingIndexValues != nil {
		return append([]int64(nil), h.expr.UsingIndexValues...)
	}
	if h.expr.FilteredIndex == "" {
		return []int64{rid.StaticSentinelValue()}
	}

	seen := make(map[int64]struct{})
	contribute := func(col column) {
		for _, c := range col.temporal {
			tc, ok := c.Timeline(h.expr.FilteredIndex)
			if !ok {
				continue
			}
			for i := 0; i < tc.Len(); i++ {
				seen[tc.At(i)] = struct{}{}
			}
		}
		for _, ce := range col.clears {
			seen[ce.time] = struct{}{}
		}
	}

	if h.povIndex >= 0 {
		contribute(h.columns[h.povIndex])
	} else {
		for _, col := range h.columns {
			contribute(col)
		}
	}

	var values []int64
	for v := range seen {
		if h.expr.FilteredIndexValues != nil {
			if _, ok := h.expr.FilteredIndexValues[v]; !ok {
				continue
			}
		}
		if h.expr.FilteredIndexRange != nil {
			r := h.expr.FilteredIndexRange
			if v < r[0] || v > r[1] {
				continue
			}
		}
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	return values
}

// NumRows reports how many rows this query will produce, forcing Init
// if not already done.
func (h *Handle) NumRows() int {
	h.init()
	return len(h.uniqueIndexValues)
}

// SeekToRow repositions the cursor to row i (spec.md §4.5 seek_to_row).
// Out-of-range values clamp to the nearest valid cursor position.
func (h *Handle) SeekToRow(i int) {
	h.init()
	if i < 0 {
		i = 0
	}
	if i > len(h.uniqueIndexValues) {
		i = len(h.uniqueIndexValues)
	}
	h.curRow = i
}

// NextRow advances the cursor and returns the next joined row, or
// (nil, false) once exhausted. Per-row advance never fails (spec.md
// §4.5): structural errors are only possible during Init.
func (h *Handle) NextRow() (*Row, bool) {
	h.init()
	if h.curRow >= len(h.uniqueIndexValues) {
		return nil, false
	}
	cur := h.uniqueIndexValues[h.curRow]
	h.curRow++

	row := &Row{
		IndexValue:     cur,
		Cells:          make(map[ColumnSelector]any, len(h.columns)),
		SecondaryTimes: make(map[rid.TimelineName]int64),
	}

	for _, col := range h.columns {
		val, secondary, ok := joinAtIndex(col, h.expr.FilteredIndex, cur)
		if ok {
			row.Cells[col.sel] = val
			for tl, tv := range secondary {
				if prev, exists := row.SecondaryTimes[tl]; !exists || tv > prev {
					row.SecondaryTimes[tl] = tv
				}
			}
			continue
		}
		if col.hasValue {
			row.Cells[col.sel] = col.static // static overlay unconditionally wins once there's no temporal hit
			continue
		}
		if h.expr.SparseFillStrategy == SparseFillLatestAtGlobal {
			if val, ok := latestAtGlobal(col, h.expr.FilteredIndex, cur); ok {
				row.Cells[col.sel] = val
				continue
			}
		}
		row.Cells[col.sel] = nil
	}
	if h.expr.FilteredIndex != "" {
		row.SecondaryTimes[h.expr.FilteredIndex] = cur
	}
	return row, true
}

// NextRowBatch collects up to batchSize rows via repeated NextRow calls,
// the RecordBatch-returning convenience spec.md §4.11 restores alongside
// the per-row cursor. Returns the batch collected (possibly shorter than
// batchSize) and whether any row was produced; once exhausted it returns
// (nil, false).
func (h *Handle) NextRowBatch(batchSize int) ([]*Row, bool) {
	h.init()
	if batchSize <= 0 {
		batchSize = 1
	}
	batch := make([]*Row, 0, batchSize)
	for len(batch) < batchSize {
		row, ok := h.NextRow()
		if !ok {
			break
		}
		batch = append(batch, row)
	}
	if len(batch) == 0 {
		return nil, false
	}
	return batch, true
}

// Iter calls fn with every remaining row in batchSize-sized groups, the
// batched counterpart to spec.md §4.11's "iter"/"into_iter": it stops
// early if fn returns false, and never calls fn with an empty batch.
func (h *Handle) Iter(batchSize int, fn func([]*Row) bool) {
	for {
		batch, ok := h.NextRowBatch(batchSize)
		if !ok {
			return
		}
		if !fn(batch) {
			return
		}
	}
}

// joinAtIndex implements the inlined "latest-on-index" /
// "deduped-latest-on-index" rule (spec.md §4.5): among every temporal
// chunk whose FilteredIndex column contains an exact match for
// indexValue, the row with the maximum RowId wins.
func joinAtIndex(col column, filteredIndex rid.TimelineName, indexValue int64) (any, map[rid.TimelineName]int64, bool) {
	var best any
	var bestRowId rid.RowId
	var bestSecondary map[rid.TimelineName]int64
	found := false

	for _, c := range col.temporal {
		tc, ok := c.Timeline(filteredIndex)
		if !ok {
			continue
		}
		start := tc.SearchGE(indexValue)
		for i := start; i < tc.Len() && tc.At(i) == indexValue; i++ {
			rowId := c.RowIds()[i]
			if found && !bestRowId.Less(rowId) {
				continue
			}
			arr, ok := c.Component(col.sel.Component)
			if !ok || arr.IsNull(i) {
				continue
			}
			best = arr.At(i)
			bestRowId = rowId
			bestSecondary = secondaryTimesAt(c, i, filteredIndex)
			found = true
		}
	}

	// A Clear command shadows any data at its own exact index value
	// (spec.md §4.5 step 3): if it logged after the winning data row,
	// the column is explicitly empty here rather than falling through
	// to the static overlay or sparse-fill.
	for _, ce := range col.clears {
		if ce.time != indexValue {
			continue
		}
		if found && !bestRowId.Less(ce.rowId) {
			continue
		}
		best = nil
		bestRowId = ce.rowId
		bestSecondary = nil
		found = true
	}

	return best, bestSecondary, found
}

func secondaryTimesAt(c *chunk.Chunk, row int, filteredIndex rid.TimelineName) map[rid.TimelineName]int64 {
	out := make(map[rid.TimelineName]int64)
	for name, tc := range c.Timelines() {
		if name == filteredIndex {
			continue
		}
		out[name] = tc.At(row)
	}
	return out
}

// latestAtGlobal implements the LatestAtGlobal sparse-fill strategy: the
// greatest value at or before indexValue across every temporal chunk in
// col, breaking ties by RowId.
func latestAtGlobal(col column, filteredIndex rid.TimelineName, indexValue int64) (any, bool) {
	var best any
	var bestTime int64
	var bestRowId rid.RowId
	found := false

	for _, c := range col.temporal {
		tc, ok := c.Timeline(filteredIndex)
		if !ok {
			continue
		}
		end := tc.SearchGE(indexValue + 1)
		for i := end - 1; i >= 0; i-- {
			if tc.At(i) > indexValue {
				continue
			}
			arr, ok := c.Component(col.sel.Component)
			if !ok || arr.IsNull(i) {
				continue
			}
			t := tc.At(i)
			rowId := c.RowIds()[i]
			better := !found || t > bestTime || (t == bestTime && bestRowId.Less(rowId))
			if better {
				best = arr.At(i)
				bestTime = t
				bestRowId = rowId
				found = true
			}
			break
		}
	}
	return best, found
}
