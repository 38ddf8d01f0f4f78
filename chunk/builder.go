package chunk

import (
	"github.com/rerun-go/rerun/arrowshim"
	"github.com/rerun-go/rerun/rid"
)

// BuildFromRows assembles a batcher accumulator's pending rows into one
// Chunk, implementing spec.md §4.2's flush behaviour: row_ids filled in
// order, timelines unioned, component columns null-padded per row where
// absent. preferredTimeline, if non-empty and shared by every row, sorts
// the emitted chunk on that timeline; otherwise the chunk is left in
// submission order and reported unsorted.
func BuildFromRows(entityPath rid.EntityPath, rows []PendingRow, preferredTimeline rid.TimelineName) (*Chunk, error) {
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	sortedOnPreferred := preferredTimeline != "" && allRowsHaveTimeline(rows, preferredTimeline)
	if sortedOnPreferred {
		sortIndicesByTimeline(order, rows, preferredTimeline)
	}

	rowIds := make([]rid.RowId, len(rows))
	for i, idx := range order {
		rowIds[i] = rows[idx].RowId
	}

	timelineNames := unionTimelineNames(rows)
	timelines := make(map[rid.TimelineName]*TimeColumn, len(timelineNames))
	for _, name := range timelineNames {
		times := make([]int64, len(rows))
		for i, idx := range order {
			cell, ok := rows[idx].TimePoint[name]
			if !ok {
				// A row missing a unioned timeline is encoded as the
				// static sentinel, distinguishing "never logged on this
				// timeline" from any real value.
				times[i] = rawValueOrSentinel(cell, ok)
				continue
			}
			times[i] = cell.Value
		}
		timelines[name] = NewTimeColumn(name, times)
	}

	componentDescs := unionComponentDescriptors(rows)
	components := make(map[rid.ComponentDescriptor]*arrowshim.ListArray, len(componentDescs))
	for _, desc := range componentDescs {
		b := arrowshim.NewListArrayBuilder()
		for _, idx := range order {
			values, ok := rows[idx].Components[desc]
			if !ok {
				b.AppendNull()
				continue
			}
			if len(values) == 1 {
				b.AppendValue(values[0])
			} else {
				b.AppendList(values)
			}
		}
		components[desc] = b.Build()
	}

	return New(NewChunkId(), entityPath, rowIds, timelines, components)
}

func rawValueOrSentinel(cell rid.TimeCell, ok bool) int64 {
	if !ok {
		return rid.StaticSentinelValue()
	}
	return cell.Value
}

func allRowsHaveTimeline(rows []PendingRow, name rid.TimelineName) bool {
	for _, r := range rows {
		if _, ok := r.TimePoint[name]; !ok {
			return false
		}
	}
	return len(rows) > 0
}

func sortIndicesByTimeline(order []int, rows []PendingRow, name rid.TimelineName) {
	less := func(i, j int) bool {
		a := rows[order[i]].TimePoint[name]
		b := rows[order[j]].TimePoint[name]
		if a.Value != b.Value {
			return a.Value < b.Value
		}
		return rows[order[i]].RowId.Less(rows[order[j]].RowId)
	}
	insertionSort(order, less)
}

// insertionSort sorts order in place in O(n²) time. Batcher
// accumulators are bounded only by the flush thresholds: flush_num_rows
// is 1<<62 in DefaultConfig, NeverConfig and InfrequentConfig, so there
// the byte and time thresholds (or an explicit flush) set n.
func insertionSort(order []int, less func(i, j int) bool) {
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
}

func unionTimelineNames(rows []PendingRow) []rid.TimelineName {
	seen := make(map[rid.TimelineName]struct{})
	var names []rid.TimelineName
	for _, r := range rows {
		for name := range r.TimePoint {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
	}
	return names
}

func unionComponentDescriptors(rows []PendingRow) []rid.ComponentDescriptor {
	seen := make(map[rid.ComponentDescriptor]struct{})
	var descs []rid.ComponentDescriptor
	for _, r := range rows {
		for d := range r.Components {
			if _, ok := seen[d]; !ok {
				seen[d] = struct{}{}
				descs = append(descs, d)
			}
		}
	}
	return descs
}
