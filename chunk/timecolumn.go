package chunk

import "github.com/rerun-go/rerun/rid"

// TimeColumn is a chunk's per-timeline index column: one time value per
// row, plus a cached "is this sorted" flag so repeated queries don't
// re-scan it (spec.md §3 field `is_sorted_by`).
type TimeColumn struct {
	timeline rid.TimelineName
	times    []int64
	sorted   bool
}

// NewTimeColumn builds a TimeColumn and computes its sortedness once.
func NewTimeColumn(timeline rid.TimelineName, times []int64) *TimeColumn {
	tc := &TimeColumn{timeline: timeline, times: append([]int64(nil), times...)}
	tc.sorted = isNonDecreasing(tc.times)
	return tc
}

func isNonDecreasing(times []int64) bool {
	for i := 1; i < len(times); i++ {
		if times[i] < times[i-1] {
			return false
		}
	}
	return true
}

func (tc *TimeColumn) Timeline() rid.TimelineName { return tc.timeline }
func (tc *TimeColumn) Len() int                   { return len(tc.times) }
func (tc *TimeColumn) IsSorted() bool             { return tc.sorted }
func (tc *TimeColumn) TimesRaw() []int64          { return tc.times }
func (tc *TimeColumn) At(i int) int64             { return tc.times[i] }

// SearchGE returns the smallest index i such that times[i] >= value, or
// Len() if no such index exists. The column must be sorted — callers
// that need pagination or streaming-join cursor seeks rely on this.
func (tc *TimeColumn) SearchGE(value int64) int {
	lo, hi := 0, len(tc.times)
	for lo < hi {
		mid := (lo + hi) / 2
		if tc.times[mid] < value {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
