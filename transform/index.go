package transform

import (
	"sort"

	"github.com/rerun-go/rerun/rid"
)

// searchInt64s returns the smallest index i such that times[i] >= target,
// or len(times) if none exists (stdlib's sort.Search specialized to
// []int64, since sort.SearchInts only works over []int).
func searchInt64s(times []int64, target int64) int {
	return sort.Search(len(times), func(i int) bool { return times[i] >= target })
}

// orderedIndex is a TimeInt→Entry[T] ordered map (spec.md §4.6), backed
// by a sorted slice of keys since Go has no built-in BTreeMap; every
// operation here is O(log n) to find a position and O(n) to shift,
// which is acceptable for the cache's expected size (one entry per
// distinct log time per source frame, not per row in the whole store).
type orderedIndex[T any] struct {
	times   []int64
	entries map[int64]Entry[T]
}

func newOrderedIndex[T any]() *orderedIndex[T] {
	return &orderedIndex[T]{entries: make(map[int64]Entry[T])}
}

func (o *orderedIndex[T]) IsEmpty() bool { return len(o.entries) == 0 }

// Set inserts or overwrites the entry at t.
func (o *orderedIndex[T]) Set(t int64, e Entry[T]) {
	if _, exists := o.entries[t]; !exists {
		i := searchInt64s(o.times, t)
		o.times = append(o.times, 0)
		copy(o.times[i+1:], o.times[i:])
		o.times[i] = t
	}
	o.entries[t] = e
}

// InvalidateFrom marks every entry at time >= from as Invalidated,
// keeping its Source (spec.md §4.6 step 1: "invalidate all existing
// entries at times >= min_time(chunk)").
func (o *orderedIndex[T]) InvalidateFrom(from int64) {
	i := searchInt64s(o.times, from)
	for ; i < len(o.times); i++ {
		t := o.times[i]
		e := o.entries[t]
		e.State = Invalidated
		o.entries[t] = e
	}
}

// InvalidateAll marks every entry Invalidated, keeping Source — used
// when a static chunk shadows an entire timeline (spec.md §4.6 step 2).
func (o *orderedIndex[T]) InvalidateAll() {
	o.InvalidateFrom(math64Min)
}

// RemoveAt deletes the entries at exactly the given times (spec.md §4.6
// step 3: remove_chunk removes entries for exactly the times the
// removed chunk contributed).
func (o *orderedIndex[T]) RemoveAt(ts []int64) {
	remove := make(map[int64]bool, len(ts))
	for _, t := range ts {
		remove[t] = true
	}
	out := o.times[:0]
	for _, t := range o.times {
		if remove[t] {
			delete(o.entries, t)
			continue
		}
		out = append(out, t)
	}
	o.times = out
}

// SetClearAt marks every entry at the given times (inserting one if
// absent) as Cleared, attributed to source (spec.md §4.6 step 4:
// recursive clears).
func (o *orderedIndex[T]) SetClearAt(ts []int64, source rid.EntityPath) {
	for _, t := range ts {
		o.Set(t, Entry[T]{State: Cleared, Source: source})
	}
}

// LatestAtOrBefore returns the entry with the greatest time <= at, and
// true, or the zero Entry and false if none exists.
func (o *orderedIndex[T]) LatestAtOrBefore(at int64) (int64, Entry[T], bool) {
	i := searchInt64s(o.times, at+1) // first index with time > at
	if i == 0 {
		return 0, Entry[T]{}, false
	}
	t := o.times[i-1]
	return t, o.entries[t], true
}

// Put stores a resolved entry at an existing time key (used after
// resolving an Invalidated entry), without touching the sorted index.
func (o *orderedIndex[T]) Put(t int64, e Entry[T]) {
	o.entries[t] = e
}

const math64Min = -1 << 63
