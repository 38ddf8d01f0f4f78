package rid

import (
	"fmt"
	"math"
)

// TimelineName is an interned identifier naming an axis of ordering.
// "log_time" and "log_tick" are reserved: the former carries a
// Timestamp cell stamped with the wall clock at log time, the latter a
// Sequence cell from a per-recording monotonic counter.
type TimelineName string

const (
	TimelineLogTime TimelineName = "log_time"
	TimelineLogTick TimelineName = "log_tick"
)

// TimeCellKind tags the variant held by a TimeCell.
type TimeCellKind int

const (
	TimeCellSequence TimeCellKind = iota
	TimeCellDuration
	TimeCellTimestamp
)

// staticSentinel is the raw i64 value a TimeCell takes on when it
// represents "no time" (static data). It sorts below every real value
// save itself, so a naive max()/min() over times still treats STATIC as
// dominant wherever shadowing rules special-case it explicitly.
const staticSentinel = math.MinInt64

// TimeCell is a tagged union over Sequence(i64) | Duration(ns int64) |
// Timestamp(ns since Unix epoch int64), or the special STATIC value.
type TimeCell struct {
	Kind  TimeCellKind
	Value int64
	// static is set only by the package-level StaticCell() constructor.
	static bool
}

// StaticSentinelValue is the raw value NewTimeColumn-style builders
// should use for a row that is missing an otherwise-unioned timeline.
func StaticSentinelValue() int64 { return staticSentinel }

// StaticCell returns the sentinel "no time" cell, which dominates every
// temporal value of the same component in shadowing rules (spec.md §3
// invariant 4).
func StaticCell() TimeCell {
	return TimeCell{Value: staticSentinel, static: true}
}

// IsStatic reports whether c is the STATIC sentinel.
func (c TimeCell) IsStatic() bool { return c.static }

func Sequence(v int64) TimeCell  { return TimeCell{Kind: TimeCellSequence, Value: v} }
func Duration(ns int64) TimeCell { return TimeCell{Kind: TimeCellDuration, Value: ns} }
func Timestamp(ns int64) TimeCell {
	return TimeCell{Kind: TimeCellTimestamp, Value: ns}
}

// Compare orders two non-static cells by their raw i64; static cells
// compare as less than anything else (callers needing "static always
// wins" must check IsStatic explicitly, since shadowing is not plain
// ordering).
func (c TimeCell) Compare(o TimeCell) int {
	switch {
	case c.Value < o.Value:
		return -1
	case c.Value > o.Value:
		return 1
	default:
		return 0
	}
}

func (c TimeCell) String() string {
	if c.static {
		return "STATIC"
	}
	switch c.Kind {
	case TimeCellSequence:
		return fmt.Sprintf("seq(%d)", c.Value)
	case TimeCellDuration:
		return fmt.Sprintf("dur(%dns)", c.Value)
	default:
		return fmt.Sprintf("ts(%dns)", c.Value)
	}
}

// TimePoint maps timelines to the cell logged for them on one row. Keys
// are unique; iteration order is irrelevant, per spec.md §3.
type TimePoint map[TimelineName]TimeCell

// NewTimePoint builds an empty, non-nil TimePoint.
func NewTimePoint() TimePoint { return make(TimePoint) }

// Clone returns a shallow copy (TimeCell is a value type, so this is a
// full copy).
func (tp TimePoint) Clone() TimePoint {
	out := make(TimePoint, len(tp))
	for k, v := range tp {
		out[k] = v
	}
	return out
}

// IsStatic reports whether the time point carries no timelines at all,
// which is what makes a row (and the chunk it ends up in) static.
func (tp TimePoint) IsStatic() bool { return len(tp) == 0 }

// With returns a copy of tp with timeline set to cell, overriding any
// existing entry — this is how injected log_time/log_tick override a
// matching thread-local timeline (spec.md §4.1).
func (tp TimePoint) With(timeline TimelineName, cell TimeCell) TimePoint {
	out := tp.Clone()
	out[timeline] = cell
	return out
}
