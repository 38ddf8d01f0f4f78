package transform

import "github.com/rerun-go/rerun/rid"

// EntryState is Entry's three-state discriminant (spec.md §4.6):
// Invalidated means "needs recomputation", Resident means "cached
// value, still valid", Cleared means "a Clear shadows this time".
type EntryState int

const (
	Invalidated EntryState = iota
	Resident
	Cleared
)

// Entry is one cache slot: a state plus (for Resident) the resolved
// value and the entity path that produced it.
type Entry[T any] struct {
	State  EntryState
	Value  T
	Source rid.EntityPath
}
