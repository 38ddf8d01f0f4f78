// Package arrowshim stands in for the external columnar-array library
// (Apache Arrow, in the source system) that spec.md §1 explicitly treats
// as an out-of-scope collaborator: "we assume an external columnar-array
// library providing typed builders, list arrays, unions, and dictionary
// encodings". No example repo in this module's retrieval pack imports a
// full Arrow binding, so this package provides the minimal in-house
// equivalent the rest of the module is built against — see DESIGN.md for
// the standard-library justification.
package arrowshim

// Array is the shared read interface of every column kind this module
// produces: a typed, possibly-nullable sequence of values.
type Array interface {
	Len() int
	IsNull(i int) bool
	// Slice returns a length-len view starting at offset i, sharing the
	// underlying storage (no copy) — the cheap-slice-view requirement
	// called out in spec.md §9's "cursor-based streaming join" note.
	Slice(i, len int) Array
}

// ListArray is one row per list-of-values ("list-of-value per row" in
// spec.md §3), the shape every component column takes. Fixed-size-list
// (array-typed) components are represented the same way with every
// element slice sharing one length.
type ListArray struct {
	// rows[i] is nil (not merely empty) iff IsNull(i).
	rows [][]any
}

// NewListArray builds a ListArray directly from rows; a nil row means
// null.
func NewListArray(rows [][]any) *ListArray {
	return &ListArray{rows: rows}
}

// NewNullListArray builds a ListArray of n null rows — used to fill
// columns not present in a query's projection (spec.md §4.5 "Project").
func NewNullListArray(n int) *ListArray {
	rows := make([][]any, n)
	return &ListArray{rows: rows}
}

func (a *ListArray) Len() int { return len(a.rows) }

func (a *ListArray) IsNull(i int) bool { return a.rows[i] == nil }

func (a *ListArray) Slice(i, length int) Array {
	return &ListArray{rows: a.rows[i : i+length]}
}

// At returns row i's list payload, or nil if null.
func (a *ListArray) At(i int) []any {
	return a.rows[i]
}

// ListArrayBuilder accumulates rows for one component column while a
// ChunkBatcher accumulator is being assembled.
type ListArrayBuilder struct {
	rows [][]any
}

func NewListArrayBuilder() *ListArrayBuilder { return &ListArrayBuilder{} }

// AppendValue appends a non-null single-element row.
func (b *ListArrayBuilder) AppendValue(v any) {
	b.rows = append(b.rows, []any{v})
}

// AppendList appends a non-null multi-element row (fixed-size-list /
// array-typed components).
func (b *ListArrayBuilder) AppendList(vs []any) {
	b.rows = append(b.rows, vs)
}

// AppendNull appends a null row, used to pad component columns absent
// from a given PendingRow (spec.md §4.2 "null-padded per row").
func (b *ListArrayBuilder) AppendNull() {
	b.rows = append(b.rows, nil)
}

func (b *ListArrayBuilder) Len() int { return len(b.rows) }

func (b *ListArrayBuilder) Build() *ListArray {
	return &ListArray{rows: b.rows}
}

// PrimitiveArray is a flat, non-nullable i64 column — used for time
// columns, where every row always has a time.
type PrimitiveArray struct {
	values []int64
}

func NewPrimitiveArray(values []int64) *PrimitiveArray {
	return &PrimitiveArray{values: values}
}

func (a *PrimitiveArray) Len() int          { return len(a.values) }
func (a *PrimitiveArray) IsNull(int) bool   { return false }
func (a *PrimitiveArray) Values() []int64   { return a.values }
func (a *PrimitiveArray) At(i int) int64    { return a.values[i] }
func (a *PrimitiveArray) Slice(i, l int) Array {
	return &PrimitiveArray{values: a.values[i : i+l]}
}

// Union is a dense-union encoding of a tagged sum type, carrying a
// `_null_marker` variant so "unset" is representable at the column
// level, per spec.md §9.
type Union struct {
	// Variant names in declaration order; index 0 is conventionally
	// "_null_marker".
	Variants []string
	// tags[i] indexes into Variants for row i.
	tags []int
	// payloads[i] is the value carried by row i, meaningless when
	// tags[i] == 0 (the null-marker variant).
	payloads []any
}

// NewUnion builds a Union whose first variant is always "_null_marker".
func NewUnion(variants ...string) *Union {
	return &Union{Variants: append([]string{"_null_marker"}, variants...)}
}

// AppendNull appends a row tagged as the null-marker variant.
func (u *Union) AppendNull() {
	u.tags = append(u.tags, 0)
	u.payloads = append(u.payloads, nil)
}

// AppendVariant appends a row tagged as the named variant carrying value.
func (u *Union) AppendVariant(variant string, value any) {
	idx := 0
	for i, v := range u.Variants {
		if v == variant {
			idx = i
			break
		}
	}
	u.tags = append(u.tags, idx)
	u.payloads = append(u.payloads, value)
}

func (u *Union) Len() int { return len(u.tags) }

func (u *Union) IsNull(i int) bool { return u.tags[i] == 0 }

func (u *Union) Slice(i, l int) Array {
	return &Union{Variants: u.Variants, tags: u.tags[i : i+l], payloads: u.payloads[i : i+l]}
}

// VariantAt returns the variant name and payload carried by row i.
func (u *Union) VariantAt(i int) (string, any) {
	return u.Variants[u.tags[i]], u.payloads[i]
}
