// Package rid provides the identifiers and time primitives that every
// other package in this module is addressed by: StoreId, RowId, ChunkId,
// EntityPath, TimelineName, TimeCell and TimePoint.
package rid

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// StoreKind distinguishes a recording from a blueprint. A blueprint is a
// separate recording used to configure the viewer itself.
type StoreKind int

const (
	StoreKindRecording StoreKind = iota
	StoreKindBlueprint
)

func (k StoreKind) String() string {
	if k == StoreKindBlueprint {
		return "blueprint"
	}
	return "recording"
}

// StoreId uniquely and immutably identifies one recording or blueprint.
type StoreId struct {
	ApplicationId string
	RecordingId   string
	Kind          StoreKind
}

// NewStoreId mints a StoreId with a fresh random recording id.
func NewStoreId(applicationId string, kind StoreKind) StoreId {
	return StoreId{
		ApplicationId: applicationId,
		RecordingId:   uuid.NewString(),
		Kind:          kind,
	}
}

func (s StoreId) String() string {
	return fmt.Sprintf("%s/%s/%s", s.Kind, s.ApplicationId, s.RecordingId)
}

// ChunkId uniquely identifies a Chunk within a store.
type ChunkId uuid.UUID

// NewChunkId mints a fresh ChunkId.
func NewChunkId() ChunkId {
	return ChunkId(uuid.New())
}

func (c ChunkId) String() string {
	return uuid.UUID(c).String()
}

// rowIdCounter is the monotonic low-64-bits counter shared by every RowId
// minted by this process, reset only at process start. It backstops cases
// where two rows are logged within the same nanosecond.
var rowIdCounter uint64

// RowId is a 128-bit, strictly increasing (within one process) identifier
// used as a tie-breaker when multiple rows share the same time on a
// timeline: (timestamp_ns << 64) | monotonic_counter.
type RowId struct {
	TimestampNanos int64
	Counter        uint64
}

// NewRowId mints a RowId from the current wall clock and the process-wide
// monotonic counter.
func NewRowId() RowId {
	return RowId{
		TimestampNanos: time.Now().UnixNano(),
		Counter:        atomic.AddUint64(&rowIdCounter, 1),
	}
}

// Compare returns -1, 0 or 1 as r is less than, equal to, or greater than
// o, ordering first by timestamp then by counter.
func (r RowId) Compare(o RowId) int {
	if r.TimestampNanos != o.TimestampNanos {
		if r.TimestampNanos < o.TimestampNanos {
			return -1
		}
		return 1
	}
	switch {
	case r.Counter < o.Counter:
		return -1
	case r.Counter > o.Counter:
		return 1
	default:
		return 0
	}
}

func (r RowId) Less(o RowId) bool { return r.Compare(o) < 0 }

func (r RowId) String() string {
	return fmt.Sprintf("%d:%d", r.TimestampNanos, r.Counter)
}

// EntityPath is an ordered sequence of path parts, e.g. "world/camera/lens".
// It is backed by its canonical slash-joined string rather than a slice so
// that EntityPath stays comparable with == and usable as a map key — both
// the store's per-entity index and the query engine's column selectors
// need that.
type EntityPath struct {
	path string // canonical form: no leading/trailing slash, "" is root
}

// NewEntityPath splits a slash-separated path into its parts. A leading or
// trailing slash is ignored; the empty string is the root path.
func NewEntityPath(path string) EntityPath {
	return EntityPath{path: strings.Trim(path, "/")}
}

// EntityPathFromParts builds a path directly from its parts.
func EntityPathFromParts(parts ...string) EntityPath {
	return EntityPath{path: strings.Join(parts, "/")}
}

// Root returns the empty entity path.
func Root() EntityPath { return EntityPath{} }

// IsRoot reports whether this is the empty path.
func (p EntityPath) IsRoot() bool { return p.path == "" }

// Parts returns the path's components.
func (p EntityPath) Parts() []string {
	if p.path == "" {
		return nil
	}
	return strings.Split(p.path, "/")
}

// Parent returns the path with its last component removed, and true, or
// the zero value and false if p is already the root.
func (p EntityPath) Parent() (EntityPath, bool) {
	if p.path == "" {
		return EntityPath{}, false
	}
	i := strings.LastIndexByte(p.path, '/')
	if i < 0 {
		return EntityPath{}, true
	}
	return EntityPath{path: p.path[:i]}, true
}

// IsDescendantOf reports whether p is a strict descendant of ancestor,
// i.e. ancestor's parts are a strict prefix of p's parts.
func (p EntityPath) IsDescendantOf(ancestor EntityPath) bool {
	if ancestor.path == "" {
		return p.path != ""
	}
	return strings.HasPrefix(p.path, ancestor.path+"/")
}

// IsAncestorOf is the inverse of IsDescendantOf.
func (p EntityPath) IsAncestorOf(descendant EntityPath) bool {
	return descendant.IsDescendantOf(p)
}

// Equal reports structural equality.
func (p EntityPath) Equal(o EntityPath) bool { return p.path == o.path }

func (p EntityPath) String() string {
	if p.path == "" {
		return "/"
	}
	return "/" + p.path
}

// ComponentDescriptor is the primary addressable unit inside an entity:
// an optional archetype name/field, a component name, and a store
// datatype tag (interpreted by arrowshim).
type ComponentDescriptor struct {
	ArchetypeName      string // optional
	ArchetypeFieldName string // optional
	ComponentName      string
	StoreDatatype      string
}

func (c ComponentDescriptor) String() string {
	if c.ArchetypeName == "" {
		return c.ComponentName
	}
	return fmt.Sprintf("%s:%s.%s", c.ArchetypeName, c.ArchetypeFieldName, c.ComponentName)
}
