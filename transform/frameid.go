package transform

import "github.com/rerun-go/rerun/rid"

// FrameId uniquely identifies a reference frame (spec.md §4.6). Most
// entities use an implicit frame derived from their own entity path;
// this module does not yet model the explicit named-frame component an
// entity could alternatively log, so FrameId is always derived this way
// — a documented simplification, not a structural limitation of the
// cache (which only ever compares FrameIds for equality and uses them
// as map keys).
type FrameId string

// FrameForEntity derives path's implicit reference frame.
func FrameForEntity(path rid.EntityPath) FrameId { return FrameId(path.String()) }

// SourceToTargetTransform is a resolved affine transform from a source
// frame to a target frame (spec.md §4.6).
type SourceToTargetTransform struct {
	Target    FrameId
	Transform Mat4
}
