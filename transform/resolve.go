package transform

import (
	"github.com/rerun-go/rerun/query"
	"github.com/rerun-go/rerun/rid"
	"github.com/rerun-go/rerun/store"
)

// PoseTransforms holds one resolved instance-pose transform per
// instance logged on the entity (spec.md §4.6's
// PoseTransformArchetypeMap, simplified to a flat ordered list since
// this module has no separate instance-key type).
type PoseTransforms []Mat4

// ResolvedPinholeProjection is a resolved camera intrinsics + view
// convention pair (spec.md §4.6).
type ResolvedPinholeProjection struct {
	FocalLength    [2]float64
	PrincipalPoint [2]float64
	ViewCoordinates string
}

func floats(v any) []float64 {
	row, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(row))
	for _, x := range row {
		switch n := x.(type) {
		case float64:
			out = append(out, n)
		case float32:
			out = append(out, float64(n))
		case int:
			out = append(out, float64(n))
		case int64:
			out = append(out, float64(n))
		}
	}
	return out
}

func vec3(fs []float64) Vec3 {
	if len(fs) < 3 {
		return Vec3{}
	}
	return Vec3{X: fs[0], Y: fs[1], Z: fs[2]}
}

// scalarString extracts a single string value from a cell, which (like
// every component cell) arrives as a one-element []any row even for a
// scalar component (chunk.BuildFromRows always wraps row values in a
// list, see arrowshim.ListArrayBuilder.AppendValue).
func scalarString(v any) (string, bool) {
	row, ok := v.([]any)
	if !ok || len(row) == 0 {
		return "", false
	}
	s, ok := row[0].(string)
	return s, ok
}

// latestRow runs a single-entity, single-time, sparse-filled query
// against s and returns the cell values keyed by component, reusing the
// query engine's own LatestAtGlobal resolution instead of re-implementing
// latest-at scanning here.
func latestRow(s *store.Store, entity rid.EntityPath, timeline rid.TimelineName, at int64, comps []rid.ComponentDescriptor) map[rid.ComponentDescriptor]any {
	h := query.NewHandle(s, query.Expression{
		ViewContents:       map[rid.EntityPath][]rid.ComponentDescriptor{entity: comps},
		FilteredIndex:      timeline,
		UsingIndexValues:   []int64{at},
		SparseFillStrategy: query.SparseFillLatestAtGlobal,
	})
	row, ok := h.NextRow()
	if !ok {
		return nil
	}
	out := make(map[rid.ComponentDescriptor]any, len(comps))
	for _, c := range comps {
		if v, ok := row.Cells[query.ColumnSelector{EntityPath: entity, Component: c}]; ok && v != nil {
			out[c] = v
		}
	}
	return out
}

// resolveFrameTransform computes the affine transform that entity
// contributes at (timeline, at): compose translation, rotation
// (quaternion or axis-angle), scale, or an explicit 3x3 matrix, then
// invert if TransformRelation says ChildFromParent (spec.md §4.6
// resolution rule). Returns ok=false if entity carries no frame
// transform components at all at this time.
func resolveFrameTransform(s *store.Store, entity rid.EntityPath, timeline rid.TimelineName, at int64) (Mat4, bool) {
	cells := latestRow(s, entity, timeline, at, frameComponents)
	if len(cells) == 0 {
		return Mat4{}, false
	}

	var linear [9]float64
	if m := floats(cells[TransformMat3x3]); len(m) == 9 {
		copy(linear[:], m)
	} else {
		rot := [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
		if q := floats(cells[RotationQuaternion]); len(q) == 4 {
			rot = (Quat{X: q[0], Y: q[1], Z: q[2], W: q[3]}).Mat3()
		} else if aa := floats(cells[RotationAxisAngle3D]); len(aa) == 4 {
			rot = QuatFromAxisAngle(Vec3{X: aa[0], Y: aa[1], Z: aa[2]}, aa[3]).Mat3()
		}
		scale := [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
		if sc := floats(cells[Scale3D]); len(sc) == 3 {
			scale = Scale3x3(vec3(sc))
		}
		linear = MulMat3(rot, scale)
	}

	translation := vec3(floats(cells[Translation3D]))
	m := Mat4FromMat3Translation(linear, translation)

	if rel, ok := scalarString(cells[TransformRelation]); ok && rel == "ChildFromParent" {
		if inv, ok := m.Invert(); ok {
			return inv, true
		}
	}
	return m, true
}

func resolvePoseTransforms(s *store.Store, entity rid.EntityPath, timeline rid.TimelineName, at int64) (PoseTransforms, bool) {
	cells := latestRow(s, entity, timeline, at, poseComponents)
	if len(cells) == 0 {
		return nil, false
	}
	translations := floats(cells[PoseTranslation3D])
	rotations := floats(cells[PoseRotationQuaternion])
	scales := floats(cells[PoseScale3D])

	n := len(translations) / 3
	if m := len(rotations) / 4; m > n {
		n = m
	}
	if m := len(scales) / 3; m > n {
		n = m
	}
	if n == 0 {
		return nil, false
	}

	out := make(PoseTransforms, n)
	for i := 0; i < n; i++ {
		rot := [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
		if (i+1)*4 <= len(rotations) {
			q := rotations[i*4 : i*4+4]
			rot = (Quat{X: q[0], Y: q[1], Z: q[2], W: q[3]}).Mat3()
		}
		scale := [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
		if (i+1)*3 <= len(scales) {
			scale = Scale3x3(vec3(scales[i*3 : i*3+3]))
		}
		t := Vec3{}
		if (i+1)*3 <= len(translations) {
			t = vec3(translations[i*3 : i*3+3])
		}
		out[i] = Mat4FromMat3Translation(MulMat3(rot, scale), t)
	}
	return out, true
}

func resolvePinholeProjection(s *store.Store, entity rid.EntityPath, timeline rid.TimelineName, at int64) (ResolvedPinholeProjection, bool) {
	cells := latestRow(s, entity, timeline, at, pinholeComponents)
	if len(cells) == 0 {
		return ResolvedPinholeProjection{}, false
	}
	var p ResolvedPinholeProjection
	if m := floats(cells[PinholeProjection]); len(m) == 9 {
		p.FocalLength = [2]float64{m[0], m[4]}
		p.PrincipalPoint = [2]float64{m[2], m[5]}
	}
	if vc, ok := scalarString(cells[ViewCoordinates]); ok {
		p.ViewCoordinates = vc
	}
	return p, true
}
