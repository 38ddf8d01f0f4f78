package transform

import (
	"github.com/rerun-go/rerun/chunk"
	"github.com/rerun-go/rerun/rid"
)

// Component descriptors for the archetypes TransformResolutionCache
// resolves (spec.md §4.6). Named the way rid.ComponentDescriptor is used
// elsewhere in this module: an archetype name plus a component name.
var (
	Translation3D      = rid.ComponentDescriptor{ArchetypeName: "Transform3D", ComponentName: "Translation3D"}
	RotationAxisAngle3D = rid.ComponentDescriptor{ArchetypeName: "Transform3D", ComponentName: "RotationAxisAngle3D"}
	RotationQuaternion  = rid.ComponentDescriptor{ArchetypeName: "Transform3D", ComponentName: "RotationQuaternion"}
	Scale3D             = rid.ComponentDescriptor{ArchetypeName: "Transform3D", ComponentName: "Scale3D"}
	TransformMat3x3      = rid.ComponentDescriptor{ArchetypeName: "Transform3D", ComponentName: "TransformMat3x3"}
	TransformRelation   = rid.ComponentDescriptor{ArchetypeName: "Transform3D", ComponentName: "TransformRelation"}

	PoseTranslation3D     = rid.ComponentDescriptor{ArchetypeName: "InstancePoses3D", ComponentName: "Translation3D"}
	PoseRotationQuaternion = rid.ComponentDescriptor{ArchetypeName: "InstancePoses3D", ComponentName: "RotationQuaternion"}
	PoseScale3D            = rid.ComponentDescriptor{ArchetypeName: "InstancePoses3D", ComponentName: "Scale3D"}

	PinholeProjection = rid.ComponentDescriptor{ArchetypeName: "Pinhole", ComponentName: "PinholeProjection"}
	ViewCoordinates   = rid.ComponentDescriptor{ArchetypeName: "Pinhole", ComponentName: "ViewCoordinates"}

	// ClearIsRecursive marks a row as a recursive clear command (spec.md
	// §4.6 indexing discipline step 4). There is no dedicated Clear type
	// in the data model; a chunk carries a clear by logging this
	// component with a true value, the way every other piece of
	// transform state is carried as an ordinary component column.
	ClearIsRecursive = rid.ComponentDescriptor{ArchetypeName: "Clear", ComponentName: "IsRecursive"}
)

var frameComponents = []rid.ComponentDescriptor{
	Translation3D, RotationAxisAngle3D, RotationQuaternion, Scale3D, TransformMat3x3, TransformRelation,
}

var poseComponents = []rid.ComponentDescriptor{
	PoseTranslation3D, PoseRotationQuaternion, PoseScale3D,
}

var pinholeComponents = []rid.ComponentDescriptor{
	PinholeProjection, ViewCoordinates,
}

// AspectsOf inspects c's component columns and reports which transform
// aspects it may affect (spec.md §4.6 step 1: "determine aspects").
func AspectsOf(c *chunk.Chunk) Aspect {
	var a Aspect
	for desc := range c.Components() {
		if containsDesc(frameComponents, desc) {
			a |= AspectFrame
		}
		if containsDesc(poseComponents, desc) {
			a |= AspectPose
		}
		if containsDesc(pinholeComponents, desc) {
			a |= AspectPinholeOrViewCoordinates
		}
		if desc == ClearIsRecursive {
			a |= AspectClear
		}
	}
	return a
}

func containsDesc(set []rid.ComponentDescriptor, d rid.ComponentDescriptor) bool {
	for _, x := range set {
		if x == d {
			return true
		}
	}
	return false
}
