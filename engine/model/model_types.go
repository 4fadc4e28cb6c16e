package model

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// --- Transform & Skeleton Types ---

// Transform represents a decomposed transform for animation interpolation.
type Transform struct {
	// Translation is the position offset.
	Translation [3]float32

	// Rotation is the orientation as a quaternion (x, y, z, w).
	Rotation [4]float32

	// Scale is the scale factor along each axis.
	Scale [3]float32
}

// IdentityTransform returns a Transform with no translation, identity rotation and unit scale.
func IdentityTransform() Transform {
	return Transform{
		Rotation: [4]float32{0, 0, 0, 1},
		Scale:    [3]float32{1, 1, 1},
	}
}

// Bone represents a single bone in a skeleton hierarchy.
type Bone struct {
	// Name is the bone's identifier (for debugging and animation targeting).
	Name string

	// ParentIndex is the index of the parent bone (-1 for root bones).
	ParentIndex int32

	// OffsetMatrix transforms from model space to bone space at bind pose.
	// This is the inverse of the bone's world transform when the mesh was bound.
	OffsetMatrix mgl32.Mat4

	// LocalTransform is the bone's rest pose relative to its parent. Bones that a clip does
	// not animate are evaluated at this pose.
	LocalTransform Transform
}

// Skeleton represents a bone hierarchy for skeletal animation.
type Skeleton struct {
	// Bones is the array of all bones in the skeleton.
	Bones []Bone

	// RootBoneIndices are indices of bones with no parent.
	RootBoneIndices []int32

	// BoneNameToIndex maps bone names to their indices for quick lookup.
	BoneNameToIndex map[string]int32
}

// NewSkeleton builds a Skeleton from an ordered bone list, filling in the root list and the
// name lookup. Every parent must precede its children so the hierarchy can be walked in one
// pass.
//
// Parameters:
//   - bones: the ordered bones
//
// Returns:
//   - *Skeleton: the skeleton
//   - error: an error if a parent index is out of range or does not precede its child
func NewSkeleton(bones []Bone) (*Skeleton, error) {
	s := &Skeleton{
		Bones:           bones,
		BoneNameToIndex: make(map[string]int32, len(bones)),
	}
	for i, b := range bones {
		switch {
		case b.ParentIndex < 0:
			s.RootBoneIndices = append(s.RootBoneIndices, int32(i))
		case int(b.ParentIndex) >= i:
			return nil, fmt.Errorf("bone %d (%q) has parent %d which does not precede it", i, b.Name, b.ParentIndex)
		}
		if b.Name != "" {
			s.BoneNameToIndex[b.Name] = int32(i)
		}
	}
	return s, nil
}

// --- Animation Types ---

// AnimationClip represents a single animation (walk, run, attack, etc.).
type AnimationClip struct {
	// Name is the animation identifier.
	Name string

	// Duration is the total length of the animation in seconds.
	Duration float32

	// TicksPerSecond is the sample rate the clip was authored at. Keyframe times are already
	// in seconds; this is carried for tooling only.
	TicksPerSecond float32

	// Channels contains animation data for each animated bone.
	Channels []AnimationChannel
}

// AnimationChannel contains keyframe data for a single bone.
type AnimationChannel struct {
	// BoneIndex is the index of the bone this channel animates.
	BoneIndex int32

	// PositionKeys are keyframes for translation.
	PositionKeys []VectorKeyframe

	// RotationKeys are keyframes for rotation (quaternion).
	RotationKeys []QuaternionKeyframe

	// ScaleKeys are keyframes for scale.
	ScaleKeys []VectorKeyframe
}

// VectorKeyframe stores a 3D vector value at a specific time.
type VectorKeyframe struct {
	// Time is the keyframe timestamp in seconds.
	Time float32

	// Value is the 3D vector value at this keyframe.
	Value [3]float32
}

// QuaternionKeyframe stores a quaternion rotation at a specific time.
type QuaternionKeyframe struct {
	// Time is the keyframe timestamp in seconds.
	Time float32

	// Value is the quaternion value at this keyframe (x, y, z, w).
	Value [4]float32
}

// --- Collision & Head Movement Types ---

// SphereAdjustment tunes the bounding sphere derived for one bone.
type SphereAdjustment struct {
	// RadiusScale scales the bone's world scale into a radius. 0 means the bone contributes no
	// collision volume.
	RadiusScale float32 `yaml:"radius_scale" toml:"radius_scale"`

	// Offset moves the sphere center in bone-local space away from the joint.
	Offset [3]float32 `yaml:"offset" toml:"offset"`
}

// HeadMoveMapping maps the four look directions to clip indices. A model only gets the head
// movement transform variant when all four are mapped to valid clips.
type HeadMoveMapping struct {
	Left, Right, Up, Down int32
}

// NoClip marks an unmapped head movement direction.
const NoClip int32 = -1

// UnmappedHeadMove returns a HeadMoveMapping with every direction unmapped.
func UnmappedHeadMove() HeadMoveMapping {
	return HeadMoveMapping{Left: NoClip, Right: NoClip, Up: NoClip, Down: NoClip}
}

// Complete reports whether every direction maps to a clip in [0, clipCount).
func (h HeadMoveMapping) Complete(clipCount int) bool {
	for _, c := range [4]int32{h.Left, h.Right, h.Up, h.Down} {
		if c < 0 || int(c) >= clipCount {
			return false
		}
	}
	return true
}
