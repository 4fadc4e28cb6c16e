package model

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/go-gl/mathgl/mgl32"
)

// Clip names produced by NewProceduralChain.
const (
	ProceduralClipIdle      = "idle"
	ProceduralClipSwing     = "swing"
	ProceduralClipLookLeft  = "look_left"
	ProceduralClipLookRight = "look_right"
	ProceduralClipLookUp    = "look_up"
	ProceduralClipLookDown  = "look_down"
)

// NewProceduralChain builds a skinned model made of a straight chain of bones standing on +Y,
// one unit apart, with a small set of generated clips. It stands in for imported assets in
// headless runs and benchmarks.
//
// The model has an "idle" clip that bends every bone a little around Z and a "swing" clip
// that translates the root and bends harder. Chains of two or more bones also get four single
// key look clips that rotate only the last bone, mapped as the head movement clips.
//
// Parameters:
//   - name: the model name
//   - boneCount: the number of bones in the chain (0 builds a static model)
//   - options: extra options applied after the generated ones
//
// Returns:
//   - Model: the model
func NewProceduralChain(name string, boneCount int, options ...ModelBuilderOption) Model {
	bones := make([]Bone, boneCount)
	for i := range bones {
		local := IdentityTransform()
		parent := int32(i - 1)
		if i > 0 {
			local.Translation = [3]float32{0, 1, 0}
		}
		bones[i] = Bone{
			Name:           fmt.Sprintf("%s_bone_%d", name, i),
			ParentIndex:    parent,
			OffsetMatrix:   mgl32.Translate3D(0, -float32(i), 0),
			LocalTransform: local,
		}
	}

	clips := []*AnimationClip{
		bendClip(ProceduralClipIdle, boneCount, 2, mgl32.DegToRad(5), [3]float32{}),
		bendClip(ProceduralClipSwing, boneCount, 1, mgl32.DegToRad(30), [3]float32{0.5, 0, 0}),
	}
	opts := []ModelBuilderOption{
		WithName(name),
		WithBones(bones...),
		WithTriangleCount(12 * boneCount),
	}
	if boneCount >= 2 {
		head := int32(boneCount - 1)
		base := int32(len(clips))
		clips = append(clips,
			lookClip(ProceduralClipLookLeft, head, mgl32.Vec3{0, 1, 0}, mgl32.DegToRad(60)),
			lookClip(ProceduralClipLookRight, head, mgl32.Vec3{0, 1, 0}, -mgl32.DegToRad(60)),
			lookClip(ProceduralClipLookUp, head, mgl32.Vec3{1, 0, 0}, -mgl32.DegToRad(40)),
			lookClip(ProceduralClipLookDown, head, mgl32.Vec3{1, 0, 0}, mgl32.DegToRad(40)),
		)
		opts = append(opts, WithHeadMoveMapping(HeadMoveMapping{Left: base, Right: base + 1, Up: base + 2, Down: base + 3}))
	}
	opts = append(opts, WithAnimations(clips...))
	return NewModel(append(opts, options...)...)
}

// bendClip rotates every bone around Z by +angle at a quarter of the duration and -angle at
// three quarters, and moves the root by rootShift at the half.
func bendClip(name string, boneCount int, duration, angle float32, rootShift [3]float32) *AnimationClip {
	clip := &AnimationClip{Name: name, Duration: duration, TicksPerSecond: 30}
	axis := mgl32.Vec3{0, 0, 1}
	for b := range boneCount {
		ch := AnimationChannel{BoneIndex: int32(b)}
		for i, a := range []float32{0, angle, 0, -angle, 0} {
			t := duration * float32(i) / 4
			ch.RotationKeys = append(ch.RotationKeys, QuaternionKeyframe{
				Time:  t,
				Value: common.QuatToArray(mgl32.QuatRotate(a, axis)),
			})
		}
		base := [3]float32{}
		if b > 0 {
			base = [3]float32{0, 1, 0}
		}
		ch.PositionKeys = []VectorKeyframe{{Time: 0, Value: base}}
		if b == 0 {
			ch.PositionKeys = append(ch.PositionKeys,
				VectorKeyframe{Time: duration / 2, Value: rootShift},
				VectorKeyframe{Time: duration, Value: base},
			)
		}
		clip.Channels = append(clip.Channels, ch)
	}
	return clip
}

// lookClip builds a one key clip that rotates a single bone.
func lookClip(name string, bone int32, axis mgl32.Vec3, angle float32) *AnimationClip {
	return &AnimationClip{
		Name:           name,
		Duration:       0,
		TicksPerSecond: 30,
		Channels: []AnimationChannel{{
			BoneIndex: bone,
			RotationKeys: []QuaternionKeyframe{{
				Time:  0,
				Value: common.QuatToArray(mgl32.QuatRotate(angle, axis)),
			}},
		}},
	}
}
