package model

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSkeletonRejectsChildBeforeParent(t *testing.T) {
	_, err := NewSkeleton([]Bone{
		{Name: "a", ParentIndex: 1},
		{Name: "b", ParentIndex: -1},
	})
	require.Error(t, err)

	s, err := NewSkeleton([]Bone{
		{Name: "root", ParentIndex: -1},
		{Name: "child", ParentIndex: 0},
		{Name: "other_root", ParentIndex: -1},
	})
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 2}, s.RootBoneIndices)
	assert.Equal(t, int32(1), s.BoneNameToIndex["child"])
}

func TestNewModelPanicsOnInvalidSkeleton(t *testing.T) {
	assert.Panics(t, func() {
		NewModel(WithName("broken"), WithBones(Bone{ParentIndex: 0}))
	})
}

func TestCapabilities(t *testing.T) {
	clip := &AnimationClip{Name: "c", Duration: 1}
	bone := Bone{ParentIndex: -1, OffsetMatrix: mgl32.Ident4(), LocalTransform: IdentityTransform()}

	tests := []struct {
		name     string
		opts     []ModelBuilderOption
		expected Capability
	}{
		{"static", []ModelBuilderOption{WithTriangleCount(10)}, 0},
		{"skinned without clips", []ModelBuilderOption{WithBones(bone), WithTriangleCount(10)}, CapabilitySkinned},
		{"no triangles", []ModelBuilderOption{WithBones(bone), WithAnimations(clip)}, CapabilitySkinned},
		{"animated", []ModelBuilderOption{WithBones(bone), WithAnimations(clip), WithTriangleCount(1)}, CapabilitySkinned | CapabilityAnimated},
		{
			"incomplete head mapping",
			[]ModelBuilderOption{WithBones(bone), WithAnimations(clip), WithTriangleCount(1), WithHeadMoveMapping(HeadMoveMapping{0, 0, 0, NoClip})},
			CapabilitySkinned | CapabilityAnimated,
		},
		{
			"head movement",
			[]ModelBuilderOption{WithBones(bone), WithAnimations(clip), WithTriangleCount(1), WithHeadMoveMapping(HeadMoveMapping{0, 0, 0, 0})},
			CapabilitySkinned | CapabilityAnimated | CapabilityHeadMovement,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := NewModel(tc.opts...)
			assert.Equal(t, tc.expected, m.Capabilities(), m.Capabilities().String())
		})
	}
}

func TestProceduralChain(t *testing.T) {
	m := NewProceduralChain("chain", 4)

	assert.Equal(t, uint32(4), m.BoneCount())
	assert.Equal(t, []int32{-1, 0, 1, 2}, m.ParentIndices())
	assert.True(t, m.Capabilities().Has(CapabilityHeadMovement))
	assert.Equal(t, 1, m.GetAnimationIndex(ProceduralClipSwing))

	for i, p := range m.BindPosePositions() {
		assert.InDelta(t, float32(i), p.Y(), 1e-5)
	}

	single := NewProceduralChain("single", 1)
	assert.False(t, single.Capabilities().Has(CapabilityHeadMovement))
	assert.True(t, single.Capabilities().Has(CapabilityAnimated))
}

func TestPackAnimationLayout(t *testing.T) {
	m := NewProceduralChain("chain", 3)
	p := m.PackedAnimation()

	require.Equal(t, uint32(m.AnimationCount()), p.ClipCount)
	assert.Equal(t, p.ClipCount*ClipHeaderStride, p.ChannelDataOffset)
	assert.Equal(t, p.ParentOffset+m.BoneCount(), uint32(len(p.Data)))

	// swing is the second clip: one channel per bone, after the idle clip's three channels
	swing := uint32(m.GetAnimationIndex(ProceduralClipSwing))
	hdr := p.Data[swing*ClipHeaderStride:]
	assert.Equal(t, float32(1), math.Float32frombits(hdr[0]))
	assert.Equal(t, uint32(3), hdr[2], "channel offset")
	assert.Equal(t, uint32(3), hdr[3], "channel count")

	// bone map points each (clip, bone) at its channel
	for b := range m.BoneCount() {
		assert.Equal(t, 3+b, p.Data[p.BoneMapOffset+swing*m.BoneCount()+b])
	}

	// look clips only animate the last bone
	left := uint32(m.GetAnimationIndex(ProceduralClipLookLeft))
	assert.Equal(t, NoChannel, p.Data[p.BoneMapOffset+left*m.BoneCount()+0])
	assert.NotEqual(t, NoChannel, p.Data[p.BoneMapOffset+left*m.BoneCount()+2])

	// parents are stored as i32 bits
	assert.Equal(t, int32(-1), int32(p.Data[p.ParentOffset]))
	assert.Equal(t, int32(1), int32(p.Data[p.ParentOffset+2]))

	// rest pose of bone 1 is one unit up
	assert.Equal(t, float32(1), math.Float32frombits(p.Data[p.RestPoseOffset+RestPoseStride+1]))
}

func TestPackAnimationEmptyIsNeverZeroLength(t *testing.T) {
	p := PackAnimation(nil, nil)
	assert.Len(t, p.Data, 1)
	assert.Len(t, p.Bytes(), 4)
}

func TestSphereAdjustments(t *testing.T) {
	m := NewProceduralChain("chain", 2, WithDefaultSphereRadiusScale(0.5))
	adj := m.SphereAdjustments()
	require.Len(t, adj, 2)
	assert.Equal(t, float32(0.5), adj[1].RadiusScale)

	v := m.SphereVersion()
	require.NoError(t, m.SetSphereAdjustment(1, SphereAdjustment{RadiusScale: 0}))
	assert.Greater(t, m.SphereVersion(), v)
	assert.Equal(t, float32(0), m.SphereAdjustments()[1].RadiusScale)
	assert.Error(t, m.SetSphereAdjustment(5, SphereAdjustment{}))

	packed := PackBoneSpheres(m.SphereAdjustments(), m.BindPosePositions())
	assert.Equal(t, float32(1), packed[1].BindPosition[1])
	assert.Len(t, (&packed[0]).Marshal(), (&packed[0]).Size())
}

func TestRefCount(t *testing.T) {
	m := NewProceduralChain("chain", 1)
	assert.Equal(t, 1, m.Acquire())
	assert.Equal(t, 2, m.Acquire())
	assert.Equal(t, 1, m.Release())
	assert.Equal(t, 0, m.Release())
	assert.Equal(t, 0, m.Release(), "release below zero is a no-op")
}
