package common

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func testFrustum() Frustum {
	proj := mgl32.Perspective(mgl32.DegToRad(60), 1, 0.1, 50)
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 10}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	return ExtractFrustum(proj.Mul4(view))
}

func TestFrustumIntersectsAABB(t *testing.T) {
	f := testFrustum()
	unit := func(c mgl32.Vec3) AABB {
		return NewAABB(c.Sub(mgl32.Vec3{1, 1, 1}), c.Add(mgl32.Vec3{1, 1, 1}))
	}

	tests := []struct {
		name   string
		center mgl32.Vec3
		want   bool
	}{
		{"in front", mgl32.Vec3{}, true},
		{"behind camera", mgl32.Vec3{0, 0, 20}, false},
		{"beyond far plane", mgl32.Vec3{0, 0, -60}, false},
		{"far left", mgl32.Vec3{-100, 0, 0}, false},
		{"far above", mgl32.Vec3{0, 100, 0}, false},
		{"straddles near plane", mgl32.Vec3{0, 0, 10}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.IntersectsAABB(unit(tt.center)))
		})
	}
}

func TestFrustumRejectsInvalidBox(t *testing.T) {
	assert.False(t, testFrustum().IntersectsAABB(AABB{}))
}

func TestFrustumPlanesAreNormalized(t *testing.T) {
	for _, p := range testFrustum().Planes {
		assert.InDelta(t, 1, p.Normal.Len(), 1e-5)
	}
}

func TestTransformAABB(t *testing.T) {
	box := NewAABB(mgl32.Vec3{-1, -2, -3}, mgl32.Vec3{1, 2, 3})
	m := mgl32.Translate3D(10, 0, 0).Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(90)))
	got := TransformAABB(m, box)
	assert.InDelta(t, 7, got.Min.X(), 1e-4)
	assert.InDelta(t, 13, got.Max.X(), 1e-4)
	assert.InDelta(t, -2, got.Min.Y(), 1e-4)
	assert.InDelta(t, 2, got.Max.Y(), 1e-4)
	assert.InDelta(t, -1, got.Min.Z(), 1e-4)
	assert.InDelta(t, 1, got.Max.Z(), 1e-4)

	assert.False(t, TransformAABB(m, AABB{}).Valid())
}
