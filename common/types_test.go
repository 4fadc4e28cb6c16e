package common

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestAABBExtend(t *testing.T) {
	var b AABB
	assert.False(t, b.Valid())

	b = b.Extend(mgl32.Vec3{1, 2, 3})
	assert.True(t, b.Valid())
	assert.Equal(t, b.Min, b.Max)

	b = b.Extend(mgl32.Vec3{-1, 5, 0})
	assert.Equal(t, mgl32.Vec3{-1, 2, 0}, b.Min)
	assert.Equal(t, mgl32.Vec3{1, 5, 3}, b.Max)
	assert.Equal(t, mgl32.Vec3{0, 3.5, 1.5}, b.Center())
}

func TestAABBUnionIgnoresEmpty(t *testing.T) {
	b := NewAABB(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 1, 1})
	assert.Equal(t, b, b.Union(AABB{}))
	u := b.Union(NewAABB(mgl32.Vec3{2, 2, 2}, mgl32.Vec3{3, 3, 3}))
	assert.Equal(t, mgl32.Vec3{3, 3, 3}, u.Extents())
}

func TestSphereIntersects(t *testing.T) {
	a := Sphere{Center: mgl32.Vec3{0, 0, 0}, Radius: 1}
	b := Sphere{Center: mgl32.Vec3{1.5, 0, 0}, Radius: 1}
	c := Sphere{Center: mgl32.Vec3{5, 0, 0}, Radius: 1}

	hit, depth := a.Intersects(b)
	assert.True(t, hit)
	assert.InDelta(t, 0.5, depth, 1e-6)

	hit, _ = a.Intersects(c)
	assert.False(t, hit)
}

func TestSentinelSphereNeverIntersects(t *testing.T) {
	solid := Sphere{Center: mgl32.Vec3{0, 0, 0}, Radius: 10}
	sentinel := Sphere{Center: mgl32.Vec3{0, 0, 0}, Radius: 0}

	assert.True(t, sentinel.IsSentinel())
	hit, _ := solid.Intersects(sentinel)
	assert.False(t, hit)
	hit, _ = sentinel.Intersects(solid)
	assert.False(t, hit)
}

func TestSphereFromVec4(t *testing.T) {
	s := SphereFromVec4([4]float32{1, 2, 3, 4})
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, s.Center)
	assert.Equal(t, float32(4), s.Radius)
}
