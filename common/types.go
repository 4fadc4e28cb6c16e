// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// AABB is an axis-aligned bounding box. The zero value is empty; Extend grows it to enclose
// points.
type AABB struct {
	// Min is the minimum corner.
	Min mgl32.Vec3

	// Max is the maximum corner.
	Max mgl32.Vec3

	// valid reports whether at least one point has been added.
	valid bool
}

// NewAABB creates an AABB from explicit corners.
func NewAABB(minCorner, maxCorner mgl32.Vec3) AABB {
	return AABB{Min: minCorner, Max: maxCorner, valid: true}
}

// Valid reports whether the box encloses at least one point.
func (b AABB) Valid() bool {
	return b.valid
}

// Extend returns the smallest box containing both b and p.
//
// Parameters:
//   - p: the point to include
//
// Returns:
//   - AABB: the extended box
func (b AABB) Extend(p mgl32.Vec3) AABB {
	if !b.valid {
		return AABB{Min: p, Max: p, valid: true}
	}
	for i := 0; i < 3; i++ {
		b.Min[i] = math32.Min(b.Min[i], p[i])
		b.Max[i] = math32.Max(b.Max[i], p[i])
	}
	return b
}

// Union returns the smallest box containing both boxes.
func (b AABB) Union(o AABB) AABB {
	if !o.valid {
		return b
	}
	return b.Extend(o.Min).Extend(o.Max)
}

// Center returns the midpoint of the box.
func (b AABB) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Extents returns the full size of the box along each axis.
func (b AABB) Extents() mgl32.Vec3 {
	return b.Max.Sub(b.Min)
}

// Sphere is a bounding sphere. A Radius of exactly 0 marks a bone that contributes no
// collision volume and must be ignored by collision tests.
type Sphere struct {
	// Center is the world-space center.
	Center mgl32.Vec3

	// Radius is the world-space radius; 0 is the no-volume sentinel.
	Radius float32
}

// SphereFromVec4 unpacks the (center.xyz, radius) layout written by the bounding sphere
// compute stage.
func SphereFromVec4(v [4]float32) Sphere {
	return Sphere{Center: mgl32.Vec3{v[0], v[1], v[2]}, Radius: v[3]}
}

// IsSentinel reports whether the sphere is the radius 0 "no collision volume" marker.
func (s Sphere) IsSentinel() bool {
	return s.Radius == 0
}

// Intersects reports whether two spheres overlap and by how much. Sentinel spheres never
// intersect anything.
//
// Parameters:
//   - o: the other sphere
//
// Returns:
//   - bool: true if the spheres overlap
//   - float32: the penetration depth (sum of radii minus center distance), 0 when not overlapping
func (s Sphere) Intersects(o Sphere) (bool, float32) {
	if s.IsSentinel() || o.IsSentinel() {
		return false, 0
	}
	d := s.Center.Sub(o.Center).Len()
	depth := s.Radius + o.Radius - d
	if depth <= 0 {
		return false, 0
	}
	return true, depth
}
