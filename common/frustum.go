package common

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Plane is the plane n·p + d = 0 with n of unit length.
type Plane struct {
	Normal   mgl32.Vec3
	Distance float32
}

// SignedDistance returns the distance of p from the plane, positive on the normal's side.
func (p Plane) SignedDistance(v mgl32.Vec3) float32 {
	return p.Normal.Dot(v) + p.Distance
}

// Frustum represents the six planes of a view frustum for culling.
// Planes are oriented so that positive half-space is inside the frustum.
type Frustum struct {
	Planes [6]Plane // Left, Right, Bottom, Top, Near, Far
}

// FrustumPlane indices for clarity
const (
	FrustumLeft = iota
	FrustumRight
	FrustumBottom
	FrustumTop
	FrustumNear
	FrustumFar
)

// ExtractFrustum extracts the frustum planes of a projection * view matrix with the
// Gribb/Hartmann method. The near plane assumes a -1..1 clip depth range as built by
// mgl32.Perspective.
//
// Reference: https://www8.cs.umu.se/kurser/5DV051/HT12/lab/plane_extraction.pdf
//
// Parameters:
//   - viewProj: the combined view-projection matrix
//
// Returns:
//   - Frustum: the extracted frustum with normalized planes
func ExtractFrustum(viewProj mgl32.Mat4) Frustum {
	r0, r1, r2, r3 := viewProj.Row(0), viewProj.Row(1), viewProj.Row(2), viewProj.Row(3)
	rows := [6]mgl32.Vec4{
		FrustumLeft:   r3.Add(r0),
		FrustumRight:  r3.Sub(r0),
		FrustumBottom: r3.Add(r1),
		FrustumTop:    r3.Sub(r1),
		FrustumNear:   r3.Add(r2),
		FrustumFar:    r3.Sub(r2),
	}

	var f Frustum
	for i, r := range rows {
		n := r.Vec3()
		length := n.Len()
		if length > 0 {
			f.Planes[i] = Plane{Normal: n.Mul(1 / length), Distance: r.W() / length}
			continue
		}
		f.Planes[i] = Plane{Normal: n, Distance: r.W()}
	}
	return f
}

// IntersectsAABB reports whether any part of box may be inside the frustum. The test is
// conservative: boxes near a frustum corner can pass while being outside. Invalid boxes never
// intersect.
//
// Parameters:
//   - box: the world space box
//
// Returns:
//   - bool: false only if the box is fully outside one plane
func (f Frustum) IntersectsAABB(box AABB) bool {
	if !box.Valid() {
		return false
	}
	for _, p := range f.Planes {
		// the box corner furthest along the plane normal
		var corner mgl32.Vec3
		for i := range 3 {
			if p.Normal[i] >= 0 {
				corner[i] = box.Max[i]
			} else {
				corner[i] = box.Min[i]
			}
		}
		if p.SignedDistance(corner) < 0 {
			return false
		}
	}
	return true
}

// TransformAABB returns the box enclosing box after transformation by m.
//
// Parameters:
//   - m: an affine transform
//   - box: the box
//
// Returns:
//   - AABB: the enclosing box of the eight transformed corners, invalid if box is invalid
func TransformAABB(m mgl32.Mat4, box AABB) AABB {
	if !box.Valid() {
		return box
	}
	var out AABB
	for c := range 8 {
		corner := box.Min
		if c&1 != 0 {
			corner[0] = box.Max[0]
		}
		if c&2 != 0 {
			corner[1] = box.Max[1]
		}
		if c&4 != 0 {
			corner[2] = box.Max[2]
		}
		out = out.Extend(TransformPoint(m, corner))
	}
	return out
}
