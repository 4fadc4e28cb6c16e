package common

import (
	"unsafe"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	totalBytes := int(size) * len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), totalBytes)
}

// BytesToSlice reinterprets a byte slice as a slice of T. Trailing bytes that do not fill a
// whole element are ignored. The byte slice must be aligned for T; host buffers created by
// the renderer are always 4-byte aligned.
// WARNING: The returned slice shares memory with the input.
//
// Parameters:
//   - data: source bytes
//
// Returns:
//   - []T: a view of data as elements of T, or nil if data holds less than one element
func BytesToSlice[T any](data []byte) []T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	n := len(data) / size
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), n)
}

// ComposeTRS builds a column-major model matrix from a translation, rotation quaternion and
// scale, equivalent to T * R * S.
//
// Parameters:
//   - t: translation
//   - r: rotation (need not be normalized; it is normalized here)
//   - s: per-axis scale
//
// Returns:
//   - mgl32.Mat4: the composed matrix
func ComposeTRS(t mgl32.Vec3, r mgl32.Quat, s mgl32.Vec3) mgl32.Mat4 {
	rot := r.Normalize().Mat4()
	m := rot
	for c := 0; c < 3; c++ {
		for row := 0; row < 3; row++ {
			m[c*4+row] = rot[c*4+row] * s[c]
		}
	}
	m[12], m[13], m[14] = t[0], t[1], t[2]
	return m
}

// LerpVec3 linearly interpolates between a and b.
func LerpVec3(a, b mgl32.Vec3, t float32) mgl32.Vec3 {
	return mgl32.Vec3{
		a[0] + (b[0]-a[0])*t,
		a[1] + (b[1]-a[1])*t,
		a[2] + (b[2]-a[2])*t,
	}
}

// NlerpQuat interpolates between two rotations along the shortest arc and renormalizes the
// result. This is the same interpolation the compute shaders use, so host and device paths
// agree exactly.
//
// Parameters:
//   - a: the rotation at t = 0
//   - b: the rotation at t = 1
//   - t: the interpolation factor in [0, 1]
//
// Returns:
//   - mgl32.Quat: the normalized interpolated rotation
func NlerpQuat(a, b mgl32.Quat, t float32) mgl32.Quat {
	if a.Dot(b) < 0 {
		b = b.Scale(-1)
	}
	q := mgl32.Quat{
		W: a.W + (b.W-a.W)*t,
		V: LerpVec3(a.V, b.V, t),
	}
	l := q.Len()
	if l == 0 {
		return mgl32.QuatIdent()
	}
	return q.Scale(1 / l)
}

// QuatFromArray converts an (x, y, z, w) array into an mgl32 quaternion.
func QuatFromArray(v [4]float32) mgl32.Quat {
	return mgl32.Quat{W: v[3], V: mgl32.Vec3{v[0], v[1], v[2]}}
}

// QuatToArray converts an mgl32 quaternion into an (x, y, z, w) array.
func QuatToArray(q mgl32.Quat) [4]float32 {
	return [4]float32{q.V[0], q.V[1], q.V[2], q.W}
}

// TransformPoint applies m to the point p (w = 1).
func TransformPoint(m mgl32.Mat4, p mgl32.Vec3) mgl32.Vec3 {
	return m.Mul4x1(p.Vec4(1)).Vec3()
}

// MaxAxisScale returns the length of the longest basis vector of the upper 3x3 block of m.
// Used to scale bounding radii by non-uniformly scaled transforms conservatively.
//
// Parameters:
//   - m: the transform
//
// Returns:
//   - float32: the largest per-axis scale factor
func MaxAxisScale(m mgl32.Mat4) float32 {
	sx := m[0]*m[0] + m[1]*m[1] + m[2]*m[2]
	sy := m[4]*m[4] + m[5]*m[5] + m[6]*m[6]
	sz := m[8]*m[8] + m[9]*m[9] + m[10]*m[10]
	return math32.Sqrt(math32.Max(sx, math32.Max(sy, sz)))
}

// WrapTime wraps t into [0, duration) for looping playback. A non-positive duration
// returns 0 so that clips without keys sample their first frame.
//
// Parameters:
//   - t: the playback time in seconds
//   - duration: the clip duration in seconds
//
// Returns:
//   - float32: the wrapped time
func WrapTime(t, duration float32) float32 {
	if duration <= 0 {
		return 0
	}
	w := math32.Mod(t, duration)
	if w < 0 {
		w += duration
	}
	return w
}
