package common

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeTRSMatchesMatrixProduct(t *testing.T) {
	tr := mgl32.Vec3{1, -2, 3}
	rot := mgl32.QuatRotate(mgl32.DegToRad(30), mgl32.Vec3{0, 1, 0})
	sc := mgl32.Vec3{2, 3, 4}

	got := ComposeTRS(tr, rot, sc)
	want := mgl32.Translate3D(tr[0], tr[1], tr[2]).Mul4(rot.Mat4()).Mul4(mgl32.Scale3D(sc[0], sc[1], sc[2]))

	assert.True(t, got.ApproxEqualThreshold(want, 1e-5), "got %v want %v", got, want)
}

func TestNlerpQuatTakesShortestArc(t *testing.T) {
	a := mgl32.QuatRotate(mgl32.DegToRad(10), mgl32.Vec3{0, 0, 1})
	b := a.Scale(-1) // same rotation, opposite hemisphere

	q := NlerpQuat(a, b, 0.5)
	assert.InDelta(t, 1, q.Len(), 1e-5)
	assert.True(t, q.Mat4().ApproxEqualThreshold(a.Mat4(), 1e-5))
}

func TestNlerpQuatEndpoints(t *testing.T) {
	a := mgl32.QuatIdent()
	b := mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{1, 0, 0})

	assert.True(t, NlerpQuat(a, b, 0).ApproxEqualThreshold(a, 1e-6))
	assert.True(t, NlerpQuat(a, b, 1).ApproxEqualThreshold(b, 1e-6))
}

func TestWrapTime(t *testing.T) {
	tests := []struct {
		name     string
		t, d     float32
		expected float32
	}{
		{"inside", 0.5, 2, 0.5},
		{"wraps", 2.5, 2, 0.5},
		{"negative", -0.5, 2, 1.5},
		{"zero duration", 3, 0, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.expected, WrapTime(tc.t, tc.d), 1e-6)
		})
	}
}

func TestMaxAxisScale(t *testing.T) {
	m := ComposeTRS(mgl32.Vec3{5, 5, 5}, mgl32.QuatRotate(1, mgl32.Vec3{0, 1, 0}), mgl32.Vec3{1, 4, 2})
	assert.InDelta(t, 4, MaxAxisScale(m), 1e-5)
}

func TestBytesRoundTripView(t *testing.T) {
	src := []float32{1, 2, 3, 4}
	b := SliceToBytes(src)
	require.Len(t, b, 16)

	view := BytesToSlice[float32](b)
	require.Len(t, view, 4)
	view[2] = 9
	assert.Equal(t, float32(9), src[2], "views share memory")

	assert.Nil(t, BytesToSlice[mgl32.Mat4](b), "16 bytes cannot hold a 64 byte matrix")
}

func TestRoundUpAndCeilDiv(t *testing.T) {
	assert.Equal(t, uint32(0), RoundUp(uint32(0), 32))
	assert.Equal(t, uint32(32), RoundUp(uint32(1), 32))
	assert.Equal(t, uint32(32), RoundUp(uint32(32), 32))
	assert.Equal(t, uint32(64), RoundUp(uint32(33), 32))
	assert.Equal(t, uint64(7), RoundUp(uint64(7), 0))

	assert.Equal(t, uint32(2), CeilDiv(uint32(33), 32))
	assert.Equal(t, uint32(0), CeilDiv(uint32(5), 0))
}
