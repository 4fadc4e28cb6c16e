package collision

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/instance"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/animator"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sphere(x, y, z, r float32) common.Sphere {
	return common.Sphere{Center: mgl32.Vec3{x, y, z}, Radius: r}
}

func TestDetect(t *testing.T) {
	a := instance.NewInstance(instance.WithID(1))
	b := instance.NewInstance(instance.WithID(2))
	c := instance.NewInstance(instance.WithID(3))

	contacts := Detect([]animator.InstanceSpheres{
		{Instance: a, Spheres: []common.Sphere{sphere(0, 0, 0, 1), sphere(0, 2, 0, 0.5)}},
		{Instance: b, Spheres: []common.Sphere{sphere(1.5, 0, 0, 1), sphere(10, 0, 0, 1)}},
		{Instance: c, Spheres: []common.Sphere{sphere(100, 0, 0, 1)}},
	})

	require.Len(t, contacts, 1)
	got := contacts[0]
	assert.Same(t, a, got.A)
	assert.Same(t, b, got.B)
	assert.Equal(t, uint32(0), got.BoneA)
	assert.Equal(t, uint32(0), got.BoneB)
	assert.InDelta(t, 0.5, got.Depth, 1e-6)
}

func TestDetectSkipsSentinelSpheres(t *testing.T) {
	a := instance.NewInstance(instance.WithID(1))
	b := instance.NewInstance(instance.WithID(2))

	// every pair of centers coincides; only the radius 0 markers keep them apart
	contacts := Detect([]animator.InstanceSpheres{
		{Instance: a, Spheres: []common.Sphere{sphere(0, 0, 0, 0), sphere(0, 0, 0, 1)}},
		{Instance: b, Spheres: []common.Sphere{sphere(0, 0, 0, 0), sphere(5, 0, 0, 1)}},
	})
	assert.Empty(t, contacts)

	allSentinel := Detect([]animator.InstanceSpheres{
		{Instance: a, Spheres: []common.Sphere{sphere(0, 0, 0, 0)}},
		{Instance: b, Spheres: []common.Sphere{sphere(0, 0, 0, 0)}},
	})
	assert.Empty(t, allSentinel)
}

func TestDetectSkipsSelfPairs(t *testing.T) {
	a := instance.NewInstance(instance.WithID(1))
	contacts := Detect([]animator.InstanceSpheres{
		{Instance: a, Spheres: []common.Sphere{sphere(0, 0, 0, 1), sphere(0.5, 0, 0, 1)}},
		{Instance: a, Spheres: []common.Sphere{sphere(0, 0, 0, 1)}},
	})
	assert.Empty(t, contacts)
}

func TestBounds(t *testing.T) {
	box := Bounds([]common.Sphere{sphere(0, 0, 0, 1), sphere(4, 0, 0, 0), sphere(0, 3, 0, 0.5)})
	require.True(t, box.Valid())
	assert.Equal(t, mgl32.Vec3{-1, -1, -1}, box.Min)
	assert.Equal(t, mgl32.Vec3{1, 3.5, 1}, box.Max)

	assert.False(t, Bounds([]common.Sphere{sphere(1, 1, 1, 0)}).Valid())
	assert.False(t, Bounds(nil).Valid())
}
