package collision

import (
	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/instance"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/animator"
	"github.com/go-gl/mathgl/mgl32"
)

// Contact is one overlapping pair of bone spheres from two different instances.
type Contact struct {
	A, B         instance.Instance
	BoneA, BoneB uint32

	// Depth is the sum of radii minus the center distance, always positive.
	Depth float32
}

// Bounds returns the box enclosing every non-sentinel sphere of an instance. The box is not
// Valid when every sphere is a sentinel.
//
// Parameters:
//   - spheres: one sphere per bone
//
// Returns:
//   - common.AABB: the enclosing box
func Bounds(spheres []common.Sphere) common.AABB {
	var box common.AABB
	for _, s := range spheres {
		if s.IsSentinel() {
			continue
		}
		r := mgl32.Vec3{s.Radius, s.Radius, s.Radius}
		box = box.Extend(s.Center.Sub(r)).Extend(s.Center.Add(r))
	}
	return box
}

// overlaps reports whether two valid boxes intersect.
func overlaps(a, b common.AABB) bool {
	for i := 0; i < 3; i++ {
		if a.Max[i] < b.Min[i] || b.Max[i] < a.Min[i] {
			return false
		}
	}
	return true
}

// Detect runs the coarse pairwise test over the bounding spheres of every animated instance.
// Pairs of instances whose bounds do not overlap are rejected before any bone pair is tested.
// Spheres with radius 0 never take part, and an instance is never tested against itself.
// Contacts are ordered by instance pair, then by bone pair.
//
// Parameters:
//   - spheres: the spheres read back from the last frame
//
// Returns:
//   - []Contact: every overlapping bone pair
func Detect(spheres []animator.InstanceSpheres) []Contact {
	bounds := make([]common.AABB, len(spheres))
	for i := range spheres {
		bounds[i] = Bounds(spheres[i].Spheres)
	}

	var contacts []Contact
	for i := range spheres {
		if !bounds[i].Valid() {
			continue
		}
		for j := i + 1; j < len(spheres); j++ {
			if !bounds[j].Valid() || spheres[i].Instance == spheres[j].Instance {
				continue
			}
			if !overlaps(bounds[i], bounds[j]) {
				continue
			}
			contacts = appendBonePairs(contacts, spheres[i], spheres[j])
		}
	}
	return contacts
}

func appendBonePairs(contacts []Contact, a, b animator.InstanceSpheres) []Contact {
	for boneA, sa := range a.Spheres {
		if sa.IsSentinel() {
			continue
		}
		for boneB, sb := range b.Spheres {
			hit, depth := sa.Intersects(sb)
			if !hit {
				continue
			}
			contacts = append(contacts, Contact{
				A:     a.Instance,
				B:     b.Instance,
				BoneA: uint32(boneA),
				BoneB: uint32(boneB),
				Depth: depth,
			})
		}
	}
	return contacts
}
