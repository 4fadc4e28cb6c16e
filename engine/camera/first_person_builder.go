package camera

import "github.com/go-gl/mathgl/mgl32"

// FirstPersonOption is a functional option for configuring a FirstPerson controller.
type FirstPersonOption func(*firstPersonImpl)

// WithBoneAxes sets which bone local axes the view looks along and treats as up. Defaults to
// +Z forward and +Y up.
//
// Parameters:
//   - forward: the bone local look direction
//   - up: the bone local up direction
//
// Returns:
//   - FirstPersonOption: functional option to set the bone axes
func WithBoneAxes(forward, up mgl32.Vec3) FirstPersonOption {
	return func(fp *firstPersonImpl) {
		fp.forward = forward
		fp.up = up
	}
}
