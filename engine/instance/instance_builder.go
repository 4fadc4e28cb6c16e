package instance

import (
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/go-gl/mathgl/mgl32"
)

// InstanceBuilderOption is a functional option for configuring an Instance during construction.
type InstanceBuilderOption func(*instance)

// WithID sets the ID of the Instance.
//
// Parameters:
//   - id: unique identifier for the Instance
//
// Returns:
//   - InstanceBuilderOption: functional option to set the ID
func WithID(id uint64) InstanceBuilderOption {
	return func(inst *instance) {
		inst.id = id
	}
}

// WithEnabled sets whether the Instance takes part in the frame.
//
// Parameters:
//   - enabled: true to animate the instance, false to skip it
//
// Returns:
//   - InstanceBuilderOption: functional option to set the Enabled state
func WithEnabled(enabled bool) InstanceBuilderOption {
	return func(inst *instance) {
		inst.enabled.Store(enabled)
	}
}

// WithModel sets the Model placed by this Instance.
//
// Parameters:
//   - m: the Model to associate
//
// Returns:
//   - InstanceBuilderOption: functional option to set the Model
func WithModel(m model.Model) InstanceBuilderOption {
	return func(inst *instance) {
		inst.mdl = m
	}
}

// WithPosition sets the world position of the Instance.
//
// Parameters:
//   - x, y, z: position components
//
// Returns:
//   - InstanceBuilderOption: functional option to set the position
func WithPosition(x, y, z float32) InstanceBuilderOption {
	return func(inst *instance) {
		inst.position = mgl32.Vec3{x, y, z}
	}
}

// WithScale sets the world scale of the Instance.
//
// Parameters:
//   - sx, sy, sz: scale factors
//
// Returns:
//   - InstanceBuilderOption: functional option to set the scale
func WithScale(sx, sy, sz float32) InstanceBuilderOption {
	return func(inst *instance) {
		inst.scale = mgl32.Vec3{sx, sy, sz}
	}
}

// WithRotation sets the world rotation of the Instance as XYZ Euler angles in degrees.
//
// Parameters:
//   - rx, ry, rz: rotation angles
//
// Returns:
//   - InstanceBuilderOption: functional option to set the rotation
func WithRotation(rx, ry, rz float32) InstanceBuilderOption {
	return func(inst *instance) {
		inst.rotation = mgl32.Vec3{rx, ry, rz}
	}
}

// WithRotationSpeed sets the per-second rotation applied by Advance, in degrees.
//
// Parameters:
//   - rx, ry, rz: rotation speed components
//
// Returns:
//   - InstanceBuilderOption: functional option to set the rotation speed
func WithRotationSpeed(rx, ry, rz float32) InstanceBuilderOption {
	return func(inst *instance) {
		inst.rotationSpeed = mgl32.Vec3{rx, ry, rz}
	}
}

// WithAnimation sets the clip the Instance starts with.
//
// Parameters:
//   - clip: the clip index
//   - loop: whether playback wraps
//
// Returns:
//   - InstanceBuilderOption: functional option to set the starting clip
func WithAnimation(clip uint32, loop bool) InstanceBuilderOption {
	return func(inst *instance) {
		inst.firstClip = clip
		inst.secondClip = clip
		inst.loop = loop
	}
}

// WithAnimationSpeed sets the playback speed multiplier.
//
// Parameters:
//   - speed: the multiplier
//
// Returns:
//   - InstanceBuilderOption: functional option to set the playback speed
func WithAnimationSpeed(speed float32) InstanceBuilderOption {
	return func(inst *instance) {
		inst.speed = speed
	}
}
