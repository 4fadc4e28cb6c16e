package camera

import "github.com/go-gl/mathgl/mgl32"

// CameraController defines what a Camera reads each Update. Controllers own positional state;
// the Camera turns it into matrices.
type CameraController interface {
	// Position returns the camera's world-space position.
	//
	// Returns:
	//   - mgl32.Vec3: world-space camera position
	Position() mgl32.Vec3

	// Target returns the look-at point.
	//
	// Returns:
	//   - mgl32.Vec3: world-space target position
	Target() mgl32.Vec3

	// Up returns the up vector the view is built with.
	//
	// Returns:
	//   - mgl32.Vec3: world-space up vector
	Up() mgl32.Vec3
}

// OrbitController is a third-person spectator controller using spherical coordinates (radius,
// azimuth, elevation) relative to a target point, with planar panning along the camera's local
// axes. Panning shifts both position and target, preserving the orbit relationship.
type OrbitController interface {
	CameraController

	// SetTarget sets the look-at/pivot point and recomputes position from spherical coordinates.
	//
	// Parameters:
	//   - target: world-space pivot
	SetTarget(target mgl32.Vec3)

	// Orbit rotates the camera around the target. Elevation is clamped to its bounds.
	//
	// Parameters:
	//   - azimuthSteps: orbit speed steps around Y, positive to the right
	//   - elevationSteps: orbit speed steps upward
	Orbit(azimuthSteps, elevationSteps float32)

	// Zoom adjusts the camera's distance by modifying orbit radius.
	// Positive delta zooms in (closer to target).
	//
	// Parameters:
	//   - delta: zoom amount scaled by ZoomSpeed
	Zoom(delta float32)

	// Pan translates position and target along the local right, up and forward axes.
	//
	// Parameters:
	//   - right, up, forward: pan amounts scaled by PanSpeed
	Pan(right, up, forward float32)

	// Radius returns the current orbit radius (distance from target).
	//
	// Returns:
	//   - float32: current distance from target
	Radius() float32

	// Azimuth returns the current horizontal angle around the Y axis.
	//
	// Returns:
	//   - float32: azimuth in radians
	Azimuth() float32

	// Elevation returns the current vertical angle from the horizontal plane.
	//
	// Returns:
	//   - float32: elevation in radians
	Elevation() float32
}
