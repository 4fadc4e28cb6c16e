package camera

import "github.com/go-gl/mathgl/mgl32"

// OrbitControllerOption is a functional option for configuring an OrbitController.
type OrbitControllerOption func(*orbitControllerImpl)

// WithTarget sets the initial orbit pivot.
//
// Parameters:
//   - target: world-space pivot point
//
// Returns:
//   - OrbitControllerOption: functional option to set the target
func WithTarget(target mgl32.Vec3) OrbitControllerOption {
	return func(cc *orbitControllerImpl) {
		cc.target = target
	}
}

// WithRadius sets the initial orbit radius (distance from target).
//
// Parameters:
//   - radius: distance from the orbit target
//
// Returns:
//   - OrbitControllerOption: functional option to set the radius
func WithRadius(radius float32) OrbitControllerOption {
	return func(cc *orbitControllerImpl) {
		cc.radius = radius
	}
}

// WithAzimuth sets the initial horizontal angle around the Y axis.
//
// Parameters:
//   - azimuth: horizontal angle in radians (0 = +Z axis)
//
// Returns:
//   - OrbitControllerOption: functional option to set the azimuth
func WithAzimuth(azimuth float32) OrbitControllerOption {
	return func(cc *orbitControllerImpl) {
		cc.azimuth = azimuth
	}
}

// WithElevation sets the initial vertical angle from the horizontal plane.
//
// Parameters:
//   - elevation: vertical angle in radians (0 = horizontal)
//
// Returns:
//   - OrbitControllerOption: functional option to set the elevation
func WithElevation(elevation float32) OrbitControllerOption {
	return func(cc *orbitControllerImpl) {
		cc.elevation = elevation
	}
}

// WithRadiusLimits sets the zoom bounds.
//
// Parameters:
//   - minRadius: closest allowed distance
//   - maxRadius: farthest allowed distance
//
// Returns:
//   - OrbitControllerOption: functional option to set the radius bounds
func WithRadiusLimits(minRadius, maxRadius float32) OrbitControllerOption {
	return func(cc *orbitControllerImpl) {
		cc.minRadius = minRadius
		cc.maxRadius = maxRadius
	}
}

// WithOrbitSpeed sets the orbit step in radians.
//
// Parameters:
//   - speed: radians per orbit step
//
// Returns:
//   - OrbitControllerOption: functional option to set the orbit speed
func WithOrbitSpeed(speed float32) OrbitControllerOption {
	return func(cc *orbitControllerImpl) {
		cc.orbitSpeed = speed
	}
}

// WithZoomSpeed sets the zoom speed multiplier.
func WithZoomSpeed(speed float32) OrbitControllerOption {
	return func(cc *orbitControllerImpl) {
		cc.zoomSpeed = speed
	}
}

// WithPanSpeed sets the pan speed multiplier.
func WithPanSpeed(speed float32) OrbitControllerOption {
	return func(cc *orbitControllerImpl) {
		cc.panSpeed = speed
	}
}
