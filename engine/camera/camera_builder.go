package camera

// CameraBuilderOption configures a Camera at construction.
type CameraBuilderOption func(*cameraImpl)

// WithPerspective sets the projection settings. NewCamera panics if they are invalid.
//
// Parameters:
//   - p: the settings
//
// Returns:
//   - CameraBuilderOption: option function to apply
func WithPerspective(p Perspective) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.perspective = p
	}
}

// WithController attaches the controller the camera reads its pose from.
//
// Parameters:
//   - ctrl: the controller
//
// Returns:
//   - CameraBuilderOption: option function to apply
func WithController(ctrl CameraController) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.controller = ctrl
	}
}
