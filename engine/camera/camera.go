package camera

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrInvalidPerspective is returned for projection settings that produce no usable frustum.
var ErrInvalidPerspective = errors.New("camera: invalid perspective")

// Perspective holds the projection settings of a Camera.
type Perspective struct {
	// Fov is the vertical field of view in radians.
	Fov float32

	// Aspect is width / height.
	Aspect float32

	Near float32
	Far  float32
}

// DefaultPerspective is a 45 degree square projection from 0.1 to 100.
//
// Returns:
//   - Perspective: the default settings
func DefaultPerspective() Perspective {
	return Perspective{Fov: mgl32.DegToRad(45), Aspect: 1, Near: 0.1, Far: 100}
}

// Validate checks that 0 < Fov < pi, Aspect > 0 and 0 < Near < Far.
//
// Returns:
//   - error: ErrInvalidPerspective naming the first bad setting
func (p Perspective) Validate() error {
	switch {
	case p.Fov <= 0 || p.Fov >= math32.Pi:
		return fmt.Errorf("%w: fov %v outside (0, pi)", ErrInvalidPerspective, p.Fov)
	case p.Aspect <= 0:
		return fmt.Errorf("%w: aspect %v", ErrInvalidPerspective, p.Aspect)
	case p.Near <= 0 || p.Far <= p.Near:
		return fmt.Errorf("%w: near %v, far %v", ErrInvalidPerspective, p.Near, p.Far)
	}
	return nil
}

// Matrix returns the projection matrix.
func (p Perspective) Matrix() mgl32.Mat4 {
	return mgl32.Perspective(p.Fov, p.Aspect, p.Near, p.Far)
}

type cameraImpl struct {
	mu *sync.Mutex

	perspective Perspective

	view     mgl32.Mat4
	proj     mgl32.Mat4
	viewProj mgl32.Mat4
	frustum  common.Frustum

	controller CameraController
}

// Camera turns the pose of a CameraController into view and projection matrices and the view
// frustum instances are culled against. Matrices change only in Update and the setters.
type Camera interface {
	// Perspective returns the projection settings.
	//
	// Returns:
	//   - Perspective: the settings
	Perspective() Perspective

	// SetPerspective replaces the projection settings and recomputes the matrices.
	//
	// Parameters:
	//   - p: the settings
	//
	// Returns:
	//   - error: ErrInvalidPerspective, leaving the camera unchanged
	SetPerspective(p Perspective) error

	// ViewMatrix returns the view matrix of the last Update. It is the identity until a
	// controller provides a pose.
	//
	// Returns:
	//   - mgl32.Mat4: the view matrix
	ViewMatrix() mgl32.Mat4

	// ProjectionMatrix returns the perspective projection matrix.
	//
	// Returns:
	//   - mgl32.Mat4: the projection matrix
	ProjectionMatrix() mgl32.Mat4

	// ViewProjectionMatrix returns projection * view.
	//
	// Returns:
	//   - mgl32.Mat4: the combined view-projection matrix
	ViewProjectionMatrix() mgl32.Mat4

	// Frustum returns the world space view frustum matching ViewProjectionMatrix.
	//
	// Returns:
	//   - common.Frustum: the frustum
	Frustum() common.Frustum

	// Controller returns the attached controller, or nil.
	//
	// Returns:
	//   - CameraController: the attached controller or nil
	Controller() CameraController

	// SetController attaches a controller and recomputes the matrices from it.
	//
	// Parameters:
	//   - ctrl: the controller
	SetController(ctrl CameraController)

	// Update reads the controller's pose and recomputes the matrices. Call it after the
	// controller has moved for the frame. Without a controller it does nothing.
	Update()
}

var _ Camera = &cameraImpl{}

// NewCamera creates a camera with DefaultPerspective unless WithPerspective says otherwise.
// It panics on invalid perspective settings.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:          &sync.Mutex{},
		perspective: DefaultPerspective(),
		view:        mgl32.Ident4(),
	}
	for _, option := range options {
		option(c)
	}
	if err := c.perspective.Validate(); err != nil {
		panic(err)
	}
	c.recompute()
	return c
}

func (c *cameraImpl) Perspective() Perspective {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.perspective
}

func (c *cameraImpl) SetPerspective(p Perspective) error {
	if err := p.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.perspective = p
	c.recompute()
	return nil
}

func (c *cameraImpl) ViewMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

func (c *cameraImpl) ProjectionMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proj
}

func (c *cameraImpl) ViewProjectionMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProj
}

func (c *cameraImpl) Frustum() common.Frustum {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frustum
}

func (c *cameraImpl) Controller() CameraController {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) SetController(ctrl CameraController) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = ctrl
	c.recompute()
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controller == nil {
		return
	}
	c.recompute()
}

// recompute rebuilds every matrix and the frustum. A controller whose eye sits on its target
// has no view direction and keeps the previous view. Caller must hold the mutex.
func (c *cameraImpl) recompute() {
	c.proj = c.perspective.Matrix()
	if c.controller != nil {
		eye, target := c.controller.Position(), c.controller.Target()
		if eye.Sub(target).LenSqr() > 1e-12 {
			c.view = mgl32.LookAtV(eye, target, c.controller.Up())
		}
	}
	c.viewProj = c.proj.Mul4(c.view)
	c.frustum = common.ExtractFrustum(c.viewProj)
}
