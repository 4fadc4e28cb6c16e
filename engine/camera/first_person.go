package camera

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-skin/engine/instance"
	"github.com/go-gl/mathgl/mgl32"
)

// BoneReader reads the world transform of one bone of one animated instance. The animator
// implements it.
type BoneReader interface {
	// ReadBoneWorldMatrix blocks until the last frame completes and returns the bone's world
	// transform.
	//
	// Parameters:
	//   - inst: the instance
	//   - bone: the bone index
	//
	// Returns:
	//   - mgl32.Mat4: the world transform
	//   - error: an error if the bone could not be read
	ReadBoneWorldMatrix(inst instance.Instance, bone uint32) (mgl32.Mat4, error)
}

// FirstPerson is a controller that attaches the view to a bone of an animated instance, for
// example a head. The eye sits at an offset in the bone's local space and looks along the
// bone's forward axis, so head movement clips turn the view.
type FirstPerson interface {
	CameraController

	// Follow attaches the controller to a bone.
	//
	// Parameters:
	//   - inst: the followed instance
	//   - bone: the followed bone index
	//   - eyeOffset: the eye position in the bone's local space
	Follow(inst instance.Instance, bone uint32, eyeOffset mgl32.Vec3)

	// Unfollow detaches the controller. The last pose is kept.
	Unfollow()

	// Following returns the followed instance and bone.
	//
	// Returns:
	//   - instance.Instance: the followed instance, nil when detached
	//   - uint32: the followed bone
	Following() (instance.Instance, uint32)

	// Update reads the followed bone and recomputes the eye. It does nothing when detached. On
	// error the previous pose is kept.
	//
	// Parameters:
	//   - reader: the source of bone world matrices
	//
	// Returns:
	//   - error: the read error
	Update(reader BoneReader) error

	// ViewMatrix returns the view matrix of the current eye.
	//
	// Returns:
	//   - mgl32.Mat4: the view matrix
	ViewMatrix() mgl32.Mat4
}

type firstPersonImpl struct {
	mu *sync.Mutex

	inst      instance.Instance
	bone      uint32
	eyeOffset mgl32.Vec3

	// forward and up are bone local axes.
	forward mgl32.Vec3
	up      mgl32.Vec3

	position   mgl32.Vec3
	target     mgl32.Vec3
	worldUp    mgl32.Vec3
	viewMatrix mgl32.Mat4
}

var _ FirstPerson = &firstPersonImpl{}

// NewFirstPerson creates a detached first person controller looking down -Z from the origin.
//
// Parameters:
//   - options: functional options to configure the controller
//
// Returns:
//   - FirstPerson: the controller
func NewFirstPerson(options ...FirstPersonOption) FirstPerson {
	fp := &firstPersonImpl{
		mu:         &sync.Mutex{},
		forward:    mgl32.Vec3{0, 0, 1},
		up:         mgl32.Vec3{0, 1, 0},
		target:     mgl32.Vec3{0, 0, -1},
		worldUp:    mgl32.Vec3{0, 1, 0},
		viewMatrix: mgl32.Ident4(),
	}
	for _, option := range options {
		option(fp)
	}
	return fp
}

func (fp *firstPersonImpl) Follow(inst instance.Instance, bone uint32, eyeOffset mgl32.Vec3) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.inst = inst
	fp.bone = bone
	fp.eyeOffset = eyeOffset
}

func (fp *firstPersonImpl) Unfollow() {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.inst = nil
}

func (fp *firstPersonImpl) Following() (instance.Instance, uint32) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.inst, fp.bone
}

func (fp *firstPersonImpl) Update(reader BoneReader) error {
	fp.mu.Lock()
	inst, bone, offset := fp.inst, fp.bone, fp.eyeOffset
	fp.mu.Unlock()
	if inst == nil {
		return nil
	}

	world, err := reader.ReadBoneWorldMatrix(inst, bone)
	if err != nil {
		return fmt.Errorf("first person follow of instance %d bone %d: %w", inst.ID(), bone, err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()
	eye := mgl32.TransformCoordinate(offset, world)
	forward := mgl32.TransformNormal(fp.forward, world)
	up := mgl32.TransformNormal(fp.up, world)
	if forward.Len() < 1e-8 || up.Len() < 1e-8 {
		return fmt.Errorf("first person follow of instance %d bone %d: degenerate bone transform", inst.ID(), bone)
	}
	fp.position = eye
	fp.target = eye.Add(forward.Normalize())
	fp.worldUp = up.Normalize()
	fp.viewMatrix = mgl32.LookAtV(fp.position, fp.target, fp.worldUp)
	return nil
}

func (fp *firstPersonImpl) Position() mgl32.Vec3 {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.position
}

func (fp *firstPersonImpl) Target() mgl32.Vec3 {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.target
}

func (fp *firstPersonImpl) Up() mgl32.Vec3 {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.worldUp
}

func (fp *firstPersonImpl) ViewMatrix() mgl32.Mat4 {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.viewMatrix
}
