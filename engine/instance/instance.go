package instance

import (
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// MovementState is the coarse locomotion state of an instance. The application sets the next
// state during the frame and commits it once the frame's decisions are final.
type MovementState uint8

const (
	MovementIdle MovementState = iota
	MovementWalk
	MovementRun
	MovementJump
)

func (s MovementState) String() string {
	switch s {
	case MovementIdle:
		return "idle"
	case MovementWalk:
		return "walk"
	case MovementRun:
		return "run"
	case MovementJump:
		return "jump"
	}
	return "unknown"
}

// AnimationState is the per-instance snapshot consumed by the transform compute stage.
type AnimationState struct {
	FirstClip  uint32
	SecondClip uint32
	Blend      float32
	FirstTime  float32
	SecondTime float32
	HeadLR     float32
	HeadUD     float32
}

// instance is the implementation of the Instance interface.
type instance struct {
	mu *sync.Mutex

	id            uint64
	enabled       atomic.Bool
	mdl           model.Model
	indexPosition atomic.Int64

	position      mgl32.Vec3
	rotation      mgl32.Vec3
	rotationSpeed mgl32.Vec3
	scale         mgl32.Vec3

	movement, nextMovement MovementState

	firstClip, secondClip       uint32
	firstTime, secondTime       float32
	blend                       float32
	speed                       float32
	loop, blending              bool
	blendDuration, blendElapsed float32

	headLR, headUD float32
}

// Instance defines the interface for one placed occurrence of a model in the scene.
// It carries the world transform, movement state and animation playback state that the
// animator reads every frame, plus the stable index position assigned by the scene.
type Instance interface {
	// ID returns the instance's unique identifier.
	//
	// Returns:
	//   - uint64: the instance ID
	ID() uint64

	// SetID sets the instance's unique identifier.
	//
	// Parameters:
	//   - id: the ID to assign
	SetID(id uint64)

	// Model returns the Model this instance places, or nil for the scene's null instance.
	//
	// Returns:
	//   - model.Model: the associated model or nil
	Model() model.Model

	// Enabled returns whether this instance takes part in the frame.
	//
	// Returns:
	//   - bool: true if enabled
	Enabled() bool

	// SetEnabled sets whether the instance takes part in the frame.
	//
	// Parameters:
	//   - enabled: true to enable
	SetEnabled(enabled bool)

	// IndexPosition returns the position of the instance in the scene's flat instance list.
	// It doubles as the selection id. Returns -1 for instances not in a scene.
	//
	// Returns:
	//   - int: the index position
	IndexPosition() int

	// SetIndexPosition is called by the scene when it renumbers its instance list.
	//
	// Parameters:
	//   - index: the new index position
	SetIndexPosition(index int)

	// Position returns the world position.
	//
	// Returns:
	//   - mgl32.Vec3: the position
	Position() mgl32.Vec3

	// SetPosition sets the world position.
	//
	// Parameters:
	//   - x, y, z: the position components
	SetPosition(x, y, z float32)

	// Rotation returns the world rotation as XYZ Euler angles in degrees.
	//
	// Returns:
	//   - mgl32.Vec3: the rotation angles
	Rotation() mgl32.Vec3

	// SetRotation sets the world rotation as XYZ Euler angles in degrees.
	//
	// Parameters:
	//   - rx, ry, rz: the rotation angles
	SetRotation(rx, ry, rz float32)

	// RotationSpeed returns the rotation applied per second by Advance, in degrees.
	//
	// Returns:
	//   - mgl32.Vec3: the rotation speed
	RotationSpeed() mgl32.Vec3

	// SetRotationSpeed sets the rotation applied per second by Advance, in degrees.
	//
	// Parameters:
	//   - rx, ry, rz: the rotation speed components
	SetRotationSpeed(rx, ry, rz float32)

	// Scale returns the world scale.
	//
	// Returns:
	//   - mgl32.Vec3: the scale
	Scale() mgl32.Vec3

	// SetScale sets the world scale.
	//
	// Parameters:
	//   - sx, sy, sz: the scale factors
	SetScale(sx, sy, sz float32)

	// WorldMatrix composes the world root matrix T * R * S.
	//
	// Returns:
	//   - mgl32.Mat4: the world root matrix
	WorldMatrix() mgl32.Mat4

	// MovementState returns the committed movement state.
	//
	// Returns:
	//   - MovementState: the current state
	MovementState() MovementState

	// NextMovementState returns the movement state that the next commit applies.
	//
	// Returns:
	//   - MovementState: the pending state
	NextMovementState() MovementState

	// SetMovementState sets the pending movement state.
	//
	// Parameters:
	//   - next: the state to apply on the next commit
	SetMovementState(next MovementState)

	// CommitMovementState makes the pending movement state current.
	//
	// Returns:
	//   - bool: true if the state changed
	CommitMovementState() bool

	// PlayAnimation starts a clip from time 0 at normal speed and cancels any blend.
	//
	// Parameters:
	//   - clip: the clip index
	//   - loop: whether playback wraps at the end of the clip
	PlayAnimation(clip uint32, loop bool)

	// BlendTo starts a transition from the current clip to another clip. The target clip plays
	// from time 0 as the second clip while the blend factor ramps from 0 to 1 over the duration,
	// after which it becomes the first clip. A non-positive duration switches immediately.
	//
	// Parameters:
	//   - clip: the target clip index
	//   - duration: the transition time in seconds
	BlendTo(clip uint32, duration float32)

	// CancelBlend stops an in-progress transition and keeps the first clip.
	CancelBlend()

	// IsBlending returns whether a transition is in progress.
	//
	// Returns:
	//   - bool: true if blending
	IsBlending() bool

	// BlendProgress returns the transition progress from 0 to 1, or 0 when not blending.
	//
	// Returns:
	//   - float32: the progress
	BlendProgress() float32

	// SetClips sets both clips and the blend factor directly, cancelling any transition.
	//
	// Parameters:
	//   - first: the first clip index
	//   - second: the second clip index
	//   - blend: the blend factor, clamped to [0, 1]
	SetClips(first, second uint32, blend float32)

	// SetAnimationTime sets the playback time of the first clip.
	//
	// Parameters:
	//   - t: the time in seconds
	SetAnimationTime(t float32)

	// SetAnimationSpeed sets the playback speed multiplier.
	//
	// Parameters:
	//   - speed: the multiplier, 1 for normal speed
	SetAnimationSpeed(speed float32)

	// SetHeadLook sets the head look offsets, each clamped to [-1, 1]. Negative left/right looks
	// left, negative up/down looks down.
	//
	// Parameters:
	//   - leftRight: the horizontal look offset
	//   - upDown: the vertical look offset
	SetHeadLook(leftRight, upDown float32)

	// Advance moves playback forward by dt seconds. Both clip timestamps advance by dt times the
	// playback speed and looping clips wrap by their duration; non-looping clips hold their last
	// frame. An in-progress transition advances and, once complete, the second clip becomes the
	// first with blend 0. Rotation speed is applied to the rotation.
	//
	// Parameters:
	//   - dt: the elapsed time in seconds
	//   - durations: the clip durations of the instance's model, in clip order
	Advance(dt float32, durations []float32)

	// AnimationState returns the snapshot uploaded to the transform stage.
	//
	// Returns:
	//   - AnimationState: the current animation state
	AnimationState() AnimationState

	// Clone returns a copy of this instance with the same model, transform and playback state.
	// The copy is not part of any scene and has index position -1.
	//
	// Returns:
	//   - Instance: the copy
	Clone() Instance
}

var _ Instance = &instance{}

// NewInstance creates a new Instance configured with the given options.
// The default instance is enabled, has unit scale, plays clip 0 looping at normal speed and is
// not part of a scene.
//
// Parameters:
//   - options: functional options to configure the instance
//
// Returns:
//   - Instance: the newly created instance
func NewInstance(options ...InstanceBuilderOption) Instance {
	inst := &instance{
		mu:    &sync.Mutex{},
		scale: mgl32.Vec3{1, 1, 1},
		speed: 1,
		loop:  true,
	}
	inst.enabled.Store(true)
	inst.indexPosition.Store(-1)
	for _, option := range options {
		option(inst)
	}
	return inst
}

func (i *instance) ID() uint64 {
	return i.id
}

func (i *instance) SetID(id uint64) {
	i.id = id
}

func (i *instance) Model() model.Model {
	return i.mdl
}

func (i *instance) Enabled() bool {
	return i.enabled.Load()
}

func (i *instance) SetEnabled(enabled bool) {
	i.enabled.Store(enabled)
}

func (i *instance) IndexPosition() int {
	return int(i.indexPosition.Load())
}

func (i *instance) SetIndexPosition(index int) {
	i.indexPosition.Store(int64(index))
}

func (i *instance) Position() mgl32.Vec3 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.position
}

func (i *instance) SetPosition(x, y, z float32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.position = mgl32.Vec3{x, y, z}
}

func (i *instance) Rotation() mgl32.Vec3 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.rotation
}

func (i *instance) SetRotation(rx, ry, rz float32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.rotation = mgl32.Vec3{rx, ry, rz}
}

func (i *instance) RotationSpeed() mgl32.Vec3 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.rotationSpeed
}

func (i *instance) SetRotationSpeed(rx, ry, rz float32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.rotationSpeed = mgl32.Vec3{rx, ry, rz}
}

func (i *instance) Scale() mgl32.Vec3 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.scale
}

func (i *instance) SetScale(sx, sy, sz float32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.scale = mgl32.Vec3{sx, sy, sz}
}

func (i *instance) WorldMatrix() mgl32.Mat4 {
	i.mu.Lock()
	defer i.mu.Unlock()
	rot := mgl32.AnglesToQuat(
		mgl32.DegToRad(i.rotation[0]),
		mgl32.DegToRad(i.rotation[1]),
		mgl32.DegToRad(i.rotation[2]),
		mgl32.XYZ,
	)
	return common.ComposeTRS(i.position, rot, i.scale)
}

func (i *instance) MovementState() MovementState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.movement
}

func (i *instance) NextMovementState() MovementState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.nextMovement
}

func (i *instance) SetMovementState(next MovementState) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.nextMovement = next
}

func (i *instance) CommitMovementState() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	changed := i.movement != i.nextMovement
	i.movement = i.nextMovement
	return changed
}

func (i *instance) PlayAnimation(clip uint32, loop bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.firstClip = clip
	i.secondClip = clip
	i.firstTime = 0
	i.secondTime = 0
	i.blend = 0
	i.speed = 1
	i.loop = loop
	i.blending = false
	i.blendElapsed = 0
}

func (i *instance) BlendTo(clip uint32, duration float32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if duration <= 0 {
		i.firstClip = clip
		i.secondClip = clip
		i.firstTime = 0
		i.secondTime = 0
		i.blend = 0
		i.blending = false
		return
	}
	i.secondClip = clip
	i.secondTime = 0
	i.blend = 0
	i.blending = true
	i.blendDuration = duration
	i.blendElapsed = 0
}

func (i *instance) CancelBlend() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.cancelBlendLocked()
}

func (i *instance) cancelBlendLocked() {
	i.blending = false
	i.blendElapsed = 0
	i.blend = 0
	i.secondClip = i.firstClip
	i.secondTime = i.firstTime
}

func (i *instance) IsBlending() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.blending
}

func (i *instance) BlendProgress() float32 {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.blending {
		return 0
	}
	return i.blend
}

func (i *instance) SetClips(first, second uint32, blend float32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.blending = false
	i.blendElapsed = 0
	i.firstClip = first
	i.secondClip = second
	i.blend = math32.Min(math32.Max(blend, 0), 1)
}

func (i *instance) SetAnimationTime(t float32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.firstTime = t
}

func (i *instance) SetAnimationSpeed(speed float32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.speed = speed
}

func (i *instance) SetHeadLook(leftRight, upDown float32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.headLR = math32.Min(math32.Max(leftRight, -1), 1)
	i.headUD = math32.Min(math32.Max(upDown, -1), 1)
}

func (i *instance) Advance(dt float32, durations []float32) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.rotation = i.rotation.Add(i.rotationSpeed.Mul(dt))

	step := dt * i.speed
	i.firstTime = i.advanceClipTime(i.firstClip, i.firstTime+step, durations)
	i.secondTime = i.advanceClipTime(i.secondClip, i.secondTime+step, durations)

	if !i.blending {
		return
	}
	i.blendElapsed += dt
	progress := i.blendElapsed / i.blendDuration
	if progress >= 1 {
		i.firstClip = i.secondClip
		i.firstTime = i.secondTime
		i.blending = false
		i.blendElapsed = 0
		i.blend = 0
		return
	}
	i.blend = progress
}

// advanceClipTime wraps or clamps t for the given clip. Unknown clips keep t unchanged.
func (i *instance) advanceClipTime(clip uint32, t float32, durations []float32) float32 {
	if int(clip) >= len(durations) {
		return t
	}
	duration := durations[clip]
	if duration <= 0 {
		return 0
	}
	if i.loop {
		return common.WrapTime(t, duration)
	}
	return math32.Min(math32.Max(t, 0), duration)
}

func (i *instance) AnimationState() AnimationState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return AnimationState{
		FirstClip:  i.firstClip,
		SecondClip: i.secondClip,
		Blend:      i.blend,
		FirstTime:  i.firstTime,
		SecondTime: i.secondTime,
		HeadLR:     i.headLR,
		HeadUD:     i.headUD,
	}
}

func (i *instance) Clone() Instance {
	i.mu.Lock()
	defer i.mu.Unlock()
	c := &instance{
		mu:            &sync.Mutex{},
		mdl:           i.mdl,
		position:      i.position,
		rotation:      i.rotation,
		rotationSpeed: i.rotationSpeed,
		scale:         i.scale,
		movement:      i.movement,
		nextMovement:  i.nextMovement,
		firstClip:     i.firstClip,
		secondClip:    i.secondClip,
		firstTime:     i.firstTime,
		secondTime:    i.secondTime,
		blend:         i.blend,
		speed:         i.speed,
		loop:          i.loop,
		blending:      i.blending,
		blendDuration: i.blendDuration,
		blendElapsed:  i.blendElapsed,
		headLR:        i.headLR,
		headUD:        i.headUD,
	}
	c.enabled.Store(i.enabled.Load())
	c.indexPosition.Store(-1)
	return c
}
