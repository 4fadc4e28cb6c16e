package model

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/go-gl/mathgl/mgl32"
)

// model is the implementation of the Model interface.
type model struct {
	mu *sync.Mutex

	name          string
	skeleton      *Skeleton
	animations    []*AnimationClip
	triangleCount int
	headMove      HeadMoveMapping
	capabilities  Capability

	parents       []int32
	offsets       []mgl32.Mat4
	bindPositions []mgl32.Vec3
	packed        PackedAnimation

	defaultRadiusScale float32
	sphereAdjustments  []SphereAdjustment
	sphereVersion      uint64

	aabbLookup []common.AABB
	refCount   int

	buildErr error
}

// Model defines the interface for a loaded skeletal model.
// A Model is the shared, read-only (after load) description of a skeleton: ordered bones with
// parent links and offset matrices, animation clips, an optional head movement clip mapping and
// per-bone bounding sphere tuning. Bone order is fixed at construction and is the indexing basis
// for every per-bone GPU buffer slice.
type Model interface {
	// Name retrieves the model identifier.
	//
	// Returns:
	//   - string: the model name
	Name() string

	// Skeleton retrieves the bone hierarchy for this model.
	// Returns nil for static (non-skinned) models.
	//
	// Returns:
	//   - *Skeleton: the skeleton or nil
	Skeleton() *Skeleton

	// BoneCount returns the number of bones in the skeleton.
	//
	// Returns:
	//   - uint32: the bone count
	BoneCount() uint32

	// ParentIndices returns the parent index of every bone, -1 for roots.
	//
	// Returns:
	//   - []int32: parent indices in bone order
	ParentIndices() []int32

	// BoneOffsetMatrices returns the bind pose offset (inverse bind) matrix of every bone.
	//
	// Returns:
	//   - []mgl32.Mat4: offset matrices in bone order
	BoneOffsetMatrices() []mgl32.Mat4

	// BindPosePositions returns each bone's joint position in model space at bind pose.
	//
	// Returns:
	//   - []mgl32.Vec3: joint positions in bone order
	BindPosePositions() []mgl32.Vec3

	// Animations retrieves all animation clips bundled with this model.
	//
	// Returns:
	//   - []*AnimationClip: the animation clips
	Animations() []*AnimationClip

	// AnimationCount returns the number of available animation clips.
	//
	// Returns:
	//   - int: the animation count
	AnimationCount() int

	// AnimationNames returns the names of all animation clips.
	//
	// Returns:
	//   - []string: the animation clip names
	AnimationNames() []string

	// GetAnimationIndex returns the index of an animation by name, or -1 if not found.
	//
	// Parameters:
	//   - name: the animation clip name to search for
	//
	// Returns:
	//   - int: the animation index, or -1 if not found
	GetAnimationIndex(name string) int

	// ClipDurations returns the duration of every clip in seconds, in clip order.
	//
	// Returns:
	//   - []float32: the clip durations
	ClipDurations() []float32

	// TriangleCount returns the number of triangles of the model's mesh.
	//
	// Returns:
	//   - int: the triangle count
	TriangleCount() int

	// HeadMoveMapping returns the look direction to clip mapping.
	//
	// Returns:
	//   - HeadMoveMapping: the mapping, with NoClip for unmapped directions
	HeadMoveMapping() HeadMoveMapping

	// Capabilities returns the capability bitset resolved at construction.
	//
	// Returns:
	//   - Capability: the capabilities
	Capabilities() Capability

	// PackedAnimation returns the flattened clip, channel, keyframe, rest pose and parent data
	// uploaded to the transform stage.
	//
	// Returns:
	//   - PackedAnimation: the packed data
	PackedAnimation() PackedAnimation

	// SphereAdjustments returns a copy of the per-bone bounding sphere tuning.
	//
	// Returns:
	//   - []SphereAdjustment: one adjustment per bone
	SphereAdjustments() []SphereAdjustment

	// SetSphereAdjustment replaces the bounding sphere tuning of one bone and bumps the sphere version.
	//
	// Parameters:
	//   - bone: the bone index
	//   - adj: the new adjustment
	//
	// Returns:
	//   - error: an error if bone is out of range
	SetSphereAdjustment(bone int, adj SphereAdjustment) error

	// SphereVersion returns a counter that changes every time the sphere tuning changes.
	// Consumers compare it against the version they uploaded to decide whether to re-upload.
	//
	// Returns:
	//   - uint64: the version
	SphereVersion() uint64

	// AABBLookup returns the per-clip bounding boxes built by the animator, or nil if not built yet.
	//
	// Returns:
	//   - []common.AABB: one box per clip
	AABBLookup() []common.AABB

	// SetAABBLookup stores the per-clip bounding boxes.
	//
	// Parameters:
	//   - table: one box per clip
	SetAABBLookup(table []common.AABB)

	// Acquire adds a reference to the model.
	//
	// Returns:
	//   - int: the reference count after the call
	Acquire() int

	// Release drops a reference to the model. Releasing an unreferenced model is a no-op.
	//
	// Returns:
	//   - int: the reference count after the call
	Release() int

	// RefCount returns the current reference count.
	//
	// Returns:
	//   - int: the reference count
	RefCount() int
}

var _ Model = &model{}

// NewModel creates a new Model instance with the specified options applied.
// The skeleton is validated and the capability bitset, packed animation data and bind pose
// positions are derived once here. A skeleton whose parents do not precede their children
// cannot be evaluated and causes a panic.
//
// Parameters:
//   - options: a variadic list of ModelBuilderOption functions to configure the Model
//
// Returns:
//   - Model: a new instance of Model configured with the provided options
func NewModel(options ...ModelBuilderOption) Model {
	m := &model{
		mu:                 &sync.Mutex{},
		headMove:           UnmappedHeadMove(),
		defaultRadiusScale: 1,
	}
	for _, opt := range options {
		opt(m)
	}
	if m.buildErr != nil {
		panic(fmt.Sprintf("model: %s: %v", m.name, m.buildErr))
	}

	var bones []Bone
	if m.skeleton != nil {
		bones = m.skeleton.Bones
	}
	m.parents = make([]int32, len(bones))
	m.offsets = make([]mgl32.Mat4, len(bones))
	m.bindPositions = make([]mgl32.Vec3, len(bones))
	for i, b := range bones {
		m.parents[i] = b.ParentIndex
		m.offsets[i] = b.OffsetMatrix
		m.bindPositions[i] = bindPosition(b.OffsetMatrix)
	}

	if len(m.sphereAdjustments) != len(bones) {
		adjustments := make([]SphereAdjustment, len(bones))
		for i := range adjustments {
			if i < len(m.sphereAdjustments) {
				adjustments[i] = m.sphereAdjustments[i]
				continue
			}
			adjustments[i] = SphereAdjustment{RadiusScale: m.defaultRadiusScale}
		}
		m.sphereAdjustments = adjustments
	}

	m.capabilities = resolveCapabilities(len(bones), len(m.animations), m.triangleCount, m.headMove)
	m.packed = PackAnimation(m.skeleton, m.animations)
	return m
}

// bindPosition recovers the bind pose joint position from an offset matrix.
func bindPosition(offset mgl32.Mat4) mgl32.Vec3 {
	if offset.Det() == 0 {
		return mgl32.Vec3{}
	}
	return offset.Inv().Col(3).Vec3()
}

func (m *model) Name() string {
	return m.name
}

func (m *model) Skeleton() *Skeleton {
	return m.skeleton
}

func (m *model) BoneCount() uint32 {
	return uint32(len(m.parents))
}

func (m *model) ParentIndices() []int32 {
	return m.parents
}

func (m *model) BoneOffsetMatrices() []mgl32.Mat4 {
	return m.offsets
}

func (m *model) BindPosePositions() []mgl32.Vec3 {
	return m.bindPositions
}

func (m *model) Animations() []*AnimationClip {
	return m.animations
}

func (m *model) AnimationCount() int {
	return len(m.animations)
}

func (m *model) AnimationNames() []string {
	names := make([]string, len(m.animations))
	for i, anim := range m.animations {
		names[i] = anim.Name
	}
	return names
}

func (m *model) GetAnimationIndex(name string) int {
	for i, anim := range m.animations {
		if anim.Name == name {
			return i
		}
	}
	return -1
}

func (m *model) ClipDurations() []float32 {
	durations := make([]float32, len(m.animations))
	for i, anim := range m.animations {
		durations[i] = anim.Duration
	}
	return durations
}

func (m *model) TriangleCount() int {
	return m.triangleCount
}

func (m *model) HeadMoveMapping() HeadMoveMapping {
	return m.headMove
}

func (m *model) Capabilities() Capability {
	return m.capabilities
}

func (m *model) PackedAnimation() PackedAnimation {
	return m.packed
}

func (m *model) SphereAdjustments() []SphereAdjustment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SphereAdjustment, len(m.sphereAdjustments))
	copy(out, m.sphereAdjustments)
	return out
}

func (m *model) SetSphereAdjustment(bone int, adj SphereAdjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bone < 0 || bone >= len(m.sphereAdjustments) {
		return fmt.Errorf("model %s: bone %d out of range [0, %d)", m.name, bone, len(m.sphereAdjustments))
	}
	m.sphereAdjustments[bone] = adj
	m.sphereVersion++
	return nil
}

func (m *model) SphereVersion() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sphereVersion
}

func (m *model) AABBLookup() []common.AABB {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aabbLookup
}

func (m *model) SetAABBLookup(table []common.AABB) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aabbLookup = table
}

func (m *model) Acquire() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refCount++
	return m.refCount
}

func (m *model) Release() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refCount > 0 {
		m.refCount--
	}
	return m.refCount
}

func (m *model) RefCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refCount
}
