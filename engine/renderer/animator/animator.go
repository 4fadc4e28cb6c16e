package animator

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/instance"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/managed_buffer"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

var (
	// ErrFrameAborted wraps every failure of RunFrame. The failing stage name follows it.
	ErrFrameAborted = errors.New("animator: frame aborted")

	// ErrModelNotAnimated is returned for models without CapabilityAnimated.
	ErrModelNotAnimated = errors.New("animator: model is not animated")

	// ErrUnknownModel is returned when a model has no resources registered.
	ErrUnknownModel = errors.New("animator: unknown model")

	// ErrInstanceNotAnimated is returned when an instance was not part of the last frame.
	ErrInstanceNotAnimated = errors.New("animator: instance not in the last frame")

	// ErrBoneOutOfRange is returned for bone indices at or beyond the model's bone count.
	ErrBoneOutOfRange = errors.New("animator: bone index out of range")

	// ErrBoundingSpheresDisabled is returned by ReadBoundingSpheres when the sphere stage is off.
	ErrBoundingSpheresDisabled = errors.New("animator: bounding spheres disabled")

	// ErrReleased is returned by every operation after Release.
	ErrReleased = errors.New("animator: released")
)

// Frame stage names reported in errors, logs and timings.
const (
	StageNameSync   = "sync"
	StageNameSize   = "size"
	StageNameGrow   = "grow"
	StageNameRebind = "rebind"
	StageNameRecord = "record"
	StageNameSubmit = "submit"
)

// DefaultAABBSamplesPerSecond is the clip sampling density of BuildAABBLookup.
const DefaultAABBSamplesPerSecond float32 = 30

// Population is the live instance set the animator sizes each frame from. The scene
// implements it; Models fixes the workload order.
type Population interface {
	// Models returns the loaded models in load order.
	//
	// Returns:
	//   - []model.Model: the models
	Models() []model.Model

	// InstancesOf returns the instances of a model in index position order.
	//
	// Parameters:
	//   - m: the model
	//
	// Returns:
	//   - []instance.Instance: the instances, enabled or not
	InstancesOf(m model.Model) []instance.Instance
}

// InstanceSpheres holds the bounding spheres of one animated instance, one per bone.
type InstanceSpheres struct {
	Instance instance.Instance
	Model    model.Model
	Spheres  []common.Sphere
}

// FrameTimings records how long each host side stage of RunFrame took.
type FrameTimings struct {
	Sync, Size, Grow, Rebind, Record, Submit time.Duration
}

// Total returns the sum of every stage.
func (t FrameTimings) Total() time.Duration {
	return t.Sync + t.Size + t.Grow + t.Rebind + t.Record + t.Submit
}

// FrameResult describes one submitted frame.
type FrameResult struct {
	Workload Workload
	Signal   renderer.FrameSignal

	// Grown reports whether any buffer was reallocated this frame.
	Grown bool

	// Rebound reports whether any bind group was re-created this frame.
	Rebound bool

	Timings FrameTimings
}

// animator is the implementation of the Animator interface.
type animator struct {
	mu *sync.Mutex

	renderer renderer.Renderer
	logger   *slog.Logger
	stages   *stageSet

	arena  *arena
	lookup *arena

	models map[model.Model]*skeletalModel

	growth           float64
	boundingSpheres  bool
	samplesPerSecond float32

	workload       Workload
	frameInstances [][]instance.Instance
	lastSignal     renderer.FrameSignal

	stagedWriteData []bind_group_provider.BufferWrite

	released bool
}

// Animator defines the public interface for the skeletal animation compute pipeline.
//
// Every frame the Animator sizes the shared arena from the live population, grows any buffer
// that is too small, re-creates the bind groups that reference moved buffers, records the
// transform, matrix multiply and bounding sphere stages separated by barriers, and submits.
// A frame with nothing to animate still submits once, so each RunFrame produces exactly one
// frame signal.
//
// Results stay on the device. The Await-and-Read operations block on the last frame signal
// and copy results back for host consumers.
type Animator interface {
	// RegisterModel creates the GPU resources of an animated model and takes a reference on
	// it. RunFrame registers models lazily, so calling this up front only moves the upload
	// cost. Registering twice is a no-op.
	//
	// Parameters:
	//   - m: the model
	//
	// Returns:
	//   - error: ErrModelNotAnimated, or an allocation failure
	RegisterModel(m model.Model) error

	// UnregisterModel waits for in-flight work, then releases the model's GPU resources and
	// its reference. Unknown models are ignored.
	//
	// Parameters:
	//   - m: the model
	UnregisterModel(m model.Model)

	// RunFrame sizes, grows, rebinds, records and submits one frame for the population.
	// A failure aborts the frame before submit, is logged, and returns ErrFrameAborted
	// wrapping the failing stage and cause.
	//
	// Parameters:
	//   - pop: the live population
	//
	// Returns:
	//   - FrameResult: the workload, frame signal and stage timings
	//   - error: an ErrFrameAborted error
	RunFrame(pop Population) (FrameResult, error)

	// Await blocks until the last submitted frame has completed.
	//
	// Returns:
	//   - error: an execution error of the frame
	Await() error

	// ReadBoundingSpheres awaits the last frame and reads back every instance's bounding spheres.
	//
	// Returns:
	//   - []InstanceSpheres: one entry per animated instance, in workload order
	//   - error: ErrBoundingSpheresDisabled, or a wait or read failure
	ReadBoundingSpheres() ([]InstanceSpheres, error)

	// ReadBoneWorldMatrix awaits the last frame and returns the world transform of one bone of
	// one instance: root * skin * inverse(offset).
	//
	// Parameters:
	//   - inst: an instance animated by the last frame
	//   - bone: the bone index
	//
	// Returns:
	//   - mgl32.Mat4: the bone's world transform
	//   - error: ErrInstanceNotAnimated, ErrBoneOutOfRange, or a wait or read failure
	ReadBoneWorldMatrix(inst instance.Instance, bone uint32) (mgl32.Mat4, error)

	// BuildAABBLookup samples every clip of a model on the device and builds one bounding box
	// per clip enclosing every joint position over the clip. The table is stored on the model.
	//
	// Parameters:
	//   - m: an animated model
	//
	// Returns:
	//   - []common.AABB: one box per clip
	//   - error: ErrModelNotAnimated, or a record, wait or read failure
	BuildAABBLookup(m model.Model) ([]common.AABB, error)

	// Workload returns the workload of the last submitted frame.
	//
	// Returns:
	//   - Workload: the workload
	Workload() Workload

	// BoneMatrixBuffer returns the buffer holding the skinning matrices of the last frame.
	//
	// Returns:
	//   - bind_group_provider.Buffer: the bone matrix buffer
	BoneMatrixBuffer() bind_group_provider.Buffer

	// WorldRootBuffer returns the buffer holding the world root matrix of every instance slot.
	//
	// Returns:
	//   - bind_group_provider.Buffer: the world root buffer
	WorldRootBuffer() bind_group_provider.Buffer

	// LastSignal returns the signal of the last submitted frame, 0 before the first.
	//
	// Returns:
	//   - renderer.FrameSignal: the signal
	LastSignal() renderer.FrameSignal

	// Release waits for in-flight work and frees every GPU resource.
	Release()
}

var _ Animator = &animator{}

// NewAnimator creates an Animator on a renderer. The stage pipelines are registered with the
// renderer and the frame arena is allocated at its minimum size.
//
// Parameters:
//   - r: the renderer executing the stages
//   - options: variadic list of AnimatorBuilderOption functions to configure the Animator
//
// Returns:
//   - Animator: the animator
//   - error: a shader, pipeline or allocation failure
func NewAnimator(r renderer.Renderer, options ...AnimatorBuilderOption) (Animator, error) {
	a := &animator{
		mu:               &sync.Mutex{},
		renderer:         r,
		models:           make(map[model.Model]*skeletalModel),
		growth:           managed_buffer.DefaultGrowthFactor,
		boundingSpheres:  true,
		samplesPerSecond: DefaultAABBSamplesPerSecond,
	}
	for _, opt := range options {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}

	stages, err := newStageSet()
	if err != nil {
		return nil, err
	}
	a.stages = stages
	if err := r.RegisterPipelines(stages.pipelines()...); err != nil {
		return nil, err
	}

	a.arena, err = newArena("animator arena", r, stages, a.growth, a.boundingSpheres)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *animator) RegisterModel(m model.Model) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return ErrReleased
	}
	_, err := a.skeletalModel(m)
	return err
}

// skeletalModel returns the resources of m, creating them on first use. Caller must hold a.mu.
func (a *animator) skeletalModel(m model.Model) (*skeletalModel, error) {
	if s, ok := a.models[m]; ok {
		return s, nil
	}
	if !m.Capabilities().Has(model.CapabilityAnimated) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotAnimated, m.Name())
	}
	s, err := newSkeletalModel(m, a.renderer, a.stages, a.growth)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", m.Name(), err)
	}
	m.Acquire()
	a.models[m] = s
	a.logger.Debug("animator model registered", "model", m.Name(), "bones", m.BoneCount(), "head_move", s.headMove)
	return s, nil
}

func (a *animator) UnregisterModel(m model.Model) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.models[m]
	if !ok {
		return
	}
	if err := a.awaitLocked(); err != nil {
		a.logger.Warn("animator wait before unregister failed", "model", m.Name(), "err", err)
	}
	s.release()
	delete(a.models, m)
	m.Release()
	a.logger.Debug("animator model unregistered", "model", m.Name())
}

func (a *animator) RunFrame(pop Population) (FrameResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var res FrameResult
	if a.released {
		return res, ErrReleased
	}

	stageStart := time.Now()
	lap := func(d *time.Duration) {
		now := time.Now()
		*d = now.Sub(stageStart)
		stageStart = now
	}
	abort := func(stage string, err error) (FrameResult, error) {
		a.logger.Error("animator frame aborted", "stage", stage, "err", err)
		return res, fmt.Errorf("%w: %s: %w", ErrFrameAborted, stage, err)
	}

	// buffers are only released once no queued frame can still reference them
	if err := a.awaitLocked(); err != nil {
		return abort(StageNameSync, err)
	}
	lap(&res.Timings.Sync)

	// Size
	w, live, err := a.size(pop)
	if err != nil {
		return abort(StageNameSize, err)
	}
	res.Workload = w
	lap(&res.Timings.Size)

	// Grow
	grown, err := a.arena.grow(w)
	res.Grown = grown
	if err != nil {
		return abort(StageNameGrow, err)
	}
	for _, e := range w.Entries {
		resized, err := a.models[e.Model].syncSpheres()
		res.Grown = res.Grown || resized
		if err != nil {
			return abort(StageNameGrow, err)
		}
	}
	lap(&res.Timings.Grow)

	// Rebind
	rebound, err := a.arena.rebind(a.renderer, a.stages.arenaLayout)
	if err != nil {
		return abort(StageNameRebind, err)
	}
	res.Rebound = rebound
	for _, e := range w.Entries {
		rebound, err := a.models[e.Model].rebind(a.renderer, BindingModeInstance, a.stages.modelLayout)
		if err != nil {
			return abort(StageNameRebind, err)
		}
		res.Rebound = res.Rebound || rebound
	}
	lap(&res.Timings.Rebind)

	// Record
	a.stageFrame(w, live)
	if err := a.renderer.WriteBuffers(a.StagedWriteData()); err != nil {
		return abort(StageNameRecord, err)
	}
	if err := a.renderer.BeginComputeFrame(); err != nil {
		return abort(StageNameRecord, err)
	}
	if err := a.record(w); err != nil {
		a.renderer.DiscardComputeFrame()
		return abort(StageNameRecord, err)
	}
	lap(&res.Timings.Record)

	// Submit
	signal, err := a.renderer.EndComputeFrame()
	if err != nil {
		a.renderer.DiscardComputeFrame()
		return abort(StageNameSubmit, err)
	}
	lap(&res.Timings.Submit)

	a.workload = w
	a.frameInstances = live
	a.lastSignal = signal
	res.Signal = signal
	return res, nil
}

// size builds the workload from the enabled instances of every animated model.
func (a *animator) size(pop Population) (Workload, [][]instance.Instance, error) {
	var (
		sources []WorkloadSource
		groups  [][]instance.Instance
	)
	for _, m := range pop.Models() {
		if !m.Capabilities().Has(model.CapabilityAnimated) || m.BoneCount() == 0 {
			continue
		}
		var live []instance.Instance
		for _, inst := range pop.InstancesOf(m) {
			if inst.Enabled() {
				live = append(live, inst)
			}
		}
		if len(live) == 0 {
			continue
		}
		if _, err := a.skeletalModel(m); err != nil {
			return Workload{}, nil, err
		}
		sources = append(sources, WorkloadSource{Model: m, BoneCount: m.BoneCount(), InstanceCount: uint32(len(live))})
		groups = append(groups, live)
	}
	return BuildWorkload(sources), groups, nil
}

// stageFrame stages the per-instance animation state, world roots and per-model params.
func (a *animator) stageFrame(w Workload, live [][]instance.Instance) {
	anims := make([][]GPUInstanceAnimation, len(w.Entries))
	roots := make([][]mgl32.Mat4, len(w.Entries))
	for i := range w.Entries {
		anims[i] = make([]GPUInstanceAnimation, len(live[i]))
		roots[i] = make([]mgl32.Mat4, len(live[i]))
		for j, inst := range live[i] {
			anims[i][j] = instanceAnimation(inst.AnimationState())
			roots[i][j] = inst.WorldMatrix()
		}
	}
	a.arena.stageInstances(w, anims, roots)
	a.stagedWriteData = append(a.stagedWriteData, a.arena.StagedWriteData()...)
	for _, e := range w.Entries {
		a.stagedWriteData = append(a.stagedWriteData, a.models[e.Model].stageParams(e))
	}
}

// StagedWriteData returns and clears the pending buffer writes.
func (a *animator) StagedWriteData() []bind_group_provider.BufferWrite {
	w := a.stagedWriteData
	a.stagedWriteData = nil
	return w
}

// instanceAnimation converts an instance snapshot into its GPU layout.
func instanceAnimation(s instance.AnimationState) GPUInstanceAnimation {
	g := GPUInstanceAnimation{
		FirstClip:  s.FirstClip,
		SecondClip: s.SecondClip,
		Blend:      s.Blend,
		FirstTime:  s.FirstTime,
		SecondTime: s.SecondTime,
		HeadLR:     s.HeadLR,
		HeadUD:     s.HeadUD,
	}
	if s.HeadLR != 0 || s.HeadUD != 0 {
		g.Flags |= InstanceFlagHeadLook
	}
	return g
}

// record dispatches every stage stage-major, so each barrier covers every model.
func (a *animator) record(w Workload) error {
	if w.Empty() {
		return nil
	}
	arena := a.arena.provider
	for _, e := range w.Entries {
		s := a.models[e.Model]
		providers := []bind_group_provider.BindGroupProvider{arena, s.provider(BindingModeInstance)}
		if err := a.renderer.DispatchCompute(transformFor(s.headMove).PipelineKey(), providers, e.DispatchGroups()); err != nil {
			return err
		}
	}
	if err := a.renderer.Barrier(); err != nil {
		return err
	}
	for _, e := range w.Entries {
		providers := []bind_group_provider.BindGroupProvider{arena, a.models[e.Model].provider(BindingModeInstance)}
		if err := a.renderer.DispatchCompute(StageMatmul.PipelineKey(), providers, e.DispatchGroups()); err != nil {
			return err
		}
	}
	if err := a.renderer.Barrier(); err != nil {
		return err
	}
	if !a.boundingSpheres {
		return nil
	}
	for _, e := range w.Entries {
		providers := []bind_group_provider.BindGroupProvider{arena, a.models[e.Model].provider(BindingModeInstance)}
		if err := a.renderer.DispatchCompute(StageBoundingSphere.PipelineKey(), providers, e.DispatchGroups()); err != nil {
			return err
		}
	}
	return a.renderer.Barrier()
}

func (a *animator) Await() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.awaitLocked()
}

// awaitLocked waits on the last frame signal. Caller must hold a.mu.
func (a *animator) awaitLocked() error {
	if a.lastSignal == 0 {
		return nil
	}
	return a.renderer.Wait(a.lastSignal)
}

func (a *animator) ReadBoundingSpheres() ([]InstanceSpheres, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return nil, ErrReleased
	}
	if !a.boundingSpheres {
		return nil, ErrBoundingSpheresDisabled
	}
	if err := a.awaitLocked(); err != nil {
		return nil, err
	}
	w := a.workload
	if w.Empty() {
		return nil, nil
	}

	data, err := a.renderer.ReadBuffer(a.arena.spheres.Buffer(), 0, w.SphereBytes())
	if err != nil {
		return nil, fmt.Errorf("read bounding spheres: %w", err)
	}
	raw := common.BytesToSlice[[4]float32](data)

	var out []InstanceSpheres
	for i, e := range w.Entries {
		for j, inst := range a.frameInstances[i] {
			spheres := make([]common.Sphere, e.BoneCount)
			for b := range e.BoneCount {
				spheres[b] = common.SphereFromVec4(raw[e.MatrixIndex(uint32(j), b)])
			}
			out = append(out, InstanceSpheres{Instance: inst, Model: e.Model, Spheres: spheres})
		}
	}
	return out, nil
}

func (a *animator) ReadBoneWorldMatrix(inst instance.Instance, bone uint32) (mgl32.Mat4, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return mgl32.Mat4{}, ErrReleased
	}

	entry, pos, ok := a.locate(inst)
	if !ok {
		return mgl32.Mat4{}, fmt.Errorf("%w: instance %d", ErrInstanceNotAnimated, inst.ID())
	}
	if bone >= entry.BoneCount {
		return mgl32.Mat4{}, fmt.Errorf("%w: bone %d of %d", ErrBoneOutOfRange, bone, entry.BoneCount)
	}
	if err := a.awaitLocked(); err != nil {
		return mgl32.Mat4{}, err
	}

	skinData, err := a.renderer.ReadBuffer(a.arena.bones.Buffer(), uint64(entry.MatrixIndex(pos, bone))*MatrixSize, MatrixSize)
	if err != nil {
		return mgl32.Mat4{}, fmt.Errorf("read bone matrix: %w", err)
	}
	rootData, err := a.renderer.ReadBuffer(a.arena.roots.Buffer(), uint64(entry.InstanceOffset+pos)*MatrixSize, MatrixSize)
	if err != nil {
		return mgl32.Mat4{}, fmt.Errorf("read world root: %w", err)
	}
	skin := common.BytesToSlice[mgl32.Mat4](skinData)[0]
	root := common.BytesToSlice[mgl32.Mat4](rootData)[0]
	offset := entry.Model.BoneOffsetMatrices()[bone]
	return root.Mul4(skin).Mul4(offset.Inv()), nil
}

// locate finds the workload entry and position of an instance in the last frame.
func (a *animator) locate(inst instance.Instance) (WorkloadEntry, uint32, bool) {
	for i, e := range a.workload.Entries {
		if e.Model != inst.Model() {
			continue
		}
		if pos := slices.Index(a.frameInstances[i], inst); pos >= 0 {
			return e, uint32(pos), true
		}
	}
	return WorkloadEntry{}, 0, false
}

// sampleTimes returns the times BuildAABBLookup samples a clip at. A clip without duration
// is sampled once; otherwise both ends are always included.
func sampleTimes(duration, perSecond float32) []float32 {
	if duration <= 0 {
		return []float32{0}
	}
	n := max(2, int(math32.Ceil(duration*perSecond))+1)
	times := make([]float32, n)
	for k := range times {
		times[k] = duration * float32(k) / float32(n-1)
	}
	// the last sample lands exactly on the duration, which wraps to 0; sample just before it
	times[n-1] = math32.Nextafter(duration, 0)
	return times
}

func (a *animator) BuildAABBLookup(m model.Model) ([]common.AABB, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return nil, ErrReleased
	}
	s, err := a.skeletalModel(m)
	if err != nil {
		return nil, err
	}

	durations := m.ClipDurations()
	var (
		anims  []GPUInstanceAnimation
		clipOf []int
	)
	for c, d := range durations {
		for _, t := range sampleTimes(d, a.samplesPerSecond) {
			anims = append(anims, GPUInstanceAnimation{FirstClip: uint32(c), SecondClip: uint32(c), FirstTime: t, SecondTime: t})
			clipOf = append(clipOf, c)
		}
	}
	if len(anims) == 0 {
		m.SetAABBLookup(nil)
		return nil, nil
	}

	// the lookup arena is separate so a build never disturbs the last frame's results
	if a.lookup == nil {
		a.lookup, err = newArena("animator lookup arena", a.renderer, a.stages, a.growth, false)
		if err != nil {
			return nil, err
		}
	}
	w := BuildWorkload([]WorkloadSource{{Model: m, BoneCount: m.BoneCount(), InstanceCount: uint32(len(anims))}})
	e := w.Entries[0]

	// the params buffer is shared with the frame path; make sure the last frame has read it
	if err := a.awaitLocked(); err != nil {
		return nil, err
	}
	if _, err := a.lookup.grow(w); err != nil {
		return nil, err
	}
	if _, err := a.lookup.rebind(a.renderer, a.stages.arenaLayout); err != nil {
		return nil, err
	}
	if _, err := s.rebind(a.renderer, BindingModeEmptyOffset, a.stages.modelLayout); err != nil {
		return nil, err
	}

	a.lookup.stageInstances(w, [][]GPUInstanceAnimation{anims}, nil)
	writes := append(a.lookup.StagedWriteData(), s.stageParams(e))
	if err := a.renderer.WriteBuffers(writes); err != nil {
		return nil, err
	}

	if err := a.renderer.BeginComputeFrame(); err != nil {
		return nil, err
	}
	providers := []bind_group_provider.BindGroupProvider{a.lookup.provider, s.provider(BindingModeEmptyOffset)}
	record := func() error {
		// look offsets are zero for virtual instances, so the plain variant is exact
		if err := a.renderer.DispatchCompute(StageTransform.PipelineKey(), providers, e.DispatchGroups()); err != nil {
			return err
		}
		if err := a.renderer.Barrier(); err != nil {
			return err
		}
		if err := a.renderer.DispatchCompute(StageMatmul.PipelineKey(), providers, e.DispatchGroups()); err != nil {
			return err
		}
		return a.renderer.Barrier()
	}
	if err := record(); err != nil {
		a.renderer.DiscardComputeFrame()
		return nil, err
	}
	signal, err := a.renderer.EndComputeFrame()
	if err != nil {
		a.renderer.DiscardComputeFrame()
		return nil, err
	}
	a.lastSignal = signal
	if err := a.renderer.Wait(signal); err != nil {
		return nil, err
	}

	data, err := a.renderer.ReadBuffer(a.lookup.bones.Buffer(), 0, uint64(e.InstanceCount*e.BoneCount)*MatrixSize)
	if err != nil {
		return nil, fmt.Errorf("read lookup matrices: %w", err)
	}
	nodes := common.BytesToSlice[mgl32.Mat4](data)

	table := make([]common.AABB, len(durations))
	for j, c := range clipOf {
		for b := range e.BoneCount {
			n := nodes[e.MatrixIndex(uint32(j), b)]
			table[c] = table[c].Extend(n.Col(3).Vec3())
		}
	}
	m.SetAABBLookup(table)
	a.logger.Debug("aabb lookup built", "model", m.Name(), "clips", len(table), "samples", len(anims))
	return table, nil
}

func (a *animator) Workload() Workload {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.workload
}

func (a *animator) BoneMatrixBuffer() bind_group_provider.Buffer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.arena.bones.Buffer()
}

func (a *animator) WorldRootBuffer() bind_group_provider.Buffer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.arena.roots.Buffer()
}

func (a *animator) LastSignal() renderer.FrameSignal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSignal
}

func (a *animator) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return
	}
	if err := a.awaitLocked(); err != nil {
		a.logger.Warn("animator wait before release failed", "err", err)
	}
	for m, s := range a.models {
		s.release()
		m.Release()
		delete(a.models, m)
	}
	a.arena.release()
	if a.lookup != nil {
		a.lookup.release()
	}
	a.released = true
}
