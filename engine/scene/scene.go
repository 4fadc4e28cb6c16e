package scene

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-skin/engine/instance"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
)

var (
	// ErrNullInstance is returned when an operation targets the permanent null instance in slot 0.
	ErrNullInstance = errors.New("scene: the null instance cannot be modified")

	// ErrModelInUse is returned by UnloadModel while instances of the model still exist.
	ErrModelInUse = errors.New("scene: model still has instances")

	// ErrInstanceNotFound is returned when no instance has the requested ID.
	ErrInstanceNotFound = errors.New("scene: instance not found")

	// ErrModelNotLoaded is returned when a model was never added or is already unloaded.
	ErrModelNotLoaded = errors.New("scene: model not loaded")

	// ErrNoModel is returned when adding an instance without a model.
	ErrNoModel = errors.New("scene: instance has no model")
)

// NullInstanceID is the ID of the permanent null instance at index position 0.
const NullInstanceID uint64 = 0

// pendingUnload is a model waiting for the frames that may still reference it to drain.
type pendingUnload struct {
	mdl       model.Model
	releaseAt uint64
}

type scene struct {
	mu *sync.RWMutex

	name string

	// instances is the flat list; slot 0 always holds the null instance.
	instances []instance.Instance
	models    []model.Model
	byModel   map[model.Model][]instance.Instance
	registry  map[uint64]instance.Instance
	nextID    uint64

	generation     uint64
	framesInFlight uint64
	pending        []pendingUnload
	unloadHooks    []func(model.Model)

	logger *slog.Logger

	// updatePool fans the per-model instance advance of Update out across workers that
	// persist between frames.
	updatePool    worker.DynamicWorkerPool
	updateWorkers int
}

// Scene holds the animated population: a flat instance list whose slot 0 is a permanently
// present null instance, a per-model grouping kept in sync with it, and the ordered list of
// loaded models. The model order is load order and is the order the animator lays models out
// in its shared buffers.
// Thread-safe for concurrent access.
type Scene interface {
	// Name returns the scene's name.
	//
	// Returns:
	//   - string: the name
	Name() string

	// AddModel loads a model into the scene. Adding an already loaded model is a no-op, and
	// adding a model that is waiting to be unloaded cancels the unload.
	//
	// Parameters:
	//   - m: the model to add
	AddModel(m model.Model)

	// UnloadModel removes a model from the scene. The model's scene reference is dropped only
	// after framesInFlight further generations, so GPU work recorded for earlier frames can
	// still read its resources. Unload hooks run at that point.
	//
	// Parameters:
	//   - m: the model to unload
	//
	// Returns:
	//   - error: ErrModelInUse while instances of the model exist, ErrModelNotLoaded if the model is not loaded
	UnloadModel(m model.Model) error

	// AddInstance places an instance in the scene, loading its model if needed. Instances
	// without an ID get a fresh one. Index positions are renumbered.
	//
	// Parameters:
	//   - inst: the instance to add
	//
	// Returns:
	//   - uint64: the instance ID
	//   - error: ErrNoModel if the instance has no model
	AddInstance(inst instance.Instance) (uint64, error)

	// CloneInstance copies an instance, including its playback state, and adds the copy.
	//
	// Parameters:
	//   - id: the ID of the instance to copy
	//
	// Returns:
	//   - instance.Instance: the added copy
	//   - error: ErrNullInstance for the null instance, ErrInstanceNotFound for unknown IDs
	CloneInstance(id uint64) (instance.Instance, error)

	// RemoveInstance deletes an instance from the flat list and its model group and renumbers
	// the remaining index positions densely.
	//
	// Parameters:
	//   - id: the ID of the instance to remove
	//
	// Returns:
	//   - error: ErrNullInstance for the null instance, ErrInstanceNotFound for unknown IDs
	RemoveInstance(id uint64) error

	// Get returns the instance with the given ID, or nil.
	//
	// Parameters:
	//   - id: the instance ID
	//
	// Returns:
	//   - instance.Instance: the instance or nil
	Get(id uint64) instance.Instance

	// Count returns the number of instances, not counting the null instance.
	//
	// Returns:
	//   - int: the instance count
	Count() int

	// Models returns the loaded models in load order.
	//
	// Returns:
	//   - []model.Model: the loaded models
	Models() []model.Model

	// InstancesOf returns the enabled instances of a model in index order.
	//
	// Parameters:
	//   - m: the model
	//
	// Returns:
	//   - []instance.Instance: the model's enabled instances
	InstancesOf(m model.Model) []instance.Instance

	// Instances returns the flat instance list, including the null instance at index 0.
	//
	// Returns:
	//   - []instance.Instance: all instances by index position
	Instances() []instance.Instance

	// Generation returns the number of completed frames seen by AdvanceGeneration.
	//
	// Returns:
	//   - uint64: the generation
	Generation() uint64

	// AdvanceGeneration is called by the frame driver after the previous frame's fence has
	// signalled. It releases every unloaded model whose barrier has passed.
	//
	// Returns:
	//   - []model.Model: the models released by this call
	AdvanceGeneration() []model.Model

	// PendingUnloads returns the number of models waiting for their generation barrier.
	//
	// Returns:
	//   - int: the pending count
	PendingUnloads() int

	// OnUnload registers a hook that runs when an unloaded model is finally released.
	//
	// Parameters:
	//   - hook: the function to call with the released model
	OnUnload(hook func(model.Model))

	// Update advances the animation playback and movement state of every enabled instance by
	// dt seconds. Models are processed in parallel on the scene's worker pool.
	//
	// Parameters:
	//   - dt: the elapsed time in seconds
	Update(dt float32)
}

var _ Scene = &scene{}

// NewScene creates an empty Scene holding only the null instance.
//
// Parameters:
//   - name: the name of the scene
//   - options: functional options to configure the scene
//
// Returns:
//   - Scene: the newly created scene
func NewScene(name string, options ...SceneBuilderOption) Scene {
	s := &scene{
		mu:             &sync.RWMutex{},
		name:           name,
		byModel:        make(map[model.Model][]instance.Instance),
		registry:       make(map[uint64]instance.Instance),
		nextID:         NullInstanceID + 1,
		framesInFlight: 2,
		updateWorkers:  max(runtime.NumCPU()-1, 1),
		logger:         slog.Default(),
	}

	null := instance.NewInstance(instance.WithID(NullInstanceID), instance.WithEnabled(false))
	null.SetIndexPosition(0)
	s.instances = []instance.Instance{null}

	for _, option := range options {
		option(s)
	}

	// Queue size of 256 leaves headroom over typical loaded model counts.
	s.updatePool = worker.NewDynamicWorkerPool(s.updateWorkers, 256, 1*time.Second)
	return s
}

func (s *scene) Name() string {
	return s.name
}

func (s *scene) AddModel(m model.Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addModelLocked(m)
}

// addModelLocked loads m if needed. Caller must hold s.mu write lock.
func (s *scene) addModelLocked(m model.Model) {
	for i, p := range s.pending {
		if p.mdl == m {
			s.pending = slices.Delete(s.pending, i, i+1)
			s.models = append(s.models, m)
			s.logger.Debug("model unload cancelled", "model", m.Name())
			return
		}
	}
	if slices.Contains(s.models, m) {
		return
	}
	m.Acquire()
	s.models = append(s.models, m)
	s.logger.Debug("model loaded", "model", m.Name(), "capabilities", m.Capabilities().String())
}

func (s *scene) UnloadModel(m model.Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.Index(s.models, m)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrModelNotLoaded, m.Name())
	}
	if n := len(s.byModel[m]); n > 0 {
		return fmt.Errorf("%w: %s has %d instances", ErrModelInUse, m.Name(), n)
	}

	s.models = slices.Delete(s.models, idx, idx+1)
	delete(s.byModel, m)
	s.pending = append(s.pending, pendingUnload{mdl: m, releaseAt: s.generation + s.framesInFlight})
	s.logger.Debug("model unload queued", "model", m.Name(), "release_at", s.generation+s.framesInFlight)
	return nil
}

func (s *scene) AddInstance(inst instance.Instance) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.addInstanceLocked(inst); err != nil {
		return 0, err
	}
	return inst.ID(), nil
}

// addInstanceLocked appends inst to the flat list and its model group. Caller must hold s.mu write lock.
func (s *scene) addInstanceLocked(inst instance.Instance) error {
	mdl := inst.Model()
	if mdl == nil {
		return ErrNoModel
	}
	if inst.ID() == NullInstanceID {
		inst.SetID(s.nextID)
		s.nextID++
	} else if inst.ID() >= s.nextID {
		s.nextID = inst.ID() + 1
	}
	if _, exists := s.registry[inst.ID()]; exists {
		return fmt.Errorf("scene: duplicate instance id %d", inst.ID())
	}

	s.addModelLocked(mdl)
	mdl.Acquire()

	s.registry[inst.ID()] = inst
	s.instances = append(s.instances, inst)
	s.byModel[mdl] = append(s.byModel[mdl], inst)
	s.renumberLocked()
	return nil
}

func (s *scene) CloneInstance(id uint64) (instance.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == NullInstanceID {
		return nil, ErrNullInstance
	}
	src, ok := s.registry[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInstanceNotFound, id)
	}
	c := src.Clone()
	if err := s.addInstanceLocked(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *scene) RemoveInstance(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == NullInstanceID {
		return ErrNullInstance
	}
	inst, ok := s.registry[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrInstanceNotFound, id)
	}
	delete(s.registry, id)

	if idx := inst.IndexPosition(); idx > 0 && idx < len(s.instances) && s.instances[idx] == inst {
		s.instances = slices.Delete(s.instances, idx, idx+1)
	} else {
		s.instances = slices.DeleteFunc(s.instances, func(o instance.Instance) bool { return o == inst })
	}

	mdl := inst.Model()
	group := slices.DeleteFunc(s.byModel[mdl], func(o instance.Instance) bool { return o == inst })
	if len(group) == 0 {
		delete(s.byModel, mdl)
	} else {
		s.byModel[mdl] = group
	}
	mdl.Release()

	inst.SetIndexPosition(-1)
	s.renumberLocked()
	return nil
}

// renumberLocked assigns dense index positions 0..N-1. Caller must hold s.mu write lock.
func (s *scene) renumberLocked() {
	for i, inst := range s.instances {
		inst.SetIndexPosition(i)
	}
}

func (s *scene) Get(id uint64) instance.Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry[id]
}

func (s *scene) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.instances) - 1
}

func (s *scene) Models() []model.Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.models)
}

func (s *scene) InstancesOf(m model.Model) []instance.Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	group := s.byModel[m]
	out := make([]instance.Instance, 0, len(group))
	for _, inst := range group {
		if inst.Enabled() {
			out = append(out, inst)
		}
	}
	return out
}

func (s *scene) Instances() []instance.Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.instances)
}

func (s *scene) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func (s *scene) AdvanceGeneration() []model.Model {
	s.mu.Lock()
	s.generation++
	var released []model.Model
	kept := s.pending[:0]
	for _, p := range s.pending {
		if p.releaseAt <= s.generation {
			released = append(released, p.mdl)
			continue
		}
		kept = append(kept, p)
	}
	s.pending = kept
	hooks := slices.Clone(s.unloadHooks)
	s.mu.Unlock()

	for _, m := range released {
		for _, hook := range hooks {
			hook(m)
		}
		m.Release()
		s.logger.Debug("model released", "model", m.Name(), "refs", m.RefCount())
	}
	return released
}

func (s *scene) PendingUnloads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

func (s *scene) OnUnload(hook func(model.Model)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unloadHooks = append(s.unloadHooks, hook)
}

func (s *scene) Update(dt float32) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// A WaitGroup gives the per-frame barrier; the pool's own Wait blocks until workers
	// idle out, which is too slow for a frame loop.
	var wg sync.WaitGroup
	for id, m := range s.models {
		group := s.byModel[m]
		if len(group) == 0 {
			continue
		}
		durations := m.ClipDurations()
		wg.Add(1)
		s.updatePool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				for _, inst := range group {
					if !inst.Enabled() {
						continue
					}
					inst.Advance(dt, durations)
					inst.CommitMovementState()
				}
				return nil, nil
			},
		})
	}
	wg.Wait()
}
