package renderer

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	pipelineCache map[string]pipeline.Pipeline

	backendType RendererBackendType
	backend     RendererBackend

	logger *slog.Logger

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	workers              int
}

// Renderer defines the interface for the compute system.
//
// This is a high-level API designed to simplify GPU compute work into a streamlined and idiomatic flow.
// The Renderer manages a cache of compute pipelines, allowing for easy retrieval and management of these resources.
// The Renderer also implements a backend which allows for multiple backend API implementations to exist.
type Renderer interface {
	// Pipeline retrieves the cached Pipeline associated with the given key.
	// If the Pipeline does not exist, this will return nil.
	//
	// Parameters:
	//   - key: the unique identifier for the Pipeline to retrieve
	//
	// Returns:
	//   - pipeline.Pipeline: the Pipeline associated with the key, or nil if not found
	Pipeline(key string) pipeline.Pipeline

	// Pipelines retrieves a copy of the cache of Pipelines.
	//
	// Returns:
	//   - map[string]pipeline.Pipeline: a map of pipeline keys to their corresponding Pipeline objects
	Pipelines() map[string]pipeline.Pipeline

	// RegisterPipelines registers one or more pipelines by creating the corresponding backend
	// pipeline objects, then caching them by PipelineKey.
	// Pipelines whose keys are already registered are skipped to avoid duplicate GPU resource creation.
	//
	// Parameters:
	//   - pipelines: the Pipelines to register
	//
	// Returns:
	//   - error: an error if pipeline creation fails
	RegisterPipelines(pipelines ...pipeline.Pipeline) error

	// CreateBuffer allocates a zeroed buffer that can be bound through a BindGroupProvider.
	//
	// Parameters:
	//   - label: the debug label
	//   - size: the size in bytes, greater than zero
	//   - usage: the wgpu usage flags
	//
	// Returns:
	//   - bind_group_provider.Buffer: the buffer
	//   - error: an error if allocation failed
	CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (bind_group_provider.Buffer, error)

	// InitBindGroup (re)creates the provider's bind group from its current buffers.
	//
	// Parameters:
	//   - provider: the provider to bind
	//   - descriptor: the layout descriptor of the provider's group
	//
	// Returns:
	//   - error: an error if a binding has no buffer or creation failed
	InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor) error

	// RebindIfDirty recreates the provider's bind group only if it is dirty or has none.
	//
	// Parameters:
	//   - provider: the provider to check
	//   - descriptor: the layout descriptor of the provider's group
	//
	// Returns:
	//   - bool: true if a new bind group was created
	//   - error: an error if creation failed
	RebindIfDirty(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor) (bool, error)

	// WriteBuffer queues a write of data into buf at offset.
	//
	// Parameters:
	//   - buf: the destination buffer
	//   - offset: the byte offset
	//   - data: the bytes to write
	//
	// Returns:
	//   - error: ErrBufferReleased or ErrOutOfBounds
	WriteBuffer(buf bind_group_provider.Buffer, offset uint64, data []byte) error

	// WriteBuffers queues each write against the buffer bound at its provider binding.
	//
	// Parameters:
	//   - writes: the writes to queue, in order
	//
	// Returns:
	//   - error: the first failed write; earlier writes stay queued
	WriteBuffers(writes []bind_group_provider.BufferWrite) error

	// BeginComputeFrame starts recording a compute frame.
	//
	// Returns:
	//   - error: ErrComputeFrameOpen if a frame is already being recorded
	BeginComputeFrame() error

	// DispatchCompute records a dispatch of the pipeline registered under pipelineKey.
	//
	// Parameters:
	//   - pipelineKey: the registered pipeline key
	//   - providers: one provider per bind group the pipeline uses
	//   - workGroupCount: the number of workgroups in x, y and z
	//
	// Returns:
	//   - error: ErrPipelineNotFound, ErrNoComputeFrame or ErrStaleBindGroup
	DispatchCompute(pipelineKey string, providers []bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error

	// Barrier orders every dispatch recorded so far before every later one.
	//
	// Returns:
	//   - error: ErrNoComputeFrame outside a frame
	Barrier() error

	// EndComputeFrame submits the recorded frame, even when it is empty.
	//
	// Returns:
	//   - FrameSignal: the signal that completes with the frame
	//   - error: ErrNoComputeFrame outside a frame
	EndComputeFrame() (FrameSignal, error)

	// DiscardComputeFrame drops the frame being recorded without submitting it. Used when
	// recording fails part way; the signal count does not change.
	DiscardComputeFrame()

	// Wait blocks until signal has completed.
	//
	// Parameters:
	//   - signal: a value returned by EndComputeFrame
	//
	// Returns:
	//   - error: the execution error of any frame up to the signal
	Wait(signal FrameSignal) error

	// ReadBuffer copies size bytes at offset out of buf once all submitted work is done.
	//
	// Parameters:
	//   - buf: the source buffer
	//   - offset: the byte offset
	//   - size: the number of bytes
	//
	// Returns:
	//   - []byte: the copied bytes
	//   - error: ErrBufferReleased or ErrOutOfBounds
	ReadBuffer(buf bind_group_provider.Buffer, offset, size uint64) ([]byte, error)

	// SignalCount returns the number of frames submitted so far.
	//
	// Returns:
	//   - uint64: the submit count
	SignalCount() uint64

	// BackendType returns the backend this Renderer was created with.
	//
	// Returns:
	//   - RendererBackendType: the backend type
	BackendType() RendererBackendType

	// Release frees every pipeline and backend object.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a new Renderer instance with the specified backend type and options.
//
// Parameters:
//   - backendType: the type of compute backend to use
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: a new instance of Renderer configured with the specified backend and options
func NewRenderer(backendType RendererBackendType, options ...RendererBuilderOption) Renderer {
	r := &renderer{
		mu:            &sync.Mutex{},
		pipelineCache: make(map[string]pipeline.Pipeline),
		backendType:   backendType,
		workers:       runtime.NumCPU(),
	}

	// Apply options first so config flags (e.g. forceFallbackAdapter) are
	// available before the backend requests a GPU adapter.
	for _, opt := range options {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}

	switch backendType {
	case BackendTypeSoftware:
		r.backend = newSoftwareRendererBackend(r.workers, r.logger)
	case BackendTypeWGPU:
		fallthrough
	default:
		r.backendType = BackendTypeWGPU
		r.backend = newWGPURendererBackend(r.forceFallbackAdapter, r.logger)
	}

	// pipelines supplied through options still need backend objects
	pending := r.pipelineCache
	r.pipelineCache = make(map[string]pipeline.Pipeline, len(pending))
	for _, p := range pending {
		if err := r.RegisterPipelines(p); err != nil {
			r.logger.Error("failed to register pipeline", "pipeline", p.PipelineKey(), "err", err)
		}
	}
	return r
}

func (r *renderer) Pipeline(key string) pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache[key]
}

func (r *renderer) Pipelines() map[string]pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]pipeline.Pipeline, len(r.pipelineCache))
	for k, p := range r.pipelineCache {
		out[k] = p
	}
	return out
}

func (r *renderer) RegisterPipelines(pipelines ...pipeline.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pipelines {
		key := p.PipelineKey()
		if _, exists := r.pipelineCache[key]; exists {
			continue
		}
		if err := r.backend.RegisterComputePipeline(p); err != nil {
			return fmt.Errorf("register pipeline %q: %w", key, err)
		}
		r.pipelineCache[key] = p
	}
	return nil
}

func (r *renderer) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (bind_group_provider.Buffer, error) {
	return r.backend.CreateBuffer(label, size, usage)
}

func (r *renderer) InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor) error {
	return r.backend.InitBindGroup(provider, descriptor)
}

func (r *renderer) RebindIfDirty(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor) (bool, error) {
	if !provider.Dirty() && provider.BindGroup() != nil {
		return false, nil
	}
	if err := r.backend.InitBindGroup(provider, descriptor); err != nil {
		return false, err
	}
	return true, nil
}

func (r *renderer) WriteBuffer(buf bind_group_provider.Buffer, offset uint64, data []byte) error {
	return r.backend.WriteBuffer(buf, offset, data)
}

func (r *renderer) WriteBuffers(writes []bind_group_provider.BufferWrite) error {
	for _, w := range writes {
		target := w.Target()
		if target == nil {
			return fmt.Errorf("%s: no buffer bound at binding %d", w.Provider.Label(), w.Binding)
		}
		if err := r.backend.WriteBuffer(target, w.Offset, w.Data); err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) BeginComputeFrame() error {
	return r.backend.BeginComputeFrame()
}

func (r *renderer) DispatchCompute(pipelineKey string, providers []bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error {
	r.mu.Lock()
	p, exists := r.pipelineCache[pipelineKey]
	r.mu.Unlock()
	if !exists {
		return fmt.Errorf("%w: %s", ErrPipelineNotFound, pipelineKey)
	}
	return r.backend.DispatchCompute(p, providers, workGroupCount)
}

func (r *renderer) Barrier() error {
	return r.backend.Barrier()
}

func (r *renderer) EndComputeFrame() (FrameSignal, error) {
	return r.backend.EndComputeFrame()
}

func (r *renderer) DiscardComputeFrame() {
	r.backend.DiscardComputeFrame()
}

func (r *renderer) Wait(signal FrameSignal) error {
	return r.backend.Wait(signal)
}

func (r *renderer) ReadBuffer(buf bind_group_provider.Buffer, offset, size uint64) ([]byte, error) {
	return r.backend.ReadBuffer(buf, offset, size)
}

func (r *renderer) SignalCount() uint64 {
	return r.backend.SignalCount()
}

func (r *renderer) BackendType() RendererBackendType {
	return r.backendType
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, p := range r.pipelineCache {
		p.Release()
		delete(r.pipelineCache, key)
	}
	r.backend.Release()
}
