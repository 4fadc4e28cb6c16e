package renderer

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

// RendererBackendType identifies the compute backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based compute backend.
	BackendTypeWGPU RendererBackendType = iota

	// BackendTypeSoftware selects the host backend that runs each pipeline's Kernel on a
	// worker pool behind an asynchronous queue.
	BackendTypeSoftware
)

func (t RendererBackendType) String() string {
	switch t {
	case BackendTypeWGPU:
		return "wgpu"
	case BackendTypeSoftware:
		return "software"
	default:
		return "unknown"
	}
}

// ParseBackendType maps a configuration string to a RendererBackendType.
//
// Parameters:
//   - s: "wgpu" or "software"
//
// Returns:
//   - RendererBackendType: the backend type
//   - bool: false if the string names no backend
func ParseBackendType(s string) (RendererBackendType, bool) {
	switch s {
	case "wgpu", "":
		return BackendTypeWGPU, true
	case "software":
		return BackendTypeSoftware, true
	default:
		return BackendTypeWGPU, false
	}
}

// FrameSignal is the fence value signalled when a submitted compute frame completes.
// Values increase monotonically from 1; 0 is never signalled and Wait(0) returns at once.
type FrameSignal uint64

var (
	// ErrNoComputeFrame is returned when a dispatch, barrier or end is issued outside
	// BeginComputeFrame / EndComputeFrame.
	ErrNoComputeFrame = errors.New("no compute frame in progress")

	// ErrComputeFrameOpen is returned by BeginComputeFrame while a frame is still being recorded.
	ErrComputeFrameOpen = errors.New("compute frame already in progress")

	// ErrPipelineNotFound is returned when a dispatch names a pipeline that was never registered.
	ErrPipelineNotFound = errors.New("compute pipeline not found")

	// ErrStaleBindGroup is returned when a dispatch uses a bind group that is dirty or that
	// references a released buffer.
	ErrStaleBindGroup = errors.New("stale bind group")

	// ErrBufferReleased is returned when writing to or reading from a released buffer.
	ErrBufferReleased = errors.New("buffer released")

	// ErrOutOfBounds is returned when a write or read exceeds a buffer's size.
	ErrOutOfBounds = errors.New("buffer access out of bounds")

	// ErrRendererReleased is returned by every operation after Release.
	ErrRendererReleased = errors.New("renderer released")
)

// RendererBackend is the top-level backend interface for the Renderer.
// It embeds the compute backend interface both GPU API implementations satisfy.
type RendererBackend interface {
	computeBackend
}

type computeBackend interface {
	// RegisterComputePipeline creates the backend objects for a compute pipeline.
	//
	// Parameters:
	//   - p: the pipeline to register
	//
	// Returns:
	//   - error: an error if the pipeline could not be created, otherwise nil
	RegisterComputePipeline(p pipeline.Pipeline) error

	// CreateBuffer allocates a buffer of the given size. Contents start zeroed.
	//
	// Parameters:
	//   - label: the debug label
	//   - size: the size in bytes
	//   - usage: the wgpu usage flags; the software backend ignores them
	//
	// Returns:
	//   - bind_group_provider.Buffer: the buffer
	//   - error: an error if allocation failed
	CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (bind_group_provider.Buffer, error)

	// InitBindGroup creates the bind group for a provider from its bound buffers and stores it
	// on the provider, which clears the provider's dirty flag.
	//
	// Parameters:
	//   - provider: the provider holding a buffer for every binding in the descriptor
	//   - descriptor: the layout descriptor of the provider's group
	//
	// Returns:
	//   - error: an error if a binding has no buffer or creation failed
	InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor) error

	// WriteBuffer queues a write of data into buf at offset. Writes are ordered with submits.
	//
	// Parameters:
	//   - buf: the destination buffer
	//   - offset: the byte offset
	//   - data: the bytes to write; the backend copies them before returning
	//
	// Returns:
	//   - error: ErrBufferReleased or ErrOutOfBounds
	WriteBuffer(buf bind_group_provider.Buffer, offset uint64, data []byte) error

	// BeginComputeFrame starts recording a compute frame.
	BeginComputeFrame() error

	// DispatchCompute records a dispatch of p with the given bind groups (one provider per group,
	// in group order) into the current frame.
	DispatchCompute(p pipeline.Pipeline, providers []bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error

	// Barrier records that every dispatch recorded so far must complete before any later one starts.
	Barrier() error

	// EndComputeFrame submits the recorded frame, even if it contains no dispatch, and returns
	// the signal that completes with it.
	EndComputeFrame() (FrameSignal, error)

	// DiscardComputeFrame drops the frame being recorded without submitting it. No-op outside a frame.
	DiscardComputeFrame()

	// Wait blocks until signal has completed and returns the error of any frame up to it.
	Wait(signal FrameSignal) error

	// ReadBuffer waits for all submitted work and copies size bytes from offset out of buf.
	ReadBuffer(buf bind_group_provider.Buffer, offset, size uint64) ([]byte, error)

	// SignalCount returns the number of frames submitted so far.
	SignalCount() uint64

	// Release frees every backend object.
	Release()
}
