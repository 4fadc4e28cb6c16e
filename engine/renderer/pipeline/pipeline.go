package pipeline

import (
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// Resources gives a Kernel access to the buffers bound for a dispatch.
type Resources interface {
	// Buffer returns the contents of the buffer bound at a group and binding as a byte slice
	// view. Writes through the slice land in the buffer.
	//
	// Parameters:
	//   - group: the @group index
	//   - binding: the @binding index
	//
	// Returns:
	//   - []byte: the buffer contents, or nil if nothing is bound there
	Buffer(group, binding int) []byte
}

// Kernel is the host implementation of a compute shader entry point. The software backend
// calls it once per workgroup; the kernel loops over the local invocations itself.
//
// Parameters:
//   - workgroup: the workgroup id (@builtin(workgroup_id))
//   - res: the bound buffers
//
// Returns:
//   - error: a kernel failure, which fails the submit
type Kernel func(workgroup [3]uint32, res Resources) error

// pipeline is the implementation of the Pipeline interface.
type pipeline struct {
	// pipelineKey is the unique identifier for this pipeline, used for caching and lookups
	pipelineKey string

	computeShader shader.Shader

	// kernel is the host implementation run by the software backend
	kernel Kernel

	// computePipeline is the device pipeline once registered with the wgpu backend
	computePipeline *wgpu.ComputePipeline
}

// Pipeline defines the interface for a compute pipeline: a compute shader, the host kernel
// that mirrors its entry point, and the device pipeline object once registered.
type Pipeline interface {
	// PipelineKey returns the unique key associated with this pipeline, used for caching and lookups.
	//
	// Returns:
	//   - string: the unique key for this pipeline
	PipelineKey() string

	// Shader returns the compute shader.
	//
	// Returns:
	//   - shader.Shader: the compute shader, or nil if not set
	Shader() shader.Shader

	// Kernel returns the host implementation of the shader's entry point.
	//
	// Returns:
	//   - Kernel: the kernel, or nil if not set
	Kernel() Kernel

	// WorkgroupSize returns the shader's workgroup size, or [1, 1, 1] without a shader.
	//
	// Returns:
	//   - [3]uint32: the workgroup size
	WorkgroupSize() [3]uint32

	// Pipeline returns the underlying *wgpu.ComputePipeline, or nil if the pipeline was not
	// registered with a wgpu backend.
	//
	// Returns:
	//   - *wgpu.ComputePipeline: the device pipeline
	Pipeline() *wgpu.ComputePipeline

	// SetComputePipeline sets the compute pipeline
	//
	// Parameters:
	//   - p: the WebGPU compute pipeline to set
	SetComputePipeline(p *wgpu.ComputePipeline)

	// Release frees the device pipeline, if any.
	Release()
}

var _ Pipeline = &pipeline{}

// NewPipeline is the entry point to create a new compute Pipeline.
//
// Parameters:
//   - pipelineKey: the unique key for this pipeline
//   - opts: a variadic list of PipelineBuilderOption functions to configure the pipeline
//
// Returns:
//   - Pipeline: a new Pipeline instance with the specified configuration
func NewPipeline(pipelineKey string, opts ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		pipelineKey: pipelineKey,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *pipeline) PipelineKey() string {
	return p.pipelineKey
}

func (p *pipeline) Shader() shader.Shader {
	return p.computeShader
}

func (p *pipeline) Kernel() Kernel {
	return p.kernel
}

func (p *pipeline) WorkgroupSize() [3]uint32 {
	if p.computeShader == nil {
		return [3]uint32{1, 1, 1}
	}
	return p.computeShader.WorkgroupSize()
}

func (p *pipeline) Pipeline() *wgpu.ComputePipeline {
	return p.computePipeline
}

func (p *pipeline) SetComputePipeline(cp *wgpu.ComputePipeline) {
	p.computePipeline = cp
}

func (p *pipeline) Release() {
	if p.computePipeline != nil {
		p.computePipeline.Release()
		p.computePipeline = nil
	}
}
