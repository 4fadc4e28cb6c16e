package pipeline

import (
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/shader"
)

// PipelineBuilderOption is a functional option used to configure a Pipeline during construction.
type PipelineBuilderOption func(*pipeline)

// WithComputeShader sets the compute shader for this pipeline.
//
// Parameters:
//   - s: the compute shader to use for this pipeline
//
// Returns:
//   - PipelineBuilderOption: a function that sets the compute shader for this pipeline
func WithComputeShader(s shader.Shader) PipelineBuilderOption {
	return func(p *pipeline) {
		p.computeShader = s
	}
}

// WithKernel sets the host kernel run by the software backend for this pipeline.
//
// Parameters:
//   - k: the kernel implementing the shader's entry point
//
// Returns:
//   - PipelineBuilderOption: a function that sets the kernel for this pipeline
func WithKernel(k Kernel) PipelineBuilderOption {
	return func(p *pipeline) {
		p.kernel = k
	}
}
