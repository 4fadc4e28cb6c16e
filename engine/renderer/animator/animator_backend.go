package animator

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// StageType identifies one compute stage of the animation pipeline.
type StageType int

const (
	// StageTransform samples and blends clips into per-bone local TRS matrices.
	StageTransform StageType = iota

	// StageTransformHeadMove is StageTransform with the head look clips blended on top. Models
	// with CapabilityHeadMovement use it instead of StageTransform.
	StageTransformHeadMove

	// StageMatmul walks the bone hierarchy and multiplies in the bone offset matrices.
	StageMatmul

	// StageBoundingSphere derives one world space sphere per bone from the skinning matrices.
	StageBoundingSphere
)

// stageTypes lists every stage in recording order.
var stageTypes = []StageType{StageTransform, StageTransformHeadMove, StageMatmul, StageBoundingSphere}

func (s StageType) String() string {
	switch s {
	case StageTransform:
		return "transform"
	case StageTransformHeadMove:
		return "transform_headmove"
	case StageMatmul:
		return "matmul"
	case StageBoundingSphere:
		return "bounding_sphere"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// PipelineKey returns the key the stage's pipeline is registered under.
//
// Returns:
//   - string: the pipeline key
func (s StageType) PipelineKey() string {
	return "animator." + s.String()
}

// source returns the WGSL of the stage. The transform variants share the sampling helpers.
func (s StageType) source() string {
	switch s {
	case StageTransform:
		return transformSource + "\n" + samplingSource
	case StageTransformHeadMove:
		return transformHeadMoveSource + "\n" + samplingSource
	case StageMatmul:
		return matmulSource
	case StageBoundingSphere:
		return boundingSphereSource
	default:
		return ""
	}
}

// stageIncludes registers the structs and binding snippets the stage shaders include.
func stageIncludes() []shader.ShaderOption {
	return []shader.ShaderOption{
		shader.WithInclude(shader.AnnotationArgInstanceAnimation, GPUInstanceAnimationSource, "InstanceAnimation"),
		shader.WithInclude(shader.AnnotationArgDispatchParams, GPUDispatchParamsSource, "DispatchParams"),
		shader.WithInclude(shader.AnnotationArgArenaBindings, arenaBindingsSource, ""),
		shader.WithInclude(shader.AnnotationArgModelBindings, modelBindingsSource, ""),
	}
}

// stage is one compiled stage: its pipeline and the bindings its kernel resolved by role.
type stage struct {
	stageType StageType
	pipeline  pipeline.Pipeline
	bindings  stageBindings
}

// newStage parses the stage's WGSL and pairs it with its host kernel.
func newStage(t StageType) (*stage, error) {
	sh, err := shader.ParseShader(t.PipelineKey(), t.source(), stageIncludes()...)
	if err != nil {
		return nil, err
	}
	b, err := resolveBindings(sh)
	if err != nil {
		return nil, err
	}

	var kernel pipeline.Kernel
	switch t {
	case StageTransform:
		kernel = transformKernel(b, false)
	case StageTransformHeadMove:
		kernel = transformKernel(b, true)
	case StageMatmul:
		kernel = matmulKernel(b)
	case StageBoundingSphere:
		kernel = boundingSphereKernel(b)
	default:
		return nil, fmt.Errorf("unknown stage %s", t)
	}

	return &stage{
		stageType: t,
		pipeline:  pipeline.NewPipeline(t.PipelineKey(), pipeline.WithComputeShader(sh), pipeline.WithKernel(kernel)),
		bindings:  b,
	}, nil
}

// stageSet holds every stage and the two shared bind group layouts.
type stageSet struct {
	stages map[StageType]*stage

	// arenaLayout and modelLayout are identical across stages because every stage includes
	// the same binding snippets.
	arenaLayout wgpu.BindGroupLayoutDescriptor
	modelLayout wgpu.BindGroupLayoutDescriptor
	arenaGroup  int
	modelGroup  int
}

func newStageSet() (*stageSet, error) {
	set := &stageSet{stages: make(map[StageType]*stage, len(stageTypes))}
	for _, t := range stageTypes {
		s, err := newStage(t)
		if err != nil {
			return nil, err
		}
		set.stages[t] = s
	}

	ref := set.stages[StageMatmul]
	set.arenaGroup = ref.bindings.trs.group
	set.modelGroup = ref.bindings.params.group
	if set.arenaGroup == set.modelGroup {
		return nil, fmt.Errorf("arena and model bindings share group %d", set.arenaGroup)
	}
	set.arenaLayout = ref.pipeline.Shader().BindGroupLayoutDescriptor(set.arenaGroup)
	set.modelLayout = ref.pipeline.Shader().BindGroupLayoutDescriptor(set.modelGroup)
	return set, nil
}

func (s *stageSet) pipelines() []pipeline.Pipeline {
	out := make([]pipeline.Pipeline, 0, len(s.stages))
	for _, t := range stageTypes {
		out = append(out, s.stages[t].pipeline)
	}
	return out
}

// transformFor returns the transform variant a model's capabilities select.
func transformFor(headMove bool) StageType {
	if headMove {
		return StageTransformHeadMove
	}
	return StageTransform
}
