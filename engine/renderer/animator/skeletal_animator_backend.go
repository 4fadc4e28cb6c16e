package animator

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/managed_buffer"
	"github.com/cogentcore/webgpu/wgpu"
)

// BindingMode selects which offset matrices the matrix multiply stage applies.
type BindingMode int

const (
	// BindingModeInstance binds the model's bone offset matrices, producing skinning matrices.
	BindingModeInstance BindingMode = iota

	// BindingModeEmptyOffset binds identity offsets, producing bone node transforms in model
	// space. Used where only a sampled pose is wanted, such as AABB lookup builds.
	BindingModeEmptyOffset
)

func (m BindingMode) String() string {
	switch m {
	case BindingModeInstance:
		return "instance"
	case BindingModeEmptyOffset:
		return "empty_offset"
	default:
		return fmt.Sprintf("binding_mode(%d)", int(m))
	}
}

const (
	staticUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst
	paramsUsage = wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
)

// skeletalModel holds the GPU resources of one animated model: its packed clip data, offset
// matrices, sphere tuning and dispatch params uniform. It owns one provider per BindingMode;
// both share every buffer except the offsets.
type skeletalModel struct {
	model    model.Model
	headMove bool

	params, animData, offsets, identityOffsets, boneSpheres managed_buffer.ManagedBuffer

	providers [2]bind_group_provider.BindGroupProvider
	bindings  stageBindings

	packed        model.PackedAnimation
	sphereVersion uint64
}

// newSkeletalModel uploads the static data of m and binds it to both providers.
func newSkeletalModel(m model.Model, r renderer.Renderer, set *stageSet, growth float64) (*skeletalModel, error) {
	s := &skeletalModel{
		model:    m,
		headMove: m.Capabilities().Has(model.CapabilityHeadMovement),
		bindings: set.stages[StageMatmul].bindings,
		packed:   m.PackedAnimation(),
	}
	for mode := range s.providers {
		s.providers[mode] = bind_group_provider.NewBindGroupProvider(
			fmt.Sprintf("%s %s", m.Name(), BindingMode(mode)),
			bind_group_provider.WithGroup(set.modelGroup),
		)
	}

	newBuffer := func(name string, usage wgpu.BufferUsage, data []byte) (managed_buffer.ManagedBuffer, error) {
		buf, err := managed_buffer.NewManagedBuffer(m.Name()+" "+name, r, usage, managed_buffer.WithGrowthFactor(growth))
		if err != nil {
			return nil, err
		}
		if _, err := buf.Upload(data); err != nil {
			buf.Release()
			return nil, err
		}
		return buf, nil
	}

	var err error
	params := GPUDispatchParams{}
	if s.params, err = newBuffer("params", paramsUsage, params.Marshal()); err != nil {
		s.release()
		return nil, err
	}
	if s.animData, err = newBuffer("anim_data", staticUsage, s.packed.Bytes()); err != nil {
		s.release()
		return nil, err
	}
	if s.offsets, err = newBuffer("bone_offsets", staticUsage, common.SliceToBytes(model.PackOffsetMatrices(m.BoneOffsetMatrices()))); err != nil {
		s.release()
		return nil, err
	}
	if s.identityOffsets, err = newBuffer("identity_offsets", staticUsage, common.SliceToBytes(model.IdentityOffsetMatrices(int(m.BoneCount())))); err != nil {
		s.release()
		return nil, err
	}
	s.sphereVersion = m.SphereVersion()
	if s.boneSpheres, err = newBuffer("bone_spheres", staticUsage, common.SliceToBytes(model.PackBoneSpheres(m.SphereAdjustments(), m.BindPosePositions()))); err != nil {
		s.release()
		return nil, err
	}

	for mode, p := range s.providers {
		s.params.BindTo(p, s.bindings.params.binding)
		s.animData.BindTo(p, s.bindings.animData.binding)
		s.boneSpheres.BindTo(p, s.bindings.boneSpheres.binding)
		if BindingMode(mode) == BindingModeEmptyOffset {
			s.identityOffsets.BindTo(p, s.bindings.boneOffsets.binding)
		} else {
			s.offsets.BindTo(p, s.bindings.boneOffsets.binding)
		}
	}
	return s, nil
}

// provider returns the provider of a binding mode.
func (s *skeletalModel) provider(mode BindingMode) bind_group_provider.BindGroupProvider {
	return s.providers[mode]
}

// dispatchParams builds the uniform of one workload entry.
func (s *skeletalModel) dispatchParams(e WorkloadEntry) GPUDispatchParams {
	head := s.model.HeadMoveMapping()
	clip := func(c int32) uint32 {
		if c < 0 {
			return NoHeadClip
		}
		return uint32(c)
	}
	return GPUDispatchParams{
		BoneCount:          e.BoneCount,
		InstanceCount:      e.InstanceCount,
		PaddedInstances:    e.PaddedInstances,
		MatrixOffset:       e.MatrixOffset,
		InstanceOffset:     e.InstanceOffset,
		ClipCount:          s.packed.ClipCount,
		ChannelDataOffset:  s.packed.ChannelDataOffset,
		KeyframeDataOffset: s.packed.KeyframeDataOffset,
		BoneMapOffset:      s.packed.BoneMapOffset,
		RestPoseOffset:     s.packed.RestPoseOffset,
		ParentOffset:       s.packed.ParentOffset,
		HeadLeft:           clip(head.Left),
		HeadRight:          clip(head.Right),
		HeadUp:             clip(head.Up),
		HeadDown:           clip(head.Down),
	}
}

// stageParams returns the params write of one workload entry. The params buffer is shared
// by both providers, so the write targets the instance provider.
func (s *skeletalModel) stageParams(e WorkloadEntry) bind_group_provider.BufferWrite {
	p := s.dispatchParams(e)
	return bind_group_provider.BufferWrite{
		Provider: s.providers[BindingModeInstance],
		Binding:  s.bindings.params.binding,
		Data:     p.Marshal(),
	}
}

// syncSpheres re-uploads the sphere tuning if the model changed it since the last upload.
//
// Returns:
//   - bool: true if the sphere buffer was reallocated
//   - error: an upload failure
func (s *skeletalModel) syncSpheres() (bool, error) {
	version := s.model.SphereVersion()
	if version == s.sphereVersion {
		return false, nil
	}
	resized, err := s.boneSpheres.Upload(common.SliceToBytes(model.PackBoneSpheres(s.model.SphereAdjustments(), s.model.BindPosePositions())))
	if err != nil {
		return resized, err
	}
	s.sphereVersion = version
	return resized, nil
}

// rebind re-creates the bind group of a binding mode if one of its buffers moved.
func (s *skeletalModel) rebind(r renderer.Renderer, mode BindingMode, layout wgpu.BindGroupLayoutDescriptor) (bool, error) {
	return r.RebindIfDirty(s.providers[mode], layout)
}

func (s *skeletalModel) release() {
	for _, buf := range []managed_buffer.ManagedBuffer{s.params, s.animData, s.offsets, s.identityOffsets, s.boneSpheres} {
		if buf != nil {
			buf.Release()
		}
	}
	for _, p := range s.providers {
		if p != nil {
			p.Release()
		}
	}
}
