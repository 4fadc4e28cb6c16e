package animator

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/managed_buffer"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

const arenaUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc

// arena is the set of per-frame scratch buffers shared by every model of a workload, bound
// as one provider. The frame path and the AABB lookup build each own one.
type arena struct {
	label    string
	provider bind_group_provider.BindGroupProvider
	layout   stageBindings

	instanceAnim, trs, bones, roots, spheres managed_buffer.ManagedBuffer

	// spheresEnabled keeps the sphere buffer at its initial size when the sphere stage never runs.
	spheresEnabled bool

	// Reusable staging buffers to avoid per-frame heap allocations.
	// Both backends copy written data before returning, so reuse is safe.
	stagingAnim  []GPUInstanceAnimation
	stagingRoots []model.GPUModelData

	stagedWriteData []bind_group_provider.BufferWrite
}

func newArena(label string, r renderer.Renderer, set *stageSet, growth float64, spheres bool) (*arena, error) {
	a := &arena{
		label:          label,
		provider:       bind_group_provider.NewBindGroupProvider(label, bind_group_provider.WithGroup(set.arenaGroup)),
		layout:         set.stages[StageMatmul].bindings,
		spheresEnabled: spheres,
	}

	targets := []struct {
		name    string
		binding int
		dst     *managed_buffer.ManagedBuffer
	}{
		{"instance_anim", a.layout.instanceAnim.binding, &a.instanceAnim},
		{"trs", a.layout.trs.binding, &a.trs},
		{"bones", a.layout.bones.binding, &a.bones},
		{"roots", a.layout.roots.binding, &a.roots},
		{"spheres", a.layout.spheres.binding, &a.spheres},
	}
	for _, t := range targets {
		buf, err := managed_buffer.NewManagedBuffer(
			fmt.Sprintf("%s %s", label, t.name), r, arenaUsage,
			managed_buffer.WithGrowthFactor(growth),
			managed_buffer.WithInitialCapacity(managed_buffer.SizeAlignment),
		)
		if err != nil {
			a.release()
			return nil, err
		}
		buf.BindTo(a.provider, t.binding)
		*t.dst = buf
	}
	return a, nil
}

// grow ensures every buffer can hold the workload.
//
// Returns:
//   - bool: true if any buffer was reallocated, which leaves the provider dirty
//   - error: the first failed allocation; buffers grown before it keep their new size
func (a *arena) grow(w Workload) (bool, error) {
	required := []struct {
		buf  managed_buffer.ManagedBuffer
		size uint64
	}{
		{a.instanceAnim, w.InstanceAnimationBytes()},
		{a.trs, w.MatrixBytes()},
		{a.bones, w.MatrixBytes()},
		{a.roots, w.RootBytes()},
	}
	if a.spheresEnabled {
		required = append(required, struct {
			buf  managed_buffer.ManagedBuffer
			size uint64
		}{a.spheres, w.SphereBytes()})
	}

	var grown bool
	for _, req := range required {
		resized, err := req.buf.EnsureCapacity(req.size)
		if err != nil {
			return grown, err
		}
		grown = grown || resized
	}
	return grown, nil
}

// rebind re-creates the arena bind group if a buffer moved.
func (a *arena) rebind(r renderer.Renderer, layout wgpu.BindGroupLayoutDescriptor) (bool, error) {
	return r.RebindIfDirty(a.provider, layout)
}

// stageInstances stages the instance animation and world root writes of a workload. Padding
// slots are zeroed so stale data never reaches a padding lane.
func (a *arena) stageInstances(w Workload, anims [][]GPUInstanceAnimation, roots [][]mgl32.Mat4) {
	n := int(w.TotalInstances)
	if cap(a.stagingAnim) < n {
		a.stagingAnim = make([]GPUInstanceAnimation, n)
		a.stagingRoots = make([]model.GPUModelData, n)
	}
	a.stagingAnim = a.stagingAnim[:n]
	a.stagingRoots = a.stagingRoots[:n]
	clear(a.stagingAnim)
	clear(a.stagingRoots)

	for i, e := range w.Entries {
		copy(a.stagingAnim[e.InstanceOffset:], anims[i])
		if roots == nil {
			continue
		}
		for j, m := range roots[i] {
			a.stagingRoots[e.InstanceOffset+uint32(j)] = model.GPUModelData{Model: m}
		}
	}

	a.stagedWriteData = append(a.stagedWriteData,
		bind_group_provider.BufferWrite{
			Provider: a.provider,
			Binding:  a.layout.instanceAnim.binding,
			Data:     common.SliceToBytes(a.stagingAnim),
		},
		bind_group_provider.BufferWrite{
			Provider: a.provider,
			Binding:  a.layout.roots.binding,
			Data:     common.SliceToBytes(a.stagingRoots),
		},
	)
}

// StagedWriteData returns and clears the pending buffer writes.
func (a *arena) StagedWriteData() []bind_group_provider.BufferWrite {
	w := a.stagedWriteData
	a.stagedWriteData = a.stagedWriteData[:0]
	return w
}

func (a *arena) release() {
	for _, buf := range []managed_buffer.ManagedBuffer{a.instanceAnim, a.trs, a.bones, a.roots, a.spheres} {
		if buf != nil {
			buf.Release()
		}
	}
	a.provider.Release()
}
