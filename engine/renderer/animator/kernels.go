package animator

import (
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/shader"
	"github.com/go-gl/mathgl/mgl32"
)

// slot is a resolved @group/@binding pair.
type slot struct {
	group, binding int
}

// stageBindings locates every role of the shared arena and model binding blocks in one
// stage shader. Kernels read buffers through it so they never depend on binding numbers.
type stageBindings struct {
	instanceAnim, trs, bones, roots, spheres   slot
	params, animData, boneOffsets, boneSpheres slot
}

// resolveBindings looks up every binding role in the shader's declarations.
func resolveBindings(s shader.Shader) (stageBindings, error) {
	var b stageBindings
	targets := []struct {
		role shader.AnnotationArg
		dst  *slot
	}{
		{shader.AnnotationArgRoleInstanceAnim, &b.instanceAnim},
		{shader.AnnotationArgRoleTRS, &b.trs},
		{shader.AnnotationArgRoleBones, &b.bones},
		{shader.AnnotationArgRoleRoots, &b.roots},
		{shader.AnnotationArgRoleSpheres, &b.spheres},
		{shader.AnnotationArgRoleParams, &b.params},
		{shader.AnnotationArgRoleAnimData, &b.animData},
		{shader.AnnotationArgRoleBoneOffsets, &b.boneOffsets},
		{shader.AnnotationArgRoleBoneSpheres, &b.boneSpheres},
	}
	for _, t := range targets {
		group, binding, ok := s.BindingForRole(t.role)
		if !ok {
			return stageBindings{}, fmt.Errorf("%s: no binding declared for role %q", s.Key(), t.role)
		}
		*t.dst = slot{group: group, binding: binding}
	}
	return b, nil
}

// stageView is the typed view of the buffers bound for one dispatch.
type stageView struct {
	params       GPUDispatchParams
	animData     []uint32
	instanceAnim []GPUInstanceAnimation
	trs, bones   []mgl32.Mat4
	roots        []model.GPUModelData
	spheres      [][4]float32
	boneOffsets  []mgl32.Mat4
	boneSpheres  []model.GPUBoneSphere
}

func (b stageBindings) view(res pipeline.Resources) (stageView, error) {
	params := common.BytesToSlice[GPUDispatchParams](res.Buffer(b.params.group, b.params.binding))
	if len(params) == 0 {
		return stageView{}, fmt.Errorf("dispatch params not bound at group %d binding %d", b.params.group, b.params.binding)
	}
	return stageView{
		params:       params[0],
		animData:     common.BytesToSlice[uint32](res.Buffer(b.animData.group, b.animData.binding)),
		instanceAnim: common.BytesToSlice[GPUInstanceAnimation](res.Buffer(b.instanceAnim.group, b.instanceAnim.binding)),
		trs:          common.BytesToSlice[mgl32.Mat4](res.Buffer(b.trs.group, b.trs.binding)),
		bones:        common.BytesToSlice[mgl32.Mat4](res.Buffer(b.bones.group, b.bones.binding)),
		roots:        common.BytesToSlice[model.GPUModelData](res.Buffer(b.roots.group, b.roots.binding)),
		spheres:      common.BytesToSlice[[4]float32](res.Buffer(b.spheres.group, b.spheres.binding)),
		boneOffsets:  common.BytesToSlice[mgl32.Mat4](res.Buffer(b.boneOffsets.group, b.boneOffsets.binding)),
		boneSpheres:  common.BytesToSlice[model.GPUBoneSphere](res.Buffer(b.boneSpheres.group, b.boneSpheres.binding)),
	}, nil
}

func checkIndex(name string, index uint32, length int) error {
	if int(index) >= length {
		return fmt.Errorf("%s index %d of %d: %w", name, index, length, renderer.ErrOutOfBounds)
	}
	return nil
}

// pose is a decomposed local bone transform.
type pose struct {
	t mgl32.Vec3
	r mgl32.Quat
	s mgl32.Vec3
}

func (p pose) compose() mgl32.Mat4 {
	return common.ComposeTRS(p.t, p.r, p.s)
}

func blendPose(a, b pose, f float32) pose {
	return pose{
		t: common.LerpVec3(a.t, b.t, f),
		r: common.NlerpQuat(a.r, b.r, f),
		s: common.LerpVec3(a.s, b.s, f),
	}
}

// sampler reads one model's packed animation data. Reads past the end return zero, the same
// as a clamped device read.
type sampler struct {
	data []uint32
	p    GPUDispatchParams
}

func (s sampler) u32(i uint32) uint32 {
	if int(i) < len(s.data) {
		return s.data[i]
	}
	return 0
}

func (s sampler) f32(i uint32) float32 {
	return math.Float32frombits(s.u32(i))
}

func (s sampler) vec3(i uint32) mgl32.Vec3 {
	return mgl32.Vec3{s.f32(i), s.f32(i + 1), s.f32(i + 2)}
}

func (s sampler) quat(i uint32) mgl32.Quat {
	return common.QuatFromArray([4]float32{s.f32(i), s.f32(i + 1), s.f32(i + 2), s.f32(i + 3)})
}

func (s sampler) restPose(bone uint32) pose {
	base := s.p.RestPoseOffset + bone*model.RestPoseStride
	return pose{t: s.vec3(base), r: s.quat(base + 4), s: s.vec3(base + 8)}
}

func (s sampler) keyBase(k uint32) uint32 {
	return s.p.KeyframeDataOffset + k*model.KeyframeStride
}

// findKey returns the last key at or before t.
func (s sampler) findKey(first, count uint32, t float32) uint32 {
	var k uint32
	for i := uint32(1); i < count; i++ {
		if s.f32(s.keyBase(first+i)) > t {
			break
		}
		k = i
	}
	return k
}

func (s sampler) keyFactor(first, k uint32, t float32) float32 {
	t0 := s.f32(s.keyBase(first + k))
	t1 := s.f32(s.keyBase(first + k + 1))
	span := t1 - t0
	if span <= 0 {
		return 0
	}
	return mgl32.Clamp((t-t0)/span, 0, 1)
}

func (s sampler) sampleVec3(first, count, field uint32, t float32, fallback mgl32.Vec3) mgl32.Vec3 {
	if count == 0 {
		return fallback
	}
	k := s.findKey(first, count, t)
	a := s.vec3(s.keyBase(first+k) + field)
	if k+1 >= count {
		return a
	}
	b := s.vec3(s.keyBase(first+k+1) + field)
	return common.LerpVec3(a, b, s.keyFactor(first, k, t))
}

func (s sampler) sampleRotation(first, count uint32, t float32, fallback mgl32.Quat) mgl32.Quat {
	if count == 0 {
		return fallback
	}
	k := s.findKey(first, count, t)
	a := s.quat(s.keyBase(first+k) + 8)
	if k+1 >= count {
		return a
	}
	b := s.quat(s.keyBase(first+k+1) + 8)
	return common.NlerpQuat(a, b, s.keyFactor(first, k, t))
}

func (s sampler) channel(clip, bone uint32) uint32 {
	if clip >= s.p.ClipCount {
		return model.NoChannel
	}
	return s.u32(s.p.BoneMapOffset + clip*s.p.BoneCount + bone)
}

func (s sampler) sampleClip(clip, bone uint32, time float32) pose {
	rest := s.restPose(bone)
	ch := s.channel(clip, bone)
	if ch == model.NoChannel {
		return rest
	}
	t := common.WrapTime(time, s.f32(clip*model.ClipHeaderStride))
	hdr := s.p.ChannelDataOffset + ch*model.ChannelHeaderStride
	return pose{
		t: s.sampleVec3(s.u32(hdr+1), s.u32(hdr+2), 4, t, rest.t),
		r: s.sampleRotation(s.u32(hdr+3), s.u32(hdr+4), t, rest.r),
		s: s.sampleVec3(s.u32(hdr+5), s.u32(hdr+6), 12, t, rest.s),
	}
}

// animatedPose samples the first clip and blends the second on top. A second clip equal to
// the first, or out of range, degrades to a blend of 0.
func (s sampler) animatedPose(anim GPUInstanceAnimation, bone uint32) pose {
	first := s.sampleClip(anim.FirstClip, bone, anim.FirstTime)
	blend := mgl32.Clamp(anim.Blend, 0, 1)
	if anim.SecondClip == anim.FirstClip || anim.SecondClip >= s.p.ClipCount {
		blend = 0
	}
	if blend <= 0 {
		return first
	}
	return blendPose(first, s.sampleClip(anim.SecondClip, bone, anim.SecondTime), blend)
}

// look blends a single key look clip over p for the bones the clip animates.
func (s sampler) look(p pose, clip, bone uint32, weight float32) pose {
	if weight <= 0 || s.channel(clip, bone) == model.NoChannel {
		return p
	}
	return blendPose(p, s.sampleClip(clip, bone, 0), min(weight, 1))
}

func (s sampler) headPose(p pose, anim GPUInstanceAnimation, bone uint32) pose {
	if anim.Flags&InstanceFlagHeadLook == 0 {
		return p
	}
	if anim.HeadLR < 0 {
		p = s.look(p, s.p.HeadLeft, bone, -anim.HeadLR)
	} else {
		p = s.look(p, s.p.HeadRight, bone, anim.HeadLR)
	}
	if anim.HeadUD < 0 {
		p = s.look(p, s.p.HeadDown, bone, -anim.HeadUD)
	} else {
		p = s.look(p, s.p.HeadUp, bone, anim.HeadUD)
	}
	return p
}

// lanes calls fn for every live instance of a workgroup, stopping at the first error.
func lanes(workgroup [3]uint32, p GPUDispatchParams, fn func(inst uint32) error) error {
	if workgroup[0] >= p.BoneCount {
		return nil
	}
	for lane := range BatchSize {
		inst := workgroup[1]*BatchSize + lane
		if inst >= p.InstanceCount {
			return nil
		}
		if err := fn(inst); err != nil {
			return err
		}
	}
	return nil
}

// transformKernel is the host implementation of transform.wgsl, and of
// transform_headmove.wgsl when headMove is set.
func transformKernel(b stageBindings, headMove bool) pipeline.Kernel {
	return func(workgroup [3]uint32, res pipeline.Resources) error {
		v, err := b.view(res)
		if err != nil {
			return err
		}
		p := v.params
		bone := workgroup[0]
		s := sampler{data: v.animData, p: p}
		return lanes(workgroup, p, func(inst uint32) error {
			ai := p.InstanceOffset + inst
			if err := checkIndex("instance_anim", ai, len(v.instanceAnim)); err != nil {
				return err
			}
			idx := p.MatrixOffset + inst*p.BoneCount + bone
			if err := checkIndex("trs", idx, len(v.trs)); err != nil {
				return err
			}
			anim := v.instanceAnim[ai]
			local := s.animatedPose(anim, bone)
			if headMove {
				local = s.headPose(local, anim, bone)
			}
			v.trs[idx] = local.compose()
			return nil
		})
	}
}

// matmulKernel is the host implementation of matmul.wgsl.
func matmulKernel(b stageBindings) pipeline.Kernel {
	return func(workgroup [3]uint32, res pipeline.Resources) error {
		v, err := b.view(res)
		if err != nil {
			return err
		}
		p := v.params
		bone := workgroup[0]
		s := sampler{data: v.animData, p: p}
		parentOf := func(bone uint32) int32 {
			return int32(s.u32(p.ParentOffset + bone))
		}
		if err := checkIndex("bone_offsets", bone, len(v.boneOffsets)); err != nil {
			return err
		}
		return lanes(workgroup, p, func(inst uint32) error {
			base := p.MatrixOffset + inst*p.BoneCount
			if err := checkIndex("trs", base+p.BoneCount-1, len(v.trs)); err != nil {
				return err
			}
			if err := checkIndex("bones", base+bone, len(v.bones)); err != nil {
				return err
			}
			m := v.trs[base+bone]
			parent := parentOf(bone)
			for guard := uint32(0); parent >= 0 && uint32(parent) < p.BoneCount && guard < p.BoneCount; guard++ {
				m = v.trs[base+uint32(parent)].Mul4(m)
				parent = parentOf(uint32(parent))
			}
			v.bones[base+bone] = m.Mul4(v.boneOffsets[bone])
			return nil
		})
	}
}

// boundingSphereKernel is the host implementation of bounding_sphere.wgsl.
func boundingSphereKernel(b stageBindings) pipeline.Kernel {
	return func(workgroup [3]uint32, res pipeline.Resources) error {
		v, err := b.view(res)
		if err != nil {
			return err
		}
		p := v.params
		bone := workgroup[0]
		if err := checkIndex("bone_spheres", bone, len(v.boneSpheres)); err != nil {
			return err
		}
		tuning := v.boneSpheres[bone]
		local := mgl32.Vec3(tuning.BindPosition).Add(mgl32.Vec3(tuning.Offset))
		return lanes(workgroup, p, func(inst uint32) error {
			ri := p.InstanceOffset + inst
			if err := checkIndex("roots", ri, len(v.roots)); err != nil {
				return err
			}
			idx := p.MatrixOffset + inst*p.BoneCount + bone
			if err := checkIndex("bones", idx, len(v.bones)); err != nil {
				return err
			}
			if err := checkIndex("spheres", idx, len(v.spheres)); err != nil {
				return err
			}
			world := mgl32.Mat4(v.roots[ri].Model).Mul4(v.bones[idx])
			center := common.TransformPoint(world, local)
			var radius float32
			if tuning.RadiusScale != 0 {
				radius = tuning.RadiusScale * common.MaxAxisScale(world)
			}
			v.spheres[idx] = [4]float32{center[0], center[1], center[2], radius}
			return nil
		})
	}
}
