package model

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// GPUModelDataSource is the canonical WGSL definition of the ModelData struct for per-instance world root matrices.
// Matches GPUModelData layout exactly (64 bytes, std430 aligned).
//
//go:embed assets/model_data.wgsl
var GPUModelDataSource string

// GPUModelData is the GPU-aligned representation of a single per-instance world root matrix.
// Matches the WGSL ModelData struct layout exactly (see GPUModelDataSource).
// Size: 64 bytes (mat4x4<f32> = 16 × float32, std430 aligned, no padding required).
type GPUModelData struct {
	Model [16]float32 // offset 0: 4×4 model-to-world transform matrix (64 bytes)
}

// Size returns the size of the GPUModelData struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUModelData) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUModelData struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 64-byte buffer ready for GPU upload.
func (g *GPUModelData) Marshal() []byte {
	buf := make([]byte, 64)
	for i := range 16 {
		binary.LittleEndian.PutUint32(buf[i*4:(i+1)*4], math.Float32bits(g.Model[i]))
	}
	return buf
}

// GPUBoneSphereSource is the canonical WGSL definition of the BoneSphere struct.
// Matches GPUBoneSphere layout exactly (32 bytes, std430 aligned).
//
//go:embed assets/bone_sphere.wgsl
var GPUBoneSphereSource string

// GPUBoneSphere is the GPU-aligned per-bone bounding sphere tuning consumed by the bounding sphere stage.
// Matches the WGSL BoneSphere struct layout exactly (see GPUBoneSphereSource).
// Size: 32 bytes (2 × vec4, std430 aligned).
type GPUBoneSphere struct {
	Offset       [3]float32 // offset  0: bone-local center offset
	RadiusScale  float32    // offset 12: radius scale, 0 = no collision volume
	BindPosition [3]float32 // offset 16: joint position in model space at bind pose
	_pad         float32    // offset 28: pad to 32 bytes
}

// Size returns the size of the GPUBoneSphere struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUBoneSphere) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUBoneSphere struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload.
func (g *GPUBoneSphere) Marshal() []byte {
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(g.Offset[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(g.Offset[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(g.Offset[2]))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(g.RadiusScale))
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(g.BindPosition[0]))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(g.BindPosition[1]))
	binary.LittleEndian.PutUint32(buf[24:28], math.Float32bits(g.BindPosition[2]))
	binary.LittleEndian.PutUint32(buf[28:32], 0) // _pad
	return buf
}

// Packed animation layout, in u32 units. The packed buffer is laid out as
//
//	[clips][channels][keyframes][bone->channel map][rest pose][parents]
//
// clip:      [duration_bits, tps_bits, channelOffset, channelCount]
// channel:   [boneIndex, posKeyOffset, posKeyCount, rotKeyOffset, rotKeyCount, scaleKeyOffset, scaleKeyCount, pad]
// keyframe:  [time_bits, pad, pad, pad, tx, ty, tz, pad, rx, ry, rz, rw, sx, sy, sz, pad]
// bone map:  one channel index per (clip, bone), NoChannel when the clip does not animate the bone
// rest pose: [tx, ty, tz, pad, rx, ry, rz, rw, sx, sy, sz, pad] per bone
// parents:   one parent index per bone, as the two's complement bits of an i32
const (
	ClipHeaderStride    = 4
	ChannelHeaderStride = 8
	KeyframeStride      = 16
	RestPoseStride      = 12

	// NoChannel marks a (clip, bone) pair without a channel.
	NoChannel uint32 = 0xFFFFFFFF
)

// PackedAnimation is the flattened animation data of a model, ready for upload as a single
// array<u32> storage buffer. The offsets locate each section inside Data.
type PackedAnimation struct {
	Data []uint32

	ClipCount          uint32
	ChannelDataOffset  uint32
	KeyframeDataOffset uint32
	BoneMapOffset      uint32
	RestPoseOffset     uint32
	ParentOffset       uint32
}

// Bytes returns the packed data as a byte slice view.
func (p PackedAnimation) Bytes() []byte {
	if len(p.Data) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&p.Data[0])), len(p.Data)*4)
}

// PackAnimation flattens a skeleton and its clips into the packed u32 layout read by the
// transform compute stage. Keyframes of each channel are stored position keys first, then
// rotation keys, then scale keys, each in its own run of the keyframe section.
//
// Parameters:
//   - skeleton: the bone hierarchy (may be nil for static models)
//   - clips: the animation clips
//
// Returns:
//   - PackedAnimation: the packed data and section offsets
func PackAnimation(skeleton *Skeleton, clips []*AnimationClip) PackedAnimation {
	var bones []Bone
	if skeleton != nil {
		bones = skeleton.Bones
	}
	boneCount := uint32(len(bones))

	var channelCount, keyCount uint32
	for _, clip := range clips {
		channelCount += uint32(len(clip.Channels))
		for _, ch := range clip.Channels {
			keyCount += uint32(len(ch.PositionKeys) + len(ch.RotationKeys) + len(ch.ScaleKeys))
		}
	}

	p := PackedAnimation{ClipCount: uint32(len(clips))}
	p.ChannelDataOffset = p.ClipCount * ClipHeaderStride
	p.KeyframeDataOffset = p.ChannelDataOffset + channelCount*ChannelHeaderStride
	p.BoneMapOffset = p.KeyframeDataOffset + keyCount*KeyframeStride
	p.RestPoseOffset = p.BoneMapOffset + p.ClipCount*boneCount
	p.ParentOffset = p.RestPoseOffset + boneCount*RestPoseStride
	total := p.ParentOffset + boneCount
	if total == 0 {
		// storage bindings cannot be empty
		total = 1
	}
	p.Data = make([]uint32, total)

	for i := range p.ClipCount * boneCount {
		p.Data[p.BoneMapOffset+i] = NoChannel
	}

	var channelIndex, keyIndex uint32
	for ci, clip := range clips {
		base := uint32(ci) * ClipHeaderStride
		p.Data[base+0] = math.Float32bits(clip.Duration)
		p.Data[base+1] = math.Float32bits(clip.TicksPerSecond)
		p.Data[base+2] = channelIndex
		p.Data[base+3] = uint32(len(clip.Channels))

		for _, ch := range clip.Channels {
			hdr := p.ChannelDataOffset + channelIndex*ChannelHeaderStride
			p.Data[hdr+0] = uint32(ch.BoneIndex)

			p.Data[hdr+1] = keyIndex
			p.Data[hdr+2] = uint32(len(ch.PositionKeys))
			for _, k := range ch.PositionKeys {
				packKeyframe(p.Data[p.KeyframeDataOffset+keyIndex*KeyframeStride:], k.Time, k.Value, [4]float32{0, 0, 0, 1}, [3]float32{1, 1, 1})
				keyIndex++
			}

			p.Data[hdr+3] = keyIndex
			p.Data[hdr+4] = uint32(len(ch.RotationKeys))
			for _, k := range ch.RotationKeys {
				packKeyframe(p.Data[p.KeyframeDataOffset+keyIndex*KeyframeStride:], k.Time, [3]float32{}, k.Value, [3]float32{1, 1, 1})
				keyIndex++
			}

			p.Data[hdr+5] = keyIndex
			p.Data[hdr+6] = uint32(len(ch.ScaleKeys))
			for _, k := range ch.ScaleKeys {
				packKeyframe(p.Data[p.KeyframeDataOffset+keyIndex*KeyframeStride:], k.Time, [3]float32{}, [4]float32{0, 0, 0, 1}, k.Value)
				keyIndex++
			}
			p.Data[hdr+7] = 0 // pad

			if ch.BoneIndex >= 0 && uint32(ch.BoneIndex) < boneCount {
				p.Data[p.BoneMapOffset+uint32(ci)*boneCount+uint32(ch.BoneIndex)] = channelIndex
			}
			channelIndex++
		}
	}

	for b, bone := range bones {
		base := p.RestPoseOffset + uint32(b)*RestPoseStride
		t := bone.LocalTransform
		p.Data[base+0] = math.Float32bits(t.Translation[0])
		p.Data[base+1] = math.Float32bits(t.Translation[1])
		p.Data[base+2] = math.Float32bits(t.Translation[2])
		p.Data[base+3] = 0 // pad
		p.Data[base+4] = math.Float32bits(t.Rotation[0])
		p.Data[base+5] = math.Float32bits(t.Rotation[1])
		p.Data[base+6] = math.Float32bits(t.Rotation[2])
		p.Data[base+7] = math.Float32bits(t.Rotation[3])
		p.Data[base+8] = math.Float32bits(t.Scale[0])
		p.Data[base+9] = math.Float32bits(t.Scale[1])
		p.Data[base+10] = math.Float32bits(t.Scale[2])
		p.Data[base+11] = 0 // pad
		p.Data[p.ParentOffset+uint32(b)] = uint32(bone.ParentIndex)
	}

	return p
}

// packKeyframe writes one 16 u32 keyframe record into dst.
func packKeyframe(dst []uint32, time float32, t [3]float32, r [4]float32, s [3]float32) {
	dst[0] = math.Float32bits(time)
	dst[1], dst[2], dst[3] = 0, 0, 0 // pad0
	dst[4] = math.Float32bits(t[0])
	dst[5] = math.Float32bits(t[1])
	dst[6] = math.Float32bits(t[2])
	dst[7] = 0 // pad1
	dst[8] = math.Float32bits(r[0])
	dst[9] = math.Float32bits(r[1])
	dst[10] = math.Float32bits(r[2])
	dst[11] = math.Float32bits(r[3])
	dst[12] = math.Float32bits(s[0])
	dst[13] = math.Float32bits(s[1])
	dst[14] = math.Float32bits(s[2])
	dst[15] = 0 // pad2
}

// PackOffsetMatrices flattens bone offset matrices for upload as array<mat4x4<f32>>.
// An empty skeleton yields a single identity matrix so the binding is never empty.
func PackOffsetMatrices(offsets []mgl32.Mat4) []mgl32.Mat4 {
	if len(offsets) == 0 {
		return []mgl32.Mat4{mgl32.Ident4()}
	}
	out := make([]mgl32.Mat4, len(offsets))
	copy(out, offsets)
	return out
}

// IdentityOffsetMatrices returns n identity matrices, the offset buffer bound in the empty
// offset binding mode.
func IdentityOffsetMatrices(n int) []mgl32.Mat4 {
	if n == 0 {
		n = 1
	}
	out := make([]mgl32.Mat4, n)
	for i := range out {
		out[i] = mgl32.Ident4()
	}
	return out
}

// PackBoneSpheres builds the per-bone GPUBoneSphere table from the sphere adjustments and
// bind pose joint positions.
//
// Parameters:
//   - adjustments: per-bone radius scale and offset
//   - bindPositions: per-bone joint position at bind pose
//
// Returns:
//   - []GPUBoneSphere: one entry per bone (at least one entry)
func PackBoneSpheres(adjustments []SphereAdjustment, bindPositions []mgl32.Vec3) []GPUBoneSphere {
	n := max(len(adjustments), 1)
	out := make([]GPUBoneSphere, n)
	for i := range adjustments {
		out[i].Offset = adjustments[i].Offset
		out[i].RadiusScale = adjustments[i].RadiusScale
		if i < len(bindPositions) {
			out[i].BindPosition = bindPositions[i]
		}
	}
	return out
}
