package animator

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUInstanceAnimationSource is the canonical WGSL definition of the InstanceAnimation struct.
// Matches GPUInstanceAnimation layout exactly (32 bytes, std430 aligned).
//
//go:embed assets/instance_animation.wgsl
var GPUInstanceAnimationSource string

// InstanceFlagHeadLook marks an instance whose head look offsets are non-zero. The head
// movement transform variant skips the look clips of instances without it.
const InstanceFlagHeadLook uint32 = 1

// GPUInstanceAnimation is the GPU-aligned per-instance playback state read by the transform stage.
// Matches the WGSL InstanceAnimation struct layout exactly (see GPUInstanceAnimationSource).
// Size: 32 bytes (8 × 4-byte scalars, std430 aligned).
type GPUInstanceAnimation struct {
	FirstClip  uint32  // offset  0: primary clip index
	SecondClip uint32  // offset  4: blend target clip index
	Blend      float32 // offset  8: blend factor toward SecondClip in [0, 1]
	FirstTime  float32 // offset 12: FirstClip playback time in seconds
	SecondTime float32 // offset 16: SecondClip playback time in seconds
	HeadLR     float32 // offset 20: head look left (<0) / right (>0)
	HeadUD     float32 // offset 24: head look down (<0) / up (>0)
	Flags      uint32  // offset 28: InstanceFlag bits
}

// Size returns the size of the GPUInstanceAnimation struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUInstanceAnimation) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUInstanceAnimation struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload.
func (g *GPUInstanceAnimation) Marshal() []byte {
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint32(buf[0:4], g.FirstClip)
	binary.LittleEndian.PutUint32(buf[4:8], g.SecondClip)
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(g.Blend))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(g.FirstTime))
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(g.SecondTime))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(g.HeadLR))
	binary.LittleEndian.PutUint32(buf[24:28], math.Float32bits(g.HeadUD))
	binary.LittleEndian.PutUint32(buf[28:32], g.Flags)
	return buf
}

// GPUDispatchParamsSource is the canonical WGSL definition of the DispatchParams uniform struct.
// Matches GPUDispatchParams layout exactly (64 bytes, uniform aligned).
//
//go:embed assets/dispatch_params.wgsl
var GPUDispatchParamsSource string

// NoHeadClip marks an unmapped head look direction in GPUDispatchParams.
const NoHeadClip uint32 = 0xFFFFFFFF

// GPUDispatchParams is the per-model uniform shared by every stage. It carries the model's
// slice of the arena for the current dispatch and the section offsets of its packed animation data.
// Matches the WGSL DispatchParams struct layout exactly (see GPUDispatchParamsSource).
// Size: 64 bytes (16 × u32).
type GPUDispatchParams struct {
	BoneCount          uint32 // offset  0
	InstanceCount      uint32 // offset  4: live instances; padding lanes at or beyond it exit early
	PaddedInstances    uint32 // offset  8: InstanceCount rounded up to the batch size
	MatrixOffset       uint32 // offset 12: first matrix of the model in trs/bones/spheres
	InstanceOffset     uint32 // offset 16: first slot of the model in instance_anim/roots
	ClipCount          uint32 // offset 20
	ChannelDataOffset  uint32 // offset 24: u32 offsets into the packed animation data
	KeyframeDataOffset uint32 // offset 28
	BoneMapOffset      uint32 // offset 32
	RestPoseOffset     uint32 // offset 36
	ParentOffset       uint32 // offset 40
	HeadLeft           uint32 // offset 44: look clip indices, NoHeadClip when unmapped
	HeadRight          uint32 // offset 48
	HeadUp             uint32 // offset 52
	HeadDown           uint32 // offset 56
	_pad               uint32 // offset 60
}

// Size returns the size of the GPUDispatchParams struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUDispatchParams) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUDispatchParams struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 64-byte buffer ready for GPU upload.
func (g *GPUDispatchParams) Marshal() []byte {
	buf := make([]byte, 64)
	fields := [16]uint32{
		g.BoneCount, g.InstanceCount, g.PaddedInstances, g.MatrixOffset,
		g.InstanceOffset, g.ClipCount, g.ChannelDataOffset, g.KeyframeDataOffset,
		g.BoneMapOffset, g.RestPoseOffset, g.ParentOffset, g.HeadLeft,
		g.HeadRight, g.HeadUp, g.HeadDown, 0,
	}
	for i, f := range fields {
		binary.LittleEndian.PutUint32(buf[i*4:(i+1)*4], f)
	}
	return buf
}

// Binding block snippets shared by every stage shader so their bind group layouts are identical.
var (
	//go:embed assets/arena_bindings.wgsl
	arenaBindingsSource string

	//go:embed assets/model_bindings.wgsl
	modelBindingsSource string

	//go:embed assets/sampling.wgsl
	samplingSource string
)

// Stage shader sources.
var (
	//go:embed assets/transform.wgsl
	transformSource string

	//go:embed assets/transform_headmove.wgsl
	transformHeadMoveSource string

	//go:embed assets/matmul.wgsl
	matmulSource string

	//go:embed assets/bounding_sphere.wgsl
	boundingSphereSource string
)
