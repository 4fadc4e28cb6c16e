package animator

import (
	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
)

// BatchSize is the number of instances one workgroup processes. Every per-model slice of the
// arena is padded to a multiple of it so padding lanes never address another model's data.
const BatchSize uint32 = 32

// MatrixSize is the size in bytes of one mat4x4<f32>.
const MatrixSize uint64 = 64

// SphereSize is the size in bytes of one vec4<f32> bounding sphere.
const SphereSize uint64 = 16

// RoundUpToBatch rounds an instance count up to a multiple of BatchSize.
//
// Parameters:
//   - n: the instance count
//
// Returns:
//   - uint32: ((n + 31) / 32) * 32
func RoundUpToBatch(n uint32) uint32 {
	return common.RoundUp(n, BatchSize)
}

// WorkloadSource is one model's contribution to a frame, in workload order.
type WorkloadSource struct {
	Model         model.Model
	BoneCount     uint32
	InstanceCount uint32
}

// WorkloadEntry is the slice of the shared arena one model owns for a frame. Every stage,
// readback and lookup build reads its offsets from here.
type WorkloadEntry struct {
	Model           model.Model
	BoneCount       uint32
	InstanceCount   uint32
	PaddedInstances uint32

	// MatrixOffset is the first matrix of the model in the TRS, bone and sphere buffers.
	MatrixOffset uint32

	// InstanceOffset is the first slot of the model in the instance animation and root buffers.
	InstanceOffset uint32

	// ByteOffset is MatrixOffset in bytes of the TRS and bone buffers.
	ByteOffset uint64
}

// Matrices returns the number of matrices the entry occupies, padding included.
func (e WorkloadEntry) Matrices() uint32 {
	return e.BoneCount * e.PaddedInstances
}

// DispatchGroups returns the workgroup counts of a stage dispatch for this entry: one group
// per bone in x and one group per batch of instances in y.
//
// Returns:
//   - [3]uint32: {BoneCount, PaddedInstances / BatchSize, 1}
func (e WorkloadEntry) DispatchGroups() [3]uint32 {
	return [3]uint32{e.BoneCount, e.PaddedInstances / BatchSize, 1}
}

// MatrixIndex returns the arena index of one (instance, bone) pair of the entry.
//
// Parameters:
//   - instance: the instance position within the model, below InstanceCount
//   - bone: the bone index, below BoneCount
//
// Returns:
//   - uint32: MatrixOffset + instance*BoneCount + bone
func (e WorkloadEntry) MatrixIndex(instance, bone uint32) uint32 {
	return e.MatrixOffset + instance*e.BoneCount + bone
}

// Workload is the derived per-frame layout of the arena.
type Workload struct {
	Entries []WorkloadEntry

	// TotalMatrices is the matrix count of the TRS, bone and sphere buffers.
	TotalMatrices uint32

	// TotalInstances is the padded slot count of the instance animation and root buffers.
	TotalInstances uint32
}

// MatrixBytes returns the byte size required for the TRS and bone matrix buffers.
func (w Workload) MatrixBytes() uint64 {
	return uint64(w.TotalMatrices) * MatrixSize
}

// SphereBytes returns the byte size required for the bounding sphere buffer.
func (w Workload) SphereBytes() uint64 {
	return uint64(w.TotalMatrices) * SphereSize
}

// InstanceAnimationBytes returns the byte size required for the instance animation buffer.
func (w Workload) InstanceAnimationBytes() uint64 {
	return uint64(w.TotalInstances) * 32
}

// RootBytes returns the byte size required for the world root matrix buffer.
func (w Workload) RootBytes() uint64 {
	return uint64(w.TotalInstances) * MatrixSize
}

// Empty reports whether no model has work this frame.
func (w Workload) Empty() bool {
	return len(w.Entries) == 0
}

// Entry returns the entry of a model.
//
// Parameters:
//   - m: the model
//
// Returns:
//   - WorkloadEntry: the entry
//   - bool: false if the model has no work this frame
func (w Workload) Entry(m model.Model) (WorkloadEntry, bool) {
	for _, e := range w.Entries {
		if e.Model == m {
			return e, true
		}
	}
	return WorkloadEntry{}, false
}

// BuildWorkload assigns every source with at least one bone and one instance a disjoint slice
// of the arena, in source order. This is the only place offsets are computed.
//
// Parameters:
//   - sources: the models of the frame in their fixed order
//
// Returns:
//   - Workload: the entries and buffer totals
func BuildWorkload(sources []WorkloadSource) Workload {
	var w Workload
	for _, src := range sources {
		if src.BoneCount == 0 || src.InstanceCount == 0 {
			continue
		}
		e := WorkloadEntry{
			Model:           src.Model,
			BoneCount:       src.BoneCount,
			InstanceCount:   src.InstanceCount,
			PaddedInstances: RoundUpToBatch(src.InstanceCount),
			MatrixOffset:    w.TotalMatrices,
			InstanceOffset:  w.TotalInstances,
		}
		e.ByteOffset = uint64(e.MatrixOffset) * MatrixSize
		w.TotalMatrices += e.Matrices()
		w.TotalInstances += e.PaddedInstances
		w.Entries = append(w.Entries, e)
	}
	return w
}
