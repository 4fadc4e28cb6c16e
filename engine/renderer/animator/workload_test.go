package animator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundUpToBatch(t *testing.T) {
	cases := map[uint32]uint32{0: 0, 1: 32, 31: 32, 32: 32, 33: 64, 40: 64, 64: 64, 65: 96}
	for n, want := range cases {
		assert.Equal(t, want, RoundUpToBatch(n), "n=%d", n)
	}
}

func TestBuildWorkloadExampleLayout(t *testing.T) {
	w := BuildWorkload([]WorkloadSource{
		{BoneCount: 3, InstanceCount: 40},
		{BoneCount: 5, InstanceCount: 10},
	})
	require.Len(t, w.Entries, 2)

	a, b := w.Entries[0], w.Entries[1]
	assert.Equal(t, uint32(64), a.PaddedInstances)
	assert.Equal(t, uint32(32), b.PaddedInstances)
	assert.Equal(t, uint32(0), a.MatrixOffset)
	assert.Equal(t, uint32(192), b.MatrixOffset)
	assert.Equal(t, uint64(192*64), b.ByteOffset)
	assert.Equal(t, uint32(64), b.InstanceOffset)

	assert.Equal(t, uint32(352), w.TotalMatrices)
	assert.Equal(t, uint64(22528), w.MatrixBytes())
	assert.Equal(t, uint32(96), w.TotalInstances)

	assert.Equal(t, [3]uint32{3, 2, 1}, a.DispatchGroups())
	assert.Equal(t, [3]uint32{5, 1, 1}, b.DispatchGroups())
}

func TestBuildWorkloadMatchesSumOfPaddedSlices(t *testing.T) {
	cases := []struct {
		name    string
		sources []WorkloadSource
	}{
		{"no models", nil},
		{"one model below batch", []WorkloadSource{{BoneCount: 7, InstanceCount: 5}}},
		{"one model on batch", []WorkloadSource{{BoneCount: 2, InstanceCount: 32}}},
		{"one model above batch", []WorkloadSource{{BoneCount: 4, InstanceCount: 100}}},
		{"many models", []WorkloadSource{
			{BoneCount: 1, InstanceCount: 1},
			{BoneCount: 60, InstanceCount: 33},
			{BoneCount: 12, InstanceCount: 64},
			{BoneCount: 3, InstanceCount: 257},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := BuildWorkload(tc.sources)

			var want uint64
			var next uint32
			for i, src := range tc.sources {
				want += uint64(src.BoneCount*RoundUpToBatch(src.InstanceCount)) * MatrixSize
				e := w.Entries[i]
				assert.Equal(t, next, e.MatrixOffset, "entries are contiguous")
				next += e.Matrices()

				groups := e.DispatchGroups()
				assert.Equal(t, e.PaddedInstances, groups[1]*BatchSize, "dispatch covers exactly the padded slice")
			}
			assert.Equal(t, want, w.MatrixBytes())
			assert.Equal(t, uint64(w.TotalMatrices)*SphereSize, w.SphereBytes())
		})
	}
}

func TestBuildWorkloadSkipsEmptyModels(t *testing.T) {
	w := BuildWorkload([]WorkloadSource{
		{BoneCount: 0, InstanceCount: 10},
		{BoneCount: 4, InstanceCount: 0},
		{BoneCount: 2, InstanceCount: 3},
	})
	require.Len(t, w.Entries, 1)
	assert.Equal(t, uint32(0), w.Entries[0].MatrixOffset)
	assert.Equal(t, uint32(64), w.TotalMatrices)
	assert.True(t, BuildWorkload(nil).Empty())
}

func TestMatrixIndex(t *testing.T) {
	e := WorkloadEntry{BoneCount: 5, MatrixOffset: 192}
	assert.Equal(t, uint32(192), e.MatrixIndex(0, 0))
	assert.Equal(t, uint32(192+2*5+3), e.MatrixIndex(2, 3))
}
