package managed_buffer

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/bind_group_provider"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBuffer struct {
	label    string
	size     uint64
	data     []byte
	released bool
}

func (b *fakeBuffer) Label() string {
	return b.label
}

func (b *fakeBuffer) Size() uint64 {
	return b.size
}

func (b *fakeBuffer) Released() bool {
	return b.released
}

func (b *fakeBuffer) Release() {
	b.released = true
}

type fakeAllocator struct {
	created []*fakeBuffer
	fail    bool
}

func (a *fakeAllocator) CreateBuffer(label string, size uint64, _ wgpu.BufferUsage) (bind_group_provider.Buffer, error) {
	if a.fail {
		return nil, errors.New("out of memory")
	}
	b := &fakeBuffer{label: label, size: size, data: make([]byte, size)}
	a.created = append(a.created, b)
	return b, nil
}

func (a *fakeAllocator) WriteBuffer(buf bind_group_provider.Buffer, offset uint64, data []byte) error {
	fb := buf.(*fakeBuffer)
	if fb.released {
		return errors.New("released")
	}
	copy(fb.data[offset:], data)
	return nil
}

func TestGrowSize(t *testing.T) {
	cases := []struct {
		name               string
		capacity, required uint64
		growth             float64
		want               uint64
	}{
		{"first allocation rounds to alignment", 0, 100, 1.5, 256},
		{"zero request still allocates", 0, 0, 1.5, 256},
		{"growth factor dominates", 1024, 1100, 1.5, 1536},
		{"required dominates", 256, 4000, 1.5, 4096},
		{"factor below one is ignored", 512, 600, 0.5, 768},
		{"exact multiple stays", 0, 512, 2, 512},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, GrowSize(tc.capacity, tc.required, tc.growth))
		})
	}
}

func TestEnsureCapacityOnlyGrows(t *testing.T) {
	alloc := &fakeAllocator{}
	b, err := NewManagedBuffer("bones", alloc, wgpu.BufferUsageStorage)
	require.NoError(t, err)
	assert.Zero(t, b.Capacity())
	assert.Nil(t, b.Buffer())

	resized, err := b.EnsureCapacity(1000)
	require.NoError(t, err)
	assert.True(t, resized)
	assert.Equal(t, uint64(1024), b.Capacity())

	resized, err = b.EnsureCapacity(200)
	require.NoError(t, err)
	assert.False(t, resized, "a smaller request never shrinks")
	assert.Equal(t, uint64(1024), b.Capacity())

	resized, err = b.EnsureCapacity(1025)
	require.NoError(t, err)
	assert.True(t, resized)
	assert.Equal(t, uint64(1536), b.Capacity())

	require.Len(t, alloc.created, 2)
	assert.True(t, alloc.created[0].released, "the replaced buffer is released")
	assert.False(t, alloc.created[1].released)
}

func TestResizeRebindsAndMarksProviderDirty(t *testing.T) {
	alloc := &fakeAllocator{}
	b, err := NewManagedBuffer("trs", alloc, wgpu.BufferUsageStorage, WithInitialCapacity(64))
	require.NoError(t, err)

	provider := bind_group_provider.NewBindGroupProvider("arena")
	b.BindTo(provider, 1)
	assert.Same(t, b.Buffer(), provider.Buffer(1))
	provider.SetBindGroup(nil)
	require.False(t, provider.Dirty())

	resized, err := b.EnsureCapacity(128)
	require.NoError(t, err)
	assert.False(t, resized)
	assert.False(t, provider.Dirty())

	resized, err = b.EnsureCapacity(4096)
	require.NoError(t, err)
	require.True(t, resized)
	assert.True(t, provider.Dirty())
	assert.Same(t, b.Buffer(), provider.Buffer(1))
}

func TestFailedGrowKeepsOldBuffer(t *testing.T) {
	alloc := &fakeAllocator{}
	b, err := NewManagedBuffer("spheres", alloc, wgpu.BufferUsageStorage, WithInitialCapacity(256))
	require.NoError(t, err)
	old := b.Buffer()

	alloc.fail = true
	resized, err := b.EnsureCapacity(10_000)
	assert.Error(t, err)
	assert.False(t, resized)
	assert.Same(t, old, b.Buffer())
	assert.Equal(t, uint64(256), b.Capacity())
	assert.False(t, old.Released())
}

func TestUploadGrowsAndWrites(t *testing.T) {
	alloc := &fakeAllocator{}
	b, err := NewManagedBuffer("params", alloc, wgpu.BufferUsageStorage, WithGrowthFactor(2))
	require.NoError(t, err)

	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i)
	}
	resized, err := b.Upload(data)
	require.NoError(t, err)
	assert.True(t, resized)
	assert.Equal(t, uint64(512), b.Capacity())
	assert.Equal(t, data, alloc.created[0].data[:300])

	require.NoError(t, b.UploadAt(4, []byte{0xFF}))
	assert.Equal(t, byte(0xFF), alloc.created[0].data[4])
	assert.Error(t, b.UploadAt(510, []byte{1, 2, 3}))
}

func TestReleasedBufferRejectsUse(t *testing.T) {
	alloc := &fakeAllocator{}
	b, err := NewManagedBuffer("roots", alloc, wgpu.BufferUsageStorage, WithInitialCapacity(256))
	require.NoError(t, err)

	b.Release()
	b.Release()
	assert.True(t, alloc.created[0].released)
	assert.Zero(t, b.Capacity())

	_, err = b.EnsureCapacity(1)
	assert.ErrorIs(t, err, ErrReleased)
	_, err = b.Upload([]byte{1})
	assert.ErrorIs(t, err, ErrReleased)
	assert.ErrorIs(t, b.UploadAt(0, []byte{1}), ErrReleased)
}
