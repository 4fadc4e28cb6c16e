package bind_group_provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeBuffer struct {
	label    string
	size     uint64
	releases int
}

func (b *fakeBuffer) Label() string {
	return b.label
}

func (b *fakeBuffer) Size() uint64 {
	return b.size
}

func (b *fakeBuffer) Released() bool {
	return b.releases > 0
}

func (b *fakeBuffer) Release() {
	b.releases++
}

type fakeBindGroup struct{ releases int }

func (g *fakeBindGroup) Release() {
	g.releases++
}

func TestNewBindGroupProviderKeepsLabel(t *testing.T) {
	p := NewBindGroupProvider("arena", WithGroup(1))
	assert.Equal(t, "arena", p.Label())
	assert.Equal(t, 1, p.Group())
	assert.Nil(t, p.BindGroup())
	assert.False(t, p.Dirty())
}

func TestReplacingBufferMarksDirty(t *testing.T) {
	a := &fakeBuffer{label: "a", size: 256}
	p := NewBindGroupProvider("p", WithBuffer(0, a))

	p.SetBuffer(0, a)
	assert.False(t, p.Dirty(), "rebinding the same buffer is not a change")

	b := &fakeBuffer{label: "b", size: 512}
	p.SetBuffer(0, b)
	assert.True(t, p.Dirty())
	assert.Same(t, b, p.Buffer(0))

	bg := &fakeBindGroup{}
	p.SetBindGroup(bg)
	assert.False(t, p.Dirty())
}

func TestSetBindGroupReleasesPrevious(t *testing.T) {
	p := NewBindGroupProvider("p")
	first, second := &fakeBindGroup{}, &fakeBindGroup{}
	p.SetBindGroup(first)
	p.SetBindGroup(second)
	assert.Equal(t, 1, first.releases)
	assert.Equal(t, 0, second.releases)
}

func TestReleaseFreesEverything(t *testing.T) {
	a := &fakeBuffer{label: "a"}
	bg := &fakeBindGroup{}
	p := NewBindGroupProvider("p", WithBuffers(map[int]Buffer{0: a}), WithBindGroup(bg))

	p.Release()
	assert.True(t, a.Released())
	assert.Equal(t, 1, bg.releases)
	assert.Nil(t, p.BindGroup())
	assert.Empty(t, p.Buffers())
	assert.True(t, p.Dirty())
}

func TestBufferWriteTarget(t *testing.T) {
	a := &fakeBuffer{label: "a"}
	p := NewBindGroupProvider("p", WithBuffer(2, a))
	assert.Same(t, a, BufferWrite{Provider: p, Binding: 2}.Target())
	assert.Nil(t, BufferWrite{Provider: p, Binding: 3}.Target())
	assert.Nil(t, BufferWrite{}.Target())
}
