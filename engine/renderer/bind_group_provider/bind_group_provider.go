package bind_group_provider

import (
	"sync"
)

// Buffer is a backend allocated GPU buffer. The wgpu backend wraps a *wgpu.Buffer and the
// software backend a host word slice; callers only see this interface.
type Buffer interface {
	// Label returns the debug label the buffer was created with.
	//
	// Returns:
	//   - string: the label
	Label() string

	// Size returns the allocated size in bytes.
	//
	// Returns:
	//   - uint64: the size
	Size() uint64

	// Released reports whether Release has been called.
	//
	// Returns:
	//   - bool: true once released
	Released() bool

	// Release frees the backing allocation. Calling it more than once is a no-op.
	Release()
}

// BindGroup is a backend bind group that references a fixed set of buffers.
type BindGroup interface {
	// Release frees the bind group. Calling it more than once is a no-op.
	Release()
}

// bindGroupProvider is the unexported implementation of BindGroupProvider.
type bindGroupProvider struct {
	mu *sync.Mutex

	// label is a debug label added for convenience.
	label string

	// group is the @group index this provider is bound to.
	group int

	// bindGroup is the backend bind group, or nil if not initialized with the Renderer.
	bindGroup BindGroup
	// buffers holds the buffers bound by this provider, keyed by binding index.
	buffers map[int]Buffer

	// dirty is set when a bound buffer was replaced and the bind group must be re-created.
	dirty bool
}

// BindGroupProvider defines the interface for components that require GPU bind group resources.
// A provider describes one @group of a compute shader: the buffers bound at each binding index
// and the bind group the Renderer created from them.
//
// Usage pattern:
//  1. Component creates a BindGroupProvider with a label and group index
//  2. Component (or a ManagedBuffer) stores buffers via SetBuffer()
//  3. Renderer.InitBindGroup(provider, layout) creates the bind group
//  4. Replacing a buffer marks the provider dirty; Renderer.RebindIfDirty re-creates the bind group
//  5. Renderer.DispatchCompute refuses dirty providers
type BindGroupProvider interface {
	// Release releases the bind group and every buffer held by this provider.
	Release()

	// Label returns the debug label for this provider.
	// Used for debugging and profiling purposes.
	//
	// Returns:
	//   - string: the debug label
	Label() string

	// Group returns the @group index this provider binds.
	//
	// Returns:
	//   - int: the group index
	Group() int

	// BindGroup returns the created bind group for shader binding.
	// Returns nil if GPU resources have not been initialized.
	//
	// Returns:
	//   - BindGroup: the bind group or nil
	BindGroup() BindGroup

	// Buffer returns the buffer bound at a binding index.
	// Returns nil if no buffer is bound there.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - Buffer: the buffer or nil
	Buffer(binding int) Buffer

	// Buffers returns a copy of all buffers associated with this provider, keyed by binding index.
	//
	// Returns:
	//   - map[int]Buffer: a map of buffers keyed by binding index
	Buffers() map[int]Buffer

	// SetBindGroup sets the bind group after GPU initialization and clears the dirty flag.
	// Any previous bind group is released.
	// Called by Renderer.InitBindGroup() and Renderer.RebindIfDirty().
	//
	// Parameters:
	//   - bg: the created bind group
	SetBindGroup(bg BindGroup)

	// SetBuffer binds a buffer at a binding index. Replacing a different buffer marks the
	// provider dirty.
	//
	// Parameters:
	//   - binding: the binding index
	//   - buf: the buffer to bind
	SetBuffer(binding int, buf Buffer)

	// SetBuffers binds multiple buffers at once and marks the provider dirty.
	//
	// Parameters:
	//   - buffers: a map of buffers keyed by binding index
	SetBuffers(buffers map[int]Buffer)

	// MarkDirty flags the bind group as stale.
	MarkDirty()

	// Dirty reports whether the bind group must be re-created before the next dispatch.
	//
	// Returns:
	//   - bool: true if dirty
	Dirty() bool
}

// Compile-time check that bindGroupProvider implements BindGroupProvider
var _ BindGroupProvider = &bindGroupProvider{}

// NewBindGroupProvider creates a new BindGroupProvider with the provided options.
//
// Parameters:
//   - label: the debug label
//   - options: a variadic list of options to configure the provider
//
// Returns:
//   - BindGroupProvider: a new instance of BindGroupProvider configured with the provided options
func NewBindGroupProvider(label string, options ...BindGroupProviderOption) BindGroupProvider {
	p := &bindGroupProvider{
		mu:      &sync.Mutex{},
		label:   label,
		buffers: make(map[int]Buffer),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *bindGroupProvider) Label() string {
	return p.label
}

func (p *bindGroupProvider) Group() int {
	return p.group
}

func (p *bindGroupProvider) BindGroup() BindGroup {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bindGroup
}

func (p *bindGroupProvider) Buffer(binding int) Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffers[binding]
}

func (p *bindGroupProvider) Buffers() map[int]Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[int]Buffer, len(p.buffers))
	for k, v := range p.buffers {
		out[k] = v
	}
	return out
}

func (p *bindGroupProvider) SetBindGroup(bg BindGroup) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bindGroup != nil && p.bindGroup != bg {
		p.bindGroup.Release()
	}
	p.bindGroup = bg
	p.dirty = false
}

func (p *bindGroupProvider) SetBuffer(binding int, buf Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.buffers[binding] != buf {
		p.dirty = true
	}
	p.buffers[binding] = buf
}

func (p *bindGroupProvider) SetBuffers(buffers map[int]Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffers = make(map[int]Buffer, len(buffers))
	for k, v := range buffers {
		p.buffers[k] = v
	}
	p.dirty = true
}

func (p *bindGroupProvider) MarkDirty() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirty = true
}

func (p *bindGroupProvider) Dirty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dirty
}

func (p *bindGroupProvider) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, buf := range p.buffers {
		if buf != nil {
			buf.Release()
		}
		delete(p.buffers, i)
	}
	if p.bindGroup != nil {
		p.bindGroup.Release()
		p.bindGroup = nil
	}
	p.dirty = true
}
