package managed_buffer

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/bind_group_provider"
	"github.com/cogentcore/webgpu/wgpu"
)

// SizeAlignment is the granularity every allocation is rounded up to.
const SizeAlignment uint64 = 256

// DefaultGrowthFactor is the factor capacity is multiplied by when a buffer has to grow.
const DefaultGrowthFactor = 1.5

// ErrReleased is returned by every operation on a released ManagedBuffer.
var ErrReleased = errors.New("managed buffer released")

// Allocator creates and writes the backing buffers. The renderer satisfies it.
type Allocator interface {
	// CreateBuffer allocates a zeroed buffer.
	//
	// Parameters:
	//   - label: the debug label
	//   - size: the size in bytes
	//   - usage: the usage flags
	//
	// Returns:
	//   - bind_group_provider.Buffer: the new buffer
	//   - error: an error if allocation failed
	CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (bind_group_provider.Buffer, error)

	// WriteBuffer queues a write into a buffer.
	//
	// Parameters:
	//   - buf: the destination buffer
	//   - offset: the byte offset
	//   - data: the bytes to write
	//
	// Returns:
	//   - error: an error if the write is out of bounds or the buffer is released
	WriteBuffer(buf bind_group_provider.Buffer, offset uint64, data []byte) error
}

// binding is a provider slot the backing buffer is attached to.
type binding struct {
	provider bind_group_provider.BindGroupProvider
	index    int
}

// managedBuffer is the implementation of the ManagedBuffer interface.
type managedBuffer struct {
	mu *sync.Mutex

	label     string
	usage     wgpu.BufferUsage
	allocator Allocator

	growth      float64
	minCapacity uint64

	buffer   bind_group_provider.Buffer
	capacity uint64

	bindings []binding
	released bool
}

// ManagedBuffer is a growable storage buffer. Capacity only grows; a grow replaces the backing
// buffer without preserving its contents, so callers re-upload and rebind after a resize.
type ManagedBuffer interface {
	// Label returns the debug label.
	//
	// Returns:
	//   - string: the label
	Label() string

	// Capacity returns the current backing buffer size in bytes, 0 before the first allocation.
	//
	// Returns:
	//   - uint64: the capacity
	Capacity() uint64

	// Buffer returns the current backing buffer, or nil before the first allocation.
	//
	// Returns:
	//   - bind_group_provider.Buffer: the backing buffer
	Buffer() bind_group_provider.Buffer

	// EnsureCapacity grows the buffer so it holds at least required bytes. On a resize the old
	// buffer is released and every provider slot the buffer is bound to gets the new buffer,
	// which marks those providers dirty.
	//
	// Parameters:
	//   - required: the number of bytes needed
	//
	// Returns:
	//   - bool: true if the backing buffer was replaced
	//   - error: an error if allocation failed; the old buffer is kept in that case
	EnsureCapacity(required uint64) (bool, error)

	// Upload grows the buffer to fit data and queues a write of data at offset 0.
	//
	// Parameters:
	//   - data: the bytes to write
	//
	// Returns:
	//   - bool: true if the backing buffer was replaced
	//   - error: an error if growth or the write failed
	Upload(data []byte) (bool, error)

	// UploadAt queues a write of data at offset without growing.
	//
	// Parameters:
	//   - offset: the byte offset
	//   - data: the bytes to write
	//
	// Returns:
	//   - error: an error if the write does not fit the current capacity
	UploadAt(offset uint64, data []byte) error

	// BindTo attaches the backing buffer to a provider binding, now and after every resize.
	//
	// Parameters:
	//   - provider: the provider to bind into
	//   - index: the @binding index
	BindTo(provider bind_group_provider.BindGroupProvider, index int)

	// Release frees the backing buffer. Later calls fail with ErrReleased.
	Release()
}

var _ ManagedBuffer = &managedBuffer{}

// NewManagedBuffer creates a ManagedBuffer. No memory is allocated until the first
// EnsureCapacity or Upload, unless WithInitialCapacity is given.
//
// Parameters:
//   - label: the debug label of every backing buffer
//   - allocator: the allocator that creates and writes backing buffers
//   - usage: the usage flags of every backing buffer
//   - options: a variadic list of ManagedBufferBuilderOption functions
//
// Returns:
//   - ManagedBuffer: the managed buffer
//   - error: an error if the initial allocation failed
func NewManagedBuffer(label string, allocator Allocator, usage wgpu.BufferUsage, options ...ManagedBufferBuilderOption) (ManagedBuffer, error) {
	b := &managedBuffer{
		mu:        &sync.Mutex{},
		label:     label,
		usage:     usage,
		allocator: allocator,
		growth:    DefaultGrowthFactor,
	}
	for _, opt := range options {
		opt(b)
	}
	if b.minCapacity > 0 {
		if _, err := b.EnsureCapacity(b.minCapacity); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *managedBuffer) Label() string {
	return b.label
}

func (b *managedBuffer) Capacity() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity
}

func (b *managedBuffer) Buffer() bind_group_provider.Buffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer
}

func (b *managedBuffer) EnsureCapacity(required uint64) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ensureCapacity(required)
}

func (b *managedBuffer) ensureCapacity(required uint64) (bool, error) {
	if b.released {
		return false, fmt.Errorf("%s: %w", b.label, ErrReleased)
	}
	if required <= b.capacity && b.buffer != nil {
		return false, nil
	}

	size := GrowSize(b.capacity, required, b.growth)
	next, err := b.allocator.CreateBuffer(b.label, size, b.usage)
	if err != nil {
		return false, fmt.Errorf("%s: grow to %d bytes: %w", b.label, size, err)
	}

	if b.buffer != nil {
		b.buffer.Release()
	}
	b.buffer = next
	b.capacity = size
	for _, s := range b.bindings {
		s.provider.SetBuffer(s.index, next)
	}
	return true, nil
}

func (b *managedBuffer) Upload(data []byte) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	resized, err := b.ensureCapacity(uint64(len(data)))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return resized, nil
	}
	if err := b.allocator.WriteBuffer(b.buffer, 0, data); err != nil {
		return resized, fmt.Errorf("%s: %w", b.label, err)
	}
	return resized, nil
}

func (b *managedBuffer) UploadAt(offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return fmt.Errorf("%s: %w", b.label, ErrReleased)
	}
	if offset+uint64(len(data)) > b.capacity {
		return fmt.Errorf("%s: write of %d bytes at %d exceeds capacity %d", b.label, len(data), offset, b.capacity)
	}
	if len(data) == 0 {
		return nil
	}
	if err := b.allocator.WriteBuffer(b.buffer, offset, data); err != nil {
		return fmt.Errorf("%s: %w", b.label, err)
	}
	return nil
}

func (b *managedBuffer) BindTo(provider bind_group_provider.BindGroupProvider, index int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bindings = append(b.bindings, binding{provider: provider, index: index})
	if b.buffer != nil {
		provider.SetBuffer(index, b.buffer)
	}
}

func (b *managedBuffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return
	}
	b.released = true
	if b.buffer != nil {
		b.buffer.Release()
		b.buffer = nil
	}
	b.capacity = 0
	b.bindings = nil
}

// GrowSize returns the allocation size for a buffer of the given capacity that must hold
// required bytes: max(required, capacity*growth), rounded up to SizeAlignment and never 0.
//
// Parameters:
//   - capacity: the current capacity in bytes
//   - required: the number of bytes needed
//   - growth: the growth factor, values below 1 are treated as 1
//
// Returns:
//   - uint64: the new size in bytes
func GrowSize(capacity, required uint64, growth float64) uint64 {
	growth = math.Max(growth, 1)
	size := max(required, uint64(math.Ceil(float64(capacity)*growth)), 1)
	return common.RoundUp(size, SizeAlignment)
}
