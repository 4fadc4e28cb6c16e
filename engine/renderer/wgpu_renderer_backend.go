package renderer

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

// wgpuBuffer wraps a device buffer so it can be bound through a BindGroupProvider.
type wgpuBuffer struct {
	label    string
	size     uint64
	buffer   *wgpu.Buffer
	released atomic.Bool
}

var _ bind_group_provider.Buffer = &wgpuBuffer{}

func (b *wgpuBuffer) Label() string {
	return b.label
}

func (b *wgpuBuffer) Size() uint64 {
	return b.size
}

func (b *wgpuBuffer) Released() bool {
	return b.released.Load()
}

func (b *wgpuBuffer) Release() {
	if b.released.Swap(true) {
		return
	}
	b.buffer.Release()
}

// wgpuBindGroup wraps a device bind group together with the buffers it references.
type wgpuBindGroup struct {
	label     string
	bindGroup *wgpu.BindGroup
	buffers   map[int]*wgpuBuffer
	released  atomic.Bool
}

var _ bind_group_provider.BindGroup = &wgpuBindGroup{}

func (g *wgpuBindGroup) Release() {
	if g.released.Swap(true) {
		return
	}
	g.bindGroup.Release()
}

func (g *wgpuBindGroup) stale() error {
	if g.released.Load() {
		return fmt.Errorf("%w: %s was released", ErrStaleBindGroup, g.label)
	}
	for binding, buf := range g.buffers {
		if buf.Released() {
			return fmt.Errorf("%w: %s binding %d references released buffer %s", ErrStaleBindGroup, g.label, binding, buf.label)
		}
	}
	return nil
}

type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	logger *slog.Logger

	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter

	// layouts caches bind group layouts by entry signature; pipelines sharing a binding block
	// share the layout object.
	layouts map[string]*wgpu.BindGroupLayout

	// Compute frame state for batching all compute dispatches into a single GPU submission.
	// Dispatches between two barriers share one compute pass.
	computeFrameEncoder *wgpu.CommandEncoder
	computePass         *wgpu.ComputePassEncoder

	submitted atomic.Uint64
	completed FrameSignal
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

// newWGPURendererBackend requests a headless adapter and device. It panics when no adapter or
// device is available.
func newWGPURendererBackend(forceFallbackAdapter bool, logger *slog.Logger) RendererBackend {
	runtime.LockOSThread()
	w := &wgpuRendererBackendImpl{
		mu:       &sync.Mutex{},
		logger:   logger,
		instance: wgpu.CreateInstance(nil),
		layouts:  make(map[string]*wgpu.BindGroupLayout),
	}

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
	})
	if err != nil {
		panic(err)
	}
	w.adapter = a

	// The arena and per-model groups are the only two groups in use.
	limits := wgpu.DefaultLimits()

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Compute Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		panic(err)
	}
	w.device = d
	w.queue = d.GetQueue()

	return w
}

func (b *wgpuRendererBackendImpl) RegisterComputePipeline(p pipeline.Pipeline) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	computeShader := p.Shader()
	if computeShader == nil {
		return errors.New("compute shader must be set to create a compute pipeline")
	}

	s, err := b.device.CreateShaderModule(computeShader.Module())
	if err != nil {
		return err
	}
	defer s.Release()

	descriptors := computeShader.BindGroupLayoutDescriptors()
	maxGroup := -1
	for g := range descriptors {
		if g > maxGroup {
			maxGroup = g
		}
	}
	bindGroupLayouts := make([]*wgpu.BindGroupLayout, maxGroup+1)
	for g := 0; g <= maxGroup; g++ {
		bgl, bglErr := b.layoutFor(descriptors[g])
		if bglErr != nil {
			return fmt.Errorf("failed to create bind group layout for group %d: %w", g, bglErr)
		}
		bindGroupLayouts[g] = bgl
	}

	layout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.PipelineKey(),
		BindGroupLayouts: bindGroupLayouts,
	})
	if err != nil {
		return err
	}
	defer layout.Release()

	created, err := b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  p.PipelineKey() + " Compute Pipeline",
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     s,
			EntryPoint: computeShader.EntryPoint(),
		},
	})
	if err != nil {
		return err
	}

	p.SetComputePipeline(created)
	return nil
}

// layoutFor returns the cached bind group layout for a descriptor, creating it on first use.
// Caller holds b.mu.
func (b *wgpuRendererBackendImpl) layoutFor(descriptor wgpu.BindGroupLayoutDescriptor) (*wgpu.BindGroupLayout, error) {
	key := layoutKey(descriptor)
	if bgl, ok := b.layouts[key]; ok {
		return bgl, nil
	}
	bgl, err := b.device.CreateBindGroupLayout(&descriptor)
	if err != nil {
		return nil, err
	}
	b.layouts[key] = bgl
	return bgl, nil
}

func layoutKey(descriptor wgpu.BindGroupLayoutDescriptor) string {
	var sb strings.Builder
	for _, e := range descriptor.Entries {
		fmt.Fprintf(&sb, "%d:%d:%d:%d;", e.Binding, e.Visibility, e.Buffer.Type, e.Buffer.MinBindingSize)
	}
	return sb.String()
}

func (b *wgpuRendererBackendImpl) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (bind_group_provider.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if size == 0 {
		return nil, fmt.Errorf("buffer %q: size must be greater than zero", label)
	}
	size = common.RoundUp(size, 4)
	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            label,
		Size:             size,
		Usage:            usage,
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, err
	}
	return &wgpuBuffer{label: label, size: size, buffer: buf}, nil
}

func (b *wgpuRendererBackendImpl) InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(descriptor.Entries) == 0 {
		return nil
	}

	layout, err := b.layoutFor(descriptor)
	if err != nil {
		return err
	}

	bg := &wgpuBindGroup{
		label:   provider.Label() + " Bind Group",
		buffers: make(map[int]*wgpuBuffer, len(descriptor.Entries)),
	}
	bindGroupEntries := make([]wgpu.BindGroupEntry, len(descriptor.Entries))
	for i, entry := range descriptor.Entries {
		binding := int(entry.Binding)
		buf, ok := provider.Buffer(binding).(*wgpuBuffer)
		if !ok || buf == nil {
			return fmt.Errorf("%s: binding %d has no device buffer", provider.Label(), binding)
		}
		if buf.Released() {
			return fmt.Errorf("%s: binding %d: %w", provider.Label(), binding, ErrBufferReleased)
		}
		bg.buffers[binding] = buf
		bindGroupEntries[i] = wgpu.BindGroupEntry{
			Binding: entry.Binding,
			Buffer:  buf.buffer,
			Offset:  0,
			Size:    wgpu.WholeSize,
		}
	}

	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   bg.label,
		Layout:  layout,
		Entries: bindGroupEntries,
	})
	if err != nil {
		return err
	}
	bg.bindGroup = bindGroup
	provider.SetBindGroup(bg)

	return nil
}

func (b *wgpuRendererBackendImpl) WriteBuffer(buf bind_group_provider.Buffer, offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	wb, ok := buf.(*wgpuBuffer)
	if !ok || wb == nil {
		return fmt.Errorf("write target is not a device buffer")
	}
	if wb.Released() {
		return fmt.Errorf("%s: %w", wb.label, ErrBufferReleased)
	}
	if offset+uint64(len(data)) > wb.size {
		return fmt.Errorf("%s: write of %d bytes at %d exceeds size %d: %w", wb.label, len(data), offset, wb.size, ErrOutOfBounds)
	}
	if len(data) == 0 {
		return nil
	}
	b.queue.WriteBuffer(wb.buffer, offset, data)
	return nil
}

func (b *wgpuRendererBackendImpl) BeginComputeFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder != nil {
		return ErrComputeFrameOpen
	}
	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	b.computeFrameEncoder = encoder
	return nil
}

func (b *wgpuRendererBackendImpl) DispatchCompute(
	p pipeline.Pipeline,
	providers []bind_group_provider.BindGroupProvider,
	workGroupCount [3]uint32,
) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder == nil {
		return ErrNoComputeFrame
	}
	computePipeline := p.Pipeline()
	if computePipeline == nil {
		return fmt.Errorf("%w: %s was not registered with the device", ErrPipelineNotFound, p.PipelineKey())
	}

	bindGroups := make([]*wgpuBindGroup, len(providers))
	for i, provider := range providers {
		if provider.Dirty() {
			return fmt.Errorf("%w: %s must be rebound", ErrStaleBindGroup, provider.Label())
		}
		bg, ok := provider.BindGroup().(*wgpuBindGroup)
		if !ok || bg == nil {
			return fmt.Errorf("%w: %s has no bind group", ErrStaleBindGroup, provider.Label())
		}
		if err := bg.stale(); err != nil {
			return err
		}
		bindGroups[i] = bg
	}

	if workGroupCount[0] == 0 || workGroupCount[1] == 0 || workGroupCount[2] == 0 {
		return nil
	}

	if b.computePass == nil {
		b.computePass = b.computeFrameEncoder.BeginComputePass(nil)
	}
	b.computePass.SetPipeline(computePipeline)
	for i, provider := range providers {
		b.computePass.SetBindGroup(uint32(provider.Group()), bindGroups[i].bindGroup, nil)
	}
	b.computePass.DispatchWorkgroups(workGroupCount[0], workGroupCount[1], workGroupCount[2])
	return nil
}

// Barrier ends the current compute pass. Storage writes of one pass are visible to the next.
func (b *wgpuRendererBackendImpl) Barrier() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder == nil {
		return ErrNoComputeFrame
	}
	b.endPass()
	return nil
}

func (b *wgpuRendererBackendImpl) endPass() {
	if b.computePass == nil {
		return
	}
	b.computePass.End()
	b.computePass.Release()
	b.computePass = nil
}

func (b *wgpuRendererBackendImpl) EndComputeFrame() (FrameSignal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder == nil {
		return 0, ErrNoComputeFrame
	}
	b.endPass()

	commandBuffer, err := b.computeFrameEncoder.Finish(nil)
	b.computeFrameEncoder.Release()
	b.computeFrameEncoder = nil
	if err != nil {
		return 0, err
	}

	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	return FrameSignal(b.submitted.Add(1)), nil
}

func (b *wgpuRendererBackendImpl) DiscardComputeFrame() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endPass()
	if b.computeFrameEncoder != nil {
		b.computeFrameEncoder.Release()
		b.computeFrameEncoder = nil
	}
}

func (b *wgpuRendererBackendImpl) Wait(signal FrameSignal) error {
	if uint64(signal) > b.submitted.Load() {
		return fmt.Errorf("signal %d has not been submitted", signal)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.completed >= signal {
		return nil
	}
	b.device.Poll(true, nil)
	b.completed = FrameSignal(b.submitted.Load())
	return nil
}

func (b *wgpuRendererBackendImpl) ReadBuffer(buf bind_group_provider.Buffer, offset, size uint64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wb, ok := buf.(*wgpuBuffer)
	if !ok || wb == nil {
		return nil, fmt.Errorf("read source is not a device buffer")
	}
	if wb.Released() {
		return nil, fmt.Errorf("%s: %w", wb.label, ErrBufferReleased)
	}
	if offset+size > wb.size {
		return nil, fmt.Errorf("%s: read of %d bytes at %d exceeds size %d: %w", wb.label, size, offset, wb.size, ErrOutOfBounds)
	}
	if size == 0 {
		return nil, nil
	}

	// copies must start and end on 4-byte boundaries
	start := offset &^ 3
	n := common.RoundUp(offset+size, 4) - start

	staging, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: wb.label + " Readback",
		Size:  n,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	defer staging.Release()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	encoder.CopyBufferToBuffer(wb.buffer, start, staging, 0, n)
	commandBuffer, err := encoder.Finish(nil)
	encoder.Release()
	if err != nil {
		return nil, err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()

	var status wgpu.BufferMapAsyncStatus
	if err := staging.MapAsync(wgpu.MapModeRead, 0, n, func(s wgpu.BufferMapAsyncStatus) {
		status = s
	}); err != nil {
		return nil, err
	}
	b.device.Poll(true, nil)
	b.completed = FrameSignal(b.submitted.Load())
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("%s: map for read failed: %s", wb.label, status.String())
	}

	mapped := staging.GetMappedRange(0, uint(n))
	out := make([]byte, size)
	copy(out, mapped[offset-start:])
	staging.Unmap()
	return out, nil
}

func (b *wgpuRendererBackendImpl) SignalCount() uint64 {
	return b.submitted.Load()
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.endPass()
	if b.computeFrameEncoder != nil {
		b.computeFrameEncoder.Release()
		b.computeFrameEncoder = nil
	}
	for key, bgl := range b.layouts {
		bgl.Release()
		delete(b.layouts, key)
	}
	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}
