package renderer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

// hostBuffer is a software backend buffer backed by a word slice so every view is 4-byte aligned.
type hostBuffer struct {
	label    string
	size     uint64
	words    []uint32
	released atomic.Bool
}

var _ bind_group_provider.Buffer = &hostBuffer{}

func (b *hostBuffer) Label() string {
	return b.label
}

func (b *hostBuffer) Size() uint64 {
	return b.size
}

func (b *hostBuffer) Released() bool {
	return b.released.Load()
}

func (b *hostBuffer) Release() {
	b.released.Store(true)
}

func (b *hostBuffer) bytes() []byte {
	return common.SliceToBytes(b.words)[:b.size]
}

// hostBindGroup snapshots the buffers bound to one group at creation time.
type hostBindGroup struct {
	label    string
	buffers  map[int]*hostBuffer
	released atomic.Bool
}

var _ bind_group_provider.BindGroup = &hostBindGroup{}

func (g *hostBindGroup) Release() {
	g.released.Store(true)
}

// stale reports the first reason the bind group may not be used.
func (g *hostBindGroup) stale() error {
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

// hostResources resolves kernel buffer lookups against the bind groups of one dispatch.
type hostResources map[int]*hostBindGroup

func (r hostResources) Buffer(group, binding int) []byte {
	g, ok := r[group]
	if !ok {
		return nil
	}
	buf, ok := g.buffers[binding]
	if !ok {
		return nil
	}
	return buf.bytes()
}

type softwareCommand struct {
	barrier  bool
	pipeline pipeline.Pipeline
	groups   hostResources
	count    [3]uint32
}

type softwareOp struct {
	// exactly one of the following is set
	write  *softwareWrite
	frame  []softwareCommand
	read   *softwareRead
	signal FrameSignal
}

type softwareWrite struct {
	buf    *hostBuffer
	offset uint64
	data   []byte
}

type softwareRead struct {
	buf    *hostBuffer
	offset uint64
	size   uint64
	reply  chan softwareReadResult
}

type softwareReadResult struct {
	data []byte
	err  error
}

// softwareRendererBackendImpl executes compute pipelines on the host. Writes, submits and
// reads are queued in order and drained by a single goroutine, so submits are asynchronous
// exactly like a device queue. Workgroups of a dispatch run on a worker pool; a recorded
// barrier waits for every workgroup submitted before it.
type softwareRendererBackendImpl struct {
	mu     *sync.Mutex
	logger *slog.Logger

	pool    worker.DynamicWorkerPool
	workers int
	taskID  atomic.Int64

	ops      chan softwareOp
	done     chan struct{}
	released bool

	frame     []softwareCommand
	recording bool

	submitted atomic.Uint64

	signalMu   *sync.Mutex
	signalCond *sync.Cond
	completed  FrameSignal
	frameErrs  map[FrameSignal]error
}

var _ RendererBackend = &softwareRendererBackendImpl{}

func newSoftwareRendererBackend(workers int, logger *slog.Logger) RendererBackend {
	workers = max(workers, 1)
	b := &softwareRendererBackendImpl{
		mu:        &sync.Mutex{},
		logger:    logger,
		pool:      worker.NewDynamicWorkerPool(workers, 256, 1*time.Second),
		workers:   workers,
		ops:       make(chan softwareOp, 64),
		done:      make(chan struct{}),
		signalMu:  &sync.Mutex{},
		frameErrs: make(map[FrameSignal]error),
	}
	b.signalCond = sync.NewCond(b.signalMu)
	go b.run()
	return b
}

func (b *softwareRendererBackendImpl) RegisterComputePipeline(p pipeline.Pipeline) error {
	if p.Kernel() == nil {
		return fmt.Errorf("pipeline %q has no host kernel", p.PipelineKey())
	}
	return nil
}

func (b *softwareRendererBackendImpl) CreateBuffer(label string, size uint64, _ wgpu.BufferUsage) (bind_group_provider.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil, ErrRendererReleased
	}
	if size == 0 {
		return nil, fmt.Errorf("buffer %q: size must be greater than zero", label)
	}
	return &hostBuffer{
		label: label,
		size:  size,
		words: make([]uint32, common.CeilDiv(size, 4)),
	}, nil
}

func (b *softwareRendererBackendImpl) InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor) error {
	bg := &hostBindGroup{
		label:   provider.Label() + " Bind Group",
		buffers: make(map[int]*hostBuffer, len(descriptor.Entries)),
	}
	for _, entry := range descriptor.Entries {
		binding := int(entry.Binding)
		buf, ok := provider.Buffer(binding).(*hostBuffer)
		if !ok || buf == nil {
			return fmt.Errorf("%s: binding %d has no software buffer", provider.Label(), binding)
		}
		if buf.Released() {
			return fmt.Errorf("%s: binding %d: %w", provider.Label(), binding, ErrBufferReleased)
		}
		if buf.size < entry.Buffer.MinBindingSize {
			return fmt.Errorf("%s: binding %d is %d bytes, below the minimum binding size %d", provider.Label(), binding, buf.size, entry.Buffer.MinBindingSize)
		}
		bg.buffers[binding] = buf
	}
	provider.SetBindGroup(bg)
	return nil
}

func (b *softwareRendererBackendImpl) WriteBuffer(buf bind_group_provider.Buffer, offset uint64, data []byte) error {
	hb, ok := buf.(*hostBuffer)
	if !ok || hb == nil {
		return fmt.Errorf("write target is not a software buffer")
	}
	if hb.Released() {
		return fmt.Errorf("%s: %w", hb.label, ErrBufferReleased)
	}
	if offset+uint64(len(data)) > hb.size {
		return fmt.Errorf("%s: write of %d bytes at %d exceeds size %d: %w", hb.label, len(data), offset, hb.size, ErrOutOfBounds)
	}
	if len(data) == 0 {
		return nil
	}
	owned := make([]byte, len(data))
	copy(owned, data)
	return b.enqueue(softwareOp{write: &softwareWrite{buf: hb, offset: offset, data: owned}})
}

func (b *softwareRendererBackendImpl) BeginComputeFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return ErrRendererReleased
	}
	if b.recording {
		return ErrComputeFrameOpen
	}
	b.recording = true
	b.frame = nil
	return nil
}

func (b *softwareRendererBackendImpl) DispatchCompute(p pipeline.Pipeline, providers []bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.recording {
		return ErrNoComputeFrame
	}
	if p.Kernel() == nil {
		return fmt.Errorf("pipeline %q has no host kernel", p.PipelineKey())
	}

	groups := make(hostResources, len(providers))
	for _, provider := range providers {
		if provider.Dirty() {
			return fmt.Errorf("%w: %s must be rebound", ErrStaleBindGroup, provider.Label())
		}
		bg, ok := provider.BindGroup().(*hostBindGroup)
		if !ok || bg == nil {
			return fmt.Errorf("%w: %s has no bind group", ErrStaleBindGroup, provider.Label())
		}
		if err := bg.stale(); err != nil {
			return err
		}
		groups[provider.Group()] = bg
	}

	if workGroupCount[0] == 0 || workGroupCount[1] == 0 || workGroupCount[2] == 0 {
		return nil
	}
	b.frame = append(b.frame, softwareCommand{pipeline: p, groups: groups, count: workGroupCount})
	return nil
}

func (b *softwareRendererBackendImpl) Barrier() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.recording {
		return ErrNoComputeFrame
	}
	b.frame = append(b.frame, softwareCommand{barrier: true})
	return nil
}

func (b *softwareRendererBackendImpl) EndComputeFrame() (FrameSignal, error) {
	b.mu.Lock()
	if !b.recording {
		b.mu.Unlock()
		return 0, ErrNoComputeFrame
	}
	frame := b.frame
	b.frame = nil
	b.recording = false
	signal := FrameSignal(b.submitted.Add(1))
	b.mu.Unlock()

	if err := b.enqueue(softwareOp{frame: frame, signal: signal}); err != nil {
		return 0, err
	}
	return signal, nil
}

func (b *softwareRendererBackendImpl) DiscardComputeFrame() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frame = nil
	b.recording = false
}

func (b *softwareRendererBackendImpl) Wait(signal FrameSignal) error {
	if uint64(signal) > b.submitted.Load() {
		return fmt.Errorf("signal %d has not been submitted", signal)
	}
	b.signalMu.Lock()
	defer b.signalMu.Unlock()
	for b.completed < signal {
		b.signalCond.Wait()
	}
	var errs []error
	for s, err := range b.frameErrs {
		if s <= signal {
			errs = append(errs, fmt.Errorf("frame %d: %w", s, err))
			delete(b.frameErrs, s)
		}
	}
	return errors.Join(errs...)
}

func (b *softwareRendererBackendImpl) ReadBuffer(buf bind_group_provider.Buffer, offset, size uint64) ([]byte, error) {
	hb, ok := buf.(*hostBuffer)
	if !ok || hb == nil {
		return nil, fmt.Errorf("read source is not a software buffer")
	}
	if hb.Released() {
		return nil, fmt.Errorf("%s: %w", hb.label, ErrBufferReleased)
	}
	if offset+size > hb.size {
		return nil, fmt.Errorf("%s: read of %d bytes at %d exceeds size %d: %w", hb.label, size, offset, hb.size, ErrOutOfBounds)
	}
	reply := make(chan softwareReadResult, 1)
	if err := b.enqueue(softwareOp{read: &softwareRead{buf: hb, offset: offset, size: size, reply: reply}}); err != nil {
		return nil, err
	}
	res := <-reply
	return res.data, res.err
}

func (b *softwareRendererBackendImpl) SignalCount() uint64 {
	return b.submitted.Load()
}

func (b *softwareRendererBackendImpl) Release() {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return
	}
	b.released = true
	close(b.ops)
	b.mu.Unlock()
	<-b.done
}

func (b *softwareRendererBackendImpl) enqueue(op softwareOp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return ErrRendererReleased
	}
	b.ops <- op
	return nil
}

// run drains the queue in submission order.
func (b *softwareRendererBackendImpl) run() {
	defer close(b.done)
	for op := range b.ops {
		switch {
		case op.write != nil:
			if op.write.buf.Released() {
				continue
			}
			copy(op.write.buf.bytes()[op.write.offset:], op.write.data)
		case op.read != nil:
			r := op.read
			if r.buf.Released() {
				r.reply <- softwareReadResult{err: fmt.Errorf("%s: %w", r.buf.label, ErrBufferReleased)}
				continue
			}
			out := make([]byte, r.size)
			copy(out, r.buf.bytes()[r.offset:r.offset+r.size])
			r.reply <- softwareReadResult{data: out}
		default:
			err := b.execute(op.frame)
			if err != nil {
				b.logger.Error("software compute frame failed", "signal", op.signal, "err", err)
			}
			b.signalMu.Lock()
			if err != nil {
				b.frameErrs[op.signal] = err
			}
			b.completed = op.signal
			b.signalCond.Broadcast()
			b.signalMu.Unlock()
		}
	}
}

// execute runs one submitted frame. Workgroups between two barriers may run concurrently.
func (b *softwareRendererBackendImpl) execute(frame []softwareCommand) error {
	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
	}
	failed := func() bool {
		errMu.Lock()
		defer errMu.Unlock()
		return firstErr != nil
	}

	for _, cmd := range frame {
		if cmd.barrier {
			wg.Wait()
			if failed() {
				return firstErr
			}
			continue
		}
		for _, g := range cmd.groups {
			if err := g.stale(); err != nil {
				wg.Wait()
				return err
			}
		}
		b.dispatch(cmd, &wg, fail)
	}
	wg.Wait()
	return firstErr
}

// dispatch splits the workgroups of one command into chunks and submits them to the pool.
func (b *softwareRendererBackendImpl) dispatch(cmd softwareCommand, wg *sync.WaitGroup, fail func(error)) {
	nx, ny, nz := cmd.count[0], cmd.count[1], cmd.count[2]
	total := uint64(nx) * uint64(ny) * uint64(nz)
	chunks := min(total, uint64(b.workers*4))
	per := common.CeilDiv(total, chunks)
	kernel := cmd.pipeline.Kernel()
	key := cmd.pipeline.PipelineKey()

	for start := uint64(0); start < total; start += per {
		end := min(start+per, total)
		wg.Add(1)
		b.pool.SubmitTask(worker.Task{
			ID: int(b.taskID.Add(1)),
			Do: func() (any, error) {
				defer wg.Done()
				for i := start; i < end; i++ {
					id := [3]uint32{uint32(i % uint64(nx)), uint32(i / uint64(nx) % uint64(ny)), uint32(i / (uint64(nx) * uint64(ny)))}
					if err := kernel(id, cmd.groups); err != nil {
						fail(fmt.Errorf("%s workgroup %v: %w", key, id, err))
						return nil, nil
					}
				}
				return nil, nil
			},
		})
	}
}
