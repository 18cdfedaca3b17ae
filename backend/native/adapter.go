// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/splat/gpucore"
	"github.com/gogpu/splat/internal/shader"
)

// DefaultWaitTimeout bounds every wait for submitted work.
const DefaultWaitTimeout = 5 * time.Second

// maxInFlight is the number of submissions allowed to run ahead of the host.
const maxInFlight = 2

// Option configures an Adapter.
type Option func(*Adapter)

// WithSPIRV compiles WGSL to SPIR-V with naga before module creation, for
// devices that do not accept WGSL directly.
func WithSPIRV() Option {
	return func(a *Adapter) {
		a.spirv = true
	}
}

// WithWaitTimeout sets how long a wait for submitted work may block.
func WithWaitTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.waitTimeout = d
		}
	}
}

// WithLimits declares the limits the device was opened with.
// Default is gputypes.DefaultLimits().
func WithLimits(l gputypes.Limits) Option {
	return func(a *Adapter) {
		a.limits = limitsFrom(l)
	}
}

// Adapter implements gpucore.GPUAdapter on a hal device.
//
// Thread Safety: Adapter is safe for concurrent use. Resource maps are
// guarded by an RWMutex; submissions are serialized.
//
// Destroy* calls remove the ID at once but release the hal object only
// after every submission made before the call has completed.
type Adapter struct {
	mu     sync.RWMutex
	device hal.Device
	queue  hal.Queue

	limits      gpucore.Limits
	spirv       bool
	waitTimeout time.Duration

	nextID atomic.Uint64

	buffers          map[gpucore.BufferID]*buffer
	textures         map[gpucore.TextureID]*texture
	shaderModules    map[gpucore.ShaderModuleID]hal.ShaderModule
	bindGroupLayouts map[gpucore.BindGroupLayoutID]hal.BindGroupLayout
	pipelineLayouts  map[gpucore.PipelineLayoutID]hal.PipelineLayout
	computePipelines map[gpucore.ComputePipelineID]hal.ComputePipeline
	renderPipelines  map[gpucore.RenderPipelineID]hal.RenderPipeline
	bindGroups       map[gpucore.BindGroupID]hal.BindGroup

	submitMu sync.Mutex
	inflight []submission

	writeMu sync.Mutex
	writes  []stagedWrite

	// release runs on Close for devices the adapter opened itself.
	release func()
	closed  bool
}

type buffer struct {
	raw   hal.Buffer
	size  uint64
	usage gpucore.BufferUsage
}

type texture struct {
	raw    hal.Texture
	view   hal.TextureView
	width  uint32
	height uint32
	format gpucore.TextureFormat
}

// submission is a queue submission that has not been retired yet.
type submission struct {
	index uint64
	cmds  []hal.CommandBuffer

	// release runs after the submission completes.
	release []func()
}

// stagedWrite is a host write waiting in a mapped staging buffer for the
// copy recorded ahead of the next submission.
type stagedWrite struct {
	staging hal.Buffer
	dst     gpucore.BufferID
	raw     hal.Buffer
	offset  uint64
	size    uint64
}

var _ gpucore.GPUAdapter = (*Adapter)(nil)

// New wraps a hal device and queue. The caller keeps ownership of both;
// Close releases only the resources created through the adapter.
func New(device hal.Device, queue hal.Queue, opts ...Option) *Adapter {
	a := &Adapter{
		device:           device,
		queue:            queue,
		limits:           limitsFrom(gputypes.DefaultLimits()),
		waitTimeout:      DefaultWaitTimeout,
		buffers:          make(map[gpucore.BufferID]*buffer),
		textures:         make(map[gpucore.TextureID]*texture),
		shaderModules:    make(map[gpucore.ShaderModuleID]hal.ShaderModule),
		bindGroupLayouts: make(map[gpucore.BindGroupLayoutID]hal.BindGroupLayout),
		pipelineLayouts:  make(map[gpucore.PipelineLayoutID]hal.PipelineLayout),
		computePipelines: make(map[gpucore.ComputePipelineID]hal.ComputePipeline),
		renderPipelines:  make(map[gpucore.RenderPipelineID]hal.RenderPipeline),
		bindGroups:       make(map[gpucore.BindGroupID]hal.BindGroup),
	}
	for _, opt := range opts {
		opt(a)
	}

	// Start ID generation at 1 (0 is invalid)
	a.nextID.Store(1)
	return a
}

func (a *Adapter) newID() uint64 {
	return a.nextID.Add(1) - 1
}

// lookup resolves id in m under the read lock.
func lookup[K comparable, V any](a *Adapter, m map[K]V, id K) (V, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := m[id]
	return v, ok
}

// take removes id from m under the write lock.
func take[K comparable, V any](a *Adapter, m map[K]V, id K) (V, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := m[id]
	if ok {
		delete(m, id)
	}
	return v, ok
}

// Device returns the wrapped hal device.
func (a *Adapter) Device() hal.Device { return a.device }

// Limits returns the device limits.
func (a *Adapter) Limits() gpucore.Limits { return a.limits }

// === Shader Modules ===

// CreateShaderModule creates a module from WGSL, compiling it to SPIR-V
// first when WithSPIRV is set. Reference kernels are ignored.
func (a *Adapter) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	if desc == nil || desc.WGSL == "" {
		return gpucore.InvalidID, fmt.Errorf("native: create shader module: %w", gpucore.ErrInvalidDescriptor)
	}

	src := hal.ShaderSource{WGSL: desc.WGSL}
	if a.spirv {
		code, err := shader.Compile(desc.Label, desc.WGSL)
		if err != nil {
			return gpucore.InvalidID, fmt.Errorf("native: create shader module %s: %w", desc.Label, err)
		}
		src = hal.ShaderSource{SPIRV: code}
	}

	module, err := a.device.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: desc.Label, Source: src})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create shader module %s: %w", desc.Label, err)
	}

	id := gpucore.ShaderModuleID(a.newID())
	a.mu.Lock()
	a.shaderModules[id] = module
	a.mu.Unlock()
	slogger().Debug("native: shader module created", "label", desc.Label, "spirv", a.spirv)
	return id, nil
}

// DestroyShaderModule releases a shader module.
func (a *Adapter) DestroyShaderModule(id gpucore.ShaderModuleID) {
	if m, ok := take(a, a.shaderModules, id); ok {
		a.deferDestroy(func() { a.device.DestroyShaderModule(m) })
	}
}

// === Buffers ===

// CreateBuffer creates a GPU buffer.
func (a *Adapter) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc == nil || desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("native: create buffer: %w", gpucore.ErrInvalidDescriptor)
	}
	if a.limits.MaxBufferSize != 0 && desc.Size > a.limits.MaxBufferSize {
		return gpucore.InvalidID, fmt.Errorf("native: create buffer %s: size %d exceeds limit %d",
			desc.Label, desc.Size, a.limits.MaxBufferSize)
	}

	raw, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: convertBufferUsage(desc.Usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create buffer %s: %w", desc.Label, err)
	}

	id := gpucore.BufferID(a.newID())
	a.mu.Lock()
	a.buffers[id] = &buffer{raw: raw, size: desc.Size, usage: desc.Usage}
	a.mu.Unlock()
	return id, nil
}

// DestroyBuffer releases a GPU buffer once submitted work is done with it.
// Staged writes to the buffer that were never submitted are dropped.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	b, ok := take(a, a.buffers, id)
	if !ok {
		return
	}
	a.dropWrites(id)
	a.deferDestroy(func() { a.device.DestroyBuffer(b.raw) })
}

// BufferSize returns the size of a buffer, or 0 for unknown IDs.
func (a *Adapter) BufferSize(id gpucore.BufferID) uint64 {
	if b, ok := lookup(a, a.buffers, id); ok {
		return b.size
	}
	return 0
}

// WriteBuffer copies data into a mapped staging buffer. The copy into the
// destination is recorded ahead of the next Submit or ReadBuffer, so the
// write is ordered before any command buffer submitted afterwards.
func (a *Adapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	b, ok := lookup(a, a.buffers, id)
	if !ok {
		return fmt.Errorf("native: write buffer %d: %w", id, gpucore.ErrUnknownResource)
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("native: write buffer %d: range [%d,%d) exceeds size %d",
			id, offset, offset+uint64(len(data)), b.size)
	}
	if len(data) == 0 {
		return nil
	}
	staging, err := a.upload(data)
	if err != nil {
		return fmt.Errorf("native: write buffer %d: %w", id, err)
	}

	a.writeMu.Lock()
	a.writes = append(a.writes, stagedWrite{
		staging: staging,
		dst:     id,
		raw:     b.raw,
		offset:  offset,
		size:    uint64(len(data)),
	})
	a.writeMu.Unlock()
	return nil
}

// upload returns a MapWrite|CopySrc buffer holding a copy of data.
func (a *Adapter) upload(data []byte) (hal.Buffer, error) {
	size := uint64(len(data))
	staging, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "upload_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	m, err := a.device.MapBuffer(staging, 0, size)
	if err != nil {
		a.device.DestroyBuffer(staging)
		return nil, fmt.Errorf("map staging buffer: %w", err)
	}
	copy(unsafe.Slice((*byte)(m.Ptr), size), data)
	if err := a.device.UnmapBuffer(staging); err != nil {
		a.device.DestroyBuffer(staging)
		return nil, fmt.Errorf("unmap staging buffer: %w", err)
	}
	return staging, nil
}

// takeWrites removes every staged write.
func (a *Adapter) takeWrites() []stagedWrite {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	w := a.writes
	a.writes = nil
	return w
}

// dropWrites discards staged writes targeting id.
func (a *Adapter) dropWrites(id gpucore.BufferID) {
	a.writeMu.Lock()
	kept := a.writes[:0]
	for _, w := range a.writes {
		if w.dst == id {
			a.device.DestroyBuffer(w.staging)
			continue
		}
		kept = append(kept, w)
	}
	a.writes = kept
	a.writeMu.Unlock()
}

// recordWrites records the copies for writes into enc.
func recordWrites(enc hal.CommandEncoder, writes []stagedWrite) {
	for _, w := range writes {
		enc.CopyBufferToBuffer(w.staging, w.raw, []hal.BufferCopy{{SrcOffset: 0, DstOffset: w.offset, Size: w.size}})
	}
}

// encodeWrites takes the staged writes and records them into a command
// buffer of their own. It returns nil when nothing is staged.
func (a *Adapter) encodeWrites() (hal.CommandBuffer, []stagedWrite, error) {
	writes := a.takeWrites()
	if len(writes) == 0 {
		return nil, nil, nil
	}
	cmd, err := a.encode("uploads", func(enc hal.CommandEncoder) { recordWrites(enc, writes) })
	if err != nil {
		a.destroyWrites(writes)
		return nil, nil, err
	}
	return cmd, writes, nil
}

func (a *Adapter) destroyWrites(writes []stagedWrite) {
	for _, w := range writes {
		a.device.DestroyBuffer(w.staging)
	}
}

// encode records a one-off command buffer.
func (a *Adapter) encode(label string, record func(hal.CommandEncoder)) (hal.CommandBuffer, error) {
	enc, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	record(enc)
	cmd, err := enc.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	return cmd, nil
}

// ReadBuffer waits for all submitted work, then copies the range through a
// staging buffer.
func (a *Adapter) ReadBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	b, ok := lookup(a, a.buffers, id)
	if !ok {
		return nil, fmt.Errorf("native: read buffer %d: %w", id, gpucore.ErrUnknownResource)
	}
	if offset+size > b.size {
		return nil, fmt.Errorf("native: read buffer %d: range [%d,%d) exceeds size %d", id, offset, offset+size, b.size)
	}
	if size == 0 {
		return nil, nil
	}

	out := make([]byte, size)
	err := a.readback(size, "buffer_readback", func(enc hal.CommandEncoder, staging hal.Buffer) {
		enc.CopyBufferToBuffer(b.raw, staging, []hal.BufferCopy{{SrcOffset: offset, DstOffset: 0, Size: size}})
	}, out)
	if err != nil {
		return nil, fmt.Errorf("native: read buffer %d: %w", id, err)
	}
	return out, nil
}

// readback lets record copy into a fresh staging buffer of size bytes,
// submits it behind any staged writes, waits for the queue to drain and
// maps the staging buffer into out.
func (a *Adapter) readback(size uint64, label string, record func(hal.CommandEncoder, hal.Buffer), out []byte) error {
	staging, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label + "_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create staging buffer: %w", err)
	}
	defer a.device.DestroyBuffer(staging)

	writes := a.takeWrites()
	defer a.destroyWrites(writes)
	cmd, err := a.encode(label, func(enc hal.CommandEncoder) {
		recordWrites(enc, writes)
		record(enc, staging)
	})
	if err != nil {
		return err
	}

	a.submitMu.Lock()
	err = a.submitAndWait(cmd)
	a.submitMu.Unlock()
	if err != nil {
		return err
	}

	m, err := a.device.MapBuffer(staging, 0, size)
	if err != nil {
		return fmt.Errorf("map staging buffer: %w", err)
	}
	copy(out, unsafe.Slice((*byte)(m.Ptr), size))
	if err := a.device.UnmapBuffer(staging); err != nil {
		return fmt.Errorf("unmap staging buffer: %w", err)
	}
	return nil
}

// === Textures ===

// CreateTexture creates a 2D render target that can be read back.
func (a *Adapter) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if desc == nil || desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("native: create texture: %w", gpucore.ErrInvalidDescriptor)
	}

	raw, err := a.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        convertTextureFormat(desc.Format),
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create texture %s: %w", desc.Label, err)
	}
	view, err := a.device.CreateTextureView(raw, &hal.TextureViewDescriptor{Label: desc.Label + "_view"})
	if err != nil {
		a.device.DestroyTexture(raw)
		return gpucore.InvalidID, fmt.Errorf("native: create texture view %s: %w", desc.Label, err)
	}

	id := gpucore.TextureID(a.newID())
	a.mu.Lock()
	a.textures[id] = &texture{raw: raw, view: view, width: desc.Width, height: desc.Height, format: desc.Format}
	a.mu.Unlock()
	return id, nil
}

// DestroyTexture releases a texture and its view.
func (a *Adapter) DestroyTexture(id gpucore.TextureID) {
	if t, ok := take(a, a.textures, id); ok {
		a.deferDestroy(func() {
			a.device.DestroyTextureView(t.view)
			a.device.DestroyTexture(t.raw)
		})
	}
}

// === Layouts, Pipelines and Bind Groups ===

// CreateBindGroupLayout creates a bind group layout of buffer bindings.
func (a *Adapter) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("native: create bind group layout: %w", gpucore.ErrInvalidDescriptor)
	}
	entries := make([]gputypes.BindGroupLayoutEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		entries[i] = convertBindGroupLayoutEntry(e)
	}

	layout, err := a.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Label: desc.Label, Entries: entries})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create bind group layout %s: %w", desc.Label, err)
	}

	id := gpucore.BindGroupLayoutID(a.newID())
	a.mu.Lock()
	a.bindGroupLayouts[id] = layout
	a.mu.Unlock()
	return id, nil
}

// DestroyBindGroupLayout releases a bind group layout.
func (a *Adapter) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	if l, ok := take(a, a.bindGroupLayouts, id); ok {
		a.deferDestroy(func() { a.device.DestroyBindGroupLayout(l) })
	}
}

// CreatePipelineLayout creates a pipeline layout.
func (a *Adapter) CreatePipelineLayout(desc *gpucore.PipelineLayoutDesc) (gpucore.PipelineLayoutID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("native: create pipeline layout: %w", gpucore.ErrInvalidDescriptor)
	}
	layouts := make([]hal.BindGroupLayout, len(desc.BindGroupLayouts))
	for i, lid := range desc.BindGroupLayouts {
		l, ok := lookup(a, a.bindGroupLayouts, lid)
		if !ok {
			return gpucore.InvalidID, fmt.Errorf("native: create pipeline layout %s: layout %d: %w",
				desc.Label, lid, gpucore.ErrUnknownResource)
		}
		layouts[i] = l
	}

	layout, err := a.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{Label: desc.Label, BindGroupLayouts: layouts})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create pipeline layout %s: %w", desc.Label, err)
	}

	id := gpucore.PipelineLayoutID(a.newID())
	a.mu.Lock()
	a.pipelineLayouts[id] = layout
	a.mu.Unlock()
	return id, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (a *Adapter) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	if l, ok := take(a, a.pipelineLayouts, id); ok {
		a.deferDestroy(func() { a.device.DestroyPipelineLayout(l) })
	}
}

// CreateComputePipeline creates a compute pipeline.
func (a *Adapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("native: create compute pipeline: %w", gpucore.ErrInvalidDescriptor)
	}
	layout, layoutOK := lookup(a, a.pipelineLayouts, desc.Layout)
	module, moduleOK := lookup(a, a.shaderModules, desc.ShaderModule)
	if !layoutOK || !moduleOK {
		return gpucore.InvalidID, fmt.Errorf("native: create compute pipeline %s: %w", desc.Label, gpucore.ErrUnknownResource)
	}

	pipeline, err := a.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create compute pipeline %s: %w", desc.Label, err)
	}

	id := gpucore.ComputePipelineID(a.newID())
	a.mu.Lock()
	a.computePipelines[id] = pipeline
	a.mu.Unlock()
	return id, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (a *Adapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	if p, ok := take(a, a.computePipelines, id); ok {
		a.deferDestroy(func() { a.device.DestroyComputePipeline(p) })
	}
}

// CreateRenderPipeline creates a render pipeline without vertex buffers.
// Vertex shaders derive geometry from vertex and instance indices.
func (a *Adapter) CreateRenderPipeline(desc *gpucore.RenderPipelineDesc) (gpucore.RenderPipelineID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("native: create render pipeline: %w", gpucore.ErrInvalidDescriptor)
	}
	layout, layoutOK := lookup(a, a.pipelineLayouts, desc.Layout)
	module, moduleOK := lookup(a, a.shaderModules, desc.ShaderModule)
	if !layoutOK || !moduleOK {
		return gpucore.InvalidID, fmt.Errorf("native: create render pipeline %s: %w", desc.Label, gpucore.ErrUnknownResource)
	}

	target := gputypes.ColorTargetState{
		Format:    convertTextureFormat(desc.TargetFormat),
		WriteMask: gputypes.ColorWriteMaskAll,
	}
	if desc.Blend == gpucore.BlendPremultiplied {
		premulBlend := gputypes.BlendStatePremultiplied()
		target.Blend = &premulBlend
	}

	pipeline, err := a.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     module,
			EntryPoint: desc.VertexEntryPoint,
		},
		Fragment: &hal.FragmentState{
			Module:     module,
			EntryPoint: desc.FragmentEntryPoint,
			Targets:    []gputypes.ColorTargetState{target},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: convertTopology(desc.Topology),
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create render pipeline %s: %w", desc.Label, err)
	}

	id := gpucore.RenderPipelineID(a.newID())
	a.mu.Lock()
	a.renderPipelines[id] = pipeline
	a.mu.Unlock()
	return id, nil
}

// DestroyRenderPipeline releases a render pipeline.
func (a *Adapter) DestroyRenderPipeline(id gpucore.RenderPipelineID) {
	if p, ok := take(a, a.renderPipelines, id); ok {
		a.deferDestroy(func() { a.device.DestroyRenderPipeline(p) })
	}
}

// CreateBindGroup creates a bind group of buffer ranges. A zero Size binds
// the rest of the buffer.
func (a *Adapter) CreateBindGroup(desc *gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("native: create bind group: %w", gpucore.ErrInvalidDescriptor)
	}
	layout, ok := lookup(a, a.bindGroupLayouts, desc.Layout)
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("native: create bind group %s: layout %d: %w",
			desc.Label, desc.Layout, gpucore.ErrUnknownResource)
	}

	entries := make([]gputypes.BindGroupEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		b, ok := lookup(a, a.buffers, e.Buffer)
		if !ok {
			return gpucore.InvalidID, fmt.Errorf("native: create bind group %s: buffer %d: %w",
				desc.Label, e.Buffer, gpucore.ErrUnknownResource)
		}
		size := e.Size
		if size == 0 {
			size = b.size - e.Offset
		}
		entries[i] = gputypes.BindGroupEntry{
			Binding:  e.Binding,
			Resource: gputypes.BufferBinding{Buffer: b.raw.NativeHandle(), Offset: e.Offset, Size: size},
		}
	}

	group, err := a.device.CreateBindGroup(&hal.BindGroupDescriptor{Label: desc.Label, Layout: layout, Entries: entries})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create bind group %s: %w", desc.Label, err)
	}

	id := gpucore.BindGroupID(a.newID())
	a.mu.Lock()
	a.bindGroups[id] = group
	a.mu.Unlock()
	return id, nil
}

// DestroyBindGroup releases a bind group.
func (a *Adapter) DestroyBindGroup(id gpucore.BindGroupID) {
	if g, ok := take(a, a.bindGroups, id); ok {
		a.deferDestroy(func() { a.device.DestroyBindGroup(g) })
	}
}

// === Submission ===

// Submit submits a finished command buffer without waiting for it. Staged
// writes go in the same queue submission, ahead of cmd. When maxInFlight
// submissions are pending it first retires the oldest.
func (a *Adapter) Submit(cmd gpucore.CommandBuffer) error {
	cb, ok := cmd.(*commandBuffer)
	if !ok || cb.adapter != a {
		return fmt.Errorf("native: submit: %w", gpucore.ErrInvalidDescriptor)
	}
	if cb.submitted {
		return fmt.Errorf("native: submit %s: command buffer already submitted", cb.label)
	}
	cb.submitted = true

	a.submitMu.Lock()
	defer a.submitMu.Unlock()

	a.retireCompleted()
	for len(a.inflight) >= maxInFlight {
		if err := a.retireOldest(); err != nil {
			a.device.FreeCommandBuffer(cb.raw)
			return fmt.Errorf("native: submit %s: %w", cb.label, err)
		}
	}

	upload, writes, err := a.encodeWrites()
	if err != nil {
		a.device.FreeCommandBuffer(cb.raw)
		return fmt.Errorf("native: submit %s: %w", cb.label, err)
	}
	s := submission{cmds: []hal.CommandBuffer{cb.raw}}
	if upload != nil {
		s.cmds = []hal.CommandBuffer{upload, cb.raw}
		s.release = append(s.release, func() { a.destroyWrites(writes) })
	}

	s.index, err = a.queue.Submit(s.cmds)
	if err != nil {
		a.finish(s)
		return fmt.Errorf("native: submit %s: %w", cb.label, err)
	}
	a.inflight = append(a.inflight, s)
	return nil
}

// InFlight returns the number of submissions not yet retired.
func (a *Adapter) InFlight() int {
	a.submitMu.Lock()
	defer a.submitMu.Unlock()
	return len(a.inflight)
}

// deferDestroy runs destroy once every submission made so far has
// retired, or at once when nothing is in flight.
func (a *Adapter) deferDestroy(destroy func()) {
	a.submitMu.Lock()
	defer a.submitMu.Unlock()
	if n := len(a.inflight); n > 0 {
		a.inflight[n-1].release = append(a.inflight[n-1].release, destroy)
		return
	}
	destroy()
}

// finish frees the command buffers of s and runs its release list.
func (a *Adapter) finish(s submission) {
	for _, c := range s.cmds {
		a.device.FreeCommandBuffer(c)
	}
	for _, fn := range s.release {
		fn()
	}
}

// retireCompleted retires the submissions the queue reports as done
// without blocking. submitMu must be held.
func (a *Adapter) retireCompleted() {
	done := a.queue.PollCompleted()
	for len(a.inflight) > 0 && a.inflight[0].index <= done {
		a.finish(a.inflight[0])
		a.inflight = a.inflight[1:]
	}
}

// retireOldest waits for the oldest submission and retires it.
// submitMu must be held.
func (a *Adapter) retireOldest() error {
	s := a.inflight[0]
	if err := a.waitFor(s.index); err != nil {
		return err
	}
	a.finish(s)
	a.inflight = a.inflight[1:]
	return nil
}

// waitFor polls the queue until submission index has completed or the
// wait timeout passes.
func (a *Adapter) waitFor(index uint64) error {
	deadline := time.Now().Add(a.waitTimeout)
	backoff := 50 * time.Microsecond
	for a.queue.PollCompleted() < index {
		if time.Now().After(deadline) {
			return ErrWaitTimeout
		}
		time.Sleep(backoff)
		backoff = min(backoff*2, 2*time.Millisecond)
	}
	return nil
}

// submitAndWait submits cmd and waits for the whole queue to drain.
// submitMu must be held.
func (a *Adapter) submitAndWait(cmd hal.CommandBuffer) error {
	defer a.device.FreeCommandBuffer(cmd)

	index, err := a.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if err := a.waitFor(index); err != nil {
		return err
	}
	for len(a.inflight) > 0 {
		if err := a.retireOldest(); err != nil {
			return err
		}
	}
	return nil
}

// WaitIdle blocks until every submission has completed and retired.
func (a *Adapter) WaitIdle() error {
	a.submitMu.Lock()
	defer a.submitMu.Unlock()
	for len(a.inflight) > 0 {
		if err := a.retireOldest(); err != nil {
			return fmt.Errorf("native: wait idle: %w", err)
		}
	}
	return nil
}

// Close waits for pending work and releases every resource still tracked.
// Devices opened by Open are destroyed as well.
func (a *Adapter) Close() {
	if err := a.WaitIdle(); err != nil {
		slogger().Warn("native: close without idle device", "err", err)
	}
	a.submitMu.Lock()
	for _, s := range a.inflight {
		a.finish(s)
	}
	a.inflight = nil
	a.submitMu.Unlock()
	a.destroyWrites(a.takeWrites())

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	for _, g := range a.bindGroups {
		a.device.DestroyBindGroup(g)
	}
	for _, p := range a.renderPipelines {
		a.device.DestroyRenderPipeline(p)
	}
	for _, p := range a.computePipelines {
		a.device.DestroyComputePipeline(p)
	}
	for _, l := range a.pipelineLayouts {
		a.device.DestroyPipelineLayout(l)
	}
	for _, l := range a.bindGroupLayouts {
		a.device.DestroyBindGroupLayout(l)
	}
	for _, m := range a.shaderModules {
		a.device.DestroyShaderModule(m)
	}
	for _, t := range a.textures {
		a.device.DestroyTextureView(t.view)
		a.device.DestroyTexture(t.raw)
	}
	for _, b := range a.buffers {
		a.device.DestroyBuffer(b.raw)
	}
	clear(a.bindGroups)
	clear(a.renderPipelines)
	clear(a.computePipelines)
	clear(a.pipelineLayouts)
	clear(a.bindGroupLayouts)
	clear(a.shaderModules)
	clear(a.textures)
	clear(a.buffers)
	release := a.release
	a.release = nil
	a.mu.Unlock()

	if release != nil {
		release()
	}
}
