// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package software provides a CPU implementation of gpucore.GPUAdapter.
//
// The adapter executes the Go reference kernels that accompany every shader
// module, one workgroup at a time, in dispatch order. Buffers are plain u32
// word stores, indirect arguments are read when a command executes, and
// command buffers run synchronously on Submit. This mirrors the ordering
// guarantees of a single GPU queue closely enough to test GPU-driven
// pipelines end to end on machines without a GPU.
//
// The lockstep width of a "hardware" subgroup is configurable with
// WithSubgroupSize. Kernels that depend on lockstep execution observe it
// through gpucore.Workgroup.SubgroupSize.
package software

import (
	"encoding/binary"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/gogpu/splat/gpucore"
)

// DefaultSubgroupSize is the lockstep width used when none is configured.
const DefaultSubgroupSize = 32

// Option configures an Adapter.
type Option func(*Adapter)

// WithSubgroupSize sets the lockstep width of the emulated hardware.
// Values below 1 are ignored.
func WithSubgroupSize(n uint32) Option {
	return func(a *Adapter) {
		if n >= 1 {
			a.subgroupSize = n
		}
	}
}

// WithMaxWorkgroupsPerDimension overrides the dispatch dimension limit.
func WithMaxWorkgroupsPerDimension(n uint32) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.limits.MaxComputeWorkgroupsPerDimension = n
		}
	}
}

// DrawRecord describes an executed draw after indirect arguments were
// resolved.
type DrawRecord struct {
	Pipeline      string
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
	Indirect      bool
}

// Adapter implements gpucore.GPUAdapter on the CPU.
//
// Thread Safety: Adapter is safe for concurrent use. Every operation,
// including command execution, holds a single mutex, which models one queue.
type Adapter struct {
	mu sync.Mutex

	subgroupSize uint32
	limits       gpucore.Limits

	nextID atomic.Uint64

	buffers          map[gpucore.BufferID]*buffer
	textures         map[gpucore.TextureID]*texture
	shaderModules    map[gpucore.ShaderModuleID]*gpucore.ShaderModuleDesc
	bindGroupLayouts map[gpucore.BindGroupLayoutID]*gpucore.BindGroupLayoutDesc
	pipelineLayouts  map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID
	computePipelines map[gpucore.ComputePipelineID]*computePipeline
	renderPipelines  map[gpucore.RenderPipelineID]*renderPipeline
	bindGroups       map[gpucore.BindGroupID]*gpucore.BindGroupDesc

	draws      []DrawRecord
	dispatches uint64
}

type buffer struct {
	label string
	size  uint64
	usage gpucore.BufferUsage
	words []uint32
}

type texture struct {
	label  string
	format gpucore.TextureFormat
	target gpucore.RenderTarget
}

type computePipeline struct {
	label  string
	entry  string
	kernel gpucore.ComputeKernel
}

type renderPipeline struct {
	label  string
	kernel gpucore.DrawKernel
}

var _ gpucore.GPUAdapter = (*Adapter)(nil)

// New creates a software adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		subgroupSize:     DefaultSubgroupSize,
		limits:           gpucore.DefaultLimits(),
		buffers:          make(map[gpucore.BufferID]*buffer),
		textures:         make(map[gpucore.TextureID]*texture),
		shaderModules:    make(map[gpucore.ShaderModuleID]*gpucore.ShaderModuleDesc),
		bindGroupLayouts: make(map[gpucore.BindGroupLayoutID]*gpucore.BindGroupLayoutDesc),
		pipelineLayouts:  make(map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID),
		computePipelines: make(map[gpucore.ComputePipelineID]*computePipeline),
		renderPipelines:  make(map[gpucore.RenderPipelineID]*renderPipeline),
		bindGroups:       make(map[gpucore.BindGroupID]*gpucore.BindGroupDesc),
	}
	for _, opt := range opts {
		opt(a)
	}

	// Start ID generation at 1 (0 is invalid)
	a.nextID.Store(1)

	slogger().Debug("software: adapter created",
		"subgroup_size", a.subgroupSize,
		"max_workgroups", a.limits.MaxComputeWorkgroupsPerDimension)
	return a
}

// newID generates a unique resource ID.
func (a *Adapter) newID() uint64 {
	return a.nextID.Add(1) - 1
}

// SubgroupSize returns the emulated lockstep width.
func (a *Adapter) SubgroupSize() uint32 {
	return a.subgroupSize
}

// Limits returns the adapter limits.
func (a *Adapter) Limits() gpucore.Limits {
	return a.limits
}

// === Shader Compilation ===

// CreateShaderModule registers a module. The WGSL is kept for labels only;
// execution uses desc.Reference.
func (a *Adapter) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("software: nil shader module descriptor: %w", gpucore.ErrInvalidDescriptor)
	}
	if desc.Reference == nil {
		return gpucore.InvalidID, fmt.Errorf("software: shader module %q: %w", desc.Label, gpucore.ErrMissingKernel)
	}

	d := *desc
	id := gpucore.ShaderModuleID(a.newID())

	a.mu.Lock()
	a.shaderModules[id] = &d
	a.mu.Unlock()

	return id, nil
}

// DestroyShaderModule releases a shader module.
func (a *Adapter) DestroyShaderModule(id gpucore.ShaderModuleID) {
	a.mu.Lock()
	delete(a.shaderModules, id)
	a.mu.Unlock()
}

// === Buffer Management ===

// CreateBuffer creates a zeroed buffer. Sizes are rounded up to whole words.
func (a *Adapter) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc == nil || desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("software: buffer size must be positive: %w", gpucore.ErrInvalidDescriptor)
	}
	if desc.Size > a.limits.MaxBufferSize {
		return gpucore.InvalidID, fmt.Errorf("software: buffer %q: size %d exceeds limit %d",
			desc.Label, desc.Size, a.limits.MaxBufferSize)
	}

	buf := &buffer{
		label: desc.Label,
		size:  desc.Size,
		usage: desc.Usage,
		words: make([]uint32, (desc.Size+3)/4),
	}
	id := gpucore.BufferID(a.newID())

	a.mu.Lock()
	a.buffers[id] = buf
	a.mu.Unlock()

	return id, nil
}

// DestroyBuffer releases a buffer.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	delete(a.buffers, id)
	a.mu.Unlock()
}

// BufferSize returns the size of a live buffer, or 0.
func (a *Adapter) BufferSize(id gpucore.BufferID) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if b, ok := a.buffers[id]; ok {
		return b.size
	}
	return 0
}

// BufferCount returns the number of live buffers.
func (a *Adapter) BufferCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffers)
}

// WriteBuffer writes little-endian data into a buffer immediately.
// Offset and length must be multiples of 4.
func (a *Adapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.buffers[id]
	if !ok {
		return fmt.Errorf("software: write buffer %d: %w", id, gpucore.ErrUnknownResource)
	}
	if offset%4 != 0 || len(data)%4 != 0 {
		return fmt.Errorf("software: write buffer %q: offset %d and size %d must be 4-byte aligned",
			b.label, offset, len(data))
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("software: write buffer %q: range [%d,%d) exceeds size %d",
			b.label, offset, offset+uint64(len(data)), b.size)
	}

	base := offset / 4
	for i := 0; i < len(data)/4; i++ {
		b.words[base+uint64(i)] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return nil
}

// ReadBuffer returns a little-endian copy of a buffer range.
func (a *Adapter) ReadBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.buffers[id]
	if !ok {
		return nil, fmt.Errorf("software: read buffer %d: %w", id, gpucore.ErrUnknownResource)
	}
	if offset%4 != 0 || size%4 != 0 {
		return nil, fmt.Errorf("software: read buffer %q: offset %d and size %d must be 4-byte aligned",
			b.label, offset, size)
	}
	if offset+size > b.size {
		return nil, fmt.Errorf("software: read buffer %q: range [%d,%d) exceeds size %d",
			b.label, offset, offset+size, b.size)
	}

	out := make([]byte, size)
	base := offset / 4
	for i := uint64(0); i < size/4; i++ {
		binary.LittleEndian.PutUint32(out[i*4:], b.words[base+i])
	}
	return out, nil
}

// === Texture Management ===

// CreateTexture creates a float render target.
func (a *Adapter) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if desc == nil || desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("software: texture dimensions must be positive: %w", gpucore.ErrInvalidDescriptor)
	}

	w, h := int(desc.Width), int(desc.Height)
	tex := &texture{
		label:  desc.Label,
		format: desc.Format,
		target: gpucore.RenderTarget{Width: w, Height: h, Pix: make([]float32, w*h*4)},
	}
	id := gpucore.TextureID(a.newID())

	a.mu.Lock()
	a.textures[id] = tex
	a.mu.Unlock()

	return id, nil
}

// DestroyTexture releases a texture.
func (a *Adapter) DestroyTexture(id gpucore.TextureID) {
	a.mu.Lock()
	delete(a.textures, id)
	a.mu.Unlock()
}

// ReadTexture converts the target to 8-bit premultiplied RGBA.
func (a *Adapter) ReadTexture(id gpucore.TextureID) (*image.RGBA, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tex, ok := a.textures[id]
	if !ok {
		return nil, fmt.Errorf("software: read texture %d: %w", id, gpucore.ErrUnknownResource)
	}

	t := &tex.target
	img := image.NewRGBA(image.Rect(0, 0, t.Width, t.Height))
	for i := 0; i < t.Width*t.Height*4; i++ {
		img.Pix[i] = unorm8(t.Pix[i])
	}
	return img, nil
}

func unorm8(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return uint8(v*255 + 0.5)
	}
}

// === Pipeline Management ===

// CreateBindGroupLayout creates a bind group layout.
func (a *Adapter) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("software: nil bind group layout descriptor: %w", gpucore.ErrInvalidDescriptor)
	}

	d := *desc
	d.Entries = append([]gpucore.BindGroupLayoutEntry(nil), desc.Entries...)
	id := gpucore.BindGroupLayoutID(a.newID())

	a.mu.Lock()
	a.bindGroupLayouts[id] = &d
	a.mu.Unlock()

	return id, nil
}

// DestroyBindGroupLayout releases a bind group layout.
func (a *Adapter) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	a.mu.Lock()
	delete(a.bindGroupLayouts, id)
	a.mu.Unlock()
}

// CreatePipelineLayout creates a pipeline layout.
func (a *Adapter) CreatePipelineLayout(desc *gpucore.PipelineLayoutDesc) (gpucore.PipelineLayoutID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("software: nil pipeline layout descriptor: %w", gpucore.ErrInvalidDescriptor)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, l := range desc.BindGroupLayouts {
		if _, ok := a.bindGroupLayouts[l]; !ok {
			return gpucore.InvalidID, fmt.Errorf("software: bind group layout %d: %w", l, gpucore.ErrUnknownResource)
		}
	}
	id := gpucore.PipelineLayoutID(a.newID())
	a.pipelineLayouts[id] = append([]gpucore.BindGroupLayoutID(nil), desc.BindGroupLayouts...)
	return id, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (a *Adapter) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	a.mu.Lock()
	delete(a.pipelineLayouts, id)
	a.mu.Unlock()
}

// CreateComputePipeline resolves the reference kernel for the entry point.
func (a *Adapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("software: nil compute pipeline descriptor: %w", gpucore.ErrInvalidDescriptor)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.pipelineLayouts[desc.Layout]; !ok {
		return gpucore.InvalidID, fmt.Errorf("software: pipeline layout %d: %w", desc.Layout, gpucore.ErrUnknownResource)
	}
	module, ok := a.shaderModules[desc.ShaderModule]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("software: shader module %d: %w", desc.ShaderModule, gpucore.ErrUnknownResource)
	}
	kernel, ok := module.Reference.ComputeKernel(desc.EntryPoint)
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("software: %s/%s: %w", module.Label, desc.EntryPoint, gpucore.ErrMissingKernel)
	}

	id := gpucore.ComputePipelineID(a.newID())
	a.computePipelines[id] = &computePipeline{label: desc.Label, entry: desc.EntryPoint, kernel: kernel}
	return id, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (a *Adapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	delete(a.computePipelines, id)
	a.mu.Unlock()
}

// CreateRenderPipeline resolves the draw kernel for the vertex entry point.
func (a *Adapter) CreateRenderPipeline(desc *gpucore.RenderPipelineDesc) (gpucore.RenderPipelineID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("software: nil render pipeline descriptor: %w", gpucore.ErrInvalidDescriptor)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.pipelineLayouts[desc.Layout]; !ok {
		return gpucore.InvalidID, fmt.Errorf("software: pipeline layout %d: %w", desc.Layout, gpucore.ErrUnknownResource)
	}
	module, ok := a.shaderModules[desc.ShaderModule]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("software: shader module %d: %w", desc.ShaderModule, gpucore.ErrUnknownResource)
	}
	kernel, ok := module.Reference.DrawKernel(desc.VertexEntryPoint)
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("software: %s/%s: %w", module.Label, desc.VertexEntryPoint, gpucore.ErrMissingKernel)
	}

	id := gpucore.RenderPipelineID(a.newID())
	a.renderPipelines[id] = &renderPipeline{label: desc.Label, kernel: kernel}
	return id, nil
}

// DestroyRenderPipeline releases a render pipeline.
func (a *Adapter) DestroyRenderPipeline(id gpucore.RenderPipelineID) {
	a.mu.Lock()
	delete(a.renderPipelines, id)
	a.mu.Unlock()
}

// CreateBindGroup creates a bind group. Buffers are resolved when commands
// execute, so a bind group must not outlive the buffers it references.
func (a *Adapter) CreateBindGroup(desc *gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("software: nil bind group descriptor: %w", gpucore.ErrInvalidDescriptor)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.bindGroupLayouts[desc.Layout]; !ok {
		return gpucore.InvalidID, fmt.Errorf("software: bind group layout %d: %w", desc.Layout, gpucore.ErrUnknownResource)
	}
	for _, e := range desc.Entries {
		b, ok := a.buffers[e.Buffer]
		if !ok {
			return gpucore.InvalidID, fmt.Errorf("software: bind group %q binding %d: buffer %d: %w",
				desc.Label, e.Binding, e.Buffer, gpucore.ErrUnknownResource)
		}
		if e.Offset%4 != 0 || e.Size%4 != 0 || e.Offset+e.Size > b.size {
			return gpucore.InvalidID, fmt.Errorf("software: bind group %q binding %d: range [%d,+%d) invalid for %q",
				desc.Label, e.Binding, e.Offset, e.Size, b.label)
		}
	}

	d := *desc
	d.Entries = append([]gpucore.BindGroupEntry(nil), desc.Entries...)
	id := gpucore.BindGroupID(a.newID())
	a.bindGroups[id] = &d
	return id, nil
}

// DestroyBindGroup releases a bind group.
func (a *Adapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	delete(a.bindGroups, id)
	a.mu.Unlock()
}

// === Command Recording and Execution ===

// CreateCommandEncoder starts a recording.
func (a *Adapter) CreateCommandEncoder(label string) (gpucore.CommandEncoder, error) {
	return &encoder{adapter: a, label: label}, nil
}

// Submit executes a command buffer synchronously.
func (a *Adapter) Submit(cmd gpucore.CommandBuffer) error {
	cb, ok := cmd.(*commandBuffer)
	if !ok || cb == nil {
		return fmt.Errorf("software: submit: foreign command buffer %T: %w", cmd, gpucore.ErrInvalidDescriptor)
	}
	if cb.submitted {
		return fmt.Errorf("software: submit %q: command buffer already submitted", cb.label)
	}
	cb.submitted = true

	a.mu.Lock()
	defer a.mu.Unlock()

	for i, c := range cb.commands {
		if err := c.execute(a); err != nil {
			return fmt.Errorf("software: submit %q: command %d: %w", cb.label, i, err)
		}
	}
	return nil
}

// WaitIdle returns immediately; Submit runs to completion.
func (a *Adapter) WaitIdle() error {
	return nil
}

// Close drops every resource.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	clear(a.buffers)
	clear(a.textures)
	clear(a.shaderModules)
	clear(a.bindGroupLayouts)
	clear(a.pipelineLayouts)
	clear(a.computePipelines)
	clear(a.renderPipelines)
	clear(a.bindGroups)
}

// Draws returns the draws executed so far.
func (a *Adapter) Draws() []DrawRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]DrawRecord(nil), a.draws...)
}

// Dispatches returns the number of workgroup grids executed so far,
// including empty ones.
func (a *Adapter) Dispatches() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dispatches
}
