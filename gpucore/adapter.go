// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

import "image"

// GPUAdapter abstracts over different GPU backend implementations.
//
// The sort engine, the preprocessing kernel and the splat renderer are written
// once against this interface. Thin adapters translate it to a concrete
// backend: backend/native for gogpu/wgpu HAL devices and backend/software for
// a CPU device that runs the reference kernels.
// Implementations must be safe for concurrent use.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - Destroy* may be called while submitted work still uses the resource;
//     the backend releases it once that work has completed
//   - IDs become invalid after destruction and must not be reused
type GPUAdapter interface {
	// === Capabilities ===

	// Limits returns the adapter limits.
	Limits() Limits

	// === Shader Compilation ===

	// CreateShaderModule creates a shader module from WGSL source.
	CreateShaderModule(desc *ShaderModuleDesc) (ShaderModuleID, error)

	// DestroyShaderModule releases a shader module.
	DestroyShaderModule(id ShaderModuleID)

	// === Buffer Management ===

	// CreateBuffer creates a zero-initialized GPU buffer.
	CreateBuffer(desc *BufferDesc) (BufferID, error)

	// DestroyBuffer releases a GPU buffer.
	DestroyBuffer(id BufferID)

	// BufferSize returns the size in bytes of a live buffer, or 0 if the
	// ID is unknown.
	BufferSize(id BufferID) uint64

	// WriteBuffer schedules a queue write. The write is ordered before any
	// command buffer submitted afterwards.
	WriteBuffer(id BufferID, offset uint64, data []byte) error

	// ReadBuffer reads data from a buffer.
	// This waits for all submitted work and stalls the CPU.
	ReadBuffer(id BufferID, offset, size uint64) ([]byte, error)

	// === Texture Management ===

	// CreateTexture creates a 2D render target.
	CreateTexture(desc *TextureDesc) (TextureID, error)

	// DestroyTexture releases a texture.
	DestroyTexture(id TextureID)

	// ReadTexture reads a texture back as an RGBA image.
	// This waits for all submitted work and stalls the CPU.
	ReadTexture(id TextureID) (*image.RGBA, error)

	// === Pipeline Management ===

	// CreateBindGroupLayout creates a bind group layout.
	CreateBindGroupLayout(desc *BindGroupLayoutDesc) (BindGroupLayoutID, error)

	// DestroyBindGroupLayout releases a bind group layout.
	DestroyBindGroupLayout(id BindGroupLayoutID)

	// CreatePipelineLayout creates a pipeline layout.
	CreatePipelineLayout(desc *PipelineLayoutDesc) (PipelineLayoutID, error)

	// DestroyPipelineLayout releases a pipeline layout.
	DestroyPipelineLayout(id PipelineLayoutID)

	// CreateComputePipeline creates a compute pipeline.
	CreateComputePipeline(desc *ComputePipelineDesc) (ComputePipelineID, error)

	// DestroyComputePipeline releases a compute pipeline.
	DestroyComputePipeline(id ComputePipelineID)

	// CreateRenderPipeline creates a render pipeline.
	CreateRenderPipeline(desc *RenderPipelineDesc) (RenderPipelineID, error)

	// DestroyRenderPipeline releases a render pipeline.
	DestroyRenderPipeline(id RenderPipelineID)

	// CreateBindGroup creates a bind group.
	CreateBindGroup(desc *BindGroupDesc) (BindGroupID, error)

	// DestroyBindGroup releases a bind group.
	DestroyBindGroup(id BindGroupID)

	// === Command Recording and Execution ===

	// CreateCommandEncoder starts recording a command buffer.
	CreateCommandEncoder(label string) (CommandEncoder, error)

	// Submit queues a finished command buffer for execution.
	// It does not wait for completion.
	Submit(cmd CommandBuffer) error

	// WaitIdle waits for all submitted work to complete.
	WaitIdle() error

	// Close releases adapter-owned resources.
	Close()
}

// CommandBuffer is a finished, submittable recording.
type CommandBuffer interface {
	// Label returns the debug label given to the encoder.
	Label() string
}

// CommandEncoder records passes and copies into a single command buffer.
// Commands execute on the GPU in the order they were recorded.
//
// Recording methods do not return errors. The first recording error is kept
// and reported by Finish.
type CommandEncoder interface {
	// BeginComputePass begins a compute pass.
	// The pass must be ended before another pass or copy is recorded.
	BeginComputePass(label string) ComputePassEncoder

	// BeginRenderPass begins a render pass.
	BeginRenderPass(desc *RenderPassDesc) RenderPassEncoder

	// CopyBufferToBuffer copies size bytes between buffers on the GPU.
	CopyBufferToBuffer(src BufferID, srcOffset uint64, dst BufferID, dstOffset uint64, size uint64)

	// Finish ends recording and returns the command buffer.
	Finish() (CommandBuffer, error)

	// Discard abandons the recording.
	Discard()
}

// ComputePassEncoder records compute commands.
//
// Usage:
//  1. Obtain encoder from CommandEncoder.BeginComputePass()
//  2. Set pipeline and bind groups
//  3. Dispatch compute workgroups, directly or from a GPU buffer
//  4. Call End() to finish recording
//
// The encoder is single-use and cannot be reused after End().
type ComputePassEncoder interface {
	// SetPipeline sets the active compute pipeline.
	SetPipeline(pipeline ComputePipelineID)

	// SetBindGroup sets a bind group at the specified index.
	SetBindGroup(index uint32, group BindGroupID)

	// Dispatch dispatches compute workgroups.
	// x, y, z are the number of workgroups in each dimension.
	Dispatch(x, y, z uint32)

	// DispatchIndirect dispatches with workgroup counts read from buffer
	// at offset when the command executes. The buffer holds {x, y, z} u32.
	DispatchIndirect(buffer BufferID, offset uint64)

	// End finishes the compute pass.
	End()
}

// RenderPassEncoder records draw commands.
type RenderPassEncoder interface {
	// SetPipeline sets the active render pipeline.
	SetPipeline(pipeline RenderPipelineID)

	// SetBindGroup sets a bind group at the specified index.
	SetBindGroup(index uint32, group BindGroupID)

	// Draw draws non-indexed primitives.
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)

	// DrawIndirect draws with arguments read from buffer at offset when the
	// command executes. The buffer holds DrawIndirectArgsSize bytes.
	DrawIndirect(buffer BufferID, offset uint64)

	// End finishes the render pass.
	End()
}
