// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

// Resource IDs
//
// These opaque IDs represent GPU resources. Each adapter implementation
// maintains a mapping between IDs and actual backend resources.
// IDs are uint64 to accommodate various backend handle sizes.

// BufferID is an opaque handle to a GPU buffer.
type BufferID uint64

// TextureID is an opaque handle to a GPU texture usable as a render target.
type TextureID uint64

// ShaderModuleID is an opaque handle to a compiled shader module.
type ShaderModuleID uint64

// ComputePipelineID is an opaque handle to a compute pipeline.
type ComputePipelineID uint64

// RenderPipelineID is an opaque handle to a render pipeline.
type RenderPipelineID uint64

// BindGroupLayoutID is an opaque handle to a bind group layout.
type BindGroupLayoutID uint64

// BindGroupID is an opaque handle to a bind group.
type BindGroupID uint64

// PipelineLayoutID is an opaque handle to a pipeline layout.
type PipelineLayoutID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// BufferUsage is a bitmask specifying how a buffer will be used.
type BufferUsage uint32

// Buffer usage flags.
const (
	// BufferUsageMapRead indicates the buffer can be mapped for reading.
	BufferUsageMapRead BufferUsage = 1 << 0

	// BufferUsageMapWrite indicates the buffer can be mapped for writing.
	BufferUsageMapWrite BufferUsage = 1 << 1

	// BufferUsageCopySrc indicates the buffer can be used as a copy source.
	BufferUsageCopySrc BufferUsage = 1 << 2

	// BufferUsageCopyDst indicates the buffer can be used as a copy destination.
	BufferUsageCopyDst BufferUsage = 1 << 3

	// BufferUsageIndex indicates the buffer can be used as an index buffer.
	BufferUsageIndex BufferUsage = 1 << 4

	// BufferUsageVertex indicates the buffer can be used as a vertex buffer.
	BufferUsageVertex BufferUsage = 1 << 5

	// BufferUsageUniform indicates the buffer can be used as a uniform buffer.
	BufferUsageUniform BufferUsage = 1 << 6

	// BufferUsageStorage indicates the buffer can be used as a storage buffer.
	BufferUsageStorage BufferUsage = 1 << 7

	// BufferUsageIndirect indicates the buffer can be used for indirect dispatch/draw.
	BufferUsageIndirect BufferUsage = 1 << 8
)

// TextureFormat specifies the format of texture data.
type TextureFormat uint32

// Texture formats.
const (
	// TextureFormatRGBA8Unorm is 8-bit RGBA, normalized unsigned integer.
	TextureFormatRGBA8Unorm TextureFormat = iota + 1

	// TextureFormatBGRA8Unorm is 8-bit BGRA, normalized unsigned integer.
	// This is the usual swapchain format on Vulkan and Metal.
	TextureFormatBGRA8Unorm
)

// String returns the WGSL-style name of the format.
func (f TextureFormat) String() string {
	switch f {
	case TextureFormatRGBA8Unorm:
		return "rgba8unorm"
	case TextureFormatBGRA8Unorm:
		return "bgra8unorm"
	default:
		return "unknown"
	}
}

// BindingType specifies the type of a shader binding.
type BindingType uint32

// Binding types.
const (
	// BindingTypeUniformBuffer is a uniform buffer binding.
	BindingTypeUniformBuffer BindingType = iota + 1

	// BindingTypeStorageBuffer is a storage buffer binding (read-write).
	BindingTypeStorageBuffer

	// BindingTypeReadOnlyStorageBuffer is a read-only storage buffer binding.
	BindingTypeReadOnlyStorageBuffer
)

// ShaderStage is a bitmask of shader stages a binding is visible to.
type ShaderStage uint32

// Shader stages.
const (
	ShaderStageVertex   ShaderStage = 1 << 0
	ShaderStageFragment ShaderStage = 1 << 1
	ShaderStageCompute  ShaderStage = 1 << 2
)

// PrimitiveTopology selects how vertices are assembled.
type PrimitiveTopology uint32

// Primitive topologies.
const (
	PrimitiveTopologyTriangleList PrimitiveTopology = iota
	PrimitiveTopologyTriangleStrip
)

// BlendMode selects the color blend state of a render pipeline.
type BlendMode uint32

// Blend modes.
const (
	// BlendNone writes fragment colors unchanged.
	BlendNone BlendMode = iota

	// BlendPremultiplied composites premultiplied colors with the "over"
	// operator: dst = src + dst*(1-src.a).
	BlendPremultiplied
)

// Color is a linear RGBA color used for clear values.
type Color struct {
	R, G, B, A float64
}

// BufferDesc describes a GPU buffer.
type BufferDesc struct {
	// Label is an optional debug label.
	Label string

	// Size is the buffer size in bytes. Must be positive.
	Size uint64

	// Usage is a bitmask of BufferUsage flags.
	Usage BufferUsage
}

// ShaderModuleDesc describes a shader module.
type ShaderModuleDesc struct {
	// Label is an optional debug label.
	Label string

	// WGSL is the shader source.
	WGSL string

	// Reference holds CPU implementations of the module's entry points.
	// Hardware backends ignore it; the software backend requires it.
	Reference *KernelSet
}

// ComputePipelineDesc describes a compute pipeline.
type ComputePipelineDesc struct {
	// Label is an optional debug label.
	Label string

	// Layout is the pipeline layout.
	Layout PipelineLayoutID

	// ShaderModule contains the compute shader.
	ShaderModule ShaderModuleID

	// EntryPoint is the name of the shader entry point function.
	EntryPoint string
}

// RenderPipelineDesc describes a render pipeline drawing into a single
// color target without vertex buffers.
type RenderPipelineDesc struct {
	Label  string
	Layout PipelineLayoutID

	// ShaderModule contains both the vertex and fragment entry points.
	ShaderModule       ShaderModuleID
	VertexEntryPoint   string
	FragmentEntryPoint string

	TargetFormat TextureFormat
	Topology     PrimitiveTopology
	Blend        BlendMode
}

// PipelineLayoutDesc describes a pipeline layout.
type PipelineLayoutDesc struct {
	Label string

	// BindGroupLayouts are indexed by bind group number.
	BindGroupLayouts []BindGroupLayoutID
}

// BindGroupLayoutDesc describes a bind group layout.
type BindGroupLayoutDesc struct {
	// Label is an optional debug label.
	Label string

	// Entries defines the bindings in this layout.
	Entries []BindGroupLayoutEntry
}

// BindGroupLayoutEntry describes a single binding in a bind group layout.
type BindGroupLayoutEntry struct {
	// Binding is the binding index.
	Binding uint32

	// Visibility lists the shader stages that access the binding.
	Visibility ShaderStage

	// Type is the type of resource bound at this index.
	Type BindingType

	// MinBindingSize is the minimum buffer size for buffer bindings.
	MinBindingSize uint64
}

// BindGroupEntry describes a single binding in a bind group.
type BindGroupEntry struct {
	// Binding is the binding index.
	Binding uint32

	// Buffer is the buffer to bind.
	Buffer BufferID

	// Offset is the offset into the buffer.
	Offset uint64

	// Size is the size of the buffer range to bind.
	// Use 0 to bind the entire buffer from offset.
	Size uint64
}

// BindGroupDesc describes a bind group.
type BindGroupDesc struct {
	// Label is an optional debug label.
	Label string

	// Layout is the bind group layout.
	Layout BindGroupLayoutID

	// Entries are the resource bindings.
	Entries []BindGroupEntry
}

// TextureDesc describes a 2D render target texture.
type TextureDesc struct {
	Label  string
	Width  uint32
	Height uint32
	Format TextureFormat
}

// RenderPassDesc describes a render pass with one color attachment.
type RenderPassDesc struct {
	Label string

	// Target is the color attachment.
	Target TextureID

	// Clear selects LoadOpClear with ClearColor; otherwise the previous
	// contents are loaded.
	Clear      bool
	ClearColor Color
}

// Limits describes the adapter limits the engines rely on.
type Limits struct {
	// MaxComputeInvocationsPerWorkgroup bounds workgroup_size products.
	MaxComputeInvocationsPerWorkgroup uint32

	// MaxComputeWorkgroupsPerDimension bounds each dispatch dimension.
	MaxComputeWorkgroupsPerDimension uint32

	// MaxBufferSize is the maximum buffer size in bytes.
	MaxBufferSize uint64

	// MaxStorageBufferBindingSize is the maximum storage binding range.
	MaxStorageBufferBindingSize uint64
}

// DefaultLimits returns the WebGPU baseline limits.
func DefaultLimits() Limits {
	return Limits{
		MaxComputeInvocationsPerWorkgroup: 256,
		MaxComputeWorkgroupsPerDimension:  65535,
		MaxBufferSize:                     256 << 20,
		MaxStorageBufferBindingSize:       128 << 20,
	}
}

// Indirect argument sizes in bytes.
const (
	// DispatchIndirectArgsSize is {x, y, z} as u32.
	DispatchIndirectArgsSize = 12

	// DrawIndirectArgsSize is {vertex_count, instance_count, first_vertex,
	// first_instance} as u32.
	DrawIndirectArgsSize = 16

	// DrawIndirectInstanceCountOffset is the byte offset of instance_count.
	DrawIndirectInstanceCountOffset = 4
)
