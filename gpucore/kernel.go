// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

// CPU reference kernels
//
// Every WGSL entry point used by this module has a Go twin with the same
// memory layout and the same barrier structure. The software backend runs
// the twins instead of the WGSL, which makes the full GPU data path
// (indirect dispatch, ping-pong buffers, count copies) testable without a GPU.

// Bindings resolves the buffers bound for the current dispatch or draw.
type Bindings interface {
	// Words returns the u32 view of the buffer range bound at group and
	// binding, or nil if nothing is bound there. Writes through the slice
	// are visible to later commands.
	Words(group, binding uint32) []uint32
}

// Workgroup is the execution context of one compute workgroup.
type Workgroup struct {
	// ID is @builtin(workgroup_id).
	ID [3]uint32

	// Count is @builtin(num_workgroups).
	Count [3]uint32

	// SubgroupSize is the width the executing device runs in lockstep.
	// Kernels that rely on lockstep execution without barriers emulate it
	// one hardware subgroup at a time.
	SubgroupSize uint32

	Bindings Bindings
}

// ComputeKernel executes all invocations of one workgroup.
type ComputeKernel func(wg *Workgroup)

// RenderTarget is a premultiplied linear RGBA float image.
type RenderTarget struct {
	Width, Height int

	// Pix holds 4 floats per pixel, row-major.
	Pix []float32
}

// DrawCall is the execution context of one draw.
type DrawCall struct {
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32

	Bindings Bindings
	Target   *RenderTarget
}

// DrawKernel rasterizes one draw call into its target.
type DrawKernel func(call *DrawCall)

// KernelSet maps entry point names to CPU implementations.
// Draw kernels are keyed by the vertex entry point.
type KernelSet struct {
	Compute map[string]ComputeKernel
	Draw    map[string]DrawKernel
}

// ComputeKernel returns the compute kernel for entry, if any.
func (k *KernelSet) ComputeKernel(entry string) (ComputeKernel, bool) {
	if k == nil {
		return nil, false
	}
	fn, ok := k.Compute[entry]
	return fn, ok
}

// DrawKernel returns the draw kernel for a vertex entry point, if any.
func (k *KernelSet) DrawKernel(entry string) (DrawKernel, bool) {
	if k == nil {
		return nil, false
	}
	fn, ok := k.Draw[entry]
	return fn, ok
}
