// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gpucore provides shared GPU abstractions for the splat rendering pipeline.
//
// This package defines the [GPUAdapter] interface, which abstracts over different
// GPU backend implementations, allowing the same sort and render code to work with:
//   - gogpu/wgpu (Pure Go WebGPU via HAL), see backend/native
//   - a CPU device executing reference kernels, see backend/software
//
// # Architecture
//
// The engines (radix sort, preprocessing, splat draw) are written once against
// [GPUAdapter], while thin adapters translate between the interface and
// specific backend APIs.
//
//	      +-------------------------------+
//	      |  gpusort / preprocess / draw  |
//	      +---------------+---------------+
//	                      |
//	               +------v------+
//	               |   gpucore   |
//	               +------+------+
//	                      |
//	         +------------+------------+
//	         |                         |
//	+--------v--------+       +--------v--------+
//	| native adapter  |       | software adapter|
//	|  (hal.Device)   |       |  (Go kernels)   |
//	+-----------------+       +-----------------+
//
// # Resource Management
//
// GPU resources are managed via opaque IDs ([BufferID], [TextureID], etc.).
// The [GPUAdapter] interface provides creation and destruction methods for
// each resource type. Adapters are responsible for tracking the mapping
// between IDs and actual GPU resources.
//
// # Command Recording
//
// Work is recorded through a [CommandEncoder] into one command buffer and
// submitted with [GPUAdapter.Submit]. Commands in one buffer execute in
// record order. Indirect dispatches and draws read their arguments from GPU
// buffers at execution time, so counts computed by earlier passes in the same
// buffer drive later ones without a CPU round-trip.
//
// # Reference Kernels
//
// A [ShaderModuleDesc] may carry a [KernelSet] with Go implementations of its
// entry points. Hardware adapters ignore it. The software adapter executes
// it, one workgroup at a time.
package gpucore
