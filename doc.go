// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package splat renders 3D Gaussian splat point clouds with a GPU-resident
// depth sort.
//
// # Overview
//
// Every frame runs entirely on the GPU in one command submission:
//
//	reset counts -> preprocess -> radix sort -> copy count -> indirect draw
//
// The preprocessing pass projects each Gaussian, culls invisible ones and
// writes one (depth key, index) pair per survivor, atomically growing the
// visible count. The radix sort reads that count through indirect
// dispatches, and the draw reads it through its indirect arguments. The
// host never learns how many splats were visible.
//
// # Quick Start
//
//	adapter := software.New()
//	r, err := splat.NewRenderer(adapter)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	pc, err := r.LoadPointCloud(gaussians)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pc.Release()
//
//	cam := splat.NewCamera(eye, center, up, mgl32.DegToRad(60), 800, 600, 0.1, 100)
//	err = r.Render(pc, &cam, target)
//
// # Subgroup Width
//
// Sort kernels are specialized for a subgroup width at construction. Hosts
// cannot query it portably, so NewRenderer probes candidate widths with a
// self-test sort and keeps the widest that works. Use [WithSubgroupSize] to
// skip the probe when the width is known.
//
// # Backends
//
// A Renderer works with any [gpucore.GPUAdapter]:
//   - backend/native runs on gogpu/wgpu HAL devices (Vulkan, Metal, DX12, GLES)
//   - backend/software executes reference kernels on the CPU
//
// # Logging
//
// Logging is silent by default. Use [SetLogger] to enable it.
package splat
