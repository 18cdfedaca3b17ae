// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package native implements gpucore.GPUAdapter on gogpu/wgpu HAL devices.
//
// The adapter maps gpucore IDs to hal objects and records commands straight
// into a hal.CommandEncoder. Shaders are passed to the device as WGSL, or
// compiled to SPIR-V through naga first when WithSPIRV is set.
//
// Submissions are tracked by queue submission index. At most two are in
// flight; a third Submit waits for the oldest one and retires it. Destroy
// calls hold the hal object on the newest pending submission and release
// it when that submission retires.
//
// WriteBuffer fills a MapWrite staging buffer; the copy into the target is
// recorded ahead of the next Submit. ReadBuffer and ReadTexture drain the
// queue and map a MapRead staging buffer.
//
// # Device Sources
//
//   - New wraps a caller-owned hal.Device and hal.Queue
//   - NewFromProvider takes the device of a gpucontext.DeviceProvider that
//     also exposes HalDevice() and HalQueue()
//   - Open creates an instance for a backend and opens the best adapter
package native
