// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"

	"github.com/gogpu/splat/gpucore"
)

// Device names.
const (
	// Software is the CPU device executing reference kernels.
	Software = "software"

	// Vulkan is the gogpu/wgpu HAL device on Vulkan.
	Vulkan = "vulkan"
)

// ErrBackendNotAvailable is returned when a requested device is not
// registered or no registered device opens.
var ErrBackendNotAvailable = errors.New("backend: not available")

// Factory opens a new device.
type Factory func() (gpucore.GPUAdapter, error)
