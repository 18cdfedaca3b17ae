// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/splat/backend"
	"github.com/gogpu/splat/gpucore"
)

func init() {
	backend.Register(backend.Vulkan, func() (gpucore.GPUAdapter, error) {
		return Open(gputypes.BackendVulkan)
	})
}
