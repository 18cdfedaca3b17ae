// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"github.com/gogpu/splat/backend"
	"github.com/gogpu/splat/gpucore"
)

func init() {
	backend.Register(backend.Software, func() (gpucore.GPUAdapter, error) {
		return New(), nil
	})
}
