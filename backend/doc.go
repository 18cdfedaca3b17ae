// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package backend is a registry of GPU devices by name.
//
// Device packages register a factory in their init function. Importing a
// device package is enough to make it available:
//
//	import (
//	    _ "github.com/gogpu/splat/backend/native"
//	    _ "github.com/gogpu/splat/backend/software"
//	)
//
// # Device Selection
//
// Use Open to request a device by name, or Default to get the first one
// that opens in priority order (vulkan, then software):
//
//	adapter, err := backend.Open("vulkan")
//	if err != nil {
//	    adapter, err = backend.Open(backend.Software)
//	}
//	defer adapter.Close()
package backend
