// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package splat

import "errors"

// Sentinel errors.
var (
	// ErrClosed is returned by operations on a closed Renderer.
	ErrClosed = errors.New("splat: renderer closed")

	// ErrEmptyPointCloud is returned when loading a point cloud without
	// Gaussians.
	ErrEmptyPointCloud = errors.New("splat: empty point cloud")

	// ErrNilPointCloud is returned when rendering a nil or released point
	// cloud.
	ErrNilPointCloud = errors.New("splat: nil or released point cloud")

	// ErrSequencing reports GPU-side counts that disagree after a frame,
	// which means commands were recorded out of order. It is only detected
	// with WithFrameValidation.
	ErrSequencing = errors.New("splat: frame sequencing violated")
)
