// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package splat

import (
	"github.com/gogpu/splat/gpucore"
	"github.com/gogpu/splat/preprocess"
)

// Gaussian is one 3D splat as uploaded by LoadPointCloud.
type Gaussian = preprocess.Gaussian

// SortOrder selects the blending order of splats.
type SortOrder = preprocess.Order

// Sort orders.
const (
	// BackToFront draws the farthest splat first. Use with "over" blending.
	BackToFront = preprocess.BackToFront

	// FrontToBack draws the nearest splat first.
	FrontToBack = preprocess.FrontToBack
)

// RenderSettings controls culling and compositing of one frame.
type RenderSettings struct {
	Order SortOrder

	// ClipMargin widens the NDC frustum test so splats whose centers sit
	// just outside the screen still contribute their tails.
	ClipMargin float32

	// MinOpacity culls splats fainter than this.
	MinOpacity float32

	// SplatScale multiplies every projected extent.
	SplatScale float32

	// Background is the clear color of the target.
	Background gpucore.Color
}

// DefaultRenderSettings returns the settings used when none are given.
func DefaultRenderSettings() RenderSettings {
	return RenderSettings{
		Order:      BackToFront,
		ClipMargin: 1.2,
		MinOpacity: 1.0 / 255,
		SplatScale: 1,
	}
}
