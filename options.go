// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package splat

import (
	"github.com/gogpu/splat/gpucore"
	"github.com/gogpu/splat/gpusort"
)

// Option configures a Renderer.
//
// Example:
//
//	r, err := splat.NewRenderer(adapter,
//	    splat.WithSubgroupSize(32),
//	    splat.WithTargetFormat(gpucore.TextureFormatBGRA8Unorm),
//	)
type Option func(*config)

type config struct {
	subgroupSize uint32
	probeOpts    []gpusort.ProbeOption
	settings     RenderSettings
	format       gpucore.TextureFormat
	validate     bool
}

func defaultConfig() config {
	return config{
		settings: DefaultRenderSettings(),
		format:   gpucore.TextureFormatRGBA8Unorm,
	}
}

// WithSubgroupSize uses a known subgroup width and skips probing.
// The width is trusted as given.
func WithSubgroupSize(n uint32) Option {
	return func(c *config) {
		c.subgroupSize = n
	}
}

// WithProbeCandidates replaces the widths the prober tries.
func WithProbeCandidates(widths ...uint32) Option {
	return func(c *config) {
		c.probeOpts = append(c.probeOpts, gpusort.WithCandidates(widths...))
	}
}

// WithSelfTestSize sets the number of keys the prober sorts per candidate.
func WithSelfTestSize(n uint32) Option {
	return func(c *config) {
		c.probeOpts = append(c.probeOpts, gpusort.WithSelfTestSize(n))
	}
}

// WithRenderSettings replaces the default render settings.
func WithRenderSettings(s RenderSettings) Option {
	return func(c *config) {
		c.settings = s
	}
}

// WithTargetFormat sets the color format of render targets.
// Default is RGBA8Unorm.
func WithTargetFormat(f gpucore.TextureFormat) Option {
	return func(c *config) {
		c.format = f
	}
}

// WithFrameValidation makes Render wait for every frame and check that the
// visible count, the sort dispatch size and the draw instance count agree.
// Mismatches are reported as ErrSequencing. Meant for debugging; it stalls
// the host once per frame.
func WithFrameValidation() Option {
	return func(c *config) {
		c.validate = true
	}
}
