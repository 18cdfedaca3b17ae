// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package splat

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/splat/preprocess"
)

// Camera holds the view and projection of one frame.
type Camera struct {
	View mgl32.Mat4
	Proj mgl32.Mat4

	// Viewport is the target size in pixels.
	Viewport mgl32.Vec2

	// Focal is the focal length in pixels along x and y.
	Focal mgl32.Vec2
}

// NewCamera builds a perspective camera looking from eye at center.
// fovY is the vertical field of view in radians.
func NewCamera(eye, center, up mgl32.Vec3, fovY float32, width, height int, near, far float32) Camera {
	w, h := float32(width), float32(height)
	f := h / (2 * float32(math.Tan(float64(fovY)/2)))
	return Camera{
		View:     mgl32.LookAtV(eye, center, up),
		Proj:     mgl32.Perspective(fovY, w/h, near, far),
		Viewport: mgl32.Vec2{w, h},
		Focal:    mgl32.Vec2{f, f},
	}
}

func (c *Camera) params(s *RenderSettings) preprocess.Params {
	return preprocess.Params{
		View:       c.View,
		Proj:       c.Proj,
		Viewport:   c.Viewport,
		Focal:      c.Focal,
		Order:      s.Order,
		ClipMargin: s.ClipMargin,
		MinOpacity: s.MinOpacity,
		SplatScale: s.SplatScale,
	}
}
