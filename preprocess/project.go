// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package preprocess

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/splat/gpusort"
)

// lowPass is added to the projected variance so every splat covers at
// least about one pixel.
const lowPass = 0.3

// Project projects g to screen space. It reports false when the splat is
// culled: behind the camera, centered outside the clip margin, or below
// the opacity threshold.
func Project(p *Params, g Gaussian) (Splat2D, bool) {
	if g.Opacity < p.MinOpacity {
		return Splat2D{}, false
	}
	view := p.View.Mul4x1(g.Position.Vec4(1))
	clip := p.Proj.Mul4x1(view)
	if clip[3] <= 0 {
		return Splat2D{}, false
	}
	ndc := mgl32.Vec2{clip[0] / clip[3], clip[1] / clip[3]}
	if abs32(ndc[0]) > p.ClipMargin || abs32(ndc[1]) > p.ClipMargin {
		return Splat2D{}, false
	}

	// EWA splatting: cov2d = J W Σ Wᵀ Jᵀ with J the projection Jacobian.
	z := clip[3]
	fx, fy := p.Focal[0], p.Focal[1]
	j := mgl32.Mat3{
		fx / z, 0, 0,
		0, fy / z, 0,
		fx * view[0] / (z * z), fy * view[1] / (z * z), 0,
	}
	c := g.Covariance
	s2 := p.SplatScale * p.SplatScale
	sigma := mgl32.Mat3{
		c[0], c[1], c[2],
		c[1], c[3], c[4],
		c[2], c[4], c[5],
	}.Mul(s2)
	t := j.Mul3(p.View.Mat3())
	cov := t.Mul3(sigma).Mul3(t.Transpose())

	sx := float32(math.Sqrt(float64(cov.At(0, 0) + lowPass)))
	sy := float32(math.Sqrt(float64(cov.At(1, 1) + lowPass)))
	extent := mgl32.Vec2{3 * sx * 2 / p.Viewport[0], 3 * sy * 2 / p.Viewport[1]}

	alpha := uint32(mgl32.Clamp(g.Opacity, 0, 1)*255 + 0.5)
	return Splat2D{
		Center: ndc,
		Extent: extent,
		Color:  g.Color&0x00FFFFFF | alpha<<24,
		Depth:  z,
	}, true
}

// SortKey returns the radix sort key of a splat at depth. Ascending keys
// follow order.
func SortKey(depth float32, order Order) uint32 {
	if order == FrontToBack {
		return gpusort.FloatKey(depth)
	}
	return gpusort.FloatKey(-depth)
}

func abs32(v float32) float32 {
	return math.Float32frombits(math.Float32bits(v) &^ (1 << 31))
}
