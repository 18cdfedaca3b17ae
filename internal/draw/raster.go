// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package draw

import (
	"math"

	"github.com/gogpu/splat/gpucore"
)

// splatWords is the size of a Splat2D record in words.
const splatWords = 6

// Rasterize is the CPU twin of the splat pipeline: a quad per instance,
// Gaussian falloff, premultiplied "over" blending, in instance order.
func Rasterize(call *gpucore.DrawCall) {
	if call.VertexCount < 4 || call.Target == nil {
		return
	}
	splats := call.Bindings.Words(0, BindingSplats)
	sorted := call.Bindings.Words(1, 0)
	target := call.Target
	w, h := float32(target.Width), float32(target.Height)

	end := call.FirstInstance + call.InstanceCount
	for inst := call.FirstInstance; inst < end && int(inst) < len(sorted); inst++ {
		idx := sorted[inst]
		if int(idx+1)*splatWords > len(splats) {
			continue
		}
		s := splats[idx*splatWords:]
		cx, cy := f32(s[0]), f32(s[1])
		ex, ey := f32(s[2]), f32(s[3])
		if ex <= 0 || ey <= 0 {
			continue
		}
		color := s[4]
		r := float32(color&0xFF) / 255
		g := float32(color>>8&0xFF) / 255
		b := float32(color>>16&0xFF) / 255
		a := float32(color>>24) / 255

		// NDC y points up; pixel rows go down.
		x0 := clampPixel((cx-ex+1)/2*w, target.Width)
		x1 := clampPixel((cx+ex+1)/2*w+1, target.Width)
		y0 := clampPixel((1-(cy+ey))/2*h, target.Height)
		y1 := clampPixel((1-(cy-ey))/2*h+1, target.Height)

		for py := y0; py < y1; py++ {
			ny := 1 - (float32(py)+0.5)/h*2
			v := (ny - cy) / ey
			for px := x0; px < x1; px++ {
				nx := (float32(px)+0.5)/w*2 - 1
				u := (nx - cx) / ex
				r2 := u*u + v*v
				if r2 > 1 {
					continue
				}
				alpha := a * float32(math.Exp(float64(-4.5*r2)))
				d := target.Pix[(py*target.Width+px)*4:]
				inv := 1 - alpha
				d[0] = r*alpha + d[0]*inv
				d[1] = g*alpha + d[1]*inv
				d[2] = b*alpha + d[2]*inv
				d[3] = alpha + d[3]*inv
			}
		}
	}
}

func clampPixel(v float32, size int) int {
	switch {
	case v < 0:
		return 0
	case v > float32(size):
		return size
	}
	return int(v)
}

func f32(w uint32) float32 { return math.Float32frombits(w) }
