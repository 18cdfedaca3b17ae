// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package preprocess

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Order selects the depth order of the sorted splats.
type Order uint32

const (
	// BackToFront sorts the farthest splat first, for "over" compositing.
	BackToFront Order = iota

	// FrontToBack sorts the nearest splat first.
	FrontToBack
)

// String returns the order name.
func (o Order) String() string {
	switch o {
	case BackToFront:
		return "back-to-front"
	case FrontToBack:
		return "front-to-back"
	default:
		return "unknown"
	}
}

// Gaussian is one 3D Gaussian of a point cloud, as stored on the GPU.
type Gaussian struct {
	Position mgl32.Vec3
	Opacity  float32

	// Covariance is the upper triangle of the world-space covariance:
	// xx, xy, xz, yy, yz, zz.
	Covariance [6]float32

	// Color is RGBA8 with red in the low byte. Alpha is ignored; Opacity
	// is used instead.
	Color uint32
}

// Gaussian record layout.
const (
	GaussianSize  = 48
	GaussianWords = GaussianSize / 4
)

// IsotropicCovariance returns the covariance of a sphere with standard
// deviation sigma.
func IsotropicCovariance(sigma float32) [6]float32 {
	v := sigma * sigma
	return [6]float32{v, 0, 0, v, 0, v}
}

// PackColor packs 8-bit channels into an RGBA8 word.
func PackColor(r, g, b, a uint8) uint32 {
	return uint32(r) | uint32(g)<<8 | uint32(b)<<16 | uint32(a)<<24
}

// UnpackColor splits an RGBA8 word into channels in [0,1].
func UnpackColor(c uint32) (r, g, b, a float32) {
	return float32(c&0xFF) / 255, float32(c>>8&0xFF) / 255,
		float32(c>>16&0xFF) / 255, float32(c>>24) / 255
}

// EncodeGaussians returns the GPU layout of gs.
func EncodeGaussians(gs []Gaussian) []byte {
	b := make([]byte, len(gs)*GaussianSize)
	for i, g := range gs {
		w := b[i*GaussianSize:]
		putF32(w[0:], g.Position[0])
		putF32(w[4:], g.Position[1])
		putF32(w[8:], g.Position[2])
		putF32(w[12:], g.Opacity)
		for j, c := range g.Covariance {
			putF32(w[16+4*j:], c)
		}
		binary.LittleEndian.PutUint32(w[40:], g.Color)
	}
	return b
}

func decodeGaussian(w []uint32) Gaussian {
	g := Gaussian{
		Position: mgl32.Vec3{f32(w[0]), f32(w[1]), f32(w[2])},
		Opacity:  f32(w[3]),
		Color:    w[10],
	}
	for j := range g.Covariance {
		g.Covariance[j] = f32(w[4+j])
	}
	return g
}

// Params is the per-frame uniform of the preprocessing kernel.
type Params struct {
	View mgl32.Mat4
	Proj mgl32.Mat4

	// Viewport is the target size in pixels.
	Viewport mgl32.Vec2

	// Focal is the focal length in pixels along x and y.
	Focal mgl32.Vec2

	Order Order

	// ClipMargin is the NDC bound beyond which splat centers are culled.
	// Values above 1 keep splats whose footprint reaches into the view.
	ClipMargin float32

	// MinOpacity culls splats that would be nearly invisible.
	MinOpacity float32

	// SplatScale scales every Gaussian's standard deviation.
	SplatScale float32
}

// ParamsSize is the uniform size in bytes.
const ParamsSize = 160

// Bytes encodes the uniform in its std140-compatible GPU layout.
func (p *Params) Bytes() []byte {
	b := make([]byte, ParamsSize)
	for i, v := range p.View {
		putF32(b[4*i:], v)
	}
	for i, v := range p.Proj {
		putF32(b[64+4*i:], v)
	}
	putF32(b[128:], p.Viewport[0])
	putF32(b[132:], p.Viewport[1])
	putF32(b[136:], p.Focal[0])
	putF32(b[140:], p.Focal[1])
	binary.LittleEndian.PutUint32(b[144:], uint32(p.Order))
	putF32(b[148:], p.ClipMargin)
	putF32(b[152:], p.MinOpacity)
	putF32(b[156:], p.SplatScale)
	return b
}

func decodeParams(w []uint32) Params {
	var p Params
	for i := range p.View {
		p.View[i] = f32(w[i])
		p.Proj[i] = f32(w[16+i])
	}
	p.Viewport = mgl32.Vec2{f32(w[32]), f32(w[33])}
	p.Focal = mgl32.Vec2{f32(w[34]), f32(w[35])}
	p.Order = Order(w[36])
	p.ClipMargin = f32(w[37])
	p.MinOpacity = f32(w[38])
	p.SplatScale = f32(w[39])
	return p
}

// Splat2D is a projected splat as written by the kernel.
type Splat2D struct {
	// Center is the NDC position of the quad center.
	Center mgl32.Vec2

	// Extent is the NDC half-size of the quad, three standard deviations.
	Extent mgl32.Vec2

	// Color is RGBA8 with the opacity in alpha.
	Color uint32

	// Depth is the view-space distance along the camera axis.
	Depth float32
}

// Splat2D record layout.
const (
	SplatSize  = 24
	SplatWords = SplatSize / 4
)

// DecodeSplat reads a Splat2D from its GPU words.
func DecodeSplat(w []uint32) Splat2D {
	return Splat2D{
		Center: mgl32.Vec2{f32(w[0]), f32(w[1])},
		Extent: mgl32.Vec2{f32(w[2]), f32(w[3])},
		Color:  w[4],
		Depth:  f32(w[5]),
	}
}

func (s Splat2D) put(w []uint32) {
	w[0] = math.Float32bits(s.Center[0])
	w[1] = math.Float32bits(s.Center[1])
	w[2] = math.Float32bits(s.Extent[0])
	w[3] = math.Float32bits(s.Extent[1])
	w[4] = s.Color
	w[5] = math.Float32bits(s.Depth)
}

func putF32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func f32(w uint32) float32 { return math.Float32frombits(w) }
