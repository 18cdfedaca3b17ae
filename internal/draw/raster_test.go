// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package draw

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/splat/backend/software"
	"github.com/gogpu/splat/gpucore"
	"github.com/gogpu/splat/internal/shader"
)

type mapBindings map[[2]uint32][]uint32

func (m mapBindings) Words(group, binding uint32) []uint32 {
	return m[[2]uint32{group, binding}]
}

func splatRecord(cx, cy, ex, ey float32, color uint32) []uint32 {
	return []uint32{
		math.Float32bits(cx), math.Float32bits(cy),
		math.Float32bits(ex), math.Float32bits(ey),
		color, math.Float32bits(1),
	}
}

func newTarget(w, h int) *gpucore.RenderTarget {
	return &gpucore.RenderTarget{Width: w, Height: h, Pix: make([]float32, w*h*4)}
}

func pixel(t *gpucore.RenderTarget, x, y int) []float32 {
	i := (y*t.Width + x) * 4
	return t.Pix[i : i+4]
}

const (
	opaqueRed  = 0xFF0000FF
	opaqueBlue = 0xFFFF0000
)

func TestRasterizeCenterPixel(t *testing.T) {
	target := newTarget(16, 16)
	Rasterize(&gpucore.DrawCall{
		VertexCount:   4,
		InstanceCount: 1,
		Bindings: mapBindings{
			{0, BindingSplats}: splatRecord(0, 0, 0.5, 0.5, opaqueRed),
			{1, 0}:             {0},
		},
		Target: target,
	})

	center := pixel(target, 8, 8)
	assert.Greater(t, center[0], float32(0.8))
	assert.InDelta(t, center[3], center[0], 1e-6, "premultiplied")
	assert.Zero(t, center[2])
	assert.Equal(t, []float32{0, 0, 0, 0}, pixel(target, 0, 0), "corner lies outside the footprint")
}

func TestRasterizeFollowsInstanceOrder(t *testing.T) {
	splats := append(splatRecord(0, 0, 1, 1, opaqueRed), splatRecord(0, 0, 1, 1, opaqueBlue)...)

	draw := func(order []uint32) []float32 {
		target := newTarget(8, 8)
		Rasterize(&gpucore.DrawCall{
			VertexCount:   4,
			InstanceCount: 2,
			Bindings:      mapBindings{{0, BindingSplats}: splats, {1, 0}: order},
			Target:        target,
		})
		return pixel(target, 4, 4)
	}

	redOnTop := draw([]uint32{1, 0})
	blueOnTop := draw([]uint32{0, 1})
	assert.Greater(t, redOnTop[0], redOnTop[2])
	assert.Greater(t, blueOnTop[2], blueOnTop[0])
}

func TestRasterizeZeroInstances(t *testing.T) {
	target := newTarget(8, 8)
	Rasterize(&gpucore.DrawCall{
		VertexCount: 4,
		Bindings: mapBindings{
			{0, BindingSplats}: splatRecord(0, 0, 1, 1, opaqueRed),
			{1, 0}:             {0},
		},
		Target: target,
	})
	for _, v := range target.Pix {
		require.Zero(t, v)
	}
}

func TestPipelineOnSoftwareAdapter(t *testing.T) {
	adapter := software.New()
	defer adapter.Close()

	sortedLayout, err := adapter.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Entries: []gpucore.BindGroupLayoutEntry{{Binding: 0, Visibility: gpucore.ShaderStageVertex, Type: gpucore.BindingTypeReadOnlyStorageBuffer}},
	})
	require.NoError(t, err)
	p, err := New(adapter, sortedLayout, gpucore.TextureFormatRGBA8Unorm)
	require.NoError(t, err)
	defer p.Close()
	assert.NotEqual(t, gpucore.BindGroupLayoutID(gpucore.InvalidID), p.SplatLayout())
}

func TestShaderCompilation(t *testing.T) {
	assert.True(t, strings.Contains(ShaderSource(), "fn "+vertexEntry))
	if _, err := shader.Compile("splat_draw", ShaderSource()); err != nil {
		if shader.Unsupported(err) {
			t.Skipf("Skipping: naga limitation: %v", err)
		}
		t.Fatalf("failed to compile splat shader: %v", err)
	}
}
