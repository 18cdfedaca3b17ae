// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package preprocess

import (
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/splat/backend/software"
	"github.com/gogpu/splat/gpucore"
	"github.com/gogpu/splat/gpusort"
	"github.com/gogpu/splat/internal/shader"
)

func testParams() Params {
	const w, h = 640, 480
	fovY := mgl32.DegToRad(60)
	f := float32(h) / (2 * float32(math.Tan(float64(fovY)/2)))
	return Params{
		View:       mgl32.LookAtV(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0}),
		Proj:       mgl32.Perspective(fovY, float32(w)/h, 0.1, 100),
		Viewport:   mgl32.Vec2{w, h},
		Focal:      mgl32.Vec2{f, f},
		Order:      BackToFront,
		ClipMargin: 1.2,
		MinOpacity: 1.0 / 255,
		SplatScale: 1,
	}
}

func gaussianAt(x, y, z float32) Gaussian {
	return Gaussian{
		Position:   mgl32.Vec3{x, y, z},
		Opacity:    0.8,
		Covariance: IsotropicCovariance(0.05),
		Color:      PackColor(255, 128, 0, 255),
	}
}

func TestProjectCenter(t *testing.T) {
	p := testParams()
	s, ok := Project(&p, gaussianAt(0, 0, 0))
	require.True(t, ok)
	assert.InDelta(t, 0, s.Center[0], 1e-5)
	assert.InDelta(t, 0, s.Center[1], 1e-5)
	assert.InDelta(t, 5, s.Depth, 1e-4)
	assert.Greater(t, s.Extent[0], float32(0))
	assert.Equal(t, uint32(204), s.Color>>24, "alpha carries opacity")
	assert.Equal(t, uint32(0x0080FF), s.Color&0xFFFFFF)
}

func TestProjectCulling(t *testing.T) {
	p := testParams()
	tests := []struct {
		name string
		g    Gaussian
	}{
		{"behind camera", gaussianAt(0, 0, 10)},
		{"outside clip margin", gaussianAt(50, 0, 0)},
		{"transparent", func() Gaussian { g := gaussianAt(0, 0, 0); g.Opacity = 0; return g }()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Project(&p, tt.g)
			assert.False(t, ok)
		})
	}
}

func TestProjectExtentGrowsWithScale(t *testing.T) {
	p := testParams()
	small, ok := Project(&p, gaussianAt(0, 0, 0))
	require.True(t, ok)
	p.SplatScale = 4
	large, ok := Project(&p, gaussianAt(0, 0, 0))
	require.True(t, ok)
	assert.Greater(t, large.Extent[0], small.Extent[0])
	assert.Greater(t, large.Extent[1], small.Extent[1])
}

func TestSortKeyOrder(t *testing.T) {
	near, far := float32(1), float32(10)
	assert.Less(t, SortKey(far, BackToFront), SortKey(near, BackToFront))
	assert.Less(t, SortKey(near, FrontToBack), SortKey(far, FrontToBack))
}

func TestParamsLayout(t *testing.T) {
	p := testParams()
	b := p.Bytes()
	require.Len(t, b, ParamsSize)

	words := make([]uint32, ParamsSize/4)
	for i := range words {
		words[i] = uint32(b[4*i]) | uint32(b[4*i+1])<<8 | uint32(b[4*i+2])<<16 | uint32(b[4*i+3])<<24
	}
	assert.Equal(t, p, decodeParams(words))
}

func TestGaussianLayout(t *testing.T) {
	g := gaussianAt(1, 2, 3)
	b := EncodeGaussians([]Gaussian{g, g})
	require.Len(t, b, 2*GaussianSize)
	words := make([]uint32, GaussianWords)
	for i := range words {
		words[i] = uint32(b[4*i]) | uint32(b[4*i+1])<<8 | uint32(b[4*i+2])<<16 | uint32(b[4*i+3])<<24
	}
	assert.Equal(t, g, decodeGaussian(words))
}

func TestWorkgroups(t *testing.T) {
	tests := []struct {
		n, max uint32
		x, y   uint32
	}{
		{0, 65535, 0, 1},
		{1, 65535, 1, 1},
		{256, 65535, 1, 1},
		{257, 65535, 2, 1},
		{10 * 256, 4, 4, 3},
	}
	for _, tt := range tests {
		x, y := Workgroups(tt.n, tt.max)
		assert.Equal(t, tt.x, x, "x for n=%d", tt.n)
		assert.Equal(t, tt.y, y, "y for n=%d", tt.n)
		assert.GreaterOrEqual(t, x*y*WorkgroupSize, tt.n)
	}
}

func TestShaderCompilation(t *testing.T) {
	src, err := ShaderSource()
	require.NoError(t, err)
	assert.False(t, strings.Contains(src, "{{"))

	if _, err := shader.Compile("preprocess", src); err != nil {
		if shader.Unsupported(err) {
			t.Skipf("Skipping: naga limitation: %v", err)
		}
		t.Fatalf("failed to compile preprocess shader: %v", err)
	}
}

// TestKernelFeedsSort runs preprocessing into real sort resources and
// checks counts, keys and the draw arguments it leaves behind.
func TestKernelFeedsSort(t *testing.T) {
	tests := []struct {
		name      string
		maxPerDim uint32
	}{
		{"1d", 65535},
		{"2d", 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := software.New(software.WithMaxWorkgroupsPerDimension(tt.maxPerDim))
			defer adapter.Close()

			sorter, err := gpusort.New(adapter, 32)
			require.NoError(t, err)
			defer sorter.Close()
			pipe, err := New(adapter, sorter.PreprocessLayout())
			require.NoError(t, err)
			defer pipe.Close()

			rng := rand.New(rand.NewPCG(11, 12))
			const n = 5000
			gs := make([]Gaussian, n)
			visible := 0
			for i := range gs {
				z := rng.Float32()*8 - 4
				if i%5 == 0 {
					z = 20 // behind the camera
				} else {
					visible++
				}
				gs[i] = gaussianAt(rng.Float32()-0.5, rng.Float32()-0.5, z)
			}

			res, err := sorter.NewResources(n)
			require.NoError(t, err)
			defer res.Release()
			require.NoError(t, sorter.ResetIndirect(res))

			params := newBuffer(t, adapter, ParamsSize, gpucore.BufferUsageUniform)
			gaussians := newBuffer(t, adapter, n*GaussianSize, gpucore.BufferUsageStorage)
			splats := newBuffer(t, adapter, n*SplatSize, gpucore.BufferUsageStorage)
			drawArgs := newBuffer(t, adapter, gpucore.DrawIndirectArgsSize, gpucore.BufferUsageStorage|gpucore.BufferUsageIndirect)
			p := testParams()
			require.NoError(t, adapter.WriteBuffer(params, 0, p.Bytes()))
			require.NoError(t, adapter.WriteBuffer(gaussians, 0, EncodeGaussians(gs)))

			paramsGroup, err := adapter.CreateBindGroup(&gpucore.BindGroupDesc{
				Layout:  pipe.ParamsLayout(),
				Entries: []gpucore.BindGroupEntry{{Binding: BindingParams, Buffer: params}},
			})
			require.NoError(t, err)
			cloudGroup, err := adapter.CreateBindGroup(&gpucore.BindGroupDesc{
				Layout: pipe.CloudLayout(),
				Entries: []gpucore.BindGroupEntry{
					{Binding: BindingGaussians, Buffer: gaussians},
					{Binding: BindingSplats, Buffer: splats},
					{Binding: BindingDrawArgs, Buffer: drawArgs},
				},
			})
			require.NoError(t, err)

			enc, err := adapter.CreateCommandEncoder("preprocess test")
			require.NoError(t, err)
			pipe.Record(enc, paramsGroup, cloudGroup, res.PreprocessGroup, n)
			cmd, err := enc.Finish()
			require.NoError(t, err)
			require.NoError(t, adapter.Submit(cmd))

			u := gpusort.DecodeSortUniform(read(t, adapter, res.Uniform, gpusort.SortUniformSize))
			assert.Equal(t, uint32(visible), u.KeysSize)
			d := gpusort.DecodeDispatchIndirect(read(t, adapter, res.Dispatch, gpusort.DispatchIndirectSize))
			assert.Equal(t, gpusort.BlockCount(uint32(visible)), d.X)

			args := words(read(t, adapter, drawArgs, gpucore.DrawIndirectArgsSize))
			assert.Equal(t, []uint32{QuadVertices, 0, 0, 0}, args)

			payloads := words(read(t, adapter, res.PayloadA, visible*4))
			keys := words(read(t, adapter, res.KeysA, visible*4))
			splatWords := words(read(t, adapter, splats, n*SplatSize))
			seen := slices.Clone(payloads)
			slices.Sort(seen)
			assert.Len(t, slices.Compact(seen), visible, "each visible splat appears once")
			for i, idx := range payloads {
				require.NotZero(t, idx%5, "culled splat %d was emitted", idx)
				s := DecodeSplat(splatWords[idx*SplatWords:])
				assert.Equal(t, SortKey(s.Depth, BackToFront), keys[i])
			}
		})
	}
}

func newBuffer(t *testing.T, a gpucore.GPUAdapter, size uint64, usage gpucore.BufferUsage) gpucore.BufferID {
	t.Helper()
	id, err := a.CreateBuffer(&gpucore.BufferDesc{Size: size, Usage: usage | gpucore.BufferUsageCopyDst | gpucore.BufferUsageCopySrc})
	require.NoError(t, err)
	return id
}

func read(t *testing.T, a gpucore.GPUAdapter, id gpucore.BufferID, size int) []byte {
	t.Helper()
	b, err := a.ReadBuffer(id, 0, uint64(size))
	require.NoError(t, err)
	return b
}

func words(b []byte) []uint32 {
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = uint32(b[4*i]) | uint32(b[4*i+1])<<8 | uint32(b[4*i+2])<<16 | uint32(b[4*i+3])<<24
	}
	return out
}
