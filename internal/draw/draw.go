// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package draw renders sorted splats as Gaussian billboards.
package draw

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/splat/gpucore"
)

//go:embed shaders/splat.wgsl
var shaderSource string

const (
	vertexEntry   = "vs_main"
	fragmentEntry = "fs_main"
)

// BindingSplats is the binding of the projected splats in group 0.
const BindingSplats = 0

// Pipeline is the splat render pipeline.
type Pipeline struct {
	adapter gpucore.GPUAdapter

	module         gpucore.ShaderModuleID
	splatLayout    gpucore.BindGroupLayoutID
	pipelineLayout gpucore.PipelineLayoutID
	pipeline       gpucore.RenderPipelineID
}

// ShaderSource returns the splat WGSL.
func ShaderSource() string { return shaderSource }

// New creates the render pipeline for targets of the given format.
// sortedLayout is the sorter's render layout, bound as group 1.
func New(adapter gpucore.GPUAdapter, sortedLayout gpucore.BindGroupLayoutID, format gpucore.TextureFormat) (*Pipeline, error) {
	p := &Pipeline{adapter: adapter}
	if err := p.init(sortedLayout, format); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) init(sortedLayout gpucore.BindGroupLayoutID, format gpucore.TextureFormat) error {
	a := p.adapter
	var err error

	p.module, err = a.CreateShaderModule(&gpucore.ShaderModuleDesc{
		Label:     "splat_draw",
		WGSL:      shaderSource,
		Reference: &gpucore.KernelSet{Draw: map[string]gpucore.DrawKernel{vertexEntry: Rasterize}},
	})
	if err != nil {
		return fmt.Errorf("draw: create shader module: %w", err)
	}

	p.splatLayout, err = a.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label: "splat_draw_splats_bgl",
		Entries: []gpucore.BindGroupLayoutEntry{{
			Binding:        BindingSplats,
			Visibility:     gpucore.ShaderStageVertex,
			Type:           gpucore.BindingTypeReadOnlyStorageBuffer,
			MinBindingSize: splatWords * 4,
		}},
	})
	if err != nil {
		return fmt.Errorf("draw: create splat layout: %w", err)
	}

	p.pipelineLayout, err = a.CreatePipelineLayout(&gpucore.PipelineLayoutDesc{
		Label:            "splat_draw_pl",
		BindGroupLayouts: []gpucore.BindGroupLayoutID{p.splatLayout, sortedLayout},
	})
	if err != nil {
		return fmt.Errorf("draw: create pipeline layout: %w", err)
	}

	p.pipeline, err = a.CreateRenderPipeline(&gpucore.RenderPipelineDesc{
		Label:              "splat_draw",
		Layout:             p.pipelineLayout,
		ShaderModule:       p.module,
		VertexEntryPoint:   vertexEntry,
		FragmentEntryPoint: fragmentEntry,
		TargetFormat:       format,
		Topology:           gpucore.PrimitiveTopologyTriangleStrip,
		Blend:              gpucore.BlendPremultiplied,
	})
	if err != nil {
		return fmt.Errorf("draw: create render pipeline (%s): %w", format, err)
	}
	return nil
}

// SplatLayout returns the layout of group 0.
func (p *Pipeline) SplatLayout() gpucore.BindGroupLayoutID { return p.splatLayout }

// Record draws the sorted splats. drawArgs holds the indirect draw
// arguments; its instance count decides how many splats are drawn.
func (p *Pipeline) Record(pass gpucore.RenderPassEncoder, splats, sorted gpucore.BindGroupID, drawArgs gpucore.BufferID) {
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, splats)
	pass.SetBindGroup(1, sorted)
	pass.DrawIndirect(drawArgs, 0)
}

// Close releases the pipeline.
func (p *Pipeline) Close() {
	a := p.adapter
	if p.pipeline != gpucore.InvalidID {
		a.DestroyRenderPipeline(p.pipeline)
		p.pipeline = gpucore.InvalidID
	}
	if p.pipelineLayout != gpucore.InvalidID {
		a.DestroyPipelineLayout(p.pipelineLayout)
		p.pipelineLayout = gpucore.InvalidID
	}
	if p.splatLayout != gpucore.InvalidID {
		a.DestroyBindGroupLayout(p.splatLayout)
		p.splatLayout = gpucore.InvalidID
	}
	if p.module != gpucore.InvalidID {
		a.DestroyShaderModule(p.module)
		p.module = gpucore.InvalidID
	}
}
