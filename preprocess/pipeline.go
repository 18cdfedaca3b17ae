// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package preprocess

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"

	"github.com/gogpu/splat/gpucore"
	"github.com/gogpu/splat/gpusort"
)

//go:embed shaders/preprocess.wgsl
var preprocessTemplateSource string

var preprocessTemplate = template.Must(template.New("preprocess").Parse(preprocessTemplateSource))

// WorkgroupSize is the number of splats one workgroup projects.
const WorkgroupSize = 256

// QuadVertices is the vertex count of one splat billboard.
const QuadVertices = 4

const entryPoint = "preprocess"

// Bindings of the params group (group 0) and the point cloud group
// (group 1). Group 2 is the sorter's preprocess group.
const (
	BindingParams = 0

	BindingGaussians = 0
	BindingSplats    = 1
	BindingDrawArgs  = 2
)

// ShaderSource returns the preprocessing WGSL.
func ShaderSource() (string, error) {
	var buf bytes.Buffer
	err := preprocessTemplate.Execute(&buf, map[string]any{
		"WorkgroupSize":   WorkgroupSize,
		"BlockKeys":       gpusort.BlockKeys,
		"BindingInfos":    gpusort.PreprocessBindingInfos,
		"BindingKeys":     gpusort.PreprocessBindingKeys,
		"BindingPayloads": gpusort.PreprocessBindingPayloads,
		"BindingDispatch": gpusort.PreprocessBindingDispatch,
	})
	if err != nil {
		return "", fmt.Errorf("preprocess: render shader: %w", err)
	}
	return buf.String(), nil
}

// Pipeline is the compiled preprocessing kernel.
type Pipeline struct {
	adapter gpucore.GPUAdapter

	module         gpucore.ShaderModuleID
	paramsLayout   gpucore.BindGroupLayoutID
	cloudLayout    gpucore.BindGroupLayoutID
	pipelineLayout gpucore.PipelineLayoutID
	pipeline       gpucore.ComputePipelineID
}

// New creates the preprocessing pipeline. sortLayout is the sorter's
// preprocess layout, bound as group 2.
func New(adapter gpucore.GPUAdapter, sortLayout gpucore.BindGroupLayoutID) (*Pipeline, error) {
	src, err := ShaderSource()
	if err != nil {
		return nil, err
	}
	p := &Pipeline{adapter: adapter}
	if err := p.init(src, sortLayout); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) init(src string, sortLayout gpucore.BindGroupLayoutID) error {
	a := p.adapter
	var err error

	p.module, err = a.CreateShaderModule(&gpucore.ShaderModuleDesc{
		Label:     "preprocess",
		WGSL:      src,
		Reference: &gpucore.KernelSet{Compute: map[string]gpucore.ComputeKernel{entryPoint: preprocessKernel}},
	})
	if err != nil {
		return fmt.Errorf("preprocess: create shader module: %w", err)
	}

	p.paramsLayout, err = a.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label: "preprocess_params_bgl",
		Entries: []gpucore.BindGroupLayoutEntry{{
			Binding:        BindingParams,
			Visibility:     gpucore.ShaderStageCompute,
			Type:           gpucore.BindingTypeUniformBuffer,
			MinBindingSize: ParamsSize,
		}},
	})
	if err != nil {
		return fmt.Errorf("preprocess: create params layout: %w", err)
	}

	p.cloudLayout, err = a.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label: "preprocess_cloud_bgl",
		Entries: []gpucore.BindGroupLayoutEntry{
			{Binding: BindingGaussians, Visibility: gpucore.ShaderStageCompute, Type: gpucore.BindingTypeReadOnlyStorageBuffer, MinBindingSize: GaussianSize},
			{Binding: BindingSplats, Visibility: gpucore.ShaderStageCompute, Type: gpucore.BindingTypeStorageBuffer, MinBindingSize: SplatSize},
			{Binding: BindingDrawArgs, Visibility: gpucore.ShaderStageCompute, Type: gpucore.BindingTypeStorageBuffer, MinBindingSize: gpucore.DrawIndirectArgsSize},
		},
	})
	if err != nil {
		return fmt.Errorf("preprocess: create point cloud layout: %w", err)
	}

	p.pipelineLayout, err = a.CreatePipelineLayout(&gpucore.PipelineLayoutDesc{
		Label:            "preprocess_pl",
		BindGroupLayouts: []gpucore.BindGroupLayoutID{p.paramsLayout, p.cloudLayout, sortLayout},
	})
	if err != nil {
		return fmt.Errorf("preprocess: create pipeline layout: %w", err)
	}

	p.pipeline, err = a.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label:        "preprocess",
		Layout:       p.pipelineLayout,
		ShaderModule: p.module,
		EntryPoint:   entryPoint,
	})
	if err != nil {
		return fmt.Errorf("preprocess: create compute pipeline: %w", err)
	}
	return nil
}

// ParamsLayout returns the layout of group 0.
func (p *Pipeline) ParamsLayout() gpucore.BindGroupLayoutID { return p.paramsLayout }

// CloudLayout returns the layout of group 1.
func (p *Pipeline) CloudLayout() gpucore.BindGroupLayoutID { return p.cloudLayout }

// Workgroups returns the dispatch grid for n splats, folding into a
// second dimension when one dimension would exceed maxPerDim.
func Workgroups(n, maxPerDim uint32) (x, y uint32) {
	groups := (n + WorkgroupSize - 1) / WorkgroupSize
	if groups <= maxPerDim {
		return groups, 1
	}
	y = (groups + maxPerDim - 1) / maxPerDim
	x = (groups + y - 1) / y
	return x, y
}

// Record records the preprocessing pass for n splats.
func (p *Pipeline) Record(enc gpucore.CommandEncoder, params, cloud, sort gpucore.BindGroupID, n uint32) {
	x, y := Workgroups(n, p.adapter.Limits().MaxComputeWorkgroupsPerDimension)
	pass := enc.BeginComputePass("preprocess")
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, params)
	pass.SetBindGroup(1, cloud)
	pass.SetBindGroup(2, sort)
	pass.Dispatch(x, y, 1)
	pass.End()
}

// Close releases the pipeline. It is safe to call on a partially
// initialized pipeline.
func (p *Pipeline) Close() {
	a := p.adapter
	if p.pipeline != gpucore.InvalidID {
		a.DestroyComputePipeline(p.pipeline)
		p.pipeline = gpucore.InvalidID
	}
	if p.pipelineLayout != gpucore.InvalidID {
		a.DestroyPipelineLayout(p.pipelineLayout)
		p.pipelineLayout = gpucore.InvalidID
	}
	if p.cloudLayout != gpucore.InvalidID {
		a.DestroyBindGroupLayout(p.cloudLayout)
		p.cloudLayout = gpucore.InvalidID
	}
	if p.paramsLayout != gpucore.InvalidID {
		a.DestroyBindGroupLayout(p.paramsLayout)
		p.paramsLayout = gpucore.InvalidID
	}
	if p.module != gpucore.InvalidID {
		a.DestroyShaderModule(p.module)
		p.module = gpucore.InvalidID
	}
}
