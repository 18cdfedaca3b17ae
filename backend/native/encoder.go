// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/splat/gpucore"
)

// commandBuffer implements gpucore.CommandBuffer.
type commandBuffer struct {
	adapter   *Adapter
	label     string
	raw       hal.CommandBuffer
	submitted bool
}

func (c *commandBuffer) Label() string { return c.label }

// encoder records gpucore commands straight into a hal encoder. IDs are
// resolved at record time; the first failure is kept and reported by
// Finish.
type encoder struct {
	adapter  *Adapter
	raw      hal.CommandEncoder
	label    string
	err      error
	passOpen bool
	finished bool
}

// CreateCommandEncoder begins a new command recording.
func (a *Adapter) CreateCommandEncoder(label string) (gpucore.CommandEncoder, error) {
	raw, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("native: create command encoder %s: %w", label, err)
	}
	if err := raw.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("native: begin encoding %s: %w", label, err)
	}
	return &encoder{adapter: a, raw: raw, label: label}, nil
}

func (e *encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *encoder) check(what string) bool {
	switch {
	case e.finished:
		e.fail(fmt.Errorf("%s: %w", what, gpucore.ErrEncoderFinished))
		return false
	case e.passOpen:
		e.fail(fmt.Errorf("%s: %w", what, gpucore.ErrPassOpen))
		return false
	}
	return true
}

func (e *encoder) BeginComputePass(label string) gpucore.ComputePassEncoder {
	p := &computePass{enc: e, label: label}
	if !e.check("begin compute pass " + label) {
		p.ended = true
		return p
	}
	p.raw = e.raw.BeginComputePass(&hal.ComputePassDescriptor{Label: label})
	e.passOpen = true
	return p
}

func (e *encoder) BeginRenderPass(desc *gpucore.RenderPassDesc) gpucore.RenderPassEncoder {
	p := &renderPass{enc: e}
	if desc == nil {
		e.fail(fmt.Errorf("begin render pass: %w", gpucore.ErrInvalidDescriptor))
		p.ended = true
		return p
	}
	p.label = desc.Label
	if !e.check("begin render pass " + desc.Label) {
		p.ended = true
		return p
	}
	t, ok := lookup(e.adapter, e.adapter.textures, desc.Target)
	if !ok {
		e.fail(fmt.Errorf("begin render pass %s: target %d: %w", desc.Label, desc.Target, gpucore.ErrUnknownResource))
		p.ended = true
		return p
	}

	load := gputypes.LoadOpLoad
	if desc.Clear {
		load = gputypes.LoadOpClear
	}
	p.raw = e.raw.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: desc.Label,
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       t.view,
			LoadOp:     load,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: convertColor(desc.ClearColor),
		}},
	})
	e.passOpen = true
	return p
}

func (e *encoder) CopyBufferToBuffer(src gpucore.BufferID, srcOffset uint64, dst gpucore.BufferID, dstOffset uint64, size uint64) {
	if !e.check("copy buffer") {
		return
	}
	s, sok := lookup(e.adapter, e.adapter.buffers, src)
	d, dok := lookup(e.adapter, e.adapter.buffers, dst)
	if !sok || !dok {
		e.fail(fmt.Errorf("copy buffer %d to %d: %w", src, dst, gpucore.ErrUnknownResource))
		return
	}
	if srcOffset+size > s.size || dstOffset+size > d.size {
		e.fail(fmt.Errorf("copy buffer %d to %d: %d bytes out of range", src, dst, size))
		return
	}
	e.raw.CopyBufferToBuffer(s.raw, d.raw, []hal.BufferCopy{{SrcOffset: srcOffset, DstOffset: dstOffset, Size: size}})
}

func (e *encoder) Finish() (gpucore.CommandBuffer, error) {
	if e.finished {
		return nil, fmt.Errorf("native: finish %s: %w", e.label, gpucore.ErrEncoderFinished)
	}
	if e.passOpen {
		e.fail(fmt.Errorf("finish: %w", gpucore.ErrPassOpen))
	}
	e.finished = true
	if e.err != nil {
		e.raw.DiscardEncoding()
		return nil, fmt.Errorf("native: encoder %s: %w", e.label, e.err)
	}
	raw, err := e.raw.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("native: end encoding %s: %w", e.label, err)
	}
	return &commandBuffer{adapter: e.adapter, label: e.label, raw: raw}, nil
}

func (e *encoder) Discard() {
	if e.finished {
		return
	}
	e.finished = true
	e.raw.DiscardEncoding()
}

// computePass implements gpucore.ComputePassEncoder.
type computePass struct {
	enc   *encoder
	raw   hal.ComputePassEncoder
	label string
	ended bool
}

func (p *computePass) SetPipeline(id gpucore.ComputePipelineID) {
	if p.ended {
		return
	}
	pl, ok := lookup(p.enc.adapter, p.enc.adapter.computePipelines, id)
	if !ok {
		p.enc.fail(fmt.Errorf("%s: pipeline %d: %w", p.label, id, gpucore.ErrUnknownResource))
		return
	}
	p.raw.SetPipeline(pl)
}

func (p *computePass) SetBindGroup(index uint32, id gpucore.BindGroupID) {
	if p.ended {
		return
	}
	g, ok := lookup(p.enc.adapter, p.enc.adapter.bindGroups, id)
	if !ok {
		p.enc.fail(fmt.Errorf("%s: bind group %d: %w", p.label, id, gpucore.ErrUnknownResource))
		return
	}
	p.raw.SetBindGroup(index, g, nil)
}

func (p *computePass) Dispatch(x, y, z uint32) {
	if p.ended {
		return
	}
	p.raw.Dispatch(x, y, z)
}

func (p *computePass) DispatchIndirect(id gpucore.BufferID, offset uint64) {
	if p.ended {
		return
	}
	b, ok := lookup(p.enc.adapter, p.enc.adapter.buffers, id)
	if !ok {
		p.enc.fail(fmt.Errorf("%s: indirect buffer %d: %w", p.label, id, gpucore.ErrUnknownResource))
		return
	}
	if offset%4 != 0 || offset+gpucore.DispatchIndirectArgsSize > b.size {
		p.enc.fail(fmt.Errorf("%s: indirect offset %d invalid for buffer of %d bytes", p.label, offset, b.size))
		return
	}
	p.raw.DispatchIndirect(b.raw, offset)
}

func (p *computePass) End() {
	if p.ended {
		return
	}
	p.ended = true
	p.raw.End()
	p.enc.passOpen = false
}

// renderPass implements gpucore.RenderPassEncoder.
type renderPass struct {
	enc   *encoder
	raw   hal.RenderPassEncoder
	label string
	ended bool
}

func (p *renderPass) SetPipeline(id gpucore.RenderPipelineID) {
	if p.ended {
		return
	}
	pl, ok := lookup(p.enc.adapter, p.enc.adapter.renderPipelines, id)
	if !ok {
		p.enc.fail(fmt.Errorf("%s: pipeline %d: %w", p.label, id, gpucore.ErrUnknownResource))
		return
	}
	p.raw.SetPipeline(pl)
}

func (p *renderPass) SetBindGroup(index uint32, id gpucore.BindGroupID) {
	if p.ended {
		return
	}
	g, ok := lookup(p.enc.adapter, p.enc.adapter.bindGroups, id)
	if !ok {
		p.enc.fail(fmt.Errorf("%s: bind group %d: %w", p.label, id, gpucore.ErrUnknownResource))
		return
	}
	p.raw.SetBindGroup(index, g, nil)
}

func (p *renderPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if p.ended {
		return
	}
	p.raw.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

func (p *renderPass) DrawIndirect(id gpucore.BufferID, offset uint64) {
	if p.ended {
		return
	}
	b, ok := lookup(p.enc.adapter, p.enc.adapter.buffers, id)
	if !ok {
		p.enc.fail(fmt.Errorf("%s: indirect buffer %d: %w", p.label, id, gpucore.ErrUnknownResource))
		return
	}
	if offset%4 != 0 || offset+gpucore.DrawIndirectArgsSize > b.size {
		p.enc.fail(fmt.Errorf("%s: indirect offset %d invalid for buffer of %d bytes", p.label, offset, b.size))
		return
	}
	p.raw.DrawIndirect(b.raw, offset)
}

func (p *renderPass) End() {
	if p.ended {
		return
	}
	p.ended = true
	p.raw.End()
	p.enc.passOpen = false
}
