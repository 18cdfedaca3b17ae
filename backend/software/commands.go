// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"fmt"

	"github.com/gogpu/splat/gpucore"
)

// maxBindGroups matches the WebGPU baseline maxBindGroups limit.
const maxBindGroups = 4

// command is one recorded operation. execute runs with a.mu held.
type command interface {
	execute(a *Adapter) error
}

type commandBuffer struct {
	label     string
	commands  []command
	submitted bool
}

func (c *commandBuffer) Label() string { return c.label }

// encoder implements gpucore.CommandEncoder.
type encoder struct {
	adapter  *Adapter
	label    string
	commands []command
	err      error
	passOpen bool
	finished bool
}

func (e *encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

// check reports whether a top-level command may be recorded.
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
	if e.check("begin compute pass " + label) {
		e.passOpen = true
	} else {
		p.ended = true
	}
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
	e.passOpen = true
	e.commands = append(e.commands, &beginRenderCmd{
		label:  desc.Label,
		target: desc.Target,
		clear:  desc.Clear,
		color:  desc.ClearColor,
	})
	p.target = desc.Target
	return p
}

func (e *encoder) CopyBufferToBuffer(src gpucore.BufferID, srcOffset uint64, dst gpucore.BufferID, dstOffset uint64, size uint64) {
	if !e.check("copy buffer") {
		return
	}
	if srcOffset%4 != 0 || dstOffset%4 != 0 || size%4 != 0 {
		e.fail(fmt.Errorf("copy buffer: offsets %d/%d and size %d must be 4-byte aligned", srcOffset, dstOffset, size))
		return
	}
	e.commands = append(e.commands, &copyCmd{src: src, srcOffset: srcOffset, dst: dst, dstOffset: dstOffset, size: size})
}

func (e *encoder) Finish() (gpucore.CommandBuffer, error) {
	if e.finished {
		return nil, fmt.Errorf("software: finish %q: %w", e.label, gpucore.ErrEncoderFinished)
	}
	e.finished = true
	if e.passOpen {
		e.fail(fmt.Errorf("finish: %w", gpucore.ErrPassOpen))
	}
	if e.err != nil {
		return nil, fmt.Errorf("software: encoder %q: %w", e.label, e.err)
	}
	return &commandBuffer{label: e.label, commands: e.commands}, nil
}

func (e *encoder) Discard() {
	e.finished = true
	e.commands = nil
}

// computePass implements gpucore.ComputePassEncoder.
type computePass struct {
	enc      *encoder
	label    string
	pipeline gpucore.ComputePipelineID
	groups   [maxBindGroups]gpucore.BindGroupID
	ended    bool
}

func (p *computePass) SetPipeline(pipeline gpucore.ComputePipelineID) {
	p.pipeline = pipeline
}

func (p *computePass) SetBindGroup(index uint32, group gpucore.BindGroupID) {
	if index >= maxBindGroups {
		p.enc.fail(fmt.Errorf("compute pass %q: bind group index %d out of range", p.label, index))
		return
	}
	p.groups[index] = group
}

func (p *computePass) record(cmd *dispatchCmd) {
	if p.ended {
		p.enc.fail(fmt.Errorf("compute pass %q: dispatch after end", p.label))
		return
	}
	if p.pipeline == gpucore.InvalidID {
		p.enc.fail(fmt.Errorf("compute pass %q: dispatch without pipeline", p.label))
		return
	}
	cmd.pass = p.label
	cmd.pipeline = p.pipeline
	cmd.groups = p.groups
	p.enc.commands = append(p.enc.commands, cmd)
}

func (p *computePass) Dispatch(x, y, z uint32) {
	p.record(&dispatchCmd{count: [3]uint32{x, y, z}})
}

func (p *computePass) DispatchIndirect(buffer gpucore.BufferID, offset uint64) {
	if offset%4 != 0 {
		p.enc.fail(fmt.Errorf("compute pass %q: indirect offset %d not 4-byte aligned", p.label, offset))
		return
	}
	p.record(&dispatchCmd{indirect: true, argsBuffer: buffer, argsOffset: offset})
}

func (p *computePass) End() {
	if p.ended {
		return
	}
	p.ended = true
	p.enc.passOpen = false
}

// renderPass implements gpucore.RenderPassEncoder.
type renderPass struct {
	enc      *encoder
	label    string
	target   gpucore.TextureID
	pipeline gpucore.RenderPipelineID
	groups   [maxBindGroups]gpucore.BindGroupID
	ended    bool
}

func (p *renderPass) SetPipeline(pipeline gpucore.RenderPipelineID) {
	p.pipeline = pipeline
}

func (p *renderPass) SetBindGroup(index uint32, group gpucore.BindGroupID) {
	if index >= maxBindGroups {
		p.enc.fail(fmt.Errorf("render pass %q: bind group index %d out of range", p.label, index))
		return
	}
	p.groups[index] = group
}

func (p *renderPass) record(cmd *drawCmd) {
	if p.ended {
		p.enc.fail(fmt.Errorf("render pass %q: draw after end", p.label))
		return
	}
	if p.pipeline == gpucore.InvalidID {
		p.enc.fail(fmt.Errorf("render pass %q: draw without pipeline", p.label))
		return
	}
	cmd.target = p.target
	cmd.pipeline = p.pipeline
	cmd.groups = p.groups
	p.enc.commands = append(p.enc.commands, cmd)
}

func (p *renderPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.record(&drawCmd{args: [4]uint32{vertexCount, instanceCount, firstVertex, firstInstance}})
}

func (p *renderPass) DrawIndirect(buffer gpucore.BufferID, offset uint64) {
	if offset%4 != 0 {
		p.enc.fail(fmt.Errorf("render pass %q: indirect offset %d not 4-byte aligned", p.label, offset))
		return
	}
	p.record(&drawCmd{indirect: true, argsBuffer: buffer, argsOffset: offset})
}

func (p *renderPass) End() {
	if p.ended {
		return
	}
	p.ended = true
	p.enc.passOpen = false
}

// === Execution ===

// bindings resolves bind groups to word slices for one command.
type bindings struct {
	views [maxBindGroups]map[uint32][]uint32
}

func (b *bindings) Words(group, binding uint32) []uint32 {
	if group >= maxBindGroups || b.views[group] == nil {
		return nil
	}
	return b.views[group][binding]
}

func (a *Adapter) resolveBindings(groups [maxBindGroups]gpucore.BindGroupID) (*bindings, error) {
	var out bindings
	for i, id := range groups {
		if id == gpucore.InvalidID {
			continue
		}
		bg, ok := a.bindGroups[id]
		if !ok {
			return nil, fmt.Errorf("bind group %d: %w", id, gpucore.ErrUnknownResource)
		}
		views := make(map[uint32][]uint32, len(bg.Entries))
		for _, e := range bg.Entries {
			buf, ok := a.buffers[e.Buffer]
			if !ok {
				return nil, fmt.Errorf("bind group %q binding %d: buffer %d: %w",
					bg.Label, e.Binding, e.Buffer, gpucore.ErrUnknownResource)
			}
			size := e.Size
			if size == 0 {
				size = buf.size - e.Offset
			}
			views[e.Binding] = buf.words[e.Offset/4 : (e.Offset+size+3)/4]
		}
		out.views[i] = views
	}
	return &out, nil
}

// readArgs reads n u32 arguments from an indirect buffer.
func (a *Adapter) readArgs(id gpucore.BufferID, offset uint64, n int) ([]uint32, error) {
	buf, ok := a.buffers[id]
	if !ok {
		return nil, fmt.Errorf("indirect buffer %d: %w", id, gpucore.ErrUnknownResource)
	}
	if buf.usage&gpucore.BufferUsageIndirect == 0 {
		return nil, fmt.Errorf("indirect buffer %q lacks BufferUsageIndirect", buf.label)
	}
	end := offset/4 + uint64(n)
	if end > uint64(len(buf.words)) {
		return nil, fmt.Errorf("indirect buffer %q: arguments at %d exceed size %d", buf.label, offset, buf.size)
	}
	return buf.words[offset/4 : end], nil
}

type dispatchCmd struct {
	pass     string
	pipeline gpucore.ComputePipelineID
	groups   [maxBindGroups]gpucore.BindGroupID

	count      [3]uint32
	indirect   bool
	argsBuffer gpucore.BufferID
	argsOffset uint64
}

func (c *dispatchCmd) execute(a *Adapter) error {
	p, ok := a.computePipelines[c.pipeline]
	if !ok {
		return fmt.Errorf("compute pipeline %d: %w", c.pipeline, gpucore.ErrUnknownResource)
	}
	count := c.count
	if c.indirect {
		args, err := a.readArgs(c.argsBuffer, c.argsOffset, 3)
		if err != nil {
			return fmt.Errorf("%s: %w", p.label, err)
		}
		copy(count[:], args)
	}
	binds, err := a.resolveBindings(c.groups)
	if err != nil {
		return fmt.Errorf("%s: %w", p.label, err)
	}

	a.dispatches++
	limit := a.limits.MaxComputeWorkgroupsPerDimension
	if count[0] > limit || count[1] > limit || count[2] > limit {
		slogger().Warn("software: dispatch exceeds workgroup limit, skipped",
			"pipeline", p.label, "x", count[0], "y", count[1], "z", count[2], "limit", limit)
		return nil
	}

	wg := gpucore.Workgroup{Count: count, SubgroupSize: a.subgroupSize, Bindings: binds}
	for z := uint32(0); z < count[2]; z++ {
		for y := uint32(0); y < count[1]; y++ {
			for x := uint32(0); x < count[0]; x++ {
				wg.ID = [3]uint32{x, y, z}
				p.kernel(&wg)
			}
		}
	}

	slogger().Debug("software: dispatched",
		"pass", c.pass, "pipeline", p.label, "entry", p.entry,
		"indirect", c.indirect, "workgroups", count[0]*count[1]*count[2])
	return nil
}

type copyCmd struct {
	src, dst             gpucore.BufferID
	srcOffset, dstOffset uint64
	size                 uint64
}

func (c *copyCmd) execute(a *Adapter) error {
	src, ok := a.buffers[c.src]
	if !ok {
		return fmt.Errorf("copy source %d: %w", c.src, gpucore.ErrUnknownResource)
	}
	dst, ok := a.buffers[c.dst]
	if !ok {
		return fmt.Errorf("copy destination %d: %w", c.dst, gpucore.ErrUnknownResource)
	}
	if c.srcOffset+c.size > src.size || c.dstOffset+c.size > dst.size {
		return fmt.Errorf("copy %q -> %q: %d bytes out of range", src.label, dst.label, c.size)
	}
	n := c.size / 4
	copy(dst.words[c.dstOffset/4:c.dstOffset/4+n], src.words[c.srcOffset/4:c.srcOffset/4+n])
	return nil
}

type beginRenderCmd struct {
	label  string
	target gpucore.TextureID
	clear  bool
	color  gpucore.Color
}

func (c *beginRenderCmd) execute(a *Adapter) error {
	tex, ok := a.textures[c.target]
	if !ok {
		return fmt.Errorf("render pass %q target %d: %w", c.label, c.target, gpucore.ErrUnknownResource)
	}
	if !c.clear {
		return nil
	}
	pix := tex.target.Pix
	r, g, b, al := float32(c.color.R), float32(c.color.G), float32(c.color.B), float32(c.color.A)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = r, g, b, al
	}
	return nil
}

type drawCmd struct {
	target   gpucore.TextureID
	pipeline gpucore.RenderPipelineID
	groups   [maxBindGroups]gpucore.BindGroupID

	args       [4]uint32
	indirect   bool
	argsBuffer gpucore.BufferID
	argsOffset uint64
}

func (c *drawCmd) execute(a *Adapter) error {
	p, ok := a.renderPipelines[c.pipeline]
	if !ok {
		return fmt.Errorf("render pipeline %d: %w", c.pipeline, gpucore.ErrUnknownResource)
	}
	tex, ok := a.textures[c.target]
	if !ok {
		return fmt.Errorf("render target %d: %w", c.target, gpucore.ErrUnknownResource)
	}
	args := c.args
	if c.indirect {
		words, err := a.readArgs(c.argsBuffer, c.argsOffset, 4)
		if err != nil {
			return fmt.Errorf("%s: %w", p.label, err)
		}
		copy(args[:], words)
	}
	binds, err := a.resolveBindings(c.groups)
	if err != nil {
		return fmt.Errorf("%s: %w", p.label, err)
	}

	p.kernel(&gpucore.DrawCall{
		VertexCount:   args[0],
		InstanceCount: args[1],
		FirstVertex:   args[2],
		FirstInstance: args[3],
		Bindings:      binds,
		Target:        &tex.target,
	})
	a.draws = append(a.draws, DrawRecord{
		Pipeline:      p.label,
		VertexCount:   args[0],
		InstanceCount: args[1],
		FirstVertex:   args[2],
		FirstInstance: args[3],
		Indirect:      c.indirect,
	})

	slogger().Debug("software: drew",
		"pipeline", p.label, "vertices", args[0], "instances", args[1], "indirect", c.indirect)
	return nil
}
