// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package splat

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/gogpu/splat/gpucore"
	"github.com/gogpu/splat/gpusort"
	"github.com/gogpu/splat/internal/draw"
	"github.com/gogpu/splat/preprocess"
)

// Renderer sorts and draws point clouds. It owns one specialized sorter and
// the sort resources of the currently bound point cloud.
//
// A Renderer is safe for concurrent use; frames are serialized.
type Renderer struct {
	mu sync.Mutex

	adapter gpucore.GPUAdapter
	cfg     config

	sorter *gpusort.Sorter
	pre    *preprocess.Pipeline
	drawer *draw.Pipeline

	params      gpucore.BufferID
	paramsGroup gpucore.BindGroupID

	// Bound(N) when res != nil.
	res     *gpusort.Resources
	boundID uuid.UUID

	frames  uint64
	rebinds uint64
	closed  bool
}

// Stats summarizes renderer activity.
type Stats struct {
	// BoundPoints is the N of the bound sort resources, 0 when unbound.
	BoundPoints uint32

	// SubgroupSize is the width the sort kernels are specialized for.
	SubgroupSize uint32

	Frames  uint64
	Rebinds uint64
}

// drawArgs mirrors DrawIndirect arguments.
type drawArgs struct {
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}

func (d drawArgs) bytes() []byte {
	b := make([]byte, gpucore.DrawIndirectArgsSize)
	binary.LittleEndian.PutUint32(b[0:], d.VertexCount)
	binary.LittleEndian.PutUint32(b[4:], d.InstanceCount)
	binary.LittleEndian.PutUint32(b[8:], d.FirstVertex)
	binary.LittleEndian.PutUint32(b[12:], d.FirstInstance)
	return b
}

func decodeDrawArgs(b []byte) drawArgs {
	return drawArgs{
		VertexCount:   binary.LittleEndian.Uint32(b[0:]),
		InstanceCount: binary.LittleEndian.Uint32(b[4:]),
		FirstVertex:   binary.LittleEndian.Uint32(b[8:]),
		FirstInstance: binary.LittleEndian.Uint32(b[12:]),
	}
}

// NewRenderer creates a renderer on adapter. Unless WithSubgroupSize is
// given, it probes the subgroup width first, which blocks on a few
// self-test sorts.
//
// Any failure here is fatal for the renderer: partial allocations are
// released and the error is returned.
func NewRenderer(adapter gpucore.GPUAdapter, opts ...Option) (*Renderer, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Renderer{adapter: adapter, cfg: cfg}
	if err := r.init(); err != nil {
		r.destroy()
		return nil, err
	}
	slogger().Info("splat: renderer created",
		"subgroup_size", r.sorter.SubgroupSize(),
		"format", cfg.format,
		"order", cfg.settings.Order,
	)
	return r, nil
}

func (r *Renderer) init() error {
	var err error
	if r.cfg.subgroupSize != 0 {
		r.sorter, err = gpusort.New(r.adapter, r.cfg.subgroupSize)
	} else {
		r.sorter, err = gpusort.Probe(context.Background(), r.adapter, r.cfg.probeOpts...)
	}
	if err != nil {
		return fmt.Errorf("splat: create sorter: %w", err)
	}

	r.pre, err = preprocess.New(r.adapter, r.sorter.PreprocessLayout())
	if err != nil {
		return err
	}
	r.drawer, err = draw.New(r.adapter, r.sorter.RenderLayout(), r.cfg.format)
	if err != nil {
		return err
	}

	r.params, err = r.adapter.CreateBuffer(&gpucore.BufferDesc{
		Label: "splat_params",
		Size:  preprocess.ParamsSize,
		Usage: gpucore.BufferUsageUniform | gpucore.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("splat: create params buffer: %w", err)
	}
	r.paramsGroup, err = r.adapter.CreateBindGroup(&gpucore.BindGroupDesc{
		Label:   "splat_params_bg",
		Layout:  r.pre.ParamsLayout(),
		Entries: []gpucore.BindGroupEntry{{Binding: preprocess.BindingParams, Buffer: r.params, Size: preprocess.ParamsSize}},
	})
	if err != nil {
		return fmt.Errorf("splat: create params bind group: %w", err)
	}
	return nil
}

func (r *Renderer) destroy() {
	a := r.adapter
	if r.res != nil {
		r.res.Release()
		r.res = nil
	}
	if r.paramsGroup != gpucore.InvalidID {
		a.DestroyBindGroup(r.paramsGroup)
		r.paramsGroup = gpucore.InvalidID
	}
	if r.params != gpucore.InvalidID {
		a.DestroyBuffer(r.params)
		r.params = gpucore.InvalidID
	}
	if r.drawer != nil {
		r.drawer.Close()
		r.drawer = nil
	}
	if r.pre != nil {
		r.pre.Close()
		r.pre = nil
	}
	if r.sorter != nil {
		r.sorter.Close()
		r.sorter = nil
	}
}

// Close releases the renderer's GPU objects. Point clouds stay valid until
// released but can no longer be rendered. Close is idempotent.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.destroy()
	slogger().Debug("splat: renderer closed", "frames", r.frames)
}

// Render records and submits one frame of pc, seen through cam, into
// target. The target must match the renderer's format and cam.Viewport.
//
// Render does not wait for the GPU unless WithFrameValidation is set.
func (r *Renderer) Render(pc *PointCloud, cam *Camera, target gpucore.TextureID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if pc == nil || pc.released {
		return ErrNilPointCloud
	}
	if pc.owner != r {
		return errors.New("splat: point cloud belongs to another renderer")
	}
	if cam == nil {
		return errors.New("splat: nil camera")
	}

	if err := r.bind(pc); err != nil {
		return err
	}
	res := r.res

	if err := r.sorter.ResetIndirect(res); err != nil {
		return err
	}
	params := cam.params(&r.cfg.settings)
	if err := r.adapter.WriteBuffer(r.params, 0, params.Bytes()); err != nil {
		return fmt.Errorf("splat: upload params: %w", err)
	}

	enc, err := r.adapter.CreateCommandEncoder("splat_frame")
	if err != nil {
		return fmt.Errorf("splat: create encoder: %w", err)
	}
	r.pre.Record(enc, r.paramsGroup, pc.cloudGroup, res.PreprocessGroup, pc.n)
	if err := r.sorter.RecordSortIndirect(enc, res); err != nil {
		enc.Discard()
		return err
	}
	enc.CopyBufferToBuffer(res.Uniform, gpusort.UniformKeysSizeOffset,
		pc.drawArgs, gpucore.DrawIndirectInstanceCountOffset, 4)

	pass := enc.BeginRenderPass(&gpucore.RenderPassDesc{
		Label:      "splat_draw",
		Target:     target,
		Clear:      true,
		ClearColor: r.cfg.settings.Background,
	})
	r.drawer.Record(pass, pc.splatGroup, res.RenderGroup, pc.drawArgs)
	pass.End()

	cmd, err := enc.Finish()
	if err != nil {
		return fmt.Errorf("splat: finish frame: %w", err)
	}
	if err := r.adapter.Submit(cmd); err != nil {
		return fmt.Errorf("splat: submit frame: %w", err)
	}
	r.frames++

	if r.cfg.validate {
		return r.validateFrame(pc, res)
	}
	return nil
}

// bind moves the renderer to Bound(pc.Len()). Sort resources hold nothing
// cloud-specific, so a cloud of the same size reuses them.
func (r *Renderer) bind(pc *PointCloud) error {
	if r.res != nil && r.res.NumPoints() == pc.n {
		if r.boundID != pc.id {
			slogger().Debug("splat: point cloud switched", "from", r.boundID, "to", pc.id, "points", pc.n)
			r.boundID = pc.id
		}
		return nil
	}

	res, err := r.sorter.NewResources(pc.n)
	if err != nil {
		return fmt.Errorf("splat: bind point cloud %s: %w", pc.id, err)
	}
	from, prevN := r.boundID, uint32(0)
	if r.res != nil {
		prevN = r.res.NumPoints()
		r.res.Release()
	}
	r.res = res
	r.boundID = pc.id
	r.rebinds++
	slogger().Info("splat: point cloud bound",
		"from", from, "to", pc.id,
		"prev_points", prevN, "points", pc.n,
		"padded", res.PaddedSize(),
	)
	return nil
}

// validateFrame waits for the frame and checks that the visible count
// reached the sort dispatch and the draw.
func (r *Renderer) validateFrame(pc *PointCloud, res *gpusort.Resources) error {
	if err := r.adapter.WaitIdle(); err != nil {
		return fmt.Errorf("splat: wait frame: %w", err)
	}
	ub, err := r.adapter.ReadBuffer(res.Uniform, 0, gpusort.SortUniformSize)
	if err != nil {
		return fmt.Errorf("splat: read sort uniform: %w", err)
	}
	db, err := r.adapter.ReadBuffer(res.Dispatch, 0, gpusort.DispatchIndirectSize)
	if err != nil {
		return fmt.Errorf("splat: read dispatch: %w", err)
	}
	ab, err := r.adapter.ReadBuffer(pc.drawArgs, 0, gpucore.DrawIndirectArgsSize)
	if err != nil {
		return fmt.Errorf("splat: read draw args: %w", err)
	}
	u := gpusort.DecodeSortUniform(ub)
	d := gpusort.DecodeDispatchIndirect(db)
	args := decodeDrawArgs(ab)

	switch {
	case u.KeysSize > pc.n:
		return fmt.Errorf("%w: keys_size %d exceeds %d points", ErrSequencing, u.KeysSize, pc.n)
	case d.X != gpusort.BlockCount(u.KeysSize):
		return fmt.Errorf("%w: dispatch x %d for keys_size %d", ErrSequencing, d.X, u.KeysSize)
	case args.InstanceCount != u.KeysSize:
		return fmt.Errorf("%w: draw instances %d for keys_size %d", ErrSequencing, args.InstanceCount, u.KeysSize)
	case args.VertexCount != preprocess.QuadVertices:
		return fmt.Errorf("%w: draw vertex count %d", ErrSequencing, args.VertexCount)
	}
	return nil
}

// Stats returns a snapshot of renderer activity.
func (r *Renderer) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Stats{Frames: r.frames, Rebinds: r.rebinds}
	if r.sorter != nil {
		s.SubgroupSize = r.sorter.SubgroupSize()
	}
	if r.res != nil {
		s.BoundPoints = r.res.NumPoints()
	}
	return s
}

// SortResources returns the bound sort resources, or nil when unbound.
// The resources are replaced on the next rebind.
func (r *Renderer) SortResources() *gpusort.Resources {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.res
}

// Settings returns the render settings.
func (r *Renderer) Settings() RenderSettings {
	return r.cfg.settings
}

// Adapter returns the device the renderer runs on.
func (r *Renderer) Adapter() gpucore.GPUAdapter { return r.adapter }
