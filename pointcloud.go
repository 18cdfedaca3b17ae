// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package splat

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/gogpu/splat/gpucore"
	"github.com/gogpu/splat/gpusort"
	"github.com/gogpu/splat/internal/draw"
	"github.com/gogpu/splat/preprocess"
)

// PointCloud is a set of Gaussians resident on the GPU together with the
// buffers its frames write: projected splats and draw arguments.
type PointCloud struct {
	id      uuid.UUID
	adapter gpucore.GPUAdapter
	owner   *Renderer
	n       uint32

	gaussians gpucore.BufferID
	splats    gpucore.BufferID
	drawArgs  gpucore.BufferID

	cloudGroup gpucore.BindGroupID // preprocess group 1
	splatGroup gpucore.BindGroupID // draw group 0

	once     sync.Once
	released bool
}

// LoadPointCloud uploads gaussians and creates the per-cloud buffers.
func (r *Renderer) LoadPointCloud(gaussians []Gaussian) (*PointCloud, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if len(gaussians) == 0 {
		return nil, ErrEmptyPointCloud
	}
	if uint64(len(gaussians)) > gpusort.MaxKeys {
		return nil, fmt.Errorf("splat: load %d gaussians: %w", len(gaussians), gpusort.ErrTooManyKeys)
	}

	pc := &PointCloud{
		id:      uuid.New(),
		adapter: r.adapter,
		owner:   r,
		n:       uint32(len(gaussians)),
	}
	if err := pc.init(r, gaussians); err != nil {
		slogger().Warn("splat: point cloud load failed, releasing partial buffers", "err", err)
		pc.destroy()
		return nil, err
	}
	slogger().Debug("splat: point cloud loaded", "id", pc.id, "gaussians", pc.n)
	return pc, nil
}

func (pc *PointCloud) init(r *Renderer, gaussians []Gaussian) error {
	a := pc.adapter
	n := uint64(pc.n)
	var err error

	pc.gaussians, err = a.CreateBuffer(&gpucore.BufferDesc{
		Label: "splat_gaussians",
		Size:  n * preprocess.GaussianSize,
		Usage: gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("splat: create gaussian buffer: %w", err)
	}
	if err := a.WriteBuffer(pc.gaussians, 0, preprocess.EncodeGaussians(gaussians)); err != nil {
		return fmt.Errorf("splat: upload gaussians: %w", err)
	}

	pc.splats, err = a.CreateBuffer(&gpucore.BufferDesc{
		Label: "splat_splats",
		Size:  n * preprocess.SplatSize,
		Usage: gpucore.BufferUsageStorage,
	})
	if err != nil {
		return fmt.Errorf("splat: create splat buffer: %w", err)
	}

	pc.drawArgs, err = a.CreateBuffer(&gpucore.BufferDesc{
		Label: "splat_draw_args",
		Size:  gpucore.DrawIndirectArgsSize,
		Usage: gpucore.BufferUsageStorage | gpucore.BufferUsageIndirect |
			gpucore.BufferUsageCopyDst | gpucore.BufferUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("splat: create draw args buffer: %w", err)
	}
	args := drawArgs{VertexCount: preprocess.QuadVertices}
	if err := a.WriteBuffer(pc.drawArgs, 0, args.bytes()); err != nil {
		return fmt.Errorf("splat: init draw args: %w", err)
	}

	pc.cloudGroup, err = a.CreateBindGroup(&gpucore.BindGroupDesc{
		Label:  "splat_cloud_bg",
		Layout: r.pre.CloudLayout(),
		Entries: []gpucore.BindGroupEntry{
			{Binding: preprocess.BindingGaussians, Buffer: pc.gaussians, Size: n * preprocess.GaussianSize},
			{Binding: preprocess.BindingSplats, Buffer: pc.splats, Size: n * preprocess.SplatSize},
			{Binding: preprocess.BindingDrawArgs, Buffer: pc.drawArgs, Size: gpucore.DrawIndirectArgsSize},
		},
	})
	if err != nil {
		return fmt.Errorf("splat: create point cloud bind group: %w", err)
	}

	pc.splatGroup, err = a.CreateBindGroup(&gpucore.BindGroupDesc{
		Label:   "splat_draw_splats_bg",
		Layout:  r.drawer.SplatLayout(),
		Entries: []gpucore.BindGroupEntry{{Binding: draw.BindingSplats, Buffer: pc.splats, Size: n * preprocess.SplatSize}},
	})
	if err != nil {
		return fmt.Errorf("splat: create splat bind group: %w", err)
	}
	return nil
}

// ID identifies the point cloud in logs.
func (pc *PointCloud) ID() uuid.UUID { return pc.id }

// Len returns the number of Gaussians.
func (pc *PointCloud) Len() int { return int(pc.n) }

// DrawArgs returns the indirect draw arguments buffer
// {vertex_count, instance_count, first_vertex, first_instance}.
func (pc *PointCloud) DrawArgs() gpucore.BufferID { return pc.drawArgs }

// Release frees the point cloud's GPU buffers. Safe to call more than once.
// A released point cloud cannot be rendered.
func (pc *PointCloud) Release() {
	pc.once.Do(func() {
		if pc.owner != nil {
			pc.owner.mu.Lock()
			defer pc.owner.mu.Unlock()
		}
		pc.destroy()
		pc.released = true
	})
}

func (pc *PointCloud) destroy() {
	a := pc.adapter
	if pc.splatGroup != gpucore.InvalidID {
		a.DestroyBindGroup(pc.splatGroup)
		pc.splatGroup = gpucore.InvalidID
	}
	if pc.cloudGroup != gpucore.InvalidID {
		a.DestroyBindGroup(pc.cloudGroup)
		pc.cloudGroup = gpucore.InvalidID
	}
	for _, b := range []*gpucore.BufferID{&pc.drawArgs, &pc.splats, &pc.gaussians} {
		if *b != gpucore.InvalidID {
			a.DestroyBuffer(*b)
			*b = gpucore.InvalidID
		}
	}
}
