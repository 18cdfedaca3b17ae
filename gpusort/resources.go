// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpusort

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/splat/gpucore"
)

// Bindings of Resources.PreprocessGroup.
const (
	PreprocessBindingInfos    = 0 // SortUniform, keys_size grown atomically
	PreprocessBindingKeys     = 1 // keys_a
	PreprocessBindingPayloads = 2 // payload_a
	PreprocessBindingDispatch = 3 // DispatchIndirect, x grown atomically
)

// RenderBindingPayloads is the binding of the sorted payloads in
// Resources.RenderGroup.
const RenderBindingPayloads = 0

// Resources is the buffer bundle for sorting up to NumPoints keys.
// It is sized once and never resized; bind a new Resources when the point
// count changes.
type Resources struct {
	sorter *Sorter

	numPoints  uint32
	paddedSize uint32

	// Ping-pong key and payload buffers, PaddedSize words each.
	// The sorted result is in KeysA and PayloadA.
	KeysA, KeysB       gpucore.BufferID
	PayloadA, PayloadB gpucore.BufferID

	// Scratch holds histograms, pass tickets and look-back partitions.
	Scratch gpucore.BufferID

	// Uniform is the SortUniform. Its keys_size is the sorted count.
	Uniform gpucore.BufferID

	// Dispatch holds the DispatchIndirect arguments.
	Dispatch gpucore.BufferID

	SortGroup       gpucore.BindGroupID
	PreprocessGroup gpucore.BindGroupID
	RenderGroup     gpucore.BindGroupID

	releaseOnce sync.Once
}

// NewResources allocates sort buffers for up to n keys.
func (s *Sorter) NewResources(n uint32) (*Resources, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrSorterClosed
	}
	if n > MaxKeys {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyKeys, n, MaxKeys)
	}

	padded := PaddedSize(n)
	limits := s.adapter.Limits()
	if blocks := padded / BlockKeys; blocks > limits.MaxComputeWorkgroupsPerDimension {
		return nil, fmt.Errorf("%w: %d keys need %d workgroups, dispatch limit is %d",
			ErrTooManyKeys, n, blocks, limits.MaxComputeWorkgroupsPerDimension)
	}
	keyBytes := uint64(padded) * 4
	scratchBytes := uint64(scratchWords(padded)) * 4
	if max(keyBytes, scratchBytes) > limits.MaxStorageBufferBindingSize {
		return nil, fmt.Errorf("%w: %d keys need %d bytes of scratch, storage binding limit is %d",
			ErrTooManyKeys, n, scratchBytes, limits.MaxStorageBufferBindingSize)
	}

	r := &Resources{sorter: s, numPoints: n, paddedSize: padded}
	if err := r.allocate(keyBytes, scratchBytes); err != nil {
		r.destroy()
		return nil, err
	}

	slogger().Debug("gpusort: resources allocated",
		"keys", n, "padded", padded, "blocks", r.Blocks(),
		"scratch_bytes", scratchBytes)
	return r, nil
}

func (r *Resources) allocate(keyBytes, scratchBytes uint64) error {
	a := r.sorter.adapter
	const keyUsage = gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst | gpucore.BufferUsageCopySrc

	buffers := []struct {
		id    *gpucore.BufferID
		label string
		size  uint64
		usage gpucore.BufferUsage
	}{
		{&r.KeysA, "radix_sort_keys_a", keyBytes, keyUsage},
		{&r.KeysB, "radix_sort_keys_b", keyBytes, keyUsage},
		{&r.PayloadA, "radix_sort_payload_a", keyBytes, keyUsage},
		{&r.PayloadB, "radix_sort_payload_b", keyBytes, keyUsage},
		{&r.Scratch, "radix_sort_scratch", scratchBytes, gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst},
		{&r.Uniform, "radix_sort_uniform", SortUniformSize, keyUsage},
		{&r.Dispatch, "radix_sort_dispatch", DispatchIndirectSize, keyUsage | gpucore.BufferUsageIndirect},
	}
	for _, b := range buffers {
		id, err := a.CreateBuffer(&gpucore.BufferDesc{Label: b.label, Size: b.size, Usage: b.usage})
		if err != nil {
			return fmt.Errorf("gpusort: create %s (%d bytes): %w", b.label, b.size, err)
		}
		*b.id = id
	}

	uniform := SortUniform{PaddedSize: r.paddedSize, Passes: Passes, EvenPass: 0, OddPass: 1}
	if err := a.WriteBuffer(r.Uniform, 0, uniform.Bytes()); err != nil {
		return fmt.Errorf("gpusort: init uniform: %w", err)
	}
	if err := a.WriteBuffer(r.Dispatch, 0, DispatchIndirect{Y: 1, Z: 1}.Bytes()); err != nil {
		return fmt.Errorf("gpusort: init dispatch: %w", err)
	}

	var err error
	r.SortGroup, err = a.CreateBindGroup(&gpucore.BindGroupDesc{
		Label:  "radix_sort_bg",
		Layout: r.sorter.sortLayout,
		Entries: []gpucore.BindGroupEntry{
			{Binding: bindingInfos, Buffer: r.Uniform},
			{Binding: bindingScratch, Buffer: r.Scratch},
			{Binding: bindingKeysA, Buffer: r.KeysA},
			{Binding: bindingKeysB, Buffer: r.KeysB},
			{Binding: bindingPayloadA, Buffer: r.PayloadA},
			{Binding: bindingPayloadB, Buffer: r.PayloadB},
		},
	})
	if err != nil {
		return fmt.Errorf("gpusort: create sort bind group: %w", err)
	}

	r.PreprocessGroup, err = a.CreateBindGroup(&gpucore.BindGroupDesc{
		Label:  "radix_sort_preprocess_bg",
		Layout: r.sorter.preprocessLayout,
		Entries: []gpucore.BindGroupEntry{
			{Binding: PreprocessBindingInfos, Buffer: r.Uniform},
			{Binding: PreprocessBindingKeys, Buffer: r.KeysA},
			{Binding: PreprocessBindingPayloads, Buffer: r.PayloadA},
			{Binding: PreprocessBindingDispatch, Buffer: r.Dispatch},
		},
	})
	if err != nil {
		return fmt.Errorf("gpusort: create preprocess bind group: %w", err)
	}

	r.RenderGroup, err = a.CreateBindGroup(&gpucore.BindGroupDesc{
		Label:   "radix_sort_render_bg",
		Layout:  r.sorter.renderLayout,
		Entries: []gpucore.BindGroupEntry{{Binding: RenderBindingPayloads, Buffer: r.PayloadA}},
	})
	if err != nil {
		return fmt.Errorf("gpusort: create render bind group: %w", err)
	}
	return nil
}

// NumPoints returns the key capacity the resources were created for.
func (r *Resources) NumPoints() uint32 { return r.numPoints }

// PaddedSize returns the length of each key and payload buffer in words.
func (r *Resources) PaddedSize() uint32 { return r.paddedSize }

// Blocks returns the number of BlockKeys blocks in the padded buffers.
func (r *Resources) Blocks() uint32 { return r.paddedSize / BlockKeys }

// Release destroys the bind groups and then the buffers. It is safe to
// call more than once.
func (r *Resources) Release() {
	r.releaseOnce.Do(r.destroy)
}

func (r *Resources) destroy() {
	a := r.sorter.adapter
	for _, id := range []*gpucore.BindGroupID{&r.RenderGroup, &r.PreprocessGroup, &r.SortGroup} {
		if *id != gpucore.InvalidID {
			a.DestroyBindGroup(*id)
			*id = gpucore.InvalidID
		}
	}
	for _, id := range []*gpucore.BufferID{&r.Dispatch, &r.Uniform, &r.Scratch, &r.PayloadB, &r.PayloadA, &r.KeysB, &r.KeysA} {
		if *id != gpucore.InvalidID {
			a.DestroyBuffer(*id)
			*id = gpucore.InvalidID
		}
	}
}

var errReleased = errors.New("gpusort: resources released")

// check reports whether r can be used with s.
func (r *Resources) check(s *Sorter) error {
	switch {
	case r == nil:
		return errors.New("gpusort: nil resources")
	case r.sorter != s:
		return errors.New("gpusort: resources belong to another sorter")
	case r.SortGroup == gpucore.InvalidID:
		return errReleased
	}
	return nil
}
