// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpusort

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogpu/splat/gpucore"
)

// =============================================================================
// Stage
// =============================================================================

// Stage identifies one kernel of the radix sort.
type Stage int

const (
	// StageZeroHistograms clears the histograms, tickets and look-back
	// partitions. One workgroup per block.
	StageZeroHistograms Stage = iota

	// StageCalculateHistogram counts the digits of every pass in one read
	// of keys_a. One workgroup per block.
	StageCalculateHistogram

	// StagePrefixHistogram turns digit counts into exclusive digit offsets.
	// One workgroup per pass.
	StagePrefixHistogram

	// StageScatterEven moves keys and payloads from A to B.
	StageScatterEven

	// StageScatterOdd moves keys and payloads from B to A.
	StageScatterOdd

	// StageCount is the number of kernels.
	StageCount
)

// String returns the entry point name of the stage.
func (s Stage) String() string {
	switch s {
	case StageZeroHistograms:
		return entryZeroHistograms
	case StageCalculateHistogram:
		return entryCalculateHistogram
	case StagePrefixHistogram:
		return entryPrefixHistogram
	case StageScatterEven:
		return entryScatterEven
	case StageScatterOdd:
		return entryScatterOdd
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// scatterOrder is the fixed ping-pong sequence. An even number of passes
// leaves the result in the A buffers.
var scatterOrder = [Passes]Stage{StageScatterEven, StageScatterOdd, StageScatterEven, StageScatterOdd}

// =============================================================================
// Sorter
// =============================================================================

// Sorter is a radix sort engine specialized for one subgroup width.
// It holds pipelines only; per-size buffers live in Resources.
// A Sorter is safe for concurrent use, but two sorts must not record into
// the same Resources concurrently.
type Sorter struct {
	mu      sync.RWMutex
	adapter gpucore.GPUAdapter

	subgroupSize uint32

	module           gpucore.ShaderModuleID
	sortLayout       gpucore.BindGroupLayoutID
	preprocessLayout gpucore.BindGroupLayoutID
	renderLayout     gpucore.BindGroupLayoutID
	pipelineLayout   gpucore.PipelineLayoutID
	pipelines        [StageCount]gpucore.ComputePipelineID

	closed bool
}

// New compiles the sort kernels for subgroupSize and creates their
// pipelines on adapter.
func New(adapter gpucore.GPUAdapter, subgroupSize uint32) (*Sorter, error) {
	settings, err := newShaderSettings(subgroupSize)
	if err != nil {
		return nil, err
	}
	src, err := settings.source()
	if err != nil {
		return nil, err
	}

	s := &Sorter{adapter: adapter, subgroupSize: subgroupSize}
	if err := s.init(settings, src); err != nil {
		s.destroy()
		return nil, err
	}

	slogger().Debug("gpusort: sorter created",
		"subgroup_size", subgroupSize,
		"shader_bytes", len(src))
	return s, nil
}

func (s *Sorter) init(settings shaderSettings, src string) error {
	label := fmt.Sprintf("radix_sort_sg%d", s.subgroupSize)

	var err error
	s.module, err = s.adapter.CreateShaderModule(&gpucore.ShaderModuleDesc{
		Label:     label,
		WGSL:      src,
		Reference: settings.kernels(),
	})
	if err != nil {
		return fmt.Errorf("gpusort: create shader module: %w", err)
	}

	s.sortLayout, err = s.adapter.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label:   label + "_bgl",
		Entries: sortLayoutEntries(),
	})
	if err != nil {
		return fmt.Errorf("gpusort: create sort bind group layout: %w", err)
	}

	s.preprocessLayout, err = s.adapter.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label: "radix_sort_preprocess_bgl",
		Entries: []gpucore.BindGroupLayoutEntry{
			storageEntry(PreprocessBindingInfos, gpucore.ShaderStageCompute, SortUniformSize),
			storageEntry(PreprocessBindingKeys, gpucore.ShaderStageCompute, 4),
			storageEntry(PreprocessBindingPayloads, gpucore.ShaderStageCompute, 4),
			storageEntry(PreprocessBindingDispatch, gpucore.ShaderStageCompute, DispatchIndirectSize),
		},
	})
	if err != nil {
		return fmt.Errorf("gpusort: create preprocess bind group layout: %w", err)
	}

	s.renderLayout, err = s.adapter.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label: "radix_sort_render_bgl",
		Entries: []gpucore.BindGroupLayoutEntry{{
			Binding:        RenderBindingPayloads,
			Visibility:     gpucore.ShaderStageVertex,
			Type:           gpucore.BindingTypeReadOnlyStorageBuffer,
			MinBindingSize: 4,
		}},
	})
	if err != nil {
		return fmt.Errorf("gpusort: create render bind group layout: %w", err)
	}

	s.pipelineLayout, err = s.adapter.CreatePipelineLayout(&gpucore.PipelineLayoutDesc{
		Label:            label + "_pl",
		BindGroupLayouts: []gpucore.BindGroupLayoutID{s.sortLayout},
	})
	if err != nil {
		return fmt.Errorf("gpusort: create pipeline layout: %w", err)
	}

	for i := Stage(0); i < StageCount; i++ {
		s.pipelines[i], err = s.adapter.CreateComputePipeline(&gpucore.ComputePipelineDesc{
			Label:        label + "_" + i.String(),
			Layout:       s.pipelineLayout,
			ShaderModule: s.module,
			EntryPoint:   i.String(),
		})
		if err != nil {
			return fmt.Errorf("gpusort: create compute pipeline for %s: %w", i, err)
		}
	}
	return nil
}

func sortLayoutEntries() []gpucore.BindGroupLayoutEntry {
	return []gpucore.BindGroupLayoutEntry{
		storageEntry(bindingInfos, gpucore.ShaderStageCompute, SortUniformSize),
		storageEntry(bindingScratch, gpucore.ShaderStageCompute, 4),
		storageEntry(bindingKeysA, gpucore.ShaderStageCompute, 4),
		storageEntry(bindingKeysB, gpucore.ShaderStageCompute, 4),
		storageEntry(bindingPayloadA, gpucore.ShaderStageCompute, 4),
		storageEntry(bindingPayloadB, gpucore.ShaderStageCompute, 4),
	}
}

func storageEntry(binding uint32, stage gpucore.ShaderStage, minSize uint64) gpucore.BindGroupLayoutEntry {
	return gpucore.BindGroupLayoutEntry{
		Binding:        binding,
		Visibility:     stage,
		Type:           gpucore.BindingTypeStorageBuffer,
		MinBindingSize: minSize,
	}
}

// destroy releases whatever init managed to create.
func (s *Sorter) destroy() {
	a := s.adapter
	for i := range s.pipelines {
		if s.pipelines[i] != gpucore.InvalidID {
			a.DestroyComputePipeline(s.pipelines[i])
			s.pipelines[i] = gpucore.InvalidID
		}
	}
	if s.pipelineLayout != gpucore.InvalidID {
		a.DestroyPipelineLayout(s.pipelineLayout)
		s.pipelineLayout = gpucore.InvalidID
	}
	for _, id := range []*gpucore.BindGroupLayoutID{&s.renderLayout, &s.preprocessLayout, &s.sortLayout} {
		if *id != gpucore.InvalidID {
			a.DestroyBindGroupLayout(*id)
			*id = gpucore.InvalidID
		}
	}
	if s.module != gpucore.InvalidID {
		a.DestroyShaderModule(s.module)
		s.module = gpucore.InvalidID
	}
}

// Close releases the pipelines. Resources created by the sorter must be
// released separately. Close is idempotent.
func (s *Sorter) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.destroy()
}

// SubgroupSize returns the width the kernels were specialized for.
func (s *Sorter) SubgroupSize() uint32 { return s.subgroupSize }

// Adapter returns the adapter the sorter was created on.
func (s *Sorter) Adapter() gpucore.GPUAdapter { return s.adapter }

// PreprocessLayout returns the layout of Resources.PreprocessGroup, for
// pipelines that produce sort input.
func (s *Sorter) PreprocessLayout() gpucore.BindGroupLayoutID { return s.preprocessLayout }

// RenderLayout returns the layout of Resources.RenderGroup, for pipelines
// that consume sorted payloads.
func (s *Sorter) RenderLayout() gpucore.BindGroupLayoutID { return s.renderLayout }

// =============================================================================
// Recording
// =============================================================================

// RecordSort records a sort of the first n keys of res with host-supplied
// workgroup counts. It writes the uniform for n through the queue, so the
// recording must be submitted before res is reset or reused.
func (s *Sorter) RecordSort(enc gpucore.CommandEncoder, res *Resources, n uint32) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSorterClosed
	}
	if err := res.check(s); err != nil {
		return err
	}
	if n > res.numPoints {
		return fmt.Errorf("gpusort: %d keys exceed resources sized for %d", n, res.numPoints)
	}

	uniform := SortUniform{KeysSize: n, PaddedSize: res.paddedSize, Passes: Passes, EvenPass: 0, OddPass: 1}
	if err := s.adapter.WriteBuffer(res.Uniform, 0, uniform.Bytes()); err != nil {
		return fmt.Errorf("gpusort: write uniform: %w", err)
	}

	blocks := BlockCount(n)
	s.dispatch(enc, res, StageZeroHistograms, res.Blocks())
	s.dispatch(enc, res, StageCalculateHistogram, blocks)
	s.dispatch(enc, res, StagePrefixHistogram, Passes)
	for _, stage := range scatterOrder {
		s.dispatch(enc, res, stage, blocks)
	}

	slogger().Debug("gpusort: recorded direct sort",
		"keys", n, "padded", res.paddedSize, "blocks", blocks)
	return nil
}

// RecordSortIndirect records a sort whose key count and workgroup counts
// are read from res.Uniform and res.Dispatch when the commands execute.
// Both must have been filled by earlier commands in the same submission,
// normally a preprocessing pass bound to res.PreprocessGroup after
// ResetIndirect. Zeroing is dispatched over every block of res, so the
// histograms and pass counters are cleared even when no key survives.
func (s *Sorter) RecordSortIndirect(enc gpucore.CommandEncoder, res *Resources) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSorterClosed
	}
	if err := res.check(s); err != nil {
		return err
	}

	s.dispatch(enc, res, StageZeroHistograms, res.Blocks())
	s.dispatchIndirect(enc, res, StageCalculateHistogram)
	s.dispatch(enc, res, StagePrefixHistogram, Passes)
	for _, stage := range scatterOrder {
		s.dispatchIndirect(enc, res, stage)
	}
	return nil
}

func (s *Sorter) dispatch(enc gpucore.CommandEncoder, res *Resources, stage Stage, x uint32) {
	pass := enc.BeginComputePass("radix_sort_" + stage.String())
	pass.SetPipeline(s.pipelines[stage])
	pass.SetBindGroup(0, res.SortGroup)
	pass.Dispatch(x, 1, 1)
	pass.End()
}

func (s *Sorter) dispatchIndirect(enc gpucore.CommandEncoder, res *Resources, stage Stage) {
	pass := enc.BeginComputePass("radix_sort_" + stage.String())
	pass.SetPipeline(s.pipelines[stage])
	pass.SetBindGroup(0, res.SortGroup)
	pass.DispatchIndirect(res.Dispatch, 0)
	pass.End()
}

// ResetIndirect zeroes keys_size and sets the dispatch arguments to
// {0, 1, 1} through the queue. Call it before each frame's preprocessing
// so a frame that culls everything sorts and draws nothing.
func (s *Sorter) ResetIndirect(res *Resources) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSorterClosed
	}
	if err := res.check(s); err != nil {
		return err
	}
	if err := s.adapter.WriteBuffer(res.Uniform, UniformKeysSizeOffset, make([]byte, 4)); err != nil {
		return fmt.Errorf("gpusort: reset keys_size: %w", err)
	}
	if err := s.adapter.WriteBuffer(res.Dispatch, 0, DispatchIndirect{X: 0, Y: 1, Z: 1}.Bytes()); err != nil {
		return fmt.Errorf("gpusort: reset dispatch: %w", err)
	}
	return nil
}

// Sort sorts keys ascending on the GPU, moving payloads with their keys,
// and returns both sorted slices. It blocks until the readback completes.
// Equal keys keep their input order.
func (s *Sorter) Sort(ctx context.Context, keys, payloads []uint32) ([]uint32, []uint32, error) {
	if len(keys) != len(payloads) {
		return nil, nil, fmt.Errorf("%w: %d keys, %d payloads", ErrKeysPayloadsMismatch, len(keys), len(payloads))
	}
	if uint64(len(keys)) > MaxKeys {
		return nil, nil, fmt.Errorf("%w: %d", ErrTooManyKeys, len(keys))
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	n := uint32(len(keys))
	res, err := s.NewResources(n)
	if err != nil {
		return nil, nil, err
	}
	defer res.Release()

	if n > 0 {
		if err := s.adapter.WriteBuffer(res.KeysA, 0, wordsToBytes(keys)); err != nil {
			return nil, nil, fmt.Errorf("gpusort: upload keys: %w", err)
		}
		if err := s.adapter.WriteBuffer(res.PayloadA, 0, wordsToBytes(payloads)); err != nil {
			return nil, nil, fmt.Errorf("gpusort: upload payloads: %w", err)
		}
	}

	enc, err := s.adapter.CreateCommandEncoder("radix_sort")
	if err != nil {
		return nil, nil, fmt.Errorf("gpusort: create command encoder: %w", err)
	}
	if err := s.RecordSort(enc, res, n); err != nil {
		enc.Discard()
		return nil, nil, err
	}
	cmd, err := enc.Finish()
	if err != nil {
		return nil, nil, fmt.Errorf("gpusort: finish: %w", err)
	}
	if err := s.adapter.Submit(cmd); err != nil {
		return nil, nil, fmt.Errorf("gpusort: submit: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if n == 0 {
		if err := s.adapter.WaitIdle(); err != nil {
			return nil, nil, fmt.Errorf("gpusort: wait: %w", err)
		}
		return []uint32{}, []uint32{}, nil
	}

	size := uint64(n) * 4
	kb, err := s.adapter.ReadBuffer(res.KeysA, 0, size)
	if err != nil {
		return nil, nil, fmt.Errorf("gpusort: read keys: %w", err)
	}
	pb, err := s.adapter.ReadBuffer(res.PayloadA, 0, size)
	if err != nil {
		return nil, nil, fmt.Errorf("gpusort: read payloads: %w", err)
	}
	return bytesToWords(kb), bytesToWords(pb), nil
}
