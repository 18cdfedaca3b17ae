// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpusort

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/splat/gpucore"
)

func TestResourcesSizes(t *testing.T) {
	adapter, s := newTestSorter(t)

	for _, n := range []uint32{0, 1, 10000} {
		res, err := s.NewResources(n)
		require.NoError(t, err)

		padded := PaddedSize(n)
		assert.Equal(t, n, res.NumPoints())
		assert.Equal(t, padded, res.PaddedSize())
		assert.Equal(t, padded/BlockKeys, res.Blocks())
		for _, id := range []gpucore.BufferID{res.KeysA, res.KeysB, res.PayloadA, res.PayloadB} {
			assert.Equal(t, uint64(padded)*4, adapter.BufferSize(id))
		}
		assert.Equal(t, uint64(scratchWords(padded))*4, adapter.BufferSize(res.Scratch))
		assert.Equal(t, uint64(SortUniformSize), adapter.BufferSize(res.Uniform))
		assert.Equal(t, uint64(DispatchIndirectSize), adapter.BufferSize(res.Dispatch))

		u := DecodeSortUniform(readBytes(t, adapter, res.Uniform, SortUniformSize))
		assert.Equal(t, SortUniform{KeysSize: 0, PaddedSize: padded, Passes: Passes, EvenPass: 0, OddPass: 1}, u)
		assert.Equal(t, DispatchIndirect{X: 0, Y: 1, Z: 1},
			DecodeDispatchIndirect(readBytes(t, adapter, res.Dispatch, DispatchIndirectSize)))

		res.Release()
	}
}

func TestResourcesRelease(t *testing.T) {
	adapter, s := newTestSorter(t)

	before := adapter.BufferCount()
	res, err := s.NewResources(5000)
	require.NoError(t, err)
	assert.Equal(t, before+7, adapter.BufferCount())

	keysA := res.KeysA
	res.Release()
	res.Release()
	assert.Equal(t, before, adapter.BufferCount())
	assert.Zero(t, adapter.BufferSize(keysA))

	enc, err := adapter.CreateCommandEncoder("after release")
	require.NoError(t, err)
	defer enc.Discard()
	assert.Error(t, s.RecordSortIndirect(enc, res))
}

func TestResourcesRejectOversize(t *testing.T) {
	_, s := newTestSorter(t)

	_, err := s.NewResources(MaxKeys + 1)
	assert.ErrorIs(t, err, ErrTooManyKeys)

	// 64 Mi keys exceed the 128 MiB storage binding limit.
	_, err = s.NewResources(64 << 20)
	assert.ErrorIs(t, err, ErrTooManyKeys)
}

func TestResourcesBelongToSorter(t *testing.T) {
	adapter, s := newTestSorter(t)
	other, err := New(adapter, 8)
	require.NoError(t, err)
	defer other.Close()

	res, err := other.NewResources(10)
	require.NoError(t, err)
	defer res.Release()

	enc, err := adapter.CreateCommandEncoder("foreign")
	require.NoError(t, err)
	defer enc.Discard()
	assert.Error(t, s.RecordSort(enc, res, 10))
	assert.Error(t, s.ResetIndirect(res))
}
