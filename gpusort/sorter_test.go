// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpusort

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/splat/backend/software"
	"github.com/gogpu/splat/gpucore"
)

func newTestSorter(t *testing.T, opts ...software.Option) (*software.Adapter, *Sorter) {
	t.Helper()
	adapter := software.New(opts...)
	s, err := New(adapter, 32)
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Close()
		adapter.Close()
	})
	return adapter, s
}

// uniqueKeys returns n distinct keys spread over the full 32-bit range.
func uniqueKeys(rng *rand.Rand, n int) []uint32 {
	seen := make(map[uint32]struct{}, n)
	keys := make([]uint32, 0, n)
	for len(keys) < n {
		k := rng.Uint32()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

func iota32(n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = uint32(i)
	}
	return out
}

func TestSortCarriesPayloads(t *testing.T) {
	_, s := newTestSorter(t)
	rng := rand.New(rand.NewPCG(1, 2))

	for _, n := range []int{0, 1, 2, 255, BlockKeys - 1, BlockKeys, BlockKeys + 1, 10000, 20000} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			keys := uniqueKeys(rng, n)
			gotKeys, gotPayloads, err := s.Sort(context.Background(), keys, iota32(n))
			require.NoError(t, err)
			require.Len(t, gotKeys, n)
			require.Len(t, gotPayloads, n)

			want := slices.Clone(keys)
			slices.Sort(want)
			assert.Equal(t, want, gotKeys)
			for i, p := range gotPayloads {
				if keys[p] != gotKeys[i] {
					t.Fatalf("index %d: payload %d points at key %d, want %d", i, p, keys[p], gotKeys[i])
				}
			}
		})
	}
}

func TestSortIsIdempotent(t *testing.T) {
	_, s := newTestSorter(t)
	rng := rand.New(rand.NewPCG(3, 4))
	keys := uniqueKeys(rng, 5000)

	once, payloads, err := s.Sort(context.Background(), keys, iota32(len(keys)))
	require.NoError(t, err)
	twice, payloads2, err := s.Sort(context.Background(), once, payloads)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
	assert.Equal(t, payloads, payloads2)
}

func TestSortIsStable(t *testing.T) {
	_, s := newTestSorter(t)
	rng := rand.New(rand.NewPCG(5, 6))

	const n = 9000
	keys := make([]uint32, n)
	for i := range keys {
		// Few distinct keys, so every bucket spans several blocks.
		keys[i] = FloatKey(float32(rng.IntN(16)) - 8)
	}
	gotKeys, gotPayloads, err := s.Sort(context.Background(), keys, iota32(n))
	require.NoError(t, err)

	assert.True(t, slices.IsSorted(gotKeys))
	for i := 1; i < n; i++ {
		if gotKeys[i] == gotKeys[i-1] && gotPayloads[i] < gotPayloads[i-1] {
			t.Fatalf("equal keys reordered at %d: payload %d after %d", i, gotPayloads[i], gotPayloads[i-1])
		}
	}
}

func TestSortFloatDepths(t *testing.T) {
	_, s := newTestSorter(t)
	rng := rand.New(rand.NewPCG(7, 8))

	depths := make([]float32, 4000)
	keys := make([]uint32, len(depths))
	for i := range depths {
		depths[i] = rng.Float32()*200 - 100
		keys[i] = FloatKey(depths[i])
	}
	_, payloads, err := s.Sort(context.Background(), keys, iota32(len(keys)))
	require.NoError(t, err)
	for i := 1; i < len(payloads); i++ {
		require.LessOrEqual(t, depths[payloads[i-1]], depths[payloads[i]])
	}
}

func TestSortLeavesPaddingUntouched(t *testing.T) {
	adapter, s := newTestSorter(t)
	const n = 100

	res, err := s.NewResources(n)
	require.NoError(t, err)
	defer res.Release()

	keys := make([]uint32, res.PaddedSize())
	for i := range keys {
		keys[i] = 0xFFFFFFFF - uint32(i)
	}
	// Padding holds the smallest keys; a sort that looked past n would
	// pull them to the front.
	for i := n; i < len(keys); i++ {
		keys[i] = uint32(i - n)
	}
	require.NoError(t, adapter.WriteBuffer(res.KeysA, 0, wordsToBytes(keys)))
	require.NoError(t, adapter.WriteBuffer(res.PayloadA, 0, wordsToBytes(iota32(len(keys)))))

	submit(t, adapter, func(enc gpucore.CommandEncoder) {
		require.NoError(t, s.RecordSort(enc, res, n))
	})

	got := readWords(t, adapter, res.KeysA, int(res.PaddedSize()))
	want := slices.Clone(keys[:n])
	slices.Sort(want)
	assert.Equal(t, want, got[:n])
	assert.Equal(t, keys[n:], got[n:], "padding must not be written")
}

func TestSortIndirect(t *testing.T) {
	adapter, s := newTestSorter(t)
	rng := rand.New(rand.NewPCG(9, 10))

	res, err := s.NewResources(12000)
	require.NoError(t, err)
	defer res.Release()

	// Emulate a producer that emitted 7000 keys.
	const k = 7000
	keys := uniqueKeys(rng, k)
	require.NoError(t, adapter.WriteBuffer(res.KeysA, 0, wordsToBytes(keys)))
	require.NoError(t, adapter.WriteBuffer(res.PayloadA, 0, wordsToBytes(iota32(k))))
	require.NoError(t, adapter.WriteBuffer(res.Uniform, UniformKeysSizeOffset, wordsToBytes([]uint32{k})))
	require.NoError(t, adapter.WriteBuffer(res.Dispatch, 0, DispatchIndirect{X: BlockCount(k), Y: 1, Z: 1}.Bytes()))

	before := adapter.Dispatches()
	submit(t, adapter, func(enc gpucore.CommandEncoder) {
		require.NoError(t, s.RecordSortIndirect(enc, res))
	})
	assert.Equal(t, uint64(3+Passes), adapter.Dispatches()-before)

	got := readWords(t, adapter, res.KeysA, k)
	want := slices.Clone(keys)
	slices.Sort(want)
	assert.Equal(t, want, got)

	u := DecodeSortUniform(readBytes(t, adapter, res.Uniform, SortUniformSize))
	assert.Equal(t, uint32(k), u.KeysSize)
	assert.Equal(t, res.PaddedSize(), u.PaddedSize)
}

func TestSortIndirectZeroCount(t *testing.T) {
	adapter, s := newTestSorter(t)

	res, err := s.NewResources(5000)
	require.NoError(t, err)
	defer res.Release()

	keys := iota32(5000)
	slices.Reverse(keys)
	require.NoError(t, adapter.WriteBuffer(res.KeysA, 0, wordsToBytes(keys)))
	require.NoError(t, s.ResetIndirect(res))

	submit(t, adapter, func(enc gpucore.CommandEncoder) {
		require.NoError(t, s.RecordSortIndirect(enc, res))
	})

	assert.Equal(t, DispatchIndirect{X: 0, Y: 1, Z: 1},
		DecodeDispatchIndirect(readBytes(t, adapter, res.Dispatch, DispatchIndirectSize)))
	assert.Equal(t, uint32(0), DecodeSortUniform(readBytes(t, adapter, res.Uniform, SortUniformSize)).KeysSize)
	assert.Equal(t, keys, readWords(t, adapter, res.KeysA, len(keys)), "nothing may move when keys_size is 0")
}

func TestSortIndirectEmptyFrameClearsState(t *testing.T) {
	adapter, s := newTestSorter(t)
	rng := rand.New(rand.NewPCG(11, 12))

	res, err := s.NewResources(6000)
	require.NoError(t, err)
	defer res.Release()

	const k = 4000
	require.NoError(t, adapter.WriteBuffer(res.KeysA, 0, wordsToBytes(uniqueKeys(rng, k))))
	require.NoError(t, adapter.WriteBuffer(res.Uniform, UniformKeysSizeOffset, wordsToBytes([]uint32{k})))
	require.NoError(t, adapter.WriteBuffer(res.Dispatch, 0, DispatchIndirect{X: BlockCount(k), Y: 1, Z: 1}.Bytes()))
	submit(t, adapter, func(enc gpucore.CommandEncoder) {
		require.NoError(t, s.RecordSortIndirect(enc, res))
	})
	u := DecodeSortUniform(readBytes(t, adapter, res.Uniform, SortUniformSize))
	require.NotEqual(t, uint32(0), u.EvenPass)

	// Next frame culls everything.
	require.NoError(t, s.ResetIndirect(res))
	submit(t, adapter, func(enc gpucore.CommandEncoder) {
		require.NoError(t, s.RecordSortIndirect(enc, res))
	})

	u = DecodeSortUniform(readBytes(t, adapter, res.Uniform, SortUniformSize))
	assert.Equal(t, uint32(0), u.EvenPass)
	assert.Equal(t, uint32(1), u.OddPass)
	counters := readWords(t, adapter, res.Scratch, partitionsOffset)
	assert.Equal(t, make([]uint32, partitionsOffset), counters, "histograms and tickets must be cleared")
}

func TestSortRejectsDispatchLimit(t *testing.T) {
	_, s := newTestSorter(t, software.WithMaxWorkgroupsPerDimension(2))
	const n = 3*BlockKeys + 1

	_, err := s.NewResources(n)
	assert.ErrorIs(t, err, ErrTooManyKeys)

	keys := iota32(int(n))
	slices.Reverse(keys)
	_, _, err = s.Sort(context.Background(), keys, iota32(int(n)))
	assert.ErrorIs(t, err, ErrTooManyKeys)

	res, err := s.NewResources(2 * BlockKeys)
	require.NoError(t, err)
	res.Release()
}

func TestResetIndirectAfterClose(t *testing.T) {
	adapter := software.New()
	defer adapter.Close()
	s, err := New(adapter, 32)
	require.NoError(t, err)
	res, err := s.NewResources(100)
	require.NoError(t, err)
	defer res.Release()

	s.Close()
	assert.ErrorIs(t, s.ResetIndirect(res), ErrSorterClosed)
}

func TestSortRejectsMismatchedPayloads(t *testing.T) {
	_, s := newTestSorter(t)
	_, _, err := s.Sort(context.Background(), []uint32{1, 2}, []uint32{1})
	assert.ErrorIs(t, err, ErrKeysPayloadsMismatch)
}

func TestSortHonoursCanceledContext(t *testing.T) {
	adapter, s := newTestSorter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	buffers := adapter.BufferCount()
	_, _, err := s.Sort(ctx, []uint32{2, 1}, []uint32{0, 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, buffers, adapter.BufferCount())
}

func TestSorterClose(t *testing.T) {
	adapter := software.New()
	defer adapter.Close()
	s, err := New(adapter, 16)
	require.NoError(t, err)
	assert.Equal(t, uint32(16), s.SubgroupSize())

	s.Close()
	s.Close()
	_, err = s.NewResources(10)
	assert.ErrorIs(t, err, ErrSorterClosed)
}

func TestNewRejectsInvalidWidth(t *testing.T) {
	adapter := software.New()
	defer adapter.Close()
	_, err := New(adapter, 24)
	assert.ErrorIs(t, err, ErrInvalidSubgroupSize)
}

// === helpers ===

func submit(t *testing.T, adapter gpucore.GPUAdapter, record func(enc gpucore.CommandEncoder)) {
	t.Helper()
	enc, err := adapter.CreateCommandEncoder(t.Name())
	require.NoError(t, err)
	record(enc)
	cmd, err := enc.Finish()
	require.NoError(t, err)
	require.NoError(t, adapter.Submit(cmd))
}

func readBytes(t *testing.T, adapter gpucore.GPUAdapter, id gpucore.BufferID, size int) []byte {
	t.Helper()
	b, err := adapter.ReadBuffer(id, 0, uint64(size))
	require.NoError(t, err)
	return b
}

func readWords(t *testing.T, adapter gpucore.GPUAdapter, id gpucore.BufferID, n int) []uint32 {
	t.Helper()
	return bytesToWords(readBytes(t, adapter, id, n*4))
}
