// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpusort

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaddedSize(t *testing.T) {
	tests := []struct {
		n    uint32
		want uint32
	}{
		{0, BlockKeys},
		{1, BlockKeys},
		{BlockKeys - 1, BlockKeys},
		{BlockKeys, BlockKeys},
		{BlockKeys + 1, 2 * BlockKeys},
		{10000, 3 * BlockKeys},
	}
	for _, tt := range tests {
		if got := PaddedSize(tt.n); got != tt.want {
			t.Errorf("PaddedSize(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestBlockCount(t *testing.T) {
	assert.Equal(t, uint32(0), BlockCount(0))
	assert.Equal(t, uint32(1), BlockCount(1))
	assert.Equal(t, uint32(1), BlockCount(BlockKeys))
	assert.Equal(t, uint32(2), BlockCount(BlockKeys+1))
}

func TestScratchLayout(t *testing.T) {
	assert.Equal(t, 3840, BlockKeys)
	assert.Equal(t, 1024, ticketsOffset)
	assert.Equal(t, 1032, partitionsOffset)
	assert.Equal(t, uint32(1032+4*256), scratchWords(BlockKeys))
	assert.Equal(t, uint32(1032+4*3*256), scratchWords(PaddedSize(10000)))
}

func TestFloatKeyPreservesOrder(t *testing.T) {
	floats := []float32{
		float32(math.Inf(-1)), -1e30, -2.5, -1, -1e-30,
		float32(math.Copysign(0, -1)), 0, 1e-30, 0.5, 1, 3e38,
		float32(math.Inf(1)),
	}
	keys := make([]uint32, len(floats))
	for i, f := range floats {
		keys[i] = FloatKey(f)
	}
	assert.True(t, slices.IsSorted(keys), "keys %x not ascending", keys)
	for i := 1; i < len(keys); i++ {
		assert.NotEqual(t, keys[i-1], keys[i])
	}
	for _, f := range floats {
		assert.Equal(t, math.Float32bits(f), math.Float32bits(KeyFloat(FloatKey(f))), "round trip of %v", f)
	}
}

func TestSortUniformLayout(t *testing.T) {
	u := SortUniform{KeysSize: 7, PaddedSize: BlockKeys, Passes: Passes, EvenPass: 0, OddPass: 1}
	b := u.Bytes()
	assert.Len(t, b, SortUniformSize)
	assert.Equal(t, []byte{7, 0, 0, 0}, b[UniformKeysSizeOffset:UniformKeysSizeOffset+4])
	assert.Equal(t, []byte{0x00, 0x0f, 0, 0}, b[UniformPaddedSizeOffset:UniformPaddedSizeOffset+4])
	assert.Equal(t, byte(4), b[8])
	assert.Equal(t, byte(1), b[16])
	assert.Equal(t, u, DecodeSortUniform(b))
}

func TestDispatchIndirectLayout(t *testing.T) {
	d := DispatchIndirect{X: 3, Y: 1, Z: 1}
	b := d.Bytes()
	assert.Equal(t, []byte{3, 0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0}, b)
	assert.Equal(t, d, DecodeDispatchIndirect(b))
}
