// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpusort

import (
	"encoding/binary"
	"math"
)

// Sort parameters baked into every specialized shader.
const (
	// RadixBits is the digit width of one pass.
	RadixBits = 8

	// RadixSize is the number of buckets per pass.
	RadixSize = 1 << RadixBits

	// RadixMask extracts one digit.
	RadixMask = RadixSize - 1

	// Passes covers a 32-bit key.
	Passes = 32 / RadixBits

	// WorkgroupSize is the histogram and scatter workgroup size.
	WorkgroupSize = 256

	// RowsPerThread is the number of keys each histogram/scatter invocation handles.
	RowsPerThread = 15

	// BlockKeys is the number of keys one histogram/scatter workgroup covers.
	BlockKeys = WorkgroupSize * RowsPerThread

	// PrefixWorkgroupSize is the prefix-sum workgroup size. Each invocation
	// owns RadixSize/PrefixWorkgroupSize buckets.
	PrefixWorkgroupSize = 128

	// MaxKeys bounds the key count so block-local counts fit the 30-bit
	// partition payload. An adapter lowers the bound further: one
	// workgroup covers BlockKeys keys along a single dispatch dimension,
	// so at most Limits().MaxComputeWorkgroupsPerDimension*BlockKeys keys
	// sort on it. NewResources and Sort return ErrTooManyKeys beyond that.
	MaxKeys = partitionValueMask
)

// Scratch buffer layout, in u32 words.
const (
	// histogramsOffset holds Passes*RadixSize global digit counts, turned
	// into exclusive digit offsets by the prefix kernel.
	histogramsOffset = 0

	// ticketsOffset holds one block ticket counter per pass.
	ticketsOffset = histogramsOffset + Passes*RadixSize

	// partitionsOffset starts the look-back partitions,
	// indexed (pass*blocks + block)*RadixSize + digit.
	partitionsOffset = ticketsOffset + 8
)

// Look-back partition flags, stored in the top two bits of a partition word.
const (
	partitionFlagShift = 30
	partitionValueMask = 1<<partitionFlagShift - 1

	flagNotReady  = 0
	flagAggregate = 1
	flagPrefix    = 2
)

// PaddedSize returns the key buffer length for n keys: the next multiple of
// BlockKeys, with at least one block.
func PaddedSize(n uint32) uint32 {
	if n == 0 {
		return BlockKeys
	}
	return (n + BlockKeys - 1) / BlockKeys * BlockKeys
}

// BlockCount returns the number of BlockKeys blocks covering n keys.
func BlockCount(n uint32) uint32 {
	return (n + BlockKeys - 1) / BlockKeys
}

// scratchWords returns the scratch size in words for a padded key count.
func scratchWords(padded uint32) uint32 {
	return partitionsOffset + Passes*(padded/BlockKeys)*RadixSize
}

// FloatKey maps a float32 to a uint32 whose unsigned order matches the
// float order. Negative values flip every bit; others flip the sign bit.
func FloatKey(f float32) uint32 {
	u := math.Float32bits(f)
	if u&0x80000000 != 0 {
		return ^u
	}
	return u | 0x80000000
}

// KeyFloat inverts FloatKey.
func KeyFloat(k uint32) float32 {
	if k&0x80000000 != 0 {
		return math.Float32frombits(k &^ 0x80000000)
	}
	return math.Float32frombits(^k)
}

// SortUniform mirrors the GPU-side sort parameters. KeysSize is normally
// produced on the GPU by the preprocessing kernel.
type SortUniform struct {
	KeysSize   uint32
	PaddedSize uint32
	Passes     uint32
	EvenPass   uint32
	OddPass    uint32
}

// SortUniformSize is the binary size of SortUniform.
const SortUniformSize = 5 * 4

// Field byte offsets inside SortUniform.
const (
	UniformKeysSizeOffset   = 0
	UniformPaddedSizeOffset = 4
)

// Bytes encodes the uniform in its GPU layout.
func (u SortUniform) Bytes() []byte {
	b := make([]byte, SortUniformSize)
	binary.LittleEndian.PutUint32(b[0:], u.KeysSize)
	binary.LittleEndian.PutUint32(b[4:], u.PaddedSize)
	binary.LittleEndian.PutUint32(b[8:], u.Passes)
	binary.LittleEndian.PutUint32(b[12:], u.EvenPass)
	binary.LittleEndian.PutUint32(b[16:], u.OddPass)
	return b
}

// DecodeSortUniform decodes a SortUniform read back from the GPU.
func DecodeSortUniform(b []byte) SortUniform {
	return SortUniform{
		KeysSize:   binary.LittleEndian.Uint32(b[0:]),
		PaddedSize: binary.LittleEndian.Uint32(b[4:]),
		Passes:     binary.LittleEndian.Uint32(b[8:]),
		EvenPass:   binary.LittleEndian.Uint32(b[12:]),
		OddPass:    binary.LittleEndian.Uint32(b[16:]),
	}
}

// DispatchIndirect holds indirect workgroup counts.
type DispatchIndirect struct {
	X, Y, Z uint32
}

// DispatchIndirectSize is the binary size of DispatchIndirect.
const DispatchIndirectSize = 3 * 4

// Bytes encodes the arguments in their GPU layout.
func (d DispatchIndirect) Bytes() []byte {
	b := make([]byte, DispatchIndirectSize)
	binary.LittleEndian.PutUint32(b[0:], d.X)
	binary.LittleEndian.PutUint32(b[4:], d.Y)
	binary.LittleEndian.PutUint32(b[8:], d.Z)
	return b
}

// DecodeDispatchIndirect decodes arguments read back from the GPU.
func DecodeDispatchIndirect(b []byte) DispatchIndirect {
	return DispatchIndirect{
		X: binary.LittleEndian.Uint32(b[0:]),
		Y: binary.LittleEndian.Uint32(b[4:]),
		Z: binary.LittleEndian.Uint32(b[8:]),
	}
}

func wordsToBytes(words []uint32) []byte {
	b := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return b
}

func bytesToWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words
}
