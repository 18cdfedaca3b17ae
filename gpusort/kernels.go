// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpusort

import "github.com/gogpu/splat/gpucore"

// CPU twins of the radix_sort.wgsl entry points. They read and write the
// same buffers in the same layout, one workgroup per call.

// Sort bind group 0 bindings.
const (
	bindingInfos = iota
	bindingScratch
	bindingKeysA
	bindingKeysB
	bindingPayloadA
	bindingPayloadB
)

// SortUniform word indices.
const (
	infoKeysSize = iota
	infoPaddedSize
	infoPasses
	infoEvenPass
	infoOddPass
)

type sortBuffers struct {
	infos    []uint32
	scratch  []uint32
	keys     [2][]uint32
	payloads [2][]uint32
}

func bindSort(wg *gpucore.Workgroup) sortBuffers {
	b := wg.Bindings
	return sortBuffers{
		infos:    b.Words(0, bindingInfos),
		scratch:  b.Words(0, bindingScratch),
		keys:     [2][]uint32{b.Words(0, bindingKeysA), b.Words(0, bindingKeysB)},
		payloads: [2][]uint32{b.Words(0, bindingPayloadA), b.Words(0, bindingPayloadB)},
	}
}

func (s sortBuffers) blockCount() uint32 {
	return s.infos[infoPaddedSize] / BlockKeys
}

func (s sortBuffers) partition(p, block, digit uint32) *uint32 {
	return &s.scratch[partitionsOffset+(p*s.blockCount()+block)*RadixSize+digit]
}

func zeroHistogramsKernel(wg *gpucore.Workgroup) {
	s := bindSort(wg)
	block := wg.ID[0]
	if block < s.blockCount() {
		for p := uint32(0); p < Passes; p++ {
			for d := uint32(0); d < RadixSize; d++ {
				*s.partition(p, block, d) = 0
			}
		}
	}
	if block == 0 {
		clear(s.scratch[:partitionsOffset])
		s.infos[infoEvenPass] = 0
		s.infos[infoOddPass] = 1
	}
}

func calculateHistogramKernel(wg *gpucore.Workgroup) {
	s := bindSort(wg)
	var local [Passes * RadixSize]uint32

	keysSize := s.infos[infoKeysSize]
	base := wg.ID[0] * BlockKeys
	for i := uint32(0); i < BlockKeys; i++ {
		idx := base + i
		if idx >= keysSize {
			break
		}
		key := s.keys[0][idx]
		for p := uint32(0); p < Passes; p++ {
			local[p*RadixSize+(key>>(p*RadixBits))&RadixMask]++
		}
	}
	for i, c := range local {
		s.scratch[histogramsOffset+uint32(i)] += c
	}
}

// prefixHistogramKernel runs the subgroup scan one hardware subgroup at a
// time. Each hardware subgroup completes every stride before the next one
// starts, so a shader width above the hardware width reads partially
// scanned neighbours and produces wrong offsets, as it would on a GPU.
func (s shaderSettings) prefixHistogramKernel(wg *gpucore.Workgroup) {
	b := bindSort(wg)
	hist := b.scratch[histogramsOffset+wg.ID[0]*RadixSize:][:RadixSize]

	var scan, c0 [PrefixWorkgroupSize]uint32
	for lid := range scan {
		c0[lid] = hist[2*lid]
		scan[lid] = hist[2*lid] + hist[2*lid+1]
	}
	pairs := scan

	width := s.SubgroupSize
	hw := min(max(wg.SubgroupSize, 1), PrefixWorkgroupSize)
	var tmp [PrefixWorkgroupSize]uint32
	for start := uint32(0); start < PrefixWorkgroupSize; start += hw {
		end := min(start+hw, PrefixWorkgroupSize)
		for stride := uint32(1); stride < width; stride <<= 1 {
			for lid := start; lid < end; lid++ {
				tmp[lid] = 0
				if lid%width >= stride {
					tmp[lid] = scan[lid-stride]
				}
			}
			for lid := start; lid < end; lid++ {
				scan[lid] += tmp[lid]
			}
		}
	}

	subgroupBase := make([]uint32, s.SubgroupCount)
	var running uint32
	for g := range subgroupBase {
		subgroupBase[g] = running
		running += scan[uint32(g)*width+width-1]
	}

	for lid := uint32(0); lid < PrefixWorkgroupSize; lid++ {
		exclusive := scan[lid] + subgroupBase[lid/width] - pairs[lid]
		hist[2*lid] = exclusive
		hist[2*lid+1] = exclusive + c0[lid]
	}
}

// scatterKernel returns the even (A to B) or odd (B to A) scatter.
func scatterKernel(odd bool) gpucore.ComputeKernel {
	src, dst, readPass, writePass := 0, 1, infoEvenPass, infoOddPass
	if odd {
		src, dst, readPass, writePass = 1, 0, infoOddPass, infoEvenPass
	}
	return func(wg *gpucore.Workgroup) {
		s := bindSort(wg)
		p := s.infos[readPass]
		if p >= Passes {
			return
		}
		block := s.scratch[ticketsOffset+p]
		s.scratch[ticketsOffset+p]++
		s.infos[writePass] = p + 1
		if block >= s.blockCount() {
			return
		}

		keysSize := s.infos[infoKeysSize]
		shift := p * RadixBits
		base := block * BlockKeys

		// Rows are visited in key index order, so ranks are stable.
		var counts [RadixSize]uint32
		var ranks [BlockKeys]uint32
		for i := uint32(0); i < BlockKeys && base+i < keysSize; i++ {
			d := (s.keys[src][base+i] >> shift) & RadixMask
			ranks[i] = counts[d]
			counts[d]++
		}

		var blockBase [RadixSize]uint32
		for d := uint32(0); d < RadixSize; d++ {
			aggregate := counts[d]
			var exclusive uint32
			if block == 0 {
				*s.partition(p, 0, d) = flagPrefix<<partitionFlagShift | aggregate
			} else {
				*s.partition(p, block, d) = flagAggregate<<partitionFlagShift | aggregate
				for prev := block - 1; ; prev-- {
					v := *s.partition(p, prev, d)
					flag := v >> partitionFlagShift
					if flag == flagNotReady {
						panic("gpusort: look-back reached an unpublished partition")
					}
					exclusive += v & partitionValueMask
					if flag == flagPrefix {
						break
					}
				}
				*s.partition(p, block, d) = flagPrefix<<partitionFlagShift | (exclusive + aggregate)
			}
			blockBase[d] = s.scratch[histogramsOffset+p*RadixSize+d] + exclusive
		}

		for i := uint32(0); i < BlockKeys && base+i < keysSize; i++ {
			key := s.keys[src][base+i]
			at := blockBase[(key>>shift)&RadixMask] + ranks[i]
			if at < keysSize {
				s.keys[dst][at] = key
				s.payloads[dst][at] = s.payloads[src][base+i]
			}
		}
	}
}
