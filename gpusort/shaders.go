// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpusort

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"

	"github.com/gogpu/splat/gpucore"
)

//go:embed shaders/radix_sort.wgsl
var radixSortTemplateSource string

var radixSortTemplate = template.Must(template.New("radix_sort").Parse(radixSortTemplateSource))

// Kernel entry points.
const (
	entryZeroHistograms     = "zero_histograms"
	entryCalculateHistogram = "calculate_histogram"
	entryPrefixHistogram    = "prefix_histogram"
	entryScatterEven        = "scatter_even"
	entryScatterOdd         = "scatter_odd"
)

// scatterVariant describes one ping-pong direction of the scatter kernel.
type scatterVariant struct {
	Entry      string
	SrcKeys    string
	DstKeys    string
	SrcPayload string
	DstPayload string
	ReadPass   string
	WritePass  string
}

// shaderSettings are the template inputs of the radix sort shader.
type shaderSettings struct {
	SubgroupSize        uint32
	SubgroupCount       uint32
	RadixBits           uint32
	RadixSize           uint32
	RadixMask           uint32
	Passes              uint32
	WorkgroupSize       uint32
	RowsPerThread       uint32
	BlockKeys           uint32
	PrefixWorkgroupSize uint32
	HistogramWords      uint32
	HistogramsOffset    uint32
	TicketsOffset       uint32
	PartitionsOffset    uint32
	Scatters            []scatterVariant
}

// validSubgroupSize reports whether the prefix kernel can be specialized for w.
func validSubgroupSize(w uint32) bool {
	return w != 0 && w&(w-1) == 0 && w <= PrefixWorkgroupSize
}

func newShaderSettings(subgroupSize uint32) (shaderSettings, error) {
	if !validSubgroupSize(subgroupSize) {
		return shaderSettings{}, fmt.Errorf("%w: %d", ErrInvalidSubgroupSize, subgroupSize)
	}
	return shaderSettings{
		SubgroupSize:        subgroupSize,
		SubgroupCount:       PrefixWorkgroupSize / subgroupSize,
		RadixBits:           RadixBits,
		RadixSize:           RadixSize,
		RadixMask:           RadixMask,
		Passes:              Passes,
		WorkgroupSize:       WorkgroupSize,
		RowsPerThread:       RowsPerThread,
		BlockKeys:           BlockKeys,
		PrefixWorkgroupSize: PrefixWorkgroupSize,
		HistogramWords:      Passes * RadixSize,
		HistogramsOffset:    histogramsOffset,
		TicketsOffset:       ticketsOffset,
		PartitionsOffset:    partitionsOffset,
		Scatters: []scatterVariant{
			{
				Entry: entryScatterEven, SrcKeys: "keys_a", DstKeys: "keys_b",
				SrcPayload: "payload_a", DstPayload: "payload_b",
				ReadPass: "even_pass", WritePass: "odd_pass",
			},
			{
				Entry: entryScatterOdd, SrcKeys: "keys_b", DstKeys: "keys_a",
				SrcPayload: "payload_b", DstPayload: "payload_a",
				ReadPass: "odd_pass", WritePass: "even_pass",
			},
		},
	}, nil
}

// source renders the WGSL for these settings.
func (s shaderSettings) source() (string, error) {
	var buf bytes.Buffer
	if err := radixSortTemplate.Execute(&buf, s); err != nil {
		return "", fmt.Errorf("gpusort: render shader: %w", err)
	}
	return buf.String(), nil
}

// ShaderSource returns the radix sort WGSL specialized for a subgroup width.
func ShaderSource(subgroupSize uint32) (string, error) {
	s, err := newShaderSettings(subgroupSize)
	if err != nil {
		return "", err
	}
	return s.source()
}

// kernels returns the Go implementations of the shader entry points.
func (s shaderSettings) kernels() *gpucore.KernelSet {
	return &gpucore.KernelSet{
		Compute: map[string]gpucore.ComputeKernel{
			entryZeroHistograms:     zeroHistogramsKernel,
			entryCalculateHistogram: calculateHistogramKernel,
			entryPrefixHistogram:    s.prefixHistogramKernel,
			entryScatterEven:        scatterKernel(false),
			entryScatterOdd:         scatterKernel(true),
		},
	}
}
