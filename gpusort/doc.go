// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gpusort implements a GPU radix sort of (u32 key, u32 payload)
// pairs whose element count may itself be computed on the GPU.
//
// # Algorithm
//
// Keys are sorted in four 8-bit passes by five kernels:
//
//	zero_histograms      clear histograms, tickets, look-back partitions
//	calculate_histogram  digit counts of all four passes in one read
//	prefix_histogram     exclusive digit offsets, one workgroup per pass
//	scatter_even         A -> B   (passes 0 and 2)
//	scatter_odd          B -> A   (passes 1 and 3)
//
// Scatter workgroups take their block index from a per-pass ticket and
// find their per-digit base with a decoupled look-back over the blocks
// before them. Ranking within a block is stable, so the sort is stable and
// the result always lands in the A buffers.
//
// # Dispatch modes
//
// [Sorter.RecordSort] takes the element count from the host. The
// production path, [Sorter.RecordSortIndirect], reads the element count from
// the SortUniform and the workgroup counts from the DispatchIndirect buffer
// of a [Resources], both written earlier in the same submission by a
// producer bound to [Resources.PreprocessGroup].
//
// # Subgroup width
//
// The first step of prefix_histogram scans without barriers and is only
// correct when the shader's subgroup width does not exceed the width the
// hardware runs in lockstep. WebGPU cannot report that width, so [Probe]
// builds one [Sorter] per candidate width, runs [SelfTest] on each and keeps
// the widest one that sorts correctly.
package gpusort
