// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpusort

import "errors"

// Sentinel errors.
var (
	// ErrNoWorkingSubgroupWidth is returned by Probe when no candidate
	// width passes the self-test.
	ErrNoWorkingSubgroupWidth = errors.New("gpusort: no subgroup width passed the self-test")

	// ErrInvalidSubgroupSize is returned for widths that are not a power of
	// two in [1, PrefixWorkgroupSize].
	ErrInvalidSubgroupSize = errors.New("gpusort: invalid subgroup size")

	// ErrKeysPayloadsMismatch is returned by Sort when keys and payloads
	// differ in length.
	ErrKeysPayloadsMismatch = errors.New("gpusort: keys and payloads differ in length")

	// ErrTooManyKeys is returned when a key count exceeds MaxKeys or the
	// adapter's dispatch or storage limits.
	ErrTooManyKeys = errors.New("gpusort: too many keys")

	// ErrSorterClosed is returned by operations on a closed Sorter.
	ErrSorterClosed = errors.New("gpusort: sorter closed")
)

// ErrSelfTestFailed is returned by SelfTest when the sorted output is wrong.
var ErrSelfTestFailed = errors.New("gpusort: self-test produced an incorrect order")
