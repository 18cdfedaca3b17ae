// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

import "errors"

var (
	// ErrUnknownResource is returned when an ID does not name a live resource.
	ErrUnknownResource = errors.New("gpucore: unknown resource")

	// ErrEncoderFinished is returned when recording into a finished encoder.
	ErrEncoderFinished = errors.New("gpucore: encoder already finished")

	// ErrPassOpen is returned when a command is recorded while a pass is open.
	ErrPassOpen = errors.New("gpucore: pass still open")

	// ErrMissingKernel is returned by CPU backends when a shader module has
	// no reference kernel for a requested entry point.
	ErrMissingKernel = errors.New("gpucore: missing reference kernel")

	// ErrInvalidDescriptor is returned for nil or malformed descriptors.
	ErrInvalidDescriptor = errors.New("gpucore: invalid descriptor")
)
