// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import "errors"

var (
	// ErrNoAdapter is returned by Open when the backend exposes no adapter.
	ErrNoAdapter = errors.New("native: no GPU adapter found")

	// ErrNotHalProvider is returned by NewFromProvider when the provider
	// does not expose hal.Device and hal.Queue.
	ErrNotHalProvider = errors.New("native: provider does not expose HAL device and queue")

	// ErrWaitTimeout is returned when submitted work does not complete in time.
	ErrWaitTimeout = errors.New("native: submission wait timed out")

	// ErrBackendUnavailable is returned by Open for backends not compiled in.
	ErrBackendUnavailable = errors.New("native: backend not available")
)
