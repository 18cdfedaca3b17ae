// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package preprocess projects 3D Gaussians to screen-space splats and
// produces the input of the depth sort.
//
// The kernel runs one invocation per Gaussian. Visible splats append a
// (depth key, splat index) pair to the sort input and grow the sort's
// keys_size and dispatch counters atomically, so the number of sorted and
// drawn splats never passes through the host.
package preprocess
