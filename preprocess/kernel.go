// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package preprocess

import (
	"github.com/gogpu/splat/gpucore"
	"github.com/gogpu/splat/gpusort"
)

// preprocessKernel is the CPU twin of the preprocess entry point.
func preprocessKernel(wg *gpucore.Workgroup) {
	b := wg.Bindings
	params := decodeParams(b.Words(0, BindingParams))
	gaussians := b.Words(1, BindingGaussians)
	splats := b.Words(1, BindingSplats)
	drawArgs := b.Words(1, BindingDrawArgs)
	infos := b.Words(2, gpusort.PreprocessBindingInfos)
	keys := b.Words(2, gpusort.PreprocessBindingKeys)
	payloads := b.Words(2, gpusort.PreprocessBindingPayloads)
	dispatch := b.Words(2, gpusort.PreprocessBindingDispatch)

	n := uint32(len(gaussians) / GaussianWords)
	base := (wg.ID[1]*wg.Count[0] + wg.ID[0]) * WorkgroupSize
	for lid := uint32(0); lid < WorkgroupSize; lid++ {
		i := base + lid
		if i == 0 {
			drawArgs[0] = QuadVertices
			drawArgs[2] = 0
			drawArgs[3] = 0
		}
		if i >= n {
			break
		}

		s, ok := Project(&params, decodeGaussian(gaussians[i*GaussianWords:]))
		if !ok {
			continue
		}
		s.put(splats[i*SplatWords:])

		store := infos[0]
		infos[0]++
		if store < uint32(len(keys)) {
			keys[store] = SortKey(s.Depth, params.Order)
			payloads[store] = i
		}
		if store%gpusort.BlockKeys == 0 {
			dispatch[0]++
		}
	}
}
