// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpusort

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/gogpu/splat/gpucore"
)

// DefaultCandidates are the subgroup widths Probe tries by default.
var DefaultCandidates = []uint32{1, 8, 16, 32}

// DefaultSelfTestSize is the number of keys sorted by each self-test.
const DefaultSelfTestSize = 8192

// Fixed seed so every probe scrambles the same way.
const selfTestSeed = 0x5eed_5041

type probeConfig struct {
	candidates   []uint32
	selfTestSize uint32
}

// ProbeOption configures Probe.
type ProbeOption func(*probeConfig)

// WithCandidates replaces the candidate widths. Order and duplicates do not
// matter.
func WithCandidates(widths ...uint32) ProbeOption {
	return func(c *probeConfig) {
		c.candidates = slices.Clone(widths)
	}
}

// WithSelfTestSize sets the number of keys sorted per self-test.
func WithSelfTestSize(n uint32) ProbeOption {
	return func(c *probeConfig) {
		if n > 0 {
			c.selfTestSize = n
		}
	}
}

// Probe finds the widest subgroup width for which the sort is correct on
// adapter and returns a Sorter specialized for it.
//
// The search starts at the middle candidate. While candidates pass it
// walks up and keeps the last one that passed; if the middle one fails it
// walks down to the first one that passes. Every kept width has passed a
// full self-test sort.
func Probe(ctx context.Context, adapter gpucore.GPUAdapter, opts ...ProbeOption) (*Sorter, error) {
	cfg := probeConfig{candidates: DefaultCandidates, selfTestSize: DefaultSelfTestSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	candidates := make([]uint32, 0, len(cfg.candidates))
	for _, w := range cfg.candidates {
		if !validSubgroupSize(w) {
			slogger().Warn("gpusort: ignoring invalid subgroup width candidate", "width", w)
			continue
		}
		candidates = append(candidates, w)
	}
	slices.Sort(candidates)
	candidates = slices.Compact(candidates)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no valid candidates", ErrNoWorkingSubgroupWidth)
	}

	try := func(w uint32) (*Sorter, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := New(adapter, w)
		if err != nil {
			return nil, err
		}
		err = SelfTest(ctx, s, cfg.selfTestSize)
		if err == nil {
			slogger().Debug("gpusort: subgroup width passed", "width", w)
			return s, nil
		}
		s.Close()
		if errors.Is(err, ErrSelfTestFailed) {
			slogger().Debug("gpusort: subgroup width failed", "width", w, "err", err)
			return nil, nil
		}
		return nil, err
	}

	var best *Sorter
	start := len(candidates) / 2
	s, err := try(candidates[start])
	if err != nil {
		return nil, err
	}
	if s != nil {
		best = s
		for _, w := range candidates[start+1:] {
			s, err := try(w)
			if err != nil {
				best.Close()
				return nil, err
			}
			if s == nil {
				break
			}
			best.Close()
			best = s
		}
	} else {
		for i := start - 1; i >= 0; i-- {
			s, err := try(candidates[i])
			if err != nil {
				return nil, err
			}
			if s != nil {
				best = s
				break
			}
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%w: tried %v", ErrNoWorkingSubgroupWidth, candidates)
	}
	slogger().Info("gpusort: subgroup width selected", "width", best.SubgroupSize())
	return best, nil
}

// SelfTest sorts n scrambled distinct keys with s and verifies that every
// key and payload lands at its own index.
func SelfTest(ctx context.Context, s *Sorter, n uint32) error {
	keys := make([]uint32, n)
	for i := range keys {
		keys[i] = n - 1 - uint32(i)
	}
	rng := rand.New(rand.NewPCG(selfTestSeed, uint64(n)))
	rng.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })

	sortedKeys, sortedPayloads, err := s.Sort(ctx, keys, slices.Clone(keys))
	if err != nil {
		return err
	}
	for i := range sortedKeys {
		if sortedKeys[i] != uint32(i) || sortedPayloads[i] != uint32(i) {
			return fmt.Errorf("%w: width %d: index %d holds key %d payload %d",
				ErrSelfTestFailed, s.SubgroupSize(), i, sortedKeys[i], sortedPayloads[i])
		}
	}
	return nil
}
