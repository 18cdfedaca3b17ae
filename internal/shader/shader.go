// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package shader compiles WGSL to SPIR-V with naga for backends that take
// SPIR-V modules.
package shader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/naga"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic = 0x07230203

// ErrBadSPIRV is returned when naga output is not a SPIR-V module.
var ErrBadSPIRV = errors.New("shader: output is not SPIR-V")

// Compile translates WGSL source to SPIR-V words.
func Compile(label, wgsl string) ([]uint32, error) {
	spirv, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("shader: compile %s: %w", label, err)
	}
	if len(spirv) < 4 || len(spirv)%4 != 0 {
		return nil, fmt.Errorf("%w: %s: %d bytes", ErrBadSPIRV, label, len(spirv))
	}
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirv[i*4:])
	}
	if words[0] != SPIRVMagic {
		return nil, fmt.Errorf("%w: %s: magic 0x%08X", ErrBadSPIRV, label, words[0])
	}
	return words, nil
}

// Unsupported reports whether err comes from a WGSL feature naga does not
// translate yet, as opposed to a bug in the source.
func Unsupported(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{"not yet implemented", "not supported", "lowering error", "atomic"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
