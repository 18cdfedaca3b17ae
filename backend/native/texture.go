// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/splat/gpucore"
)

// copyPitchAlignment is the WebGPU bytesPerRow alignment for texture copies.
const copyPitchAlignment = 256

// ReadTexture waits for submitted work and returns the texture as RGBA.
func (a *Adapter) ReadTexture(id gpucore.TextureID) (*image.RGBA, error) {
	t, ok := lookup(a, a.textures, id)
	if !ok {
		return nil, fmt.Errorf("native: read texture %d: %w", id, gpucore.ErrUnknownResource)
	}

	w, h := t.width, t.height
	bytesPerRow := w * 4
	alignedBytesPerRow := (bytesPerRow + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	size := uint64(alignedBytesPerRow) * uint64(h)

	readback := make([]byte, size)
	err := a.readback(size, "texture_readback", func(enc hal.CommandEncoder, staging hal.Buffer) {
		// The target leaves its render pass in attachment layout; copies
		// need it as a transfer source.
		enc.TransitionTextures([]hal.TextureBarrier{{
			Texture: t.raw,
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsageRenderAttachment,
				NewUsage: gputypes.TextureUsageCopySrc,
			},
		}})
		enc.CopyTextureToBuffer(t.raw, staging, []hal.BufferTextureCopy{{
			BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: alignedBytesPerRow, RowsPerImage: h},
			TextureBase:  hal.ImageCopyTexture{Texture: t.raw, MipLevel: 0},
			Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		}})
		enc.TransitionTextures([]hal.TextureBarrier{{
			Texture: t.raw,
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsageCopySrc,
				NewUsage: gputypes.TextureUsageRenderAttachment,
			},
		}})
	}, readback)
	if err != nil {
		return nil, fmt.Errorf("native: read texture %d: %w", id, err)
	}

	img := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
	unpackRows(img.Pix, readback, int(bytesPerRow), int(alignedBytesPerRow), int(h), t.format == gpucore.TextureFormatBGRA8Unorm)
	return img, nil
}

// unpackRows strips row padding from src into dst and swaps red and blue
// when the source is BGRA.
func unpackRows(dst, src []byte, rowBytes, pitch, rows int, bgra bool) {
	for y := range rows {
		d := dst[y*rowBytes : (y+1)*rowBytes]
		copy(d, src[y*pitch:y*pitch+rowBytes])
		if bgra {
			for i := 0; i < len(d); i += 4 {
				d[i], d[i+2] = d[i+2], d[i]
			}
		}
	}
}
