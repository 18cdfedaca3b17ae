// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command splatdemo renders a synthetic Gaussian splat cloud to a PNG.
package main

import (
	"flag"
	"image"
	"image/png"
	"log"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/splat"
	"github.com/gogpu/splat/backend"
	"github.com/gogpu/splat/backend/native"
	"github.com/gogpu/splat/backend/software"
	"github.com/gogpu/splat/gpucore"
	"github.com/gogpu/splat/preprocess"
)

func main() {
	var (
		n        = flag.Int("n", 100000, "number of Gaussians")
		width    = flag.Int("width", 800, "render width")
		height   = flag.Int("height", 600, "render height")
		device   = flag.String("backend", backend.Software, "device: software or vulkan")
		subgroup = flag.Uint("subgroup", 0, "subgroup width, 0 probes the device")
		order    = flag.String("order", "back", "blend order: back (to front) or front (to back)")
		scale    = flag.Float64("scale", 1, "output scale factor")
		output   = flag.String("output", "frame.png", "output file")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *verbose {
		l := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		splat.SetLogger(l)
		software.SetLogger(l)
		native.SetLogger(l)
	}

	adapter, err := backend.Open(*device)
	if err != nil {
		log.Fatalf("Failed to open %s device: %v (available: %v)", *device, err, backend.Available())
	}
	defer adapter.Close()

	settings := splat.DefaultRenderSettings()
	settings.Background = gpucore.Color{R: 0.02, G: 0.02, B: 0.05, A: 1}
	switch *order {
	case "back":
		settings.Order = splat.BackToFront
	case "front":
		settings.Order = splat.FrontToBack
	default:
		log.Fatalf("Unknown order %q", *order)
	}

	opts := []splat.Option{splat.WithRenderSettings(settings)}
	if *subgroup != 0 {
		opts = append(opts, splat.WithSubgroupSize(uint32(*subgroup)))
	}
	r, err := splat.NewRenderer(adapter, opts...)
	if err != nil {
		log.Fatalf("Failed to create renderer: %v", err)
	}
	defer r.Close()

	pc, err := r.LoadPointCloud(galaxy(*n))
	if err != nil {
		log.Fatalf("Failed to load point cloud: %v", err)
	}
	defer pc.Release()

	target, err := adapter.CreateTexture(&gpucore.TextureDesc{
		Label:  "splatdemo_target",
		Width:  uint32(*width),
		Height: uint32(*height),
		Format: gpucore.TextureFormatRGBA8Unorm,
	})
	if err != nil {
		log.Fatalf("Failed to create target: %v", err)
	}
	defer adapter.DestroyTexture(target)

	cam := splat.NewCamera(mgl32.Vec3{0, 2.5, 4}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0},
		mgl32.DegToRad(55), *width, *height, 0.05, 100)
	if err := r.Render(pc, &cam, target); err != nil {
		log.Fatalf("Failed to render: %v", err)
	}

	img, err := adapter.ReadTexture(target)
	if err != nil {
		log.Fatalf("Failed to read frame: %v", err)
	}
	var out image.Image = img
	if *scale != 1 {
		out = rescale(img, *scale)
	}

	if err := savePNG(*output, out); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}
	st := r.Stats()
	log.Printf("Frame saved to %s (%dx%d, %d splats, subgroup width %d)\n",
		*output, out.Bounds().Dx(), out.Bounds().Dy(), st.BoundPoints, st.SubgroupSize)
}

// galaxy returns n Gaussians on a two-armed spiral with a bright core.
func galaxy(n int) []splat.Gaussian {
	rng := rand.New(rand.NewPCG(42, 1337))
	gs := make([]splat.Gaussian, n)
	for i := range gs {
		arm := float64(i%2) * math.Pi
		t := rng.Float64()
		radius := 0.1 + 1.9*t
		angle := arm + 3.5*t + rng.NormFloat64()*0.25
		x := radius * math.Cos(angle)
		z := radius * math.Sin(angle)
		y := rng.NormFloat64() * 0.05 * (1.2 - t)

		core := 1 - t
		gs[i] = splat.Gaussian{
			Position:   mgl32.Vec3{float32(x), float32(y), float32(z)},
			Opacity:    float32(0.3 + 0.5*rng.Float64()),
			Covariance: preprocess.IsotropicCovariance(float32(0.01 + 0.02*rng.Float64())),
			Color:      preprocess.PackColor(uint8(155+100*core), uint8(120+120*core), uint8(255-100*core), 255),
		}
	}
	return gs
}

func rescale(src *image.RGBA, s float64) *image.RGBA {
	b := src.Bounds()
	w := max(1, int(float64(b.Dx())*s))
	h := max(1, int(float64(b.Dy())*s))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
