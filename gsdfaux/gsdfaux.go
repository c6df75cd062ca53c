// Package gsdfaux holds helpers to get a scene rendered and saved with little setup:
// settings files, PNG export and progress logging. Applications with their own
// event loop should drive [glrender.Renderer] directly.
package gsdfaux

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"runtime"
	"time"

	"github.com/soypat/sdfgraph"
	"github.com/soypat/sdfgraph/glbuild"
	"github.com/soypat/sdfgraph/gleval"
	"github.com/soypat/sdfgraph/glrender"
)

type RenderConfig struct {
	Width, Height int
	// Settings of the render. Nil uses [glrender.DefaultSettings].
	Settings *glrender.Settings
	// UseGPU renders with the GL backend. Otherwise the CPU reference kernels are used.
	UseGPU   bool
	Timeline glbuild.Timeline
	// Silent disables progress logging.
	Silent bool
	// Logger receives progress. Nil uses [slog.Default].
	Logger    *slog.Logger
	PNGOutput io.Writer
	Export    ExportConfig
	// DistanceOutput receives a PNG of the signed distance field of 2D scenes
	// colored with [ColorConversionInigoQuilez] of DistanceScale. For 3D scenes it receives
	// the hit distance of the last traced bounce as grayscale out to DistanceScale.
	DistanceOutput io.Writer
	DistanceScale  float32
	// ObjectIDOutput receives a PNG of the object id image colored by [ObjectIDTexel].
	ObjectIDOutput io.Writer
}

// Render builds and renders scene and returns the final image. When a program fails
// to compile the returned image is filled with the error color and the compile
// error is returned alongside it.
func Render(scene *sdfgraph.Scene, cfg RenderConfig) (img *image.RGBA, err error) {
	if scene == nil {
		return nil, errors.New("gsdfaux: nil scene")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("gsdfaux: invalid size %dx%d", cfg.Width, cfg.Height)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	settings := glrender.DefaultSettings()
	if cfg.Settings != nil {
		settings = *cfg.Settings
	}
	watch := stopwatch()
	loop := gleval.NewLoop()
	var backend gleval.Backend
	var sw *gleval.Software
	if cfg.UseGPU {
		// GL calls must stay on the thread owning the context.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		gl, terminate, err := gleval.NewGL(loop)
		if err != nil {
			return nil, err
		}
		defer terminate()
		backend = gl
	} else {
		sw = gleval.NewSoftware(loop)
		backend = sw
	}
	var progress func(sample, maxSamples int)
	if !cfg.Silent {
		progress = ProgressLogger(log)
	}
	r, err := glrender.New(glrender.Config{
		Synth:    &glbuild.Synthesizer{Reg: scene.Registry, Timeline: cfg.Timeline},
		Backend:  backend,
		Loop:     loop,
		Settings: settings,
		Progress: progress,
	})
	if err != nil {
		return nil, err
	}
	if sw != nil {
		r.RegisterReference(sw)
	}
	if err = r.Build(scene); err != nil {
		return nil, err
	}
	if !cfg.Silent {
		log.Info("built scene", slog.Int("objects", len(r.Objects())), slog.Duration("elapsed", watch()))
	}

	var final gleval.Texture
	var renderErr error
	finished := false
	r.Render(cfg.Width, cfg.Height, &settings, func(tex gleval.Texture, err error) {
		final, renderErr, finished = tex, err, true
	})
	loop.Drain()
	if !finished {
		return nil, errors.New("gsdfaux: render did not complete")
	} else if final == nil {
		return nil, renderErr
	}

	img, err = readImage(loop, backend, final, cfg.Export)
	if err != nil {
		return nil, err
	}
	if cfg.PNGOutput != nil {
		if err := png.Encode(cfg.PNGOutput, img); err != nil {
			return img, fmt.Errorf("gsdfaux: encoding PNG: %w", err)
		}
	}
	if renderErr == nil {
		scale := cfg.DistanceScale
		if scale <= 0 {
			scale = 1
			if scene.Dim == 3 {
				scale = 20
			}
		}
		distTexel := DepthTexel(scale)
		if scene.Dim == 2 {
			distTexel = DistanceTexel(ColorConversionInigoQuilez(scale))
		}
		aux := []struct {
			w     io.Writer
			image string
			texel func([4]float32) color.Color
		}{
			{w: cfg.DistanceOutput, image: "depth", texel: distTexel},
			{w: cfg.ObjectIDOutput, image: "objectid", texel: ObjectIDTexel},
		}
		for _, a := range aux {
			if a.w == nil {
				continue
			}
			auxImg, err := readImage(loop, backend, r.Texture(a.image), ExportConfig{Texel: a.texel})
			if err != nil {
				return img, err
			}
			if err := png.Encode(a.w, auxImg); err != nil {
				return img, fmt.Errorf("gsdfaux: encoding %s PNG: %w", a.image, err)
			}
		}
	}
	if !cfg.Silent {
		log.Info("rendered", slog.Int("width", cfg.Width), slog.Int("height", cfg.Height), slog.Duration("elapsed", watch()))
	}
	return img, renderErr
}

func readImage(loop *gleval.Loop, backend gleval.Backend, tex gleval.Texture, cfg ExportConfig) (img *image.RGBA, err error) {
	err = errors.New("gsdfaux: texture read did not complete")
	TextureImage(backend, tex, cfg, func(m *image.RGBA, e error) {
		img, err = m, e
	})
	loop.Drain()
	return img, err
}

// ProgressLogger returns a progress callback logging every completed sample.
func ProgressLogger(log *slog.Logger) func(sample, maxSamples int) {
	watch := stopwatch()
	return func(sample, maxSamples int) {
		log.Info("render progress",
			slog.Int("sample", sample),
			slog.Int("max", maxSamples),
			slog.Float64("percent", float64(percentUint64(uint64(sample), uint64(maxSamples)))),
			slog.Duration("elapsed", watch()),
		)
	}
}

func stopwatch() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}
