package glrender

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/chewxy/math32"
	"github.com/soypat/sdfgraph/gleval"
)

type setImage = interface {
	image.Image
	Set(x, y int, c color.Color)
}

// ImageConverter converts RGBA float textures read back from a backend to images.
type ImageConverter struct {
	conv func(rgba [4]float32) color.Color
	pix  []float32
}

// NewImageConverter returns an [ImageConverter]. A nil conversion clamps channels to
// [0,1] and paints NaN and infinite texels red.
func NewImageConverter(conversion func(rgba [4]float32) color.Color) *ImageConverter {
	if conversion == nil {
		conversion = clampColor
	}
	return &ImageConverter{conv: conversion}
}

func clampColor(c [4]float32) color.Color {
	var out color.RGBA
	dst := [4]*uint8{&out.R, &out.G, &out.B, &out.A}
	for i, v := range c {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return color.RGBA{R: 255, A: 255}
		}
		*dst[i] = uint8(clamp01(v)*255 + 0.5)
	}
	return out
}

// Convert reads tex from backend and writes it into img, which must be at least as
// large as tex. done is called with the result from the backend's loop.
func (ic *ImageConverter) Convert(backend gleval.Backend, tex gleval.Texture, img setImage, done func(error)) {
	if tex == nil {
		done(errors.New("glrender: nil texture"))
		return
	}
	w, h := tex.Size()
	bb := img.Bounds()
	if bb.Dx() < w || bb.Dy() < h {
		done(fmt.Errorf("glrender: image %dx%d smaller than texture %dx%d", bb.Dx(), bb.Dy(), w, h))
		return
	}
	if cap(ic.pix) < 4*w*h {
		ic.pix = make([]float32, 4*w*h)
	}
	pix := ic.pix[:4*w*h]
	backend.ReadTexture(tex, pix, func(err error) {
		if err != nil {
			done(err)
			return
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := 4 * (y*w + x)
				img.Set(bb.Min.X+x, bb.Min.Y+y, ic.conv([4]float32(pix[i:i+4])))
			}
		}
		done(nil)
	})
}
