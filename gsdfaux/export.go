package gsdfaux

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"
	"sync"

	"github.com/golang/freetype/truetype"
	"github.com/soypat/sdfgraph/gleval"
	"github.com/soypat/sdfgraph/glrender"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

// ExportConfig controls the conversion of a texture to a PNG.
type ExportConfig struct {
	// Caption, when not empty, is drawn over a dark band at the bottom of the image.
	Caption string
	// CaptionSize is the font size in points. Zero picks a size from the image height.
	CaptionSize float64
	// Texel converts texels to colors. Nil clamps RGBA to [0,1].
	Texel func(rgba [4]float32) color.Color
}

// TextureImage reads tex from backend and calls done with it as an image.
func TextureImage(backend gleval.Backend, tex gleval.Texture, cfg ExportConfig, done func(*image.RGBA, error)) {
	if tex == nil {
		done(nil, fmt.Errorf("gsdfaux: nil texture"))
		return
	}
	w, h := tex.Size()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	ic := glrender.NewImageConverter(cfg.Texel)
	ic.Convert(backend, tex, img, func(err error) {
		if err != nil {
			done(nil, err)
			return
		}
		if cfg.Caption != "" {
			if err := drawCaption(img, cfg.Caption, cfg.CaptionSize); err != nil {
				done(nil, err)
				return
			}
		}
		done(img, nil)
	})
}

// WritePNG encodes tex as a PNG to w.
func WritePNG(w io.Writer, backend gleval.Backend, tex gleval.Texture, cfg ExportConfig, done func(error)) {
	TextureImage(backend, tex, cfg, func(img *image.RGBA, err error) {
		if err != nil {
			done(err)
			return
		}
		done(png.Encode(w, img))
	})
}

// SavePNG writes tex to the PNG file called filename.
func SavePNG(filename string, backend gleval.Backend, tex gleval.Texture, cfg ExportConfig, done func(error)) {
	fp, err := os.Create(filename)
	if err != nil {
		done(err)
		return
	}
	WritePNG(fp, backend, tex, cfg, func(err error) {
		if err == nil {
			err = fp.Sync()
		}
		if cerr := fp.Close(); err == nil {
			err = cerr
		}
		done(err)
	})
}

var captionFont = sync.OnceValues(func() (*truetype.Font, error) {
	return truetype.Parse(goregular.TTF)
})

func drawCaption(img *image.RGBA, caption string, size float64) error {
	ttf, err := captionFont()
	if err != nil {
		return fmt.Errorf("gsdfaux: parsing caption font: %w", err)
	}
	bb := img.Bounds()
	if size <= 0 {
		size = max(6, float64(bb.Dy())/24)
	}
	face := truetype.NewFace(ttf, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingFull})
	defer face.Close()
	m := face.Metrics()
	band := (m.Ascent + m.Descent).Ceil() + 4
	bandRect := image.Rect(bb.Min.X, bb.Max.Y-band, bb.Max.X, bb.Max.Y)
	draw.Draw(img, bandRect, image.NewUniform(color.RGBA{A: 160}), image.Point{}, draw.Over)
	d := font.Drawer{
		Dst:  img,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(bb.Min.X+4, bb.Max.Y-2-m.Descent.Ceil()),
	}
	d.DrawString(caption)
	return nil
}
