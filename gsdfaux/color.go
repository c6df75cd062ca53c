package gsdfaux

import (
	"image/color"

	math "github.com/chewxy/math32"
	"github.com/soypat/glgl/math/ms1"
	"github.com/soypat/glgl/math/ms3"
)

var red = color.RGBA{R: 255, A: 255}

// ColorConversionInigoQuilez creates a new color conversion using [Inigo Quilez]'s style.
// A good value for characteristic distance is the view half-height divided by 2. Returns red for NaN values.
//
// [Inigo Quilez]: https://iquilezles.org/articles/distfunctions2d/
func ColorConversionInigoQuilez(characteristicDistance float32) func(float32) color.Color {
	inv := 1. / characteristicDistance
	one := ms3.Vec{X: 1, Y: 1, Z: 1}
	return func(d float32) color.Color {
		if math.IsNaN(d) {
			return red
		}
		d *= inv
		c := ms3.Vec{X: 0.65, Y: 0.85, Z: 1.0}
		if d > 0 {
			c = ms3.Vec{X: 0.9, Y: 0.6, Z: 0.3}
		}
		c = ms3.Scale(1-math.Exp(-6*math.Abs(d)), c)
		c = ms3.Scale(0.8+0.2*math.Cos(150*d), c)
		edge := 1 - ms1.SmoothStep(0, 0.01, math.Abs(d))
		c = ms3.InterpElem(c, one, ms3.Vec{X: edge, Y: edge, Z: edge})
		return vecColor(c)
	}
}

// DistanceTexel adapts a distance to color conversion to the depth image of 2D renders,
// whose first channel holds the signed distance to the nearest shape.
func DistanceTexel(conv func(float32) color.Color) func(rgba [4]float32) color.Color {
	return func(rgba [4]float32) color.Color { return conv(rgba[0]) }
}

// ObjectIDTexel colors the object id image: every object gets its own hue,
// the background is black and the ground gray.
func ObjectIDTexel(rgba [4]float32) color.Color {
	id := int(rgba[1])
	switch {
	case id == -1:
		return color.Black
	case id < 0:
		return color.Gray{Y: 96}
	}
	// Golden ratio hue steps keep neighbouring ids apart.
	h := float32(id) * 0.618034
	h -= math.Floor(h)
	return vecColor(hsv(h, 0.65, 0.95))
}

// DepthTexel returns a grayscale conversion of the first channel of the depth image,
// white at the camera fading to black at far. Misses are black.
func DepthTexel(far float32) func(rgba [4]float32) color.Color {
	return func(rgba [4]float32) color.Color {
		t := rgba[0]
		if math.IsNaN(t) || t >= far {
			return color.Black
		}
		return color.Gray{Y: uint8(255 * (1 - ms1.Clamp(t/far, 0, 1)))}
	}
}

func percentUint64(num, denom uint64) float32 {
	return math.Trunc(10000*float32(num)/float32(denom)) / 100
}

func vecColor(c ms3.Vec) color.RGBA {
	return color.RGBA{
		R: uint8(ms1.Clamp(c.X, 0, 1) * 255),
		G: uint8(ms1.Clamp(c.Y, 0, 1) * 255),
		B: uint8(ms1.Clamp(c.Z, 0, 1) * 255),
		A: 255,
	}
}

// hsv converts hue, saturation and value on [0,1] to RGB.
func hsv(h, s, v float32) ms3.Vec {
	f := func(n float32) float32 {
		k := math.Mod(n+6*h, 6)
		return v - v*s*ms1.Clamp(min(k, 4-k), 0, 1)
	}
	return ms3.Vec{X: f(5), Y: f(3), Z: f(1)}
}
