package gsdfaux

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/sdfgraph"
	"github.com/soypat/sdfgraph/glrender"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInigoQuilezImage(t *testing.T) {
	const Xdim = 256
	img := image.NewRGBA(image.Rect(0, 0, Xdim, Xdim))
	conv := ColorConversionInigoQuilez(Xdim / 4)
	for i := 0; i < Xdim; i++ {
		for j := 0; j < Xdim; j++ {
			// Distance to a circle of radius Xdim/4 at the center.
			dx, dy := float64(i-Xdim/2), float64(j-Xdim/2)
			img.Set(i, j, conv(float32(math.Hypot(dx, dy)-Xdim/4)))
		}
	}
	in := img.RGBAAt(Xdim/2, Xdim/2)
	out := img.RGBAAt(0, 0)
	assert.Greater(t, in.B, in.R, "inside is blue")
	assert.Greater(t, out.R, out.B, "outside is orange")
	edge := img.RGBAAt(Xdim/2+Xdim/4, Xdim/2)
	assert.Greater(t, edge.G, uint8(200), "edge is near white")
	assert.Equal(t, red, conv(float32(math.NaN())))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
}

func TestTexels(t *testing.T) {
	assert.Equal(t, color.Black, ObjectIDTexel([4]float32{-1, -1, 0, 0}))
	assert.Equal(t, color.Gray{Y: 96}, ObjectIDTexel([4]float32{-1, -2, 0, 0}))
	assert.NotEqual(t, ObjectIDTexel([4]float32{0, 0, 0, 0}), ObjectIDTexel([4]float32{1, 1, 0, 0}))
	assert.NotEqual(t, ObjectIDTexel([4]float32{1, 1, 0, 0}), ObjectIDTexel([4]float32{2, 2, 0, 0}))

	depth := DepthTexel(10)
	assert.Equal(t, color.Gray{Y: 255}, depth([4]float32{0}))
	assert.Equal(t, color.Black, depth([4]float32{1e20}))
	near := depth([4]float32{2}).(color.Gray)
	far := depth([4]float32{8}).(color.Gray)
	assert.Greater(t, near.Y, far.Y)
}

func TestDistanceTexel(t *testing.T) {
	conv := DistanceTexel(func(d float32) color.Color {
		if d < 0 {
			return color.Black
		}
		return color.White
	})
	assert.Equal(t, color.Black, conv([4]float32{-1, 5, 5, 5}))
	assert.Equal(t, color.White, conv([4]float32{1, -5, -5, -5}))
}

func TestSettingsFile(t *testing.T) {
	s, err := LoadSettings(strings.NewReader(`
[render]
max_samples = 3
minimal_preview = true
error_color = [0.0, 1.0, 0.0, 1.0]

[timing]
busy_retry = "25ms"
`))
	require.NoError(t, err)
	def := glrender.DefaultSettings()
	assert.Equal(t, 3, s.MaxSamples)
	assert.True(t, s.MinimalPreview)
	assert.Equal(t, [4]float32{0, 1, 0, 1}, s.ErrorColor)
	assert.Equal(t, 25*time.Millisecond, s.BusyRetry)
	assert.Equal(t, def.CompileRetry, s.CompileRetry, "missing keys keep defaults")
	assert.Equal(t, def.MaxReflections, s.MaxReflections)

	var buf bytes.Buffer
	require.NoError(t, WriteSettings(&buf, s))
	assert.Contains(t, buf.String(), "busy_retry")
	assert.Contains(t, buf.String(), "25ms")
	got, err := LoadSettings(&buf)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	_, err = LoadSettings(strings.NewReader("[render]\nmax_sample = 3\n"))
	assert.Error(t, err, "unknown keys must be rejected")
	_, err = LoadSettings(strings.NewReader("[timing]\nbusy_retry = \"soon\"\n"))
	assert.Error(t, err)
	_, err = LoadSettings(strings.NewReader("[render]\nmax_samples = 0\n"))
	assert.Error(t, err)
}

func circleScene(t *testing.T) *sdfgraph.Scene {
	t.Helper()
	reg := &sdfgraph.Registry{}
	bld := sdfgraph.NewBuilder(reg)
	scene := sdfgraph.NewScene(reg, 2)
	circle := bld.NewCircle(1)
	circle.Material = bld.NewMaterial(ms3.Vec{X: 1}, 0).ID
	scene.Add(scene.Item(circle.ID))
	scene.Camera = bld.NewViewCamera2(ms2.Vec{}, 2).ID
	scene.Renderer = bld.NewRenderer2(1).ID
	require.NoError(t, bld.Err())
	return scene
}

func TestRender(t *testing.T) {
	scene := circleScene(t)
	var out, dist, ids bytes.Buffer
	s := glrender.DefaultSettings()
	s.MaxSamples = 2
	img, err := Render(scene, RenderConfig{
		Width:          32,
		Height:         32,
		Settings:       &s,
		Silent:         true,
		PNGOutput:      &out,
		DistanceOutput: &dist,
		ObjectIDOutput: &ids,
	})
	require.NoError(t, err)
	require.NotNil(t, img)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, img.RGBAAt(16, 16))

	decoded, err := png.Decode(&out)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())
	dimg, err := png.Decode(&dist)
	require.NoError(t, err)
	assert.NotEqual(t, dimg.At(16, 16), dimg.At(0, 0), "inside and outside differ in the distance image")
	idimg, err := png.Decode(&ids)
	require.NoError(t, err)
	assert.Equal(t, color.RGBAModel.Convert(ObjectIDTexel([4]float32{0, 0, 0, 0})), color.RGBAModel.Convert(idimg.At(16, 16)))
	assert.Equal(t, color.RGBAModel.Convert(color.Black), color.RGBAModel.Convert(idimg.At(0, 0)))

	_, err = Render(scene, RenderConfig{Silent: true})
	assert.Error(t, err)
	_, err = Render(nil, RenderConfig{Width: 1, Height: 1})
	assert.Error(t, err)
}

func TestRenderCaption(t *testing.T) {
	scene := circleScene(t)
	s := glrender.DefaultSettings()
	s.MaxSamples = 1
	plain, err := Render(scene, RenderConfig{Width: 64, Height: 64, Settings: &s, Silent: true})
	require.NoError(t, err)
	captioned, err := Render(scene, RenderConfig{Width: 64, Height: 64, Settings: &s, Silent: true, Export: ExportConfig{Caption: "circle"}})
	require.NoError(t, err)
	assert.Equal(t, plain.RGBAAt(32, 8), captioned.RGBAAt(32, 8), "caption stays at the bottom")
	assert.NotEqual(t, plain.Pix[len(plain.Pix)-64*4:], captioned.Pix[len(captioned.Pix)-64*4:])
}

func TestWatchSettings(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "render.toml")
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan glrender.Settings, 16)
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- WatchSettings(ctx, filename, func(s glrender.Settings, err error) {
			if err != nil {
				return
			}
			select {
			case got <- s:
			default:
			}
		})
	}()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	timeout := time.After(5 * time.Second)
	var s glrender.Settings
wait:
	for {
		select {
		case s = <-got:
			break wait
		case <-tick.C:
			// The watcher may not be registered yet, keep writing.
			require.NoError(t, os.WriteFile(filename, []byte("[render]\nmax_samples = 7\n"), 0o644))
		case <-timeout:
			t.Fatal("no settings reload observed")
		}
	}
	assert.Equal(t, 7, s.MaxSamples)
	cancel()
	select {
	case err := <-watchErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop on cancel")
	}
}
