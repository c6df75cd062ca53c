package glrender_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/sdfgraph"
	"github.com/soypat/sdfgraph/glbuild"
	"github.com/soypat/sdfgraph/gleval"
	"github.com/soypat/sdfgraph/glexpr"
	"github.com/soypat/sdfgraph/glrender"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	loop    *gleval.Loop
	sw      *gleval.Software
	backend *releaseRecorder
	cache   *glbuild.Cache
	r       *glrender.Renderer
	scene   *sdfgraph.Scene
	sphere  *sdfgraph.Component
}

// releaseRecorder is a software backend logging released resources.
type releaseRecorder struct {
	*gleval.Software
	released []any
}

func (b *releaseRecorder) Release(resource any) {
	b.released = append(b.released, resource)
	b.Software.Release(resource)
}

func (b *releaseRecorder) wasReleased(resource any) bool {
	return slices.ContainsFunc(b.released, func(r any) bool { return r == resource })
}

func newRenderer(t *testing.T, scene *sdfgraph.Scene) *fixture {
	t.Helper()
	loop := gleval.NewLoop()
	sw := gleval.NewSoftware(loop)
	backend := &releaseRecorder{Software: sw}
	cache := &glbuild.Cache{}
	r, err := glrender.New(glrender.Config{
		Synth:   &glbuild.Synthesizer{Reg: scene.Registry},
		Backend: backend,
		Loop:    loop,
		Cache:   cache,
	})
	require.NoError(t, err)
	r.RegisterReference(sw)
	require.NoError(t, r.Build(scene))
	return &fixture{loop: loop, sw: sw, backend: backend, cache: cache, r: r, scene: scene}
}

// sphereScene returns a reflective unit sphere at the origin resting over a ground
// plane, seen from a pinhole camera under a sky, with a colorize post pass.
func sphereScene(t *testing.T) *fixture {
	t.Helper()
	reg := &sdfgraph.Registry{}
	bld := sdfgraph.NewBuilder(reg)
	scene := sdfgraph.NewScene(reg, 3)
	sphere := bld.NewSphere(1)
	sphere.Material = bld.NewMaterial(ms3.Vec{X: 0.9, Y: 0.2, Z: 0.2}, 0.5).ID
	scene.Add(scene.Item(sphere.ID))
	scene.Ground = bld.NewPlane(ms3.Vec{Y: 1}, 1).ID
	scene.Camera = bld.NewPinholeCamera(ms3.Vec{Y: 1, Z: -5}, ms3.Vec{}, 1.5).ID
	scene.Background = bld.NewSky(ms3.Vec{X: 0.8, Y: 0.8, Z: 0.9}, ms3.Vec{X: 0.2, Y: 0.4, Z: 0.9}).ID
	scene.Renderer = bld.NewRenderer3(1).ID
	scene.Post = append(scene.Post, bld.NewColorize(2.2, 0.1).ID)
	require.NoError(t, bld.Err())
	f := newRenderer(t, scene)
	f.sphere = sphere
	return f
}

// render renders synchronously and returns a copy of the final image.
func (f *fixture) render(t *testing.T, w, h int, settings glrender.Settings) ([]float32, error) {
	t.Helper()
	calls := 0
	var final gleval.Texture
	var err error
	f.r.Render(w, h, &settings, func(tex gleval.Texture, e error) {
		calls++
		final, err = tex, e
	})
	f.loop.Drain()
	require.Equal(t, 1, calls, "done must be called once")
	assert.False(t, f.r.Busy())
	if final == nil {
		return nil, err
	}
	return slices.Clone(final.(*gleval.SoftTexture).Pix), err
}

func settings(samples, reflections int) glrender.Settings {
	s := glrender.DefaultSettings()
	s.MaxSamples = samples
	s.MaxReflections = reflections
	s.Jitter = false
	return s
}

func pixel(pix []float32, w, x, y int) [4]float32 {
	i := 4 * (y*w + x)
	return [4]float32(pix[i : i+4])
}

func TestRenderConverges(t *testing.T) {
	f := sphereScene(t)
	const w, h = 16, 16
	one, err := f.render(t, w, h, settings(1, 2))
	require.NoError(t, err)
	f.r.ResetStats()
	four, err := f.render(t, w, h, settings(4, 2))
	require.NoError(t, err)
	assert.Equal(t, one, four, "identical samples must average to the single sample image")
	st := f.r.Stats()
	assert.Equal(t, 4, st.Samples)
	assert.Equal(t, 4, st.Mixes)
	assert.Equal(t, 4, st.FinalWrites)
	assert.Equal(t, glrender.StateCompiled, f.r.State())
	// The sphere is lit and differs from the sky above it.
	center := pixel(four, w, w/2, h/2)
	top := pixel(four, w, w/2, 0)
	assert.NotEqual(t, center, top)
	assert.EqualValues(t, 1, center[3])
}

func TestReflectionBounces(t *testing.T) {
	f := sphereScene(t)
	f.r.ResetStats()
	_, err := f.render(t, 16, 16, settings(4, 2))
	require.NoError(t, err)
	st := f.r.Stats()
	assert.Equal(t, 8, st.Entries(glrender.StateHitAndNormals))
	assert.Equal(t, 8, st.Entries(glrender.StateAO))
	assert.Equal(t, 8, st.Entries(glrender.StateShadowsAndMaterials))
	assert.Equal(t, 8, st.Entries(glrender.StateReflection))
	assert.Equal(t, 4, st.Mixes)
	assert.Equal(t, 4, st.FinalWrites)
	// Camera rays are generated once per sample.
	var cameras int
	for _, d := range st.Dispatches {
		if strings.HasPrefix(d, "camera:") {
			cameras++
		}
	}
	assert.Equal(t, 4, cameras)
}

func TestLightsShadeEveryObject(t *testing.T) {
	f := sphereScene(t)
	f.scene.Lights = append(f.scene.Lights, sdfgraph.Light{Dir: ms3.Vec{X: -1, Y: 1}, Color: ms3.Vec{X: 1, Y: 1, Z: 1}, Intensity: 0.5})
	f.r.ResetStats()
	_, err := f.render(t, 8, 8, settings(1, 1))
	require.NoError(t, err)
	label := f.r.Objects()[0].Label
	var shadows, materials int
	for _, d := range f.r.Stats().Dispatches {
		switch d {
		case label + "/shadow":
			shadows++
		case label + "/material":
			materials++
		}
	}
	assert.Equal(t, 2, shadows, "one shadow pass per light")
	assert.Equal(t, 2, materials, "one material pass per light")
}

func TestMinimalPreview(t *testing.T) {
	f := sphereScene(t)
	s := settings(8, 3)
	s.MinimalPreview = true
	f.r.ResetStats()
	final, err := f.render(t, 16, 16, s)
	require.NoError(t, err)
	require.NotNil(t, final)
	st := f.r.Stats()
	assert.Equal(t, 1, st.Entries(glrender.StateHitAndNormals))
	assert.Zero(t, st.Entries(glrender.StateAO))
	assert.Zero(t, st.Entries(glrender.StateShadowsAndMaterials))
	assert.Zero(t, st.Entries(glrender.StateReflection))
	assert.Zero(t, st.Mixes)
	assert.Equal(t, 1, st.FinalWrites)
	assert.Contains(t, st.Dispatches, "utility/preview")
	for _, d := range st.Dispatches {
		assert.NotContains(t, []string{"ao", "shadow", "material", glbuild.KernelReflect, glbuild.KernelMix}, d[strings.LastIndexByte(d, '/')+1:])
	}
}

func TestCompileFailureFillsErrorColor(t *testing.T) {
	reg := &sdfgraph.Registry{}
	bld := sdfgraph.NewBuilder(reg)
	scene := sdfgraph.NewScene(reg, 3)
	weird := reg.New("weird", sdfgraph.KindShape3)
	weird.Dim = 3
	a := &weird.Arena
	weird.Functions = append(weird.Functions, glexpr.Function{
		Name:   "sdf",
		Type:   "float",
		Params: []glexpr.Param{{Type: "vec3", Name: "p"}},
		Body: []glexpr.Statement{
			a.Assign("mat5", "m", a.Const("float", 1)),
			a.Return(a.Call("float", "length", glexpr.Statement{a.Ref("vec3", "p")}), a.Op("-"), a.Const("float", 1)),
		},
	})
	scene.Add(scene.Item(weird.ID))
	scene.Camera = bld.NewPinholeCamera(ms3.Vec{Z: -5}, ms3.Vec{}, 1).ID
	scene.Renderer = bld.NewRenderer3(1).ID
	require.NoError(t, bld.Err())
	f := newRenderer(t, scene)

	const w, h = 256, 256
	final, err := f.render(t, w, h, glrender.DefaultSettings())
	require.ErrorIs(t, err, gleval.ErrCompile)
	require.Len(t, final, 4*w*h)
	red := glrender.DefaultSettings().ErrorColor
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if got := pixel(final, w, x, y); got != red {
				t.Fatalf("pixel %d,%d = %v, want error color %v", x, y, got, red)
			}
		}
	}
	st := f.r.Stats()
	assert.Equal(t, 1, st.Entries(glrender.StateCompiling))
	for s := glrender.StateCompiled; s <= glrender.StateReflection; s++ {
		assert.Zero(t, st.Entries(s), s.String())
	}
	assert.Empty(t, st.Dispatches)
	assert.Equal(t, 1, st.FinalWrites)
}

func TestCancelStopsRender(t *testing.T) {
	f := sphereScene(t)
	cancel := true
	label := f.r.Objects()[0].Label
	f.sw.Register(label, "ao", func(inv *gleval.Invocation) error {
		if cancel {
			f.r.Cancel()
		}
		return nil
	})
	f.r.ResetStats()
	calls := 0
	s := settings(4, 2)
	f.r.Render(16, 16, &s, func(gleval.Texture, error) { calls++ })
	f.loop.Drain()
	assert.Zero(t, calls, "cancelled render must not complete")
	assert.False(t, f.r.Busy())
	st := f.r.Stats()
	assert.Zero(t, st.FinalWrites)
	assert.Zero(t, st.Mixes)
	assert.Equal(t, 1, st.Entries(glrender.StateAO))
	assert.Zero(t, st.Entries(glrender.StateShadowsAndMaterials))

	cancel = false
	f.r.ResetStats()
	_, err := f.render(t, 16, 16, s)
	require.NoError(t, err)
	assert.Equal(t, 4, f.r.Stats().FinalWrites)
}

func TestRenderSupersedesRenderInFlight(t *testing.T) {
	f := sphereScene(t)
	f.loop.Drain()
	s := settings(2, 1)
	var first, second int
	f.r.Render(8, 8, &s, func(gleval.Texture, error) { first++ })
	require.True(t, f.r.Busy())
	f.r.Render(8, 8, &s, func(gleval.Texture, error) { second++ })
	f.loop.Drain()
	assert.Zero(t, first)
	assert.Equal(t, 1, second)
	assert.False(t, f.r.Busy())
}

func TestRenderWithoutBuild(t *testing.T) {
	loop := gleval.NewLoop()
	sw := gleval.NewSoftware(loop)
	r, err := glrender.New(glrender.Config{Synth: &glbuild.Synthesizer{Reg: &sdfgraph.Registry{}}, Backend: sw, Loop: loop})
	require.NoError(t, err)
	var gotErr error
	r.Render(8, 8, nil, func(_ gleval.Texture, err error) { gotErr = err })
	loop.Drain()
	assert.Error(t, gotErr)
	assert.ErrorContains(t, r.Pick(0, 0, func(int, *glbuild.ObjectRef, error) {}), "no scene built")

	_, err = glrender.New(glrender.Config{Backend: sw, Loop: loop})
	assert.Error(t, err)
}

func TestProgress(t *testing.T) {
	f := sphereScene(t)
	var got []int
	loop := gleval.NewLoop()
	sw := gleval.NewSoftware(loop)
	r, err := glrender.New(glrender.Config{
		Synth:    &glbuild.Synthesizer{Reg: f.scene.Registry},
		Backend:  sw,
		Loop:     loop,
		Settings: settings(3, 1),
		Progress: func(sample, maxSamples int) {
			assert.Equal(t, 3, maxSamples)
			got = append(got, sample)
		},
	})
	require.NoError(t, err)
	r.RegisterReference(sw)
	require.NoError(t, r.Build(f.scene))
	r.Render(8, 8, nil, func(gleval.Texture, error) {})
	loop.Drain()
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestPick(t *testing.T) {
	f := sphereScene(t)
	assert.ErrorContains(t, f.r.Pick(0, 0, func(int, *glbuild.ObjectRef, error) {}), "nothing rendered")
	const w, h = 16, 16
	s := settings(1, 1)
	s.MinimalPreview = true
	_, err := f.render(t, w, h, s)
	require.NoError(t, err)

	pick := func(x, y int) (int, *glbuild.ObjectRef) {
		var id int
		var ref *glbuild.ObjectRef
		called := false
		require.NoError(t, f.r.Pick(x, y, func(gotID int, gotRef *glbuild.ObjectRef, err error) {
			require.NoError(t, err)
			id, ref, called = gotID, gotRef, true
		}))
		f.loop.Drain()
		require.True(t, called)
		return id, ref
	}
	id, ref := pick(w/2, h/2)
	require.NotNil(t, ref)
	assert.Equal(t, 0, id)
	assert.Equal(t, f.sphere.ID, ref.Component)

	id, ref = pick(w/2, 0)
	assert.Equal(t, glrender.PickBackground, id)
	assert.Nil(t, ref)

	id, ref = pick(w/2, h-1)
	assert.Equal(t, glrender.PickGround, id)
	assert.Nil(t, ref)

	assert.Error(t, f.r.Pick(w, 0, func(int, *glbuild.ObjectRef, error) {}))
}

func TestBuildReusesCachedPrograms(t *testing.T) {
	f := sphereScene(t)
	before := f.r.Objects()[0]
	require.NoError(t, f.r.Build(f.scene))
	assert.Same(t, before, f.r.Objects()[0], "unedited objects must reuse their program")

	require.NoError(t, f.sphere.SetProperty("r", 0.5))
	require.NoError(t, f.r.Build(f.scene))
	after := f.r.Objects()[0]
	assert.NotSame(t, before, after)
	assert.EqualValues(t, 0.5, after.Value(f.sphere.ID.String()+".r"))
	_, err := f.render(t, 8, 8, settings(1, 1))
	require.NoError(t, err)
}

func TestRenderAfterFailedBuild(t *testing.T) {
	f := sphereScene(t)
	_, err := f.render(t, 8, 8, settings(1, 1))
	require.NoError(t, err)

	// A shape without a distance function passes validation but fails to build.
	empty := f.scene.Registry.New("empty", sdfgraph.KindShape3)
	empty.Dim = 3
	f.scene.Add(f.scene.Item(empty.ID))
	require.Error(t, f.r.Build(f.scene))
	assert.Equal(t, glrender.StateNone, f.r.State())
	assert.Empty(t, f.r.Objects())
	final, err := f.render(t, 8, 8, settings(1, 1))
	assert.Error(t, err)
	assert.Nil(t, final)
	err = f.r.Pick(4, 4, func(int, *glbuild.ObjectRef, error) {
		t.Error("pick must not resolve ids of a failed build")
	})
	assert.Error(t, err)
	f.loop.Drain()

	f.scene.Shapes = f.scene.Shapes[:1]
	require.NoError(t, f.r.Build(f.scene))
	_, err = f.render(t, 8, 8, settings(1, 1))
	require.NoError(t, err)
}

func TestRenderAfterFailedComponentBuild(t *testing.T) {
	f := sphereScene(t)
	_, err := f.render(t, 8, 8, settings(1, 1))
	require.NoError(t, err)
	good := f.scene.Renderer
	f.scene.Renderer = f.scene.Registry.New("broken", sdfgraph.KindRender3).ID
	require.Error(t, f.r.Build(f.scene))
	_, err = f.render(t, 8, 8, settings(1, 1))
	assert.Error(t, err, "the previous build must not render with a missing composite")

	f.scene.Renderer = good
	require.NoError(t, f.r.Build(f.scene))
	final, err := f.render(t, 8, 8, settings(1, 1))
	require.NoError(t, err)
	assert.NotNil(t, final)
}

func TestGlobalEditRebuildsComponents(t *testing.T) {
	f := sphereScene(t)
	g := sdfgraph.NewBuilder(f.scene.Registry).NewGlobal("gexposure", "float", 1)
	require.NoError(t, f.r.Build(f.scene))
	stamp := func() uint64 {
		return f.scene.Registry.Stamp(&sdfgraph.StageItem{Component: f.scene.Renderer})
	}
	prev := stamp()
	before, ok := f.cache.Get(f.scene.Renderer, prev)
	require.True(t, ok)
	object := f.r.Objects()[0]

	require.NoError(t, g.SetProperty("gexposure", 2))
	require.NotEqual(t, prev, stamp())
	require.NoError(t, f.r.Build(f.scene))
	after, ok := f.cache.Get(f.scene.Renderer, stamp())
	require.True(t, ok)
	assert.NotSame(t, before, after, "components must not reuse programs across global edits")
	assert.NotSame(t, object, f.r.Objects()[0])
	_, ok = f.cache.Get(f.scene.Renderer, prev)
	assert.False(t, ok)
	_, err := f.render(t, 8, 8, settings(1, 1))
	require.NoError(t, err)
}

func TestRebuildWhileCompilingReleasesOnCompletion(t *testing.T) {
	f := sphereScene(t) // Programs are still compiling.
	before := f.r.Objects()[0]
	require.False(t, before.Done())
	require.NoError(t, f.sphere.SetProperty("r", 0.5))
	require.NoError(t, f.r.Build(f.scene))
	assert.True(t, f.backend.wasReleased(before.Buffer))
	f.loop.Drain()
	require.True(t, before.Done())
	require.NotNil(t, before.Program)
	assert.True(t, f.backend.wasReleased(before.Program), "replaced program released once compiled")
	assert.False(t, f.backend.wasReleased(f.r.Objects()[0].Program))
}

func TestBuildRejectsInvalidScene(t *testing.T) {
	f := sphereScene(t)
	f.scene.Add(f.scene.Item(f.sphere.ID))
	assert.Error(t, f.r.Build(f.scene))
}

func TestRender2D(t *testing.T) {
	reg := &sdfgraph.Registry{}
	bld := sdfgraph.NewBuilder(reg)
	scene := sdfgraph.NewScene(reg, 2)
	circle := bld.NewCircle(1)
	circle.Material = bld.NewMaterial(ms3.Vec{X: 1}, 0).ID
	scene.Add(scene.Item(circle.ID))
	scene.Camera = bld.NewViewCamera2(ms2.Vec{}, 2).ID
	scene.Renderer = bld.NewRenderer2(1).ID
	require.NoError(t, bld.Err())
	f := newRenderer(t, scene)

	const w, h = 16, 16
	final, err := f.render(t, w, h, settings(2, 3))
	require.NoError(t, err)
	assert.Equal(t, [4]float32{1, 0, 0, 1}, pixel(final, w, w/2, h/2))
	assert.Equal(t, [4]float32{0.5, 0.6, 0.7, 1}, pixel(final, w, 0, 0))
	st := f.r.Stats()
	assert.Equal(t, 2, st.Entries(glrender.StateHitAndNormals))
	assert.Zero(t, st.Entries(glrender.StateAO))
	assert.Zero(t, st.Entries(glrender.StateReflection))
	assert.Equal(t, 2, st.Mixes)
	assert.Contains(t, st.Dispatches, f.r.Objects()[0].Label+"/main")
}
