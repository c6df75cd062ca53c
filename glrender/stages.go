package glrender

import (
	"fmt"
	"log/slog"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/sdfgraph"
	"github.com/soypat/sdfgraph/glbuild"
	"github.com/soypat/sdfgraph/gleval"
)

// defaultBackground fills the background image of scenes without a background component.
var defaultBackground = [4]float32{0.5, 0.6, 0.7, 1}

// run is the state of one render request.
type run struct {
	gen    uint64
	w, h   int
	sample int
	bounce int
	// ending is set once the last bounce of a sample was reflected.
	ending bool
	ops    []op
	done   func(final gleval.Texture, err error)
}

// op is one backend operation of a stage.
type op struct {
	art    *glbuild.Artifact
	kernel string
	pass   [gleval.PassLen]float32
	// fill, when set, fills image unit with color instead of dispatching.
	fill  bool
	image int
	color [4]float32
	final bool
	mix   bool
}

// Render renders the current build at w by h pixels and calls done with the final
// image once settings.MaxSamples samples were accumulated. A nil settings keeps the
// settings of the previous render. Render abandons the render in flight; its done is
// never called. When a program failed to compile the final image is filled with
// the error color and done receives the compile error.
func (r *Renderer) Render(w, h int, settings *Settings, done func(final gleval.Texture, err error)) {
	if settings != nil {
		r.settings = *settings
	}
	rn := &run{gen: r.gen.Add(1), w: w, h: h, done: done}
	r.start(rn)
}

func (r *Renderer) stale(rn *run) bool { return r.gen.Load() != rn.gen }

func (r *Renderer) start(rn *run) {
	if r.stale(rn) {
		return
	}
	if r.scene == nil {
		r.finish(rn, nil, errNoScene)
		return
	}
	arts := r.artifacts()
	for _, art := range arts {
		if art.Failed() {
			r.fail(rn, art)
			return
		}
	}
	for _, art := range arts {
		if !art.Done() {
			r.loop.PostAfter(r.settings.CompileRetry, func() { r.start(rn) })
			return
		}
	}
	if r.busy {
		r.loop.PostAfter(r.settings.BusyRetry, func() { r.start(rn) })
		return
	}
	r.state = StateCompiled
	r.stats.Stages[StateCompiled]++
	if err := r.ensureTextures(rn.w, rn.h); err != nil {
		r.finish(rn, nil, err)
		return
	}
	for _, art := range arts {
		if err := r.synth.UpdateData(art, r.settings.Frame, r.settings.Sequence); err != nil {
			sdfgraph.Logger().Warn("glrender: updating uniforms", slog.String("artifact", art.Label), slog.String("err", err.Error()))
		}
	}
	r.busy = true
	r.enter(rn, StateHitAndNormals)
}

// fail paints the final image with the error color.
func (r *Renderer) fail(rn *run, art *glbuild.Artifact) {
	err := fmt.Errorf("glrender: %s: %w", art.Label, art.Err)
	if art.Err == nil {
		err = fmt.Errorf("glrender: %s failed to compile", art.Label)
	}
	if terr := r.ensureTextures(rn.w, rn.h); terr != nil {
		r.finish(rn, nil, terr)
		return
	}
	final := r.textures[gleval.ImageFinal]
	r.stats.FinalWrites++
	r.backend.Fill(final, r.settings.ErrorColor, func(ferr error) {
		if r.stale(rn) {
			return
		}
		if ferr != nil {
			err = ferr
		}
		r.finish(rn, final, err)
	})
}

func (r *Renderer) finish(rn *run, final gleval.Texture, err error) {
	if rn.done != nil {
		rn.done(final, err)
	}
}

// enter starts stage s of rn.
func (r *Renderer) enter(rn *run, s State) {
	r.state = s
	r.stats.Stages[s]++
	sdfgraph.Logger().Debug("glrender: stage", slog.String("state", s.String()), slog.Int("sample", rn.sample), slog.Int("bounce", rn.bounce))
	rn.ops = r.stageOps(rn, s)
	r.next(rn)
}

// next issues the next operation of the current stage. It is the continuation of every
// backend operation: stale runs stop here and release the busy flag.
func (r *Renderer) next(rn *run) {
	if r.stale(rn) || rn.sample >= r.settings.samples() {
		sdfgraph.Logger().Debug("glrender: dropped stale continuation", slog.Uint64("generation", rn.gen))
		r.busy = false
		return
	}
	if len(rn.ops) == 0 {
		r.stageDone(rn)
		return
	}
	o := rn.ops[0]
	rn.ops = rn.ops[1:]
	r.exec(rn, o)
}

func (r *Renderer) exec(rn *run, o op) {
	cont := func(err error) {
		if err != nil && !r.stale(rn) {
			sdfgraph.Logger().Warn("glrender: dispatch failed", slog.String("state", r.state.String()), slog.String("err", err.Error()))
			r.busy = false
			r.state = StateCompiled
			r.finish(rn, nil, err)
			return
		}
		r.next(rn)
	}
	if o.fill {
		r.backend.Fill(r.textures[o.image], o.color, cont)
		return
	}
	k := o.art.Kernel(o.kernel)
	if k == nil {
		cont(fmt.Errorf("glrender: %s has no kernel %q", o.art.Label, o.kernel))
		return
	}
	b := gleval.Bindings{Data: o.art.Buffer, Pass: o.pass, Images: r.textures}
	r.stats.Dispatches = append(r.stats.Dispatches, o.art.Label+"/"+o.kernel)
	if o.final {
		r.stats.FinalWrites++
	}
	if o.mix {
		r.stats.Mixes++
	}
	r.backend.Dispatch(k, gleval.Groups(rn.w), gleval.Groups(rn.h), &b, cont)
}

// stageDone advances rn past the current stage.
func (r *Renderer) stageDone(rn *run) {
	switch r.state {
	case StateHitAndNormals:
		switch {
		case r.scene.Dim == 2:
			r.sampleDone(rn)
		case r.settings.MinimalPreview:
			r.complete(rn)
		default:
			r.enter(rn, StateAO)
		}
	case StateAO:
		r.enter(rn, StateShadowsAndMaterials)
	case StateShadowsAndMaterials:
		r.enter(rn, StateReflection)
	case StateReflection:
		if rn.ending {
			r.sampleDone(rn)
			return
		}
		rn.bounce++
		if rn.bounce < r.settings.bounces() {
			r.enter(rn, StateHitAndNormals)
			return
		}
		rn.ending = true
		rn.ops = r.sampleEndOps(rn)
		r.next(rn)
	default:
		sdfgraph.Logger().Warn("glrender: continuation in unexpected state", slog.String("state", r.state.String()))
		r.busy = false
	}
}

func (r *Renderer) sampleDone(rn *run) {
	rn.sample++
	r.stats.Samples++
	if r.progress != nil {
		r.progress(rn.sample, r.settings.samples())
	}
	if rn.sample < r.settings.samples() {
		rn.bounce = 0
		rn.ending = false
		r.enter(rn, StateHitAndNormals)
		return
	}
	r.complete(rn)
}

func (r *Renderer) complete(rn *run) {
	r.busy = false
	r.state = StateCompiled
	sdfgraph.Logger().Debug("glrender: render complete", slog.Int("samples", rn.sample), slog.Uint64("generation", rn.gen))
	r.finish(rn, r.textures[gleval.ImageFinal], nil)
}

// stageOps returns the operations of stage s in dispatch order.
func (r *Renderer) stageOps(rn *run, s State) []op {
	pass := r.pass(rn)
	var ops []op
	switch s {
	case StateHitAndNormals:
		if rn.bounce == 0 {
			ops = append(ops, op{art: r.camera, kernel: "main", pass: pass})
		}
		if r.background != nil {
			ops = append(ops, op{art: r.background, kernel: "main", pass: pass})
		} else if rn.bounce == 0 {
			ops = append(ops, op{fill: true, image: gleval.ImageBackground, color: defaultBackground})
		}
		ops = append(ops, op{art: r.utility, kernel: glbuild.KernelClear, pass: pass})
		for i := range r.objects {
			ops = append(ops, op{art: r.objects[i].art, kernel: "main", pass: pass})
		}
		switch {
		case r.scene.Dim == 2:
			ops = append(ops, r.sampleEndOps(rn)...)
		case r.settings.MinimalPreview:
			setLight(&pass, 0, r.scene.Sun)
			ops = append(ops, op{art: r.utility, kernel: glbuild.KernelPreview, pass: pass, final: true})
		}

	case StateAO:
		for i := range r.objects {
			ops = append(ops, op{art: r.objects[i].art, kernel: "ao", pass: pass})
		}

	case StateShadowsAndMaterials:
		for l, light := range r.scene.AllLights() {
			setLight(&pass, l, light)
			for i := range r.objects {
				ops = append(ops, op{art: r.objects[i].art, kernel: "shadow", pass: pass})
			}
			for i := range r.objects {
				ops = append(ops, op{art: r.objects[i].art, kernel: "material", pass: pass})
			}
		}

	case StateReflection:
		ops = append(ops, op{art: r.utility, kernel: glbuild.KernelReflect, pass: pass})
	}
	return ops
}

// sampleEndOps mixes the sample into the running average, runs the post passes and
// composites the final image.
func (r *Renderer) sampleEndOps(rn *run) []op {
	pass := r.pass(rn)
	ops := []op{{art: r.utility, kernel: glbuild.KernelMix, pass: pass, mix: true}}
	for _, art := range r.post {
		ops = append(ops, op{art: art, kernel: "main", pass: pass})
	}
	return append(ops, op{art: r.composite, kernel: "main", pass: pass, final: true})
}

// pass returns the pass parameters of the current sample and bounce.
func (r *Renderer) pass(rn *run) (p [gleval.PassLen]float32) {
	p[gleval.PassWidth] = float32(rn.w)
	p[gleval.PassHeight] = float32(rn.h)
	p[gleval.PassFrame] = float32(r.settings.Frame)
	p[gleval.PassSample] = float32(rn.sample)
	p[gleval.PassBounce] = float32(rn.bounce)
	if r.settings.Jitter {
		p[gleval.PassJitterX], p[gleval.PassJitterY] = jitter(rn.sample)
	}
	p[gleval.PassMixWeight] = 1 / float32(rn.sample+1)
	return p
}

func setLight(p *[gleval.PassLen]float32, idx int, l sdfgraph.Light) {
	dir := l.Dir
	if ms3.Norm(dir) > 0 {
		dir = ms3.Unit(dir)
	}
	p[gleval.PassLight] = float32(idx)
	p[gleval.PassLightDirX] = dir.X
	p[gleval.PassLightDirY] = dir.Y
	p[gleval.PassLightDirZ] = dir.Z
	p[gleval.PassLightIntensity] = l.Intensity
	p[gleval.PassLightColorR] = l.Color.X
	p[gleval.PassLightColorG] = l.Color.Y
	p[gleval.PassLightColorB] = l.Color.Z
}

// jitter returns the sub pixel offset of sample within [-0.5, 0.5) following the R2
// low discrepancy sequence. The first sample is centered.
func jitter(sample int) (x, y float32) {
	if sample == 0 {
		return 0, 0
	}
	const g1, g2 = 0.7548776662466927, 0.5698402909980532
	x = 0.5 + g1*float32(sample)
	y = 0.5 + g2*float32(sample)
	return x - math32.Floor(x) - 0.5, y - math32.Floor(y) - 0.5
}
