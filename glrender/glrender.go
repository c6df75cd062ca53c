// Package glrender schedules the compiled programs of a scene over a compute
// backend: camera rays, background, per object hits, ambient occlusion, per light
// shadows and materials, reflection bounces, sample accumulation, post passes and
// the final composite. Scheduling is single threaded: every method except
// [Renderer.Cancel] and [Renderer.Generation] must be called from the goroutine
// running the backend's loop.
package glrender

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/soypat/sdfgraph"
	"github.com/soypat/sdfgraph/glbuild"
	"github.com/soypat/sdfgraph/gleval"
	"github.com/soypat/sdfgraph/glexpr"
)

// State is a stage of the render pipeline.
type State uint8

const (
	StateNone State = iota
	StateCompiling
	StateCompiled
	StateHitAndNormals
	StateAO
	StateShadowsAndMaterials
	StateReflection
	numStates
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateCompiling:
		return "compiling"
	case StateCompiled:
		return "compiled"
	case StateHitAndNormals:
		return "hit-and-normals"
	case StateAO:
		return "ao"
	case StateShadowsAndMaterials:
		return "shadows-and-materials"
	case StateReflection:
		return "reflection"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// Settings control a render. They are usually loaded from a TOML file.
type Settings struct {
	// MaxSamples is the amount of anti aliasing samples accumulated per render.
	MaxSamples int `toml:"max_samples"`
	// MaxReflections is the amount of ray bounces traced per sample, the
	// camera ray included. Values below 1 are treated as 1.
	MaxReflections int `toml:"max_reflections"`
	// MinimalPreview composites a flat lit preview after the first hit pass and stops.
	MinimalPreview bool `toml:"minimal_preview"`
	// Jitter offsets camera rays within the pixel on every sample after the first.
	Jitter bool `toml:"jitter"`
	// BusyRetry is the delay before retrying a render while another is in flight.
	BusyRetry time.Duration `toml:"-"`
	// CompileRetry is the delay before retrying a render waiting on compilation.
	CompileRetry time.Duration `toml:"-"`
	// ErrorColor fills the final image when a program failed to compile.
	ErrorColor [4]float32 `toml:"error_color"`
	Frame      int        `toml:"frame"`
	Sequence   int        `toml:"sequence"`
}

// DefaultSettings returns the settings used when none are given.
func DefaultSettings() Settings {
	return Settings{
		MaxSamples:     8,
		MaxReflections: 2,
		Jitter:         true,
		BusyRetry:      10 * time.Millisecond,
		CompileRetry:   50 * time.Millisecond,
		ErrorColor:     [4]float32{1, 0, 0, 1},
	}
}

func (s *Settings) bounces() int { return max(s.MaxReflections, 1) }

func (s *Settings) samples() int { return max(s.MaxSamples, 1) }

// Config holds the collaborators of a [Renderer].
type Config struct {
	Synth   *glbuild.Synthesizer
	Backend gleval.Backend
	Loop    *gleval.Loop
	// Cache stores compiled programs across builds. A nil Cache is allocated by [New].
	Cache    *glbuild.Cache
	Settings Settings
	// Progress, when set, is called after every completed sample.
	Progress func(sample, maxSamples int)
}

// Stats counts the work performed by a [Renderer].
type Stats struct {
	// Stages counts entries into each state.
	Stages [numStates]int
	// Mixes counts sample accumulations.
	Mixes int
	// FinalWrites counts writes to the final image.
	FinalWrites int
	// Samples counts completed samples.
	Samples int
	// Dispatches logs every backend dispatch as "label/kernel".
	Dispatches []string
}

// Entries returns the amount of times the pipeline entered state s.
func (st *Stats) Entries(s State) int {
	if s >= numStates {
		return 0
	}
	return st.Stages[s]
}

// objectProgram is the compiled program of one top level object.
type objectProgram struct {
	art  *glbuild.Artifact
	item *sdfgraph.StageItem
	// ground is the ground component threaded into the program.
	ground sdfgraph.ComponentID
}

// Renderer is the render orchestrator.
type Renderer struct {
	synth    *glbuild.Synthesizer
	backend  gleval.Backend
	loop     *gleval.Loop
	cache    *glbuild.Cache
	settings Settings
	progress func(sample, maxSamples int)

	gen   atomic.Uint64
	state State
	busy  bool
	stats Stats

	scene      *sdfgraph.Scene
	objects    []objectProgram
	camera     *glbuild.Artifact
	background *glbuild.Artifact
	composite  *glbuild.Artifact
	post       []*glbuild.Artifact
	utility    *glbuild.Artifact
	// byLabel indexes every artifact of the current build by label.
	byLabel map[string]*glbuild.Artifact

	textures [gleval.NumImages]gleval.Texture
	w, h     int
}

var (
	errNoScene   = errors.New("glrender: no scene built")
	errBadConfig = errors.New("glrender: config requires a synthesizer, backend and loop")
)

// New returns a Renderer using the collaborators of cfg. Zero Settings are replaced by [DefaultSettings].
func New(cfg Config) (*Renderer, error) {
	if cfg.Synth == nil || cfg.Backend == nil || cfg.Loop == nil {
		return nil, errBadConfig
	}
	if cfg.Synth.Backend == nil {
		cfg.Synth.Backend = cfg.Backend
	} else if cfg.Synth.Backend != cfg.Backend {
		return nil, errors.New("glrender: synthesizer compiles on a different backend")
	}
	if cfg.Cache == nil {
		cfg.Cache = &glbuild.Cache{}
	}
	if cfg.Settings == (Settings{}) {
		cfg.Settings = DefaultSettings()
	}
	r := &Renderer{
		synth:    cfg.Synth,
		backend:  cfg.Backend,
		loop:     cfg.Loop,
		cache:    cfg.Cache,
		settings: cfg.Settings,
		progress: cfg.Progress,
		byLabel:  make(map[string]*glbuild.Artifact),
	}
	return r, nil
}

// Generation returns the render generation. It increases on every Build, Render and Cancel.
func (r *Renderer) Generation() uint64 { return r.gen.Load() }

// Cancel abandons the render in flight. Its pending continuations stop without
// writing to any image. Safe for concurrent use.
func (r *Renderer) Cancel() {
	r.gen.Add(1)
}

// State returns the stage the pipeline is in.
func (r *Renderer) State() State { return r.state }

// Busy reports whether a render is in flight.
func (r *Renderer) Busy() bool { return r.busy }

// Settings returns the settings of the last render.
func (r *Renderer) Settings() Settings { return r.settings }

// Stats returns a copy of the renderer's counters.
func (r *Renderer) Stats() Stats {
	st := r.stats
	st.Dispatches = slices.Clone(r.stats.Dispatches)
	return st
}

// ResetStats zeroes the renderer's counters.
func (r *Renderer) ResetStats() { r.stats = Stats{} }

// Texture returns the image called name, i.e: "final" or "objectid". Nil is returned
// before the first render or for unknown names.
func (r *Renderer) Texture(name string) gleval.Texture {
	unit := gleval.ImageUnit(name)
	if unit < 0 {
		return nil
	}
	return r.textures[unit]
}

// Objects returns the artifacts of the top level objects of the current build in scene order.
func (r *Renderer) Objects() []*glbuild.Artifact {
	arts := make([]*glbuild.Artifact, len(r.objects))
	for i := range r.objects {
		arts[i] = r.objects[i].art
	}
	return arts
}

// Build generates the programs of scene and submits them for compilation. Programs
// of unedited components are reused from the cache. Build abandons the render in flight.
// After a failed Build the renderer holds no scene until the next successful Build.
func (r *Renderer) Build(scene *sdfgraph.Scene) error {
	r.gen.Add(1)
	b, err := r.build(scene)
	if err != nil {
		r.unbuild()
		return err
	}
	r.state = StateCompiling
	r.stats.Stages[StateCompiling]++
	r.scene = scene
	r.objects = b.objects
	r.camera = b.camera
	r.background = b.background
	r.composite = b.composite
	r.post = b.post
	r.byLabel = b.byLabel
	sdfgraph.Logger().Debug("glrender: built scene", slog.Int("objects", len(r.objects)), slog.Int("post", len(r.post)), slog.Uint64("generation", r.gen.Load()))
	return nil
}

// unbuild drops the current build. The utility program does not depend on the scene and is kept.
func (r *Renderer) unbuild() {
	r.state = StateNone
	r.scene = nil
	r.objects = nil
	r.camera, r.background, r.composite = nil, nil, nil
	r.post = nil
	clear(r.byLabel)
}

// sceneBuild holds the programs of a scene until all of them were generated.
type sceneBuild struct {
	scene      *sdfgraph.Scene
	objects    []objectProgram
	camera     *glbuild.Artifact
	background *glbuild.Artifact
	composite  *glbuild.Artifact
	post       []*glbuild.Artifact
	byLabel    map[string]*glbuild.Artifact
}

func (r *Renderer) build(scene *sdfgraph.Scene) (*sceneBuild, error) {
	if err := scene.Validate(); err != nil {
		return nil, fmt.Errorf("glrender: invalid scene: %w", err)
	}
	if r.synth.Reg != scene.Registry {
		return nil, errors.New("glrender: scene and synthesizer registries differ")
	}
	b := &sceneBuild{scene: scene, byLabel: make(map[string]*glbuild.Artifact)}
	kind := sdfgraph.KindShape3
	if scene.Dim == 2 {
		kind = sdfgraph.KindShape2
	}
	idStart := 0
	for i, item := range scene.Shapes {
		var ground sdfgraph.ComponentID
		if i == 0 {
			ground = scene.Ground
		}
		art, err := r.buildObject(b, kind, item, ground, idStart)
		if err != nil {
			return nil, fmt.Errorf("glrender: object %d: %w", i, err)
		}
		b.objects = append(b.objects, objectProgram{art: art, item: item, ground: ground})
		idStart += item.Leaves(scene.Registry)
	}
	if len(scene.Shapes) == 0 && scene.Ground != 0 {
		art, err := r.buildObject(b, kind, nil, scene.Ground, 0)
		if err != nil {
			return nil, fmt.Errorf("glrender: ground: %w", err)
		}
		b.objects = append(b.objects, objectProgram{art: art, ground: scene.Ground})
	}
	var err error
	if b.camera, err = r.buildComponent(b, scene.Camera); err != nil {
		return nil, err
	}
	if scene.Background != 0 {
		if b.background, err = r.buildComponent(b, scene.Background); err != nil {
			return nil, err
		}
	}
	if b.composite, err = r.buildComponent(b, scene.Renderer); err != nil {
		return nil, err
	}
	for _, id := range scene.Post {
		art, err := r.buildComponent(b, id)
		if err != nil {
			return nil, err
		}
		b.post = append(b.post, art)
	}
	if r.utility == nil {
		if r.utility, err = r.synth.BuildUtility(); err != nil {
			return nil, fmt.Errorf("glrender: utility program: %w", err)
		}
	}
	b.byLabel[r.utility.Label] = r.utility
	return b, nil
}

// objectStamp identifies the inputs a top level object's program was generated from.
func objectStamp(scene *sdfgraph.Scene, item *sdfgraph.StageItem, ground sdfgraph.ComponentID, idStart int) uint64 {
	reg := scene.Registry
	var x uint64
	if item != nil {
		x = reg.Stamp(item)
	}
	var buf []byte
	for _, id := range []sdfgraph.ComponentID{ground, scene.Background} {
		buf = strconv.AppendUint(buf[:0], uint64(id), 16)
		if c := reg.Get(id); c != nil {
			buf = strconv.AppendUint(append(buf, '.'), c.Version(), 16)
		}
		x = glexpr.Hash(buf, x)
	}
	buf = strconv.AppendInt(buf[:0], int64(idStart), 10)
	return glexpr.Hash(buf, x)
}

func (r *Renderer) buildObject(b *sceneBuild, kind sdfgraph.Kind, item *sdfgraph.StageItem, ground sdfgraph.ComponentID, idStart int) (*glbuild.Artifact, error) {
	key := ground
	if item != nil {
		key = item.Component
	}
	stamp := objectStamp(b.scene, item, ground, idStart)
	art, ok := r.cache.Get(key, stamp)
	if !ok {
		st, err := r.synth.OpenStream(kind, 0, ground, b.scene.Background, idStart, b.scene)
		if err != nil {
			return nil, err
		}
		if item != nil {
			if err := st.Flatten(item); err != nil {
				return nil, err
			}
		}
		art, err = st.CloseStream()
		if err != nil {
			return nil, err
		}
		r.release(r.cache.Put(key, stamp, art))
	}
	b.byLabel[art.Label] = art
	return art, nil
}

func (r *Renderer) buildComponent(b *sceneBuild, id sdfgraph.ComponentID) (*glbuild.Artifact, error) {
	reg := b.scene.Registry
	c := reg.Get(id)
	if c == nil {
		return nil, fmt.Errorf("glrender: component %d not found", id)
	}
	// Stamp covers the globals the component references.
	stamp := reg.Stamp(&sdfgraph.StageItem{Component: id})
	art, ok := r.cache.Get(id, stamp)
	if !ok {
		var err error
		art, err = r.synth.Build(id, 0, 0)
		if err != nil {
			return nil, fmt.Errorf("glrender: building %s %q: %w", c.Kind, c.Name, err)
		}
		r.release(r.cache.Put(id, stamp, art))
	}
	b.byLabel[art.Label] = art
	return art, nil
}

// release frees the backend resources of art once its compilation finished.
func (r *Renderer) release(art *glbuild.Artifact) {
	if art == nil {
		return
	}
	if art.Buffer != nil {
		r.backend.Release(art.Buffer)
	}
	art.WhenDone(func(art *glbuild.Artifact) {
		if art.Program != nil {
			r.backend.Release(art.Program)
		}
	})
}

// artifacts returns every artifact a render of the current build dispatches.
func (r *Renderer) artifacts() []*glbuild.Artifact {
	arts := make([]*glbuild.Artifact, 0, len(r.objects)+len(r.post)+4)
	arts = append(arts, r.utility, r.camera, r.background)
	for i := range r.objects {
		arts = append(arts, r.objects[i].art)
	}
	arts = append(arts, r.post...)
	arts = append(arts, r.composite)
	return slices.DeleteFunc(arts, func(art *glbuild.Artifact) bool { return art == nil })
}

// ensureTextures allocates the image set when the requested size changes.
func (r *Renderer) ensureTextures(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("glrender: invalid render size %dx%d", w, h)
	}
	if w == r.w && h == r.h && r.textures[0] != nil {
		return nil
	}
	for i, tex := range r.textures {
		if tex != nil {
			r.backend.Release(tex)
			r.textures[i] = nil
		}
	}
	for i := range r.textures {
		tex, err := r.backend.NewTexture(w, h, gleval.FormatRGBA32F)
		if err != nil {
			return fmt.Errorf("glrender: allocating %s image: %w", gleval.ImageNames[i], err)
		}
		r.textures[i] = tex
	}
	r.w, r.h = w, h
	sdfgraph.Logger().Debug("glrender: allocated images", slog.Int("width", w), slog.Int("height", h))
	return nil
}
