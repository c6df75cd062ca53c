package glrender

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/sdfgraph"
	"github.com/soypat/sdfgraph/glbuild"
	"github.com/soypat/sdfgraph/gleval"
)

// Ray marching constants of the generated shape programs.
const (
	maxSteps = 256
	maxDist  = 1e4
	surfEps  = 1e-3
	groundID = -2
)

// RegisterReference registers CPU kernels on sw computing what the generated programs
// of the renderer's builds compute. Shape kernels evaluate authored property values
// through [sdfgraph.Evaluator]; every other kernel reads its uniforms.
func (r *Renderer) RegisterReference(sw *gleval.Software) {
	sw.Register("camera", "main", r.refCamera)
	sw.Register("background", "main", r.refBackground)
	sw.Register("shape3", "main", r.refHit3)
	sw.Register("shape3", "ao", r.refAO)
	sw.Register("shape3", "shadow", r.refShadow)
	sw.Register("shape3", "material", r.refMaterial)
	sw.Register("shape2", "main", r.refHit2)
	sw.Register("colorize", "main", r.refColorize)
	sw.Register("render3", "main", r.refComposite)
	sw.Register("render2", "main", r.refComposite)
	sw.Register("utility", glbuild.KernelClear, refClear)
	sw.Register("utility", glbuild.KernelReflect, refReflect)
	sw.Register("utility", glbuild.KernelMix, refMix)
	sw.Register("utility", glbuild.KernelPreview, refPreview)
}

// eachPixel calls fn with every pixel of the dispatch and its centered coordinate.
func eachPixel(inv *gleval.Invocation, fn func(x, y int, uv ms2.Vec)) {
	resX, resY := inv.Pass[gleval.PassWidth], inv.Pass[gleval.PassHeight]
	jx, jy := inv.Pass[gleval.PassJitterX], inv.Pass[gleval.PassJitterY]
	for y := 0; y < inv.Height; y++ {
		for x := 0; x < inv.Width; x++ {
			uv := ms2.Vec{
				X: ((float32(x)+0.5+jx)*2 - resX) / resY,
				Y: -((float32(y)+0.5+jy)*2 - resY) / resY,
			}
			fn(x, y, uv)
		}
	}
}

func (r *Renderer) artifactOf(inv *gleval.Invocation) (*glbuild.Artifact, error) {
	if r.scene == nil {
		return nil, errNoScene
	}
	art := r.byLabel[inv.Label]
	if art == nil {
		return nil, fmt.Errorf("glrender: no artifact labelled %q", inv.Label)
	}
	return art, nil
}

// uniform reads the n consecutive slots of the property called key.
func uniform(inv *gleval.Invocation, art *glbuild.Artifact, key string, n int) (v ms3.Vec) {
	slot := art.Slot(key)
	if slot < 0 {
		return v
	}
	v.X = inv.Slot(slot)
	if n > 1 {
		v.Y = inv.Slot(slot + 1)
	}
	if n > 2 {
		v.Z = inv.Slot(slot + 2)
	}
	return v
}

func vec4(v ms3.Vec, w float32) [4]float32 { return [4]float32{v.X, v.Y, v.Z, w} }

func rgb(c [4]float32) ms3.Vec { return ms3.Vec{X: c[0], Y: c[1], Z: c[2]} }

func splat(v float32) ms3.Vec { return ms3.Vec{X: v, Y: v, Z: v} }

func clamp01(v float32) float32 { return math32.Max(0, math32.Min(v, 1)) }

func (r *Renderer) refCamera(inv *gleval.Invocation) error {
	art, err := r.artifactOf(inv)
	if err != nil {
		return err
	}
	q := art.Component.String()
	origin := inv.Images[gleval.ImageRayOrigin]
	dir := inv.Images[gleval.ImageRayDir]
	if r.scene.Dim == 2 {
		center := uniform(inv, art, q+".center", 2)
		zoom := uniform(inv, art, q+".zoom", 1).X
		eachPixel(inv, func(x, y int, uv ms2.Vec) {
			origin.Set(x, y, [4]float32{center.X + uv.X*zoom, center.Y + uv.Y*zoom, 0, 1})
			dir.Set(x, y, [4]float32{0, 0, 1, 0})
		})
		return nil
	}
	ro := uniform(inv, art, q+".origin", 3)
	target := uniform(inv, art, q+".target", 3)
	fov := uniform(inv, art, q+".fov", 1).X
	fw := ms3.Unit(ms3.Sub(target, ro))
	rt := ms3.Unit(ms3.Cross(ms3.Vec{Y: 1}, fw))
	up := ms3.Cross(fw, rt)
	eachPixel(inv, func(x, y int, uv ms2.Vec) {
		rd := ms3.Unit(ms3.Add(ms3.Scale(fov, fw), ms3.Add(ms3.Scale(uv.X, rt), ms3.Scale(uv.Y, up))))
		origin.Set(x, y, vec4(ro, 1))
		dir.Set(x, y, vec4(rd, 0))
	})
	return nil
}

// sky returns the color of the background component of art seen along rd.
func sky(inv *gleval.Invocation, art *glbuild.Artifact, bg sdfgraph.ComponentID, rd ms3.Vec) ms3.Vec {
	if bg == 0 {
		return rgb(defaultBackground)
	}
	q := bg.String()
	horizon := uniform(inv, art, q+".horizon", 3)
	zenith := uniform(inv, art, q+".zenith", 3)
	return ms3.InterpElem(horizon, zenith, splat(clamp01(rd.Y*0.5+0.5)))
}

func (r *Renderer) refBackground(inv *gleval.Invocation) error {
	art, err := r.artifactOf(inv)
	if err != nil {
		return err
	}
	dir := inv.Images[gleval.ImageRayDir]
	bg := inv.Images[gleval.ImageBackground]
	eachPixel(inv, func(x, y int, _ ms2.Vec) {
		bg.Set(x, y, vec4(sky(inv, art, art.Component, rgb(dir.At(x, y))), 1))
	})
	return nil
}

// refScene is the distance field of one object program.
type refScene struct {
	art    *glbuild.Artifact
	items  *sdfgraph.Evaluator
	ground *sdfgraph.Evaluator
	bg     sdfgraph.ComponentID
	reg    *sdfgraph.Registry
}

func (r *Renderer) refScene(inv *gleval.Invocation) (*refScene, error) {
	art, err := r.artifactOf(inv)
	if err != nil {
		return nil, err
	}
	for i := range r.objects {
		obj := &r.objects[i]
		if obj.art != art {
			continue
		}
		sc := &refScene{art: art, bg: r.scene.Background, reg: r.scene.Registry}
		if obj.item != nil {
			sc.items = &sdfgraph.Evaluator{Reg: sc.reg, Item: obj.item, IDStart: art.IDStart}
		}
		if obj.ground != 0 {
			sc.ground = &sdfgraph.Evaluator{Reg: sc.reg, Item: &sdfgraph.StageItem{Component: obj.ground}}
		}
		return sc, nil
	}
	return nil, fmt.Errorf("glrender: %q is not an object program", inv.Label)
}

func (sc *refScene) dist(p ms3.Vec) (float32, int) {
	d, id := float32(maxDist), -1
	if sc.items != nil {
		d, id = sc.items.Distance(p)
	}
	if sc.ground != nil {
		if gd, _ := sc.ground.Distance(p); gd < d {
			d, id = gd, groundID
		}
	}
	return d, id
}

func (sc *refScene) normal(p ms3.Vec) ms3.Vec {
	const e = 1e-3
	var n ms3.Vec
	for _, k := range [4]ms3.Vec{{X: e, Y: -e, Z: -e}, {X: -e, Y: -e, Z: e}, {X: -e, Y: e, Z: -e}, {X: e, Y: e, Z: e}} {
		d, _ := sc.dist(ms3.Add(p, k))
		n = ms3.Add(n, ms3.Scale(d, k))
	}
	if ms3.Norm(n) == 0 {
		return n
	}
	return ms3.Unit(n)
}

func (sc *refScene) ao(p, n ms3.Vec) float32 {
	var occ float32
	sca := float32(1)
	for i := 0; i < 5; i++ {
		h := 0.01 + 0.12*float32(i)/4
		d, _ := sc.dist(ms3.Add(p, ms3.Scale(h, n)))
		occ += (h - d) * sca
		sca *= 0.95
	}
	return clamp01(1 - 3*occ)
}

func (sc *refScene) shadow(ro, rd ms3.Vec) float32 {
	res := float32(1)
	t := float32(0.02)
	for i := 0; i < 64 && t < 20; i++ {
		h, _ := sc.dist(ms3.Add(ro, ms3.Scale(t, rd)))
		if h < surfEps {
			return 0
		}
		res = math32.Min(res, 8*h/t)
		t += math32.Max(0.02, math32.Min(h, 0.5))
	}
	return clamp01(res)
}

func (sc *refScene) owns(id float32) bool {
	if id == groundID {
		return sc.ground != nil
	}
	for _, obj := range sc.art.Objects {
		if float32(obj.ID) == id {
			return true
		}
	}
	return false
}

// material returns the albedo and reflectivity of object id.
func (sc *refScene) material(inv *gleval.Invocation, id float32) (ms3.Vec, float32) {
	for _, obj := range sc.art.Objects {
		if float32(obj.ID) != id {
			continue
		}
		c := sc.reg.Get(obj.Component)
		if c == nil || c.Material == 0 {
			break
		}
		q := c.Material.String()
		return uniform(inv, sc.art, q+".albedo", 3), uniform(inv, sc.art, q+".reflectivity", 1).X
	}
	return ms3.Vec{X: 0.8, Y: 0.8, Z: 0.8}, 0
}

func (r *Renderer) refHit3(inv *gleval.Invocation) error {
	sc, err := r.refScene(inv)
	if err != nil {
		return err
	}
	im := &inv.Images
	bounce := inv.Pass[gleval.PassBounce]
	eachPixel(inv, func(x, y int, _ ms2.Vec) {
		if im[gleval.ImageMeta].At(x, y)[3] <= 0 {
			return
		}
		oid := im[gleval.ImageObjectID].At(x, y)
		ro := rgb(im[gleval.ImageRayOrigin].At(x, y))
		rd := rgb(im[gleval.ImageRayDir].At(x, y))
		tmax := im[gleval.ImageDepth].At(x, y)[0]
		var t float32
		id := -1
		hit := false
		for i := 0; i < maxSteps && t < math32.Min(tmax, maxDist); i++ {
			var d float32
			d, id = sc.dist(ms3.Add(ro, ms3.Scale(t, rd)))
			if d < surfEps*math32.Max(1, t) {
				hit = true
				break
			}
			t += d
		}
		if !hit || t >= tmax {
			return
		}
		im[gleval.ImageDepth].Set(x, y, [4]float32{t, t, t, t})
		im[gleval.ImageNormal].Set(x, y, vec4(sc.normal(ms3.Add(ro, ms3.Scale(t, rd))), 0))
		oid[0] = float32(id)
		if bounce == 0 {
			oid[1] = float32(id)
			im[gleval.ImageMask].Set(x, y, [4]float32{1, 1, 1, 1})
		}
		im[gleval.ImageObjectID].Set(x, y, oid)
	})
	return nil
}

// eachHit calls fn with the hit point and normal of every pixel whose ray hit an object.
func eachHit(inv *gleval.Invocation, fn func(x, y int, oid [4]float32, p, n ms3.Vec)) {
	im := &inv.Images
	eachPixel(inv, func(x, y int, _ ms2.Vec) {
		oid := im[gleval.ImageObjectID].At(x, y)
		if oid[0] == -1 {
			return
		}
		ro := rgb(im[gleval.ImageRayOrigin].At(x, y))
		rd := rgb(im[gleval.ImageRayDir].At(x, y))
		p := ms3.Add(ro, ms3.Scale(im[gleval.ImageDepth].At(x, y)[0], rd))
		fn(x, y, oid, p, rgb(im[gleval.ImageNormal].At(x, y)))
	})
}

func (r *Renderer) refAO(inv *gleval.Invocation) error {
	sc, err := r.refScene(inv)
	if err != nil {
		return err
	}
	meta := inv.Images[gleval.ImageMeta]
	eachHit(inv, func(x, y int, _ [4]float32, p, n ms3.Vec) {
		m := meta.At(x, y)
		m[0] *= sc.ao(p, n)
		meta.Set(x, y, m)
	})
	return nil
}

func lightDir(inv *gleval.Invocation) ms3.Vec {
	return ms3.Vec{X: inv.Pass[gleval.PassLightDirX], Y: inv.Pass[gleval.PassLightDirY], Z: inv.Pass[gleval.PassLightDirZ]}
}

func (r *Renderer) refShadow(inv *gleval.Invocation) error {
	sc, err := r.refScene(inv)
	if err != nil {
		return err
	}
	meta := inv.Images[gleval.ImageMeta]
	l := lightDir(inv)
	eachHit(inv, func(x, y int, _ [4]float32, p, n ms3.Vec) {
		m := meta.At(x, y)
		m[1] *= sc.shadow(ms3.Add(p, ms3.Scale(2e-3, n)), l)
		meta.Set(x, y, m)
	})
	return nil
}

func (r *Renderer) refMaterial(inv *gleval.Invocation) error {
	sc, err := r.refScene(inv)
	if err != nil {
		return err
	}
	im := &inv.Images
	l := lightDir(inv)
	lcolor := ms3.Vec{X: inv.Pass[gleval.PassLightColorR], Y: inv.Pass[gleval.PassLightColorG], Z: inv.Pass[gleval.PassLightColorB]}
	intensity := inv.Pass[gleval.PassLightIntensity]
	first := inv.Pass[gleval.PassLight] == 0
	eachHit(inv, func(x, y int, oid [4]float32, p, n ms3.Vec) {
		if !sc.owns(oid[0]) {
			return
		}
		albedo, reflectivity := sc.material(inv, oid[0])
		m := im[gleval.ImageMeta].At(x, y)
		c := rgb(im[gleval.ImageColor].At(x, y))
		diff := math32.Max(ms3.Dot(n, l), 0)
		c = ms3.Add(c, ms3.Scale(m[3]*intensity*diff*m[1], ms3.MulElem(albedo, lcolor)))
		if first {
			c = ms3.Add(c, ms3.Scale(m[3]*m[0]*0.25, ms3.MulElem(albedo, sky(inv, sc.art, sc.bg, n))))
			m[2] = reflectivity
		}
		m[1] = 1
		im[gleval.ImageColor].Set(x, y, vec4(c, 1))
		im[gleval.ImageMeta].Set(x, y, m)
	})
	return nil
}

func (r *Renderer) refHit2(inv *gleval.Invocation) error {
	sc, err := r.refScene(inv)
	if err != nil {
		return err
	}
	im := &inv.Images
	eachPixel(inv, func(x, y int, _ ms2.Vec) {
		pos := im[gleval.ImageRayOrigin].At(x, y)
		d, id := sc.dist(ms3.Vec{X: pos[0], Y: pos[1]})
		if d >= im[gleval.ImageDepth].At(x, y)[0] {
			return
		}
		im[gleval.ImageDepth].Set(x, y, [4]float32{d, d, d, d})
		if d > 0 {
			return
		}
		im[gleval.ImageObjectID].Set(x, y, [4]float32{float32(id), float32(id), 0, 0})
		albedo, _ := sc.material(inv, float32(id))
		im[gleval.ImageColor].Set(x, y, vec4(albedo, 1))
		im[gleval.ImageMask].Set(x, y, [4]float32{1, 1, 1, 1})
	})
	return nil
}

func (r *Renderer) refColorize(inv *gleval.Invocation) error {
	art, err := r.artifactOf(inv)
	if err != nil {
		return err
	}
	q := art.Component.String()
	gamma := uniform(inv, art, q+".gamma", 1).X
	vignette := uniform(inv, art, q+".vignette", 1).X
	density := inv.Images[gleval.ImageDensity]
	eachPixel(inv, func(x, y int, uv ms2.Vec) {
		c := density.At(x, y)
		f := 1 - vignette*(uv.X*uv.X+uv.Y*uv.Y)
		for i := 0; i < 3; i++ {
			c[i] = math32.Pow(c[i], 1/gamma) * f
		}
		c[3] = 1
		density.Set(x, y, c)
	})
	return nil
}

func (r *Renderer) refComposite(inv *gleval.Invocation) error {
	art, err := r.artifactOf(inv)
	if err != nil {
		return err
	}
	q := art.Component.String()
	im := &inv.Images
	render3 := art.Kind == sdfgraph.KindRender3
	exposure := float32(1)
	opacity := float32(1)
	if render3 {
		exposure = uniform(inv, art, q+".exposure", 1).X
	} else {
		opacity = uniform(inv, art, q+".opacity", 1).X
	}
	eachPixel(inv, func(x, y int, _ ms2.Vec) {
		c := ms3.Scale(exposure, rgb(im[gleval.ImageDensity].At(x, y)))
		m := im[gleval.ImageMask].At(x, y)[0] * opacity
		im[gleval.ImageFinal].Set(x, y, vec4(ms3.InterpElem(rgb(im[gleval.ImageBackground].At(x, y)), c, splat(m)), 1))
	})
	return nil
}

func refClear(inv *gleval.Invocation) error {
	im := &inv.Images
	first := inv.Pass[gleval.PassBounce] == 0
	eachPixel(inv, func(x, y int, _ ms2.Vec) {
		im[gleval.ImageDepth].Set(x, y, [4]float32{1e20, 1e20, 1e20, 1e20})
		im[gleval.ImageNormal].Set(x, y, [4]float32{})
		if first {
			im[gleval.ImageObjectID].Set(x, y, [4]float32{-1, -1, 0, 0})
			im[gleval.ImageMeta].Set(x, y, [4]float32{1, 1, 0, 1})
			im[gleval.ImageColor].Set(x, y, [4]float32{})
			im[gleval.ImageMask].Set(x, y, [4]float32{})
			return
		}
		oid := im[gleval.ImageObjectID].At(x, y)
		meta := im[gleval.ImageMeta].At(x, y)
		im[gleval.ImageObjectID].Set(x, y, [4]float32{-1, oid[1], 0, 0})
		im[gleval.ImageMeta].Set(x, y, [4]float32{1, 1, 0, meta[3]})
	})
	return nil
}

func refReflect(inv *gleval.Invocation) error {
	im := &inv.Images
	bounce := inv.Pass[gleval.PassBounce]
	eachPixel(inv, func(x, y int, _ ms2.Vec) {
		meta := im[gleval.ImageMeta].At(x, y)
		if im[gleval.ImageObjectID].At(x, y)[0] == -1 {
			if bounce > 0 {
				c := rgb(im[gleval.ImageColor].At(x, y))
				c = ms3.Add(c, ms3.Scale(meta[3], rgb(im[gleval.ImageBackground].At(x, y))))
				im[gleval.ImageColor].Set(x, y, vec4(c, 1))
			}
			meta[3] = 0
		} else {
			ro := rgb(im[gleval.ImageRayOrigin].At(x, y))
			rd := rgb(im[gleval.ImageRayDir].At(x, y))
			n := rgb(im[gleval.ImageNormal].At(x, y))
			p := ms3.Add(ro, ms3.Scale(im[gleval.ImageDepth].At(x, y)[0], rd))
			im[gleval.ImageRayOrigin].Set(x, y, vec4(ms3.Add(p, ms3.Scale(2e-3, n)), 1))
			// r = d - 2(n.d)n
			im[gleval.ImageRayDir].Set(x, y, vec4(ms3.Sub(rd, ms3.Scale(2*ms3.Dot(n, rd), n)), 0))
			meta[3] *= meta[2]
		}
		im[gleval.ImageMeta].Set(x, y, meta)
	})
	return nil
}

func refMix(inv *gleval.Invocation) error {
	im := &inv.Images
	sample := inv.Pass[gleval.PassSample]
	w := inv.Pass[gleval.PassMixWeight]
	eachPixel(inv, func(x, y int, _ ms2.Vec) {
		c := im[gleval.ImageColor].At(x, y)
		if sample > 0 {
			res := im[gleval.ImageResult].At(x, y)
			for i := range c {
				c[i] = res[i] + (c[i]-res[i])*w
			}
		}
		im[gleval.ImageResult].Set(x, y, c)
		im[gleval.ImageDensity].Set(x, y, c)
	})
	return nil
}

func refPreview(inv *gleval.Invocation) error {
	im := &inv.Images
	l := lightDir(inv)
	eachPixel(inv, func(x, y int, _ ms2.Vec) {
		m := im[gleval.ImageMask].At(x, y)[0]
		n := rgb(im[gleval.ImageNormal].At(x, y))
		lambert := math32.Max(ms3.Dot(n, l), 0)*0.8 + 0.2
		g := 0.8 * lambert
		c := ms3.InterpElem(rgb(im[gleval.ImageBackground].At(x, y)), splat(g), splat(m))
		im[gleval.ImageFinal].Set(x, y, vec4(c, 1))
	})
	return nil
}
