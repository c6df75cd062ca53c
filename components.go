package sdfgraph

import (
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/sdfgraph/glexpr"
)

func (bld *Builder) newComponent(name string, kind Kind, fn glexpr.Function) (*Component, *glexpr.Function, ast) {
	c := bld.reg().New(name, kind)
	c.Functions = append(c.Functions, fn)
	return c, &c.Functions[0], ast{a: &c.Arena}
}

func vecprop(c *Component, fn *glexpr.Function, name string, v ms3.Vec) {
	property(c, fn, "vec3", name, v.X, v.Y, v.Z)
}

// NewPinholeCamera creates a perspective camera at origin looking at target.
// fov scales the focal length: larger values zoom in.
func (bld *Builder) NewPinholeCamera(origin, target ms3.Vec, fov float32) *Component {
	if fov <= 0 {
		bld.shapeErrorf("camera focal scale must be positive")
	}
	if ms3.Norm(ms3.Sub(target, origin)) < epstol {
		bld.shapeErrorf("camera origin and target coincide")
	}
	c, fn, e := bld.newComponent("camera", KindCamera, glexpr.Function{
		Name: "camera",
		Type: "void",
		Params: []glexpr.Param{
			{Type: "vec2", Name: "uv"},
			{Type: "vec3", Name: "ro", Out: true},
			{Type: "vec3", Name: "rd", Out: true},
		},
	})
	c.Dim = 3
	a := e.a
	vecprop(c, fn, "origin", origin)
	vecprop(c, fn, "target", target)
	property(c, fn, "float", "fov", fov)
	// vec3 fw = normalize(target - origin);
	fn.Body = append(fn.Body, a.Assign("vec3", "fw", e.call("vec3", "normalize", e.st(a.Ref("vec3", "target"), a.Op("-"), a.Ref("vec3", "origin")))))
	// vec3 rt = normalize(cross(vec3(0., 1., 0.), fw));
	fn.Body = append(fn.Body, a.Assign("vec3", "rt", e.call("vec3", "normalize", e.st(e.call("vec3", "cross", e.st(a.Const("vec3", 0, 1, 0)), e.ref("vec3", "fw"))))))
	// vec3 up = cross(fw, rt);
	fn.Body = append(fn.Body, a.Assign("vec3", "up", e.call("vec3", "cross", e.ref("vec3", "fw"), e.ref("vec3", "rt"))))
	fn.Body = append(fn.Body, glexpr.Statement{a.Ref("vec3", "ro"), a.Op("="), a.Ref("vec3", "origin")})
	// rd = normalize(fw * fov + rt * uv.x + up * uv.y);
	fn.Body = append(fn.Body, glexpr.Statement{a.Ref("vec3", "rd"), a.Op("="), e.call("vec3", "normalize", e.st(
		a.Ref("vec3", "fw"), a.Op("*"), a.Ref("float", "fov"), a.Op("+"),
		a.Ref("vec3", "rt"), a.Op("*"), a.Ref("float", "uv.x"), a.Op("+"),
		a.Ref("vec3", "up"), a.Op("*"), a.Ref("float", "uv.y"),
	))})
	return c
}

// NewViewCamera2 creates the view of a 2D scene centered at center spanning zoom world units
// from the center to the top edge of the image.
func (bld *Builder) NewViewCamera2(center ms2.Vec, zoom float32) *Component {
	if zoom <= 0 {
		bld.shapeErrorf("view zoom must be positive")
	}
	c, fn, e := bld.newComponent("view", KindCamera, glexpr.Function{
		Name:   "view",
		Type:   "vec2",
		Params: []glexpr.Param{{Type: "vec2", Name: "uv"}},
	})
	c.Dim = 2
	a := e.a
	property(c, fn, "vec2", "center", center.X, center.Y)
	property(c, fn, "float", "zoom", zoom)
	fn.Body = append(fn.Body, a.Return(a.Ref("vec2", "center"), a.Op("+"), a.Ref("vec2", "uv"), a.Op("*"), a.Ref("float", "zoom")))
	return c
}

// NewSky creates a background blending from horizon to zenith color along the ray's height.
func (bld *Builder) NewSky(horizon, zenith ms3.Vec) *Component {
	c, fn, e := bld.newComponent("sky", KindBackground, glexpr.Function{
		Name:   "sky",
		Type:   "vec3",
		Params: []glexpr.Param{{Type: "vec3", Name: "rd"}},
	})
	a := e.a
	vecprop(c, fn, "horizon", horizon)
	vecprop(c, fn, "zenith", zenith)
	// float t = clamp(rd.y * 0.5 + 0.5, 0., 1.);
	fn.Body = append(fn.Body, a.Assign("float", "t", e.call("float", "clamp",
		e.st(a.Ref("float", "rd.y"), a.Op("*"), a.Const("float", 0.5), a.Op("+"), a.Const("float", 0.5)),
		e.num(0), e.num(1),
	)))
	fn.Body = append(fn.Body, a.Return(e.call("vec3", "mix", e.ref("vec3", "horizon"), e.ref("vec3", "zenith"), e.ref("float", "t"))))
	return c
}

// NewMaterial creates a diffuse material. reflectivity scales the light carried by reflection bounces.
func (bld *Builder) NewMaterial(albedo ms3.Vec, reflectivity float32) *Component {
	if reflectivity < 0 || reflectivity > 1 {
		bld.shapeErrorf("reflectivity must be within [0,1]")
	}
	c, fn, e := bld.newComponent("material", KindMaterial, glexpr.Function{
		Name: "material",
		Type: "vec4",
		Params: []glexpr.Param{
			{Type: "vec3", Name: "p"},
			{Type: "vec3", Name: "n"},
		},
	})
	a := e.a
	vecprop(c, fn, "albedo", albedo)
	property(c, fn, "float", "reflectivity", reflectivity)
	fn.Body = append(fn.Body, a.Return(e.call("vec4", "vec4", e.ref("vec3", "albedo"), e.ref("float", "reflectivity"))))
	return c
}

// NewGlobal creates a global variable visible by name to every component of the program
// referencing it. Globals are exposed as properties.
func (bld *Builder) NewGlobal(name, typ string, v ...float32) *Component {
	if !glexpr.Known(typ) {
		bld.shapeErrorf("global %q has unknown type %q", name, typ)
	}
	c := bld.reg().New(name, KindGlobal)
	st := c.Arena.Assign(typ, name, c.Arena.Const(typ, v...))
	c.GlobalCode = append(c.GlobalCode, st)
	c.Expose(st[0])
	return c
}

// NewRenderer3 creates the final composite of 3D scenes. exposure scales lit color.
func (bld *Builder) NewRenderer3(exposure float32) *Component {
	c, fn, e := bld.newComponent("renderer", KindRender3, compositeFunc())
	a := e.a
	property(c, fn, "float", "exposure", exposure)
	fn.Body = append(fn.Body, a.Return(e.call("vec3", "mix",
		e.ref("vec3", "background"),
		e.st(a.Ref("vec3", "color"), a.Op("*"), a.Ref("float", "exposure")),
		e.ref("float", "mask"),
	)))
	return c
}

// NewRenderer2 creates the final composite of 2D scenes. opacity scales shape coverage.
func (bld *Builder) NewRenderer2(opacity float32) *Component {
	c, fn, e := bld.newComponent("renderer", KindRender2, compositeFunc())
	a := e.a
	property(c, fn, "float", "opacity", opacity)
	fn.Body = append(fn.Body, a.Return(e.call("vec3", "mix",
		e.ref("vec3", "background"),
		e.ref("vec3", "color"),
		e.st(a.Ref("float", "mask"), a.Op("*"), a.Ref("float", "opacity")),
	)))
	return c
}

func compositeFunc() glexpr.Function {
	return glexpr.Function{
		Name: "render",
		Type: "vec3",
		Params: []glexpr.Param{
			{Type: "vec3", Name: "color"},
			{Type: "vec3", Name: "background"},
			{Type: "float", Name: "mask"},
		},
	}
}

// NewColorize creates a post pass applying gamma correction and a vignette.
func (bld *Builder) NewColorize(gamma, vignette float32) *Component {
	if gamma <= 0 {
		bld.shapeErrorf("gamma must be positive")
	}
	c, fn, e := bld.newComponent("colorize", KindColorize, glexpr.Function{
		Name: "colorize",
		Type: "vec3",
		Params: []glexpr.Param{
			{Type: "vec3", Name: "c"},
			{Type: "vec2", Name: "uv"},
		},
	})
	a := e.a
	property(c, fn, "float", "gamma", gamma)
	property(c, fn, "float", "vignette", vignette)
	// vec3 g = pow(c, vec3(1. / gamma));
	fn.Body = append(fn.Body, a.Assign("vec3", "g", e.call("vec3", "pow",
		e.ref("vec3", "c"),
		e.st(e.call("vec3", "vec3", e.st(a.Const("float", 1), a.Op("/"), a.Ref("float", "gamma")))),
	)))
	// return g * (1. - vignette * dot(uv, uv));
	fn.Body = append(fn.Body, a.Return(
		a.Ref("vec3", "g"), a.Op("*"), a.Open(), a.Const("float", 1), a.Op("-"), a.Ref("float", "vignette"), a.Op("*"),
		e.call("float", "dot", e.ref("vec2", "uv"), e.ref("vec2", "uv")), a.Close(),
	))
	return c
}
