package sdfgraph

import (
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/sdfgraph/glexpr"
)

// ast is shorthand for authoring component functions in an arena.
type ast struct{ a *glexpr.Arena }

func (x ast) ref(typ, name string) glexpr.Statement {
	return glexpr.Statement{x.a.Ref(typ, name)}
}

func (x ast) num(v float32) glexpr.Statement {
	return glexpr.Statement{x.a.Const("float", v)}
}

func (x ast) call(typ, fn string, args ...glexpr.Statement) glexpr.Handle {
	return x.a.Call(typ, fn, args...)
}

func (x ast) st(h ...glexpr.Handle) glexpr.Statement { return h }

// property appends "typ name = v" to fn and exposes it on c.
func property(c *Component, fn *glexpr.Function, typ, name string, v ...float32) {
	st := c.Arena.Assign(typ, name, c.Arena.Const(typ, v...))
	fn.Body = append(fn.Body, st)
	c.Expose(st[0])
}

func (bld *Builder) newLeaf(name string, dim int, shape Shape) (*Component, *glexpr.Function, ast) {
	c := bld.reg().New(name, shapeKind(dim))
	c.Dim = dim
	c.Shape = shape
	c.Functions = append(c.Functions, glexpr.Function{
		Name:   "sdf",
		Type:   "float",
		Params: []glexpr.Param{{Type: glexpr.VecType(dim), Name: "p"}},
	})
	return c, &c.Functions[0], ast{a: &c.Arena}
}

func shapeKind(dim int) Kind {
	if dim == 2 {
		return KindShape2
	}
	return KindShape3
}

// NewSphere creates a sphere centered at the origin of radius r.
func (bld *Builder) NewSphere(r float32) *Component {
	if r <= 0 {
		bld.shapeErrorf("zero or negative sphere radius")
	}
	c, fn, x := bld.newLeaf("sphere", 3, ShapeSphere)
	a := x.a
	property(c, fn, "float", "r", r)
	fn.Body = append(fn.Body, a.Return(x.call("float", "length", x.ref("vec3", "p")), a.Op("-"), a.Ref("float", "r")))
	c.Transform.Radius = r
	return c
}

// NewBox creates a box centered at the origin with x,y,z dimensions and a rounding parameter to round edges.
func (bld *Builder) NewBox(x, y, z, round float32) *Component {
	if round < 0 || round > x/2 || round > y/2 || round > z/2 {
		bld.shapeErrorf("invalid box rounding value")
	}
	if x <= 0 || y <= 0 || z <= 0 {
		bld.shapeErrorf("zero or negative box dimension")
	}
	c, fn, e := bld.newLeaf("box", 3, ShapeBox)
	a := e.a
	property(c, fn, "vec3", "size", x, y, z)
	property(c, fn, "float", "rounding", round)
	// vec3 q = abs(p) - size * 0.5 + rounding;
	fn.Body = append(fn.Body, a.Assign("vec3", "q",
		e.call("vec3", "abs", e.ref("vec3", "p")), a.Op("-"), a.Ref("vec3", "size"), a.Op("*"), a.Const("float", 0.5),
		a.Op("+"), a.Ref("float", "rounding")))
	// return length(max(q, 0.)) + min(max(q.x, max(q.y, q.z)), 0.) - rounding;
	fn.Body = append(fn.Body, a.Return(
		e.call("float", "length", e.st(e.call("vec3", "max", e.ref("vec3", "q"), e.num(0)))),
		a.Op("+"),
		e.call("float", "min", e.st(e.call("float", "max", e.ref("float", "q.x"),
			e.st(e.call("float", "max", e.ref("float", "q.y"), e.ref("float", "q.z")))),
		), e.num(0)),
		a.Op("-"), a.Ref("float", "rounding"),
	))
	c.Transform.Radius = ms3.Norm(ms3.Vec{X: x, Y: y, Z: z}) / 2
	return c
}

// NewCylinder creates a cylinder centered at the origin with given radius and height.
// The cylinder's axis points in z direction.
func (bld *Builder) NewCylinder(r, h, rounding float32) *Component {
	okRounding := rounding >= 0 && rounding < r && rounding < h/2
	if !okRounding {
		bld.shapeErrorf("invalid cylinder rounding")
	}
	okDim := r > 0 && h > 0
	if !okDim {
		bld.shapeErrorf("bad cylinder dimension")
	}
	c, fn, e := bld.newLeaf("cylinder", 3, ShapeCylinder)
	a := e.a
	property(c, fn, "float", "r", r)
	property(c, fn, "float", "h", h)
	property(c, fn, "float", "rounding", rounding)
	// vec3 q = p.xzy;
	fn.Body = append(fn.Body, a.Assign("vec3", "q", a.Ref("vec3", "p.xzy")))
	// vec2 d = vec2(length(q.xz) - r + rounding, abs(q.y) - h * 0.5 + rounding);
	fn.Body = append(fn.Body, a.Assign("vec2", "d", e.call("vec2", "vec2",
		e.st(e.call("float", "length", e.ref("vec2", "q.xz")), a.Op("-"), a.Ref("float", "r"), a.Op("+"), a.Ref("float", "rounding")),
		e.st(e.call("float", "abs", e.ref("float", "q.y")), a.Op("-"), a.Ref("float", "h"), a.Op("*"), a.Const("float", 0.5), a.Op("+"), a.Ref("float", "rounding")),
	)))
	// return min(max(d.x, d.y), 0.) + length(max(d, 0.)) - rounding;
	fn.Body = append(fn.Body, a.Return(
		e.call("float", "min", e.st(e.call("float", "max", e.ref("float", "d.x"), e.ref("float", "d.y"))), e.num(0)),
		a.Op("+"),
		e.call("float", "length", e.st(e.call("vec2", "max", e.ref("vec2", "d"), e.num(0)))),
		a.Op("-"), a.Ref("float", "rounding"),
	))
	c.Transform.Radius = hypotf(r, h/2)
	return c
}

// NewTorus creates a 3D torus given 2 radii to define the radius
// across (greaterRadius) and the "solid" radius (lesserRadius).
// The torus' axis points in z direction.
func (bld *Builder) NewTorus(greaterRadius, lesserRadius float32) *Component {
	if greaterRadius < 2*lesserRadius {
		bld.shapeErrorf("too large torus lesser radius")
	} else if greaterRadius <= 0 || lesserRadius <= 0 {
		bld.shapeErrorf("invalid torus parameter")
	}
	c, fn, e := bld.newLeaf("torus", 3, ShapeTorus)
	a := e.a
	property(c, fn, "float", "R", greaterRadius)
	property(c, fn, "float", "r", lesserRadius)
	// vec2 q = vec2(length(p.xy) - R, p.z);
	fn.Body = append(fn.Body, a.Assign("vec2", "q", e.call("vec2", "vec2",
		e.st(e.call("float", "length", e.ref("vec2", "p.xy")), a.Op("-"), a.Ref("float", "R")),
		e.ref("float", "p.z"),
	)))
	fn.Body = append(fn.Body, a.Return(e.call("float", "length", e.ref("vec2", "q")), a.Op("-"), a.Ref("float", "r")))
	c.Transform.Radius = greaterRadius + lesserRadius
	return c
}

// NewPlane creates an infinite plane with the given normal, offset along the normal by offset.
func (bld *Builder) NewPlane(normal ms3.Vec, offset float32) *Component {
	if ms3.Norm(normal) < epstol {
		bld.shapeErrorf("zero length plane normal")
	} else {
		normal = ms3.Unit(normal)
	}
	c, fn, e := bld.newLeaf("plane", 3, ShapePlane)
	a := e.a
	property(c, fn, "vec3", "normal", normal.X, normal.Y, normal.Z)
	property(c, fn, "float", "offset", offset)
	fn.Body = append(fn.Body, a.Return(e.call("float", "dot", e.ref("vec3", "p"), e.ref("vec3", "normal")), a.Op("+"), a.Ref("float", "offset")))
	c.Transform.Radius = largenum
	return c
}

// NewCircle creates a circle of radius r centered at the origin.
func (bld *Builder) NewCircle(r float32) *Component {
	if r <= 0 {
		bld.shapeErrorf("zero or negative circle radius")
	}
	c, fn, e := bld.newLeaf("circle", 2, ShapeCircle)
	a := e.a
	property(c, fn, "float", "r", r)
	fn.Body = append(fn.Body, a.Return(e.call("float", "length", e.ref("vec2", "p")), a.Op("-"), a.Ref("float", "r")))
	c.Transform.Radius = r
	return c
}

// NewRect creates a rectangle centered at the origin of dimensions x and y.
func (bld *Builder) NewRect(x, y float32) *Component {
	if x <= 0 || y <= 0 {
		bld.shapeErrorf("zero or negative rectangle dimension")
	}
	c, fn, e := bld.newLeaf("rect", 2, ShapeRect)
	a := e.a
	property(c, fn, "vec2", "size", x, y)
	// vec2 d = abs(p) - size * 0.5;
	fn.Body = append(fn.Body, a.Assign("vec2", "d",
		e.call("vec2", "abs", e.ref("vec2", "p")), a.Op("-"), a.Ref("vec2", "size"), a.Op("*"), a.Const("float", 0.5)))
	// return length(max(d, 0.)) + min(max(d.x, d.y), 0.);
	fn.Body = append(fn.Body, a.Return(
		e.call("float", "length", e.st(e.call("vec2", "max", e.ref("vec2", "d"), e.num(0)))),
		a.Op("+"),
		e.call("float", "min", e.st(e.call("float", "max", e.ref("float", "d.x"), e.ref("float", "d.y"))), e.num(0)),
	))
	c.Transform.Radius = hypotf(x, y) / 2
	return c
}
