package sdfgraph

import (
	"github.com/soypat/sdfgraph/glexpr"
)

func (bld *Builder) newCombine(dim int, op CombineOp) *Component {
	if dim != 2 && dim != 3 {
		bld.shapeErrorf("combine dimension must be 2 or 3, got %d", dim)
	}
	c := bld.reg().New(op.String(), KindCombine)
	c.Dim = dim
	c.Combine = op
	return c
}

// Union joins the shapes of the children of its stage item into one. Ties resolve to the left operand.
func (bld *Builder) Union(dim int) *Component {
	return bld.newCombine(dim, CombineUnion)
}

// Difference subtracts the shapes of the second and later children from the first child.
func (bld *Builder) Difference(dim int) *Component {
	return bld.newCombine(dim, CombineSubtract)
}

// Intersection keeps the region shared by all children.
func (bld *Builder) Intersection(dim int) *Component {
	return bld.newCombine(dim, CombineIntersect)
}

// SmoothUnion joins the children with a smoothing blend of size k.
func (bld *Builder) SmoothUnion(dim int, k float32) *Component {
	if k <= 0 {
		bld.shapeErrorf("smooth union parameter must be positive")
	}
	c := bld.newCombine(dim, CombineSmoothUnion)
	c.Functions = append(c.Functions, glexpr.Function{Name: "params", Type: "void"})
	property(c, &c.Functions[0], "float", "k", k)
	return c
}

func (bld *Builder) newDomain(name string, dim int, op DomainOp) (*Component, *glexpr.Function, ast) {
	if dim != 2 && dim != 3 {
		bld.shapeErrorf("domain dimension must be 2 or 3, got %d", dim)
	}
	c := bld.reg().New(name, KindDomain)
	c.Dim = dim
	c.Domain = op
	c.Functions = append(c.Functions, glexpr.Function{
		Name:   "domain",
		Type:   "void",
		Params: []glexpr.Param{{Type: glexpr.VecType(dim), Name: "p", Out: true}},
	})
	return c, &c.Functions[0], ast{a: &c.Arena}
}

// Repeat repeats its children infinitely along every axis with the given spacing.
func (bld *Builder) Repeat(dim int, spacing float32) *Component {
	if spacing <= 0 {
		bld.shapeErrorf("repeat spacing must be positive")
	}
	c, fn, e := bld.newDomain("repeat", dim, DomainRepeat)
	a := e.a
	vt := glexpr.VecType(dim)
	property(c, fn, "float", "spacing", spacing)
	// p = p - spacing * round(p / spacing);
	fn.Body = append(fn.Body, glexpr.Statement{
		a.Ref(vt, "p"), a.Op("="), a.Ref(vt, "p"), a.Op("-"), a.Ref("float", "spacing"), a.Op("*"),
		e.call(vt, "round", e.st(a.Ref(vt, "p"), a.Op("/"), a.Ref("float", "spacing"))),
	})
	c.Transform.Radius = largenum
	return c
}

// Mirror reflects its children across the planes normal to the selected axes.
// z is ignored in 2D.
func (bld *Builder) Mirror(dim int, x, y, z bool) *Component {
	c, fn, e := bld.newDomain("mirror", dim, DomainMirror)
	a := e.a
	vt := glexpr.VecType(dim)
	axes := []float32{b2f(x), b2f(y), b2f(z)}[:dim]
	property(c, fn, vt, "axes", axes...)
	// p = mix(p, abs(p), axes);
	fn.Body = append(fn.Body, glexpr.Statement{
		a.Ref(vt, "p"), a.Op("="),
		e.call(vt, "mix", e.ref(vt, "p"), e.st(e.call(vt, "abs", e.ref(vt, "p"))), e.ref(vt, "axes")),
	})
	return c
}

// Group creates a component that only carries a transform for its children.
func (bld *Builder) Group(dim int) *Component {
	if dim != 2 && dim != 3 {
		bld.shapeErrorf("group dimension must be 2 or 3, got %d", dim)
	}
	c := bld.reg().New("group", KindGroup)
	c.Dim = dim
	return c
}

func b2f(b bool) float32 {
	if b {
		return 1
	}
	return 0
}
