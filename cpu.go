package sdfgraph

import (
	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

const (
	largenum = 1e20
	// epstol is used to check for badly conditioned denominators
	// such as lengths used for normalization.
	epstol = 6e-7
)

// Evaluator evaluates the distance field of a stage item tree on the CPU from the
// authored property values. Object ids are assigned in the same traversal order the
// program flattener uses, so results can be compared against GPU picking.
type Evaluator struct {
	Reg     *Registry
	Item    *StageItem
	IDStart int
}

// Distance returns the signed distance at p and the object id of the nearest leaf.
// id is -1 when the tree has no leaves.
func (ev *Evaluator) Distance(p ms3.Vec) (d float32, id int) {
	next := ev.IDStart
	return ev.eval(ev.Item, Transform{}, p, &next)
}

// Normal returns the normalized central differences gradient at p.
func (ev *Evaluator) Normal(p ms3.Vec, step float32) ms3.Vec {
	dx1, _ := ev.Distance(ms3.Vec{X: p.X + step, Y: p.Y, Z: p.Z})
	dx0, _ := ev.Distance(ms3.Vec{X: p.X - step, Y: p.Y, Z: p.Z})
	dy1, _ := ev.Distance(ms3.Vec{X: p.X, Y: p.Y + step, Z: p.Z})
	dy0, _ := ev.Distance(ms3.Vec{X: p.X, Y: p.Y - step, Z: p.Z})
	dz1, _ := ev.Distance(ms3.Vec{X: p.X, Y: p.Y, Z: p.Z + step})
	dz0, _ := ev.Distance(ms3.Vec{X: p.X, Y: p.Y, Z: p.Z - step})
	n := ms3.Vec{X: dx1 - dx0, Y: dy1 - dy0, Z: dz1 - dz0}
	if ms3.Norm(n) < epstol {
		return ms3.Vec{Z: -1}
	}
	return ms3.Unit(n)
}

func (ev *Evaluator) eval(item *StageItem, parent Transform, p ms3.Vec, next *int) (float32, int) {
	c := ev.Reg.Get(item.Component)
	if c == nil || !c.Kind.Spatial() {
		return largenum, -1
	}
	abs := parent.Add(c.Transform)
	local := ToLocal(p, abs)
	switch c.Kind {
	case KindShape2, KindShape3:
		id := *next
		*next++
		return shapeDistance(c, local), id
	case KindDomain:
		local = domainRewrite(c, local)
		p = FromLocal(local, abs)
	}
	d, id := float32(largenum), -1
	for i, child := range item.Children {
		cd, cid := ev.eval(child, abs, p, next)
		if i == 0 {
			d, id = cd, cid
			continue
		}
		op := CombineUnion
		if c.Kind == KindCombine {
			op = c.Combine
		}
		d, id = combine(op, c.PropertyValue("k", 0.1), d, id, cd, cid)
	}
	return d, id
}

func combine(op CombineOp, k, a float32, aid int, b float32, bid int) (float32, int) {
	switch op {
	case CombineSubtract:
		return maxf(a, -b), aid
	case CombineIntersect:
		if b > a {
			return b, bid
		}
		return a, aid
	case CombineSmoothUnion:
		h := clampf(0.5+0.5*(b-a)/k, 0, 1)
		d := mixf(b, a, h) - k*h*(1-h)
		if b < a {
			return d, bid
		}
		return d, aid
	}
	if b < a {
		return b, bid
	}
	return a, aid
}

func shapeDistance(c *Component, p ms3.Vec) float32 {
	switch c.Shape {
	case ShapeSphere:
		return ms3.Norm(p) - c.PropertyValue("r", 0)
	case ShapeBox:
		size := propVec3(c, "size")
		r := c.PropertyValue("rounding", 0)
		q := ms3.AddScalar(r, ms3.Sub(ms3.AbsElem(p), ms3.Scale(0.5, size)))
		return ms3.Norm(ms3.MaxElem(q, ms3.Vec{})) + minf(maxf(q.X, maxf(q.Y, q.Z)), 0.0) - r
	case ShapeCylinder:
		r := c.PropertyValue("r", 0)
		h := c.PropertyValue("h", 0)
		round := c.PropertyValue("rounding", 0)
		p = ms3.Vec{X: p.X, Y: p.Z, Z: p.Y}
		dx := hypotf(p.X, p.Z) - r + round
		dy := absf(p.Y) - h/2 + round
		return minf(maxf(dx, dy), 0) + hypotf(maxf(dx, 0), maxf(dy, 0)) - round
	case ShapeTorus:
		q := ms2.Vec{X: hypotf(p.X, p.Y) - c.PropertyValue("R", 0), Y: p.Z}
		return ms2.Norm(q) - c.PropertyValue("r", 0)
	case ShapePlane:
		return ms3.Dot(p, propVec3(c, "normal")) + c.PropertyValue("offset", 0)
	case ShapeCircle:
		return hypotf(p.X, p.Y) - c.PropertyValue("r", 0)
	case ShapeRect:
		size, _ := c.Property("size")
		if len(size) < 2 {
			return largenum
		}
		dx := absf(p.X) - size[0]/2
		dy := absf(p.Y) - size[1]/2
		return hypotf(maxf(dx, 0), maxf(dy, 0)) + minf(maxf(dx, dy), 0)
	}
	return largenum
}

func domainRewrite(c *Component, p ms3.Vec) ms3.Vec {
	switch c.Domain {
	case DomainRepeat:
		s := c.PropertyValue("spacing", 1)
		p = ms3.Vec{
			X: p.X - s*math32.Round(p.X/s),
			Y: p.Y - s*math32.Round(p.Y/s),
			Z: p.Z - s*math32.Round(p.Z/s),
		}
		if c.Dim == 2 {
			p.Z = 0
		}
	case DomainMirror:
		axes, _ := c.Property("axes")
		if len(axes) > 0 && axes[0] != 0 {
			p.X = absf(p.X)
		}
		if len(axes) > 1 && axes[1] != 0 {
			p.Y = absf(p.Y)
		}
		if len(axes) > 2 && axes[2] != 0 {
			p.Z = absf(p.Z)
		}
	}
	return p
}

func propVec3(c *Component, name string) ms3.Vec {
	v, _ := c.Property(name)
	var out ms3.Vec
	if len(v) > 0 {
		out.X = v[0]
	}
	if len(v) > 1 {
		out.Y = v[1]
	}
	if len(v) > 2 {
		out.Z = v[2]
	}
	return out
}

// ToLocal maps p into the frame of t: translation is removed, then the
// rotations are undone in Z, Y, X order.
func ToLocal(p ms3.Vec, t Transform) ms3.Vec {
	p = ms3.Sub(p, t.Pos)
	p = rotZ(p, -t.Rot.Z)
	p = rotY(p, -t.Rot.Y)
	return rotX(p, -t.Rot.X)
}

// FromLocal is the inverse of [ToLocal].
func FromLocal(p ms3.Vec, t Transform) ms3.Vec {
	p = rotX(p, t.Rot.X)
	p = rotY(p, t.Rot.Y)
	p = rotZ(p, t.Rot.Z)
	return ms3.Add(p, t.Pos)
}

func rotX(p ms3.Vec, a float32) ms3.Vec {
	if a == 0 {
		return p
	}
	s, c := math32.Sincos(a)
	return ms3.Vec{X: p.X, Y: c*p.Y - s*p.Z, Z: s*p.Y + c*p.Z}
}

func rotY(p ms3.Vec, a float32) ms3.Vec {
	if a == 0 {
		return p
	}
	s, c := math32.Sincos(a)
	return ms3.Vec{X: c*p.X + s*p.Z, Y: p.Y, Z: -s*p.X + c*p.Z}
}

func rotZ(p ms3.Vec, a float32) ms3.Vec {
	if a == 0 {
		return p
	}
	s, c := math32.Sincos(a)
	return ms3.Vec{X: c*p.X - s*p.Y, Y: s*p.X + c*p.Y, Z: p.Z}
}

func minf(a, b float32) float32 {
	return math32.Min(a, b)
}

func maxf(a, b float32) float32 {
	return math32.Max(a, b)
}

func absf(a float32) float32 {
	return math32.Abs(a)
}

func hypotf(a, b float32) float32 {
	return math32.Hypot(a, b)
}

func clampf(v, Min, Max float32) float32 {
	if v < Min {
		return Min
	} else if v > Max {
		return Max
	}
	return v
}

func mixf(x, y, a float32) float32 {
	return x*(1-a) + y*a
}
