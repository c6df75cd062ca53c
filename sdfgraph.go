// Package sdfgraph models signed distance field scenes as a graph of
// independently compilable components. Components are authored as typed
// expression trees (see [glexpr]) and live in a [Registry] arena where they are
// addressed by [ComponentID]. A [Scene] arranges components into a hierarchy of
// [StageItem]s which the glbuild package flattens into compute programs.
package sdfgraph

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/soypat/geometry/ms3"
)

// Kind is the closed set of component kinds. Each kind maps to exactly one
// program template.
type Kind uint8

const (
	kindUndefined Kind = iota
	KindColorize
	KindBackground
	KindCamera
	KindShape2
	KindShape3
	KindCombine
	KindDomain
	KindGroup
	KindMaterial
	KindGlobal
	KindRender2
	KindRender3
)

func (k Kind) String() string {
	switch k {
	case KindColorize:
		return "colorize"
	case KindBackground:
		return "background"
	case KindCamera:
		return "camera"
	case KindShape2:
		return "shape2"
	case KindShape3:
		return "shape3"
	case KindCombine:
		return "combine"
	case KindDomain:
		return "domain"
	case KindGroup:
		return "group"
	case KindMaterial:
		return "material"
	case KindGlobal:
		return "global"
	case KindRender2:
		return "render2"
	case KindRender3:
		return "render3"
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Spatial reports whether components of the kind carry a transform and take part
// in the shape hierarchy.
func (k Kind) Spatial() bool {
	switch k {
	case KindShape2, KindShape3, KindCombine, KindDomain, KindGroup:
		return true
	}
	return false
}

// Leaf reports whether the kind is a primitive shape that receives an object id.
func (k Kind) Leaf() bool { return k == KindShape2 || k == KindShape3 }

// Dim returns the intrinsic dimension of the kind or 0 when it depends on the scene.
func (k Kind) Dim() int {
	switch k {
	case KindShape2, KindRender2:
		return 2
	case KindShape3, KindRender3, KindBackground, KindMaterial:
		return 3
	}
	return 0
}

// Transform holds the scalar transform values of spatial components.
// 2D components use Pos.X, Pos.Y and Rot.Z.
type Transform struct {
	Pos ms3.Vec
	// Rot holds rotations in radians about the X, Y and Z axes, applied in that order.
	Rot ms3.Vec
	// Radius is a bounding radius hint. It does not take part in the compiled program.
	Radius float32
}

// Add returns the sum of the transform values of t and u. Radius is kept from t.
func (t Transform) Add(u Transform) Transform {
	t.Pos = ms3.Add(t.Pos, u.Pos)
	t.Rot = ms3.Add(t.Rot, u.Rot)
	return t
}

// Values returns the transform slot values for dimension dim in slot order.
func (t Transform) Values(dim int) []float32 {
	if dim == 2 {
		return []float32{t.Pos.X, t.Pos.Y, t.Rot.Z}
	}
	return []float32{t.Pos.X, t.Pos.Y, t.Pos.Z, t.Rot.X, t.Rot.Y, t.Rot.Z}
}

var (
	transformNames2 = []string{"posX", "posY", "rot"}
	transformNames3 = []string{"posX", "posY", "posZ", "rotX", "rotY", "rotZ"}
)

// TransformNames returns the names of the transform slots of dimension dim in slot order.
func TransformNames(dim int) []string {
	if dim == 2 {
		return transformNames2
	}
	return transformNames3
}

// CombineOp is the boolean operation of a [KindCombine] component.
type CombineOp uint8

const (
	CombineUnion CombineOp = iota
	CombineSubtract
	CombineIntersect
	// CombineSmoothUnion blends with the "k" property of the component.
	CombineSmoothUnion
)

func (op CombineOp) String() string {
	switch op {
	case CombineUnion:
		return "union"
	case CombineSubtract:
		return "subtract"
	case CombineIntersect:
		return "intersect"
	case CombineSmoothUnion:
		return "smoothunion"
	}
	return "CombineOp(" + strconv.Itoa(int(op)) + ")"
}

// FuncName returns the name of the header function implementing op.
func (op CombineOp) FuncName() string {
	switch op {
	case CombineSubtract:
		return "opSubtract"
	case CombineIntersect:
		return "opIntersect"
	case CombineSmoothUnion:
		return "opSmoothUnion"
	}
	return "opUnion"
}

// Shape identifies the primitive authored by a leaf component so it can be
// evaluated on the CPU. Hand-authored leaves are ShapeCustom.
type Shape uint8

const (
	ShapeCustom Shape = iota
	ShapeSphere
	ShapeBox
	ShapeCylinder
	ShapeTorus
	ShapePlane
	ShapeCircle
	ShapeRect
)

// DomainOp identifies the position rewrite of a [KindDomain] component.
type DomainOp uint8

const (
	DomainCustom DomainOp = iota
	DomainRepeat
	DomainMirror
)

// Builder creates components in a [Registry].
// Provides error handling strategies with panics or error accumulation during component creation.
type Builder struct {
	NoDimensionPanic bool
	Reg              *Registry
	accumErrs        []error
}

// NewBuilder returns a Builder that adds components to reg.
func NewBuilder(reg *Registry) *Builder {
	return &Builder{Reg: reg}
}

func (bld *Builder) Err() error {
	if len(bld.accumErrs) == 0 {
		return nil
	}
	return errors.Join(bld.accumErrs...)
}

func (bld *Builder) shapeErrorf(msg string, args ...any) {
	if !bld.NoDimensionPanic {
		panic(fmt.Sprintf(msg, args...))
	}
	bld.accumErrs = append(bld.accumErrs, fmt.Errorf(msg, args...))
}

func (bld *Builder) reg() *Registry {
	if bld.Reg == nil {
		bld.Reg = &Registry{}
	}
	return bld.Reg
}
