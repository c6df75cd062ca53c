package sdfgraph

import (
	"fmt"
	"strconv"

	"github.com/soypat/sdfgraph/glexpr"
)

// ComponentID addresses a [Component] inside a [Registry]. The zero value is nil.
type ComponentID uint32

// String returns the qualifier appended to local variable names of the component.
func (id ComponentID) String() string { return "c" + strconv.FormatUint(uint64(id), 10) }

// Component is a named, independently compilable unit.
type Component struct {
	ID   ComponentID
	Name string
	Kind Kind
	// Dim is 2 or 3 for spatial components.
	Dim   int
	Arena glexpr.Arena
	// Functions are emitted or inlined by the component's template.
	Functions []glexpr.Function
	// GlobalCode holds file scope statements. For [KindGlobal] components it
	// holds the global variable definitions.
	GlobalCode []glexpr.Statement
	// Properties holds the IDs of the variable definition fragments exposed for editing.
	Properties []uint64
	Transform  Transform
	Shape      Shape
	Combine    CombineOp
	Domain     DomainOp
	// Material is the [KindMaterial] component shading a leaf shape. Zero uses the default material.
	Material ComponentID
	version  uint64
}

// Version returns the edit counter of the component. Every edit increments it.
func (c *Component) Version() uint64 { return c.version }

// Touch marks the component as edited. Callers editing Arena directly must call Touch.
func (c *Component) Touch() { c.version++ }

// SetTransform sets the component's transform values.
func (c *Component) SetTransform(t Transform) {
	c.Transform = t
	c.Touch()
}

// Expose registers the definition fragment def as an editable property. def must be
// the first fragment of a statement of the form "type name = constant".
func (c *Component) Expose(def glexpr.Handle) {
	c.Properties = append(c.Properties, c.Arena.Get(def).ID)
	c.Touch()
}

// Statements calls fn for every top level statement of the component: global code first,
// then function bodies in order. Iteration stops when fn returns false.
func (c *Component) Statements(fn func(st glexpr.Statement) bool) {
	for _, st := range c.GlobalCode {
		if !fn(st) {
			return
		}
	}
	for i := range c.Functions {
		for _, st := range c.Functions[i].Body {
			if !fn(st) {
				return
			}
		}
	}
}

// PropertyDef returns the definition and constant value fragments of property id.
func (c *Component) PropertyDef(id uint64) (def, value glexpr.Handle, ok bool) {
	c.Statements(func(st glexpr.Statement) bool {
		if len(st) < 3 {
			return true
		}
		f := c.Arena.Get(st[0])
		if f.ID != id || f.Kind != glexpr.KindVarDef {
			return true
		}
		v := c.Arena.Get(st[2])
		if c.Arena.Get(st[1]).Name == "=" && v.Kind == glexpr.KindConstant {
			def, value, ok = st[0], st[2], true
		}
		return false
	})
	return def, value, ok
}

// IsProperty reports whether fragment id is an exposed property.
func (c *Component) IsProperty(id uint64) bool {
	for _, p := range c.Properties {
		if p == id {
			return true
		}
	}
	return false
}

func (c *Component) propertyByName(name string) (value glexpr.Handle, ok bool) {
	for _, id := range c.Properties {
		def, val, found := c.PropertyDef(id)
		if found && c.Arena.Get(def).Name == name {
			return val, true
		}
	}
	return 0, false
}

// Property returns the authored values of the property called name.
func (c *Component) Property(name string) ([]float32, bool) {
	val, ok := c.propertyByName(name)
	if !ok {
		return nil, false
	}
	return c.Arena.ConstValues(val), true
}

// PropertyValue returns the first authored scalar of the property called name or
// fallback when the component has no such property.
func (c *Component) PropertyValue(name string, fallback float32) float32 {
	v, ok := c.Property(name)
	if !ok || len(v) == 0 {
		return fallback
	}
	return v[0]
}

// SetProperty edits the authored value of the property called name.
func (c *Component) SetProperty(name string, v ...float32) error {
	val, ok := c.propertyByName(name)
	if !ok {
		return fmt.Errorf("component %q: no property %q", c.Name, name)
	}
	err := c.Arena.SetConstValues(val, v...)
	if err != nil {
		return err
	}
	c.Touch()
	return nil
}

// FindDef returns the ID of the first variable definition called name.
func (c *Component) FindDef(name string) (id uint64, ok bool) {
	c.Statements(func(st glexpr.Statement) bool {
		c.Arena.Walk(st, func(h glexpr.Handle, f *glexpr.Fragment) bool {
			if !ok && f.Kind == glexpr.KindVarDef && f.Name == name {
				id, ok = f.ID, true
			}
			return !ok
		})
		return !ok
	})
	return id, ok
}

// Registry is the arena of components. IDs are never reused.
type Registry struct {
	comps []*Component
}

// New adds a new empty component of the given kind and returns it.
func (r *Registry) New(name string, kind Kind) *Component {
	c := &Component{Name: name, Kind: kind, Dim: kind.Dim()}
	r.Add(c)
	return c
}

// Add stores c in the registry, assigning its ID.
func (r *Registry) Add(c *Component) ComponentID {
	r.comps = append(r.comps, c)
	c.ID = ComponentID(len(r.comps))
	return c.ID
}

// Get returns the component addressed by id or nil.
func (r *Registry) Get(id ComponentID) *Component {
	if id == 0 || int(id) > len(r.comps) {
		return nil
	}
	return r.comps[id-1]
}

// Len returns the amount of components in the registry.
func (r *Registry) Len() int { return len(r.comps) }

// GlobalVar resolves a global variable name to the [KindGlobal] component defining it.
// The lowest component ID wins when more than one global defines name.
func (r *Registry) GlobalVar(name string) (ComponentID, uint64, bool) {
	for _, c := range r.comps {
		if c.Kind != KindGlobal {
			continue
		}
		for _, st := range c.GlobalCode {
			if len(st) == 0 {
				continue
			}
			f := c.Arena.Get(st[0])
			if f.Kind == glexpr.KindVarDef && f.Name == name {
				return c.ID, f.ID, true
			}
		}
	}
	return 0, 0, false
}

// Stamp returns a value that changes whenever any component reachable from item is
// edited, including materials of its leaves and global components.
func (r *Registry) Stamp(item *StageItem) uint64 {
	var x uint64
	var buf []byte
	for _, c := range r.comps {
		if c.Kind == KindGlobal {
			buf = strconv.AppendUint(buf[:0], uint64(c.ID)<<32|c.version, 16)
			x = glexpr.Hash(buf, x)
		}
	}
	item.Walk(func(it *StageItem, depth int) {
		c := r.Get(it.Component)
		if c == nil {
			return
		}
		buf = strconv.AppendUint(buf[:0], uint64(depth)<<48|uint64(c.ID)<<32|c.version, 16)
		x = glexpr.Hash(buf, x)
		if m := r.Get(c.Material); m != nil {
			buf = strconv.AppendUint(buf[:0], uint64(m.ID)<<32|m.version, 16)
			x = glexpr.Hash(buf, x)
		}
	})
	return x
}
