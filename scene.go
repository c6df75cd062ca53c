package sdfgraph

import (
	"errors"
	"fmt"

	"github.com/soypat/geometry/ms3"
)

// StageItem is a node of the scene hierarchy.
type StageItem struct {
	// ID identifies the node for the Timeline collaborator.
	ID        uint32
	Component ComponentID
	Children  []*StageItem
}

// Walk calls fn for item and its descendants in depth first pre-order.
func (item *StageItem) Walk(fn func(it *StageItem, depth int)) {
	item.walk(fn, 0)
}

func (item *StageItem) walk(fn func(it *StageItem, depth int), depth int) {
	fn(item, depth)
	for _, child := range item.Children {
		child.walk(fn, depth+1)
	}
}

// Leaves returns the amount of leaf shapes under item, item included.
func (item *StageItem) Leaves(reg *Registry) (n int) {
	item.Walk(func(it *StageItem, _ int) {
		if c := reg.Get(it.Component); c != nil && c.Kind.Leaf() {
			n++
		}
	})
	return n
}

// Light is a directional light. The sun is the first light of every scene.
type Light struct {
	// Dir points from the surface towards the light.
	Dir       ms3.Vec
	Color     ms3.Vec
	Intensity float32
}

// Scene is the renderable arrangement of components.
type Scene struct {
	Registry *Registry
	Dim      int
	// Shapes are the top level objects. Each one compiles to its own program.
	Shapes     []*StageItem
	Camera     ComponentID
	Background ComponentID
	// Ground is an optional 3D shape threaded into the first object's program.
	Ground   ComponentID
	Renderer ComponentID
	// Post are [KindColorize] passes run in order before the final composite.
	Post   []ComponentID
	Sun    Light
	Lights []Light
	nextID uint32
}

// NewScene returns an empty scene of dimension dim with a default sun.
func NewScene(reg *Registry, dim int) *Scene {
	return &Scene{
		Registry: reg,
		Dim:      dim,
		Sun: Light{
			Dir:       ms3.Unit(ms3.Vec{X: 0.5, Y: 1, Z: -0.3}),
			Color:     ms3.Vec{X: 1, Y: 0.95, Z: 0.9},
			Intensity: 1,
		},
	}
}

// Item creates a stage item for component c with the given children.
func (s *Scene) Item(c ComponentID, children ...*StageItem) *StageItem {
	s.nextID++
	return &StageItem{ID: s.nextID, Component: c, Children: children}
}

// Add appends top level objects to the shape stage.
func (s *Scene) Add(items ...*StageItem) {
	s.Shapes = append(s.Shapes, items...)
}

// AllLights returns the sun followed by the scene lights.
func (s *Scene) AllLights() []Light {
	lights := make([]Light, 0, 1+len(s.Lights))
	lights = append(lights, s.Sun)
	return append(lights, s.Lights...)
}

// Validate checks component references and kinds of the scene. Top level objects
// must be distinct components since compiled programs are cached per component.
func (s *Scene) Validate() error {
	if s.Registry == nil {
		return errors.New("scene has no registry")
	}
	if s.Dim != 2 && s.Dim != 3 {
		return fmt.Errorf("scene dimension must be 2 or 3, got %d", s.Dim)
	}
	var errs []error
	expect := func(what string, id ComponentID, kinds ...Kind) {
		c := s.Registry.Get(id)
		if c == nil {
			errs = append(errs, fmt.Errorf("%s: missing component %d", what, id))
			return
		}
		for _, k := range kinds {
			if c.Kind == k {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: component %q has kind %s", what, c.Name, c.Kind))
	}
	top := make(map[ComponentID]int)
	for i, item := range s.Shapes {
		if j, ok := top[item.Component]; ok {
			errs = append(errs, fmt.Errorf("shape %d: component %d already is top level object %d", i, item.Component, j))
		}
		top[item.Component] = i
		item.Walk(func(it *StageItem, _ int) {
			c := s.Registry.Get(it.Component)
			switch {
			case c == nil:
				errs = append(errs, fmt.Errorf("shape %d: missing component %d", i, it.Component))
			case !c.Kind.Spatial():
				errs = append(errs, fmt.Errorf("shape %d: component %q of kind %s is not spatial", i, c.Name, c.Kind))
			case c.Dim != s.Dim:
				errs = append(errs, fmt.Errorf("shape %d: component %q is %dD in a %dD scene", i, c.Name, c.Dim, s.Dim))
			case c.Kind.Leaf() && len(it.Children) > 0:
				errs = append(errs, fmt.Errorf("shape %d: leaf shape %q has %d children", i, c.Name, len(it.Children)))
			}
		})
	}
	if s.Dim == 3 {
		expect("camera", s.Camera, KindCamera)
		expect("renderer", s.Renderer, KindRender3)
		if s.Ground != 0 {
			expect("ground", s.Ground, KindShape3)
		}
	} else {
		expect("camera", s.Camera, KindCamera)
		expect("renderer", s.Renderer, KindRender2)
	}
	if cam := s.Registry.Get(s.Camera); cam != nil && cam.Kind == KindCamera && cam.Dim != s.Dim {
		errs = append(errs, fmt.Errorf("camera: %dD camera %q in %dD scene", cam.Dim, cam.Name, s.Dim))
	}
	if s.Background != 0 {
		expect("background", s.Background, KindBackground)
	}
	for _, id := range s.Post {
		expect("post", id, KindColorize)
	}
	return errors.Join(errs...)
}
