package sdfgraph

import (
	"strings"
	"testing"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

func TestKind(t *testing.T) {
	for _, k := range []Kind{KindShape2, KindShape3, KindCombine, KindDomain, KindGroup} {
		if !k.Spatial() {
			t.Errorf("%s should be spatial", k)
		}
	}
	for _, k := range []Kind{KindColorize, KindBackground, KindCamera, KindMaterial, KindGlobal, KindRender2, KindRender3} {
		if k.Spatial() {
			t.Errorf("%s should not be spatial", k)
		}
		if k.Leaf() {
			t.Errorf("%s should not be a leaf", k)
		}
	}
	if !KindShape3.Leaf() || KindCombine.Leaf() {
		t.Error("leaf classification")
	}
	if Kind(200).String() != "Kind(200)" {
		t.Error(Kind(200).String())
	}
}

func TestPropertyEditBumpsVersion(t *testing.T) {
	var reg Registry
	bld := NewBuilder(&reg)
	s := bld.NewSphere(1)
	v0 := s.Version()
	r, ok := s.Property("r")
	if !ok || len(r) != 1 || r[0] != 1 {
		t.Fatalf("sphere radius property: %v %v", r, ok)
	}
	err := s.SetProperty("r", 2)
	if err != nil {
		t.Fatal(err)
	}
	if s.Version() == v0 {
		t.Error("SetProperty must bump version")
	}
	if got := s.PropertyValue("r", 0); got != 2 {
		t.Errorf("got radius %v after edit", got)
	}
	if err := s.SetProperty("nope", 1); err == nil {
		t.Error("expected error editing missing property")
	}
	v1 := s.Version()
	s.SetTransform(Transform{Pos: ms3.Vec{X: 1}})
	if s.Version() == v1 {
		t.Error("SetTransform must bump version")
	}
}

func TestStamp(t *testing.T) {
	var reg Registry
	bld := NewBuilder(&reg)
	scene := NewScene(&reg, 3)
	u := bld.Union(3)
	a := bld.NewSphere(1)
	b := bld.NewSphere(0.5)
	item := scene.Item(u.ID, scene.Item(a.ID), scene.Item(b.ID))
	s0 := reg.Stamp(item)
	if s0 != reg.Stamp(item) {
		t.Fatal("stamp not deterministic")
	}
	b.Touch()
	s1 := reg.Stamp(item)
	if s1 == s0 {
		t.Error("editing a descendant must change the stamp")
	}
	item.Children[0], item.Children[1] = item.Children[1], item.Children[0]
	if reg.Stamp(item) == s1 {
		t.Error("reordering children must change the stamp")
	}
	g := bld.NewGlobal("speed", "float", 1)
	s2 := reg.Stamp(item)
	g.SetProperty("speed", 3)
	if reg.Stamp(item) == s2 {
		t.Error("editing a global must change the stamp")
	}
}

func TestEvaluatorUnionIDs(t *testing.T) {
	var reg Registry
	bld := NewBuilder(&reg)
	scene := NewScene(&reg, 3)
	u := bld.Union(3)
	a := bld.NewSphere(1)
	b := bld.NewSphere(1)
	b.SetTransform(Transform{Pos: ms3.Vec{X: 5}})
	item := scene.Item(u.ID, scene.Item(a.ID), scene.Item(b.ID))
	ev := Evaluator{Reg: &reg, Item: item, IDStart: 10}
	d, id := ev.Distance(ms3.Vec{})
	if d != -1 || id != 10 {
		t.Errorf("at first sphere center got d=%v id=%d", d, id)
	}
	d, id = ev.Distance(ms3.Vec{X: 5})
	if d != -1 || id != 11 {
		t.Errorf("at second sphere center got d=%v id=%d", d, id)
	}
	// Exactly between both spheres the left operand wins.
	_, id = ev.Distance(ms3.Vec{X: 2.5})
	if id != 10 {
		t.Errorf("tie must resolve to left operand, got id %d", id)
	}
	n := ev.Normal(ms3.Vec{X: -1}, 1e-3)
	if math32.Abs(n.X+1) > 1e-3 {
		t.Errorf("bad normal %v", n)
	}
}

func TestLocalRoundTrip(t *testing.T) {
	tf := Transform{Pos: ms3.Vec{X: 1, Y: -2, Z: 3}, Rot: ms3.Vec{X: 0.3, Y: -1.1, Z: 2}}
	p := ms3.Vec{X: 0.5, Y: 4, Z: -7}
	got := FromLocal(ToLocal(p, tf), tf)
	if ms3.Norm(ms3.Sub(got, p)) > 1e-4 {
		t.Errorf("round trip got %v want %v", got, p)
	}
}

func TestSceneValidate(t *testing.T) {
	var reg Registry
	bld := NewBuilder(&reg)
	scene := NewScene(&reg, 3)
	scene.Add(scene.Item(bld.NewCircle(1).ID))
	err := scene.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"2D in a 3D scene", "camera", "renderer"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
	scene.Shapes = nil
	scene.Add(scene.Item(bld.NewSphere(1).ID))
	scene.Camera = bld.NewPinholeCamera(ms3.Vec{Z: -5}, ms3.Vec{}, 1).ID
	scene.Renderer = bld.NewRenderer3(1).ID
	scene.Post = append(scene.Post, bld.NewColorize(2.2, 0.2).ID)
	if err := scene.Validate(); err != nil {
		t.Fatal(err)
	}
	scene.Add(scene.Item(scene.Shapes[0].Component))
	if err := scene.Validate(); err == nil || !strings.Contains(err.Error(), "already is top level") {
		t.Errorf("duplicate top level component: %v", err)
	}
	scene.Shapes = scene.Shapes[:1]
	scene.Add(scene.Item(bld.NewSphere(2).ID, scene.Item(bld.NewBox(1, 1, 1, 0).ID)))
	if err := scene.Validate(); err == nil || !strings.Contains(err.Error(), "has 1 children") {
		t.Errorf("leaf shape with children: %v", err)
	}
	scene.Shapes = scene.Shapes[:1]

	scene2 := NewScene(&reg, 2)
	scene2.Add(scene2.Item(bld.NewCircle(1).ID))
	scene2.Renderer = bld.NewRenderer2(1).ID
	scene2.Camera = scene.Camera
	if err := scene2.Validate(); err == nil || !strings.Contains(err.Error(), "3D camera") {
		t.Errorf("3D camera in 2D scene: %v", err)
	}
	scene2.Camera = bld.NewViewCamera2(ms2.Vec{}, 1).ID
	if err := scene2.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestBuilderAccumulatesErrors(t *testing.T) {
	var reg Registry
	bld := Builder{Reg: &reg, NoDimensionPanic: true}
	bld.NewSphere(-1)
	bld.NewBox(1, 1, 0, 0)
	err := bld.Err()
	if err == nil {
		t.Fatal("expected accumulated errors")
	}
	if !strings.Contains(err.Error(), "sphere") || !strings.Contains(err.Error(), "box") {
		t.Errorf("unexpected error %q", err)
	}
	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic with NoDimensionPanic unset")
			}
		}()
		NewBuilder(&reg).NewSphere(0)
	}()
}

func TestFindDef(t *testing.T) {
	var reg Registry
	bld := NewBuilder(&reg)
	box := bld.NewBox(1, 2, 3, 0.1)
	id, ok := box.FindDef("q")
	if !ok || box.IsProperty(id) {
		t.Errorf("q should be found and not be a property: %v %v", id, ok)
	}
	size, _ := box.Property("size")
	if len(size) != 3 || size[1] != 2 {
		t.Errorf("size property %v", size)
	}
}
