package glbuild

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/soypat/sdfgraph"
	"github.com/soypat/sdfgraph/glbuild/glsllib"
	"github.com/soypat/sdfgraph/glexpr"
)

// Stream flattens a hierarchy of stage items into the scene function of one shape program.
// Errors are sticky: once an operation fails the following ones are no-ops and
// [Stream.CloseStream] returns the first error.
type Stream struct {
	pg      *program
	kind    sdfgraph.Kind
	dim     int
	idStart int
	nextID  int
	// body is the body of the scene function.
	body  []byte
	tail  []byte
	stack []*frame
	roots int
	tx    []txGroup
	// materials maps material components to their emitted function.
	materials map[sdfgraph.ComponentID]string
	matCases  []matCase
	closed    bool
	err       error
}

// frame is a stage item being flattened.
type frame struct {
	item *sdfgraph.StageItem
	comp *sdfgraph.Component
	q    string
	// base is the position variable handed to the item's children.
	base string
	// local is the position in the item's frame, empty when not emitted.
	local   string
	leaves  int
	pushed  bool
	result  string
	results []string
	k       string
}

type txGroup struct {
	q         string
	item      *sdfgraph.StageItem
	comp      sdfgraph.ComponentID
	ancestors []sdfgraph.ComponentID
}

type matCase struct {
	id int
	fn string
}

// OpenStream begins flattening a program of the given shape kind. camera, ground
// and background are optional components threaded into the program as fixed inputs.
// Leaf shapes receive object ids starting at idStart. scene, when not nil, is the
// scene the program belongs to and must match the stream's dimension.
func (s *Synthesizer) OpenStream(kind sdfgraph.Kind, camera, ground, background sdfgraph.ComponentID, idStart int, scene *sdfgraph.Scene) (*Stream, error) {
	if !kind.Leaf() {
		return nil, fmt.Errorf("stream kind must be a shape kind, got %s", kind)
	}
	dim := kind.Dim()
	if scene != nil && scene.Dim != dim {
		return nil, fmt.Errorf("%dD stream for %dD scene", dim, scene.Dim)
	}
	st := &Stream{
		kind:      kind,
		dim:       dim,
		idStart:   idStart,
		nextID:    idStart,
		materials: make(map[sdfgraph.ComponentID]string),
	}
	st.pg = s.newProgram("", kind, 0)
	st.pg.art.IDStart = idStart
	fns := glsllib.CombineOps()
	if dim == 2 {
		fns = append(fns, glsllib.Transform2()...)
	} else {
		fns = append(fns, glsllib.Transform3()...)
	}
	if err := st.pg.fns.addLib(fns...); err != nil {
		return nil, err
	}
	if camera != 0 {
		if err := st.openCamera(camera); err != nil {
			return nil, err
		}
	}
	if err := st.openBackground(background); err != nil {
		return nil, err
	}
	if ground != 0 {
		if err := st.openGround(ground); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func (st *Stream) fixed(id sdfgraph.ComponentID, what string, kind sdfgraph.Kind) (*sdfgraph.Component, *qualifier, error) {
	c := st.pg.s.Reg.Get(id)
	if c == nil {
		return nil, nil, fmt.Errorf("%s component %d not found", what, id)
	} else if c.Kind != kind {
		return nil, nil, fmt.Errorf("%s %q has kind %s", what, c.Name, c.Kind)
	} else if len(c.Functions) == 0 {
		return nil, nil, fmt.Errorf("%s %q has no function", what, c.Name)
	}
	st.pg.dryEval(c)
	qf := newQualifier(c, st.pg.qualify(id))
	st.pg.addProps(c, qf, nil)
	st.pg.appendGlobalCode(c, qf)
	return c, qf, nil
}

func (st *Stream) openCamera(id sdfgraph.ComponentID) error {
	c, qf, err := st.fixed(id, "camera", sdfgraph.KindCamera)
	if err != nil {
		return err
	}
	if c.Dim != st.dim {
		return fmt.Errorf("%dD camera %q in %dD stream", c.Dim, c.Name, st.dim)
	}
	name, err := st.pg.addFunction(c, 0, qf)
	if err != nil {
		return err
	}
	st.pg.defines = AppendDefineDecl(st.pg.defines, "HAS_CAMERA", "1")
	st.pg.defines = AppendDefineDecl(st.pg.defines, "CAMERA", name)
	return nil
}

func (st *Stream) openBackground(id sdfgraph.ComponentID) error {
	var b []byte
	b = append(b, "vec3 background(vec3 rd) {\n\treturn "...)
	if id == 0 {
		b = append(b, "vec3(0.5, 0.6, 0.7)"...)
	} else {
		c, qf, err := st.fixed(id, "background", sdfgraph.KindBackground)
		if err != nil {
			return err
		}
		name, err := st.pg.addFunction(c, 0, qf)
		if err != nil {
			return err
		}
		b = append(b, name...)
		b = append(b, "(rd)"...)
	}
	b = append(b, ";\n}\n"...)
	return st.pg.fns.add([]byte("background"), b)
}

func (st *Stream) openGround(id sdfgraph.ComponentID) error {
	if st.dim != 3 {
		return errors.New("ground requires a 3D stream")
	}
	c, qf, err := st.fixed(id, "ground", sdfgraph.KindShape3)
	if err != nil {
		return err
	}
	f := &c.Functions[0]
	name := "ground_" + qf.q
	if err := st.pg.fns.add([]byte(name), c.Arena.AppendFunction(nil, *f, name, qf, nil)); err != nil {
		return err
	}
	st.tx = append(st.tx, txGroup{q: qf.q, comp: id})
	st.tail = append(st.tail, "\tres = opUnion(res, vec2("...)
	st.tail = append(st.tail, name...)
	st.tail = append(st.tail, '(')
	st.tail = st.appendTx(st.tail, "opTx", "p", qf.q)
	st.tail = append(st.tail, "), -2.));\n"...)
	st.pg.defines = AppendDefineDecl(st.pg.defines, "HAS_GROUND", "1")
	return nil
}

// appendTx appends a call to the transform function fn of position pos by the
// transform slots of qualifier q.
func (st *Stream) appendTx(b []byte, fn, pos, q string) []byte {
	if st.dim == 2 {
		fn += "2"
	}
	b = append(b, fn...)
	b = append(b, '(')
	b = append(b, pos...)
	if st.dim == 2 {
		b = append(b, ", vec2(posX_"...)
		b = append(b, q...)
		b = append(b, ", posY_"...)
		b = append(b, q...)
		b = append(b, "), rot_"...)
		b = append(b, q...)
		return append(b, ')')
	}
	b = append(b, ", vec3(posX_"...)
	b = append(b, q...)
	b = append(b, ", posY_"...)
	b = append(b, q...)
	b = append(b, ", posZ_"...)
	b = append(b, q...)
	b = append(b, "), vec3(rotX_"...)
	b = append(b, q...)
	b = append(b, ", rotY_"...)
	b = append(b, q...)
	b = append(b, ", rotZ_"...)
	b = append(b, q...)
	return append(b, "))"...)
}

func (st *Stream) fail(err error) error {
	if st.err == nil {
		st.err = err
	}
	return st.err
}

func (st *Stream) top() *frame {
	if len(st.stack) == 0 {
		return nil
	}
	return st.stack[len(st.stack)-1]
}

// PushStageItem enters item. The item's transform slots are recorded and, when the
// item has leaf shapes below it, its local position is emitted.
func (st *Stream) PushStageItem(item *sdfgraph.StageItem) error {
	if st.err != nil {
		return st.err
	} else if st.closed {
		return st.fail(errors.New("push to closed stream"))
	}
	c := st.pg.s.Reg.Get(item.Component)
	if c == nil {
		return st.fail(fmt.Errorf("stage item %d: component %d not found", item.ID, item.Component))
	} else if !c.Kind.Spatial() || c.Dim != st.dim {
		return st.fail(fmt.Errorf("stage item %d: %dD %s %q in %dD stream", item.ID, c.Dim, c.Kind, c.Name, st.dim))
	}
	base := "p"
	var ancestors []sdfgraph.ComponentID
	if parent := st.top(); parent != nil {
		base = parent.base
		for _, f := range st.stack {
			ancestors = append(ancestors, f.comp.ID)
		}
	}
	f := &frame{
		item:   item,
		comp:   c,
		q:      st.pg.qualify(c.ID),
		base:   base,
		leaves: item.Leaves(st.pg.s.Reg),
	}
	st.tx = append(st.tx, txGroup{q: f.q, item: item, comp: c.ID, ancestors: ancestors})
	if st.pg.art.Label == "" {
		st.pg.art.Label = st.kind.String() + ":" + f.q
		st.pg.art.Component = c.ID
	}
	if f.leaves > 0 && (c.Kind.Leaf() || c.Kind == sdfgraph.KindDomain) {
		f.local = "p_" + f.q
		st.body = append(st.body, '\t')
		st.body = append(st.body, glexpr.VecType(st.dim)...)
		st.body = append(st.body, ' ')
		st.body = append(st.body, f.local...)
		st.body = append(st.body, " = "...)
		st.body = st.appendTx(st.body, "opTx", base, f.q)
		st.body = append(st.body, ";\n"...)
	}
	st.stack = append(st.stack, f)
	return nil
}

// PushComponent appends the body of component id, which must be the component of the
// current stage item. Leaf shapes are assigned the next object id. monitor, when not
// zero, is a variable fragment of the component whose value is written to the color
// image on hits.
func (st *Stream) PushComponent(id sdfgraph.ComponentID, monitor uint64) error {
	if st.err != nil {
		return st.err
	}
	f := st.top()
	switch {
	case f == nil:
		return st.fail(errors.New("push component without stage item"))
	case f.comp.ID != id:
		return st.fail(fmt.Errorf("component %d is not the component of stage item %d", id, f.item.ID))
	case f.pushed:
		return st.fail(fmt.Errorf("component %d pushed twice", id))
	}
	f.pushed = true
	c := f.comp
	pg := st.pg
	pg.dryEval(c)
	qf := newQualifier(c, f.q)
	if monitor != 0 {
		if err := pg.setMonitor(c, monitor, qf); err != nil {
			return st.fail(err)
		}
	}
	pg.addProps(c, qf, f.item)
	pg.appendGlobalCode(c, qf)
	switch c.Kind {
	case sdfgraph.KindShape2, sdfgraph.KindShape3:
		if len(c.Functions) == 0 {
			return st.fail(fmt.Errorf("shape %q has no function", c.Name))
		}
		name, err := pg.addFunction(c, 0, qf)
		if err != nil {
			return st.fail(err)
		}
		objID := st.nextID
		st.nextID++
		f.result = "r_" + f.q
		st.body = append(st.body, "\tvec2 "...)
		st.body = append(st.body, f.result...)
		st.body = append(st.body, " = vec2("...)
		st.body = append(st.body, name...)
		st.body = append(st.body, '(')
		st.body = append(st.body, f.local...)
		st.body = append(st.body, "), "...)
		st.body = strconv.AppendInt(st.body, int64(objID), 10)
		st.body = append(st.body, ".);\n"...)
		pg.art.Objects = append(pg.art.Objects, ObjectRef{ID: objID, Item: f.item, Component: c.ID})
		if c.Material != 0 {
			fn, err := st.material(c.Material)
			if err != nil {
				return st.fail(err)
			}
			st.matCases = append(st.matCases, matCase{id: objID, fn: fn})
		}

	case sdfgraph.KindDomain:
		if f.local == "" || len(c.Functions) == 0 {
			break
		}
		qf.params["p"] = f.local
		st.body = c.Arena.AppendStatements(st.body, c.Functions[0].Body, qf, pg.monitor.hook(c.ID, 0))
		f.base = "w_" + f.q
		st.body = append(st.body, '\t')
		st.body = append(st.body, glexpr.VecType(st.dim)...)
		st.body = append(st.body, ' ')
		st.body = append(st.body, f.base...)
		st.body = append(st.body, " = "...)
		st.body = st.appendTx(st.body, "opTxInv", f.local, f.q)
		st.body = append(st.body, ";\n"...)

	case sdfgraph.KindCombine:
		if c.Combine == sdfgraph.CombineSmoothUnion {
			for i := range c.Functions {
				st.body = c.Arena.AppendStatements(st.body, c.Functions[i].Body, qf, pg.monitor.hook(c.ID, i))
			}
			f.k = qf.local("k")
		}
	}
	return nil
}

func (st *Stream) material(id sdfgraph.ComponentID) (string, error) {
	if fn, ok := st.materials[id]; ok {
		return fn, nil
	}
	c, qf, err := st.fixed(id, "material", sdfgraph.KindMaterial)
	if err != nil {
		return "", err
	}
	fn, err := st.pg.addFunction(c, 0, qf)
	if err != nil {
		return "", err
	}
	st.materials[id] = fn
	return fn, nil
}

// PullStageItem leaves the current stage item, folding the results of its children
// into one with the item's combine operation or a union.
func (st *Stream) PullStageItem() error {
	if st.err != nil {
		return st.err
	}
	f := st.top()
	if f == nil {
		return st.fail(errors.New("pull without stage item"))
	}
	st.stack = st.stack[:len(st.stack)-1]
	res := f.result
	if !f.comp.Kind.Leaf() {
		res = st.fold(f)
	}
	if res == "" {
		return nil
	}
	if parent := st.top(); parent != nil {
		parent.results = append(parent.results, res)
		return nil
	}
	if st.roots == 0 {
		st.body = append(st.body, "\tres = "...)
		st.body = append(st.body, res...)
		st.body = append(st.body, ";\n"...)
	} else {
		st.body = append(st.body, "\tres = opUnion(res, "...)
		st.body = append(st.body, res...)
		st.body = append(st.body, ");\n"...)
	}
	st.roots++
	return nil
}

func (st *Stream) fold(f *frame) string {
	switch len(f.results) {
	case 0:
		return ""
	case 1:
		return f.results[0]
	}
	op := sdfgraph.CombineUnion
	if f.comp.Kind == sdfgraph.KindCombine {
		op = f.comp.Combine
	}
	r := "r_" + f.q
	for i, child := range f.results[1:] {
		st.body = append(st.body, '\t')
		left := r
		if i == 0 {
			st.body = append(st.body, "vec2 "...)
			left = f.results[0]
		}
		st.body = append(st.body, r...)
		st.body = append(st.body, " = "...)
		st.body = append(st.body, op.FuncName()...)
		st.body = append(st.body, '(')
		st.body = append(st.body, left...)
		st.body = append(st.body, ", "...)
		st.body = append(st.body, child...)
		if op == sdfgraph.CombineSmoothUnion {
			st.body = append(st.body, ", "...)
			st.body = append(st.body, f.k...)
		}
		st.body = append(st.body, ");\n"...)
	}
	return r
}

// Flatten pushes item and its descendants in depth first order.
func (st *Stream) Flatten(item *sdfgraph.StageItem) error {
	if err := st.PushStageItem(item); err != nil {
		return err
	}
	if err := st.PushComponent(item.Component, 0); err != nil {
		return err
	}
	for _, child := range item.Children {
		if err := st.Flatten(child); err != nil {
			return err
		}
	}
	return st.PullStageItem()
}

// CloseStream allocates global and transform slots, assembles the program and
// submits it for compilation.
func (st *Stream) CloseStream() (*Artifact, error) {
	if st.err != nil {
		return nil, st.err
	} else if st.closed {
		return nil, errors.New("stream already closed")
	} else if len(st.stack) != 0 {
		return nil, st.fail(fmt.Errorf("stream closed with %d stage items open", len(st.stack)))
	}
	st.closed = true
	pg := st.pg
	art := pg.art
	pg.addGlobals()
	names := sdfgraph.TransformNames(st.dim)
	for _, g := range st.tx {
		t := st.absolute(g)
		slot := pg.allocSlots(t.Values(st.dim), len(names))
		for i, name := range names {
			pg.defines = AppendDefineDecl(pg.defines, name+"_"+g.q, string(appendSlotExpr(nil, slot+i, 1)))
			art.Props.Add(g.q+"."+name, slot+i)
		}
		art.props = append(art.props, propRef{
			Key: g.q + ".transform", Slot: slot, N: len(names), Component: g.comp,
			Item: g.item, Ancestors: g.ancestors, Dim: st.dim,
		})
	}
	pg.defines = AppendDefineDecl(pg.defines, "ID_MIN", strconv.Itoa(st.idStart))
	pg.defines = AppendDefineDecl(pg.defines, "ID_MAX", strconv.Itoa(st.nextID-1))
	if art.Label == "" {
		art.Label = st.kind.String()
	}
	if err := st.assemble(); err != nil {
		return nil, err
	}
	variants := []string{"ao", "shadow", "material"}
	if st.dim == 2 {
		variants = nil
	}
	return pg.finish(variants...)
}

// absolute returns the transform of g summed with the transforms of its ancestors.
func (st *Stream) absolute(g txGroup) sdfgraph.Transform {
	reg := st.pg.s.Reg
	var t sdfgraph.Transform
	for _, id := range g.ancestors {
		t = t.Add(reg.Get(id).Transform)
	}
	return t.Add(reg.Get(g.comp).Transform)
}

func (st *Stream) assemble() error {
	pg := st.pg
	vt := glexpr.VecType(st.dim)
	var b []byte
	b = append(b, "vec2 scene("...)
	b = append(b, vt...)
	b = append(b, " p) {\n\tvec2 res = vec2(1e20, -1.);\n"...)
	b = append(b, st.body...)
	b = append(b, st.tail...)
	b = append(b, "\treturn res;\n}\n"...)
	if err := pg.fns.add([]byte("scene"), b); err != nil {
		return err
	}
	b = append(b[:0], "vec4 objMaterial(float id, vec3 p, vec3 n) {\n\tint i = int(id);\n"...)
	for _, mc := range st.matCases {
		b = append(b, "\tif (i == "...)
		b = strconv.AppendInt(b, int64(mc.id), 10)
		b = append(b, ") {\n\t\treturn "...)
		b = append(b, mc.fn...)
		b = append(b, "(p, n);\n\t}\n"...)
	}
	b = append(b, "\treturn vec4(0.8, 0.8, 0.8, 0.);\n}\n"...)
	if err := pg.fns.add([]byte("objMaterial"), b); err != nil {
		return err
	}
	if pg.monitor != nil {
		b = append(b[:0], "vec3 monitorColor() {\n\treturn "...)
		b = appendConvert(b, "monitor_value", pg.art.Monitor.Arity, 3)
		b = append(b, ";\n}\n"...)
		if err := pg.fns.add([]byte("monitorColor"), b); err != nil {
			return err
		}
	}
	if st.dim == 3 {
		pg.fns.src = append(pg.fns.src, shape3Helpers...)
		pg.main = append(pg.main[:0], shape3Main...)
	} else {
		pg.main = append(pg.main[:0], shape2Main...)
	}
	return nil
}
