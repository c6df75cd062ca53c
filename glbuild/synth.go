package glbuild

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/soypat/sdfgraph"
	"github.com/soypat/sdfgraph/glexpr"
	"github.com/soypat/sdfgraph/gleval"
)

// Timeline applies keyframe animation to property values. It is called once per
// property group per refresh and returns the values to upload.
type Timeline interface {
	Transform(sequence int, node uint32, key string, values []float32, frame int) []float32
}

// Synthesizer generates and compiles programs for the components of a [sdfgraph.Registry].
type Synthesizer struct {
	Reg *sdfgraph.Registry
	// Backend compiles programs. When nil artifacts hold generated source only.
	Backend  gleval.Backend
	Timeline Timeline
	// FrameRate converts frames to the time uniform. Zero means 60.
	FrameRate float32
}

// program accumulates the parts of one generated program.
type program struct {
	s    *Synthesizer
	art  *Artifact
	errs []string
	// defines holds #define lines after the header.
	defines []byte
	// globalCode holds file scope statements.
	globalCode []byte
	fns        functionSet
	main       []byte
	monitor    *monitorSite
	globals    []sdfgraph.ComponentID
	visited    map[sdfgraph.ComponentID]bool
	occur      map[sdfgraph.ComponentID]int
}

func (s *Synthesizer) newProgram(label string, kind sdfgraph.Kind, id sdfgraph.ComponentID) *program {
	pg := &program{
		s:       s,
		art:     newArtifact(label, kind, id),
		visited: make(map[sdfgraph.ComponentID]bool),
		occur:   make(map[sdfgraph.ComponentID]int),
	}
	pg.art.Data = append(pg.art.Data, Slot{}) // Time.
	return pg
}

// qualify returns the local variable qualifier of the next occurrence of id in the program.
func (pg *program) qualify(id sdfgraph.ComponentID) string {
	n := pg.occur[id]
	pg.occur[id]++
	if n == 0 {
		return id.String()
	}
	return id.String() + "_" + strconv.Itoa(n)
}

// dryEval walks the component surfacing unknown types and referenced globals.
// Globals referenced by globals are pulled in recursively.
func (pg *program) dryEval(c *sdfgraph.Component) {
	if pg.visited[c.ID] {
		return
	}
	pg.visited[c.ID] = true
	scope := scopeNames(c)
	checkType := func(typ string) {
		if typ == "" || typ == "void" || glexpr.Known(typ) {
			return
		}
		msg := "unknown type " + typ + " in " + strconv.Quote(c.Name)
		if !slices.Contains(pg.errs, msg) {
			pg.errs = append(pg.errs, msg)
		}
	}
	for i := range c.Functions {
		checkType(c.Functions[i].Type)
		for _, p := range c.Functions[i].Params {
			checkType(p.Type)
		}
	}
	c.Statements(func(st glexpr.Statement) bool {
		c.Arena.Walk(st, func(h glexpr.Handle, f *glexpr.Fragment) bool {
			checkType(f.Type)
			if f.Kind != glexpr.KindVarRef {
				return true
			}
			base, _, _ := strings.Cut(f.Name, ".")
			if scope[base] {
				return true
			}
			gid, _, ok := pg.s.Reg.GlobalVar(base)
			if ok && !pg.visited[gid] {
				pg.globals = append(pg.globals, gid)
				pg.dryEval(pg.s.Reg.Get(gid))
			}
			return true
		})
		return true
	})
}

// addProps allocates one slot per scalar of every exposed property of c.
func (pg *program) addProps(c *sdfgraph.Component, qf *qualifier, item *sdfgraph.StageItem) {
	for _, id := range c.Properties {
		def, val, ok := c.PropertyDef(id)
		if !ok {
			sdfgraph.Logger().Warn("glbuild: property is not a constant definition", slog.String("component", c.Name), slog.Uint64("fragment", id))
			continue
		}
		f := c.Arena.Get(def)
		n := glexpr.Arity(f.Type)
		slot := pg.allocSlots(c.Arena.ConstValues(val), n)
		qf.props[f.ID] = appendSlotExpr(nil, slot, n)
		ref := propRef{Key: qf.q + "." + f.Name, Slot: slot, N: n, Component: c.ID, Def: id, Item: item}
		pg.art.props = append(pg.art.props, ref)
		pg.art.Props.Add(ref.Key, slot)
	}
}

func (pg *program) allocSlots(vals []float32, n int) (slot int) {
	slot = len(pg.art.Data)
	for i := 0; i < n; i++ {
		var s Slot
		if i < len(vals) {
			s[0] = vals[i]
		}
		pg.art.Data = append(pg.art.Data, s)
	}
	return slot
}

// addGlobals allocates the properties of referenced globals and defines their names.
func (pg *program) addGlobals() {
	for _, gid := range pg.globals {
		c := pg.s.Reg.Get(gid)
		qf := newQualifier(c, gid.String())
		pg.addProps(c, qf, nil)
		for _, st := range c.GlobalCode {
			first := c.Arena.Get(st[0])
			if expr, ok := qf.props[first.ID]; ok && first.Kind == glexpr.KindVarDef {
				pg.defines = AppendDefineDecl(pg.defines, first.Name, string(expr))
				continue
			}
			pg.globalCode = c.Arena.AppendStatement(pg.globalCode, st, nil)
		}
	}
}

// appendGlobalCode appends the file scope statements of a non global component.
func (pg *program) appendGlobalCode(c *sdfgraph.Component, qf *qualifier) {
	for _, st := range c.GlobalCode {
		first := c.Arena.Get(st[0])
		if expr, ok := qf.props[first.ID]; ok && first.Kind == glexpr.KindVarDef {
			pg.defines = AppendDefineDecl(pg.defines, qf.Name(first), string(expr))
			continue
		}
		pg.globalCode = c.Arena.AppendStatement(pg.globalCode, st, qf)
	}
}

// setMonitor locates fragment id in c and records its arity.
func (pg *program) setMonitor(c *sdfgraph.Component, id uint64, qf *qualifier) error {
	if pg.monitor != nil {
		return errors.New("program already has a monitor")
	}
	for fi := range c.Functions {
		for si, st := range c.Functions[fi].Body {
			var found *glexpr.Fragment
			c.Arena.Walk(st, func(h glexpr.Handle, f *glexpr.Fragment) bool {
				if found == nil && f.ID == id {
					found = f
				}
				return found == nil
			})
			if found == nil {
				continue
			}
			if found.Kind != glexpr.KindVarDef && found.Kind != glexpr.KindVarRef {
				return fmt.Errorf("monitor fragment %d of %q is a %s, not a variable", id, c.Name, found.Kind)
			}
			n := glexpr.Arity(found.Type)
			pg.monitor = &monitorSite{comp: c.ID, fn: fi, stmt: si, frag: found, rw: qf}
			pg.art.Monitor = Monitor{Name: found.Name, Type: found.Type, Arity: n}
			return nil
		}
	}
	return fmt.Errorf("monitor fragment %d not found in %q", id, c.Name)
}

// appendMonitor appends the assignment replacing output with the monitored value.
// Nothing is appended without a monitor or when the monitor already is output.
func (pg *program) appendMonitor(b []byte, output string, arity int) []byte {
	if pg.monitor == nil || pg.art.Monitor.Name == output {
		return b
	}
	b = append(b, '\t')
	b = append(b, output...)
	b = append(b, " = "...)
	b = appendConvert(b, "monitor_value", pg.art.Monitor.Arity, arity)
	return append(b, ";\n"...)
}

// addFunction emits function fn of c under the name "<fn.Name>_<q>".
func (pg *program) addFunction(c *sdfgraph.Component, fn int, qf *qualifier) (name string, err error) {
	f := &c.Functions[fn]
	name = f.Name + "_" + qf.q
	body := c.Arena.AppendFunction(nil, *f, name, qf, pg.monitor.hook(c.ID, fn))
	return name, pg.fns.add([]byte(name), body)
}

// source assembles the generated program.
func (pg *program) source() []byte {
	b := appendHeader(nil, len(pg.art.Data), pg.errs)
	if pg.monitor != nil {
		b = AppendDefineDecl(b, "MONITOR", "1")
		b = append(b, glexpr.VecType(pg.art.Monitor.Arity)...)
		b = append(b, " monitor_value;\n"...)
	}
	b = append(b, pg.defines...)
	b = append(b, pg.globalCode...)
	b = append(b, pg.fns.src...)
	b = append(b, pg.main...)
	return b
}

// finish assembles the source, submits it for compilation and allocates the uniform buffer.
func (pg *program) finish(variants ...string) (*Artifact, error) {
	art := pg.art
	art.Source = pg.source()
	art.Variants = variants
	sdfgraph.Logger().Debug("glbuild: generated", slog.String("artifact", art.Label), slog.Int("slots", len(art.Data)), slog.Int("bytes", len(art.Source)))
	backend := pg.s.Backend
	if backend == nil {
		return art, nil
	}
	backend.Compile(gleval.ProgramSource{Label: art.Label, Source: art.Source, Variants: variants}, art.setCompiled)
	buf, err := backend.NewBuffer(16 * len(art.Data))
	if err != nil {
		return art, fmt.Errorf("allocating uniform buffer of %s: %w", art.Label, err)
	}
	art.Buffer = buf
	if err := backend.WriteBuffer(buf, art.Bytes()); err != nil {
		return art, fmt.Errorf("uploading uniforms of %s: %w", art.Label, err)
	}
	return art, nil
}

// Build generates and submits the program of component id. Shape components are
// compiled as a stream of one item. camera is threaded into shape programs and
// monitor, when not zero, is the ID of a variable fragment of the component whose
// value replaces the primary output of the program.
func (s *Synthesizer) Build(id, camera sdfgraph.ComponentID, monitor uint64) (*Artifact, error) {
	c := s.Reg.Get(id)
	if c == nil {
		return nil, fmt.Errorf("component %d not found", id)
	}
	switch c.Kind {
	case sdfgraph.KindShape2, sdfgraph.KindShape3:
		st, err := s.OpenStream(c.Kind, camera, 0, 0, 0, nil)
		if err != nil {
			return nil, err
		}
		st.PushStageItem(&sdfgraph.StageItem{Component: id})
		st.PushComponent(id, monitor)
		st.PullStageItem()
		return st.CloseStream()
	case sdfgraph.KindColorize, sdfgraph.KindBackground, sdfgraph.KindCamera, sdfgraph.KindRender2, sdfgraph.KindRender3:
	default:
		return nil, fmt.Errorf("%w: %s %q compiles as part of another program", errNoKind, c.Kind, c.Name)
	}
	pg := s.newProgram(c.Kind.String()+":"+id.String(), c.Kind, id)
	pg.dryEval(c)
	qf := newQualifier(c, pg.qualify(id))
	if monitor != 0 {
		if err := pg.setMonitor(c, monitor, qf); err != nil {
			return nil, err
		}
	}
	pg.addProps(c, qf, nil)
	pg.appendGlobalCode(c, qf)
	pg.addGlobals()
	if err := pg.template(c, qf); err != nil {
		return nil, err
	}
	return pg.finish()
}

func (s *Synthesizer) frameRate() float32 {
	if s.FrameRate <= 0 {
		return 60
	}
	return s.FrameRate
}
