package glbuild

import (
	"strings"

	"github.com/soypat/sdfgraph"
	"github.com/soypat/sdfgraph/glexpr"
)

// qualifier renames the local variables of one component occurrence so that
// bodies of several components can share a function scope.
type qualifier struct {
	q string
	// params renames parameters of inlined functions.
	params map[string]string
	locals map[string]bool
	// props maps property definition IDs to uniform slot expressions.
	props map[uint64][]byte
}

var _ glexpr.Rewriter = (*qualifier)(nil)

func newQualifier(c *sdfgraph.Component, q string) *qualifier {
	return &qualifier{
		q:      q,
		params: make(map[string]string),
		locals: localNames(c),
		props:  make(map[uint64][]byte),
	}
}

func (qf *qualifier) Name(f *glexpr.Fragment) string {
	base, swizzle, hasSwizzle := strings.Cut(f.Name, ".")
	name := base
	if renamed, ok := qf.params[base]; ok {
		name = renamed
	} else if qf.locals[base] {
		name = base + "_" + qf.q
	}
	if hasSwizzle {
		return name + "." + swizzle
	}
	return name
}

func (qf *qualifier) Property(f *glexpr.Fragment) ([]byte, bool) {
	expr, ok := qf.props[f.ID]
	return expr, ok
}

// local returns the qualified name of a component local.
func (qf *qualifier) local(name string) string { return name + "_" + qf.q }

// localNames returns the names defined inside the component's functions.
func localNames(c *sdfgraph.Component) map[string]bool {
	names := make(map[string]bool)
	for i := range c.Functions {
		for _, st := range c.Functions[i].Body {
			c.Arena.Walk(st, func(h glexpr.Handle, f *glexpr.Fragment) bool {
				if f.Kind == glexpr.KindVarDef {
					names[f.Name] = true
				}
				return true
			})
		}
	}
	return names
}

// scopeNames returns every name the component defines itself, parameters and globals included.
func scopeNames(c *sdfgraph.Component) map[string]bool {
	names := localNames(c)
	for i := range c.Functions {
		for _, p := range c.Functions[i].Params {
			names[p.Name] = true
		}
	}
	for _, st := range c.GlobalCode {
		if len(st) > 0 {
			if f := c.Arena.Get(st[0]); f.Kind == glexpr.KindVarDef {
				names[f.Name] = true
			}
		}
	}
	return names
}

// monitorSite locates the statement after which the monitored variable is captured.
type monitorSite struct {
	comp sdfgraph.ComponentID
	fn   int
	stmt int
	frag *glexpr.Fragment
	rw   glexpr.Rewriter
}

// hook returns the statement hook capturing the monitored value in function fn of component c.
func (m *monitorSite) hook(c sdfgraph.ComponentID, fn int) glexpr.StatementHook {
	if m == nil || m.comp != c || m.fn != fn {
		return nil
	}
	return func(i int, b []byte) []byte {
		if i != m.stmt {
			return b
		}
		b = append(b, "\tmonitor_value = "...)
		b = append(b, m.rw.Name(m.frag)...)
		return append(b, ";\n"...)
	}
}

// appendConvert appends expr of arity from converted to a float vector of arity to.
func appendConvert(b []byte, expr string, from, to int) []byte {
	switch {
	case from == to:
		return append(b, expr...)
	case to < from:
		b = append(b, expr...)
		b = append(b, '.')
		return append(b, "xyzw"[:to]...)
	case from == 1:
		b = append(b, glexpr.VecType(to)...)
		b = append(b, '(')
		b = append(b, expr...)
		return append(b, ')')
	}
	b = append(b, glexpr.VecType(to)...)
	b = append(b, '(')
	b = append(b, expr...)
	for i := from; i < to; i++ {
		b = append(b, ", 0."...)
	}
	return append(b, ')')
}
