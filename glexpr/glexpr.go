// Package glexpr implements the typed expression trees that components are
// authored in. Fragments live in an [Arena] and are addressed by [Handle] so
// equality and hashing are structural rather than pointer based.
package glexpr

import (
	"fmt"
	"strconv"
)

// Kind is the kind of a [Fragment].
type Kind uint8

const (
	kindUndefined Kind = iota
	// KindConstant is a literal. Vector constants carry one scalar sub-statement per component in Args.
	KindConstant
	// KindVarDef declares a variable: "vec3 name".
	KindVarDef
	// KindVarRef references a variable, parameter or global by name.
	KindVarRef
	// KindOperator is an arithmetic, assignment or comparison operator.
	KindOperator
	// KindCall is a call to a primitive (builtin or library) function with argument sub-statements.
	KindCall
	// KindBracket is a "(" or ")" used for explicit grouping.
	KindBracket
	// KindBlock is a control block marker: if, else, for, end or return.
	KindBlock
)

func (k Kind) String() string {
	switch k {
	case KindConstant:
		return "constant"
	case KindVarDef:
		return "vardef"
	case KindVarRef:
		return "varref"
	case KindOperator:
		return "operator"
	case KindCall:
		return "call"
	case KindBracket:
		return "bracket"
	case KindBlock:
		return "block"
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Block marker names.
const (
	BlockIf     = "if"
	BlockElse   = "else"
	BlockFor    = "for"
	BlockEnd    = "end"
	BlockReturn = "return"
)

// Handle addresses a [Fragment] inside an [Arena]. The zero Handle is nil.
type Handle uint32

// Statement is an ordered list of fragments forming one expression or statement.
type Statement []Handle

// Fragment is a node of the expression tree.
type Fragment struct {
	Kind Kind
	// Type is the GLSL type name of the fragment's result: float, int, bool or vecN.
	Type string
	// ID is a stable identity, unique within the arena.
	ID uint64
	// Name holds the variable name, operator symbol, called function name,
	// bracket character or block keyword depending on Kind.
	Name string
	// Value is the literal value of scalar constants.
	Value float32
	// Args are nested argument sub-statements owned by this fragment.
	Args []Statement
	// Simplified constants render compactly (vec3(1.)) instead of expanded (vec3(1.,1.,1.)).
	Simplified bool
}

// Param is a function parameter.
type Param struct {
	Type string
	Name string
	Out  bool
}

// Function is a top-level function of a component: an AST root plus a flat statement body.
type Function struct {
	Name   string
	Type   string
	Params []Param
	Body   []Statement
}

// Arena owns fragments. The zero value is ready to use.
type Arena struct {
	frags  []Fragment
	nextID uint64
}

// Len returns the amount of fragments allocated in the arena.
func (a *Arena) Len() int { return len(a.frags) }

// Get returns a pointer to the fragment addressed by h. The pointer is
// invalidated by the next allocation in the arena.
func (a *Arena) Get(h Handle) *Fragment {
	if h == 0 || int(h) > len(a.frags) {
		panic(fmt.Sprintf("glexpr: invalid handle %d (arena of %d)", h, len(a.frags)))
	}
	return &a.frags[h-1]
}

// Valid reports whether h addresses a fragment in the arena.
func (a *Arena) Valid(h Handle) bool { return h != 0 && int(h) <= len(a.frags) }

func (a *Arena) alloc(f Fragment) Handle {
	a.nextID++
	f.ID = a.nextID
	a.frags = append(a.frags, f)
	return Handle(len(a.frags))
}

// Const allocates a constant of type typ. Scalar types take one value and yield a literal.
// Vector types yield a constant-definition with one scalar sub-statement per component;
// a single value is broadcast to all components.
func (a *Arena) Const(typ string, v ...float32) Handle {
	n := Arity(typ)
	if !IsVector(typ) {
		var val float32
		if len(v) > 0 {
			val = v[0]
		}
		return a.alloc(Fragment{Kind: KindConstant, Type: typ, Value: val, Simplified: true})
	}
	args := make([]Statement, n)
	for i := range args {
		var val float32
		switch {
		case len(v) == 1:
			val = v[0]
		case i < len(v):
			val = v[i]
		}
		args[i] = Statement{a.alloc(Fragment{Kind: KindConstant, Type: "float", Value: val, Simplified: true})}
	}
	return a.alloc(Fragment{Kind: KindConstant, Type: typ, Args: args})
}

// Zero returns a zero valued constant of type typ.
func (a *Arena) Zero(typ string) Handle { return a.Const(typ) }

// Def allocates a variable definition.
func (a *Arena) Def(typ, name string) Handle {
	return a.alloc(Fragment{Kind: KindVarDef, Type: typ, Name: name})
}

// Ref allocates a variable reference.
func (a *Arena) Ref(typ, name string) Handle {
	return a.alloc(Fragment{Kind: KindVarRef, Type: typ, Name: name})
}

// Op allocates an operator such as "+", "*=", "=" or "<".
func (a *Arena) Op(symbol string) Handle {
	return a.alloc(Fragment{Kind: KindOperator, Name: symbol})
}

// Call allocates a call to fn returning typ.
func (a *Arena) Call(typ, fn string, args ...Statement) Handle {
	return a.alloc(Fragment{Kind: KindCall, Type: typ, Name: fn, Args: args})
}

// Open allocates an opening bracket.
func (a *Arena) Open() Handle { return a.alloc(Fragment{Kind: KindBracket, Name: "("}) }

// Close allocates a closing bracket.
func (a *Arena) Close() Handle { return a.alloc(Fragment{Kind: KindBracket, Name: ")"}) }

// Block allocates a block marker. if takes one condition sub-statement, for takes
// init, condition and step sub-statements.
func (a *Arena) Block(keyword string, args ...Statement) Handle {
	return a.alloc(Fragment{Kind: KindBlock, Name: keyword, Args: args})
}

// Assign builds the statement "typ name = expr".
func (a *Arena) Assign(typ, name string, expr ...Handle) Statement {
	st := Statement{a.Def(typ, name), a.Op("=")}
	return append(st, expr...)
}

// Return builds the statement "return expr".
func (a *Arena) Return(expr ...Handle) Statement {
	st := Statement{a.Block(BlockReturn)}
	return append(st, expr...)
}

// ConstValues returns the authored scalar values of constant h.
func (a *Arena) ConstValues(h Handle) []float32 {
	f := a.Get(h)
	if f.Kind != KindConstant {
		return nil
	}
	if len(f.Args) == 0 {
		return []float32{f.Value}
	}
	vals := make([]float32, 0, len(f.Args))
	for _, st := range f.Args {
		if len(st) == 0 {
			vals = append(vals, 0)
			continue
		}
		vals = append(vals, a.ConstValues(st[0])...)
	}
	return vals
}

// SetConstValues overwrites the scalar values of constant h. Extra values are ignored.
func (a *Arena) SetConstValues(h Handle, v ...float32) error {
	f := a.Get(h)
	if f.Kind != KindConstant {
		return fmt.Errorf("glexpr: fragment %d is %s, not a constant", f.ID, f.Kind)
	}
	if len(f.Args) == 0 {
		if len(v) > 0 {
			f.Value = v[0]
		}
		return nil
	}
	args := f.Args
	for i := 0; i < len(args) && i < len(v); i++ {
		if len(args[i]) > 0 {
			a.SetConstValues(args[i][0], v[i])
		}
	}
	return nil
}

// Find returns the handle of the fragment with the given ID or 0 if not found.
func (a *Arena) Find(id uint64) Handle {
	for i := range a.frags {
		if a.frags[i].ID == id {
			return Handle(i + 1)
		}
	}
	return 0
}

// Walk calls fn for every fragment in st, descending into argument sub-statements
// depth first. Returning false from fn skips the fragment's arguments.
func (a *Arena) Walk(st Statement, fn func(h Handle, f *Fragment) bool) {
	for _, h := range st {
		f := a.Get(h)
		if fn(h, f) {
			for _, arg := range f.Args {
				a.Walk(arg, fn)
			}
		}
	}
}

// Hash returns a structural hash of st mixed with in. Identical trees in
// different arenas hash identically.
func (a *Arena) Hash(st Statement, in uint64) uint64 {
	x := in
	var buf []byte
	for _, h := range st {
		f := a.Get(h)
		buf = append(buf[:0], byte(f.Kind))
		buf = append(buf, f.Type...)
		buf = append(buf, 0)
		buf = append(buf, f.Name...)
		buf = append(buf, 0)
		buf = strconv.AppendUint(buf, uint64(mathFloat32bits(f.Value)), 16)
		if f.Simplified {
			buf = append(buf, 's')
		}
		x = Hash(buf, x)
		for _, arg := range f.Args {
			x = a.Hash(arg, x^uint64(len(f.Args)))
		}
	}
	return x
}
