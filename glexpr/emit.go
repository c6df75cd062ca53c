package glexpr

import (
	"bytes"
	"strconv"
)

// Rewriter customizes how variables are emitted. A nil Rewriter emits names verbatim.
type Rewriter interface {
	// Name returns the emitted name of a variable definition or reference.
	Name(f *Fragment) string
	// Property returns the initializer expression that replaces the authored value of a
	// definition fragment exposed as a property. ok is false for non-property definitions.
	Property(f *Fragment) (expr []byte, ok bool)
}

// AppendStatement appends the GLSL text of st followed by its terminator.
func (a *Arena) AppendStatement(b []byte, st Statement, rw Rewriter) []byte {
	if len(st) == 0 {
		return b
	}
	first := a.Get(st[0])
	if first.Kind == KindBlock {
		switch first.Name {
		case BlockIf:
			b = append(b, "if ("...)
			b = a.appendArgs(b, first.Args, "", rw)
			return append(b, ") {\n"...)
		case BlockElse:
			return append(b, "} else {\n"...)
		case BlockFor:
			b = append(b, "for ("...)
			b = a.appendArgs(b, first.Args, "; ", rw)
			return append(b, ") {\n"...)
		case BlockEnd:
			return append(b, "}\n"...)
		}
	}
	if first.Kind == KindVarDef && rw != nil {
		if expr, ok := rw.Property(first); ok {
			b = append(b, first.Type...)
			b = append(b, ' ')
			b = append(b, rw.Name(first)...)
			b = append(b, " = "...)
			b = append(b, expr...)
			return append(b, ";\n"...)
		}
	}
	b = a.AppendExpr(b, st, rw)
	return append(b, ";\n"...)
}

// AppendExpr appends the GLSL text of st with no terminator.
func (a *Arena) AppendExpr(b []byte, st Statement, rw Rewriter) []byte {
	for i, h := range st {
		f := a.Get(h)
		switch f.Kind {
		case KindConstant:
			b = a.appendConst(b, f)
		case KindVarDef:
			b = append(b, f.Type...)
			b = append(b, ' ')
			b = appendName(b, f, rw)
		case KindVarRef:
			b = appendName(b, f, rw)
		case KindOperator:
			b = append(b, ' ')
			b = append(b, f.Name...)
			b = append(b, ' ')
		case KindCall:
			b = append(b, f.Name...)
			b = append(b, '(')
			b = a.appendArgs(b, f.Args, ",", rw)
			b = append(b, ')')
		case KindBracket:
			b = append(b, f.Name...)
		case KindBlock:
			if f.Name == BlockReturn {
				b = append(b, "return"...)
				if i < len(st)-1 {
					b = append(b, ' ')
				}
			}
		}
	}
	return b
}

func (a *Arena) appendArgs(b []byte, args []Statement, sep string, rw Rewriter) []byte {
	for i, arg := range args {
		b = a.AppendExpr(b, arg, rw)
		if i < len(args)-1 {
			b = append(b, sep...)
		}
	}
	return b
}

func appendName(b []byte, f *Fragment, rw Rewriter) []byte {
	if rw != nil {
		return append(b, rw.Name(f)...)
	}
	return append(b, f.Name...)
}

func (a *Arena) appendConst(b []byte, f *Fragment) []byte {
	if len(f.Args) == 0 {
		switch f.Type {
		case "int", "uint":
			return strconv.AppendInt(b, int64(f.Value), 10)
		case "bool":
			return strconv.AppendBool(b, f.Value != 0)
		}
		return AppendFloat(b, '-', '.', f.Value)
	}
	typ := f.Type
	if typ == "" {
		typ = VecType(len(f.Args))
	}
	b = append(b, typ...)
	b = append(b, '(')
	if f.Simplified && a.uniformArgs(f) {
		b = a.AppendExpr(b, f.Args[0], nil)
	} else {
		b = a.appendArgs(b, f.Args, ",", nil)
	}
	return append(b, ')')
}

func (a *Arena) uniformArgs(f *Fragment) bool {
	var first []byte
	var scratch []byte
	for i, arg := range f.Args {
		scratch = a.AppendExpr(scratch[:0], arg, nil)
		if i == 0 {
			first = append(first, scratch...)
		} else if !bytes.Equal(first, scratch) {
			return false
		}
	}
	return true
}

// StatementHook is called after every appended statement with its index in the
// body and returns the possibly extended buffer.
type StatementHook func(i int, b []byte) []byte

// AppendFunction appends fn as a GLSL function definition. name overrides fn.Name when not empty.
func (a *Arena) AppendFunction(b []byte, fn Function, name string, rw Rewriter, hook StatementHook) []byte {
	if name == "" {
		name = fn.Name
	}
	b = append(b, fn.Type...)
	b = append(b, ' ')
	b = append(b, name...)
	b = append(b, '(')
	for i, p := range fn.Params {
		if p.Out {
			b = append(b, "out "...)
		}
		b = append(b, p.Type...)
		b = append(b, ' ')
		b = append(b, p.Name...)
		if i < len(fn.Params)-1 {
			b = append(b, ", "...)
		}
	}
	b = append(b, ") {\n"...)
	b = a.AppendStatements(b, fn.Body, rw, hook)
	return append(b, "}\n"...)
}

// AppendStatements appends body one tab indented statement per line.
func (a *Arena) AppendStatements(b []byte, body []Statement, rw Rewriter, hook StatementHook) []byte {
	for i, st := range body {
		b = append(b, '\t')
		b = a.AppendStatement(b, st, rw)
		if hook != nil {
			b = hook(i, b)
		}
	}
	return b
}

const decimalDigits = 9

// AppendFloat appends v with neg replacing the minus sign and decimal replacing the
// decimal point, trimming trailing zeros.
func AppendFloat(b []byte, neg, decimal byte, v float32) []byte {
	start := len(b)
	b = strconv.AppendFloat(b, float64(v), 'f', decimalDigits, 32)
	idx := bytes.IndexByte(b[start:], '.')
	if decimal != '.' && idx >= 0 {
		b[start+idx] = decimal
	}
	if b[start] == '-' {
		b[start] = neg
	}
	end := len(b)
	for i := len(b) - 1; idx >= 0 && i > idx+start && b[i] == '0'; i-- {
		end--
	}
	return b[:end]
}
