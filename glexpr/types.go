package glexpr

import (
	"encoding/binary"
	"log/slog"
	"math"
)

// IsVector reports whether typ is a 2, 3 or 4 component vector type name.
func IsVector(typ string) bool {
	switch typ {
	case "vec2", "vec3", "vec4", "ivec2", "ivec3", "ivec4":
		return true
	}
	return false
}

// Known reports whether typ is a type name the expression model understands.
func Known(typ string) bool {
	_, ok := arity(typ)
	return ok
}

// Arity returns the amount of scalar components of type name typ.
// An unknown type name is a programmer error: it panics in builds tagged
// sdfdebug and logs a warning and yields 1 otherwise.
func Arity(typ string) int {
	n, ok := arity(typ)
	if !ok {
		if debug {
			panic("glexpr: arity of unknown type " + typ)
		}
		warn("glexpr: arity of unknown type", slog.String("type", typ))
		return 1
	}
	return n
}

func arity(typ string) (int, bool) {
	switch typ {
	case "float", "int", "uint", "bool":
		return 1, true
	case "vec2", "ivec2":
		return 2, true
	case "vec3", "ivec3":
		return 3, true
	case "vec4", "ivec4":
		return 4, true
	}
	return 0, false
}

// VecType returns the float vector type name with n components. n==1 returns "float".
func VecType(n int) string {
	switch n {
	case 1:
		return "float"
	case 2:
		return "vec2"
	case 3:
		return "vec3"
	case 4:
		return "vec4"
	}
	return ""
}

// EvalType returns the result type and arity of fragment h. Composite constants with no
// type name derive it from their argument sub-statements.
func (a *Arena) EvalType(h Handle) (typ string, n int) {
	f := a.Get(h)
	if f.Type != "" {
		return f.Type, Arity(f.Type)
	}
	if f.Kind == KindConstant && len(f.Args) > 0 {
		for _, arg := range f.Args {
			_, argn := a.EvalStatement(arg)
			n += argn
		}
		return VecType(n), n
	}
	return "", 0
}

// EvalStatement returns the result type of an expression statement. Definitions yield
// the defined variable's type; otherwise the widest operand wins as GLSL promotes
// scalars in mixed scalar/vector arithmetic.
func (a *Arena) EvalStatement(st Statement) (typ string, n int) {
	if len(st) == 0 {
		return "", 0
	}
	first := a.Get(st[0])
	if first.Kind == KindVarDef {
		return first.Type, Arity(first.Type)
	}
	for _, h := range st {
		f := a.Get(h)
		switch f.Kind {
		case KindConstant, KindVarRef, KindCall:
			ft, fn := a.EvalType(h)
			if fn > n {
				typ, n = ft, fn
			}
		}
	}
	return typ, n
}

func mathFloat32bits(f float32) uint32 { return math.Float32bits(f) }

// Hash is a fast non-cryptographic hash of b mixed with in.
func Hash(b []byte, in uint64) uint64 {
	x := in
	for len(b) >= 8 {
		x ^= binary.LittleEndian.Uint64(b)
		x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
		x = (x ^ (x >> 27)) * 0x94d049bb133111eb
		x ^= x >> 31
		b = b[8:]
	}
	if len(b) > 0 {
		var buf [8]byte
		copy(buf[:], b)
		x ^= binary.LittleEndian.Uint64(buf[:])
		x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
		x = (x ^ (x >> 27)) * 0x94d049bb133111eb
		x ^= x >> 31
	}
	return x
}
