package glexpr

import (
	"strings"
	"testing"
)

func TestZero(t *testing.T) {
	var a Arena
	for _, test := range []struct {
		typ   string
		arity int
		want  string
	}{
		{typ: "float", arity: 1, want: "0."},
		{typ: "int", arity: 1, want: "0"},
		{typ: "vec2", arity: 2, want: "vec2(0.,0.)"},
		{typ: "vec3", arity: 3, want: "vec3(0.,0.,0.)"},
		{typ: "vec4", arity: 4, want: "vec4(0.,0.,0.,0.)"},
	} {
		h := a.Zero(test.typ)
		typ, n := a.EvalType(h)
		if typ != test.typ || n != test.arity {
			t.Errorf("Zero(%q): got type %q arity %d, want arity %d", test.typ, typ, n, test.arity)
		}
		f := a.Get(h)
		if IsVector(test.typ) && len(f.Args) != test.arity {
			t.Errorf("Zero(%q): want %d argument sub-statements, got %d", test.typ, test.arity, len(f.Args))
		} else if !IsVector(test.typ) && len(f.Args) != 0 {
			t.Errorf("Zero(%q): scalar zero should be a single literal", test.typ)
		}
		got := string(a.AppendExpr(nil, Statement{h}, nil))
		if got != test.want {
			t.Errorf("Zero(%q) emitted %q, want %q", test.typ, got, test.want)
		}
	}
}

func TestEvalTypeComposite(t *testing.T) {
	var a Arena
	x := a.Const("float", 1)
	y := a.Ref("vec2", "uv")
	h := a.alloc(Fragment{Kind: KindConstant, Args: []Statement{{x}, {y}}})
	typ, n := a.EvalType(h)
	if typ != "vec3" || n != 3 {
		t.Errorf("got %s/%d, want vec3/3", typ, n)
	}
}

func TestArityUnknownRelease(t *testing.T) {
	if debug {
		t.Skip("debug builds panic on unknown types")
	}
	if n := Arity("mat7"); n != 1 {
		t.Errorf("unknown type arity got %d, want 1", n)
	}
	if Known("mat7") {
		t.Error("mat7 should not be known")
	}
}

func TestSimplifiedConstant(t *testing.T) {
	var a Arena
	h := a.Const("vec3", 0.5)
	a.Get(h).Simplified = true
	got := string(a.AppendExpr(nil, Statement{h}, nil))
	if got != "vec3(0.5)" {
		t.Errorf("simplified constant got %q", got)
	}
	a.Get(h).Simplified = false
	got = string(a.AppendExpr(nil, Statement{h}, nil))
	if got != "vec3(0.5,0.5,0.5)" {
		t.Errorf("expanded constant got %q", got)
	}
}

func TestAppendFunction(t *testing.T) {
	var a Arena
	fn := Function{
		Name:   "sdf",
		Type:   "float",
		Params: []Param{{Type: "vec3", Name: "p"}},
		Body: []Statement{
			a.Assign("float", "r", a.Const("float", 1.5)),
			{a.Block(BlockIf, Statement{a.Ref("float", "r"), a.Op("<"), a.Const("float", 0)})},
			a.Return(a.Const("float", 0)),
			{a.Block(BlockEnd)},
			a.Return(a.Call("float", "length", Statement{a.Ref("vec3", "p")}), a.Op("-"), a.Ref("float", "r")),
		},
	}
	got := string(a.AppendFunction(nil, fn, "", nil, nil))
	want := "float sdf(vec3 p) {\n" +
		"\tfloat r = 1.5;\n" +
		"\tif (r < 0.) {\n" +
		"\treturn 0.;\n" +
		"\t}\n" +
		"\treturn length(p) - r;\n" +
		"}\n"
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}

	var seen []int
	got = string(a.AppendFunction(nil, fn, "renamed", nil, func(i int, b []byte) []byte {
		seen = append(seen, i)
		if i == 0 {
			b = append(b, "\tmonitor_r = r;\n"...)
		}
		return b
	}))
	if len(seen) != len(fn.Body) {
		t.Errorf("hook called %d times for %d statements", len(seen), len(fn.Body))
	}
	want = "float renamed(vec3 p) {\n" +
		"\tfloat r = 1.5;\n" +
		"\tmonitor_r = r;\n" +
		"\tif (r < 0.) {\n"
	if !strings.HasPrefix(got, want) {
		t.Errorf("got:\n%s\nwant prefix:\n%s", got, want)
	}
}

func TestHashStructural(t *testing.T) {
	build := func(a *Arena, r float32) Statement {
		return a.Return(a.Call("float", "length", Statement{a.Ref("vec3", "p")}), a.Op("-"), a.Const("float", r))
	}
	var a1, a2 Arena
	a2.Const("float", 99) // Shift handles and IDs in second arena.
	s1 := build(&a1, 1)
	s2 := build(&a2, 1)
	if a1.Hash(s1, 0) != a2.Hash(s2, 0) {
		t.Error("identical trees in distinct arenas should hash equal")
	}
	s3 := build(&a2, 2)
	if a1.Hash(s1, 0) == a2.Hash(s3, 0) {
		t.Error("distinct constant values should change the hash")
	}
}

func TestConstValues(t *testing.T) {
	var a Arena
	h := a.Const("vec3", 1, 2, 3)
	got := a.ConstValues(h)
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("got %v", got)
	}
	err := a.SetConstValues(h, 4, 5, 6)
	if err != nil {
		t.Fatal(err)
	}
	got = a.ConstValues(h)
	if got[0] != 4 || got[2] != 6 {
		t.Errorf("after set got %v", got)
	}
	if err := a.SetConstValues(a.Op("+"), 1); err == nil {
		t.Error("expected error setting value of an operator")
	}
}

func TestAppendFloat(t *testing.T) {
	for _, test := range []struct {
		v    float32
		want string
	}{
		{1, "1."},
		{-0.25, "-0.25"},
		{100, "100."},
	} {
		got := string(AppendFloat(nil, '-', '.', test.v))
		if got != test.want {
			t.Errorf("AppendFloat(%v)=%q want %q", test.v, got, test.want)
		}
	}
	got := string(AppendFloat(nil, 'n', 'p', -1.5))
	if got != "n1p5" {
		t.Errorf("name-safe float got %q", got)
	}
}
