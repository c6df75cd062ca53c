package gleval

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoopOrder(t *testing.T) {
	loop := NewLoop()
	var got []int
	loop.PostAfter(20*time.Millisecond, func() { got = append(got, 4) })
	loop.PostAfter(10*time.Millisecond, func() { got = append(got, 3) })
	loop.Post(func() {
		got = append(got, 1)
		loop.Post(func() { got = append(got, 2) })
	})
	n := loop.Drain()
	if n != 4 {
		t.Fatalf("ran %d tasks, want 4", n)
	}
	for i, v := range got {
		if v != i+1 {
			t.Fatalf("bad order %v", got)
		}
	}
	if loop.Pending() != 0 {
		t.Error("tasks pending after drain")
	}
}

func TestLoopRun(t *testing.T) {
	loop := NewLoop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan struct{})
	loop.PostAfter(time.Millisecond, func() { close(done) })
	go func() {
		<-done
		cancel()
	}()
	err := loop.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want canceled, got %v", err)
	}
	select {
	case <-done:
	default:
		t.Fatal("delayed task did not run")
	}
}

func TestInsertDefine(t *testing.T) {
	src := []byte("#version 430\nvoid main() {}\n")
	got := string(InsertDefine(src, KernelDefine("ao")))
	want := "#version 430\n#define KERNEL_AO\nvoid main() {}\n"
	if got != want {
		t.Errorf("got %q want %q", got, want)
	}
}

const testSource = `#version 430
#define ID_MIN 3
#ifdef KERNEL_AO
#endif
void main() {}
`

func TestSoftwareCompile(t *testing.T) {
	loop := NewLoop()
	sw := NewSoftware(loop)
	var prog Program
	var err error
	sw.Compile(ProgramSource{Label: "shape3", Source: []byte(testSource), Variants: []string{"ao"}}, func(p Program, e error) {
		prog, err = p, e
	})
	loop.Drain()
	if err != nil {
		t.Fatal(err)
	}
	kernels := prog.Kernels()
	if len(kernels) != 2 || kernels[0].Name() != "main" || kernels[1].Name() != "ao" {
		t.Fatalf("unexpected kernels %v", kernels)
	}

	for _, bad := range []ProgramSource{
		{Label: "err", Source: []byte("#version 430\n#error unknown type mat9\nvoid main() {}\n")},
		{Label: "noentry", Source: []byte("#version 430\n")},
		{Label: "novariant", Source: []byte(testSource), Variants: []string{"shadow"}},
	} {
		sw.Compile(bad, func(p Program, e error) { prog, err = p, e })
		loop.Drain()
		if !errors.Is(err, ErrCompile) {
			t.Errorf("%s: want compile error, got %v", bad.Label, err)
		}
		if prog != nil {
			t.Errorf("%s: want nil program", bad.Label)
		}
	}
	if !strings.Contains(err.Error(), "shadow") {
		t.Errorf("error should name missing variant: %v", err)
	}
}

func TestSoftwareDispatch(t *testing.T) {
	loop := NewLoop()
	sw := NewSoftware(loop)
	var prog Program
	sw.Compile(ProgramSource{Label: "shape3", Source: []byte(testSource), Variants: []string{"ao"}}, func(p Program, e error) {
		if e != nil {
			t.Fatal(e)
		}
		prog = p
	})
	loop.Drain()
	var idMin string
	sw.Register("shape3", "ao", func(inv *Invocation) error {
		idMin = inv.Defines["ID_MIN"]
		for y := 0; y < inv.Height; y++ {
			for x := 0; x < inv.Width; x++ {
				inv.Images[ImageMeta].Set(x, y, [4]float32{inv.Slot(1), 0, 0, 1})
			}
		}
		return nil
	})
	tex, _ := sw.NewTexture(10, 5, FormatRGBA32F)
	buf, _ := sw.NewBuffer(32)
	data := make([]byte, 32)
	data[16+3] = 0x40 // Slot 1 holds 2.0.
	if err := sw.WriteBuffer(buf, data); err != nil {
		t.Fatal(err)
	}
	var b Bindings
	b.Data = buf
	b.Images[ImageMeta] = tex
	b.Pass[PassWidth], b.Pass[PassHeight] = 10, 5
	var derr error = errors.New("not called")
	sw.Dispatch(prog.Kernels()[1], Groups(10), Groups(5), &b, func(err error) { derr = err })
	loop.Drain()
	if derr != nil {
		t.Fatal(derr)
	}
	if idMin != "3" {
		t.Errorf("define ID_MIN got %q", idMin)
	}
	st := tex.(*SoftTexture)
	if v := st.At(9, 4); v != [4]float32{2, 0, 0, 1} {
		t.Errorf("texel got %v", v)
	}
	if sw.Dispatched["shape3/ao"] != 1 {
		t.Errorf("dispatch count %v", sw.Dispatched)
	}

	dst := make([]float32, 4*10*5)
	sw.Fill(tex, [4]float32{1, 0, 0, 1}, func(error) {})
	sw.ReadTexture(tex, dst, func(err error) { derr = err })
	loop.Drain()
	if derr != nil || dst[0] != 1 || dst[len(dst)-1] != 1 {
		t.Errorf("fill/read got %v %v", derr, dst[:4])
	}
}
