package gleval

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/soypat/sdfgraph"
)

// KernelFunc executes one dispatch of a kernel on the CPU.
type KernelFunc func(inv *Invocation) error

// Invocation is the state a [KernelFunc] operates on.
type Invocation struct {
	Label  string
	Kernel string
	// Defines holds the "#define NAME VALUE" lines of the program source.
	Defines map[string]string
	// Width and Height of the dispatch, clipped to the pass extent.
	Width, Height int
	// Data holds the uniform buffer as flat floats: slot k occupies Data[4k:4k+4].
	Data   []float32
	Pass   [PassLen]float32
	Images [NumImages]*SoftTexture
}

// Slot returns the x component of uniform slot k or 0 when out of range.
func (inv *Invocation) Slot(k int) float32 {
	if k < 0 || 4*k >= len(inv.Data) {
		return 0
	}
	return inv.Data[4*k]
}

// SoftTexture is an RGBA float32 image stored row major.
type SoftTexture struct {
	W, H int
	Pix  []float32
}

func (t *SoftTexture) Size() (int, int) { return t.W, t.H }

// At returns the texel at x,y. Out of range reads return zero.
func (t *SoftTexture) At(x, y int) [4]float32 {
	if t == nil || x < 0 || y < 0 || x >= t.W || y >= t.H {
		return [4]float32{}
	}
	i := 4 * (y*t.W + x)
	return [4]float32(t.Pix[i : i+4])
}

// Set writes the texel at x,y. Out of range writes are dropped.
func (t *SoftTexture) Set(x, y int, v [4]float32) {
	if t == nil || x < 0 || y < 0 || x >= t.W || y >= t.H {
		return
	}
	i := 4 * (y*t.W + x)
	copy(t.Pix[i:i+4], v[:])
}

type softBuffer struct{ data []byte }

func (b *softBuffer) Size() int { return len(b.data) }

type softKernel struct {
	name string
	prog *softProgram
}

func (k *softKernel) Name() string { return k.name }

type softProgram struct {
	label   string
	defines map[string]string
	kernels []Kernel
}

func (p *softProgram) Kernels() []Kernel { return p.kernels }

// Software is a reference [Backend] executing registered Go kernels on the CPU.
// Compilation validates the entry point, the requested variant guards and #error
// directives of the source.
type Software struct {
	loop    *Loop
	kernels map[string]KernelFunc
	// Dispatched counts dispatches by "label/kernel".
	Dispatched map[string]int
}

// NewSoftware returns a Software backend delivering completions through loop.
func NewSoftware(loop *Loop) *Software {
	return &Software{
		loop:       loop,
		kernels:    make(map[string]KernelFunc),
		Dispatched: make(map[string]int),
	}
}

// Register sets the function executed by kernels called variant in programs labelled label.
// A label matches programs with the same label or with label followed by ':' and a name,
// so "shape3" matches "shape3:c1". An empty label matches every program without a more
// specific registration.
func (s *Software) Register(label, variant string, fn KernelFunc) {
	s.kernels[label+"/"+variant] = fn
}

func (s *Software) lookup(label, variant string) KernelFunc {
	if fn, ok := s.kernels[label+"/"+variant]; ok {
		return fn
	}
	if template, _, ok := strings.Cut(label, ":"); ok {
		if fn, ok := s.kernels[template+"/"+variant]; ok {
			return fn
		}
	}
	return s.kernels["/"+variant]
}

func (s *Software) Compile(src ProgramSource, done func(Program, error)) {
	prog, err := s.compile(src)
	s.loop.Post(func() {
		if err != nil {
			done(nil, err)
			return
		}
		done(prog, nil)
	})
}

func (s *Software) compile(src ProgramSource) (*softProgram, error) {
	prog := &softProgram{label: src.Label, defines: make(map[string]string)}
	var errs []string
	scanner := bufio.NewScanner(bytes.NewReader(src.Source))
	scanner.Buffer(nil, len(src.Source)+1)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(text, "#error"):
			errs = append(errs, fmt.Sprintf("%d: %s", line, strings.TrimSpace(strings.TrimPrefix(text, "#error"))))
		case strings.HasPrefix(text, "#define "):
			name, value, _ := strings.Cut(strings.TrimPrefix(text, "#define "), " ")
			if _, exists := prog.defines[name]; !exists {
				prog.defines[name] = strings.TrimSpace(value)
			}
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s: %s", ErrCompile, src.Label, strings.Join(errs, "; "))
	}
	if !bytes.Contains(src.Source, []byte("void main()")) {
		return nil, fmt.Errorf("%w: %s: missing entry point", ErrCompile, src.Label)
	}
	prog.kernels = append(prog.kernels, &softKernel{name: "main", prog: prog})
	for _, v := range src.Variants {
		if !bytes.Contains(src.Source, []byte(KernelDefine(v))) {
			return nil, fmt.Errorf("%w: %s: source has no guard for variant %q", ErrCompile, src.Label, v)
		}
		prog.kernels = append(prog.kernels, &softKernel{name: v, prog: prog})
	}
	return prog, nil
}

func (s *Software) NewBuffer(size int) (Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid buffer size %d", size)
	}
	return &softBuffer{data: make([]byte, size)}, nil
}

func (s *Software) WriteBuffer(buf Buffer, data []byte) error {
	b, ok := buf.(*softBuffer)
	if !ok {
		return errBadResource
	}
	if len(data) > len(b.data) {
		return fmt.Errorf("write of %d bytes exceeds buffer of %d", len(data), len(b.data))
	}
	copy(b.data, data)
	return nil
}

func (s *Software) NewTexture(width, height int, f Format) (Texture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid texture size %dx%d", width, height)
	}
	if f != FormatRGBA32F {
		return nil, fmt.Errorf("unsupported texture format %d", f)
	}
	return &SoftTexture{W: width, H: height, Pix: make([]float32, 4*width*height)}, nil
}

func (s *Software) Dispatch(kernel Kernel, groupsX, groupsY int, b *Bindings, done func(error)) {
	err := s.dispatch(kernel, groupsX, groupsY, b)
	s.loop.Post(func() { done(err) })
}

func (s *Software) dispatch(kernel Kernel, groupsX, groupsY int, b *Bindings) error {
	k, ok := kernel.(*softKernel)
	if !ok {
		return errBadResource
	}
	s.Dispatched[k.prog.label+"/"+k.name]++
	inv := Invocation{
		Label:   k.prog.label,
		Kernel:  k.name,
		Defines: k.prog.defines,
		Width:   groupsX * LocalSize,
		Height:  groupsY * LocalSize,
		Pass:    b.Pass,
	}
	if w := int(b.Pass[PassWidth]); w > 0 && w < inv.Width {
		inv.Width = w
	}
	if h := int(b.Pass[PassHeight]); h > 0 && h < inv.Height {
		inv.Height = h
	}
	if buf, ok := b.Data.(*softBuffer); ok {
		inv.Data = make([]float32, len(buf.data)/4)
		for i := range inv.Data {
			inv.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf.data[4*i:]))
		}
	}
	for i, tex := range b.Images {
		if tex == nil {
			continue
		}
		st, ok := tex.(*SoftTexture)
		if !ok {
			return errBadResource
		}
		inv.Images[i] = st
	}
	fn := s.lookup(k.prog.label, k.name)
	if fn == nil {
		sdfgraph.Logger().Debug("software: no kernel registered", slog.String("program", k.prog.label), slog.String("kernel", k.name))
		return nil
	}
	return fn(&inv)
}

func (s *Software) Fill(tex Texture, rgba [4]float32, done func(error)) {
	var err error
	st, ok := tex.(*SoftTexture)
	if !ok {
		err = errBadResource
	} else {
		for i := 0; i < len(st.Pix); i += 4 {
			copy(st.Pix[i:i+4], rgba[:])
		}
	}
	s.loop.Post(func() { done(err) })
}

func (s *Software) ReadTexture(tex Texture, dst []float32, done func(error)) {
	var err error
	st, ok := tex.(*SoftTexture)
	switch {
	case !ok:
		err = errBadResource
	case len(dst) < len(st.Pix):
		err = errShortDestination
	default:
		copy(dst, st.Pix)
	}
	s.loop.Post(func() { done(err) })
}

func (s *Software) Release(resource any) {}
