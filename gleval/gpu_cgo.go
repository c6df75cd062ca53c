//go:build !tinygo && cgo

package gleval

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"unsafe"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/soypat/glgl/v4.6-core/glgl"
	"github.com/soypat/sdfgraph"
)

// GL is a [Backend] running kernels as OpenGL 4.6 compute shaders on a hidden window's context.
// The goroutine creating it must be locked to its OS thread and run the [Loop].
type GL struct {
	loop    *Loop
	window  *glfw.Window
	passUBO uint32
}

type glBuffer struct {
	id   uint32
	size int
}

func (b *glBuffer) Size() int { return b.size }

type glTexture struct {
	id   uint32
	w, h int
}

func (t *glTexture) Size() (int, int) { return t.w, t.h }

type glKernel struct {
	name string
	prog glgl.Program
}

func (k *glKernel) Name() string { return k.name }

type glProgram struct{ kernels []Kernel }

func (p *glProgram) Kernels() []Kernel { return p.kernels }

// NewGL creates a hidden 1x1 window with a current OpenGL 4.6 core context.
// The returned function releases the context.
func NewGL(loop *Loop) (*GL, func(), error) {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		return nil, nil, fmt.Errorf("initializing GLFW: %w", err)
	}
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 6)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.False)
	window, err := glfw.CreateWindow(1, 1, "compute", nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, nil, fmt.Errorf("creating GLFW window: %w", err)
	}
	window.MakeContextCurrent()
	if err := gl.Init(); err != nil {
		glfw.Terminate()
		return nil, nil, fmt.Errorf("initializing OpenGL: %w", err)
	}
	g := &GL{loop: loop, window: window}
	g.passUBO = createUBO(4 * PassLen)
	if g.passUBO == 0 {
		glfw.Terminate()
		return nil, nil, glErrOrMessage("creating pass uniform buffer")
	}
	sdfgraph.Logger().Info("gl: context ready", slog.String("version", gl.GoStr(gl.GetString(gl.VERSION))))
	terminate := func() {
		gl.DeleteBuffers(1, &g.passUBO)
		window.Destroy()
		glfw.Terminate()
	}
	return g, terminate, nil
}

func (g *GL) Compile(src ProgramSource, done func(Program, error)) {
	prog, err := g.compile(src)
	g.loop.Post(func() {
		if err != nil {
			done(nil, err)
			return
		}
		done(prog, nil)
	})
}

func (g *GL) compile(src ProgramSource) (*glProgram, error) {
	var prog glProgram
	names := append([]string{"main"}, src.Variants...)
	for _, name := range names {
		code := InsertDefine(src.Source, KernelDefine(name))
		code = append(code, 0)
		p, err := glgl.CompileProgram(glgl.ShaderSource{Compute: string(code)})
		if err != nil {
			g.Release(&prog)
			return nil, fmt.Errorf("%w: %s/%s: %w", ErrCompile, src.Label, name, err)
		}
		prog.kernels = append(prog.kernels, &glKernel{name: name, prog: p})
	}
	return &prog, nil
}

func (g *GL) NewBuffer(size int) (Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid buffer size %d", size)
	}
	id := createUBO(size)
	if id == 0 {
		return nil, glErrOrMessage("creating uniform buffer")
	}
	return &glBuffer{id: id, size: size}, nil
}

func (g *GL) WriteBuffer(buf Buffer, data []byte) error {
	b, ok := buf.(*glBuffer)
	if !ok {
		return errBadResource
	} else if len(data) > b.size {
		return fmt.Errorf("write of %d bytes exceeds buffer of %d", len(data), b.size)
	} else if len(data) == 0 {
		return nil
	}
	gl.BindBuffer(gl.UNIFORM_BUFFER, b.id)
	gl.BufferSubData(gl.UNIFORM_BUFFER, 0, len(data), unsafe.Pointer(&data[0]))
	gl.BindBuffer(gl.UNIFORM_BUFFER, 0)
	return glgl.Err()
}

func (g *GL) NewTexture(width, height int, f Format) (Texture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid texture size %dx%d", width, height)
	} else if f != FormatRGBA32F {
		return nil, fmt.Errorf("unsupported texture format %d", f)
	}
	var id uint32
	gl.GenTextures(1, &id)
	if id == 0 {
		return nil, glErrOrMessage("zero texture id set by GL")
	}
	gl.BindTexture(gl.TEXTURE_2D, id)
	gl.TexStorage2D(gl.TEXTURE_2D, 1, gl.RGBA32F, int32(width), int32(height))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	if err := glgl.Err(); err != nil {
		gl.DeleteTextures(1, &id)
		return nil, err
	}
	return &glTexture{id: id, w: width, h: height}, nil
}

func (g *GL) Dispatch(kernel Kernel, groupsX, groupsY int, b *Bindings, done func(error)) {
	err := g.dispatch(kernel, groupsX, groupsY, b)
	g.loop.Post(func() { done(err) })
}

func (g *GL) dispatch(kernel Kernel, groupsX, groupsY int, b *Bindings) error {
	k, ok := kernel.(*glKernel)
	if !ok {
		return errBadResource
	} else if groupsX <= 0 || groupsY <= 0 {
		return errors.New("zero or negative work group count")
	}
	k.prog.Bind()
	defer k.prog.Unbind()
	if buf, ok := b.Data.(*glBuffer); ok {
		gl.BindBufferBase(gl.UNIFORM_BUFFER, 0, buf.id)
	}
	var p runtime.Pinner
	p.Pin(&b.Pass[0])
	gl.BindBuffer(gl.UNIFORM_BUFFER, g.passUBO)
	gl.BufferSubData(gl.UNIFORM_BUFFER, 0, 4*PassLen, unsafe.Pointer(&b.Pass[0]))
	p.Unpin()
	gl.BindBufferBase(gl.UNIFORM_BUFFER, 1, g.passUBO)
	for unit, tex := range b.Images {
		if tex == nil {
			continue
		}
		t, ok := tex.(*glTexture)
		if !ok {
			return errBadResource
		}
		gl.BindImageTexture(uint32(unit), t.id, 0, false, 0, gl.READ_WRITE, gl.RGBA32F)
	}
	if err := glgl.Err(); err != nil {
		return fmt.Errorf("binding %s resources: %w", k.name, err)
	}
	gl.DispatchCompute(uint32(groupsX), uint32(groupsY), 1)
	gl.MemoryBarrier(gl.SHADER_IMAGE_ACCESS_BARRIER_BIT | gl.TEXTURE_UPDATE_BARRIER_BIT)
	return glgl.Err()
}

func (g *GL) Fill(tex Texture, rgba [4]float32, done func(error)) {
	var err error
	t, ok := tex.(*glTexture)
	if !ok {
		err = errBadResource
	} else {
		gl.ClearTexImage(t.id, 0, gl.RGBA, gl.FLOAT, unsafe.Pointer(&rgba[0]))
		gl.MemoryBarrier(gl.SHADER_IMAGE_ACCESS_BARRIER_BIT)
		err = glgl.Err()
	}
	g.loop.Post(func() { done(err) })
}

func (g *GL) ReadTexture(tex Texture, dst []float32, done func(error)) {
	var err error
	t, ok := tex.(*glTexture)
	switch {
	case !ok:
		err = errBadResource
	case len(dst) < 4*t.w*t.h:
		err = errShortDestination
	default:
		gl.BindTexture(gl.TEXTURE_2D, t.id)
		gl.GetTexImage(gl.TEXTURE_2D, 0, gl.RGBA, gl.FLOAT, unsafe.Pointer(&dst[0]))
		gl.BindTexture(gl.TEXTURE_2D, 0)
		err = glgl.Err()
	}
	g.loop.Post(func() { done(err) })
}

func (g *GL) Release(resource any) {
	switch r := resource.(type) {
	case *glProgram:
		for _, k := range r.kernels {
			k.(*glKernel).prog.Delete()
		}
		r.kernels = nil
	case *glBuffer:
		gl.DeleteBuffers(1, &r.id)
	case *glTexture:
		gl.DeleteTextures(1, &r.id)
	}
}

func createUBO(size int) (ubo uint32) {
	gl.GenBuffers(1, &ubo)
	gl.BindBuffer(gl.UNIFORM_BUFFER, ubo)
	gl.BufferData(gl.UNIFORM_BUFFER, size, nil, gl.DYNAMIC_DRAW)
	gl.BindBuffer(gl.UNIFORM_BUFFER, 0)
	return ubo
}

func glErrOrMessage(defaultMsg string) (err error) {
	err = glgl.Err()
	if err == nil {
		err = errors.New(defaultMsg)
	} else {
		err = fmt.Errorf("%s: %w", defaultMsg, err)
	}
	return err
}
