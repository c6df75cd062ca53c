// Package gleval implements the compute backends that compiled programs run on.
// All completion callbacks of a backend are delivered through its [Loop] so no two
// callbacks ever run concurrently.
package gleval

import (
	"errors"
	"strings"
)

// LocalSize is the width and height of the compute work group of every kernel.
const LocalSize = 8

// Groups returns the amount of work groups needed to cover n invocations.
func Groups(n int) int { return (n + LocalSize - 1) / LocalSize }

// Image binding units shared by every kernel.
const (
	ImageColor = iota
	ImageMask
	ImageObjectID
	ImageDepth
	ImageNormal
	ImageMeta
	ImageRayOrigin
	ImageRayDir
	ImageBackground
	ImageDensity
	ImageResult
	ImageFinal
	NumImages
)

// ImageNames are the names of the image units as declared in kernel sources.
var ImageNames = [NumImages]string{
	ImageColor:      "color",
	ImageMask:       "mask",
	ImageObjectID:   "objectid",
	ImageDepth:      "depth",
	ImageNormal:     "normal",
	ImageMeta:       "meta",
	ImageRayOrigin:  "rayorigin",
	ImageRayDir:     "raydir",
	ImageBackground: "background",
	ImageDensity:    "density",
	ImageResult:     "result",
	ImageFinal:      "final",
}

// ImageUnit returns the binding unit of the image called name or -1.
func ImageUnit(name string) int {
	for i, n := range ImageNames {
		if n == name {
			return i
		}
	}
	return -1
}

// Per dispatch pass parameters, uploaded to uniform binding 1 as vec4 pass[4].
const (
	PassWidth = iota
	PassHeight
	PassFrame
	PassSample
	PassBounce
	PassLight
	PassJitterX
	PassJitterY
	PassLightDirX
	PassLightDirY
	PassLightDirZ
	PassLightIntensity
	PassLightColorR
	PassLightColorG
	PassLightColorB
	PassMixWeight
	PassLen
)

// Format is a texture storage format.
type Format uint8

const (
	FormatRGBA32F Format = iota
)

// ProgramSource is a complete compute program. Every variant kernel is compiled
// from the same source with "#define KERNEL_<VARIANT>" inserted after the #version line.
// The primary kernel is called "main" and is compiled with KERNEL_MAIN defined.
type ProgramSource struct {
	// Label names the program, i.e: "camera:c5", "shape3:c1", "utility".
	// The text before the colon names the program template.
	Label    string
	Source   []byte
	Variants []string
}

// KernelDefine returns the preprocessor name selecting variant.
func KernelDefine(variant string) string {
	return "KERNEL_" + strings.ToUpper(variant)
}

// Program is a compiled program.
type Program interface {
	// Kernels returns the primary kernel followed by the variants in request order.
	Kernels() []Kernel
}

// Kernel is a compiled entry point.
type Kernel interface {
	Name() string
}

// Buffer is a uniform buffer.
type Buffer interface {
	Size() int
}

// Texture is an RGBA float image.
type Texture interface {
	Size() (width, height int)
}

// Bindings are the resources bound for one dispatch.
type Bindings struct {
	// Data is bound as uniform block 0.
	Data   Buffer
	Pass   [PassLen]float32
	Images [NumImages]Texture
}

// Backend is a compute device. Methods must be called from the loop goroutine.
type Backend interface {
	// Compile compiles the primary kernel and the requested variants.
	Compile(src ProgramSource, done func(Program, error))
	NewBuffer(size int) (Buffer, error)
	WriteBuffer(buf Buffer, data []byte) error
	NewTexture(width, height int, f Format) (Texture, error)
	// Dispatch runs kernel over groupsX*groupsY work groups.
	Dispatch(kernel Kernel, groupsX, groupsY int, b *Bindings, done func(error))
	Fill(tex Texture, rgba [4]float32, done func(error))
	// ReadTexture reads the RGBA texels of tex into dst which must have 4*width*height elements.
	ReadTexture(tex Texture, dst []float32, done func(error))
	// Release frees a Program, Buffer or Texture.
	Release(resource any)
}

var (
	// ErrCompile is wrapped by every compile failure.
	ErrCompile = errors.New("compile failed")
	// ErrNoCGO is returned by the GL backend when built without cgo.
	ErrNoCGO            = errors.New("GPU evaluation requires CGo and is not supported on TinyGo")
	errBadResource      = errors.New("resource does not belong to backend")
	errShortDestination = errors.New("destination buffer too short")
)

// InsertDefine returns src with "#define name" inserted after the #version line.
func InsertDefine(src []byte, name string) []byte {
	define := "#define " + name + "\n"
	out := make([]byte, 0, len(src)+len(define))
	idx := strings.Index(string(src), "#version")
	if idx < 0 {
		out = append(out, define...)
		return append(out, src...)
	}
	nl := strings.IndexByte(string(src[idx:]), '\n')
	if nl < 0 {
		out = append(out, src...)
		out = append(out, '\n')
		return append(out, define...)
	}
	cut := idx + nl + 1
	out = append(out, src[:cut]...)
	out = append(out, define...)
	return append(out, src[cut:]...)
}
