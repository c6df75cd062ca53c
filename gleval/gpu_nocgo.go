//go:build tinygo || !cgo

package gleval

// GL is unavailable without cgo.
type GL struct{}

// NewGL returns [ErrNoCGO].
func NewGL(loop *Loop) (*GL, func(), error) {
	return nil, nil, ErrNoCGO
}

func (g *GL) Compile(src ProgramSource, done func(Program, error)) { done(nil, ErrNoCGO) }
func (g *GL) NewBuffer(size int) (Buffer, error)                   { return nil, ErrNoCGO }
func (g *GL) WriteBuffer(buf Buffer, data []byte) error            { return ErrNoCGO }
func (g *GL) NewTexture(width, height int, f Format) (Texture, error) {
	return nil, ErrNoCGO
}
func (g *GL) Dispatch(kernel Kernel, groupsX, groupsY int, b *Bindings, done func(error)) {
	done(ErrNoCGO)
}
func (g *GL) Fill(tex Texture, rgba [4]float32, done func(error))      { done(ErrNoCGO) }
func (g *GL) ReadTexture(tex Texture, dst []float32, done func(error)) { done(ErrNoCGO) }
func (g *GL) Release(resource any)                                     {}
