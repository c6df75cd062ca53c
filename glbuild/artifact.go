package glbuild

import (
	"encoding/binary"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"cogentcore.org/core/ordmap"
	"github.com/soypat/sdfgraph"
	"github.com/soypat/sdfgraph/gleval"
)

// Slot is one uniform buffer entry. Only the first component is read by programs.
type Slot [4]float32

// ObjectRef maps an object id of a program to the leaf shape it was assigned to.
type ObjectRef struct {
	ID        int
	Item      *sdfgraph.StageItem
	Component sdfgraph.ComponentID
}

// Monitor describes a variable whose value replaces the primary output of a program.
type Monitor struct {
	Name  string
	Type  string
	Arity int
}

// Artifact is the result of compiling a component or a stream of components.
type Artifact struct {
	// Label identifies the program, i.e: "camera:c5" or "shape3:c1".
	Label     string
	Kind      sdfgraph.Kind
	Component sdfgraph.ComponentID
	Source    []byte
	Variants  []string
	// Program is nil until compilation succeeds.
	Program gleval.Program
	Kernels *ordmap.Map[string, gleval.Kernel]
	// Data is the uniform array. Data[0] holds the time.
	Data []Slot
	// Props maps property and transform keys such as "c3.r" or "c3.posX" to slot indices.
	Props   *ordmap.Map[string, int]
	Objects []ObjectRef
	// IDStart is the first object id of stream programs.
	IDStart int
	Monitor Monitor
	Buffer  gleval.Buffer
	// Err holds the compile error of failed artifacts.
	Err   error
	done  atomic.Bool
	props []propRef

	mu     sync.Mutex
	onDone []func(*Artifact)
}

// propRef records where the value of a property or transform group is written.
type propRef struct {
	Key       string
	Slot      int
	N         int
	Component sdfgraph.ComponentID
	// Def is the ID of the property definition fragment. Zero for transform groups.
	Def  uint64
	Item *sdfgraph.StageItem
	// Ancestors are the components of the stage items enclosing Item, outermost first.
	Ancestors []sdfgraph.ComponentID
	Dim       int
}

func (p *propRef) isTransform() bool { return p.Def == 0 }

func newArtifact(label string, kind sdfgraph.Kind, id sdfgraph.ComponentID) *Artifact {
	return &Artifact{
		Label:     label,
		Kind:      kind,
		Component: id,
		Kernels:   ordmap.New[string, gleval.Kernel](),
		Props:     ordmap.New[string, int](),
	}
}

// Done reports whether compilation finished, successfully or not.
func (art *Artifact) Done() bool { return art.done.Load() }

// Failed reports whether compilation finished without producing a program.
func (art *Artifact) Failed() bool { return art.Done() && art.Program == nil }

// Kernel returns the kernel called name or nil.
func (art *Artifact) Kernel(name string) gleval.Kernel {
	k, _ := art.Kernels.ValueByKeyTry(name)
	return k
}

// Slot returns the slot index of the property or transform value called name.
// A missing name is logged and yields -1.
func (art *Artifact) Slot(name string) int {
	idx, ok := art.Props.ValueByKeyTry(name)
	if !ok {
		sdfgraph.Logger().Warn("glbuild: missing property", slog.String("artifact", art.Label), slog.String("name", name))
		return -1
	}
	return idx
}

// Value returns the current uniform value of the property called name or 0 if missing.
func (art *Artifact) Value(name string) float32 {
	idx := art.Slot(name)
	if idx < 0 || idx >= len(art.Data) {
		return 0
	}
	return art.Data[idx][0]
}

// Bytes returns the uniform array in std140 layout.
func (art *Artifact) Bytes() []byte {
	b := make([]byte, 16*len(art.Data))
	for i, s := range art.Data {
		for j, v := range s {
			binary.LittleEndian.PutUint32(b[16*i+4*j:], math.Float32bits(v))
		}
	}
	return b
}

// WhenDone calls fn once compilation of art finished. fn runs immediately when it
// already did, otherwise from the backend's compile completion.
func (art *Artifact) WhenDone(fn func(*Artifact)) {
	art.mu.Lock()
	if !art.Done() {
		art.onDone = append(art.onDone, fn)
		art.mu.Unlock()
		return
	}
	art.mu.Unlock()
	fn(art)
}

func (art *Artifact) setCompiled(prog gleval.Program, err error) {
	if err != nil {
		art.Err = err
		sdfgraph.Logger().Warn("glbuild: compile failed", slog.String("artifact", art.Label), slog.String("err", err.Error()))
	} else {
		art.Program = prog
		for _, k := range prog.Kernels() {
			art.Kernels.Add(k.Name(), k)
		}
	}
	art.mu.Lock()
	art.done.Store(true)
	pending := art.onDone
	art.onDone = nil
	art.mu.Unlock()
	for _, fn := range pending {
		fn(art)
	}
}
