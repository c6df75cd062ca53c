// Package glbuild turns components into compute programs. A [Synthesizer]
// compiles single components and, through a [Stream], whole shape
// hierarchies into one program per top level object.
package glbuild

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/soypat/sdfgraph/glbuild/glsllib"
	"github.com/soypat/sdfgraph/glexpr"
	"github.com/soypat/sdfgraph/gleval"
)

const VersionStr = "#version 430\n"

var (
	// ErrNotReady is returned when an artifact has not finished compiling.
	ErrNotReady = errors.New("artifact not compiled yet")
	errNoKind   = errors.New("component kind has no program template")
)

// functionSet accumulates helper and component functions of a program,
// skipping exact duplicates and rejecting distinct bodies sharing a name.
type functionSet struct {
	// names maps shader names to body hashes for checking duplicates.
	names map[uint64]uint64
	src   []byte
}

func (fs *functionSet) add(name, body []byte) error {
	if fs.names == nil {
		fs.names = make(map[uint64]uint64)
	}
	nameHash := glexpr.Hash(name, 0)
	bodyHash := glexpr.Hash(body, nameHash) // Body hash mixes name as well.
	gotBodyHash, nameConflict := fs.names[nameHash]
	if nameConflict {
		if bodyHash == gotBodyHash {
			return nil // Already written and identical, skip.
		}
		return fmt.Errorf("duplicate shader function name %q w/ body:\n%s", name, body)
	}
	fs.names[nameHash] = bodyHash
	fs.src = append(fs.src, body...)
	fs.src = append(fs.src, '\n')
	return nil
}

func (fs *functionSet) addLib(fns ...glsllib.ShaderFunction) error {
	for _, fn := range fns {
		if err := fs.add(fn.Name, fn.Source); err != nil {
			return err
		}
	}
	return nil
}

func AppendDefineDecl(b []byte, aliasToDefine, aliasReplace string) []byte {
	b = append(b, "#define "...)
	b = append(b, aliasToDefine...)
	b = append(b, ' ')
	b = append(b, aliasReplace...)
	b = append(b, '\n')
	return b
}

// appendSlotExpr appends the expression reading n consecutive uniform slots starting at slot.
func appendSlotExpr(b []byte, slot, n int) []byte {
	if n > 1 {
		b = append(b, glexpr.VecType(n)...)
		b = append(b, '(')
	}
	for i := 0; i < n; i++ {
		b = append(b, "data["...)
		b = strconv.AppendInt(b, int64(slot+i), 10)
		b = append(b, "].x"...)
		if i < n-1 {
			b = append(b, ',')
		}
	}
	if n > 1 {
		b = append(b, ')')
	}
	return b
}

// appendHeader appends the declarations shared by every program: the version,
// #error directives, work group size, uniform blocks and image units.
func appendHeader(b []byte, nslots int, errs []string) []byte {
	b = append(b, VersionStr...)
	for _, e := range errs {
		b = append(b, "#error "...)
		b = append(b, e...)
		b = append(b, '\n')
	}
	b = append(b, "layout(local_size_x = "...)
	b = strconv.AppendInt(b, gleval.LocalSize, 10)
	b = append(b, ", local_size_y = "...)
	b = strconv.AppendInt(b, gleval.LocalSize, 10)
	b = append(b, ", local_size_z = 1) in;\n"...)
	b = append(b, "layout(std140, binding = 0) uniform Data { vec4 data["...)
	b = strconv.AppendInt(b, int64(max(nslots, 1)), 10)
	b = append(b, "]; };\n"...)
	b = append(b, "layout(std140, binding = 1) uniform Pass { vec4 pass[4]; };\n"...)
	for unit, name := range gleval.ImageNames {
		b = append(b, "layout(rgba32f, binding = "...)
		b = strconv.AppendInt(b, int64(unit), 10)
		b = append(b, ") uniform image2D img_"...)
		b = append(b, name...)
		b = append(b, ";\n"...)
	}
	b = append(b, passDefines...)
	return b
}

const passDefines = `#define TIME data[0].x
#define RES pass[0].xy
#define FRAME pass[0].z
#define SAMPLE pass[0].w
#define BOUNCE pass[1].x
#define LIGHT pass[1].y
#define JITTER pass[1].zw
#define LIGHT_DIR pass[2].xyz
#define LIGHT_INTENSITY pass[2].w
#define LIGHT_COLOR pass[3].xyz
#define MIX_WEIGHT pass[3].w
`

// mainPrologue computes the pixel and its centered, jittered coordinate with y pointing up.
const mainPrologue = `	ivec2 px = ivec2(gl_GlobalInvocationID.xy);
	if (px.x >= int(RES.x) || px.y >= int(RES.y)) {
		return;
	}
	vec2 uv = ((vec2(px) + 0.5 + JITTER) * 2. - RES) / RES.y;
	uv.y = -uv.y;
`
