package glrender

import (
	"errors"
	"fmt"

	"github.com/soypat/sdfgraph/glbuild"
	"github.com/soypat/sdfgraph/gleval"
)

// Object ids without a leaf shape.
const (
	PickBackground = -1
	PickGround     = groundID
)

var errNoRender = errors.New("glrender: nothing rendered yet")

// Pick reads the object first hit by the camera ray of pixel x,y in the last render and
// calls fn with its id and leaf shape. ref is nil for [PickBackground] and [PickGround].
// Pick fails without a successfully built scene.
func (r *Renderer) Pick(x, y int, fn func(id int, ref *glbuild.ObjectRef, err error)) error {
	if r.scene == nil {
		return errNoScene
	}
	tex := r.textures[gleval.ImageObjectID]
	if tex == nil {
		return errNoRender
	}
	w, h := tex.Size()
	if x < 0 || y < 0 || x >= w || y >= h {
		return fmt.Errorf("glrender: pick %d,%d outside %dx%d image", x, y, w, h)
	}
	gen := r.gen.Load()
	dst := make([]float32, 4*w*h)
	r.backend.ReadTexture(tex, dst, func(err error) {
		if err != nil {
			fn(PickBackground, nil, err)
			return
		}
		if r.gen.Load() != gen {
			fn(PickBackground, nil, errors.New("glrender: pick superseded by a newer build or render"))
			return
		}
		id := int(dst[4*(y*w+x)+1])
		fn(id, r.objectRef(id), nil)
	})
	return nil
}

// objectRef returns the leaf shape assigned object id in the current build.
func (r *Renderer) objectRef(id int) *glbuild.ObjectRef {
	if id < 0 {
		return nil
	}
	for i := range r.objects {
		refs := r.objects[i].art.Objects
		for j := range refs {
			if refs[j].ID == id {
				return &refs[j]
			}
		}
	}
	return nil
}
