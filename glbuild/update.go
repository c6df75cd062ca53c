package glbuild

import (
	"fmt"
	"log/slog"

	"github.com/soypat/sdfgraph"
)

// UpdateData refreshes the uniform array of art for frame of sequence: the time slot,
// every property from its authored value and every transform group from the sum of
// its own and its ancestors' transforms. Values pass through the [Timeline] when
// one is set. The uniform buffer is uploaded when the artifact has one.
func (s *Synthesizer) UpdateData(art *Artifact, frame, sequence int) error {
	if len(art.Data) == 0 {
		return fmt.Errorf("artifact %s has no uniform array", art.Label)
	}
	art.Data[0][0] = float32(frame) / s.frameRate()
	for i := range art.props {
		p := &art.props[i]
		vals, ok := s.authored(p)
		if !ok {
			continue
		}
		if s.Timeline != nil {
			var node uint32
			if p.Item != nil {
				node = p.Item.ID
			}
			vals = s.Timeline.Transform(sequence, node, p.Key, vals, frame)
		}
		for j := 0; j < p.N && j < len(vals); j++ {
			art.Data[p.Slot+j][0] = vals[j]
		}
	}
	if art.Buffer == nil || s.Backend == nil {
		return nil
	}
	return s.Backend.WriteBuffer(art.Buffer, art.Bytes())
}

func (s *Synthesizer) authored(p *propRef) ([]float32, bool) {
	c := s.Reg.Get(p.Component)
	if c == nil {
		sdfgraph.Logger().Warn("glbuild: property of missing component", slog.String("key", p.Key))
		return nil, false
	}
	if p.isTransform() {
		var t sdfgraph.Transform
		for _, id := range p.Ancestors {
			if anc := s.Reg.Get(id); anc != nil {
				t = t.Add(anc.Transform)
			}
		}
		return t.Add(c.Transform).Values(p.Dim), true
	}
	_, val, ok := c.PropertyDef(p.Def)
	if !ok {
		sdfgraph.Logger().Warn("glbuild: missing property", slog.String("key", p.Key))
		return nil, false
	}
	return c.Arena.ConstValues(val), true
}
