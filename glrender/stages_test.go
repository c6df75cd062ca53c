package glrender

import (
	"testing"

	"github.com/soypat/sdfgraph"
	"github.com/soypat/sdfgraph/gleval"
	"github.com/stretchr/testify/assert"
)

func TestJitter(t *testing.T) {
	x, y := jitter(0)
	assert.Zero(t, x)
	assert.Zero(t, y)
	seen := make(map[[2]float32]bool)
	for s := 1; s < 64; s++ {
		x, y := jitter(s)
		assert.True(t, x >= -0.5 && x < 0.5, "sample %d x=%v", s, x)
		assert.True(t, y >= -0.5 && y < 0.5, "sample %d y=%v", s, y)
		assert.False(t, seen[[2]float32{x, y}], "sample %d repeats an offset", s)
		seen[[2]float32{x, y}] = true
	}
}

func TestPassParameters(t *testing.T) {
	r := &Renderer{settings: DefaultSettings()}
	r.settings.Frame = 7
	rn := &run{w: 32, h: 16, sample: 3, bounce: 1}
	p := r.pass(rn)
	assert.EqualValues(t, 32, p[gleval.PassWidth])
	assert.EqualValues(t, 16, p[gleval.PassHeight])
	assert.EqualValues(t, 7, p[gleval.PassFrame])
	assert.EqualValues(t, 3, p[gleval.PassSample])
	assert.EqualValues(t, 1, p[gleval.PassBounce])
	assert.EqualValues(t, 0.25, p[gleval.PassMixWeight])
	assert.NotZero(t, p[gleval.PassJitterX])

	r.settings.Jitter = false
	p = r.pass(rn)
	assert.Zero(t, p[gleval.PassJitterX])
	assert.Zero(t, p[gleval.PassJitterY])

	setLight(&p, 2, sdfgraph.Light{Intensity: 3})
	assert.EqualValues(t, 2, p[gleval.PassLight])
	assert.EqualValues(t, 3, p[gleval.PassLightIntensity])
	assert.Zero(t, p[gleval.PassLightDirX], "zero directions must not be normalized")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "hit-and-normals", StateHitAndNormals.String())
	assert.Equal(t, "State(42)", State(42).String())
}
