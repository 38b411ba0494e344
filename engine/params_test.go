// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ik5/atomix/audio"
	"github.com/ik5/atomix/dsp"
)

func TestCombine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		id       ParamID
		authored float32
		player   float32
		want     float32
	}{
		{name: "volume multiplies", id: ParamVolume, authored: 0.5, player: 0.5, want: 0.25},
		{name: "volume above one tolerated", id: ParamVolume, authored: 1, player: 2, want: 2},
		{name: "pitch adds", id: ParamPitch, authored: 100, player: -300, want: -200},
		{name: "pitch clamped", id: ParamPitch, authored: 4000, player: 4000, want: 4800},
		{name: "angle wraps", id: ParamPan3DAngle, authored: 170, player: 20, want: -170},
		{name: "q adds and clamps", id: ParamBiquadQ, authored: 9, player: 5, want: dsp.MaxQ},
		{name: "bandpass low clamps", id: ParamBandpassLow, authored: 0.8, player: 0.5, want: 1},
		{name: "priority overwrites", id: ParamPriority, authored: 3, player: 7, want: 7},
		{name: "wideness overwrites and clamps", id: ParamWideness, authored: 1, player: 2, want: 1},
		{name: "loop limit rounds", id: ParamLoopLimit, authored: -1, player: 2.6, want: 3},
		{name: "loop limit floor", id: ParamLoopLimit, authored: -1, player: -7, want: audio.IgnoreLoop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, Combine(tt.id, tt.authored, tt.player), 1e-6)
		})
	}
}

func TestParams_UnsetIsIdentity(t *testing.T) {
	t.Parallel()

	var p Params
	for id := range NumParams {
		v, set := p.Value(id)
		assert.False(t, set)
		assert.Equal(t, identity(id), v, id.String())
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	cue := &Cue{
		Params: map[ParamID]float32{
			ParamVolume:     0.5,
			ParamPan3DAngle: 170,
			ParamPriority:   3,
		},
		BusSends: map[string]float32{"": 1, "BUS1": 0.5},
		Category: "sfx",
		Group:    "footsteps",
	}

	t.Run("authored only", func(t *testing.T) {
		t.Parallel()

		r := resolve(cue, &Params{})
		assert.Equal(t, float32(0.5), r.v[ParamVolume])
		assert.Equal(t, float32(170), r.v[ParamPan3DAngle])
		assert.Equal(t, 3, r.priority())
		assert.Equal(t, audio.LoopUnlimited, r.loopLimit())
		assert.Equal(t, "sfx", r.category)
		assert.Equal(t, "footsteps", r.group)
		assert.Equal(t, []busSend{{bus: "", level: 1}, {bus: "BUS1", level: 0.5}}, r.sends)
	})

	t.Run("player overlay", func(t *testing.T) {
		t.Parallel()

		var p Params
		p.setValue(ParamVolume, 0.5)
		p.setValue(ParamPan3DAngle, 20)
		p.setValue(ParamPriority, 9)
		music := "music"
		p.category = &music
		p.busSends = map[string]float32{"BUS1": 0}
		p.busOffsets = map[string]float32{"BUS2": 0.25}

		r := resolve(cue, &p)
		assert.Equal(t, float32(0.25), r.v[ParamVolume])
		assert.Equal(t, float32(-170), r.v[ParamPan3DAngle])
		assert.Equal(t, 9, r.priority())
		assert.Equal(t, "music", r.category)
		assert.Equal(t, []busSend{{bus: "", level: 1}, {bus: "BUS2", level: 0.25}}, r.sends)
	})

	t.Run("player biquad on plain cue", func(t *testing.T) {
		t.Parallel()

		freq := dsp.HzToNormalized(1000)
		var p Params
		p.setValue(ParamBiquadType, float32(dsp.LowPass))
		p.setValue(ParamBiquadFrequency, freq)
		p.setValue(ParamBiquadGain, 0)
		p.setValue(ParamBiquadQ, 0.7071)

		r := resolve(&Cue{}, &p)
		assert.Equal(t, float32(dsp.LowPass), r.v[ParamBiquadType])
		assert.Equal(t, freq, r.v[ParamBiquadFrequency])
		assert.InDelta(t, 1000, dsp.NormalizedToHz(r.v[ParamBiquadFrequency]), 0.5)
		assert.Equal(t, float32(0.7071), r.v[ParamBiquadQ])
	})

	t.Run("aisac before overlay", func(t *testing.T) {
		t.Parallel()

		c := *cue
		c.Aisacs = []Aisac{{
			Control: "speed",
			Target:  ParamVolume,
			Points:  []AisacPoint{{X: 0, Y: 0}, {X: 1, Y: 1}},
		}}

		var p Params
		p.aisac = map[string]float32{"speed": 0.5}
		p.setValue(ParamVolume, 0.5)

		r := resolve(&c, &p)
		assert.InDelta(t, 0.125, r.v[ParamVolume], 1e-6)
	})
}

func TestParams_CloneIsDeep(t *testing.T) {
	t.Parallel()

	var p Params
	group := "a"
	p.group = &group
	p.selector = map[string]string{"surface": "grass"}

	c := p.clone()
	*p.group = "b"
	p.selector["surface"] = "stone"

	assert.Equal(t, "a", *c.group)
	assert.Equal(t, "grass", c.selector["surface"])
}

func TestAisac_Value(t *testing.T) {
	t.Parallel()

	a := Aisac{
		Target: ParamPitch,
		Points: []AisacPoint{{X: 0.2, Y: -100}, {X: 0.6, Y: 300}, {X: 1, Y: 300}},
	}

	tests := []struct {
		x    float32
		want float32
	}{
		{x: 0, want: -100},
		{x: 0.2, want: -100},
		{x: 0.4, want: 100},
		{x: 0.8, want: 300},
		{x: 1, want: 300},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, a.Value(tt.x), 1e-4, "x=%v", tt.x)
	}

	assert.Equal(t, float32(0), Aisac{Target: ParamPitch}.Value(0.5))
	assert.Equal(t, float32(1), Aisac{Target: ParamVolume}.Value(0.5))
}

func TestCue_ClipFor(t *testing.T) {
	t.Parallel()

	def := constClip(t, 1, 10, 0)
	grass := constClip(t, 1, 10, 0)
	cue := &Cue{
		Clip:     def,
		Selector: "surface",
		Variants: map[string]*audio.Clip{"grass": grass},
	}

	assert.Same(t, def, cue.clipFor(nil))
	assert.Same(t, grass, cue.clipFor(map[string]string{"surface": "grass"}))
	assert.Same(t, def, cue.clipFor(map[string]string{"surface": "stone"}))
}

func TestEnvelope_Stages(t *testing.T) {
	t.Parallel()

	v := authoredDefaults
	v[ParamEnvAttack] = 10 // frames at 1 kHz
	v[ParamEnvHold] = 5
	v[ParamEnvDecay] = 10
	v[ParamEnvSustain] = 0.5
	v[ParamEnvRelease] = 10

	env := newEnvelope(1000, &v)

	var got []float32
	for range 30 {
		got = append(got, env.next())
	}
	assert.InDelta(t, 0, got[0], 1e-6)
	assert.InDelta(t, 0.5, got[5], 1e-6)
	assert.Equal(t, float32(1), got[12])
	assert.InDelta(t, 0.75, got[20], 1e-6)
	assert.Equal(t, float32(0.5), got[29])

	env.startRelease()
	require.False(t, env.done())
	for range 10 {
		env.next()
	}
	assert.True(t, env.done())
	assert.Zero(t, env.next())
}

func TestEnvelope_ZeroTimesAreFlat(t *testing.T) {
	t.Parallel()

	v := authoredDefaults
	env := newEnvelope(48000, &v)
	assert.Equal(t, float32(1), env.next())

	env.startRelease()
	assert.True(t, env.done())
}

func TestRamp(t *testing.T) {
	t.Parallel()

	r := newRamp(0, 1, 4)
	assert.Equal(t, []float32{0, 0.25, 0.5, 0.75}, []float32{r.next(), r.next(), r.next(), r.next()})
	assert.True(t, r.finished())
	assert.Equal(t, float32(1), r.next())

	assert.True(t, newRamp(1, 0, 0).finished())
}

func TestSampleQueue(t *testing.T) {
	t.Parallel()

	q := newSampleQueue(4)
	assert.Zero(t, q.push([]float32{1, 2, 3}))
	assert.Equal(t, 2, q.push([]float32{4, 5, 6}))

	out := make([]float32, 4)
	assert.Equal(t, 4, q.pop(out))
	assert.Equal(t, []float32{3, 4, 5, 6}, out)
	assert.Zero(t, q.pop(out))
}
