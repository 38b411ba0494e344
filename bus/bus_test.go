// SPDX-License-Identifier: EPL-2.0

package bus

import (
	"math"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ik5/atomix/dsp"
)

func newGraph(t *testing.T, mapping SpeakerMapping) *Graph {
	t.Helper()

	logger, _ := test.NewNullLogger()
	g, err := NewGraph(Config{
		Mapping:    mapping,
		SampleRate: 48000,
		MaxBuses:   DefaultNumBuses,
		BlockSize:  64,
		Logger:     logger,
	})
	require.NoError(t, err)
	return g
}

func constant(channels, frames int, v float32) [][]float32 {
	planes := make([][]float32, channels)
	for ch := range planes {
		planes[ch] = make([]float32, frames)
		for i := range planes[ch] {
			planes[ch][i] = v
		}
	}
	return planes
}

func TestDefaultSetting(t *testing.T) {
	t.Parallel()

	g := newGraph(t, MappingStereo)
	names := g.BusNames()
	require.Len(t, names, 8)
	assert.Equal(t, MasterBus, names[len(names)-1], "master renders after every bus sending to it")
	assert.Equal(t, MasterBus, g.Master())

	for i := 1; i < 8; i++ {
		level, ok, err := g.SendLevel(names[i-1], MasterBus)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, float32(1), level)
	}
}

func TestGraph_VolumeRoundTrip(t *testing.T) {
	t.Parallel()

	g := newGraph(t, MappingStereo)
	for _, v := range []float32{0, 0.1, 0.333333, 1, 1.75} {
		require.NoError(t, g.SetVolume("BUS3", v))
		got, err := g.Volume("BUS3")
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	assert.ErrorIs(t, g.SetVolume("nope", 1), ErrUnknownBus)
}

func TestGraph_MatrixDefaultsToIdentity(t *testing.T) {
	t.Parallel()

	g := newGraph(t, Mapping51)
	m, err := g.Matrix("BUS1")
	require.NoError(t, err)

	for in := range 6 {
		for out := range 6 {
			want := float32(0)
			if in == out {
				want = 1
			}
			assert.Equal(t, want, m[in*6+out], "m[%d,%d]", in, out)
		}
	}
}

func TestGraph_SetMatrixSwapsChannels(t *testing.T) {
	t.Parallel()

	g := newGraph(t, MappingStereo)
	require.NoError(t, g.SetMatrix(MasterBus, 2, 2, []float32{0, 1, 1, 0}))
	assert.ErrorIs(t, g.SetMatrix(MasterBus, 2, 2, []float32{1}), ErrInvalidMatrix)

	in := [][]float32{{1, 1}, {0, 0}}
	require.NoError(t, g.Accumulate(MasterBus, in, 2, 1))

	out := make([]float32, 4)
	require.NoError(t, g.Process(2, out, nil))
	assert.Equal(t, []float32{0, 1, 0, 1}, out)
}

func TestGraph_AttachValidation(t *testing.T) {
	t.Parallel()

	g := newGraph(t, MappingStereo)

	cyclic := Setting{Name: "cyclic", Buses: []BusSpec{
		{Name: "A", Volume: 1, Sends: []Send{{To: "B", Level: 1}}},
		{Name: "B", Volume: 1, Sends: []Send{{To: "A", Level: 1}}},
	}}
	assert.ErrorIs(t, g.Attach(cyclic), ErrBusCycle)

	assert.ErrorIs(t, g.Attach(DefaultSetting(9)), ErrTooManyBuses)
	assert.ErrorIs(t, g.Attach(Setting{}), ErrEmptySetting)

	dup := Setting{Buses: []BusSpec{{Name: "A"}, {Name: "A"}}}
	assert.ErrorIs(t, g.Attach(dup), ErrDuplicateBus)

	unknown := Setting{Buses: []BusSpec{{Name: "A", Sends: []Send{{To: "Z"}}}}}
	assert.ErrorIs(t, g.Attach(unknown), ErrUnknownBus)

	// failed attaches leave the default setting in place
	assert.Equal(t, "default", g.SettingName())
}

func TestGraph_RuntimeSendMustFollowOrder(t *testing.T) {
	t.Parallel()

	g := newGraph(t, MappingStereo)
	require.NoError(t, g.Attach(Setting{Name: "chain", Buses: []BusSpec{
		{Name: "Master", Volume: 1},
		{Name: "Reverb", Volume: 1, Sends: []Send{{To: "Master", Level: 1}}},
		{Name: "Dry", Volume: 1, Sends: []Send{{To: "Master", Level: 1}}},
	}}))

	assert.NoError(t, g.SetSendLevel("Dry", "Reverb", 0.5), "Dry renders before Reverb")
	assert.ErrorIs(t, g.SetSendLevel("Master", "Dry", 0.5), ErrSendOrder)
	assert.ErrorIs(t, g.SetSendLevel("Dry", "Dry", 0.5), ErrSelfSend)

	require.NoError(t, g.SetSendLevel("Reverb", "Master", 0.25))
	level, ok, _ := g.SendLevel("Reverb", "Master")
	assert.True(t, ok)
	assert.Equal(t, float32(0.25), level)
}

func TestGraph_SendPositions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		pos  SendPosition
		want float32
	}{
		{name: "pre-volume ignores bus volume", pos: PreVolume, want: 1},
		{name: "post-volume follows bus volume", pos: PostVolume, want: 0.5},
		{name: "post-pan follows bus volume", pos: PostPan, want: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g := newGraph(t, MappingMono)
			require.NoError(t, g.Attach(Setting{Buses: []BusSpec{
				{Name: "Master", Volume: 1},
				{Name: "Src", Volume: 0.5, Sends: []Send{{To: "Master", Level: 1, Position: tt.pos}}},
			}}))

			require.NoError(t, g.Accumulate("Src", constant(1, 4, 1), 4, 1))
			out := make([]float32, 4)
			require.NoError(t, g.Process(4, out, nil))
			assert.Equal(t, tt.want, out[0])
		})
	}
}

func TestGraph_ProcessClearsInputs(t *testing.T) {
	t.Parallel()

	g := newGraph(t, MappingStereo)
	require.NoError(t, g.Accumulate("BUS1", constant(2, 8, 0.25), 8, 1))

	out := make([]float32, 16)
	require.NoError(t, g.Process(8, out, nil))
	assert.Equal(t, float32(0.25), out[0])

	require.NoError(t, g.Process(8, out, nil))
	assert.Equal(t, float32(0), out[0])

	assert.ErrorIs(t, g.Process(65, out, nil), ErrInvalidFrameCount)
}

func TestGraph_EffectsRunOnBus(t *testing.T) {
	t.Parallel()

	g := newGraph(t, MappingMono)
	require.NoError(t, g.AddEffect("BUS1", EffectSpec{
		Name:       "lp",
		Interface:  "biquad",
		Parameters: []float32{float32(dsp.LowPass), 0, 0, 0.7071},
	}))

	names, err := g.Effects("BUS1")
	require.NoError(t, err)
	assert.Equal(t, []string{"lp"}, names)

	fx, err := g.Effect("BUS1", "lp")
	require.NoError(t, err)
	freq, _ := fx.Parameter(dsp.BiquadParamFrequency)
	assert.Equal(t, float32(0), freq)

	_, err = g.Effect("BUS1", "missing")
	assert.ErrorIs(t, err, ErrUnknownEffect)
	assert.Error(t, g.AddEffect("BUS1", EffectSpec{Name: "x", Interface: "nope"}))
}

type countingTap struct{ frames int }

func (c *countingTap) Observe(_ [][]float32, frames int) { c.frames += frames }

func TestGraph_TapsBlockAttach(t *testing.T) {
	t.Parallel()

	g := newGraph(t, MappingStereo)
	tap := &countingTap{}
	require.NoError(t, g.AttachTap(MasterBus, tap))

	assert.ErrorIs(t, g.Attach(DefaultSetting(4)), ErrAnalyzerAttached)

	require.NoError(t, g.Process(16, nil, nil))
	assert.Equal(t, 16, tap.frames)

	require.NoError(t, g.DetachTap(tap))
	assert.ErrorIs(t, g.DetachTap(tap), ErrUnknownTap)
	assert.NoError(t, g.Attach(DefaultSetting(4)))
}

func TestGraph_Ports(t *testing.T) {
	t.Parallel()

	g := newGraph(t, MappingStereo)
	require.NoError(t, g.CreatePort("haptics"))
	assert.ErrorIs(t, g.CreatePort("haptics"), ErrDuplicatePort)

	require.NoError(t, g.AccumulatePort("haptics", constant(2, 4, 0.5), 4, 1))

	got := map[string][]float32{}
	out := make([]float32, 8)
	require.NoError(t, g.Process(4, out, func(name string, samples []float32) {
		got[name] = append([]float32(nil), samples...)
	}))

	assert.Equal(t, float32(0), out[0], "ports bypass the bus graph")
	require.Len(t, got["haptics"], 8)
	assert.Equal(t, float32(0.5), got["haptics"][7])
	assert.Equal(t, []string{"haptics"}, g.Ports())
	assert.ErrorIs(t, g.AccumulatePort("none", nil, 0, 1), ErrUnknownPort)
}

func TestMatrix_MonoCenterIsMinus3dB(t *testing.T) {
	t.Parallel()

	m := Matrix(1, MappingStereo, DefaultPanInfo)
	require.Len(t, m, 2)
	assert.InDelta(t, math.Sqrt2/2, m[0], 1e-6)
	assert.Equal(t, m[0], m[1])
}

func TestMatrix_PanAngles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		angle  float32
		wantL  float64
		wantR  float64
		margin float64
	}{
		{name: "hard left", angle: -30, wantL: 1, wantR: 0, margin: 1e-6},
		{name: "hard right", angle: 30, wantL: 0, wantR: 1, margin: 1e-6},
		{name: "behind", angle: 180, wantL: math.Sqrt2 / 2, wantR: math.Sqrt2 / 2, margin: 1e-6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			info := DefaultPanInfo
			info.Angle = tt.angle
			m := Matrix(1, MappingStereo, info)
			assert.InDelta(t, tt.wantL, m[0], tt.margin)
			assert.InDelta(t, tt.wantR, m[1], tt.margin)
		})
	}
}

func TestMatrix_ConstantPower(t *testing.T) {
	t.Parallel()

	for angle := float32(-180); angle < 180; angle += 7.5 {
		info := DefaultPanInfo
		info.Angle = angle
		m := Matrix(1, Mapping71, info)

		var power float64
		for _, g := range m {
			power += float64(g) * float64(g)
		}
		assert.InDelta(t, 1.0, power, 1e-5, "angle %v", angle)
		assert.Zero(t, m[Mapping71.LFE()], "LFE takes no part in panning")
	}
}

func TestMatrix_StereoSourceMapsStraight(t *testing.T) {
	t.Parallel()

	m := Matrix(2, MappingStereo, DefaultPanInfo)
	assert.InDelta(t, 1, m[0], 1e-6) // L -> L
	assert.InDelta(t, 0, m[1], 1e-6) // L -> R
	assert.InDelta(t, 0, m[2], 1e-6) // R -> L
	assert.InDelta(t, 1, m[3], 1e-6) // R -> R
}

func TestMatrix_DistanceBlendsToOmni(t *testing.T) {
	t.Parallel()

	info := DefaultPanInfo
	info.Angle = -30
	info.Distance = 0
	m := Matrix(1, MappingQuad, info)
	for ch, g := range m {
		assert.InDelta(t, 0.5, g, 1e-6, "channel %d", ch)
	}
}

func TestPosition3D(t *testing.T) {
	t.Parallel()

	src := Source3D{MinDistance: 1, MaxDistance: 11}

	src.Position = Vector{X: 5}
	info := Position3D(src, DefaultListener)
	assert.InDelta(t, 90, info.Angle, 1e-4)
	assert.InDelta(t, 0.6, info.Volume, 1e-6)

	src.Position = Vector{Z: -20}
	info = Position3D(src, DefaultListener)
	assert.InDelta(t, 180, math.Abs(float64(info.Angle)), 1e-4)
	assert.Zero(t, info.Volume)

	src.Position = Vector{X: -0.5}
	info = Position3D(src, DefaultListener)
	assert.InDelta(t, -90, info.Angle, 1e-4)
	assert.InDelta(t, 0.5, info.Distance, 1e-6)
	assert.Equal(t, float32(1), info.Volume)
}

func TestParseMapping(t *testing.T) {
	t.Parallel()

	m, err := ParseMapping("5.1")
	require.NoError(t, err)
	assert.Equal(t, Mapping51, m)
	assert.Equal(t, 6, m.Channels())

	_, err = ParseMapping("9.2")
	assert.ErrorIs(t, err, ErrInvalidMapping)
}
