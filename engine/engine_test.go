// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ik5/atomix/audio"
	"github.com/ik5/atomix/bus"
	"github.com/ik5/atomix/voice"
)

const (
	testRate   = 48000
	testServer = 100
	testFrames = testRate / testServer

	// constant-power center gain on a stereo pair
	center = 0.70710678
)

func newEngine(t testing.TB, mutate func(*Config)) *Engine {
	t.Helper()

	logger, _ := test.NewNullLogger()
	cfg := DefaultConfig()
	cfg.ServerFrequency = testServer
	cfg.Logger = logger
	if mutate != nil {
		mutate(&cfg)
	}

	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func constClip(t testing.TB, channels, frames int, value float32) *audio.Clip {
	t.Helper()

	data := make([]float32, channels*frames)
	for i := range data {
		data[i] = value
	}
	clip, err := audio.NewClip(testRate, channels, data)
	require.NoError(t, err)
	return clip
}

func newPlayer(t testing.TB, e *Engine, clip *audio.Clip) *Player {
	t.Helper()

	p, err := e.CreatePlayer()
	require.NoError(t, err)
	p.SetClip(clip)
	return p
}

// tick runs one server tick and returns the default rack output of it.
func tick(t testing.TB, e *Engine) []float32 {
	t.Helper()

	require.NoError(t, e.ExecuteServer())
	rack := e.DefaultRack()
	out := make([]float32, testFrames*rack.Channels())
	require.Equal(t, len(out), rack.Read(out))
	return out
}

func ticks(t testing.TB, e *Engine, n int) {
	t.Helper()
	for range n {
		tick(t, e)
	}
}

func TestEngine_MonoSourceDefaultRouting(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	assert.Len(t, e.DefaultRack().Graph().BusNames(), bus.DefaultNumBuses)

	p := newPlayer(t, e, constClip(t, 1, testRate, 0.5))
	_, err := p.Start()
	require.NoError(t, err)

	out := tick(t, e)
	for i := 0; i < len(out); i += 2 {
		assert.InDelta(t, 0.5*center, out[i], 1e-5)
		assert.Equal(t, out[i], out[i+1])
	}
	assert.InDelta(t, -3.01, 20*math.Log10(float64(out[0])/0.5), 0.01)
}

func TestPlayer_SetterNeedsUpdate(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	p := newPlayer(t, e, constClip(t, 1, testRate, 0.5))
	pb, err := p.Start()
	require.NoError(t, err)

	before := tick(t, e)

	p.SetVolume(0.5)
	p.SetPitch(1200)
	p.SetPan3DAngle(90)
	unchanged := tick(t, e)
	assert.Equal(t, before, unchanged)

	p.ResetParameters()
	p.SetVolume(0.5)
	require.NoError(t, p.Update(pb))
	after := tick(t, e)
	assert.InDelta(t, 0.25*center, after[0], 1e-5)
	assert.InDelta(t, 0.25*center, after[1], 1e-5)

	p.SetVolume(0)
	p.UpdateAll()
	assert.Equal(t, float32(0), tick(t, e)[0])
}

func TestPlayer_UpdateChecksOwnership(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	clip := constClip(t, 1, testRate, 0.5)
	a, b := newPlayer(t, e, clip), newPlayer(t, e, clip)

	pb, err := a.Start()
	require.NoError(t, err)

	require.ErrorIs(t, b.Update(pb), ErrForeignPlayback)
	require.NoError(t, a.Update(InvalidPlayback))
	require.ErrorIs(t, a.Update(PlaybackID(12345)), ErrInvalidPlayback)
}

func TestPlayer_LoopLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		limit  int
		frames int
	}{
		{name: "no loop-back", limit: 0, frames: 400},
		{name: "one loop-back", limit: 1, frames: 600},
		{name: "two loop-backs", limit: 2, frames: 800},
		{name: "ignore loop", limit: audio.IgnoreLoop, frames: 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := newEngine(t, nil)
			clip := constClip(t, 1, 1000, 0.5)
			require.NoError(t, clip.SetLoop(200, 400))

			p := newPlayer(t, e, clip)
			p.LimitLoopCount(tt.limit)
			pb, err := p.Start()
			require.NoError(t, err)

			for range 10 {
				tick(t, e)
				if e.PlaybackStatus(pb).Terminal() {
					break
				}
			}

			assert.Equal(t, StatusPlayend, e.PlaybackStatus(pb))
			elapsed, ok := p.Time(pb)
			require.True(t, ok)
			assert.Equal(t, time.Duration(tt.frames)*time.Second/testRate, elapsed)
		})
	}
}

func TestPlayer_FaderCrossfade(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	p := newPlayer(t, e, constClip(t, 1, 3*testRate, 1))
	require.NoError(t, p.AttachFader(FaderConfig{FadeInTimeMS: 500, FadeOutTimeMS: 500}))

	fadeTicks := 500 * testServer / 1000

	a, err := p.Start()
	require.NoError(t, err)
	tick(t, e)
	assert.Equal(t, FaderFadingIn, p.FaderState())
	ticks(t, e, fadeTicks-1)

	info, ok := e.PlaybackInfo(a)
	require.True(t, ok)
	assert.InDelta(t, 1, info.FadeGain, 1e-6)
	assert.Equal(t, FaderSteady, p.FaderState())

	require.NoError(t, p.SetData(testRate, 1, constClip(t, 1, 3*testRate, 1).Samples()))
	b, err := p.Start()
	require.NoError(t, err)

	for i := 1; i <= fadeTicks; i++ {
		tick(t, e)
		assert.LessOrEqual(t, p.NumPlaying(), 2)

		if i == fadeTicks/2 {
			ia, _ := e.PlaybackInfo(a)
			ib, _ := e.PlaybackInfo(b)
			assert.InDelta(t, 0.5, ia.FadeGain, 1e-3)
			assert.InDelta(t, 0.5, ib.FadeGain, 1e-3)
			assert.Equal(t, FaderFadingIn, p.FaderState())
		}
	}

	assert.Equal(t, StatusStop, e.PlaybackStatus(a))
	assert.Equal(t, StatusPlaying, e.PlaybackStatus(b))
	ib, _ := e.PlaybackInfo(b)
	assert.InDelta(t, 1, ib.FadeGain, 1e-6)
	assert.Equal(t, FaderSteady, p.FaderState())
}

func TestPlayer_FaderForceStopsFadingPlayback(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	p := newPlayer(t, e, constClip(t, 1, 3*testRate, 1))
	require.NoError(t, p.AttachFader(FaderConfig{FadeInTimeMS: 500, FadeOutTimeMS: 500}))

	a, err := p.Start()
	require.NoError(t, err)
	ticks(t, e, 10)

	b, err := p.Start()
	require.NoError(t, err)
	ticks(t, e, 10)
	require.Equal(t, StatusPlaying, e.PlaybackStatus(a))

	c, err := p.Start()
	require.NoError(t, err)
	tick(t, e)

	assert.Equal(t, StatusStop, e.PlaybackStatus(a))
	assert.Equal(t, StatusPlaying, e.PlaybackStatus(b))
	assert.Equal(t, StatusPlaying, e.PlaybackStatus(c))
	assert.Equal(t, 2, p.NumPlaying())
}

func TestPlayer_FaderValidation(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	p, err := e.CreatePlayer()
	require.NoError(t, err)
	require.ErrorIs(t, p.AttachFader(FaderConfig{FadeInTimeMS: -1}), ErrInvalidFader)
}

func TestEngine_VoicePriority(t *testing.T) {
	t.Parallel()

	e := newEngine(t, func(c *Config) {
		c.VoicePools = []voice.Pool{{Name: "one", NumVoices: 1, MaxChannels: 2, MaxSamplingRate: testRate}}
	})
	clip := constClip(t, 1, testRate, 0.1)

	start := func(priority int, mode voice.AllocationMode) (*Player, PlaybackID) {
		p := newPlayer(t, e, clip)
		p.SetPriority(priority)
		p.SetAllocationMode(mode)
		pb, err := p.Start()
		require.NoError(t, err)
		tick(t, e)
		return p, pb
	}

	_, low := start(5, voice.AllocateOnce)
	assert.Equal(t, StatusPlaying, e.PlaybackStatus(low))

	_, lower := start(1, voice.AllocateOnce)
	assert.Equal(t, StatusError, e.PlaybackStatus(lower))
	info, _ := e.PlaybackInfo(lower)
	assert.ErrorIs(t, info.Err, voice.ErrNoVoice)

	high, pbHigh := start(10, voice.AllocateOnce)
	assert.Equal(t, StatusPlaying, e.PlaybackStatus(pbHigh))
	assert.Equal(t, StatusStop, e.PlaybackStatus(low))

	_, waiting := start(0, voice.AllocateRetry)
	assert.Equal(t, StatusPrep, e.PlaybackStatus(waiting))
	info, _ = e.PlaybackInfo(waiting)
	assert.True(t, info.Virtual)
	assert.Equal(t, 1, e.NumVirtualVoices())

	high.StopWithoutReleaseTime()
	tick(t, e)
	assert.Equal(t, StatusStop, e.PlaybackStatus(pbHigh))
	assert.Equal(t, StatusPlaying, e.PlaybackStatus(waiting))
	assert.Equal(t, 1, e.NumActiveVoices())
	assert.Zero(t, e.NumVirtualVoices())
}

func TestEngine_LimitGroup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		mode       voice.AllocationMode
		wantLosers Status
	}{
		{name: "once rejects", mode: voice.AllocateOnce, wantLosers: StatusError},
		{name: "retry defers", mode: voice.AllocateRetry, wantLosers: StatusPrep},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := newEngine(t, func(c *Config) {
				c.LimitGroups = []voice.LimitGroup{{Name: "sfx", MaxVoices: 2}}
			})
			clip := constClip(t, 1, testRate, 0.1)

			var pbs []PlaybackID
			for range 5 {
				p := newPlayer(t, e, clip)
				p.SetVoiceLimitGroup("sfx")
				p.SetVoiceControlMethod(voice.PreferFirst)
				p.SetAllocationMode(tt.mode)
				pb, err := p.Start()
				require.NoError(t, err)
				pbs = append(pbs, pb)
			}
			tick(t, e)

			for i, pb := range pbs {
				want := StatusPlaying
				if i >= 2 {
					want = tt.wantLosers
				}
				assert.Equal(t, want, e.PlaybackStatus(pb), "playback %d", i)
			}
			assert.Equal(t, 2, e.NumActiveVoices())
		})
	}
}

func TestEngine_CallbackRefusesBlockingCalls(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	p := newPlayer(t, e, constClip(t, 1, testRate, 0.5))

	var rackErr, lockErr, tickErr, getErr error
	var serverTime time.Duration
	var racks []RackID
	var defaultRack *Rack
	p.SetFilterCallback(func(ctx FilterContext, planes [][]float32) {
		_, rackErr = e.CreateRack(RackConfig{})
		lockErr = e.Lock()
		serverTime = e.ServerTime()
		racks = e.Racks()
		defaultRack = e.DefaultRack()
		_, getErr = e.Rack(RackIDDefault)
		p.SetVolume(0.5)
		for _, plane := range planes {
			clear(plane)
		}
	})
	e.SetEventCallback(func(PlaybackEvent) {
		tickErr = e.ExecuteServer()
	})

	_, err := p.Start()
	require.NoError(t, err)
	out := tick(t, e)

	require.ErrorIs(t, rackErr, ErrCalledFromCallback)
	require.ErrorIs(t, lockErr, ErrCalledFromCallback)
	require.ErrorIs(t, tickErr, ErrCalledFromCallback)
	require.NoError(t, getErr)
	assert.Zero(t, serverTime)
	assert.Equal(t, []RackID{RackIDDefault}, racks)
	assert.Same(t, e.DefaultRack(), defaultRack)
	for _, v := range out {
		require.Zero(t, v)
	}

	v, ok := p.Parameter(ParamVolume)
	assert.True(t, ok)
	assert.Equal(t, float32(0.5), v)

	var refused int
	for _, d := range e.Diagnostics() {
		if d.Message == "Blocking API called from a server callback, refused" {
			refused++
		}
	}
	assert.Equal(t, 3, refused)
	assert.Equal(t, []RackID{RackIDDefault}, e.Racks())
}

func TestEngine_LockBatchesCommands(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	clip := constClip(t, 1, testRate, 0.5)
	a, b := newPlayer(t, e, clip), newPlayer(t, e, clip)

	require.NoError(t, e.Lock())
	pa, err := a.Start()
	require.NoError(t, err)
	pbB, err := b.Start()
	require.NoError(t, err)

	require.NoError(t, e.ExecuteServer())
	assert.Equal(t, StatusPrep, e.PlaybackStatus(pa))
	assert.Equal(t, StatusPrep, e.PlaybackStatus(pbB))

	e.Unlock()
	require.NoError(t, e.ExecuteServer())
	assert.Equal(t, StatusPlaying, e.PlaybackStatus(pa))
	assert.Equal(t, StatusPlaying, e.PlaybackStatus(pbB))
}

func TestEngine_Retention(t *testing.T) {
	t.Parallel()

	e := newEngine(t, func(c *Config) { c.RetainedPlaybacks = 2 })
	p := newPlayer(t, e, constClip(t, 1, 100, 0.5))

	var removed []PlaybackID
	e.SetEventCallback(func(ev PlaybackEvent) {
		if ev.Kind == EventRemoved {
			removed = append(removed, ev.Playback)
		}
	})

	var pbs []PlaybackID
	for range 3 {
		pb, err := p.Start()
		require.NoError(t, err)
		pbs = append(pbs, pb)
	}
	tick(t, e)

	assert.Equal(t, []PlaybackID{pbs[0]}, removed)
	_, ok := e.PlaybackInfo(pbs[0])
	assert.False(t, ok)
	assert.Equal(t, StatusStop, e.PlaybackStatus(pbs[0]))

	for _, pb := range pbs[1:] {
		info, ok := e.PlaybackInfo(pb)
		require.True(t, ok)
		assert.Equal(t, StatusPlayend, info.Status)
		assert.Equal(t, int64(100), info.PlayedSamples)
	}
	assert.Equal(t, pbs[1:], p.Playbacks())
}

func TestEngine_RetainNone(t *testing.T) {
	t.Parallel()

	e := newEngine(t, func(c *Config) { c.RetainedPlaybacks = RetainNone })
	p := newPlayer(t, e, constClip(t, 1, 100, 0.5))

	var removed []PlaybackID
	e.SetEventCallback(func(ev PlaybackEvent) {
		if ev.Kind == EventRemoved {
			removed = append(removed, ev.Playback)
		}
	})

	pb, err := p.Start()
	require.NoError(t, err)
	tick(t, e)

	assert.Equal(t, []PlaybackID{pb}, removed)
	_, ok := e.PlaybackInfo(pb)
	assert.False(t, ok)
	assert.Equal(t, RetainNone, e.Config().RetainedPlaybacks)
}

func TestEngine_Events(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	p := newPlayer(t, e, constClip(t, 1, testFrames+10, 0.5))

	var kinds []EventKind
	e.SetEventCallback(func(ev PlaybackEvent) { kinds = append(kinds, ev.Kind) })

	_, err := p.Start()
	require.NoError(t, err)
	ticks(t, e, 3)

	assert.Equal(t, []EventKind{EventAllocated, EventEnded}, kinds)
}

func TestPlayer_DataRequestChaining(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	first := constClip(t, 1, testFrames, 0.25)
	second := constClip(t, 1, testFrames, 0.5)
	p := newPlayer(t, e, first)

	calls := 0
	var chainedAt time.Duration
	p.SetDataRequestCallback(func(ctx *DataRequestContext) {
		calls++
		if calls == 1 {
			assert.Same(t, first, ctx.Finished)
			assert.Equal(t, []RackID{RackIDDefault}, e.Racks())
			chainedAt = e.ServerTime()
			ctx.SetNextClip(second)
		}
	})

	pb, err := p.Start()
	require.NoError(t, err)

	assert.InDelta(t, 0.25*center, tick(t, e)[0], 1e-5)
	assert.InDelta(t, 0.5*center, tick(t, e)[0], 1e-5)
	tick(t, e)

	assert.Equal(t, 2, calls)
	assert.Zero(t, chainedAt)
	assert.Equal(t, StatusPlayend, e.PlaybackStatus(pb))
	elapsed, _ := p.Time(pb)
	assert.Equal(t, 20*time.Millisecond, elapsed)
}

func TestPlayer_DataRequestKeepsPitch(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	first := constClip(t, 1, 2*testFrames, 0.5)
	second := constClip(t, 1, 2*testFrames, 0.5)
	p := newPlayer(t, e, first)
	p.SetPitch(1200)

	chained := false
	p.SetDataRequestCallback(func(ctx *DataRequestContext) {
		if !chained {
			chained = true
			ctx.SetNextClip(second)
		}
	})

	pb, err := p.Start()
	require.NoError(t, err)
	ticks(t, e, 3)

	// an octave up plays each clip in one tick
	assert.True(t, chained)
	assert.Equal(t, StatusPlayend, e.PlaybackStatus(pb))
	played, ok := p.NumPlayedSamples(pb)
	require.True(t, ok)
	assert.InDelta(t, 4*testFrames, played, 8)
}

func TestPlayer_StopRelease(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	p := newPlayer(t, e, constClip(t, 1, 2*testRate, 0.5))
	p.SetEnvelope(Envelope{Sustain: 1, ReleaseMS: 100})

	pb, err := p.Start()
	require.NoError(t, err)
	tick(t, e)

	p.Stop()
	assert.Equal(t, StatusStop, p.Status())

	out := tick(t, e)
	assert.Less(t, out[len(out)-2], out[0])
	ticks(t, e, 8)
	assert.Equal(t, StatusPlaying, e.PlaybackStatus(pb))

	tick(t, e)
	assert.Equal(t, StatusStop, e.PlaybackStatus(pb))
}

func TestPlayer_StopWithoutReleaseTime(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	p := newPlayer(t, e, constClip(t, 1, 2*testRate, 0.5))
	p.SetEnvelope(Envelope{Sustain: 1, ReleaseMS: 100})

	pb, err := p.Start()
	require.NoError(t, err)
	tick(t, e)

	p.StopWithoutReleaseTime()
	out := tick(t, e)
	assert.Equal(t, StatusStop, e.PlaybackStatus(pb))
	assert.Zero(t, out[0])
}

func TestPlayer_PrepareAndPause(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	p := newPlayer(t, e, constClip(t, 1, testRate, 0.5))

	pb, err := p.Prepare()
	require.NoError(t, err)
	out := tick(t, e)
	assert.Zero(t, out[0])
	info, _ := e.PlaybackInfo(pb)
	assert.True(t, info.Paused)

	p.Resume()
	assert.InDelta(t, 0.5*center, tick(t, e)[0], 1e-5)

	e.PausePlayback(pb, true)
	assert.Zero(t, tick(t, e)[0])
	elapsed, ok := p.Time(pb)
	require.True(t, ok)
	assert.Equal(t, 10*time.Millisecond, elapsed)
}

func TestEngine_CategoryVolume(t *testing.T) {
	t.Parallel()

	e := newEngine(t, func(c *Config) {
		c.Categories = []Category{{Name: "music", Volume: 1}}
	})
	p := newPlayer(t, e, constClip(t, 1, testRate, 0.5))
	p.SetCategory("music")
	_, err := p.Start()
	require.NoError(t, err)

	assert.InDelta(t, 0.5*center, tick(t, e)[0], 1e-5)

	require.NoError(t, e.SetCategoryVolume("music", 0.5))
	assert.InDelta(t, 0.25*center, tick(t, e)[0], 1e-5)

	require.NoError(t, e.MuteCategory("music", true))
	assert.Zero(t, tick(t, e)[0])

	require.ErrorIs(t, e.SetCategoryVolume("speech", 1), ErrUnknownCategory)
	require.ErrorIs(t, e.AddCategory(Category{Name: "music"}), ErrDuplicateCategory)
}

func TestPlayer_SendLevelOverridesPan(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	p := newPlayer(t, e, constClip(t, 1, testRate, 0.5))
	require.NoError(t, p.SetSendLevel(0, 1, 1))
	_, err := p.Start()
	require.NoError(t, err)

	out := tick(t, e)
	assert.Zero(t, out[0])
	assert.InDelta(t, 0.5, out[1], 1e-6)
}

func TestPlayer_OutputPortBypassesBuses(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	rack := e.DefaultRack()
	require.NoError(t, rack.CreateOutputPort("vibration"))

	p := newPlayer(t, e, constClip(t, 1, testRate, 0.5))
	require.NoError(t, p.AddOutputPort(RackIDDefault, "vibration"))
	_, err := p.Start()
	require.NoError(t, err)

	out := tick(t, e)
	assert.Zero(t, out[0])

	port := make([]float32, testFrames*rack.Channels())
	n, err := rack.ReadPort("vibration", port)
	require.NoError(t, err)
	assert.Equal(t, len(port), n)
	assert.InDelta(t, 0.5*center, port[0], 1e-5)
}

func TestPlayer_Limits(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	p, err := e.CreatePlayer()
	require.NoError(t, err)

	require.ErrorIs(t, p.SetRackIDs(0, 1, 2, 3, 4, 5, 6, 7, 8), ErrTooManyPlayerRacks)
	require.NoError(t, p.SetRackIDs(0, 1))
	assert.Equal(t, []RackID{0, 1}, p.RackIDs())

	for i := range MaxOutputPortsPerPlayer {
		require.NoError(t, p.AddOutputPort(RackIDDefault, string(rune('a'+i))))
	}
	require.ErrorIs(t, p.AddOutputPort(RackIDDefault, "overflow"), ErrTooManyPorts)

	require.ErrorIs(t, p.SetParameter(NumParams, 1), ErrInvalidParameter)
	_, err = p.Start()
	require.ErrorIs(t, err, ErrNoData)
	assert.NotEmpty(t, e.Diagnostics())
}

func TestPlayer_Destroy(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	p := newPlayer(t, e, constClip(t, 1, testRate, 0.5))
	pb, err := p.Start()
	require.NoError(t, err)
	tick(t, e)
	require.Equal(t, 1, e.NumPlayers())

	require.NoError(t, p.Destroy())
	require.ErrorIs(t, p.Destroy(), ErrPlayerDestroyed)
	_, err = p.Start()
	require.ErrorIs(t, err, ErrPlayerDestroyed)

	tick(t, e)
	assert.Equal(t, StatusStop, e.PlaybackStatus(pb))
	assert.Zero(t, e.NumPlayers())
	assert.Zero(t, e.NumActiveVoices())
}

func TestEngine_Racks(t *testing.T) {
	t.Parallel()

	e := newEngine(t, func(c *Config) { c.MaxRacks = 2 })

	id, err := e.CreateRack(RackConfig{Name: "object", Renderer: RendererObject, OutputChannels: 1})
	require.NoError(t, err)
	_, err = e.CreateRack(RackConfig{})
	require.ErrorIs(t, err, ErrTooManyRacks)

	rack, err := e.Rack(id)
	require.NoError(t, err)
	assert.Equal(t, 1, rack.Channels())

	p := newPlayer(t, e, constClip(t, 1, testRate, 0.5))
	require.NoError(t, p.SetRackIDs(RackIDDefault, id))
	_, err = p.Start()
	require.NoError(t, err)
	tick(t, e)

	out := make([]float32, testFrames)
	require.Equal(t, testFrames, rack.Read(out))
	assert.InDelta(t, 0.5, out[0], 1e-6)

	require.ErrorIs(t, e.DestroyRack(RackIDDefault), ErrRackInUse)
	require.NoError(t, e.DestroyRack(id))
	_, err = e.Rack(id)
	require.ErrorIs(t, err, ErrUnknownRack)
}

func TestRack_OnDemandRead(t *testing.T) {
	t.Parallel()

	e := newEngine(t, func(c *Config) { c.ServerMode = ServerOnDemand })
	rack := e.DefaultRack()

	n, err := rack.ReadSamples(make([]float32, 1000))
	require.NoError(t, err)
	assert.Equal(t, 1000, n)
	assert.Equal(t, 20*time.Millisecond, e.ServerTime())
	assert.Equal(t, 2*testFrames*2-1000, rack.Available())
	assert.Zero(t, rack.Underruns())

	_, err = rack.ReadSamples(make([]float32, 3))
	require.ErrorIs(t, err, audio.ErrInvalidDstSize)
}

func TestRack_OnDemandReadLargerThanQueue(t *testing.T) {
	t.Parallel()

	e := newEngine(t, func(c *Config) { c.ServerMode = ServerOnDemand })
	p := newPlayer(t, e, constClip(t, 1, testRate, 0.5))
	_, err := p.Start()
	require.NoError(t, err)

	rack := e.DefaultRack()
	const want = 2*rackBufferTicks + 1
	out := make([]float32, want*testFrames*rack.Channels())

	n, err := rack.ReadSamples(out)
	require.NoError(t, err)
	assert.Equal(t, len(out), n)
	assert.Equal(t, want*10*time.Millisecond, e.ServerTime())
	assert.Zero(t, rack.Available())
	assert.Zero(t, rack.Underruns())
	assert.Zero(t, rack.Dropped())
	for i, v := range out {
		require.InDelta(t, 0.5*center, v, 1e-5, "sample %d", i)
	}
}

func TestRack_ManualReadUnderrun(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	rack := e.DefaultRack()

	buf := []float32{1, 1, 1, 1}
	n, err := rack.ReadSamples(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []float32{0, 0, 0, 0}, buf)
	assert.Equal(t, uint64(1), rack.Underruns())
}

func TestEngine_Close(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	p := newPlayer(t, e, constClip(t, 1, testRate, 0.5))

	require.NoError(t, e.Close())
	require.ErrorIs(t, e.Close(), ErrEngineClosed)
	require.ErrorIs(t, e.ExecuteServer(), ErrEngineClosed)
	_, err := p.Start()
	require.ErrorIs(t, err, ErrEngineClosed)
	_, err = e.CreatePlayer()
	require.ErrorIs(t, err, ErrEngineClosed)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero config", mutate: func(c *Config) { *c = Config{} }},
		{name: "rate not a tick multiple", mutate: func(c *Config) { c.ServerFrequency = 7 }, wantErr: ErrInvalidConfig},
		{name: "negative tick rate", mutate: func(c *Config) { c.ServerFrequency = -60 }, wantErr: ErrInvalidConfig},
		{name: "no buses", mutate: func(c *Config) { c.NumBuses = -1 }, wantErr: ErrInvalidConfig},
		{name: "mapping mismatch", mutate: func(c *Config) { c.SpeakerMapping = bus.Mapping51 }, wantErr: ErrInvalidConfig},
		{name: "surround", mutate: func(c *Config) { c.OutputChannels, c.SpeakerMapping = 6, bus.Mapping51 }},
		{
			name:    "duplicate category",
			mutate:  func(c *Config) { c.Categories = []Category{{Name: "sfx"}, {Name: "sfx"}} },
			wantErr: ErrDuplicateCategory,
		},
		{name: "bad server mode", mutate: func(c *Config) { c.ServerMode = 9 }, wantErr: ErrInvalidConfig},
		{name: "retain none", mutate: func(c *Config) { c.RetainedPlaybacks = RetainNone }},
		{name: "negative retention", mutate: func(c *Config) { c.RetainedPlaybacks = -2 }, wantErr: ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.mutate(&cfg)

			size, err := CalculateWorkSize(cfg)
			if tt.wantErr != nil {
				require.ErrorIs(t, cfg.Validate(), tt.wantErr)
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, -1, size)
				return
			}
			require.NoError(t, cfg.Validate())
			require.NoError(t, err)
			assert.Positive(t, size)
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	logger, hook := test.NewNullLogger()
	cfg := DefaultConfig()
	cfg.SamplingRate = 44100
	cfg.ServerFrequency = 64
	cfg.Logger = logger

	_, err := New(cfg)
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "Invalid engine configuration", hook.LastEntry().Message)
}

func BenchmarkEngine_ExecuteServer(b *testing.B) {
	e := newEngine(b, nil)
	clip := constClip(b, 2, 10*testRate, 0.1)
	require.NoError(b, clip.SetLoop(0, clip.Frames()))

	for i := range 16 {
		p := newPlayer(b, e, clip)
		p.SetPan3DAngle(float32(i * 20))
		_, err := p.Start()
		require.NoError(b, err)
	}

	rack := e.DefaultRack()
	out := make([]float32, testFrames*rack.Channels())

	b.ReportAllocs()
	for b.Loop() {
		if err := e.ExecuteServer(); err != nil {
			b.Fatal(err)
		}
		rack.Read(out)
	}
}
