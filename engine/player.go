// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ik5/atomix/audio"
	"github.com/ik5/atomix/bus"
	"github.com/ik5/atomix/dsp"
	"github.com/ik5/atomix/voice"
)

// Envelope sets the voice amplitude envelope. Times are in milliseconds and
// Sustain is a level in [0, 1].
type Envelope struct {
	AttackMS  float32
	HoldMS    float32
	DecayMS   float32
	Sustain   float32
	ReleaseMS float32
	Curve     Curve
}

// Player is a host-owned controller of playbacks. Its setters only change a
// pending parameter snapshot: Start copies the snapshot into the new
// playback, and Update or UpdateAll commit it to playbacks already running.
//
// Player methods are safe for concurrent use and may be called from server
// callbacks, except Destroy.
type Player struct {
	e  *Engine
	id uint64

	mu        sync.Mutex
	params    Params
	cue       *Cue
	racks     []RackID
	ports     []portRef
	filterCb  FilterFunc
	dataCb    DataRequestFunc
	fader     *FaderConfig
	playbacks []PlaybackID
	latest    PlaybackID
	destroyed bool

	paused     atomic.Bool
	faderState atomic.Int32
}

// ID returns the player id, unique within its engine.
func (p *Player) ID() uint64 { return p.id }

// SetCue selects the content played by the next Start.
func (p *Player) SetCue(c *Cue) {
	p.mu.Lock()
	p.cue = c
	p.mu.Unlock()
}

// SetClip plays clip with no authored parameters.
func (p *Player) SetClip(clip *audio.Clip) {
	p.SetCue(&Cue{Name: clip.Name, Clip: clip})
}

// SetData plays interleaved samples held by the host. The slice is not
// copied and must not change while it plays.
func (p *Player) SetData(sampleRate, channels int, samples []float32) error {
	clip, err := audio.NewClip(sampleRate, channels, samples)
	if err != nil {
		return fmt.Errorf("player %d: %w", p.id, err)
	}
	p.SetClip(clip)
	return nil
}

// Cue returns the content set with SetCue, SetClip or SetData.
func (p *Player) Cue() *Cue {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cue
}

func (p *Player) set(id ParamID, v float32) {
	p.mu.Lock()
	p.params.setValue(id, v)
	p.mu.Unlock()
}

// SetParameter stages any numeric parameter by id.
func (p *Player) SetParameter(id ParamID, v float32) error {
	if !id.Valid() || math.IsNaN(float64(v)) {
		return fmt.Errorf("%w: %d = %v", ErrInvalidParameter, id, v)
	}
	p.set(id, v)
	return nil
}

// Parameter returns the staged value of id and whether it was set.
func (p *Player) Parameter(id ParamID) (float32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.params.Value(id)
}

func (p *Player) SetVolume(v float32) { p.set(ParamVolume, v) }

// SetPitch shifts the pitch in cents.
func (p *Player) SetPitch(cents float32) { p.set(ParamPitch, cents) }

func (p *Player) SetPanType(t PanType) { p.set(ParamPanType, float32(t)) }

// SetPan3DAngle sets the pan angle in degrees; 0 is front, positive is right.
func (p *Player) SetPan3DAngle(deg float32) { p.set(ParamPan3DAngle, deg) }

func (p *Player) SetPan3DDistance(d float32) { p.set(ParamPan3DDistance, d) }
func (p *Player) SetPan3DVolume(v float32)   { p.set(ParamPan3DVolume, v) }
func (p *Player) SetWideness(w float32)      { p.set(ParamWideness, w) }
func (p *Player) SetSpread(s float32)        { p.set(ParamSpread, s) }

// SetBandpassFilterParameters sets normalized cutoffs. Low 0 and high 1
// leave the signal untouched.
func (p *Player) SetBandpassFilterParameters(low, high float32) {
	p.mu.Lock()
	p.params.setValue(ParamBandpassLow, low)
	p.params.setValue(ParamBandpassHigh, high)
	p.mu.Unlock()
}

// SetBiquadFilterParameters configures the voice biquad. freq is
// normalized, gain in dB. A type of BiquadOff disables it.
func (p *Player) SetBiquadFilterParameters(typ dsp.BiquadType, freq, gain, q float32) {
	p.mu.Lock()
	p.params.setValue(ParamBiquadType, float32(typ))
	p.params.setValue(ParamBiquadFrequency, freq)
	p.params.setValue(ParamBiquadGain, gain)
	p.params.setValue(ParamBiquadQ, q)
	p.mu.Unlock()
}

// SetPriority overrides the authored voice priority. Higher wins.
func (p *Player) SetPriority(priority int) { p.set(ParamPriority, float32(priority)) }

func (p *Player) SetEnvelope(env Envelope) {
	p.mu.Lock()
	p.params.setValue(ParamEnvAttack, env.AttackMS)
	p.params.setValue(ParamEnvHold, env.HoldMS)
	p.params.setValue(ParamEnvDecay, env.DecayMS)
	p.params.setValue(ParamEnvSustain, env.Sustain)
	p.params.setValue(ParamEnvRelease, env.ReleaseMS)
	p.params.setValue(ParamEnvCurve, float32(env.Curve))
	p.mu.Unlock()
}

// LimitLoopCount sets how many times the loop region repeats: a count,
// audio.LoopUnlimited or audio.IgnoreLoop. It applies from the next Start.
func (p *Player) LimitLoopCount(count int) { p.set(ParamLoopLimit, float32(count)) }

// SetStartTime skips into the data. It applies from the next Start.
func (p *Player) SetStartTime(d time.Duration) {
	p.set(ParamStartTime, float32(d.Seconds()*1000))
}

func (p *Player) SetCategory(name string) {
	p.mu.Lock()
	p.params.category = &name
	p.mu.Unlock()
}

// SetVoiceLimitGroup overrides the authored group. voice.NoGroupLimitation
// lifts the group ceiling.
func (p *Player) SetVoiceLimitGroup(name string) {
	p.mu.Lock()
	p.params.group = &name
	p.mu.Unlock()
}

func (p *Player) SetVoiceControlMethod(m voice.ControlMethod) {
	p.mu.Lock()
	p.params.control = &m
	p.mu.Unlock()
}

func (p *Player) SetAllocationMode(m voice.AllocationMode) {
	p.mu.Lock()
	p.params.mode = &m
	p.mu.Unlock()
}

// SetBusSendLevel multiplies the authored send to a bus. Sending to a bus the
// cue does not name starts from zero, so use SetBusSendLevelOffset for it.
func (p *Player) SetBusSendLevel(busName string, level float32) {
	p.mu.Lock()
	if p.params.busSends == nil {
		p.params.busSends = make(map[string]float32)
	}
	p.params.busSends[busName] = max(level, 0)
	p.mu.Unlock()
}

// SetBusSendLevelOffset adds to the send level of a bus.
func (p *Player) SetBusSendLevelOffset(busName string, offset float32) {
	p.mu.Lock()
	if p.params.busOffsets == nil {
		p.params.busOffsets = make(map[string]float32)
	}
	p.params.busOffsets[busName] = offset
	p.mu.Unlock()
}

// SetSendLevel routes an input channel to a speaker directly. Once any send
// level is set, panning is replaced by the send level matrix.
func (p *Player) SetSendLevel(channel, speaker int, level float32) error {
	if channel < 0 || speaker < 0 {
		return fmt.Errorf("%w: send level %d -> %d", ErrInvalidParameter, channel, speaker)
	}
	p.mu.Lock()
	if p.params.sendLevels == nil {
		p.params.sendLevels = make(map[[2]int]float32)
	}
	p.params.sendLevels[[2]int{channel, speaker}] = max(level, 0)
	p.mu.Unlock()
	return nil
}

// SetSelectorLabel picks the cue variant played for selector.
func (p *Player) SetSelectorLabel(selector, label string) {
	p.mu.Lock()
	if p.params.selector == nil {
		p.params.selector = make(map[string]string)
	}
	p.params.selector[selector] = label
	p.mu.Unlock()
}

// SetAisacControl sets a control value read by the cue AISAC curves.
func (p *Player) SetAisacControl(control string, value float32) {
	p.mu.Lock()
	if p.params.aisac == nil {
		p.params.aisac = make(map[string]float32)
	}
	p.params.aisac[control] = min(max(value, 0), 1)
	p.mu.Unlock()
}

// Set3DSource positions the emitter. It takes effect with PanPos3D.
func (p *Player) Set3DSource(src bus.Source3D) {
	p.mu.Lock()
	p.params.source = &src
	p.mu.Unlock()
}

func (p *Player) Set3DListener(lis bus.Listener3D) {
	p.mu.Lock()
	p.params.listener = &lis
	p.mu.Unlock()
}

// ResetParameters drops every staged value. Playbacks keep theirs until the
// next Update.
func (p *Player) ResetParameters() {
	p.mu.Lock()
	p.params = Params{}
	p.mu.Unlock()
}

// SetRackIDs routes the next playbacks to the given racks.
func (p *Player) SetRackIDs(ids ...RackID) error {
	if len(ids) == 0 || len(ids) > MaxRacksPerPlayer {
		return fmt.Errorf("%w: %d racks", ErrTooManyPlayerRacks, len(ids))
	}
	for _, id := range ids {
		if id < RackIDDefault {
			return fmt.Errorf("%w: %d", ErrUnknownRack, id)
		}
	}
	p.mu.Lock()
	p.racks = slices.Clone(ids)
	p.mu.Unlock()
	return nil
}

func (p *Player) RackIDs() []RackID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.racks)
}

// AddOutputPort sends the next playbacks to a named port of a rack instead
// of its buses.
func (p *Player) AddOutputPort(rack RackID, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.ports) >= MaxOutputPortsPerPlayer {
		return ErrTooManyPorts
	}
	ref := portRef{rack: rack, name: name}
	if !slices.Contains(p.ports, ref) {
		p.ports = append(p.ports, ref)
	}
	return nil
}

func (p *Player) ClearOutputPorts() {
	p.mu.Lock()
	p.ports = nil
	p.mu.Unlock()
}

// SetFilterCallback installs fn for the next playbacks. Nil removes it.
func (p *Player) SetFilterCallback(fn FilterFunc) {
	p.mu.Lock()
	p.filterCb = fn
	p.mu.Unlock()
}

// SetDataRequestCallback installs fn for the next playbacks. Nil removes it.
func (p *Player) SetDataRequestCallback(fn DataRequestFunc) {
	p.mu.Lock()
	p.dataCb = fn
	p.mu.Unlock()
}

// AttachFader makes every Start crossfade from the previous playback.
func (p *Player) AttachFader(cfg FaderConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.fader = &cfg
	p.mu.Unlock()
	return nil
}

func (p *Player) DetachFader() {
	p.mu.Lock()
	p.fader = nil
	p.mu.Unlock()
	p.faderState.Store(int32(FaderIdle))
}

// FaderState returns the fader state as of the last tick.
func (p *Player) FaderState() FaderState { return FaderState(p.faderState.Load()) }

func (p *Player) faderConfig() (FaderConfig, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fader == nil {
		return FaderConfig{}, false
	}
	return *p.fader, true
}

// Start begins a playback with the staged parameters. The playback is in
// StatusPrep until the next tick gives it a voice.
func (p *Player) Start() (PlaybackID, error) { return p.start(false) }

// Prepare is Start with the playback paused. Resume it with Pause(false) or
// Engine.PausePlayback.
func (p *Player) Prepare() (PlaybackID, error) { return p.start(true) }

func (p *Player) start(paused bool) (PlaybackID, error) {
	if p.e.closed.Load() {
		return InvalidPlayback, ErrEngineClosed
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return InvalidPlayback, ErrPlayerDestroyed
	}
	if p.cue == nil {
		p.e.log.WithFields(logrus.Fields{
			"function": "Start",
			"player":   p.id,
		}).Warn("Player has no data")
		return InvalidPlayback, ErrNoData
	}

	pb := &playback{
		player:   p,
		cue:      p.cue,
		params:   p.params.clone(),
		racks:    slices.Clone(p.racks),
		ports:    slices.Clone(p.ports),
		filterCb: p.filterCb,
		dataCb:   p.dataCb,
	}
	pb.status.Store(int32(StatusPrep))
	pb.paused.Store(paused || p.paused.Load())
	pb.setFadeGain(1)

	p.e.pbMu.Lock()
	pb.id = PlaybackID(p.e.playbacks.Insert(pb).Uint64())
	p.e.pbMu.Unlock()

	p.playbacks = append(p.playbacks, pb.id)
	p.latest = pb.id
	p.e.push(command{kind: cmdStart, pb: pb})

	return pb.id, nil
}

// Stop stops every playback of the player through its release, or through
// the fader fade-out when a fader is attached.
func (p *Player) Stop() {
	p.mu.Lock()
	p.latest = InvalidPlayback
	p.mu.Unlock()
	p.e.push(command{kind: cmdPlayerStop, player: p})
}

// StopWithoutReleaseTime stops every playback of the player at once.
func (p *Player) StopWithoutReleaseTime() {
	p.mu.Lock()
	p.latest = InvalidPlayback
	p.mu.Unlock()
	p.e.push(command{kind: cmdPlayerStopNow, player: p})
}

// Pause pauses or resumes every playback of the player. Playbacks started
// while paused start paused.
func (p *Player) Pause(pause bool) {
	p.paused.Store(pause)
	p.e.push(command{kind: cmdPlayerPause, player: p, pause: pause})
}

func (p *Player) Resume() { p.Pause(false) }

func (p *Player) IsPaused() bool { return p.paused.Load() }

// Update commits the staged parameters to one playback.
func (p *Player) Update(id PlaybackID) error {
	if id == InvalidPlayback {
		return nil
	}
	pb, ok := p.e.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidPlayback, id)
	}
	if pb.player != p {
		return fmt.Errorf("%w: %d", ErrForeignPlayback, id)
	}

	p.mu.Lock()
	params := p.params.clone()
	p.mu.Unlock()

	p.e.push(command{kind: cmdUpdate, pb: pb, params: params})
	return nil
}

// UpdateAll commits the staged parameters to every playback of the player.
func (p *Player) UpdateAll() {
	p.mu.Lock()
	params := p.params.clone()
	p.mu.Unlock()

	p.e.push(command{kind: cmdUpdateAll, player: p, params: params})
}

// Status returns the status of the latest playback, or StatusStop when there
// is none or the player was stopped.
func (p *Player) Status() Status {
	p.mu.Lock()
	latest := p.latest
	p.mu.Unlock()
	return p.e.PlaybackStatus(latest)
}

// Playbacks returns the retained playbacks of the player, oldest first.
func (p *Player) Playbacks() []PlaybackID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.playbacks)
}

// NumPlaying counts the playbacks that can still produce sound.
func (p *Player) NumPlaying() int {
	n := 0
	for _, id := range p.Playbacks() {
		if !p.e.PlaybackStatus(id).Terminal() {
			n++
		}
	}
	return n
}

func (p *Player) own(id PlaybackID) (*playback, bool) {
	pb, ok := p.e.lookup(id)
	if !ok || pb.player != p {
		return nil, false
	}
	return pb, true
}

// Time returns the rendered time of a playback. It stays readable after the
// playback stopped while the engine retains it.
func (p *Player) Time(id PlaybackID) (time.Duration, bool) {
	pb, ok := p.own(id)
	if !ok {
		return 0, false
	}
	return pb.info(p.e.cfg.SamplingRate).Time, true
}

// NumPlayedSamples returns the source frames a playback consumed.
func (p *Player) NumPlayedSamples(id PlaybackID) (int64, bool) {
	pb, ok := p.own(id)
	if !ok {
		return 0, false
	}
	return pb.consumed.Load(), true
}

func (p *Player) forget(id PlaybackID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if i := slices.Index(p.playbacks, id); i >= 0 {
		p.playbacks = slices.Delete(p.playbacks, i, i+1)
	}
	if p.latest == id {
		p.latest = InvalidPlayback
	}
}

// Destroy stops the playbacks of the player at once and releases it.
func (p *Player) Destroy() error {
	if err := p.e.checkBlocking("Player.Destroy"); err != nil {
		return err
	}

	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return ErrPlayerDestroyed
	}
	p.destroyed = true
	p.latest = InvalidPlayback
	p.mu.Unlock()

	p.e.push(command{kind: cmdDestroy, player: p})

	p.e.plMu.Lock()
	delete(p.e.players, p.id)
	p.e.plMu.Unlock()
	return nil
}
