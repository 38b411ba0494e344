// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"maps"
	"math"
	"slices"

	"github.com/ik5/atomix/audio"
	"github.com/ik5/atomix/bus"
	"github.com/ik5/atomix/dsp"
	"github.com/ik5/atomix/utils"
	"github.com/ik5/atomix/voice"
)

// ParamID names a numeric playback parameter.
type ParamID int

const (
	// ParamVolume is a linear gain.
	ParamVolume ParamID = iota
	// ParamPitch is in cents.
	ParamPitch
	// ParamPanType holds a PanType.
	ParamPanType
	// ParamPan3DAngle is in degrees, wrapped to [-180, 180).
	ParamPan3DAngle
	ParamPan3DDistance
	ParamPan3DVolume
	ParamWideness
	ParamSpread
	ParamBandpassLow
	ParamBandpassHigh
	// ParamBiquadType holds a dsp.BiquadType, or BiquadOff.
	ParamBiquadType
	ParamBiquadFrequency
	// ParamBiquadGain is in dB.
	ParamBiquadGain
	ParamBiquadQ
	ParamPriority
	// Envelope times are in milliseconds.
	ParamEnvAttack
	ParamEnvHold
	ParamEnvDecay
	ParamEnvSustain
	ParamEnvRelease
	// ParamEnvCurve holds a Curve.
	ParamEnvCurve
	// ParamLoopLimit holds a loop count or one of audio.LoopUnlimited and
	// audio.IgnoreLoop.
	ParamLoopLimit
	// ParamStartTime is the start offset in milliseconds.
	ParamStartTime

	NumParams
)

var paramNames = [NumParams]string{
	"volume", "pitch", "pan_type", "pan3d_angle", "pan3d_distance", "pan3d_volume",
	"wideness", "spread", "bandpass_low", "bandpass_high", "biquad_type",
	"biquad_frequency", "biquad_gain", "biquad_q", "priority", "env_attack",
	"env_hold", "env_decay", "env_sustain", "env_release", "env_curve",
	"loop_limit", "start_time",
}

func (id ParamID) String() string {
	if id < 0 || id >= NumParams {
		return "invalid"
	}
	return paramNames[id]
}

// Valid reports whether id names a parameter.
func (id ParamID) Valid() bool { return id >= 0 && id < NumParams }

// PanType selects how a voice is placed on the speakers.
type PanType int

const (
	// PanAuto pans mono sources with the pan 3D parameters and maps
	// multichannel sources straight through.
	PanAuto PanType = iota
	// Pan3D pans every source with the pan 3D parameters.
	Pan3D
	// PanPos3D derives the pan from the 3D source and listener positions.
	PanPos3D
)

// BiquadOff disables the voice biquad.
const BiquadOff = -1

// Strategy is how an authored value and a player value combine.
type Strategy int

const (
	StrategyMultiply Strategy = iota
	StrategyAdd
	// StrategyAddWrap adds and folds the sum into [-180, 180).
	StrategyAddWrap
	// StrategyOverwrite takes the player value when the player set one.
	StrategyOverwrite
)

var strategies = [NumParams]Strategy{
	ParamVolume:          StrategyMultiply,
	ParamPitch:           StrategyAdd,
	ParamPanType:         StrategyOverwrite,
	ParamPan3DAngle:      StrategyAddWrap,
	ParamPan3DDistance:   StrategyOverwrite,
	ParamPan3DVolume:     StrategyMultiply,
	ParamWideness:        StrategyOverwrite,
	ParamSpread:          StrategyOverwrite,
	ParamBandpassLow:     StrategyAdd,
	ParamBandpassHigh:    StrategyMultiply,
	ParamBiquadType:      StrategyOverwrite,
	ParamBiquadFrequency: StrategyAdd,
	ParamBiquadGain:      StrategyMultiply,
	ParamBiquadQ:         StrategyAdd,
	ParamPriority:        StrategyOverwrite,
	ParamEnvAttack:       StrategyOverwrite,
	ParamEnvHold:         StrategyOverwrite,
	ParamEnvDecay:        StrategyOverwrite,
	ParamEnvSustain:      StrategyOverwrite,
	ParamEnvRelease:      StrategyOverwrite,
	ParamEnvCurve:        StrategyOverwrite,
	ParamLoopLimit:       StrategyOverwrite,
	ParamStartTime:       StrategyOverwrite,
}

// StrategyOf returns the combination strategy of a parameter.
func StrategyOf(id ParamID) Strategy { return strategies[id] }

// authoredDefaults are the values of a cue that does not set a parameter.
var authoredDefaults = [NumParams]float32{
	ParamVolume:        1,
	ParamPanType:       float32(PanAuto),
	ParamPan3DDistance: 1,
	ParamPan3DVolume:   1,
	ParamWideness:      1,
	ParamBandpassHigh:  1,
	ParamBiquadType:    BiquadOff,
	ParamBiquadGain:    1,
	ParamEnvSustain:    1,
	ParamEnvCurve:      float32(CurveLinear),
	ParamLoopLimit:     audio.LoopUnlimited,
}

// identity returns the player value that leaves an authored value unchanged.
func identity(id ParamID) float32 {
	if strategies[id] == StrategyMultiply {
		return 1
	}
	return 0
}

// Combine merges an authored value with a player value and clamps the result
// to the parameter range.
func Combine(id ParamID, authored, player float32) float32 {
	var v float32
	switch strategies[id] {
	case StrategyMultiply:
		v = authored * player
	case StrategyAdd:
		v = authored + player
	case StrategyAddWrap:
		v = float32(utils.WrapAngle(float64(authored) + float64(player)))
	default:
		v = player
	}
	return clampParam(id, v)
}

func clampParam(id ParamID, v float32) float32 {
	switch id {
	case ParamVolume, ParamPan3DVolume, ParamEnvAttack, ParamEnvHold, ParamEnvDecay,
		ParamEnvRelease, ParamStartTime:
		return max(v, 0)
	case ParamPitch:
		return utils.Clamp(v, -4800, 4800)
	case ParamPan3DDistance, ParamWideness, ParamSpread, ParamBandpassLow, ParamBandpassHigh,
		ParamBiquadFrequency, ParamEnvSustain:
		return utils.Clamp(v, 0, 1)
	case ParamBiquadQ:
		return utils.Clamp(v, dsp.MinQ, dsp.MaxQ)
	case ParamLoopLimit:
		return float32(max(math.Round(float64(v)), audio.IgnoreLoop))
	}
	return v
}

// Params is a player's parameter snapshot. The zero value leaves every
// authored value unchanged.
type Params struct {
	values [NumParams]float32
	set    [NumParams]bool

	category   *string
	group      *string
	control    *voice.ControlMethod
	mode       *voice.AllocationMode
	busSends   map[string]float32
	busOffsets map[string]float32
	sendLevels map[[2]int]float32
	selector   map[string]string
	aisac      map[string]float32
	source     *bus.Source3D
	listener   *bus.Listener3D
}

func (p *Params) setValue(id ParamID, v float32) {
	p.values[id] = v
	p.set[id] = true
}

// Value returns the player value of id and whether the player set it.
func (p *Params) Value(id ParamID) (float32, bool) {
	if !id.Valid() {
		return 0, false
	}
	if !p.set[id] {
		return identity(id), false
	}
	return p.values[id], true
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// clone returns a deep copy safe to hand to the server tick.
func (p *Params) clone() Params {
	c := *p
	c.category = clonePtr(p.category)
	c.group = clonePtr(p.group)
	c.control = clonePtr(p.control)
	c.mode = clonePtr(p.mode)
	c.source = clonePtr(p.source)
	c.listener = clonePtr(p.listener)
	c.busSends = maps.Clone(p.busSends)
	c.busOffsets = maps.Clone(p.busOffsets)
	c.sendLevels = maps.Clone(p.sendLevels)
	c.selector = maps.Clone(p.selector)
	c.aisac = maps.Clone(p.aisac)
	return c
}

// busSend is a resolved send of a voice into a bus. An empty name is the
// master bus of the rack.
type busSend struct {
	bus   string
	level float32
}

// resolved is what the server renders a playback with.
type resolved struct {
	v          [NumParams]float32
	category   string
	group      string
	control    voice.ControlMethod
	mode       voice.AllocationMode
	sends      []busSend
	sendLevels map[[2]int]float32
	source     *bus.Source3D
	listener   bus.Listener3D
}

// resolve combines the authored values of c with the player snapshot p.
func resolve(c *Cue, p *Params) resolved {
	r := resolved{
		v:        c.authored(),
		category: c.Category,
		group:    c.Group,
		listener: bus.DefaultListener,
	}

	// AISAC curves modulate the authored value before the player overlay.
	for _, a := range c.Aisacs {
		x, ok := p.aisac[a.Control]
		if !ok || !a.Target.Valid() {
			continue
		}
		r.v[a.Target] = Combine(a.Target, r.v[a.Target], a.Value(x))
	}

	for id := range NumParams {
		if strategies[id] == StrategyOverwrite && !p.set[id] {
			continue
		}
		player, _ := p.Value(id)
		r.v[id] = Combine(id, r.v[id], player)
	}

	if p.category != nil {
		r.category = *p.category
	}
	if p.group != nil {
		r.group = *p.group
	}
	if p.control != nil {
		r.control = *p.control
	}
	if p.mode != nil {
		r.mode = *p.mode
	}
	r.source = clonePtr(p.source)
	if p.listener != nil {
		r.listener = *p.listener
	}
	r.sendLevels = maps.Clone(p.sendLevels)

	authored := c.BusSends
	if len(authored) == 0 {
		authored = map[string]float32{"": 1}
	}
	names := make(map[string]struct{}, len(authored)+len(p.busSends)+len(p.busOffsets))
	for n := range authored {
		names[n] = struct{}{}
	}
	for n := range p.busSends {
		names[n] = struct{}{}
	}
	for n := range p.busOffsets {
		names[n] = struct{}{}
	}
	for _, n := range slices.Sorted(maps.Keys(names)) {
		level := authored[n]
		if m, ok := p.busSends[n]; ok {
			level *= m
		}
		level = max(level+p.busOffsets[n], 0)
		if level > 0 {
			r.sends = append(r.sends, busSend{bus: n, level: level})
		}
	}

	return r
}

func (r *resolved) pan() bus.PanInfo {
	return bus.PanInfo{
		Volume:   r.v[ParamPan3DVolume],
		Angle:    r.v[ParamPan3DAngle],
		Distance: r.v[ParamPan3DDistance],
		Wideness: r.v[ParamWideness],
		Spread:   r.v[ParamSpread],
	}
}

func (r *resolved) priority() int  { return int(r.v[ParamPriority]) }
func (r *resolved) loopLimit() int { return int(r.v[ParamLoopLimit]) }
