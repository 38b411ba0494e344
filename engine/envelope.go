// SPDX-License-Identifier: EPL-2.0

package engine

import "github.com/ik5/atomix/utils"

// Curve shapes the envelope segments.
type Curve int

const (
	CurveLinear Curve = iota
	// CurveSquare starts slow and ends fast.
	CurveSquare
	// CurveInverseSquare starts fast and ends slow.
	CurveInverseSquare
)

func (c Curve) shape(t float32) float32 {
	switch c {
	case CurveSquare:
		return t * t
	case CurveInverseSquare:
		return 1 - (1-t)*(1-t)
	default:
		return t
	}
}

type envStage int

const (
	envAttack envStage = iota
	envHold
	envDecay
	envSustain
	envRelease
	envDone
)

// envelope is an attack-hold-decay-sustain-release gain generator advanced
// one frame at a time.
type envelope struct {
	rate float32

	attack, hold, decay, release int // frames
	sustain                      float32
	curve                        Curve

	stage envStage
	pos   int
	level float32
	from  float32 // level at release start
}

func msToFrames(ms float32, rate float32) int {
	return int(ms * rate / 1000)
}

func newEnvelope(rate int, v *[NumParams]float32) envelope {
	e := envelope{rate: float32(rate)}
	e.configure(v)
	e.enter(envAttack)
	return e
}

// configure installs new times. The current stage keeps running with them.
func (e *envelope) configure(v *[NumParams]float32) {
	e.attack = msToFrames(v[ParamEnvAttack], e.rate)
	e.hold = msToFrames(v[ParamEnvHold], e.rate)
	e.decay = msToFrames(v[ParamEnvDecay], e.rate)
	e.release = msToFrames(v[ParamEnvRelease], e.rate)
	e.sustain = v[ParamEnvSustain]
	e.curve = Curve(v[ParamEnvCurve])
	if e.stage == envSustain {
		e.level = e.sustain
	}
}

func (e *envelope) length() int {
	switch e.stage {
	case envAttack:
		return e.attack
	case envHold:
		return e.hold
	case envDecay:
		return e.decay
	case envRelease:
		return e.release
	}
	return 0
}

// enter moves to stage s, skipping zero-length stages.
func (e *envelope) enter(s envStage) {
	e.stage, e.pos = s, 0
	for e.stage != envSustain && e.stage != envDone && e.length() == 0 {
		switch e.stage {
		case envAttack:
			e.level = 1
			e.stage = envHold
		case envHold:
			e.stage = envDecay
		case envDecay:
			e.level = e.sustain
			e.stage = envSustain
		case envRelease:
			e.level = 0
			e.stage = envDone
		}
	}
	if e.stage == envSustain {
		e.level = e.sustain
	}
}

// startRelease begins the release from the current level.
func (e *envelope) startRelease() {
	if e.stage == envRelease || e.stage == envDone {
		return
	}
	e.from = e.level
	e.enter(envRelease)
}

func (e *envelope) done() bool { return e.stage == envDone }

func (e *envelope) releasing() bool { return e.stage == envRelease || e.stage == envDone }

// next returns the gain for the next frame.
func (e *envelope) next() float32 {
	n := e.length()
	if n == 0 {
		return e.level
	}

	t := float32(e.pos) / float32(n)
	switch e.stage {
	case envAttack:
		e.level = e.curve.shape(t)
	case envHold:
		e.level = 1
	case envDecay:
		e.level = utils.LinearInterpolate(1, e.sustain, e.curve.shape(t))
	case envRelease:
		e.level = utils.LinearInterpolate(e.from, 0, e.curve.shape(t))
	}

	e.pos++
	if e.pos >= n {
		switch e.stage {
		case envAttack:
			e.level = 1
			e.enter(envHold)
		case envHold:
			e.enter(envDecay)
		case envDecay:
			e.enter(envSustain)
		case envRelease:
			e.level = 0
			e.stage = envDone
		}
	}
	return e.level
}
