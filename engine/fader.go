// SPDX-License-Identifier: EPL-2.0

package engine

import "fmt"

// FaderConfig sets the crossfade times of a player fader.
type FaderConfig struct {
	FadeInTimeMS  int `mapstructure:"fade_in_time_ms"`
	FadeOutTimeMS int `mapstructure:"fade_out_time_ms"`
}

func (c FaderConfig) validate() error {
	if c.FadeInTimeMS < 0 || c.FadeOutTimeMS < 0 {
		return fmt.Errorf("%w: negative fade time", ErrInvalidFader)
	}
	return nil
}

// FaderState is where a fader is in its crossfade.
type FaderState int

const (
	FaderIdle FaderState = iota
	FaderFadingIn
	FaderSteady
	FaderFadingOut
	// FaderForceStopped is reported after a start cut a fading playback short.
	FaderForceStopped
)

func (s FaderState) String() string {
	switch s {
	case FaderFadingIn:
		return "fading-in"
	case FaderSteady:
		return "steady"
	case FaderFadingOut:
		return "fading-out"
	case FaderForceStopped:
		return "force-stopped"
	default:
		return "idle"
	}
}

// ramp moves a gain linearly from one value to another over a frame count.
type ramp struct {
	from, to float32
	pos, n   int
}

func newRamp(from, to float32, frames int) *ramp {
	return &ramp{from: from, to: to, n: frames}
}

func (r *ramp) value() float32 {
	if r.pos >= r.n {
		return r.to
	}
	return r.from + (r.to-r.from)*float32(r.pos)/float32(r.n)
}

// next returns the gain for the next frame and advances.
func (r *ramp) next() float32 {
	v := r.value()
	if r.pos < r.n {
		r.pos++
	}
	return v
}

func (r *ramp) finished() bool { return r.pos >= r.n }

// fader tracks the two playbacks a fader may run. Only the server tick
// touches it.
type fader struct {
	cfg      FaderConfig
	current  *playback
	previous *playback
	forced   bool
}

func (f *fader) state() FaderState {
	switch {
	case f.current != nil && f.current.fade != nil && !f.current.fade.finished():
		if f.current.fade.to == 0 {
			return FaderFadingOut
		}
		return FaderFadingIn
	case f.current != nil && !f.current.terminal():
		return FaderSteady
	case f.previous != nil && !f.previous.terminal():
		return FaderFadingOut
	case f.forced:
		return FaderForceStopped
	}
	return FaderIdle
}
