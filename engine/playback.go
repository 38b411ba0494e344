// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/ik5/atomix/audio"
	"github.com/ik5/atomix/dsp"
	"github.com/ik5/atomix/internal/arena"
	"github.com/ik5/atomix/voice"
)

// PlaybackID identifies one start of a player. InvalidPlayback is accepted
// everywhere and does nothing.
type PlaybackID uint64

const InvalidPlayback PlaybackID = 0

func (id PlaybackID) handle() arena.Handle[*playback] {
	return arena.FromUint64[*playback](uint64(id))
}

// Status of a playback.
type Status int

const (
	StatusStop Status = iota
	StatusPrep
	StatusPlaying
	StatusPlayend
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPrep:
		return "prep"
	case StatusPlaying:
		return "playing"
	case StatusPlayend:
		return "playend"
	case StatusError:
		return "error"
	default:
		return "stop"
	}
}

// Terminal reports whether the playback will not produce sound again.
func (s Status) Terminal() bool {
	return s == StatusStop || s == StatusPlayend || s == StatusError
}

// PlaybackInfo is a snapshot of a playback, also available after it ended
// while the engine retains it.
type PlaybackInfo struct {
	Status Status
	Paused bool
	// Virtual is true while the playback waits for a voice.
	Virtual bool
	// Time is the rendered time at the engine rate.
	Time time.Duration
	// PlayedSamples counts source frames consumed.
	PlayedSamples int64
	// FadeGain is the current fader gain, 1 without a fader.
	FadeGain float32
	Err      error
}

// playback is the engine record of one start. Fields under the atomic block
// are read by host goroutines; the rest belongs to the server tick.
type playback struct {
	id     PlaybackID
	player *Player

	status   atomic.Int32
	paused   atomic.Bool
	virtual  atomic.Bool
	played   atomic.Int64
	consumed atomic.Int64
	fadeBits atomic.Uint32
	err      atomic.Pointer[error]

	cue    *Cue
	params Params
	res    resolved

	racks    []RackID
	ports    []portRef
	filterCb FilterFunc
	dataCb   DataRequestFunc

	hasVoice bool
	voice    voice.ID

	reader *audio.ClipReader
	rs     *audio.Resampler
	env    envelope
	fade   *ramp

	// source frames of clips already chained away
	consumedBase int64

	stopAfterFade bool
	stopping      bool
	ended         bool

	bandpass *dsp.Bandpass
	biquad   *dsp.Section
	biquadOn bool

	buf    []float32
	planes [][]float32
	matrix map[RackID][]float32
}

func (pb *playback) loadStatus() Status { return Status(pb.status.Load()) }

func (pb *playback) terminal() bool { return pb.loadStatus().Terminal() }

func (pb *playback) setFadeGain(g float32) { pb.fadeBits.Store(math.Float32bits(g)) }

func (pb *playback) info(rate int) PlaybackInfo {
	info := PlaybackInfo{
		Status:        pb.loadStatus(),
		Paused:        pb.paused.Load(),
		Virtual:       pb.virtual.Load(),
		Time:          time.Duration(pb.played.Load() * int64(time.Second) / int64(rate)),
		PlayedSamples: pb.consumed.Load(),
		FadeGain:      math.Float32frombits(pb.fadeBits.Load()),
	}
	if err := pb.err.Load(); err != nil {
		info.Err = *err
	}
	return info
}

// EventKind tells what happened to a playback.
type EventKind int

const (
	// EventAllocated fires when a playback gets a voice, first or again.
	EventAllocated EventKind = iota
	// EventDeferred fires when a start waits for a voice.
	EventDeferred
	// EventVirtualized fires when a playing voice was taken and the playback
	// waits to get one back.
	EventVirtualized
	EventStopped
	EventEnded
	EventError
	// EventRemoved fires when a finished playback stops being retained.
	EventRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventAllocated:
		return "allocated"
	case EventDeferred:
		return "deferred"
	case EventVirtualized:
		return "virtualized"
	case EventStopped:
		return "stopped"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return "removed"
	}
}

// PlaybackEvent is delivered to the event callback at the end of a tick.
type PlaybackEvent struct {
	Kind     EventKind
	Playback PlaybackID
	Status   Status
	Err      error
}

// FilterContext describes the block handed to a filter callback.
type FilterContext struct {
	Playback   PlaybackID
	SampleRate int
	Channels   int
	Frames     int
}

// FilterFunc edits decoded voice audio in place before the voice filters and
// panning. It runs on the server tick and must not call blocking engine APIs.
type FilterFunc func(ctx FilterContext, planes [][]float32)

// DataRequestContext is handed to a data request callback when a playback
// runs out of data. The callback chains more data through it.
type DataRequestContext struct {
	Playback PlaybackID
	// Finished is the clip that ran out.
	Finished *audio.Clip

	next  *audio.Clip
	again bool
}

// SetNextClip queues clip to continue the playback without a gap.
func (c *DataRequestContext) SetNextClip(clip *audio.Clip) { c.next = clip }

// SetPreviousDataAgain replays the finished clip.
func (c *DataRequestContext) SetPreviousDataAgain() { c.again = true }

// DataRequestFunc supplies more data for gapless playback. It runs on the
// server tick and must not call blocking engine APIs.
type DataRequestFunc func(ctx *DataRequestContext)

type portRef struct {
	rack RackID
	name string
}
