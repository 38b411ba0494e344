// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ik5/atomix/bus"
	"github.com/ik5/atomix/dsp"
	"github.com/ik5/atomix/voice"
)

// RackID addresses a rack of an engine.
type RackID int

const (
	RackIDDefault RackID = 0
	RackIDInvalid RackID = -1

	MaxRacksPerPlayer       = 8
	MaxOutputPortsPerPlayer = MaxRacksPerPlayer
)

const (
	DefaultServerFrequency   = 60
	DefaultSamplingRate      = 48000
	DefaultMaxRacks          = 4
	DefaultMaxVirtualVoices  = 32
	DefaultRetainedPlaybacks = 256

	// RetainNone forgets playbacks as soon as they finish. Zero takes
	// DefaultRetainedPlaybacks.
	RetainNone = -1

	// rackBufferTicks is how many ticks of output a rack keeps queued.
	rackBufferTicks = 8
)

// ServerMode selects who drives the server tick.
type ServerMode int

const (
	// ServerManual leaves ticking to the host through ExecuteServer.
	ServerManual ServerMode = iota
	// ServerOnDemand ticks whenever a rack output is read and runs dry.
	ServerOnDemand
)

func (m ServerMode) String() string {
	if m == ServerOnDemand {
		return "on-demand"
	}
	return "manual"
}

// Renderer selects how a rack places voices on its channels.
type Renderer int

const (
	// RendererNative pans voices onto the speaker layout.
	RendererNative Renderer = iota
	// RendererObject passes voice channels straight through.
	RendererObject
)

func (r Renderer) String() string {
	if r == RendererObject {
		return "object"
	}
	return "native"
}

// Category is a named volume group shared by many cues.
type Category struct {
	Name   string  `mapstructure:"name"`
	Volume float32 `mapstructure:"volume"`
}

// Config is the engine initialization configuration.
type Config struct {
	// ServerFrequency is the tick rate in Hz. SamplingRate must be a
	// multiple of it.
	ServerFrequency int
	SamplingRate    int
	// NumBuses caps the bus count of the default rack.
	NumBuses int
	// OutputChannels of the default rack. Zero takes the channel count of
	// SpeakerMapping, or stereo when that is unset too.
	OutputChannels int
	SpeakerMapping bus.SpeakerMapping
	Renderer       Renderer
	MaxRacks       int
	ServerMode     ServerMode

	VoicePools       []voice.Pool
	LimitGroups      []voice.LimitGroup
	MaxVirtualVoices int
	// RetainedPlaybacks is how many finished playbacks stay queryable. Zero
	// takes the default, RetainNone keeps none.
	RetainedPlaybacks int
	Categories        []Category

	// Effects resolves effect names of bus settings. Nil gets the built-ins.
	Effects *dsp.Registry
	Logger  *logrus.Logger
	// Context is an opaque platform value handed back by Engine.Context.
	Context any
}

// DefaultVoicePool is used when a Config names no pools.
var DefaultVoicePool = voice.Pool{
	Name:            "standard",
	NumVoices:       32,
	MaxChannels:     8,
	MaxSamplingRate: 192000,
}

// DefaultConfig returns a stereo 48 kHz configuration ticking at 60 Hz.
func DefaultConfig() Config {
	return Config{
		ServerFrequency:   DefaultServerFrequency,
		SamplingRate:      DefaultSamplingRate,
		NumBuses:          bus.DefaultNumBuses,
		OutputChannels:    2,
		SpeakerMapping:    bus.MappingStereo,
		MaxRacks:          DefaultMaxRacks,
		VoicePools:        []voice.Pool{DefaultVoicePool},
		MaxVirtualVoices:  DefaultMaxVirtualVoices,
		RetainedPlaybacks: DefaultRetainedPlaybacks,
	}
}

// resolveMapping picks the speaker layout for a channel count and an
// optional mapping. A zero mapping (mono) with a non-mono channel count
// follows the channel count.
func resolveMapping(channels int, mapping bus.SpeakerMapping) (bus.SpeakerMapping, error) {
	if channels == 0 {
		if mapping == bus.MappingMono {
			return bus.MappingStereo, nil
		}
		if !mapping.Valid() {
			return 0, fmt.Errorf("%w: speaker mapping %s", ErrInvalidConfig, mapping)
		}
		return mapping, nil
	}
	if mapping.Valid() && mapping.Channels() == channels {
		return mapping, nil
	}
	if mapping == bus.MappingMono {
		if m, ok := bus.MappingForChannels(channels); ok {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %d output channels do not fit speaker mapping %s", ErrInvalidConfig, channels, mapping)
}

func (c Config) withDefaults() Config {
	if c.ServerFrequency == 0 {
		c.ServerFrequency = DefaultServerFrequency
	}
	if c.SamplingRate == 0 {
		c.SamplingRate = DefaultSamplingRate
	}
	if c.NumBuses == 0 {
		c.NumBuses = bus.DefaultNumBuses
	}
	if c.MaxRacks == 0 {
		c.MaxRacks = DefaultMaxRacks
	}
	if c.RetainedPlaybacks == 0 {
		c.RetainedPlaybacks = DefaultRetainedPlaybacks
	}
	if len(c.VoicePools) == 0 {
		c.VoicePools = []voice.Pool{DefaultVoicePool}
	}
	if c.Effects == nil {
		c.Effects = dsp.NewRegistry()
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return c
}

// Validate checks the configuration after defaults are filled in.
func (c Config) Validate() error {
	c = c.withDefaults()
	return c.validate()
}

func (c Config) validate() error {
	switch {
	case c.ServerFrequency <= 0:
		return fmt.Errorf("%w: server frequency %d", ErrInvalidConfig, c.ServerFrequency)
	case c.SamplingRate <= 0:
		return fmt.Errorf("%w: sampling rate %d", ErrInvalidConfig, c.SamplingRate)
	case c.SamplingRate%c.ServerFrequency != 0:
		return fmt.Errorf("%w: sampling rate %d is not a multiple of server frequency %d",
			ErrInvalidConfig, c.SamplingRate, c.ServerFrequency)
	case c.NumBuses < 1:
		return fmt.Errorf("%w: %d buses", ErrInvalidConfig, c.NumBuses)
	case c.MaxRacks < 1:
		return fmt.Errorf("%w: %d racks", ErrInvalidConfig, c.MaxRacks)
	case c.RetainedPlaybacks < RetainNone || c.MaxVirtualVoices < 0:
		return fmt.Errorf("%w: negative limit", ErrInvalidConfig)
	case c.ServerMode != ServerManual && c.ServerMode != ServerOnDemand:
		return fmt.Errorf("%w: server mode %d", ErrInvalidConfig, c.ServerMode)
	case c.Renderer != RendererNative && c.Renderer != RendererObject:
		return fmt.Errorf("%w: renderer %d", ErrInvalidConfig, c.Renderer)
	}

	if _, err := resolveMapping(c.OutputChannels, c.SpeakerMapping); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(c.Categories))
	for _, cat := range c.Categories {
		if cat.Name == "" {
			return fmt.Errorf("%w: unnamed category", ErrInvalidConfig)
		}
		if _, dup := seen[cat.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateCategory, cat.Name)
		}
		seen[cat.Name] = struct{}{}
	}

	for _, p := range c.VoicePools {
		if p.NumVoices < 0 || p.MaxChannels <= 0 || p.MaxSamplingRate <= 0 {
			return fmt.Errorf("%w: voice pool %q", ErrInvalidConfig, p.Name)
		}
	}

	return nil
}

// FramesPerTick returns how many frames one server tick renders.
func (c Config) FramesPerTick() int {
	c = c.withDefaults()
	if c.ServerFrequency <= 0 {
		return 0
	}
	return c.SamplingRate / c.ServerFrequency
}

const (
	playbackRecordSize = 512
	voiceStateSize     = 256
)

// CalculateWorkSize estimates the bytes an engine with cfg allocates for its
// render buffers. It returns -1 and the reason when cfg is invalid.
func CalculateWorkSize(cfg Config) (int, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return -1, err
	}

	frames := cfg.SamplingRate / cfg.ServerFrequency
	mapping, _ := resolveMapping(cfg.OutputChannels, cfg.SpeakerMapping)
	channels := mapping.Channels()
	const sample = 4

	// bus planes and scratch, plus the output queue
	rack := cfg.NumBuses*2*channels*frames*sample + rackBufferTicks*channels*frames*sample

	voices := 0
	for _, p := range cfg.VoicePools {
		// interleaved read buffer, planes and panned planes
		perVoice := p.MaxChannels*frames*sample*2 + channels*frames*sample + voiceStateSize
		voices += p.NumVoices * perVoice
	}

	return cfg.MaxRacks*rack + voices + cfg.retained()*playbackRecordSize, nil
}

// retained returns the resolved retention count.
func (c *Config) retained() int { return max(c.RetainedPlaybacks, 0) }
