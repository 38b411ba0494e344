// SPDX-License-Identifier: EPL-2.0

package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/ik5/atomix"
	"github.com/ik5/atomix/audio"
	"github.com/ik5/atomix/config"
	"github.com/ik5/atomix/engine"
)

// voiceOptions are the per-input player settings shared by render and play.
type voiceOptions struct {
	volume   float32
	pitch    float32
	spread   float32
	loops    int
	category string
	fade     bool
}

func (o *voiceOptions) register(flags *pflag.FlagSet) {
	flags.Float32Var(&o.volume, "volume", 1, "linear volume of every input")
	flags.Float32Var(&o.pitch, "pitch", 0, "pitch shift in cents")
	flags.Float32Var(&o.spread, "spread", 90, "arc in degrees the inputs are spread over")
	flags.IntVar(&o.loops, "loops", 0, "times each input repeats, -1 forever")
	flags.StringVar(&o.category, "category", "", "category the inputs play in")
	flags.BoolVar(&o.fade, "fade", false, "fade inputs in with the configured fader")
}

// session is an engine with the inputs of one command started on it.
type session struct {
	e       *engine.Engine
	players []*engine.Player
	// length is the longest input at the engine rate, zero when one loops
	// forever.
	length time.Duration
	log    *logrus.Entry
}

func newSession(cfg *config.Config, ec engine.Config, log *logrus.Logger) (*session, error) {
	e, err := engine.New(ec)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	if cfg.BusSetting != nil {
		if err := e.DefaultRack().AttachDspBusSetting(*cfg.BusSetting); err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("failed to attach bus setting %q: %w", cfg.BusSetting.Name, err)
		}
	}

	return &session{
		e:   e,
		log: log.WithField("engine", e.ID().String()),
	}, nil
}

// start loads every input and starts one player per input, spread evenly
// over the arc in opts.
func (s *session) start(cfg *config.Config, inputs []string, opts voiceOptions) error {
	reg := atomix.NewRegistry()
	forever := false

	for i, in := range inputs {
		clip, err := atomix.LoadClipFile(reg, in, audio.LoadOptions{SampleRate: s.e.SampleRate()})
		if err != nil {
			return err
		}

		p, err := s.e.CreatePlayer()
		if err != nil {
			return fmt.Errorf("failed to create player: %w", err)
		}
		p.SetClip(clip)
		p.SetVolume(opts.volume)
		p.SetPitch(opts.pitch)
		if len(inputs) > 1 {
			p.SetPan3DAngle(-opts.spread/2 + opts.spread*float32(i)/float32(len(inputs)-1))
		}
		if opts.category != "" {
			p.SetCategory(opts.category)
		}
		if opts.fade {
			if err := p.AttachFader(cfg.Fader); err != nil {
				return err
			}
		}

		length := clip.Duration()
		if opts.loops != 0 {
			if err := clip.SetLoop(0, clip.Frames()); err != nil {
				return err
			}
			p.LimitLoopCount(opts.loops)
			if opts.loops < 0 {
				forever = true
			} else {
				length *= time.Duration(opts.loops + 1)
			}
		}
		s.length = max(s.length, length)

		if _, err := p.Start(); err != nil {
			return fmt.Errorf("failed to start %s: %w", in, err)
		}
		s.players = append(s.players, p)

		s.log.WithFields(logrus.Fields{
			"input":    in,
			"frames":   clip.Frames(),
			"channels": clip.Channels(),
		}).Debug("Input started")
	}

	if forever {
		s.length = 0
	}
	return nil
}

// done reports whether every input has finished.
func (s *session) done() bool {
	for _, p := range s.players {
		if !p.Status().Terminal() {
			return false
		}
	}
	return true
}

func (s *session) Close() error { return s.e.Close() }
