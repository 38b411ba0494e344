// SPDX-License-Identifier: EPL-2.0

package output

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/sirupsen/logrus"

	"github.com/ik5/atomix/audio"
)

// oto allows one context per process, so every device shares it.
var (
	otoMu   sync.Mutex
	otoCtx  *oto.Context
	otoOpts oto.NewContextOptions
)

func otoContext(op oto.NewContextOptions) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx != nil {
		if op.SampleRate != otoOpts.SampleRate || op.ChannelCount != otoOpts.ChannelCount || op.Format != otoOpts.Format {
			return nil, fmt.Errorf("%w: %d Hz %d channels", ErrContextMismatch, otoOpts.SampleRate, otoOpts.ChannelCount)
		}
		return otoCtx, nil
	}

	ctx, ready, err := oto.NewContext(&op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	otoCtx, otoOpts = ctx, op
	return ctx, nil
}

// OtoDevice plays a source through an oto player.
type OtoDevice struct {
	mu     sync.Mutex
	player *oto.Player
	reader *Reader
	closed bool
	log    *logrus.Entry
}

// NewOtoDevice opens the shared oto context for the format of src and
// creates a paused player over it.
func NewOtoDevice(src audio.Source, opts Options) (*OtoDevice, error) {
	format := oto.FormatFloat32LE
	if opts.Format == FormatInt16 {
		format = oto.FormatSignedInt16LE
	}

	ctx, err := otoContext(oto.NewContextOptions{
		SampleRate:   src.SampleRate(),
		ChannelCount: src.Channels(),
		Format:       format,
		BufferSize:   opts.Buffer,
	})
	if err != nil {
		return nil, err
	}

	reader := NewReader(src, opts.Format)
	d := &OtoDevice{
		player: ctx.NewPlayer(reader),
		reader: reader,
		log: opts.logger().WithFields(logrus.Fields{
			"backend":     "oto",
			"sample_rate": src.SampleRate(),
			"channels":    src.Channels(),
			"format":      opts.Format.String(),
		}),
	}
	if opts.Buffer > 0 {
		bytesPerSecond := src.SampleRate() * reader.frameBytes
		d.player.SetBufferSize(int(opts.Buffer * time.Duration(bytesPerSecond) / time.Second))
	}

	d.log.Info("Audio output initialized")
	return d, nil
}

func (d *OtoDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	d.player.Play()
	return nil
}

func (d *OtoDevice) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.closed {
		d.player.Pause()
	}
}

func (d *OtoDevice) SetVolume(v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.closed {
		d.player.SetVolume(v)
	}
}

// IsPlaying reports whether the player is running.
func (d *OtoDevice) IsPlaying() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.closed && d.player.IsPlaying()
}

// Err returns the error that stopped the player, if any.
func (d *OtoDevice) Err() error { return d.player.Err() }

// Close stops the player. The shared context stays open for later devices.
func (d *OtoDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if err := d.player.Close(); err != nil {
		d.log.WithFields(logrus.Fields{
			"function": "Close",
			"error":    err.Error(),
		}).Warn("Failed to close player")
		return fmt.Errorf("closing oto player: %w", err)
	}
	return nil
}
