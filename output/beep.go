// SPDX-License-Identifier: EPL-2.0

package output

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/sirupsen/logrus"

	"github.com/ik5/atomix/audio"
)

// Streamer adapts a source to beep. Mono is copied to both sides and
// anything wider than stereo keeps its first two channels.
type Streamer struct {
	src audio.Source
	buf []float32
	err error
}

var _ beep.Streamer = (*Streamer)(nil)

func NewStreamer(src audio.Source) *Streamer {
	return &Streamer{src: src}
}

// Stream fills samples from the source. It stops early only when the source
// fails or ends.
func (s *Streamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.err != nil {
		return 0, false
	}

	ch := s.src.Channels()
	want := len(samples) * ch
	if cap(s.buf) < want {
		s.buf = make([]float32, want)
	}
	buf := s.buf[:want]

	got, err := s.src.ReadSamples(buf)
	if err != nil {
		s.err = err
	}

	frames := got / ch
	for i := range frames {
		frame := buf[i*ch : (i+1)*ch]
		left := float64(frame[0])
		right := left
		if ch > 1 {
			right = float64(frame[1])
		}
		samples[i] = [2]float64{left, right}
	}

	if frames == 0 && s.err != nil {
		return 0, false
	}
	return frames, true
}

// Err returns the source error that ended the stream. A clean end of stream
// is not an error.
func (s *Streamer) Err() error {
	if errors.Is(s.err, io.EOF) {
		return nil
	}
	return s.err
}

// Format describes the stream for beep.
func (s *Streamer) Format() beep.Format {
	return beep.Format{
		SampleRate:  beep.SampleRate(s.src.SampleRate()),
		NumChannels: 2,
		Precision:   4,
	}
}

const defaultBeepBuffer = 100 * time.Millisecond

// BeepDevice plays a source on the beep speaker.
type BeepDevice struct {
	mu     sync.Mutex
	ctrl   *beep.Ctrl
	volume *effects.Volume
	closed bool
	log    *logrus.Entry
}

// NewBeepDevice initializes the speaker at the source rate and queues a
// paused stream of src.
func NewBeepDevice(src audio.Source, opts Options) (*BeepDevice, error) {
	stream := NewStreamer(src)
	rate := stream.Format().SampleRate

	bufferSize := rate.N(opts.Buffer)
	if bufferSize <= 0 {
		bufferSize = rate.N(defaultBeepBuffer)
	}
	if err := speaker.Init(rate, bufferSize); err != nil {
		return nil, fmt.Errorf("failed to initialize speaker: %w", err)
	}

	volume := &effects.Volume{Streamer: stream, Base: 2}
	d := &BeepDevice{
		ctrl:   &beep.Ctrl{Streamer: volume, Paused: true},
		volume: volume,
		log: opts.logger().WithFields(logrus.Fields{
			"backend":     "beep",
			"sample_rate": int(rate),
		}),
	}
	speaker.Play(d.ctrl)

	d.log.Info("Audio output initialized")
	return d, nil
}

func (d *BeepDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	speaker.Lock()
	d.ctrl.Paused = false
	speaker.Unlock()
	return nil
}

func (d *BeepDevice) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.closed {
		speaker.Lock()
		d.ctrl.Paused = true
		speaker.Unlock()
	}
}

// SetVolume takes a linear gain and stores it as a base 2 exponent.
func (d *BeepDevice) SetVolume(v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	speaker.Lock()
	d.volume.Silent = v <= 0
	if v > 0 {
		d.volume.Volume = math.Log2(v)
	}
	speaker.Unlock()
}

// Close clears the speaker and shuts it down.
func (d *BeepDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	speaker.Clear()
	speaker.Close()
	return nil
}
