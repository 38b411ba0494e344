// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"fmt"
	"io"

	"github.com/ik5/atomix/utils"
)

const (
	// MinSpeed and MaxSpeed bound the playback speed multiplier accepted by
	// Resampler.SetSpeed (-4 to +4 octaves).
	MinSpeed = 1.0 / 16
	MaxSpeed = 16.0
)

// Resampler streams from src to a target sample rate using cubic
// interpolation. It works on interleaved samples and preserves the channel
// count. The speed multiplier can be changed between reads, which is how voice
// pitch is applied.
//
// With a ratio of exactly 1 the output is bit-identical to the input.
type Resampler struct {
	src      Source
	dstRate  int
	channels int

	baseRatio float64 // srcRate / dstRate
	ratio     float64 // baseRatio * speed

	// history frames: [0] = t-1, [1] = t0, [2] = t+1, [3] = t+2
	hist   [4][]float32
	real   [4]bool
	primed bool

	pos      float64 // fractional position between hist[1] and hist[2]
	consumed int64   // source frames that passed hist[1]

	srcBuf []float32
	srcLen int // samples buffered in srcBuf
	srcOff int // read offset into srcBuf
	eof    bool

	// one-pole low-pass applied to incoming frames when reading faster than
	// the destination rate
	filterState []float32
	filterAlpha float32
}

func NewResampler(src Source, dstRate int) *Resampler {
	channels := src.Channels()

	r := &Resampler{
		src:         src,
		dstRate:     dstRate,
		channels:    channels,
		baseRatio:   float64(src.SampleRate()) / float64(dstRate),
		srcBuf:      make([]float32, max(src.BufSize(), 256)/channels*channels+channels),
		filterState: make([]float32, channels),
	}
	r.setRatio(r.baseRatio)

	for i := range r.hist {
		r.hist[i] = make([]float32, channels)
	}

	return r
}

func (r *Resampler) SampleRate() int { return r.dstRate }
func (r *Resampler) Channels() int   { return r.channels }
func (r *Resampler) BufSize() int    { return r.src.BufSize() }

func (r *Resampler) Close() error {
	if err := r.src.Close(); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}

// SetSpeed changes the playback speed multiplier applied on top of the rate
// conversion. 2 plays an octave up, 0.5 an octave down.
func (r *Resampler) SetSpeed(speed float64) error {
	if speed < MinSpeed || speed > MaxSpeed {
		return ErrInvalidSpeed
	}
	r.setRatio(r.baseRatio * speed)
	return nil
}

// Ratio returns the current number of source frames consumed per output frame.
func (r *Resampler) Ratio() float64 { return r.ratio }

// Consumed returns how many source frames have been played out.
func (r *Resampler) Consumed() int64 { return r.consumed }

func (r *Resampler) setRatio(ratio float64) {
	r.ratio = ratio
	if ratio > 1 {
		r.filterAlpha = float32(1 / ratio)
	} else {
		r.filterAlpha = 1
	}
}

// loadFrame reads the next source frame into dst. It returns false when the
// source is exhausted.
func (r *Resampler) loadFrame(dst []float32) (bool, error) {
	if r.srcOff >= r.srcLen {
		if r.eof {
			return false, nil
		}
		n, err := r.src.ReadSamples(r.srcBuf)
		r.srcOff = 0
		r.srcLen = n - n%r.channels
		if err == io.EOF {
			r.eof = true
		} else if err != nil {
			return false, fmt.Errorf("%w", err)
		}
		if r.srcLen == 0 {
			if r.eof {
				return false, nil
			}
			return r.loadFrame(dst)
		}
	}

	copy(dst, r.srcBuf[r.srcOff:r.srcOff+r.channels])
	r.srcOff += r.channels

	if r.filterAlpha < 1 {
		for c := range dst {
			dst[c] = r.filterAlpha*dst[c] + (1-r.filterAlpha)*r.filterState[c]
			r.filterState[c] = dst[c]
		}
	}

	return true, nil
}

func (r *Resampler) prime() error {
	r.primed = true

	ok, err := r.loadFrame(r.hist[1])
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	r.real[1] = true
	copy(r.hist[0], r.hist[1])
	copy(r.filterState, r.hist[1])

	for i := 2; i < 4; i++ {
		ok, err := r.loadFrame(r.hist[i])
		if err != nil {
			return err
		}
		if !ok {
			copy(r.hist[i], r.hist[i-1])
		}
		r.real[i] = ok
	}

	return nil
}

// advance shifts the history one frame forward.
func (r *Resampler) advance() error {
	first := r.hist[0]
	copy(r.hist[:], r.hist[1:])
	copy(r.real[:], r.real[1:])
	r.hist[3] = first
	r.consumed++

	ok, err := r.loadFrame(r.hist[3])
	if err != nil {
		return err
	}
	if !ok {
		copy(r.hist[3], r.hist[2])
	}
	r.real[3] = ok

	return nil
}

// ReadSamples produces dst samples at the destination rate.
// dst length should be a multiple of r.channels.
func (r *Resampler) ReadSamples(dst []float32) (int, error) {
	if len(dst)%r.channels != 0 {
		return 0, ErrInvalidDstSize
	}

	if !r.primed {
		if err := r.prime(); err != nil {
			return 0, err
		}
	}

	frames := len(dst) / r.channels
	written := 0

	for written < frames {
		for r.pos >= 1.0 {
			r.pos -= 1.0
			if err := r.advance(); err != nil {
				return written * r.channels, err
			}
		}

		if !r.real[1] {
			return written * r.channels, io.EOF
		}

		alpha := float32(r.pos)
		out := dst[written*r.channels : (written+1)*r.channels]
		for c := range out {
			out[c] = utils.CubicInterpolate(r.hist[0][c], r.hist[1][c], r.hist[2][c], r.hist[3][c], alpha)
		}

		written++
		r.pos += r.ratio
	}

	return written * r.channels, nil
}
