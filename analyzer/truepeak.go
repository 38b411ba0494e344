// SPDX-License-Identifier: EPL-2.0

package analyzer

import (
	"fmt"
	"math"
	"sync"

	"github.com/ik5/atomix/utils"
)

const (
	oversample   = 4
	tapsPerPhase = 16
)

// TruePeakInfo holds the highest inter-sample peak per channel since the last
// reset, as linear amplitude and dBTP.
type TruePeakInfo struct {
	NumChannels int
	Peak        [MaxChannels]float32
	PeakDB      [MaxChannels]float32
}

// TruePeak estimates inter-sample peaks by 4x polyphase oversampling.
type TruePeak struct {
	channels int
	phases   [oversample][tapsPerPhase]float32
	history  [][tapsPerPhase]float32
	at       int

	mu   sync.Mutex
	peak [MaxChannels]float32
}

// NewTruePeak returns a true-peak meter.
func NewTruePeak(channels int) (*TruePeak, error) {
	if channels <= 0 || channels > MaxChannels {
		return nil, fmt.Errorf("%w: %d", ErrTooManyChannels, channels)
	}

	tp := &TruePeak{
		channels: channels,
		history:  make([][tapsPerPhase]float32, channels),
	}

	// Blackman-windowed sinc, cut off at the original Nyquist
	const n = oversample * tapsPerPhase
	center := float64(n-1) / 2
	for i := range n {
		x := (float64(i) - center) / oversample
		sinc := 1.0
		if x != 0 {
			sinc = math.Sin(math.Pi*x) / (math.Pi * x)
		}
		w := 0.42 - 0.5*math.Cos(2*math.Pi*float64(i)/(n-1)) + 0.08*math.Cos(4*math.Pi*float64(i)/(n-1))
		tp.phases[i%oversample][i/oversample] = float32(sinc * w)
	}

	return tp, nil
}

func (tp *TruePeak) Observe(planes [][]float32, frames int) {
	var local [MaxChannels]float32

	for i := range frames {
		for ch := range min(len(planes), tp.channels) {
			h := &tp.history[ch]
			h[tp.at] = planes[ch][i]

			for p := range oversample {
				var acc float32
				for k := range tapsPerPhase {
					acc += tp.phases[p][k] * h[(tp.at-k+tapsPerPhase)%tapsPerPhase]
				}
				if a := float32(math.Abs(float64(acc))); a > local[ch] {
					local[ch] = a
				}
			}
		}
		tp.at = (tp.at + 1) % tapsPerPhase
	}

	tp.mu.Lock()
	for ch := range tp.channels {
		tp.peak[ch] = max(tp.peak[ch], local[ch])
	}
	tp.mu.Unlock()
}

// Info returns the running maxima.
func (tp *TruePeak) Info() TruePeakInfo {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	info := TruePeakInfo{NumChannels: tp.channels}
	for ch := range tp.channels {
		info.Peak[ch] = tp.peak[ch]
		info.PeakDB[ch] = float32(utils.AmplitudeToDecibels(float64(tp.peak[ch])))
	}
	return info
}

// Reset clears the maxima and the interpolation history.
func (tp *TruePeak) Reset() {
	for ch := range tp.history {
		tp.history[ch] = [tapsPerPhase]float32{}
	}
	tp.at = 0

	tp.mu.Lock()
	tp.peak = [MaxChannels]float32{}
	tp.mu.Unlock()
}
