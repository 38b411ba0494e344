// SPDX-License-Identifier: EPL-2.0

package dsp

// Bandpass parameter indices. Both cutoffs are normalized, see NormalizedToHz.
const (
	BandpassParamLow = iota
	BandpassParamHigh

	numBandpassParams
)

// Bandpass is a high-pass at the low cutoff followed by a low-pass at the high
// cutoff. A low cutoff of 0 and a high cutoff of 1 leave the signal untouched.
type Bandpass struct {
	rate     float64
	low      *Section
	high     *Section
	lowOn    bool
	highOn   bool
	lowCut   float32
	highCut  float32
	channels int
}

// NewBandpass returns a pass-through bandpass.
func NewBandpass(sampleRate, channels int) *Bandpass {
	return &Bandpass{
		rate:     float64(sampleRate),
		low:      NewSection(channels),
		high:     NewSection(channels),
		highCut:  1,
		channels: channels,
	}
}

// BandpassInterface is the built-in bandpass effect.
var BandpassInterface = Interface{
	Name:     "bandpass",
	Defaults: []float32{0, 1},
	New: func(sampleRate, channels int) (Effect, error) {
		return NewBandpass(sampleRate, channels), nil
	},
}

// SetCutoffs installs normalized cutoffs.
func (b *Bandpass) SetCutoffs(low, high float32) {
	if low == b.lowCut && high == b.highCut {
		return
	}
	b.lowCut, b.highCut = low, high

	b.lowOn = low > 0
	if b.lowOn {
		b.low.Coef = Design(HighPass, b.rate, NormalizedToHz(low), 0.7071, 0)
	}
	b.highOn = high < 1
	if b.highOn {
		b.high.Coef = Design(LowPass, b.rate, NormalizedToHz(high), 0.7071, 0)
	}
}

// PassThrough reports whether the current cutoffs leave the signal unchanged.
func (b *Bandpass) PassThrough() bool { return !b.lowOn && !b.highOn }

func (b *Bandpass) Apply(p []float32) {
	if len(p) < numBandpassParams {
		return
	}
	b.SetCutoffs(p[BandpassParamLow], p[BandpassParamHigh])
}

func (b *Bandpass) Process(planes [][]float32, frames int) {
	if b.lowOn {
		b.low.Process(planes, frames)
	}
	if b.highOn {
		b.high.Process(planes, frames)
	}
}

func (b *Bandpass) Reset() {
	b.low.Reset()
	b.high.Reset()
}
