// SPDX-License-Identifier: EPL-2.0

package dsp

import (
	"math"

	"github.com/ik5/atomix/utils"
)

// BiquadType selects the RBJ cookbook response.
type BiquadType int

const (
	LowPass BiquadType = iota
	HighPass
	BandPass
	Notch
	LowShelf
	HighShelf
	Peaking
	AllPass

	numBiquadTypes
)

const (
	// MinFrequency and MaxFrequency bound the normalized frequency mapping.
	MinFrequency = 24.0
	MaxFrequency = 24000.0

	MinQ = 0.1
	MaxQ = 10.0
)

// NormalizedToHz maps x in [0, 1] logarithmically onto 24 Hz - 24 kHz.
func NormalizedToHz(x float32) float64 {
	x = utils.Clamp(x, 0, 1)
	return MinFrequency * math.Pow(MaxFrequency/MinFrequency, float64(x))
}

// HzToNormalized is the inverse of NormalizedToHz.
func HzToNormalized(hz float64) float32 {
	hz = min(max(hz, MinFrequency), MaxFrequency)
	return float32(math.Log(hz/MinFrequency) / math.Log(MaxFrequency/MinFrequency))
}

// Coefficients of a normalized (a0 = 1) biquad section.
type Coefficients struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// Identity passes the signal unchanged.
var Identity = Coefficients{B0: 1}

// Design computes RBJ cookbook coefficients. freq is in Hz and is kept below
// Nyquist.
func Design(typ BiquadType, sampleRate, freq, q, gainDB float64) Coefficients {
	freq = min(max(freq, 1), sampleRate*0.49)
	q = min(max(q, MinQ), MaxQ)

	w0 := 2 * math.Pi * freq / sampleRate
	cos, sin := math.Cos(w0), math.Sin(w0)
	alpha := sin / (2 * q)
	a := math.Pow(10, gainDB/40)

	var b0, b1, b2, a0, a1, a2 float64
	switch typ {
	case LowPass:
		b0, b1, b2 = (1-cos)/2, 1-cos, (1-cos)/2
		a0, a1, a2 = 1+alpha, -2*cos, 1-alpha
	case HighPass:
		b0, b1, b2 = (1+cos)/2, -(1 + cos), (1+cos)/2
		a0, a1, a2 = 1+alpha, -2*cos, 1-alpha
	case BandPass:
		b0, b1, b2 = alpha, 0, -alpha
		a0, a1, a2 = 1+alpha, -2*cos, 1-alpha
	case Notch:
		b0, b1, b2 = 1, -2*cos, 1
		a0, a1, a2 = 1+alpha, -2*cos, 1-alpha
	case LowShelf:
		sq := 2 * math.Sqrt(a) * alpha
		b0 = a * ((a + 1) - (a-1)*cos + sq)
		b1 = 2 * a * ((a - 1) - (a+1)*cos)
		b2 = a * ((a + 1) - (a-1)*cos - sq)
		a0 = (a + 1) + (a-1)*cos + sq
		a1 = -2 * ((a - 1) + (a+1)*cos)
		a2 = (a + 1) + (a-1)*cos - sq
	case HighShelf:
		sq := 2 * math.Sqrt(a) * alpha
		b0 = a * ((a + 1) + (a-1)*cos + sq)
		b1 = -2 * a * ((a - 1) + (a+1)*cos)
		b2 = a * ((a + 1) + (a-1)*cos - sq)
		a0 = (a + 1) - (a-1)*cos + sq
		a1 = 2 * ((a - 1) - (a+1)*cos)
		a2 = (a + 1) - (a-1)*cos - sq
	case Peaking:
		b0, b1, b2 = 1+alpha*a, -2*cos, 1-alpha*a
		a0, a1, a2 = 1+alpha/a, -2*cos, 1-alpha/a
	case AllPass:
		b0, b1, b2 = 1-alpha, -2*cos, 1+alpha
		a0, a1, a2 = 1+alpha, -2*cos, 1-alpha
	default:
		return Identity
	}

	return Coefficients{
		B0: b0 / a0, B1: b1 / a0, B2: b2 / a0,
		A1: a1 / a0, A2: a2 / a0,
	}
}

// Section is one biquad with per-channel transposed direct form II state.
type Section struct {
	Coef Coefficients
	z1   []float64
	z2   []float64
}

// NewSection returns an identity section for channels planes.
func NewSection(channels int) *Section {
	return &Section{
		Coef: Identity,
		z1:   make([]float64, channels),
		z2:   make([]float64, channels),
	}
}

// Tick filters one sample of channel ch.
func (s *Section) Tick(ch int, x float32) float32 {
	c := &s.Coef
	in := float64(x)
	y := c.B0*in + s.z1[ch]
	s.z1[ch] = c.B1*in - c.A1*y + s.z2[ch]
	s.z2[ch] = c.B2*in - c.A2*y
	return float32(y)
}

func (s *Section) Process(planes [][]float32, frames int) {
	for ch, plane := range planes {
		if ch >= len(s.z1) {
			break
		}
		for i := range plane[:frames] {
			plane[i] = s.Tick(ch, plane[i])
		}
	}
}

func (s *Section) Reset() {
	clear(s.z1)
	clear(s.z2)
}

// Biquad parameter indices.
const (
	BiquadParamType = iota
	BiquadParamFrequency
	BiquadParamGain
	BiquadParamQ

	numBiquadParams
)

type biquad struct {
	rate    float64
	section *Section
}

// BiquadInterface is the built-in RBJ filter. Frequency is normalized (see
// NormalizedToHz) and gain is in dB.
var BiquadInterface = Interface{
	Name:     "biquad",
	Defaults: []float32{float32(LowPass), 1, 0, 0.7071},
	New: func(sampleRate, channels int) (Effect, error) {
		return &biquad{rate: float64(sampleRate), section: NewSection(channels)}, nil
	},
}

func (b *biquad) Apply(p []float32) {
	if len(p) < numBiquadParams {
		return
	}
	typ := BiquadType(p[BiquadParamType])
	if typ < 0 || typ >= numBiquadTypes {
		typ = LowPass
	}
	b.section.Coef = Design(typ, b.rate, NormalizedToHz(p[BiquadParamFrequency]),
		float64(p[BiquadParamQ]), float64(p[BiquadParamGain]))
}

func (b *biquad) Process(planes [][]float32, frames int) { b.section.Process(planes, frames) }
func (b *biquad) Reset()                                 { b.section.Reset() }
