// SPDX-License-Identifier: EPL-2.0

package dsp

import (
	"math"

	"github.com/ik5/atomix/utils"
)

// Compressor parameter indices.
const (
	CompressorParamThreshold = iota // dB
	CompressorParamRatio
	CompressorParamAttack  // ms
	CompressorParamRelease // ms
	CompressorParamMakeup  // dB

	numCompressorParams
)

// compressor is a feed-forward peak compressor with linked channels.
type compressor struct {
	rate float64

	threshold float64
	ratio     float64
	attack    float64 // smoothing coefficients
	release   float64
	makeup    float64 // linear

	env float64 // dB of gain reduction
}

// CompressorInterface is the built-in dynamics compressor.
var CompressorInterface = Interface{
	Name:     "compressor",
	Defaults: []float32{-12, 4, 5, 100, 0},
	New: func(sampleRate, _ int) (Effect, error) {
		return &compressor{rate: float64(sampleRate)}, nil
	},
}

func (c *compressor) timeCoef(ms float32) float64 {
	ms = max(ms, 0.01)
	return math.Exp(-1 / (float64(ms) * 0.001 * c.rate))
}

func (c *compressor) Apply(p []float32) {
	if len(p) < numCompressorParams {
		return
	}
	c.threshold = float64(p[CompressorParamThreshold])
	c.ratio = max(float64(p[CompressorParamRatio]), 1)
	c.attack = c.timeCoef(p[CompressorParamAttack])
	c.release = c.timeCoef(p[CompressorParamRelease])
	c.makeup = utils.DecibelsToAmplitude(float64(p[CompressorParamMakeup]))
}

func (c *compressor) Process(planes [][]float32, frames int) {
	for i := range frames {
		var peak float32
		for _, plane := range planes {
			peak = max(peak, float32(math.Abs(float64(plane[i]))))
		}

		over := utils.AmplitudeToDecibels(float64(peak)) - c.threshold
		target := 0.0
		if over > 0 {
			target = over * (1 - 1/c.ratio)
		}

		coef := c.release
		if target > c.env {
			coef = c.attack
		}
		c.env = target + coef*(c.env-target)

		gain := float32(utils.DecibelsToAmplitude(-c.env) * c.makeup)
		for _, plane := range planes {
			plane[i] *= gain
		}
	}
}

func (c *compressor) Reset() { c.env = 0 }
