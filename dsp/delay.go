// SPDX-License-Identifier: EPL-2.0

package dsp

import "github.com/ik5/atomix/utils"

// Delay parameter indices.
const (
	DelayParamTime     = iota // ms
	DelayParamFeedback        // [0, 0.95]
	DelayParamWet             // [0, 1]

	numDelayParams
)

// MaxDelayMS is the longest delay time accepted.
const MaxDelayMS = 2000

type delay struct {
	rate     int
	lines    [][]float32
	pos      int
	length   int
	feedback float32
	wet      float32
}

// DelayInterface is the built-in feedback delay.
var DelayInterface = Interface{
	Name:     "delay",
	Defaults: []float32{250, 0.3, 0.3},
	New: func(sampleRate, channels int) (Effect, error) {
		d := &delay{rate: sampleRate, lines: make([][]float32, channels)}
		for i := range d.lines {
			d.lines[i] = make([]float32, sampleRate*MaxDelayMS/1000+1)
		}
		return d, nil
	},
}

func (d *delay) Apply(p []float32) {
	if len(p) < numDelayParams {
		return
	}
	ms := utils.Clamp(p[DelayParamTime], 1, MaxDelayMS)
	d.length = max(int(ms*float32(d.rate)/1000), 1)
	if d.pos >= d.length {
		d.pos = 0
	}
	d.feedback = utils.Clamp(p[DelayParamFeedback], 0, 0.95)
	d.wet = utils.Clamp(p[DelayParamWet], 0, 1)
}

func (d *delay) Process(planes [][]float32, frames int) {
	pos := d.pos
	for ch, plane := range planes {
		if ch >= len(d.lines) {
			break
		}
		line := d.lines[ch]
		pos = d.pos
		for i := range plane[:frames] {
			delayed := line[pos]
			line[pos] = plane[i] + delayed*d.feedback
			plane[i] = plane[i]*(1-d.wet) + delayed*d.wet
			pos++
			if pos == d.length {
				pos = 0
			}
		}
	}
	d.pos = pos
}

func (d *delay) Reset() {
	for _, line := range d.lines {
		clear(line)
	}
	d.pos = 0
}
