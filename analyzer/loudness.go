// SPDX-License-Identifier: EPL-2.0

package analyzer

import (
	"fmt"
	"math"
	"sync"

	"github.com/ik5/atomix/dsp"
)

const (
	absoluteGate = -70.0 // LUFS
	relativeGate = -10.0 // LU below the ungated mean

	momentaryBlocks = 4  // 100 ms sub-blocks in 400 ms
	shortTermBlocks = 30 // 100 ms sub-blocks in 3 s
)

// LoudnessConfig sets per-channel weights. Nil weights use 1 for every
// channel; a zero weight drops the channel (LFE).
type LoudnessConfig struct {
	ChannelWeights []float32
}

// LoudnessInfo is in LUFS. Silence reads as negative infinity.
type LoudnessInfo struct {
	Momentary  float32
	ShortTerm  float32
	Integrated float32
}

// Loudness is a K-weighted loudness meter.
type Loudness struct {
	channels int
	weights  []float64
	shelf    *dsp.Section
	highpass *dsp.Section

	subFrames int
	subFilled int
	subSum    float64

	ring   [shortTermBlocks]float64 // weighted mean square of each sub-block
	ringAt int
	ringN  int

	gated []float64 // 400 ms block powers above the absolute gate

	mu   sync.Mutex
	info LoudnessInfo
}

// NewLoudness returns a meter for channels at sampleRate.
func NewLoudness(cfg LoudnessConfig, sampleRate, channels int) (*Loudness, error) {
	if channels <= 0 || channels > MaxChannels {
		return nil, fmt.Errorf("%w: %d", ErrTooManyChannels, channels)
	}
	if sampleRate <= 0 || cfg.ChannelWeights != nil && len(cfg.ChannelWeights) != channels {
		return nil, fmt.Errorf("%w: %d weights for %d channels", ErrInvalidConfig, len(cfg.ChannelWeights), channels)
	}

	l := &Loudness{
		channels:  channels,
		weights:   make([]float64, channels),
		shelf:     dsp.NewSection(channels),
		highpass:  dsp.NewSection(channels),
		subFrames: max(sampleRate/10, 1),
	}
	for ch := range l.weights {
		l.weights[ch] = 1
		if cfg.ChannelWeights != nil {
			l.weights[ch] = float64(cfg.ChannelWeights[ch])
		}
	}

	rate := float64(sampleRate)
	l.shelf.Coef = dsp.Design(dsp.HighShelf, rate, 1681.97, 0.7072, 4)
	l.highpass.Coef = dsp.Design(dsp.HighPass, rate, 38.14, 0.5003, 0)
	l.Reset()

	return l, nil
}

func (l *Loudness) Observe(planes [][]float32, frames int) {
	for i := range frames {
		var sum float64
		for ch := range min(len(planes), l.channels) {
			if l.weights[ch] == 0 {
				continue
			}
			y := l.highpass.Tick(ch, l.shelf.Tick(ch, planes[ch][i]))
			sum += l.weights[ch] * float64(y) * float64(y)
		}
		l.subSum += sum
		l.subFilled++
		if l.subFilled == l.subFrames {
			l.closeSubBlock()
		}
	}
}

func (l *Loudness) closeSubBlock() {
	l.ring[l.ringAt] = l.subSum / float64(l.subFilled)
	l.ringAt = (l.ringAt + 1) % shortTermBlocks
	l.ringN = min(l.ringN+1, shortTermBlocks)
	l.subSum, l.subFilled = 0, 0

	momentary := l.mean(momentaryBlocks)
	shortTerm := l.mean(shortTermBlocks)

	if l.ringN >= momentaryBlocks && lufs(momentary) > absoluteGate {
		l.gated = append(l.gated, momentary)
	}

	info := LoudnessInfo{
		Momentary:  float32(lufs(momentary)),
		ShortTerm:  float32(lufs(shortTerm)),
		Integrated: float32(l.integrated()),
	}

	l.mu.Lock()
	l.info = info
	l.mu.Unlock()
}

// mean averages the newest n sub-blocks (fewer while the meter warms up).
func (l *Loudness) mean(n int) float64 {
	n = min(n, l.ringN)
	if n == 0 {
		return 0
	}
	var sum float64
	for k := 1; k <= n; k++ {
		sum += l.ring[(l.ringAt-k+shortTermBlocks)%shortTermBlocks]
	}
	return sum / float64(n)
}

func (l *Loudness) integrated() float64 {
	if len(l.gated) == 0 {
		return math.Inf(-1)
	}

	var sum float64
	for _, p := range l.gated {
		sum += p
	}
	threshold := lufs(sum/float64(len(l.gated))) + relativeGate

	var kept float64
	n := 0
	for _, p := range l.gated {
		if lufs(p) > threshold {
			kept += p
			n++
		}
	}
	if n == 0 {
		return math.Inf(-1)
	}
	return lufs(kept / float64(n))
}

func lufs(power float64) float64 {
	if power <= 0 {
		return math.Inf(-1)
	}
	return -0.691 + 10*math.Log10(power)
}

// Info returns the latest measurement.
func (l *Loudness) Info() LoudnessInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.info
}

// Reset clears the history, including the integrated measurement.
func (l *Loudness) Reset() {
	l.shelf.Reset()
	l.highpass.Reset()
	l.ring = [shortTermBlocks]float64{}
	l.ringAt, l.ringN = 0, 0
	l.subSum, l.subFilled = 0, 0
	l.gated = l.gated[:0]

	silence := float32(math.Inf(-1))
	l.mu.Lock()
	l.info = LoudnessInfo{Momentary: silence, ShortTerm: silence, Integrated: silence}
	l.mu.Unlock()
}
