// SPDX-License-Identifier: EPL-2.0

package analyzer

import (
	"fmt"
	"math"
	"sync"
)

// MaxChannels is the widest layout a meter reports.
const MaxChannels = 16

// LevelConfig controls the level meter windows.
type LevelConfig struct {
	// IntervalMS is the measurement window for RMS and peak.
	IntervalMS int
	// PeakHoldMS is how long a peak is held before it falls back.
	PeakHoldMS int
}

// DefaultLevelConfig measures every 50 ms and holds peaks for one second.
var DefaultLevelConfig = LevelConfig{IntervalMS: 50, PeakHoldMS: 1000}

// LevelInfo holds linear amplitudes per channel.
type LevelInfo struct {
	NumChannels int
	RMS         [MaxChannels]float32
	Peak        [MaxChannels]float32
	PeakHold    [MaxChannels]float32
}

// Level measures RMS and peak over fixed windows.
type Level struct {
	channels     int
	windowFrames int
	holdFrames   int

	// render side
	sumSq   [MaxChannels]float64
	peak    [MaxChannels]float32
	filled  int
	hold    [MaxChannels]float32
	holdFor [MaxChannels]int

	mu   sync.Mutex
	info LevelInfo
}

// NewLevel returns a level meter for channels at sampleRate.
func NewLevel(cfg LevelConfig, sampleRate, channels int) (*Level, error) {
	if channels <= 0 || channels > MaxChannels {
		return nil, fmt.Errorf("%w: %d", ErrTooManyChannels, channels)
	}
	if cfg.IntervalMS <= 0 || cfg.PeakHoldMS < 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidConfig, cfg)
	}

	return &Level{
		channels:     channels,
		windowFrames: max(sampleRate*cfg.IntervalMS/1000, 1),
		holdFrames:   sampleRate * cfg.PeakHoldMS / 1000,
		info:         LevelInfo{NumChannels: channels},
	}, nil
}

func (l *Level) Observe(planes [][]float32, frames int) {
	for i := range frames {
		for ch := range min(len(planes), l.channels) {
			v := planes[ch][i]
			l.sumSq[ch] += float64(v) * float64(v)
			if a := float32(math.Abs(float64(v))); a > l.peak[ch] {
				l.peak[ch] = a
			}
		}
		l.filled++
		if l.filled == l.windowFrames {
			l.publish()
		}
	}
}

func (l *Level) publish() {
	var info LevelInfo
	info.NumChannels = l.channels

	for ch := range l.channels {
		info.RMS[ch] = float32(math.Sqrt(l.sumSq[ch] / float64(l.filled)))
		info.Peak[ch] = l.peak[ch]

		l.holdFor[ch] -= l.filled
		if l.peak[ch] >= l.hold[ch] || l.holdFor[ch] <= 0 {
			l.hold[ch] = l.peak[ch]
			l.holdFor[ch] = l.holdFrames
		}
		info.PeakHold[ch] = l.hold[ch]

		l.sumSq[ch] = 0
		l.peak[ch] = 0
	}
	l.filled = 0

	l.mu.Lock()
	l.info = info
	l.mu.Unlock()
}

// Info returns the last completed window.
func (l *Level) Info() LevelInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.info
}

// Reset clears the meter.
func (l *Level) Reset() {
	l.sumSq = [MaxChannels]float64{}
	l.peak = [MaxChannels]float32{}
	l.hold = [MaxChannels]float32{}
	l.holdFor = [MaxChannels]int{}
	l.filled = 0

	l.mu.Lock()
	l.info = LevelInfo{NumChannels: l.channels}
	l.mu.Unlock()
}
