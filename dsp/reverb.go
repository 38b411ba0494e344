// SPDX-License-Identifier: EPL-2.0

package dsp

import (
	"fmt"
	"sync"
	"time"

	"github.com/ik5/atomix/utils"
)

const (
	// IRReverbSampleRate is the only rate the IR reverb runs at.
	IRReverbSampleRate = 48000
	// IRReverbMaxSeconds bounds the impulse response length.
	IRReverbMaxSeconds = 10
)

// IRReverbBlockSizes lists the accepted partition sizes.
var IRReverbBlockSizes = []int{512, 1024}

// IR reverb parameter indices.
const (
	IRReverbParamDry = iota
	IRReverbParamWet

	numIRReverbParams
)

// Performance holds the IR reverb processing statistics, in microseconds.
type Performance struct {
	ProcessCount       uint64
	LastProcessTime    int64
	MaxProcessTime     int64
	AverageProcessTime int64
	LastInterval       int64
	MaxInterval        int64
	AverageInterval    int64
}

// IRReverb convolves its input with an impulse response using a uniformly
// partitioned overlap-save scheme. The output lags the input by one block.
type IRReverb struct {
	block    int
	channels int
	fft      *fft

	// per channel
	parts   [][][]complex128 // IR partition spectra
	fdl     [][][]complex128 // frequency-domain delay line of input spectra
	head    int
	prev    [][]float32 // previous input block
	inFill  int
	in      [][]float32
	out     [][]float32
	outRead int

	scratch []complex128
	acc     []complex128

	dry, wet float32

	statsMu   sync.Mutex
	stats     Performance
	totalProc int64
	totalIntv int64
	lastStart time.Time
	now       func() time.Time
}

// NewIRReverb returns a reverb with a unit impulse (pass-through) response.
func NewIRReverb(sampleRate, channels, blockSize int) (*IRReverb, error) {
	if sampleRate != IRReverbSampleRate {
		return nil, fmt.Errorf("%w: %d Hz", ErrUnsupportedRate, sampleRate)
	}
	if blockSize != 512 && blockSize != 1024 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBlockSize, blockSize)
	}

	r := &IRReverb{
		block:    blockSize,
		channels: channels,
		fft:      newFFT(2 * blockSize),
		prev:     make([][]float32, channels),
		in:       make([][]float32, channels),
		out:      make([][]float32, channels),
		scratch:  make([]complex128, 2*blockSize),
		acc:      make([]complex128, 2*blockSize),
		dry:      0,
		wet:      1,
		now:      time.Now,
	}
	for ch := range channels {
		r.prev[ch] = make([]float32, blockSize)
		r.in[ch] = make([]float32, blockSize)
		r.out[ch] = make([]float32, blockSize)
	}

	impulse := make([][]float32, channels)
	for ch := range impulse {
		impulse[ch] = []float32{1}
	}
	if err := r.SetImpulseResponse(impulse); err != nil {
		return nil, err
	}

	return r, nil
}

// IRReverbInterface creates reverbs with 1024-sample partitions.
var IRReverbInterface = Interface{
	Name:     "ir_reverb",
	Defaults: []float32{0, 1},
	New: func(sampleRate, channels int) (Effect, error) {
		return NewIRReverb(sampleRate, channels, 1024)
	},
}

// BlockSize returns the partition size.
func (r *IRReverb) BlockSize() int { return r.block }

// SetImpulseResponse replaces the response. ir holds one plane per channel; a
// single plane is shared by every channel.
func (r *IRReverb) SetImpulseResponse(ir [][]float32) error {
	if len(ir) != 1 && len(ir) != r.channels {
		return fmt.Errorf("%w: %d planes for %d channels", ErrInvalidIR, len(ir), r.channels)
	}
	length := len(ir[0])
	for _, plane := range ir {
		if len(plane) == 0 || len(plane) != length {
			return fmt.Errorf("%w: planes must be non-empty and of equal length", ErrInvalidIR)
		}
	}
	if length > IRReverbMaxSeconds*IRReverbSampleRate {
		return fmt.Errorf("%w: longer than %d s", ErrInvalidIR, IRReverbMaxSeconds)
	}

	n := 2 * r.block
	numParts := (length + r.block - 1) / r.block

	r.parts = make([][][]complex128, r.channels)
	r.fdl = make([][][]complex128, r.channels)
	for ch := range r.channels {
		plane := ir[min(ch, len(ir)-1)]
		r.parts[ch] = make([][]complex128, numParts)
		r.fdl[ch] = make([][]complex128, numParts)
		for p := range numParts {
			spec := make([]complex128, n)
			seg := plane[p*r.block : min((p+1)*r.block, length)]
			for i, v := range seg {
				spec[i] = complex(float64(v), 0)
			}
			r.fft.forward(spec)
			r.parts[ch][p] = spec
			r.fdl[ch][p] = make([]complex128, n)
		}
	}
	r.head = 0
	r.resetBuffers()

	return nil
}

func (r *IRReverb) Apply(p []float32) {
	if len(p) < numIRReverbParams {
		return
	}
	r.dry = utils.Clamp(p[IRReverbParamDry], 0, 1)
	r.wet = utils.Clamp(p[IRReverbParamWet], 0, 4)
}

func (r *IRReverb) Process(planes [][]float32, frames int) {
	for i := range frames {
		for ch := range min(len(planes), r.channels) {
			x := planes[ch][i]
			r.in[ch][r.inFill] = x
			planes[ch][i] = r.dry*x + r.wet*r.out[ch][r.outRead]
		}
		r.inFill++
		r.outRead++
		if r.inFill == r.block {
			r.processBlock()
			r.inFill = 0
			r.outRead = 0
		}
	}
}

// processBlock convolves the block collected in r.in into r.out.
func (r *IRReverb) processBlock() {
	start := r.now()
	numParts := len(r.parts[0])
	r.head = (r.head + numParts - 1) % numParts

	for ch := range r.channels {
		spec := r.fdl[ch][r.head]
		for i, v := range r.prev[ch] {
			spec[i] = complex(float64(v), 0)
		}
		for i, v := range r.in[ch] {
			spec[r.block+i] = complex(float64(v), 0)
		}
		r.fft.forward(spec)
		copy(r.prev[ch], r.in[ch])

		clear(r.acc)
		for p := range numParts {
			x := r.fdl[ch][(r.head+p)%numParts]
			h := r.parts[ch][p]
			for k := range r.acc {
				r.acc[k] += x[k] * h[k]
			}
		}

		copy(r.scratch, r.acc)
		r.fft.inverse(r.scratch)
		for i := range r.out[ch] {
			r.out[ch][i] = float32(real(r.scratch[r.block+i]))
		}
	}

	r.record(start)
}

func (r *IRReverb) record(start time.Time) {
	elapsed := r.now().Sub(start).Microseconds()

	r.statsMu.Lock()
	defer r.statsMu.Unlock()

	s := &r.stats
	s.ProcessCount++
	s.LastProcessTime = elapsed
	s.MaxProcessTime = max(s.MaxProcessTime, elapsed)
	r.totalProc += elapsed
	s.AverageProcessTime = r.totalProc / int64(s.ProcessCount)

	if !r.lastStart.IsZero() {
		interval := start.Sub(r.lastStart).Microseconds()
		s.LastInterval = interval
		s.MaxInterval = max(s.MaxInterval, interval)
		r.totalIntv += interval
		s.AverageInterval = r.totalIntv / int64(s.ProcessCount-1)
	}
	r.lastStart = start
}

// Performance returns a snapshot of the processing statistics.
func (r *IRReverb) Performance() Performance {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.stats
}

// ResetPerformance clears the statistics.
func (r *IRReverb) ResetPerformance() {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	r.stats = Performance{}
	r.totalProc, r.totalIntv = 0, 0
	r.lastStart = time.Time{}
}

func (r *IRReverb) resetBuffers() {
	for ch := range r.channels {
		clear(r.prev[ch])
		clear(r.in[ch])
		clear(r.out[ch])
		for _, spec := range r.fdl[ch] {
			clear(spec)
		}
	}
	r.inFill, r.outRead = 0, 0
}

func (r *IRReverb) Reset() { r.resetBuffers() }
