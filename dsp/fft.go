// SPDX-License-Identifier: EPL-2.0

package dsp

import (
	"math"
	"math/bits"
	"math/cmplx"
)

// fft is an in-place radix-2 transform for a fixed power-of-two size.
type fft struct {
	n       int
	twiddle []complex128
	rev     []int
}

func newFFT(n int) *fft {
	f := &fft{
		n:       n,
		twiddle: make([]complex128, n/2),
		rev:     make([]int, n),
	}
	for i := range f.twiddle {
		f.twiddle[i] = cmplx.Rect(1, -2*math.Pi*float64(i)/float64(n))
	}
	shift := bits.UintSize - bits.Len(uint(n-1))
	for i := range f.rev {
		f.rev[i] = int(bits.Reverse(uint(i)) >> shift)
	}
	return f
}

func (f *fft) transform(x []complex128, inverse bool) {
	for i, j := range f.rev {
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}

	for size := 2; size <= f.n; size <<= 1 {
		half := size / 2
		step := f.n / size
		for start := 0; start < f.n; start += size {
			for k := range half {
				w := f.twiddle[k*step]
				if inverse {
					w = cmplx.Conj(w)
				}
				a := x[start+k]
				b := x[start+k+half] * w
				x[start+k] = a + b
				x[start+k+half] = a - b
			}
		}
	}

	if inverse {
		scale := complex(1/float64(f.n), 0)
		for i := range x {
			x[i] *= scale
		}
	}
}

func (f *fft) forward(x []complex128) { f.transform(x, false) }
func (f *fft) inverse(x []complex128) { f.transform(x, true) }
