// SPDX-License-Identifier: EPL-2.0

package dsp

import (
	"math/cmplx"
	"testing"
)

func TestFFT_RoundTrip(t *testing.T) {
	t.Parallel()

	f := newFFT(16)
	x := make([]complex128, 16)
	for i := range x {
		x[i] = complex(float64(i%5)-2, 0)
	}
	orig := append([]complex128(nil), x...)

	f.forward(x)
	f.inverse(x)

	for i := range x {
		if cmplx.Abs(x[i]-orig[i]) > 1e-9 {
			t.Fatalf("x[%d] = %v, want %v", i, x[i], orig[i])
		}
	}
}

func TestFFT_Impulse(t *testing.T) {
	t.Parallel()

	f := newFFT(8)
	x := make([]complex128, 8)
	x[0] = 1
	f.forward(x)

	for i, v := range x {
		if cmplx.Abs(v-1) > 1e-12 {
			t.Errorf("bin %d = %v, want 1", i, v)
		}
	}
}
