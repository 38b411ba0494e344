// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"errors"
	"io"
	"math"
	"testing"

	"github.com/ik5/atomix/internal/audiotest"
)

func readAll(t *testing.T, src Source, bufSize int) []float32 {
	t.Helper()

	var out []float32
	buf := make([]float32, bufSize)
	for {
		n, err := src.ReadSamples(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("ReadSamples() error = %v", err)
		}
	}
}

func TestResampler_UnityRatioIsExact(t *testing.T) {
	t.Parallel()

	src := audiotest.NewRampSource(48000, 2, 100, 0.001)
	r := NewResampler(src, 48000)

	out := readAll(t, r, 64)
	if len(out) != 200 {
		t.Fatalf("got %d samples, want 200", len(out))
	}
	for f := range 100 {
		want := float32(f) * 0.001
		if out[2*f] != want || out[2*f+1] != want {
			t.Fatalf("frame %d = (%v, %v), want %v", f, out[2*f], out[2*f+1], want)
		}
	}
	if r.Consumed() != 100 {
		t.Errorf("Consumed() = %d, want 100", r.Consumed())
	}
}

func TestResampler_RateConversionLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		srcRate    int
		dstRate    int
		frames     int
		wantApprox int
	}{
		{name: "downsample 44.1k to 8k", srcRate: 44100, dstRate: 8000, frames: 44100, wantApprox: 8000},
		{name: "upsample 8k to 48k", srcRate: 8000, dstRate: 48000, frames: 8000, wantApprox: 48000},
		{name: "48k to 44.1k", srcRate: 48000, dstRate: 44100, frames: 4800, wantApprox: 4410},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := NewResampler(audiotest.NewSineSource(tt.srcRate, 1, tt.frames, 440), tt.dstRate)
			out := readAll(t, r, 4096)

			if diff := len(out) - tt.wantApprox; diff < -8 || diff > 8 {
				t.Errorf("got %d samples, want ≈%d", len(out), tt.wantApprox)
			}
			for i, v := range out {
				if math.IsNaN(float64(v)) || v > 1.5 || v < -1.5 {
					t.Fatalf("out[%d] = %v out of range", i, v)
				}
			}
		})
	}
}

func TestResampler_SetSpeed(t *testing.T) {
	t.Parallel()

	r := NewResampler(audiotest.NewConstantSource(48000, 1, 1000, 0.5), 48000)
	if err := r.SetSpeed(2); err != nil {
		t.Fatalf("SetSpeed(2) error = %v", err)
	}
	if r.Ratio() != 2 {
		t.Errorf("Ratio() = %v, want 2", r.Ratio())
	}

	out := readAll(t, r, 256)
	if diff := len(out) - 500; diff < -2 || diff > 2 {
		t.Errorf("octave up produced %d samples, want ≈500", len(out))
	}

	for _, bad := range []float64{0, -1, MaxSpeed * 2} {
		if err := r.SetSpeed(bad); !errors.Is(err, ErrInvalidSpeed) {
			t.Errorf("SetSpeed(%v) error = %v, want ErrInvalidSpeed", bad, err)
		}
	}
}

func TestResampler_InvalidDstSize(t *testing.T) {
	t.Parallel()

	r := NewResampler(audiotest.NewSilentSource(8000, 2, 100), 8000)
	if _, err := r.ReadSamples(make([]float32, 3)); !errors.Is(err, ErrInvalidDstSize) {
		t.Errorf("ReadSamples(3) error = %v, want ErrInvalidDstSize", err)
	}
}

func TestResampler_PropagatesSourceError(t *testing.T) {
	t.Parallel()

	r := NewResampler(audiotest.NewFailingSource(48000, 1, 10), 48000)

	buf := make([]float32, 64)
	var err error
	for range 4 {
		if _, err = r.ReadSamples(buf); err != nil {
			break
		}
	}
	if !errors.Is(err, audiotest.ErrInjected) {
		t.Errorf("error = %v, want ErrInjected", err)
	}
}

func TestResampler_EmptySource(t *testing.T) {
	t.Parallel()

	r := NewResampler(audiotest.NewSilentSource(48000, 2, 0), 44100)
	n, err := r.ReadSamples(make([]float32, 8))
	if n != 0 || err != io.EOF {
		t.Errorf("ReadSamples() = %d, %v; want 0, io.EOF", n, err)
	}
}

func BenchmarkResampler_Downsample(b *testing.B) {
	src := audiotest.NewSineSource(48000, 2, 1<<30, 440)
	r := NewResampler(src, 44100)
	buf := make([]float32, 4096)

	b.ReportAllocs()
	for b.Loop() {
		_, _ = r.ReadSamples(buf)
	}
}
