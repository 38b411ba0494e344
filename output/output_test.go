// SPDX-License-Identifier: EPL-2.0

package output

import (
	"encoding/binary"
	"io"
	"math"
	"testing"
	"testing/iotest"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ik5/atomix/audio"
	"github.com/ik5/atomix/engine"
	"github.com/ik5/atomix/internal/audiotest"
)

func TestParseSampleFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    SampleFormat
		wantErr bool
	}{
		{in: "float32", want: FormatFloat32},
		{in: "F32", want: FormatFloat32},
		{in: "int16", want: FormatInt16},
		{in: "s16", want: FormatInt16},
		{in: "int24", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParseSampleFormat(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReader_Float32(t *testing.T) {
	t.Parallel()

	src := audiotest.NewRampSource(48000, 2, 4, 0.25)
	data, err := io.ReadAll(iotest.OneByteReader(NewReader(src, FormatFloat32)))
	require.NoError(t, err)
	require.Len(t, data, 4*2*4)

	want := []float32{0, 0, 0.25, 0.25, 0.5, 0.5, 0.75, 0.75}
	for i, w := range want {
		got := math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		assert.Equal(t, w, got, "sample %d", i)
	}
}

func TestReader_Int16(t *testing.T) {
	t.Parallel()

	src := audiotest.NewConstantSource(8000, 1, 3, 0.5)
	data, err := io.ReadAll(NewReader(src, FormatInt16))
	require.NoError(t, err)
	require.Len(t, data, 6)

	for i := range 3 {
		assert.Equal(t, int16(16384), int16(binary.LittleEndian.Uint16(data[i*2:])))
	}
}

func TestReader_SourceError(t *testing.T) {
	t.Parallel()

	src := audiotest.NewFailingSource(8000, 1, 2)
	data, err := io.ReadAll(NewReader(src, FormatFloat32))
	require.ErrorIs(t, err, audiotest.ErrInjected)
	assert.Len(t, data, 8)
}

func TestReader_Rack(t *testing.T) {
	t.Parallel()

	logger, _ := test.NewNullLogger()
	cfg := engine.DefaultConfig()
	cfg.ServerFrequency = 100
	cfg.ServerMode = engine.ServerOnDemand
	cfg.Logger = logger
	e, err := engine.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	data := make([]float32, 4800)
	for i := range data {
		data[i] = 0.5
	}
	clip, err := audio.NewClip(48000, 1, data)
	require.NoError(t, err)

	p, err := e.CreatePlayer()
	require.NoError(t, err)
	p.SetClip(clip)
	_, err = p.Start()
	require.NoError(t, err)

	// one tick of stereo float32
	buf := make([]byte, 480*2*4)
	_, err = io.ReadFull(NewReader(e.DefaultRack(), FormatFloat32), buf)
	require.NoError(t, err)

	// mono at center is -3 dB on each side
	last := math.Float32frombits(binary.LittleEndian.Uint32(buf[len(buf)-4:]))
	assert.InDelta(t, 0.5*math.Sqrt2/2, last, 1e-5)
	assert.Zero(t, e.DefaultRack().Underruns())
}

func TestStreamer(t *testing.T) {
	t.Parallel()

	t.Run("mono on both sides", func(t *testing.T) {
		t.Parallel()

		s := NewStreamer(audiotest.NewConstantSource(44100, 1, 8, 0.25))
		samples := make([][2]float64, 4)
		n, ok := s.Stream(samples)
		require.True(t, ok)
		assert.Equal(t, 4, n)
		for _, smp := range samples {
			assert.Equal(t, [2]float64{0.25, 0.25}, smp)
		}
	})

	t.Run("wide keeps front pair", func(t *testing.T) {
		t.Parallel()

		src := audiotest.NewMockSource(48000, 6, 2, func(_ int, ch int) float32 {
			return float32(ch) * 0.125
		})
		s := NewStreamer(src)
		samples := make([][2]float64, 2)
		n, ok := s.Stream(samples)
		require.True(t, ok)
		assert.Equal(t, 2, n)
		assert.Equal(t, [2]float64{0, 0.125}, samples[1])
	})

	t.Run("end of stream", func(t *testing.T) {
		t.Parallel()

		s := NewStreamer(audiotest.NewSilentSource(48000, 2, 3))
		samples := make([][2]float64, 8)
		n, ok := s.Stream(samples)
		assert.True(t, ok)
		assert.Equal(t, 3, n)

		n, ok = s.Stream(samples)
		assert.False(t, ok)
		assert.Zero(t, n)
		assert.NoError(t, s.Err())
	})

	t.Run("source error", func(t *testing.T) {
		t.Parallel()

		s := NewStreamer(audiotest.NewFailingSource(48000, 2, 1))
		samples := make([][2]float64, 4)
		n, ok := s.Stream(samples)
		assert.True(t, ok)
		assert.Equal(t, 1, n)

		_, ok = s.Stream(samples)
		assert.False(t, ok)
		assert.ErrorIs(t, s.Err(), audiotest.ErrInjected)
	})

	t.Run("format", func(t *testing.T) {
		t.Parallel()

		f := NewStreamer(audiotest.NewSilentSource(22050, 1, 1)).Format()
		assert.Equal(t, 22050, int(f.SampleRate))
		assert.Equal(t, 2, f.NumChannels)
	})
}

func TestOpen_UnknownBackend(t *testing.T) {
	t.Parallel()

	_, err := Open(audiotest.NewSilentSource(48000, 2, 1), Options{Backend: "alsa"})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func BenchmarkReader_Float32(b *testing.B) {
	src := audiotest.NewSineSource(48000, 2, math.MaxInt32, 440)
	r := NewReader(src, FormatFloat32)
	buf := make([]byte, 4096)

	b.ReportAllocs()
	for b.Loop() {
		_, _ = r.Read(buf)
	}
}
