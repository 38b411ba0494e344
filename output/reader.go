// SPDX-License-Identifier: EPL-2.0

package output

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/ik5/atomix/audio"
	"github.com/ik5/atomix/utils"
)

// SampleFormat is the PCM encoding Reader produces.
type SampleFormat int

const (
	FormatFloat32 SampleFormat = iota
	FormatInt16
)

func (f SampleFormat) String() string {
	if f == FormatInt16 {
		return "int16"
	}
	return "float32"
}

// BytesPerSample returns the encoded size of one sample.
func (f SampleFormat) BytesPerSample() int {
	if f == FormatInt16 {
		return 2
	}
	return 4
}

// ParseSampleFormat accepts the names printed by String.
func ParseSampleFormat(s string) (SampleFormat, error) {
	switch strings.ToLower(s) {
	case "float32", "f32":
		return FormatFloat32, nil
	case "int16", "s16":
		return FormatInt16, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Reader encodes a source as interleaved little-endian PCM. It renders whole
// frames and keeps the bytes a short read left over.
type Reader struct {
	src    audio.Source
	format SampleFormat

	frameBytes int
	buf        []float32
	enc        []byte
	pending    []byte
	err        error
}

var _ io.Reader = (*Reader)(nil)

// NewReader returns a Reader over src.
func NewReader(src audio.Source, format SampleFormat) *Reader {
	return &Reader{
		src:        src,
		format:     format,
		frameBytes: src.Channels() * format.BytesPerSample(),
	}
}

func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	if n == len(p) {
		return n, nil
	}
	if r.err != nil {
		if n > 0 {
			return n, nil
		}
		return 0, r.err
	}

	frames := max((len(p)-n)/r.frameBytes, 1)
	samples := frames * r.src.Channels()
	if cap(r.buf) < samples {
		r.buf = make([]float32, samples)
	}
	buf := r.buf[:samples]

	got, err := r.src.ReadSamples(buf)
	if err != nil {
		r.err = err
	}

	enc := r.encode(buf[:got])
	c := copy(p[n:], enc)
	r.pending = append(r.pending[:0], enc[c:]...)
	n += c

	if n == 0 && r.err != nil {
		return 0, r.err
	}
	return n, nil
}

// encode writes samples into a byte slice reused across calls.
func (r *Reader) encode(samples []float32) []byte {
	size := len(samples) * r.format.BytesPerSample()
	if cap(r.enc) < size {
		r.enc = make([]byte, size)
	}
	out := r.enc[:size]

	switch r.format {
	case FormatInt16:
		for i, s := range samples {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(utils.Float32ToInt16(s)))
		}
	default:
		for i, s := range samples {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
		}
	}

	return out
}
