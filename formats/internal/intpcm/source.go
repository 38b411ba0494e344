// SPDX-License-Identifier: EPL-2.0

// Package intpcm adapts go-audio integer PCM decoders to audio.Source.
package intpcm

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
)

// ErrUnsupportedBitDepth is returned for bit depths other than 8, 16, 24, 32.
var ErrUnsupportedBitDepth = errors.New("unsupported PCM bit depth")

// Reader is the subset of the go-audio wav and aiff decoders we rely on.
type Reader interface {
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
}

// Options describe the integer layout produced by the decoder.
type Options struct {
	BitDepth int
	// Unsigned8 marks 8-bit data as unsigned (WAV stores 8-bit PCM offset by 128).
	Unsigned8 bool
	// Closer is closed by Source.Close when non-nil.
	Closer io.Closer
}

// Source converts integer PCM frames into normalized float32 samples.
type Source struct {
	dec      Reader
	format   *goaudio.Format
	scale    float32
	bias     int
	buf      *goaudio.IntBuffer
	closer   io.Closer
	finished bool
}

// New wraps dec.
func New(dec Reader, format *goaudio.Format, opts Options) (*Source, error) {
	switch opts.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, opts.BitDepth)
	}

	s := &Source{
		dec:    dec,
		format: format,
		scale:  1 / float32(int64(1)<<(opts.BitDepth-1)),
		buf: &goaudio.IntBuffer{
			Format:         format,
			Data:           make([]int, 4096),
			SourceBitDepth: opts.BitDepth,
		},
		closer: opts.Closer,
	}
	if opts.BitDepth == 8 && opts.Unsigned8 {
		s.bias = 128
	}

	return s, nil
}

func (s *Source) SampleRate() int { return s.format.SampleRate }
func (s *Source) Channels() int   { return s.format.NumChannels }
func (s *Source) BufSize() int    { return cap(s.buf.Data) }

func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	if err := s.closer.Close(); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}

func (s *Source) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	if s.finished {
		return 0, io.EOF
	}

	if cap(s.buf.Data) < len(dst) {
		s.buf.Data = make([]int, len(dst))
	}
	s.buf.Data = s.buf.Data[:len(dst)]

	n, err := s.dec.PCMBuffer(s.buf)
	for i, v := range s.buf.Data[:n] {
		dst[i] = float32(v-s.bias) * s.scale
	}

	switch {
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || (err == nil && n < len(dst)):
		s.finished = true
		return n, io.EOF
	case err != nil:
		return n, fmt.Errorf("%w", err)
	}

	return n, nil
}

// Seekable returns r as an io.ReadSeeker, buffering it in memory when r cannot
// seek. The go-audio decoders need to seek between chunks.
func Seekable(r io.Reader) (io.ReadSeeker, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		return rs, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("buffering stream: %w", err)
	}
	return bytes.NewReader(data), nil
}
