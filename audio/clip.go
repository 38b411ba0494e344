// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"fmt"
	"io"
	"time"
)

const (
	// LoopUnlimited loops forever between the loop points.
	LoopUnlimited = -1
	// IgnoreLoop plays the clip once from start to end, ignoring loop points.
	IgnoreLoop = -2
)

// Clip is decoded PCM held in memory, optionally with a loop region.
// Samples are interleaved float32 in [-1, 1].
type Clip struct {
	Name string

	rate     int
	channels int
	data     []float32

	loopStart int // frames
	loopEnd   int // frames, exclusive; 0 means no loop
}

// NewClip wraps interleaved samples. The slice is not copied.
func NewClip(sampleRate, channels int, data []float32) (*Clip, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, ErrInvalidFormat
	}
	if len(data)%channels != 0 {
		return nil, ErrInvalidClipData
	}

	return &Clip{
		rate:     sampleRate,
		channels: channels,
		data:     data,
	}, nil
}

func (c *Clip) SampleRate() int { return c.rate }
func (c *Clip) Channels() int   { return c.channels }

// Frames returns the clip length in frames.
func (c *Clip) Frames() int { return len(c.data) / c.channels }

// Duration returns the clip length as time.
func (c *Clip) Duration() time.Duration {
	return time.Duration(int64(c.Frames()) * int64(time.Second) / int64(c.rate))
}

// Samples exposes the interleaved sample data.
func (c *Clip) Samples() []float32 { return c.data }

// SetLoop marks [start, end) as the loop region, in frames.
func (c *Clip) SetLoop(start, end int) error {
	if start < 0 || end <= start || end > c.Frames() {
		return ErrInvalidLoop
	}
	c.loopStart = start
	c.loopEnd = end
	return nil
}

// ClearLoop removes the loop region.
func (c *Clip) ClearLoop() {
	c.loopStart, c.loopEnd = 0, 0
}

// Loop returns the loop region and whether the clip is looped.
func (c *Clip) Loop() (start, end int, ok bool) {
	return c.loopStart, c.loopEnd, c.loopEnd > 0
}

// LoadOptions control how LoadClip converts a stream.
type LoadOptions struct {
	Name string
	// SampleRate resamples the stream when non-zero and different from the source.
	SampleRate int
	// Mono downmixes the stream to one channel.
	Mono bool
}

// LoadClip drains src into a Clip, optionally resampling and downmixing.
// src is closed when done.
func LoadClip(src Source, opts LoadOptions) (*Clip, error) {
	defer src.Close()

	var pipeline Source = src
	if opts.SampleRate > 0 && opts.SampleRate != src.SampleRate() {
		pipeline = NewResampler(pipeline, opts.SampleRate)
	}
	if opts.Mono && pipeline.Channels() > 1 {
		pipeline = NewMonoMixer(pipeline)
	}

	channels := pipeline.Channels()
	buf := make([]float32, max(pipeline.BufSize(), 1024)/channels*channels)
	data := make([]float32, 0, len(buf)*4)

	for {
		n, err := pipeline.ReadSamples(buf)
		data = append(data, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("loading clip: %w", err)
		}
	}

	data = data[:len(data)-len(data)%channels]
	if len(data) == 0 {
		return nil, ErrEmptyClip
	}

	clip, err := NewClip(pipeline.SampleRate(), channels, data)
	if err != nil {
		return nil, err
	}
	clip.Name = opts.Name

	return clip, nil
}

// ClipReader plays a Clip as a Source, honoring its loop region and a loop
// limit.
//
// A loop limit of N >= 0 performs exactly N jumps from the loop end back to the
// loop start and then stops at the loop end. LoopUnlimited never stops and
// IgnoreLoop plays straight through to the end of the clip.
type ClipReader struct {
	clip      *Clip
	loopLimit int
	pos       int // frames
	loops     int
	done      bool
}

func NewClipReader(c *Clip, loopLimit int) *ClipReader {
	return &ClipReader{clip: c, loopLimit: loopLimit}
}

func (r *ClipReader) SampleRate() int { return r.clip.rate }
func (r *ClipReader) Channels() int   { return r.clip.channels }
func (r *ClipReader) BufSize() int    { return 4096 }
func (r *ClipReader) Close() error    { return nil }

// Clip returns the clip being read.
func (r *ClipReader) Clip() *Clip { return r.clip }

// LoopCount returns how many loop-backs have happened.
func (r *ClipReader) LoopCount() int { return r.loops }

// Position returns the read cursor in frames.
func (r *ClipReader) Position() int { return r.pos }

// Done reports whether the reader reached its end.
func (r *ClipReader) Done() bool { return r.done }

// Seek moves the cursor to frame.
func (r *ClipReader) Seek(frame int) error {
	if frame < 0 || frame > r.clip.Frames() {
		return ErrSeekOutOfRange
	}
	r.pos = frame
	r.done = false
	return nil
}

func (r *ClipReader) looping() bool {
	return r.loopLimit != IgnoreLoop && r.clip.loopEnd > 0 && r.pos <= r.clip.loopEnd
}

func (r *ClipReader) ReadSamples(dst []float32) (int, error) {
	ch := r.clip.channels
	if len(dst)%ch != 0 {
		return 0, ErrInvalidDstSize
	}
	if r.done {
		return 0, io.EOF
	}

	want := len(dst) / ch
	written := 0

	for written < want {
		limit := r.clip.Frames()
		if r.looping() {
			if r.pos == r.clip.loopEnd {
				if r.loopLimit == LoopUnlimited || r.loops < r.loopLimit {
					r.pos = r.clip.loopStart
					r.loops++
					continue
				}
				r.done = true
				break
			}
			limit = r.clip.loopEnd
		}

		if r.pos >= limit {
			r.done = true
			break
		}

		n := min(limit-r.pos, want-written)
		copy(dst[written*ch:(written+n)*ch], r.clip.data[r.pos*ch:(r.pos+n)*ch])
		r.pos += n
		written += n
	}

	if r.done {
		return written * ch, io.EOF
	}
	return written * ch, nil
}
