// SPDX-License-Identifier: EPL-2.0

// Package mp3 decodes MPEG-1/2 Layer III streams through
// github.com/hajimehoshi/go-mp3.
//
// # Supported Formats
//
// The decoder supports:
//   - MPEG-1 and MPEG-2 Layer III
//   - constant and variable bitrates
//   - mono and stereo files
//
// # Decoding MP3 Files
//
// Use the Decoder to read MP3 files:
//
//	f, _ := os.Open("music.mp3")
//	src, err := mp3.Decoder{}.Decode(f)
//	if err != nil {
//	    // Handle error
//	}
//	defer src.Close()
//
//	buf := make([]float32, 4096)
//	n, err := src.ReadSamples(buf)
//
// The source streams: frames are decoded as samples are read, so long music
// tracks can be played without loading them into memory first.
//
// # Output Format
//
// MP3 decoder output:
//   - Sample format: float32 in [-1, 1]
//   - Channels: always 2
//   - Sample rate: as stored in the file, typically 44.1 or 48 kHz
//
// go-mp3 always produces 16-bit stereo, even for mono files. Load mono cues
// with a downmix and the engine rate:
//
//	clip, err := audio.LoadClip(src, audio.LoadOptions{
//	    Name:       "step",
//	    SampleRate: 48000,
//	    Mono:       true,
//	})
//
// # Short Reads
//
// go-mp3 may return a byte count that splits a 16-bit sample. The odd byte is
// carried into the next read, so ReadSamples always returns whole samples and
// never drops audio at a frame boundary.
//
// # Limitations
//
// Note:
//   - decoding only, there is no MP3 encoder
//   - output is always stereo
//   - tags are not exposed
//
// Errors from go-mp3 are returned wrapped, and the end of the stream is
// reported as io.EOF.
package mp3
