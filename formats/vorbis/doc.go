// SPDX-License-Identifier: EPL-2.0

// Package vorbis decodes Ogg Vorbis streams through
// github.com/jfreymuth/oggvorbis.
//
// # Supported Formats
//
// The decoder supports:
//   - Ogg Vorbis I streams (.ogg, .oga)
//   - any channel count the stream declares
//   - any sample rate
//
// Opus and FLAC in Ogg containers are not supported.
//
// # Decoding Vorbis Files
//
// Use the Decoder to read Vorbis files:
//
//	f, _ := os.Open("music.ogg")
//	src, err := vorbis.Decoder{}.Decode(f)
//	if err != nil {
//	    // Handle error
//	}
//	defer src.Close()
//
//	buf := make([]float32, 4096)
//	n, err := src.ReadSamples(buf)
//
// oggvorbis decodes to float32 natively, so samples are handed through
// without conversion.
//
// # Output Format
//
// Vorbis decoder output:
//   - Sample format: interleaved float32 in [-1, 1]
//   - Channels: as declared by the stream
//   - Sample rate: as declared by the stream
//
// dst passed to ReadSamples must hold whole frames; otherwise
// audio.ErrInvalidDstSize is returned.
//
// # Short Reads
//
// oggvorbis returns short reads at packet boundaries. ReadSamples keeps
// reading until dst is full or the stream ends, so callers that treat a short
// read as the end of data, such as audio.LoadClip, see the whole stream.
//
// # Loading Music
//
// Music is usually loaded at the engine rate and played with a looping
// player:
//
//	clip, err := audio.LoadClip(src, audio.LoadOptions{
//	    Name:       "theme",
//	    SampleRate: 48000,
//	})
//	_ = clip.SetLoop(0, clip.Frames())
//
// Corrupt pages surface as wrapped errors from ReadSamples; the end of the
// stream is io.EOF.
package vorbis
