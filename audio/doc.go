// SPDX-License-Identifier: EPL-2.0

// Package audio holds the stream and clip primitives the mixer is built on.
//
// A Source is a pull stream of interleaved float32 samples in [-1, 1]:
//
//	type Source interface {
//	    SampleRate() int
//	    Channels() int
//	    ReadSamples(dst []float32) (int, error)
//	    BufSize() int
//	    Close() error
//	}
//
// Decoders in the formats packages, engine racks and the processors below
// all implement it. ReadSamples returns io.EOF once the stream is drained;
// any other error is a failure of the source.
//
// # Clips
//
// A Clip is decoded audio held in memory with an optional loop region.
// LoadClip drains a Source into one, resampling and downmixing on the way:
//
//	src, _ := wav.Decoder{}.Decode(f)
//	clip, err := audio.LoadClip(src, audio.LoadOptions{SampleRate: 48000})
//	_ = clip.SetLoop(1200, clip.Frames())
//
// A ClipReader plays a clip as a Source and honors the loop region with a
// loop limit: N jumps back, LoopUnlimited or IgnoreLoop.
//
// # Resampling and Pitch
//
// Resampler converts between rates with cubic interpolation. SetSpeed scales
// the read rate between calls, which is how a voice applies pitch:
//
//	rs := audio.NewResampler(audio.NewClipReader(clip, 0), 48000)
//	_ = rs.SetSpeed(math.Exp2(cents / 1200))
//
// At a ratio of exactly one the output equals the input sample for sample.
//
// # Channel Mixing
//
// MonoMixer averages every frame down to one channel.
//
// # Format Registry
//
// Registry maps format keys, usually file extensions, to decoders:
//
//	reg := audio.NewRegistry()
//	reg.Register("wav", wav.Decoder{})
//	dec, ok := reg.ForPath("hit.wav")
package audio
