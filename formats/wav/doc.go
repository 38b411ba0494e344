// SPDX-License-Identifier: EPL-2.0

// Package wav decodes and encodes WAV files through github.com/go-audio/wav.
//
// WAV is the format the engine reads its short cues from and the format every
// offline mixdown is written in, so this package covers both directions.
//
// # Supported Formats
//
// The decoder accepts:
//   - integer PCM (format tag 1) and WAVE_FORMAT_EXTENSIBLE
//   - 8, 16, 24 and 32-bit samples (8-bit is unsigned, as WAV stores it)
//   - any channel count and sample rate
//
// Float and compressed encodings (IEEE float, ADPCM, mu-law) are refused with
// ErrUnsupportedEncoding.
//
// # Decoding
//
// Decoder returns an audio.Source of interleaved float32 samples in [-1, 1]:
//
//	f, _ := os.Open("hit.wav")
//	src, err := wav.Decoder{}.Decode(f)
//	if err != nil {
//	    // ErrNotWavFile, ErrUnsupportedEncoding, ErrMissingFormat
//	}
//
// go-audio needs an io.ReadSeeker. A reader that cannot seek, such as a
// network body, is buffered in memory first. The file is closed with the
// source when the reader implements io.Closer.
//
// Cues are usually loaded into memory at the engine rate:
//
//	clip, err := audio.LoadClip(src, audio.LoadOptions{
//	    Name:       "hit",
//	    SampleRate: 48000,
//	})
//
// # Encoding
//
// Writer streams float32 samples into an integer PCM file. Samples outside
// [-1, 1] are clipped, and the RIFF sizes are patched on Close, so the
// destination must be an io.WriteSeeker:
//
//	f, _ := os.Create("mix.wav")
//	w, err := wav.NewWriter(f, 48000, 2, 16)
//	if err != nil {
//	    // ErrInvalidWriterFormat
//	}
//	for block := range blocks {
//	    if err := w.WriteSamples(block); err != nil {
//	        // ...
//	    }
//	}
//	_ = w.Close() // f stays open
//
// The writer reuses its integer buffer, so writing a block of the same size
// as the previous one does not allocate. This is what the render command and
// atomix.RenderToWAV write through.
//
// WriteWAV16 writes a complete 16-bit file from int16 data in one call:
//
//	err := wav.WriteWAV16(f, 8000, 1, pcm)
//
// # Error Handling
//
// Errors are sentinels, wrapped with detail where there is any:
//   - ErrNotWavFile: the stream has no RIFF/WAVE header
//   - ErrUnsupportedEncoding: a format tag or bit depth the decoder cannot read
//   - ErrMissingFormat: the file has no usable fmt chunk
//   - ErrInvalidWriterFormat: a writer rate, channel count or bit depth is invalid
//   - ErrWriterClosed: WriteSamples after Close
//
// Use errors.Is to test for them:
//
//	if errors.Is(err, wav.ErrUnsupportedEncoding) {
//	    fmt.Println("convert the file to integer PCM first")
//	}
package wav
