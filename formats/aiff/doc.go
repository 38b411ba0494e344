// SPDX-License-Identifier: EPL-2.0

// Package aiff decodes AIFF files through github.com/go-audio/aiff.
//
// AIFF is common in sound libraries exported from macOS tools. The decoder
// turns such files into the same audio.Source every other format produces, so
// they can be loaded as engine clips without conversion.
//
// # Supported Formats
//
// The decoder supports:
//   - uncompressed AIFF
//   - 8, 16, 24 and 32-bit signed integer samples
//   - any channel count and sample rate
//
// AIFF-C compressed files are not supported.
//
// # Decoding AIFF Files
//
// Use the Decoder directly:
//
//	f, _ := os.Open("pad.aif")
//	src, err := aiff.Decoder{}.Decode(f)
//	if err != nil {
//	    // Handle error
//	}
//	defer src.Close()
//
//	buf := make([]float32, 4096)
//	n, err := src.ReadSamples(buf)
//
// or through a registry, which picks the decoder from the file extension:
//
//	reg := atomix.NewRegistry()
//	clip, err := atomix.LoadClipFile(reg, "pad.aif", audio.LoadOptions{})
//
// # Output Format
//
// Decoded output:
//   - Sample format: interleaved float32 in [-1, 1]
//   - Channels: as stored in the COMM chunk
//   - Sample rate: as stored in the COMM chunk
//
// Big-endian storage is handled by go-audio; callers never see it.
//
// # Input Requirements
//
// go-audio seeks between the COMM and SSND chunks. Readers that do not
// implement io.Seeker are read fully into memory before decoding, which is
// fine for cues but worth avoiding for long music files.
//
// # Error Handling
//
// The package defines:
//   - ErrNotAiffFile: the stream has no FORM/AIFF header
//   - ErrUnsupportedBitDepth: a sample size other than 8, 16, 24 or 32
//   - ErrUnsupportedAiffLayout: a missing or empty COMM chunk
//
// Example:
//
//	src, err := aiff.Decoder{}.Decode(f)
//	if errors.Is(err, aiff.ErrNotAiffFile) {
//	    fmt.Println("not an AIFF file")
//	}
package aiff
