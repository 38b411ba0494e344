// SPDX-License-Identifier: EPL-2.0

// Package atomix is a realtime audio mixing engine.
//
// The engine package holds the mixer itself: players start playbacks of
// clips, voices render them through filters and panning into racks of buses,
// and each rack delivers interleaved float32 frames. This package adds the
// glue most hosts need around it.
//
// # Loading Clips
//
// NewRegistry knows every bundled decoder:
//   - WAV (8/16/24/32-bit PCM) via formats/wav
//   - MP3 via formats/mp3
//   - Ogg Vorbis via formats/vorbis
//   - AIFF via formats/aiff
//
// LoadClipFile picks one by extension and drains the stream into memory,
// optionally resampled to the engine rate:
//
//	reg := atomix.NewRegistry()
//	clip, err := atomix.LoadClipFile(reg, "hit.ogg", audio.LoadOptions{SampleRate: 48000})
//
// # Offline Rendering
//
// RenderFrames ticks the server and collects a fixed number of frames of one
// rack. RenderToWAV streams a duration of it into a WAV file:
//
//	e, _ := engine.New(engine.DefaultConfig())
//	p, _ := e.CreatePlayer()
//	p.SetClip(clip)
//	p.Start()
//
//	f, _ := os.Create("mix.wav")
//	err := atomix.RenderToWAV(f, e, engine.RackIDDefault, 2*time.Second, 16)
//
// # Realtime Output
//
// The output package plays a rack on the system device through oto or beep,
// and cmd/atomix wraps all of it in a command line tool.
package atomix
