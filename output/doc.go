// SPDX-License-Identifier: EPL-2.0

// Package output plays an audio.Source, usually an engine rack, on the
// system audio device.
//
// Two backends exist. OtoDevice drives an oto/v3 player through Reader,
// which encodes the source as little-endian PCM. BeepDevice hands a Streamer
// to the beep/v2 speaker. Both pull audio on the device goroutine, so a rack
// in on-demand server mode is ticked by the device itself.
package output
