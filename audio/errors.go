// SPDX-License-Identifier: EPL-2.0

package audio

import "errors"

var (
	ErrInvalidDstSize  = errors.New("dst size must be multiple of channels")
	ErrInvalidFormat   = errors.New("invalid sample rate or channel count")
	ErrInvalidClipData = errors.New("clip data length must be a multiple of channels")
	ErrEmptyClip       = errors.New("clip has no frames")
	ErrInvalidLoop     = errors.New("loop points out of range")
	ErrInvalidSpeed    = errors.New("playback speed out of range")
	ErrUnknownFormat   = errors.New("no decoder registered for format")
	ErrSeekOutOfRange  = errors.New("seek position out of range")
)
