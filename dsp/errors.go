// SPDX-License-Identifier: EPL-2.0

package dsp

import "errors"

var (
	ErrParameterIndex     = errors.New("effect parameter index out of range")
	ErrUnknownEffect      = errors.New("unknown effect interface")
	ErrDuplicateEffect    = errors.New("effect interface already registered")
	ErrTooManyInterfaces  = errors.New("too many user effect interfaces")
	ErrInvalidInterface   = errors.New("invalid effect interface")
	ErrUnsupportedRate    = errors.New("unsupported sampling rate for effect")
	ErrInvalidBlockSize   = errors.New("unsupported IR reverb block size")
	ErrInvalidIR          = errors.New("invalid impulse response")
	ErrChannelMismatch    = errors.New("effect channel count mismatch")
	ErrDuplicateEffectKey = errors.New("effect name already used in chain")
)
