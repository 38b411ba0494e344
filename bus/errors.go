// SPDX-License-Identifier: EPL-2.0

package bus

import "errors"

var (
	ErrUnknownBus        = errors.New("unknown bus")
	ErrDuplicateBus      = errors.New("duplicate bus name")
	ErrTooManyBuses      = errors.New("setting has more buses than the rack allows")
	ErrEmptySetting      = errors.New("setting has no buses")
	ErrBusCycle          = errors.New("bus sends form a cycle")
	ErrSendOrder         = errors.New("send would run against the render order")
	ErrAnalyzerAttached  = errors.New("cannot attach a setting while analyzers are attached")
	ErrInvalidMatrix     = errors.New("invalid send matrix")
	ErrUnknownEffect     = errors.New("unknown effect on bus")
	ErrUnknownPort       = errors.New("unknown output port")
	ErrDuplicatePort     = errors.New("duplicate output port")
	ErrInvalidMapping    = errors.New("invalid speaker mapping")
	ErrUnknownTap        = errors.New("tap is not attached")
	ErrSelfSend          = errors.New("bus cannot send to itself")
	ErrInvalidFrameCount = errors.New("frame count exceeds graph block size")
)
