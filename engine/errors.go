// SPDX-License-Identifier: EPL-2.0

package engine

import "errors"

var (
	ErrInvalidConfig      = errors.New("invalid engine configuration")
	ErrCalledFromCallback = errors.New("blocking engine API called from a server callback")
	ErrEngineClosed       = errors.New("engine is closed")
	ErrUnknownRack        = errors.New("unknown rack")
	ErrTooManyRacks       = errors.New("rack limit reached")
	ErrRackInUse          = errors.New("rack is the default rack")
	ErrTooManyPlayerRacks = errors.New("too many racks for one player")
	ErrTooManyPorts       = errors.New("too many output ports for one player")
	ErrNoData             = errors.New("player has no data to play")
	ErrInvalidPlayback    = errors.New("invalid playback handle")
	ErrForeignPlayback    = errors.New("playback belongs to another player")
	ErrPlayerDestroyed    = errors.New("player was destroyed")
	ErrUnknownCategory    = errors.New("unknown category")
	ErrDuplicateCategory  = errors.New("duplicate category")
	ErrInvalidParameter   = errors.New("invalid parameter")
	ErrInvalidFader       = errors.New("invalid fader configuration")
	ErrChannelMismatch    = errors.New("chained data has a different channel count")
)
