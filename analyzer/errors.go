// SPDX-License-Identifier: EPL-2.0

package analyzer

import "errors"

var (
	ErrInvalidConfig   = errors.New("invalid analyzer configuration")
	ErrTooManyChannels = errors.New("too many channels for analyzer")
)
