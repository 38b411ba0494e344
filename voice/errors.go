// SPDX-License-Identifier: EPL-2.0

package voice

import "errors"

var (
	ErrNoMatchingPool  = errors.New("no voice pool can satisfy the request")
	ErrNoVoice         = errors.New("no voice available at this priority")
	ErrVirtualOverflow = errors.New("virtual voice limit exceeded")
	ErrGroupClosed     = errors.New("voice limit group admits no voices")
	ErrInvalidPool     = errors.New("invalid voice pool")
	ErrDuplicateName   = errors.New("duplicate pool or group name")
)
