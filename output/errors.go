// SPDX-License-Identifier: EPL-2.0

package output

import "errors"

var (
	ErrUnknownFormat   = errors.New("unknown sample format")
	ErrUnknownBackend  = errors.New("unknown output backend")
	ErrContextMismatch = errors.New("oto context already open with another format")
	ErrClosed          = errors.New("device closed")
)
