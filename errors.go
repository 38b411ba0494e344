// SPDX-License-Identifier: EPL-2.0

package atomix

import "errors"

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrInvalidLength     = errors.New("render length must be positive")
)
