// SPDX-License-Identifier: EPL-2.0

package wav

import "errors"

var (
	ErrNotWavFile          = errors.New("not a WAV file")
	ErrUnsupportedEncoding = errors.New("only integer PCM WAV is supported")
	ErrMissingFormat       = errors.New("WAV file has no fmt chunk")
	ErrWriterClosed        = errors.New("WAV writer already closed")
	ErrInvalidWriterFormat = errors.New("invalid WAV writer format")
)
