// SPDX-License-Identifier: EPL-2.0

package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ik5/atomix/audio"
)

// Device plays a source until closed.
type Device interface {
	// Start begins or resumes playback.
	Start() error
	// Pause holds playback without dropping the source.
	Pause()
	// SetVolume sets a linear gain on the device side.
	SetVolume(v float64)
	Close() error
}

var (
	_ Device = (*OtoDevice)(nil)
	_ Device = (*BeepDevice)(nil)
)

// Options configure a device.
type Options struct {
	Backend string // oto or beep
	Format  SampleFormat
	Buffer  time.Duration
	Logger  *logrus.Logger
}

// Open creates the device named by opts.Backend playing src.
func Open(src audio.Source, opts Options) (Device, error) {
	switch strings.ToLower(opts.Backend) {
	case "", "oto":
		return NewOtoDevice(src, opts)
	case "beep":
		return NewBeepDevice(src, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

func (o Options) logger() *logrus.Logger {
	if o.Logger == nil {
		return logrus.StandardLogger()
	}
	return o.Logger
}
