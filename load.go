// SPDX-License-Identifier: EPL-2.0

package atomix

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ik5/atomix/audio"
	"github.com/ik5/atomix/formats/aiff"
	"github.com/ik5/atomix/formats/mp3"
	"github.com/ik5/atomix/formats/vorbis"
	"github.com/ik5/atomix/formats/wav"
)

// NewRegistry returns a decoder registry holding every bundled format, keyed
// by file extension.
func NewRegistry() *audio.Registry {
	reg := audio.NewRegistry()
	reg.Register("wav", wav.Decoder{})
	reg.Register("mp3", mp3.Decoder{})
	reg.Register("ogg", vorbis.Decoder{})
	reg.Register("oga", vorbis.Decoder{})
	reg.Register("aiff", aiff.Decoder{})
	reg.Register("aif", aiff.Decoder{})
	return reg
}

// LoadClipFile decodes the file at path into a clip named after the file,
// picking the decoder by extension. opts.Name is ignored.
func LoadClipFile(reg *audio.Registry, path string, opts audio.LoadOptions) (*audio.Clip, error) {
	dec, ok := reg.ForPath(path)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	src, err := dec.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	opts.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return audio.LoadClip(src, opts)
}
