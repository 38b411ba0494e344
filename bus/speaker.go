// SPDX-License-Identifier: EPL-2.0

package bus

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// SpeakerMapping is the channel layout of a rack output.
type SpeakerMapping int

const (
	MappingMono SpeakerMapping = iota
	MappingStereo
	MappingQuad
	Mapping51
	Mapping71
)

// lfe marks the low-frequency channel, which takes no part in panning.
var lfe = math.NaN()

// speaker angles in degrees, negative to the left, in channel order
var speakerAngles = map[SpeakerMapping][]float64{
	MappingMono:   {0},
	MappingStereo: {-30, 30},
	MappingQuad:   {-45, 45, -135, 135},
	Mapping51:     {-30, 30, 0, lfe, -110, 110},
	Mapping71:     {-30, 30, 0, lfe, -90, 90, -150, 150},
}

var mappingNames = map[SpeakerMapping]string{
	MappingMono:   "mono",
	MappingStereo: "stereo",
	MappingQuad:   "quad",
	Mapping51:     "5.1",
	Mapping71:     "7.1",
}

func (m SpeakerMapping) String() string {
	if n, ok := mappingNames[m]; ok {
		return n
	}
	return fmt.Sprintf("SpeakerMapping(%d)", int(m))
}

// Channels returns the channel count of the layout.
func (m SpeakerMapping) Channels() int { return len(speakerAngles[m]) }

// Valid reports whether m is a known layout.
func (m SpeakerMapping) Valid() bool {
	_, ok := speakerAngles[m]
	return ok
}

// LFE returns the LFE channel index, or -1.
func (m SpeakerMapping) LFE() int {
	return slices.IndexFunc(speakerAngles[m], math.IsNaN)
}

// ParseMapping accepts the names printed by String.
func ParseMapping(s string) (SpeakerMapping, error) {
	for m, n := range mappingNames {
		if strings.EqualFold(n, s) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMapping, s)
}

// MappingForChannels returns the default layout for a channel count.
func MappingForChannels(channels int) (SpeakerMapping, bool) {
	for m, angles := range speakerAngles {
		if len(angles) == channels {
			return m, true
		}
	}
	return 0, false
}

// PanInfo positions a signal on the speaker ring.
type PanInfo struct {
	Volume float32
	// Angle in degrees, 0 is front center, negative is left.
	Angle float32
	// Distance 1 places the source on the speaker ring; 0 puts it on the
	// listener, heard equally from every speaker.
	Distance float32
	// Wideness scales the spacing of a multichannel source's channels.
	Wideness float32
	// Spread blends every channel toward all speakers.
	Spread float32
}

// DefaultPanInfo is a centered source on the speaker ring.
var DefaultPanInfo = PanInfo{Volume: 1, Distance: 1, Wideness: 1}

type ring struct {
	angles []float64 // sorted, LFE excluded
	index  []int     // output channel of each angle
}

func newRing(m SpeakerMapping) ring {
	var r ring
	for ch, a := range speakerAngles[m] {
		if math.IsNaN(a) {
			continue
		}
		r.angles = append(r.angles, a)
		r.index = append(r.index, ch)
	}
	order := make([]int, len(r.angles))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		switch {
		case r.angles[a] < r.angles[b]:
			return -1
		case r.angles[a] > r.angles[b]:
			return 1
		}
		return 0
	})

	sorted := ring{angles: make([]float64, len(order)), index: make([]int, len(order))}
	for i, o := range order {
		sorted.angles[i] = r.angles[o]
		sorted.index[i] = r.index[o]
	}
	return sorted
}

// pointGains writes constant-power pair gains for a point source at angle.
func (r ring) pointGains(angle float64, dst []float32) {
	n := len(r.angles)
	if n == 1 {
		dst[r.index[0]] = 1
		return
	}

	for i := range n {
		a := r.angles[i]
		b := r.angles[(i+1)%n]
		if i == n-1 {
			b += 360
		}

		x := angle
		if x < a {
			x += 360
		}
		if x < a || x > b {
			continue
		}

		t := (x - a) / (b - a)
		dst[r.index[i]] += float32(math.Cos(t * math.Pi / 2))
		dst[r.index[(i+1)%n]] += float32(math.Sin(t * math.Pi / 2))
		return
	}
}

// Matrix returns the gains that place an inCh-channel source on mapping,
// indexed [in*outCh+out].
func Matrix(inCh int, mapping SpeakerMapping, info PanInfo) []float32 {
	outCh := mapping.Channels()
	m := make([]float32, inCh*outCh)
	r := newRing(mapping)
	omni := float32(1 / math.Sqrt(float64(len(r.angles))))

	inAngles := []float64{0}
	if inCh > 1 {
		if layout, ok := MappingForChannels(inCh); ok {
			inAngles = speakerAngles[layout]
		} else {
			inAngles = make([]float64, inCh)
			for i := range inAngles {
				inAngles[i] = -90 + 180*float64(i)/float64(inCh-1)
			}
		}
	}

	blend := 1 - clamp01(info.Distance)
	blend = max(blend, clamp01(info.Spread))
	lfeOut := mapping.LFE()

	row := make([]float32, outCh)
	for in := range inCh {
		clear(row)
		base := inAngles[min(in, len(inAngles)-1)]

		if math.IsNaN(base) {
			if lfeOut >= 0 {
				m[in*outCh+lfeOut] = info.Volume
			}
			continue
		}

		angle := wrap(base*float64(clamp01(info.Wideness)) + float64(info.Angle))
		r.pointGains(angle, row)

		for _, ch := range r.index {
			g := row[ch]*(1-blend) + omni*blend
			m[in*outCh+ch] = g * info.Volume
		}
	}

	return m
}

func clamp01(v float32) float32 { return min(max(v, 0), 1) }

func wrap(deg float64) float64 {
	deg = math.Mod(deg+180, 360)
	if deg < 0 {
		deg += 360
	}
	return deg - 180
}
