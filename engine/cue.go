// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"sort"

	"github.com/ik5/atomix/audio"
)

// AisacPoint is one vertex of an AISAC curve.
type AisacPoint struct {
	X, Y float32
}

// Aisac maps a player control value in [0, 1] onto a parameter. The curve
// output combines with the authored value using the target's strategy.
type Aisac struct {
	Control string
	Target  ParamID
	Points  []AisacPoint
}

// Value evaluates the curve at x with linear interpolation. Outside the first
// and last points the curve is flat.
func (a Aisac) Value(x float32) float32 {
	pts := a.Points
	switch {
	case len(pts) == 0:
		return identity(a.Target)
	case x <= pts[0].X:
		return pts[0].Y
	case x >= pts[len(pts)-1].X:
		return pts[len(pts)-1].Y
	}

	i := sort.Search(len(pts), func(i int) bool { return pts[i].X >= x })
	p0, p1 := pts[i-1], pts[i]
	if p1.X == p0.X {
		return p1.Y
	}
	t := (x - p0.X) / (p1.X - p0.X)
	return p0.Y + (p1.Y-p0.Y)*t
}

// Cue is authored content: what to play and how it was mixed.
type Cue struct {
	Name string
	Clip *audio.Clip

	// Selector names the label a player picks a variant with.
	Selector string
	Variants map[string]*audio.Clip

	// Params holds authored values. Missing ones take their defaults.
	Params map[ParamID]float32
	// BusSends maps bus names to send levels. Empty sends everything to the
	// master bus at unity.
	BusSends map[string]float32
	Category string
	Group    string
	Aisacs   []Aisac
}

// authored returns the complete authored parameter set.
func (c *Cue) authored() [NumParams]float32 {
	v := authoredDefaults
	for id, val := range c.Params {
		if id.Valid() {
			v[id] = clampParam(id, val)
		}
	}
	return v
}

// clipFor picks the variant chosen by labels, falling back to c.Clip.
func (c *Cue) clipFor(labels map[string]string) *audio.Clip {
	if c.Selector != "" {
		if label, ok := labels[c.Selector]; ok {
			if clip, ok := c.Variants[label]; ok {
				return clip
			}
		}
	}
	return c.Clip
}
