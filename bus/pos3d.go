// SPDX-License-Identifier: EPL-2.0

package bus

import "math"

// Vector is a position or direction in listener space.
type Vector struct{ X, Y, Z float32 }

func (v Vector) sub(o Vector) Vector { return Vector{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vector) dot(o Vector) float64 {
	return float64(v.X)*float64(o.X) + float64(v.Y)*float64(o.Y) + float64(v.Z)*float64(o.Z)
}

func (v Vector) cross(o Vector) Vector {
	return Vector{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

func (v Vector) length() float64 { return math.Sqrt(v.dot(v)) }

// Source3D is an emitter position with its attenuation range.
type Source3D struct {
	Position    Vector
	MinDistance float32
	MaxDistance float32
}

// Listener3D is the ear position and orientation. Front and Top must not be
// parallel.
type Listener3D struct {
	Position Vector
	Front    Vector
	Top      Vector
}

// DefaultListener faces +Z with +Y up, at the origin.
var DefaultListener = Listener3D{Front: Vector{Z: 1}, Top: Vector{Y: 1}}

// Position3D converts a source/listener pair into pan parameters: the
// horizontal angle, a distance that collapses toward the listener inside
// MinDistance, and a linear attenuation that reaches zero at MaxDistance.
func Position3D(src Source3D, lis Listener3D) PanInfo {
	rel := src.Position.sub(lis.Position)
	dist := rel.length()

	info := PanInfo{Volume: 1, Distance: 1, Wideness: 1}

	minD := float64(max(src.MinDistance, 0))
	maxD := float64(max(src.MaxDistance, src.MinDistance))
	switch {
	case dist >= maxD && maxD > 0:
		info.Volume = 0
	case maxD > minD && dist > minD:
		info.Volume = float32(1 - (dist-minD)/(maxD-minD))
	}
	if minD > 0 && dist < minD {
		info.Distance = float32(dist / minD)
	}
	if dist == 0 {
		return info
	}

	right := lis.Top.cross(lis.Front)
	x := rel.dot(right) / max(right.length(), 1e-9)
	z := rel.dot(lis.Front) / max(lis.Front.length(), 1e-9)
	info.Angle = float32(math.Atan2(x, z) * 180 / math.Pi)

	return info
}
