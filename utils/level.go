// SPDX-License-Identifier: EPL-2.0

package utils

import "math"

// SilenceDB is the level reported for a zero amplitude.
const SilenceDB = -math.MaxFloat32

// DecibelsToAmplitude converts a gain in dB to a linear amplitude multiplier.
func DecibelsToAmplitude(db float64) float64 {
	return math.Pow(10, db/20)
}

// AmplitudeToDecibels converts a linear amplitude to dB. Zero and negative
// amplitudes map to SilenceDB.
func AmplitudeToDecibels(a float64) float64 {
	if a <= 0 {
		return SilenceDB
	}
	return 20 * math.Log10(a)
}

// CentsToRatio converts a pitch offset in cents (100 cents = 1 semitone) to a
// playback speed ratio.
func CentsToRatio(cents float64) float64 {
	return math.Exp2(cents / 1200)
}

// WrapAngle folds an angle in degrees into [-180, 180) by adding or
// subtracting whole turns.
func WrapAngle(deg float64) float64 {
	for deg >= 180 {
		deg -= 360
	}
	for deg < -180 {
		deg += 360
	}
	return deg
}

// Number is any numeric type Clamp accepts.
type Number interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64
}

// Clamp limits v to [lo, hi].
func Clamp[T Number](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
