// SPDX-License-Identifier: EPL-2.0

package utils

// Float32ToInt16 converts a normalized sample to 16-bit PCM, clamping values
// outside [-1, 1].
func Float32ToInt16(x float32) int16 {
	if x >= 1 {
		return 32767
	}
	if x <= -1 {
		return -32768
	}

	return int16(x * 32768.0)
}

// Float32ToInt converts a normalized sample to a signed integer of the given
// bit depth (8, 16, 24 or 32), clamping values outside [-1, 1].
func Float32ToInt(x float32, bitDepth int) int {
	full := float64(int64(1) << (bitDepth - 1))
	v := float64(x) * full
	if v >= full-1 {
		return int(full - 1)
	}
	if v <= -full {
		return int(-full)
	}
	return int(v)
}
