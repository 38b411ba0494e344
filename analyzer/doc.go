// SPDX-License-Identifier: EPL-2.0

// Package analyzer provides read-only meters that tap a bus: a level meter
// (RMS, peak, peak hold), a K-weighted loudness meter and a true-peak meter.
//
// Meters implement bus.Tap. Observe runs on the render goroutine; the Info
// readers may be called from any goroutine at any rate and return a snapshot.
package analyzer
