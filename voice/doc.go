// SPDX-License-Identifier: EPL-2.0

// Package voice arbitrates a finite set of voices between competing play
// requests.
//
// Voices live in pools that cap channel count and sampling rate. A request may
// also name a limit group, which caps how many voices that group holds at once
// across all pools. When nothing is free the request competes with the
// lowest-priority voice in its way: a higher priority always wins, and an equal
// priority wins only under PreferLast. Among equally low voices the oldest one
// is taken.
//
// Requests made with AllocateRetry never fail outright while they could still
// be served later. They are parked as virtual voices and Retry, called once per
// server tick, revisits them in arrival order. A retry only displaces voices of
// strictly lower priority, so two equal requests cannot keep stealing from
// each other.
package voice
