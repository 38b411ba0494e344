// SPDX-License-Identifier: EPL-2.0

package voice

import (
	"github.com/ik5/atomix/internal/arena"
)

// NoGroupLimitation as a request group means the request is bound only by
// pool capacity.
const NoGroupLimitation = "*"

// ControlMethod decides equal-priority contests.
type ControlMethod int

const (
	// PreferLast lets a new request take the voice of an equal-priority one.
	PreferLast ControlMethod = iota
	// PreferFirst keeps the voices already playing.
	PreferFirst
)

func (c ControlMethod) String() string {
	if c == PreferFirst {
		return "prefer-first"
	}
	return "prefer-last"
}

// AllocationMode decides what happens to a request that cannot be served now.
type AllocationMode int

const (
	AllocateOnce AllocationMode = iota
	AllocateRetry
)

func (m AllocationMode) String() string {
	if m == AllocateRetry {
		return "retry"
	}
	return "once"
}

// Outcome of an allocation attempt.
type Outcome int

const (
	Allocated Outcome = iota
	Deferred
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Allocated:
		return "allocated"
	case Deferred:
		return "deferred"
	default:
		return "rejected"
	}
}

// Owner is an opaque token identifying who asked for a voice. The engine uses
// packed playback handles.
type Owner uint64

// Pool is a class of voices sharing the same format ceiling.
type Pool struct {
	Name            string
	NumVoices       int
	MaxChannels     int
	MaxSamplingRate int
}

func (p Pool) accepts(channels, rate int) bool {
	return channels <= p.MaxChannels && rate <= p.MaxSamplingRate
}

// LimitGroup caps the number of simultaneous voices sharing the name.
type LimitGroup struct {
	Name      string
	MaxVoices int
}

// Request describes a play request competing for a voice.
type Request struct {
	Owner        Owner
	Channels     int
	SamplingRate int
	Priority     int
	Group        string
	Control      ControlMethod
	Mode         AllocationMode
}

// Voice is the manager's record of an active voice.
type Voice struct {
	Request
	Pool string

	pool  int
	group int // -1 when ungrouped
	seq   uint64
}

// ID addresses an active voice. Once the voice is released the ID stops
// resolving.
type ID = arena.Handle[Voice]

// Eviction reports a voice taken away from its owner.
type Eviction struct {
	Owner Owner
	Voice ID
	// Virtual is true when the owner was parked as a virtual voice and may get
	// a voice back on a later Retry.
	Virtual bool
	// Err is set when the owner was dropped for good.
	Err error
}

// Result of Allocate or of one successful Retry.
type Result struct {
	Owner   Owner
	Outcome Outcome
	Voice   ID
	Evicted []Eviction
	Err     error
}
