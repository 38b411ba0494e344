// SPDX-License-Identifier: EPL-2.0

package dsp

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Effect processes deinterleaved audio in place.
type Effect interface {
	// Apply installs a committed parameter set. It runs on the render side.
	Apply(params []float32)
	// Process filters frames samples of every plane in place.
	Process(planes [][]float32, frames int)
	// Reset clears the internal state (delay lines, filter memory).
	Reset()
}

// Interface describes an effect type that instances can be created from.
type Interface struct {
	Name     string
	Defaults []float32
	New      func(sampleRate, channels int) (Effect, error)
}

func (i Interface) validate() error {
	if i.Name == "" || i.New == nil {
		return fmt.Errorf("%w: %q", ErrInvalidInterface, i.Name)
	}
	return nil
}

// Instance is an effect placed somewhere in the graph, with its bypass flag
// and its staged and committed parameters.
type Instance struct {
	name   string
	iface  string
	effect Effect

	mu        sync.Mutex
	staged    []float32
	committed []float32
	pending   bool

	bypass atomic.Bool
}

// NewInstance creates an effect of type iface.
func NewInstance(name string, iface Interface, sampleRate, channels int) (*Instance, error) {
	if err := iface.validate(); err != nil {
		return nil, err
	}

	fx, err := iface.New(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", iface.Name, err)
	}

	if name == "" {
		name = iface.Name
	}

	in := &Instance{
		name:      name,
		iface:     iface.Name,
		effect:    fx,
		staged:    append([]float32(nil), iface.Defaults...),
		committed: append([]float32(nil), iface.Defaults...),
	}
	fx.Apply(in.committed)

	return in, nil
}

// Name returns the instance name, unique within a chain.
func (in *Instance) Name() string { return in.name }

// Interface returns the name of the effect type.
func (in *Instance) Interface() string { return in.iface }

// Effect exposes the processor, mainly for read-only statistics.
func (in *Instance) Effect() Effect { return in.effect }

// NumParameters returns the length of the parameter set.
func (in *Instance) NumParameters() int { return len(in.staged) }

// SetParameter stages a value. It is not heard until UpdateParameters.
func (in *Instance) SetParameter(index int, value float32) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if index < 0 || index >= len(in.staged) {
		return fmt.Errorf("%w: %d", ErrParameterIndex, index)
	}
	in.staged[index] = value
	return nil
}

// UpdateParameters publishes every staged value at once.
func (in *Instance) UpdateParameters() {
	in.mu.Lock()
	copy(in.committed, in.staged)
	in.pending = true
	in.mu.Unlock()
}

// Parameter returns the committed value.
func (in *Instance) Parameter(index int) (float32, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if index < 0 || index >= len(in.committed) {
		return 0, fmt.Errorf("%w: %d", ErrParameterIndex, index)
	}
	return in.committed[index], nil
}

// StagedParameter returns the value that the next UpdateParameters publishes.
func (in *Instance) StagedParameter(index int) (float32, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if index < 0 || index >= len(in.staged) {
		return 0, fmt.Errorf("%w: %d", ErrParameterIndex, index)
	}
	return in.staged[index], nil
}

func (in *Instance) SetBypass(bypass bool) { in.bypass.Store(bypass) }
func (in *Instance) Bypassed() bool        { return in.bypass.Load() }

// Process runs the effect unless it is bypassed.
func (in *Instance) Process(planes [][]float32, frames int) {
	in.mu.Lock()
	if in.pending {
		in.effect.Apply(in.committed)
		in.pending = false
	}
	in.mu.Unlock()

	if in.bypass.Load() {
		return
	}
	in.effect.Process(planes, frames)
}

// Reset clears the effect state.
func (in *Instance) Reset() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.effect.Reset()
}
