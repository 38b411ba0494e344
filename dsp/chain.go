// SPDX-License-Identifier: EPL-2.0

package dsp

import (
	"fmt"
	"slices"
	"sync"
)

// Chain runs instances in insertion order.
type Chain struct {
	mu        sync.RWMutex
	instances []*Instance
}

// Append adds in at the end of the chain. Names must be unique.
func (c *Chain) Append(in *Instance) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if slices.ContainsFunc(c.instances, func(x *Instance) bool { return x.name == in.name }) {
		return fmt.Errorf("%w: %q", ErrDuplicateEffectKey, in.name)
	}
	c.instances = append(c.instances, in)
	return nil
}

// Remove drops the named instance.
func (c *Chain) Remove(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := slices.IndexFunc(c.instances, func(x *Instance) bool { return x.name == name })
	if i < 0 {
		return false
	}
	c.instances = slices.Delete(c.instances, i, i+1)
	return true
}

// Find returns the named instance.
func (c *Chain) Find(name string) (*Instance, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, in := range c.instances {
		if in.name == name {
			return in, true
		}
	}
	return nil, false
}

// Instances returns a copy of the chain order.
func (c *Chain) Instances() []*Instance {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.instances)
}

func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.instances)
}

func (c *Chain) Process(planes [][]float32, frames int) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, in := range c.instances {
		in.Process(planes, frames)
	}
}

func (c *Chain) Reset() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, in := range c.instances {
		in.Reset()
	}
}
