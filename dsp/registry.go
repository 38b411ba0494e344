// SPDX-License-Identifier: EPL-2.0

package dsp

import (
	"fmt"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"
)

// MaxUserEffectInterfaces caps the number of user effect interfaces.
const MaxUserEffectInterfaces = 256

// Builtins lists the effect interfaces every registry starts with.
func Builtins() []Interface {
	return []Interface{
		BandpassInterface,
		BiquadInterface,
		CompressorInterface,
		DelayInterface,
		IRReverbInterface,
	}
}

// Registry resolves effect interface names.
type Registry struct {
	mu      sync.RWMutex
	builtin map[string]Interface
	user    map[string]Interface
}

// NewRegistry returns a registry holding the built-in interfaces.
func NewRegistry() *Registry {
	r := &Registry{
		builtin: make(map[string]Interface),
		user:    make(map[string]Interface),
	}
	for _, b := range Builtins() {
		r.builtin[b.Name] = b
	}
	return r
}

// Register adds a user effect interface.
func (r *Registry) Register(iface Interface) error {
	if err := iface.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.builtin[iface.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateEffect, iface.Name)
	}
	if _, ok := r.user[iface.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateEffect, iface.Name)
	}
	if len(r.user) >= MaxUserEffectInterfaces {
		return ErrTooManyInterfaces
	}
	r.user[iface.Name] = iface

	logrus.WithFields(logrus.Fields{
		"function":   "Registry.Register",
		"name":       iface.Name,
		"parameters": len(iface.Defaults),
	}).Debug("User effect interface registered")

	return nil
}

// Unregister removes a user effect interface. Built-ins cannot be removed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.user[name]; !ok {
		return false
	}
	delete(r.user, name)
	return true
}

// Lookup finds an interface by name.
func (r *Registry) Lookup(name string) (Interface, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if iface, ok := r.builtin[name]; ok {
		return iface, nil
	}
	if iface, ok := r.user[name]; ok {
		return iface, nil
	}
	return Interface{}, fmt.Errorf("%w: %q", ErrUnknownEffect, name)
}

// Names returns every registered interface name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.builtin)+len(r.user))
	for n := range r.builtin {
		names = append(names, n)
	}
	for n := range r.user {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// NumUser returns how many user interfaces are registered.
func (r *Registry) NumUser() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.user)
}
