// SPDX-License-Identifier: EPL-2.0

// Package arena provides a generation-checked slot arena.
//
// Engine entities (voices, players, playbacks, effect instances) are addressed
// by Handle values instead of pointers. A handle carries the slot index and the
// generation the slot had when the value was inserted; once the slot is reused
// the old handle stops resolving, so a stale handle can never reach a new
// entity.
package arena

// Handle identifies a value stored in an Arena[T]. The zero Handle is never
// valid.
type Handle[T any] struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h is the zero (invalid) handle.
func (h Handle[T]) IsZero() bool { return h.gen == 0 }

// Uint64 packs the handle into a single opaque integer.
func (h Handle[T]) Uint64() uint64 { return uint64(h.gen)<<32 | uint64(h.index) }

// FromUint64 unpacks a value produced by Handle.Uint64.
func FromUint64[T any](v uint64) Handle[T] {
	return Handle[T]{index: uint32(v), gen: uint32(v >> 32)}
}

type slot[T any] struct {
	value T
	gen   uint32
	used  bool
}

// Arena stores values of T in reusable slots. It is not safe for concurrent
// use; callers guard it with their own lock.
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
	count int
}

// New returns an arena with room for capacity values before growing.
func New[T any](capacity int) *Arena[T] {
	return &Arena[T]{
		slots: make([]slot[T], 0, capacity),
	}
}

// Insert stores v and returns its handle.
func (a *Arena[T]) Insert(v T) Handle[T] {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, slot[T]{})
	}

	s := &a.slots[idx]
	s.gen++
	if s.gen == 0 { // wrapped; generation 0 is reserved for the zero handle
		s.gen = 1
	}
	s.value = v
	s.used = true
	a.count++

	return Handle[T]{index: idx, gen: s.gen}
}

// Get returns a pointer to the value for h, or false when h is stale or zero.
func (a *Arena[T]) Get(h Handle[T]) (*T, bool) {
	if h.gen == 0 || int(h.index) >= len(a.slots) {
		return nil, false
	}
	s := &a.slots[h.index]
	if !s.used || s.gen != h.gen {
		return nil, false
	}
	return &s.value, true
}

// Contains reports whether h resolves.
func (a *Arena[T]) Contains(h Handle[T]) bool {
	_, ok := a.Get(h)
	return ok
}

// Remove frees the slot for h. It returns false if h did not resolve.
func (a *Arena[T]) Remove(h Handle[T]) bool {
	if !a.Contains(h) {
		return false
	}
	s := &a.slots[h.index]
	var zero T
	s.value = zero
	s.used = false
	a.free = append(a.free, h.index)
	a.count--
	return true
}

// Len returns the number of live values.
func (a *Arena[T]) Len() int { return a.count }

// Each calls fn for every live value in slot order until fn returns false.
func (a *Arena[T]) Each(fn func(Handle[T], *T) bool) {
	for i := range a.slots {
		s := &a.slots[i]
		if !s.used {
			continue
		}
		if !fn(Handle[T]{index: uint32(i), gen: s.gen}, &s.value) {
			return
		}
	}
}

// Clear removes every value. Outstanding handles stop resolving.
func (a *Arena[T]) Clear() {
	a.Each(func(h Handle[T], _ *T) bool {
		a.Remove(h)
		return true
	})
}
