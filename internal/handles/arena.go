// File: internal/handles/arena.go
// Package handles
// Author: momentics <momentics@gmail.com>
//
// Generation-checked slot arena. A Key names a slot together with the
// generation it was issued for; once the slot is freed every outstanding Key
// for it goes stale, so late callbacks holding an old Key resolve to nothing.

package handles

// Key packs a slot generation (high 32 bits) and slot index (low 32 bits).
// Generations start at 1, so the zero Key is never issued.
type Key uint64

func makeKey(index, gen uint32) Key { return Key(uint64(gen)<<32 | uint64(index)) }

// Index returns the slot index.
func (k Key) Index() uint32 { return uint32(k) }

// Generation returns the slot generation the key was issued for.
func (k Key) Generation() uint32 { return uint32(k >> 32) }

type slot[T any] struct {
	value T
	gen   uint32
	used  bool
}

// Arena stores values in reusable slots. It is not safe for concurrent use;
// callers hold their own lock.
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
	live  int
}

// Insert stores v and returns its key.
func (a *Arena[T]) Insert(v T) Key {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, slot[T]{gen: 1})
	}
	s := &a.slots[idx]
	s.value = v
	s.used = true
	a.live++
	return makeKey(idx, s.gen)
}

// Get returns the value for k if k is still current.
func (a *Arena[T]) Get(k Key) (T, bool) {
	var zero T
	idx := k.Index()
	if k == 0 || int(idx) >= len(a.slots) {
		return zero, false
	}
	s := &a.slots[idx]
	if !s.used || s.gen != k.Generation() {
		return zero, false
	}
	return s.value, true
}

// Remove frees the slot for k and bumps its generation.
func (a *Arena[T]) Remove(k Key) (T, bool) {
	v, ok := a.Get(k)
	if !ok {
		return v, false
	}
	s := &a.slots[k.Index()]
	var zero T
	s.value = zero
	s.used = false
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	a.free = append(a.free, k.Index())
	a.live--
	return v, true
}

// Len returns the number of live values.
func (a *Arena[T]) Len() int { return a.live }

// Range calls fn for every live value until fn returns false.
func (a *Arena[T]) Range(fn func(Key, T) bool) {
	for i := range a.slots {
		s := &a.slots[i]
		if !s.used {
			continue
		}
		if !fn(makeKey(uint32(i), s.gen), s.value) {
			return
		}
	}
}
