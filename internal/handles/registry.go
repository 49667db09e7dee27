// File: internal/handles/registry.go
// Package handles
// Author: momentics <momentics@gmail.com>
//
// Sharded, thread-safe handle registry for high concurrency. Handles encode
// their shard in the low bits of the slot index, so lookups never touch more
// than one shard lock.

package handles

import (
	"math/bits"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

type registryShard[T any] struct {
	mu    sync.Mutex
	arena Arena[T]
	_     cpu.CacheLinePad
}

// Registry maps opaque uint64 handles to values.
type Registry[T any] struct {
	shards []registryShard[T]
	shift  uint
	mask   uint32
	next   atomic.Uint32
}

// NewRegistry constructs a registry with shardCount shards, rounded up to a
// power of two. shardCount <= 0 selects 16.
func NewRegistry[T any](shardCount int) *Registry[T] {
	if shardCount <= 0 {
		shardCount = 16
	}
	if shardCount > 256 {
		shardCount = 256
	}
	n := nextPowerOfTwo(uint32(shardCount))
	return &Registry[T]{
		shards: make([]registryShard[T], n),
		shift:  uint(bits.TrailingZeros32(n)),
		mask:   n - 1,
	}
}

// Insert registers v and returns its handle. Handles are never zero.
func (r *Registry[T]) Insert(v T) uint64 {
	s := r.next.Add(1) & r.mask
	sh := &r.shards[s]
	sh.mu.Lock()
	local := sh.arena.Insert(v)
	sh.mu.Unlock()
	return uint64(makeKey(local.Index()<<r.shift|s, local.Generation()))
}

// Get returns the value for h.
func (r *Registry[T]) Get(h uint64) (T, bool) {
	sh, local := r.locate(h)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.arena.Get(local)
}

// Remove unregisters h and returns its value. Later lookups of h fail.
func (r *Registry[T]) Remove(h uint64) (T, bool) {
	sh, local := r.locate(h)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.arena.Remove(local)
}

// Len returns the number of registered values.
func (r *Registry[T]) Len() int {
	total := 0
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.Lock()
		total += sh.arena.Len()
		sh.mu.Unlock()
	}
	return total
}

// Range applies fn to a snapshot of every registered handle and value.
// fn runs without shard locks held, so it may call Remove.
func (r *Registry[T]) Range(fn func(uint64, T)) {
	type entry struct {
		h uint64
		v T
	}
	var snapshot []entry
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.Lock()
		sh.arena.Range(func(k Key, v T) bool {
			idx := k.Index()<<r.shift | uint32(i)
			snapshot = append(snapshot, entry{uint64(makeKey(idx, k.Generation())), v})
			return true
		})
		sh.mu.Unlock()
	}
	for _, e := range snapshot {
		fn(e.h, e.v)
	}
}

func (r *Registry[T]) locate(h uint64) (*registryShard[T], Key) {
	k := Key(h)
	s := k.Index() & r.mask
	return &r.shards[s], makeKey(k.Index()>>r.shift, k.Generation())
}

// nextPowerOfTwo returns the next power-of-two >= v.
func nextPowerOfTwo(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
