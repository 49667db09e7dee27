// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import "sync"

// Allocator is a counting pool.Allocator backed by the heap.
type Allocator struct {
	mu      sync.Mutex
	Mallocs int
	Frees   int
}

// Malloc implements pool.Allocator.
func (a *Allocator) Malloc(size, capacity int) []byte {
	a.mu.Lock()
	a.Mallocs++
	a.mu.Unlock()
	if capacity < size {
		capacity = size
	}
	return make([]byte, size, capacity)
}

// Free implements pool.Allocator.
func (a *Allocator) Free(_ []byte) {
	a.mu.Lock()
	a.Frees++
	a.mu.Unlock()
}

// Counts returns the number of Malloc and Free calls so far.
func (a *Allocator) Counts() (mallocs, frees int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Mallocs, a.Frees
}
