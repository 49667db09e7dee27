// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
//
// Byte allocators for message payloads. The default allocator is backed by
// bytedance mcache: capacities are rounded up to a power of two and freed
// buffers are recycled per size class, so doubling growth stays cheap.

package pool

import (
	"sync/atomic"

	"github.com/bytedance/gopkg/lang/mcache"
)

// Allocator hands out byte slices for message payloads.
type Allocator interface {
	// Malloc returns a slice of length size and capacity of at least capacity.
	// Contents are not zeroed.
	Malloc(size, capacity int) []byte
	// Free returns a slice obtained from Malloc. It must not be used afterwards.
	Free(buf []byte)
}

// AllocatorStats aggregates allocation accounting.
type AllocatorStats struct {
	TotalAlloc int64
	TotalFree  int64
	InUse      int64
}

// BytePool is the mcache-backed Allocator.
type BytePool struct {
	allocated atomic.Int64
	freed     atomic.Int64
}

// NewBytePool returns an mcache-backed allocator.
func NewBytePool() *BytePool {
	return &BytePool{}
}

// Malloc implements Allocator.
func (b *BytePool) Malloc(size, capacity int) []byte {
	if capacity < size {
		capacity = size
	}
	b.allocated.Add(1)
	return mcache.Malloc(size, capacity)
}

// Free implements Allocator.
func (b *BytePool) Free(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	b.freed.Add(1)
	mcache.Free(buf)
}

// Stats exposes accounting for observability.
func (b *BytePool) Stats() AllocatorStats {
	alloc, free := b.allocated.Load(), b.freed.Load()
	return AllocatorStats{TotalAlloc: alloc, TotalFree: free, InUse: alloc - free}
}

// HeapAllocator allocates from the Go heap and lets the GC reclaim buffers.
type HeapAllocator struct{}

// Malloc implements Allocator.
func (HeapAllocator) Malloc(size, capacity int) []byte {
	if capacity < size {
		capacity = size
	}
	return make([]byte, size, capacity)
}

// Free implements Allocator.
func (HeapAllocator) Free([]byte) {}
