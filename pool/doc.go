// Package pool
// Author: momentics <momentics@gmail.com>
//
// Memory layer for hioload-ipc.
// Provides the payload Allocator used by message objects (mcache-backed
// BytePool, or HeapAllocator for GC-managed buffers) and a generic SyncPool
// for recycling small bookkeeping objects such as portal parcels.
package pool
