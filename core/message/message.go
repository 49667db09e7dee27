// File: core/message/message.go
// Author: momentics <momentics@gmail.com>
//
// Message is a growable payload plus the handles attached to it. A message
// has a single owner and is not safe for concurrent use.

package message

import (
	"go.uber.org/multierr"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/pool"
)

// MinCapacity is the payload capacity reserved for every new message.
const MinCapacity = 32

// HandleCloser closes handles owned by a destroyed message.
type HandleCloser interface {
	Close(h api.Handle) error
}

// Options configure a message.
type Options struct {
	// Allocator backs the payload. Nil selects a heap allocator.
	Allocator pool.Allocator
	// MinCapacity overrides MinCapacity when larger.
	MinCapacity int
}

// Message is a payload with attached handles.
type Message struct {
	alloc    pool.Allocator
	closer   HandleCloser
	payload  []byte
	handles  []api.Handle
	reallocs int
	done     bool
}

// New creates an empty message whose payload has at least MinCapacity bytes
// of capacity. closer receives handles still attached at Destroy.
func New(closer HandleCloser, opts Options) *Message {
	alloc := opts.Allocator
	if alloc == nil {
		alloc = pool.HeapAllocator{}
	}
	capacity := MinCapacity
	if opts.MinCapacity > capacity {
		capacity = opts.MinCapacity
	}
	return &Message{
		alloc:   alloc,
		closer:  closer,
		payload: alloc.Malloc(0, capacity),
	}
}

// AppendData grows the payload by n bytes and attaches handles. It returns
// the whole payload, whose capacity may exceed its length; callers fill the
// new bytes in place. Growth doubles the capacity or jumps straight to the
// required size, whichever is larger.
func (m *Message) AppendData(n int, handles []api.Handle) ([]byte, error) {
	if m.done {
		return nil, api.ErrInvalidArgument.WithContext("message", "destroyed")
	}
	if n < 0 {
		return nil, api.ErrInvalidArgument.WithContext("bytes", n)
	}
	for _, h := range handles {
		if !h.IsValid() {
			return nil, api.ErrInvalidArgument.WithContext("handle", h)
		}
	}

	size := len(m.payload)
	required := size + n
	if required > cap(m.payload) {
		capacity := 2 * cap(m.payload)
		if capacity < required {
			capacity = required
		}
		grown := m.alloc.Malloc(required, capacity)
		copy(grown, m.payload)
		m.alloc.Free(m.payload)
		m.payload = grown
		m.reallocs++
	} else {
		m.payload = m.payload[:required]
	}
	m.handles = append(m.handles, handles...)
	return m.payload, nil
}

// GetData returns the payload and the number of attached handles. When
// consume is set the handles are copied to out and ownership passes to the
// caller. If out is too small nothing is consumed and ErrResourceExhausted
// is returned together with the required count. The payload aliases the
// message's pooled buffer: it is valid only until the next AppendData,
// Truncate, Release or Destroy.
func (m *Message) GetData(consume bool, out []api.Handle) ([]byte, int, error) {
	if m.done {
		return nil, 0, api.ErrInvalidArgument.WithContext("message", "destroyed")
	}
	n := len(m.handles)
	if !consume {
		return m.payload, n, nil
	}
	if len(out) < n {
		return m.payload, n, api.ErrResourceExhausted.WithContext("handles", n)
	}
	copy(out, m.handles)
	m.handles = nil
	return m.payload, n, nil
}

// Truncate shrinks the logical payload size to size.
func (m *Message) Truncate(size int) error {
	if m.done {
		return api.ErrInvalidArgument.WithContext("message", "destroyed")
	}
	if size < 0 || size > len(m.payload) {
		return api.ErrOutOfRange.WithContext("size", size)
	}
	m.payload = m.payload[:size]
	return nil
}

// Handles returns the attached handles without transferring ownership.
func (m *Message) Handles() []api.Handle { return m.handles }

// Size returns the logical payload size.
func (m *Message) Size() int { return len(m.payload) }

// Capacity returns the reserved payload capacity.
func (m *Message) Capacity() int { return cap(m.payload) }

// Reallocations returns how many times the payload was regrown.
func (m *Message) Reallocations() int { return m.reallocs }

// Destroyed reports whether the message was destroyed or released.
func (m *Message) Destroyed() bool { return m.done }

// Release ends the message after its contents were handed to the primitive:
// attached handles are forgotten without being closed and the payload is
// freed.
func (m *Message) Release() error {
	if m.done {
		return api.ErrInvalidArgument.WithContext("message", "destroyed")
	}
	m.handles = nil
	m.free()
	return nil
}

// Destroy closes every handle still attached and frees the payload.
func (m *Message) Destroy() error {
	if m.done {
		return api.ErrInvalidArgument.WithContext("message", "destroyed")
	}
	var err error
	if m.closer != nil {
		for _, h := range m.handles {
			err = multierr.Append(err, m.closer.Close(h))
		}
	}
	m.handles = nil
	m.free()
	return err
}

func (m *Message) free() {
	m.alloc.Free(m.payload)
	m.payload = nil
	m.done = true
}
