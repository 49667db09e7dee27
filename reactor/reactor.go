// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Trap-driven event reactor: register handles with a signal mask and block
// in Wait until some of them become ready.

package reactor

import (
	"context"
	"errors"
	"sync"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/core/trap"
)

// Event contains readiness information returned by Wait.
type Event struct {
	Handle   api.Handle
	UserData uint64 // value passed to Register
	Result   api.ResultCode
	State    api.SignalsState
}

// Reactor multiplexes registered handles over a single trap. Register,
// Unregister and Close are safe for concurrent use, including while Wait is
// blocked; Wait must be called from one goroutine at a time.
type Reactor struct {
	trap  *trap.Trap
	ready chan struct{}

	mu      sync.Mutex
	handles map[uint64]api.Handle
	pending []api.TrapEvent
}

// NewReactor constructs a reactor over portals.
func NewReactor(portals api.Portals, opts trap.Options) (*Reactor, error) {
	r := &Reactor{
		ready:   make(chan struct{}, 1),
		handles: make(map[uint64]api.Handle),
	}
	t, err := trap.New(portals, r.onEvent, opts)
	if err != nil {
		return nil, err
	}
	r.trap = t
	return r, nil
}

// Register watches signals on h. userData must be unique per reactor.
func (r *Reactor) Register(h api.Handle, signals api.Signals, userData uint64) error {
	r.mu.Lock()
	if _, dup := r.handles[userData]; dup {
		r.mu.Unlock()
		return api.ErrAlreadyExists.WithContext("user_data", userData)
	}
	r.handles[userData] = h
	r.mu.Unlock()

	if err := r.trap.AddTrigger(h, signals, api.TriggerConditionSignalsSatisfied, userData); err != nil {
		r.mu.Lock()
		delete(r.handles, userData)
		r.mu.Unlock()
		return err
	}
	return nil
}

// Unregister stops watching the handle registered under userData.
func (r *Reactor) Unregister(userData uint64) error {
	if err := r.trap.RemoveTrigger(userData); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.handles, userData)
	r.mu.Unlock()
	return nil
}

// Wait blocks until at least one registered handle is ready, a registered
// handle is closed, or ctx is done. It writes up to len(events) events and
// returns how many were written. A closed handle is reported once with
// ResultCancelled and is unregistered. Once the reactor is closed Wait
// returns ErrCancelled.
func (r *Reactor) Wait(ctx context.Context, events []Event) (int, error) {
	if len(events) == 0 {
		return 0, api.ErrInvalidArgument.WithContext("events", 0)
	}
	raw := make([]api.TrapEvent, len(events))
	for {
		if n := r.drain(raw); n > 0 {
			return r.convert(raw[:n], events), nil
		}

		n, err := r.trap.Arm(raw)
		switch {
		case errors.Is(err, api.ErrFailedPrecondition):
			if n > 0 {
				return r.convert(raw[:n], events), nil
			}
			continue
		case err != nil:
			if r.trap.Stats().Closed {
				return 0, api.ErrCancelled.WithContext("reactor", "closed")
			}
			return 0, err
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-r.ready:
		}
	}
}

// Close releases the reactor's trap. Pending events are discarded.
func (r *Reactor) Close() error {
	if err := r.trap.Close(); err != nil {
		return err
	}
	r.mu.Lock()
	r.pending = nil
	r.mu.Unlock()
	return nil
}

// onEvent runs on the trap's dispatch path. Cancellations caused by our own
// Unregister and Close calls are not reported, but they disarm the trap, so
// a blocked Wait is still woken to re-arm or to notice the close.
func (r *Reactor) onEvent(ev api.TrapEvent) {
	if !(ev.Result == api.ResultCancelled && ev.WithinAPICall()) {
		r.mu.Lock()
		r.pending = append(r.pending, ev)
		r.mu.Unlock()
	}
	r.wake()
}

func (r *Reactor) wake() {
	select {
	case r.ready <- struct{}{}:
	default:
	}
}

func (r *Reactor) drain(out []api.TrapEvent) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := copy(out, r.pending)
	r.pending = append(r.pending[:0], r.pending[n:]...)
	return n
}

func (r *Reactor) convert(raw []api.TrapEvent, events []Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, ev := range raw {
		events[i] = Event{
			Handle:   r.handles[ev.TriggerContext],
			UserData: ev.TriggerContext,
			Result:   ev.Result,
			State:    ev.SignalsState,
		}
		if ev.Result == api.ResultCancelled {
			delete(r.handles, ev.TriggerContext)
		}
	}
	return len(raw)
}
