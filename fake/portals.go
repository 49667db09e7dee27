// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the portal primitive.

package fake

import (
	"sync"

	"github.com/momentics/hioload-ipc/api"
)

// Portals wraps a real api.Portals and lets tests inject failures and hold
// trap callbacks until they are explicitly released.
type Portals struct {
	inner api.Portals

	mu       sync.Mutex
	putError error
	getError error
	trapErr  error
	holding  bool
	held     []func()
	trapCall int
}

// Ensure compliance with api.Portals.
var (
	_ api.Portals       = (*Portals)(nil)
	_ api.TrapCanceller = (*Portals)(nil)
)

// NewPortals wraps inner.
func NewPortals(inner api.Portals) *Portals {
	return &Portals{inner: inner}
}

// SetPutError makes every Put fail with err until cleared with nil.
func (p *Portals) SetPutError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.putError = err
}

// SetGetError makes every Get fail with err until cleared with nil.
func (p *Portals) SetGetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.getError = err
}

// SetTrapError makes every Trap fail with err until cleared with nil.
func (p *Portals) SetTrapError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trapErr = err
}

// HoldTrapEvents queues trap callbacks instead of running them.
func (p *Portals) HoldTrapEvents() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.holding = true
}

// ReleaseHeld stops holding and runs every queued callback in order on the
// calling goroutine. It returns the number of callbacks run.
func (p *Portals) ReleaseHeld() int {
	p.mu.Lock()
	held := p.held
	p.held = nil
	p.holding = false
	p.mu.Unlock()

	for _, fn := range held {
		fn()
	}
	return len(held)
}

// NumHeld returns the number of queued callbacks.
func (p *Portals) NumHeld() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.held)
}

// TrapCalls returns how many times Trap was called.
func (p *Portals) TrapCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trapCall
}

// OpenPortals implements api.Portals.
func (p *Portals) OpenPortals() (api.Handle, api.Handle, error) {
	return p.inner.OpenPortals()
}

// Close implements api.Portals.
func (p *Portals) Close(h api.Handle) error {
	return p.inner.Close(h)
}

// Put implements api.Portals.
func (p *Portals) Put(h api.Handle, data []byte, handles []api.Handle) error {
	p.mu.Lock()
	err := p.putError
	p.mu.Unlock()
	if err != nil {
		return err
	}
	return p.inner.Put(h, data, handles)
}

// Get implements api.Portals.
func (p *Portals) Get(h api.Handle, data []byte, handles []api.Handle) (int, int, error) {
	p.mu.Lock()
	err := p.getError
	p.mu.Unlock()
	if err != nil {
		return 0, 0, err
	}
	return p.inner.Get(h, data, handles)
}

// QueryStatus implements api.Portals.
func (p *Portals) QueryStatus(h api.Handle) (api.PortalStatus, error) {
	return p.inner.QueryStatus(h)
}

// Trap implements api.Portals.
func (p *Portals) Trap(h api.Handle, conditions api.TrapConditions, handler api.PortalTrapHandler, trapContext uint64) (api.TrapConditionFlags, api.PortalStatus, error) {
	p.mu.Lock()
	p.trapCall++
	err := p.trapErr
	p.mu.Unlock()
	if err != nil {
		return 0, api.PortalStatus{}, err
	}
	if handler == nil {
		return p.inner.Trap(h, conditions, handler, trapContext)
	}
	return p.inner.Trap(h, conditions, p.wrap(handler), trapContext)
}

// CancelTraps implements api.TrapCanceller when the wrapped primitive does.
// Callbacks already held are not affected.
func (p *Portals) CancelTraps(h api.Handle, trapContext uint64) int {
	if c, ok := p.inner.(api.TrapCanceller); ok {
		return c.CancelTraps(h, trapContext)
	}
	return 0
}

func (p *Portals) wrap(handler api.PortalTrapHandler) api.PortalTrapHandler {
	return func(ev api.PortalTrapEvent) {
		p.mu.Lock()
		if p.holding {
			p.held = append(p.held, func() { handler(ev) })
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
		handler(ev)
	}
}
