// File: core/trap/dispatch.go
// Author: momentics <momentics@gmail.com>
//
// Handler dispatch. Events are queued under the trap lock and drained by a
// single flusher with the lock released. A handler that calls back into the
// trap, or a call made while another goroutine is flushing, only queues its
// events; the active flusher delivers them in order.

package trap

import "github.com/momentics/hioload-ipc/api"

func (t *Trap) enqueueLocked(ev api.TrapEvent) {
	t.pending.Add(ev)
}

// flush drains pending events unless another flush is already running.
func (t *Trap) flush() {
	t.mu.Lock()
	if t.flushing {
		t.mu.Unlock()
		return
	}
	t.flushing = true
	for t.pending.Length() > 0 {
		ev := t.pending.Remove().(api.TrapEvent)
		t.dispatched++
		t.mu.Unlock()

		t.metrics.TrapEvent(ev.Result)
		t.deliver(ev)

		t.mu.Lock()
	}
	t.flushing = false
	t.mu.Unlock()
}

// deliver invokes the handler. A panicking handler must not leave the trap
// stuck in the flushing state.
func (t *Trap) deliver(ev api.TrapEvent) {
	defer func() {
		if r := recover(); r != nil {
			t.mu.Lock()
			t.flushing = false
			t.mu.Unlock()
			panic(r)
		}
	}()
	t.handler(ev)
}
