// File: core/trap/trigger.go
// Author: momentics <momentics@gmail.com>
//
// A trigger is one registered watch of a trap. Every primitive watch it
// installs carries the trigger's arena key as its context, so callbacks
// arriving after the trigger is gone resolve to nothing. Keys come from one
// process-wide arena: a live key names exactly one trigger of one trap, which
// lets primitives that support it cancel a removed trigger's watches by key.

package trap

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/internal/handles"
)

// deadStatus stands in for a portal that vanished while being armed.
var deadStatus = api.PortalStatus{Flags: api.PortalStatusPeerClosed | api.PortalStatusDead}

// watches owns the key space shared by every Trap.
var watches struct {
	mu    sync.Mutex
	arena handles.Arena[*trigger]
}

func registerWatch(tr *trigger) handles.Key {
	watches.mu.Lock()
	defer watches.mu.Unlock()
	return watches.arena.Insert(tr)
}

func lookupWatch(k handles.Key) (*trigger, bool) {
	watches.mu.Lock()
	defer watches.mu.Unlock()
	return watches.arena.Get(k)
}

func releaseWatch(k handles.Key) {
	watches.mu.Lock()
	watches.arena.Remove(k)
	watches.mu.Unlock()
}

type trigger struct {
	owner      *Trap
	key        handles.Key
	seq        uint64
	handle     api.Handle
	signals    api.Signals
	condition  api.TriggerCondition
	context    uint64
	conditions api.TrapConditions

	armed   bool
	removed bool
}

// armTriggerLocked installs the trigger's primitive watch. It reports false with
// the event to return when the conditions already hold.
func (t *Trap) armTriggerLocked(tr *trigger) (api.TrapEvent, bool) {
	if tr.armed {
		return api.TrapEvent{}, true
	}
	flags, status, err := t.portals.Trap(tr.handle, tr.conditions, t.onPortalEvent, uint64(tr.key))
	switch {
	case err == nil:
		tr.armed = true
		return api.TrapEvent{}, true
	case errors.Is(err, api.ErrFailedPrecondition):
		return TranslateEvent(tr.signals, tr.context, flags, status), false
	default:
		t.log.Warn("primitive refused trap",
			zap.Stringer("portal", tr.handle),
			zap.Uint64("trigger", tr.context),
			zap.Error(err))
		return TranslateEvent(tr.signals, tr.context, 0, deadStatus), false
	}
}

// installRemovalWatch installs the permanent watch that reports closure or
// transfer of the trigger's handle.
func (t *Trap) installRemovalWatch(tr *trigger) error {
	_, _, err := t.portals.Trap(tr.handle, api.TrapConditions{}, t.onPortalEvent, uint64(tr.key))
	return err
}

// cancelWatchesLocked uninstalls whatever primitive watches tr still has, if
// the primitive can do that. Otherwise they stay until they fire or the
// portal goes away, and resolve to nothing when they do.
func (t *Trap) cancelWatchesLocked(tr *trigger) {
	if c, ok := t.portals.(api.TrapCanceller); ok {
		c.CancelTraps(tr.handle, uint64(tr.key))
	}
}

// onPortalEvent receives both normal and removal watch events.
func (t *Trap) onPortalEvent(ev api.PortalTrapEvent) {
	tr, ok := lookupWatch(handles.Key(ev.Context))
	if !ok || tr.owner != t {
		return
	}
	t.mu.Lock()
	if tr.removed {
		t.mu.Unlock()
		return
	}

	if ev.Conditions&api.TrapRemoved != 0 {
		t.detachLocked(tr)
		t.enqueueLocked(cancelledEvent(tr.context, 0))
		t.log.Debug("trigger removed by handle closure",
			zap.Stringer("portal", tr.handle),
			zap.Uint64("trigger", tr.context))
		t.mu.Unlock()
		t.flush()
		return
	}

	if !tr.armed {
		t.mu.Unlock()
		return
	}
	tr.armed = false
	if !t.armed {
		t.mu.Unlock()
		return
	}
	t.armed = false
	t.enqueueLocked(TranslateEvent(tr.signals, tr.context, ev.Conditions, ev.Status))
	t.mu.Unlock()
	t.flush()
}
