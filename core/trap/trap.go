// File: core/trap/trap.go
// Author: momentics <momentics@gmail.com>
//
// Trap multiplexes triggers over one-shot primitive watches and delivers
// translated events to a single handler.

package trap

import (
	"sort"
	"sync"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/control"
	"github.com/momentics/hioload-ipc/internal/logging"
)

// Options configure a Trap.
type Options struct {
	// WriteQuota bounds pending peer bytes while writable is watched.
	// Zero selects control.DefaultWriteQuotaBytes.
	WriteQuota uint64
	Logger     *zap.Logger
	Metrics    *control.Metrics
}

// Stats is a point-in-time view of a trap.
type Stats struct {
	Triggers         int
	Armed            bool
	Closed           bool
	EventsDispatched uint64
}

// Trap is safe for concurrent use. Its handler is never invoked while the
// trap lock is held and never runs concurrently with itself.
type Trap struct {
	portals api.Portals
	handler api.TrapEventHandler
	quota   uint64
	log     *zap.Logger
	metrics *control.Metrics

	mu       sync.Mutex
	contexts map[uint64]*trigger
	order    []*trigger // sorted by seq
	nextSeq  uint64
	cursor   uint64 // seq of the last trigger visited by Arm
	armed    bool
	closed   bool

	pending    *queue.Queue
	flushing   bool
	dispatched uint64
}

// New creates an unarmed trap with no triggers.
func New(portals api.Portals, handler api.TrapEventHandler, opts Options) (*Trap, error) {
	if portals == nil || handler == nil {
		return nil, api.ErrInvalidArgument.WithContext("trap", "nil portals or handler")
	}
	quota := opts.WriteQuota
	if quota == 0 {
		quota = control.DefaultWriteQuotaBytes
	}
	return &Trap{
		portals:  portals,
		handler:  handler,
		quota:    quota,
		log:      logging.OrNop(opts.Logger),
		metrics:  opts.Metrics,
		contexts: make(map[uint64]*trigger),
		pending:  queue.New(),
	}, nil
}

// AddTrigger watches signals on handle under triggerContext. If the trap is
// armed and the new trigger's conditions already hold, the trap is disarmed
// and the handler may run before AddTrigger returns.
func (t *Trap) AddTrigger(handle api.Handle, signals api.Signals, condition api.TriggerCondition, triggerContext uint64) error {
	if !handle.IsValid() {
		return api.ErrInvalidArgument.WithContext("portal", handle)
	}
	if !condition.IsValid() {
		return api.ErrInvalidArgument.WithContext("condition", uint32(condition))
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return api.ErrInvalidArgument.WithContext("trap", "closed")
	}
	if _, dup := t.contexts[triggerContext]; dup {
		t.mu.Unlock()
		return api.ErrAlreadyExists.WithContext("trigger", triggerContext)
	}

	t.nextSeq++
	tr := &trigger{
		owner:      t,
		seq:        t.nextSeq,
		handle:     handle,
		signals:    signals,
		condition:  condition,
		context:    triggerContext,
		conditions: ConditionsForSignals(signals, condition, t.quota),
	}
	tr.key = registerWatch(tr)
	if err := t.installRemovalWatch(tr); err != nil {
		releaseWatch(tr.key)
		t.mu.Unlock()
		t.log.Debug("trigger rejected", zap.Stringer("portal", handle), zap.Error(err))
		return api.ErrInvalidArgument.WithContext("portal", handle)
	}
	t.contexts[triggerContext] = tr
	t.order = append(t.order, tr)
	t.metrics.TriggerAdded()
	t.log.Debug("trigger added",
		zap.Stringer("portal", handle),
		zap.Stringer("signals", signals),
		zap.Uint64("trigger", triggerContext))

	if t.armed {
		if ev, ok := t.armTriggerLocked(tr); !ok {
			t.armed = false
			ev.Flags |= api.TrapEventFlagWithinAPICall
			t.enqueueLocked(ev)
		}
	}
	t.mu.Unlock()
	t.flush()
	return nil
}

// RemoveTrigger removes the trigger registered under triggerContext and
// delivers its cancellation event.
func (t *Trap) RemoveTrigger(triggerContext uint64) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return api.ErrInvalidArgument.WithContext("trap", "closed")
	}
	tr, ok := t.contexts[triggerContext]
	if !ok {
		t.mu.Unlock()
		return api.ErrNotFound.WithContext("trigger", triggerContext)
	}
	t.detachLocked(tr)
	t.enqueueLocked(cancelledEvent(triggerContext, api.TrapEventFlagWithinAPICall))
	t.mu.Unlock()

	t.log.Debug("trigger removed", zap.Uint64("trigger", triggerContext))
	t.flush()
	return nil
}

// Arm installs a watch for every trigger, starting one past the trigger the
// previous call stopped at. Triggers whose conditions already hold are
// reported in events; in that case the trap stays unarmed and Arm returns
// the number of events written with ErrFailedPrecondition.
func (t *Trap) Arm(events []api.TrapEvent) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		t.metrics.ArmOutcome(control.ArmInvalidState)
		return 0, api.ErrInvalidArgument.WithContext("trap", "closed")
	}
	if t.armed {
		t.metrics.ArmOutcome(control.ArmAlready)
		return 0, nil
	}
	n := len(t.order)
	if n == 0 {
		t.metrics.ArmOutcome(control.ArmNoTriggers)
		return 0, api.ErrNotFound.WithContext("trap", "no triggers")
	}

	start := sort.Search(n, func(i int) bool { return t.order[i].seq > t.cursor })
	count, failed := 0, false
	for i := 0; i < n; i++ {
		tr := t.order[(start+i)%n]
		t.cursor = tr.seq
		ev, ok := t.armTriggerLocked(tr)
		if ok {
			continue
		}
		failed = true
		if count < len(events) {
			events[count] = ev
			count++
		}
		if count >= len(events) {
			break
		}
	}

	if failed {
		t.metrics.ArmOutcome(control.ArmSatisfied)
		return count, api.ErrFailedPrecondition
	}
	t.armed = true
	t.metrics.ArmOutcome(control.ArmArmed)
	t.log.Debug("trap armed", zap.Int("triggers", n))
	return 0, nil
}

// Close removes every trigger and delivers one cancellation event for each.
// Later calls on the trap fail with ErrInvalidArgument.
func (t *Trap) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return api.ErrInvalidArgument.WithContext("trap", "closed")
	}
	t.closed = true
	detached := append([]*trigger(nil), t.order...)
	for _, tr := range detached {
		t.detachLocked(tr)
		t.enqueueLocked(cancelledEvent(tr.context, api.TrapEventFlagWithinAPICall))
	}
	t.mu.Unlock()

	t.log.Debug("trap closed", zap.Int("triggers", len(detached)))
	t.flush()
	return nil
}

// Stats returns a snapshot of the trap state.
func (t *Trap) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		Triggers:         len(t.order),
		Armed:            t.armed,
		Closed:           t.closed,
		EventsDispatched: t.dispatched,
	}
}

// detachLocked tombstones tr, cancels its primitive watches and erases it
// from every index. The trap can no longer be armed with tr missing a watch,
// so it is disarmed.
func (t *Trap) detachLocked(tr *trigger) {
	tr.removed = true
	tr.armed = false
	t.armed = false
	t.cancelWatchesLocked(tr)
	releaseWatch(tr.key)
	delete(t.contexts, tr.context)
	i := sort.Search(len(t.order), func(i int) bool { return t.order[i].seq >= tr.seq })
	if i < len(t.order) && t.order[i] == tr {
		copy(t.order[i:], t.order[i+1:])
		t.order[len(t.order)-1] = nil
		t.order = t.order[:len(t.order)-1]
	}
	t.metrics.TriggerRemoved()
}
