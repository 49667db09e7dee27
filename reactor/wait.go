// File: reactor/wait.go
// Author: momentics <momentics@gmail.com>
//
// One-shot blocking waits on portal signals.

package reactor

import (
	"context"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/core/trap"
)

// Wait blocks until one of signals is satisfied on h. It returns
// ErrFailedPrecondition once none of them can be satisfied, ErrCancelled if
// h is closed while waiting, or ctx.Err().
func Wait(ctx context.Context, portals api.Portals, h api.Handle, signals api.Signals, opts trap.Options) (api.SignalsState, error) {
	_, state, err := WaitMany(ctx, portals, []api.Handle{h}, []api.Signals{signals}, opts)
	return state, err
}

// WaitMany waits on several handles at once and reports the index of the
// first handle whose signals are satisfied or can no longer be satisfied.
// The index is -1 when the wait itself failed.
func WaitMany(ctx context.Context, portals api.Portals, handles []api.Handle, signals []api.Signals, opts trap.Options) (int, api.SignalsState, error) {
	if len(handles) == 0 || len(handles) != len(signals) {
		return -1, api.SignalsState{}, api.ErrInvalidArgument.WithContext("handles", len(handles))
	}
	r, err := NewReactor(portals, opts)
	if err != nil {
		return -1, api.SignalsState{}, err
	}
	defer r.Close()

	for i, h := range handles {
		if err := r.Register(h, signals[i], uint64(i)); err != nil {
			return i, api.SignalsState{}, err
		}
	}

	events := make([]Event, 1)
	for {
		if _, err := r.Wait(ctx, events); err != nil {
			return -1, api.SignalsState{}, err
		}
		ev := events[0]
		idx := int(ev.UserData)
		switch {
		case ev.Result == api.ResultCancelled:
			return idx, ev.State, api.ErrCancelled.WithContext("portal", ev.Handle)
		case ev.Result == api.ResultFailedPrecondition:
			return idx, ev.State, api.ErrFailedPrecondition.WithContext("portal", ev.Handle)
		case ev.State.Satisfied.Intersects(signals[idx]):
			return idx, ev.State, nil
		}
	}
}
