// File: api/events.go
// Package api defines core event types for hioload-ipc.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// TrapEventFlags qualify a TrapEvent.
type TrapEventFlags uint32

const (
	// TrapEventFlagWithinAPICall marks an event delivered synchronously from
	// inside AddTrigger, RemoveTrigger or Close.
	TrapEventFlagWithinAPICall TrapEventFlags = 1 << 0
)

// TrapEvent is delivered to a trap's handler, or returned from Arm for
// triggers whose conditions already hold.
type TrapEvent struct {
	Flags TrapEventFlags
	// TriggerContext is the caller's value from AddTrigger.
	TriggerContext uint64
	// Result is ResultOK when a signal of interest is satisfied,
	// ResultFailedPrecondition when none can ever be satisfied again, and
	// ResultCancelled when the trigger was removed. Cancelled is terminal.
	Result       ResultCode
	SignalsState SignalsState
}

// WithinAPICall reports whether the event was delivered from inside a trap call.
func (e TrapEvent) WithinAPICall() bool { return e.Flags&TrapEventFlagWithinAPICall != 0 }
