// File: api/handler.go
// Package api defines the trap event handler contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// TrapEventHandler processes trap events. Invocations for one trap never
// overlap. The handler may be called synchronously from AddTrigger,
// RemoveTrigger and Close, and it may itself call back into those methods;
// events produced by such re-entrant calls are delivered after the handler
// returns.
type TrapEventHandler func(TrapEvent)
