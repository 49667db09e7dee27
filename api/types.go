// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level handle types and constants.

package api

import "fmt"

// Handle names a portal owned by the underlying portal primitive. The zero
// value is never a valid handle.
type Handle uint64

// InvalidHandle is the reserved invalid portal handle.
const InvalidHandle Handle = 0

// IsValid reports whether h is non-zero. It does not check liveness.
func (h Handle) IsValid() bool { return h != InvalidHandle }

func (h Handle) String() string { return fmt.Sprintf("portal#%d", uint64(h)) }

// TrapHandle names a trap registered with a facade.Core.
type TrapHandle uint64

// MessageHandle names a message object registered with a facade.Core.
type MessageHandle uint64

// TriggerCondition selects whether a trigger fires when its signals become
// satisfied or when they become unsatisfied.
type TriggerCondition uint32

const (
	TriggerConditionSignalsUnsatisfied TriggerCondition = 0
	TriggerConditionSignalsSatisfied   TriggerCondition = 1
)

// IsValid reports whether c is one of the known conditions.
func (c TriggerCondition) IsValid() bool {
	return c == TriggerConditionSignalsUnsatisfied || c == TriggerConditionSignalsSatisfied
}

func (c TriggerCondition) String() string {
	switch c {
	case TriggerConditionSignalsUnsatisfied:
		return "signals-unsatisfied"
	case TriggerConditionSignalsSatisfied:
		return "signals-satisfied"
	default:
		return "unknown"
	}
}
