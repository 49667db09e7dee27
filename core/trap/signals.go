// File: core/trap/signals.go
// Author: momentics <momentics@gmail.com>
//
// Translation between handle signals and primitive trap conditions.

package trap

import "github.com/momentics/hioload-ipc/api"

// alwaysSatisfiable are reported as satisfiable on every message pipe.
const alwaysSatisfiable = api.SignalPeerClosed | api.SignalQuotaExceeded | api.SignalPeerRemote

// ConditionsForSignals derives the primitive conditions watched for a
// trigger. writeQuota bounds the bytes pending at the peer while writable is
// watched. SignalsUnsatisfied triggers watch nothing.
func ConditionsForSignals(signals api.Signals, condition api.TriggerCondition, writeQuota uint64) api.TrapConditions {
	if condition == api.TriggerConditionSignalsUnsatisfied {
		return api.TrapConditions{}
	}

	c := api.TrapConditions{Flags: api.TrapDead}
	if signals.IsWritable() {
		c.Flags |= api.TrapBelowMaxRemoteBytes
		c.MaxRemoteBytes = writeQuota
	}
	switch {
	case signals.IsReadable():
		c.Flags |= api.TrapAboveMinLocalParcels
		c.MinLocalParcels = 0
	case signals&api.SignalNewDataReadable != 0:
		c.Flags |= api.TrapNewLocalParcel
	}
	if signals.IsPeerClosed() {
		c.Flags |= api.TrapPeerClosed
	}
	return c
}

// SignalsStateForStatus computes the signals snapshot of a portal.
// NewDataReadable is only satisfied when observed carries TrapNewLocalParcel.
func SignalsStateForStatus(status api.PortalStatus, observed api.TrapConditionFlags) api.SignalsState {
	state := api.SignalsState{Satisfiable: alwaysSatisfiable}
	if !status.Dead() {
		state.Satisfiable |= api.SignalReadable | api.SignalNewDataReadable
	}
	if status.PeerClosed() {
		state.Satisfied |= api.SignalPeerClosed
	} else {
		state.Satisfiable |= api.SignalWritable
		state.Satisfied |= api.SignalWritable
	}
	if status.NumLocalParcels > 0 {
		state.Satisfied |= api.SignalReadable
	}
	if observed&api.TrapNewLocalParcel != 0 && state.Satisfiable&api.SignalNewDataReadable != 0 {
		state.Satisfied |= api.SignalNewDataReadable
	}
	return state
}

// TranslateEvent builds the event reported for a trigger watching signals
// when the primitive observed the given flags and status. The result is
// FailedPrecondition when none of the watched signals can ever be satisfied.
func TranslateEvent(signals api.Signals, triggerContext uint64, observed api.TrapConditionFlags, status api.PortalStatus) api.TrapEvent {
	state := SignalsStateForStatus(status, observed)
	result := api.ResultOK
	if !state.Satisfiable.Intersects(signals) {
		result = api.ResultFailedPrecondition
	}
	return api.TrapEvent{
		TriggerContext: triggerContext,
		Result:         result,
		SignalsState:   state,
	}
}

// cancelledEvent is the terminal event of a removed trigger.
func cancelledEvent(triggerContext uint64, flags api.TrapEventFlags) api.TrapEvent {
	return api.TrapEvent{
		Flags:          flags,
		TriggerContext: triggerContext,
		Result:         api.ResultCancelled,
	}
}
