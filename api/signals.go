// Package api
// Author: momentics <momentics@gmail.com>
//
// Handle signals: the caller-facing readiness vocabulary of traps and pipes.

package api

import "strings"

// Signals is a bitset of handle readiness conditions.
type Signals uint32

const (
	SignalNone            Signals = 0
	SignalReadable        Signals = 1 << 0
	SignalWritable        Signals = 1 << 1
	SignalPeerClosed      Signals = 1 << 2
	SignalNewDataReadable Signals = 1 << 3
	SignalPeerRemote      Signals = 1 << 4
	SignalQuotaExceeded   Signals = 1 << 5

	// SignalsAll is every signal a message pipe can report.
	SignalsAll = SignalReadable | SignalWritable | SignalPeerClosed |
		SignalNewDataReadable | SignalPeerRemote | SignalQuotaExceeded
)

// IsReadable returns true iff the readable bit is set.
func (s Signals) IsReadable() bool { return s&SignalReadable != 0 }

// IsWritable returns true iff the writable bit is set.
func (s Signals) IsWritable() bool { return s&SignalWritable != 0 }

// IsPeerClosed returns true iff the peer-closed bit is set.
func (s Signals) IsPeerClosed() bool { return s&SignalPeerClosed != 0 }

// Contains reports whether every bit of o is set in s.
func (s Signals) Contains(o Signals) bool { return s&o == o }

// Intersects reports whether s and o share at least one bit.
func (s Signals) Intersects(o Signals) bool { return s&o != 0 }

func (s Signals) String() string {
	if s == SignalNone {
		return "none"
	}
	names := []struct {
		bit  Signals
		name string
	}{
		{SignalReadable, "readable"},
		{SignalWritable, "writable"},
		{SignalPeerClosed, "peer-closed"},
		{SignalNewDataReadable, "new-data-readable"},
		{SignalPeerRemote, "peer-remote"},
		{SignalQuotaExceeded, "quota-exceeded"},
	}
	var parts []string
	for _, n := range names {
		if s&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// SignalsState is a snapshot of a handle's signals.
type SignalsState struct {
	// Signals satisfied at the time of the snapshot.
	Satisfied Signals
	// Signals that could still become satisfied. Satisfied is always a subset.
	Satisfiable Signals
}
