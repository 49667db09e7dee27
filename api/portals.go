// File: api/portals.go
// Author: momentics <momentics@gmail.com>
//
// Defines the abstract contract of the underlying portal primitive: an
// ipcz-style pair of entangled portals carrying parcels (bytes + handles),
// with one-shot conditional traps.

package api

// PortalStatusFlags describe the liveness of a portal's peer.
type PortalStatusFlags uint32

const (
	// PortalStatusPeerClosed is set once the opposite portal is closed.
	PortalStatusPeerClosed PortalStatusFlags = 1 << 0
	// PortalStatusDead is set once the peer is closed and nothing remains
	// queued locally. No parcel will ever be retrievable again.
	PortalStatusDead PortalStatusFlags = 1 << 1
)

// PortalStatus is a snapshot of a portal's queues.
type PortalStatus struct {
	Flags            PortalStatusFlags
	NumLocalParcels  uint64 // parcels queued for Get on this portal
	NumLocalBytes    uint64
	NumRemoteParcels uint64 // parcels sent by this portal not yet retrieved by the peer
	NumRemoteBytes   uint64
}

// PeerClosed reports whether the peer portal is closed.
func (s PortalStatus) PeerClosed() bool { return s.Flags&PortalStatusPeerClosed != 0 }

// Dead reports whether the portal can never yield another parcel.
func (s PortalStatus) Dead() bool { return s.Flags&PortalStatusDead != 0 }

// TrapConditionFlags are the binary conditions a primitive trap can watch.
type TrapConditionFlags uint32

const (
	// TrapRemoved is only ever reported in events: the trap was removed
	// because its portal was closed or transferred.
	TrapRemoved TrapConditionFlags = 1 << 0
	// TrapPeerClosed fires once the peer is closed.
	TrapPeerClosed TrapConditionFlags = 1 << 1
	// TrapDead fires once the portal is dead.
	TrapDead TrapConditionFlags = 1 << 2
	// TrapAboveMinLocalParcels fires while more than MinLocalParcels are queued.
	TrapAboveMinLocalParcels TrapConditionFlags = 1 << 3
	// TrapAboveMinLocalBytes fires while more than MinLocalBytes are queued.
	TrapAboveMinLocalBytes TrapConditionFlags = 1 << 4
	// TrapBelowMaxRemoteParcels fires while fewer than MaxRemoteParcels are
	// pending at an open peer.
	TrapBelowMaxRemoteParcels TrapConditionFlags = 1 << 5
	// TrapBelowMaxRemoteBytes fires while fewer than MaxRemoteBytes are
	// pending at an open peer.
	TrapBelowMaxRemoteBytes TrapConditionFlags = 1 << 6
	// TrapNewLocalParcel is edge-triggered: it fires when a parcel arrives and
	// is never satisfied at install time.
	TrapNewLocalParcel TrapConditionFlags = 1 << 7
)

// TrapConditions parameterize a primitive trap.
type TrapConditions struct {
	Flags            TrapConditionFlags
	MinLocalParcels  uint64
	MinLocalBytes    uint64
	MaxRemoteParcels uint64
	MaxRemoteBytes   uint64
}

// PortalTrapEvent is delivered exactly once per installed primitive trap.
type PortalTrapEvent struct {
	Context    uint64             // value passed to Portals.Trap
	Conditions TrapConditionFlags // conditions that fired, or TrapRemoved
	Status     PortalStatus       // portal status when the trap fired
}

// PortalTrapHandler receives primitive trap events. It may be invoked on any
// goroutine and never while the primitive holds its own locks.
type PortalTrapHandler func(PortalTrapEvent)

// Portals is the underlying portal primitive. Implementations must be safe
// for concurrent use.
type Portals interface {
	// OpenPortals returns two new entangled portals.
	OpenPortals() (Handle, Handle, error)

	// Close closes a portal. Traps installed on it fire with TrapRemoved,
	// parcels still queued on it are discarded and their handles closed.
	Close(portal Handle) error

	// Put sends data and handles to the peer of portal. Attached handles move
	// into the parcel and become unusable until retrieved. Returns
	// ErrNotFound when the peer is closed.
	Put(portal Handle, data []byte, handles []Handle) error

	// Get retrieves the next parcel into data and handles. If either slice is
	// too small it returns ErrResourceExhausted with the required sizes and
	// consumes nothing. Returns ErrUnavailable when nothing is queued and the
	// peer is open, ErrNotFound when the portal is dead.
	Get(portal Handle, data []byte, handles []Handle) (numBytes, numHandles int, err error)

	// QueryStatus reports the portal's current status.
	QueryStatus(portal Handle) (PortalStatus, error)

	// Trap installs a one-shot trap. If any condition already holds it
	// returns ErrFailedPrecondition together with the satisfied flags and the
	// current status, and installs nothing. The handler is never invoked from
	// within Trap itself.
	Trap(portal Handle, conditions TrapConditions, handler PortalTrapHandler, context uint64) (TrapConditionFlags, PortalStatus, error)
}

// TrapCanceller is an optional capability of a Portals implementation.
type TrapCanceller interface {
	// CancelTraps uninstalls, without firing them, the pending traps on
	// portal installed with context, and returns how many were removed.
	// An unknown or closed portal removes nothing.
	CancelTraps(portal Handle, context uint64) int
}
