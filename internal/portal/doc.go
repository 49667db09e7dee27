// Package portal
// Author: momentics <momentics@gmail.com>
//
// In-memory reference implementation of the api.Portals primitive.
//
// A Node owns every portal it opens. Portals come in entangled pairs; a Put
// on one end queues a parcel on the other. Traps are one-shot: each fires
// exactly once, either when one of its conditions becomes true or with
// api.TrapRemoved when its portal is closed or sent inside a parcel.
//
// Trap handlers are invoked after the node lock is released, either inline
// on the goroutine that caused the state change or on a gopool worker when
// the node is created with Options.Async.
//
// The node is a local stand-in for ipcz: there is no routing, proxying or
// cross-process transport.
package portal
