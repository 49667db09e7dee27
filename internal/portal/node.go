// File: internal/portal/node.go
// Author: momentics <momentics@gmail.com>

package portal

import (
	"context"
	"sync"

	"github.com/bytedance/gopkg/util/gopool"
	"github.com/eapache/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/internal/logging"
	"github.com/momentics/hioload-ipc/pool"
)

// Options configure a Node.
type Options struct {
	Logger *zap.Logger
	// Async dispatches trap handlers on a goroutine pool instead of inline.
	Async bool
	// PoolSize caps the dispatch pool when Async is set. <= 0 selects 64.
	PoolSize int32
}

// Node is an in-memory portal primitive. It is safe for concurrent use.
type Node struct {
	name     uuid.UUID
	log      *zap.Logger
	dispatch func(func())

	mu      sync.Mutex
	portals map[api.Handle]*portal
	next    api.Handle
}

// Ensure compliance with api.Portals.
var (
	_ api.Portals       = (*Node)(nil)
	_ api.TrapCanceller = (*Node)(nil)
)

type portal struct {
	handle     api.Handle
	peer       *portal
	peerClosed bool
	inTransit  bool
	parcels    *queue.Queue
	localBytes uint64
	traps      []*trap
}

type parcel struct {
	data    []byte
	handles []api.Handle
}

type trap struct {
	conditions api.TrapConditions
	handler    api.PortalTrapHandler
	context    uint64
}

type firing struct {
	handler api.PortalTrapHandler
	event   api.PortalTrapEvent
}

var parcels = pool.NewSyncPool(func() *parcel { return &parcel{} }, func(p *parcel) {
	p.data = nil
	p.handles = nil
})

// NewNode creates an empty node.
func NewNode(opts Options) *Node {
	n := &Node{
		name:    uuid.New(),
		log:     logging.OrNop(opts.Logger),
		portals: make(map[api.Handle]*portal),
	}
	n.log = n.log.With(zap.String("node", n.name.String()))
	if opts.Async {
		size := opts.PoolSize
		if size <= 0 {
			size = 64
		}
		p := gopool.NewPool("hioload-portal-"+n.name.String(), size, gopool.NewConfig())
		p.SetPanicHandler(func(_ context.Context, r interface{}) {
			n.log.Error("trap handler panicked", zap.Any("panic", r))
		})
		n.dispatch = p.Go
	} else {
		n.dispatch = func(f func()) { f() }
	}
	return n
}

// Name returns the node's unique name.
func (n *Node) Name() uuid.UUID { return n.name }

// OpenPortals implements api.Portals.
func (n *Node) OpenPortals() (api.Handle, api.Handle, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	a := n.newPortalLocked()
	b := n.newPortalLocked()
	a.peer, b.peer = b, a
	n.log.Debug("portals opened", zap.Stringer("a", a.handle), zap.Stringer("b", b.handle))
	return a.handle, b.handle, nil
}

func (n *Node) newPortalLocked() *portal {
	n.next++
	p := &portal{handle: n.next, parcels: queue.New()}
	n.portals[p.handle] = p
	return p
}

// Close implements api.Portals.
func (n *Node) Close(h api.Handle) error {
	n.mu.Lock()
	p, err := n.lookupLocked(h)
	if err != nil {
		n.mu.Unlock()
		return err
	}
	var fired []firing
	n.closeLocked(p, &fired)
	n.mu.Unlock()

	n.log.Debug("portal closed", zap.Stringer("portal", h), zap.Int("traps_fired", len(fired)))
	n.fire(fired)
	return nil
}

// closeLocked closes p, removes its traps, discards its queued parcels
// (closing any portals they carry) and notifies the peer.
func (n *Node) closeLocked(p *portal, fired *[]firing) {
	delete(n.portals, p.handle)
	n.removeTrapsLocked(p, fired)
	for p.parcels.Length() > 0 {
		pc := p.parcels.Remove().(*parcel)
		for _, h := range pc.handles {
			if attached, ok := n.portals[h]; ok {
				n.closeLocked(attached, fired)
			}
		}
		parcels.Put(pc)
	}
	p.localBytes = 0
	if peer := p.peer; peer != nil {
		peer.peerClosed = true
		peer.peer = nil
		p.peer = nil
		n.collectLocked(peer, false, fired)
	}
}

// Put implements api.Portals.
func (n *Node) Put(h api.Handle, data []byte, handles []api.Handle) error {
	n.mu.Lock()
	p, err := n.lookupLocked(h)
	if err != nil {
		n.mu.Unlock()
		return err
	}
	if p.peerClosed || p.peer == nil {
		n.mu.Unlock()
		return api.ErrNotFound.WithContext("portal", h)
	}
	for i, ah := range handles {
		a, err := n.lookupLocked(ah)
		if err != nil || a == p || a == p.peer {
			n.mu.Unlock()
			return api.ErrInvalidArgument.WithContext("attached", ah)
		}
		for _, prev := range handles[:i] {
			if prev == ah {
				n.mu.Unlock()
				return api.ErrInvalidArgument.WithContext("duplicate", ah)
			}
		}
	}

	var fired []firing
	pc := parcels.Get()
	pc.data = append([]byte(nil), data...)
	if len(handles) > 0 {
		pc.handles = append([]api.Handle(nil), handles...)
		for _, ah := range handles {
			a := n.portals[ah]
			a.inTransit = true
			n.removeTrapsLocked(a, &fired)
		}
	}
	peer := p.peer
	peer.parcels.Add(pc)
	peer.localBytes += uint64(len(pc.data))
	n.collectLocked(peer, true, &fired)
	n.mu.Unlock()

	n.fire(fired)
	return nil
}

// Get implements api.Portals.
func (n *Node) Get(h api.Handle, data []byte, handles []api.Handle) (int, int, error) {
	n.mu.Lock()
	p, err := n.lookupLocked(h)
	if err != nil {
		n.mu.Unlock()
		return 0, 0, err
	}
	if p.parcels.Length() == 0 {
		n.mu.Unlock()
		if p.peerClosed {
			return 0, 0, api.ErrNotFound.WithContext("portal", h)
		}
		return 0, 0, api.ErrUnavailable
	}

	pc := p.parcels.Peek().(*parcel)
	numBytes, numHandles := len(pc.data), len(pc.handles)
	if len(data) < numBytes || len(handles) < numHandles {
		n.mu.Unlock()
		return numBytes, numHandles, api.ErrResourceExhausted
	}
	p.parcels.Remove()
	p.localBytes -= uint64(numBytes)
	copy(data, pc.data)
	copy(handles, pc.handles)
	for _, ah := range pc.handles {
		if a, ok := n.portals[ah]; ok {
			a.inTransit = false
		}
	}
	parcels.Put(pc)

	var fired []firing
	n.collectLocked(p, false, &fired)
	if p.peer != nil {
		n.collectLocked(p.peer, false, &fired)
	}
	n.mu.Unlock()

	n.fire(fired)
	return numBytes, numHandles, nil
}

// QueryStatus implements api.Portals.
func (n *Node) QueryStatus(h api.Handle) (api.PortalStatus, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	p, err := n.lookupLocked(h)
	if err != nil {
		return api.PortalStatus{}, err
	}
	return p.status(), nil
}

// Trap implements api.Portals.
func (n *Node) Trap(h api.Handle, conditions api.TrapConditions, handler api.PortalTrapHandler, trapContext uint64) (api.TrapConditionFlags, api.PortalStatus, error) {
	if handler == nil {
		return 0, api.PortalStatus{}, api.ErrInvalidArgument.WithContext("handler", nil)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	p, err := n.lookupLocked(h)
	if err != nil {
		return 0, api.PortalStatus{}, err
	}
	status := p.status()
	if satisfied := satisfiedBy(conditions, status); satisfied != 0 {
		return satisfied, status, api.ErrFailedPrecondition
	}
	p.traps = append(p.traps, &trap{conditions: conditions, handler: handler, context: trapContext})
	return 0, status, nil
}

// CancelTraps implements api.TrapCanceller.
func (n *Node) CancelTraps(h api.Handle, trapContext uint64) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	p, ok := n.portals[h]
	if !ok {
		return 0
	}
	kept := p.traps[:0]
	for _, t := range p.traps {
		if t.context != trapContext {
			kept = append(kept, t)
		}
	}
	removed := len(p.traps) - len(kept)
	for i := len(kept); i < len(p.traps); i++ {
		p.traps[i] = nil
	}
	p.traps = kept
	return removed
}

// NumTraps returns the number of traps pending on h.
func (n *Node) NumTraps(h api.Handle) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if p, ok := n.portals[h]; ok {
		return len(p.traps)
	}
	return 0
}

// NumPortals returns the number of open portals.
func (n *Node) NumPortals() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.portals)
}

func (n *Node) lookupLocked(h api.Handle) (*portal, error) {
	if !h.IsValid() {
		return nil, api.ErrInvalidArgument.WithContext("portal", h)
	}
	p, ok := n.portals[h]
	if !ok || p.inTransit {
		return nil, api.ErrInvalidArgument.WithContext("portal", h)
	}
	return p, nil
}

// collectLocked detaches every trap on p whose conditions now hold.
func (n *Node) collectLocked(p *portal, newParcel bool, fired *[]firing) {
	if len(p.traps) == 0 {
		return
	}
	status := p.status()
	kept := p.traps[:0]
	for _, t := range p.traps {
		flags := satisfiedBy(t.conditions, status)
		if newParcel && t.conditions.Flags&api.TrapNewLocalParcel != 0 {
			flags |= api.TrapNewLocalParcel
		}
		if flags == 0 {
			kept = append(kept, t)
			continue
		}
		*fired = append(*fired, firing{
			handler: t.handler,
			event:   api.PortalTrapEvent{Context: t.context, Conditions: flags, Status: status},
		})
	}
	for i := len(kept); i < len(p.traps); i++ {
		p.traps[i] = nil
	}
	p.traps = kept
}

func (n *Node) removeTrapsLocked(p *portal, fired *[]firing) {
	status := p.status()
	for _, t := range p.traps {
		*fired = append(*fired, firing{
			handler: t.handler,
			event:   api.PortalTrapEvent{Context: t.context, Conditions: api.TrapRemoved, Status: status},
		})
	}
	p.traps = nil
}

func (n *Node) fire(fired []firing) {
	for _, f := range fired {
		f := f
		n.dispatch(func() { f.handler(f.event) })
	}
}

func (p *portal) status() api.PortalStatus {
	s := api.PortalStatus{
		NumLocalParcels: uint64(p.parcels.Length()),
		NumLocalBytes:   p.localBytes,
	}
	if p.peerClosed {
		s.Flags |= api.PortalStatusPeerClosed
		if s.NumLocalParcels == 0 {
			s.Flags |= api.PortalStatusDead
		}
	} else if p.peer != nil {
		s.NumRemoteParcels = uint64(p.peer.parcels.Length())
		s.NumRemoteBytes = p.peer.localBytes
	}
	return s
}

// satisfiedBy returns the level-triggered conditions of c that hold for s.
func satisfiedBy(c api.TrapConditions, s api.PortalStatus) api.TrapConditionFlags {
	var flags api.TrapConditionFlags
	if c.Flags&api.TrapPeerClosed != 0 && s.PeerClosed() {
		flags |= api.TrapPeerClosed
	}
	if c.Flags&api.TrapDead != 0 && s.Dead() {
		flags |= api.TrapDead
	}
	if c.Flags&api.TrapAboveMinLocalParcels != 0 && s.NumLocalParcels > c.MinLocalParcels {
		flags |= api.TrapAboveMinLocalParcels
	}
	if c.Flags&api.TrapAboveMinLocalBytes != 0 && s.NumLocalBytes > c.MinLocalBytes {
		flags |= api.TrapAboveMinLocalBytes
	}
	if !s.PeerClosed() {
		if c.Flags&api.TrapBelowMaxRemoteParcels != 0 && s.NumRemoteParcels < c.MaxRemoteParcels {
			flags |= api.TrapBelowMaxRemoteParcels
		}
		if c.Flags&api.TrapBelowMaxRemoteBytes != 0 && s.NumRemoteBytes < c.MaxRemoteBytes {
			flags |= api.TrapBelowMaxRemoteBytes
		}
	}
	return flags
}
