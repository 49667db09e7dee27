// File: facade/core.go
// Unified facade layer for hioload-ipc.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Core is the composition root of the library. It owns the portal primitive,
// the handle registries for traps and messages, configuration, logging and
// metrics, and exposes the handle-based trap, message and message pipe API.
// Unknown or destroyed trap and message handles yield ErrInvalidArgument.

package facade

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/control"
	"github.com/momentics/hioload-ipc/core/message"
	"github.com/momentics/hioload-ipc/core/pipe"
	"github.com/momentics/hioload-ipc/core/trap"
	"github.com/momentics/hioload-ipc/internal/handles"
	"github.com/momentics/hioload-ipc/internal/logging"
	"github.com/momentics/hioload-ipc/internal/portal"
	"github.com/momentics/hioload-ipc/pool"
	"github.com/momentics/hioload-ipc/reactor"
)

// Options select the collaborators of a Core. Every field is optional.
type Options struct {
	// Config defaults to control.Default().
	Config *control.Config
	// Portals defaults to an in-memory portal node built from Config.
	Portals api.Portals
	// Logger defaults to a zap logger built from Config.
	Logger *zap.Logger
	// Registerer receives the metrics collectors when Config.EnableMetrics
	// is set. Nil selects a private registry.
	Registerer prometheus.Registerer
	// Allocator defaults to the mcache-backed pool.BytePool.
	Allocator pool.Allocator
}

// Core implements the handle-based API.
type Core struct {
	config  *control.ConfigStore
	portals api.Portals
	node    *portal.Node // set when Core built its own primitive
	log     *zap.Logger
	ownLog  bool
	metrics *control.Metrics
	alloc   pool.Allocator
	pipe    *pipe.Pipe
	probes  *control.DebugProbes

	traps    *handles.Registry[*trap.Trap]
	messages *handles.Registry[*messageEntry]

	closed atomic.Bool
}

// messageEntry serializes access to a message shared through its handle.
type messageEntry struct {
	mu  sync.Mutex
	msg *message.Message
}

// Ensure compliance with api.GracefulShutdown and api.Debug.
var (
	_ api.GracefulShutdown = (*Core)(nil)
	_ api.Debug            = (*Core)(nil)
)

// New builds a Core from opts.
func New(opts Options) (*Core, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = control.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Core{
		config: control.NewConfigStore(cfg),
		probes: control.NewDebugProbes(),
		alloc:  opts.Allocator,
	}

	c.log = opts.Logger
	if c.log == nil {
		l, err := logging.New(logging.Config{Level: cfg.LogLevel, Development: cfg.LogDevelopment})
		if err != nil {
			return nil, fmt.Errorf("logger init failure: %w", err)
		}
		c.log, c.ownLog = l, true
	}

	if cfg.EnableMetrics {
		c.metrics = control.NewMetrics(opts.Registerer)
	}
	if c.alloc == nil {
		c.alloc = pool.NewBytePool()
	}

	c.portals = opts.Portals
	if c.portals == nil {
		c.node = portal.NewNode(portal.Options{
			Logger:   c.log,
			Async:    cfg.AsyncDispatch,
			PoolSize: cfg.DispatchPoolSize,
		})
		c.portals = c.node
	}

	c.pipe = pipe.New(c.portals, pipe.Options{
		Allocator:   c.alloc,
		MinCapacity: cfg.MessageMinCapacity,
		Logger:      c.log,
		Metrics:     c.metrics,
	})
	c.traps = handles.NewRegistry[*trap.Trap](cfg.HandleShards)
	c.messages = handles.NewRegistry[*messageEntry](cfg.HandleShards)

	c.registerProbes()
	c.config.OnReload(func(next control.Config) {
		c.log.Info("configuration reloaded",
			zap.Uint64("write_quota_bytes", next.WriteQuotaBytes),
			zap.String("log_level", next.LogLevel))
	})
	c.log.Debug("core started", zap.Bool("own_portals", c.node != nil))
	return c, nil
}

// Config returns the active configuration snapshot.
func (c *Core) Config() control.Config { return c.config.Snapshot() }

// UpdateConfig applies cfg. Traps created afterwards use its write quota.
func (c *Core) UpdateConfig(cfg control.Config) error { return c.config.Update(cfg) }

// Portals returns the underlying primitive.
func (c *Core) Portals() api.Portals { return c.portals }

// CreateTrap creates a trap delivering events to handler.
func (c *Core) CreateTrap(handler api.TrapEventHandler) (api.TrapHandle, error) {
	if c.closed.Load() {
		return 0, errShutdown
	}
	t, err := trap.New(c.portals, handler, c.trapOptions())
	if err != nil {
		return 0, err
	}
	return api.TrapHandle(c.traps.Insert(t)), nil
}

// AddTrigger adds a trigger to the trap named by th.
func (c *Core) AddTrigger(th api.TrapHandle, h api.Handle, signals api.Signals, condition api.TriggerCondition, triggerContext uint64) error {
	t, err := c.trap(th)
	if err != nil {
		return err
	}
	return t.AddTrigger(h, signals, condition, triggerContext)
}

// RemoveTrigger removes a trigger from the trap named by th.
func (c *Core) RemoveTrigger(th api.TrapHandle, triggerContext uint64) error {
	t, err := c.trap(th)
	if err != nil {
		return err
	}
	return t.RemoveTrigger(triggerContext)
}

// ArmTrap arms the trap named by th. See trap.Trap.Arm.
func (c *Core) ArmTrap(th api.TrapHandle, events []api.TrapEvent) (int, error) {
	t, err := c.trap(th)
	if err != nil {
		return 0, err
	}
	return t.Arm(events)
}

// CloseTrap closes the trap named by th and invalidates the handle.
func (c *Core) CloseTrap(th api.TrapHandle) error {
	t, ok := c.traps.Remove(uint64(th))
	if !ok {
		return api.ErrInvalidArgument.WithContext("trap", uint64(th))
	}
	return t.Close()
}

// CreateMessage creates an empty message.
func (c *Core) CreateMessage() (api.MessageHandle, error) {
	if c.closed.Load() {
		return 0, errShutdown
	}
	return c.insertMessage(c.pipe.NewMessage()), nil
}

// AppendMessageData grows the message payload by n bytes and attaches
// handles. The returned slice is the whole payload, filled in place.
func (c *Core) AppendMessageData(mh api.MessageHandle, n int, attach []api.Handle) ([]byte, error) {
	e, err := c.message(mh)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.msg.AppendData(n, attach)
}

// GetMessageData returns the message payload and attached handle count,
// moving the handles into out when consume is set. The payload must not be
// retained past DestroyMessage or WriteMessage on mh; copy it to keep it.
func (c *Core) GetMessageData(mh api.MessageHandle, consume bool, out []api.Handle) ([]byte, int, error) {
	e, err := c.message(mh)
	if err != nil {
		return nil, 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.msg.GetData(consume, out)
}

// DestroyMessage destroys the message, closing handles still attached.
func (c *Core) DestroyMessage(mh api.MessageHandle) error {
	e, ok := c.messages.Remove(uint64(mh))
	if !ok {
		return api.ErrInvalidArgument.WithContext("message", uint64(mh))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.msg.Destroy()
}

// CreateMessagePipe opens a pair of entangled ports.
func (c *Core) CreateMessagePipe() (api.Handle, api.Handle, error) {
	if c.closed.Load() {
		return 0, 0, errShutdown
	}
	return c.pipe.OpenPair()
}

// WriteMessage sends the message on port. On success the message handle is
// invalidated. On failure the caller still owns the message.
func (c *Core) WriteMessage(port api.Handle, mh api.MessageHandle) error {
	e, err := c.message(mh)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.msg.Destroyed() {
		return api.ErrInvalidArgument.WithContext("message", uint64(mh))
	}
	if err := c.pipe.WriteMessage(port, e.msg); err != nil {
		return err
	}
	c.messages.Remove(uint64(mh))
	return nil
}

// ReadMessage reads the next message from port into a new message handle.
func (c *Core) ReadMessage(port api.Handle) (api.MessageHandle, error) {
	if c.closed.Load() {
		return 0, errShutdown
	}
	msg, err := c.pipe.ReadMessage(port)
	if err != nil {
		return 0, err
	}
	return c.insertMessage(msg), nil
}

// QueryHandleSignalsState reports the signals of port.
func (c *Core) QueryHandleSignalsState(port api.Handle) (api.SignalsState, error) {
	return c.pipe.QuerySignalsState(port)
}

// Close closes a port.
func (c *Core) Close(h api.Handle) error {
	return c.portals.Close(h)
}

// Wait blocks until one of signals is satisfied on h. See reactor.Wait.
func (c *Core) Wait(ctx context.Context, h api.Handle, signals api.Signals) (api.SignalsState, error) {
	return reactor.Wait(ctx, c.portals, h, signals, c.trapOptions())
}

// WaitMany blocks until one of handles is ready. See reactor.WaitMany.
func (c *Core) WaitMany(ctx context.Context, hs []api.Handle, signals []api.Signals) (int, api.SignalsState, error) {
	return reactor.WaitMany(ctx, c.portals, hs, signals, c.trapOptions())
}

// DumpState implements api.Debug.
func (c *Core) DumpState() map[string]any {
	return c.probes.DumpState()
}

// RegisterProbe implements api.Debug.
func (c *Core) RegisterProbe(name string, fn func() any) {
	c.probes.RegisterProbe(name, fn)
}

// Shutdown closes every trap and destroys every message still registered.
// It implements api.GracefulShutdown; later calls are no-ops.
func (c *Core) Shutdown() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	c.traps.Range(func(h uint64, t *trap.Trap) {
		if _, ok := c.traps.Remove(h); ok {
			err = multierr.Append(err, t.Close())
		}
	})
	c.messages.Range(func(h uint64, e *messageEntry) {
		if _, ok := c.messages.Remove(h); ok {
			e.mu.Lock()
			err = multierr.Append(err, e.msg.Destroy())
			e.mu.Unlock()
		}
	})
	c.log.Debug("core shut down", zap.Error(err))
	if c.ownLog {
		_ = c.log.Sync()
	}
	return err
}

var errShutdown = api.ErrInvalidArgument.WithContext("core", "shut down")

func (c *Core) trapOptions() trap.Options {
	return trap.Options{
		WriteQuota: c.config.Snapshot().WriteQuotaBytes,
		Logger:     c.log,
		Metrics:    c.metrics,
	}
}

func (c *Core) trap(th api.TrapHandle) (*trap.Trap, error) {
	t, ok := c.traps.Get(uint64(th))
	if !ok {
		return nil, api.ErrInvalidArgument.WithContext("trap", uint64(th))
	}
	return t, nil
}

func (c *Core) message(mh api.MessageHandle) (*messageEntry, error) {
	e, ok := c.messages.Get(uint64(mh))
	if !ok {
		return nil, api.ErrInvalidArgument.WithContext("message", uint64(mh))
	}
	return e, nil
}

func (c *Core) insertMessage(msg *message.Message) api.MessageHandle {
	return api.MessageHandle(c.messages.Insert(&messageEntry{msg: msg}))
}

func (c *Core) registerProbes() {
	control.RegisterPlatformProbes(c.probes)
	c.probes.RegisterProbe("core.traps", func() any { return c.traps.Len() })
	c.probes.RegisterProbe("core.messages", func() any { return c.messages.Len() })
	c.probes.RegisterProbe("core.triggers", func() any {
		total := 0
		c.traps.Range(func(_ uint64, t *trap.Trap) { total += t.Stats().Triggers })
		return total
	})
	c.probes.RegisterProbe("core.events_dispatched", func() any {
		var total uint64
		c.traps.Range(func(_ uint64, t *trap.Trap) { total += t.Stats().EventsDispatched })
		return total
	})
	c.probes.RegisterProbe("config.write_quota_bytes", func() any {
		return c.config.Snapshot().WriteQuotaBytes
	})
	if bp, ok := c.alloc.(*pool.BytePool); ok {
		c.probes.RegisterProbe("pool.bytes_in_use", func() any { return bp.Stats().InUse })
	}
	if c.node != nil {
		c.probes.RegisterProbe("node.portals", func() any { return c.node.NumPortals() })
	}
}
