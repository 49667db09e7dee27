package facade_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/control"
	"github.com/momentics/hioload-ipc/facade"
)

func newCore(t *testing.T) *facade.Core {
	t.Helper()
	c, err := facade.New(facade.Options{
		Logger:     zap.NewNop(),
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Shutdown() })
	return c
}

type eventLog struct {
	mu     sync.Mutex
	events []api.TrapEvent
}

func (l *eventLog) handle(ev api.TrapEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) snapshot() []api.TrapEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]api.TrapEvent(nil), l.events...)
}

// Full lifecycle: trap on a pipe, message exchange with handle transfer,
// re-arm, debug state and shutdown.
func TestCoreFullLifecycle(t *testing.T) {
	c := newCore(t)

	a, b, err := c.CreateMessagePipe()
	require.NoError(t, err)
	x, y, err := c.CreateMessagePipe()
	require.NoError(t, err)

	log := &eventLog{}
	th, err := c.CreateTrap(log.handle)
	require.NoError(t, err)
	require.NoError(t, c.AddTrigger(th, b, api.SignalReadable, api.TriggerConditionSignalsSatisfied, 1))
	n, err := c.ArmTrap(th, make([]api.TrapEvent, 1))
	require.NoError(t, err)
	assert.Zero(t, n)

	mh, err := c.CreateMessage()
	require.NoError(t, err)
	buf, err := c.AppendMessageData(mh, 4, []api.Handle{x})
	require.NoError(t, err)
	copy(buf, "ping")
	require.NoError(t, c.WriteMessage(a, mh))

	events := log.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, api.ResultOK, events[0].Result)
	assert.True(t, events[0].SignalsState.Satisfied.IsReadable())

	// The written message handle is gone.
	_, _, err = c.GetMessageData(mh, false, nil)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	got, err := c.ReadMessage(b)
	require.NoError(t, err)
	out := make([]api.Handle, 1)
	data, count, err := c.GetMessageData(got, true, out)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(data))
	assert.Equal(t, 1, count)
	assert.Equal(t, x, out[0])
	require.NoError(t, c.DestroyMessage(got))

	state, err := c.QueryHandleSignalsState(out[0])
	require.NoError(t, err)
	assert.True(t, state.Satisfied.IsWritable())

	_, err = c.ReadMessage(b)
	assert.ErrorIs(t, err, api.ErrShouldWait)

	n, err = c.ArmTrap(th, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	dump := c.DumpState()
	assert.Equal(t, 1, dump["core.traps"])
	assert.Equal(t, 1, dump["core.triggers"])
	assert.Equal(t, 0, dump["core.messages"])
	assert.Equal(t, 4, dump["node.portals"])
	assert.Contains(t, dump, "platform.cpus")

	require.NoError(t, c.CloseTrap(th))
	events = log.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, api.ResultCancelled, events[1].Result)

	require.NoError(t, c.Close(y))
	require.NoError(t, c.Shutdown())
	require.NoError(t, c.Shutdown())
	_, err = c.CreateTrap(log.handle)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestCoreRejectsStaleHandles(t *testing.T) {
	c := newCore(t)

	th, err := c.CreateTrap(func(api.TrapEvent) {})
	require.NoError(t, err)
	require.NoError(t, c.CloseTrap(th))

	assert.ErrorIs(t, c.CloseTrap(th), api.ErrInvalidArgument)
	assert.ErrorIs(t, c.AddTrigger(th, 1, api.SignalReadable, api.TriggerConditionSignalsSatisfied, 1), api.ErrInvalidArgument)
	assert.ErrorIs(t, c.RemoveTrigger(th, 1), api.ErrInvalidArgument)
	_, err = c.ArmTrap(th, nil)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	mh, err := c.CreateMessage()
	require.NoError(t, err)
	require.NoError(t, c.DestroyMessage(mh))
	assert.ErrorIs(t, c.DestroyMessage(mh), api.ErrInvalidArgument)
	_, err = c.AppendMessageData(mh, 1, nil)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	a, _, err := c.CreateMessagePipe()
	require.NoError(t, err)
	assert.ErrorIs(t, c.WriteMessage(a, mh), api.ErrInvalidArgument)

	// Handles that were never issued are rejected the same way.
	assert.ErrorIs(t, c.CloseTrap(api.TrapHandle(12345)), api.ErrInvalidArgument)
	_, _, err = c.GetMessageData(api.MessageHandle(0), false, nil)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestCoreWriteToClosedPeerKeepsMessage(t *testing.T) {
	c := newCore(t)
	a, b, err := c.CreateMessagePipe()
	require.NoError(t, err)
	require.NoError(t, c.Close(b))

	mh, err := c.CreateMessage()
	require.NoError(t, err)
	assert.ErrorIs(t, c.WriteMessage(a, mh), api.ErrFailedPrecondition)

	_, _, err = c.GetMessageData(mh, false, nil)
	require.NoError(t, err, "caller still owns the message")
	require.NoError(t, c.DestroyMessage(mh))
}

func TestCoreMessageFloor(t *testing.T) {
	c := newCore(t)
	mh, err := c.CreateMessage()
	require.NoError(t, err)
	data, n, err := c.GetMessageData(mh, false, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, data)
	assert.GreaterOrEqual(t, cap(data), 32)
}

func TestCoreWait(t *testing.T) {
	c := newCore(t)
	a, b, err := c.CreateMessagePipe()
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		mh, err := c.CreateMessage()
		if err != nil {
			return
		}
		_ = c.WriteMessage(b, mh)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state, err := c.Wait(ctx, a, api.SignalReadable)
	require.NoError(t, err)
	assert.True(t, state.Satisfied.IsReadable())

	idx, _, err := c.WaitMany(ctx, []api.Handle{b, a}, []api.Signals{api.SignalReadable, api.SignalReadable})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestCoreWriteQuotaFromConfig(t *testing.T) {
	cfg := control.Default()
	cfg.WriteQuotaBytes = 8
	cfg.EnableMetrics = false
	c, err := facade.New(facade.Options{Config: cfg, Logger: zap.NewNop()})
	require.NoError(t, err)
	defer c.Shutdown()

	a, _, err := c.CreateMessagePipe()
	require.NoError(t, err)
	mh, err := c.CreateMessage()
	require.NoError(t, err)
	_, err = c.AppendMessageData(mh, 8, nil)
	require.NoError(t, err)
	require.NoError(t, c.WriteMessage(a, mh))

	th, err := c.CreateTrap(func(api.TrapEvent) {})
	require.NoError(t, err)
	require.NoError(t, c.AddTrigger(th, a, api.SignalWritable, api.TriggerConditionSignalsSatisfied, 1))
	_, err = c.ArmTrap(th, nil)
	require.NoError(t, err, "eight pending bytes reach the quota")

	next := c.Config()
	next.WriteQuotaBytes = 64
	require.NoError(t, c.UpdateConfig(next))

	th2, err := c.CreateTrap(func(api.TrapEvent) {})
	require.NoError(t, err)
	require.NoError(t, c.AddTrigger(th2, a, api.SignalWritable, api.TriggerConditionSignalsSatisfied, 1))
	_, err = c.ArmTrap(th2, nil)
	assert.ErrorIs(t, err, api.ErrFailedPrecondition)
}

func TestCoreShutdownDestroysMessages(t *testing.T) {
	c := newCore(t)
	a, b, err := c.CreateMessagePipe()
	require.NoError(t, err)

	mh, err := c.CreateMessage()
	require.NoError(t, err)
	_, err = c.AppendMessageData(mh, 0, []api.Handle{a})
	require.NoError(t, err)

	require.NoError(t, c.Shutdown())
	state, err := c.QueryHandleSignalsState(b)
	require.NoError(t, err)
	assert.True(t, state.Satisfied.IsPeerClosed(), "attached handle closed with its message")
}

func TestCoreRejectsInvalidConfig(t *testing.T) {
	cfg := control.Default()
	cfg.HandleShards = 0
	_, err := facade.New(facade.Options{Config: cfg})
	assert.Error(t, err)
}
