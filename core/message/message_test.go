package message_test

import (
	"errors"
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/core/message"
	"github.com/momentics/hioload-ipc/fake"
	"github.com/momentics/hioload-ipc/pool"
)

type closeRecorder struct {
	closed []api.Handle
	err    error
}

func (c *closeRecorder) Close(h api.Handle) error {
	c.closed = append(c.closed, h)
	return c.err
}

func TestNewReservesFloor(t *testing.T) {
	m := message.New(nil, message.Options{})
	data, n, err := m.GetData(false, nil)
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.Zero(t, n)
	assert.GreaterOrEqual(t, cap(data), message.MinCapacity)

	big := message.New(nil, message.Options{MinCapacity: 100})
	assert.GreaterOrEqual(t, big.Capacity(), 100)
}

func TestAppendWritesInPlace(t *testing.T) {
	m := message.New(nil, message.Options{Allocator: pool.NewBytePool()})
	buf, err := m.AppendData(5, nil)
	require.NoError(t, err)
	copy(buf, "hello")

	buf, err = m.AppendData(6, []api.Handle{3, 4})
	require.NoError(t, err)
	copy(buf[5:], " world")

	data, n, err := m.GetData(false, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	assert.Equal(t, 2, n)
	assert.Zero(t, m.Reallocations(), "fits in the reserved floor")
}

func TestAppendGrowthIsLogarithmic(t *testing.T) {
	alloc := &fake.Allocator{}
	m := message.New(nil, message.Options{Allocator: alloc})

	const total = 1 << 16
	for i := 0; i < total; i++ {
		buf, err := m.AppendData(1, nil)
		require.NoError(t, err)
		buf[i] = byte(i)
	}
	assert.Equal(t, total, m.Size())

	bound := bits.Len(uint(total))
	assert.LessOrEqual(t, m.Reallocations(), bound)
	mallocs, frees := alloc.Counts()
	assert.Equal(t, m.Reallocations()+1, mallocs)
	assert.Equal(t, m.Reallocations(), frees)

	data, _, err := m.GetData(false, nil)
	require.NoError(t, err)
	assert.Equal(t, byte((total-1)%256), data[total-1])
}

func TestAppendJumpsToRequired(t *testing.T) {
	m := message.New(nil, message.Options{})
	_, err := m.AppendData(1000, nil)
	require.NoError(t, err)
	assert.Equal(t, 1000, m.Capacity())
	assert.Equal(t, 1, m.Reallocations())
}

func TestAppendRejectsInvalid(t *testing.T) {
	m := message.New(nil, message.Options{})
	_, err := m.AppendData(-1, nil)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	_, err = m.AppendData(1, []api.Handle{api.InvalidHandle})
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	assert.Zero(t, m.Size())
}

func TestGetDataConsumeIsAllOrNothing(t *testing.T) {
	m := message.New(nil, message.Options{})
	_, err := m.AppendData(0, []api.Handle{7, 8, 9})
	require.NoError(t, err)

	_, n, err := m.GetData(true, make([]api.Handle, 2))
	assert.ErrorIs(t, err, api.ErrResourceExhausted)
	assert.Equal(t, 3, n)
	assert.Len(t, m.Handles(), 3)

	out := make([]api.Handle, 3)
	_, n, err = m.GetData(true, out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []api.Handle{7, 8, 9}, out)
	assert.Empty(t, m.Handles())
}

func TestDestroyClosesOwnedHandles(t *testing.T) {
	closer := &closeRecorder{}
	alloc := &fake.Allocator{}
	m := message.New(closer, message.Options{Allocator: alloc})
	_, err := m.AppendData(4, []api.Handle{1, 2})
	require.NoError(t, err)

	require.NoError(t, m.Destroy())
	assert.Equal(t, []api.Handle{1, 2}, closer.closed)
	_, frees := alloc.Counts()
	assert.Equal(t, 1, frees)

	assert.True(t, m.Destroyed())
	assert.ErrorIs(t, m.Destroy(), api.ErrInvalidArgument)
	_, err = m.AppendData(1, nil)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	_, _, err = m.GetData(false, nil)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestDestroyCombinesCloseErrors(t *testing.T) {
	boom := errors.New("boom")
	closer := &closeRecorder{err: boom}
	m := message.New(closer, message.Options{})
	_, err := m.AppendData(0, []api.Handle{1, 2})
	require.NoError(t, err)

	err = m.Destroy()
	assert.ErrorIs(t, err, boom)
	assert.Len(t, closer.closed, 2, "every handle is closed even after a failure")
}

func TestReleaseKeepsHandlesOpen(t *testing.T) {
	closer := &closeRecorder{}
	m := message.New(closer, message.Options{})
	_, err := m.AppendData(0, []api.Handle{1})
	require.NoError(t, err)

	require.NoError(t, m.Release())
	assert.Empty(t, closer.closed)
	assert.ErrorIs(t, m.Release(), api.ErrInvalidArgument)
}

func TestTruncate(t *testing.T) {
	m := message.New(nil, message.Options{})
	_, err := m.AppendData(10, nil)
	require.NoError(t, err)
	require.NoError(t, m.Truncate(4))
	assert.Equal(t, 4, m.Size())
	assert.ErrorIs(t, m.Truncate(5), api.ErrOutOfRange)
}

func TestDestroyReturnsPayloadBuffer(t *testing.T) {
	alloc := &fake.Allocator{}
	m := message.New(nil, message.Options{Allocator: alloc})
	buf, err := m.AppendData(3, nil)
	require.NoError(t, err)
	copy(buf, "abc")

	data, _, err := m.GetData(false, nil)
	require.NoError(t, err)
	kept := append([]byte(nil), data...)

	require.NoError(t, m.Destroy())
	mallocs, frees := alloc.Counts()
	assert.Equal(t, mallocs, frees, "payload buffer goes back to the allocator")
	assert.Equal(t, "abc", string(kept))

	_, _, err = m.GetData(false, nil)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}
