// File: core/pipe/pipe.go
// Author: momentics <momentics@gmail.com>
//
// Message pipe operations over the portal primitive.

package pipe

import (
	"errors"

	"go.uber.org/zap"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/control"
	"github.com/momentics/hioload-ipc/core/message"
	"github.com/momentics/hioload-ipc/core/trap"
	"github.com/momentics/hioload-ipc/internal/logging"
	"github.com/momentics/hioload-ipc/pool"
)

// maxReadAttempts bounds retries when the next parcel changes between the
// size probe and the sized read.
const maxReadAttempts = 8

// Options configure a Pipe.
type Options struct {
	Allocator   pool.Allocator
	MinCapacity int
	Logger      *zap.Logger
	Metrics     *control.Metrics
}

// Pipe writes and reads whole messages on portals.
type Pipe struct {
	portals api.Portals
	msgOpts message.Options
	log     *zap.Logger
	metrics *control.Metrics
}

// New creates a Pipe over portals.
func New(portals api.Portals, opts Options) *Pipe {
	return &Pipe{
		portals: portals,
		msgOpts: message.Options{Allocator: opts.Allocator, MinCapacity: opts.MinCapacity},
		log:     logging.OrNop(opts.Logger),
		metrics: opts.Metrics,
	}
}

// NewMessage creates an empty message whose handles are closed through the
// pipe's primitive when destroyed.
func (p *Pipe) NewMessage() *message.Message {
	return message.New(p.portals, p.msgOpts)
}

// OpenPair opens two entangled ports.
func (p *Pipe) OpenPair() (api.Handle, api.Handle, error) {
	return p.portals.OpenPortals()
}

// WriteMessage sends msg on port. On success msg is consumed and its
// handles belong to the receiver. If the peer is closed msg is left intact
// and ErrFailedPrecondition is returned. ErrResourceExhausted means the
// primitive refused the parcel for now and the write may be retried.
func (p *Pipe) WriteMessage(port api.Handle, msg *message.Message) error {
	if msg == nil || msg.Destroyed() {
		return api.ErrInvalidArgument.WithContext("message", "nil or destroyed")
	}
	data, _, err := msg.GetData(false, nil)
	if err != nil {
		return err
	}
	size := len(data)

	err = p.portals.Put(port, data, msg.Handles())
	switch {
	case err == nil:
	case errors.Is(err, api.ErrNotFound):
		return api.ErrFailedPrecondition.WithContext("portal", port)
	case errors.Is(err, api.ErrResourceExhausted):
		return err
	default:
		p.log.Debug("put failed", zap.Stringer("portal", port), zap.Error(err))
		return err
	}

	p.metrics.MessageWritten(size)
	return msg.Release()
}

// ReadMessage takes the next message from port. It returns ErrShouldWait
// when nothing is queued and the peer is open, and ErrFailedPrecondition
// once the peer is closed and nothing remains.
func (p *Pipe) ReadMessage(port api.Handle) (*message.Message, error) {
	for attempt := 0; attempt < maxReadAttempts; attempt++ {
		numBytes, numHandles, err := p.portals.Get(port, nil, nil)
		switch {
		case err == nil:
			// An empty parcel was consumed by the probe.
			p.metrics.MessageRead(0)
			return p.NewMessage(), nil
		case errors.Is(err, api.ErrResourceExhausted):
		default:
			return nil, mapReadError(err)
		}

		msg := p.NewMessage()
		buf, err := msg.AppendData(numBytes, nil)
		if err != nil {
			return nil, err
		}
		handles := make([]api.Handle, numHandles)
		gotBytes, gotHandles, err := p.portals.Get(port, buf, handles)
		if err != nil {
			_ = msg.Destroy()
			if errors.Is(err, api.ErrResourceExhausted) {
				continue
			}
			return nil, mapReadError(err)
		}
		if err := msg.Truncate(gotBytes); err != nil {
			return nil, err
		}
		if _, err := msg.AppendData(0, handles[:gotHandles]); err != nil {
			return nil, err
		}
		p.metrics.MessageRead(gotBytes)
		return msg, nil
	}
	return nil, api.ErrBusy.WithContext("portal", port)
}

// QuerySignalsState reports the signals of port.
func (p *Pipe) QuerySignalsState(port api.Handle) (api.SignalsState, error) {
	status, err := p.portals.QueryStatus(port)
	if err != nil {
		return api.SignalsState{}, err
	}
	return trap.SignalsStateForStatus(status, 0), nil
}

func mapReadError(err error) error {
	switch {
	case errors.Is(err, api.ErrUnavailable):
		return api.ErrShouldWait
	case errors.Is(err, api.ErrNotFound):
		return api.ErrFailedPrecondition
	default:
		return err
	}
}
