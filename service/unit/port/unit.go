// Package port backs execution units with a single assignable message
// slot, naturally idempotent on callback replacement. Payloads cross the
// boundary through the configured codec, so the worker observes a copy the
// way a process boundary would enforce; the worker-side entry point is the
// globally available eager slot, with no dedicated port ever arriving.
package port

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/wavepool/wavepool/internal/idgen"
	"github.com/wavepool/wavepool/model/protocol"
	"github.com/wavepool/wavepool/service/dispatch"
)

// ErrTerminated is returned by Send once the unit has been torn down.
var ErrTerminated = errors.New("execution unit terminated")

// DefaultBuffer sizes the inbound slot; admission control keeps the
// effective depth bounded by the pool's in-flight limit.
const DefaultBuffer = 64

// Unit is a port-backed execution unit.
type Unit struct {
	id        string
	codec     protocol.Codec
	in        *dispatch.Inbox
	onMessage atomic.Pointer[func(interface{})]
	onError   atomic.Pointer[func(error)]
	cancel    context.CancelFunc
	done      chan struct{}
	closed    atomic.Bool
	logger    *logrus.Entry
}

// Option customises a Unit.
type Option func(*config)

type config struct {
	buffer int
	codec  protocol.Codec
	logger *logrus.Entry
}

// WithBuffer overrides the inbound slot buffer size.
func WithBuffer(size int) Option {
	return func(c *config) {
		if size > 0 {
			c.buffer = size
		}
	}
}

// WithCodec overrides the boundary codec.
func WithCodec(codec protocol.Codec) Option {
	return func(c *config) {
		if codec != nil {
			c.codec = codec
		}
	}
}

// WithLogger overrides the unit logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// New starts a port-backed unit around the supplied handler.
func New(handler dispatch.Handler, opts ...Option) *Unit {
	cfg := &config{
		buffer: DefaultBuffer,
		codec:  protocol.JSON(),
		logger: logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	u := &Unit{
		id:     idgen.New(),
		codec:  cfg.codec,
		in:     dispatch.NewInbox(cfg.buffer),
		done:   make(chan struct{}),
		logger: cfg.logger,
	}
	ctx, cancel := context.WithCancel(context.Background())
	u.cancel = cancel
	loop := dispatch.New(handler, u.emit, dispatch.WithLogger(u.logger.WithField("unit", u.id)))
	go u.run(ctx, loop)
	return u
}

// ID returns the unit identifier.
func (u *Unit) ID() string {
	return u.id
}

func (u *Unit) run(ctx context.Context, loop *dispatch.Loop) {
	defer close(u.done)
	defer func() {
		if r := recover(); r != nil {
			u.fault(fmt.Errorf("execution unit died: %v", r))
		}
	}()
	loop.Run(ctx, u.in, nil)
}

// isolate round-trips an envelope through the codec so neither side shares
// memory with the other. Transfer-hinted resources skip the copy and move
// across directly.
func (u *Unit) isolate(msg *protocol.Message) (*protocol.Message, error) {
	data, err := u.codec.Encode(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope %v: %w", msg.Seq, err)
	}
	clone, err := u.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode envelope %v: %w", msg.Seq, err)
	}
	clone.Transfer = msg.Transfer
	return clone, nil
}

// Send delivers an envelope to the unit; it returns once the transport
// accepted the message.
func (u *Unit) Send(ctx context.Context, msg *protocol.Message) error {
	if u.closed.Load() {
		return ErrTerminated
	}
	isolated, err := u.isolate(msg)
	if err != nil {
		return err
	}
	select {
	case u.in.C <- isolated:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-u.done:
		return ErrTerminated
	}
}

func (u *Unit) emit(msg *protocol.Message) {
	outbound, err := u.isolate(msg)
	if err != nil {
		outbound = protocol.NewError(msg.Seq, err)
	}
	fn := u.onMessage.Load()
	if fn == nil {
		u.logger.WithField("seq", msg.Seq).Debug("message dropped, no slot assigned")
		return
	}
	(*fn)(outbound)
}

func (u *Unit) fault(err error) {
	fn := u.onError.Load()
	if fn == nil {
		u.logger.WithError(err).Warn("unit fault dropped, no slot assigned")
		return
	}
	(*fn)(err)
}

// SetOnMessage assigns the single message slot; replacement is idempotent.
func (u *Unit) SetOnMessage(fn func(interface{})) {
	if fn == nil {
		u.onMessage.Store(nil)
		return
	}
	u.onMessage.Store(&fn)
}

// SetOnError assigns the single fault slot; replacement is idempotent.
func (u *Unit) SetOnError(fn func(error)) {
	if fn == nil {
		u.onError.Store(nil)
		return
	}
	u.onError.Store(&fn)
}

// Terminate tears down the unit's native context; already terminated units
// are a no-op.
func (u *Unit) Terminate() error {
	if !u.closed.CompareAndSwap(false, true) {
		return nil
	}
	u.cancel()
	return nil
}
