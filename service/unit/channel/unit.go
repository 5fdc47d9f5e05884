// Package channel backs execution units with dedicated bidirectional
// channels. Native listeners on this style are additive, so the adapter
// detaches the previous listener whenever a callback is replaced; the
// worker-side entry point is a dedicated inbox handed over only after
// startup, which exercises the dispatch loop handoff.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/wavepool/wavepool/internal/idgen"
	"github.com/wavepool/wavepool/model/protocol"
	"github.com/wavepool/wavepool/service/dispatch"
)

// ErrTerminated is returned by Send once the unit has been torn down.
var ErrTerminated = errors.New("execution unit terminated")

// DefaultBuffer sizes the unit channels; admission control keeps the
// effective depth bounded by the pool's in-flight limit.
const DefaultBuffer = 64

// Unit is a channel-backed execution unit.
type Unit struct {
	id        string
	target    atomic.Pointer[dispatch.Inbox]
	eager     *dispatch.Inbox
	dedicated *dispatch.Inbox
	ports     chan *dispatch.Inbox
	out       chan *protocol.Message
	faults    chan error
	cancel    context.CancelFunc
	done      chan struct{}
	closed    atomic.Bool

	mu        sync.Mutex
	detachMsg chan struct{}
	detachErr chan struct{}
}

// Option customises a Unit.
type Option func(*config)

type config struct {
	buffer int
	logger *logrus.Entry
}

// WithBuffer overrides the channel buffer size.
func WithBuffer(size int) Option {
	return func(c *config) {
		if size > 0 {
			c.buffer = size
		}
	}
}

// WithLogger overrides the unit logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// New starts a channel-backed unit around the supplied handler. The
// dedicated worker-side inbox is announced asynchronously after startup;
// the send target flips to it first so new sends route there, while a send
// racing the flip may still land on the eager slot, which the loop keeps
// serving.
func New(handler dispatch.Handler, opts ...Option) *Unit {
	cfg := &config{buffer: DefaultBuffer, logger: logrus.NewEntry(logrus.StandardLogger())}
	for _, opt := range opts {
		opt(cfg)
	}
	u := &Unit{
		id:        idgen.New(),
		eager:     dispatch.NewInbox(cfg.buffer),
		dedicated: dispatch.NewInbox(cfg.buffer),
		ports:     make(chan *dispatch.Inbox, 1),
		out:       make(chan *protocol.Message, cfg.buffer),
		faults:    make(chan error, 1),
		done:      make(chan struct{}),
	}
	u.target.Store(u.eager)
	ctx, cancel := context.WithCancel(context.Background())
	u.cancel = cancel
	loop := dispatch.New(handler, u.emit, dispatch.WithLogger(cfg.logger.WithField("unit", u.id)))
	go u.run(ctx, loop)
	go u.attach()
	return u
}

// ID returns the unit identifier.
func (u *Unit) ID() string {
	return u.id
}

// attach hands the dedicated inbox to the worker loop. The send target is
// switched before the announcement so the commit-time drain observes the
// bulk of the handoff window; a sender that resolved the eager target just
// before the flip is covered by the loop still watching the eager slot.
func (u *Unit) attach() {
	u.target.Store(u.dedicated)
	select {
	case u.ports <- u.dedicated:
	case <-u.done:
	}
}

func (u *Unit) run(ctx context.Context, loop *dispatch.Loop) {
	defer close(u.done)
	defer func() {
		if r := recover(); r != nil {
			select {
			case u.faults <- fmt.Errorf("execution unit died: %v", r):
			default:
			}
		}
	}()
	loop.Run(ctx, u.eager, u.ports)
}

func (u *Unit) emit(msg *protocol.Message) {
	select {
	case u.out <- msg:
	case <-u.done:
	}
}

// Send delivers an envelope to the unit; it returns once the transport
// accepted the message.
func (u *Unit) Send(ctx context.Context, msg *protocol.Message) error {
	if u.closed.Load() {
		return ErrTerminated
	}
	inbox := u.target.Load()
	select {
	case inbox.C <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-u.done:
		return ErrTerminated
	}
}

// SetOnMessage replaces the message callback. Listeners on this style are
// additive, so the previous listener is detached first to avoid double
// delivery.
func (u *Unit) SetOnMessage(fn func(interface{})) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.detachMsg != nil {
		close(u.detachMsg)
		u.detachMsg = nil
	}
	if fn == nil {
		return
	}
	stop := make(chan struct{})
	u.detachMsg = stop
	go func() {
		for {
			select {
			case <-stop:
				return
			case msg, ok := <-u.out:
				if !ok {
					return
				}
				fn(msg)
			}
		}
	}()
}

// SetOnError replaces the unit fault callback, detaching the previous
// listener first.
func (u *Unit) SetOnError(fn func(error)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.detachErr != nil {
		close(u.detachErr)
		u.detachErr = nil
	}
	if fn == nil {
		return
	}
	stop := make(chan struct{})
	u.detachErr = stop
	go func() {
		for {
			select {
			case <-stop:
				return
			case err, ok := <-u.faults:
				if !ok {
					return
				}
				fn(err)
			}
		}
	}()
}

// Terminate tears down the unit's native context; already terminated units
// are a no-op.
func (u *Unit) Terminate() error {
	if !u.closed.CompareAndSwap(false, true) {
		return nil
	}
	u.cancel()
	u.mu.Lock()
	if u.detachMsg != nil {
		close(u.detachMsg)
		u.detachMsg = nil
	}
	if u.detachErr != nil {
		close(u.detachErr)
		u.detachErr = nil
	}
	u.mu.Unlock()
	return nil
}
