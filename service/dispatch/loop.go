// Package dispatch implements the worker-side message loop running inside
// each execution unit. The loop attaches to whichever inbound slot is
// available synchronously at startup and, when the host delivers a
// dedicated port only after startup, hands delivery off to it without
// losing or duplicating a message in the handoff window.
package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/wavepool/wavepool/model/protocol"
	"github.com/wavepool/wavepool/tracing"
)

// Handler processes a single job inside an execution unit. Returning None
// acknowledges the job without producing a result envelope.
type Handler func(ctx context.Context, job *protocol.Message) (interface{}, error)

type none struct{}

// None is the explicit "no value" result: the job is acknowledged and
// nothing is sent back.
var None interface{} = none{}

// State tracks which inbound entry point the loop is committed to.
type State int32

const (
	// StateEagerOnly serves the synchronously available slot with no
	// alternate entry point in play.
	StateEagerOnly State = iota
	// StateProbing serves the eager slot while watching for a dedicated
	// inbox to arrive.
	StateProbing
	// StateCommitted serves the dedicated inbox exclusively.
	StateCommitted
)

// Inbox is an inbound slot for a worker-side loop.
type Inbox struct {
	C chan *protocol.Message
}

// NewInbox creates an inbox with the given buffer.
func NewInbox(buffer int) *Inbox {
	if buffer < 0 {
		buffer = 0
	}
	return &Inbox{C: make(chan *protocol.Message, buffer)}
}

// Loop consumes inbound envelopes, invokes the user handler and emits
// result or error envelopes back towards the coordinator.
type Loop struct {
	handler     Handler
	emit        func(*protocol.Message)
	onBroadcast func(interface{})
	logger      *logrus.Entry
	state       atomic.Int32
	backlog     []*protocol.Message
}

// Option customises a Loop.
type Option func(*Loop)

// WithBroadcastHandler installs a hook invoked for out-of-band broadcast
// payloads.
func WithBroadcastHandler(fn func(interface{})) Option {
	return func(l *Loop) {
		l.onBroadcast = fn
	}
}

// WithLogger overrides the loop logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// New creates a dispatch loop around the user handler; emit delivers
// outbound envelopes to the coordinator side.
func New(handler Handler, emit func(*protocol.Message), opts ...Option) *Loop {
	ret := &Loop{
		handler: handler,
		emit:    emit,
		logger:  logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// State reports the current entry-point commitment.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Run serves inbound envelopes until a shutdown notice, a closed inbox or
// context cancellation. The eager inbox is served immediately; when ports
// is non-nil the loop concurrently probes it for a dedicated inbox. On
// arrival, anything still pending on the eager slot is queued and replayed
// in arrival order before delivery commits to the dedicated inbox. The
// eager slot stays watched after the commit: a sender that resolved its
// target just before the announcement may still land an envelope there, and
// that envelope must not be lost.
func (l *Loop) Run(ctx context.Context, eager *Inbox, ports <-chan *Inbox) {
	if ports == nil {
		l.state.Store(int32(StateEagerOnly))
	} else {
		l.state.Store(int32(StateProbing))
	}
	// receives on the nil dedicated channel block forever, disabling the
	// case until a commit installs it
	var dedicated chan *protocol.Message
	for {
		select {
		case <-ctx.Done():
			return
		case port, ok := <-ports:
			ports = nil
			if !ok || port == nil {
				l.state.Store(int32(StateEagerOnly))
				continue
			}
			if !l.commit(ctx, eager) {
				return
			}
			dedicated = port.C
		case msg, ok := <-eager.C:
			if !ok || !l.process(ctx, msg) {
				return
			}
		case msg, ok := <-dedicated:
			if !ok || !l.process(ctx, msg) {
				return
			}
		}
	}
}

// commit drains envelopes that landed on the eager slot during the handoff
// window and replays them in arrival order, then commits delivery to the
// dedicated inbox. Returns false when a replayed envelope ends the loop.
func (l *Loop) commit(ctx context.Context, eager *Inbox) bool {
	drained := false
	for !drained {
		select {
		case msg, ok := <-eager.C:
			if !ok {
				drained = true
				break
			}
			l.backlog = append(l.backlog, msg)
		default:
			drained = true
		}
	}
	l.state.Store(int32(StateCommitted))
	for _, pending := range l.backlog {
		if !l.process(ctx, pending) {
			l.backlog = nil
			return false
		}
	}
	l.backlog = nil
	return true
}

// process handles one inbound envelope; it returns false when the loop must
// terminate.
func (l *Loop) process(ctx context.Context, msg *protocol.Message) bool {
	switch {
	case msg == nil:
		return true
	case msg.IsClose():
		return false
	case msg.IsBroadcast():
		if l.onBroadcast != nil {
			l.onBroadcast(msg.Payload)
		}
		return true
	}
	value, err := l.invoke(ctx, msg)
	switch {
	case err != nil:
		l.emit(protocol.NewError(msg.Seq, err))
	case value == None:
		// acknowledged with no result
	default:
		l.emit(protocol.NewResult(msg.Seq, value))
	}
	return true
}

// invoke shields the loop from handler panics; a panicking handler yields
// an error envelope rather than a dead unit.
func (l *Loop) invoke(ctx context.Context, job *protocol.Message) (value interface{}, err error) {
	ctx, span := tracing.StartSpan(ctx, "dispatch.Handle", "CONSUMER")
	span.WithAttributes(map[string]string{"job.seq": fmt.Sprintf("%d", job.Seq)})
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
		tracing.EndSpan(span, err)
	}()
	return l.handler(ctx, job)
}
