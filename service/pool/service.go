// Package pool implements the job-dispatch coordinator: admission control
// over a bounded backlog, deterministic round-robin distribution across a
// fixed set of execution units, completion tracking with exactly-once
// per-wave signalling, and best-effort shutdown.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wavepool/wavepool/internal/clock"
	"github.com/wavepool/wavepool/model/protocol"
	"github.com/wavepool/wavepool/service/unit"
	"github.com/wavepool/wavepool/tracing"
)

// ErrClosed is returned when the pool is torn down while a dispatch is in
// progress.
var ErrClosed = errors.New("pool closed")

// ErrNoLiveUnits is returned when every execution unit has been lost to a
// fatal fault.
var ErrNoLiveUnits = errors.New("no live execution units")

// DefaultPollInterval bounds how stale a polling wait can be before freed
// capacity or a finished wave is noticed; job durations are expected to
// dwarf it.
const DefaultPollInterval = 2 * time.Millisecond

// Factory constructs execution units for the pool.
type Factory interface {
	New(ctx context.Context, location string) (unit.Unit, error)
}

// Config is the serialisable pool configuration. The zero value is not
// usable on its own; Init applies defaults and Validate rejects misuse.
type Config struct {
	// Units is the number of execution units, W >= 1.
	Units int `json:"units" yaml:"units"`

	// MaxInFlight bounds admitted jobs; defaults to 2*Units.
	MaxInFlight int `json:"maxInFlight" yaml:"maxInFlight"`

	// PollInterval tunes the fixed-interval waits for capacity and
	// completion.
	PollInterval time.Duration `json:"pollInterval" yaml:"pollInterval"`

	// Location is the worker module locator handed to the factory.
	Location string `json:"location" yaml:"location"`
}

// Init applies defaults for unset fields.
func (c *Config) Init() {
	if c.MaxInFlight == 0 && c.Units > 0 {
		c.MaxInFlight = 2 * c.Units
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
}

// Validate returns an error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c.Units < 1 {
		return fmt.Errorf("pool requires at least one unit, had %v", c.Units)
	}
	if c.MaxInFlight < 1 {
		return fmt.Errorf("maxInFlight must be positive, had %v", c.MaxInFlight)
	}
	if c.Location == "" {
		return fmt.Errorf("worker module location was empty")
	}
	return nil
}

type member struct {
	unit  unit.Unit
	alive bool
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Units            int
	Live             int
	InFlight         int64
	Dispatched       int64
	LastWaveDuration time.Duration
}

// Service coordinates job dispatch across a fixed set of execution units.
// Callbacks must be installed before the first Post.
type Service struct {
	config  Config
	factory Factory
	logger  *logrus.Entry

	mu          sync.Mutex
	members     []*member
	cursor      int
	initialized bool
	waveStarted time.Time
	lastWave    time.Duration

	inFlight   atomic.Int64
	dispatched atomic.Int64
	waveArmed  atomic.Bool

	onResult      func(result *protocol.Message)
	onError       func(err error, seq int64)
	onAllComplete func()
}

// New creates a pool around the supplied unit factory. Units are not
// created until Init.
func New(factory Factory, options ...Option) (*Service, error) {
	ret := &Service{
		factory: factory,
		config:  Config{PollInterval: DefaultPollInterval},
		logger:  logrus.WithField("service", "pool"),
	}
	for _, option := range options {
		option(ret)
	}
	if ret.factory == nil {
		return nil, fmt.Errorf("unit factory is required")
	}
	ret.config.Init()
	if err := ret.config.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

// Init creates the execution units and installs the inbound handlers. It is
// idempotent; concurrent callers collapse onto a single in-progress
// initialisation.
func (s *Service) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	members := make([]*member, 0, s.config.Units)
	for i := 0; i < s.config.Units; i++ {
		created, err := s.factory.New(ctx, s.config.Location)
		if err != nil {
			for _, m := range members {
				_ = m.unit.Terminate()
			}
			return fmt.Errorf("failed to create execution unit %v: %w", i, err)
		}
		m := &member{unit: created, alive: true}
		created.SetOnMessage(s.handleInbound)
		created.SetOnError(s.faultHandler(m))
		members = append(members, m)
	}
	s.members = members
	s.cursor = 0
	s.initialized = true
	s.logger.WithField("units", len(members)).Debug("pool initialised")
	return nil
}

// SetOnResult installs the result callback.
func (s *Service) SetOnResult(fn func(result *protocol.Message)) {
	s.onResult = fn
}

// SetOnError installs the error callback; seq is protocol.NoSeq for
// unit-level faults.
func (s *Service) SetOnError(fn func(err error, seq int64)) {
	s.onError = fn
}

// SetOnAllComplete installs the wave-completion callback, fired exactly
// once per wave.
func (s *Service) SetOnAllComplete(fn func()) {
	s.onAllComplete = fn
}

// Post admits a job, selects the unit at the dispatch cursor, advances the
// cursor circularly and hands the envelope over. It returns once the
// transport accepted the send; completion surfaces through the callbacks.
func (s *Service) Post(ctx context.Context, job *protocol.Message) (err error) {
	if err = s.Init(ctx); err != nil {
		return err
	}
	ctx, span := tracing.StartSpan(ctx, "pool.Post", "PRODUCER")
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"job.seq": fmt.Sprintf("%d", job.Seq)})

	var target unit.Unit
	for {
		if err = s.WaitForCapacity(ctx); err != nil {
			return err
		}
		s.mu.Lock()
		if !s.initialized {
			s.mu.Unlock()
			return ErrClosed
		}
		if int(s.inFlight.Load()) < s.config.MaxInFlight {
			target, err = s.nextUnitLocked()
			if err != nil {
				s.mu.Unlock()
				return err
			}
			s.inFlight.Add(1)
			s.armWaveLocked()
			s.mu.Unlock()
			break
		}
		s.mu.Unlock()
	}

	if err = target.Send(ctx, job); err != nil {
		// release rather than a raw decrement: a close that completed while
		// the send was blocked already reset the counter
		s.release()
		return fmt.Errorf("failed to dispatch job %v: %w", job.Seq, err)
	}
	s.dispatched.Add(1)
	return nil
}

// nextUnitLocked advances the cursor circularly, skipping units lost to
// fatal faults. Caller holds s.mu.
func (s *Service) nextUnitLocked() (unit.Unit, error) {
	count := len(s.members)
	for i := 0; i < count; i++ {
		m := s.members[s.cursor]
		s.cursor = (s.cursor + 1) % count
		if m.alive {
			return m.unit, nil
		}
	}
	return nil, ErrNoLiveUnits
}

// armWaveLocked marks the current wave as pending completion. Caller holds
// s.mu.
func (s *Service) armWaveLocked() {
	if s.waveArmed.CompareAndSwap(false, true) {
		s.waveStarted = clock.Now()
	}
}

// Broadcast sends an out-of-band envelope to every live unit; broadcasts do
// not count against the admission bound.
func (s *Service) Broadcast(ctx context.Context, payload interface{}) error {
	if err := s.Init(ctx); err != nil {
		return err
	}
	msg := protocol.NewBroadcast(payload)
	var errs []error
	for _, target := range s.liveUnits() {
		if err := target.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("unit %v: %w", target.ID(), err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) liveUnits() []unit.Unit {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]unit.Unit, 0, len(s.members))
	for _, m := range s.members {
		if m.alive {
			ret = append(ret, m.unit)
		}
	}
	return ret
}

// WaitForCapacity suspends the caller until admitted work drops below the
// bound. The wait is a short fixed-interval poll rather than an event
// wake; at most one interval of staleness passes before freed capacity is
// noticed.
func (s *Service) WaitForCapacity(ctx context.Context) error {
	return s.poll(ctx, func() bool {
		return int(s.inFlight.Load()) < s.config.MaxInFlight
	})
}

// WaitForCompletion suspends the caller until no admitted work remains.
func (s *Service) WaitForCompletion(ctx context.Context) error {
	return s.poll(ctx, func() bool {
		return s.inFlight.Load() == 0
	})
}

func (s *Service) poll(ctx context.Context, done func() bool) error {
	if done() {
		return nil
	}
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if done() {
				return nil
			}
		}
	}
}

// Close shuts the pool down. With drain set it first awaits completion of
// outstanding jobs; without it outstanding jobs are abandoned, their
// results never arrive and the in-flight counter is not guaranteed to reach
// zero before teardown. Either way the unit list is cleared and the
// initialisation state reset so the pool can be reused.
func (s *Service) Close(ctx context.Context, drain bool) error {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if drain {
		if err := s.WaitForCompletion(ctx); err != nil {
			return err
		}
	}

	s.mu.Lock()
	members := s.members
	s.members = nil
	s.cursor = 0
	s.initialized = false
	s.mu.Unlock()

	notice := protocol.NewClose()
	for _, m := range members {
		if m.alive {
			if err := m.unit.Send(ctx, notice); err != nil {
				// a unit that already died cannot take the notice
				s.logger.WithField("unit", m.unit.ID()).WithError(err).Debug("close notice not delivered")
			}
		}
		_ = m.unit.Terminate()
	}
	s.inFlight.Store(0)
	s.waveArmed.Store(false)
	return nil
}

// Stats returns a snapshot of the pool counters.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := 0
	for _, m := range s.members {
		if m.alive {
			live++
		}
	}
	return Stats{
		Units:            len(s.members),
		Live:             live,
		InFlight:         s.inFlight.Load(),
		Dispatched:       s.dispatched.Load(),
		LastWaveDuration: s.lastWave,
	}
}

// handleInbound consumes everything a unit's message callback delivers:
// results, tagged errors and malformed envelopes.
func (s *Service) handleInbound(raw interface{}) {
	msg, err := protocol.Normalize(raw)
	if err != nil {
		// Malformed envelope. With a usable seq the slot is released so the
		// counter cannot leak; without one only the report is possible.
		if msg != nil && msg.HasSeq() {
			s.reportError(fmt.Errorf("malformed message: %w", err), msg.Seq)
			s.release()
			s.checkWave()
			return
		}
		s.reportError(fmt.Errorf("malformed message: %w", err), protocol.NoSeq)
		return
	}
	// Callbacks run before the slot is released so a completed wait implies
	// every result was already delivered.
	if msg.IsError() {
		s.reportError(errors.New(msg.Error), msg.Seq)
		s.release()
		s.checkWave()
		return
	}
	s.invokeOnResult(msg)
	s.release()
	s.checkWave()
}

// release frees one admission slot. Unsolicited replies must not drive the
// counter negative, so the decrement floors at zero.
func (s *Service) release() {
	for {
		current := s.inFlight.Load()
		if current <= 0 {
			return
		}
		if s.inFlight.CompareAndSwap(current, current-1) {
			return
		}
	}
}

// invokeOnResult shields the coordinator from user callback failures; a
// panicking onResult surfaces through onError instead.
func (s *Service) invokeOnResult(result *protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.reportError(fmt.Errorf("onResult callback failed: %v", r), result.Seq)
		}
	}()
	if s.onResult != nil {
		s.onResult(result)
	}
}

func (s *Service) reportError(err error, seq int64) {
	if s.onError == nil {
		s.logger.WithField("seq", seq).WithError(err).Warn("unhandled pool error")
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("seq", seq).Errorf("onError callback failed: %v", r)
		}
	}()
	s.onError(err, seq)
}

// checkWave fires onAllComplete exactly once per wave: the armed flag set
// by the first post of a wave is consumed atomically at the zero crossing.
// A post landing between a reply's release and the load below hides that
// crossing, merging the two waves into one signal at the next crossing;
// that is the chosen linearization for posters concurrent with completion.
func (s *Service) checkWave() {
	if s.inFlight.Load() != 0 {
		return
	}
	if !s.waveArmed.CompareAndSwap(true, false) {
		return
	}
	s.mu.Lock()
	if !s.waveStarted.IsZero() {
		s.lastWave = clock.Now().Sub(s.waveStarted)
	}
	s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.reportError(fmt.Errorf("onAllComplete callback failed: %v", r), protocol.NoSeq)
		}
	}()
	if s.onAllComplete != nil {
		s.onAllComplete()
	}
}

// faultHandler reacts to a unit-level fatal fault: the unit is permanently
// removed from rotation with no replacement, and jobs in flight on it are
// dropped without advancing their bookkeeping.
func (s *Service) faultHandler(m *member) func(error) {
	return func(err error) {
		s.mu.Lock()
		m.alive = false
		s.mu.Unlock()
		s.logger.WithField("unit", m.unit.ID()).WithError(err).Warn("execution unit lost")
		s.reportError(err, protocol.NoSeq)
	}
}
