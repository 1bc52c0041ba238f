// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Transport sends payloads to the receiving endpoint. Transmit must not
// block; onComplete must be called exactly once, eventually, whatever the
// outcome. A synchronous error means the transport could not take the
// buffer at all and is treated as fatal resource exhaustion.
type Transport interface {
	Transmit(payload WirePayload, onComplete func(error)) error
}

// Observer is notified from the loop goroutine about everything the remote
// does. Implementations must not block.
type Observer interface {
	EventSent(ev Event, payload WirePayload)
	EventDropped(ev Event)
	EdgeIgnored(e Edge, reason IgnoreReason)
	TransmitCompleted(err error)
	SessionFinished(s Session)
}

// NopObserver ignores all notifications
type NopObserver struct{}

func (NopObserver) EventSent(Event, WirePayload)   {}
func (NopObserver) EventDropped(Event)             {}
func (NopObserver) EdgeIgnored(Edge, IgnoreReason) {}
func (NopObserver) TransmitCompleted(error)        {}
func (NopObserver) SessionFinished(Session)        {}

// Observers fans notifications out to several observers
type Observers []Observer

func (o Observers) EventSent(ev Event, p WirePayload) {
	for _, x := range o {
		x.EventSent(ev, p)
	}
}

func (o Observers) EventDropped(ev Event) {
	for _, x := range o {
		x.EventDropped(ev)
	}
}

func (o Observers) EdgeIgnored(e Edge, r IgnoreReason) {
	for _, x := range o {
		x.EdgeIgnored(e, r)
	}
}

func (o Observers) TransmitCompleted(err error) {
	for _, x := range o {
		x.TransmitCompleted(err)
	}
}

func (o Observers) SessionFinished(s Session) {
	for _, x := range o {
		x.SessionFinished(s)
	}
}

// RemoteConfig wires a Remote to its collaborators
type RemoteConfig struct {
	Clock     Clock
	Scheduler Scheduler
	Transport Transport
	Observer  Observer // optional
	Logger    *zerolog.Logger
	Options   []Option // passed to NewMachine
}

// Remote is the host event loop. Edges, hold ticks, transmission completions
// and network state changes are queued and handled one at a time, so the
// Machine never sees concurrent calls.
type Remote struct {
	machine   *Machine
	hold      *HoldTimer
	clock     Clock
	transport Transport
	obs       Observer
	log       zerolog.Logger

	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
	fatal error
	last  Snapshot
}

// NewRemote creates a remote with an idle session
func NewRemote(cfg RemoteConfig) *Remote {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	obs := cfg.Observer
	if obs == nil {
		obs = NopObserver{}
	}

	opts := append([]Option{WithLogger(logger)}, cfg.Options...)
	m := NewMachine(opts...)
	m.Reset()

	return &Remote{
		machine:   m,
		hold:      NewHoldTimer(cfg.Scheduler),
		clock:     cfg.Clock,
		transport: cfg.Transport,
		obs:       obs,
		log:       logger,
		wake:      make(chan struct{}, 1),
		last:      m.Snapshot(),
	}
}

// Edge queues a raw button edge
func (r *Remote) Edge(e Edge) {
	r.post(func() {
		r.apply(r.machine.HandleEdge(e, r.clock.Now()))
	})
}

// Press queues a press edge
func (r *Remote) Press(id ButtonID) {
	r.Edge(Edge{Button: id, Pressed: true})
}

// Release queues a release edge
func (r *Remote) Release(id ButtonID) {
	r.Edge(Edge{Button: id, Pressed: false})
}

// SetJoined queues a network state change
func (r *Remote) SetJoined(joined bool) {
	r.post(func() {
		r.machine.SetJoined(joined)
	})
}

// Snapshot returns the state as of the last handled input
func (r *Remote) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Err returns the fatal error that stopped the remote, if any
func (r *Remote) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fatal
}

// Run handles queued inputs until ctx is done or a fatal error occurs. It
// returns nil on cancellation.
func (r *Remote) Run(ctx context.Context) error {
	defer r.hold.Cancel()

	for {
		r.RunPending()
		if err := r.Err(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-r.wake:
		}
	}
}

// RunPending handles every queued input on the calling goroutine and returns
// how many ran. It must not be called while Run is active; it exists for
// deterministic drivers such as the simulator.
func (r *Remote) RunPending() int {
	n := 0
	for {
		if r.Err() != nil {
			return n
		}

		r.mu.Lock()
		if len(r.queue) == 0 {
			r.mu.Unlock()
			return n
		}
		fn := r.queue[0]
		r.queue[0] = nil
		r.queue = r.queue[1:]
		r.mu.Unlock()

		fn()
		n++

		snap := r.machine.Snapshot()
		r.mu.Lock()
		r.last = snap
		r.mu.Unlock()
	}
}

func (r *Remote) post(fn func()) {
	r.mu.Lock()
	if r.fatal != nil {
		r.mu.Unlock()
		return
	}
	r.queue = append(r.queue, fn)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Remote) apply(cmds []Command) {
	for _, cmd := range cmds {
		if r.Err() != nil {
			return
		}

		switch c := cmd.(type) {
		case ArmHold:
			err := r.hold.Arm(c.After, func(gen uint64) {
				r.post(func() { r.tick(gen) })
			})
			if err != nil {
				if !errors.Is(err, ErrSchedulerExhausted) {
					err = fmt.Errorf("%w: %v", ErrSchedulerExhausted, err)
				}
				r.fail(err)
			}

		case CancelHold:
			r.hold.Cancel()

		case Transmit:
			if err := r.transport.Transmit(c.Payload, r.completion()); err != nil {
				if !errors.Is(err, ErrTransportExhausted) {
					err = fmt.Errorf("%w: %v", ErrTransportExhausted, err)
				}
				r.fail(err)
				continue
			}
			r.log.Info().Stringer("event", c.Event).Stringer("payload", c.Payload).Msg("event sent")
			r.obs.EventSent(c.Event, c.Payload)

		case Dropped:
			r.obs.EventDropped(c.Event)

		case Ignored:
			r.obs.EdgeIgnored(c.Edge, c.Reason)

		case Finished:
			r.obs.SessionFinished(c.Session)
		}
	}
}

func (r *Remote) tick(gen uint64) {
	if !r.hold.Fired(gen) {
		return
	}
	r.apply(r.machine.HoldTick(r.clock.Now()))
}

// completion returns a callback that feeds exactly one completion back into
// the loop, however many times the transport calls it.
func (r *Remote) completion() func(error) {
	var once sync.Once
	return func(err error) {
		once.Do(func() {
			r.post(func() {
				if err != nil {
					r.log.Warn().Err(err).Msg("transmission failed")
				}
				r.obs.TransmitCompleted(err)
				r.apply(r.machine.Complete())
			})
		})
	}
}

func (r *Remote) fail(err error) {
	r.hold.Cancel()
	r.log.Error().Err(err).Msg("remote stopped")

	r.mu.Lock()
	r.fatal = fmt.Errorf("%w: %w", ErrFatal, err)
	r.queue = nil
	r.mu.Unlock()
}
