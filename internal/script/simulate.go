// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package script

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/dimmerswitch/pkg/dimmer"
)

// DefaultTail is how long a simulation keeps running after its last step
// when Script.Until is zero
const DefaultTail = 2 * time.Second

// EntryKind classifies a trace entry
type EntryKind string

// Trace entry kinds
const (
	EntryInput     EntryKind = "input"
	EntrySent      EntryKind = "sent"
	EntryDropped   EntryKind = "dropped"
	EntryIgnored   EntryKind = "ignored"
	EntryCompleted EntryKind = "completed"
	EntryFinished  EntryKind = "finished"
)

// Entry is one line of a simulation trace
type Entry struct {
	At      time.Duration
	Kind    EntryKind
	Event   dimmer.Event       // sent, dropped
	Payload dimmer.WirePayload // sent
	Detail  string
}

func (e Entry) String() string {
	at := fmt.Sprintf("%8.3fs", e.At.Seconds())
	switch e.Kind {
	case EntrySent:
		return fmt.Sprintf("%s  SENT     %-24s %s %s", at, e.Event, e.Event.Token(), e.Payload)
	case EntryDropped:
		return fmt.Sprintf("%s  DROPPED  %s (buffer busy)", at, e.Event)
	default:
		return fmt.Sprintf("%s  %-8s %s", at, strings.ToUpper(string(e.Kind)), e.Detail)
	}
}

// Result is the outcome of a simulation
type Result struct {
	Trace  []Entry
	Sent   []dimmer.WirePayload
	Final  dimmer.Snapshot
	Err    error // fatal remote error, if any
	Config Script
}

// Events returns the sent events in order
func (r Result) Events() []dimmer.Event {
	var out []dimmer.Event
	for _, e := range r.Trace {
		if e.Kind == EntrySent {
			out = append(out, e.Event)
		}
	}
	return out
}

type tracer struct {
	clock *dimmer.VirtualClock
	trace []Entry
}

func (t *tracer) add(e Entry) {
	e.At = t.clock.Now()
	t.trace = append(t.trace, e)
}

func (t *tracer) EventSent(ev dimmer.Event, p dimmer.WirePayload) {
	t.add(Entry{Kind: EntrySent, Event: ev, Payload: p})
}

func (t *tracer) EventDropped(ev dimmer.Event) {
	t.add(Entry{Kind: EntryDropped, Event: ev})
}

func (t *tracer) EdgeIgnored(e dimmer.Edge, reason dimmer.IgnoreReason) {
	t.add(Entry{Kind: EntryIgnored, Detail: fmt.Sprintf("%s (%s)", e, reason)})
}

func (t *tracer) TransmitCompleted(err error) {
	detail := "ok"
	if err != nil {
		detail = err.Error()
	}
	t.add(Entry{Kind: EntryCompleted, Detail: detail})
}

func (t *tracer) SessionFinished(s dimmer.Session) {
	t.add(Entry{Kind: EntryFinished, Detail: fmt.Sprintf("%s session idle", s.Button)})
}

// Simulate runs s on a virtual clock with a loopback transport. Extra
// observers see every notification the trace records.
func Simulate(s Script, logger zerolog.Logger, observers ...dimmer.Observer) Result {
	clock := dimmer.NewVirtualClock()
	transport := dimmer.NewDelayedTransport(clock, s.Latency)
	tr := &tracer{clock: clock}

	var opts []dimmer.Option
	if s.InitialEvent {
		opts = append(opts, dimmer.WithInitialEvent())
	}
	if s.JoinGate {
		opts = append(opts, dimmer.WithJoinGate())
	}

	remote := dimmer.NewRemote(dimmer.RemoteConfig{
		Clock:     clock,
		Scheduler: clock,
		Transport: transport,
		Observer:  append(dimmer.Observers{tr}, observers...),
		Logger:    &logger,
		Options:   opts,
	})
	clock.OnFire = func() { remote.RunPending() }

	steps := sortSteps(s.Steps)
	for _, step := range steps {
		clock.AdvanceTo(step.At)
		tr.add(Entry{Kind: EntryInput, Detail: string(step.Action) + " " + stepTarget(step)})

		switch step.Action {
		case ActionPress:
			remote.Press(step.Button)
		case ActionRelease:
			remote.Release(step.Button)
		case ActionJoin:
			remote.SetJoined(true)
		case ActionLeave:
			remote.SetJoined(false)
		}
		remote.RunPending()
		if remote.Err() != nil {
			break
		}
	}

	var last time.Duration
	if len(steps) > 0 {
		last = steps[len(steps)-1].At
	}
	tail := s.Until
	if tail == 0 {
		tail = DefaultTail
	}
	if remote.Err() == nil {
		clock.AdvanceTo(last + tail)
	}

	return Result{
		Trace:  tr.trace,
		Sent:   transport.Sent(),
		Final:  remote.Snapshot(),
		Err:    remote.Err(),
		Config: s,
	}
}

func stepTarget(s Step) string {
	switch s.Action {
	case ActionPress, ActionRelease:
		return s.Button.String()
	default:
		return "network"
	}
}
