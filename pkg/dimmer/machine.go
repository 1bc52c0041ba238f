// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Session is the single in-progress press-to-release interaction
type Session struct {
	Active       bool
	PendingClear bool // released, waiting for the in-flight transmission
	LongHold     bool // classification of the eventual release
	Button       ButtonID
	PressedAt    time.Duration // monotonic time of the press
}

// Snapshot is a copy of the session plus the guard state
type Snapshot struct {
	Session
	Busy   bool
	Joined bool
}

func (s Snapshot) String() string {
	switch {
	case !s.Active:
		return "IDLE"
	case s.PendingClear:
		return fmt.Sprintf("%s RELEASED (waiting for buffer)", s.Button)
	default:
		return fmt.Sprintf("%s HELD", s.Button)
	}
}

// Machine is the button session state machine. Its handlers are synchronous
// and only mutate the session and guard; every other effect is returned as a
// Command. Callers must serialize calls.
type Machine struct {
	session Session
	guard   Guard
	joined  bool

	sendInitial bool
	log         zerolog.Logger
}

// Option configures a Machine
type Option func(*Machine)

// WithLogger sets the logger used for diagnostics
func WithLogger(l zerolog.Logger) Option {
	return func(m *Machine) { m.log = l }
}

// WithInitialEvent transmits the Initial event on press, subject to the same
// drop policy as repeats. By default the Initial transition is only logged.
func WithInitialEvent() Option {
	return func(m *Machine) { m.sendInitial = true }
}

// WithJoinGate starts the machine unjoined; presses are ignored until
// SetJoined(true).
func WithJoinGate() Option {
	return func(m *Machine) { m.joined = false }
}

// NewMachine creates an idle machine
func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		joined: true,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Reset returns the session to idle. Used at boot only; the guard is left
// alone because only a completion may release it.
func (m *Machine) Reset() {
	m.session = Session{}
}

// Snapshot returns a copy of the current state
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{Session: m.session, Busy: m.guard.Busy(), Joined: m.joined}
}

// SetJoined records whether the remote is joined to a network
func (m *Machine) SetJoined(joined bool) {
	if m.joined != joined {
		m.log.Info().Bool("joined", joined).Msg("network state changed")
	}
	m.joined = joined
}

// HandleEdge dispatches a raw edge to Press or Release
func (m *Machine) HandleEdge(e Edge, now time.Duration) []Command {
	if e.Pressed {
		return m.Press(e.Button, now)
	}
	return m.Release(e.Button, now)
}

// Press starts a session for id if none is active
func (m *Machine) Press(id ButtonID, now time.Duration) []Command {
	edge := Edge{Button: id, Pressed: true}
	if reason, ok := m.admit(edge); !ok {
		return m.ignore(edge, reason)
	}
	if m.session.Active {
		return m.ignore(edge, IgnoreSessionActive)
	}

	m.session = Session{
		Active:    true,
		Button:    id,
		PressedAt: now,
	}

	initial := Event{Button: id, Kind: KindInitial}
	m.log.Debug().Stringer("button", id).Msg("button pressed")

	cmds := []Command{ArmHold{After: HoldInterval}}
	if m.sendInitial {
		cmds = append(cmds, m.emit(initial))
	}
	return cmds
}

// HoldTick handles the hold timer firing. A tick that arrives after the
// release is stale and produces nothing.
func (m *Machine) HoldTick(now time.Duration) []Command {
	if !m.session.Active || m.session.PendingClear {
		m.log.Debug().Msg("stale hold tick")
		return nil
	}

	ev := Event{
		Button:   m.session.Button,
		Kind:     KindRepeat,
		Duration: Deciseconds(now - m.session.PressedAt),
	}
	return []Command{m.emit(ev), ArmHold{After: HoldInterval}}
}

// Release ends the session owned by id
func (m *Machine) Release(id ButtonID, now time.Duration) []Command {
	edge := Edge{Button: id, Pressed: false}
	if reason, ok := m.admit(edge); !ok {
		return m.ignore(edge, reason)
	}
	switch {
	case !m.session.Active:
		return m.ignore(edge, IgnoreNoSession)
	case m.session.Button != id:
		return m.ignore(edge, IgnoreOtherButton)
	case m.session.PendingClear:
		return m.ignore(edge, IgnoreReleasePending)
	}

	m.session.PendingClear = true

	// LongHold is never raised by any transition, so releases always
	// classify short. Kept until a long-press threshold is defined.
	ev := Event{Button: id, Kind: KindShortRelease, Duration: ShortReleaseDuration}
	if m.session.LongHold {
		ev.Kind = KindLongRelease
		ev.Duration = Deciseconds(now - m.session.PressedAt)
	}

	m.log.Debug().Stringer("button", id).Stringer("kind", ev.Kind).Msg("button released")
	return []Command{CancelHold{}, m.emit(ev)}
}

// Complete handles the transport completion of the in-flight buffer. It is
// the only place a session returns to idle.
func (m *Machine) Complete() []Command {
	if !m.guard.Busy() {
		m.log.Warn().Msg("completion without a transmission in flight")
		return nil
	}
	m.guard.Release()

	if !m.session.PendingClear {
		return nil
	}
	done := m.session
	m.session = Session{}
	m.log.Debug().Stringer("button", done.Button).Msg("button event complete")
	return []Command{Finished{Session: done}}
}

// emit acquires the guard for ev or reports the drop
func (m *Machine) emit(ev Event) Command {
	if !m.guard.TryAcquire() {
		m.log.Debug().Stringer("event", ev).Msg("buffer in use, event dropped")
		return Dropped{Event: ev}
	}
	return Transmit{Event: ev, Payload: ev.Payload()}
}

func (m *Machine) admit(e Edge) (IgnoreReason, bool) {
	if !e.Button.Valid() {
		return IgnoreInvalidButton, false
	}
	// Releases always pass so a session started before leaving the
	// network can still finish.
	if e.Pressed && !m.joined {
		return IgnoreNotJoined, false
	}
	return "", true
}

func (m *Machine) ignore(e Edge, reason IgnoreReason) []Command {
	m.log.Debug().Stringer("edge", e).Str("reason", string(reason)).Msg("edge ignored")
	return []Command{Ignored{Edge: e, Reason: reason}}
}
