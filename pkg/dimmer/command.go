// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

import (
	"fmt"
	"time"
)

// Command is an effect requested by the Machine. The host loop executes
// commands in the order they are returned.
type Command interface {
	command()
}

// ArmHold arms the hold timer to fire once after the given delay
type ArmHold struct {
	After time.Duration
}

// CancelHold cancels the hold timer
type CancelHold struct{}

// Transmit hands a payload to the transport. The guard has already been
// acquired for it; the transport completion must be fed back with Complete.
type Transmit struct {
	Event   Event
	Payload WirePayload
}

// Dropped reports an event skipped because the buffer was busy
type Dropped struct {
	Event Event
}

// Ignored reports an edge that caused no state change
type Ignored struct {
	Edge   Edge
	Reason IgnoreReason
}

// Finished reports a session returning to idle
type Finished struct {
	Session Session
}

func (ArmHold) command()    {}
func (CancelHold) command() {}
func (Transmit) command()   {}
func (Dropped) command()    {}
func (Ignored) command()    {}
func (Finished) command()   {}

func (c ArmHold) String() string    { return fmt.Sprintf("ARM_HOLD(%s)", c.After) }
func (c CancelHold) String() string { return "CANCEL_HOLD" }
func (c Transmit) String() string   { return fmt.Sprintf("TRANSMIT(%s %s)", c.Event, c.Payload) }
func (c Dropped) String() string    { return fmt.Sprintf("DROPPED(%s)", c.Event) }
func (c Ignored) String() string    { return fmt.Sprintf("IGNORED(%s: %s)", c.Edge, c.Reason) }
func (c Finished) String() string   { return fmt.Sprintf("FINISHED(%s)", c.Session.Button) }

// IgnoreReason explains why an edge was ignored
type IgnoreReason string

// Ignore reasons
const (
	IgnoreNotJoined      IgnoreReason = "not_joined"
	IgnoreSessionActive  IgnoreReason = "session_active"
	IgnoreNoSession      IgnoreReason = "no_session"
	IgnoreOtherButton    IgnoreReason = "other_button"
	IgnoreReleasePending IgnoreReason = "release_pending"
	IgnoreInvalidButton  IgnoreReason = "invalid_button"
)

// Edge is a raw press or release of one button
type Edge struct {
	Button  ButtonID
	Pressed bool
}

func (e Edge) String() string {
	if e.Pressed {
		return e.Button.String() + " pressed"
	}
	return e.Button.String() + " released"
}
