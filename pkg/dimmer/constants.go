// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package dimmer implements the button interaction logic of a four-button
// battery powered dimmer remote.
//
// Raw press/release edges are turned into Initial, Repeat, ShortRelease and
// LongRelease events. At most one outbound buffer is in flight at any time,
// and a session is only cleared once the transmission carrying its last event
// has completed.
package dimmer

import (
	"fmt"
	"strings"
	"time"
)

// Wire payload markers
const (
	MarkerA = 0x30 // byte 3
	MarkerB = 0x21 // byte 5
)

// Timing
const (
	HoldInterval         = 800 * time.Millisecond // repeat tick cadence while held
	DecisecondUnit       = 100 * time.Millisecond
	ShortReleaseDuration = 1   // deciseconds reported for a short release
	MaxDuration          = 255 // saturation point of HoldDuration
)

// Token masks
const (
	tokenButtonMask   = 0xF000
	tokenButtonShift  = 12
	tokenKindMask     = 0x0F00
	tokenKindShift    = 8
	tokenDurationMask = 0x00FF
)

// ButtonID identifies one of the four physical buttons
type ButtonID uint8

// Button values
const (
	ButtonOn ButtonID = iota
	ButtonOff
	ButtonLevelUp
	ButtonLevelDown
)

// NumButtons is the number of physical buttons on the remote
const NumButtons = 4

// Valid reports whether b names a physical button
func (b ButtonID) Valid() bool {
	return b < NumButtons
}

func (b ButtonID) String() string {
	switch b {
	case ButtonOn:
		return "ON"
	case ButtonOff:
		return "OFF"
	case ButtonLevelUp:
		return "LEVEL_UP"
	case ButtonLevelDown:
		return "LEVEL_DOWN"
	default:
		return fmt.Sprintf("BUTTON(%d)", uint8(b))
	}
}

// ParseButtonID maps a button name as used in scripts and config files.
func ParseButtonID(name string) (ButtonID, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "on", "0":
		return ButtonOn, nil
	case "off", "1":
		return ButtonOff, nil
	case "up", "level_up", "levelup", "2":
		return ButtonLevelUp, nil
	case "down", "level_down", "leveldown", "3":
		return ButtonLevelDown, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidButton, name)
}

// TransitionKind is the type of a button event
type TransitionKind uint8

// Transition kinds, values are the wire codes
const (
	KindInitial      TransitionKind = 0x00
	KindRepeat       TransitionKind = 0x01
	KindShortRelease TransitionKind = 0x02
	KindLongRelease  TransitionKind = 0x03
)

// Valid reports whether k is one of the four wire codes
func (k TransitionKind) Valid() bool {
	return k <= KindLongRelease
}

func (k TransitionKind) String() string {
	switch k {
	case KindInitial:
		return "INITIAL"
	case KindRepeat:
		return "REPEAT"
	case KindShortRelease:
		return "SHORT_RELEASE"
	case KindLongRelease:
		return "LONG_RELEASE"
	default:
		return fmt.Sprintf("KIND(0x%02X)", uint8(k))
	}
}
