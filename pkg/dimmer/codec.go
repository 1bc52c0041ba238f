// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Event is a single decided button event, passed by value from the state
// machine to the wire boundary.
type Event struct {
	Button   ButtonID
	Kind     TransitionKind
	Duration uint8 // deciseconds since press start
}

// Token packs the event into its 16-bit scheduling form
func (e Event) Token() Token {
	return EncodeToken(e.Button, e.Kind, uint(e.Duration))
}

// Payload builds the 64-bit wire record for the event
func (e Event) Payload() WirePayload {
	return BuildWirePayload(e.Button, e.Kind, e.Duration)
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s %d.%ds", e.Button, e.Kind, e.Duration/10, e.Duration%10)
}

// Deciseconds converts an elapsed hold time to 100 ms units, saturating at
// MaxDuration. Negative durations report zero.
func Deciseconds(elapsed time.Duration) uint8 {
	if elapsed <= 0 {
		return 0
	}
	ds := elapsed / DecisecondUnit
	if ds > MaxDuration {
		return MaxDuration
	}
	return uint8(ds)
}

// Token is the compact 16-bit scheduling representation of an event:
//
//	bits 12-13  button id
//	bits  8-9   transition kind
//	bits  0-7   duration in deciseconds
//
// It never leaves the host.
type Token uint16

// EncodeToken packs an event. Duration is masked to 8 bits, so values above
// 255 wrap rather than fail.
func EncodeToken(id ButtonID, kind TransitionKind, duration uint) Token {
	return Token(
		(uint16(id)&0x0003)<<tokenButtonShift |
			(uint16(kind)&0x0003)<<tokenKindShift |
			uint16(duration)&tokenDurationMask,
	)
}

// DecodeToken extracts the fields packed by EncodeToken
func DecodeToken(t Token) (ButtonID, TransitionKind, uint8) {
	id := ButtonID((uint16(t) & tokenButtonMask) >> tokenButtonShift)
	kind := TransitionKind((uint16(t) & tokenKindMask) >> tokenKindShift)
	duration := uint8(uint16(t) & tokenDurationMask)
	return id, kind, duration
}

// Event unpacks the token
func (t Token) Event() Event {
	id, kind, duration := DecodeToken(t)
	return Event{Button: id, Kind: kind, Duration: duration}
}

func (t Token) String() string {
	return fmt.Sprintf("0x%04X", uint16(t))
}

// WirePayload is the transmitted 64-bit event record.
//
// Byte N below holds bits 8N..8N+7 of the value, which is also the order the
// bytes go on air:
//
//	+--------+------+------+------+------+------+----------+------+
//	| 0      | 1    | 2    | 3    | 4    | 5    | 6        | 7    |
//	+--------+------+------+------+------+------+----------+------+
//	| id + 1 | 0x00 | 0x00 | 0x30 | kind | 0x21 | duration | 0x00 |
//	+--------+------+------+------+------+------+----------+------+
type WirePayload uint64

// PayloadSize is the encoded size of a WirePayload in bytes
const PayloadSize = 8

// BuildWirePayload constructs the payload for a button event. The button id
// is 1-indexed on the wire.
func BuildWirePayload(id ButtonID, kind TransitionKind, duration uint8) WirePayload {
	v := uint64(MarkerA)<<24 | uint64(MarkerB)<<40
	v |= uint64(uint8(id)+1) | uint64(kind)<<32 | uint64(duration)<<48
	return WirePayload(v)
}

// Bytes returns the payload in on-air byte order
func (p WirePayload) Bytes() [PayloadSize]byte {
	var b [PayloadSize]byte
	binary.LittleEndian.PutUint64(b[:], uint64(p))
	return b
}

func (p WirePayload) String() string {
	return fmt.Sprintf("0x%016X", uint64(p))
}

// ParseWirePayload validates a received payload and recovers its event
func ParseWirePayload(v uint64) (Event, error) {
	b := WirePayload(v).Bytes()

	if b[3] != MarkerA || b[5] != MarkerB {
		return Event{}, fmt.Errorf("%w: got 0x%02X/0x%02X", ErrBadMarker, b[3], b[5])
	}
	if b[1] != 0 || b[2] != 0 || b[7] != 0 {
		return Event{}, fmt.Errorf("%w: %s", ErrReservedBits, WirePayload(v))
	}
	if b[0] == 0 || !ButtonID(b[0]-1).Valid() {
		return Event{}, fmt.Errorf("%w: wire id %d", ErrInvalidButton, b[0])
	}
	kind := TransitionKind(b[4])
	if !kind.Valid() {
		return Event{}, fmt.Errorf("%w: 0x%02X", ErrInvalidKind, b[4])
	}

	return Event{Button: ButtonID(b[0] - 1), Kind: kind, Duration: b[6]}, nil
}

// ParseWirePayloadBytes parses a payload given in on-air byte order
func ParseWirePayloadBytes(data []byte) (Event, error) {
	if len(data) != PayloadSize {
		return Event{}, fmt.Errorf("%w: got %d", ErrPayloadLength, len(data))
	}
	return ParseWirePayload(binary.LittleEndian.Uint64(data))
}
