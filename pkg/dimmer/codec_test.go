// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

import (
	"errors"
	"testing"
	"time"
)

// ============================================================
// Token Tests
// ============================================================

func TestEncodeToken_RoundTrip(t *testing.T) {
	for id := ButtonID(0); id < NumButtons; id++ {
		for kind := KindInitial; kind <= KindLongRelease; kind++ {
			for duration := 0; duration <= MaxDuration; duration++ {
				tok := EncodeToken(id, kind, uint(duration))
				gotID, gotKind, gotDuration := DecodeToken(tok)
				if gotID != id || gotKind != kind || int(gotDuration) != duration {
					t.Fatalf("round trip (%d, %d, %d) via %s gave (%d, %d, %d)",
						id, kind, duration, tok, gotID, gotKind, gotDuration)
				}
			}
		}
	}
}

func TestEncodeToken_Layout(t *testing.T) {
	tests := []struct {
		name     string
		id       ButtonID
		kind     TransitionKind
		duration uint
		expected Token
	}{
		{"on initial", ButtonOn, KindInitial, 0, 0x0000},
		{"off repeat", ButtonOff, KindRepeat, 8, 0x1108},
		{"up short release", ButtonLevelUp, KindShortRelease, 1, 0x2201},
		{"down long release", ButtonLevelDown, KindLongRelease, 0xAB, 0x33AB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := EncodeToken(tt.id, tt.kind, tt.duration)
			if tok != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, tok)
			}
		})
	}
}

func TestEncodeToken_TruncatesDuration(t *testing.T) {
	tok := EncodeToken(ButtonOn, KindRepeat, 300)
	_, _, duration := DecodeToken(tok)
	if duration != 300&0xFF {
		t.Errorf("expected duration %d, got %d", 300&0xFF, duration)
	}
}

func TestEncodeToken_MasksOutOfRangeFields(t *testing.T) {
	tok := EncodeToken(ButtonID(7), TransitionKind(6), 0)
	if tok != 0x3200 {
		t.Errorf("expected 0x3200, got %s", tok)
	}
}

func TestToken_Event(t *testing.T) {
	ev := Event{Button: ButtonLevelUp, Kind: KindRepeat, Duration: 16}
	if got := ev.Token().Event(); got != ev {
		t.Errorf("expected %v, got %v", ev, got)
	}
}

// ============================================================
// Wire Payload Tests
// ============================================================

func TestBuildWirePayload_Layout(t *testing.T) {
	p := BuildWirePayload(1, 0x02, 10)

	const expected = WirePayload(0x000A_2102_3000_0002)
	if p != expected {
		t.Fatalf("expected %s, got %s", expected, p)
	}

	if byte(p>>24) != MarkerA {
		t.Errorf("marker A at bit 24: got 0x%02X", byte(p>>24))
	}
	if byte(p>>40) != MarkerB {
		t.Errorf("marker B at bit 40: got 0x%02X", byte(p>>40))
	}
	if byte(p) != 2 {
		t.Errorf("wire id at bits 0-7: expected 2, got %d", byte(p))
	}
	if byte(p>>32) != 0x02 {
		t.Errorf("kind at bits 32-39: expected 0x02, got 0x%02X", byte(p>>32))
	}
	if byte(p>>48) != 10 {
		t.Errorf("duration at bits 48-55: expected 10, got %d", byte(p>>48))
	}
}

func TestWirePayload_Bytes(t *testing.T) {
	b := BuildWirePayload(ButtonOff, KindShortRelease, 10).Bytes()
	expected := [PayloadSize]byte{0x02, 0x00, 0x00, 0x30, 0x02, 0x21, 0x0A, 0x00}
	if b != expected {
		t.Errorf("expected % X, got % X", expected, b)
	}
}

func TestParseWirePayload_RoundTrip(t *testing.T) {
	for id := ButtonID(0); id < NumButtons; id++ {
		for kind := KindInitial; kind <= KindLongRelease; kind++ {
			for _, duration := range []uint8{0, 1, 8, 127, 255} {
				ev := Event{Button: id, Kind: kind, Duration: duration}
				got, err := ParseWirePayload(uint64(ev.Payload()))
				if err != nil {
					t.Fatalf("parse %v: %v", ev, err)
				}
				if got != ev {
					t.Fatalf("expected %v, got %v", ev, got)
				}

				b := ev.Payload().Bytes()
				got, err = ParseWirePayloadBytes(b[:])
				if err != nil || got != ev {
					t.Fatalf("byte parse %v: got %v, err %v", ev, got, err)
				}
			}
		}
	}
}

func TestParseWirePayload_Errors(t *testing.T) {
	valid := uint64(BuildWirePayload(ButtonOn, KindRepeat, 8))

	tests := []struct {
		name     string
		value    uint64
		expected error
	}{
		{"marker A", valid &^ (0xFF << 24), ErrBadMarker},
		{"marker B", valid ^ (0x01 << 40), ErrBadMarker},
		{"reserved byte 1", valid | 0x01<<8, ErrReservedBits},
		{"reserved byte 7", valid | 0x01<<56, ErrReservedBits},
		{"zero id", valid &^ 0xFF, ErrInvalidButton},
		{"id out of range", valid&^0xFF | 5, ErrInvalidButton},
		{"kind out of range", valid&^(0xFF<<32) | 0x04<<32, ErrInvalidKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseWirePayload(tt.value)
			if !errors.Is(err, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, err)
			}
		})
	}
}

func TestParseWirePayloadBytes_Length(t *testing.T) {
	_, err := ParseWirePayloadBytes([]byte{0x01, 0x00, 0x00, 0x30})
	if !errors.Is(err, ErrPayloadLength) {
		t.Errorf("expected ErrPayloadLength, got %v", err)
	}
}

// ============================================================
// Duration and Naming Tests
// ============================================================

func TestDeciseconds(t *testing.T) {
	tests := []struct {
		elapsed  time.Duration
		expected uint8
	}{
		{-time.Second, 0},
		{0, 0},
		{99 * time.Millisecond, 0},
		{100 * time.Millisecond, 1},
		{800 * time.Millisecond, 8},
		{1250 * time.Millisecond, 12},
		{25500 * time.Millisecond, 255},
		{time.Minute, 255},
	}

	for _, tt := range tests {
		if got := Deciseconds(tt.elapsed); got != tt.expected {
			t.Errorf("Deciseconds(%s): expected %d, got %d", tt.elapsed, tt.expected, got)
		}
	}
}

func TestParseButtonID(t *testing.T) {
	tests := []struct {
		input    string
		expected ButtonID
	}{
		{"on", ButtonOn},
		{"OFF", ButtonOff},
		{" up ", ButtonLevelUp},
		{"level_down", ButtonLevelDown},
		{"3", ButtonLevelDown},
	}

	for _, tt := range tests {
		got, err := ParseButtonID(tt.input)
		if err != nil {
			t.Errorf("ParseButtonID(%q): %v", tt.input, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseButtonID(%q): expected %s, got %s", tt.input, tt.expected, got)
		}
	}

	if _, err := ParseButtonID("dim"); !errors.Is(err, ErrInvalidButton) {
		t.Errorf("expected ErrInvalidButton, got %v", err)
	}
}

func TestStrings(t *testing.T) {
	if s := ButtonLevelUp.String(); s != "LEVEL_UP" {
		t.Errorf("unexpected button name %q", s)
	}
	if s := KindLongRelease.String(); s != "LONG_RELEASE" {
		t.Errorf("unexpected kind name %q", s)
	}
	ev := Event{Button: ButtonOn, Kind: KindRepeat, Duration: 12}
	if s := ev.String(); s != "ON REPEAT 1.2s" {
		t.Errorf("unexpected event string %q", s)
	}
}
