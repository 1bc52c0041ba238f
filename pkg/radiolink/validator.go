// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radiolink

import (
	"fmt"

	"github.com/Thermoquad/dimmerswitch/pkg/dimmer"
)

// AnomalyType represents different types of frame anomalies
type AnomalyType int

const (
	AnomalyMalformedBody AnomalyType = iota
	AnomalyUnknownType
	AnomalyMissingField
	AnomalyBadPayload
	AnomalyDuration
	AnomalyUnknownStatus
)

func (a AnomalyType) String() string {
	switch a {
	case AnomalyMalformedBody:
		return "MALFORMED_BODY"
	case AnomalyUnknownType:
		return "UNKNOWN_TYPE"
	case AnomalyMissingField:
		return "MISSING_FIELD"
	case AnomalyBadPayload:
		return "BAD_PAYLOAD"
	case AnomalyDuration:
		return "DURATION"
	case AnomalyUnknownStatus:
		return "UNKNOWN_STATUS"
	default:
		return fmt.Sprintf("ANOMALY(%d)", int(a))
	}
}

// ValidationError represents a frame validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// holdTicks is the shortest duration a held button can report
var holdTicks = uint8(dimmer.HoldInterval / dimmer.DecisecondUnit)

// ValidateFrame checks a decoded frame for protocol anomalies.
// Returns a slice of validation errors (empty if the frame is valid)
func ValidateFrame(f *Frame) []ValidationError {
	if err := f.ParseError(); err != nil {
		return []ValidationError{{
			Type:    AnomalyMalformedBody,
			Message: err.Error(),
		}}
	}

	switch f.Type() {
	case MsgButtonEvent:
		return validateButtonEvent(f)
	case MsgTxDone:
		return validateTxDone(f)
	case MsgLinkState:
		if _, err := f.LinkState(); err != nil {
			return []ValidationError{missingField(err)}
		}
	case MsgPingRequest, MsgPingResponse:
	default:
		return []ValidationError{{
			Type:    AnomalyUnknownType,
			Message: fmt.Sprintf("Unknown message type 0x%02X", f.Type()),
			Details: map[string]interface{}{"type": f.Type()},
		}}
	}
	return nil
}

func missingField(err error) ValidationError {
	return ValidationError{Type: AnomalyMissingField, Message: err.Error()}
}

// validateButtonEvent checks the wire payload and that its duration fits
// the transition kind
func validateButtonEvent(f *Frame) []ValidationError {
	payload, seq, err := f.ButtonEvent()
	if err != nil {
		return []ValidationError{missingField(err)}
	}
	ev, err := dimmer.ParseWirePayload(uint64(payload))
	if err != nil {
		return []ValidationError{{
			Type:    AnomalyBadPayload,
			Message: fmt.Sprintf("Seq %d: %v", seq, err),
			Details: map[string]interface{}{"seq": seq, "payload": uint64(payload)},
		}}
	}

	var want string
	switch ev.Kind {
	case dimmer.KindInitial:
		if ev.Duration != 0 {
			want = "0"
		}
	case dimmer.KindShortRelease:
		if ev.Duration != dimmer.ShortReleaseDuration {
			want = fmt.Sprint(dimmer.ShortReleaseDuration)
		}
	case dimmer.KindRepeat, dimmer.KindLongRelease:
		if ev.Duration < holdTicks {
			want = fmt.Sprintf(">= %d", holdTicks)
		}
	}
	if want == "" {
		return nil
	}
	return []ValidationError{{
		Type:    AnomalyDuration,
		Message: fmt.Sprintf("Seq %d: %s duration=%d (want %s)", seq, ev.Kind, ev.Duration, want),
		Details: map[string]interface{}{"seq": seq, "kind": ev.Kind, "duration": ev.Duration},
	}}
}

func validateTxDone(f *Frame) []ValidationError {
	seq, status, err := f.TxDone()
	if err != nil {
		return []ValidationError{missingField(err)}
	}
	if status > TxStatusBusy {
		return []ValidationError{{
			Type:    AnomalyUnknownStatus,
			Message: fmt.Sprintf("Seq %d: unknown TX status 0x%02X", seq, uint8(status)),
			Details: map[string]interface{}{"seq": seq, "status": uint8(status)},
		}}
	}
	return nil
}
