// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radiolink

import (
	"fmt"
	"time"

	"github.com/Thermoquad/dimmerswitch/pkg/dimmer"
)

// Frame is a decoded link frame
type Frame struct {
	address   uint64
	body      []byte // raw CBOR: [msg_type, field_map]
	crc       uint16
	timestamp time.Time

	// Parsed lazily from body
	msgType  uint8
	fields   Fields
	parsed   bool
	parseErr error
}

func (f *Frame) ensureParsed() {
	if f.parsed {
		return
	}
	f.parsed = true
	f.msgType, f.fields, f.parseErr = ParseBody(f.body)
}

// Length returns the CBOR body length
func (f *Frame) Length() int {
	return len(f.body)
}

// Address returns the 64-bit radio address
func (f *Frame) Address() uint64 {
	return f.address
}

// Type returns the message type
func (f *Frame) Type() uint8 {
	f.ensureParsed()
	return f.msgType
}

// Body returns the raw CBOR body
func (f *Frame) Body() []byte {
	return f.body
}

// Fields returns the decoded field map (nil for empty bodies)
func (f *Frame) Fields() Fields {
	f.ensureParsed()
	return f.fields
}

// ParseError returns any error from decoding the body
func (f *Frame) ParseError() error {
	f.ensureParsed()
	return f.parseErr
}

// CRC returns the frame's CRC
func (f *Frame) CRC() uint16 {
	return f.crc
}

// Timestamp returns when the frame was decoded
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

func (f *Frame) expect(msgType uint8) error {
	if err := f.ParseError(); err != nil {
		return err
	}
	if f.msgType != msgType {
		return fmt.Errorf("%w: want %s, got %s", ErrUnexpectedMsg,
			FormatMessageType(msgType), FormatMessageType(f.msgType))
	}
	return nil
}

// ButtonEvent returns the payload and sequence number of a BUTTON_EVENT
func (f *Frame) ButtonEvent() (dimmer.WirePayload, uint32, error) {
	if err := f.expect(MsgButtonEvent); err != nil {
		return 0, 0, err
	}
	payload, err := f.fields.mustUint(f.msgType, fieldPayload)
	if err != nil {
		return 0, 0, err
	}
	seq, err := f.fields.mustUint(f.msgType, fieldSeq)
	if err != nil {
		return 0, 0, err
	}
	return dimmer.WirePayload(payload), uint32(seq), nil
}

// TxDone returns the acknowledged sequence number and status of a TX_DONE
func (f *Frame) TxDone() (uint32, TxStatus, error) {
	if err := f.expect(MsgTxDone); err != nil {
		return 0, 0, err
	}
	seq, err := f.fields.mustUint(f.msgType, fieldAckSeq)
	if err != nil {
		return 0, 0, err
	}
	status, _ := f.fields.Uint(fieldStatus)
	return uint32(seq), TxStatus(status), nil
}

// LinkState returns whether the radio reports itself joined to a network
func (f *Frame) LinkState() (bool, error) {
	if err := f.expect(MsgLinkState); err != nil {
		return false, err
	}
	joined, ok := f.fields.Bool(fieldJoined)
	if !ok {
		return false, fmt.Errorf("%w: LINK_STATE key %d", ErrMissingField, fieldJoined)
	}
	return joined, nil
}
