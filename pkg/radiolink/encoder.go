// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radiolink

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/Thermoquad/dimmerswitch/pkg/dimmer"
)

// Encoder builds wire frames for one radio address
type Encoder struct {
	address uint64
}

// NewEncoder creates an encoder for the given radio address
func NewEncoder(address uint64) *Encoder {
	return &Encoder{address: address}
}

// ButtonEvent encodes a BUTTON_EVENT carrying a wire payload
func (e *Encoder) ButtonEvent(payload dimmer.WirePayload, seq uint32) ([]byte, error) {
	return EncodeFrame(e.address, MsgButtonEvent, Fields{
		fieldPayload: uint64(payload),
		fieldSeq:     uint64(seq),
	})
}

// TxDone encodes a TX_DONE acknowledging seq
func (e *Encoder) TxDone(seq uint32, status TxStatus) ([]byte, error) {
	return EncodeFrame(e.address, MsgTxDone, Fields{
		fieldAckSeq: uint64(seq),
		fieldStatus: uint64(status),
	})
}

// LinkState encodes a LINK_STATE
func (e *Encoder) LinkState(joined bool) ([]byte, error) {
	return EncodeFrame(e.address, MsgLinkState, Fields{fieldJoined: joined})
}

// PingRequest encodes a PING_REQUEST
func (e *Encoder) PingRequest() ([]byte, error) {
	return EncodeFrame(e.address, MsgPingRequest, nil)
}

// PingResponse encodes a PING_RESPONSE carrying uptime
func (e *Encoder) PingResponse(uptime time.Duration) ([]byte, error) {
	return EncodeFrame(e.address, MsgPingResponse, Fields{fieldUptime: uint64(uptime.Milliseconds())})
}

// EncodeFrame builds a complete stuffed and framed packet
func EncodeFrame(address uint64, msgType uint8, fields Fields) ([]byte, error) {
	body, err := encodeBody(msgType, fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", FormatMessageType(msgType), err)
	}
	if len(body) > MaxBodySize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrBodyTooLarge, len(body), MaxBodySize)
	}

	// length + address + body is what gets CRC'd and stuffed
	data := make([]byte, 1+AddressSize, 1+AddressSize+len(body)+2)
	data[0] = uint8(len(body))
	binary.LittleEndian.PutUint64(data[1:], address)
	data = append(data, body...)

	crc := CalculateCRC(data)
	data = append(data, byte(crc>>8), byte(crc))

	out := make([]byte, 0, len(data)*2+2)
	out = append(out, StartByte)
	out = append(out, StuffBytes(data)...)
	out = append(out, EndByte)
	return out, nil
}

// StuffBytes escapes every START, END and ESC byte as ESC, b^EscXor
func StuffBytes(data []byte) []byte {
	out := make([]byte, 0, len(data)*2)
	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			out = append(out, EscByte, b^EscXor)
		} else {
			out = append(out, b)
		}
	}
	return out
}

// UnstuffBytes reverses StuffBytes
func UnstuffBytes(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data))
	escapeNext := false
	for _, b := range data {
		switch {
		case escapeNext:
			out = append(out, b^EscXor)
			escapeNext = false
		case b == EscByte:
			escapeNext = true
		default:
			out = append(out, b)
		}
	}
	if escapeNext {
		return nil, fmt.Errorf("%w: incomplete escape sequence at end of data", ErrFraming)
	}
	return out, nil
}
