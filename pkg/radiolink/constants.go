// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package radiolink implements the host link between the remote and the
// radio coprocessor that puts button events on air.
//
// Frames are byte stuffed and CRC protected:
//
//	START | length | address (8, LE) | CBOR body | CRC (2, BE) | END
//
// The CBOR body is a two element array [msg_type, field_map].
package radiolink

// Framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Frame size limits
const (
	MaxFrameSize = 128 // 14 overhead + 114 body
	MaxBodySize  = 114
	AddressSize  = 8
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// AddressBroadcast addresses every radio on the link
const AddressBroadcast = 0x0000000000000000

// Message types - Host → Radio 0x20-0x2F
const (
	MsgPingRequest = 0x2F
)

// Message types - Button traffic 0x30-0x3F
const (
	MsgButtonEvent  = 0x30 // host → radio
	MsgTxDone       = 0x31 // radio → host
	MsgLinkState    = 0x32 // radio → host
	MsgPingResponse = 0x3F // radio → host
)

// Field keys
const (
	fieldPayload = 0 // BUTTON_EVENT
	fieldSeq     = 1 // BUTTON_EVENT, TX_DONE
	fieldAckSeq  = 0 // TX_DONE
	fieldStatus  = 1 // TX_DONE
	fieldJoined  = 0 // LINK_STATE
	fieldUptime  = 0 // PING_RESPONSE
)

// TxStatus is the radio's verdict on a BUTTON_EVENT
type TxStatus uint8

// Transmission status values
const (
	TxStatusOK      TxStatus = 0x00
	TxStatusNoRoute TxStatus = 0x01
	TxStatusNoAck   TxStatus = 0x02
	TxStatusBusy    TxStatus = 0x03
)

func (s TxStatus) String() string {
	switch s {
	case TxStatusOK:
		return "OK"
	case TxStatusNoRoute:
		return "NO_ROUTE"
	case TxStatusNoAck:
		return "NO_ACK"
	case TxStatusBusy:
		return "BUSY"
	default:
		return "UNKNOWN"
	}
}

// Decoder states (internal)
const (
	stateIdle = iota
	stateLength
	stateAddress
	stateBody
	stateCRC1
	stateCRC2
	stateEnd
)
