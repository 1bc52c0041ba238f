// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radiolink

import (
	"fmt"
	"time"

	"github.com/Thermoquad/dimmerswitch/pkg/dimmer"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	timestamp := f.timestamp.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s (0x%02X) addr=%016X len=%d\n",
		timestamp, FormatMessageType(f.Type()), f.Type(), f.address, f.Length())

	if err := f.ParseError(); err != nil {
		return result + fmt.Sprintf("  (unparseable body: %v)\n", err)
	}
	return result + FormatFields(f)
}

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(msgType uint8) string {
	switch msgType {
	case MsgPingRequest:
		return "PING_REQUEST"
	case MsgButtonEvent:
		return "BUTTON_EVENT"
	case MsgTxDone:
		return "TX_DONE"
	case MsgLinkState:
		return "LINK_STATE"
	case MsgPingResponse:
		return "PING_RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// FormatFields formats a frame's fields based on its message type
func FormatFields(f *Frame) string {
	switch f.Type() {
	case MsgPingRequest:
		return "  (no payload)\n"

	case MsgButtonEvent:
		payload, seq, err := f.ButtonEvent()
		if err != nil {
			return fmt.Sprintf("  (%v)\n", err)
		}
		ev, err := dimmer.ParseWirePayload(uint64(payload))
		if err != nil {
			return fmt.Sprintf("  Seq: %d, Payload: %s (invalid: %v)\n", seq, payload, err)
		}
		return fmt.Sprintf("  Seq: %d, Payload: %s, Event: %s\n", seq, payload, ev)

	case MsgTxDone:
		seq, status, err := f.TxDone()
		if err != nil {
			return fmt.Sprintf("  (%v)\n", err)
		}
		return fmt.Sprintf("  Seq: %d, Status: %s (%d)\n", seq, status, status)

	case MsgLinkState:
		joined, err := f.LinkState()
		if err != nil {
			return fmt.Sprintf("  (%v)\n", err)
		}
		if joined {
			return "  Network: Joined\n"
		}
		return "  Network: Not joined\n"

	case MsgPingResponse:
		uptime, _ := f.Fields().Uint(fieldUptime)
		return fmt.Sprintf("  Uptime: %s\n", time.Duration(uptime)*time.Millisecond)

	default:
		return fmt.Sprintf("  Fields: %v\n", f.Fields())
	}
}
