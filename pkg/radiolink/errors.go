// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radiolink

import "errors"

// Decode errors
var (
	ErrCRCMismatch   = errors.New("CRC mismatch")
	ErrFraming       = errors.New("framing error")
	ErrInvalidLength = errors.New("invalid body length")
	ErrBodyTooLarge  = errors.New("CBOR body too large")
	ErrMalformedBody = errors.New("malformed CBOR body")
	ErrMissingField  = errors.New("missing field")
	ErrUnexpectedMsg = errors.New("unexpected message type")
)

// Transport errors. ErrAckTimeout and ErrTxFailed are only ever passed to a
// transmission's completion callback.
var (
	ErrAckTimeout = errors.New("no TX_DONE before timeout")
	ErrTxFailed   = errors.New("radio reported transmit failure")
	ErrLinkClosed = errors.New("link closed")
)
