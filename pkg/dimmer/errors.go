// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

import "errors"

// Codec errors
var (
	ErrInvalidButton = errors.New("invalid button id")
	ErrInvalidKind   = errors.New("invalid transition kind")
	ErrBadMarker     = errors.New("wire payload marker mismatch")
	ErrReservedBits  = errors.New("wire payload reserved bytes not zero")
	ErrPayloadLength = errors.New("wire payload must be 8 bytes")
)

// Runtime errors. ErrSchedulerExhausted and ErrTransportExhausted are
// resource exhaustion reported by the host and are always fatal.
var (
	ErrSchedulerExhausted = errors.New("scheduler exhausted")
	ErrTransportExhausted = errors.New("transport buffer exhausted")
	ErrFatal              = errors.New("remote stopped on fatal error")
	ErrStopped            = errors.New("remote not running")
)
