// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radiolink

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Fields is the decoded field map of a frame body, keyed by small integers
type Fields map[int]interface{}

// ParseBody decodes a CBOR body [msg_type, field_map]. Fields is nil for a
// body with a nil map.
func ParseBody(data []byte) (uint8, Fields, error) {
	if len(data) == 0 {
		return 0, nil, fmt.Errorf("%w: empty", ErrMalformedBody)
	}

	var msg []interface{}
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if len(msg) != 2 {
		return 0, nil, fmt.Errorf("%w: expected 2-element array, got %d elements", ErrMalformedBody, len(msg))
	}

	t, ok := msg[0].(uint64)
	if !ok || t > 0xFF {
		return 0, nil, fmt.Errorf("%w: bad message type %v", ErrMalformedBody, msg[0])
	}
	if msg[1] == nil {
		return uint8(t), nil, nil
	}

	raw, ok := msg[1].(map[interface{}]interface{})
	if !ok {
		return 0, nil, fmt.Errorf("%w: expected map or nil, got %T", ErrMalformedBody, msg[1])
	}
	fields := make(Fields, len(raw))
	for key, val := range raw {
		switch k := key.(type) {
		case uint64:
			fields[int(k)] = val
		case int64:
			fields[int(k)] = val
		default:
			return 0, nil, fmt.Errorf("%w: non-integer key %T", ErrMalformedBody, key)
		}
	}
	return uint8(t), fields, nil
}

// encodeBody marshals [msg_type, fields], writing nil for an empty map
func encodeBody(msgType uint8, fields Fields) ([]byte, error) {
	var m interface{}
	if len(fields) > 0 {
		m = map[int]interface{}(fields)
	}
	return cbor.Marshal([]interface{}{uint64(msgType), m})
}

// Uint extracts an unsigned integer field
func (f Fields) Uint(key int) (uint64, bool) {
	switch v := f[key].(type) {
	case uint64:
		return v, true
	case int64:
		if v >= 0 {
			return uint64(v), true
		}
	}
	return 0, false
}

// Bool extracts a boolean field
func (f Fields) Bool(key int) (bool, bool) {
	v, ok := f[key].(bool)
	return v, ok
}

func (f Fields) mustUint(msgType uint8, key int) (uint64, error) {
	v, ok := f.Uint(key)
	if !ok {
		return 0, fmt.Errorf("%w: %s key %d", ErrMissingField, FormatMessageType(msgType), key)
	}
	return v, nil
}
