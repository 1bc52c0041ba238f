// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radiolink

import (
	"fmt"
	"time"
)

// Decoder is a byte-at-a-time frame decoder. Bytes outside a frame are
// skipped; a START byte always begins a new frame.
type Decoder struct {
	state      int
	escapeNext bool
	buffer     []byte // unstuffed length + address + body
	length     int
	crc        uint16
	raw        []byte // raw bytes of the current frame including framing
}

// NewDecoder creates an idle decoder
func NewDecoder() *Decoder {
	return &Decoder{
		buffer: make([]byte, 0, MaxFrameSize),
		raw:    make([]byte, 0, MaxFrameSize*2),
	}
}

// Reset discards any partial frame
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.escapeNext = false
	d.buffer = d.buffer[:0]
	d.length = 0
	d.crc = 0
	d.raw = d.raw[:0]
}

// RawBytes returns the raw bytes accumulated for the current frame
func (d *Decoder) RawBytes() []byte {
	return d.raw
}

// Decode feeds a chunk of bytes and returns every complete frame in it.
// Decode errors do not stop decoding; they are returned alongside.
func (d *Decoder) Decode(data []byte) ([]*Frame, []error) {
	var frames []*Frame
	var errs []error
	for _, b := range data {
		f, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
		}
		if f != nil {
			frames = append(frames, f)
		}
	}
	return frames, errs
}

// DecodeByte processes one byte. It returns a frame when b completes one,
// and an error when b completes a corrupt one.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	if b == StartByte {
		d.Reset()
		d.raw = append(d.raw, b)
		d.state = stateLength
		return nil, nil
	}

	if d.escapeNext {
		d.raw = append(d.raw, b)
		d.escapeNext = false
		return nil, d.accept(b ^ EscXor)
	}

	switch b {
	case EndByte:
		if d.state == stateIdle {
			return nil, nil
		}
		d.raw = append(d.raw, b)
		return d.finish()

	case EscByte:
		if d.state == stateIdle {
			return nil, nil
		}
		d.raw = append(d.raw, b)
		d.escapeNext = true
		return nil, nil
	}

	if d.state == stateIdle {
		return nil, nil
	}
	d.raw = append(d.raw, b)
	return nil, d.accept(b)
}

// accept consumes one unstuffed data byte
func (d *Decoder) accept(b byte) error {
	switch d.state {
	case stateLength:
		if int(b) > MaxBodySize {
			d.Reset()
			return fmt.Errorf("%w: %d (max %d)", ErrInvalidLength, b, MaxBodySize)
		}
		d.length = int(b)
		d.buffer = append(d.buffer, b)
		d.state = stateAddress

	case stateAddress:
		d.buffer = append(d.buffer, b)
		if len(d.buffer) == 1+AddressSize {
			d.state = stateBody
			if d.length == 0 {
				d.state = stateCRC1
			}
		}

	case stateBody:
		d.buffer = append(d.buffer, b)
		if len(d.buffer) == 1+AddressSize+d.length {
			d.state = stateCRC1
		}

	case stateCRC1:
		d.crc = uint16(b) << 8
		d.state = stateCRC2

	case stateCRC2:
		d.crc |= uint16(b)
		d.state = stateEnd

	case stateEnd:
		d.Reset()
		return fmt.Errorf("%w: expected END after CRC", ErrFraming)
	}
	return nil
}

func (d *Decoder) finish() (*Frame, error) {
	defer d.Reset()

	if d.state != stateEnd {
		return nil, fmt.Errorf("%w: unexpected END in state %d", ErrFraming, d.state)
	}
	if calc := CalculateCRC(d.buffer); calc != d.crc {
		return nil, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRCMismatch, calc, d.crc)
	}

	var address uint64
	for i := 0; i < AddressSize; i++ {
		address |= uint64(d.buffer[1+i]) << (8 * i)
	}
	body := make([]byte, d.length)
	copy(body, d.buffer[1+AddressSize:])

	return &Frame{
		address:   address,
		body:      body,
		crc:       d.crc,
		timestamp: time.Now(),
	}, nil
}
