// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radiolink

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/dimmerswitch/pkg/dimmer"
)

// Statistics tracks frame counts and error rates on a link
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames     uint64
	ValidFrames     uint64
	CRCErrors       uint64
	FramingErrors   uint64
	MalformedBodies uint64
	ButtonEvents    uint64
	InvalidPayloads uint64
	TxDone          uint64
	TxFailed        uint64
	LinkStates      uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records one decode result
func (s *Statistics) Update(f *Frame, decodeErr error) {
	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		if errors.Is(decodeErr, ErrCRCMismatch) {
			s.CRCErrors++
		} else {
			s.FramingErrors++
		}
		return
	}
	if f.ParseError() != nil {
		s.MalformedBodies++
		return
	}

	switch f.Type() {
	case MsgButtonEvent:
		s.ButtonEvents++
		payload, _, err := f.ButtonEvent()
		if err == nil {
			_, err = dimmer.ParseWirePayload(uint64(payload))
		}
		if err != nil {
			s.InvalidPayloads++
			return
		}
	case MsgTxDone:
		s.TxDone++
		if _, status, err := f.TxDone(); err != nil || status != TxStatusOK {
			s.TxFailed++
		}
	case MsgLinkState:
		s.LinkStates++
	}
	s.ValidFrames++
}

// Errors returns the total number of error frames
func (s *Statistics) Errors() uint64 {
	return s.CRCErrors + s.FramingErrors + s.MalformedBodies + s.InvalidPayloads
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	percent := func(n uint64) float64 {
		if s.TotalFrames == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, percent(s.ValidFrames))
	result += fmt.Sprintf("Button Events:   %8d\n", s.ButtonEvents)
	result += fmt.Sprintf("TX Done:         %8d (%d failed)\n", s.TxDone, s.TxFailed)

	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", s.CRCErrors, percent(s.CRCErrors))
	}
	if s.FramingErrors > 0 {
		result += fmt.Sprintf("Framing Errors:  %8d (%.1f%%)\n", s.FramingErrors, percent(s.FramingErrors))
	}
	if s.MalformedBodies > 0 {
		result += fmt.Sprintf("Malformed:       %8d (%.1f%%)\n", s.MalformedBodies, percent(s.MalformedBodies))
	}
	if s.InvalidPayloads > 0 {
		result += fmt.Sprintf("Bad Payloads:    %8d (%.1f%%)\n", s.InvalidPayloads, percent(s.InvalidPayloads))
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.2f errors/sec\n", s.ErrorRate)
	return result
}
