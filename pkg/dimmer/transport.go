// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

import (
	"fmt"
	"sync"
	"time"
)

// DelayedTransport completes every transmission after a fixed latency on a
// Scheduler. It stands in for a radio when none is attached.
type DelayedTransport struct {
	sched   Scheduler
	latency time.Duration

	mu   sync.Mutex
	sent []WirePayload
}

// NewDelayedTransport creates a loopback transport
func NewDelayedTransport(s Scheduler, latency time.Duration) *DelayedTransport {
	return &DelayedTransport{sched: s, latency: latency}
}

// Transmit implements Transport
func (t *DelayedTransport) Transmit(payload WirePayload, onComplete func(error)) error {
	if _, err := t.sched.ScheduleOnce(t.latency, func() { onComplete(nil) }); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportExhausted, err)
	}

	t.mu.Lock()
	t.sent = append(t.sent, payload)
	t.mu.Unlock()
	return nil
}

// Sent returns a copy of every payload accepted so far
func (t *DelayedTransport) Sent() []WirePayload {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]WirePayload, len(t.sent))
	copy(out, t.sent)
	return out
}
