// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

import (
	"fmt"
	"sync"
	"time"
)

// Clock provides monotonic time relative to an arbitrary origin
type Clock interface {
	Now() time.Duration
}

// TimerHandle identifies a scheduled callback
type TimerHandle uint64

// Scheduler runs callbacks once after a delay. Callbacks may run on any
// goroutine; the Remote re-serializes them onto its loop.
type Scheduler interface {
	ScheduleOnce(delay time.Duration, fn func()) (TimerHandle, error)
	Cancel(h TimerHandle)
}

// HoldTimer drives the repeat tick. It never repeats on its own: the session
// re-arms it after every tick, so stopping is a single Cancel.
type HoldTimer struct {
	sched      Scheduler
	handle     TimerHandle
	armed      bool
	generation uint64
}

// NewHoldTimer wraps a scheduler
func NewHoldTimer(s Scheduler) *HoldTimer {
	return &HoldTimer{sched: s}
}

// Arm schedules fn once after interval, replacing any pending arm. fn
// receives the generation of this arm; compare it with Generation to discard
// ticks that raced a Cancel.
func (h *HoldTimer) Arm(interval time.Duration, fn func(generation uint64)) error {
	h.Cancel()

	gen := h.generation
	handle, err := h.sched.ScheduleOnce(interval, func() { fn(gen) })
	if err != nil {
		return fmt.Errorf("arm hold timer: %w", err)
	}
	h.handle = handle
	h.armed = true
	return nil
}

// Cancel cancels the pending arm, if any
func (h *HoldTimer) Cancel() {
	if h.armed {
		h.sched.Cancel(h.handle)
		h.armed = false
	}
	h.generation++
}

// Fired marks the current arm as consumed. Returns false if gen is stale.
func (h *HoldTimer) Fired(gen uint64) bool {
	if gen != h.generation || !h.armed {
		return false
	}
	h.armed = false
	return true
}

// Armed reports whether a tick is pending
func (h *HoldTimer) Armed() bool {
	return h.armed
}

// Generation returns the current arm generation
func (h *HoldTimer) Generation() uint64 {
	return h.generation
}

// SystemClock reads the monotonic clock relative to its creation
type SystemClock struct {
	start time.Time
}

// NewSystemClock starts a clock at zero
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Now returns the time since the clock was created
func (c *SystemClock) Now() time.Duration {
	return time.Since(c.start)
}

// TimerScheduler schedules callbacks on runtime timers
type TimerScheduler struct {
	mu     sync.Mutex
	next   TimerHandle
	timers map[TimerHandle]*time.Timer
}

// NewTimerScheduler creates an empty scheduler
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[TimerHandle]*time.Timer)}
}

// ScheduleOnce implements Scheduler
func (s *TimerScheduler) ScheduleOnce(delay time.Duration, fn func()) (TimerHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	h := s.next
	s.timers[h] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		_, live := s.timers[h]
		delete(s.timers, h)
		s.mu.Unlock()
		if live {
			fn()
		}
	})
	return h, nil
}

// Cancel implements Scheduler
func (s *TimerScheduler) Cancel(h TimerHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[h]; ok {
		t.Stop()
		delete(s.timers, h)
	}
}

// Pending returns the number of scheduled callbacks
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// StopAll cancels every pending callback
func (s *TimerScheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h, t := range s.timers {
		t.Stop()
		delete(s.timers, h)
	}
}
