// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// VirtualClock is a manually advanced Clock and Scheduler. Callbacks fire in
// due-time order, ties in scheduling order, from inside Advance.
type VirtualClock struct {
	mu      sync.Mutex
	now     time.Duration
	seq     uint64
	next    TimerHandle
	pending map[TimerHandle]*virtualTimer

	// MaxPending limits outstanding callbacks; zero means unlimited.
	// Exceeding it fails ScheduleOnce with ErrSchedulerExhausted.
	MaxPending int

	// OnFire runs after every fired callback, with Now at its due time.
	OnFire func()
}

type virtualTimer struct {
	due time.Duration
	seq uint64
	fn  func()
}

// NewVirtualClock creates a clock at zero
func NewVirtualClock() *VirtualClock {
	return &VirtualClock{pending: make(map[TimerHandle]*virtualTimer)}
}

// Now implements Clock
func (c *VirtualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// ScheduleOnce implements Scheduler
func (c *VirtualClock) ScheduleOnce(delay time.Duration, fn func()) (TimerHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.MaxPending > 0 && len(c.pending) >= c.MaxPending {
		return 0, fmt.Errorf("%w: %d callbacks pending", ErrSchedulerExhausted, len(c.pending))
	}
	if delay < 0 {
		delay = 0
	}
	c.next++
	c.seq++
	c.pending[c.next] = &virtualTimer{due: c.now + delay, seq: c.seq, fn: fn}
	return c.next, nil
}

// Cancel implements Scheduler
func (c *VirtualClock) Cancel(h TimerHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, h)
}

// Pending returns the number of outstanding callbacks
func (c *VirtualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Advance moves time forward by d, firing everything that falls due
func (c *VirtualClock) Advance(d time.Duration) {
	c.AdvanceTo(c.Now() + d)
}

// AdvanceTo moves time forward to t, firing everything due at or before t.
// Moving backwards is a no-op.
func (c *VirtualClock) AdvanceTo(t time.Duration) {
	for {
		c.mu.Lock()
		h, timer := c.earliestLocked()
		if timer == nil || timer.due > t {
			if t > c.now {
				c.now = t
			}
			c.mu.Unlock()
			return
		}
		delete(c.pending, h)
		if timer.due > c.now {
			c.now = timer.due
		}
		c.mu.Unlock()

		timer.fn()
		if c.OnFire != nil {
			c.OnFire()
		}
	}
}

func (c *VirtualClock) earliestLocked() (TimerHandle, *virtualTimer) {
	if len(c.pending) == 0 {
		return 0, nil
	}
	handles := make([]TimerHandle, 0, len(c.pending))
	for h := range c.pending {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool {
		a, b := c.pending[handles[i]], c.pending[handles[j]]
		if a.due != b.due {
			return a.due < b.due
		}
		return a.seq < b.seq
	})
	return handles[0], c.pending[handles[0]]
}
