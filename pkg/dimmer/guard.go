// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

// Guard admits at most one outbound buffer at a time. It only gates access
// to the transport; it does not own the transport.
//
// A refused acquire is a drop, not a queue entry: the caller skips the
// emission and nothing is retried.
type Guard struct {
	busy bool
}

// TryAcquire claims the buffer if it is free. It returns false without any
// mutation when a transmission is already in flight.
func (g *Guard) TryAcquire() bool {
	if g.busy {
		return false
	}
	g.busy = true
	return true
}

// Release frees the buffer. Only the transmission completion path calls it.
func (g *Guard) Release() {
	g.busy = false
}

// Busy reports whether a transmission is in flight
func (g *Guard) Busy() bool {
	return g.busy
}
