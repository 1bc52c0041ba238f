// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radiolink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/dimmerswitch/pkg/dimmer"
)

// MaxInFlight bounds the BUTTON_EVENTs waiting for TX_DONE
const MaxInFlight = 8

// writeQueueSize bounds the frames waiting for the writer goroutine
const writeQueueSize = MaxInFlight * 2

// LinkTransport sends button events to the radio over a byte stream and
// completes each one when the matching TX_DONE arrives. It implements
// dimmer.Transport.
type LinkTransport struct {
	rw         io.ReadWriter
	enc        *Encoder
	ackTimeout time.Duration
	log        zerolog.Logger
	started    time.Time

	onLinkState func(joined bool)
	onFrame     func(f *Frame, err error)

	queue chan outFrame

	mu      sync.Mutex
	seq     uint32
	pending map[uint32]*pendingTx
	stats   *Statistics
	closed  bool
}

type pendingTx struct {
	done  func(error)
	timer *time.Timer
}

// outFrame is a frame waiting for the writer. complete is set for button
// events that finish on write rather than on TX_DONE.
type outFrame struct {
	frame    []byte
	seq      uint32
	complete func(error)
}

// LinkOption configures a LinkTransport
type LinkOption func(*LinkTransport)

// WithAckTimeout sets how long to wait for TX_DONE. Zero completes every
// transmission as soon as the frame is written.
func WithAckTimeout(d time.Duration) LinkOption {
	return func(t *LinkTransport) { t.ackTimeout = d }
}

// WithAddress sets the radio address frames are sent to
func WithAddress(address uint64) LinkOption {
	return func(t *LinkTransport) { t.enc = NewEncoder(address) }
}

// WithLinkLogger sets the logger
func WithLinkLogger(l zerolog.Logger) LinkOption {
	return func(t *LinkTransport) { t.log = l }
}

// WithLinkStateHandler is called from Run for every LINK_STATE frame
func WithLinkStateHandler(fn func(joined bool)) LinkOption {
	return func(t *LinkTransport) { t.onLinkState = fn }
}

// WithFrameHandler is called from Run for every decode result
func WithFrameHandler(fn func(f *Frame, err error)) LinkOption {
	return func(t *LinkTransport) { t.onFrame = fn }
}

// NewLinkTransport creates a transport over rw. Call Run to process
// incoming frames; nothing is written until Run starts.
func NewLinkTransport(rw io.ReadWriter, opts ...LinkOption) *LinkTransport {
	t := &LinkTransport{
		rw:      rw,
		enc:     NewEncoder(AddressBroadcast),
		log:     zerolog.Nop(),
		started: time.Now(),
		pending: make(map[uint32]*pendingTx),
		stats:   NewStatistics(),
		queue:   make(chan outFrame, writeQueueSize),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transmit implements dimmer.Transport. It never blocks on the connection:
// the frame is queued for the writer goroutine started by Run. A write
// failure is reported through onComplete; only a full in-flight table or
// write queue is a synchronous error.
func (t *LinkTransport) Transmit(payload dimmer.WirePayload, onComplete func(error)) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		onComplete(ErrLinkClosed)
		return nil
	}
	if len(t.pending) >= MaxInFlight {
		n := len(t.pending)
		t.mu.Unlock()
		return fmt.Errorf("%w: %d frames awaiting TX_DONE", dimmer.ErrTransportExhausted, n)
	}

	seq := t.seq + 1
	frame, err := t.enc.ButtonEvent(payload, seq)
	if err != nil {
		t.mu.Unlock()
		t.log.Warn().Err(err).Uint32("seq", seq).Msg("button event not encoded")
		onComplete(err)
		return nil
	}

	out := outFrame{frame: frame, seq: seq}
	if t.ackTimeout == 0 {
		out.complete = onComplete
	}
	select {
	case t.queue <- out:
	default:
		t.mu.Unlock()
		return fmt.Errorf("%w: write queue full", dimmer.ErrTransportExhausted)
	}

	t.seq = seq
	if t.ackTimeout > 0 {
		p := &pendingTx{done: onComplete}
		p.timer = time.AfterFunc(t.ackTimeout, func() { t.expire(seq) })
		t.pending[seq] = p
	}
	t.mu.Unlock()

	t.log.Debug().Uint32("seq", seq).Stringer("payload", payload).Msg("button event queued")
	return nil
}

// Ping queues a PING_REQUEST
func (t *LinkTransport) Ping() error {
	frame, err := t.enc.PingRequest()
	if err != nil {
		return err
	}
	return t.enqueue(outFrame{frame: frame})
}

// Stats returns a copy of the receive statistics
func (t *LinkTransport) Stats() Statistics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.stats
}

// Pending returns the number of transmissions awaiting TX_DONE
func (t *LinkTransport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Run writes queued frames and reads and dispatches incoming frames until
// the reader fails or ctx is done. Reads and writes are not interruptible:
// close the underlying connection to stop Run. Outstanding transmissions
// complete with ErrLinkClosed.
func (t *LinkTransport) Run(ctx context.Context) error {
	stop := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		t.writeLoop(stop)
	}()
	defer t.close(stop, writerDone)

	dec := NewDecoder()
	buf := make([]byte, 256)
	for {
		n, err := t.rw.Read(buf)
		if ctx.Err() != nil {
			return nil
		}
		for _, b := range buf[:n] {
			f, derr := dec.DecodeByte(b)
			if f != nil || derr != nil {
				t.dispatch(f, derr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("link read: %w", err)
		}
	}
}

func (t *LinkTransport) dispatch(f *Frame, err error) {
	t.mu.Lock()
	t.stats.Update(f, err)
	t.mu.Unlock()

	if t.onFrame != nil {
		t.onFrame(f, err)
	}
	if err != nil {
		t.log.Debug().Err(err).Msg("link decode error")
		return
	}
	if perr := f.ParseError(); perr != nil {
		t.log.Debug().Err(perr).Msg("link frame body")
		return
	}

	switch f.Type() {
	case MsgTxDone:
		seq, status, err := f.TxDone()
		if err != nil {
			t.log.Warn().Err(err).Msg("bad TX_DONE")
			return
		}
		p := t.take(seq)
		if p == nil {
			t.log.Debug().Uint32("seq", seq).Msg("TX_DONE for unknown sequence")
			return
		}
		if status != TxStatusOK {
			p.done(fmt.Errorf("%w: %s", ErrTxFailed, status))
			return
		}
		p.done(nil)

	case MsgLinkState:
		joined, err := f.LinkState()
		if err != nil {
			t.log.Warn().Err(err).Msg("bad LINK_STATE")
			return
		}
		t.log.Info().Bool("joined", joined).Msg("radio link state")
		if t.onLinkState != nil {
			t.onLinkState(joined)
		}

	case MsgPingRequest:
		frame, err := t.enc.PingResponse(time.Since(t.started))
		if err == nil {
			err = t.enqueue(outFrame{frame: frame})
		}
		if err != nil {
			t.log.Warn().Err(err).Msg("ping response")
		}

	case MsgPingResponse:
		uptime, _ := f.Fields().Uint(fieldUptime)
		t.log.Debug().Uint64("uptime_ms", uptime).Msg("radio ping response")
	}
}

// enqueue queues a frame that no transmission waits on
func (t *LinkTransport) enqueue(out outFrame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrLinkClosed
	}
	select {
	case t.queue <- out:
		return nil
	default:
		return fmt.Errorf("%w: write queue full", dimmer.ErrTransportExhausted)
	}
}

func (t *LinkTransport) writeLoop(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case out := <-t.queue:
			t.write(out)
		}
	}
}

func (t *LinkTransport) write(out outFrame) {
	_, err := t.rw.Write(out.frame)
	if err != nil {
		t.log.Warn().Err(err).Uint32("seq", out.seq).Msg("frame not written")
		if p := t.take(out.seq); p != nil {
			p.done(err)
		} else if out.complete != nil {
			out.complete(err)
		}
		return
	}
	if out.complete != nil {
		out.complete(nil)
	}
}

// take removes and returns the pending entry for seq, stopping its timer
func (t *LinkTransport) take(seq uint32) *pendingTx {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[seq]
	if !ok {
		return nil
	}
	delete(t.pending, seq)
	if p.timer != nil {
		p.timer.Stop()
	}
	return p
}

func (t *LinkTransport) expire(seq uint32) {
	if p := t.take(seq); p != nil {
		t.log.Warn().Uint32("seq", seq).Dur("timeout", t.ackTimeout).Msg("TX_DONE timeout")
		p.done(fmt.Errorf("%w: seq %d after %s", ErrAckTimeout, seq, t.ackTimeout))
	}
}

// close stops the writer and fails everything still queued or pending
func (t *LinkTransport) close(stop chan struct{}, writerDone <-chan struct{}) {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	close(stop)
	<-writerDone

drain:
	for {
		select {
		case out := <-t.queue:
			if out.complete != nil {
				out.complete(ErrLinkClosed)
			}
		default:
			break drain
		}
	}

	t.mu.Lock()
	pending := t.pending
	t.pending = make(map[uint32]*pendingTx)
	t.mu.Unlock()

	for _, p := range pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		p.done(ErrLinkClosed)
	}
}
