// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Thermoquad/dimmerswitch/pkg/dimmer"
	"github.com/Thermoquad/dimmerswitch/pkg/radiolink"
)

// startReceiver runs a receiver on one end of a pipe and returns the other
// end plus a channel that yields run's result
func startReceiver(t *testing.T, ctx context.Context, setup func(*receiver)) (net.Conn, *receiver, *bytes.Buffer, <-chan error) {
	t.Helper()
	host, radio := net.Pipe()
	out := &bytes.Buffer{}
	r := newReceiver(radio, out, zerolog.Nop())
	if setup != nil {
		setup(r)
	}

	done := make(chan error, 1)
	go func() { done <- r.run(ctx, 0) }()
	return host, r, out, done
}

func readFrame(t *testing.T, conn net.Conn) *radiolink.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	f, _, err := waitForFrame(conn)
	require.NoError(t, err)
	return f
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("receiver did not stop")
		return nil
	}
}

func write(t *testing.T, conn net.Conn, frame []byte) {
	t.Helper()
	_, err := conn.Write(frame)
	require.NoError(t, err)
}

// ============================================================================
// Receiver
// ============================================================================

func TestReceiver_AcknowledgesButtonEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	host, r, out, done := startReceiver(t, context.Background(), func(r *receiver) {
		r.ack = true
		r.status = radiolink.TxStatusBusy
	})
	enc := radiolink.NewEncoder(radiolink.AddressBroadcast)

	frame, err := enc.ButtonEvent(dimmer.BuildWirePayload(dimmer.ButtonLevelUp, dimmer.KindRepeat, 8), 7)
	require.NoError(t, err)
	write(t, host, frame)

	f := readFrame(t, host)
	seq, status, err := f.TxDone()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), seq)
	assert.Equal(t, radiolink.TxStatusBusy, status)

	host.Close()
	require.NoError(t, waitDone(t, done))

	assert.Contains(t, out.String(), "BUTTON_EVENT")
	assert.Contains(t, out.String(), "LEVEL_UP REPEAT 0.8s")

	stats := r.snapshot()
	assert.Equal(t, uint64(1), stats.ButtonEvents)
	assert.Equal(t, uint64(1), stats.ValidFrames)
}

func TestReceiver_NoAckByDefault(t *testing.T) {
	defer goleak.VerifyNone(t)

	host, _, _, done := startReceiver(t, context.Background(), nil)
	enc := radiolink.NewEncoder(radiolink.AddressBroadcast)

	event, err := enc.ButtonEvent(dimmer.BuildWirePayload(dimmer.ButtonOn, dimmer.KindShortRelease, 1), 1)
	require.NoError(t, err)
	ping, err := enc.PingRequest()
	require.NoError(t, err)
	write(t, host, event)
	write(t, host, ping)

	// The ping answer is the first thing to come back
	f := readFrame(t, host)
	assert.Equal(t, uint8(radiolink.MsgPingResponse), f.Type())

	host.Close()
	require.NoError(t, waitDone(t, done))
}

func TestReceiver_ReportsDecodeErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	host, r, out, done := startReceiver(t, context.Background(), nil)

	frame, err := radiolink.NewEncoder(radiolink.AddressBroadcast).LinkState(true)
	require.NoError(t, err)
	frame[2] ^= 0x01 // first address byte, never a special byte after the flip
	write(t, host, frame)

	host.Close()
	require.NoError(t, waitDone(t, done))

	assert.Contains(t, out.String(), "[ERROR]")
	assert.Equal(t, uint64(1), r.snapshot().CRCErrors)
}

func TestReceiver_ReportsAnomalies(t *testing.T) {
	defer goleak.VerifyNone(t)

	host, _, out, done := startReceiver(t, context.Background(), nil)

	frame, err := radiolink.NewEncoder(radiolink.AddressBroadcast).
		ButtonEvent(dimmer.BuildWirePayload(dimmer.ButtonOff, dimmer.KindInitial, 3), 2)
	require.NoError(t, err)
	write(t, host, frame)

	host.Close()
	require.NoError(t, waitDone(t, done))

	assert.Contains(t, out.String(), "[ANOMALY] DURATION")
}

func TestReceiver_Announce(t *testing.T) {
	defer goleak.VerifyNone(t)

	host, r, _, done := startReceiver(t, context.Background(), nil)

	errCh := make(chan error, 1)
	go func() { errCh <- r.announce(true) }()

	f := readFrame(t, host)
	joined, err := f.LinkState()
	require.NoError(t, err)
	assert.True(t, joined)
	require.NoError(t, <-errCh)

	host.Close()
	require.NoError(t, waitDone(t, done))
}

func TestReceiver_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	host, _, _, done := startReceiver(t, ctx, nil)
	defer host.Close()

	cancel()
	require.NoError(t, waitDone(t, done))
}

// deadConn reads EOF and fails to close, like a link dropped by the peer
type deadConn struct {
	io.Reader
	io.Writer
}

func (deadConn) Close() error { return errors.New("connection already closed") }

func TestReceiver_EOFWithFailingClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := newReceiver(deadConn{bytes.NewReader(nil), io.Discard}, io.Discard, zerolog.Nop())
	assert.NoError(t, r.run(context.Background(), 0))
}

// ============================================================================
// Flags
// ============================================================================

func TestParseTxStatus(t *testing.T) {
	tests := []struct {
		name    string
		want    radiolink.TxStatus
		wantErr bool
	}{
		{"ok", radiolink.TxStatusOK, false},
		{"OK", radiolink.TxStatusOK, false},
		{"no_route", radiolink.TxStatusNoRoute, false},
		{"no_ack", radiolink.TxStatusNoAck, false},
		{"busy", radiolink.TxStatusBusy, false},
		{"lost", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTxStatus(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWaitForFrame_CountsSkipped(t *testing.T) {
	enc := radiolink.NewEncoder(radiolink.AddressBroadcast)
	bad, err := enc.PingRequest()
	require.NoError(t, err)
	bad[2] ^= 0x01
	good, err := enc.LinkState(false)
	require.NoError(t, err)

	stream := append([]byte{0x00, 0x55}, bad...)
	stream = append(stream, good...)

	f, skipped, err := waitForFrame(bytes.NewReader(stream))
	require.NoError(t, err)
	assert.Equal(t, uint8(radiolink.MsgLinkState), f.Type())
	assert.Equal(t, 1, skipped)
}
