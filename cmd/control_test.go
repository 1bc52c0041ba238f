// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Thermoquad/dimmerswitch/pkg/dimmer"
	"github.com/Thermoquad/dimmerswitch/pkg/radiolink"
)

// fakeRemote records what the TUI asks of the remote
type fakeRemote struct {
	presses  []dimmer.ButtonID
	releases []dimmer.ButtonID
	joins    []bool
	snap     dimmer.Snapshot
}

func (f *fakeRemote) Press(id dimmer.ButtonID)   { f.presses = append(f.presses, id) }
func (f *fakeRemote) Release(id dimmer.ButtonID) { f.releases = append(f.releases, id) }
func (f *fakeRemote) SetJoined(joined bool)      { f.joins = append(f.joins, joined) }
func (f *fakeRemote) Snapshot() dimmer.Snapshot  { return f.snap }

type fakeLink struct {
	pings int
	err   error
	stats radiolink.Statistics
}

func (f *fakeLink) Stats() (radiolink.Statistics, bool) { return f.stats, true }

func (f *fakeLink) Ping() error {
	f.pings++
	return f.err
}

func runeKey(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// send feeds msgs through Update in order
func send(m controlModel, msgs ...tea.Msg) controlModel {
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(controlModel)
	}
	return m
}

// ============================================================================
// Keys
// ============================================================================

func TestControlModel_ButtonKeysToggle(t *testing.T) {
	remote := &fakeRemote{}
	m := initialControlModel(remote, "test", nil)

	m = send(m, runeKey("1"), runeKey("3"), runeKey("1"))

	assert.Equal(t, []dimmer.ButtonID{dimmer.ButtonOn, dimmer.ButtonLevelUp}, remote.presses)
	assert.Equal(t, []dimmer.ButtonID{dimmer.ButtonOn}, remote.releases)
	assert.True(t, m.held[dimmer.ButtonLevelUp])
	assert.False(t, m.held[dimmer.ButtonOn])
}

func TestControlModel_SpaceReleasesAll(t *testing.T) {
	remote := &fakeRemote{}
	m := initialControlModel(remote, "test", nil)

	m = send(m, runeKey("2"), runeKey("4"), tea.KeyMsg{Type: tea.KeySpace})

	assert.ElementsMatch(t, []dimmer.ButtonID{dimmer.ButtonOff, dimmer.ButtonLevelDown}, remote.releases)
	for i := range m.held {
		assert.False(t, m.held[i])
	}
}

func TestControlModel_JoinToggles(t *testing.T) {
	remote := &fakeRemote{}
	m := initialControlModel(remote, "test", nil)

	m = send(m, runeKey("j"), runeKey("j"))

	assert.Equal(t, []bool{true, false}, remote.joins)
	assert.False(t, m.joined)
	require.Len(t, m.eventLog, 2)
	assert.Equal(t, "Network left", m.eventLog[1].message)
}

func TestControlModel_Ping(t *testing.T) {
	t.Run("loopback", func(t *testing.T) {
		m := initialControlModel(&fakeRemote{}, "test", nil)
		m = send(m, runeKey("p"))
		require.Len(t, m.eventLog, 1)
		assert.True(t, m.eventLog[0].isError)
	})

	t.Run("link", func(t *testing.T) {
		link := &fakeLink{}
		m := initialControlModel(&fakeRemote{}, "test", link)
		m = send(m, runeKey("p"))
		assert.Equal(t, 1, link.pings)
		assert.False(t, m.eventLog[0].isError)
	})

	t.Run("link down", func(t *testing.T) {
		link := &fakeLink{err: radiolink.ErrLinkClosed}
		m := initialControlModel(&fakeRemote{}, "test", link)
		m = send(m, runeKey("p"))
		assert.True(t, m.eventLog[0].isError)
	})
}

func TestControlModel_Quit(t *testing.T) {
	m := initialControlModel(&fakeRemote{}, "test", nil)
	next, cmd := m.Update(runeKey("q"))
	require.NotNil(t, cmd)
	assert.True(t, next.(controlModel).quitting)
	assert.Equal(t, "Shutting down...\n", next.View())
}

func TestControlModel_InputIgnoredAfterFatal(t *testing.T) {
	remote := &fakeRemote{}
	m := initialControlModel(remote, "test", nil)

	m = send(m, remoteStoppedMsg{err: dimmer.ErrFatal}, runeKey("1"))

	assert.Empty(t, remote.presses)
	assert.Contains(t, m.View(), "REMOTE STOPPED")
}

// ============================================================================
// Remote Events
// ============================================================================

func TestControlModel_ProcessesBatches(t *testing.T) {
	remote := &fakeRemote{}
	m := initialControlModel(remote, "test", nil)

	repeat := dimmer.Event{Button: dimmer.ButtonLevelUp, Kind: dimmer.KindRepeat, Duration: 8}
	remote.snap = dimmer.Snapshot{
		Session: dimmer.Session{Active: true, Button: dimmer.ButtonLevelUp},
		Busy:    true,
	}

	m = send(m, controlBatchMsg{events: []remoteEventMsg{
		{kind: eventSent, event: repeat, payload: repeat.Payload()},
		{kind: eventDropped, event: repeat},
		{kind: edgeIgnored, edge: dimmer.Edge{Button: dimmer.ButtonOn, Pressed: true}, reason: dimmer.IgnoreSessionActive},
		{kind: transmitCompleted},
		{kind: transmitCompleted, err: radiolink.ErrAckTimeout},
		{kind: sessionFinished, button: dimmer.ButtonLevelUp},
	}})

	assert.Equal(t, uint64(1), m.sent)
	assert.Equal(t, uint64(1), m.dropped)
	assert.Equal(t, uint64(1), m.ignored)
	assert.Equal(t, uint64(1), m.failed)
	assert.Equal(t, uint64(1), m.sessions)
	require.NotNil(t, m.lastEvent)
	assert.Equal(t, repeat, m.lastEvent.event)
	assert.Len(t, m.eventLog, 5)

	// The snapshot is refreshed with the batch
	assert.True(t, m.snapshot.Busy)
	view := m.View()
	assert.Contains(t, view, "LEVEL_UP HELD")
	assert.Contains(t, view, "in flight")
}

func TestControlModel_LogIsBounded(t *testing.T) {
	m := initialControlModel(&fakeRemote{}, "test", nil)
	for i := 0; i < maxLogEntries+10; i++ {
		m.addLogEntry("entry", false)
	}
	assert.Len(t, m.eventLog, maxLogEntries)
}

func TestControlModel_ConnectionMessages(t *testing.T) {
	link := &fakeLink{stats: radiolink.Statistics{TotalFrames: 42}}
	m := initialControlModel(&fakeRemote{}, "Serial: /dev/ttyUSB0 @ 115200 baud", link)

	m = send(m, runeKey("j"), connectionLostMsg{err: errors.New("eof")})
	assert.True(t, m.connectionLost)
	assert.False(t, m.joined)
	assert.Contains(t, m.View(), "RECONNECTING")

	m = send(m, reconnectedMsg{connInfo: "Serial: /dev/ttyUSB1 @ 115200 baud"}, controlTickMsg(time.Now()))
	assert.False(t, m.connectionLost)
	assert.True(t, m.hasLinkStats)
	assert.Equal(t, uint64(42), m.linkStats.TotalFrames)
	assert.Contains(t, m.View(), "/dev/ttyUSB1")
}

func TestTuiObserver_NeverBlocks(t *testing.T) {
	ch := make(chan remoteEventMsg, 1)
	obs := tuiObserver{out: ch}

	ev := dimmer.Event{Button: dimmer.ButtonOn, Kind: dimmer.KindShortRelease, Duration: 1}
	obs.EventSent(ev, ev.Payload())
	obs.EventDropped(ev)
	obs.TransmitCompleted(nil)

	require.Len(t, ch, 1)
	got := <-ch
	assert.Equal(t, eventSent, got.kind)
	assert.False(t, got.at.IsZero())
}

func TestForwardEvents_Batches(t *testing.T) {
	defer goleak.VerifyNone(t)

	events := make(chan remoteEventMsg, 8)
	for i := 0; i < 3; i++ {
		events <- remoteEventMsg{kind: eventSent}
	}

	var mu sync.Mutex
	var batches []controlBatchMsg
	sendFn := func(msg tea.Msg) {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, msg.(controlBatchMsg))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		forwardEvents(ctx, events, sendFn)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	assert.Len(t, batches[0].events, 3)
}

// ============================================================================
// Link Management
// ============================================================================

// ackRadio answers every button event on conn with TX_DONE OK
func ackRadio(conn net.Conn) {
	enc := radiolink.NewEncoder(radiolink.AddressBroadcast)
	dec := radiolink.NewDecoder()
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		frames, _ := dec.Decode(buf[:n])
		for _, f := range frames {
			if f.Type() != radiolink.MsgButtonEvent {
				continue
			}
			_, seq, ferr := f.ButtonEvent()
			if ferr != nil {
				continue
			}
			frame, _ := enc.TxDone(seq, radiolink.TxStatusOK)
			if _, werr := conn.Write(frame); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func transmitAndWait(t *testing.T, tr dimmer.Transport) error {
	t.Helper()
	done := make(chan error, 1)
	payload := dimmer.BuildWirePayload(dimmer.ButtonOn, dimmer.KindShortRelease, 1)
	require.NoError(t, tr.Transmit(payload, func(err error) { done <- err }))

	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("transmission never completed")
		return nil
	}
}

func TestLinkManager_DisconnectedCompletesWithError(t *testing.T) {
	lm := &linkManager{log: zerolog.Nop()}

	err := transmitAndWait(t, lm)
	assert.ErrorIs(t, err, radiolink.ErrLinkClosed)

	_, ok := lm.Stats()
	assert.False(t, ok)
	assert.ErrorIs(t, lm.Ping(), radiolink.ErrLinkClosed)
}

func TestLinkManager_Reconnects(t *testing.T) {
	defer goleak.VerifyNone(t)

	host1, far1 := net.Pipe()
	host2, far2 := net.Pipe()
	go ackRadio(far1)
	go ackRadio(far2)
	defer far2.Close()

	dials := 0
	msgs := make(chan tea.Msg, 8)
	joined := make(chan bool, 8)

	lm := &linkManager{
		dial: func() (Connection, string, error) {
			dials++
			if dials == 1 {
				return nil, "", errors.New("radio still rebooting")
			}
			return host2, "pipe 2", nil
		},
		opts:           []radiolink.LinkOption{radiolink.WithAckTimeout(time.Second)},
		log:            zerolog.Nop(),
		notify:         func(msg tea.Msg) { msgs <- msg },
		onJoined:       func(j bool) { joined <- j },
		initialBackoff: 5 * time.Millisecond,
		maxBackoff:     10 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lm.run(ctx, host1) }()

	require.Eventually(t, func() bool {
		_, ok := lm.Stats()
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, transmitAndWait(t, lm))

	// LINK_STATE from the radio reaches the join handler
	frame, err := radiolink.NewEncoder(radiolink.AddressBroadcast).LinkState(true)
	require.NoError(t, err)
	_, err = far1.Write(frame)
	require.NoError(t, err)
	assert.True(t, <-joined)

	// The radio hangs up: the manager reports it and reconnects
	far1.Close()
	lost := <-msgs
	assert.IsType(t, connectionLostMsg{}, lost)
	assert.False(t, <-joined)

	back := <-msgs
	require.IsType(t, reconnectedMsg{}, back)
	assert.Equal(t, "pipe 2", back.(reconnectedMsg).connInfo)
	assert.Equal(t, 2, dials)

	require.Eventually(t, func() bool {
		_, ok := lm.Stats()
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, transmitAndWait(t, lm))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
}
