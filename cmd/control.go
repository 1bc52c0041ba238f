// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/dimmerswitch/internal/log"
	"github.com/Thermoquad/dimmerswitch/internal/metrics"
	"github.com/Thermoquad/dimmerswitch/pkg/dimmer"
	"github.com/Thermoquad/dimmerswitch/pkg/radiolink"
)

var (
	controlMetricsAddr  string
	controlInitialEvent bool
	controlJoinGate     bool
	controlLatency      time.Duration
	controlAckTimeout   time.Duration
	controlLogFile      string
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI remote",
	Long: `Drive the dimmer remote from an interactive terminal UI.

Keys 1-4 toggle holding the ON, OFF, LEVEL UP and LEVEL DOWN buttons: the
first key press presses the button, the second releases it. While a button
is held a repeat event is sent every 800 ms, unless the previous
transmission is still in flight.

Features:
  - Live session state and transmit buffer status
  - Event log of sent, dropped and ignored events
  - Network join simulation (j) for the join gate
  - Link statistics and automatic reconnection on connection loss
  - Optional Prometheus metrics endpoint (--metrics-addr)

With --port or --url events are sent over the host link to the radio;
otherwise a loopback transport completes each transmission after --latency.

Logs are written to --log-file (or log.file in the config), never to the
terminal.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.Flags().StringVar(&controlMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9100)")
	controlCmd.Flags().BoolVar(&controlInitialEvent, "initial-event", false, "Send an initial event on press")
	controlCmd.Flags().BoolVar(&controlJoinGate, "join-gate", false, "Ignore presses until the network is joined")
	controlCmd.Flags().DurationVar(&controlLatency, "latency", 0, "Loopback completion delay (default from config)")
	controlCmd.Flags().DurationVar(&controlAckTimeout, "ack-timeout", 0, "TX_DONE timeout on the link (default from config)")
	controlCmd.Flags().StringVar(&controlLogFile, "log-file", "", "Write logs to this file")
}

// applyControlFlags merges the control flags that were set into cfg
func applyControlFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = controlMetricsAddr
	}
	if flags.Changed("initial-event") {
		cfg.Remote.InitialEvent = controlInitialEvent
	}
	if flags.Changed("join-gate") {
		cfg.Remote.JoinGate = controlJoinGate
	}
	if flags.Changed("latency") {
		cfg.Remote.LoopbackLatency = controlLatency
	}
	if flags.Changed("ack-timeout") {
		cfg.Link.AckTimeout = controlAckTimeout
	}
	if flags.Changed("log-file") {
		cfg.Log.File = controlLogFile
	}
}

func runControl(cmd *cobra.Command, args []string) error {
	applyControlFlags(cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Keep the terminal for the TUI
	logOut, err := log.OpenFile(cfg.Log.File)
	if err != nil {
		return err
	}
	defer logOut.Close()
	if err := log.Configure(log.Config{Level: cfg.Log.Level, Output: logOut}); err != nil {
		return err
	}
	logger := log.WithComponent("control")

	// Open the link before the TUI starts so password prompts and connection
	// errors reach the terminal
	var (
		dialer   *Dialer
		conn     Connection
		connInfo = fmt.Sprintf("Loopback: %s latency", cfg.Remote.LoopbackLatency)
	)
	if HasLink(cfg.Link) {
		dialer = NewDialer(cfg.Link)
		conn, connInfo, err = dialer.Open()
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	events := make(chan remoteEventMsg, eventBufferSize)
	observers := dimmer.Observers{tuiObserver{out: events}}

	var reg *prometheus.Registry
	if cfg.Metrics.Addr != "" {
		reg = prometheus.NewRegistry()
		observers = append(observers, metrics.New(reg))
	}

	scheduler := dimmer.NewTimerScheduler()
	defer scheduler.StopAll()

	var (
		transport dimmer.Transport
		links     *linkManager
		remote    *dimmer.Remote
	)
	if conn != nil {
		links = newLinkManager(dialer, logger)
		links.onJoined = func(joined bool) { remote.SetJoined(joined) }
		transport = links
	} else {
		transport = dimmer.NewDelayedTransport(scheduler, cfg.Remote.LoopbackLatency)
	}

	var opts []dimmer.Option
	if cfg.Remote.InitialEvent {
		opts = append(opts, dimmer.WithInitialEvent())
	}
	if cfg.Remote.JoinGate {
		opts = append(opts, dimmer.WithJoinGate())
	}
	remoteLog := log.WithComponent("remote")
	remote = dimmer.NewRemote(dimmer.RemoteConfig{
		Clock:     dimmer.NewSystemClock(),
		Scheduler: scheduler,
		Transport: transport,
		Observer:  observers,
		Logger:    &remoteLog,
		Options:   opts,
	})

	var lc linkControl
	if links != nil {
		lc = links
	}
	m := initialControlModel(remote, connInfo, lc)
	p := tea.NewProgram(m, tea.WithAltScreen())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := remote.Run(gctx)
		if err != nil {
			p.Send(remoteStoppedMsg{err: err})
		}
		return err
	})

	g.Go(func() error {
		forwardEvents(gctx, events, p.Send)
		return nil
	})

	if links != nil {
		links.notify = p.Send
		g.Go(func() error {
			return links.run(gctx, conn)
		})
	}

	if reg != nil {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str("addr", srv.Addr).Msg("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	_, tuiErr := p.Run()
	cancel()
	runErr := g.Wait()

	if tuiErr != nil {
		return fmt.Errorf("TUI error: %w", tuiErr)
	}
	return runErr
}

func metricsMux(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	return mux
}

//////////////////////////////////////////////////////////////
// Remote Events
//////////////////////////////////////////////////////////////

const (
	eventBufferSize = 256
	batchInterval   = 50 * time.Millisecond
)

// tuiObserver turns remote notifications into TUI messages. It runs on the
// remote loop and must not block it, so entries are dropped when the buffer
// is full.
type tuiObserver struct {
	out chan<- remoteEventMsg
}

func (o tuiObserver) emit(msg remoteEventMsg) {
	msg.at = time.Now()
	select {
	case o.out <- msg:
	default:
	}
}

func (o tuiObserver) EventSent(ev dimmer.Event, p dimmer.WirePayload) {
	o.emit(remoteEventMsg{kind: eventSent, event: ev, payload: p})
}

func (o tuiObserver) EventDropped(ev dimmer.Event) {
	o.emit(remoteEventMsg{kind: eventDropped, event: ev})
}

func (o tuiObserver) EdgeIgnored(e dimmer.Edge, reason dimmer.IgnoreReason) {
	o.emit(remoteEventMsg{kind: edgeIgnored, edge: e, reason: reason})
}

func (o tuiObserver) TransmitCompleted(err error) {
	o.emit(remoteEventMsg{kind: transmitCompleted, err: err})
}

func (o tuiObserver) SessionFinished(s dimmer.Session) {
	o.emit(remoteEventMsg{kind: sessionFinished, button: s.Button})
}

// forwardEvents sends batched events to the TUI at a fixed rate until ctx
// is done
func forwardEvents(ctx context.Context, events <-chan remoteEventMsg, send func(tea.Msg)) {
	ticker := time.NewTicker(batchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var batch controlBatchMsg

		drainLoop:
			for {
				select {
				case msg := <-events:
					batch.events = append(batch.events, msg)
				default:
					break drainLoop
				}
			}

			if len(batch.events) > 0 {
				send(batch)
			}
		}
	}
}

//////////////////////////////////////////////////////////////
// Link Management
//////////////////////////////////////////////////////////////

const (
	reconnectInitialBackoff = 1 * time.Second
	reconnectMaxBackoff     = 30 * time.Second
)

// linkManager keeps a LinkTransport attached to a live connection and
// reconnects with exponential backoff when it drops. It implements
// dimmer.Transport: while disconnected every transmission completes with
// radiolink.ErrLinkClosed.
type linkManager struct {
	dial     func() (Connection, string, error)
	opts     []radiolink.LinkOption
	log      zerolog.Logger
	notify   func(tea.Msg)
	onJoined func(joined bool)

	initialBackoff time.Duration
	maxBackoff     time.Duration

	mu      sync.RWMutex
	current *radiolink.LinkTransport
}

func newLinkManager(d *Dialer, logger zerolog.Logger) *linkManager {
	return &linkManager{
		dial: d.Open,
		opts: []radiolink.LinkOption{
			radiolink.WithAckTimeout(cfg.Link.AckTimeout),
			radiolink.WithLinkLogger(log.WithComponent("link")),
		},
		log:            logger,
		notify:         func(tea.Msg) {},
		onJoined:       func(bool) {},
		initialBackoff: reconnectInitialBackoff,
		maxBackoff:     reconnectMaxBackoff,
	}
}

// Transmit implements dimmer.Transport
func (lm *linkManager) Transmit(payload dimmer.WirePayload, onComplete func(error)) error {
	lm.mu.RLock()
	t := lm.current
	lm.mu.RUnlock()

	if t == nil {
		onComplete(radiolink.ErrLinkClosed)
		return nil
	}
	return t.Transmit(payload, onComplete)
}

// Stats returns the statistics of the current link, if connected
func (lm *linkManager) Stats() (radiolink.Statistics, bool) {
	lm.mu.RLock()
	t := lm.current
	lm.mu.RUnlock()

	if t == nil {
		return radiolink.Statistics{}, false
	}
	return t.Stats(), true
}

// Ping sends PING_REQUEST on the current link
func (lm *linkManager) Ping() error {
	lm.mu.RLock()
	t := lm.current
	lm.mu.RUnlock()

	if t == nil {
		return radiolink.ErrLinkClosed
	}
	return t.Ping()
}

// run serves conn and its replacements until ctx is done
func (lm *linkManager) run(ctx context.Context, conn Connection) error {
	for {
		opts := append([]radiolink.LinkOption{radiolink.WithLinkStateHandler(lm.onJoined)}, lm.opts...)
		t := radiolink.NewLinkTransport(conn, opts...)

		lm.mu.Lock()
		lm.current = t
		lm.mu.Unlock()

		stop := context.AfterFunc(ctx, func() { conn.Close() })
		err := t.Run(ctx)
		stop()

		lm.mu.Lock()
		lm.current = nil
		lm.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			return nil
		}

		lm.log.Warn().Err(err).Msg("link lost")
		lm.notify(connectionLostMsg{err: err})
		lm.onJoined(false)

		var connInfo string
		conn, connInfo = lm.reconnect(ctx)
		if conn == nil {
			return nil
		}
		lm.log.Info().Str("connection", connInfo).Msg("link reconnected")
		lm.notify(reconnectedMsg{connInfo: connInfo})
	}
}

// reconnect retries with exponential backoff. It returns a nil connection
// when ctx is done first.
func (lm *linkManager) reconnect(ctx context.Context) (Connection, string) {
	backoff := lm.initialBackoff

	for {
		select {
		case <-ctx.Done():
			return nil, ""
		case <-time.After(backoff):
		}

		conn, connInfo, err := lm.dial()
		if err == nil {
			return conn, connInfo
		}
		lm.log.Debug().Err(err).Dur("backoff", backoff).Msg("reconnect failed")

		backoff *= 2
		if backoff > lm.maxBackoff {
			backoff = lm.maxBackoff
		}
	}
}
