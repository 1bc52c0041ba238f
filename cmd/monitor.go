// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/dimmerswitch/internal/log"
	"github.com/Thermoquad/dimmerswitch/pkg/radiolink"
)

var (
	monitorAck      bool
	monitorStatus   string
	monitorJoin     bool
	monitorInterval time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Decode and display link frames as they arrive",
	Long: `Continuously decode and display host link frames, acting as the radio
side of the link.

Every frame is printed with timestamp, message type and decoded fields.
Button events show the button, transition kind and hold duration.

With --ack each BUTTON_EVENT is answered with TX_DONE so a remote running
against this link completes its transmissions. --status selects the status
reported (ok, no_route, no_ack, busy). --join announces a joined network with
LINK_STATE on start, and pings are answered.

Statistics are printed every --stats interval (0 disables them).

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorAck, "ack", false, "Answer button events with TX_DONE")
	monitorCmd.Flags().StringVar(&monitorStatus, "status", "ok", "TX_DONE status to report (ok, no_route, no_ack, busy)")
	monitorCmd.Flags().BoolVar(&monitorJoin, "join", false, "Send LINK_STATE joined on start")
	monitorCmd.Flags().DurationVar(&monitorInterval, "stats", 10*time.Second, "Statistics interval")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	status, err := parseTxStatus(monitorStatus)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection(cfg.Link)
	if err != nil {
		return err
	}

	fmt.Printf("Dimmerswitch - Link Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := newReceiver(conn, os.Stdout, log.WithComponent("monitor"))
	r.ack = monitorAck
	r.status = status

	if monitorJoin {
		if err := r.announce(true); err != nil {
			conn.Close()
			return err
		}
	}

	err = r.run(ctx, monitorInterval)
	stats := r.snapshot()
	fmt.Printf("\n%s", stats.String())
	return err
}

// parseTxStatus maps a --status value to a TX_DONE status
func parseTxStatus(name string) (radiolink.TxStatus, error) {
	switch strings.ToLower(name) {
	case "ok":
		return radiolink.TxStatusOK, nil
	case "no_route":
		return radiolink.TxStatusNoRoute, nil
	case "no_ack":
		return radiolink.TxStatusNoAck, nil
	case "busy":
		return radiolink.TxStatusBusy, nil
	default:
		return 0, fmt.Errorf("unknown TX_DONE status %q", name)
	}
}

// receiver plays the radio side of the link: it prints decoded frames and
// optionally acknowledges button events.
type receiver struct {
	conn   io.ReadWriteCloser
	out    io.Writer
	enc    *radiolink.Encoder
	log    zerolog.Logger
	ack    bool
	status radiolink.TxStatus

	mu      sync.Mutex
	stats   *radiolink.Statistics
	started time.Time
}

func newReceiver(conn io.ReadWriteCloser, out io.Writer, logger zerolog.Logger) *receiver {
	return &receiver{
		conn:    conn,
		out:     out,
		enc:     radiolink.NewEncoder(radiolink.AddressBroadcast),
		log:     logger,
		status:  radiolink.TxStatusOK,
		stats:   radiolink.NewStatistics(),
		started: time.Now(),
	}
}

// run reads until the connection ends or ctx is done, then closes the
// connection. Statistics are printed every interval when it is positive.
func (r *receiver) run(ctx context.Context, interval time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return r.readLoop(ctx)
	})

	// Closing unblocks readLoop. The connection may already be dead, so the
	// close error is only logged.
	g.Go(func() error {
		<-ctx.Done()
		if err := r.conn.Close(); err != nil {
			r.log.Debug().Err(err).Msg("close connection")
		}
		return nil
	})

	if interval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					s := r.snapshot()
					fmt.Fprintf(r.out, "\n%s\n", s.String())
				}
			}
		})
	}

	err := g.Wait()
	if errors.Is(err, ErrConnectionClosed) {
		return nil
	}
	return err
}

func (r *receiver) readLoop(ctx context.Context) error {
	dec := radiolink.NewDecoder()
	buf := make([]byte, 256)
	for {
		n, err := r.conn.Read(buf)
		if ctx.Err() != nil {
			return nil
		}
		for _, b := range buf[:n] {
			f, derr := dec.DecodeByte(b)
			if f != nil || derr != nil {
				r.handle(f, derr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return fmt.Errorf("link read: %w", err)
		}
	}
}

func (r *receiver) handle(f *radiolink.Frame, err error) {
	r.mu.Lock()
	r.stats.Update(f, err)
	r.mu.Unlock()

	if err != nil {
		fmt.Fprintf(r.out, "[ERROR] %v\n", err)
		return
	}
	fmt.Fprint(r.out, radiolink.FormatFrame(f))
	for _, a := range radiolink.ValidateFrame(f) {
		fmt.Fprintf(r.out, "  [ANOMALY] %s: %s\n", a.Type, a.Message)
	}

	switch f.Type() {
	case radiolink.MsgButtonEvent:
		if !r.ack {
			return
		}
		_, seq, err := f.ButtonEvent()
		if err != nil {
			r.log.Warn().Err(err).Msg("not acknowledging malformed button event")
			return
		}
		if err := r.reply(r.enc.TxDone(seq, r.status)); err != nil {
			r.log.Warn().Err(err).Uint32("seq", seq).Msg("TX_DONE")
		}

	case radiolink.MsgPingRequest:
		if err := r.reply(r.enc.PingResponse(time.Since(r.started))); err != nil {
			r.log.Warn().Err(err).Msg("ping response")
		}
	}
}

// announce sends LINK_STATE
func (r *receiver) announce(joined bool) error {
	return r.reply(r.enc.LinkState(joined))
}

func (r *receiver) reply(frame []byte, err error) error {
	if err != nil {
		return err
	}
	_, err = r.conn.Write(frame)
	return err
}

// snapshot returns a copy of the statistics with rates updated
func (r *receiver) snapshot() radiolink.Statistics {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.CalculateRates()
	return *r.stats
}
