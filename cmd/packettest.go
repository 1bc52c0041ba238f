// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/dimmerswitch/pkg/radiolink"
)

var (
	packetTestTimeout int
	packetTestPing    bool
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid link frame",
	Long: `Wait for a valid link frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any valid
host link frame. It ignores invalid bytes and waits for a complete, valid
frame (passing CRC check). With --ping a PING_REQUEST is sent first so a
quiet radio has something to answer.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for testing connectivity to the radio coprocessor.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
	packetTestCmd.Flags().BoolVar(&packetTestPing, "ping", true, "Send PING_REQUEST before waiting")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection(cfg.Link)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Dimmerswitch - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid link frame...\n\n")

	if packetTestPing {
		frame, err := radiolink.NewEncoder(radiolink.AddressBroadcast).PingRequest()
		if err == nil {
			_, err = conn.Write(frame)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
			os.Exit(2)
		}
	}

	frameChan := make(chan *radiolink.Frame, 1)
	errChan := make(chan error, 1)

	go func() {
		f, skipped, err := waitForFrame(conn)
		if err != nil {
			errChan <- err
			return
		}
		if skipped > 0 {
			fmt.Printf("(skipped %d invalid frames before sync)\n", skipped)
		}
		frameChan <- f
	}()

	select {
	case f := <-frameChan:
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Type: %s (0x%02X)\n", radiolink.FormatMessageType(f.Type()), f.Type())
		fmt.Printf("  Address: 0x%016X\n", f.Address())
		fmt.Printf("  Length: %d bytes\n", f.Length())
		fmt.Printf("  CRC: 0x%04X\n", f.CRC())
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(packetTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", packetTestTimeout)
		os.Exit(1)
	}

	return nil
}

// waitForFrame reads until one frame passes the CRC check, counting the
// decode errors seen before it.
func waitForFrame(r io.Reader) (*radiolink.Frame, int, error) {
	dec := radiolink.NewDecoder()
	buf := make([]byte, 128)
	skipped := 0
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			f, derr := dec.DecodeByte(b)
			if derr != nil {
				skipped++
				continue
			}
			if f != nil {
				return f, skipped, nil
			}
		}
		if err != nil {
			return nil, skipped, err
		}
	}
}
