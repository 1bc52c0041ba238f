// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/dimmerswitch/internal/log"
	"github.com/Thermoquad/dimmerswitch/internal/script"
)

var (
	simScriptPath   string
	simSteps        string
	simLatency      time.Duration
	simUntil        time.Duration
	simInitialEvent bool
	simJoinGate     bool
	simRecordPath   string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a press/release timeline on a virtual clock",
	Long: `Replay a scripted sequence of button presses and releases against the
remote state machine on a virtual clock, and print every event it produces.

The timeline comes from a YAML file (--script) or an inline list (--steps):

  dimmerswitch simulate --steps "press on@0, release on@1200ms"
  dimmerswitch simulate --steps "press up@0, release up@3s" --latency 1s

Step syntax is <action> [button]@<time>, where action is press, release,
join or leave and button is on, off, up or down (or 0-3). A bare time is in
milliseconds.

Transmissions complete after --latency, so a slow latency shows hold repeats
being dropped while the single transmit buffer is busy. No hardware is
needed. --record saves the trace as YAML.`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVarP(&simScriptPath, "script", "s", "", "YAML timeline file")
	simulateCmd.Flags().StringVar(&simSteps, "steps", "", "Inline timeline, e.g. \"press on@0, release on@1200\"")
	simulateCmd.Flags().DurationVar(&simLatency, "latency", 0, "Transmission completion delay (default from config)")
	simulateCmd.Flags().DurationVar(&simUntil, "until", 0, "Run time after the last step (default 2s)")
	simulateCmd.Flags().BoolVar(&simInitialEvent, "initial-event", false, "Send an initial event on press")
	simulateCmd.Flags().BoolVar(&simJoinGate, "join-gate", false, "Ignore presses until a join step")
	simulateCmd.Flags().StringVar(&simRecordPath, "record", "", "Write the trace to a YAML file")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	s, err := buildScript(cmd)
	if err != nil {
		return err
	}

	logger := log.WithComponent("simulate")
	res := script.Simulate(s, logger)

	fmt.Printf("Dimmerswitch - Simulation\n")
	fmt.Printf("Latency: %s, initial event: %t, join gate: %t\n\n", s.Latency, s.InitialEvent, s.JoinGate)

	for _, e := range res.Trace {
		fmt.Println(e.String())
	}

	fmt.Printf("\n%d events sent, final state %s\n", len(res.Sent), res.Final)

	if simRecordPath != "" {
		if err := script.WriteRecord(simRecordPath, res); err != nil {
			return err
		}
		fmt.Printf("Trace written to %s\n", simRecordPath)
	}
	if res.Err != nil {
		return fmt.Errorf("remote stopped: %w", res.Err)
	}
	return nil
}

// buildScript merges the script source with flag and config overrides
func buildScript(cmd *cobra.Command) (script.Script, error) {
	var s script.Script
	switch {
	case simScriptPath != "" && simSteps != "":
		return s, errors.New("--script and --steps are mutually exclusive")

	case simScriptPath != "":
		loaded, err := script.Load(simScriptPath)
		if err != nil {
			return s, err
		}
		s = loaded

	case simSteps != "":
		steps, err := script.ParseSteps(simSteps)
		if err != nil {
			return s, err
		}
		s = script.Script{
			Latency:      cfg.Remote.LoopbackLatency,
			InitialEvent: cfg.Remote.InitialEvent,
			JoinGate:     cfg.Remote.JoinGate,
			Steps:        steps,
		}

	default:
		return s, errors.New("either --script or --steps must be specified")
	}

	flags := cmd.Flags()
	if flags.Changed("latency") {
		s.Latency = simLatency
	}
	if flags.Changed("until") {
		s.Until = simUntil
	}
	if flags.Changed("initial-event") {
		s.InitialEvent = simInitialEvent
	}
	if flags.Changed("join-gate") {
		s.JoinGate = simJoinGate
	}
	if s.Latency < 0 {
		return s, fmt.Errorf("latency must not be negative, got %s", s.Latency)
	}
	return s, nil
}
