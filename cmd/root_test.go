// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/dimmerswitch/internal/config"
)

// resetSettings restores the package state commands mutate
func resetSettings(t *testing.T) {
	t.Cleanup(func() {
		cfg = config.Default()
		configPath = ""
		simScriptPath = ""
		simSteps = ""
		rootCmd.SetArgs(nil)
	})
}

func TestSimulateCommand_InlineSteps(t *testing.T) {
	resetSettings(t)

	rootCmd.SetArgs([]string{"simulate", "--steps", "press on@0, release on@1200ms"})
	require.NoError(t, rootCmd.Execute())
}

func TestSimulateCommand_ConfigFile(t *testing.T) {
	resetSettings(t)

	path := filepath.Join(t.TempDir(), "dimmerswitch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("remote:\n  loopback_latency: 1s\n  initial_event: true\n"), 0o644))

	rootCmd.SetArgs([]string{"simulate", "--config", path, "--steps", "press up@0, release up@3s"})
	require.NoError(t, rootCmd.Execute())

	assert.Equal(t, time.Second, cfg.Remote.LoopbackLatency)
	assert.True(t, cfg.Remote.InitialEvent)
}

func TestSimulateCommand_Record(t *testing.T) {
	resetSettings(t)

	path := filepath.Join(t.TempDir(), "trace.yaml")
	rootCmd.SetArgs([]string{"simulate", "--steps", "press down@0, release down@900", "--record", path})
	require.NoError(t, rootCmd.Execute())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "LEVEL_DOWN REPEAT 0.8s")
}

func TestRootCommand_RejectsBadConfig(t *testing.T) {
	resetSettings(t)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("remote:\n  repeat_rate: 2\n"), 0o644))

	rootCmd.SetArgs([]string{"simulate", "--config", path, "--steps", "press on@0"})
	assert.Error(t, rootCmd.Execute())
}

func TestBuildScript(t *testing.T) {
	t.Run("steps use configured remote settings", func(t *testing.T) {
		resetSettings(t)
		cfg.Remote.LoopbackLatency = 250 * time.Millisecond
		cfg.Remote.JoinGate = true
		simSteps = "join@0, press off@10, release off@100"

		s, err := buildScript(simulateCmd)
		require.NoError(t, err)
		assert.Equal(t, 250*time.Millisecond, s.Latency)
		assert.True(t, s.JoinGate)
		assert.Len(t, s.Steps, 3)
	})

	t.Run("script and steps are exclusive", func(t *testing.T) {
		resetSettings(t)
		simScriptPath = "timeline.yaml"
		simSteps = "press on@0"

		_, err := buildScript(simulateCmd)
		assert.Error(t, err)
	})

	t.Run("no timeline", func(t *testing.T) {
		resetSettings(t)

		_, err := buildScript(simulateCmd)
		assert.Error(t, err)
	})

	t.Run("bad steps", func(t *testing.T) {
		resetSettings(t)
		simSteps = "hold on@0"

		_, err := buildScript(simulateCmd)
		assert.Error(t, err)
	})
}
