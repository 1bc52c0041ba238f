// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dimmerswitch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
  file: /tmp/dimmer.log
link:
  port: /dev/ttyACM0
  ack_timeout: 250ms
remote:
  initial_event: true
  join_gate: true
metrics:
  addr: ":9102"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/dimmer.log", cfg.Log.File)
	assert.Equal(t, "/dev/ttyACM0", cfg.Link.Port)
	assert.Equal(t, 115200, cfg.Link.Baud, "unset keys keep defaults")
	assert.Equal(t, 250*time.Millisecond, cfg.Link.AckTimeout)
	assert.True(t, cfg.Remote.InitialEvent)
	assert.True(t, cfg.Remote.JoinGate)
	assert.Equal(t, 30*time.Millisecond, cfg.Remote.LoopbackLatency)
	assert.Equal(t, ":9102", cfg.Metrics.Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParse_EmptyDocument(t *testing.T) {
	cfg := Default()
	require.NoError(t, Parse(nil, &cfg))
	assert.Equal(t, Default(), cfg)
}

func TestParse_UnknownKey(t *testing.T) {
	cfg := Default()
	assert.Error(t, Parse([]byte("remote:\n  long_press: 2s\n"), &cfg))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"port and url", func(c *Config) { c.Link.Port = "/dev/ttyUSB0"; c.Link.URL = "ws://radio/ws" }},
		{"zero baud", func(c *Config) { c.Link.Baud = 0 }},
		{"negative ack timeout", func(c *Config) { c.Link.AckTimeout = -time.Second }},
		{"negative latency", func(c *Config) { c.Remote.LoopbackLatency = -time.Millisecond }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}
