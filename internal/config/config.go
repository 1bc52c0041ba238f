// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the dimmerswitch YAML configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned by Validate
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete configuration file
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Link    LinkConfig    `yaml:"link"`
	Remote  RemoteConfig  `yaml:"remote"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LogConfig selects log level and destination
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"` // TUI log file; empty discards
}

// LinkConfig selects how the radio coprocessor is reached
type LinkConfig struct {
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	URL         string        `yaml:"url"`
	Username    string        `yaml:"username"`
	NoSSLVerify bool          `yaml:"no_ssl_verify"`
	AckTimeout  time.Duration `yaml:"ack_timeout"`
}

// RemoteConfig tunes the button state machine
type RemoteConfig struct {
	InitialEvent    bool          `yaml:"initial_event"`
	JoinGate        bool          `yaml:"join_gate"`
	LoopbackLatency time.Duration `yaml:"loopback_latency"`
}

// MetricsConfig enables the Prometheus endpoint
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Link: LinkConfig{
			Baud:       115200,
			Username:   "admin",
			AckTimeout: 500 * time.Millisecond,
		},
		Remote: RemoteConfig{
			LoopbackLatency: 30 * time.Millisecond,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, rejecting unknown keys, and validates it
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return cfg.Validate()
}

// Validate checks value ranges and mutually exclusive settings
func (c Config) Validate() error {
	if c.Link.Port != "" && c.Link.URL != "" {
		return fmt.Errorf("%w: link.port and link.url are mutually exclusive", ErrInvalid)
	}
	if c.Link.Baud <= 0 {
		return fmt.Errorf("%w: link.baud must be positive, got %d", ErrInvalid, c.Link.Baud)
	}
	if c.Link.AckTimeout < 0 {
		return fmt.Errorf("%w: link.ack_timeout must not be negative", ErrInvalid)
	}
	if c.Remote.LoopbackLatency < 0 {
		return fmt.Errorf("%w: remote.loopback_latency must not be negative", ErrInvalid)
	}
	return nil
}
