// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package script

import (
	"fmt"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// Record is the YAML form of a simulation result
type Record struct {
	Latency      string        `yaml:"latency"`
	InitialEvent bool          `yaml:"initial_event"`
	JoinGate     bool          `yaml:"join_gate"`
	Sent         int           `yaml:"sent"`
	Final        string        `yaml:"final"`
	Error        string        `yaml:"error,omitempty"`
	Trace        []RecordEntry `yaml:"trace"`
}

// RecordEntry is one trace line of a Record
type RecordEntry struct {
	At      string    `yaml:"at"`
	Kind    EntryKind `yaml:"kind"`
	Event   string    `yaml:"event,omitempty"`
	Token   string    `yaml:"token,omitempty"`
	Payload string    `yaml:"payload,omitempty"`
	Detail  string    `yaml:"detail,omitempty"`
}

// NewRecord converts a simulation result for writing
func NewRecord(res Result) Record {
	rec := Record{
		Latency:      res.Config.Latency.String(),
		InitialEvent: res.Config.InitialEvent,
		JoinGate:     res.Config.JoinGate,
		Sent:         len(res.Sent),
		Final:        res.Final.String(),
		Trace:        make([]RecordEntry, 0, len(res.Trace)),
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}

	for _, e := range res.Trace {
		re := RecordEntry{At: e.At.String(), Kind: e.Kind, Detail: e.Detail}
		switch e.Kind {
		case EntrySent:
			re.Event = e.Event.String()
			re.Token = e.Event.Token().String()
			re.Payload = e.Payload.String()
		case EntryDropped:
			re.Event = e.Event.String()
		}
		rec.Trace = append(rec.Trace, re)
	}
	return rec
}

// WriteRecord atomically replaces path with the YAML record of res
func WriteRecord(path string, res Result) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending record file: %w", err)
	}
	defer func() {
		// No-op once the file has been committed
		_ = pending.Cleanup()
	}()

	enc := yaml.NewEncoder(pending)
	enc.SetIndent(2)
	if err := enc.Encode(NewRecord(res)); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
