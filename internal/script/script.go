// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package script parses and runs scripted button timelines against a
// simulated remote.
package script

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/dimmerswitch/pkg/dimmer"
)

// ErrSyntax is returned for malformed steps
var ErrSyntax = errors.New("script syntax error")

// Action is what a step does
type Action string

// Step actions
const (
	ActionPress   Action = "press"
	ActionRelease Action = "release"
	ActionJoin    Action = "join"
	ActionLeave   Action = "leave"
)

// Step is one timed input
type Step struct {
	At     time.Duration
	Action Action
	Button dimmer.ButtonID // press and release only
}

func (s Step) String() string {
	switch s.Action {
	case ActionPress, ActionRelease:
		return fmt.Sprintf("%s %s@%s", s.Action, s.Button, s.At)
	default:
		return fmt.Sprintf("%s@%s", s.Action, s.At)
	}
}

// Script is a complete timeline
type Script struct {
	Latency      time.Duration // transport completion delay
	InitialEvent bool
	JoinGate     bool
	Until        time.Duration // run time after the last step; zero picks a default
	Steps        []Step
}

type fileStep struct {
	At      string `yaml:"at"`
	Press   string `yaml:"press"`
	Release string `yaml:"release"`
	Join    *bool  `yaml:"join"`
}

type file struct {
	Latency      string     `yaml:"latency"`
	InitialEvent bool       `yaml:"initial_event"`
	JoinGate     bool       `yaml:"join_gate"`
	Until        string     `yaml:"until"`
	Steps        []fileStep `yaml:"steps"`
}

// Load reads a YAML script file
func Load(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("read script: %w", err)
	}
	s, err := Decode(data)
	if err != nil {
		return Script{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Decode parses a YAML script
func Decode(data []byte) (Script, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return Script{}, fmt.Errorf("%w: %v", ErrSyntax, err)
	}

	var s Script
	var err error
	if s.Latency, err = optionalDuration(f.Latency); err != nil {
		return Script{}, err
	}
	if s.Until, err = optionalDuration(f.Until); err != nil {
		return Script{}, err
	}
	s.InitialEvent = f.InitialEvent
	s.JoinGate = f.JoinGate

	for i, fs := range f.Steps {
		at, err := ParseTime(fs.At)
		if err != nil {
			return Script{}, fmt.Errorf("step %d: %w", i+1, err)
		}

		set := 0
		step := Step{At: at}
		if fs.Press != "" {
			set++
			step.Action = ActionPress
			step.Button, err = dimmer.ParseButtonID(fs.Press)
		}
		if fs.Release != "" {
			set++
			step.Action = ActionRelease
			step.Button, err = dimmer.ParseButtonID(fs.Release)
		}
		if fs.Join != nil {
			set++
			step.Action = ActionLeave
			if *fs.Join {
				step.Action = ActionJoin
			}
		}
		if err != nil {
			return Script{}, fmt.Errorf("step %d: %w", i+1, err)
		}
		if set != 1 {
			return Script{}, fmt.Errorf("%w: step %d needs exactly one of press, release or join", ErrSyntax, i+1)
		}
		s.Steps = append(s.Steps, step)
	}
	return s, nil
}

// ParseSteps parses the inline form "press on@0, release on@1200ms, join@2s"
func ParseSteps(inline string) ([]Step, error) {
	var steps []Step
	for _, item := range strings.Split(inline, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		what, when, ok := strings.Cut(item, "@")
		if !ok {
			return nil, fmt.Errorf("%w: %q has no @time", ErrSyntax, item)
		}
		at, err := ParseTime(when)
		if err != nil {
			return nil, err
		}

		fields := strings.Fields(what)
		if len(fields) == 0 {
			return nil, fmt.Errorf("%w: %q has no action", ErrSyntax, item)
		}
		step := Step{At: at, Action: Action(strings.ToLower(fields[0]))}
		switch step.Action {
		case ActionPress, ActionRelease:
			if len(fields) != 2 {
				return nil, fmt.Errorf("%w: %q needs a button", ErrSyntax, item)
			}
			if step.Button, err = dimmer.ParseButtonID(fields[1]); err != nil {
				return nil, err
			}
		case ActionJoin, ActionLeave:
			if len(fields) != 1 {
				return nil, fmt.Errorf("%w: %q takes no argument", ErrSyntax, item)
			}
		default:
			return nil, fmt.Errorf("%w: unknown action %q", ErrSyntax, fields[0])
		}
		steps = append(steps, step)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: no steps", ErrSyntax)
	}
	return steps, nil
}

// ParseTime parses a step time. Bare numbers are milliseconds.
func ParseTime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: missing time", ErrSyntax)
	}
	var d time.Duration
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		d = time.Duration(n) * time.Millisecond
	} else if d, err = time.ParseDuration(s); err != nil {
		return 0, fmt.Errorf("%w: bad time %q", ErrSyntax, s)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: negative time %q", ErrSyntax, s)
	}
	return d, nil
}

func optionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return ParseTime(s)
}

// sortSteps orders steps by time, keeping file order for ties
func sortSteps(steps []Step) []Step {
	out := append([]Step(nil), steps...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].At < out[j].At })
	return out
}
