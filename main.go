// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Dimmerswitch - four-button dimmer switch remote
//
// A CLI tool that turns button presses and holds into dimmer events,
// sends them over the radio host link and shows what goes over the wire.

package main

import (
	"os"

	"github.com/Thermoquad/dimmerswitch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
