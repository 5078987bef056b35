// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// hbridge - Dual H-Bridge Motor Drive
//
// Runs two DC motors from a text command stream with start pulses, braked
// direction changes and a deadman timeout, and ships tools to drive,
// monitor and simulate it.

package main

import (
	"os"

	"github.com/Thermoquad/hbridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
