// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package motor implements the H-bridge motor drive state machine.
//
// A Controller turns signed speed requests into output driver calls. It
// enforces a full-power start pulse, a braked settle window before every
// restart or direction change, a deadman timeout that forces an emergency
// stop, and recovery from tick counter wraparound. The controller never
// reads a clock: every entry point takes the current Tick from the caller.
package motor

// Mode is the drive state of a single motor
type Mode uint8

// Drive modes
const (
	ModeStopped Mode = iota
	ModeForward
	ModeReverse
	ModeStartingForward
	ModeStartingReverse
	ModeStopping
)

// String returns the short mode name used in diagnostics and telemetry
func (m Mode) String() string {
	switch m {
	case ModeStopped:
		return "STOPPED"
	case ModeForward:
		return "FWD"
	case ModeReverse:
		return "REV"
	case ModeStartingForward:
		return "START_FWD"
	case ModeStartingReverse:
		return "START_REV"
	case ModeStopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

// Running reports whether the motor is energized in a direction
func (m Mode) Running() bool {
	return m == ModeForward || m == ModeReverse
}

// Starting reports whether a start pulse is in progress
func (m Mode) Starting() bool {
	return m == ModeStartingForward || m == ModeStartingReverse
}

// Direction returns the rotation sense of a starting or running mode.
// Stopped and Stopping have no direction and return DirectionNone.
func (m Mode) Direction() Direction {
	switch m {
	case ModeForward, ModeStartingForward:
		return Forward
	case ModeReverse, ModeStartingReverse:
		return Reverse
	default:
		return DirectionNone
	}
}

// Direction is the rotation sense applied by an output driver
type Direction int8

// Rotation senses
const (
	Reverse       Direction = -1
	DirectionNone Direction = 0
	Forward       Direction = 1
)

// String returns FWD, REV or NONE
func (d Direction) String() string {
	switch d {
	case Forward:
		return "FWD"
	case Reverse:
		return "REV"
	default:
		return "NONE"
	}
}

// Inverted returns the opposite rotation sense
func (d Direction) Inverted() Direction {
	return -d
}

// directionOf returns the sense encoded by the sign of a speed
func directionOf(speed int) Direction {
	switch {
	case speed > 0:
		return Forward
	case speed < 0:
		return Reverse
	default:
		return DirectionNone
	}
}

// PWM limits of an 8-bit analog output
const (
	MaxDuty = 255
)

// Default timings, in milliseconds
const (
	DefaultDeadTime         = 500
	DefaultStartupTime      = 50
	DefaultSettleTime       = 250
	DefaultStopTime         = 3000
	DefaultDecel            = 2.0
	DefaultDiagnosticBudget = 11
)
