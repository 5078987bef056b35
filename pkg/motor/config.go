// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package motor

import (
	"fmt"
)

// Config holds the timing and PWM limits of one motor controller.
// All durations are in milliseconds of the tick source.
type Config struct {
	DeadTime         int     // deadman timeout while running
	StartupTime      int     // full-power kick when starting from rest
	SettleTime       int     // braked pause before a restart or reversal
	StopTime         int     // extra lockout added by an emergency stop
	MaxPWM           int     // magnitude clamp
	MinPWM           int     // magnitudes below this are treated as zero
	Decel            float64 // advisory stopping estimate, ms per PWM count
	DiagnosticBudget int     // verbose messages before going quiet
	TickModulus      uint32  // wrap period of the tick source, 0 means 2^32
}

// DefaultConfig returns the L298 defaults
func DefaultConfig() Config {
	return L298Config()
}

// L298Config returns defaults for L298-style bridges with PWM on enable
func L298Config() Config {
	return Config{
		DeadTime:         DefaultDeadTime,
		StartupTime:      DefaultStartupTime,
		SettleTime:       DefaultSettleTime,
		StopTime:         DefaultStopTime,
		MaxPWM:           MaxDuty,
		MinPWM:           0,
		Decel:            DefaultDecel,
		DiagnosticBudget: DefaultDiagnosticBudget,
	}
}

// DBH1Config returns defaults for DBH-1 series bridges. The chip only
// accepts up to 99% duty and the motors stall below 9 counts.
func DBH1Config() Config {
	return Config{
		DeadTime:         250,
		StartupTime:      5,
		SettleTime:       DefaultSettleTime,
		StopTime:         DefaultStopTime,
		MaxPWM:           252,
		MinPWM:           9,
		Decel:            DefaultDecel,
		DiagnosticBudget: DefaultDiagnosticBudget,
	}
}

// Horizon returns the longest lead the controller can ever schedule a
// deadline ahead of the current tick.
func (c Config) Horizon() int {
	h := c.DeadTime
	if c.StartupTime > h {
		h = c.StartupTime
	}
	if s := c.SettleTime + c.StopTime; s > h {
		h = s
	}
	return h
}

// Validate checks that the configuration describes a usable controller
func (c Config) Validate() error {
	if c.DeadTime <= 0 {
		return fmt.Errorf("dead time must be positive, got %d", c.DeadTime)
	}
	if c.StartupTime < 0 {
		return fmt.Errorf("startup time must not be negative, got %d", c.StartupTime)
	}
	if c.SettleTime < 0 {
		return fmt.Errorf("settle time must not be negative, got %d", c.SettleTime)
	}
	if c.StopTime < 0 {
		return fmt.Errorf("stop time must not be negative, got %d", c.StopTime)
	}
	if c.MaxPWM < 1 || c.MaxPWM > MaxDuty {
		return fmt.Errorf("max PWM must be in 1..%d, got %d", MaxDuty, c.MaxPWM)
	}
	if c.MinPWM < 0 || c.MinPWM > c.MaxPWM {
		return fmt.Errorf("min PWM must be in 0..%d, got %d", c.MaxPWM, c.MinPWM)
	}
	if c.Decel < 0 {
		return fmt.Errorf("decel must not be negative, got %.2f", c.Decel)
	}
	if c.DiagnosticBudget < 0 {
		return fmt.Errorf("diagnostic budget must not be negative, got %d", c.DiagnosticBudget)
	}

	// Deadlines are compared modulo the tick period, so the longest lead
	// must stay well inside half of it.
	modulus := newTickMath(c.TickModulus).modulus
	if uint64(c.Horizon()) > modulus/4 {
		return fmt.Errorf("timing horizon %d ms does not fit tick modulus %d", c.Horizon(), modulus)
	}
	return nil
}

// String summarizes the configuration on one line
func (c Config) String() string {
	return fmt.Sprintf("deadman %dms, start pulse %dms, settle %dms, stop lockout %dms, PWM %d..%d, decel %.2fms/count",
		c.DeadTime, c.StartupTime, c.SettleTime, c.StopTime, c.MinPWM, c.MaxPWM, c.Decel)
}
