// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package motor

import (
	"fmt"
	"strings"
)

// Pin identifies a physical output. Backends interpret the name: periph
// uses names like "GPIO12", go-rpio uses BCM numbers, the recorder accepts
// any label.
type Pin string

// PinIO is the set of pin primitives an output driver needs.
// Writes are fire-and-forget; backends log their own failures.
type PinIO interface {
	ConfigureOutput(pin Pin) error
	DigitalWrite(pin Pin, high bool)
	AnalogWrite(pin Pin, duty uint8)
}

// Wiring names the three control lines of one H-bridge channel
type Wiring struct {
	IN1 Pin // reverse selector
	IN2 Pin // forward selector
	EN  Pin // enable
}

// Validate checks that all pins are named and distinct
func (w Wiring) Validate() error {
	if w.IN1 == "" || w.IN2 == "" || w.EN == "" {
		return fmt.Errorf("wiring needs IN1, IN2 and EN pins, got %+v", w)
	}
	if w.IN1 == w.IN2 || w.IN1 == w.EN || w.IN2 == w.EN {
		return fmt.Errorf("wiring pins must be distinct, got %+v", w)
	}
	return nil
}

// OutputDriver applies electrical states to one H-bridge channel.
// Every call is an immediate, idempotent write.
type OutputDriver interface {
	// Brake shorts the motor terminals for electrical braking
	Brake()
	// Coast de-energizes the bridge and lets the motor freewheel
	Coast()
	// Drive energizes the bridge in dir at magnitude (0..max duty)
	Drive(dir Direction, magnitude int)
}

// Variant selects an H-bridge wiring convention
type Variant string

// Supported driver variants
const (
	// VariantEnablePWM holds the direction pins and modulates enable (L298)
	VariantEnablePWM Variant = "enable-pwm"
	// VariantDirectionPWM switches enable and modulates the active
	// direction pin (DBH-1)
	VariantDirectionPWM Variant = "direction-pwm"
)

// ParseVariant accepts a variant name or a chip alias (l298, dbh1)
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(VariantEnablePWM), "l298", "l298n":
		return VariantEnablePWM, nil
	case string(VariantDirectionPWM), "dbh1", "dbh-1":
		return VariantDirectionPWM, nil
	default:
		return "", fmt.Errorf("unknown driver variant %q (use enable-pwm/l298 or direction-pwm/dbh1)", s)
	}
}

// Preset returns the controller defaults for the chip family
func (v Variant) Preset() Config {
	if v == VariantDirectionPWM {
		return DBH1Config()
	}
	return L298Config()
}

// NewDriver builds the output driver for a variant
func NewDriver(v Variant, io PinIO, w Wiring, maxDuty int) (OutputDriver, error) {
	switch v {
	case VariantEnablePWM:
		return NewEnablePWMDriver(io, w, maxDuty)
	case VariantDirectionPWM:
		return NewDirectionPWMDriver(io, w, maxDuty)
	default:
		return nil, fmt.Errorf("unknown driver variant %q", v)
	}
}

// configurePins prepares the wiring as outputs with enable driven low first
func configurePins(io PinIO, w Wiring) error {
	if io == nil {
		return fmt.Errorf("nil pin backend")
	}
	if err := w.Validate(); err != nil {
		return err
	}
	if err := io.ConfigureOutput(w.EN); err != nil {
		return fmt.Errorf("failed to configure EN pin %s: %w", w.EN, err)
	}
	io.DigitalWrite(w.EN, false)
	for _, p := range []Pin{w.IN1, w.IN2} {
		if err := io.ConfigureOutput(p); err != nil {
			return fmt.Errorf("failed to configure pin %s: %w", p, err)
		}
		io.DigitalWrite(p, false)
	}
	return nil
}

// clampDuty limits a magnitude to what the driver can represent
func clampDuty(magnitude, maxDuty int) uint8 {
	if magnitude < 0 {
		magnitude = -magnitude
	}
	if magnitude > maxDuty {
		magnitude = maxDuty
	}
	return uint8(magnitude)
}

func normalizeMaxDuty(maxDuty int) int {
	if maxDuty <= 0 || maxDuty > MaxDuty {
		return MaxDuty
	}
	return maxDuty
}

// EnablePWMDriver drives bridges that take PWM on the enable pin.
//
//	IN1=1, IN2=0, EN=PWM  reverse
//	IN1=0, IN2=1, EN=PWM  forward
//	IN1=0, IN2=0, EN=1    electrical brake
//	IN1=X, IN2=X, EN=0    coast
type EnablePWMDriver struct {
	io      PinIO
	pins    Wiring
	maxDuty int
}

// NewEnablePWMDriver configures the wiring and returns the driver
func NewEnablePWMDriver(io PinIO, w Wiring, maxDuty int) (*EnablePWMDriver, error) {
	if err := configurePins(io, w); err != nil {
		return nil, err
	}
	return &EnablePWMDriver{io: io, pins: w, maxDuty: normalizeMaxDuty(maxDuty)}, nil
}

// Wiring returns the pins owned by the driver
func (d *EnablePWMDriver) Wiring() Wiring {
	return d.pins
}

func (d *EnablePWMDriver) Brake() {
	d.io.DigitalWrite(d.pins.EN, false)
	d.io.DigitalWrite(d.pins.IN1, false)
	d.io.DigitalWrite(d.pins.IN2, false)
	d.io.DigitalWrite(d.pins.EN, true)
}

func (d *EnablePWMDriver) Coast() {
	d.io.DigitalWrite(d.pins.EN, false)
}

func (d *EnablePWMDriver) Drive(dir Direction, magnitude int) {
	// IN1=IN2=1 is harmless on these chips but does nothing useful
	if dir == Reverse {
		d.io.DigitalWrite(d.pins.IN2, false)
		d.io.DigitalWrite(d.pins.IN1, true)
	} else {
		d.io.DigitalWrite(d.pins.IN1, false)
		d.io.DigitalWrite(d.pins.IN2, true)
	}
	d.io.AnalogWrite(d.pins.EN, clampDuty(magnitude, d.maxDuty))
}

// DirectionPWMDriver drives bridges with a digital enable and PWM on the
// active direction input. The inactive direction pin is held low.
//
//	IN1=PWM, IN2=0, EN=1  reverse
//	IN1=0, IN2=PWM, EN=1  forward
//	IN1=0, IN2=0, EN=1    electrical brake
//	IN1=X, IN2=X, EN=0    coast
type DirectionPWMDriver struct {
	io      PinIO
	pins    Wiring
	maxDuty int
}

// NewDirectionPWMDriver configures the wiring and returns the driver
func NewDirectionPWMDriver(io PinIO, w Wiring, maxDuty int) (*DirectionPWMDriver, error) {
	if err := configurePins(io, w); err != nil {
		return nil, err
	}
	return &DirectionPWMDriver{io: io, pins: w, maxDuty: normalizeMaxDuty(maxDuty)}, nil
}

// Wiring returns the pins owned by the driver
func (d *DirectionPWMDriver) Wiring() Wiring {
	return d.pins
}

func (d *DirectionPWMDriver) Brake() {
	d.io.AnalogWrite(d.pins.IN1, 0)
	d.io.AnalogWrite(d.pins.IN2, 0)
	d.io.DigitalWrite(d.pins.EN, true)
}

func (d *DirectionPWMDriver) Coast() {
	d.io.DigitalWrite(d.pins.EN, false)
}

func (d *DirectionPWMDriver) Drive(dir Direction, magnitude int) {
	active, inactive := d.pins.IN2, d.pins.IN1
	if dir == Reverse {
		active, inactive = d.pins.IN1, d.pins.IN2
	}
	d.io.DigitalWrite(inactive, false)
	d.io.AnalogWrite(active, clampDuty(magnitude, d.maxDuty))
	d.io.DigitalWrite(d.pins.EN, true)
}
