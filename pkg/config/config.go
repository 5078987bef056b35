// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads drive profiles.
//
// A profile starts from the preset of its driver variant, is overlaid by
// a YAML file and finally by HBRIDGE_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/hbridge/pkg/motor"
	"github.com/Thermoquad/hbridge/pkg/pins"
)

// EnvPrefix is prepended to every environment variable name
const EnvPrefix = "HBRIDGE_"

// Default host loop intervals
const (
	DefaultUpdateInterval = 20 * time.Millisecond
	DefaultStatusInterval = 250 * time.Millisecond
)

// Timing holds the controller settings shared by both motors
type Timing struct {
	DeadTime         int     `yaml:"dead_time" env:"DEAD_TIME"`
	StartupTime      int     `yaml:"startup_time" env:"STARTUP_TIME"`
	SettleTime       int     `yaml:"settle_time" env:"SETTLE_TIME"`
	StopTime         int     `yaml:"stop_time" env:"STOP_TIME"`
	MaxPWM           int     `yaml:"max_pwm" env:"MAX_PWM"`
	MinPWM           int     `yaml:"min_pwm" env:"MIN_PWM"`
	Decel            float64 `yaml:"decel" env:"DECEL"`
	DiagnosticBudget int     `yaml:"diagnostic_budget" env:"DIAGNOSTIC_BUDGET"`
	TickModulus      uint32  `yaml:"tick_modulus" env:"TICK_MODULUS"`
}

// Wiring names the pins of one bridge channel
type Wiring struct {
	IN1 string `yaml:"in1" env:"IN1"`
	IN2 string `yaml:"in2" env:"IN2"`
	EN  string `yaml:"en" env:"EN"`
}

// Profile is a complete drive description
type Profile struct {
	Variant        string        `yaml:"variant" env:"VARIANT"`
	Pins           string        `yaml:"pins" env:"PINS"`
	Address        uint64        `yaml:"address" env:"ADDRESS"`
	UpdateInterval time.Duration `yaml:"update_interval" env:"UPDATE_INTERVAL"`
	StatusInterval time.Duration `yaml:"status_interval" env:"STATUS_INTERVAL"`

	Timing Timing `yaml:"timing" envPrefix:"TIMING_"`
	Left   Wiring `yaml:"left" envPrefix:"LEFT_"`
	Right  Wiring `yaml:"right" envPrefix:"RIGHT_"`
}

// Default returns the L298 profile on simulated pins
func Default() Profile {
	p := Profile{
		Pins:           pins.BackendSim,
		UpdateInterval: DefaultUpdateInterval,
		StatusInterval: DefaultStatusInterval,
		Left:           Wiring{IN1: "GPIO5", IN2: "GPIO6", EN: "GPIO12"},
		Right:          Wiring{IN1: "GPIO20", IN2: "GPIO21", EN: "GPIO13"},
	}
	p.applyVariant(motor.VariantEnablePWM)
	return p
}

// applyVariant selects a variant and resets the timing to its preset
func (p *Profile) applyVariant(v motor.Variant) {
	preset := v.Preset()
	p.Variant = string(v)
	p.Timing = Timing{
		DeadTime:         preset.DeadTime,
		StartupTime:      preset.StartupTime,
		SettleTime:       preset.SettleTime,
		StopTime:         preset.StopTime,
		MaxPWM:           preset.MaxPWM,
		MinPWM:           preset.MinPWM,
		Decel:            preset.Decel,
		DiagnosticBudget: preset.DiagnosticBudget,
		TickModulus:      preset.TickModulus,
	}
}

// Load reads the profile at path (empty for none) and applies the process
// environment.
func Load(path string) (Profile, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return Profile{}, fmt.Errorf("failed to read profile: %w", err)
		}
	}
	return Parse(data, nil)
}

// Parse builds a profile from YAML data and environment variables. A nil
// environ uses the process environment.
func Parse(data []byte, environ map[string]string) (Profile, error) {
	opts := env.Options{Prefix: EnvPrefix, Environment: environ}

	// The variant picks the preset, so it is resolved before the rest
	var selector struct {
		Variant string `yaml:"variant" env:"VARIANT"`
	}
	if err := yaml.Unmarshal(data, &selector); err != nil {
		return Profile{}, fmt.Errorf("invalid profile: %w", err)
	}
	if err := env.ParseWithOptions(&selector, opts); err != nil {
		return Profile{}, fmt.Errorf("invalid environment: %w", err)
	}

	p := Default()
	if selector.Variant != "" {
		v, err := motor.ParseVariant(selector.Variant)
		if err != nil {
			return Profile{}, err
		}
		p.applyVariant(v)
	}

	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
			return Profile{}, fmt.Errorf("invalid profile: %w", err)
		}
	}
	if err := env.ParseWithOptions(&p, opts); err != nil {
		return Profile{}, fmt.Errorf("invalid environment: %w", err)
	}

	// normalize aliases such as "dbh1"
	v, err := motor.ParseVariant(p.Variant)
	if err != nil {
		return Profile{}, err
	}
	p.Variant = string(v)

	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate checks the profile can build a drive
func (p Profile) Validate() error {
	if _, err := p.MotorConfig(); err != nil {
		return err
	}
	left, right := p.Wirings()
	if err := left.Validate(); err != nil {
		return fmt.Errorf("left motor: %w", err)
	}
	if err := right.Validate(); err != nil {
		return fmt.Errorf("right motor: %w", err)
	}
	for _, a := range []motor.Pin{left.IN1, left.IN2, left.EN} {
		for _, b := range []motor.Pin{right.IN1, right.IN2, right.EN} {
			if a == b {
				return fmt.Errorf("pin %s is wired to both motors", a)
			}
		}
	}

	known := false
	for _, b := range pins.Backends {
		if p.Pins == b {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("unknown pin backend %q", p.Pins)
	}

	if p.UpdateInterval <= 0 {
		return fmt.Errorf("update interval must be positive, got %s", p.UpdateInterval)
	}
	if p.UpdateInterval >= time.Duration(p.Timing.DeadTime)*time.Millisecond {
		return fmt.Errorf("update interval %s must be shorter than the %d ms deadman", p.UpdateInterval, p.Timing.DeadTime)
	}
	if p.StatusInterval < 0 {
		return fmt.Errorf("status interval must not be negative, got %s", p.StatusInterval)
	}
	return nil
}

// DriverVariant returns the parsed variant
func (p Profile) DriverVariant() motor.Variant {
	v, err := motor.ParseVariant(p.Variant)
	if err != nil {
		return motor.VariantEnablePWM
	}
	return v
}

// MotorConfig converts the timing section to a validated controller config
func (p Profile) MotorConfig() (motor.Config, error) {
	t := p.Timing
	cfg := motor.Config{
		DeadTime:         t.DeadTime,
		StartupTime:      t.StartupTime,
		SettleTime:       t.SettleTime,
		StopTime:         t.StopTime,
		MaxPWM:           t.MaxPWM,
		MinPWM:           t.MinPWM,
		Decel:            t.Decel,
		DiagnosticBudget: t.DiagnosticBudget,
		TickModulus:      t.TickModulus,
	}
	if err := cfg.Validate(); err != nil {
		return motor.Config{}, fmt.Errorf("invalid timing: %w", err)
	}
	return cfg, nil
}

// Wirings returns the left and right motor wiring
func (p Profile) Wirings() (left, right motor.Wiring) {
	return p.Left.motor(), p.Right.motor()
}

func (w Wiring) motor() motor.Wiring {
	return motor.Wiring{IN1: motor.Pin(w.IN1), IN2: motor.Pin(w.IN2), EN: motor.Pin(w.EN)}
}

// Marshal renders the profile as YAML
func (p Profile) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
