// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package drive runs two motor controllers from a command stream.
//
// A Host owns the left and right controllers, a command tokenizer and a
// clock. Bytes from the connection are tokenized and dispatched with the
// current tick, Tick drives the timed transitions, and telemetry frames
// report status and events back on the same connection.
package drive

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/hbridge/pkg/command"
	"github.com/Thermoquad/hbridge/pkg/motor"
	"github.com/Thermoquad/hbridge/pkg/telemetry"
)

// Motor indexes
const (
	Left  = 0
	Right = 1
)

// Option customizes a Host
type Option func(*Host)

// WithLogger sends host messages to l
func WithLogger(l motor.Logger) Option {
	return func(h *Host) {
		h.logger = l
	}
}

// WithTelemetry writes status and event frames through enc
func WithTelemetry(enc *telemetry.Encoder) Option {
	return func(h *Host) {
		h.telemetry = enc
	}
}

// Host dispatches commands to a pair of controllers.
//
// It is not safe for concurrent use.
type Host struct {
	motors    [2]*motor.Controller
	clock     Clock
	tokens    command.Tokenizer
	telemetry *telemetry.Encoder
	logger    motor.Logger

	// counters last reported as events
	emergencies [2]uint32
	wraps       [2]uint32

	commands    uint64
	unsupported uint64
	streamErrs  uint64
}

// New creates a host for the given controllers
func New(left, right *motor.Controller, clock Clock, opts ...Option) (*Host, error) {
	if left == nil || right == nil {
		return nil, fmt.Errorf("both motor controllers are required")
	}
	if clock == nil {
		return nil, fmt.Errorf("nil clock")
	}
	h := &Host{
		motors: [2]*motor.Controller{left, right},
		clock:  clock,
	}
	for _, opt := range opts {
		opt(h)
	}
	for i, m := range h.motors {
		s := m.Status()
		h.emergencies[i] = s.Emergencies
		h.wraps[i] = s.Wraps
	}
	return h, nil
}

// Motor returns the controller at index Left or Right
func (h *Host) Motor(index int) *motor.Controller {
	return h.motors[index]
}

// Feed tokenizes data and dispatches every completed command
func (h *Host) Feed(data []byte) error {
	for _, b := range data {
		cmd, err := h.tokens.DecodeByte(b)
		if err != nil {
			if err := h.streamError(err); err != nil {
				return err
			}
			continue
		}
		if cmd == nil {
			continue
		}
		if err := h.Dispatch(*cmd); err != nil {
			return err
		}
	}
	return nil
}

// Dispatch applies one command at the current tick
func (h *Host) Dispatch(cmd command.Command) error {
	now := h.clock.Now()
	h.commands++

	switch cmd.Code {
	case command.CodeLeft:
		h.motors[Left].RequestSpeed(cmd.Value, now)
	case command.CodeRight:
		h.motors[Right].RequestSpeed(cmd.Value, now)
	case command.CodeBoth:
		for _, m := range h.motors {
			m.RequestSpeed(cmd.Value, now)
		}

	case command.CodeEmergency:
		for _, m := range h.motors {
			m.EmergencyStop()
		}
	case command.CodeStatus:
		h.logStatus()
		if err := h.PublishStatus(); err != nil {
			return err
		}
		if err := h.PublishConfig(); err != nil {
			return err
		}
	case command.CodeDiagnostics:
		for _, m := range h.motors {
			m.ShowDiagnostics(m.Config().DiagnosticBudget)
		}

	case command.CodeDeadman:
		return h.configure(cmd, func(m *motor.Controller) bool { return m.SetCommandTimeout(cmd.Value) })
	case command.CodePulse:
		return h.configure(cmd, func(m *motor.Controller) bool { return m.SetStartPulseDuration(cmd.Value) })
	case command.CodeSettle:
		return h.configure(cmd, func(m *motor.Controller) bool { return m.SetSettleTime(cmd.Value) })
	case command.CodeStopLockout:
		return h.configure(cmd, func(m *motor.Controller) bool { return m.SetStopTimeout(cmd.Value) })
	case command.CodeDecel:
		// hundredths of a millisecond per PWM count
		return h.configure(cmd, func(m *motor.Controller) bool { return m.SetDecelRate(float64(cmd.Value) / 100) })
	case command.CodeMaxPWM:
		return h.configure(cmd, func(m *motor.Controller) bool { return m.SetMaxPWM(cmd.Value) })

	default:
		h.unsupported++
		h.logf("Unsupported command %s", cmd)
		if err := h.event(telemetry.MotorBoth, telemetry.EventUnsupportedCommand, now); err != nil {
			return err
		}
	}
	return h.reportCounters(now)
}

// Tick runs the timed transitions of both controllers
func (h *Host) Tick() error {
	now := h.clock.Now()
	for _, m := range h.motors {
		m.Update(now)
	}
	return h.reportCounters(now)
}

// Stop emergency-stops both motors. Used when the command source goes away.
func (h *Host) Stop() error {
	for _, m := range h.motors {
		m.EmergencyStop()
	}
	return h.reportCounters(h.clock.Now())
}

// Stats returns the number of dispatched, unsupported and stream errors
func (h *Host) Stats() (commands, unsupported, streamErrors uint64) {
	return h.commands, h.unsupported, h.streamErrs
}

// PublishStatus writes one MOTOR_STATUS frame per motor
func (h *Host) PublishStatus() error {
	if h.telemetry == nil {
		return nil
	}
	for i, m := range h.motors {
		if err := h.telemetry.WriteStatus(telemetry.NewMotorStatus(uint8(i), m.Status())); err != nil {
			return err
		}
	}
	return nil
}

// PublishConfig writes one DRIVE_CONFIG frame per motor
func (h *Host) PublishConfig() error {
	if h.telemetry == nil {
		return nil
	}
	for i, m := range h.motors {
		if err := h.telemetry.WriteConfig(telemetry.DriveConfig{Motor: uint8(i), Config: m.Config()}); err != nil {
			return err
		}
	}
	return nil
}

// configure applies a runtime setter to both motors
func (h *Host) configure(cmd command.Command, set func(*motor.Controller) bool) error {
	ok := true
	for _, m := range h.motors {
		if !set(m) {
			ok = false
		}
	}
	if ok {
		h.logf("%s applied", cmd)
		return nil
	}
	h.logf("%s rejected", cmd)
	return h.event(telemetry.MotorBoth, telemetry.EventMalformedCommand, h.clock.Now())
}

// reportCounters turns controller counter changes into events
func (h *Host) reportCounters(now motor.Tick) error {
	for i, m := range h.motors {
		s := m.Status()
		if s.Emergencies != h.emergencies[i] {
			h.emergencies[i] = s.Emergencies
			if err := h.event(uint8(i), telemetry.EventEmergencyStop, now); err != nil {
				return err
			}
		}
		if s.Wraps != h.wraps[i] {
			h.wraps[i] = s.Wraps
			if err := h.event(uint8(i), telemetry.EventClockWrap, now); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *Host) streamError(err error) error {
	h.streamErrs++
	now := h.clock.Now()
	switch {
	case errors.Is(err, command.ErrStreamReset):
		h.logf("Command stream reset")
		return h.event(telemetry.MotorBoth, telemetry.EventStreamReset, now)
	default:
		h.logf("Command stream: %v", err)
		return h.event(telemetry.MotorBoth, telemetry.EventMalformedCommand, now)
	}
}

func (h *Host) event(motorIndex uint8, ev telemetry.Event, now motor.Tick) error {
	if h.telemetry == nil {
		return nil
	}
	return h.telemetry.WriteEvent(telemetry.DriveEvent{Motor: motorIndex, Event: ev, Tick: now})
}

func (h *Host) logStatus() {
	for i, m := range h.motors {
		h.logf("%s: %s", telemetry.FormatMotor(uint8(i)), m.Describe())
	}
}

func (h *Host) logf(format string, args ...any) {
	if h.logger != nil {
		h.logger.Printf(format, args...)
	}
}
