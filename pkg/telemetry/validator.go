// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"fmt"

	"github.com/Thermoquad/hbridge/pkg/motor"
)

// AnomalyType classifies a validation failure
type AnomalyType int

// Anomaly types
const (
	AnomalyMissingField AnomalyType = iota
	AnomalyInvalidMotor
	AnomalyInvalidMode
	AnomalyInvalidPWM
	AnomalyInvalidEvent
	AnomalyUnknownType
	AnomalyParseError
)

// ValidationError describes one anomaly in a frame
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateFrame checks a decoded frame for values a drive cannot produce.
// Returns an empty slice for a valid frame.
func ValidateFrame(f *Frame) []ValidationError {
	if err := f.ParseError(); err != nil {
		return []ValidationError{{
			Type:    AnomalyParseError,
			Message: err.Error(),
		}}
	}

	switch f.Type() {
	case MsgMotorStatus:
		return validateMotorStatus(f)
	case MsgDriveEvent:
		return validateDriveEvent(f)
	case MsgDriveConfig:
		return validateDriveConfig(f)
	default:
		return []ValidationError{{
			Type:    AnomalyUnknownType,
			Message: fmt.Sprintf("Unknown message type 0x%02X", f.Type()),
			Details: map[string]interface{}{"type": f.Type()},
		}}
	}
}

func validateMotorIndex(m map[int]interface{}, allowBoth bool) []ValidationError {
	idx, ok := GetMapUint(m, KeyMotor)
	if !ok {
		return []ValidationError{missingField("motor")}
	}
	if idx == MotorLeft || idx == MotorRight || (allowBoth && idx == MotorBoth) {
		return nil
	}
	return []ValidationError{{
		Type:    AnomalyInvalidMotor,
		Message: fmt.Sprintf("Invalid motor index=%d", idx),
		Details: map[string]interface{}{"motor": idx},
	}}
}

func validateMotorStatus(f *Frame) []ValidationError {
	errors := []ValidationError{}
	m := f.PayloadMap()

	errors = append(errors, validateMotorIndex(m, false)...)

	if mode, ok := GetMapUint(m, KeyMode); !ok {
		errors = append(errors, missingField("mode"))
	} else if mode > maxMode {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidMode,
			Message: fmt.Sprintf("Invalid mode=%d (max %d)", mode, maxMode),
			Details: map[string]interface{}{"mode": mode, "max": maxMode},
		})
	}

	if cmd, ok := GetMapInt(m, KeyCommanded); !ok {
		errors = append(errors, missingField("commanded"))
	} else if cmd > motor.MaxDuty || cmd < -motor.MaxDuty {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidPWM,
			Message: fmt.Sprintf("Commanded speed=%d outside +/-%d", cmd, motor.MaxDuty),
			Details: map[string]interface{}{"commanded": cmd},
		})
	}

	if applied, ok := GetMapUint(m, KeyApplied); !ok {
		errors = append(errors, missingField("applied"))
	} else if applied > motor.MaxDuty {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidPWM,
			Message: fmt.Sprintf("Applied PWM=%d (max %d)", applied, motor.MaxDuty),
			Details: map[string]interface{}{"applied": applied},
		})
	} else if mode, ok := GetMapUint(m, KeyMode); ok && mode <= maxMode &&
		applied > 0 && !motor.Mode(mode).Running() {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidPWM,
			Message: fmt.Sprintf("Applied PWM=%d while %s", applied, motor.Mode(mode)),
			Details: map[string]interface{}{"applied": applied, "mode": mode},
		})
	}

	for key, name := range map[int]string{KeyDeadline: "deadline", KeyTick: "tick"} {
		if _, ok := GetMapUint(m, key); !ok {
			errors = append(errors, missingField(name))
		}
	}
	return errors
}

func validateDriveEvent(f *Frame) []ValidationError {
	errors := []ValidationError{}
	m := f.PayloadMap()

	errors = append(errors, validateMotorIndex(m, true)...)

	if ev, ok := GetMapUint(m, KeyEvent); !ok {
		errors = append(errors, missingField("event"))
	} else if ev == 0 || ev > uint64(maxEvent) {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidEvent,
			Message: fmt.Sprintf("Invalid event=%d", ev),
			Details: map[string]interface{}{"event": ev},
		})
	}
	if _, ok := GetMapUint(m, KeyEventTick); !ok {
		errors = append(errors, missingField("tick"))
	}
	return errors
}

func validateDriveConfig(f *Frame) []ValidationError {
	errors := []ValidationError{}
	m := f.PayloadMap()

	errors = append(errors, validateMotorIndex(m, false)...)
	if maxPWM, ok := GetMapUint(m, KeyMaxPWM); ok && (maxPWM == 0 || maxPWM > motor.MaxDuty) {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidPWM,
			Message: fmt.Sprintf("Max PWM=%d outside 1..%d", maxPWM, motor.MaxDuty),
			Details: map[string]interface{}{"max_pwm": maxPWM},
		})
	}
	return errors
}

func missingField(name string) ValidationError {
	return ValidationError{
		Type:    AnomalyMissingField,
		Message: fmt.Sprintf("Missing field %s", name),
		Details: map[string]interface{}{"field": name},
	}
}
