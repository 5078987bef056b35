// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"fmt"

	"github.com/Thermoquad/hbridge/pkg/motor"
)

// MotorStatus is the MOTOR_STATUS payload
type MotorStatus struct {
	Motor     uint8
	Mode      motor.Mode
	Commanded int
	Applied   int
	Deadline  motor.Tick
	Tick      motor.Tick
}

// NewMotorStatus builds a MOTOR_STATUS payload from a controller snapshot
func NewMotorStatus(index uint8, s motor.Status) MotorStatus {
	return MotorStatus{
		Motor:     index,
		Mode:      s.Mode,
		Commanded: s.Commanded,
		Applied:   s.Applied,
		Deadline:  s.Deadline,
		Tick:      s.Now,
	}
}

// Map returns the CBOR payload map
func (m MotorStatus) Map() map[int]interface{} {
	return map[int]interface{}{
		KeyMotor:     uint64(m.Motor),
		KeyMode:      uint64(m.Mode),
		KeyCommanded: int64(m.Commanded),
		KeyApplied:   uint64(m.Applied),
		KeyDeadline:  uint64(m.Deadline),
		KeyTick:      uint64(m.Tick),
	}
}

// ParseMotorStatus extracts a MOTOR_STATUS payload
func ParseMotorStatus(f *Frame) (MotorStatus, error) {
	if f.Type() != MsgMotorStatus {
		return MotorStatus{}, fmt.Errorf("not a MOTOR_STATUS frame: 0x%02X", f.Type())
	}
	m := f.PayloadMap()

	var s MotorStatus
	motorIdx, ok1 := GetMapUint(m, KeyMotor)
	mode, ok2 := GetMapUint(m, KeyMode)
	commanded, ok3 := GetMapInt(m, KeyCommanded)
	applied, ok4 := GetMapUint(m, KeyApplied)
	deadline, ok5 := GetMapUint(m, KeyDeadline)
	tick, ok6 := GetMapUint(m, KeyTick)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return s, fmt.Errorf("MOTOR_STATUS payload missing fields")
	}

	s.Motor = uint8(motorIdx)
	s.Mode = motor.Mode(mode)
	s.Commanded = int(commanded)
	s.Applied = int(applied)
	s.Deadline = motor.Tick(deadline)
	s.Tick = motor.Tick(tick)
	return s, nil
}

// DriveEvent is the DRIVE_EVENT payload
type DriveEvent struct {
	Motor uint8
	Event Event
	Tick  motor.Tick
}

// Map returns the CBOR payload map
func (e DriveEvent) Map() map[int]interface{} {
	return map[int]interface{}{
		KeyMotor:     uint64(e.Motor),
		KeyEvent:     uint64(e.Event),
		KeyEventTick: uint64(e.Tick),
	}
}

// ParseDriveEvent extracts a DRIVE_EVENT payload
func ParseDriveEvent(f *Frame) (DriveEvent, error) {
	if f.Type() != MsgDriveEvent {
		return DriveEvent{}, fmt.Errorf("not a DRIVE_EVENT frame: 0x%02X", f.Type())
	}
	m := f.PayloadMap()

	motorIdx, ok1 := GetMapUint(m, KeyMotor)
	ev, ok2 := GetMapUint(m, KeyEvent)
	tick, ok3 := GetMapUint(m, KeyEventTick)
	if !(ok1 && ok2 && ok3) {
		return DriveEvent{}, fmt.Errorf("DRIVE_EVENT payload missing fields")
	}
	return DriveEvent{Motor: uint8(motorIdx), Event: Event(ev), Tick: motor.Tick(tick)}, nil
}

// DriveConfig is the DRIVE_CONFIG payload
type DriveConfig struct {
	Motor  uint8
	Config motor.Config
}

// Map returns the CBOR payload map
func (c DriveConfig) Map() map[int]interface{} {
	return map[int]interface{}{
		KeyMotor:       uint64(c.Motor),
		KeyDeadTime:    uint64(c.Config.DeadTime),
		KeyStartupTime: uint64(c.Config.StartupTime),
		KeySettleTime:  uint64(c.Config.SettleTime),
		KeyStopTime:    uint64(c.Config.StopTime),
		KeyMaxPWM:      uint64(c.Config.MaxPWM),
		KeyMinPWM:      uint64(c.Config.MinPWM),
	}
}
