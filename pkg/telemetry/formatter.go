// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Thermoquad/hbridge/pkg/motor"
)

// FormatFrame formats a frame as a human-readable line
func FormatFrame(f *Frame) string {
	timestamp := f.Timestamp().Format("15:04:05.000")
	header := fmt.Sprintf("[%s] %s (0x%02X) addr=%016X", timestamp, FormatMessageType(f.Type()), f.Type(), f.Address())
	return header + " " + FormatPayload(f) + "\n"
}

// FormatMessageType returns the name of a message type
func FormatMessageType(msgType uint8) string {
	switch msgType {
	case MsgDriveConfig:
		return "DRIVE_CONFIG"
	case MsgMotorStatus:
		return "MOTOR_STATUS"
	case MsgDriveEvent:
		return "DRIVE_EVENT"
	default:
		return "UNKNOWN"
	}
}

// FormatMotor returns "left", "right" or "both"
func FormatMotor(idx uint8) string {
	switch idx {
	case MotorLeft:
		return "left"
	case MotorRight:
		return "right"
	case MotorBoth:
		return "both"
	default:
		return fmt.Sprintf("motor%d", idx)
	}
}

// String returns the event name
func (e Event) String() string {
	switch e {
	case EventEmergencyStop:
		return "EMERGENCY_STOP"
	case EventClockWrap:
		return "CLOCK_WRAP"
	case EventStreamReset:
		return "STREAM_RESET"
	case EventMalformedCommand:
		return "MALFORMED_COMMAND"
	case EventUnsupportedCommand:
		return "UNSUPPORTED_COMMAND"
	default:
		return fmt.Sprintf("EVENT_%d", uint8(e))
	}
}

// FormatPayload renders the payload of a known message, or the raw map
func FormatPayload(f *Frame) string {
	if err := f.ParseError(); err != nil {
		return fmt.Sprintf("<parse error: %v>", err)
	}

	switch f.Type() {
	case MsgMotorStatus:
		if s, err := ParseMotorStatus(f); err == nil {
			return fmt.Sprintf("%-5s %-9s cmd=%4d pwm=%3d deadline=%d tick=%d",
				FormatMotor(s.Motor), s.Mode, s.Commanded, s.Applied, s.Deadline, s.Tick)
		}
	case MsgDriveEvent:
		if e, err := ParseDriveEvent(f); err == nil {
			return fmt.Sprintf("%-5s %s tick=%d", FormatMotor(e.Motor), e.Event, e.Tick)
		}
	case MsgDriveConfig:
		m := f.PayloadMap()
		idx, _ := GetMapUint(m, KeyMotor)
		dead, _ := GetMapUint(m, KeyDeadTime)
		start, _ := GetMapUint(m, KeyStartupTime)
		settle, _ := GetMapUint(m, KeySettleTime)
		stop, _ := GetMapUint(m, KeyStopTime)
		maxPWM, _ := GetMapUint(m, KeyMaxPWM)
		minPWM, _ := GetMapUint(m, KeyMinPWM)
		return fmt.Sprintf("%-5s deadman=%dms pulse=%dms settle=%dms lockout=%dms pwm=%d..%d",
			FormatMotor(uint8(idx)), dead, start, settle, stop, minPWM, maxPWM)
	}
	return formatRawMap(f.PayloadMap())
}

func formatRawMap(m map[int]interface{}) string {
	if len(m) == 0 {
		return "{}"
	}
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%d:%v", k, m[k]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// ModeName returns the name of a mode number from a frame
func ModeName(mode uint64) string {
	if mode > maxMode {
		return "UNKNOWN"
	}
	return motor.Mode(mode).String()
}
