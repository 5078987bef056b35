// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package telemetry implements the framed drive telemetry protocol.
//
// Frames are START, then the byte-stuffed length, 8-byte little-endian
// address, CBOR payload and big-endian CRC-16-CCITT, then END. The CBOR
// payload is a two-element array [message type, payload map]; map keys
// are small integers defined per message.
package telemetry

// Protocol framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Frame size limits
const (
	MaxFrameSize   = 128 // 14 overhead + 114 payload
	MaxPayloadSize = 114
	AddressSize    = 8
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// Special addresses
const (
	AddressBroadcast = 0x0000000000000000
	AddressStateless = 0xFFFFFFFFFFFFFFFF
)

// Message types
const (
	MsgDriveConfig = 0x10 // controller configuration snapshot
	MsgMotorStatus = 0x31 // periodic motor state
	MsgDriveEvent  = 0x40 // emergency stops, clock wraps, command stream errors
)

// Motor indexes
const (
	MotorLeft  = 0
	MotorRight = 1
	MotorBoth  = 0xFF // events not tied to one motor
)

// MOTOR_STATUS payload keys
const (
	KeyMotor     = 0
	KeyMode      = 1
	KeyCommanded = 2
	KeyApplied   = 3
	KeyDeadline  = 4
	KeyTick      = 5
)

// DRIVE_EVENT payload keys. KeyMotor is shared.
const (
	KeyEvent     = 1
	KeyEventTick = 2
)

// DRIVE_CONFIG payload keys. KeyMotor is shared.
const (
	KeyDeadTime    = 1
	KeyStartupTime = 2
	KeySettleTime  = 3
	KeyStopTime    = 4
	KeyMaxPWM      = 5
	KeyMinPWM      = 6
)

// Event identifies a DRIVE_EVENT
type Event uint8

// Drive events
const (
	EventEmergencyStop Event = iota + 1
	EventClockWrap
	EventStreamReset
	EventMalformedCommand
	EventUnsupportedCommand
)

// maxEvent is the highest defined event
const maxEvent = EventUnsupportedCommand

// maxMode is the highest motor.Mode value carried in MOTOR_STATUS
const maxMode = 5

// Decoder states (internal)
const (
	stateIdle = iota
	stateLength
	stateAddress
	statePayload
	stateCRC1
	stateCRC2
	stateEnd
)
