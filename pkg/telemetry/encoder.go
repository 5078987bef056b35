// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"encoding/binary"
	"fmt"
	"io"
)

// EncodeFrame builds a complete wire frame, including framing and byte
// stuffing.
func EncodeFrame(address uint64, msgType uint8, payloadMap map[int]interface{}) ([]byte, error) {
	cborPayload, err := encodeCBORPayload(msgType, payloadMap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode CBOR payload: %w", err)
	}
	if len(cborPayload) > MaxPayloadSize {
		return nil, fmt.Errorf("CBOR payload too large: %d bytes (max %d)", len(cborPayload), MaxPayloadSize)
	}

	// length + address + payload is what gets checksummed and stuffed
	data := make([]byte, 1+AddressSize+len(cborPayload), 1+AddressSize+len(cborPayload)+2)
	data[0] = uint8(len(cborPayload))
	binary.LittleEndian.PutUint64(data[1:1+AddressSize], address)
	copy(data[1+AddressSize:], cborPayload)

	crc := CalculateCRC(data)
	data = append(data, byte(crc>>8), byte(crc))

	stuffed := stuffBytes(data)
	frame := make([]byte, 0, len(stuffed)+2)
	frame = append(frame, StartByte)
	frame = append(frame, stuffed...)
	frame = append(frame, EndByte)
	return frame, nil
}

// Encode renders an existing frame back to wire format
func Encode(f *Frame) ([]byte, error) {
	return EncodeFrame(f.Address(), f.Type(), f.PayloadMap())
}

// Encoder writes telemetry frames for one sender address
type Encoder struct {
	w       io.Writer
	address uint64
}

// NewEncoder creates an encoder writing to w
func NewEncoder(w io.Writer, address uint64) *Encoder {
	return &Encoder{w: w, address: address}
}

// WriteMessage encodes and writes one frame
func (e *Encoder) WriteMessage(msgType uint8, payload map[int]interface{}) error {
	data, err := EncodeFrame(e.address, msgType, payload)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// WriteStatus writes a MOTOR_STATUS frame
func (e *Encoder) WriteStatus(s MotorStatus) error {
	return e.WriteMessage(MsgMotorStatus, s.Map())
}

// WriteEvent writes a DRIVE_EVENT frame
func (e *Encoder) WriteEvent(ev DriveEvent) error {
	return e.WriteMessage(MsgDriveEvent, ev.Map())
}

// WriteConfig writes a DRIVE_CONFIG frame
func (e *Encoder) WriteConfig(c DriveConfig) error {
	return e.WriteMessage(MsgDriveConfig, c.Map())
}

// stuffBytes escapes START, END and ESC as ESC + (byte XOR EscXor)
func stuffBytes(data []byte) []byte {
	result := make([]byte, 0, len(data)*2)
	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			result = append(result, EscByte, b^EscXor)
		} else {
			result = append(result, b)
		}
	}
	return result
}

// UnstuffBytes reverses stuffBytes
func UnstuffBytes(data []byte) ([]byte, error) {
	result := make([]byte, 0, len(data))
	escapeNext := false
	for _, b := range data {
		switch {
		case escapeNext:
			result = append(result, b^EscXor)
			escapeNext = false
		case b == EscByte:
			escapeNext = true
		default:
			result = append(result, b)
		}
	}
	if escapeNext {
		return nil, fmt.Errorf("incomplete escape sequence at end of data")
	}
	return result, nil
}
