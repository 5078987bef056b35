// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import "time"

// Frame is a decoded telemetry frame
type Frame struct {
	length      uint8
	address     uint64
	cborPayload []byte
	crc         uint16
	timestamp   time.Time

	// parsed lazily from cborPayload
	msgType    uint8
	payloadMap map[int]interface{}
	parsed     bool
	parseErr   error
}

// NewFrame builds a frame from a message type and payload map, for
// encoding or display
func NewFrame(address uint64, msgType uint8, payload map[int]interface{}) *Frame {
	return &Frame{
		address:    address,
		msgType:    msgType,
		payloadMap: payload,
		parsed:     true,
		timestamp:  time.Now(),
	}
}

func (f *Frame) ensureParsed() {
	if f.parsed {
		return
	}
	f.parsed = true
	if len(f.cborPayload) == 0 {
		return
	}
	f.msgType, f.payloadMap, f.parseErr = ParseCBORMessage(f.cborPayload)
}

// Length returns the CBOR payload length from the wire
func (f *Frame) Length() uint8 {
	return f.length
}

// Address returns the sender address
func (f *Frame) Address() uint64 {
	return f.address
}

// Type returns the message type
func (f *Frame) Type() uint8 {
	f.ensureParsed()
	return f.msgType
}

// Payload returns the raw CBOR bytes
func (f *Frame) Payload() []byte {
	return f.cborPayload
}

// PayloadMap returns the decoded payload map (nil when empty)
func (f *Frame) PayloadMap() map[int]interface{} {
	f.ensureParsed()
	return f.payloadMap
}

// ParseError returns the CBOR decoding error, if any
func (f *Frame) ParseError() error {
	f.ensureParsed()
	return f.parseErr
}

// CRC returns the received checksum
func (f *Frame) CRC() uint16 {
	return f.crc
}

// Timestamp returns when the frame was decoded or built
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}
