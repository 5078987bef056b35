// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"errors"
	"fmt"
	"time"
)

// Decoder errors. Returned errors wrap one of these.
var (
	ErrCRCMismatch   = errors.New("CRC mismatch")
	ErrFraming       = errors.New("framing error")
	ErrInvalidLength = errors.New("invalid length")
)

// Decoder is the byte-at-a-time frame decoder state machine
type Decoder struct {
	state        int
	buffer       []byte
	bufferIndex  int
	escapeNext   bool
	addressBytes int
	frame        *Frame
	rawBuffer    []byte
}

// NewDecoder creates a decoder waiting for a START byte
func NewDecoder() *Decoder {
	return &Decoder{
		state:     stateIdle,
		buffer:    make([]byte, MaxFrameSize),
		rawBuffer: make([]byte, 0, MaxFrameSize*2),
	}
}

// Reset returns the decoder to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.bufferIndex = 0
	d.addressBytes = 0
	d.escapeNext = false
	d.frame = nil
	d.rawBuffer = d.rawBuffer[:0]
}

// RawBytes returns the bytes seen since the last START
func (d *Decoder) RawBytes() []byte {
	return d.rawBuffer
}

// DecodeByte processes a single byte.
// Returns a completed frame, or nil if the frame is incomplete.
// Returns an error if the frame is rejected; the decoder is then idle.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	d.rawBuffer = append(d.rawBuffer, b)

	if b == EscByte && !d.escapeNext {
		d.escapeNext = true
		return nil, nil
	}

	raw := b
	escaped := d.escapeNext
	if escaped {
		b ^= EscXor
		d.escapeNext = false
	}

	if raw == StartByte && !escaped {
		d.Reset()
		d.rawBuffer = append(d.rawBuffer[:0], raw)
		d.state = stateLength
		return nil, nil
	}

	if raw == EndByte && !escaped {
		if d.state != stateEnd {
			state := d.state
			d.Reset()
			if state == stateIdle {
				return nil, nil
			}
			return nil, fmt.Errorf("%w: unexpected END byte in state %d", ErrFraming, state)
		}
		frame := d.frame
		calculated := CalculateCRC(d.buffer[:d.bufferIndex])
		d.Reset()
		if frame.crc != calculated {
			return nil, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRCMismatch, calculated, frame.crc)
		}
		frame.timestamp = time.Now()
		return frame, nil
	}

	switch d.state {
	case stateIdle:
		return nil, nil

	case stateLength:
		if b > MaxPayloadSize {
			d.Reset()
			return nil, fmt.Errorf("%w: %d (max %d)", ErrInvalidLength, b, MaxPayloadSize)
		}
		d.frame = &Frame{length: b, cborPayload: make([]byte, 0, b)}
		d.push(b)
		d.addressBytes = 0
		d.state = stateAddress
		return nil, nil

	case stateAddress:
		d.frame.address |= uint64(b) << (d.addressBytes * 8)
		d.push(b)
		d.addressBytes++
		if d.addressBytes >= AddressSize {
			if d.frame.length == 0 {
				d.state = stateCRC1
			} else {
				d.state = statePayload
			}
		}
		return nil, nil

	case statePayload:
		d.frame.cborPayload = append(d.frame.cborPayload, b)
		d.push(b)
		if len(d.frame.cborPayload) >= int(d.frame.length) {
			d.state = stateCRC1
		}
		return nil, nil

	case stateCRC1:
		d.frame.crc = uint16(b) << 8
		d.state = stateCRC2
		return nil, nil

	case stateCRC2:
		d.frame.crc |= uint16(b)
		d.state = stateEnd
		return nil, nil

	case stateEnd:
		d.Reset()
		return nil, fmt.Errorf("%w: expected END after CRC", ErrFraming)

	default:
		d.Reset()
		return nil, fmt.Errorf("%w: invalid state %d", ErrFraming, d.state)
	}
}

// push appends to the checksummed buffer. Length limits keep it in
// bounds: 1 + 8 + MaxPayloadSize < MaxFrameSize.
func (d *Decoder) push(b byte) {
	d.buffer[d.bufferIndex] = b
	d.bufferIndex++
}
