// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/Thermoquad/hbridge/pkg/motor"
)

// ============================================================
// Test Helpers
// ============================================================

// decodeFrames feeds data to a decoder and collects frames and errors
func decodeFrames(data []byte) ([]*Frame, []error) {
	d := NewDecoder()
	var (
		frames []*Frame
		errs   []error
	)
	for _, b := range data {
		f, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
		}
		if f != nil {
			frames = append(frames, f)
		}
	}
	return frames, errs
}

func mustEncode(t *testing.T, address uint64, msgType uint8, payload map[int]interface{}) []byte {
	t.Helper()
	data, err := EncodeFrame(address, msgType, payload)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	return data
}

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{"empty", []byte{}, 0xFFFF},
		{"check string", []byte("123456789"), 0x29B1},
		{"single zero", []byte{0x00}, 0xE1F0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateCRC(tt.data); got != tt.want {
				t.Errorf("CalculateCRC(%v) = 0x%04X, want 0x%04X", tt.data, got, tt.want)
			}
		})
	}
}

// ============================================================
// Encoder / Decoder Tests
// ============================================================

func TestEncodeDecode_MotorStatus(t *testing.T) {
	status := MotorStatus{
		Motor:     MotorRight,
		Mode:      motor.ModeReverse,
		Commanded: -120,
		Applied:   120,
		Deadline:  0xFFFFFF00,
		Tick:      0xFFFFFE00,
	}
	data := mustEncode(t, 0x0102030405060708, MsgMotorStatus, status.Map())

	frames, errs := decodeFrames(data)
	if len(errs) != 0 {
		t.Fatalf("decode errors: %v", errs)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	f := frames[0]
	if f.Address() != 0x0102030405060708 {
		t.Errorf("address = 0x%016X", f.Address())
	}
	if f.Type() != MsgMotorStatus {
		t.Errorf("type = 0x%02X", f.Type())
	}

	got, err := ParseMotorStatus(f)
	if err != nil {
		t.Fatalf("ParseMotorStatus: %v", err)
	}
	if got != status {
		t.Errorf("status = %+v, want %+v", got, status)
	}
	if v := ValidateFrame(f); len(v) != 0 {
		t.Errorf("unexpected validation errors: %v", v)
	}
}

func TestEncodeDecode_DriveEvent(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, 7)
	want := DriveEvent{Motor: MotorBoth, Event: EventStreamReset, Tick: 1234}
	if err := enc.WriteEvent(want); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}

	frames, errs := decodeFrames(buf.Bytes())
	if len(errs) != 0 || len(frames) != 1 {
		t.Fatalf("frames=%d errs=%v", len(frames), errs)
	}
	got, err := ParseDriveEvent(frames[0])
	if err != nil {
		t.Fatalf("ParseDriveEvent: %v", err)
	}
	if got != want {
		t.Errorf("event = %+v, want %+v", got, want)
	}
}

func TestEncoder_MultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, AddressBroadcast)
	for i := 0; i < 3; i++ {
		s := MotorStatus{Motor: uint8(i % 2), Mode: motor.ModeStopped, Tick: motor.Tick(i)}
		if err := enc.WriteStatus(s); err != nil {
			t.Fatalf("WriteStatus: %v", err)
		}
	}
	if err := enc.WriteConfig(DriveConfig{Motor: MotorLeft, Config: motor.DBH1Config()}); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}

	frames, errs := decodeFrames(buf.Bytes())
	if len(errs) != 0 {
		t.Fatalf("decode errors: %v", errs)
	}
	if len(frames) != 4 {
		t.Fatalf("got %d frames, want 4", len(frames))
	}
	if frames[3].Type() != MsgDriveConfig {
		t.Errorf("last frame type = 0x%02X", frames[3].Type())
	}
}

func TestEncodeFrame_ByteStuffing(t *testing.T) {
	// an address full of framing bytes must never leak unescaped
	data := mustEncode(t, 0x7E7F7D7E7F7D7E7F, MsgDriveEvent, DriveEvent{Motor: 0, Event: EventClockWrap}.Map())
	inner := data[1 : len(data)-1]
	for i, b := range inner {
		if b == StartByte || b == EndByte {
			t.Fatalf("unescaped framing byte 0x%02X at %d", b, i+1)
		}
	}

	frames, errs := decodeFrames(data)
	if len(errs) != 0 || len(frames) != 1 {
		t.Fatalf("frames=%d errs=%v", len(frames), errs)
	}
	if frames[0].Address() != 0x7E7F7D7E7F7D7E7F {
		t.Errorf("address = 0x%016X", frames[0].Address())
	}
}

func TestUnstuffBytes(t *testing.T) {
	raw := []byte{0x01, StartByte, EscByte, EndByte, 0x02}
	stuffed := stuffBytes(raw)
	got, err := UnstuffBytes(stuffed)
	if err != nil {
		t.Fatalf("UnstuffBytes: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Errorf("got %X, want %X", got, raw)
	}
	if _, err := UnstuffBytes([]byte{0x01, EscByte}); err == nil {
		t.Error("expected error for trailing escape")
	}
}

func TestDecoder_Errors(t *testing.T) {
	valid := func(t *testing.T) []byte {
		return mustEncode(t, 1, MsgDriveEvent, DriveEvent{Event: EventEmergencyStop}.Map())
	}

	tests := []struct {
		name    string
		mutate  func([]byte) []byte
		wantErr error
	}{
		{"corrupted CRC", func([]byte) []byte {
			// empty payload frame with a flipped checksum
			data := make([]byte, 1+AddressSize)
			crc := CalculateCRC(data) ^ 0x0101
			data = append(data, byte(crc>>8), byte(crc))
			return append(append([]byte{StartByte}, stuffBytes(data)...), EndByte)
		}, ErrCRCMismatch},
		{"early END", func(d []byte) []byte {
			return append(d[:5:5], EndByte)
		}, ErrFraming},
		{"length too large", func([]byte) []byte {
			return []byte{StartByte, MaxPayloadSize + 1}
		}, ErrInvalidLength},
		{"junk after CRC", func(d []byte) []byte {
			return append(d[:len(d)-1:len(d)-1], 0x00, EndByte)
		}, ErrFraming},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(valid(t))
			frames, errs := decodeFrames(data)
			if len(frames) != 0 {
				t.Errorf("got %d frames from bad input", len(frames))
			}
			if len(errs) == 0 || !errors.Is(errs[0], tt.wantErr) {
				t.Errorf("errs = %v, want %v", errs, tt.wantErr)
			}
		})
	}
}

func TestDecoder_ResyncOnStart(t *testing.T) {
	good := mustEncode(t, 2, MsgDriveEvent, DriveEvent{Event: EventClockWrap}.Map())
	// truncated frame followed by a full one
	data := append([]byte{StartByte, 0x05, 0x01}, good...)
	frames, errs := decodeFrames(data)
	if len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
}

func TestDecoder_IgnoresNoiseBeforeStart(t *testing.T) {
	good := mustEncode(t, 2, MsgDriveEvent, DriveEvent{Event: EventClockWrap}.Map())
	data := append([]byte("L100\n"), good...)
	frames, _ := decodeFrames(data)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
}

// ============================================================
// Validator Tests
// ============================================================

func TestValidateFrame(t *testing.T) {
	base := MotorStatus{Motor: MotorLeft, Mode: motor.ModeForward, Commanded: 100, Applied: 100}.Map()
	with := func(key int, v interface{}) map[int]interface{} {
		m := make(map[int]interface{}, len(base))
		for k, val := range base {
			m[k] = val
		}
		if v == nil {
			delete(m, key)
		} else {
			m[key] = v
		}
		return m
	}

	tests := []struct {
		name    string
		msgType uint8
		payload map[int]interface{}
		want    []AnomalyType
	}{
		{"valid status", MsgMotorStatus, base, nil},
		{"bad motor", MsgMotorStatus, with(KeyMotor, uint64(3)), []AnomalyType{AnomalyInvalidMotor}},
		{"bad mode", MsgMotorStatus, with(KeyMode, uint64(9)), []AnomalyType{AnomalyInvalidMode}},
		{"applied too large", MsgMotorStatus, with(KeyApplied, uint64(300)), []AnomalyType{AnomalyInvalidPWM}},
		{"applied while stopped", MsgMotorStatus, with(KeyMode, uint64(motor.ModeStopped)), []AnomalyType{AnomalyInvalidPWM}},
		{"missing tick", MsgMotorStatus, with(KeyTick, nil), []AnomalyType{AnomalyMissingField}},
		{"bad event", MsgDriveEvent, DriveEvent{Event: 99}.Map(), []AnomalyType{AnomalyInvalidEvent}},
		{"unknown type", 0x77, nil, []AnomalyType{AnomalyUnknownType}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames, errs := decodeFrames(mustEncode(t, 0, tt.msgType, tt.payload))
			if len(errs) != 0 || len(frames) != 1 {
				t.Fatalf("frames=%d errs=%v", len(frames), errs)
			}
			got := ValidateFrame(frames[0])
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want types %v", got, tt.want)
			}
			for i := range got {
				if got[i].Type != tt.want[i] {
					t.Errorf("anomaly %d = %d, want %d", i, got[i].Type, tt.want[i])
				}
			}
		})
	}
}

// ============================================================
// Statistics and Formatter Tests
// ============================================================

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()

	var buf bytes.Buffer
	enc := NewEncoder(&buf, 0)
	enc.WriteStatus(MotorStatus{Motor: MotorLeft})
	enc.WriteEvent(DriveEvent{Motor: MotorLeft, Event: EventEmergencyStop})
	enc.WriteEvent(DriveEvent{Motor: MotorBoth, Event: EventMalformedCommand})

	frames, _ := decodeFrames(buf.Bytes())
	for _, f := range frames {
		s.Update(f, nil, ValidateFrame(f))
	}
	s.Update(nil, ErrCRCMismatch, nil)
	s.Update(nil, ErrFraming, nil)

	if s.TotalFrames != 5 || s.ValidFrames != 3 {
		t.Errorf("total=%d valid=%d", s.TotalFrames, s.ValidFrames)
	}
	if s.CRCErrors != 1 || s.DecodeErrors != 1 {
		t.Errorf("crc=%d decode=%d", s.CRCErrors, s.DecodeErrors)
	}
	if s.Emergencies != 1 || s.StreamErrors != 1 || s.StatusFrames != 1 {
		t.Errorf("emergencies=%d stream=%d status=%d", s.Emergencies, s.StreamErrors, s.StatusFrames)
	}
	if !strings.Contains(s.String(), "Emergency Stop") {
		t.Errorf("summary missing emergency line:\n%s", s)
	}

	s.Reset()
	if s.TotalFrames != 0 || s.Emergencies != 0 {
		t.Error("Reset did not clear counters")
	}
}

func TestFormatFrame(t *testing.T) {
	f := NewFrame(0, MsgMotorStatus, MotorStatus{
		Motor: MotorLeft, Mode: motor.ModeStartingForward, Commanded: 80, Deadline: 50, Tick: 0,
	}.Map())
	out := FormatFrame(f)
	for _, want := range []string{"MOTOR_STATUS", "left", "START_FWD", "cmd=  80"} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatFrame missing %q: %s", want, out)
		}
	}

	ev := NewFrame(0, MsgDriveEvent, DriveEvent{Motor: MotorRight, Event: EventClockWrap, Tick: 9}.Map())
	if out := FormatFrame(ev); !strings.Contains(out, "right CLOCK_WRAP tick=9") {
		t.Errorf("FormatFrame = %q", out)
	}
}
