// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pins

import (
	"reflect"
	"sync"
	"testing"

	"github.com/Thermoquad/hbridge/pkg/motor"
)

// ============================================================
// Recorder Tests
// ============================================================

func TestRecorder_TracksState(t *testing.T) {
	r := NewRecorder()

	if got := r.State("EN").String(); got != "--" {
		t.Errorf("unconfigured state = %q, want --", got)
	}

	if err := r.ConfigureOutput("EN"); err != nil {
		t.Fatalf("ConfigureOutput: %v", err)
	}
	r.DigitalWrite("EN", true)
	if s := r.State("EN"); !s.Level() || s.String() != "HI" {
		t.Errorf("after high: %+v (%s)", s, s)
	}

	r.AnalogWrite("EN", 90)
	if s := r.State("EN"); s.Duty != 90 || !s.Analog || s.String() != "~90" {
		t.Errorf("after analog: %+v (%s)", s, s)
	}

	r.DigitalWrite("EN", false)
	if s := r.State("EN"); s.Level() || s.Analog || s.String() != "LO" {
		t.Errorf("after low: %+v (%s)", s, s)
	}
}

func TestRecorder_History(t *testing.T) {
	r := NewRecorder()
	r.ConfigureOutput("A")
	r.DigitalWrite("A", true)
	r.AnalogWrite("A", 12)

	var got []string
	for _, w := range r.History() {
		got = append(got, w.String())
	}
	want := []string{"cfg A", "A=1", "A~12"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("history = %v, want %v", got, want)
	}

	r.ClearHistory()
	if len(r.History()) != 0 {
		t.Error("history not cleared")
	}
	if r.Writes() != 3 {
		t.Errorf("Writes() = %d, want 3", r.Writes())
	}
	if !r.State("A").Analog {
		t.Error("ClearHistory changed pin state")
	}
}

func TestRecorder_HistoryLimit(t *testing.T) {
	r := NewRecorder()
	for i := 0; i < DefaultHistory+10; i++ {
		r.AnalogWrite("A", uint8(i))
	}
	h := r.History()
	if len(h) != DefaultHistory {
		t.Fatalf("len(history) = %d, want %d", len(h), DefaultHistory)
	}
	if want := uint8((DefaultHistory + 9) % 256); h[len(h)-1].Value != want {
		t.Errorf("newest = %d", h[len(h)-1].Value)
	}
}

func TestRecorder_Pins(t *testing.T) {
	r := NewRecorder()
	r.DigitalWrite("c", true)
	r.DigitalWrite("a", true)
	r.DigitalWrite("b", true)
	want := []motor.Pin{"a", "b", "c"}
	if got := r.Pins(); !reflect.DeepEqual(got, want) {
		t.Errorf("Pins() = %v, want %v", got, want)
	}
}

func TestRecorder_Concurrent(t *testing.T) {
	r := NewRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.AnalogWrite(motor.Pin("P"), uint8(n))
				_ = r.State("P")
			}
		}(i)
	}
	wg.Wait()
	if r.Writes() != 800 {
		t.Errorf("Writes() = %d, want 800", r.Writes())
	}
}

// ============================================================
// Driver Integration
// ============================================================

func TestRecorder_WithDrivers(t *testing.T) {
	tests := []struct {
		variant motor.Variant
		dir     motor.Direction
		want    map[motor.Pin]string
	}{
		{motor.VariantEnablePWM, motor.Forward, map[motor.Pin]string{"IN1": "LO", "IN2": "HI", "EN": "~100"}},
		{motor.VariantEnablePWM, motor.Reverse, map[motor.Pin]string{"IN1": "HI", "IN2": "LO", "EN": "~100"}},
		{motor.VariantDirectionPWM, motor.Forward, map[motor.Pin]string{"IN1": "LO", "IN2": "~100", "EN": "HI"}},
		{motor.VariantDirectionPWM, motor.Reverse, map[motor.Pin]string{"IN1": "~100", "IN2": "LO", "EN": "HI"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.variant)+"/"+tt.dir.String(), func(t *testing.T) {
			r := NewRecorder()
			w := motor.Wiring{IN1: "IN1", IN2: "IN2", EN: "EN"}
			d, err := motor.NewDriver(tt.variant, r, w, motor.MaxDuty)
			if err != nil {
				t.Fatalf("NewDriver: %v", err)
			}
			d.Drive(tt.dir, 100)
			for pin, want := range tt.want {
				if got := r.State(pin).String(); got != want {
					t.Errorf("%s = %s, want %s", pin, got, want)
				}
			}
		})
	}
}

// ============================================================
// Helpers
// ============================================================

func TestPinNumber(t *testing.T) {
	tests := []struct {
		in      motor.Pin
		want    int
		wantErr bool
	}{
		{"18", 18, false},
		{"GPIO12", 12, false},
		{"gpio13", 13, false},
		{"BCM19", 19, false},
		{"EN", 0, true},
		{"-1", 0, true},
	}
	for _, tt := range tests {
		got, err := pinNumber(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("pinNumber(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("pinNumber(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestScaleDuty(t *testing.T) {
	if got := scaleDuty(0); got != 0 {
		t.Errorf("scaleDuty(0) = %d", got)
	}
	if got := scaleDuty(motor.MaxDuty); got != 1<<24 {
		t.Errorf("scaleDuty(255) = %d, want DutyMax", got)
	}
}

func TestOpen_Sim(t *testing.T) {
	b, err := Open(BackendSim, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := b.(*Recorder); !ok {
		t.Errorf("Open(sim) = %T, want *Recorder", b)
	}
	if _, err := Open("parallel-port", nil); err == nil {
		t.Error("expected error for unknown backend")
	}
}
