// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pins

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Thermoquad/hbridge/pkg/motor"
)

// WriteKind identifies the primitive behind a recorded write
type WriteKind int

// Recorded write kinds
const (
	WriteConfigure WriteKind = iota
	WriteDigital
	WriteAnalog
)

// Write is one recorded pin operation
type Write struct {
	Pin   motor.Pin
	Kind  WriteKind
	Value uint8 // 0/1 for digital writes, duty for analog writes
}

// String renders the write as "EN=1", "EN~128" or "cfg EN"
func (w Write) String() string {
	switch w.Kind {
	case WriteConfigure:
		return fmt.Sprintf("cfg %s", w.Pin)
	case WriteDigital:
		return fmt.Sprintf("%s=%d", w.Pin, w.Value)
	default:
		return fmt.Sprintf("%s~%d", w.Pin, w.Value)
	}
}

// PinState is the current output of a recorded pin
type PinState struct {
	Configured bool
	Duty       uint8 // 0 or 255 after a digital write
	Analog     bool  // last write was an analog write
}

// Level reports the pin as a digital level
func (s PinState) Level() bool {
	return s.Duty > 0
}

// String renders the state for display
func (s PinState) String() string {
	switch {
	case !s.Configured:
		return "--"
	case s.Analog:
		return fmt.Sprintf("~%d", s.Duty)
	case s.Level():
		return "HI"
	default:
		return "LO"
	}
}

// DefaultHistory is the number of writes a Recorder keeps
const DefaultHistory = 256

// Recorder is an in-memory PinIO. It is safe for concurrent use.
type Recorder struct {
	mu         sync.Mutex
	state      map[motor.Pin]PinState
	history    []Write
	maxHistory int
	writes     uint64
}

// NewRecorder creates a recorder keeping the last DefaultHistory writes
func NewRecorder() *Recorder {
	return &Recorder{
		state:      make(map[motor.Pin]PinState),
		maxHistory: DefaultHistory,
	}
}

func (r *Recorder) ConfigureOutput(pin motor.Pin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.state[pin]
	s.Configured = true
	r.state[pin] = s
	r.record(Write{Pin: pin, Kind: WriteConfigure})
	return nil
}

func (r *Recorder) DigitalWrite(pin motor.Pin, high bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.state[pin]
	s.Analog = false
	s.Duty = 0
	var v uint8
	if high {
		s.Duty = motor.MaxDuty
		v = 1
	}
	r.state[pin] = s
	r.record(Write{Pin: pin, Kind: WriteDigital, Value: v})
}

func (r *Recorder) AnalogWrite(pin motor.Pin, duty uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.state[pin]
	s.Analog = true
	s.Duty = duty
	r.state[pin] = s
	r.record(Write{Pin: pin, Kind: WriteAnalog, Value: duty})
}

// Close is a no-op
func (r *Recorder) Close() error {
	return nil
}

// record appends to the ring-limited history. Caller holds mu.
func (r *Recorder) record(w Write) {
	r.writes++
	r.history = append(r.history, w)
	if len(r.history) > r.maxHistory {
		r.history = r.history[len(r.history)-r.maxHistory:]
	}
}

// State returns the current state of pin
func (r *Recorder) State(pin motor.Pin) PinState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state[pin]
}

// Pins returns the names of all pins touched so far, sorted
func (r *Recorder) Pins() []motor.Pin {
	r.mu.Lock()
	defer r.mu.Unlock()
	pins := make([]motor.Pin, 0, len(r.state))
	for p := range r.state {
		pins = append(pins, p)
	}
	sort.Slice(pins, func(i, j int) bool { return pins[i] < pins[j] })
	return pins
}

// History returns a copy of the recent writes, oldest first
func (r *Recorder) History() []Write {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Write, len(r.history))
	copy(out, r.history)
	return out
}

// Writes returns the total number of operations recorded
func (r *Recorder) Writes() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

// ClearHistory drops recorded writes but keeps pin state
func (r *Recorder) ClearHistory() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = r.history[:0]
}
