// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/hbridge/pkg/command"
	"github.com/Thermoquad/hbridge/pkg/motor"
	"github.com/Thermoquad/hbridge/pkg/pins"
	"github.com/Thermoquad/hbridge/pkg/telemetry"
)

var (
	leftWiring  = motor.Wiring{IN1: "L1", IN2: "L2", EN: "LE"}
	rightWiring = motor.Wiring{IN1: "R1", IN2: "R2", EN: "RE"}
)

type testRig struct {
	host  *Host
	clock *ManualClock
	pins  *pins.Recorder
	out   *bytes.Buffer
	log   *lineLogger
}

// lineLogger collects log lines
type lineLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *lineLogger) Printf(format string, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *lineLogger) contains(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

func newRig(t *testing.T) *testRig {
	t.Helper()
	rec := pins.NewRecorder()
	cfg := motor.L298Config()
	logger := &lineLogger{}

	build := func(name string, w motor.Wiring) *motor.Controller {
		d, err := motor.NewDriver(motor.VariantEnablePWM, rec, w, cfg.MaxPWM)
		if err != nil {
			t.Fatalf("NewDriver: %v", err)
		}
		c, err := motor.NewController(cfg, d, motor.WithName(name), motor.WithLogger(logger))
		if err != nil {
			t.Fatalf("NewController: %v", err)
		}
		return c
	}

	clock := NewManualClock(0, 0)
	out := &bytes.Buffer{}
	h, err := New(build("left", leftWiring), build("right", rightWiring), clock,
		WithTelemetry(telemetry.NewEncoder(out, 0x42)), WithLogger(logger))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testRig{host: h, clock: clock, pins: rec, out: out, log: logger}
}

func (r *testRig) feed(t *testing.T, s string) {
	t.Helper()
	if err := r.host.Feed([]byte(s)); err != nil {
		t.Fatalf("Feed(%q): %v", s, err)
	}
}

func (r *testRig) tick(t *testing.T, ms int) {
	t.Helper()
	r.clock.Advance(ms)
	if err := r.host.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
}

// frames decodes and clears everything written so far
func (r *testRig) frames(t *testing.T) []*telemetry.Frame {
	t.Helper()
	d := telemetry.NewDecoder()
	var frames []*telemetry.Frame
	for _, b := range r.out.Bytes() {
		f, err := d.DecodeByte(b)
		if err != nil {
			t.Fatalf("telemetry decode error: %v", err)
		}
		if f != nil {
			if f.Address() != 0x42 {
				t.Errorf("frame address = 0x%X, want 0x42", f.Address())
			}
			frames = append(frames, f)
		}
	}
	r.out.Reset()
	return frames
}

func (r *testRig) events(t *testing.T) []telemetry.DriveEvent {
	t.Helper()
	var events []telemetry.DriveEvent
	for _, f := range r.frames(t) {
		if f.Type() != telemetry.MsgDriveEvent {
			continue
		}
		ev, err := telemetry.ParseDriveEvent(f)
		if err != nil {
			t.Fatalf("ParseDriveEvent: %v", err)
		}
		events = append(events, ev)
	}
	return events
}

func countEvents(events []telemetry.DriveEvent, motorIndex uint8, kind telemetry.Event) int {
	n := 0
	for _, ev := range events {
		if ev.Motor == motorIndex && ev.Event == kind {
			n++
		}
	}
	return n
}

// ============================================================
// Construction
// ============================================================

func TestNew_Rejects(t *testing.T) {
	rig := newRig(t)
	left := rig.host.Motor(Left)

	if _, err := New(nil, left, rig.clock); err == nil {
		t.Error("expected error for missing controller")
	}
	if _, err := New(left, left, nil); err == nil {
		t.Error("expected error for nil clock")
	}
}

// ============================================================
// Speed Commands
// ============================================================

func TestFeed_LeftStartsAndRuns(t *testing.T) {
	rig := newRig(t)

	rig.feed(t, "L100\n")
	left, right := rig.host.Motor(Left), rig.host.Motor(Right)
	if left.Mode() != motor.ModeStartingForward {
		t.Fatalf("left mode = %s, want START_FWD", left.Mode())
	}
	if right.Mode() != motor.ModeStopped {
		t.Errorf("right mode = %s, want STOPPED", right.Mode())
	}
	if got := rig.pins.State("LE").Duty; got != motor.MaxDuty {
		t.Errorf("start pulse EN duty = %d, want %d", got, motor.MaxDuty)
	}

	rig.tick(t, 50)
	if left.Mode() != motor.ModeForward || left.AppliedSpeed() != 100 {
		t.Fatalf("after pulse: %s applied=%d, want FWD 100", left.Mode(), left.AppliedSpeed())
	}
	if got := rig.pins.State("LE").Duty; got != 100 {
		t.Errorf("EN duty = %d, want 100", got)
	}
	if !rig.pins.State("L2").Level() || rig.pins.State("L1").Level() {
		t.Error("forward must drive IN2 high and IN1 low")
	}
}

func TestFeed_BothReverse(t *testing.T) {
	rig := newRig(t)
	rig.feed(t, "G-80;")

	for i := Left; i <= Right; i++ {
		m := rig.host.Motor(i)
		if m.Mode() != motor.ModeStartingReverse || m.CommandedSpeed() != -80 {
			t.Errorf("motor %d: %s cmd=%d, want START_REV -80", i, m.Mode(), m.CommandedSpeed())
		}
	}
}

func TestFeed_SplitAcrossChunks(t *testing.T) {
	rig := newRig(t)
	rig.feed(t, "R")
	rig.feed(t, "-1")
	rig.feed(t, "20")
	if rig.host.Motor(Right).Mode() != motor.ModeStopped {
		t.Fatal("command must wait for a separator")
	}
	rig.feed(t, " ")
	if got := rig.host.Motor(Right).CommandedSpeed(); got != -120 {
		t.Errorf("commanded = %d, want -120", got)
	}
}

// ============================================================
// Deadman and Emergency Stop
// ============================================================

func TestTick_DeadmanEmitsEmergencyEvent(t *testing.T) {
	rig := newRig(t)
	rig.feed(t, "L100\n")
	rig.tick(t, 50)
	rig.frames(t)

	rig.tick(t, 500)
	if rig.host.Motor(Left).Mode() != motor.ModeForward {
		t.Fatal("deadline not yet passed, motor must keep running")
	}
	rig.tick(t, 1)
	if rig.host.Motor(Left).Mode() != motor.ModeStopping {
		t.Fatalf("mode = %s, want STOPPING after deadman", rig.host.Motor(Left).Mode())
	}

	events := rig.events(t)
	if countEvents(events, telemetry.MotorLeft, telemetry.EventEmergencyStop) != 1 {
		t.Errorf("events = %+v, want one left EMERGENCY_STOP", events)
	}
	if countEvents(events, telemetry.MotorRight, telemetry.EventEmergencyStop) != 0 {
		t.Error("right motor was idle and must not report an emergency")
	}
}

func TestFeed_EmergencyStopsBoth(t *testing.T) {
	rig := newRig(t)
	rig.feed(t, "G150\n")
	rig.frames(t)

	rig.feed(t, "!")
	for i := Left; i <= Right; i++ {
		m := rig.host.Motor(i)
		if m.Mode() != motor.ModeStopping || m.CommandedSpeed() != 0 {
			t.Errorf("motor %d: %s cmd=%d, want STOPPING 0", i, m.Mode(), m.CommandedSpeed())
		}
	}
	events := rig.events(t)
	if countEvents(events, telemetry.MotorLeft, telemetry.EventEmergencyStop) != 1 ||
		countEvents(events, telemetry.MotorRight, telemetry.EventEmergencyStop) != 1 {
		t.Errorf("events = %+v, want one EMERGENCY_STOP per motor", events)
	}
}

func TestStop_OnShutdown(t *testing.T) {
	rig := newRig(t)
	rig.feed(t, "L60\n")
	if err := rig.host.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if rig.host.Motor(Left).Mode() != motor.ModeStopping {
		t.Errorf("mode = %s, want STOPPING", rig.host.Motor(Left).Mode())
	}
	// brake: EN high, both inputs low
	if !rig.pins.State("LE").Level() || rig.pins.State("L1").Level() || rig.pins.State("L2").Level() {
		t.Error("left bridge not braked")
	}
}

// ============================================================
// Clock Wraparound
// ============================================================

func TestTick_BackwardClockReportsWrap(t *testing.T) {
	rig := newRig(t)
	rig.tick(t, 1000)
	rig.frames(t)

	rig.clock.Set(10)
	if err := rig.host.Tick(); err != nil {
		t.Fatal(err)
	}
	events := rig.events(t)
	if countEvents(events, telemetry.MotorLeft, telemetry.EventClockWrap) != 1 ||
		countEvents(events, telemetry.MotorRight, telemetry.EventClockWrap) != 1 {
		t.Errorf("events = %+v, want one CLOCK_WRAP per motor", events)
	}
	if !rig.log.contains("clock wrap-around") {
		t.Error("missing wrap diagnostic")
	}
}

// ============================================================
// Configuration Commands
// ============================================================

func TestFeed_RuntimeSetters(t *testing.T) {
	rig := newRig(t)
	rig.feed(t, "t300 p20 S100 T1000 d150 m200\n")

	for i := Left; i <= Right; i++ {
		cfg := rig.host.Motor(i).Config()
		if cfg.DeadTime != 300 || cfg.StartupTime != 20 || cfg.SettleTime != 100 || cfg.StopTime != 1000 {
			t.Errorf("motor %d timing = %+v", i, cfg)
		}
		if cfg.Decel != 1.5 {
			t.Errorf("motor %d decel = %v, want 1.5", i, cfg.Decel)
		}
		if cfg.MaxPWM != 200 {
			t.Errorf("motor %d max PWM = %d, want 200", i, cfg.MaxPWM)
		}
	}

	rig.feed(t, "L255\n")
	if got := rig.host.Motor(Left).CommandedSpeed(); got != 200 {
		t.Errorf("commanded = %d, want clamp to new max 200", got)
	}
}

func TestFeed_RejectedSetterReportsMalformed(t *testing.T) {
	rig := newRig(t)
	rig.feed(t, "t0\n")

	if got := rig.host.Motor(Left).Config().DeadTime; got != motor.DefaultDeadTime {
		t.Errorf("dead time = %d, invalid value must be ignored", got)
	}
	events := rig.events(t)
	if countEvents(events, telemetry.MotorBoth, telemetry.EventMalformedCommand) != 1 {
		t.Errorf("events = %+v, want one MALFORMED_COMMAND", events)
	}
	if !rig.log.contains("rejected") {
		t.Error("missing rejection log")
	}
}

func TestFeed_DiagnosticsRefill(t *testing.T) {
	rig := newRig(t)
	left := rig.host.Motor(Left)
	left.ShowDiagnostics(0)

	rig.feed(t, "^")
	rig.feed(t, "L50\n")
	if !rig.log.contains("left: Start FWD") {
		t.Error("diagnostics not re-enabled by ^")
	}
}

// ============================================================
// Stream Errors and Unsupported Commands
// ============================================================

func TestFeed_StreamErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  telemetry.Event
	}{
		{"reset", "L12~", telemetry.EventStreamReset},
		{"stray minus", " -", telemetry.EventMalformedCommand},
		{"minus after digits", "L1-", telemetry.EventMalformedCommand},
		{"current limit", "C5\n", telemetry.EventUnsupportedCommand},
		{"autonomous", "a", telemetry.EventUnsupportedCommand},
		{"rate", "r3 ", telemetry.EventUnsupportedCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newRig(t)
			rig.frames(t)
			rig.feed(t, tt.input)
			events := rig.events(t)
			if len(events) != 1 || events[0].Event != tt.want || events[0].Motor != telemetry.MotorBoth {
				t.Errorf("events = %+v, want single %s for both motors", events, tt.want)
			}
			if rig.host.Motor(Left).Mode() != motor.ModeStopped {
				t.Error("stream errors must not move the motor")
			}
		})
	}
}

func TestFeed_ResetDropsPendingCommand(t *testing.T) {
	rig := newRig(t)
	rig.feed(t, "L200~\n")
	if rig.host.Motor(Left).Mode() != motor.ModeStopped {
		t.Error("reset must discard the pending speed")
	}
	commands, _, streamErrors := rig.host.Stats()
	if commands != 0 || streamErrors != 1 {
		t.Errorf("stats commands=%d streamErrors=%d, want 0/1", commands, streamErrors)
	}
}

// ============================================================
// Telemetry
// ============================================================

func TestFeed_StatusPublishesFrames(t *testing.T) {
	rig := newRig(t)
	rig.feed(t, "R-90\n")
	rig.frames(t)

	rig.feed(t, "?")
	var statuses []telemetry.MotorStatus
	configs := 0
	for _, f := range rig.frames(t) {
		if v := telemetry.ValidateFrame(f); len(v) != 0 {
			t.Errorf("invalid frame %s: %v", telemetry.FormatFrame(f), v)
		}
		switch f.Type() {
		case telemetry.MsgMotorStatus:
			s, err := telemetry.ParseMotorStatus(f)
			if err != nil {
				t.Fatal(err)
			}
			statuses = append(statuses, s)
		case telemetry.MsgDriveConfig:
			configs++
		}
	}
	if len(statuses) != 2 || configs != 2 {
		t.Fatalf("got %d status and %d config frames, want 2 each", len(statuses), configs)
	}
	right := statuses[1]
	if right.Motor != telemetry.MotorRight || right.Mode != motor.ModeStartingReverse || right.Commanded != -90 {
		t.Errorf("right status = %+v", right)
	}
	if !rig.log.contains("right: START_REV") {
		t.Error("? must log the status of each motor")
	}
}

func TestHost_WithoutTelemetry(t *testing.T) {
	rig := newRig(t)
	h, err := New(rig.host.Motor(Left), rig.host.Motor(Right), rig.clock)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Feed([]byte("L10 ? a ~ !")); err != nil {
		t.Errorf("Feed without telemetry: %v", err)
	}
	if err := h.PublishStatus(); err != nil {
		t.Errorf("PublishStatus: %v", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, io.ErrClosedPipe }

func TestHost_TelemetryWriteError(t *testing.T) {
	rig := newRig(t)
	h, err := New(rig.host.Motor(Left), rig.host.Motor(Right), rig.clock,
		WithTelemetry(telemetry.NewEncoder(failingWriter{}, 1)))
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Feed([]byte("~")); err == nil {
		t.Error("expected write error to propagate")
	}
}

// ============================================================
// Run Loop
// ============================================================

func TestRun_DispatchesUntilEOF(t *testing.T) {
	rig := newRig(t)
	pr, pw := io.Pipe()

	result := make(chan error, 1)
	go func() {
		result <- rig.host.Run(context.Background(), pr, Intervals{Update: 5 * time.Millisecond})
	}()

	if _, err := pw.Write(command.EncodeLine(command.Command{Code: command.CodeLeft, Value: 120})); err != nil {
		t.Fatal(err)
	}
	pw.Close()

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("Run returned %v, want nil on EOF", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after EOF")
	}

	left := rig.host.Motor(Left)
	if left.Mode() != motor.ModeStopping || left.CommandedSpeed() != 0 {
		t.Errorf("left %s cmd=%d, want emergency stopped on EOF", left.Mode(), left.CommandedSpeed())
	}
	commands, _, _ := rig.host.Stats()
	if commands != 1 {
		t.Errorf("dispatched %d commands, want 1", commands)
	}
}

func TestRun_ContextCancel(t *testing.T) {
	rig := newRig(t)
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		result <- rig.host.Run(ctx, pr, Intervals{Update: 5 * time.Millisecond, Status: 5 * time.Millisecond})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	statuses, configs := 0, 0
	for _, f := range rig.frames(t) {
		switch f.Type() {
		case telemetry.MsgMotorStatus:
			statuses++
		case telemetry.MsgDriveConfig:
			configs++
		}
	}
	if configs != 2 {
		t.Errorf("got %d config frames, want 2 at startup", configs)
	}
	if statuses == 0 {
		t.Error("expected periodic status frames")
	}
}

type errReader struct{}

func (errReader) Read(p []byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestRun_ReadError(t *testing.T) {
	rig := newRig(t)
	err := rig.host.Run(context.Background(), errReader{}, Intervals{Update: time.Millisecond})
	if err == nil || !strings.Contains(err.Error(), "read failed") {
		t.Errorf("Run = %v, want read failure", err)
	}
}

// limitedWriter accepts n writes, then fails
type limitedWriter struct {
	n int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if w.n <= 0 {
		return 0, io.ErrClosedPipe
	}
	w.n--
	return len(p), nil
}

func TestRun_ReadErrorKeepsStopError(t *testing.T) {
	rig := newRig(t)
	// the two startup DRIVE_CONFIG frames go through, shutdown events do not
	h, err := New(rig.host.Motor(Left), rig.host.Motor(Right), rig.clock,
		WithTelemetry(telemetry.NewEncoder(&limitedWriter{n: 2}, 1)))
	if err != nil {
		t.Fatal(err)
	}

	err = h.Run(context.Background(), errReader{}, Intervals{Update: time.Second})
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Run = %v, want the read error", err)
	}
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Run = %v, want the telemetry error from stopping", err)
	}
	if h.Motor(Left).Status().Emergencies == 0 {
		t.Error("motors not emergency-stopped")
	}
}

func TestRun_RejectsZeroInterval(t *testing.T) {
	rig := newRig(t)
	if err := rig.host.Run(context.Background(), errReader{}, Intervals{}); err == nil {
		t.Error("expected error for zero update interval")
	}
}
