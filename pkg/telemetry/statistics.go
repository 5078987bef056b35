// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Statistics tracks frame counts and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames     uint64
	ValidFrames     uint64
	CRCErrors       uint64
	DecodeErrors    uint64
	MalformedFrames uint64
	StatusFrames    uint64
	EventFrames     uint64
	Emergencies     uint64
	ClockWraps      uint64
	StreamErrors    uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records one decode result
func (s *Statistics) Update(f *Frame, decodeErr error, validationErrors []ValidationError) {
	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		if errors.Is(decodeErr, ErrCRCMismatch) {
			s.CRCErrors++
		} else {
			s.DecodeErrors++
		}
		return
	}

	if len(validationErrors) > 0 {
		s.MalformedFrames++
		return
	}
	s.ValidFrames++

	switch f.Type() {
	case MsgMotorStatus:
		s.StatusFrames++
	case MsgDriveEvent:
		s.EventFrames++
		if ev, err := ParseDriveEvent(f); err == nil {
			switch ev.Event {
			case EventEmergencyStop:
				s.Emergencies++
			case EventClockWrap:
				s.ClockWraps++
			case EventStreamReset, EventMalformedCommand, EventUnsupportedCommand:
				s.StreamErrors++
			}
		}
	}
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.ErrorCount()) / elapsed
	}
}

// ErrorCount returns the number of rejected frames
func (s *Statistics) ErrorCount() uint64 {
	return s.CRCErrors + s.DecodeErrors + s.MalformedFrames
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	percent := func(n uint64) float64 {
		if s.TotalFrames == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.TotalFrames)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== Statistics (%.0f seconds) ===\n", time.Since(s.StartTime).Seconds())
	fmt.Fprintf(&b, "Total Frames:    %8d\n", s.TotalFrames)
	fmt.Fprintf(&b, "Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, percent(s.ValidFrames))
	if s.CRCErrors > 0 {
		fmt.Fprintf(&b, "CRC Errors:      %8d (%.1f%%)\n", s.CRCErrors, percent(s.CRCErrors))
	}
	if s.DecodeErrors > 0 {
		fmt.Fprintf(&b, "Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, percent(s.DecodeErrors))
	}
	if s.MalformedFrames > 0 {
		fmt.Fprintf(&b, "Malformed:       %8d (%.1f%%)\n", s.MalformedFrames, percent(s.MalformedFrames))
	}
	fmt.Fprintf(&b, "Status Frames:   %8d\n", s.StatusFrames)
	fmt.Fprintf(&b, "Event Frames:    %8d\n", s.EventFrames)
	if s.Emergencies > 0 {
		fmt.Fprintf(&b, "  Emergency Stop: %7d\n", s.Emergencies)
	}
	if s.ClockWraps > 0 {
		fmt.Fprintf(&b, "  Clock Wrap:     %7d\n", s.ClockWraps)
	}
	if s.StreamErrors > 0 {
		fmt.Fprintf(&b, "  Stream Errors:  %7d\n", s.StreamErrors)
	}
	fmt.Fprintf(&b, "Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	fmt.Fprintf(&b, "Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	b.WriteString("================================\n")
	return b.String()
}

// Reset resets all counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
