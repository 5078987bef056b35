// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/hbridge/pkg/telemetry"
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for notices
}

// Latest MOTOR_STATUS of one motor
type motorView struct {
	status  telemetry.MotorStatus
	updated time.Time
}

// driveView is the telemetry state shared by the monitor and control TUIs
type driveView struct {
	stats         *telemetry.Statistics
	eventLog      []logEntry
	maxLogEntries int
	synchronized  bool
	invalidBytes  int
	showAll       bool

	motors  [2]*motorView
	configs [2]string
	address uint64
	seen    bool
}

// Messages
type tickMsg time.Time
type frameMsg struct {
	frame            *telemetry.Frame
	decodeErr        error
	validationErrors []telemetry.ValidationError
}
type syncMsg struct {
	invalidBytes int
}

// Shared styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	focusedBoxStyle = boxStyle.
			BorderForeground(lipgloss.Color("12"))
)

// formatUptime formats uptime in milliseconds to human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n uint64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func newDriveView(showAll bool) driveView {
	return driveView{
		stats:         telemetry.NewStatistics(),
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		showAll:       showAll,
	}
}

func (v *driveView) addLogEntry(message string, isError bool) {
	v.eventLog = append(v.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(v.eventLog) > v.maxLogEntries {
		v.eventLog = v.eventLog[len(v.eventLog)-v.maxLogEntries:]
	}
}

func (v *driveView) handleSync(msg syncMsg) {
	v.synchronized = true
	v.invalidBytes = msg.invalidBytes
	if msg.invalidBytes > 0 {
		v.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", msg.invalidBytes), false)
	} else {
		v.addLogEntry("Synchronized", false)
	}
}

// handleFrame records one decode result
func (v *driveView) handleFrame(msg frameMsg) {
	if msg.decodeErr != nil {
		if v.synchronized {
			v.stats.Update(nil, msg.decodeErr, nil)
			v.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", msg.decodeErr), true)
		}
		return
	}
	f := msg.frame
	if f == nil {
		return
	}

	v.stats.Update(f, nil, msg.validationErrors)
	v.address = f.Address()
	v.seen = true

	msgType := telemetry.FormatMessageType(f.Type())
	if len(msg.validationErrors) > 0 {
		for _, err := range msg.validationErrors {
			v.addLogEntry(fmt.Sprintf("%s: %s", msgType, err.Message), true)
		}
		return
	}

	switch f.Type() {
	case telemetry.MsgMotorStatus:
		s, err := telemetry.ParseMotorStatus(f)
		if err == nil && int(s.Motor) < len(v.motors) {
			v.motors[s.Motor] = &motorView{status: s, updated: f.Timestamp()}
		}
	case telemetry.MsgDriveConfig:
		idx, _ := telemetry.GetMapUint(f.PayloadMap(), telemetry.KeyMotor)
		if idx < uint64(len(v.configs)) {
			v.configs[idx] = telemetry.FormatPayload(f)
		}
	case telemetry.MsgDriveEvent:
		if ev, err := telemetry.ParseDriveEvent(f); err == nil {
			isError := ev.Event == telemetry.EventEmergencyStop || ev.Event == telemetry.EventMalformedCommand
			v.addLogEntry(fmt.Sprintf("%s %s at tick %d", telemetry.FormatMotor(ev.Motor), ev.Event, ev.Tick), isError)
		}
		return
	}

	if v.showAll {
		v.addLogEntry(fmt.Sprintf("%s (valid)", msgType), false)
	}
}

func (v driveView) renderSync() string {
	if !v.synchronized {
		return warningStyle.Render("Waiting for synchronization...")
	}
	s := valueStyle.Render("Synchronized")
	if v.invalidBytes > 0 {
		s += headerStyle.Render(fmt.Sprintf(" (skipped %d invalid bytes)", v.invalidBytes))
	}
	return s
}

func (v driveView) renderStatistics(width int) string {
	v.stats.CalculateRates()
	var validPercent, errorPercent float64
	if v.stats.TotalFrames > 0 {
		validPercent = float64(v.stats.ValidFrames) * 100.0 / float64(v.stats.TotalFrames)
		errorPercent = float64(v.stats.ErrorCount()) * 100.0 / float64(v.stats.TotalFrames)
	}

	var content strings.Builder
	content.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("Total:"), valueStyle.Render(fmt.Sprintf("%d", v.stats.TotalFrames)),
		labelStyle.Render("Valid:"), valueStyle.Render(fmt.Sprintf("%d (%.1f%%)", v.stats.ValidFrames, validPercent)),
		labelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", v.stats.ErrorCount(), errorPercent)),
	))

	if v.stats.CRCErrors > 0 || v.stats.DecodeErrors > 0 || v.stats.MalformedFrames > 0 {
		content.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			labelStyle.Render("CRC:"), errorStyle.Render(fmt.Sprintf("%d", v.stats.CRCErrors)),
			labelStyle.Render("Decode:"), errorStyle.Render(fmt.Sprintf("%d", v.stats.DecodeErrors)),
			labelStyle.Render("Malformed:"), errorStyle.Render(fmt.Sprintf("%d", v.stats.MalformedFrames)),
		))
	}

	content.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("E-stops:"), warningStyle.Render(fmt.Sprintf("%d", v.stats.Emergencies)),
		labelStyle.Render("Wraps:"), warningStyle.Render(fmt.Sprintf("%d", v.stats.ClockWraps)),
		labelStyle.Render("Stream:"), warningStyle.Render(fmt.Sprintf("%d", v.stats.StreamErrors)),
	))

	errRate := valueStyle.Render(fmt.Sprintf("%.1f err/s", v.stats.ErrorRate))
	if v.stats.ErrorRate > 0 {
		errRate = errorStyle.Render(fmt.Sprintf("%.1f err/s", v.stats.ErrorRate))
	}
	content.WriteString(fmt.Sprintf("%s %s   %s %s",
		labelStyle.Render("Frame Rate:"), valueStyle.Render(fmt.Sprintf("%.1f frames/s", v.stats.FrameRate)),
		labelStyle.Render("Error Rate:"), errRate,
	))

	return boxStyle.Width(width).Render(content.String())
}

func (v driveView) renderMotors(width int) string {
	var content strings.Builder
	if v.seen {
		content.WriteString(fmt.Sprintf("%s %016X\n", labelStyle.Render("Drive:"), v.address))
	}
	for i, mv := range v.motors {
		name := labelStyle.Render(fmt.Sprintf("%-6s", telemetry.FormatMotor(uint8(i))+":"))
		if mv == nil {
			content.WriteString(fmt.Sprintf("%s %s\n", name, headerStyle.Render("no status yet")))
			continue
		}
		s := mv.status
		mode := valueStyle.Render(fmt.Sprintf("%-9s", s.Mode))
		if s.Mode.Starting() {
			mode = warningStyle.Render(fmt.Sprintf("%-9s", s.Mode))
		}
		content.WriteString(fmt.Sprintf("%s %s cmd %s  pwm %s  deadline %d  up %s\n",
			name, mode,
			valueStyle.Render(fmt.Sprintf("%4d", s.Commanded)),
			valueStyle.Render(fmt.Sprintf("%3d", s.Applied)),
			s.Deadline,
			formatUptime(uint64(s.Tick)),
		))
	}
	for i, c := range v.configs {
		if c != "" {
			content.WriteString(headerStyle.Render(fmt.Sprintf("config %s", strings.TrimSpace(c))))
			if i < len(v.configs)-1 {
				content.WriteString("\n")
			}
		}
	}
	return boxStyle.Width(width).Render(strings.TrimRight(content.String(), "\n"))
}

func (v driveView) renderEventLog(width, height int) string {
	if height < 5 {
		height = 5
	}

	var content strings.Builder
	startIdx := len(v.eventLog) - height
	if startIdx < 0 {
		startIdx = 0
	}

	if len(v.eventLog) == 0 {
		content.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(v.eventLog); i++ {
			entry := v.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				content.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("x "+entry.message),
				))
			} else {
				content.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("i "+entry.message),
				))
			}
		}
	}

	return boxStyle.Width(width).Render(strings.TrimRight(content.String(), "\n"))
}

//////////////////////////////////////////////////////////////
// Monitor TUI
//////////////////////////////////////////////////////////////

type monitorModel struct {
	driveView
	connInfo string
	width    int
	height   int
	quitting bool
}

func initialMonitorModel(connInfo string, showAll bool) monitorModel {
	return monitorModel{
		driveView: newDriveView(showAll),
		connInfo:  connInfo,
		width:     80,
		height:    24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(time.Second),
		tea.EnterAltScreen,
	)
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd(time.Second)

	case syncMsg:
		m.handleSync(msg)

	case frameMsg:
		m.handleFrame(msg)
	}

	return m, nil
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	mode := "Errors and events"
	if m.showAll {
		mode = "All frames"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("HBRIDGE - MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | r=reset stats q=quit", m.connInfo, mode)))
	s.WriteString("\n\n")
	s.WriteString(m.renderSync())
	s.WriteString("\n\n")
	s.WriteString(m.renderStatistics(m.width - 4))
	s.WriteString("\n")
	s.WriteString(m.renderMotors(m.width - 4))
	s.WriteString("\n")
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(m.renderEventLog(m.width-4, m.height-22))
	return s.String()
}
