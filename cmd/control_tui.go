// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/hbridge/pkg/command"
	"github.com/Thermoquad/hbridge/pkg/motor"
	"github.com/Thermoquad/hbridge/pkg/pins"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const controlTickInterval = 50 * time.Millisecond

// Focus states
const (
	focusTargetList = iota
	focusSpeedInput
	focusButton
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// target is a speed command destination
type target struct {
	code byte
	name string
	desc string
}

// Implement list.Item interface
func (t target) Title() string       { return t.name }
func (t target) Description() string { return t.desc }
func (t target) FilterValue() string { return t.name }

var targets = []list.Item{
	target{code: command.CodeLeft, name: "Left", desc: "L<speed>"},
	target{code: command.CodeRight, name: "Right", desc: "R<speed>"},
	target{code: command.CodeBoth, name: "Both", desc: "G<speed>"},
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	driveView

	// Connection manager (for sending commands and reconnection)
	connMgr  *connectionManager
	connInfo string

	// Control
	targetList   list.Model
	speedInput   textinput.Model
	focusedField int

	// Keepalive resends the last speed command
	keepalive         bool
	keepaliveInterval time.Duration
	lastCommand       []byte
	lastSent          time.Time

	// Simulated pins, nil in remote mode
	recorder *pins.Recorder
	wirings  [2]motor.Wiring

	// UI state
	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type batchMsg struct {
	messages []tea.Msg
}

type connectionLostMsg struct{}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(connMgr *connectionManager, connInfo string, keepaliveInterval time.Duration) controlModel {
	ti := textinput.New()
	ti.Placeholder = "120"
	ti.CharLimit = 4
	ti.Width = 10

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	targetList := list.New(targets, delegate, 20, 10)
	targetList.Title = "Motors"
	targetList.SetShowStatusBar(false)
	targetList.SetShowHelp(false)
	targetList.SetFilteringEnabled(false)

	return controlModel{
		driveView:         newDriveView(false),
		connMgr:           connMgr,
		connInfo:          connInfo,
		targetList:        targetList,
		speedInput:        ti,
		focusedField:      focusTargetList,
		keepaliveInterval: keepaliveInterval,
		width:             80,
		height:            24,
	}
}

// statusRequest asks the drive for status and configuration frames
func statusRequest() []byte {
	return command.EncodeLine(command.Command{Code: command.CodeStatus})
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return tickCmd(controlTickInterval)
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		m.targetList, _ = m.targetList.Update(msg)
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case tickMsg:
		m.stats.CalculateRates()
		if m.keepalive && m.lastCommand != nil && !m.connectionLost &&
			time.Since(m.lastSent) >= m.keepaliveInterval {
			m.resend()
		}
		return m, tickCmd(controlTickInterval)

	case batchMsg:
		for _, inner := range msg.messages {
			switch inner := inner.(type) {
			case syncMsg:
				m.handleSync(inner)
			case frameMsg:
				m.handleFrame(inner)
			}
		}

	case connectionLostMsg:
		m.connectionLost = true
		m.synchronized = false
		m.addLogEntry("Connection lost - reconnecting...", true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry("Reconnected", false)
	}

	// Update child components
	var cmd tea.Cmd
	if m.focusedField == focusSpeedInput {
		m.speedInput, cmd = m.speedInput.Update(msg)
		cmds = append(cmds, cmd)
	}
	if m.focusedField == focusTargetList {
		m.targetList, cmd = m.targetList.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "q":
		if m.focusedField != focusSpeedInput {
			m.quitting = true
			return m, tea.Quit
		}

	case " ":
		m.emergencyStop()
		return m, nil

	case "ctrl+r":
		m.keepalive = !m.keepalive
		if m.keepalive {
			m.addLogEntry(fmt.Sprintf("Keepalive on (every %s)", m.keepaliveInterval), false)
		} else {
			m.addLogEntry("Keepalive off", false)
		}
		return m, nil

	case "ctrl+s":
		m.sendRaw(statusRequest(), "?")
		return m, nil

	case "tab":
		return m.cycleFocus(1), nil

	case "shift+tab":
		return m.cycleFocus(-1), nil

	case "enter":
		return m.sendSpeed()

	case "up", "k", "down", "j":
		if m.focusedField == focusTargetList {
			m.targetList, _ = m.targetList.Update(msg)
			return m, nil
		}
	}

	// Pass through to focused component
	if m.focusedField == focusSpeedInput {
		var cmd tea.Cmd
		m.speedInput, cmd = m.speedInput.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *controlModel) cycleFocus(delta int) *controlModel {
	maxFocus := focusButton
	m.focusedField = (m.focusedField + delta + maxFocus + 1) % (maxFocus + 1)

	if m.focusedField == focusSpeedInput {
		m.speedInput.Focus()
	} else {
		m.speedInput.Blur()
	}
	return m
}

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	buttonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	focusedButtonStyle := buttonStyle.
		Background(lipgloss.Color("10"))

	var s strings.Builder

	// Header
	s.WriteString(titleStyle.Render("HBRIDGE CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | Tab=switch Enter=send Space=STOP ctrl+r=keepalive ctrl+s=status q=quit", connStatus)))
	s.WriteString("\n\n")

	// Layout: left panel (motors) | right panel (control)
	leftWidth := 22
	rightWidth := m.width - leftWidth - 6

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusTargetList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	targetPanel := listStyle.Render(m.targetList.View())
	controlPanel := boxStyle.Width(rightWidth).Render(m.renderControlPanel(buttonStyle, focusedButtonStyle))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, targetPanel, " ", controlPanel))
	s.WriteString("\n")

	s.WriteString(m.renderMotors(m.width - 4))
	s.WriteString("\n")

	if m.recorder != nil {
		s.WriteString(m.renderPins(m.width - 4))
		s.WriteString("\n")
	}

	s.WriteString(m.renderStatistics(m.width - 4))
	s.WriteString("\n")

	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")
	s.WriteString(m.renderEventLog(m.width-4, 8))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderControlPanel(buttonStyle, focusedButtonStyle lipgloss.Style) string {
	var s strings.Builder

	selected := m.selectedTarget()
	s.WriteString(fmt.Sprintf("%s %s\n\n", labelStyle.Render("Target:"), valueStyle.Render(selected.name)))

	s.WriteString(labelStyle.Render("Speed: "))
	if m.focusedField == focusSpeedInput {
		s.WriteString(m.speedInput.View())
	} else {
		val := m.speedInput.Value()
		if val == "" {
			val = m.speedInput.Placeholder
		}
		s.WriteString(fmt.Sprintf("[%s]", val))
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("  (-%d..%d)", motor.MaxDuty, motor.MaxDuty)))
	s.WriteString("\n\n")

	btnText := "[ Send ]"
	if m.focusedField == focusButton {
		s.WriteString(focusedButtonStyle.Render(btnText))
	} else {
		s.WriteString(buttonStyle.Render(btnText))
	}
	s.WriteString("\n\n")

	keepalive := headerStyle.Render("off")
	if m.keepalive {
		keepalive = valueStyle.Render("on")
	}
	s.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("Keepalive:"), keepalive))
	if m.lastCommand != nil {
		s.WriteString(fmt.Sprintf("   %s %s", labelStyle.Render("Last:"),
			valueStyle.Render(strings.TrimSpace(string(m.lastCommand)))))
	}

	return s.String()
}

func (m controlModel) renderPins(width int) string {
	var content strings.Builder
	content.WriteString(labelStyle.Render("PINS"))
	for i, w := range m.wirings {
		name := "left"
		if i == 1 {
			name = "right"
		}
		content.WriteString(fmt.Sprintf("\n%s IN1 %-4s IN2 %-4s EN %-4s",
			labelStyle.Render(fmt.Sprintf("%-6s", name+":")),
			m.recorder.State(w.IN1), m.recorder.State(w.IN2), m.recorder.State(w.EN)))
	}
	content.WriteString(headerStyle.Render(fmt.Sprintf("\n%d pin writes", m.recorder.Writes())))
	return boxStyle.Width(width).Render(content.String())
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

func (m *controlModel) sendSpeed() (tea.Model, tea.Cmd) {
	if m.focusedField == focusTargetList {
		// Enter on the list moves on to the speed
		return m.cycleFocus(1), nil
	}

	val := m.speedInput.Value()
	if val == "" {
		val = m.speedInput.Placeholder
	}
	speed, err := strconv.Atoi(val)
	if err != nil || speed < -motor.MaxDuty || speed > motor.MaxDuty {
		m.addLogEntry(fmt.Sprintf("Invalid speed %q (-%d..%d)", val, motor.MaxDuty, motor.MaxDuty), true)
		return m, nil
	}

	c := command.Command{Code: m.selectedTarget().code, Value: speed}
	data := command.EncodeLine(c)
	if m.sendRaw(data, c.String()) {
		m.lastCommand = data
	}
	return m, nil
}

func (m *controlModel) emergencyStop() {
	m.lastCommand = nil
	m.sendRaw(command.EncodeLine(command.Command{Code: command.CodeEmergency}), "!")
}

func (m *controlModel) resend() {
	if err := m.connMgr.send(m.lastCommand); err != nil {
		m.addLogEntry(fmt.Sprintf("Keepalive failed: %v", err), true)
		m.keepalive = false
		return
	}
	m.lastSent = time.Now()
}

func (m *controlModel) sendRaw(data []byte, label string) bool {
	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return false
	}
	if err := m.connMgr.send(data); err != nil {
		m.addLogEntry(fmt.Sprintf("Failed to send %s: %v", label, err), true)
		return false
	}
	m.lastSent = time.Now()
	m.addLogEntry(fmt.Sprintf("Sent %s", label), false)
	return true
}

func (m *controlModel) selectedTarget() target {
	if t, ok := m.targetList.SelectedItem().(target); ok {
		return t
	}
	return targets[0].(target)
}

func (m *controlModel) updateListSize() {
	listHeight := m.height / 3
	if listHeight < 8 {
		listHeight = 8
	}
	m.targetList.SetSize(20, listHeight)
}
