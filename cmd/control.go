// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/hbridge/pkg/config"
	"github.com/Thermoquad/hbridge/pkg/drive"
	"github.com/Thermoquad/hbridge/pkg/motor"
	"github.com/Thermoquad/hbridge/pkg/pins"
	"github.com/Thermoquad/hbridge/pkg/telemetry"
)

var (
	controlSim       bool
	controlKeepalive time.Duration
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for driving the motors",
	Long: `Drive the left and right motors from an interactive terminal UI.

The TUI sends speed commands to a drive over a serial port or WebSocket and
shows the MOTOR_STATUS and DRIVE_EVENT telemetry that comes back. With --sim
the drive runs in-process on simulated pins, and the pin levels and duties
are shown next to the motor state.

Keys:
  Tab / Shift+Tab  switch between motor list, speed input and send button
  Enter            send the speed to the selected motor(s)
  Space            emergency stop both motors
  ctrl+r           toggle keepalive (resend the last command before the deadman fires)
  ctrl+s           request status
  q                quit

Automatic reconnection on connection loss (remote mode).`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.Flags().BoolVar(&controlSim, "sim", false, "Run the drive in-process on simulated pins")
	controlCmd.Flags().DurationVar(&controlKeepalive, "keepalive", 200*time.Millisecond, "Keepalive resend interval")
}

// connectionManager handles connection lifecycle and reconnection
type connectionManager struct {
	conn     Connection
	connInfo string
	mu       sync.RWMutex
	p        *tea.Program
	done     chan struct{}

	// open is nil for connections that cannot be reopened
	open func() (Connection, string, error)
}

func (cm *connectionManager) getConn() Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.conn
}

func (cm *connectionManager) setConn(conn Connection, connInfo string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.conn = conn
	cm.connInfo = connInfo
}

// send writes encoded commands to the current connection
func (cm *connectionManager) send(data []byte) error {
	conn := cm.getConn()
	if conn == nil {
		return ErrConnectionClosed
	}
	_, err := conn.Write(data)
	return err
}

func runControl(cmd *cobra.Command, args []string) error {
	cm := &connectionManager{done: make(chan struct{})}
	var recorder *pins.Recorder
	var wirings [2]motor.Wiring

	if controlSim {
		profile, err := loadProfile()
		if err != nil {
			return err
		}
		link, err := newSimLink(profile)
		if err != nil {
			return err
		}
		recorder = link.recorder
		wirings[drive.Left], wirings[drive.Right] = profile.Wirings()
		cm.setConn(link, fmt.Sprintf("simulated %s drive", profile.Variant))
	} else {
		conn, connInfo, err := OpenConnection()
		if err != nil {
			return err
		}
		cm.setConn(conn, connInfo)
		cm.open = OpenConnection
	}

	m := initialControlModel(cm, cm.connInfo, controlKeepalive)
	m.recorder = recorder
	m.wirings = wirings

	// Create TUI program with alt screen and mouse support
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	cm.p = p

	go cm.readerLoop()

	// Ask the drive for its configuration and status
	cm.send(statusRequest())

	_, err := p.Run()
	close(cm.done) // Signal goroutines to stop
	cm.getConn().Close()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// readerLoop handles reading from connection with automatic reconnection
func (cm *connectionManager) readerLoop() {
	for {
		select {
		case <-cm.done:
			return
		default:
		}

		connLost := cm.readFromConnection()
		if !connLost {
			return
		}
		cm.p.Send(connectionLostMsg{})

		if cm.open == nil || !cm.reconnect() {
			return
		}
	}
}

// readFromConnection reads frames from the connection until it fails.
// Returns true if connection was lost, false if shutdown requested.
func (cm *connectionManager) readFromConnection() bool {
	fr := newFrameReader()

	// Buffered channel for batching updates
	batchChan := make(chan tea.Msg, 100)
	readerDone := make(chan struct{})

	emit := func(msg tea.Msg) {
		select {
		case batchChan <- msg:
		default:
		}
	}

	// Reader goroutine - decodes frames and sends to batch channel
	go func() {
		defer close(readerDone)
		buf := make([]byte, 128)
		for {
			select {
			case <-cm.done:
				return
			default:
			}

			conn := cm.getConn()
			if conn == nil {
				return
			}

			n, err := conn.Read(buf)
			if err != nil {
				select {
				case <-cm.done:
					return
				default:
					// For WebSocket connections, a read error usually means
					// the connection is permanently closed
					if err == ErrConnectionClosed || err == io.EOF {
						return
					}
					// Brief pause before retry on transient errors (e.g., serial)
					time.Sleep(10 * time.Millisecond)
					continue
				}
			}
			fr.feed(buf[:n], emit)
		}
	}()

	// Batch sender goroutine - sends batched updates to TUI at fixed rate
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-cm.done:
				return
			case <-readerDone:
				return
			case <-ticker.C:
				var batch batchMsg
			drainLoop:
				for {
					select {
					case msg := <-batchChan:
						batch.messages = append(batch.messages, msg)
					default:
						break drainLoop
					}
				}
				if len(batch.messages) > 0 {
					cm.p.Send(batch)
				}
			}
		}
	}()

	// Wait for reader to finish (connection lost or shutdown)
	<-readerDone

	select {
	case <-cm.done:
		return false
	default:
		return true
	}
}

// reconnect attempts to reconnect with exponential backoff.
// Returns false if shutdown was requested during reconnection.
func (cm *connectionManager) reconnect() bool {
	if conn := cm.getConn(); conn != nil {
		conn.Close()
	}

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-cm.done:
			return false
		case <-time.After(backoff):
		}

		conn, connInfo, err := cm.open()
		if err == nil {
			cm.setConn(conn, connInfo)
			cm.p.Send(reconnectedMsg{connInfo: connInfo})
			cm.send(statusRequest())
			return true
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// simLink runs a drive in-process and looks like a connection to it:
// writes are the command stream, reads return the telemetry.
type simLink struct {
	recorder *pins.Recorder
	commands *io.PipeWriter
	cancel   context.CancelFunc
	finished chan struct{}

	out       chan []byte
	pending   []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newSimLink(profile config.Profile) (*simLink, error) {
	l := &simLink{
		recorder: pins.NewRecorder(),
		out:      make(chan []byte, 256),
		closed:   make(chan struct{}),
		finished: make(chan struct{}),
	}

	// diagnostics would draw over the TUI
	quiet := log.New(io.Discard, "", 0)
	host, err := buildHost(profile, l.recorder, drive.NewSystemClock(profile.Timing.TickModulus), quiet,
		drive.WithTelemetry(telemetry.NewEncoder(telemetrySink{l}, profile.Address)))
	if err != nil {
		return nil, err
	}

	r, w := io.Pipe()
	l.commands = w
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel

	go func() {
		defer close(l.finished)
		iv := drive.Intervals{Update: profile.UpdateInterval, Status: profile.StatusInterval}
		if err := host.Run(ctx, r, iv); err != nil {
			quiet.Printf("simulated drive stopped: %v", err)
		}
	}()
	return l, nil
}

func (l *simLink) Read(p []byte) (int, error) {
	if len(l.pending) == 0 {
		select {
		case b := <-l.out:
			l.pending = b
		case <-l.closed:
			return 0, ErrConnectionClosed
		}
	}
	n := copy(p, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}

func (l *simLink) Write(p []byte) (int, error) {
	return l.commands.Write(p)
}

func (l *simLink) Close() error {
	l.closeOnce.Do(func() {
		l.cancel()
		l.commands.Close()
		<-l.finished
		close(l.closed)
	})
	return nil
}

// telemetrySink queues frames written by the drive. Frames are dropped
// when the TUI falls behind.
type telemetrySink struct {
	l *simLink
}

func (s telemetrySink) Write(p []byte) (int, error) {
	frame := make([]byte, len(p))
	copy(frame, p)
	select {
	case s.l.out <- frame:
	default:
	}
	return len(p), nil
}
