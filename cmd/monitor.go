// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/hbridge/pkg/telemetry"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Monitor drive telemetry and detect malformed frames",
	Long: `Track drive status, events and frame errors with statistics.

This command validates each telemetry frame and detects:
  - CRC errors and decode failures
  - Malformed frames (missing fields, bad motor index, unknown events)
  - Impossible values (PWM above 255, PWM applied while stopped)
  - Emergency stops, clock wraps and command stream errors

By default, only errors and drive events are displayed. Use --show-all to
display valid frames too.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds, text mode)")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

// frameReader decodes telemetry from a byte stream. Decode errors before
// the first good frame are counted, not reported.
type frameReader struct {
	decoder      *telemetry.Decoder
	synchronized bool
	invalidBytes int
}

func newFrameReader() *frameReader {
	return &frameReader{decoder: telemetry.NewDecoder()}
}

// feed decodes data and passes syncMsg and frameMsg values to emit
func (fr *frameReader) feed(data []byte, emit func(tea.Msg)) {
	for _, b := range data {
		frame, decodeErr := fr.decoder.DecodeByte(b)

		if decodeErr != nil {
			if fr.synchronized {
				emit(frameMsg{decodeErr: decodeErr})
			} else {
				fr.invalidBytes++
			}
			continue
		}
		if frame == nil {
			continue
		}

		if !fr.synchronized {
			fr.synchronized = true
			emit(syncMsg{invalidBytes: fr.invalidBytes})
		}
		emit(frameMsg{frame: frame, validationErrors: telemetry.ValidateFrame(frame)})
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	if useTUI {
		return runMonitorTUI(conn, connInfo)
	}
	return runMonitorText(conn, connInfo)
}

// runMonitorTUI runs the monitor in TUI mode
func runMonitorTUI(conn Connection, connInfo string) error {
	p := tea.NewProgram(initialMonitorModel(connInfo, showAll))

	go func() {
		fr := newFrameReader()
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				if err == ErrConnectionClosed {
					p.Quit()
					return
				}
				log.Printf("Read error: %v", err)
				time.Sleep(10 * time.Millisecond)
				continue
			}
			fr.feed(buf[:n], p.Send)
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runMonitorText prints errors, events and periodic statistics
func runMonitorText(conn Connection, connInfo string) error {
	fmt.Printf("hbridge - Telemetry Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors and events\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := telemetry.NewStatistics()
	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	// Channel for non-blocking reads
	chunks := make(chan []byte, 10)
	closed := make(chan struct{})
	go func() {
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				if err == ErrConnectionClosed {
					close(closed)
					return
				}
				log.Printf("Read error: %v", err)
				time.Sleep(10 * time.Millisecond)
				continue
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			chunks <- data
		}
	}()

	fr := newFrameReader()
	for {
		select {
		case data := <-chunks:
			fr.feed(data, func(msg tea.Msg) {
				printMonitorMsg(stats, msg)
			})

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()

		case <-closed:
			log.Printf("Connection closed")
			fmt.Print(stats.String())
			return nil
		}
	}
}

func printMonitorMsg(stats *telemetry.Statistics, msg tea.Msg) {
	switch msg := msg.(type) {
	case syncMsg:
		if msg.invalidBytes > 0 {
			fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", msg.invalidBytes)
		} else {
			fmt.Printf("[SYNC] Synchronized\n\n")
		}

	case frameMsg:
		if msg.decodeErr != nil {
			stats.Update(nil, msg.decodeErr, nil)
			printDecodeError(msg.decodeErr)
			return
		}
		stats.Update(msg.frame, nil, msg.validationErrors)
		switch {
		case len(msg.validationErrors) > 0:
			printValidationErrors(msg.frame, msg.validationErrors)
		case msg.frame.Type() == telemetry.MsgDriveEvent:
			// Always print drive events
			printDriveEvent(msg.frame)
		case showAll:
			fmt.Print(telemetry.FormatFrame(msg.frame))
		}
	}
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, err)
	fmt.Printf("  >>> DECODE FAILED <<<\n\n")
}

// printDriveEvent prints a drive event, emergency stops in red
func printDriveEvent(f *telemetry.Frame) {
	timestamp := f.Timestamp().Format("15:04:05.000")
	ev, err := telemetry.ParseDriveEvent(f)
	if err != nil {
		fmt.Printf("[%s] DRIVE_EVENT: %v\n\n", timestamp, err)
		return
	}
	color := "1;33"
	if ev.Event == telemetry.EventEmergencyStop {
		color = "1;31"
	}
	fmt.Printf("[%s] \033[%smDRIVE_EVENT:\033[0m %s %s at tick %d\n\n",
		timestamp, color, telemetry.FormatMotor(ev.Motor), ev.Event, ev.Tick)
}

// printValidationErrors prints validation errors for a frame
func printValidationErrors(f *telemetry.Frame, errors []telemetry.ValidationError) {
	timestamp := f.Timestamp().Format("15:04:05.000")
	msgType := telemetry.FormatMessageType(f.Type())

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (0x%02X)\n", timestamp, msgType, f.Type())
	fmt.Printf("  CRC: \033[1;32mOK\033[0m\n")

	for i, err := range errors {
		switch err.Type {
		case telemetry.AnomalyMissingField, telemetry.AnomalyParseError, telemetry.AnomalyUnknownType:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
		case telemetry.AnomalyInvalidPWM:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
			if mode, ok := err.Details["mode"].(uint64); ok {
				fmt.Printf("    mode=%s\n", telemetry.ModeName(mode))
			}
		default:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
		}
	}

	fmt.Printf("  Payload: %s\n", telemetry.FormatPayload(f))
	fmt.Printf("  >>> FRAME REJECTED <<<\n\n")
}
