// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/hbridge/pkg/command"
	"github.com/Thermoquad/hbridge/pkg/telemetry"
)

var (
	sendCount    int
	sendInterval time.Duration
	sendWait     time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send COMMANDS",
	Short: "Send motor commands and print the telemetry that comes back",
	Long: `Send one line of motor commands to a drive.

The commands are checked locally before they are sent, so a typo is caught
here rather than showing up as a MALFORMED_COMMAND event. Telemetry frames
received while sending and during --wait are printed.

Use --count and --interval to repeat the line as a keepalive; a single send
is stopped by the drive's deadman after its command timeout.

Examples:
  # Both motors forward at half speed for about two seconds
  hbridge send --port /dev/ttyUSB0 --count 10 --interval 200ms "G128"

  # Left forward, right reverse, then ask for status
  hbridge send --url ws://drive.local/cmd "L100 R-100 ?"

  # Emergency stop
  hbridge send --port /dev/ttyUSB0 "!"

Exit codes:
  0 - Commands sent
  1 - Invalid commands or a send failed
  2 - Connection error`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().IntVar(&sendCount, "count", 1, "Number of times to send the line")
	sendCmd.Flags().DurationVar(&sendInterval, "interval", 200*time.Millisecond, "Delay between repeated sends")
	sendCmd.Flags().DurationVar(&sendWait, "wait", time.Second, "Time to keep printing telemetry after the last send")
}

func runSend(cmd *cobra.Command, args []string) error {
	line := strings.Join(args, " ")
	cmds, err := command.Parse(line)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid commands %q: %v\n", line, err)
		os.Exit(1)
	}
	if len(cmds) == 0 {
		fmt.Fprintf(os.Stderr, "No commands in %q\n", line)
		os.Exit(1)
	}
	for _, c := range cmds {
		if !driveAccepts(c.Code) {
			fmt.Fprintf(os.Stderr, "Warning: %s is not supported by the drive\n", c)
		}
	}
	wire := command.EncodeLine(cmds...)

	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("hbridge - Send\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Commands: %s\n", strings.TrimSpace(string(wire)))
	if sendCount > 1 {
		fmt.Printf("Repeat: %d times every %s\n", sendCount, sendInterval)
	}
	fmt.Println()

	// Print telemetry while sending
	frames := make(chan *telemetry.Frame, 16)
	go func() {
		decoder := telemetry.NewDecoder()
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				if err == ErrConnectionClosed {
					close(frames)
					return
				}
				time.Sleep(10 * time.Millisecond)
				continue
			}
			for i := 0; i < n; i++ {
				frame, decodeErr := decoder.DecodeByte(buf[i])
				if decodeErr != nil {
					// Ignore decode errors
					continue
				}
				if frame != nil {
					frames <- frame
				}
			}
		}
	}()

	failCount := 0
	received := 0
	deadline := time.After(0)
	for i := 1; i <= sendCount; {
		select {
		case <-deadline:
			if _, err := conn.Write(wire); err != nil {
				fmt.Printf("Send %d/%d: FAILED: %v\n", i, sendCount, err)
				failCount++
			}
			i++
			if i <= sendCount {
				deadline = time.After(sendInterval)
			}
		case frame, ok := <-frames:
			if !ok {
				fmt.Fprintf(os.Stderr, "Connection closed\n")
				os.Exit(2)
			}
			received++
			fmt.Print(telemetry.FormatFrame(frame))
		}
	}

	timeout := time.After(sendWait)
wait:
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				break wait
			}
			received++
			fmt.Print(telemetry.FormatFrame(frame))
		case <-timeout:
			break wait
		}
	}

	fmt.Printf("\n--- Send statistics ---\n")
	fmt.Printf("%d sends, %d failed, %d telemetry frames received\n", sendCount, failCount, received)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}

// driveAccepts reports whether the drive dispatches code. The current
// sense and auto codes are tokenized but answered with UNSUPPORTED_COMMAND.
func driveAccepts(code byte) bool {
	switch code {
	case command.CodeLeft, command.CodeRight, command.CodeBoth,
		command.CodeEmergency, command.CodeStatus, command.CodeDiagnostics,
		command.CodeDeadman, command.CodePulse, command.CodeSettle,
		command.CodeStopLockout, command.CodeDecel, command.CodeMaxPWM:
		return true
	}
	return false
}
