// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/hbridge/pkg/command"
	"github.com/Thermoquad/hbridge/pkg/telemetry"
)

var rawLogCommands bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw telemetry or command stream in human-readable format",
	Long: `Continuously decode and display what arrives on the connection.

By default the stream is decoded as drive telemetry, showing each frame with
timestamp, message type and decoded payload. With --commands the stream is
decoded as the motor command stream instead, which is useful for watching
what a controller sends to a drive.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogCommands, "commands", false, "Decode the command stream instead of telemetry")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	mode := "Telemetry"
	if rawLogCommands {
		mode = "Commands"
	}
	fmt.Printf("hbridge - Raw Log (%s)\n", mode)
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decode := decodeTelemetry()
	if rawLogCommands {
		decode = decodeCommands()
	}

	buf := make([]byte, 128)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			// For WebSocket connections, a read error usually means
			// the connection is permanently closed - exit gracefully
			if err == ErrConnectionClosed {
				log.Printf("Connection closed")
				return nil
			}
			log.Printf("Read error: %v", err)
			continue
		}

		for i := 0; i < n; i++ {
			decode(buf[i])
		}
	}
}

func decodeTelemetry() func(byte) {
	decoder := telemetry.NewDecoder()
	return func(b byte) {
		frame, err := decoder.DecodeByte(b)
		if err != nil {
			fmt.Printf("[ERROR] %v\n", err)
			return
		}
		if frame != nil {
			fmt.Print(telemetry.FormatFrame(frame))
		}
	}
}

func decodeCommands() func(byte) {
	var tok command.Tokenizer
	return func(b byte) {
		c, err := tok.DecodeByte(b)
		timestamp := time.Now().Format("15:04:05.000")
		if err != nil {
			fmt.Printf("[%s] [STREAM] %v\n", timestamp, err)
			return
		}
		if c != nil {
			fmt.Printf("[%s] %s\n", timestamp, c)
		}
	}
}
