// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/hbridge/pkg/config"
	"github.com/Thermoquad/hbridge/pkg/drive"
	"github.com/Thermoquad/hbridge/pkg/motor"
	"github.com/Thermoquad/hbridge/pkg/pins"
	"github.com/Thermoquad/hbridge/pkg/telemetry"
)

var (
	drivePins           string
	driveUpdateInterval time.Duration
	driveStatusInterval time.Duration
	driveAddress        uint64
)

var driveCmd = &cobra.Command{
	Use:   "drive",
	Short: "Run the motor drive on a connection",
	Long: `Run both motor controllers from the command stream on a connection.

Commands are read from the serial port or WebSocket, dispatched to the left
and right controllers, and the controllers are updated on a fixed interval
so the deadman timeout fires even when the command source goes quiet.
MOTOR_STATUS, DRIVE_EVENT and DRIVE_CONFIG frames are written back on the
same connection.

Pin backends:
  sim    in-memory recorder (no hardware)
  gpio   periph.io GPIO with PWM where the pin supports it
  rpio   Raspberry Pi registers through go-rpio (hardware PWM on 12/13/18/19)
  sysfs  legacy /sys/class/gpio (digital only)

If the connection drops, both motors are emergency-stopped and the drive
reconnects with exponential backoff.`,
	RunE: runDrive,
}

func init() {
	rootCmd.AddCommand(driveCmd)
	driveCmd.Flags().StringVar(&drivePins, "pins", "", "Pin backend override (sim, gpio, rpio, sysfs)")
	driveCmd.Flags().DurationVar(&driveUpdateInterval, "update-interval", 0, "Controller update interval override")
	driveCmd.Flags().DurationVar(&driveStatusInterval, "status-interval", 0, "Status telemetry interval override")
	driveCmd.Flags().Uint64Var(&driveAddress, "address", 0, "Telemetry sender address override")
}

func runDrive(cmd *cobra.Command, args []string) error {
	profile, err := loadProfile()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("pins") {
		profile.Pins = drivePins
	}
	if cmd.Flags().Changed("update-interval") {
		profile.UpdateInterval = driveUpdateInterval
	}
	if cmd.Flags().Changed("status-interval") {
		profile.StatusInterval = driveStatusInterval
	}
	if cmd.Flags().Changed("address") {
		profile.Address = driveAddress
	}
	if err := profile.Validate(); err != nil {
		return err
	}

	logger := log.Default()

	bank, err := pins.Open(profile.Pins, logger)
	if err != nil {
		return err
	}
	defer bank.Close()

	conn, connInfo, err := OpenDriveConnection()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	link := &switchWriter{w: conn}
	host, err := buildHost(profile, bank, drive.NewSystemClock(profile.Timing.TickModulus), logger,
		drive.WithTelemetry(telemetry.NewEncoder(link, profile.Address)))
	if err != nil {
		conn.Close()
		return err
	}

	fmt.Printf("hbridge - Drive\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Driver: %s on %s pins\n", profile.Variant, profile.Pins)
	fmt.Printf("Timing: %s\n", host.Motor(drive.Left).Config())
	fmt.Printf("Press Ctrl+C to exit\n\n")

	intervals := drive.Intervals{Update: profile.UpdateInterval, Status: profile.StatusInterval}
	for {
		// unblock the reader goroutine on shutdown
		released := make(chan struct{})
		go func(c Connection) {
			select {
			case <-ctx.Done():
				c.Close()
			case <-released:
			}
		}(conn)

		runErr := host.Run(ctx, conn, intervals)
		close(released)
		conn.Close()

		if ctx.Err() != nil {
			commands, unsupported, streamErrors := host.Stats()
			log.Printf("Stopped after %d commands (%d unsupported, %d stream errors)", commands, unsupported, streamErrors)
			return nil
		}
		if runErr != nil {
			log.Printf("Connection lost: %v", runErr)
		} else {
			log.Printf("Connection closed")
		}

		conn, connInfo, err = reconnect(ctx)
		if err != nil {
			return nil
		}
		link.set(conn)
		log.Printf("Reconnected: %s", connInfo)
	}
}

// reconnect attempts to reconnect with exponential backoff.
// Returns an error only when ctx is cancelled.
func reconnect(ctx context.Context) (Connection, string, error) {
	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(backoff):
		}

		conn, connInfo, err := OpenDriveConnection()
		if err == nil {
			return conn, connInfo, nil
		}
		log.Printf("Reconnect failed: %v", err)

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// switchWriter lets the telemetry encoder follow reconnections. Only the
// goroutine running the host writes, and set is called between runs.
type switchWriter struct {
	w Connection
}

func (s *switchWriter) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

func (s *switchWriter) set(w Connection) {
	s.w = w
}

// buildHost wires two controllers with their output drivers to a host
func buildHost(p config.Profile, io motor.PinIO, clock drive.Clock, logger motor.Logger, opts ...drive.Option) (*drive.Host, error) {
	cfg, err := p.MotorConfig()
	if err != nil {
		return nil, err
	}
	variant := p.DriverVariant()
	// the driver clamps to what the chip accepts, the controller to MaxPWM
	ceiling := variant.Preset().MaxPWM

	build := func(name string, w motor.Wiring) (*motor.Controller, error) {
		d, err := motor.NewDriver(variant, io, w, ceiling)
		if err != nil {
			return nil, fmt.Errorf("%s motor: %w", name, err)
		}
		return motor.NewController(cfg, d, motor.WithName(name), motor.WithLogger(logger))
	}

	leftWiring, rightWiring := p.Wirings()
	left, err := build("left", leftWiring)
	if err != nil {
		return nil, err
	}
	right, err := build("right", rightWiring)
	if err != nil {
		return nil, err
	}

	opts = append([]drive.Option{drive.WithLogger(logger)}, opts...)
	return drive.New(left, right, clock, opts...)
}
