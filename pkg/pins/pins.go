// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package pins provides motor.PinIO backends.
//
// Recorder keeps pin state in memory for simulation and tests. GPIOBank
// drives Linux GPIO through periph.io, RPIOBank drives Raspberry Pi
// registers through go-rpio and SysfsBank uses the legacy sysfs interface.
package pins

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/Thermoquad/hbridge/pkg/motor"
)

// Bank is a pin backend that owns hardware resources
type Bank interface {
	motor.PinIO
	Close() error
}

// Backend names accepted by Open
const (
	BackendSim   = "sim"
	BackendGPIO  = "gpio"
	BackendRPIO  = "rpio"
	BackendSysfs = "sysfs"
)

// Backends lists the names accepted by Open
var Backends = []string{BackendSim, BackendGPIO, BackendRPIO, BackendSysfs}

// Open returns the named backend. A nil logger uses the standard logger.
func Open(name string, logger motor.Logger) (Bank, error) {
	if logger == nil {
		logger = log.Default()
	}
	switch strings.ToLower(name) {
	case BackendSim, "":
		return NewRecorder(), nil
	case BackendGPIO:
		b, err := OpenGPIO(logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendRPIO:
		b, err := OpenRPIO(logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendSysfs:
		return NewSysfsBank(logger), nil
	default:
		return nil, fmt.Errorf("unknown pin backend %q (use %s)", name, strings.Join(Backends, ", "))
	}
}

// pinNumber extracts the GPIO number from names like "18", "GPIO18" or
// "BCM18".
func pinNumber(p motor.Pin) (int, error) {
	s := strings.ToUpper(strings.TrimSpace(string(p)))
	s = strings.TrimPrefix(s, "GPIO")
	s = strings.TrimPrefix(s, "BCM")
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid pin %q: expected a GPIO number", p)
	}
	return n, nil
}

// thresholdLevel maps a duty cycle to a digital level on pins without PWM
func thresholdLevel(duty uint8) bool {
	return duty >= motor.MaxDuty/2
}
