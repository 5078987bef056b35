// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pins

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/Thermoquad/hbridge/pkg/motor"
)

// PWM clock settings for RPIOBank: 64 kHz clock over a 255-step cycle
const (
	rpioPWMClock = 64000
	rpioPWMCycle = motor.MaxDuty
)

// hardware PWM capable BCM pins on the 40-pin header
var rpioPWMPins = map[int]bool{12: true, 13: true, 18: true, 19: true}

// RPIOBank drives Raspberry Pi GPIO through /dev/gpiomem. Pins are BCM
// numbers ("18", "GPIO18"). Analog writes use hardware PWM on capable
// pins and a digital threshold elsewhere.
type RPIOBank struct {
	mu     sync.Mutex
	pins   map[motor.Pin]rpio.Pin
	pwm    map[motor.Pin]bool
	logger motor.Logger
}

// OpenRPIO maps the GPIO registers
func OpenRPIO(logger motor.Logger) (*RPIOBank, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open rpio: %w", err)
	}
	return &RPIOBank{
		pins:   make(map[motor.Pin]rpio.Pin),
		pwm:    make(map[motor.Pin]bool),
		logger: logger,
	}, nil
}

func (b *RPIOBank) ConfigureOutput(pin motor.Pin) error {
	n, err := pinNumber(pin)
	if err != nil {
		return err
	}
	p := rpio.Pin(n)
	p.Output()
	p.Low()

	b.mu.Lock()
	b.pins[pin] = p
	b.pwm[pin] = false
	b.mu.Unlock()
	return nil
}

func (b *RPIOBank) DigitalWrite(pin motor.Pin, high bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pins[pin]
	if !ok {
		b.logger.Printf("rpio: write to unconfigured pin %s", pin)
		return
	}
	if b.pwm[pin] {
		// leave PWM mode before driving a level
		p.Output()
		b.pwm[pin] = false
	}
	if high {
		p.High()
	} else {
		p.Low()
	}
}

func (b *RPIOBank) AnalogWrite(pin motor.Pin, duty uint8) {
	b.mu.Lock()
	p, ok := b.pins[pin]
	usePWM := ok && rpioPWMPins[int(p)]
	b.mu.Unlock()

	if !ok {
		b.logger.Printf("rpio: write to unconfigured pin %s", pin)
		return
	}
	if !usePWM || duty == 0 || duty == motor.MaxDuty {
		b.DigitalWrite(pin, thresholdLevel(duty))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.pwm[pin] {
		p.Pwm()
		p.Freq(rpioPWMClock)
		b.pwm[pin] = true
	}
	rpio.SetDutyCycle(p, uint32(duty), rpioPWMCycle)
}

// Close drives every configured pin low and unmaps the registers
func (b *RPIOBank) Close() error {
	b.mu.Lock()
	for _, p := range b.pins {
		p.Output()
		p.Low()
	}
	b.mu.Unlock()
	return rpio.Close()
}
