// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pins

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/Thermoquad/hbridge/pkg/motor"
)

// DefaultPWMFrequency is the carrier used for analog writes
const DefaultPWMFrequency = 1 * physic.KiloHertz

// GPIOBank drives pins through the periph.io host drivers. Pin names are
// resolved with gpioreg, e.g. "GPIO12" or "12".
type GPIOBank struct {
	mu        sync.Mutex
	pins      map[motor.Pin]gpio.PinIO
	frequency physic.Frequency
	logger    motor.Logger
}

// OpenGPIO initializes the periph host drivers
func OpenGPIO(logger motor.Logger) (*GPIOBank, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	return &GPIOBank{
		pins:      make(map[motor.Pin]gpio.PinIO),
		frequency: DefaultPWMFrequency,
		logger:    logger,
	}, nil
}

// SetFrequency changes the PWM carrier for later analog writes
func (b *GPIOBank) SetFrequency(f physic.Frequency) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frequency = f
}

func (b *GPIOBank) ConfigureOutput(pin motor.Pin) error {
	p := gpioreg.ByName(string(pin))
	if p == nil {
		return fmt.Errorf("gpio pin %s not found", pin)
	}
	if err := p.Out(gpio.Low); err != nil {
		return fmt.Errorf("failed to set %s as output: %w", pin, err)
	}

	b.mu.Lock()
	b.pins[pin] = p
	b.mu.Unlock()
	return nil
}

func (b *GPIOBank) DigitalWrite(pin motor.Pin, high bool) {
	p := b.lookup(pin)
	if p == nil {
		return
	}
	if err := p.Out(gpio.Level(high)); err != nil {
		b.logger.Printf("gpio: write %s: %v", pin, err)
	}
}

func (b *GPIOBank) AnalogWrite(pin motor.Pin, duty uint8) {
	p := b.lookup(pin)
	if p == nil {
		return
	}
	// fully on and fully off are plain levels
	switch duty {
	case 0:
		b.DigitalWrite(pin, false)
		return
	case motor.MaxDuty:
		b.DigitalWrite(pin, true)
		return
	}

	b.mu.Lock()
	f := b.frequency
	b.mu.Unlock()

	if err := p.PWM(scaleDuty(duty), f); err != nil {
		// not every pin has a PWM generator
		b.logger.Printf("gpio: pwm %s: %v, falling back to digital", pin, err)
		b.DigitalWrite(pin, thresholdLevel(duty))
	}
}

// Close halts every configured pin
func (b *GPIOBank) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for name, p := range b.pins {
		if err := p.Halt(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to halt %s: %w", name, err)
		}
	}
	return firstErr
}

func (b *GPIOBank) lookup(pin motor.Pin) gpio.PinIO {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pins[pin]
	if !ok {
		b.logger.Printf("gpio: write to unconfigured pin %s", pin)
		return nil
	}
	return p
}

// scaleDuty converts an 8-bit duty to the periph duty range
func scaleDuty(duty uint8) gpio.Duty {
	return gpio.Duty(int64(duty) * int64(gpio.DutyMax) / motor.MaxDuty)
}
