// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pins

import (
	"sync"

	"github.com/brian-armstrong/gpio"

	"github.com/Thermoquad/hbridge/pkg/motor"
)

// SysfsBank drives pins through /sys/class/gpio. It has no PWM, so analog
// writes become a digital threshold; use it for boards where only the
// enable line needs switching or for bring-up.
type SysfsBank struct {
	mu     sync.Mutex
	pins   map[motor.Pin]gpio.Pin
	logger motor.Logger
}

// NewSysfsBank creates an empty bank; pins are exported on configure
func NewSysfsBank(logger motor.Logger) *SysfsBank {
	return &SysfsBank{
		pins:   make(map[motor.Pin]gpio.Pin),
		logger: logger,
	}
}

func (b *SysfsBank) ConfigureOutput(pin motor.Pin) error {
	n, err := pinNumber(pin)
	if err != nil {
		return err
	}
	p := gpio.NewOutput(uint(n), false)

	b.mu.Lock()
	b.pins[pin] = p
	b.mu.Unlock()
	return nil
}

func (b *SysfsBank) DigitalWrite(pin motor.Pin, high bool) {
	b.mu.Lock()
	p, ok := b.pins[pin]
	b.mu.Unlock()
	if !ok {
		b.logger.Printf("sysfs: write to unconfigured pin %s", pin)
		return
	}

	var err error
	if high {
		err = p.High()
	} else {
		err = p.Low()
	}
	if err != nil {
		b.logger.Printf("sysfs: write %s: %v", pin, err)
	}
}

func (b *SysfsBank) AnalogWrite(pin motor.Pin, duty uint8) {
	b.DigitalWrite(pin, thresholdLevel(duty))
}

// Close drives every pin low and releases the files
func (b *SysfsBank) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.pins {
		_ = p.Low()
		p.Close()
	}
	b.pins = make(map[motor.Pin]gpio.Pin)
	return nil
}
