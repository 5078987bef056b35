// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package drive

import (
	"sync"
	"time"

	"github.com/Thermoquad/hbridge/pkg/motor"
)

// Clock supplies the millisecond tick passed to the controllers
type Clock interface {
	Now() motor.Tick
}

// SystemClock counts milliseconds since it was created, wrapping at the
// tick modulus.
type SystemClock struct {
	start   time.Time
	modulus uint32
}

// NewSystemClock starts a clock. A zero modulus wraps at 2^32.
func NewSystemClock(modulus uint32) *SystemClock {
	return &SystemClock{start: time.Now(), modulus: modulus}
}

// Now returns the current tick
func (c *SystemClock) Now() motor.Tick {
	ms := uint64(time.Since(c.start).Milliseconds())
	return wrap(ms, c.modulus)
}

// ManualClock is advanced explicitly. Used by tests and the simulator.
type ManualClock struct {
	mu      sync.Mutex
	now     uint64
	modulus uint32
}

// NewManualClock creates a clock at start. A zero modulus wraps at 2^32.
func NewManualClock(start motor.Tick, modulus uint32) *ManualClock {
	return &ManualClock{now: uint64(start), modulus: modulus}
}

// Now returns the current tick
func (c *ManualClock) Now() motor.Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wrap(c.now, c.modulus)
}

// Advance moves the clock forward by ms and returns the new tick
func (c *ManualClock) Advance(ms int) motor.Tick {
	c.mu.Lock()
	if ms > 0 {
		c.now += uint64(ms)
	}
	c.mu.Unlock()
	return c.Now()
}

// Set jumps to an arbitrary tick, including backwards
func (c *ManualClock) Set(t motor.Tick) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = uint64(t)
}

func wrap(ms uint64, modulus uint32) motor.Tick {
	if modulus != 0 {
		ms %= uint64(modulus)
	}
	return motor.Tick(uint32(ms))
}
