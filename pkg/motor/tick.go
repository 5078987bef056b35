// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package motor

// Tick is a logical timestamp in milliseconds from a free-running counter.
// The counter wraps at Config.TickModulus (2^32 when unset).
type Tick uint32

// fullModulus is the wrap period of an unrestricted 32-bit counter
const fullModulus uint64 = 1 << 32

// tickMath does modular arithmetic on ticks
type tickMath struct {
	modulus uint64
}

func newTickMath(modulus uint32) tickMath {
	if modulus == 0 {
		return tickMath{modulus: fullModulus}
	}
	return tickMath{modulus: uint64(modulus)}
}

func (m tickMath) norm(t Tick) uint64 {
	return uint64(t) % m.modulus
}

// add returns t advanced by ms milliseconds
func (m tickMath) add(t Tick, ms int) Tick {
	if ms < 0 {
		return m.sub(t, -ms)
	}
	return Tick((m.norm(t) + uint64(ms)%m.modulus) % m.modulus)
}

// sub returns t moved back by ms milliseconds
func (m tickMath) sub(t Tick, ms int) Tick {
	return Tick((m.norm(t) + m.modulus - uint64(ms)%m.modulus) % m.modulus)
}

// diff returns a-b folded into [-modulus/2, modulus/2)
func (m tickMath) diff(a, b Tick) int64 {
	d := (m.norm(a) + m.modulus - m.norm(b)) % m.modulus
	if d >= m.modulus/2 {
		return int64(d) - int64(m.modulus)
	}
	return int64(d)
}

// after reports whether now is strictly past deadline
func (m tickMath) after(now, deadline Tick) bool {
	return m.diff(now, deadline) > 0
}

// reached reports whether now is at or past deadline
func (m tickMath) reached(now, deadline Tick) bool {
	return m.diff(now, deadline) >= 0
}

// AddTicks returns t advanced by ms milliseconds on a counter that wraps
// at modulus (0 means 2^32).
func AddTicks(t Tick, ms int, modulus uint32) Tick {
	return newTickMath(modulus).add(t, ms)
}
