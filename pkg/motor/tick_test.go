// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package motor

import "testing"

func TestTickMath_Diff(t *testing.T) {
	full := newTickMath(0)
	small := newTickMath(1000)

	tests := []struct {
		name string
		m    tickMath
		a, b Tick
		want int64
	}{
		{"equal", full, 10, 10, 0},
		{"ahead", full, 20, 10, 10},
		{"behind", full, 10, 20, -10},
		{"across wrap", full, 5, 0xFFFFFFFB, 10},
		{"behind across wrap", full, 0xFFFFFFFB, 5, -10},
		{"small modulus wrap", small, 5, 995, 10},
		{"small modulus unnormalized", small, 1005, 995, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.diff(tt.a, tt.b); got != tt.want {
				t.Errorf("diff(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestAddTicks(t *testing.T) {
	tests := []struct {
		t       Tick
		ms      int
		modulus uint32
		want    Tick
	}{
		{0, 50, 0, 50},
		{0xFFFFFFFF, 1, 0, 0},
		{0xFFFFFF32, 500, 0, 0x126},
		{990, 20, 1000, 10},
		{5, -10, 1000, 995},
		{5, -10, 0, 0xFFFFFFFB},
	}
	for _, tt := range tests {
		if got := AddTicks(tt.t, tt.ms, tt.modulus); got != tt.want {
			t.Errorf("AddTicks(%d, %d, %d) = %d, want %d", tt.t, tt.ms, tt.modulus, got, tt.want)
		}
	}
}

func TestTickMath_AfterAndReached(t *testing.T) {
	m := newTickMath(0)
	if m.after(100, 100) {
		t.Error("after(100, 100) = true")
	}
	if !m.reached(100, 100) {
		t.Error("reached(100, 100) = false")
	}
	if !m.after(3, 0xFFFFFFF0) {
		t.Error("after across wrap = false")
	}
}
