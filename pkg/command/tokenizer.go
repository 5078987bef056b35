// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package command

import "math"

// Tokenizer implements the command stream state machine. The zero value
// is ready to use.
type Tokenizer struct {
	code     byte // pending valued code, 0 when idle
	value    int
	negative bool
	digits   int
}

// Reset clears any pending command
func (t *Tokenizer) Reset() {
	t.code = 0
	t.value = 0
	t.negative = false
	t.digits = 0
}

// Pending reports whether a valued command is waiting for a separator
func (t *Tokenizer) Pending() bool {
	return t.code != 0
}

// DecodeByte processes a single byte of the command stream.
// Returns a completed command, or nil if none is complete.
// Returns ErrStreamReset or ErrUnexpectedMinus after recovering.
func (t *Tokenizer) DecodeByte(b byte) (*Command, error) {
	switch {
	case b == ResetByte:
		t.Reset()
		return nil, ErrStreamReset

	case b >= '0' && b <= '9':
		if t.code == 0 {
			// digits without a code are noise
			return nil, nil
		}
		t.accumulate(int(b - '0'))
		return nil, nil

	case b == MinusByte:
		if t.code == 0 || t.digits > 0 {
			t.Reset()
			return nil, ErrUnexpectedMinus
		}
		t.negative = true
		return nil, nil

	case IsImmediate(b):
		// immediate codes do not disturb a pending valued command
		return &Command{Code: b}, nil

	case IsValued(b):
		t.Reset()
		t.code = b
		return nil, nil

	case IsSeparator(b):
		if t.code == 0 {
			t.Reset()
			return nil, nil
		}
		cmd := &Command{Code: t.code, Value: t.value}
		if t.negative {
			cmd.Value = -cmd.Value
		}
		t.Reset()
		return cmd, nil

	default:
		t.Reset()
		return nil, nil
	}
}

// accumulate appends a decimal digit, saturating at math.MaxInt32
func (t *Tokenizer) accumulate(d int) {
	t.digits++
	if t.value > (math.MaxInt32-d)/10 {
		t.value = math.MaxInt32
		return
	}
	t.value = t.value*10 + d
}
