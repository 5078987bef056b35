// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package command tokenizes the ASCII motor command stream.
//
// A command is a single code letter optionally followed by a signed
// decimal value, e.g. "L-120" or "!". Commands are closed by a separator
// (space, tab, CR, LF, NUL, ',' or ';'). A '~' resets the stream.
package command

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// Codes carrying a value
const (
	CodeLeft         = 'L' // left motor speed
	CodeRight        = 'R' // right motor speed
	CodeBoth         = 'G' // both motors to the same speed
	CodePulse        = 'p' // start pulse duration
	CodeDeadman      = 't' // command timeout
	CodeMaxPWM       = 'm' // magnitude clamp
	CodeSettle       = 'S' // settle window
	CodeStopLockout  = 'T' // emergency stop lockout
	CodeDecel        = 'd' // decel estimate, hundredths of ms per count
	CodeCurrentLimit = 'C'
	CodeCurrentLow   = 'c'
	CodeGain         = 'g'
	CodeRate         = 'r'
)

// Immediate codes
const (
	CodeEmergency   = '!'
	CodeDiagnostics = '^'
	CodeStatus      = '?'
	CodeAuto        = 'a'
	CodeAutoAll     = 'A'
)

// Stream control bytes
const (
	ResetByte = '~'
	MinusByte = '-'
)

// Tokenizer errors. Both are informational; the tokenizer has already
// recovered when they are returned.
var (
	ErrStreamReset     = errors.New("command stream reset")
	ErrUnexpectedMinus = errors.New("unexpected '-' in command stream")
)

// Command is one decoded (code, value) pair
type Command struct {
	Code  byte
	Value int
}

// String renders the command in wire form without a separator
func (c Command) String() string {
	if IsImmediate(c.Code) {
		return string(c.Code)
	}
	return string(c.Code) + strconv.Itoa(c.Value)
}

// IsValued reports whether code takes a value
func IsValued(code byte) bool {
	switch code {
	case CodeLeft, CodeRight, CodeBoth, CodePulse, CodeDeadman, CodeMaxPWM,
		CodeSettle, CodeStopLockout, CodeDecel, CodeCurrentLimit,
		CodeCurrentLow, CodeGain, CodeRate:
		return true
	}
	return false
}

// IsImmediate reports whether code is dispatched without a value
func IsImmediate(code byte) bool {
	switch code {
	case CodeEmergency, CodeDiagnostics, CodeStatus, CodeAuto, CodeAutoAll:
		return true
	}
	return false
}

// IsSeparator reports whether b closes a pending command
func IsSeparator(b byte) bool {
	switch b {
	case ' ', '\t', '\r', '\n', 0, ',', ';':
		return true
	}
	return false
}

// Encode renders a command followed by a newline
func Encode(c Command) []byte {
	return append([]byte(c.String()), '\n')
}

// EncodeLine renders several commands separated by spaces on one line
func EncodeLine(cmds ...Command) []byte {
	var buf bytes.Buffer
	for i, c := range cmds {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(c.String())
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

// Parse tokenizes a complete string and returns the commands it holds.
// Reset and stray minus errors are skipped; the first one is returned
// alongside the commands.
func Parse(s string) ([]Command, error) {
	var (
		tok      Tokenizer
		cmds     []Command
		firstErr error
	)
	feed := func(b byte) {
		cmd, err := tok.DecodeByte(b)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("after %d commands: %w", len(cmds), err)
		}
		if cmd != nil {
			cmds = append(cmds, *cmd)
		}
	}
	for i := 0; i < len(s); i++ {
		feed(s[i])
	}
	// close a trailing command
	feed('\n')
	return cmds, firstErr
}
