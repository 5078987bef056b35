// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// PasswordEnv names the environment variable holding the WebSocket password
const PasswordEnv = "HBRIDGE_PASSWORD"

// wsWriteTimeout bounds a single WebSocket write. A stalled link must not
// hold up the keepalive or the drive's update loop.
const wsWriteTimeout = 2 * time.Second

// ErrConnectionClosed is returned when reading from a closed connection
var ErrConnectionClosed = errors.New("connection closed")

// Connection carries the command stream one way and telemetry the other
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// linkSide selects which end of the link this process is. Controllers send
// command lines, drives send telemetry frames.
type linkSide int

const (
	sideController linkSide = iota
	sideDrive
)

func (s linkSide) String() string {
	if s == sideDrive {
		return "drive"
	}
	return "controller"
}

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if err != nil {
		var portErr *serial.PortError
		if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
			return n, ErrConnectionClosed
		}
	}
	return n, err
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// WebSocketConnection adapts a WebSocket to a byte stream. Each Write is one
// message; reads return message contents in order, split as needed.
type WebSocketConnection struct {
	conn        *websocket.Conn
	messageType int

	writeMu sync.Mutex

	buf       []byte
	bufOffset int
	closed    bool
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}

	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, ErrConnectionClosed
			}
			return 0, err
		}

		// A drive may be fed by a browser console sending text, and either
		// side may receive binary telemetry
		if messageType != websocket.BinaryMessage && messageType != websocket.TextMessage {
			continue
		}
		if len(data) == 0 {
			continue
		}

		w.buf = data
		w.bufOffset = copy(p, w.buf)
		return w.bufOffset, nil
	}
}

// Write sends p as one message. gorilla/websocket allows a single
// concurrent writer, so writes are serialized here.
func (w *WebSocketConnection) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return 0, err
	}
	if err := w.conn.WriteMessage(w.messageType, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close frame before dropping the connection so the far side
// sees a clean shutdown rather than a read error
func (w *WebSocketConnection) Close() error {
	w.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	w.writeMu.Unlock()
	return w.conn.Close()
}

// OpenSerialConnection opens a serial port at 8N1. Bytes queued before the
// port was opened are discarded so a stale command line cannot reach the
// motors.
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to flush serial port %s: %w", portName, err)
	}

	return &SerialConnection{port: port}, nil
}

// OpenWebSocketConnection opens a WebSocket connection with HTTP Basic auth.
// Controllers write text messages (one command line each); drives write
// binary telemetry frames.
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool, side linkSide) (Connection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	messageType := websocket.TextMessage
	if side == sideDrive {
		messageType = websocket.BinaryMessage
	}
	return &WebSocketConnection{conn: conn, messageType: messageType}, nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// not a terminal
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenConnection opens the controller end of a link from the connection flags
func OpenConnection() (Connection, string, error) {
	return openConnection(sideController)
}

// OpenDriveConnection opens the drive end of a link from the connection flags
func OpenDriveConnection() (Connection, string, error) {
	return openConnection(sideDrive)
}

// password is prompted for once per process; reconnects reuse it
var (
	passwordOnce sync.Once
	password     string
	passwordErr  error
)

func openConnection(side linkSide) (Connection, string, error) {
	if wsURL != "" {
		if wsUsername != "" {
			passwordOnce.Do(func() { password, passwordErr = GetPassword() })
			if passwordErr != nil {
				return nil, "", passwordErr
			}
		}

		conn, err := OpenWebSocketConnection(wsURL, wsUsername, password, wsNoSSLVerify, side)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket (%s): %s", side, wsURL), nil
	}

	if portName != "" {
		conn, err := OpenSerialConnection(portName, baudRate)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial (%s): %s @ %d baud", side, portName, baudRate), nil
	}

	return nil, "", fmt.Errorf("either --port or --url must be specified")
}
