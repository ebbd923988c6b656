// go-it8951
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-it8951.
//
// go-it8951 is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-it8951 is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-it8951; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package source

import (
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-it8951/internal/syncutil"
	"go.bug.st/serial"
)

var (
	// ErrIdleTimeout is returned when no byte arrives within the idle timeout
	ErrIdleTimeout = errors.New("update stream idle")
	// ErrClosed is returned by reads after Close
	ErrClosed = errors.New("serial source is closed")
)

// SerialConfig configures a serial update stream
type SerialConfig struct {
	// BaudRate of the 8N1 line
	BaudRate int
	// IdleTimeout fails a read that sees no data for this long (0 = wait forever)
	IdleTimeout time.Duration
	// PollTimeout is the driver read timeout between idle checks
	PollTimeout time.Duration
}

// DefaultSerialConfig returns 115200 8N1 with no idle timeout
func DefaultSerialConfig() *SerialConfig {
	return &SerialConfig{
		BaudRate:    115200,
		PollTimeout: 50 * time.Millisecond,
	}
}

// Serial reads an update stream from a serial port. Reads block until at
// least one byte arrives, the idle timeout elapses or the port is closed.
type Serial struct {
	port     serial.Port
	config   *SerialConfig
	portName string
	mu       syncutil.Mutex
	closed   bool
}

// OpenSerial opens portName as an 8N1 line at the configured baud rate
func OpenSerial(portName string, config *SerialConfig) (*Serial, error) {
	if config == nil {
		config = DefaultSerialConfig()
	}
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	s, err := NewSerial(port, portName, config)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return s, nil
}

// NewSerial wraps an already open port
func NewSerial(port serial.Port, portName string, config *SerialConfig) (*Serial, error) {
	if config == nil {
		config = DefaultSerialConfig()
	}
	poll := config.PollTimeout
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	if err := port.SetReadTimeout(poll); err != nil {
		return nil, fmt.Errorf("failed to set serial read timeout: %w", err)
	}
	return &Serial{port: port, portName: portName, config: config}, nil
}

// Read implements io.Reader
func (s *Serial) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	start := time.Now()
	for {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return 0, ErrClosed
		}

		n, err := s.port.Read(p)
		if n > 0 {
			return n, nil
		}
		if err != nil {
			return 0, fmt.Errorf("serial read %s: %w", s.portName, err)
		}
		// n == 0 and no error is a driver read timeout
		if s.config.IdleTimeout > 0 && time.Since(start) >= s.config.IdleTimeout {
			return 0, fmt.Errorf("%w: nothing on %s for %v", ErrIdleTimeout, s.portName, s.config.IdleTimeout)
		}
	}
}

// Close closes the port. It is safe to call more than once.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.port.Close(); err != nil {
		return fmt.Errorf("failed to close serial port %s: %w", s.portName, err)
	}
	return nil
}

func (s *Serial) String() string {
	return "serial(" + s.portName + ")"
}

// ListSerialPorts returns the serial ports the OS reports
func ListSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}
