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

// Package spi provides the periph.io SPI transport for the IT8951, as wired on
// the Waveshare e-paper HAT: SPI0 with a GPIO driven chip select, the HRDY
// line on an input pin and the controller reset on an output pin.
package spi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-it8951"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	// Default SPI settings. Chip select is driven through a GPIO because the
	// controller needs it held across the preamble and payload transfers.
	defaultFreq = 12 * physic.MegaHertz
	mode        = spi.Mode0 | spi.NoCS

	defaultMaxTx = 4096
)

// Config describes how the controller is wired
type Config struct {
	// Port is the periph SPI port name, e.g. "/dev/spidev0.0" or "SPI0.0"
	Port string
	// CSPin, ResetPin and ReadyPin are gpioreg names (BCM numbers on a Pi)
	CSPin    string
	ResetPin string
	ReadyPin string
	// Frequency is the SPI clock
	Frequency physic.Frequency
	// ResetPulse is how long reset is held low
	ResetPulse time.Duration
	// ResetSettle is the wait after releasing reset
	ResetSettle time.Duration
}

// DefaultConfig returns the Waveshare HAT wiring for port
func DefaultConfig(port string) Config {
	return Config{
		Port:        port,
		CSPin:       "8",
		ResetPin:    "17",
		ReadyPin:    "24",
		Frequency:   defaultFreq,
		ResetPulse:  500 * time.Millisecond,
		ResetSettle: 200 * time.Millisecond,
	}
}

// Transport implements it8951.Transport over periph.io SPI and GPIO
type Transport struct {
	port     spi.PortCloser
	conn     spi.Conn
	cs       gpio.PinOut
	rst      gpio.PinOut
	ready    gpio.PinIn
	portName string
	config   Config
	maxTx    int
	closed   bool
}

// New initializes the periph host, opens the SPI port and claims the pins
func New(config Config) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(config.Port)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", config.Port, err)
	}

	if config.Frequency == 0 {
		config.Frequency = defaultFreq
	}
	c, err := port.Connect(config.Frequency, mode, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}

	cs, rst, ready, err := openPins(config)
	if err != nil {
		_ = port.Close()
		return nil, err
	}

	t := newTransport(c, cs, rst, ready, config)
	t.port = port
	if err := t.setupPins(); err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

// NewWithConn builds a transport from an already connected SPI conn and
// pins. The caller owns the port; Close does not close it.
func NewWithConn(c spi.Conn, cs, rst gpio.PinOut, ready gpio.PinIn, config Config) (*Transport, error) {
	if c == nil || cs == nil || rst == nil || ready == nil {
		return nil, fmt.Errorf("%w: nil SPI conn or pin", it8951.ErrInvalidParameter)
	}
	t := newTransport(c, cs, rst, ready, config)
	if err := t.setupPins(); err != nil {
		return nil, err
	}
	return t, nil
}

func newTransport(c spi.Conn, cs, rst gpio.PinOut, ready gpio.PinIn, config Config) *Transport {
	maxTx := 0
	if limits, ok := c.(conn.Limits); ok {
		maxTx = limits.MaxTxSize()
	}
	if maxTx <= 0 {
		maxTx = defaultMaxTx
	}
	return &Transport{
		conn:     c,
		cs:       cs,
		rst:      rst,
		ready:    ready,
		portName: config.Port,
		config:   config,
		maxTx:    maxTx,
	}
}

func openPins(config Config) (cs, rst gpio.PinOut, ready gpio.PinIn, err error) {
	names := []string{config.CSPin, config.ResetPin, config.ReadyPin}
	pins := make([]gpio.PinIO, len(names))
	for i, name := range names {
		pins[i] = gpioreg.ByName(name)
		if pins[i] == nil {
			return nil, nil, nil, fmt.Errorf("GPIO pin %q not found", name)
		}
	}
	return pins[0], pins[1], pins[2], nil
}

func (t *Transport) setupPins() error {
	if err := t.cs.Out(gpio.High); err != nil {
		return fmt.Errorf("failed to set up chip select pin: %w", err)
	}
	if err := t.rst.Out(gpio.High); err != nil {
		return fmt.Errorf("failed to set up reset pin: %w", err)
	}
	if err := t.ready.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return fmt.Errorf("failed to set up HRDY pin: %w", err)
	}
	return nil
}

// Select drives chip select low
func (t *Transport) Select() error {
	if t.closed {
		return it8951.ErrTransportClosed
	}
	if err := t.cs.Out(gpio.Low); err != nil {
		return fmt.Errorf("chip select: %w", err)
	}
	return nil
}

// Deselect drives chip select high
func (t *Transport) Deselect() error {
	if err := t.cs.Out(gpio.High); err != nil {
		return fmt.Errorf("chip deselect: %w", err)
	}
	return nil
}

// Write sends p, split at the driver's maximum transfer size
func (t *Transport) Write(p []byte) error {
	if t.closed {
		return it8951.ErrTransportClosed
	}
	for len(p) > 0 {
		n := min(len(p), t.maxTx)
		if err := t.conn.Tx(p[:n], nil); err != nil {
			return fmt.Errorf("SPI write failed: %w", err)
		}
		p = p[n:]
	}
	return nil
}

// Read clocks len(p) bytes in while sending zeros
func (t *Transport) Read(p []byte) error {
	if t.closed {
		return it8951.ErrTransportClosed
	}
	zeros := make([]byte, min(len(p), t.maxTx))
	for len(p) > 0 {
		n := min(len(p), t.maxTx)
		if err := t.conn.Tx(zeros[:n], p[:n]); err != nil {
			return fmt.Errorf("SPI read failed: %w", err)
		}
		p = p[n:]
	}
	return nil
}

// Ready reports the HRDY line; high means the controller can take the next
// transfer.
func (t *Transport) Ready() (bool, error) {
	if t.closed {
		return false, it8951.ErrTransportClosed
	}
	return t.ready.Read() == gpio.High, nil
}

// Reset pulses the reset line low
func (t *Transport) Reset(ctx context.Context) error {
	if t.closed {
		return it8951.ErrTransportClosed
	}
	if err := t.rst.Out(gpio.Low); err != nil {
		return fmt.Errorf("reset low: %w", err)
	}
	if err := sleep(ctx, t.config.ResetPulse); err != nil {
		_ = t.rst.Out(gpio.High)
		return err
	}
	if err := t.rst.Out(gpio.High); err != nil {
		return fmt.Errorf("reset high: %w", err)
	}
	return sleep(ctx, t.config.ResetSettle)
}

// Close releases chip select and closes the port if this transport opened it
func (t *Transport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	errCS := t.cs.Out(gpio.High)
	var errPort error
	if t.port != nil {
		errPort = t.port.Close()
	}
	if err := errors.Join(errCS, errPort); err != nil {
		return fmt.Errorf("SPI close failed: %w", err)
	}
	return nil
}

// MaxTxSize returns the largest single SPI transfer used
func (t *Transport) MaxTxSize() int {
	return t.maxTx
}

func (t *Transport) String() string {
	return fmt.Sprintf("spi(%s)", t.portName)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("reset interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

var _ it8951.Transport = (*Transport)(nil)
