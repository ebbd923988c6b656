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

package it8951

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-it8951/detection"
	"github.com/ZaparooProject/go-it8951/internal/syncutil"
)

// DeviceConfig contains configuration options for the Device
type DeviceConfig struct {
	// Link configures the word-level bus
	Link *LinkConfig
	// RetryConfig configures retries of whole connect attempts
	RetryConfig *RetryConfig
	// DisplayTimeout is the default bound for WaitDisplayReady
	DisplayTimeout time.Duration
	// DisplayPollInterval is the pause between LUT status reads
	DisplayPollInterval time.Duration
	// CloseTimeout bounds the sleep command sent by Close
	CloseTimeout time.Duration
}

// DefaultDeviceConfig returns default device configuration
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		Link:                DefaultLinkConfig(),
		RetryConfig:         DefaultRetryConfig(),
		DisplayTimeout:      10 * time.Second,
		DisplayPollInterval: 1 * time.Millisecond,
		CloseTimeout:        2 * time.Second,
	}
}

// Option configures a Device
type Option func(*Device) error

// WithLinkConfig replaces the bus configuration
func WithLinkConfig(config *LinkConfig) Option {
	return func(d *Device) error {
		if config == nil {
			return fmt.Errorf("%w: nil link config", ErrInvalidParameter)
		}
		d.config.Link = config
		return nil
	}
}

// WithReadyTimeout sets the bound on each HRDY wait
func WithReadyTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: ready timeout must be positive, got %v", ErrInvalidParameter, timeout)
		}
		d.config.Link.ReadyTimeout = timeout
		return nil
	}
}

// WithDisplayTimeout sets the default bound for WaitDisplayReady
func WithDisplayTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: display timeout must be positive, got %v", ErrInvalidParameter, timeout)
		}
		d.config.DisplayTimeout = timeout
		return nil
	}
}

// WithRetryConfig replaces the connect retry policy
func WithRetryConfig(config *RetryConfig) Option {
	return func(d *Device) error {
		if config == nil {
			return fmt.Errorf("%w: nil retry config", ErrInvalidParameter)
		}
		d.config.RetryConfig = config
		return nil
	}
}

// WithDisplayPollInterval sets the pause between LUT status reads
func WithDisplayPollInterval(interval time.Duration) Option {
	return func(d *Device) error {
		d.config.DisplayPollInterval = interval
		return nil
	}
}

// Device is an IT8951 panel controller.
//
// Thread Safety: each operation holds an internal mutex for its whole
// command/argument sequence, so sequences never interleave on the bus. The
// device is still meant to be driven by one session at a time.
type Device struct {
	transport       Transport
	link            *Link
	config          *DeviceConfig
	info            DeviceInfo
	imageBufferAddr uint32
	mu              syncutil.Mutex
	initialized     bool
	displayIdle     bool
}

// New creates a device over the given transport. The controller is not
// touched until Init.
func New(transport Transport, opts ...Option) (*Device, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}
	device := &Device{
		transport: transport,
		config:    DefaultDeviceConfig(),
	}

	for _, opt := range opts {
		if err := opt(device); err != nil {
			return nil, err
		}
	}

	device.link = NewLink(transport, device.config.Link)
	return device, nil
}

// Transport returns the underlying transport
func (d *Device) Transport() Transport {
	return d.transport
}

// Link returns the word-level bus
func (d *Device) Link() *Link {
	return d.link
}

// Info returns the device info negotiated by Init
func (d *Device) Info() DeviceInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info
}

// ImageBufferAddress returns the controller image buffer base address
func (d *Device) ImageBufferAddress() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.imageBufferAddr
}

// Config returns the device configuration
func (d *Device) Config() *DeviceConfig {
	return d.config
}

// Init resets the controller, reads its device info and enables packed
// mode. It fails with ErrDeviceNotReady when the controller reports a zero
// panel size; no display operation is valid until Init succeeds.
func (d *Device) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.initialized = false
	d.displayIdle = false

	if err := d.transport.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset controller: %w", err)
	}

	info, err := d.queryDeviceInfo(ctx)
	if err != nil {
		return fmt.Errorf("failed to query device info: %w", err)
	}
	d.info = info
	d.imageBufferAddr = info.ImageBufferAddress

	Debugf("Panel(W,H) = (%d,%d)", info.Width, info.Height)
	Debugf("Image Buffer Address = 0x%08X", info.ImageBufferAddress)
	Debugf("FW Version = %s", info.FirmwareVersion)
	Debugf("LUT Version = %s", info.LUTVersion)

	if err := d.writeRegister(ctx, RegI80CPCR, packedModeEnable); err != nil {
		return fmt.Errorf("failed to enable packed mode: %w", err)
	}

	d.initialized = true
	return nil
}

// Close puts an initialized controller to sleep and closes the transport
func (d *Device) Close() error {
	d.mu.Lock()
	initialized := d.initialized
	d.mu.Unlock()

	var sleepErr error
	if initialized {
		ctx, cancel := context.WithTimeout(context.Background(), d.config.CloseTimeout)
		sleepErr = d.Sleep(ctx)
		cancel()
	}

	if err := d.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	if sleepErr != nil {
		return fmt.Errorf("failed to put controller to sleep: %w", sleepErr)
	}
	return nil
}

// TransportFactory creates a transport for a bus path
type TransportFactory func(path string) (Transport, error)

// ConnectOption represents a functional option for ConnectDevice
type ConnectOption func(*connectConfig) error

type connectConfig struct {
	transportFactory  TransportFactory
	deviceDetector    func(ctx context.Context) ([]detection.DeviceInfo, error)
	deviceOptions     []Option
	connectionRetries int
}

// WithDeviceOptions adds device-level options
func WithDeviceOptions(opts ...Option) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceOptions = append(c.deviceOptions, opts...)
		return nil
	}
}

// WithTransportFactory sets the transport factory function
func WithTransportFactory(factory TransportFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportFactory = factory
		return nil
	}
}

// WithConnectionRetries sets the number of connect attempts
func WithConnectionRetries(maxAttempts int) ConnectOption {
	return func(c *connectConfig) error {
		if maxAttempts < 1 {
			return fmt.Errorf("connection retries must be at least 1, got %d", maxAttempts)
		}
		c.connectionRetries = maxAttempts
		return nil
	}
}

// WithDeviceDetector overrides the SPI port detector used when no path is given
func WithDeviceDetector(detector func(ctx context.Context) ([]detection.DeviceInfo, error)) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceDetector = detector
		return nil
	}
}

// ConnectDevice opens a transport for path (or the first detected SPI port
// when path is empty), creates the device and initializes it. A whole
// reset-and-query attempt is repeated on retryable failures; the transport
// is closed when every attempt fails.
//
// Example usage:
//
//	device, err := it8951.ConnectDevice(ctx, "/dev/spidev0.0",
//		it8951.WithTransportFactory(func(path string) (it8951.Transport, error) {
//			return spi.New(spi.DefaultConfig(path))
//		}))
func ConnectDevice(ctx context.Context, path string, opts ...ConnectOption) (*Device, error) {
	config := &connectConfig{
		connectionRetries: 3,
		deviceDetector:    detection.Detect,
	}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply connect option: %w", err)
		}
	}
	if config.transportFactory == nil {
		return nil, errors.New("transport factory not provided")
	}

	if path == "" {
		found, err := config.deviceDetector(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to detect SPI ports: %w", err)
		}
		if len(found) == 0 {
			return nil, detection.ErrNoDevicesFound
		}
		path = found[0].Path
		Debugf("Auto-detected %s", found[0])
	}

	transport, err := config.transportFactory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for %s: %w", path, err)
	}

	device, err := New(transport, config.deviceOptions...)
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	retryConfig := *device.config.RetryConfig
	retryConfig.MaxAttempts = config.connectionRetries
	err = RetryWithConfig(ctx, &retryConfig, func(ctx context.Context) error {
		return device.Init(ctx)
	})
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("failed to initialize device after %d attempts: %w", config.connectionRetries, err)
	}

	return device, nil
}
