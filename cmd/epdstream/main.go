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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-it8951"
	"github.com/ZaparooProject/go-it8951/detection"
	"github.com/ZaparooProject/go-it8951/pipeline"
	"github.com/ZaparooProject/go-it8951/pkg/frame"
	"github.com/ZaparooProject/go-it8951/source"
	"github.com/ZaparooProject/go-it8951/transport/spi"
	"periph.io/x/conn/v3/physic"
)

type config struct {
	devicePath     string
	csPin          string
	resetPin       string
	readyPin       string
	input          string
	serialPort     string
	logDir         string
	baudRate       int
	frequency      int64
	displayTimeout time.Duration
	readyTimeout   time.Duration
	idleTimeout    time.Duration
	stopGrace      time.Duration
	retries        int
	clear          bool
	sleepOnStop    bool
	bigEndian      bool
	list           bool
	debug          bool
	sessionLog     bool
}

// Package-level flag variables
var (
	flagDevicePath     string
	flagCSPin          string
	flagResetPin       string
	flagReadyPin       string
	flagInput          string
	flagSerialPort     string
	flagLogDir         string
	flagBaudRate       int
	flagFrequency      int64
	flagDisplayTimeout time.Duration
	flagReadyTimeout   time.Duration
	flagIdleTimeout    time.Duration
	flagRetries        int
	flagClear          bool
	flagSleepOnStop    bool
	flagBigEndian      bool
	flagList           bool
	flagDebug          bool
	flagSessionLog     bool
)

func init() {
	flag.StringVar(&flagDevicePath, "device", "", "SPI port, e.g. /dev/spidev0.0 (auto-detect if empty)")
	flag.StringVar(&flagCSPin, "cs", "8", "Chip select GPIO")
	flag.StringVar(&flagResetPin, "rst", "17", "Reset GPIO")
	flag.StringVar(&flagReadyPin, "hrdy", "24", "HRDY GPIO")
	flag.Int64Var(&flagFrequency, "freq", 12_000_000, "SPI clock in Hz")
	flag.StringVar(&flagInput, "input", source.Stdin, "Update stream file or FIFO (- for stdin)")
	flag.StringVar(&flagSerialPort, "serial", "", "Read the update stream from this serial port instead of -input")
	flag.IntVar(&flagBaudRate, "baud", 115200, "Serial baud rate")
	flag.DurationVar(&flagIdleTimeout, "idle", 0, "Fail when the serial stream is idle this long (0 = never)")
	flag.DurationVar(&flagDisplayTimeout, "display-timeout", 10*time.Second, "Bound on each wait for the refresh engine")
	flag.DurationVar(&flagReadyTimeout, "ready-timeout", time.Second, "Bound on each HRDY wait")
	flag.IntVar(&flagRetries, "retries", 3, "Connect attempts")
	flag.BoolVar(&flagClear, "clear", false, "Clear the panel before the first frame")
	flag.BoolVar(&flagSleepOnStop, "sleep", false, "Put the controller to sleep on a stop frame")
	flag.BoolVar(&flagBigEndian, "big-endian", false, "Upload pixel words big-endian")
	flag.BoolVar(&flagList, "list", false, "List SPI and serial ports and exit")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
	flag.BoolVar(&flagSessionLog, "log", false, "Write a session log")
	flag.StringVar(&flagLogDir, "log-dir", "", "Directory for the session log")
}

func parseConfig() *config {
	cfg := &config{
		devicePath:     flagDevicePath,
		csPin:          flagCSPin,
		resetPin:       flagResetPin,
		readyPin:       flagReadyPin,
		frequency:      flagFrequency,
		input:          flagInput,
		serialPort:     flagSerialPort,
		baudRate:       flagBaudRate,
		idleTimeout:    flagIdleTimeout,
		stopGrace:      defaultStopGrace,
		displayTimeout: flagDisplayTimeout,
		readyTimeout:   flagReadyTimeout,
		retries:        flagRetries,
		clear:          flagClear,
		sleepOnStop:    flagSleepOnStop,
		bigEndian:      flagBigEndian,
		list:           flagList,
		debug:          flagDebug,
		sessionLog:     flagSessionLog,
		logDir:         flagLogDir,
	}

	if cfg.debug {
		it8951.SetDebugEnabled(true)
	}

	return cfg
}

func (cfg *config) spiConfig(port string) spi.Config {
	sc := spi.DefaultConfig(port)
	sc.CSPin = cfg.csPin
	sc.ResetPin = cfg.resetPin
	sc.ReadyPin = cfg.readyPin
	sc.Frequency = physic.Frequency(cfg.frequency) * physic.Hertz
	return sc
}

func (cfg *config) pipelineConfig() *pipeline.Config {
	pc := pipeline.DefaultConfig()
	pc.DisplayTimeout = cfg.displayTimeout
	pc.ClearOnStart = cfg.clear
	pc.SleepOnStop = cfg.sleepOnStop
	if cfg.bigEndian {
		pc.Endian = it8951.EndianBig
	}
	return pc
}

func listPorts(ctx context.Context, w io.Writer) error {
	ports, err := detection.Detect(ctx)
	if err != nil && !errors.Is(err, detection.ErrNoDevicesFound) {
		return fmt.Errorf("failed to detect SPI ports: %w", err)
	}
	_, _ = fmt.Fprintln(w, "SPI ports:")
	for _, p := range ports {
		_, _ = fmt.Fprintf(w, "  %s\n", p)
	}

	serials, err := source.ListSerialPorts()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, "Serial ports:")
	for _, p := range serials {
		_, _ = fmt.Fprintf(w, "  %s\n", p)
	}
	return nil
}

func connectToDevice(ctx context.Context, cfg *config) (*it8951.Device, error) {
	if cfg.debug {
		if cfg.devicePath == "" {
			_, _ = fmt.Println("Auto-detecting SPI port...")
		} else {
			_, _ = fmt.Printf("Opening device: %s\n", cfg.devicePath)
		}
	}

	device, err := it8951.ConnectDevice(ctx, cfg.devicePath,
		it8951.WithTransportFactory(func(path string) (it8951.Transport, error) {
			t, err := spi.New(cfg.spiConfig(path))
			if err != nil {
				return nil, err
			}
			return t, nil
		}),
		it8951.WithConnectionRetries(cfg.retries),
		it8951.WithDeviceOptions(
			it8951.WithReadyTimeout(cfg.readyTimeout),
			it8951.WithDisplayTimeout(cfg.displayTimeout),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IT8951: %w", err)
	}

	_, _ = fmt.Println(device.Info())
	return device, nil
}

func openStream(cfg *config) (io.ReadCloser, error) {
	if cfg.serialPort == "" {
		return source.Open(cfg.input)
	}
	sc := source.DefaultSerialConfig()
	sc.BaudRate = cfg.baudRate
	sc.IdleTimeout = cfg.idleTimeout
	return source.OpenSerial(cfg.serialPort, sc)
}

// defaultStopGrace bounds how long a cancelled session waits for a read that
// closing the stream did not abort, e.g. on a terminal.
const defaultStopGrace = 2 * time.Second

// runSession dispatches frames from stream until a stop frame. A blocked
// read cannot observe ctx, so cancellation closes the stream and waits at
// most cfg.stopGrace for the pipeline to return.
func runSession(
	ctx context.Context,
	ctrl pipeline.Controller,
	stream io.ReadCloser,
	cfg *config,
) (pipeline.Stats, error) {
	info := ctrl.Info()
	dec := frame.NewDecoder(stream, info.Width, info.Height)
	p, err := pipeline.New(ctrl, dec, cfg.pipelineConfig())
	if err != nil {
		return pipeline.Stats{}, fmt.Errorf("failed to create pipeline: %w", err)
	}
	if cfg.debug {
		p.OnFrame = func(ev pipeline.FrameEvent) {
			_, _ = fmt.Printf("frame %d: %d rects, %d non-white bytes, %v\n",
				ev.Index, len(ev.Rects), ev.NonWhite, ev.Duration)
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx)
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		_ = stream.Close()
		select {
		case err = <-done:
		case <-time.After(cfg.stopGrace):
			it8951.Debugln("Stream read still blocked after cancel")
		}
		if err == nil {
			err = ctx.Err()
		}
	}
	return p.Stats(), err
}

func printStats(w io.Writer, stats pipeline.Stats) {
	_, _ = fmt.Fprintf(w, "%d frames, %d rects, %d bytes uploaded",
		stats.Frames, stats.Rects, stats.BytesUploaded)
	if stats.Frames > 0 {
		_, _ = fmt.Fprintf(w, ", last frame took %v", stats.LastDuration)
	}
	_, _ = fmt.Fprintln(w)
}

func run(ctx context.Context, cfg *config) error {
	if cfg.list {
		return listPorts(ctx, os.Stdout)
	}

	if cfg.sessionLog {
		path, err := it8951.InitSessionLog(cfg.logDir)
		if err != nil {
			return err
		}
		defer func() { _ = it8951.CloseSessionLog() }()
		_, _ = fmt.Fprintf(os.Stderr, "Session log: %s\n", path)
	}

	stream, err := openStream(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = stream.Close() }()

	device, err := connectToDevice(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := device.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close device: %v\n", err)
		}
	}()

	stats, err := runSession(ctx, device, stream, cfg)
	printStats(os.Stderr, stats)
	if err != nil {
		if trace := it8951.GetTrace(err); trace != nil && cfg.debug {
			_, _ = fmt.Fprint(os.Stderr, trace.FormatTrace())
		}
		return err
	}
	return nil
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg := parseConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nShutting down gracefully...\n")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
