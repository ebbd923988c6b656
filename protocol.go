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
	"fmt"
	"iter"
	"time"
)

// WriteRegister writes value to the 16-bit register at addr
func (d *Device) WriteRegister(ctx context.Context, addr, value uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeRegister(ctx, addr, value)
}

// ReadRegister reads the 16-bit register at addr
func (d *Device) ReadRegister(ctx context.Context, addr uint16) (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readRegister(ctx, addr)
}

// QueryDeviceInfo reads the GET_DEV_INFO block. A zero panel size is
// reported as ErrDeviceNotReady. The stored device info is not changed;
// only Init does that.
func (d *Device) QueryDeviceInfo(ctx context.Context) (DeviceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queryDeviceInfo(ctx)
}

// SetImageBufferAddress points the memory converter at addr. The high half
// goes to LISAR+2 before the low half goes to LISAR.
func (d *Device) SetImageBufferAddress(ctx context.Context, addr uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setImageBufferAddress(ctx, addr)
}

// LoadImageArea uploads words into area of the image buffer at desc.Target.
// The words are streamed lazily in one data phase between the LD_IMG_AREA
// and LD_IMG_END commands.
func (d *Device) LoadImageArea(ctx context.Context, desc LoadImageDescriptor, area Area, words iter.Seq[uint16]) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkArea("LoadImageArea", area); err != nil {
		return err
	}
	if words == nil {
		return fmt.Errorf("%w: LoadImageArea: nil pixel words", ErrInvalidParameter)
	}

	if err := d.setImageBufferAddress(ctx, desc.Target); err != nil {
		return err
	}
	args := []uint16{desc.Argument(), area.X, area.Y, area.Width, area.Height}
	if err := d.command(ctx, cmdLoadArea, args...); err != nil {
		return fmt.Errorf("LoadImageArea %s: %w", area, err)
	}
	if err := d.link.WriteWords(ctx, words); err != nil {
		return fmt.Errorf("LoadImageArea %s: pixel data: %w", area, err)
	}
	if err := d.link.WriteCommand(ctx, cmdLoadEnd); err != nil {
		return fmt.Errorf("LoadImageArea %s: end: %w", area, err)
	}
	Debugf("Loaded %s into 0x%08X", area, desc.Target)
	return nil
}

// LoadImage uploads a full panel of words to the image buffer at
// desc.Target using LD_IMG, which takes no area arguments.
func (d *Device) LoadImage(ctx context.Context, desc LoadImageDescriptor, words iter.Seq[uint16]) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return fmt.Errorf("%w: LoadImage before Init", ErrDeviceNotReady)
	}
	if words == nil {
		return fmt.Errorf("%w: LoadImage: nil pixel words", ErrInvalidParameter)
	}

	if err := d.setImageBufferAddress(ctx, desc.Target); err != nil {
		return err
	}
	if err := d.command(ctx, cmdLoadImage, desc.Argument()); err != nil {
		return fmt.Errorf("LoadImage: %w", err)
	}
	if err := d.link.WriteWords(ctx, words); err != nil {
		return fmt.Errorf("LoadImage: pixel data: %w", err)
	}
	if err := d.link.WriteCommand(ctx, cmdLoadEnd); err != nil {
		return fmt.Errorf("LoadImage: end: %w", err)
	}
	return nil
}

// DisplayArea refreshes area with the given waveform. The refresh engine
// must have been confirmed idle by WaitDisplayReady since the previous
// trigger; otherwise ErrDisplayBusy is returned and nothing is sent.
func (d *Device) DisplayArea(ctx context.Context, area Area, mode DisplayMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkTrigger("DisplayArea", area); err != nil {
		return err
	}
	d.displayIdle = false
	if err := d.command(ctx, cmdDisplayArea, area.X, area.Y, area.Width, area.Height, uint16(mode)); err != nil {
		return fmt.Errorf("DisplayArea %s %s: %w", area, mode, err)
	}
	Debugf("Display %s mode %s", area, mode)
	return nil
}

// DisplayBufferArea refreshes area from the image buffer at addr instead of
// the current one. The same idle rule as DisplayArea applies.
func (d *Device) DisplayBufferArea(ctx context.Context, area Area, mode DisplayMode, addr uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkTrigger("DisplayBufferArea", area); err != nil {
		return err
	}
	d.displayIdle = false
	err := d.command(ctx, cmdDisplayBufArea,
		area.X, area.Y, area.Width, area.Height, uint16(mode), uint16(addr), uint16(addr>>16))
	if err != nil {
		return fmt.Errorf("DisplayBufferArea %s %s @0x%08X: %w", area, mode, addr, err)
	}
	return nil
}

// WaitDisplayReady polls the LUT status register until every engine is idle.
// A timeout of zero uses the configured DisplayTimeout.
func (d *Device) WaitDisplayReady(ctx context.Context, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timeout <= 0 {
		timeout = d.config.DisplayTimeout
	}
	deadline := time.Now().Add(timeout)
	for {
		status, err := d.readRegister(ctx, RegLUTAFSR)
		if err != nil {
			return fmt.Errorf("WaitDisplayReady: %w", err)
		}
		if status == 0 {
			d.displayIdle = true
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("WaitDisplayReady: LUT status 0x%04X after %v: %w",
				status, timeout, NewTimeoutError("WaitDisplayReady", d.link.port))
		}
		if err := sleepContext(ctx, d.config.DisplayPollInterval); err != nil {
			return fmt.Errorf("WaitDisplayReady: %w", err)
		}
	}
}

// Run wakes the controller from standby or sleep
func (d *Device) Run(ctx context.Context) error {
	return d.power(ctx, "Run", cmdSysRun)
}

// Standby puts the controller into standby
func (d *Device) Standby(ctx context.Context) error {
	return d.power(ctx, "Standby", cmdStandby)
}

// Sleep puts the controller into sleep mode
func (d *Device) Sleep(ctx context.Context) error {
	return d.power(ctx, "Sleep", cmdSleep)
}

func (d *Device) power(ctx context.Context, op string, cmd uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cmd != cmdSysRun {
		d.displayIdle = false
	}
	if err := d.link.WriteCommand(ctx, cmd); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// command sends cmd followed by one data phase per argument
func (d *Device) command(ctx context.Context, cmd uint16, args ...uint16) error {
	if err := d.link.WriteCommand(ctx, cmd); err != nil {
		return err
	}
	for i, arg := range args {
		if err := d.link.WriteData(ctx, arg); err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
	}
	return nil
}

func (d *Device) writeRegister(ctx context.Context, addr, value uint16) error {
	if err := d.command(ctx, cmdRegWrite, addr, value); err != nil {
		return fmt.Errorf("write register 0x%04X: %w", addr, err)
	}
	return nil
}

func (d *Device) readRegister(ctx context.Context, addr uint16) (uint16, error) {
	if err := d.command(ctx, cmdRegRead, addr); err != nil {
		return 0, fmt.Errorf("read register 0x%04X: %w", addr, err)
	}
	value, err := d.link.ReadData(ctx)
	if err != nil {
		return 0, fmt.Errorf("read register 0x%04X: %w", addr, err)
	}
	return value, nil
}

func (d *Device) queryDeviceInfo(ctx context.Context) (DeviceInfo, error) {
	if err := d.link.WriteCommand(ctx, cmdGetDevInfo); err != nil {
		return DeviceInfo{}, err
	}
	words, err := d.link.ReadWords(ctx, deviceInfoWords)
	if err != nil {
		return DeviceInfo{}, err
	}
	info, err := DecodeDeviceInfo(words)
	if err != nil {
		return DeviceInfo{}, err
	}
	if !info.Valid() {
		return DeviceInfo{}, fmt.Errorf("%w: panel reported %dx%d", ErrDeviceNotReady, info.Width, info.Height)
	}
	return info, nil
}

func (d *Device) setImageBufferAddress(ctx context.Context, addr uint32) error {
	if err := d.writeRegister(ctx, RegLISAR+2, uint16(addr>>16)); err != nil {
		return fmt.Errorf("set image buffer address 0x%08X: %w", addr, err)
	}
	if err := d.writeRegister(ctx, RegLISAR, uint16(addr)); err != nil {
		return fmt.Errorf("set image buffer address 0x%08X: %w", addr, err)
	}
	return nil
}

func (d *Device) checkArea(op string, area Area) error {
	if !d.initialized {
		return fmt.Errorf("%w: %s before Init", ErrDeviceNotReady, op)
	}
	if area.Empty() || !area.Within(d.info.Width, d.info.Height) {
		return fmt.Errorf("%w: %s: area %s outside %dx%d panel",
			ErrInvalidParameter, op, area, d.info.Width, d.info.Height)
	}
	return nil
}

func (d *Device) checkTrigger(op string, area Area) error {
	if err := d.checkArea(op, area); err != nil {
		return err
	}
	if !d.displayIdle {
		return fmt.Errorf("%w: %s %s issued without WaitDisplayReady", ErrDisplayBusy, op, area)
	}
	return nil
}
