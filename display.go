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
	"image"
	"image/color"
	"time"

	"golang.org/x/image/draw"
	"periph.io/x/conn/v3/display"
)

// Display adapts an initialized Device to periph's display.Drawer. Each Draw
// renders into a host FrameBuffer, uploads the whole buffer once and refreshes
// only the drawn rectangle.
type Display struct {
	dev     *Device
	buffer  *FrameBuffer
	desc    LoadImageDescriptor
	mode    DisplayMode
	timeout time.Duration
}

// NewDisplay wraps dev, which must already be initialized. Refreshes use
// mode.
func NewDisplay(dev *Device, mode DisplayMode) (*Display, error) {
	info := dev.Info()
	if !info.Valid() {
		return nil, fmt.Errorf("%w: display needs an initialized device", ErrDeviceNotReady)
	}
	return &Display{
		dev:    dev,
		buffer: NewFrameBuffer(int(info.Width), int(info.Height)),
		desc: LoadImageDescriptor{
			Endian:      EndianLittle,
			PixelFormat: PixelFormat4BPP,
			Rotation:    Rotate0,
			Target:      info.ImageBufferAddress,
		},
		mode:    mode,
		timeout: dev.config.DisplayTimeout,
	}, nil
}

// SetMode changes the waveform used by subsequent draws
func (d *Display) SetMode(mode DisplayMode) {
	d.mode = mode
}

// Buffer returns the host-side frame buffer
func (d *Display) Buffer() *FrameBuffer {
	return d.buffer
}

// ColorModel returns the 16 level gray model of the panel
func (d *Display) ColorModel() color.Model {
	return d.buffer.ColorModel()
}

// Bounds returns the panel rectangle
func (d *Display) Bounds() image.Rectangle {
	return d.buffer.Bounds()
}

// Draw renders src at dstRect and refreshes that rectangle
func (d *Display) Draw(dstRect image.Rectangle, src image.Image, sp image.Point) error {
	r := dstRect.Intersect(d.buffer.Bounds())
	if r.Empty() {
		return nil
	}
	draw.Draw(d.buffer, r, src, sp.Add(r.Min.Sub(dstRect.Min)), draw.Src)

	ctx, cancel := context.WithTimeout(context.Background(), 2*d.timeout+5*time.Second)
	defer cancel()
	return d.Refresh(ctx, Area{
		X:      uint16(r.Min.X),
		Y:      uint16(r.Min.Y),
		Width:  uint16(r.Dx()),
		Height: uint16(r.Dy()),
	})
}

// Refresh uploads the current buffer and refreshes area
func (d *Display) Refresh(ctx context.Context, area Area) error {
	if err := d.dev.WaitDisplayReady(ctx, d.timeout); err != nil {
		return err
	}
	full := d.dev.Info().Area()
	if err := d.dev.LoadImageArea(ctx, d.desc, full, d.buffer.Words(d.desc.Endian.ByteOrder())); err != nil {
		return err
	}
	if err := d.dev.WaitDisplayReady(ctx, d.timeout); err != nil {
		return err
	}
	return d.dev.DisplayArea(ctx, area, d.mode)
}

// Clear fills the panel white and refreshes it with the INIT waveform
func (d *Display) Clear(ctx context.Context) error {
	d.buffer.Fill(LevelWhite)
	mode := d.mode
	d.mode = ModeInit
	defer func() { d.mode = mode }()
	return d.Refresh(ctx, d.dev.Info().Area())
}

// Halt puts the controller to sleep
func (d *Display) Halt() error {
	ctx, cancel := context.WithTimeout(context.Background(), d.dev.config.CloseTimeout)
	defer cancel()
	return d.dev.Sleep(ctx)
}

func (d *Display) String() string {
	info := d.dev.Info()
	return fmt.Sprintf("it8951.Display{%s, %dx%d, %s}", d.dev.link.port, info.Width, info.Height, d.mode)
}

var _ display.Drawer = &Display{}
