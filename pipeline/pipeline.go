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

// Package pipeline dispatches a stream of framed updates to an IT8951: one
// bulk upload of the frame's pixels followed by one partial refresh per dirty
// rectangle, each gated on the refresh engine being idle.
package pipeline

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/ZaparooProject/go-it8951"
	"github.com/ZaparooProject/go-it8951/internal/syncutil"
	"github.com/ZaparooProject/go-it8951/pkg/frame"
)

// Controller is the part of *it8951.Device the pipeline drives
type Controller interface {
	Info() it8951.DeviceInfo
	WaitDisplayReady(ctx context.Context, timeout time.Duration) error
	LoadImageArea(ctx context.Context, desc it8951.LoadImageDescriptor, area it8951.Area, words iter.Seq[uint16]) error
	DisplayArea(ctx context.Context, area it8951.Area, mode it8951.DisplayMode) error
	Sleep(ctx context.Context) error
}

// FrameSource yields decoded messages; *frame.Decoder implements it
type FrameSource interface {
	Next() (*frame.Message, error)
}

// FrameEvent describes one dispatched frame
type FrameEvent struct {
	Rects    []frame.Rect
	Index    int
	NonWhite int
	Duration time.Duration
}

// Pipeline owns the frame buffer and the load descriptor for one session.
//
// Thread Safety: Run must not be called concurrently. Stats may be read from
// any goroutine.
type Pipeline struct {
	ctrl    Controller
	src     FrameSource
	config  *Config
	buffer  *it8951.FrameBuffer
	OnFrame func(FrameEvent)
	stats   Stats
	desc    it8951.LoadImageDescriptor
	panel   it8951.Area
	statsMu syncutil.RWMutex
}

// New creates a pipeline for an initialized controller. The frame buffer is
// sized from the controller's negotiated geometry.
func New(ctrl Controller, src FrameSource, config *Config) (*Pipeline, error) {
	if config == nil {
		config = DefaultConfig()
	}
	info := ctrl.Info()
	if !info.Valid() {
		return nil, fmt.Errorf("%w: pipeline needs an initialized controller", it8951.ErrDeviceNotReady)
	}
	return &Pipeline{
		ctrl:   ctrl,
		src:    src,
		config: config,
		buffer: it8951.NewFrameBuffer(int(info.Width), int(info.Height)),
		desc: it8951.LoadImageDescriptor{
			Endian:      config.Endian,
			PixelFormat: config.PixelFormat,
			Rotation:    config.Rotation,
			Target:      info.ImageBufferAddress,
		},
		panel: info.Area(),
	}, nil
}

// Buffer returns the frame buffer holding the last dispatched frame
func (p *Pipeline) Buffer() *it8951.FrameBuffer {
	return p.buffer
}

// Run dispatches frames until a stop message, an error or ctx is done. The
// context is checked between frames and during controller waits; a blocked
// read from the source is not interrupted.
func (p *Pipeline) Run(ctx context.Context) error {
	p.statsMu.Lock()
	p.stats.Started = time.Now()
	p.statsMu.Unlock()

	if p.config.ClearOnStart {
		if err := p.Clear(ctx); err != nil {
			return fmt.Errorf("initial clear: %w", err)
		}
	}

	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("frame %d: %w", index, err)
		}

		msg, err := p.src.Next()
		if err != nil {
			return fmt.Errorf("frame %d: %w", index, err)
		}
		if msg.Stop {
			it8951.Debugf("Stop requested after %d frames", index)
			return p.stop(ctx)
		}

		if err := p.Dispatch(ctx, msg); err != nil {
			return fmt.Errorf("frame %d: %w", index, err)
		}
	}
}

// Dispatch performs one frame: replace the buffer, wait for idle, upload the
// full panel once, then per rectangle in order wait for idle and trigger.
func (p *Pipeline) Dispatch(ctx context.Context, msg *frame.Message) error {
	start := time.Now()
	if err := p.buffer.Replace(msg.Pixels); err != nil {
		return err
	}
	nonWhite := msg.NonWhite()
	it8951.Debugf("Frame: %d rects, %d non-white bytes", len(msg.Rects), nonWhite)

	if err := p.ctrl.WaitDisplayReady(ctx, p.config.DisplayTimeout); err != nil {
		return fmt.Errorf("before upload: %w", err)
	}
	words := p.buffer.Words(p.config.Endian.ByteOrder())
	if err := p.ctrl.LoadImageArea(ctx, p.desc, p.panel, words); err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	for i, r := range msg.Rects {
		area := it8951.Area{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
		if err := p.ctrl.WaitDisplayReady(ctx, p.config.DisplayTimeout); err != nil {
			return fmt.Errorf("rect %d %s: %w", i, area, err)
		}
		if err := p.ctrl.DisplayArea(ctx, area, it8951.DisplayMode(r.Mode)); err != nil {
			return fmt.Errorf("rect %d %s: %w", i, area, err)
		}
	}

	event := p.record(msg, nonWhite, time.Since(start))
	if p.OnFrame != nil {
		p.OnFrame(event)
	}
	return nil
}

// Clear fills the buffer white, uploads it and refreshes the whole panel
// with the configured clear mode.
func (p *Pipeline) Clear(ctx context.Context) error {
	p.buffer.Fill(it8951.LevelWhite)
	if err := p.ctrl.WaitDisplayReady(ctx, p.config.DisplayTimeout); err != nil {
		return err
	}
	if err := p.ctrl.LoadImageArea(ctx, p.desc, p.panel, p.buffer.Words(p.config.Endian.ByteOrder())); err != nil {
		return err
	}
	if err := p.ctrl.WaitDisplayReady(ctx, p.config.DisplayTimeout); err != nil {
		return err
	}
	return p.ctrl.DisplayArea(ctx, p.panel, p.config.ClearMode)
}

func (p *Pipeline) stop(ctx context.Context) error {
	if !p.config.SleepOnStop {
		return nil
	}
	if err := p.ctrl.WaitDisplayReady(ctx, p.config.DisplayTimeout); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	if err := p.ctrl.Sleep(ctx); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	return nil
}
