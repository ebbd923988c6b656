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
	"bytes"
	"context"
	"flag"
	"io"
	"testing"
	"time"

	"github.com/ZaparooProject/go-it8951"
	virt "github.com/ZaparooProject/go-it8951/internal/testing"
	"github.com/ZaparooProject/go-it8951/pipeline"
	"github.com/ZaparooProject/go-it8951/pkg/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
)

func testConfig() *config {
	return &config{
		displayTimeout: 50 * time.Millisecond,
		stopGrace:      50 * time.Millisecond,
		sleepOnStop:    true,
		frequency:      24_000_000,
		csPin:          "7",
		resetPin:       "17",
		readyPin:       "24",
	}
}

func newTestDevice(t *testing.T) (*it8951.Device, *virt.VirtualIT8951) {
	t.Helper()
	sim := virt.NewVirtualIT8951(8, 2, 0x001236E0)
	dev, err := it8951.New(sim,
		it8951.WithReadyTimeout(20*time.Millisecond),
		it8951.WithDisplayPollInterval(0),
	)
	require.NoError(t, err)
	require.NoError(t, dev.Init(context.Background()))
	return dev, sim
}

func TestConfig_Conversions(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	sc := cfg.spiConfig("/dev/spidev0.1")
	assert.Equal(t, "/dev/spidev0.1", sc.Port)
	assert.Equal(t, "7", sc.CSPin)
	assert.Equal(t, 24*physic.MegaHertz, sc.Frequency)

	pc := cfg.pipelineConfig()
	assert.Equal(t, it8951.EndianLittle, pc.Endian)
	assert.True(t, pc.SleepOnStop)

	cfg.bigEndian = true
	assert.Equal(t, it8951.EndianBig, cfg.pipelineConfig().Endian)
}

func TestRunSession_DispatchesUntilStop(t *testing.T) {
	t.Parallel()

	dev, sim := newTestDevice(t)

	var stream bytes.Buffer
	enc := frame.NewEncoder(&stream)
	require.NoError(t, enc.Encode(&frame.Message{
		Width:  8,
		Height: 2,
		Rects:  []frame.Rect{{X: 0, Y: 0, Width: 8, Height: 2, Mode: 2}, {X: 4, Y: 1, Width: 4, Height: 1, Mode: 1}},
		Pixels: []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77},
	}))
	require.NoError(t, enc.EncodeStop())

	stats, err := runSession(context.Background(), dev, io.NopCloser(&stream), testConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Frames)
	assert.Equal(t, 2, stats.Rects)

	require.Len(t, sim.Loads(), 1)
	require.Len(t, sim.Displays(), 2)
	assert.Equal(t, [4]uint16{4, 1, 4, 1}, sim.Displays()[1].Area)
	assert.Equal(t, virt.PowerSleep, sim.Power())

	var out bytes.Buffer
	printStats(&out, stats)
	assert.Contains(t, out.String(), "1 frames, 2 rects, 8 bytes uploaded")
}

func TestRunSession_RejectsWrongGeometry(t *testing.T) {
	t.Parallel()

	dev, sim := newTestDevice(t)

	var stream bytes.Buffer
	require.NoError(t, frame.NewEncoder(&stream).Encode(&frame.Message{
		Width:  4,
		Height: 2,
		Rects:  []frame.Rect{{Width: 4, Height: 2}},
		Pixels: make([]byte, 4),
	}))

	stats, err := runSession(context.Background(), dev, io.NopCloser(&stream), testConfig())
	require.ErrorIs(t, err, frame.ErrProtocolViolation)
	assert.Zero(t, stats.Frames)
	assert.Empty(t, sim.Loads())
}

// blockingStream never yields data until closed
type blockingStream struct {
	closed chan struct{}
}

func (b *blockingStream) Read([]byte) (int, error) {
	<-b.closed
	return 0, io.ErrClosedPipe
}

func (b *blockingStream) Close() error {
	select {
	case <-b.closed:
	default:
		close(b.closed)
	}
	return nil
}

func TestRunSession_CancelClosesBlockedStream(t *testing.T) {
	t.Parallel()

	dev, _ := newTestDevice(t)
	stream := &blockingStream{closed: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := runSession(ctx, dev, stream, testConfig())
	require.Error(t, err)
	select {
	case <-stream.closed:
	default:
		t.Fatal("stream was not closed on cancel")
	}
}

// stuckStream ignores Close, like a terminal read that cannot be interrupted
type stuckStream struct {
	release chan struct{}
}

func (s *stuckStream) Read([]byte) (int, error) {
	<-s.release
	return 0, io.EOF
}

func (*stuckStream) Close() error { return nil }

func TestRunSession_CancelDoesNotWaitForStuckRead(t *testing.T) {
	t.Parallel()

	dev, _ := newTestDevice(t)
	stream := &stuckStream{release: make(chan struct{})}
	t.Cleanup(func() { close(stream.release) })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := runSession(ctx, dev, stream, testConfig())
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestParseConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := parseConfig()
	assert.False(t, cfg.sleepOnStop)
	assert.False(t, cfg.clear)
	assert.Equal(t, defaultStopGrace, cfg.stopGrace)
	assert.Equal(t, "-", cfg.input)
	assert.Equal(t, "false", flag.Lookup("sleep").DefValue)
}

func TestRunSession_StopFrameIssuesNoControllerOps(t *testing.T) {
	t.Parallel()

	dev, sim := newTestDevice(t)
	before := len(sim.Commands())

	var stream bytes.Buffer
	require.NoError(t, frame.NewEncoder(&stream).EncodeStop())

	cfg := testConfig()
	cfg.sleepOnStop = parseConfig().sleepOnStop
	stats, err := runSession(context.Background(), dev, io.NopCloser(&stream), cfg)
	require.NoError(t, err)
	assert.Zero(t, stats.Frames)
	assert.Len(t, sim.Commands(), before)
	assert.Equal(t, virt.PowerRun, sim.Power())
}

func TestPrintStats_NoFrames(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	printStats(&out, pipeline.Stats{})
	assert.Equal(t, "0 frames, 0 rects, 0 bytes uploaded\n", out.String())
}
