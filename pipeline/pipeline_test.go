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

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/ZaparooProject/go-it8951"
	virt "github.com/ZaparooProject/go-it8951/internal/testing"
	"github.com/ZaparooProject/go-it8951/pkg/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	area  it8951.Area
	name  string
	words []uint16
	mode  it8951.DisplayMode
}

// recordingController logs every controller call in order
type recordingController struct {
	waitErr    error
	loadErr    error
	displayErr error
	calls      []call
	info       it8951.DeviceInfo
}

func newRecordingController(width, height uint16) *recordingController {
	return &recordingController{info: it8951.DeviceInfo{
		Width: width, Height: height, ImageBufferAddress: 0x001236E0,
	}}
}

func (c *recordingController) Info() it8951.DeviceInfo { return c.info }

func (c *recordingController) WaitDisplayReady(context.Context, time.Duration) error {
	c.calls = append(c.calls, call{name: "wait"})
	return c.waitErr
}

func (c *recordingController) LoadImageArea(
	_ context.Context, _ it8951.LoadImageDescriptor, area it8951.Area, words iter.Seq[uint16],
) error {
	var collected []uint16
	for w := range words {
		collected = append(collected, w)
	}
	c.calls = append(c.calls, call{name: "load", area: area, words: collected})
	return c.loadErr
}

func (c *recordingController) DisplayArea(_ context.Context, area it8951.Area, mode it8951.DisplayMode) error {
	c.calls = append(c.calls, call{name: "display", area: area, mode: mode})
	return c.displayErr
}

func (c *recordingController) Sleep(context.Context) error {
	c.calls = append(c.calls, call{name: "sleep"})
	return nil
}

func (c *recordingController) names() []string {
	names := make([]string, len(c.calls))
	for i, cl := range c.calls {
		names[i] = cl.name
	}
	return names
}

func stream(t *testing.T, msgs ...*frame.Message) *frame.Decoder {
	t.Helper()
	var buf bytes.Buffer
	enc := frame.NewEncoder(&buf)
	for _, m := range msgs {
		require.NoError(t, enc.Encode(m))
	}
	return frame.NewDecoder(&buf, 4, 2)
}

func threeRectFrame() *frame.Message {
	return &frame.Message{
		Width:  4,
		Height: 2,
		Rects: []frame.Rect{
			{X: 0, Y: 0, Width: 4, Height: 2, Mode: 2},
			{X: 0, Y: 0, Width: 2, Height: 1, Mode: 6},
			{X: 2, Y: 1, Width: 2, Height: 1, Mode: 1},
		},
		Pixels: []byte{0x00, 0xFF, 0x0F, 0xF0},
	}
}

func TestRun_OneLoadAndOrderedTriggersPerFrame(t *testing.T) {
	t.Parallel()

	ctrl := newRecordingController(4, 2)
	msg := threeRectFrame()
	p, err := New(ctrl, stream(t, msg, &frame.Message{Stop: true}), nil)
	require.NoError(t, err)

	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, []string{"wait", "load", "wait", "display", "wait", "display", "wait", "display"}, ctrl.names())

	load := ctrl.calls[1]
	assert.Equal(t, it8951.Area{X: 0, Y: 0, Width: 4, Height: 2}, load.area)
	// little-endian words over the packed payload
	assert.Equal(t, []uint16{0xFF00, 0xF00F}, load.words)

	var triggers []call
	for _, cl := range ctrl.calls {
		if cl.name == "display" {
			triggers = append(triggers, cl)
		}
	}
	require.Len(t, triggers, len(msg.Rects))
	for i, r := range msg.Rects {
		assert.Equal(t, it8951.Area{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}, triggers[i].area)
		assert.Equal(t, it8951.DisplayMode(r.Mode), triggers[i].mode)
	}

	stats := p.Stats()
	assert.Equal(t, 1, stats.Frames)
	assert.Equal(t, 3, stats.Rects)
	assert.Equal(t, int64(4), stats.BytesUploaded)
	assert.Equal(t, 3, stats.LastNonWhite)
	assert.Equal(t, msg.Pixels, p.Buffer().Bytes())
}

func TestRun_StopEndsWithoutControllerCalls(t *testing.T) {
	t.Parallel()

	ctrl := newRecordingController(4, 2)
	p, err := New(ctrl, stream(t, &frame.Message{Stop: true}, threeRectFrame()), nil)
	require.NoError(t, err)

	require.NoError(t, p.Run(context.Background()))
	assert.Empty(t, ctrl.calls)
	assert.Equal(t, 0, p.Stats().Frames)
}

func TestRun_SleepOnStop(t *testing.T) {
	t.Parallel()

	ctrl := newRecordingController(4, 2)
	cfg := DefaultConfig()
	cfg.SleepOnStop = true
	p, err := New(ctrl, stream(t, &frame.Message{Stop: true}), cfg)
	require.NoError(t, err)

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, []string{"wait", "sleep"}, ctrl.names())
}

func TestRun_ClearOnStart(t *testing.T) {
	t.Parallel()

	ctrl := newRecordingController(4, 2)
	cfg := DefaultConfig()
	cfg.ClearOnStart = true
	p, err := New(ctrl, stream(t, &frame.Message{Stop: true}), cfg)
	require.NoError(t, err)

	require.NoError(t, p.Run(context.Background()))
	require.Equal(t, []string{"wait", "load", "wait", "display"}, ctrl.names())
	assert.Equal(t, it8951.ModeInit, ctrl.calls[3].mode)
	assert.Equal(t, []uint16{0xFFFF, 0xFFFF}, ctrl.calls[1].words)
}

func TestRun_DecodeErrorsHaltBeforeDisplay(t *testing.T) {
	t.Parallel()

	valid, err := frame.Marshal(threeRectFrame())
	require.NoError(t, err)

	tests := []struct {
		wantErr error
		name    string
		input   []byte
	}{
		{
			name:    "corrupted magic",
			input:   append([]byte{0x07}, valid[1:]...),
			wantErr: frame.ErrProtocolViolation,
		},
		{
			name: "eleven rectangles",
			input: func() []byte {
				b := bytes.Clone(valid)
				b[13] = 11
				return b
			}(),
			wantErr: frame.ErrProtocolViolation,
		},
		{
			name:    "payload short by one byte",
			input:   valid[:len(valid)-1],
			wantErr: frame.ErrShortRead,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := newRecordingController(4, 2)
			p, err := New(ctrl, frame.NewDecoder(bytes.NewReader(tt.input), 4, 2), nil)
			require.NoError(t, err)

			err = p.Run(context.Background())
			require.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), "frame 0")
			assert.Empty(t, ctrl.calls)
		})
	}
}

func TestRun_ControllerErrorsHalt(t *testing.T) {
	t.Parallel()

	ctrl := newRecordingController(4, 2)
	ctrl.displayErr = it8951.ErrDisplayBusy
	p, err := New(ctrl, stream(t, threeRectFrame(), threeRectFrame()), nil)
	require.NoError(t, err)

	err = p.Run(context.Background())
	require.ErrorIs(t, err, it8951.ErrDisplayBusy)
	assert.Contains(t, err.Error(), "frame 0: rect 0")
	assert.Equal(t, []string{"wait", "load", "wait", "display"}, ctrl.names())
}

func TestRun_WaitTimeoutIsFatal(t *testing.T) {
	t.Parallel()

	ctrl := newRecordingController(4, 2)
	ctrl.waitErr = it8951.NewTimeoutError("WaitDisplayReady", "test")
	p, err := New(ctrl, stream(t, threeRectFrame()), nil)
	require.NoError(t, err)

	err = p.Run(context.Background())
	require.ErrorIs(t, err, it8951.ErrTransportTimeout)
	assert.Equal(t, []string{"wait"}, ctrl.names())
}

func TestRun_CancelledContext(t *testing.T) {
	t.Parallel()

	ctrl := newRecordingController(4, 2)
	p, err := New(ctrl, stream(t, threeRectFrame()), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ctrl.calls)
}

func TestRun_OnFrameCallback(t *testing.T) {
	t.Parallel()

	ctrl := newRecordingController(4, 2)
	p, err := New(ctrl, stream(t, threeRectFrame(), threeRectFrame(), &frame.Message{Stop: true}), nil)
	require.NoError(t, err)

	var events []FrameEvent
	p.OnFrame = func(e FrameEvent) { events = append(events, e) }

	require.NoError(t, p.Run(context.Background()))
	require.Len(t, events, 2)
	assert.Equal(t, 0, events[0].Index)
	assert.Equal(t, 1, events[1].Index)
	assert.Len(t, events[1].Rects, 3)
}

func TestNew_RequiresInitializedController(t *testing.T) {
	t.Parallel()

	_, err := New(newRecordingController(0, 0), stream(t), nil)
	require.ErrorIs(t, err, it8951.ErrDeviceNotReady)
}

func TestRun_AgainstVirtualController(t *testing.T) {
	t.Parallel()

	sim := virt.NewVirtualIT8951(4, 2, 0x001236E0)
	sim.DisplayBusyReads = 2
	dev, err := it8951.New(sim, it8951.WithDisplayPollInterval(0))
	require.NoError(t, err)
	require.NoError(t, dev.Init(context.Background()))

	p, err := New(dev, stream(t, threeRectFrame(), &frame.Message{Stop: true}), nil)
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background()))

	require.Empty(t, sim.Errors())
	loads := sim.Loads()
	require.Len(t, loads, 1)
	assert.Equal(t, uint32(0x001236E0), loads[0].Address)
	assert.Equal(t, [4]uint16{0, 0, 4, 2}, loads[0].Area)
	assert.Equal(t, uint16(0x0020), loads[0].Argument)
	assert.Equal(t, []uint16{0xFF00, 0xF00F}, loads[0].Words)

	displays := sim.Displays()
	require.Len(t, displays, 3)
	for i, r := range threeRectFrame().Rects {
		assert.Equal(t, [4]uint16{r.X, r.Y, r.Width, r.Height}, displays[i].Area)
		assert.Equal(t, uint16(r.Mode), displays[i].Mode)
		assert.False(t, displays[i].WhileBusy, "trigger %d issued while busy", i)
	}
}

func TestDispatch_RejectsWrongPayloadLength(t *testing.T) {
	t.Parallel()

	ctrl := newRecordingController(4, 2)
	p, err := New(ctrl, stream(t), nil)
	require.NoError(t, err)

	err = p.Dispatch(context.Background(), &frame.Message{Width: 4, Height: 2, Pixels: []byte{0xFF}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, it8951.ErrInvalidParameter))
	assert.Empty(t, ctrl.calls)
}
