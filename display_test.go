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
	"image"
	"image/color"
	"testing"

	virt "github.com/ZaparooProject/go-it8951/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDisplay_RequiresInit(t *testing.T) {
	t.Parallel()

	dev, _ := newSimDevice(t, 4, 2)
	_, err := NewDisplay(dev, ModeGC16)
	require.ErrorIs(t, err, ErrDeviceNotReady)
}

func TestDisplay_DrawUploadsBufferAndRefreshesRect(t *testing.T) {
	t.Parallel()

	dev, sim := initSimDevice(t, 4, 2)
	disp, err := NewDisplay(dev, ModeGC16)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 2), disp.Bounds())
	assert.Equal(t, color.GrayModel, disp.ColorModel())

	black := image.NewUniform(color.Black)
	require.NoError(t, disp.Draw(image.Rect(2, 0, 4, 2), black, image.Point{}))

	loads := sim.Loads()
	require.Len(t, loads, 1)
	assert.Equal(t, [4]uint16{0, 0, 4, 2}, loads[0].Area)
	assert.Equal(t, uint16(0x0020), loads[0].Argument)
	assert.Equal(t, []uint16{0x00FF, 0x00FF}, loads[0].Words)

	displays := sim.Displays()
	require.Len(t, displays, 1)
	assert.Equal(t, [4]uint16{2, 0, 2, 2}, displays[0].Area)
	assert.Equal(t, uint16(ModeGC16), displays[0].Mode)
	assert.Empty(t, sim.Errors())
}

func TestDisplay_DrawClipsToPanel(t *testing.T) {
	t.Parallel()

	dev, sim := initSimDevice(t, 4, 2)
	disp, err := NewDisplay(dev, ModeDU)
	require.NoError(t, err)

	require.NoError(t, disp.Draw(image.Rect(10, 10, 20, 20), image.Black, image.Point{}))
	assert.Empty(t, sim.Displays(), "nothing visible, nothing refreshed")

	require.NoError(t, disp.Draw(image.Rect(-2, 1, 2, 5), image.Black, image.Point{}))
	displays := sim.Displays()
	require.Len(t, displays, 1)
	assert.Equal(t, [4]uint16{0, 1, 2, 1}, displays[0].Area)
	assert.Equal(t, LevelBlack, disp.Buffer().Pixel(1, 1))
	assert.Equal(t, LevelWhite, disp.Buffer().Pixel(2, 1))
}

func TestDisplay_ClearUsesInitAndRestoresMode(t *testing.T) {
	t.Parallel()

	dev, sim := initSimDevice(t, 4, 2)
	disp, err := NewDisplay(dev, ModeA2)
	require.NoError(t, err)
	disp.Buffer().Fill(LevelBlack)

	require.NoError(t, disp.Clear(context.Background()))
	require.NoError(t, disp.Refresh(context.Background(), Area{Width: 1, Height: 1}))

	displays := sim.Displays()
	require.Len(t, displays, 2)
	assert.Equal(t, uint16(ModeInit), displays[0].Mode)
	assert.Equal(t, [4]uint16{0, 0, 4, 2}, displays[0].Area)
	assert.Equal(t, uint16(ModeA2), displays[1].Mode)
	assert.Equal(t, []uint16{0xFFFF, 0xFFFF}, sim.Loads()[0].Words)
}

func TestDisplay_HaltSleeps(t *testing.T) {
	t.Parallel()

	dev, sim := initSimDevice(t, 4, 2)
	disp, err := NewDisplay(dev, ModeGC16)
	require.NoError(t, err)

	require.NoError(t, disp.Halt())
	assert.Equal(t, virt.PowerSleep, sim.Power())
	assert.Contains(t, disp.String(), "4x2")
}
