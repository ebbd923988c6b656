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
	"iter"
	"slices"
	"testing"
	"time"

	virt "github.com/ZaparooProject/go-it8951/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastLinkConfig() *LinkConfig {
	return &LinkConfig{
		ReadyTimeout: 20 * time.Millisecond,
		PollInterval: 0,
		ChunkSize:    64,
		TraceSize:    8,
	}
}

func allWords() iter.Seq[uint16] {
	return func(yield func(uint16) bool) {
		for v := range 1 << 16 {
			if !yield(uint16(v)) {
				return
			}
		}
	}
}

func TestLink_LoopbackRoundTripAllWords(t *testing.T) {
	t.Parallel()

	lb := virt.NewLoopback()
	link := NewLink(lb, fastLinkConfig())
	ctx := context.Background()

	require.NoError(t, link.WriteWords(ctx, allWords()))
	got, err := link.ReadWords(ctx, 1<<16)
	require.NoError(t, err)

	require.Len(t, got, 1<<16)
	for i, w := range got {
		if w != uint16(i) {
			t.Fatalf("word %d read back as 0x%04X", i, w)
		}
	}
}

func TestLink_SingleWordRoundTrip(t *testing.T) {
	t.Parallel()

	values := []uint16{0x0000, 0x0001, 0x00FF, 0xFF00, 0x1234, 0x8000, 0xFFFF}
	for _, v := range values {
		lb := virt.NewLoopback()
		link := NewLink(lb, fastLinkConfig())

		require.NoError(t, link.WriteData(context.Background(), v))
		got, err := link.ReadData(context.Background())
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestLink_Preambles(t *testing.T) {
	t.Parallel()

	lb := virt.NewLoopback()
	link := NewLink(lb, fastLinkConfig())
	ctx := context.Background()

	require.NoError(t, link.WriteCommand(ctx, cmdGetDevInfo))
	require.NoError(t, link.WriteData(ctx, 0xBEEF))
	_, err := link.ReadData(ctx)
	require.NoError(t, err)

	assert.Equal(t, []uint16{preambleCommand, preambleDataWrite, preambleDataRead}, lb.Preambles())
	assert.Equal(t, []uint16{cmdGetDevInfo}, lb.Commands())

	selects, deselects := lb.Selects()
	assert.Equal(t, 3, selects)
	assert.Equal(t, 3, deselects)
}

func TestLink_ReadyTimeoutSendsNothing(t *testing.T) {
	t.Parallel()

	lb := virt.NewLoopback()
	lb.SetReady(false)
	link := NewLink(lb, fastLinkConfig())

	start := time.Now()
	err := link.WriteCommand(context.Background(), cmdSysRun)
	require.ErrorIs(t, err, ErrTransportTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "WriteCommand", te.Op)
	assert.Equal(t, ErrorTypeTimeout, te.Type)

	selects, _ := lb.Selects()
	assert.Zero(t, selects)
	assert.Empty(t, lb.Preambles())
}

func TestLink_DeselectOnPayloadFailure(t *testing.T) {
	t.Parallel()

	lb := virt.NewLoopback()
	lb.WriteErr = errors.New("bus fault")
	lb.FailWriteAt = 2 // preamble succeeds, payload fails
	link := NewLink(lb, fastLinkConfig())

	err := link.WriteData(context.Background(), 0x1234)
	require.ErrorIs(t, err, ErrTransportIO)
	assert.False(t, lb.Selected())

	selects, deselects := lb.Selects()
	assert.Equal(t, 1, selects)
	assert.Equal(t, 1, deselects)

	trace := GetTrace(err)
	require.NotNil(t, trace)
	require.NotEmpty(t, trace.Trace)
	assert.Equal(t, TraceTX, trace.Trace[0].Direction)
	assert.Equal(t, []byte{0x00, 0x00}, trace.Trace[0].Data)
}

func TestLink_WriteWordsChunksAndByteOrder(t *testing.T) {
	t.Parallel()

	lb := virt.NewLoopback()
	cfg := fastLinkConfig()
	cfg.ChunkSize = 5 // rounded down to 4
	link := NewLink(lb, cfg)
	ctx := context.Background()

	words := []uint16{0x0102, 0x0304, 0x0506, 0x0708, 0x090A}
	require.NoError(t, link.WriteWords(ctx, slices.Values(words)))
	assert.Equal(t, 4, link.config.ChunkSize)

	got, err := link.ReadWords(ctx, len(words))
	require.NoError(t, err)
	assert.Equal(t, words, got)
}

func TestLink_WriteWordsStopsOnCancel(t *testing.T) {
	t.Parallel()

	lb := virt.NewLoopback()
	cfg := fastLinkConfig()
	cfg.ChunkSize = 2
	link := NewLink(lb, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	count := 0
	words := func(yield func(uint16) bool) {
		for {
			count++
			if count == 3 {
				cancel()
			}
			if !yield(0xFFFF) {
				return
			}
		}
	}

	err := link.WriteWords(ctx, words)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, lb.Selected())
}

func TestLink_WaitReadyHonoursContext(t *testing.T) {
	t.Parallel()

	lb := virt.NewLoopback()
	lb.SetReady(false)
	cfg := fastLinkConfig()
	cfg.PollInterval = time.Millisecond
	link := NewLink(lb, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := link.WaitReady(ctx, time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLink_ReadWordsRejectsZero(t *testing.T) {
	t.Parallel()

	link := NewLink(virt.NewLoopback(), fastLinkConfig())
	_, err := link.ReadWords(context.Background(), 0)
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestLink_HRDYBusyPollsAreWaitedOut(t *testing.T) {
	t.Parallel()

	sim := virt.NewVirtualIT8951(8, 8, 0)
	sim.HRDYBusyPolls = 3
	link := NewLink(sim, fastLinkConfig())

	require.NoError(t, link.WriteCommand(context.Background(), cmdSysRun))
	require.Empty(t, sim.Errors())
	require.Len(t, sim.Commands(), 1)
	assert.Equal(t, cmdSysRun, sim.Commands()[0].Cmd)
}
